package simulation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/flynnfc/bagginsindex/logger"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexer"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/marshal"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/options"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/rowstore"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/segment"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/timer"
)

const testName = "TaggedRows"

// batch is written over and over, one row per entry.
var batch = []struct{ tags, state string }{
	{"hello1 tag1 lol1", "CA"},
	{"hello1 tag1 lol2", "LA"},
	{"hello1 tag2 lol1", "NY"},
	{"hello1 tag2 lol2", "TX"},
	{"hllo3 tag3 lol3", "TX"},
	{"hello2 tag1 lol1", "CA"},
	{"hello2 tag1 lol2", "NY"},
	{"hello2 tag2 lol1", "CA"},
	{"hello2 tag2 lol2", "TX"},
	{"hllo3 tag3 lol3", "TX"},
}

// States are the states counted after the load, the last one never written.
var States = []string{"CA", "LA", "NY", "TX", "NONEXISTENT"}

// IndexedColumns are indexed once IndexAt rows exist. state1 stays unindexed.
var IndexedColumns = []string{"state", "tags"}

// Family is the tag3 table: key int primary key, tags, state and state1 text.
func Family(keyspace string) *keys.FamilyMeta {
	return keys.NewTable(keyspace, "tag3", marshal.Int32, nil, []keys.ColumnDescriptor{
		{Name: "tags", Validator: marshal.UTF8},
		{Name: "state", Validator: marshal.UTF8},
		{Name: "state1", Validator: marshal.UTF8},
	})
}

// TaggedRows writes Rows rows, creating the column indexes after IndexAt rows
// and rebuilding them from the rows already written, then counts the rows of
// every state.
type TaggedRows struct {
	Logger   *zap.Logger
	Dir      string
	Keyspace string
	Rows     int
	IndexAt  int
	Workers  int
	Shards   int
	// FlushThreshold of the index shards, zero keeps everything in memory.
	FlushThreshold int
	OpenLog        func(dir string) (segment.Log, error)
}

// Result of one run.
type Result struct {
	Records []ResultRecord
	// Counts maps "column=value" to the number of matching rows.
	Counts  map[string]int
	Rebuilt int
}

func (r *TaggedRows) defaults() {
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	if r.Keyspace == "" {
		r.Keyspace = "dummyks0"
	}
	if r.Rows == 0 {
		r.Rows = 12000
	}
	if r.IndexAt == 0 {
		r.IndexAt = r.Rows / 2
	}
	if r.Workers < 1 {
		r.Workers = 8
	}
}

// Run executes the scenario once.
func (r *TaggedRows) Run(ctx context.Context, runNumber int) (Result, error) {
	r.defaults()
	family := Family(r.Keyspace)
	store := rowstore.New(rowstore.Config{Family: family, Logger: r.Logger.Named("rowstore")})
	res := Result{Counts: make(map[string]int)}

	rec, err := r.writeRows(ctx, store, runNumber, "write_before_index", 0, r.IndexAt)
	if err != nil {
		return res, err
	}
	res.Records = append(res.Records, rec)

	indexes := make(map[string]*indexer.Indexer, len(IndexedColumns))
	defer func() {
		for _, ix := range indexes {
			if err := ix.Close(); err != nil {
				r.Logger.Error("Failed to close index", zap.String("dir", ix.Dir()), zap.Error(err))
			}
		}
	}()
	t := timer.Start()
	for _, column := range IndexedColumns {
		ix, err := indexer.New(indexer.Config{
			Family: family,
			Column: column,
			Options: options.Options{
				options.IndexDirName:  r.Dir,
				options.IndexFileName: column,
			},
			Shards:         r.Shards,
			FlushThreshold: r.FlushThreshold,
			Logger:         r.Logger.Named("indexer"),
			OpenLog:        r.OpenLog,
		})
		if err != nil {
			return res, err
		}
		indexes[column] = ix
		store.Subscribe(ix)
		n, err := ix.Rebuild(ctx, store)
		if err != nil {
			return res, err
		}
		res.Rebuilt += n
	}
	r.Logger.Info("Created indexes", zap.Int("rebuilt", res.Rebuilt), zap.Float64("millis", t.Millis()))

	rec, err = r.writeRows(ctx, store, runNumber, "write_after_index", r.IndexAt, r.Rows)
	if err != nil {
		return res, err
	}
	res.Records = append(res.Records, rec)

	stats := NewStats()
	start := time.Now()
	queries := 0
	count := func(column, value string) error {
		ix := indexes[column]
		began := time.Now()
		n, err := ix.Count(ctx, ix.Equals(value))
		if err != nil {
			return err
		}
		stats.Record(time.Since(began))
		queries++
		res.Counts[column+"="+value] = n
		r.Logger.Info("Counted rows", zap.String("column", column), zap.String("value", value), zap.Int("rows", n))
		return nil
	}
	for _, state := range States {
		if err := count("state", state); err != nil {
			return res, err
		}
	}
	for _, tag := range []string{"tag1", "tag2", "tag3"} {
		if err := count("tags", tag); err != nil {
			return res, err
		}
	}
	res.Records = append(res.Records, record(testName, runNumber, "count", stats, queries, time.Since(start)))
	return res, nil
}

func rowKey(n int) []byte {
	b, _ := marshal.Int32.Encode(int32(n))
	return b
}

// writeRows writes rows [from, to) with a pool of workers. Row n gets key n+1.
func (r *TaggedRows) writeRows(ctx context.Context, store *rowstore.Store, runNumber int, phase string, from, to int) (ResultRecord, error) {
	family := store.Family()
	names := make(map[string][]byte, len(family.Columns))
	for column := range family.Columns {
		name, err := family.CellName(nil, column, nil)
		if err != nil {
			return ResultRecord{}, err
		}
		names[column] = name
	}

	stats := NewStats()
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	rows := make(chan int, r.Workers*2)
	worker := func() {
		defer wg.Done()
		for n := range rows {
			b := batch[n%len(batch)]
			key := rowKey(n + 1)
			began := time.Now()
			var err error
			for column, value := range map[string]string{"tags": b.tags, "state": b.state, "state1": b.state} {
				if _, perr := store.Put(ctx, key, names[column], []byte(value)); perr != nil {
					err = errors.Join(err, perr)
				}
			}
			stats.Record(time.Since(began))
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("row %d: %w", n+1, err))
				mu.Unlock()
			}
		}
	}
	for i := 0; i < r.Workers; i++ {
		wg.Add(1)
		go worker()
	}

	start := time.Now()
loop:
	for n := from; n < to; n++ {
		select {
		case rows <- n:
		case <-ctx.Done():
			break loop
		}
	}
	close(rows)
	wg.Wait()
	total := time.Since(start)

	if err := ctx.Err(); err != nil {
		return ResultRecord{}, err
	}
	if err := errors.Join(errs...); err != nil {
		return ResultRecord{}, err
	}
	rec := record(testName, runNumber, phase, stats, to-from, total)
	r.Logger.Info("Phase completed",
		zap.String("phase", phase),
		zap.Int("rows", to-from),
		zap.Duration("duration", total),
		zap.Float64("ops_sec", rec.OpsSec),
		zap.Float64("p50_us", rec.P50Us),
		zap.Float64("p95_us", rec.P95Us),
		zap.Float64("p99_us", rec.P99Us),
	)
	return rec, nil
}

// Load runs TaggedRows three times on fresh directories and writes the phase
// stats of every run to a CSV file.
func Load() {
	var allResults []ResultRecord

	for runNumber := 1; runNumber <= 3; runNumber++ {
		fmt.Printf("=== %s: Run %d/3 ===\n", testName, runNumber)

		seed := time.Now().Format("2006-01-02-15-04-05")
		log, err := logger.InitLogger(logger.Options{Name: fmt.Sprintf("%s-tagged-run%d", seed, runNumber)})
		if err != nil {
			fmt.Printf("Error creating logger: %v\n", err)
			return
		}
		dir, err := os.MkdirTemp("", "bagginsindex-sim-")
		if err != nil {
			log.Error("Failed to create index dir", zap.Error(err))
			continue
		}

		sim := TaggedRows{Logger: log, Dir: dir, Shards: 4, Workers: 16}
		res, err := sim.Run(context.Background(), runNumber)
		if err != nil {
			log.Error("Tagged rows scenario error", zap.Error(err))
		} else {
			log.Info("Entire scenario run completed", zap.Any("counts", res.Counts), zap.Int("rebuilt", res.Rebuilt))
			allResults = append(allResults, res.Records...)
		}
		if err := os.RemoveAll(dir); err != nil {
			log.Warn("Failed to remove index dir", zap.String("dir", dir), zap.Error(err))
		}
		_ = log.Sync()
	}

	csvFileName := fmt.Sprintf("load-results-%s.csv", time.Now().Format("2006-01-02-15-04-05"))
	if err := WriteCSV(csvFileName, allResults); err != nil {
		fmt.Printf("Error writing CSV: %v\n", err)
	} else {
		fmt.Printf("Results written to %s\n", csvFileName)
	}
	fmt.Printf("=== %s Completed ===\n", testName)
}
