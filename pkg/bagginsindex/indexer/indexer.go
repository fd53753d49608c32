// Package indexer keeps a secondary index on one column of a family in step
// with the rows of that family, and maps search hits back to row keys.
package indexer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/flynnfc/bagginsindex/internal/ring"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/options"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/rowstore"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/segment"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/timer"
)

const tracerName = "github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexer"

// Config describes one column index.
type Config struct {
	Family  *keys.FamilyMeta
	Column  string
	Options options.Options

	// Shards is the number of segment writers row keys are spread over.
	Shards         int
	FlushThreshold int

	Logger         *zap.Logger
	TracerProvider trace.TracerProvider
	// OpenLog opens the write-ahead log of a shard directory. Nil runs the
	// shards without one.
	OpenLog func(dir string) (segment.Log, error)
}

// Hit is one search result.
type Hit struct {
	PrimaryKey []byte
	RowKey     []byte
	Timestamp  int64
	Document   fields.Document
}

// Indexer is the index of one column.
type Indexer struct {
	family   *keys.FamilyMeta
	column   keys.ColumnDescriptor
	spec     fields.FieldSpec
	dir      string
	resolver *keys.Resolver
	ring     *ring.HashRing
	shards   map[string]*segment.Writer
	logger   *zap.Logger
	tracer   trace.Tracer

	indexDuration  prometheus.Observer
	searchDuration prometheus.Observer
}

// New opens the index of cfg.Column under the directory named by the
// options.
func New(cfg Config) (*Indexer, error) {
	if cfg.Family == nil {
		return nil, indexerr.New(indexerr.CodeConfig, "indexer.New", "no family")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.TracerProvider == nil {
		cfg.TracerProvider = otel.GetTracerProvider()
	}
	if cfg.Shards < 1 {
		cfg.Shards = 1
	}
	f := cfg.Family

	column, ok := f.Column(cfg.Column)
	if !ok || column.Validator == nil {
		return nil, indexerr.New(indexerr.CodeConfig, "indexer.New", "%s.%s has no column %q", f.Keyspace, f.Name, cfg.Column)
	}
	dir, err := options.ResolveIndexDirectory(f.Keyspace, f.Name, cfg.Options)
	if err != nil {
		return nil, err
	}
	spec, err := fields.SpecFor(cfg.Options, f.Name, cfg.Column, column.Validator)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger.With(
		zap.String("keyspace", f.Keyspace),
		zap.String("family", f.Name),
		zap.String("column", cfg.Column),
	)
	labels := []string{f.Keyspace, f.Name, cfg.Column}
	resolver := keys.NewResolver(logger, func(p keys.PartialKey) {
		PartialKeys.WithLabelValues(p.Keyspace, p.Family).Inc()
	})
	ix := &Indexer{
		family:         f,
		column:         column,
		spec:           spec,
		dir:            dir,
		resolver:       resolver,
		ring:           ring.NewHashRing(16, nil),
		shards:         make(map[string]*segment.Writer, cfg.Shards),
		logger:         logger,
		tracer:         cfg.TracerProvider.Tracer(tracerName),
		indexDuration:  IndexDuration.WithLabelValues(labels...),
		searchDuration: SearchDuration.WithLabelValues(labels...),
	}

	for i := 0; i < cfg.Shards; i++ {
		name := fmt.Sprintf("shard-%d", i)
		shardDir := filepath.Join(dir, name)
		opts := segment.Options{
			Dir:            shardDir,
			Logger:         logger.With(zap.String("shard", name)),
			FlushThreshold: cfg.FlushThreshold,
		}
		if cfg.OpenLog != nil {
			if opts.Log, err = cfg.OpenLog(filepath.Join(shardDir, "wal")); err != nil {
				ix.Close()
				return nil, indexerr.Wrap(err, indexerr.CodeStorage, "indexer.New", "log for %s", shardDir)
			}
		}
		w, err := segment.Open(opts)
		if err != nil {
			ix.Close()
			return nil, err
		}
		ix.shards[name] = w
		ix.ring.Add(name)
	}
	logger.Info("index opened", zap.String("dir", dir), zap.Int("shards", cfg.Shards))
	return ix, nil
}

// Dir is the index directory.
func (ix *Indexer) Dir() string { return ix.dir }

// Spec is the field spec of the indexed column.
func (ix *Indexer) Spec() fields.FieldSpec { return ix.spec }

func (ix *Indexer) shard(rowKey []byte) *segment.Writer {
	return ix.shards[ix.ring.Get(rowKey)]
}

func (ix *Indexer) startSpan(ctx context.Context, name string, rowKey []byte) (context.Context, trace.Span) {
	ctx, span := ix.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("keyspace", ix.family.Keyspace),
		attribute.String("family", ix.family.Name),
		attribute.String("column", ix.column.Name),
	))
	if rowKey != nil {
		span.SetAttributes(attribute.Int("row_key.len", len(rowKey)))
	}
	return ctx, span
}

func (ix *Indexer) finish(span trace.Span, outcome string, err error) {
	Mutations.WithLabelValues(ix.family.Keyspace, ix.family.Name, ix.column.Name, outcome).Inc()
	span.SetAttributes(attribute.String("outcome", outcome))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Index updates the index with a written cell. Cells of other columns are
// skipped, as are cells older than the indexed version of the row.
func (ix *Indexer) Index(ctx context.Context, rowKey []byte, c rowstore.Cell) error {
	_, err := ix.index(ctx, rowKey, c)
	return err
}

func (ix *Indexer) index(ctx context.Context, rowKey []byte, c rowstore.Cell) (outcome string, err error) {
	_, span := ix.startSpan(ctx, "indexer.Index", rowKey)
	t := timer.Start()
	defer func() {
		ix.indexDuration.Observe(t.Seconds())
		ix.finish(span, outcome, err)
	}()

	res, err := ix.resolver.Resolve(rowKey, ix.family, c.Name)
	if err != nil {
		return OutcomeError, err
	}
	if res.Column != ix.column.Name {
		return OutcomeSkipped, nil
	}

	columnFields, err := fields.ProjectColumn(ix.column, ix.column.Name, c.Value, ix.spec)
	if err != nil {
		return OutcomeError, err
	}

	outcome = OutcomeSkipped
	_, err = ix.shard(rowKey).Update(res.PrimaryKey.Key, func(existing fields.Document, found bool) (fields.Document, segment.Change, error) {
		if found {
			if ts, ok := existing.Timestamp(); ok && ts > c.Timestamp {
				outcome = OutcomeStale
				return fields.Document{}, segment.Keep, nil
			}
		}
		if len(columnFields) == 0 {
			// an empty value clears the column
			if !found {
				return fields.Document{}, segment.Keep, nil
			}
			outcome = OutcomeDeleted
			return fields.Document{}, segment.Remove, nil
		}
		doc := fields.NewDocument(
			columnFields,
			fields.ProjectPrimaryKey(res.PrimaryKey),
			fields.ProjectTimestamp(c.Timestamp),
		)
		if found {
			doc = existing.Merge(doc)
		}
		outcome = OutcomeIndexed
		return doc, segment.Put, nil
	})
	if err != nil {
		return OutcomeError, err
	}
	return outcome, nil
}

// Delete removes the index entry of a deleted cell.
func (ix *Indexer) Delete(ctx context.Context, rowKey []byte, c rowstore.Cell) (err error) {
	_, span := ix.startSpan(ctx, "indexer.Delete", rowKey)
	outcome := OutcomeDeleted
	defer func() { ix.finish(span, outcome, err) }()

	res, err := ix.resolver.Resolve(rowKey, ix.family, c.Name)
	if err != nil {
		outcome = OutcomeError
		return err
	}
	if res.Column != ix.column.Name {
		outcome = OutcomeSkipped
		return nil
	}
	if err = ix.shard(rowKey).Delete(res.PrimaryKey.Key); err != nil {
		outcome = OutcomeError
	}
	return err
}

// Rebuild indexes every cell already in store. It is used when an index is
// created over a family that already has rows. It returns the number of
// cells indexed.
func (ix *Indexer) Rebuild(ctx context.Context, store *rowstore.Store) (int, error) {
	ctx, span := ix.tracer.Start(ctx, "indexer.Rebuild")
	defer span.End()
	t := timer.Start()

	var (
		indexed int
		errs    []error
	)
	store.Scan(func(rowKey []byte, c rowstore.Cell) bool {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			return false
		}
		outcome, err := ix.index(ctx, rowKey, c)
		if err != nil {
			errs = append(errs, err)
			return true
		}
		if outcome == OutcomeIndexed {
			indexed++
		}
		return true
	})
	err := errors.Join(errs...)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.SetAttributes(attribute.Int("indexed", indexed))
	ix.logger.Info("rebuilt index",
		zap.Int("indexed", indexed),
		zap.Int("errors", len(errs)),
		zap.Float64("millis", t.Millis()),
	)
	return indexed, err
}

// Search runs q on every shard and returns the hits in primary key order.
func (ix *Indexer) Search(ctx context.Context, q segment.Query) ([]Hit, error) {
	ctx, span := ix.tracer.Start(ctx, "indexer.Search", trace.WithAttributes(attribute.String("query", q.String())))
	defer span.End()
	t := timer.Start()
	defer func() { ix.searchDuration.Observe(t.Seconds()) }()

	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		docs []fields.Document
		errs []error
	)
	for name, w := range ix.shards {
		wg.Add(1)
		go func(name string, w *segment.Writer) {
			defer wg.Done()
			found, err := w.Search(q)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			docs = append(docs, found...)
		}(name, w)
	}
	wg.Wait()
	if err := errors.Join(errs...); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	hits := make([]Hit, 0, len(docs))
	for _, d := range docs {
		h, err := ix.hit(d)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		hits = append(hits, h)
	}
	sort.Slice(hits, func(i, j int) bool { return bytes.Compare(hits[i].PrimaryKey, hits[j].PrimaryKey) < 0 })
	span.SetAttributes(attribute.Int("hits", len(hits)))
	return hits, nil
}

func (ix *Indexer) hit(d fields.Document) (Hit, error) {
	f, ok := d.Get(fields.PKDocValues)
	if !ok {
		return Hit{}, indexerr.Decode("indexer.Search", "document without %s", fields.PKDocValues)
	}
	validator := ix.family.KeyValidator
	if ix.family.ComparatorKind == keys.Composite {
		validator = ix.family.Comparator
	}
	pk, err := fields.DecodePrimaryKey(f, validator)
	if err != nil {
		return Hit{}, err
	}
	rowKey, err := keys.RowKeyOf(ix.family, pk)
	if err != nil {
		return Hit{}, err
	}
	ts, _ := d.Timestamp()
	return Hit{PrimaryKey: pk, RowKey: rowKey, Timestamp: ts, Document: d}, nil
}

// Count returns the number of hits of q.
func (ix *Indexer) Count(ctx context.Context, q segment.Query) (int, error) {
	hits, err := ix.Search(ctx, q)
	return len(hits), err
}

// Rows resolves hits to their rows in store, skipping rows that are gone.
func (ix *Indexer) Rows(hits []Hit, store *rowstore.Store) map[string][]rowstore.Cell {
	out := make(map[string][]rowstore.Cell, len(hits))
	for _, h := range hits {
		if _, ok := out[string(h.RowKey)]; ok {
			continue
		}
		if row := store.Row(h.RowKey); len(row) > 0 {
			out[string(h.RowKey)] = row
		}
	}
	return out
}

// Flush writes every shard's pending changes to its segment.
func (ix *Indexer) Flush() error {
	var errs []error
	for _, w := range ix.shards {
		if err := w.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every shard.
func (ix *Indexer) Close() error {
	var errs []error
	for name, w := range ix.shards {
		if err := w.Close(); err != nil {
			ix.logger.Error("closing shard", zap.String("shard", name), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
