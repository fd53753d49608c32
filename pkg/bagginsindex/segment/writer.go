package segment

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/fields"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/indexerr"
)

const segmentExt = ".seg"

// Log is the write-ahead log a Writer appends to before applying a change.
// *wal.WriteAheadLog satisfies it.
type Log interface {
	Write(data []byte) (int64, error)
	Replay(offset int64, f func([]byte) error) error
}

// Options configure a Writer.
type Options struct {
	// Dir holds the segment files.
	Dir    string
	Logger *zap.Logger
	// Log is optional. Without it unflushed changes are lost on restart.
	Log Log
	// FlushThreshold is the memtable size that triggers a flush, 0 disables it.
	FlushThreshold    int
	SparseInterval    int
	FalsePositiveRate float64
}

// Writer indexes documents keyed by primary key. Changes go to the log, then
// to an in-memory table which is merged with the current segment on Flush.
type Writer struct {
	mu     sync.RWMutex
	opts   Options
	log    *zap.Logger
	mem    *memtable
	seg    *segment
	nextID uint64
	closed bool
}

// Open loads the newest segment in opts.Dir and replays the log on top of it.
func Open(opts Options) (*Writer, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.SparseInterval <= 0 {
		opts.SparseInterval = 16
	}
	if opts.FalsePositiveRate <= 0 {
		opts.FalsePositiveRate = 0.01
	}
	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, indexerr.Wrap(err, indexerr.CodeStorage, "segment.Open", "%s", opts.Dir)
	}

	w := &Writer{opts: opts, log: opts.Logger, mem: newMemtable(), nextID: 1}
	id, err := latestSegment(opts.Dir)
	if err != nil {
		return nil, err
	}
	if id > 0 {
		w.seg, err = loadSegment(w.segmentPath(id), id)
		if err != nil {
			return nil, err
		}
		w.nextID = id + 1
		w.log.Info("loaded segment", zap.String("dir", opts.Dir), zap.Uint64("id", id))
	}

	if opts.Log != nil {
		if err := w.replay(); err != nil {
			w.Close()
			return nil, err
		}
	}
	return w, nil
}

// latestSegment returns the highest segment id in dir, 0 when there is none.
func latestSegment(dir string) (uint64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, indexerr.Wrap(err, indexerr.CodeStorage, "segment.Open", "%s", dir)
	}
	var latest uint64
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, segmentExt) {
			continue
		}
		id, err := strconv.ParseUint(strings.TrimSuffix(name, segmentExt), 10, 64)
		if err != nil {
			continue
		}
		if id > latest {
			latest = id
		}
	}
	return latest, nil
}

func (w *Writer) segmentPath(id uint64) string {
	return filepath.Join(w.opts.Dir, fmt.Sprintf("%06d%s", id, segmentExt))
}

// replay applies logged changes that are newer than the loaded segment. A
// checkpoint record marks everything before it as flushed into that segment.
func (w *Writer) replay() error {
	var current uint64
	if w.seg != nil {
		current = w.seg.id
	}
	var applied int
	err := w.opts.Log.Replay(0, func(b []byte) error {
		r, err := decodeRecord(b)
		if err != nil {
			return err
		}
		switch r.op {
		case opCheckpoint:
			if r.segment <= current {
				w.mem = newMemtable()
				applied = 0
			}
		case opUpsert:
			d, err := decodeDocument(r.doc)
			if err != nil {
				return err
			}
			if err := w.mem.upsert(r.pk, d); err != nil {
				return err
			}
			applied++
		case opDelete:
			w.mem.delete(r.pk)
			applied++
		}
		return nil
	})
	if err != nil {
		return indexerr.Wrap(err, indexerr.CodeStorage, "segment.replay", "%s", w.opts.Dir)
	}
	w.log.Info("replayed write-ahead log", zap.String("dir", w.opts.Dir), zap.Int("records", applied))
	return nil
}

func (w *Writer) append(r record) error {
	if w.opts.Log == nil {
		return nil
	}
	if _, err := w.opts.Log.Write(encodeRecord(r)); err != nil {
		return indexerr.Wrap(err, indexerr.CodeStorage, "segment.log", "%s", w.opts.Dir)
	}
	return nil
}

func (w *Writer) checkOpen(op string) error {
	if w.closed {
		return indexerr.New(indexerr.CodeStorage, op, "writer for %s is closed", w.opts.Dir)
	}
	return nil
}

// Upsert replaces the document stored under d's primary key.
func (w *Writer) Upsert(d fields.Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen("segment.Upsert"); err != nil {
		return err
	}
	return w.upsert(d)
}

func (w *Writer) upsert(d fields.Document) error {
	pk, ok := d.PrimaryKey()
	if !ok {
		return indexerr.New(indexerr.CodeStorage, "segment.Upsert", "document has no %s field", fields.PKDocValues)
	}
	if err := w.append(record{op: opUpsert, pk: pk, doc: encodeDocument(d)}); err != nil {
		return err
	}
	if err := w.mem.upsert(pk, d); err != nil {
		return err
	}
	return w.maybeFlush()
}

// Delete removes the document stored under pk.
func (w *Writer) Delete(pk []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen("segment.Delete"); err != nil {
		return err
	}
	return w.delete(pk)
}

func (w *Writer) delete(pk []byte) error {
	if err := w.append(record{op: opDelete, pk: pk}); err != nil {
		return err
	}
	w.mem.delete(pk)
	return w.maybeFlush()
}

// Change is what Update does with the document under a key.
type Change int

const (
	// Keep leaves the stored document as it is.
	Keep Change = iota
	// Put stores the returned document.
	Put
	// Remove deletes the stored document.
	Remove
)

// Update reads the live document under pk and applies the change fn decides
// on, all under the writer lock, so concurrent updates of one key are
// serialized. The document returned with Put must carry pk.
func (w *Writer) Update(pk []byte, fn func(old fields.Document, found bool) (fields.Document, Change, error)) (Change, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen("segment.Update"); err != nil {
		return Keep, err
	}
	old, found, err := w.get(pk)
	if err != nil {
		return Keep, err
	}
	d, change, err := fn(old, found)
	if err != nil {
		return Keep, err
	}
	switch change {
	case Put:
		if got, _ := d.PrimaryKey(); !bytes.Equal(got, pk) {
			return Keep, indexerr.New(indexerr.CodeStorage, "segment.Update", "document key %x does not match %x", got, pk)
		}
		err = w.upsert(d)
	case Remove:
		err = w.delete(pk)
	}
	if err != nil {
		return Keep, err
	}
	return change, nil
}

func (w *Writer) maybeFlush() error {
	if w.opts.FlushThreshold > 0 && w.mem.Len() >= w.opts.FlushThreshold {
		return w.flush()
	}
	return nil
}

// Get returns the live document stored under pk.
func (w *Writer) Get(pk []byte) (fields.Document, bool, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if err := w.checkOpen("segment.Get"); err != nil {
		return fields.Document{}, false, err
	}
	return w.get(pk)
}

func (w *Writer) get(pk []byte) (fields.Document, bool, error) {
	if e, ok := w.mem.get(pk); ok {
		if e.deleted {
			return fields.Document{}, false, nil
		}
		return e.doc, true, nil
	}
	if w.seg == nil {
		return fields.Document{}, false, nil
	}
	d, ok, err := w.seg.get(pk)
	if err != nil || !ok || d.del {
		return fields.Document{}, false, err
	}
	return d.doc, true, nil
}

// Search returns the live documents matching q, sorted by primary key.
func (w *Writer) Search(q Query) ([]fields.Document, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if err := w.checkOpen("segment.Search"); err != nil {
		return nil, err
	}
	if _, ok := q.(allQuery); ok {
		return w.all()
	}

	candidates := map[string]struct{}{}
	collect := func(pk []byte) { candidates[string(pk)] = struct{}{} }
	var scanErr error
	err := q.ranges(func(lower, upper []byte) {
		w.mem.postings(lower, upper, collect)
		if w.seg != nil && scanErr == nil {
			scanErr = w.seg.postings(lower, upper, collect)
		}
	})
	if err != nil {
		return nil, err
	}
	if scanErr != nil {
		return nil, scanErr
	}

	pks := make([]string, 0, len(candidates))
	for pk := range candidates {
		pks = append(pks, pk)
	}
	sort.Strings(pks)

	var out []fields.Document
	for _, pk := range pks {
		// postings in the segment may be stale, so recheck the live version
		d, ok, err := w.get([]byte(pk))
		if err != nil {
			return nil, err
		}
		if ok && q.Matches(d) {
			out = append(out, d)
		}
	}
	return out, nil
}

// all merges the memtable and the segment in primary key order.
func (w *Writer) all() ([]fields.Document, error) {
	merged, err := w.merged()
	if err != nil {
		return nil, err
	}
	out := make([]fields.Document, 0, len(merged))
	for _, d := range merged {
		if !d.del {
			out = append(out, d.doc)
		}
	}
	return out, nil
}

// merged returns every entry with memtable versions shadowing segment ones.
func (w *Writer) merged() ([]docEntry, error) {
	var mem []docEntry
	w.mem.ascend(func(pk []byte, e entry) bool {
		mem = append(mem, docEntry{pk: pk, doc: e.doc, del: e.deleted})
		return true
	})
	if w.seg == nil {
		return mem, nil
	}

	out := make([]docEntry, 0, len(mem))
	i := 0
	err := w.seg.docs(func(d docEntry) bool {
		for i < len(mem) && bytes.Compare(mem[i].pk, d.pk) < 0 {
			out = append(out, mem[i])
			i++
		}
		if i < len(mem) && bytes.Equal(mem[i].pk, d.pk) {
			out = append(out, mem[i])
			i++
			return true
		}
		out = append(out, d)
		return true
	})
	if err != nil {
		return nil, err
	}
	return append(out, mem[i:]...), nil
}

// Count returns the number of live documents matching q.
func (w *Writer) Count(q Query) (int, error) {
	docs, err := w.Search(q)
	return len(docs), err
}

// Flush merges the memtable into a new segment file and drops the old one.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.checkOpen("segment.Flush"); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if w.mem.Len() == 0 {
		return nil
	}
	merged, err := w.merged()
	if err != nil {
		return err
	}

	docs := make([]docEntry, 0, len(merged))
	postings := map[string][][]byte{}
	for _, d := range merged {
		if d.del {
			// nothing older than this segment is left to shadow
			continue
		}
		docs = append(docs, d)
		terms, err := documentTerms(d.doc)
		if err != nil {
			return err
		}
		for _, t := range terms {
			postings[string(t)] = append(postings[string(t)], d.pk)
		}
	}
	terms := make([]termEntry, 0, len(postings))
	for k, pks := range postings {
		terms = append(terms, termEntry{key: []byte(k), pks: pks})
	}
	sort.Slice(terms, func(i, j int) bool { return bytes.Compare(terms[i].key, terms[j].key) < 0 })

	id := w.nextID
	path := w.segmentPath(id)
	tmp := path + ".tmp"
	seg, err := writeSegment(tmp, id, docs, terms, w.opts.SparseInterval, w.opts.FalsePositiveRate)
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		seg.close()
		os.Remove(tmp)
		return indexerr.Wrap(err, indexerr.CodeStorage, "segment.Flush", "%s", path)
	}
	seg.filePath = path

	if err := w.append(record{op: opCheckpoint, segment: id}); err != nil {
		w.log.Warn("checkpoint not logged", zap.Uint64("segment", id), zap.Error(err))
	}
	if old := w.seg; old != nil {
		old.close()
		if err := os.Remove(old.filePath); err != nil {
			w.log.Warn("could not remove old segment", zap.String("path", old.filePath), zap.Error(err))
		}
	}
	w.seg = seg
	w.nextID = id + 1
	w.mem = newMemtable()
	w.log.Info("flushed segment",
		zap.String("path", path),
		zap.Int("docs", len(docs)),
		zap.Int("terms", len(terms)),
	)
	return nil
}

// Len returns the number of live documents.
func (w *Writer) Len() (int, error) {
	return w.Count(MatchAll())
}

// Close releases the segment file. Unflushed changes stay in the log.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	if w.seg != nil {
		return w.seg.close()
	}
	return nil
}
