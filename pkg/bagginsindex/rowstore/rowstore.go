// Package rowstore is a small wide-column table: rows of cells ordered by
// cell name, stamped with write timestamps and observed by listeners such
// as a secondary index.
package rowstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/flynnfc/bagginsindex/internal/skiplist"
	"github.com/flynnfc/bagginsindex/internal/truetime"
	"github.com/flynnfc/bagginsindex/pkg/bagginsindex/keys"
)

// Cell is a single cell of a row.
type Cell struct {
	// Name is the storage cell name. For tables with clustering columns it is
	// a composite of the clustering values and the column name.
	Name  []byte
	Value []byte
	// Timestamp is in microseconds since the Unix epoch.
	Timestamp int64
}

// Listener observes mutations after they are applied.
type Listener interface {
	Index(ctx context.Context, rowKey []byte, c Cell) error
	Delete(ctx context.Context, rowKey []byte, c Cell) error
}

// Config holds the settings of a Store.
type Config struct {
	Family *keys.FamilyMeta
	// Clock stamps writes that carry no timestamp. Defaults to the host clock.
	Clock  truetime.Clock
	Logger *zap.Logger
}

// Store holds the rows of one column family.
type Store struct {
	family *keys.FamilyMeta
	clock  *truetime.Monotonic
	logger *zap.Logger
	cells  *skiplist.SkipList[Cell]

	mu        sync.RWMutex
	listeners []Listener
}

func New(c Config) *Store {
	if c.Clock == nil {
		c.Clock = truetime.Local{}
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return &Store{
		family: c.Family,
		clock:  truetime.NewMonotonic(c.Clock),
		logger: c.Logger,
		cells:  skiplist.New[Cell](),
	}
}

// Family returns the metadata of the stored family.
func (s *Store) Family() *keys.FamilyMeta {
	return s.family
}

// Subscribe registers l for every later mutation.
func (s *Store) Subscribe(l Listener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, l)
}

func (s *Store) snapshotListeners() []Listener {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Listener(nil), s.listeners...)
}

// rowPrefix length-prefixes the row key so that one row's cells are
// contiguous and rows sort by key.
func rowPrefix(rowKey []byte) []byte {
	b := make([]byte, 4, 4+len(rowKey))
	binary.BigEndian.PutUint32(b, uint32(len(rowKey)))
	return append(b, rowKey...)
}

func cellKey(rowKey, name []byte) []byte {
	return append(rowPrefix(rowKey), name...)
}

func splitKey(key []byte) (rowKey, name []byte) {
	n := binary.BigEndian.Uint32(key)
	return key[4 : 4+n], key[4+n:]
}

// Put writes a cell stamped with the store clock.
func (s *Store) Put(ctx context.Context, rowKey, name, value []byte) (Cell, error) {
	return s.PutAt(ctx, rowKey, name, value, truetime.Micros(s.clock.Now()))
}

// PutAt writes a cell with an explicit timestamp and notifies listeners. The
// newest timestamp wins: a write older than the stored cell is dropped and
// the stored cell is returned without notifying anyone. The cell stays
// written when a listener fails; the listener errors are returned.
func (s *Store) PutAt(ctx context.Context, rowKey, name, value []byte, ts int64) (Cell, error) {
	c := Cell{
		Name:      append([]byte{}, name...),
		Value:     append([]byte{}, value...),
		Timestamp: ts,
	}
	var (
		kept  Cell
		stale bool
	)
	s.cells.Update(cellKey(rowKey, name), func(old Cell, found bool) Cell {
		if found && old.Timestamp > ts {
			kept, stale = old, true
			return old
		}
		return c
	})
	if stale {
		s.logger.Debug("dropped stale write",
			zap.Binary("row_key", rowKey),
			zap.Binary("cell", name),
			zap.Int64("timestamp", ts),
			zap.Int64("stored", kept.Timestamp),
		)
		return kept, nil
	}

	var errs []error
	for _, l := range s.snapshotListeners() {
		if err := l.Index(ctx, rowKey, c); err != nil {
			s.logger.Error("listener failed",
				zap.Binary("row_key", rowKey),
				zap.Binary("cell", name),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return c, errors.Join(errs...)
}

// Delete removes a cell and notifies listeners. Deleting a missing cell is a
// no-op.
func (s *Store) Delete(ctx context.Context, rowKey, name []byte) error {
	key := cellKey(rowKey, name)
	c, ok := s.cells.Get(key)
	if !ok {
		return nil
	}
	s.cells.Delete(key)

	var errs []error
	for _, l := range s.snapshotListeners() {
		if err := l.Delete(ctx, rowKey, c); err != nil {
			s.logger.Error("listener failed on delete",
				zap.Binary("row_key", rowKey),
				zap.Binary("cell", name),
				zap.Error(err),
			)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DeleteRow removes every cell of a row.
func (s *Store) DeleteRow(ctx context.Context, rowKey []byte) error {
	var errs []error
	for _, c := range s.Row(rowKey) {
		if err := s.Delete(ctx, rowKey, c.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Get returns one cell.
func (s *Store) Get(rowKey, name []byte) (Cell, bool) {
	return s.cells.Get(cellKey(rowKey, name))
}

// Row returns the cells of a row ordered by cell name.
func (s *Store) Row(rowKey []byte) []Cell {
	var out []Cell
	s.cells.AscendPrefix(rowPrefix(rowKey), func(_ []byte, c Cell) bool {
		out = append(out, c)
		return true
	})
	return out
}

// Scan calls fn for every cell in (row, cell name) order until fn returns
// false. fn must not write to the store.
func (s *Store) Scan(fn func(rowKey []byte, c Cell) bool) {
	s.cells.Ascend(nil, nil, func(key []byte, c Cell) bool {
		rowKey, _ := splitKey(key)
		return fn(rowKey, c)
	})
}

// Rows returns the distinct row keys in order.
func (s *Store) Rows() [][]byte {
	var out [][]byte
	s.Scan(func(rowKey []byte, _ Cell) bool {
		if len(out) == 0 || !bytes.Equal(out[len(out)-1], rowKey) {
			out = append(out, append([]byte{}, rowKey...))
		}
		return true
	})
	return out
}

// Len returns the number of cells.
func (s *Store) Len() int {
	return s.cells.Len()
}
