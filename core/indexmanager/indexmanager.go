// Package indexmanager combines the heap store with its B-tree index and
// wraps every exposed operation with tracing and metrics. Mutations to the
// heap are mirrored into the index whenever one is attached.
package indexmanager

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/renatospessotto/Trabalho-arquivos/core/dberror"
	"github.com/renatospessotto/Trabalho-arquivos/core/indexing/btree"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/heapfile"
	"github.com/renatospessotto/Trabalho-arquivos/core/storage_engine/record"
	internaltelemetry "github.com/renatospessotto/Trabalho-arquivos/internal/telemetry"
	"github.com/renatospessotto/Trabalho-arquivos/pkg/telemetry"
)

type Manager struct {
	mu          sync.Mutex
	heap        *heapfile.Store
	index       *btree.BTree
	// covered is true when every active heap record has its id indexed, so
	// an id lookup through the index cannot miss a duplicate.
	covered     bool
	tracer      trace.Tracer
	metrics     *internaltelemetry.StoreMetrics
	logger      *zap.Logger
	serviceName string
}

// New wraps heap and, when non-nil, index.
func New(heap *heapfile.Store, index *btree.BTree, tel *telemetry.Telemetry, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics, err := internaltelemetry.NewStoreMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create store metrics: %w", err)
	}
	m := &Manager{
		heap:        heap,
		index:       index,
		tracer:      tel.Tracer,
		metrics:     metrics,
		logger:      logger.Named("indexmanager"),
		serviceName: "attackdb_indexmanager",
	}
	m.refreshCoverage()
	return m, nil
}

// refreshCoverage compares the number of indexed ids with the heap's active
// count. Index keys are unique, so a shortfall means some active records
// share an id or were never indexed.
func (m *Manager) refreshCoverage() {
	m.covered = false
	if m.index == nil {
		return
	}
	var keys int32
	if err := m.index.Walk(func(int32, int64) error { keys++; return nil }); err != nil {
		m.logger.Warn("Index walk failed, id lookups will scan the heap", zap.Error(err))
		return
	}
	active := m.heap.Header().ActiveCount
	m.covered = keys == active
	if !m.covered {
		m.logger.Warn("Index does not cover the heap, id lookups will scan the heap",
			zap.Int32("indexed", keys), zap.Int32("active", active))
	}
}

func (m *Manager) Heap() *heapfile.Store { return m.heap }

// Index returns the attached index, or nil.
func (m *Manager) Index() *btree.BTree {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Close closes the heap and the attached index.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	err := m.heap.Close()
	if m.index != nil {
		if ierr := m.index.Close(); err == nil {
			err = ierr
		}
		m.index = nil
	}
	return err
}

// --- Heap operations ---

// Find returns the active records matching c. An id condition is answered
// through the index when one is attached and covers every active record.
func (m *Manager) Find(ctx context.Context, c record.Criteria) (entries []heapfile.Entry, err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "Find")
	defer func() { m.finish(ctx, span, startTime, "Find", len(entries), err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	id, ok := idCondition(c)
	if !ok || m.index == nil || !m.covered {
		return m.heap.Find(c)
	}

	span.SetAttributes(attribute.Bool("attackdb.index_used", true))
	off, found, err := m.index.Search(id)
	if err != nil || !found {
		return nil, err
	}
	r, err := m.heap.ReadAt(off)
	if err != nil {
		return nil, err
	}
	if r.IsRemoved() || !c.Match(r) {
		return nil, nil
	}
	return []heapfile.Entry{{Offset: off, Record: r}}, nil
}

func idCondition(c record.Criteria) (int32, bool) {
	for _, cond := range c {
		if cond.Field == record.FieldID {
			return record.ParseInt(cond.Value), true
		}
	}
	return 0, false
}

// Insert stores r and indexes it. With an index attached, an id that is
// already indexed is rejected before the heap is touched.
func (m *Manager) Insert(ctx context.Context, r *record.Record) (off int64, err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "Insert")
	defer func() { m.finish(ctx, span, startTime, "Insert", 1, err) }()
	span.SetAttributes(attribute.Int("attackdb.id", int(r.ID)))

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != nil {
		_, found, err := m.index.Search(r.ID)
		if err != nil {
			return 0, err
		}
		if found {
			return 0, fmt.Errorf("%w: id %d", dberror.ErrKeyAlreadyExists, r.ID)
		}
	}
	off, err = m.heap.Insert(r)
	if err != nil {
		return 0, err
	}
	if m.index != nil {
		if err := m.index.Insert(r.ID, off); err != nil {
			m.refreshCoverage()
			return off, err
		}
	}
	m.logger.Debug("Inserted record", zap.Int32("id", r.ID), zap.Int64("offset", off))
	return off, nil
}

// Delete removes the matching records from the heap and their ids from the index.
func (m *Manager) Delete(ctx context.Context, c record.Criteria) (removed []heapfile.Entry, err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "Delete")
	defer func() { m.finish(ctx, span, startTime, "Delete", len(removed), err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	removed, err = m.heap.Delete(c)
	if err != nil || m.index == nil {
		return removed, err
	}
	missed := false
	for _, e := range removed {
		ok, err := m.index.Delete(e.Record.ID)
		if err != nil {
			return removed, err
		}
		if !ok {
			m.logger.Warn("Removed record was not indexed", zap.Int32("id", e.Record.ID))
			missed = true
		}
	}
	if missed {
		m.refreshCoverage()
	}
	return removed, nil
}

// Update rewrites the matching records and repoints the index at every
// record that moved.
func (m *Manager) Update(ctx context.Context, c record.Criteria, a record.Assignments) (changes []heapfile.Change, err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "Update")
	defer func() { m.finish(ctx, span, startTime, "Update", len(changes), err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	changes, err = m.heap.Update(c, a)
	if err != nil || m.index == nil {
		return changes, err
	}
	for _, ch := range changes {
		if !ch.Relocated() {
			continue
		}
		ok, err := m.index.UpdateOffset(ch.ID, ch.NewOffset)
		if err != nil {
			return changes, err
		}
		if !ok {
			m.logger.Warn("Relocated record was not indexed", zap.Int32("id", ch.ID))
		}
	}
	return changes, nil
}

// --- Index operations ---

// BuildIndex creates a fresh index at path from the heap and attaches it,
// replacing any index attached before.
func (m *Manager) BuildIndex(ctx context.Context, path string) (err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "BuildIndex")
	defer func() { m.finish(ctx, span, startTime, "BuildIndex", 0, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index != nil {
		if err := m.index.Close(); err != nil {
			return err
		}
		m.index = nil
	}
	index, err := btree.BuildFromHeap(path, m.heap, m.logger)
	if err != nil {
		return err
	}
	m.index = index
	m.refreshCoverage()
	return nil
}

func (m *Manager) requireIndex() error {
	if m.index == nil {
		return fmt.Errorf("%w: no index attached", dberror.ErrFileUnavailable)
	}
	return nil
}

// IndexSearch looks id up in the index and reads the record it points to.
// A stale entry pointing at a removed record is reported as not found.
func (m *Manager) IndexSearch(ctx context.Context, id int32) (entry heapfile.Entry, found bool, err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "IndexSearch")
	defer func() { m.finish(ctx, span, startTime, "IndexSearch", 0, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireIndex(); err != nil {
		return entry, false, err
	}
	off, found, err := m.index.Search(id)
	if err != nil || !found {
		return entry, false, err
	}
	r, err := m.heap.ReadAt(off)
	if err != nil {
		return entry, false, err
	}
	if r.IsRemoved() {
		m.logger.Warn("Index points at a removed record", zap.Int32("id", id), zap.Int64("offset", off))
		return entry, false, nil
	}
	return heapfile.Entry{Offset: off, Record: r}, true, nil
}

// IndexInsertDirect adds (id, offset) to the index without touching the heap.
func (m *Manager) IndexInsertDirect(ctx context.Context, id int32, offset int64) (err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "IndexInsertDirect")
	defer func() { m.finish(ctx, span, startTime, "IndexInsertDirect", 0, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireIndex(); err != nil {
		return err
	}
	if err := m.index.Insert(id, offset); err != nil {
		return err
	}
	m.refreshCoverage()
	return nil
}

// IndexDelete removes id from the index only.
func (m *Manager) IndexDelete(ctx context.Context, id int32) (deleted bool, err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "IndexDelete")
	defer func() { m.finish(ctx, span, startTime, "IndexDelete", 0, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireIndex(); err != nil {
		return false, err
	}
	deleted, err = m.index.Delete(id)
	if deleted {
		m.refreshCoverage()
	}
	return deleted, err
}

// IndexUpdateOffset repoints id at offset in the index only.
func (m *Manager) IndexUpdateOffset(ctx context.Context, id int32, offset int64) (updated bool, err error) {
	ctx, span, startTime := m.StartMetricsAndTrace(ctx, "IndexUpdateOffset")
	defer func() { m.finish(ctx, span, startTime, "IndexUpdateOffset", 0, err) }()

	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.requireIndex(); err != nil {
		return false, err
	}
	return m.index.UpdateOffset(id, offset)
}
