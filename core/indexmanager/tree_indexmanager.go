package indexmanager

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sushant-115/idxtree/core/indexing/idxtree"
	internaltelemetry "github.com/sushant-115/idxtree/internal/telemetry"
	"github.com/sushant-115/idxtree/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// managedIndex is one tree plus the lock that serializes its mutations.
// Lookups share the lock; AddRecord takes it exclusively because a split
// rewrites pages in place.
type managedIndex struct {
	mu        sync.RWMutex
	name      string
	id        string
	createdAt time.Time
	tree      *idxtree.Tree
}

func (mi *managedIndex) info() IndexInfo {
	return IndexInfo{Name: mi.name, ID: mi.id, CreatedAt: mi.createdAt, Stats: mi.tree.Stats()}
}

// TreeIndexManager serves a registry of named B+-tree indexes.
type TreeIndexManager struct {
	mu      sync.RWMutex
	indexes map[string]*managedIndex

	logger      *zap.Logger
	tracer      trace.Tracer
	metrics     *internaltelemetry.IndexMetrics
	serviceName string
}

// NewTreeIndexManager creates an empty registry. A nil telemetry disables
// metrics and tracing.
func NewTreeIndexManager(logger *zap.Logger, tel *telemetry.Telemetry) (*TreeIndexManager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if tel == nil {
		tel = telemetry.Noop()
	}
	metrics, err := internaltelemetry.NewIndexMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create index metrics: %w", err)
	}
	return &TreeIndexManager{
		indexes:     make(map[string]*managedIndex),
		logger:      logger.Named("index_manager"),
		tracer:      tel.Tracer,
		metrics:     metrics,
		serviceName: "tree_indexmanager",
	}, nil
}

func (m *TreeIndexManager) Name() string { return "idxtree" }

func (m *TreeIndexManager) lookup(name string) (*managedIndex, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mi, ok := m.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrIndexNotFound, name)
	}
	return mi, nil
}

func (m *TreeIndexManager) CreateIndex(ctx context.Context, name string, cfg IndexConfig) (info IndexInfo, err error) {
	ctx, span, start := m.startOp(ctx, "CreateIndex", name)
	defer func() { m.endOp(ctx, span, start, "CreateIndex", name, err) }()

	if name == "" {
		return IndexInfo{}, ErrInvalidIndexName
	}
	opts := []idxtree.Option{idxtree.WithLogger(m.logger.Named("idxtree").With(zap.String("index", name)))}
	if cfg.MaxEntries != 0 {
		opts = append(opts, idxtree.WithMaxEntries(cfg.MaxEntries))
	}
	tree, err := idxtree.NewTree(idxtree.Config{PageSize: cfg.PageSize, KeySize: cfg.KeySize}, opts...)
	if err != nil {
		return IndexInfo{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.indexes[name]; exists {
		return IndexInfo{}, fmt.Errorf("%w: %q", ErrIndexExists, name)
	}
	mi := &managedIndex{name: name, id: uuid.NewString(), createdAt: time.Now().UTC(), tree: tree}
	m.indexes[name] = mi
	m.metrics.LiveIndexesUpDown.Add(ctx, 1)

	m.logger.Info("Created index",
		zap.String("index", name),
		zap.String("id", mi.id),
		zap.Uint32("page_size", cfg.PageSize),
		zap.Uint32("key_size", cfg.KeySize),
	)
	return mi.info(), nil
}

func (m *TreeIndexManager) DropIndex(ctx context.Context, name string) (err error) {
	ctx, span, start := m.startOp(ctx, "DropIndex", name)
	defer func() { m.endOp(ctx, span, start, "DropIndex", name, err) }()

	m.mu.Lock()
	mi, ok := m.indexes[name]
	if ok {
		delete(m.indexes, name)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrIndexNotFound, name)
	}

	mi.mu.Lock()
	defer mi.mu.Unlock()
	records := mi.tree.Len()
	err = mi.tree.Destroy()
	m.metrics.LiveIndexesUpDown.Add(ctx, -1)
	m.metrics.RecordsUpDown.Add(ctx, -int64(records), metric.WithAttributes(attribute.String("index", name)))
	m.logger.Info("Dropped index", zap.String("index", name), zap.String("id", mi.id), zap.Int("records", records), zap.Error(err))
	return err
}

func (m *TreeIndexManager) AddRecord(ctx context.Context, name string, key []byte, loc idxtree.RecordLocator) (err error) {
	ctx, span, start := m.startOp(ctx, "AddRecord", name)
	defer func() { m.endOp(ctx, span, start, "AddRecord", name, err) }()

	mi, err := m.lookup(name)
	if err != nil {
		return err
	}
	mi.mu.Lock()
	defer mi.mu.Unlock()

	splitsBefore := mi.tree.Splits()
	if err = mi.tree.AddRecord(key, loc.PageNum, loc.SlotNum); err != nil {
		return err
	}
	attrs := metric.WithAttributes(attribute.String("index", name))
	m.metrics.RecordsUpDown.Add(ctx, 1, attrs)
	if splits := mi.tree.Splits() - splitsBefore; splits > 0 {
		m.metrics.SplitsCounter.Add(ctx, int64(splits), attrs)
		span.AddEvent("page split", trace.WithAttributes(attribute.Int64("splits", int64(splits))))
	}
	return nil
}

func (m *TreeIndexManager) FindRecord(ctx context.Context, name string, key []byte) (loc idxtree.RecordLocator, found bool, err error) {
	ctx, span, start := m.startOp(ctx, "FindRecord", name)
	defer func() { m.endOp(ctx, span, start, "FindRecord", name, err) }()

	mi, err := m.lookup(name)
	if err != nil {
		return idxtree.RecordLocator{}, false, err
	}
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	loc, found, err = mi.tree.FindRecord(key)
	if err == nil {
		result := "miss"
		if found {
			result = "hit"
		}
		m.metrics.LookupsCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("index", name),
			attribute.String("result", result),
		))
	}
	return loc, found, err
}

// ScanIndex returns up to limit records in key order; limit <= 0 means all.
func (m *TreeIndexManager) ScanIndex(ctx context.Context, name string, limit int) (records []Record, err error) {
	ctx, span, start := m.startOp(ctx, "ScanIndex", name)
	defer func() { m.endOp(ctx, span, start, "ScanIndex", name, err) }()

	mi, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	err = mi.tree.Scan(func(key []byte, loc idxtree.RecordLocator) bool {
		records = append(records, Record{Key: append([]byte(nil), key...), Locator: loc})
		if ctx.Err() != nil {
			return false
		}
		return limit <= 0 || len(records) < limit
	})
	if err == nil {
		err = ctx.Err()
	}
	return records, err
}

func (m *TreeIndexManager) DumpIndex(ctx context.Context, name string, w io.Writer) (err error) {
	ctx, span, start := m.startOp(ctx, "DumpIndex", name)
	defer func() { m.endOp(ctx, span, start, "DumpIndex", name, err) }()

	mi, err := m.lookup(name)
	if err != nil {
		return err
	}
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.tree.Dump(w)
}

func (m *TreeIndexManager) CheckIndex(ctx context.Context, name string) (err error) {
	ctx, span, start := m.startOp(ctx, "CheckIndex", name)
	defer func() { m.endOp(ctx, span, start, "CheckIndex", name, err) }()

	mi, err := m.lookup(name)
	if err != nil {
		return err
	}
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.tree.Check()
}

func (m *TreeIndexManager) IndexStats(ctx context.Context, name string) (info IndexInfo, err error) {
	ctx, span, start := m.startOp(ctx, "IndexStats", name)
	defer func() { m.endOp(ctx, span, start, "IndexStats", name, err) }()

	mi, err := m.lookup(name)
	if err != nil {
		return IndexInfo{}, err
	}
	mi.mu.RLock()
	defer mi.mu.RUnlock()
	return mi.info(), nil
}

// ListIndexes returns every live index sorted by name.
func (m *TreeIndexManager) ListIndexes(ctx context.Context) ([]IndexInfo, error) {
	m.mu.RLock()
	all := make([]*managedIndex, 0, len(m.indexes))
	for _, mi := range m.indexes {
		all = append(all, mi)
	}
	m.mu.RUnlock()

	infos := make([]IndexInfo, 0, len(all))
	for _, mi := range all {
		mi.mu.RLock()
		infos = append(infos, mi.info())
		mi.mu.RUnlock()
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return infos, nil
}

// Close drops every index.
func (m *TreeIndexManager) Close(ctx context.Context) error {
	infos, _ := m.ListIndexes(ctx)
	var errs []error
	for _, info := range infos {
		if err := m.DropIndex(ctx, info.Name); err != nil && !errors.Is(err, ErrIndexNotFound) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// --- Telemetry ---

// startOp opens a span for an index operation.
func (m *TreeIndexManager) startOp(ctx context.Context, op, index string) (context.Context, trace.Span, time.Time) {
	ctx, span := m.tracer.Start(ctx, op, trace.WithAttributes(
		attribute.String("idxtree.service", m.serviceName),
		attribute.String("idxtree.index", index),
	))
	return ctx, span, time.Now()
}

// endOp closes the span and records the outcome of the operation.
func (m *TreeIndexManager) endOp(ctx context.Context, span trace.Span, start time.Time, op, index string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
		span.SetStatus(otelcodes.Ok, "Success")
	case errors.Is(err, idxtree.ErrIndexCorruption):
		outcome = "corruption"
		m.metrics.CorruptionsCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("index", index)))
		m.logger.Error("Index corruption detected", zap.String("index", index), zap.String("op", op), zap.Error(err))
	default:
		outcome = "error"
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	}
	span.End()

	attrs := metric.WithAttributeSet(attribute.NewSet(
		attribute.String("index", index),
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	))
	m.metrics.OperationsCounter.Add(ctx, 1, attrs)
	m.metrics.OperationLatency.Record(ctx, time.Since(start).Microseconds(), attrs)
}
