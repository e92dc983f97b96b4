// Package registry coordinates the registered indexes: it runs the one-shot
// initialization of the class source and drives every batch of changed
// classes through finalize, OnCreate, BeforeBatchComplete and
// AfterBatchComplete with a strict barrier between the last two phases.
//
// Indexes are notified in registration order. There is no dependency
// solver; register indexes that others read from first.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/odvcencio/hotreg/pkg/class"
	"github.com/odvcencio/hotreg/pkg/classsource"
	"github.com/odvcencio/hotreg/pkg/methodsource"
	"github.com/odvcencio/hotreg/pkg/watch"
)

const tracerName = "github.com/odvcencio/hotreg/registry"

// State is the initialization state of a Registry.
type State int32

const (
	NotInitialized State = iota
	Initializing
	Initialized
)

func (s State) String() string {
	switch s {
	case NotInitialized:
		return "not-initialized"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Options configures a Registry.
type Options struct {
	Logger  *slog.Logger
	Metrics *Metrics
	Tracer  trace.Tracer
}

// Registry owns the registered indexes of one process (or one test).
type Registry struct {
	source  *classsource.Source
	methods *methodsource.Source
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer

	mu      sync.RWMutex
	indexes []Index
	byType  map[reflect.Type]Index

	// batchMu serializes initialization, Process, and change application.
	batchMu sync.Mutex
	init    singleflight.Group
	state   atomic.Int32
}

// New returns a coordinator over source. Method events derived from applied
// changes are emitted through methods.
func New(source *classsource.Source, methods *methodsource.Source, opts Options) *Registry {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	if methods == nil {
		methods = methodsource.New()
	}
	return &Registry{
		source:  source,
		methods: methods,
		logger:  logger,
		metrics: opts.Metrics,
		tracer:  tracer,
		byType:  make(map[reflect.Type]Index),
	}
}

// RegisterIndex returns the singleton index of type T, building it with
// build on first registration. Registration order is notification order.
func RegisterIndex[T Index](r *Registry, build func() T) T {
	key := reflect.TypeFor[T]()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.byType[key]; ok {
		return existing.(T)
	}
	idx := build()
	idx.Store().SetParentFunc(r.source.Parent)
	if l, ok := any(idx).(MethodChangeListener); ok {
		r.methods.On(l.OnMethodChange)
	}
	r.byType[key] = idx
	r.indexes = append(r.indexes, idx)
	r.logger.Debug("registered index", "index", key.String(), "position", len(r.indexes))
	return idx
}

// Instance returns the previously registered index of type T.
func Instance[T Index](r *Registry) (T, error) {
	key := reflect.TypeFor[T]()
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byType[key]
	if !ok {
		var zero T
		return zero, fmt.Errorf("instance %s: %w", key, ErrIndexNotRegistered)
	}
	return idx.(T), nil
}

// Indexes returns the registered indexes in registration order.
func (r *Registry) Indexes() []Index {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Index(nil), r.indexes...)
}

// Source returns the class source the registry drives.
func (r *Registry) Source() *classsource.Source {
	return r.source
}

// Methods returns the method source fed by applied changes.
func (r *Registry) Methods() *methodsource.Source {
	return r.methods
}

// State reports the current initialization state.
func (r *Registry) State() State {
	return State(r.state.Load())
}

// VerifyInitialized fails with ErrNotInitialized until Init has completed
// successfully.
func (r *Registry) VerifyInitialized() error {
	if r.State() != Initialized {
		return ErrNotInitialized
	}
	return nil
}

// Init discovers and imports every eligible module, then processes all
// declared classes as one batch. Concurrent and repeated calls share a
// single in-flight initialization; once it succeeds later calls return
// immediately. A failed initialization leaves the registry NotInitialized
// and may be retried.
func (r *Registry) Init(ctx context.Context) error {
	if r.State() == Initialized {
		return nil
	}
	// The first caller's cancellation must not abort the run shared by all.
	ctx = context.WithoutCancel(ctx)
	_, err, _ := r.init.Do("init", func() (any, error) {
		if r.State() == Initialized {
			return nil, nil
		}
		r.state.Store(int32(Initializing))
		if err := r.initialize(ctx); err != nil {
			r.state.Store(int32(NotInitialized))
			return nil, err
		}
		r.state.Store(int32(Initialized))
		return nil, nil
	})
	return err
}

func (r *Registry) initialize(ctx context.Context) (err error) {
	ctx, span := r.tracer.Start(ctx, "registry.init")
	defer func() { endSpan(span, err) }()

	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	start := time.Now()
	cp := r.source.Checkpoint()
	classes, err := r.source.Init(ctx)
	if err != nil {
		r.logger.Error("registry initialization failed", "error", err)
		return fmt.Errorf("init: %w", err)
	}
	if err := r.admit(ctx, cp.Fresh(classes)); err != nil {
		r.source.Rollback(cp)
		r.logger.Error("registry initialization failed", "error", err)
		return fmt.Errorf("init: %w", err)
	}
	span.SetAttributes(attribute.Int("hotreg.classes", len(classes)))
	r.logger.Info("registry initialized", "classes", len(classes), "indexes", len(r.Indexes()), "elapsed", time.Since(start))
	return nil
}

// ManualInit imports exactly files and processes the result, bypassing
// discovery. Classes the registry already holds are left as they are. On
// success the registry is Initialized.
func (r *Registry) ManualInit(ctx context.Context, files []string) (err error) {
	ctx, span := r.tracer.Start(ctx, "registry.manual_init")
	defer func() { endSpan(span, err) }()

	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	cp := r.source.Checkpoint()
	classes, err := r.source.ImportFiles(ctx, files)
	if err != nil {
		return fmt.Errorf("manual init: %w", err)
	}
	if err := r.admit(ctx, cp.Fresh(classes)); err != nil {
		r.source.Rollback(cp)
		return fmt.Errorf("manual init: %w", err)
	}
	r.state.Store(int32(Initialized))
	return nil
}

// admit declares freshly imported classes into every index, processes them
// as one batch, and projects their methods as additions. On failure every
// store is put back the way it was.
func (r *Registry) admit(ctx context.Context, classes []*class.Class) error {
	indexes := r.Indexes()
	restore := saveStores(indexes, classIDs(classes))
	for _, idx := range indexes {
		st := idx.Store()
		for _, cls := range classes {
			if !st.Has(cls) {
				st.Remove(cls.ID)
			}
		}
	}
	if err := r.process(ctx, indexes, classes, true, nil); err != nil {
		restore()
		return err
	}
	for _, cls := range classes {
		r.metrics.observeEvent(class.Added)
		r.methods.HandleClassEvent(class.AddedEvent(cls))
	}
	return nil
}

func saveStores(indexes []Index, ids []class.StableID) (restore func()) {
	restores := make([]func(), len(indexes))
	for i, idx := range indexes {
		restores[i] = idx.Store().Save(ids)
	}
	return func() {
		for _, fn := range restores {
			fn()
		}
	}
}

func classIDs(classes []*class.Class) []class.StableID {
	ids := make([]class.StableID, len(classes))
	for i, c := range classes {
		ids[i] = c.ID
	}
	return ids
}

// Process finalizes and notifies one batch of classes. Classes an index has
// already finalized are not finalized again and receive no second OnCreate.
func (r *Registry) Process(ctx context.Context, classes []*class.Class) error {
	r.batchMu.Lock()
	defer r.batchMu.Unlock()
	return r.process(ctx, r.Indexes(), classes, false, nil)
}

// process runs the pipeline. When declare is set every Declarer adapts the
// batch first. Every index then finalizes the batch classes it has adapted
// but not finalized. Nothing fails after that point: staged runs, then index
// by index in registration order OnCreate per newly finalized class followed
// by one BeforeBatchComplete, and only then AfterBatchComplete for every
// index.
func (r *Registry) process(ctx context.Context, indexes []Index, classes []*class.Class, declare bool, staged func()) (err error) {
	_, span := r.tracer.Start(ctx, "registry.process", trace.WithAttributes(attribute.Int("hotreg.batch_size", len(classes))))
	defer func() { endSpan(span, err) }()
	start := time.Now()

	if declare {
		if err := declareAll(indexes, classes); err != nil {
			return err
		}
	}
	relevant, err := finalizeAll(indexes, classes)
	if err != nil {
		return err
	}
	if staged != nil {
		staged()
	}

	for i, idx := range indexes {
		if c, ok := idx.(Creator); ok {
			for _, cls := range relevant[i] {
				c.OnCreate(cls)
			}
		}
		if b, ok := idx.(BeforeBatchCompleter); ok {
			b.BeforeBatchComplete(relevant[i])
		}
	}
	for i, idx := range indexes {
		if a, ok := idx.(AfterBatchCompleter); ok {
			a.AfterBatchComplete(relevant[i])
		}
	}

	r.metrics.observeBatch(start)
	r.logger.Debug("batch processed", "classes", len(classes), "elapsed", time.Since(start))
	return nil
}

// finalizeAll returns, per index, the batch classes it finalized.
func finalizeAll(indexes []Index, classes []*class.Class) ([][]*class.Class, error) {
	relevant := make([][]*class.Class, len(indexes))
	for i, idx := range indexes {
		st := idx.Store()
		for _, cls := range classes {
			if !st.Has(cls) || st.Finalized(cls) {
				continue
			}
			if f, ok := idx.(Finalizer); ok {
				if err := f.Finalize(cls); err != nil {
					return nil, fmt.Errorf("finalize %s: %w", cls.ID, err)
				}
			}
			if err := st.FinalizeClass(cls); err != nil {
				return nil, fmt.Errorf("finalize %s: %w", cls.ID, err)
			}
			relevant[i] = append(relevant[i], cls)
		}
	}
	return relevant, nil
}

func declareAll(indexes []Index, classes []*class.Class) error {
	var errs []error
	for _, idx := range indexes {
		d, ok := idx.(Declarer)
		if !ok {
			continue
		}
		for _, cls := range classes {
			if err := d.Declare(cls); err != nil {
				errs = append(errs, fmt.Errorf("declare %s: %w", cls.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Apply re-imports the file named by ev and pushes the resulting changes
// through every index. Removed and replaced generations are dropped from
// every store before any addition is declared, and OnRemove is delivered
// before any OnCreate. A change is applied completely or not at all: a
// failed re-import touches no store, and a failed declaration or
// finalization restores every store and the class source, so the next event
// for the file is diffed against the last applied state again.
func (r *Registry) Apply(ctx context.Context, ev watch.Event) (events []class.ClassEvent, err error) {
	if err := r.VerifyInitialized(); err != nil {
		return nil, err
	}
	ctx, span := r.tracer.Start(ctx, "registry.dispatch", trace.WithAttributes(
		attribute.String("hotreg.file", ev.File),
		attribute.String("hotreg.action", ev.Action.String()),
	))
	defer func() { endSpan(span, err) }()

	r.batchMu.Lock()
	defer r.batchMu.Unlock()

	cp := r.source.Checkpoint()
	events, err = r.source.Reload(ctx, ev)
	if err != nil {
		r.metrics.observeReloadFailure()
		return nil, err
	}
	if len(events) == 0 {
		return nil, nil
	}
	if err := r.applyEvents(ctx, events); err != nil {
		r.source.Rollback(cp)
		r.metrics.observeReloadFailure()
		return nil, fmt.Errorf("apply %s: %w", ev.File, err)
	}
	return events, nil
}

func (r *Registry) applyEvents(ctx context.Context, events []class.ClassEvent) error {
	indexes := r.Indexes()

	ids := make([]class.StableID, 0, len(events))
	var batch []*class.Class
	for _, ev := range events {
		ids = append(ids, ev.Latest().ID)
		if ev.Kind != class.Removing {
			batch = append(batch, ev.Curr)
		}
	}
	restore := saveStores(indexes, ids)

	for _, ev := range events {
		if ev.Kind == class.Added {
			continue
		}
		for _, idx := range indexes {
			idx.Store().Remove(ev.Prev.ID)
		}
	}
	notifyRemoved := func() {
		for _, ev := range events {
			if ev.Kind != class.Removing {
				continue
			}
			for _, idx := range indexes {
				if rm, ok := idx.(Remover); ok {
					rm.OnRemove(ev.Prev)
				}
			}
		}
	}
	if err := r.process(ctx, indexes, batch, true, notifyRemoved); err != nil {
		restore()
		return err
	}

	for _, ev := range events {
		r.metrics.observeEvent(ev.Kind)
		r.methods.HandleClassEvent(ev)
	}
	r.logger.Info("applied change", "events", len(events), "batch", len(batch))
	return nil
}

// Dispatch applies ev and logs non-fatal failures. It is the handler used by
// Run for every watcher event.
func (r *Registry) Dispatch(ctx context.Context, ev watch.Event) {
	if _, err := r.Apply(ctx, ev); err != nil {
		r.logger.Warn("change not applied", "file", ev.File, "action", ev.Action.String(), "error", err)
	}
}

// Run consumes events until the channel closes or ctx is done. Changes are
// applied strictly one after another in arrival order; a change that
// arrives while another is being applied waits in the channel.
func (r *Registry) Run(ctx context.Context, events <-chan watch.Event) error {
	if err := r.VerifyInitialized(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			r.Dispatch(ctx, ev)
		}
	}
}

// Classes returns every live class known to the class source.
func (r *Registry) Classes() ([]*class.Class, error) {
	if err := r.VerifyInitialized(); err != nil {
		return nil, err
	}
	return r.source.Classes(), nil
}

// Class returns the live class for id.
func (r *Registry) Class(id class.StableID) (*class.Class, bool, error) {
	if err := r.VerifyInitialized(); err != nil {
		return nil, false, err
	}
	c, ok := r.source.Get(id)
	return c, ok, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
