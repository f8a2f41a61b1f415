package marionette

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

const (
	defaultQueueDepth         = 256
	defaultSubscriptionBuffer = 16
)

// Config tunes a Queue. The zero value gives sensible defaults.
type Config struct {
	// QueueDepth is the command channel buffer size (default 256).
	// Enqueues block the caller, never the worker, when it fills.
	QueueDepth int

	// SubscriptionBuffer is the per-subscriber update buffer size
	// (default 16).
	SubscriptionBuffer int

	// DropPolicy governs what happens when a subscriber's buffer is full
	// (default DropOldest).
	DropPolicy DropPolicy

	// Debug enables per-command stats logging to stderr.
	Debug bool
}

// Queue is a reference-counted command queue driving one engine context on
// one dedicated worker goroutine. All methods are safe to call from any
// goroutine; commands from a single goroutine execute in the order they
// were enqueued.
type Queue struct {
	cfg     Config
	backend Backend

	mbox  chan command
	stopC chan struct{}
	done  chan struct{}

	nextReq atomic.Uint64
	calls   *correlator
	bus     *bus

	refs     atomic.Int64
	disposed bool
	mu       sync.RWMutex // guards disposed against in-flight enqueues

	owners   map[string]int
	ownersMu sync.Mutex

	stats workerStats
}

// NewQueue starts the worker goroutine and returns a queue holding one
// reference owned by the caller. The queue takes ownership of backend and
// releases it during teardown.
func NewQueue(backend Backend, cfg Config) *Queue {
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = defaultQueueDepth
	}
	if cfg.SubscriptionBuffer <= 0 {
		cfg.SubscriptionBuffer = defaultSubscriptionBuffer
	}

	q := &Queue{
		cfg:     cfg,
		backend: backend,
		mbox:    make(chan command, cfg.QueueDepth),
		stopC:   make(chan struct{}),
		done:    make(chan struct{}),
		calls:   newCorrelator(),
		bus:     newBus(cfg.SubscriptionBuffer, cfg.DropPolicy),
		owners:  map[string]int{"queue": 1},
	}
	q.refs.Store(1)

	go q.run()
	return q
}

// Acquire registers owner as a co-owner of the queue and returns the new
// reference count. Every Acquire must be paired with exactly one Release.
func (q *Queue) Acquire(owner string) int64 {
	for {
		cur := q.refs.Load()
		if cur <= 0 {
			panic(fmt.Errorf("acquire %q after teardown: %w", owner, ErrDisposed))
		}
		if q.refs.CompareAndSwap(cur, cur+1) {
			q.ownersMu.Lock()
			q.owners[owner]++
			q.ownersMu.Unlock()
			return cur + 1
		}
	}
}

// Release drops one reference and returns the new count. The release that
// reaches zero tears the queue down exactly once: the worker drains,
// outstanding queries fail with ErrDisposed, and the backend is released.
// Releasing more times than acquired panics with ErrDoubleRelease; the
// count is left intact.
func (q *Queue) Release(owner string) int64 {
	for {
		cur := q.refs.Load()
		if cur <= 0 {
			panic(fmt.Errorf("release %q: %w", owner, ErrDoubleRelease))
		}
		if !q.refs.CompareAndSwap(cur, cur-1) {
			continue
		}

		q.ownersMu.Lock()
		q.owners[owner]--
		q.ownersMu.Unlock()

		if cur == 1 {
			q.dispose()
		}
		return cur - 1
	}
}

// Refs returns the current reference count. Diagnostic only.
func (q *Queue) Refs() int64 { return q.refs.Load() }

// dispose runs on the goroutine whose Release reached zero. The CAS in
// Release guarantees a single caller.
func (q *Queue) dispose() {
	q.mu.Lock()
	q.disposed = true
	q.mu.Unlock()

	close(q.stopC)
	<-q.done
}

// enqueue gates a command on the disposed flag and hands it to the worker.
// Holding the read lock across the send means dispose cannot set the flag
// while any send is in flight, so every accepted command is observed by
// the worker's drain.
func (q *Queue) enqueue(cmd command) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.disposed {
		return ErrDisposed
	}
	q.mbox <- cmd
	return nil
}

// query enqueues cmd with a fresh request id and blocks until the worker
// resolves it or ctx is done. Abandoning the wait leaves the worker
// untouched; it resolves and discards the slot normally.
func (q *Queue) query(ctx context.Context, cmd command) (any, error) {
	cmd.req = q.nextReq.Add(1)

	q.mu.RLock()
	if q.disposed {
		q.mu.RUnlock()
		return nil, ErrDisposed
	}
	p := q.calls.add(cmd.req)
	q.mbox <- cmd
	q.mu.RUnlock()

	return p.wait(ctx)
}

// --- File operations ---

// LoadFile parses content bytes on the worker and returns a handle to the
// loaded file.
func (q *Queue) LoadFile(ctx context.Context, data []byte) (FileHandle, error) {
	v, err := q.query(ctx, command{kind: cmdLoadFile, data: data})
	if err != nil {
		return FileHandle{}, err
	}
	return FileHandle(v.(Handle)), nil
}

// ReleaseFile frees the file handle. Artboards and view models already
// instanced from it stay valid.
func (q *Queue) ReleaseFile(h FileHandle) error {
	return q.enqueue(command{kind: cmdReleaseFile, handle: Handle(h)})
}

// ArtboardCount reports how many artboards the file contains.
func (q *Queue) ArtboardCount(ctx context.Context, h FileHandle) (int, error) {
	v, err := q.query(ctx, command{kind: cmdArtboardCount, handle: Handle(h)})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// --- Artboard / state machine operations ---

// CreateArtboard instantiates the named artboard from a loaded file;
// name "" selects the file's default artboard.
func (q *Queue) CreateArtboard(ctx context.Context, file FileHandle, name string) (ArtboardHandle, error) {
	v, err := q.query(ctx, command{kind: cmdCreateArtboard, handle: Handle(file), name: name})
	if err != nil {
		return ArtboardHandle{}, err
	}
	return ArtboardHandle(v.(Handle)), nil
}

// ReleaseArtboard frees the artboard handle.
func (q *Queue) ReleaseArtboard(h ArtboardHandle) error {
	return q.enqueue(command{kind: cmdReleaseArtboard, handle: Handle(h)})
}

// CreateStateMachine instantiates the named state machine on an artboard;
// name "" selects the artboard's default machine.
func (q *Queue) CreateStateMachine(ctx context.Context, artboard ArtboardHandle, name string) (StateMachineHandle, error) {
	v, err := q.query(ctx, command{kind: cmdCreateStateMachine, handle: Handle(artboard), name: name})
	if err != nil {
		return StateMachineHandle{}, err
	}
	return StateMachineHandle(v.(Handle)), nil
}

// ReleaseStateMachine frees the state machine handle.
func (q *Queue) ReleaseStateMachine(h StateMachineHandle) error {
	return q.enqueue(command{kind: cmdReleaseStateMachine, handle: Handle(h)})
}

// SetBoolInput sets a boolean input on a state machine.
func (q *Queue) SetBoolInput(h StateMachineHandle, name string, value bool) error {
	return q.enqueue(command{kind: cmdSetBoolInput, handle: Handle(h), name: name, value: BoolValue(value)})
}

// SetNumberInput sets a numeric input on a state machine.
func (q *Queue) SetNumberInput(h StateMachineHandle, name string, value float64) error {
	return q.enqueue(command{kind: cmdSetNumberInput, handle: Handle(h), name: name, value: NumberValue(value)})
}

// FireTrigger fires a trigger input on a state machine.
func (q *Queue) FireTrigger(h StateMachineHandle, name string) error {
	return q.enqueue(command{kind: cmdFireTrigger, handle: Handle(h), name: name})
}

// Advance steps a state machine by dt seconds. Property changes produced
// by the step are published to subscribers of (machine, property), and of
// the bound view model, if any.
func (q *Queue) Advance(h StateMachineHandle, dt float32) error {
	return q.enqueue(command{kind: cmdAdvance, handle: Handle(h), dt: dt})
}

// --- View model operations ---

// CreateViewModelInstance instantiates the named view model from a file;
// name "" selects the default.
func (q *Queue) CreateViewModelInstance(ctx context.Context, file FileHandle, name string) (ViewModelHandle, error) {
	v, err := q.query(ctx, command{kind: cmdCreateViewModel, handle: Handle(file), name: name})
	if err != nil {
		return ViewModelHandle{}, err
	}
	return ViewModelHandle(v.(Handle)), nil
}

// ReleaseViewModel frees the view-model handle.
func (q *Queue) ReleaseViewModel(h ViewModelHandle) error {
	return q.enqueue(command{kind: cmdReleaseViewModel, handle: Handle(h)})
}

// BindViewModel attaches a view-model instance to a state machine. Every
// subsequent Advance writes the machine's animated properties through to
// the instance and publishes updates on the instance handle as well.
func (q *Queue) BindViewModel(machine StateMachineHandle, vm ViewModelHandle) error {
	return q.enqueue(command{kind: cmdBindViewModel, handle: Handle(machine), binding: Handle(vm)})
}

// SetProperty sets a named property on a view-model instance. The change
// is published to subscribers of (instance, name).
func (q *Queue) SetProperty(h ViewModelHandle, name string, value PropertyValue) error {
	return q.enqueue(command{kind: cmdSetProperty, handle: Handle(h), name: name, value: value})
}

// Property reads a named property from a view-model instance.
func (q *Queue) Property(ctx context.Context, h ViewModelHandle, name string) (PropertyValue, error) {
	v, err := q.query(ctx, command{kind: cmdGetProperty, handle: Handle(h), name: name})
	if err != nil {
		return PropertyValue{}, err
	}
	return v.(PropertyValue), nil
}

// --- Surface / draw operations ---

// CreateSurface allocates a backend render surface of the given pixel size.
func (q *Queue) CreateSurface(ctx context.Context, width, height int) (SurfaceHandle, error) {
	v, err := q.query(ctx, command{kind: cmdCreateSurface, width: width, height: height})
	if err != nil {
		return SurfaceHandle{}, err
	}
	return SurfaceHandle(v.(Handle)), nil
}

// ReleaseSurface frees the surface handle.
func (q *Queue) ReleaseSurface(h SurfaceHandle) error {
	return q.enqueue(command{kind: cmdReleaseSurface, handle: Handle(h)})
}

// Draw renders a single artboard onto a surface with the given affine
// transform and display size.
func (q *Queue) Draw(artboard ArtboardHandle, transform [6]float32, width, height float32, surface SurfaceHandle) error {
	return q.enqueue(command{
		kind:      cmdDraw,
		handle:    Handle(artboard),
		surface:   Handle(surface),
		transform: transform,
		displayW:  width,
		displayH:  height,
	})
}

// DrawBatch renders an ordered list of draw commands onto a surface as one
// submission: the surface is cleared first, so each batch is a complete
// frame. The slice is copied on enqueue; the caller may reuse it for the
// next frame immediately. Commands whose handles no longer resolve are
// skipped with a warning, not a batch failure.
func (q *Queue) DrawBatch(surface SurfaceHandle, draws []DrawCommand) error {
	return q.enqueue(command{kind: cmdDrawBatch, surface: Handle(surface), draws: copyDraws(draws)})
}

// DrawBatchReadback renders a batch like DrawBatch, then reads the surface
// back as RGBA bytes, row-major.
func (q *Queue) DrawBatchReadback(ctx context.Context, surface SurfaceHandle, draws []DrawCommand) ([]byte, error) {
	v, err := q.query(ctx, command{kind: cmdDrawBatchReadback, surface: Handle(surface), draws: copyDraws(draws)})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Subscribe registers interest in changes to one property of one handle.
// Updates are delivered in publish order per key; a full buffer follows
// the queue's DropPolicy rather than stalling the worker.
func (q *Queue) Subscribe(target Handle, property string) (*Subscription, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.disposed {
		return nil, ErrDisposed
	}
	return q.bus.subscribe(target, property), nil
}

// drawPool recycles the per-submission copies made by DrawBatch.
var drawPool = sync.Pool{
	New: func() any { return make([]DrawCommand, 0, 64) },
}

func copyDraws(draws []DrawCommand) []DrawCommand {
	buf := drawPool.Get().([]DrawCommand)
	return append(buf[:0], draws...)
}

func recycleDraws(draws []DrawCommand) {
	drawPool.Put(draws[:0])
}
