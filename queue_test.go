package marionette

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// testFileDef builds the content fixture shared across the queue, worker,
// and scene tests: one red 50x50 artboard animating "progress" 0..1 over
// one second, plus a small view model.
func testFileDef() *FileDef {
	return &FileDef{
		Artboards: []ArtboardDef{{
			Name:   "hero",
			Width:  50,
			Height: 50,
			Color:  [4]byte{255, 0, 0, 255},
			Machines: []MachineDef{{
				Name: "run",
				Inputs: []InputDef{
					BoolInput("active", true),
					NumberInput("speed", 1),
					TriggerInput("restart"),
				},
				Tracks: []TrackDef{{
					Property: "progress",
					From:     0,
					To:       1,
					Duration: 1,
					Ease:     EaseLinear,
					Gate:     "active",
				}},
			}},
		}},
		ViewModels: []ViewModelDef{{
			Name: "hud",
			Properties: []PropertyDef{
				{Name: "score", Value: NumberValue(0)},
				{Name: "label", Value: StringValue("ready")},
			},
		}},
	}
}

func testFileBytes() []byte { return testFileDef().Encode() }

// countingBackend wraps the headless backend to observe teardown.
type countingBackend struct {
	Backend
	released atomic.Int64
}

func (b *countingBackend) Release() {
	b.released.Add(1)
	b.Backend.Release()
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestConfigDefaults(t *testing.T) {
	q := NewQueue(NewHeadlessBackend(), Config{})
	defer q.Release("test")

	if q.cfg.QueueDepth != defaultQueueDepth {
		t.Errorf("QueueDepth = %d, want %d", q.cfg.QueueDepth, defaultQueueDepth)
	}
	if q.cfg.SubscriptionBuffer != defaultSubscriptionBuffer {
		t.Errorf("SubscriptionBuffer = %d, want %d", q.cfg.SubscriptionBuffer, defaultSubscriptionBuffer)
	}
	if q.cfg.DropPolicy != DropOldest {
		t.Errorf("DropPolicy = %d, want DropOldest", q.cfg.DropPolicy)
	}
}

func TestQueueAcquireReleaseConcurrent(t *testing.T) {
	q := NewQueue(NewHeadlessBackend(), Config{})

	const workers = 8
	const rounds = 200

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < rounds; j++ {
				q.Acquire("worker")
				q.Release("worker")
			}
		}()
	}
	wg.Wait()

	if got := q.Refs(); got != 1 {
		t.Fatalf("Refs = %d after balanced acquire/release, want 1", got)
	}
	if got := q.Release("test"); got != 0 {
		t.Fatalf("final Release = %d, want 0", got)
	}
}

func TestQueueTeardownExactlyOnce(t *testing.T) {
	backend := &countingBackend{Backend: NewHeadlessBackend()}
	q := NewQueue(backend, Config{})

	const releasers = 8
	for i := 0; i < releasers-1; i++ {
		q.Acquire("releaser")
	}

	var wg sync.WaitGroup
	for i := 0; i < releasers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.Release("releaser")
		}()
	}
	wg.Wait()

	if got := backend.released.Load(); got != 1 {
		t.Fatalf("backend released %d times, want 1", got)
	}
	if _, err := q.LoadFile(testCtx(t), testFileBytes()); !errors.Is(err, ErrDisposed) {
		t.Fatalf("LoadFile after teardown = %v, want ErrDisposed", err)
	}
}

func TestQueueReleaseBelowZeroPanics(t *testing.T) {
	q := NewQueue(NewHeadlessBackend(), Config{})
	q.Release("test")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("extra Release did not panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrDoubleRelease) {
			t.Fatalf("panic = %v, want ErrDoubleRelease", r)
		}
	}()
	q.Release("test")
}

func TestQueueAcquireAfterTeardownPanics(t *testing.T) {
	q := NewQueue(NewHeadlessBackend(), Config{})
	q.Release("test")

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("Acquire after teardown did not panic")
		}
		err, ok := r.(error)
		if !ok || !errors.Is(err, ErrDisposed) {
			t.Fatalf("panic = %v, want ErrDisposed", r)
		}
	}()
	q.Acquire("late")
}

func TestQueueOpsAfterDispose(t *testing.T) {
	q := NewQueue(NewHeadlessBackend(), Config{})
	ctx := testCtx(t)

	file, err := q.LoadFile(ctx, testFileBytes())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	q.Release("test")

	if _, err := q.ArtboardCount(ctx, file); !errors.Is(err, ErrDisposed) {
		t.Errorf("ArtboardCount = %v, want ErrDisposed", err)
	}
	if err := q.ReleaseFile(file); !errors.Is(err, ErrDisposed) {
		t.Errorf("ReleaseFile = %v, want ErrDisposed", err)
	}
	if _, err := q.Subscribe(Handle(file), "x"); !errors.Is(err, ErrDisposed) {
		t.Errorf("Subscribe = %v, want ErrDisposed", err)
	}
}

// A query racing queue disposal resolves with either a valid result or
// ErrDisposed; it never hangs and never returns a partial value.
func TestQueueQueryDisposeRace(t *testing.T) {
	for round := 0; round < 20; round++ {
		q := NewQueue(NewHeadlessBackend(), Config{QueueDepth: 4})
		data := testFileBytes()

		const queriers = 4
		var wg sync.WaitGroup
		errs := make([]error, queriers)
		for i := 0; i < queriers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = q.LoadFile(context.Background(), data)
			}(i)
		}
		q.Release("test")

		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatal("query racing disposal hung")
		}

		for i, err := range errs {
			if err != nil && !errors.Is(err, ErrDisposed) {
				t.Fatalf("querier %d: %v, want nil or ErrDisposed", i, err)
			}
		}
	}
}

// Commands from a single goroutine execute in enqueue order: a property
// write enqueued before a read is visible to that read.
func TestQueueSingleProducerOrdering(t *testing.T) {
	q := NewQueue(NewHeadlessBackend(), Config{})
	defer q.Release("test")
	ctx := testCtx(t)

	file, err := q.LoadFile(ctx, testFileBytes())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	vm, err := q.CreateViewModelInstance(ctx, file, "")
	if err != nil {
		t.Fatalf("CreateViewModelInstance: %v", err)
	}

	for i := 1; i <= 10; i++ {
		if err := q.SetProperty(vm, "score", NumberValue(float64(i))); err != nil {
			t.Fatalf("SetProperty %d: %v", i, err)
		}
		got, err := q.Property(ctx, vm, "score")
		if err != nil {
			t.Fatalf("Property after write %d: %v", i, err)
		}
		if got.Number != float64(i) {
			t.Fatalf("Property after write %d = %v", i, got.Number)
		}
	}
}

func TestQueueContextCancelUnblocksQuery(t *testing.T) {
	q := NewQueue(NewHeadlessBackend(), Config{})
	defer q.Release("test")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The worker may or may not have executed the command before the wait
	// observes cancellation; either a result or ctx.Err is acceptable.
	_, err := q.LoadFile(ctx, testFileBytes())
	if err != nil && !errors.Is(err, context.Canceled) {
		t.Fatalf("LoadFile with cancelled ctx = %v", err)
	}
}
