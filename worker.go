package marionette

import (
	"fmt"
)

// workerStats tracks worker-loop counters, logged in debug mode.
type workerStats struct {
	executed  uint64
	failed    uint64
	published uint64
	skipped   uint64 // draw commands skipped for invalid handles
}

// run is the worker loop. It is the only goroutine that ever touches the
// registry or the backend; commands execute one at a time in dequeue
// order, so the thread-affine native context needs no locking.
//
// A failing command resolves its pending with a typed error and the loop
// keeps servicing subsequent commands.
func (q *Queue) run() {
	reg := newRegistry()

	for {
		select {
		case cmd := <-q.mbox:
			q.execute(reg, cmd)
		case <-q.stopC:
			q.drain(reg)
			return
		}
	}
}

// drain empties the mailbox after disposal. Buffered queries resolve with
// ErrDisposed, buffered mutations are dropped, and every remaining native
// object is released before the done channel closes.
func (q *Queue) drain(reg *registry) {
	for {
		select {
		case cmd := <-q.mbox:
			if cmd.kind == cmdDrawBatch || cmd.kind == cmdDrawBatchReadback {
				recycleDraws(cmd.draws)
			}
			if cmd.req != 0 {
				q.calls.resolve(cmd.req, nil, ErrDisposed)
			}
		default:
			q.calls.failAll(ErrDisposed)
			q.bus.closeAll()
			for _, native := range reg.drain() {
				releaseNative(native)
			}
			q.backend.Release()
			if q.cfg.Debug {
				debugLogWorker(&q.stats)
			}
			close(q.done)
			return
		}
	}
}

// execute dispatches one command against the registry and backend.
func (q *Queue) execute(reg *registry, cmd command) {
	q.stats.executed++

	switch cmd.kind {
	case cmdLoadFile:
		file, err := q.backend.LoadFile(cmd.data)
		if err != nil {
			q.fail(cmd, fmt.Errorf("load file: %w", err))
			return
		}
		q.calls.resolve(cmd.req, reg.allocate(KindFile, file), nil)

	case cmdArtboardCount:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			q.fail(cmd, err)
			return
		}
		q.calls.resolve(cmd.req, native.(NativeFile).ArtboardCount(), nil)

	case cmdCreateArtboard:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			q.fail(cmd, err)
			return
		}
		artboard, err := native.(NativeFile).Artboard(cmd.name)
		if err != nil {
			q.fail(cmd, fmt.Errorf("create artboard %q: %w", cmd.name, err))
			return
		}
		q.calls.resolve(cmd.req, reg.allocate(KindArtboard, artboard), nil)

	case cmdCreateStateMachine:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			q.fail(cmd, err)
			return
		}
		machine, err := native.(NativeArtboard).StateMachine(cmd.name)
		if err != nil {
			q.fail(cmd, fmt.Errorf("create state machine %q: %w", cmd.name, err))
			return
		}
		q.calls.resolve(cmd.req, reg.allocate(KindStateMachine, &boundMachine{NativeStateMachine: machine}), nil)

	case cmdCreateViewModel:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			q.fail(cmd, err)
			return
		}
		vm, err := native.(NativeFile).ViewModel(cmd.name)
		if err != nil {
			q.fail(cmd, fmt.Errorf("create view model %q: %w", cmd.name, err))
			return
		}
		q.calls.resolve(cmd.req, reg.allocate(KindViewModel, vm), nil)

	case cmdCreateSurface:
		surface, err := q.backend.CreateSurface(cmd.width, cmd.height)
		if err != nil {
			q.fail(cmd, fmt.Errorf("create surface %dx%d: %w", cmd.width, cmd.height, err))
			return
		}
		q.calls.resolve(cmd.req, reg.allocate(KindSurface, surface), nil)

	case cmdReleaseFile, cmdReleaseArtboard, cmdReleaseStateMachine,
		cmdReleaseViewModel, cmdReleaseSurface:
		native, err := reg.free(cmd.handle)
		if err != nil {
			debugWarnf("release %v: stale handle", cmd.handle)
			q.stats.failed++
			return
		}
		releaseNative(native)

	case cmdSetBoolInput:
		q.withMachine(reg, cmd, func(m NativeStateMachine) error {
			return m.SetBool(cmd.name, cmd.value.Bool)
		})

	case cmdSetNumberInput:
		q.withMachine(reg, cmd, func(m NativeStateMachine) error {
			return m.SetNumber(cmd.name, cmd.value.Number)
		})

	case cmdFireTrigger:
		q.withMachine(reg, cmd, func(m NativeStateMachine) error {
			return m.FireTrigger(cmd.name)
		})

	case cmdAdvance:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			debugWarnf("advance %v: stale handle", cmd.handle)
			q.stats.failed++
			return
		}
		machine := native.(*boundMachine)
		changes := machine.Advance(cmd.dt)
		for _, change := range changes {
			q.publish(cmd.handle, change)
			if !machine.vmHandle.IsZero() {
				q.publish(machine.vmHandle, change)
			}
		}

	case cmdBindViewModel:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			debugWarnf("bind %v: stale handle", cmd.handle)
			q.stats.failed++
			return
		}
		machine := native.(*boundMachine)
		vmNative, err := reg.resolve(cmd.binding)
		if err != nil {
			debugWarnf("bind %v to %v: stale handle", cmd.handle, cmd.binding)
			q.stats.failed++
			return
		}
		machine.Bind(vmNative.(NativeViewModel))
		machine.vmHandle = cmd.binding

	case cmdSetProperty:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			debugWarnf("set property %q on %v: stale handle", cmd.name, cmd.handle)
			q.stats.failed++
			return
		}
		if err := native.(NativeViewModel).SetProperty(cmd.name, cmd.value); err != nil {
			debugWarnf("set property %q on %v: %v", cmd.name, cmd.handle, err)
			q.stats.failed++
			return
		}
		q.publish(cmd.handle, PropertyChange{Property: cmd.name, Value: cmd.value})

	case cmdGetProperty:
		native, err := reg.resolve(cmd.handle)
		if err != nil {
			q.fail(cmd, err)
			return
		}
		value, err := native.(NativeViewModel).Property(cmd.name)
		if err != nil {
			q.fail(cmd, fmt.Errorf("property %q: %w", cmd.name, err))
			return
		}
		q.calls.resolve(cmd.req, value, nil)

	case cmdDraw:
		surface, artboard, err := q.resolveDrawTargets(reg, cmd.surface, cmd.handle)
		if err != nil {
			debugWarnf("draw: %v", err)
			q.stats.failed++
			return
		}
		if err := surface.Draw(artboard, cmd.transform, cmd.displayW, cmd.displayH); err != nil {
			debugWarnf("draw %v: %v", cmd.handle, err)
			q.stats.failed++
		}

	case cmdDrawBatch:
		q.drawBatch(reg, cmd)
		recycleDraws(cmd.draws)

	case cmdDrawBatchReadback:
		surface, err := q.drawBatch(reg, cmd)
		recycleDraws(cmd.draws)
		if err != nil {
			q.fail(cmd, err)
			return
		}
		q.calls.resolve(cmd.req, surface.ReadPixels(), nil)
	}
}

// withMachine resolves a state machine handle and applies op, logging
// (not failing) on stale handles, since input mutations are fire-and-forget.
func (q *Queue) withMachine(reg *registry, cmd command, op func(NativeStateMachine) error) {
	native, err := reg.resolve(cmd.handle)
	if err != nil {
		debugWarnf("input %q on %v: stale handle", cmd.name, cmd.handle)
		q.stats.failed++
		return
	}
	if err := op(native.(*boundMachine)); err != nil {
		debugWarnf("input %q on %v: %v", cmd.name, cmd.handle, err)
		q.stats.failed++
	}
}

// drawBatch clears the target surface and renders every resolvable command
// in the batch onto it; a submission is one complete frame. Stale handles
// skip that command with a warning; the rest of the batch still draws. Only
// an unresolvable surface fails the submission.
func (q *Queue) drawBatch(reg *registry, cmd command) (NativeSurface, error) {
	native, err := reg.resolve(cmd.surface)
	if err != nil {
		q.stats.failed++
		return nil, err
	}
	surface := native.(NativeSurface)

	surface.Clear()
	for i := range cmd.draws {
		d := &cmd.draws[i]
		abNative, err := reg.resolve(Handle(d.Artboard))
		if err != nil {
			debugWarnf("draw batch: skipping %v: stale handle", d.Artboard)
			q.stats.skipped++
			continue
		}
		if err := surface.Draw(abNative.(NativeArtboard), d.Transform, d.Width, d.Height); err != nil {
			debugWarnf("draw batch: %v: %v", d.Artboard, err)
			q.stats.skipped++
		}
	}
	return surface, nil
}

// resolveDrawTargets resolves the surface and artboard for a single draw.
func (q *Queue) resolveDrawTargets(reg *registry, surface, artboard Handle) (NativeSurface, NativeArtboard, error) {
	sNative, err := reg.resolve(surface)
	if err != nil {
		return nil, nil, err
	}
	aNative, err := reg.resolve(artboard)
	if err != nil {
		return nil, nil, err
	}
	return sNative.(NativeSurface), aNative.(NativeArtboard), nil
}

// fail resolves a query with err, or logs it for fire-and-forget commands.
func (q *Queue) fail(cmd command, err error) {
	q.stats.failed++
	if cmd.req != 0 {
		q.calls.resolve(cmd.req, nil, err)
		return
	}
	debugWarnf("command %d: %v", cmd.kind, err)
}

// publish forwards one property change to the bus.
func (q *Queue) publish(target Handle, change PropertyChange) {
	q.stats.published++
	q.bus.publish(target, change.Property, change.Value)
}

// boundMachine wraps a native state machine together with the handle of
// the view model bound to it, so Advance can publish on both keys. The
// registry stores state machines as *boundMachine.
type boundMachine struct {
	NativeStateMachine
	vmHandle Handle
}

// releaseNative calls the appropriate Release method for any registry
// object.
func releaseNative(native any) {
	switch n := native.(type) {
	case NativeFile:
		n.Release()
	case *boundMachine:
		n.NativeStateMachine.Release()
	case NativeArtboard:
		n.Release()
	case NativeStateMachine:
		n.Release()
	case NativeViewModel:
		n.Release()
	case NativeSurface:
		n.Release()
	}
}
