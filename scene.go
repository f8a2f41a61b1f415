package marionette

import (
	"context"
	"fmt"
)

const defaultDrawCap = 64

// Scene owns a mutable set of sprites and produces one ordered, batched
// draw submission per frame through its queue. It holds a queue reference
// for its lifetime and a surface it draws into.
//
// A Scene is confined to one caller goroutine; the queue underneath it is
// what may be shared.
type Scene struct {
	queue   *Queue
	surface SurfaceHandle

	sprites   []*Sprite
	sorted    []*Sprite // cached z-ordered view of sprites
	nextOrder int

	// version counts structural changes (add/remove/visibility/z-index);
	// sortedVersion stamps the last rebuild of sorted. Equal means the
	// cache is valid and builds skip the sort entirely.
	version       uint64
	sortedVersion uint64

	// view is composed over every sprite transform at build time;
	// identity unless SetView is called.
	view [6]float32

	draws []DrawCommand

	closed bool
}

// NewScene creates a scene drawing into a fresh surface of the given pixel
// size. The scene holds its own queue reference until Close.
func NewScene(ctx context.Context, q *Queue, width, height int) (*Scene, error) {
	q.Acquire("scene")
	surface, err := q.CreateSurface(ctx, width, height)
	if err != nil {
		q.Release("scene")
		return nil, fmt.Errorf("scene surface: %w", err)
	}
	return &Scene{
		queue:   q,
		surface: surface,
		draws:   make([]DrawCommand, 0, defaultDrawCap),
		version: 1,
		view:    identityTransform,
	}, nil
}

// SetView sets a scene-wide affine transform composed over every sprite,
// for camera-style panning and zooming. The identity by default.
func (s *Scene) SetView(view [6]float32) { s.view = view }

// View returns the scene-wide view transform.
func (s *Scene) View() [6]float32 { return s.view }

// Surface returns the scene's render surface handle.
func (s *Scene) Surface() SurfaceHandle { return s.surface }

// NewSprite instantiates an artboard and a state machine ("" selects the
// defaults) from a loaded file and wraps them in a sprite added to the
// scene. The sprite starts visible, unit scale, sized to 100×100,
// z-index 0.
func (s *Scene) NewSprite(ctx context.Context, file FileHandle, artboardName, machineName string) (*Sprite, error) {
	artboard, err := s.queue.CreateArtboard(ctx, file, artboardName)
	if err != nil {
		return nil, err
	}
	machine, err := s.queue.CreateStateMachine(ctx, artboard, machineName)
	if err != nil {
		_ = s.queue.ReleaseArtboard(artboard)
		return nil, err
	}
	sp := &Sprite{
		ScaleX:   1,
		ScaleY:   1,
		Width:    100,
		Height:   100,
		artboard: artboard,
		machine:  machine,
		visible:  true,
		order:    s.nextOrder,
		scene:    s,
	}
	s.nextOrder++
	s.sprites = append(s.sprites, sp)
	s.invalidate()
	return sp, nil
}

// NewStaticSprite is NewSprite without a state machine; the artboard
// renders its rest pose.
func (s *Scene) NewStaticSprite(ctx context.Context, file FileHandle, artboardName string) (*Sprite, error) {
	artboard, err := s.queue.CreateArtboard(ctx, file, artboardName)
	if err != nil {
		return nil, err
	}
	sp := &Sprite{
		ScaleX:   1,
		ScaleY:   1,
		Width:    100,
		Height:   100,
		artboard: artboard,
		visible:  true,
		order:    s.nextOrder,
		scene:    s,
	}
	s.nextOrder++
	s.sprites = append(s.sprites, sp)
	s.invalidate()
	return sp, nil
}

// RemoveSprite detaches sp from the scene and releases its handles.
func (s *Scene) RemoveSprite(sp *Sprite) {
	for i, other := range s.sprites {
		if other == sp {
			s.sprites = append(s.sprites[:i], s.sprites[i+1:]...)
			s.releaseSprite(sp)
			s.invalidate()
			return
		}
	}
}

// Sprites returns the number of sprites in the scene.
func (s *Scene) Sprites() int { return len(s.sprites) }

// invalidate bumps the structural version, forcing the next build to
// re-sort.
func (s *Scene) invalidate() { s.version++ }

// Advance steps every sprite's state machine by dt seconds using
// fire-and-forget commands.
func (s *Scene) Advance(dt float32) {
	for _, sp := range s.sprites {
		if Handle(sp.machine).IsZero() {
			continue
		}
		_ = s.queue.Advance(sp.machine, dt)
	}
}

// BuildDrawCommands returns the frame's ordered draw list: visible sprites
// sorted ascending by z-index, ties in insertion order. The sorted order
// is cached and reused until a structural change; transforms are
// recomputed in place every call and composed with the scene view. The
// returned slice is valid until the next Build/Submit call.
func (s *Scene) BuildDrawCommands() []DrawCommand {
	if s.sortedVersion != s.version {
		s.rebuildSorted()
		s.sortedVersion = s.version
	}

	hasView := s.view != identityTransform

	s.draws = s.draws[:0]
	for _, sp := range s.sorted {
		computeSpriteTransform(sp, &sp.transform)
		if hasView {
			sp.transform = multiplyAffine(s.view, sp.transform)
		}
		s.draws = append(s.draws, DrawCommand{
			Artboard:  sp.artboard,
			Machine:   sp.machine,
			Transform: sp.transform,
			Width:     float32(sp.Width),
			Height:    float32(sp.Height),
		})
	}
	return s.draws
}

// rebuildSorted recomputes the cached z-ordered sprite list. Stable
// insertion sort: zero allocations at steady state and O(n) for the
// typical nearly-sorted case.
func (s *Scene) rebuildSorted() {
	if cap(s.sorted) < len(s.sprites) {
		s.sorted = make([]*Sprite, 0, len(s.sprites))
	}
	s.sorted = s.sorted[:0]
	for _, sp := range s.sprites {
		if sp.visible {
			s.sorted = append(s.sorted, sp)
		}
	}
	for i := 1; i < len(s.sorted); i++ {
		key := s.sorted[i]
		j := i - 1
		for j >= 0 && spriteAfter(s.sorted[j], key) {
			s.sorted[j+1] = s.sorted[j]
			j--
		}
		s.sorted[j+1] = key
	}
}

// spriteAfter reports whether a should draw after b: higher z-index, or
// equal z-index with later insertion.
func spriteAfter(a, b *Sprite) bool {
	if a.zIndex != b.zIndex {
		return a.zIndex > b.zIndex
	}
	return a.order > b.order
}

// Submit builds the frame's draw list and enqueues it as one batched draw.
func (s *Scene) Submit() error {
	return s.queue.DrawBatch(s.surface, s.BuildDrawCommands())
}

// Frame advances all state machines by dt and submits one batched draw,
// generally the only two calls a per-frame tick needs.
func (s *Scene) Frame(dt float32) error {
	s.Advance(dt)
	return s.Submit()
}

// ReadPixels builds and draws the frame's batch, then synchronously reads
// the surface back as RGBA bytes, row-major.
func (s *Scene) ReadPixels(ctx context.Context) ([]byte, error) {
	return s.queue.DrawBatchReadback(ctx, s.surface, s.BuildDrawCommands())
}

// Close releases every sprite's handles, the scene surface, and the
// scene's queue reference. The scene must not be used afterwards.
func (s *Scene) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, sp := range s.sprites {
		s.releaseSprite(sp)
	}
	s.sprites = nil
	s.sorted = nil
	_ = s.queue.ReleaseSurface(s.surface)
	s.queue.Release("scene")
}

func (s *Scene) releaseSprite(sp *Sprite) {
	if !Handle(sp.machine).IsZero() {
		_ = s.queue.ReleaseStateMachine(sp.machine)
	}
	_ = s.queue.ReleaseArtboard(sp.artboard)
}
