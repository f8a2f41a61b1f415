// Package marionette is a thread-confined command queue for driving a
// stateful 2D animation engine from any number of goroutines.
//
// A single worker goroutine owns the native engine context. Callers never
// touch native state directly: they enqueue commands and hold opaque,
// copyable handles to engine-owned resources (files, artboards, state
// machines, view-model instances, surfaces). The worker executes commands
// strictly in arrival order, which is what makes a thread-affine rendering
// context safe to use without locks.
//
// # Quick start
//
//	q := marionette.NewQueue(marionette.NewHeadlessBackend(), marionette.Config{})
//	defer q.Release("main")
//
//	file, err := q.LoadFile(ctx, data)
//	if err != nil {
//		log.Fatal(err)
//	}
//	artboard, _ := q.CreateArtboard(ctx, file, "")
//	machine, _ := q.CreateStateMachine(ctx, artboard, "")
//
//	q.Advance(machine, 1.0/60)
//
// # Queries and fire-and-forget commands
//
// Mutations ([Queue.Advance], [Queue.SetBoolInput], [Queue.DrawBatch], the
// Release* family) return as soon as the command is enqueued. Queries
// ([Queue.LoadFile], [Queue.CreateArtboard], [Queue.DrawBatchReadback])
// block until the worker resolves them; pass a context to stop waiting
// early. Abandoning a query never stalls the worker.
//
// # Lifecycle
//
// A [Queue] is reference counted. [NewQueue] hands the first reference to
// the caller; additional owners call [Queue.Acquire] and everyone calls
// [Queue.Release]. The release that drops the count to zero shuts the
// worker down, fails outstanding queries with [ErrDisposed], and releases
// the native context exactly once.
//
// # Sprites
//
// [Scene] sits on top of the queue: it owns a set of [Sprite] entities
// (artboard + state machine + 2D transform + z-order) and turns them into
// one batched draw submission per frame:
//
//	scene, _ := marionette.NewScene(ctx, q, 640, 480)
//	hero, _ := scene.NewSprite(ctx, file, "", "")
//	hero.SetPosition(100, 100)
//
//	scene.Advance(1.0 / 60)
//	scene.Submit()
//
// # Backends
//
// The engine itself sits behind the narrow [Backend] interface.
// [NewHeadlessBackend] is a pure-Go reference engine (content parsing,
// gween-driven animation tracks, CPU surfaces) suitable for tests and
// servers; [NewEbitenBackend] renders into ebiten.Image surfaces for use
// inside an Ebitengine game.
package marionette
