package marionette

// commandKind discriminates the command union.
type commandKind uint8

const (
	cmdLoadFile commandKind = iota
	cmdReleaseFile
	cmdArtboardCount
	cmdCreateArtboard
	cmdReleaseArtboard
	cmdCreateStateMachine
	cmdReleaseStateMachine
	cmdSetBoolInput
	cmdSetNumberInput
	cmdFireTrigger
	cmdAdvance
	cmdCreateViewModel
	cmdReleaseViewModel
	cmdBindViewModel
	cmdSetProperty
	cmdGetProperty
	cmdCreateSurface
	cmdReleaseSurface
	cmdDraw
	cmdDrawBatch
	cmdDrawBatchReadback
)

// command is the unit of work carried by the queue's channel. A single
// flat struct covers every command kind: no per-command allocation or
// interface calls on the hot path. req is 0 for fire-and-forget mutations
// and a unique request id for queries.
type command struct {
	kind commandKind
	req  uint64

	// Arguments; which fields are meaningful depends on kind.
	handle  Handle  // primary target
	binding Handle  // secondary target (BindViewModel)
	surface Handle  // draw target
	name    string  // resource or input/property name
	data    []byte  // LoadFile content
	value   PropertyValue
	dt      float32
	width   int
	height  int

	// Draw arguments.
	transform [6]float32
	displayW  float32
	displayH  float32
	draws     []DrawCommand
}

// DrawCommand is one flattened draw record inside a batched submission:
// an artboard (plus the state machine that animates it, if any), a 6-float
// affine transform, and the target display size. Scene reuses the backing
// transform buffers across frames; the queue copies the command list on
// enqueue so callers may mutate theirs immediately after submitting.
type DrawCommand struct {
	Artboard  ArtboardHandle
	Machine   StateMachineHandle // zero if the artboard is static
	Transform [6]float32
	Width     float32
	Height    float32
}
