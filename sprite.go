package marionette

// Sprite is one visual entity owned by a Scene: an artboard handle, an
// optional state-machine handle, and a 2D transform. Sprites are mutated
// by the owning goroutine between frames; the Scene turns them into draw
// commands once per frame.
//
// Position, scale, rotation, and pivot changes take effect on the next
// build without invalidating the scene's sort cache. Z-index and
// visibility changes are structural and go through SetZIndex/SetVisible.
type Sprite struct {
	// Transform. Rotation is in degrees; PivotX/PivotY are normalized to
	// [0, 1] within the display size.
	X, Y           float64
	ScaleX, ScaleY float64
	Rotation       float64
	PivotX, PivotY float64

	// Width and Height are the target display size in surface pixels.
	Width, Height float64

	artboard ArtboardHandle
	machine  StateMachineHandle

	zIndex  int
	visible bool
	order   int // insertion order; breaks z-index ties

	// transform is the sprite's pre-allocated buffer, rewritten in place
	// every build. No per-frame heap allocation in steady state.
	transform [6]float32

	scene *Scene
}

// Artboard returns the sprite's artboard handle.
func (sp *Sprite) Artboard() ArtboardHandle { return sp.artboard }

// Machine returns the sprite's state machine handle; the zero handle if
// the sprite is static.
func (sp *Sprite) Machine() StateMachineHandle { return sp.machine }

// SetPosition sets the sprite's position in surface pixels.
func (sp *Sprite) SetPosition(x, y float64) {
	sp.X = x
	sp.Y = y
}

// SetScale sets the sprite's non-uniform scale.
func (sp *Sprite) SetScale(sx, sy float64) {
	sp.ScaleX = sx
	sp.ScaleY = sy
}

// SetRotation sets the sprite's rotation in degrees.
func (sp *Sprite) SetRotation(degrees float64) {
	sp.Rotation = degrees
}

// SetPivot sets the sprite's normalized pivot. (0.5, 0.5) rotates and
// scales around the sprite's display center.
func (sp *Sprite) SetPivot(px, py float64) {
	sp.PivotX = px
	sp.PivotY = py
}

// SetSize sets the sprite's target display size in surface pixels.
func (sp *Sprite) SetSize(w, h float64) {
	sp.Width = w
	sp.Height = h
}

// ZIndex returns the sprite's draw-order key.
func (sp *Sprite) ZIndex() int { return sp.zIndex }

// SetZIndex changes the sprite's draw-order key. Sprites draw in ascending
// z-index; ties keep insertion order.
func (sp *Sprite) SetZIndex(z int) {
	if sp.zIndex == z {
		return
	}
	sp.zIndex = z
	sp.scene.invalidate()
}

// Visible reports whether the sprite is drawn.
func (sp *Sprite) Visible() bool { return sp.visible }

// SetVisible toggles whether the sprite is drawn.
func (sp *Sprite) SetVisible(v bool) {
	if sp.visible == v {
		return
	}
	sp.visible = v
	sp.scene.invalidate()
}
