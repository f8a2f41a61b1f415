package marionette

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
)

// EbitenBackend renders artboards into *ebiten.Image surfaces, for queues
// embedded in an Ebitengine game. Content parsing and state machines are
// shared with the headless backend; only the surface path differs.
//
// The queue's worker goroutine is the only caller, which satisfies
// Ebitengine's single-threaded image access expectations as long as the
// game does not draw the same images concurrently.
type EbitenBackend struct {
	headlessBackend

	// white is the 1x1 source image scaled to each artboard quad.
	white *ebiten.Image
}

// NewEbitenBackend returns a backend drawing into ebiten images.
func NewEbitenBackend() *EbitenBackend {
	white := ebiten.NewImage(1, 1)
	white.Fill(color.White)
	return &EbitenBackend{white: white}
}

// CreateSurface allocates an offscreen ebiten image.
func (b *EbitenBackend) CreateSurface(width, height int) (NativeSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface size %dx%d out of range", width, height)
	}
	return &ebitenSurface{
		img:    ebiten.NewImage(width, height),
		white:  b.white,
		width:  width,
		height: height,
	}, nil
}

func (b *EbitenBackend) Release() {
	b.white.Deallocate()
}

type ebitenSurface struct {
	img    *ebiten.Image
	white  *ebiten.Image
	width  int
	height int
}

func (s *ebitenSurface) Size() (int, int) { return s.width, s.height }

func (s *ebitenSurface) Clear() {
	s.img.Clear()
}

// Draw scales the unit white pixel to the artboard's display quad and
// submits it with the command transform as the GeoM.
func (s *ebitenSurface) Draw(artboard NativeArtboard, transform [6]float32, width, height float32) error {
	a, ok := artboard.(*headlessArtboard)
	if !ok {
		return fmt.Errorf("artboard from a different backend")
	}

	var op ebiten.DrawImageOptions
	op.GeoM.Scale(float64(width), float64(height))
	op.GeoM.Concat(affineGeoM(transform))

	c := a.def.Color
	alpha := float32(c[3]) / 255
	op.ColorScale.Scale(
		float32(c[0])/255*alpha,
		float32(c[1])/255*alpha,
		float32(c[2])/255*alpha,
		alpha,
	)

	s.img.DrawImage(s.white, &op)
	return nil
}

func (s *ebitenSurface) ReadPixels() []byte {
	pix := make([]byte, 4*s.width*s.height)
	s.img.ReadPixels(pix)
	return pix
}

func (s *ebitenSurface) Release() {
	s.img.Deallocate()
}

// affineGeoM converts a [6]float32 affine transform into an ebiten.GeoM.
func affineGeoM(t [6]float32) ebiten.GeoM {
	var m ebiten.GeoM
	m.SetElement(0, 0, float64(t[0]))
	m.SetElement(1, 0, float64(t[1]))
	m.SetElement(0, 1, float64(t[2]))
	m.SetElement(1, 1, float64(t[3]))
	m.SetElement(0, 2, float64(t[4]))
	m.SetElement(1, 2, float64(t[5]))
	return m
}
