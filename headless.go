package marionette

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tanema/gween"
	"github.com/tanema/gween/ease"
)

// The headless backend is a pure-Go reference engine: it parses the
// marionette content format, runs state machines as gween tween tracks,
// and renders artboards as solid-color quads into CPU pixel buffers.
// It exists so the queue can be exercised and tested without a GPU or a
// window.

// Content format constants.
var headlessMagic = [4]byte{'M', 'R', 'N', 'T'}

const headlessVersion = 1

// Input kinds in the content format.
const (
	inputBool uint8 = iota
	inputNumber
	inputTrigger
)

// Ease identifiers in the content format, mapped onto gween/ease.
const (
	EaseLinear uint8 = iota
	EaseInQuad
	EaseOutQuad
	EaseInOutQuad
	EaseInCubic
	EaseOutCubic
)

var easeFuncs = [...]ease.TweenFunc{
	EaseLinear:    ease.Linear,
	EaseInQuad:    ease.InQuad,
	EaseOutQuad:   ease.OutQuad,
	EaseInOutQuad: ease.InOutQuad,
	EaseInCubic:   ease.InCubic,
	EaseOutCubic:  ease.OutCubic,
}

// NewHeadlessBackend returns the pure-Go reference backend.
func NewHeadlessBackend() Backend {
	return &headlessBackend{}
}

type headlessBackend struct{}

func (b *headlessBackend) LoadFile(data []byte) (NativeFile, error) {
	def, err := DecodeFile(data)
	if err != nil {
		return nil, err
	}
	return &headlessFile{def: def}, nil
}

func (b *headlessBackend) CreateSurface(width, height int) (NativeSurface, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("surface size %dx%d out of range", width, height)
	}
	return &headlessSurface{
		width:  width,
		height: height,
		pix:    make([]byte, 4*width*height),
	}, nil
}

func (b *headlessBackend) Release() {}

// --- File ---

type headlessFile struct {
	def *FileDef
}

func (f *headlessFile) ArtboardCount() int { return len(f.def.Artboards) }

func (f *headlessFile) Artboard(name string) (NativeArtboard, error) {
	def, err := f.def.artboard(name)
	if err != nil {
		return nil, err
	}
	return &headlessArtboard{def: def}, nil
}

func (f *headlessFile) ViewModel(name string) (NativeViewModel, error) {
	def, err := f.def.viewModel(name)
	if err != nil {
		return nil, err
	}
	vm := &headlessViewModel{props: make(map[string]PropertyValue, len(def.Properties))}
	for _, p := range def.Properties {
		vm.props[p.Name] = p.Value
	}
	return vm, nil
}

func (f *headlessFile) Release() {}

// --- Artboard ---

type headlessArtboard struct {
	def *ArtboardDef
}

func (a *headlessArtboard) Bounds() (float32, float32) {
	return a.def.Width, a.def.Height
}

func (a *headlessArtboard) StateMachine(name string) (NativeStateMachine, error) {
	def, err := a.def.machine(name)
	if err != nil {
		return nil, err
	}
	return newHeadlessMachine(def), nil
}

func (a *headlessArtboard) Release() {}

// --- State machine ---

type headlessTrack struct {
	property string
	tween    *gween.Tween
	loop     bool
	gate     string // bool input that enables the track; "" = always on
	last     float32
	started  bool
}

type headlessMachine struct {
	def     *MachineDef
	bools   map[string]bool
	numbers map[string]float64
	tracks  []*headlessTrack
	vm      NativeViewModel
}

func newHeadlessMachine(def *MachineDef) *headlessMachine {
	m := &headlessMachine{
		def:     def,
		bools:   make(map[string]bool),
		numbers: make(map[string]float64),
	}
	for _, in := range def.Inputs {
		switch in.Kind {
		case inputBool:
			m.bools[in.Name] = in.Bool
		case inputNumber:
			m.numbers[in.Name] = in.Number
		}
	}
	for _, t := range def.Tracks {
		m.tracks = append(m.tracks, &headlessTrack{
			property: t.Property,
			tween:    gween.New(t.From, t.To, t.Duration, easeFuncs[t.Ease]),
			loop:     t.Loop,
			gate:     t.Gate,
		})
	}
	return m
}

func (m *headlessMachine) SetBool(name string, value bool) error {
	if _, ok := m.bools[name]; !ok {
		return fmt.Errorf("machine %q: no bool input %q", m.def.Name, name)
	}
	m.bools[name] = value
	return nil
}

func (m *headlessMachine) SetNumber(name string, value float64) error {
	if _, ok := m.numbers[name]; !ok {
		return fmt.Errorf("machine %q: no number input %q", m.def.Name, name)
	}
	m.numbers[name] = value
	return nil
}

// FireTrigger restarts every track when the named trigger exists.
func (m *headlessMachine) FireTrigger(name string) error {
	for _, in := range m.def.Inputs {
		if in.Kind == inputTrigger && in.Name == name {
			for _, t := range m.tracks {
				t.tween.Reset()
				t.started = false
			}
			return nil
		}
	}
	return fmt.Errorf("machine %q: no trigger %q", m.def.Name, name)
}

// Advance steps every enabled track. A "speed" number input, when present,
// scales dt. A track reports a change only when its value moved since the
// last report, so finished one-shot tracks go quiet.
func (m *headlessMachine) Advance(dt float32) []PropertyChange {
	if speed, ok := m.numbers["speed"]; ok {
		dt *= float32(speed)
	}

	var changes []PropertyChange
	for _, t := range m.tracks {
		if t.gate != "" && !m.bools[t.gate] {
			continue
		}
		value, finished := t.tween.Update(dt)
		if t.started && value == t.last {
			continue
		}
		t.started = true
		t.last = value
		changes = append(changes, PropertyChange{
			Property: t.property,
			Value:    NumberValue(float64(value)),
		})
		if m.vm != nil {
			_ = m.vm.SetProperty(t.property, NumberValue(float64(value)))
		}
		if finished && t.loop {
			t.tween.Reset()
		}
	}
	return changes
}

func (m *headlessMachine) Bind(vm NativeViewModel) { m.vm = vm }

func (m *headlessMachine) Release() {}

// --- View model ---

type headlessViewModel struct {
	props map[string]PropertyValue
}

// SetProperty stores value. Unknown names are created: bound state
// machines write animated properties through without declaring them.
func (vm *headlessViewModel) SetProperty(name string, value PropertyValue) error {
	vm.props[name] = value
	return nil
}

func (vm *headlessViewModel) Property(name string) (PropertyValue, error) {
	v, ok := vm.props[name]
	if !ok {
		return PropertyValue{}, fmt.Errorf("no property %q", name)
	}
	return v, nil
}

func (vm *headlessViewModel) Release() {}

// --- Surface ---

type headlessSurface struct {
	width  int
	height int
	pix    []byte
}

func (s *headlessSurface) Size() (int, int) { return s.width, s.height }

func (s *headlessSurface) Clear() {
	clear(s.pix)
}

// Draw fills the axis-aligned bounding box of the artboard's transformed
// display quad with the artboard color. Deliberately simple: deterministic
// pixels are what the readback path needs, not antialiasing.
func (s *headlessSurface) Draw(artboard NativeArtboard, transform [6]float32, width, height float32) error {
	a, ok := artboard.(*headlessArtboard)
	if !ok {
		return fmt.Errorf("artboard from a different backend")
	}

	// Transformed corners of the display rect (0,0)-(width,height).
	xs := [4]float32{}
	ys := [4]float32{}
	xs[0], ys[0] = transformPoint(transform, 0, 0)
	xs[1], ys[1] = transformPoint(transform, width, 0)
	xs[2], ys[2] = transformPoint(transform, 0, height)
	xs[3], ys[3] = transformPoint(transform, width, height)

	minX, maxX := xs[0], xs[0]
	minY, maxY := ys[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = min(minX, xs[i])
		maxX = max(maxX, xs[i])
		minY = min(minY, ys[i])
		maxY = max(maxY, ys[i])
	}

	x0 := clampInt(int(math.Floor(float64(minX))), 0, s.width)
	x1 := clampInt(int(math.Ceil(float64(maxX))), 0, s.width)
	y0 := clampInt(int(math.Floor(float64(minY))), 0, s.height)
	y1 := clampInt(int(math.Ceil(float64(maxY))), 0, s.height)

	c := a.def.Color
	for y := y0; y < y1; y++ {
		row := 4 * y * s.width
		for x := x0; x < x1; x++ {
			i := row + 4*x
			s.pix[i+0] = c[0]
			s.pix[i+1] = c[1]
			s.pix[i+2] = c[2]
			s.pix[i+3] = c[3]
		}
	}
	return nil
}

func (s *headlessSurface) ReadPixels() []byte {
	out := make([]byte, len(s.pix))
	copy(out, s.pix)
	return out
}

func (s *headlessSurface) Release() {}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// --- Content definitions ---

// FileDef is the authoring form of a content file. Encode produces the
// binary form LoadFile accepts; DecodeFile reverses it.
type FileDef struct {
	Artboards  []ArtboardDef
	ViewModels []ViewModelDef
}

// ArtboardDef describes one artboard: a named, colored canvas with state
// machines.
type ArtboardDef struct {
	Name     string
	Width    float32
	Height   float32
	Color    [4]byte // RGBA
	Machines []MachineDef
}

// MachineDef describes one state machine: its inputs and tween tracks.
type MachineDef struct {
	Name   string
	Inputs []InputDef
	Tracks []TrackDef
}

// InputDef declares one machine input. Kind is one of the input* format
// constants; Bool/Number carry the default for the matching kind.
type InputDef struct {
	Kind   uint8
	Name   string
	Bool   bool
	Number float64
}

// BoolInput declares a boolean input with a default value.
func BoolInput(name string, def bool) InputDef {
	return InputDef{Kind: inputBool, Name: name, Bool: def}
}

// NumberInput declares a numeric input with a default value.
func NumberInput(name string, def float64) InputDef {
	return InputDef{Kind: inputNumber, Name: name, Number: def}
}

// TriggerInput declares a trigger input.
func TriggerInput(name string) InputDef {
	return InputDef{Kind: inputTrigger, Name: name}
}

// TrackDef describes one animated property: a tween from From to To over
// Duration seconds. Gate optionally names a bool input that must be true
// for the track to run; Loop restarts the tween when it finishes.
type TrackDef struct {
	Property string
	From     float32
	To       float32
	Duration float32
	Ease     uint8
	Loop     bool
	Gate     string
}

// ViewModelDef describes one view model and its default properties.
type ViewModelDef struct {
	Name       string
	Properties []PropertyDef
}

// PropertyDef is one named default property value.
type PropertyDef struct {
	Name  string
	Value PropertyValue
}

func (f *FileDef) artboard(name string) (*ArtboardDef, error) {
	if len(f.Artboards) == 0 {
		return nil, fmt.Errorf("file has no artboards: %w", ErrMalformedResource)
	}
	if name == "" {
		return &f.Artboards[0], nil
	}
	for i := range f.Artboards {
		if f.Artboards[i].Name == name {
			return &f.Artboards[i], nil
		}
	}
	return nil, fmt.Errorf("no artboard %q: %w", name, ErrMalformedResource)
}

func (f *FileDef) viewModel(name string) (*ViewModelDef, error) {
	if len(f.ViewModels) == 0 {
		return nil, fmt.Errorf("file has no view models: %w", ErrMalformedResource)
	}
	if name == "" {
		return &f.ViewModels[0], nil
	}
	for i := range f.ViewModels {
		if f.ViewModels[i].Name == name {
			return &f.ViewModels[i], nil
		}
	}
	return nil, fmt.Errorf("no view model %q: %w", name, ErrMalformedResource)
}

func (a *ArtboardDef) machine(name string) (*MachineDef, error) {
	if len(a.Machines) == 0 {
		return nil, fmt.Errorf("artboard %q has no state machines: %w", a.Name, ErrMalformedResource)
	}
	if name == "" {
		return &a.Machines[0], nil
	}
	for i := range a.Machines {
		if a.Machines[i].Name == name {
			return &a.Machines[i], nil
		}
	}
	return nil, fmt.Errorf("no state machine %q: %w", name, ErrMalformedResource)
}

// --- Binary encoding ---

// Encode serializes the definition into the binary content format. Strings
// carry a one-byte length prefix, so names and string property values
// longer than 255 bytes are truncated to the first 255.
func (f *FileDef) Encode() []byte {
	var buf bytes.Buffer
	buf.Write(headlessMagic[:])
	writeU16(&buf, headlessVersion)

	writeU16(&buf, uint16(len(f.Artboards)))
	for _, ab := range f.Artboards {
		writeStr(&buf, ab.Name)
		writeF32(&buf, ab.Width)
		writeF32(&buf, ab.Height)
		buf.Write(ab.Color[:])
		writeU16(&buf, uint16(len(ab.Machines)))
		for _, m := range ab.Machines {
			writeStr(&buf, m.Name)
			writeU16(&buf, uint16(len(m.Inputs)))
			for _, in := range m.Inputs {
				buf.WriteByte(in.Kind)
				writeStr(&buf, in.Name)
				switch in.Kind {
				case inputBool:
					writeBool(&buf, in.Bool)
				case inputNumber:
					writeF64(&buf, in.Number)
				}
			}
			writeU16(&buf, uint16(len(m.Tracks)))
			for _, t := range m.Tracks {
				writeStr(&buf, t.Property)
				writeF32(&buf, t.From)
				writeF32(&buf, t.To)
				writeF32(&buf, t.Duration)
				buf.WriteByte(t.Ease)
				writeBool(&buf, t.Loop)
				writeStr(&buf, t.Gate)
			}
		}
	}

	writeU16(&buf, uint16(len(f.ViewModels)))
	for _, vm := range f.ViewModels {
		writeStr(&buf, vm.Name)
		writeU16(&buf, uint16(len(vm.Properties)))
		for _, p := range vm.Properties {
			writeStr(&buf, p.Name)
			buf.WriteByte(byte(p.Value.Kind))
			switch p.Value.Kind {
			case PropertyNumber:
				writeF64(&buf, p.Value.Number)
			case PropertyBool:
				writeBool(&buf, p.Value.Bool)
			case PropertyString:
				writeStr(&buf, p.Value.Str)
			}
		}
	}
	return buf.Bytes()
}

// DecodeFile parses the binary content format. Structural problems fail
// with ErrMalformedResource; a version newer than the engine supports
// fails with ErrUnsupportedVersion.
func DecodeFile(data []byte) (*FileDef, error) {
	r := &reader{data: data}

	var magic [4]byte
	r.bytes(magic[:])
	if r.failed || magic != headlessMagic {
		return nil, fmt.Errorf("bad magic: %w", ErrMalformedResource)
	}
	version := r.u16()
	if r.failed {
		return nil, fmt.Errorf("truncated header: %w", ErrMalformedResource)
	}
	if version > headlessVersion {
		return nil, fmt.Errorf("content version %d, engine supports %d: %w",
			version, headlessVersion, ErrUnsupportedVersion)
	}
	if version == 0 {
		return nil, fmt.Errorf("content version 0: %w", ErrMalformedResource)
	}

	f := &FileDef{}
	abCount := int(r.u16())
	for i := 0; i < abCount && !r.failed; i++ {
		ab := ArtboardDef{
			Name:   r.str(),
			Width:  r.f32(),
			Height: r.f32(),
		}
		r.bytes(ab.Color[:])
		mCount := int(r.u16())
		for j := 0; j < mCount && !r.failed; j++ {
			m := MachineDef{Name: r.str()}
			inCount := int(r.u16())
			for k := 0; k < inCount && !r.failed; k++ {
				in := InputDef{Kind: r.u8(), Name: r.str()}
				switch in.Kind {
				case inputBool:
					in.Bool = r.bool()
				case inputNumber:
					in.Number = r.f64()
				case inputTrigger:
				default:
					return nil, fmt.Errorf("unknown input kind %d: %w", in.Kind, ErrMalformedResource)
				}
				m.Inputs = append(m.Inputs, in)
			}
			tCount := int(r.u16())
			for k := 0; k < tCount && !r.failed; k++ {
				t := TrackDef{
					Property: r.str(),
					From:     r.f32(),
					To:       r.f32(),
					Duration: r.f32(),
					Ease:     r.u8(),
					Loop:     r.bool(),
					Gate:     r.str(),
				}
				if int(t.Ease) >= len(easeFuncs) {
					return nil, fmt.Errorf("unknown ease %d: %w", t.Ease, ErrMalformedResource)
				}
				if !r.failed && t.Duration <= 0 {
					return nil, fmt.Errorf("track %q: duration %v: %w", t.Property, t.Duration, ErrMalformedResource)
				}
				m.Tracks = append(m.Tracks, t)
			}
			ab.Machines = append(ab.Machines, m)
		}
		f.Artboards = append(f.Artboards, ab)
	}

	vmCount := int(r.u16())
	for i := 0; i < vmCount && !r.failed; i++ {
		vm := ViewModelDef{Name: r.str()}
		pCount := int(r.u16())
		for j := 0; j < pCount && !r.failed; j++ {
			p := PropertyDef{Name: r.str()}
			kind := PropertyKind(r.u8())
			switch kind {
			case PropertyNumber:
				p.Value = NumberValue(r.f64())
			case PropertyBool:
				p.Value = BoolValue(r.bool())
			case PropertyString:
				p.Value = StringValue(r.str())
			default:
				return nil, fmt.Errorf("unknown property kind %d: %w", kind, ErrMalformedResource)
			}
			vm.Properties = append(vm.Properties, p)
		}
		f.ViewModels = append(f.ViewModels, vm)
	}

	if r.failed {
		return nil, fmt.Errorf("truncated content: %w", ErrMalformedResource)
	}
	if r.pos != len(r.data) {
		return nil, fmt.Errorf("%d trailing bytes: %w", len(r.data)-r.pos, ErrMalformedResource)
	}
	return f, nil
}

// --- Little-endian primitives ---

func writeU16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeF32(buf *bytes.Buffer, v float32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], math.Float32bits(v))
	buf.Write(b[:])
}

func writeF64(buf *bytes.Buffer, v float64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func writeBool(buf *bytes.Buffer, v bool) {
	if v {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

// writeStr writes a one-byte length prefix followed by the string bytes.
// Strings over 255 bytes are clamped to the prefix's range.
func writeStr(buf *bytes.Buffer, s string) {
	if len(s) > 255 {
		s = s[:255]
	}
	buf.WriteByte(byte(len(s)))
	buf.WriteString(s)
}

// reader is a failure-latching cursor over the content bytes. After any
// short read every subsequent read reports zero values; callers check
// failed once at the end instead of after every field.
type reader struct {
	data   []byte
	pos    int
	failed bool
}

func (r *reader) take(n int) []byte {
	if r.failed || r.pos+n > len(r.data) {
		r.failed = true
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *reader) bytes(dst []byte) {
	if b := r.take(len(dst)); b != nil {
		copy(dst, b)
	}
}

func (r *reader) u8() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) bool() bool { return r.u8() != 0 }

func (r *reader) u16() uint16 {
	if b := r.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (r *reader) f32() float32 {
	if b := r.take(4); b != nil {
		return math.Float32frombits(binary.LittleEndian.Uint32(b))
	}
	return 0
}

func (r *reader) f64() float64 {
	if b := r.take(8); b != nil {
		return math.Float64frombits(binary.LittleEndian.Uint64(b))
	}
	return 0
}

func (r *reader) str() string {
	n := int(r.u8())
	if b := r.take(n); b != nil {
		return string(b)
	}
	return ""
}
