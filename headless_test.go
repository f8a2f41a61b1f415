package marionette

import (
	"errors"
	"strings"
	"testing"
)

func TestDecodeRoundTrip(t *testing.T) {
	def := testFileDef()
	got, err := DecodeFile(def.Encode())
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}

	if len(got.Artboards) != 1 || got.Artboards[0].Name != "hero" {
		t.Fatalf("artboards = %+v", got.Artboards)
	}
	ab := got.Artboards[0]
	if ab.Width != 50 || ab.Height != 50 || ab.Color != [4]byte{255, 0, 0, 255} {
		t.Errorf("artboard geometry = %+v", ab)
	}
	if len(ab.Machines) != 1 || len(ab.Machines[0].Inputs) != 3 || len(ab.Machines[0].Tracks) != 1 {
		t.Fatalf("machine shape = %+v", ab.Machines)
	}
	track := ab.Machines[0].Tracks[0]
	if track.Property != "progress" || track.Duration != 1 || track.Gate != "active" {
		t.Errorf("track = %+v", track)
	}
	if len(got.ViewModels) != 1 || len(got.ViewModels[0].Properties) != 2 {
		t.Fatalf("view models = %+v", got.ViewModels)
	}
	if v := got.ViewModels[0].Properties[1].Value; v.Kind != PropertyString || v.Str != "ready" {
		t.Errorf("string property = %+v", v)
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := testFileBytes()

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, ErrMalformedResource},
		{"bad magic", []byte("XXXX\x01\x00"), ErrMalformedResource},
		{"version zero", []byte("MRNT\x00\x00"), ErrMalformedResource},
		{"future version", []byte("MRNT\x02\x00"), ErrUnsupportedVersion},
		{"truncated", valid[:len(valid)/2], ErrMalformedResource},
		{"trailing bytes", append(append([]byte{}, valid...), 0xff), ErrMalformedResource},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeFile(tc.data); !errors.Is(err, tc.want) {
				t.Fatalf("DecodeFile = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeRejectsBadTrack(t *testing.T) {
	def := testFileDef()
	def.Artboards[0].Machines[0].Tracks[0].Duration = 0
	if _, err := DecodeFile(def.Encode()); !errors.Is(err, ErrMalformedResource) {
		t.Fatalf("zero duration = %v, want ErrMalformedResource", err)
	}

	def = testFileDef()
	def.Artboards[0].Machines[0].Tracks[0].Ease = 200
	if _, err := DecodeFile(def.Encode()); !errors.Is(err, ErrMalformedResource) {
		t.Fatalf("unknown ease = %v, want ErrMalformedResource", err)
	}

	def = testFileDef()
	def.Artboards[0].Machines[0].Inputs[0].Kind = 200
	if _, err := DecodeFile(def.Encode()); !errors.Is(err, ErrMalformedResource) {
		t.Fatalf("unknown input kind = %v, want ErrMalformedResource", err)
	}
}

// Strings beyond the format's one-byte length prefix are clamped to 255
// bytes at encode; the result still round-trips cleanly.
func TestEncodeClampsLongNames(t *testing.T) {
	long := strings.Repeat("n", 300)
	def := testFileDef()
	def.Artboards[0].Name = long

	got, err := DecodeFile(def.Encode())
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if name := got.Artboards[0].Name; name != long[:255] {
		t.Fatalf("decoded name %d bytes, want first 255", len(name))
	}
}

// Loading the same bytes twice yields independent but identical files.
func TestLoadFileDeterministic(t *testing.T) {
	b := NewHeadlessBackend()
	data := testFileBytes()

	for i := 0; i < 3; i++ {
		file, err := b.LoadFile(data)
		if err != nil {
			t.Fatalf("LoadFile %d: %v", i, err)
		}
		if got := file.ArtboardCount(); got != 1 {
			t.Fatalf("ArtboardCount %d = %d, want 1", i, got)
		}
		file.Release()
	}
}

func newTestMachine(t *testing.T) NativeStateMachine {
	t.Helper()
	b := NewHeadlessBackend()
	file, err := b.LoadFile(testFileBytes())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	artboard, err := file.Artboard("")
	if err != nil {
		t.Fatalf("Artboard: %v", err)
	}
	machine, err := artboard.StateMachine("")
	if err != nil {
		t.Fatalf("StateMachine: %v", err)
	}
	return machine
}

func TestMachineAdvanceLinearTrack(t *testing.T) {
	m := newTestMachine(t)

	changes := m.Advance(0.5)
	if len(changes) != 1 || changes[0].Property != "progress" {
		t.Fatalf("changes = %+v", changes)
	}
	assertNear(t, "progress at 0.5s", float32(changes[0].Value.Number), 0.5)

	changes = m.Advance(0.25)
	assertNear(t, "progress at 0.75s", float32(changes[0].Value.Number), 0.75)
}

// A finished one-shot track reports its final value once, then goes quiet.
func TestMachineFinishedTrackGoesQuiet(t *testing.T) {
	m := newTestMachine(t)

	changes := m.Advance(2)
	if len(changes) != 1 {
		t.Fatalf("changes at finish = %+v", changes)
	}
	assertNear(t, "final value", float32(changes[0].Value.Number), 1)

	if changes = m.Advance(1); len(changes) != 0 {
		t.Fatalf("changes after finish = %+v", changes)
	}
}

func TestMachineGateSuppressesTrack(t *testing.T) {
	m := newTestMachine(t)

	if err := m.SetBool("active", false); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	if changes := m.Advance(0.5); len(changes) != 0 {
		t.Fatalf("gated track advanced: %+v", changes)
	}

	if err := m.SetBool("active", true); err != nil {
		t.Fatalf("SetBool: %v", err)
	}
	changes := m.Advance(0.5)
	if len(changes) != 1 {
		t.Fatalf("ungated track silent: %+v", changes)
	}
	assertNear(t, "progress after gate opens", float32(changes[0].Value.Number), 0.5)
}

func TestMachineSpeedScalesTime(t *testing.T) {
	m := newTestMachine(t)

	if err := m.SetNumber("speed", 2); err != nil {
		t.Fatalf("SetNumber: %v", err)
	}
	changes := m.Advance(0.25)
	assertNear(t, "progress at double speed", float32(changes[0].Value.Number), 0.5)
}

func TestMachineTriggerRestartsTracks(t *testing.T) {
	m := newTestMachine(t)

	m.Advance(2) // run to completion
	if err := m.FireTrigger("restart"); err != nil {
		t.Fatalf("FireTrigger: %v", err)
	}
	changes := m.Advance(0.25)
	if len(changes) != 1 {
		t.Fatalf("changes after restart = %+v", changes)
	}
	assertNear(t, "progress after restart", float32(changes[0].Value.Number), 0.25)
}

func TestMachineUnknownInputs(t *testing.T) {
	m := newTestMachine(t)

	if err := m.SetBool("nope", true); err == nil {
		t.Error("unknown bool input accepted")
	}
	if err := m.SetNumber("nope", 1); err == nil {
		t.Error("unknown number input accepted")
	}
	if err := m.FireTrigger("nope"); err == nil {
		t.Error("unknown trigger accepted")
	}
}

func TestLoopingTrackWraps(t *testing.T) {
	def := testFileDef()
	def.Artboards[0].Machines[0].Tracks[0].Loop = true
	def.Artboards[0].Machines[0].Tracks[0].Gate = ""

	b := NewHeadlessBackend()
	file, err := b.LoadFile(def.Encode())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	artboard, _ := file.Artboard("")
	m, _ := artboard.StateMachine("")

	m.Advance(1.5) // finishes and resets
	changes := m.Advance(0.25)
	if len(changes) != 1 {
		t.Fatalf("looped track silent: %+v", changes)
	}
	assertNear(t, "progress after wrap", float32(changes[0].Value.Number), 0.25)
}

func TestViewModelDefaultsAndUnknowns(t *testing.T) {
	b := NewHeadlessBackend()
	file, err := b.LoadFile(testFileBytes())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	vm, err := file.ViewModel("hud")
	if err != nil {
		t.Fatalf("ViewModel: %v", err)
	}

	if v, err := vm.Property("score"); err != nil || v.Number != 0 {
		t.Errorf("default score = %+v, %v", v, err)
	}
	if _, err := vm.Property("missing"); err == nil {
		t.Error("unknown property read succeeded")
	}
	// Writes may create properties; bound machines rely on this.
	if err := vm.SetProperty("fresh", BoolValue(true)); err != nil {
		t.Errorf("SetProperty fresh: %v", err)
	}
	if v, err := vm.Property("fresh"); err != nil || !v.Bool {
		t.Errorf("fresh after write = %+v, %v", v, err)
	}
}

func TestFileMissingNames(t *testing.T) {
	b := NewHeadlessBackend()
	file, err := b.LoadFile(testFileBytes())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if _, err := file.Artboard("villain"); !errors.Is(err, ErrMalformedResource) {
		t.Errorf("missing artboard = %v", err)
	}
	if _, err := file.ViewModel("missing"); !errors.Is(err, ErrMalformedResource) {
		t.Errorf("missing view model = %v", err)
	}
	artboard, _ := file.Artboard("")
	if _, err := artboard.StateMachine("missing"); !errors.Is(err, ErrMalformedResource) {
		t.Errorf("missing machine = %v", err)
	}
}

func TestSurfaceDrawFillsQuad(t *testing.T) {
	b := NewHeadlessBackend()
	file, err := b.LoadFile(testFileBytes())
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	artboard, _ := file.Artboard("")
	surface, err := b.CreateSurface(100, 100)
	if err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}

	// Translate the 50x50 display quad to (20, 30).
	transform := [6]float32{1, 0, 0, 1, 20, 30}
	if err := surface.Draw(artboard, transform, 50, 50); err != nil {
		t.Fatalf("Draw: %v", err)
	}

	pix := surface.ReadPixels()
	at := func(x, y int) []byte { i := 4 * (y*100 + x); return pix[i : i+4] }

	if got := at(25, 35); got[0] != 255 || got[3] != 255 {
		t.Errorf("inside quad = %v, want opaque red", got)
	}
	if got := at(10, 10); got[3] != 0 {
		t.Errorf("outside quad = %v, want transparent", got)
	}
	if got := at(75, 85); got[3] != 0 {
		t.Errorf("past quad = %v, want transparent", got)
	}

	// ReadPixels returns a copy: mutating it leaves the surface intact.
	in := 4 * (35*100 + 25) // a red in-quad pixel
	pix[in] = 0
	if again := surface.ReadPixels(); again[in] != 255 {
		t.Error("ReadPixels aliases surface memory")
	}
}

func TestSurfaceRejectsBadSize(t *testing.T) {
	b := NewHeadlessBackend()
	if _, err := b.CreateSurface(0, 10); err == nil {
		t.Error("zero width accepted")
	}
	if _, err := b.CreateSurface(10, -1); err == nil {
		t.Error("negative height accepted")
	}
}
