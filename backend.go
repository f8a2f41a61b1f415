package marionette

// PropertyKind tags a PropertyValue.
type PropertyKind uint8

const (
	PropertyNumber PropertyKind = iota
	PropertyBool
	PropertyString
)

// PropertyValue is a tagged union of the value types an engine property
// can hold. A single flat struct is used instead of an interface to keep
// property updates allocation-free on the publish path.
type PropertyValue struct {
	Kind   PropertyKind
	Number float64
	Bool   bool
	Str    string
}

// NumberValue wraps a float64 as a PropertyValue.
func NumberValue(v float64) PropertyValue {
	return PropertyValue{Kind: PropertyNumber, Number: v}
}

// BoolValue wraps a bool as a PropertyValue.
func BoolValue(v bool) PropertyValue {
	return PropertyValue{Kind: PropertyBool, Bool: v}
}

// StringValue wraps a string as a PropertyValue.
func StringValue(v string) PropertyValue {
	return PropertyValue{Kind: PropertyString, Str: v}
}

// PropertyChange records one observable property mutation produced while
// executing a command. The worker publishes changes to the subscription
// bus after the producing command completes.
type PropertyChange struct {
	Property string
	Value    PropertyValue
}

// Backend is the narrow per-platform native binding. The worker goroutine
// is the only caller of every method here and on the returned objects;
// implementations need no internal locking.
//
// All returned objects are owned by the queue's handle registry until
// their Release method is called.
type Backend interface {
	// LoadFile parses content bytes into a native file. Structurally
	// broken content fails with ErrMalformedResource (wrapped); content
	// newer than the backend supports fails with ErrUnsupportedVersion.
	LoadFile(data []byte) (NativeFile, error)

	// CreateSurface allocates a render surface of the given pixel size.
	CreateSurface(width, height int) (NativeSurface, error)

	// Release frees the native engine context. Called exactly once, after
	// the last command has executed.
	Release()
}

// NativeFile is a loaded content file.
type NativeFile interface {
	// ArtboardCount reports how many artboards the file contains.
	ArtboardCount() int

	// Artboard instantiates the named artboard; "" selects the default
	// (first) artboard. Unknown names fail with ErrMalformedResource.
	Artboard(name string) (NativeArtboard, error)

	// ViewModel instantiates the named view model; "" selects the default.
	ViewModel(name string) (NativeViewModel, error)

	Release()
}

// NativeArtboard is an instanced artboard.
type NativeArtboard interface {
	// Bounds returns the artboard's natural size in its own units.
	Bounds() (width, height float32)

	// StateMachine instantiates the named state machine; "" selects the
	// default (first) machine.
	StateMachine(name string) (NativeStateMachine, error)

	Release()
}

// NativeStateMachine is an instanced state machine driving an artboard.
type NativeStateMachine interface {
	SetBool(name string, value bool) error
	SetNumber(name string, value float64) error
	FireTrigger(name string) error

	// Advance steps the machine by dt seconds and returns the properties
	// it mutated, in the order they were mutated.
	Advance(dt float32) []PropertyChange

	// Bind attaches a view-model instance; animated properties are written
	// through to it on every Advance. A nil instance unbinds.
	Bind(vm NativeViewModel)

	Release()
}

// NativeViewModel is an instanced view model: a bag of typed, named
// properties that state machines can bind to.
type NativeViewModel interface {
	SetProperty(name string, value PropertyValue) error
	Property(name string) (PropertyValue, error)
	Release()
}

// NativeSurface is a render target owned by the backend.
type NativeSurface interface {
	// Size returns the surface dimensions in pixels.
	Size() (width, height int)

	// Clear resets the surface to fully transparent.
	Clear()

	// Draw renders one artboard with the given affine transform
	// [a, b, c, d, tx, ty], scaled to the target display size.
	Draw(artboard NativeArtboard, transform [6]float32, width, height float32) error

	// ReadPixels copies the surface contents as RGBA bytes, row-major.
	ReadPixels() []byte

	Release()
}
