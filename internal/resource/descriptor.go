// Package resource holds the identity types shared by every cache: the
// descriptor of one resource, the hot-swappable handle consumers keep, the
// name/id tables and the device-reset contract native state implements.
package resource

import "fmt"

// Resettable is implemented by every piece of native (device-owned) state:
// textures, surfaces, shader modules, font faces. PreReset releases the
// native handle while keeping whatever parameters PostReset needs to
// rebuild it.
type Resettable interface {
	Dispose()
	PreReset()
	PostReset() error
}

// State is the device-reset state of a native-backed resource.
type State uint8

const (
	// Resident means the native handle is valid and usable for rendering.
	Resident State = iota
	// Discarded means the native handle is released; identity is kept.
	Discarded
	// Recreating is the transient state during PostReset.
	Recreating
)

func (s State) String() string {
	switch s {
	case Resident:
		return "Resident"
	case Discarded:
		return "Discarded"
	case Recreating:
		return "Recreating"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Kind distinguishes resources backed by a decoded asset from sub-regions
// of another resource.
type Kind uint8

const (
	Whole Kind = iota
	Derived
)

func (k Kind) String() string {
	if k == Derived {
		return "derived"
	}
	return "whole"
}

// Rect is a rectangle in the normalized [0,1] space of a backing resource.
type Rect struct {
	U0, V0 float64 // top-left
	U1, V1 float64 // bottom-right
}

// Identity covers a whole resource.
var Identity = Rect{U0: 0, V0: 0, U1: 1, V1: 1}

func (r Rect) String() string {
	return fmt.Sprintf("(%g,%g)-(%g,%g)", r.U0, r.V0, r.U1, r.V1)
}

// Descriptor is the record of one resource's geometry and native state.
// Everything except the reset state is fixed at construction; a reload
// produces a new Descriptor that is published into the same Handle.
type Descriptor struct {
	id          int
	width       int
	height      int
	coords      Rect
	kind        Kind
	placeholder bool
	native      Resettable
	backing     *Handle
	state       State
	disposed    bool
	deferred    bool
}

// NewWhole describes a resource backed by its own native state.
func NewWhole(width, height int, native Resettable) *Descriptor {
	return &Descriptor{
		width:  width,
		height: height,
		coords: Identity,
		kind:   Whole,
		native: native,
	}
}

// NewPlaceholder describes the shared fallback resource.
func NewPlaceholder(width, height int, native Resettable) *Descriptor {
	d := NewWhole(width, height, native)
	d.placeholder = true
	return d
}

// NewDeferred describes a whole resource registered while the device is
// lost. It has no native state and starts Discarded; the owning cache
// creates the native state once the device is back and publishes a
// replacement.
func NewDeferred(width, height int) *Descriptor {
	d := NewWhole(width, height, nil)
	d.state = Discarded
	d.deferred = true
	return d
}

// NewDerived describes a sub-region of backing. It owns no native state.
func NewDerived(backing *Handle, width, height int, coords Rect) *Descriptor {
	return &Descriptor{
		width:   width,
		height:  height,
		coords:  coords,
		kind:    Derived,
		backing: backing,
	}
}

// ID is the id of the handle that first published this descriptor. A
// shared placeholder keeps the placeholder handle's id.
func (d *Descriptor) ID() int { return d.id }

func (d *Descriptor) Width() int  { return d.width }
func (d *Descriptor) Height() int { return d.height }

// Coords returns the normalized rectangle within the backing resource.
func (d *Descriptor) Coords() Rect { return d.coords }

func (d *Descriptor) Kind() Kind { return d.kind }

// IsPlaceholder reports whether this is the shared fallback descriptor.
func (d *Descriptor) IsPlaceholder() bool { return d.placeholder }

// Native returns the native state, nil for derived descriptors.
func (d *Descriptor) Native() Resettable { return d.native }

// Backing returns the handle a derived descriptor slices, nil otherwise.
func (d *Descriptor) Backing() *Handle { return d.backing }

func (d *Descriptor) State() State { return d.state }

// Deferred reports whether d was created by NewDeferred and still waits
// for its native state.
func (d *Descriptor) Deferred() bool { return d.deferred && !d.disposed }

// PreReset releases native state. Resources that are not Resident are
// left alone.
func (d *Descriptor) PreReset() {
	if d.state != Resident {
		return
	}
	if d.native != nil {
		d.native.PreReset()
	}
	d.state = Discarded
}

// PostReset recreates native state released by PreReset. On failure the
// descriptor stays Recreating and a later PostReset retries.
func (d *Descriptor) PostReset() error {
	if d.state == Resident || d.disposed || d.deferred {
		return nil
	}
	d.state = Recreating
	if d.native != nil {
		if err := d.native.PostReset(); err != nil {
			return err
		}
	}
	d.state = Resident
	return nil
}

// Dispose releases native state for good. A disposed descriptor is not
// recreated.
func (d *Descriptor) Dispose() {
	if d.native != nil {
		d.native.Dispose()
		d.native = nil
	}
	d.state = Discarded
	d.disposed = true
}
