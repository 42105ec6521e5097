// Package soft is a CPU backend. Native state lives in Go memory, which
// makes it usable headless (tools, tests) while following exactly the
// same reset contract as a GPU backend.
package soft

import (
	"fmt"
	"image"
	"sync"

	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/resource"
)

// Device owns every native object it created and can simulate loss.
type Device struct {
	format backend.PixelFormat

	mu      sync.Mutex
	lost    bool
	live    int
	created int
}

// New creates a device that stores textures in format.
func New(format backend.PixelFormat) *Device {
	return &Device{format: format}
}

func (d *Device) Format() backend.PixelFormat { return d.format }

// Lose marks the device unavailable; creating native state fails until
// Restore.
func (d *Device) Lose() {
	d.mu.Lock()
	d.lost = true
	d.mu.Unlock()
}

// Restore makes the device available again.
func (d *Device) Restore() {
	d.mu.Lock()
	d.lost = false
	d.mu.Unlock()
}

// Live returns the number of native objects currently allocated.
func (d *Device) Live() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.live
}

// Created returns how many native allocations were ever made, including
// recreations after a reset.
func (d *Device) Created() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created
}

func (d *Device) alloc() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lost {
		return backend.ErrDeviceLost
	}
	d.live++
	d.created++
	return nil
}

func (d *Device) free() {
	d.mu.Lock()
	d.live--
	d.mu.Unlock()
}

// Texture is a texture whose native copy is a byte slice in the device
// format. The decoded source image is kept to recreate it after a reset.
type Texture struct {
	dev   *Device
	label string
	src   *image.NRGBA
	pix   []byte
}

// NewTexture uploads img. It fails with backend.ErrUnsupportedFormat when
// the device format cannot be produced on the CPU.
func (d *Device) NewTexture(label string, img *image.NRGBA) (resource.Resettable, error) {
	switch d.format {
	case backend.RGBA8, backend.BGRA8:
	default:
		return nil, fmt.Errorf("soft: texture %s: %w: %s", label, backend.ErrUnsupportedFormat, d.format)
	}
	t := &Texture{dev: d, label: label, src: img}
	if err := t.upload(); err != nil {
		return nil, fmt.Errorf("soft: texture %s: %w", label, err)
	}
	return t, nil
}

func (t *Texture) upload() error {
	if err := t.dev.alloc(); err != nil {
		return err
	}
	b := t.src.Bounds()
	pix := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := t.src.Pix[t.src.PixOffset(b.Min.X, y):t.src.PixOffset(b.Max.X, y)]
		pix = append(pix, row...)
	}
	if t.dev.format == backend.BGRA8 {
		for i := 0; i+3 < len(pix); i += 4 {
			pix[i], pix[i+2] = pix[i+2], pix[i]
		}
	}
	t.pix = pix
	return nil
}

func (t *Texture) Label() string { return t.label }

// Image returns the decoded source image.
func (t *Texture) Image() *image.NRGBA { return t.src }

// Pixels returns the native texels, nil while discarded.
func (t *Texture) Pixels() []byte { return t.pix }

// Resident reports whether native texels are allocated.
func (t *Texture) Resident() bool { return t.pix != nil }

func (t *Texture) Dispose() {
	t.PreReset()
	t.src = nil
}

func (t *Texture) PreReset() {
	if t.pix == nil {
		return
	}
	t.pix = nil
	t.dev.free()
}

func (t *Texture) PostReset() error {
	if t.pix != nil {
		return nil
	}
	if t.src == nil {
		return fmt.Errorf("soft: texture %s was disposed", t.label)
	}
	if err := t.upload(); err != nil {
		return fmt.Errorf("soft: recreate texture %s: %w", t.label, err)
	}
	return nil
}
