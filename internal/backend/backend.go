// Package backend holds the types shared by the native backends: pixel
// formats, surface kinds and the errors they report.
package backend

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrUnsupportedFormat is returned when a backend cannot create native
	// state in the requested pixel format.
	ErrUnsupportedFormat = errors.New("backend: unsupported pixel format")

	// ErrDeviceLost is returned when native state is created while the
	// device is unavailable.
	ErrDeviceLost = errors.New("backend: device lost")
)

// PixelFormat is the native texel layout textures are created in.
type PixelFormat uint8

const (
	RGBA8 PixelFormat = iota
	BGRA8
	RGBA8SRGB
)

func (f PixelFormat) String() string {
	switch f {
	case RGBA8:
		return "rgba8"
	case BGRA8:
		return "bgra8"
	case RGBA8SRGB:
		return "rgba8-srgb"
	default:
		return fmt.Sprintf("PixelFormat(%d)", f)
	}
}

// ParsePixelFormat parses the names used in config files.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "rgba8":
		return RGBA8, nil
	case "bgra8":
		return BGRA8, nil
	case "rgba8-srgb", "rgba8srgb":
		return RGBA8SRGB, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// SurfaceKind distinguishes depth buffers from color render targets.
type SurfaceKind uint8

const (
	Depth SurfaceKind = iota
	RenderTarget
)

func (k SurfaceKind) String() string {
	if k == RenderTarget {
		return "render-target"
	}
	return "depth"
}

// ShaderCode is a shader in the forms the backends consume. Backends that
// take WGSL directly ignore SPIRV, and the reverse.
type ShaderCode struct {
	WGSL  string
	SPIRV []byte
}
