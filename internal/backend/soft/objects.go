package soft

import (
	"fmt"

	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/resource"
)

// Surface is a depth buffer or render target.
type Surface struct {
	dev    *Device
	label  string
	kind   backend.SurfaceKind
	width  int
	height int
	buf    []byte
}

// NewSurface allocates a width×height surface.
func (d *Device) NewSurface(label string, kind backend.SurfaceKind, width, height int) (resource.Resettable, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("soft: surface %s: invalid size %dx%d", label, width, height)
	}
	s := &Surface{dev: d, label: label, kind: kind, width: width, height: height}
	if err := s.alloc(); err != nil {
		return nil, fmt.Errorf("soft: surface %s: %w", label, err)
	}
	return s, nil
}

func (s *Surface) alloc() error {
	if err := s.dev.alloc(); err != nil {
		return err
	}
	// 32-bit depth or RGBA8 color, four bytes either way.
	s.buf = make([]byte, s.width*s.height*4)
	return nil
}

func (s *Surface) Kind() backend.SurfaceKind { return s.kind }
func (s *Surface) Size() (int, int)         { return s.width, s.height }
func (s *Surface) Resident() bool           { return s.buf != nil }

func (s *Surface) Dispose() { s.PreReset() }

func (s *Surface) PreReset() {
	if s.buf == nil {
		return
	}
	s.buf = nil
	s.dev.free()
}

func (s *Surface) PostReset() error {
	if s.buf != nil {
		return nil
	}
	if err := s.alloc(); err != nil {
		return fmt.Errorf("soft: recreate surface %s: %w", s.label, err)
	}
	return nil
}

// Shader is a shader module holding a copy of its SPIR-V words.
type Shader struct {
	dev    *Device
	label  string
	code   []byte
	module []byte
}

// NewShaderModule creates a module from compiled SPIR-V.
func (d *Device) NewShaderModule(label string, code backend.ShaderCode) (resource.Resettable, error) {
	if n := len(code.SPIRV); n == 0 || n%4 != 0 {
		return nil, fmt.Errorf("soft: shader %s: SPIR-V length %d is not a whole number of words", label, n)
	}
	s := &Shader{dev: d, label: label, code: code.SPIRV}
	if err := s.alloc(); err != nil {
		return nil, fmt.Errorf("soft: shader %s: %w", label, err)
	}
	return s, nil
}

func (s *Shader) alloc() error {
	if err := s.dev.alloc(); err != nil {
		return err
	}
	s.module = append([]byte(nil), s.code...)
	return nil
}

func (s *Shader) Resident() bool { return s.module != nil }

// Words returns the module's SPIR-V, nil while discarded.
func (s *Shader) Words() []byte { return s.module }

func (s *Shader) Dispose() { s.PreReset() }

func (s *Shader) PreReset() {
	if s.module == nil {
		return
	}
	s.module = nil
	s.dev.free()
}

func (s *Shader) PostReset() error {
	if s.module != nil {
		return nil
	}
	if err := s.alloc(); err != nil {
		return fmt.Errorf("soft: recreate shader %s: %w", s.label, err)
	}
	return nil
}
