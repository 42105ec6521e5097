package gpu

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/resource"
)

// Surface is a depth buffer or color render target.
type Surface struct {
	dev    *Device
	label  string
	kind   backend.SurfaceKind
	width  uint32
	height uint32
	tex    *wgpu.Texture
	view   *wgpu.TextureView
}

// NewSurface creates a width×height surface.
func (d *Device) NewSurface(label string, kind backend.SurfaceKind, width, height int) (resource.Resettable, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("gpu: surface %s: invalid size %dx%d", label, width, height)
	}
	s := &Surface{dev: d, label: label, kind: kind, width: uint32(width), height: uint32(height)}
	if err := s.create(); err != nil {
		return nil, fmt.Errorf("gpu: surface %s: %w", label, err)
	}
	return s, nil
}

func (s *Surface) create() error {
	dev, _, err := s.dev.current()
	if err != nil {
		return err
	}
	format := wgpu.TextureFormatDepth24Plus
	usage := wgpu.TextureUsageRenderAttachment
	if s.kind == backend.RenderTarget {
		format = s.dev.texFmt
		usage |= wgpu.TextureUsageTextureBinding
	}
	tex, err := dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         s.label,
		Size:          wgpu.Extent3D{Width: s.width, Height: s.height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     wgpu.TextureDimension2D,
		Format:        format,
		Usage:         usage,
	})
	if err != nil {
		return err
	}
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return err
	}
	s.tex, s.view = tex, view
	return nil
}

// View returns the attachment view, nil while discarded.
func (s *Surface) View() *wgpu.TextureView { return s.view }

func (s *Surface) Dispose() { s.PreReset() }

func (s *Surface) PreReset() {
	if s.tex == nil {
		return
	}
	s.view.Release()
	s.tex.Release()
	s.view, s.tex = nil, nil
}

func (s *Surface) PostReset() error {
	if s.tex != nil {
		return nil
	}
	if err := s.create(); err != nil {
		return fmt.Errorf("gpu: recreate surface %s: %w", s.label, err)
	}
	return nil
}

// Shader is a shader module built from WGSL.
type Shader struct {
	dev    *Device
	label  string
	code   string
	module *wgpu.ShaderModule
}

// NewShaderModule creates a module from the WGSL form of code.
func (d *Device) NewShaderModule(label string, code backend.ShaderCode) (resource.Resettable, error) {
	if code.WGSL == "" {
		return nil, fmt.Errorf("gpu: shader %s: no WGSL source", label)
	}
	s := &Shader{dev: d, label: label, code: code.WGSL}
	if err := s.create(); err != nil {
		return nil, fmt.Errorf("gpu: shader %s: %w", label, err)
	}
	return s, nil
}

func (s *Shader) create() error {
	dev, _, err := s.dev.current()
	if err != nil {
		return err
	}
	m, err := dev.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label: s.label,
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{
			Code: s.code,
		},
	})
	if err != nil {
		return err
	}
	s.module = m
	return nil
}

// Module returns the shader module, nil while discarded.
func (s *Shader) Module() *wgpu.ShaderModule { return s.module }

func (s *Shader) Dispose() { s.PreReset() }

func (s *Shader) PreReset() {
	if s.module == nil {
		return
	}
	s.module.Release()
	s.module = nil
}

func (s *Shader) PostReset() error {
	if s.module != nil {
		return nil
	}
	if err := s.create(); err != nil {
		return fmt.Errorf("gpu: recreate shader %s: %w", s.label, err)
	}
	return nil
}
