// Package gpu is the WebGPU backend. Native textures, surfaces and shader
// modules are created on a wgpu device; the device itself takes part in
// the reset protocol and is re-requested from the adapter on restore.
package gpu

import (
	"fmt"
	"image"
	"log/slog"
	"sync"

	"github.com/cogentcore/webgpu/wgpu"

	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/logging"
	"gpu-resource-cache/internal/resource"
)

// Options configures device creation.
type Options struct {
	// ForceFallbackAdapter selects the software adapter, for headless use.
	ForceFallbackAdapter bool
	Logger               *slog.Logger
}

// Device wraps a wgpu device and queue.
type Device struct {
	format   backend.PixelFormat
	texFmt   wgpu.TextureFormat
	fallback bool
	log      *slog.Logger

	mu       sync.Mutex
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue
}

func textureFormat(f backend.PixelFormat) (wgpu.TextureFormat, error) {
	switch f {
	case backend.RGBA8:
		return wgpu.TextureFormatRGBA8Unorm, nil
	case backend.BGRA8:
		return wgpu.TextureFormatBGRA8Unorm, nil
	case backend.RGBA8SRGB:
		return wgpu.TextureFormatRGBA8UnormSrgb, nil
	}
	return 0, fmt.Errorf("gpu: %w: %s", backend.ErrUnsupportedFormat, f)
}

// New requests an adapter and a device.
func New(format backend.PixelFormat, opts Options) (*Device, error) {
	tf, err := textureFormat(format)
	if err != nil {
		return nil, err
	}
	d := &Device{
		format:   format,
		texFmt:   tf,
		fallback: opts.ForceFallbackAdapter,
		log:      logging.OrNop(opts.Logger),
	}
	if err := d.open(); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Device) open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device != nil {
		return nil
	}
	if d.instance == nil {
		d.instance = wgpu.CreateInstance(nil)
	}
	a, err := d.instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		ForceFallbackAdapter: d.fallback,
	})
	if err != nil {
		return fmt.Errorf("gpu: request adapter: %w", err)
	}
	dev, err := a.RequestDevice(&wgpu.DeviceDescriptor{
		Label: "resource cache device",
		RequiredLimits: &wgpu.RequiredLimits{
			Limits: wgpu.DefaultLimits(),
		},
	})
	if err != nil {
		a.Release()
		return fmt.Errorf("gpu: request device: %w", err)
	}
	d.adapter = a
	d.device = dev
	d.queue = dev.GetQueue()
	d.log.Info("gpu device ready", "format", d.format, "fallback", d.fallback)
	return nil
}

// Format returns the pixel format textures are created in.
func (d *Device) Format() backend.PixelFormat { return d.format }

// PreReset releases the device. Every object created from it must have
// been released first.
func (d *Device) PreReset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return
	}
	d.device.Release()
	d.adapter.Release()
	d.queue, d.device, d.adapter = nil, nil, nil
	d.log.Info("gpu device released")
}

// PostReset requests a new device.
func (d *Device) PostReset() error { return d.open() }

// Release tears the device and instance down for good.
func (d *Device) Release() {
	d.PreReset()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.instance != nil {
		d.instance.Release()
		d.instance = nil
	}
}

func (d *Device) current() (*wgpu.Device, *wgpu.Queue, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.device == nil {
		return nil, nil, backend.ErrDeviceLost
	}
	return d.device, d.queue, nil
}

// packed returns img's texels tightly packed in the device format.
func (d *Device) packed(img *image.NRGBA) []byte {
	b := img.Bounds()
	pix := make([]byte, 0, b.Dx()*b.Dy()*4)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		pix = append(pix, img.Pix[img.PixOffset(b.Min.X, y):img.PixOffset(b.Max.X, y)]...)
	}
	if d.format == backend.BGRA8 {
		for i := 0; i+3 < len(pix); i += 4 {
			pix[i], pix[i+2] = pix[i+2], pix[i]
		}
	}
	return pix
}

// Texture is a sampled 2D texture. The decoded image is kept for
// re-upload after a reset.
type Texture struct {
	dev   *Device
	label string
	src   *image.NRGBA
	tex   *wgpu.Texture
	view  *wgpu.TextureView
}

// NewTexture creates and uploads a texture.
func (d *Device) NewTexture(label string, img *image.NRGBA) (resource.Resettable, error) {
	t := &Texture{dev: d, label: label, src: img}
	if err := t.upload(); err != nil {
		return nil, fmt.Errorf("gpu: texture %s: %w", label, err)
	}
	return t, nil
}

func (t *Texture) upload() error {
	dev, queue, err := t.dev.current()
	if err != nil {
		return err
	}
	w, h := uint32(t.src.Rect.Dx()), uint32(t.src.Rect.Dy())
	size := wgpu.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	tex, err := dev.CreateTexture(&wgpu.TextureDescriptor{
		Label:         t.label,
		Usage:         wgpu.TextureUsageTextureBinding | wgpu.TextureUsageCopyDst,
		Dimension:     wgpu.TextureDimension2D,
		Size:          size,
		Format:        t.dev.texFmt,
		MipLevelCount: 1,
		SampleCount:   1,
	})
	if err != nil {
		return err
	}
	queue.WriteTexture(
		&wgpu.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   wgpu.Origin3D{},
			Aspect:   wgpu.TextureAspectAll,
		},
		t.dev.packed(t.src),
		&wgpu.TextureDataLayout{
			Offset:       0,
			BytesPerRow:  w * 4,
			RowsPerImage: h,
		},
		&size,
	)
	view, err := tex.CreateView(nil)
	if err != nil {
		tex.Release()
		return err
	}
	t.tex, t.view = tex, view
	return nil
}

// View returns the texture view, nil while discarded.
func (t *Texture) View() *wgpu.TextureView { return t.view }

func (t *Texture) Dispose() {
	t.PreReset()
	t.src = nil
}

func (t *Texture) PreReset() {
	if t.tex == nil {
		return
	}
	t.view.Release()
	t.tex.Release()
	t.view, t.tex = nil, nil
}

func (t *Texture) PostReset() error {
	if t.tex != nil {
		return nil
	}
	if t.src == nil {
		return fmt.Errorf("gpu: texture %s was disposed", t.label)
	}
	if err := t.upload(); err != nil {
		return fmt.Errorf("gpu: recreate texture %s: %w", t.label, err)
	}
	return nil
}
