// Package app wires the caches together from a resolved config: the asset
// index, the native backend, the texture, effect, font and surface caches
// and the device manager that resets them.
package app

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"

	"gpu-resource-cache/internal/asset"
	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/backend/gpu"
	"gpu-resource-cache/internal/backend/soft"
	"gpu-resource-cache/internal/config"
	"gpu-resource-cache/internal/device"
	"gpu-resource-cache/internal/effect"
	"gpu-resource-cache/internal/font"
	"gpu-resource-cache/internal/logging"
	"gpu-resource-cache/internal/resource"
	"gpu-resource-cache/internal/surface"
	"gpu-resource-cache/internal/texture"
	"gpu-resource-cache/internal/watch"
)

// AssetExts are the indexed file types, in stem priority order: OZT before
// OZJ keeps the alpha channel when both exist.
var AssetExts = []string{
	".ozt", ".ozj", ".png", ".tga", ".jpg", ".jpeg", ".bmp", ".gif", ".webp",
	".atlas", ".txt", ".wgsl", ".ttf", ".otf",
}

// Native is what a backend provides to the caches.
type Native interface {
	NewTexture(label string, img *image.NRGBA) (resource.Resettable, error)
	NewSurface(label string, kind backend.SurfaceKind, width, height int) (resource.Resettable, error)
	NewShaderModule(label string, code backend.ShaderCode) (resource.Resettable, error)
}

// App holds every cache built from one config.
type App struct {
	Config   config.Config
	Index    *asset.Index
	Native   Native
	Device   *device.Manager
	Textures *texture.Cache
	Effects  *effect.Cache
	Fonts    *font.Cache
	Surfaces *surface.Cache

	log     *slog.Logger
	release func()
	watcher *watch.Watcher
}

// Open builds the caches and registers the placeholder texture. cfg must
// already be resolved.
func Open(cfg config.Config, log *slog.Logger) (*App, error) {
	log = logging.OrNop(log)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	format, err := backend.ParsePixelFormat(cfg.PixelFormat)
	if err != nil {
		return nil, err
	}
	idx, err := asset.BuildIndex(os.DirFS(cfg.AssetDir), AssetExts...)
	if err != nil {
		return nil, err
	}
	log.Info("assets indexed", "dir", cfg.AssetDir, "files", idx.Len())

	a := &App{Config: cfg, Index: idx, Device: device.New(log), log: log, release: func() {}}
	switch cfg.Backend {
	case config.BackendWGPU:
		dev, err := gpu.New(format, gpu.Options{Logger: log})
		if err != nil {
			return nil, err
		}
		a.Native = dev
		a.release = dev.Release
		// The device goes first so it is released last and restored first.
		a.Device.Register("gpu", dev)
	default:
		a.Native = soft.New(format)
	}

	a.Textures = texture.New(texture.Options{
		Source:  idx,
		Factory: a.Native,
		Async:   cfg.AsyncLoading,
		Logger:  log.With("cache", "texture"),
	})
	a.Effects = effect.New(effect.Options{
		Source:   idx,
		Factory:  a.Native,
		Validate: true,
		Logger:   log.With("cache", "effect"),
	})
	a.Fonts = font.New(idx, log.With("cache", "font"))
	a.Surfaces = surface.New(a.Native, log.With("cache", "surface"))

	a.Device.Register("textures", a.Textures)
	a.Device.Register("effects", a.Effects)
	a.Device.Register("fonts", a.Fonts)
	a.Device.Register("surfaces", a.Surfaces)

	if _, err := a.Textures.RegisterPlaceholder(cfg.Placeholder); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// LoadAtlases loads the configured atlas list, if any.
func (a *App) LoadAtlases() error {
	if a.Config.AtlasList == "" {
		return nil
	}
	return a.Textures.LoadAtlases(a.Config.AtlasList)
}

// Update applies background loads and queued reloads.
func (a *App) Update() error {
	return a.Textures.Update()
}

// Watch starts reloading textures when files under the asset directory
// change. Changes are applied by Update.
func (a *App) Watch() error {
	if a.watcher != nil {
		return nil
	}
	w, err := watch.New(a.Config.AssetDir, a.Index, a.log.With("component", "watch"))
	if err != nil {
		return err
	}
	w.Notify(a.Textures)
	w.Start()
	a.watcher = w
	return nil
}

// Snapshot records the identity of every texture: id, name, size and
// atlas coordinates.
type Snapshot map[int]string

// TakeSnapshot captures the current texture identities.
func (a *App) TakeSnapshot() Snapshot {
	s := make(Snapshot)
	for id := 1; ; id++ {
		h, err := a.Textures.GetByID(id)
		if err != nil {
			return s
		}
		d := h.Descriptor()
		s[id] = fmt.Sprintf("%s %dx%d %s", h.Name(), d.Width(), d.Height(), d.Coords())
	}
}

// ErrIdentityChanged is returned by VerifyReset when a texture's identity
// did not survive the reset.
var ErrIdentityChanged = errors.New("app: identity changed across reset")

// VerifyReset runs a full device reset and checks that every texture kept
// its id, name, size and coordinates.
func (a *App) VerifyReset() error {
	before := a.TakeSnapshot()
	if err := a.Device.Reset(); err != nil {
		return err
	}
	after := a.TakeSnapshot()
	for id, want := range before {
		if got := after[id]; got != want {
			return fmt.Errorf("%w: id %d was %q, now %q", ErrIdentityChanged, id, want, got)
		}
	}
	return nil
}

// Close stops the watcher and releases every cache and the backend. It
// may be called more than once.
func (a *App) Close() {
	if a.watcher != nil {
		_ = a.watcher.Close()
		a.watcher = nil
	}
	a.Textures.Close()
	a.Effects.Close()
	a.Fonts.Close()
	a.Surfaces.Close()
	a.release()
	a.release = func() {}
}
