// Package texture is the texture cache: name and id lookup over hot-
// swappable handles, a placeholder for anything not yet resident, atlas
// slicing, optional background decoding and device-reset recovery.
//
// A Cache is owned by one goroutine (the render loop). Only the background
// decoder runs elsewhere, and it never touches the tables; decoded images
// are handed back and published on the owner goroutine by Update.
package texture

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"

	"gpu-resource-cache/internal/logging"
	"gpu-resource-cache/internal/resource"
)

var (
	// ErrNotFound is returned by GetByID and Reload for unknown resources.
	ErrNotFound = resource.ErrNotFound

	// ErrClosed is returned by lookups on a closed cache.
	ErrClosed = errors.New("texture: cache closed")
)

// Source resolves logical names to paths and reads them.
type Source interface {
	Lookup(name string) (string, error)
	ReadFile(path string) ([]byte, error)
}

// Factory creates native textures from decoded images. It is the seam to
// the graphics API.
type Factory interface {
	NewTexture(label string, img *image.NRGBA) (resource.Resettable, error)
}

// Options configures a Cache.
type Options struct {
	Source  Source
	Factory Factory
	// Async decodes on a background goroutine; results become visible at
	// the next Update.
	Async  bool
	Logger *slog.Logger
}

// Cache is the texture cache.
type Cache struct {
	src     Source
	factory Factory
	log     *slog.Logger

	table       *resource.Table[*resource.Handle]
	placeholder *resource.Handle
	atlases     map[string][]*resource.Handle
	backingOf   map[*resource.Handle]*resource.Handle
	byPath      map[string][]*resource.Handle // resolved asset path → whole handles
	unsubs      []func()

	worker *worker
	parked []result // synchronous loads made while the device was lost
	lost   bool
	closed bool

	reloadMu sync.Mutex
	reloads  []string
}

// New creates an empty cache. RegisterPlaceholder must be called before
// any lookup.
func New(opts Options) *Cache {
	c := &Cache{
		src:       opts.Source,
		factory:   opts.Factory,
		log:       logging.OrNop(opts.Logger),
		table:     resource.NewTable[*resource.Handle](),
		atlases:   make(map[string][]*resource.Handle),
		backingOf: make(map[*resource.Handle]*resource.Handle),
		byPath:    make(map[string][]*resource.Handle),
	}
	if opts.Async {
		c.worker = newWorker(c.decode, c.log)
	}
	return c
}

// Async reports whether loads run on the background decoder.
func (c *Cache) Async() bool { return c.worker != nil }

// RegisterPlaceholder loads the fallback texture every unready handle
// shows. It is loaded synchronously and any failure is fatal.
func (c *Cache) RegisterPlaceholder(name string) (*resource.Handle, error) {
	if c.placeholder != nil {
		if c.placeholder.Name() == name {
			return c.placeholder, nil
		}
		return nil, fmt.Errorf("texture: placeholder already registered as %s", c.placeholder.Name())
	}
	img, err := c.decode(name)
	if err != nil {
		return nil, fmt.Errorf("texture: placeholder %s: %w", name, err)
	}
	native, err := c.factory.NewTexture(name, img)
	if err != nil {
		return nil, fmt.Errorf("texture: placeholder %s: %w", name, err)
	}
	desc := resource.NewPlaceholder(img.Rect.Dx(), img.Rect.Dy(), native)
	h, err := c.table.Register(name, func(id int) *resource.Handle {
		return resource.NewHandle(id, name, resource.Whole, desc)
	})
	if err != nil {
		native.Dispose()
		return nil, err
	}
	c.placeholder = h
	c.track(h)
	c.log.Info("placeholder registered", "name", name, "id", h.ID(), "width", desc.Width(), "height", desc.Height())
	return h, nil
}

// Placeholder returns the placeholder handle, nil before registration.
func (c *Cache) Placeholder() *resource.Handle { return c.placeholder }

func (c *Cache) mustPlaceholder() *resource.Descriptor {
	if c.placeholder == nil {
		panic("texture: lookup before the placeholder was registered")
	}
	return c.placeholder.Descriptor()
}

// GetByName returns the handle for name, registering it and scheduling its
// load on first use. A new handle shows the placeholder until the load
// completes: immediately in synchronous mode, at a later Update otherwise.
//
// Missing or undecodable assets are logged and leave the handle on the
// placeholder. The error result is reserved for fatal failures such as a
// pixel format the backend cannot create.
func (c *Cache) GetByName(name string) (*resource.Handle, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if h, ok := c.table.Lookup(name); ok {
		return h, nil
	}
	ph := c.mustPlaceholder()
	h, err := c.table.Register(name, func(id int) *resource.Handle {
		return resource.NewHandle(id, name, resource.Whole, ph)
	})
	if err != nil {
		return nil, err
	}
	c.log.Debug("texture registered", "name", name, "id", h.ID())
	c.track(h)

	if c.worker != nil {
		c.worker.enqueue(job{name: name, target: h})
		return h, nil
	}
	img, err := c.decode(name)
	if c.lost {
		// No native state while the device is lost; publish after PostReset
		// like a background load would be.
		c.parked = append(c.parked, result{job: job{name: name, target: h}, img: img, err: err})
		return h, nil
	}
	return h, c.complete(h, img, err)
}

// track records which asset file h resolves to, so changes reported by
// path reach handles registered under another name for the same file.
func (c *Cache) track(h *resource.Handle) {
	if p, err := c.src.Lookup(h.Name()); err == nil {
		c.byPath[p] = append(c.byPath[p], h)
	}
}

// GetByID returns the handle with the given id.
func (c *Cache) GetByID(id int) (*resource.Handle, error) {
	h, err := c.table.ByID(id)
	if err != nil {
		return nil, fmt.Errorf("texture: %w", err)
	}
	return h, nil
}

// Len returns the number of registered handles, placeholder included.
func (c *Cache) Len() int { return c.table.Len() }

// decode resolves, reads and decodes one asset. It runs on the background
// decoder in async mode and must not touch the tables.
func (c *Cache) decode(name string) (*image.NRGBA, error) {
	p, err := c.src.Lookup(name)
	if err != nil {
		return nil, err
	}
	raw, err := c.src.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return Decode(p, raw)
}

// complete finishes a load on the owner goroutine. Decode failures are
// recoverable and only logged.
func (c *Cache) complete(h *resource.Handle, img *image.NRGBA, decodeErr error) error {
	if decodeErr != nil {
		c.log.Warn("texture load failed, keeping placeholder", "name", h.Name(), "id", h.ID(), "err", decodeErr)
		return nil
	}
	return c.publish(h, img)
}

// publish creates native state for img and swaps it into h. The previous
// descriptor is disposed when h owned it; the shared placeholder is not.
func (c *Cache) publish(h *resource.Handle, img *image.NRGBA) error {
	native, err := c.factory.NewTexture(h.Name(), img)
	if err != nil {
		return fmt.Errorf("texture: create %s: %w", h.Name(), err)
	}
	w, ht := img.Rect.Dx(), img.Rect.Dy()

	old := h.Descriptor()
	if h == c.placeholder {
		desc := resource.NewPlaceholder(w, ht, native)
		h.Publish(desc)
		// Whole textures still waiting on the old placeholder follow it;
		// atlas entries follow through their backing texture.
		for _, other := range c.table.All() {
			if other != h && other.Kind() == resource.Whole && other.Descriptor() == old {
				other.Publish(desc)
			}
		}
	} else {
		h.Publish(resource.NewWhole(w, ht, native))
	}

	if old.ID() == h.ID() {
		old.Dispose()
	}
	c.log.Debug("texture published", "name", h.Name(), "id", h.ID(), "width", w, "height", ht)
	return nil
}

// Update applies pending reload requests and, in async mode, publishes
// every decode that finished since the last call. Visible state changes
// only here. Nothing is applied while the device is lost.
//
// Fatal creation errors of individual loads are joined; the remaining
// loads are still applied.
func (c *Cache) Update() error {
	if c.closed || c.lost {
		return nil
	}
	var errs []error
	parked := c.parked
	c.parked = nil
	for _, r := range parked {
		if err := c.complete(r.target, r.img, r.err); err != nil {
			errs = append(errs, err)
		}
	}
	for _, h := range c.takeReloads() {
		if err := c.reload(h); err != nil {
			errs = append(errs, err)
		}
	}
	if c.worker != nil {
		for _, r := range c.worker.drain() {
			if err := c.complete(r.target, r.img, r.err); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Pending returns the number of loads queued, decoding or decoded but not
// yet applied by Update.
func (c *Cache) Pending() int {
	n := len(c.parked)
	if c.worker != nil {
		n += c.worker.pending()
	}
	return n
}

// Reload decodes name again and swaps the result into its existing
// handle, keeping the id. Subscribers (atlas entries) re-derive. Reloading
// an atlas entry reloads its backing texture. A failed decode is logged
// and the current descriptor stays. While the device is lost the reload
// is queued for the first Update after PostReset.
func (c *Cache) Reload(name string) error {
	h, ok := c.table.Lookup(name)
	if !ok {
		return fmt.Errorf("texture: reload %s: %w", name, ErrNotFound)
	}
	if c.lost {
		c.RequestReload(name)
		return nil
	}
	return c.reload(h)
}

func (c *Cache) reload(h *resource.Handle) error {
	if backing, ok := c.backingOf[h]; ok {
		h = backing
	}
	img, err := c.decode(h.Name())
	if err != nil {
		c.log.Warn("texture reload failed", "name", h.Name(), "id", h.ID(), "err", err)
		return nil
	}
	if err := c.publish(h, img); err != nil {
		return err
	}
	c.log.Info("texture reloaded", "name", h.Name(), "id", h.ID())
	return nil
}

// RequestReload queues a reload to run at the next Update. name may be a
// registered name or the path of a changed file; every texture that
// resolves to that file is reloaded. It is safe to call from any
// goroutine.
func (c *Cache) RequestReload(name string) {
	c.reloadMu.Lock()
	c.reloads = append(c.reloads, name)
	c.reloadMu.Unlock()
}

func (c *Cache) takeReloads() []*resource.Handle {
	c.reloadMu.Lock()
	names := c.reloads
	c.reloads = nil
	c.reloadMu.Unlock()

	var out []*resource.Handle
	seen := make(map[*resource.Handle]bool)
	add := func(h *resource.Handle) {
		if backing, ok := c.backingOf[h]; ok {
			h = backing
		}
		if !seen[h] {
			seen[h] = true
			out = append(out, h)
		}
	}
	for _, n := range names {
		if h, ok := c.table.Lookup(n); ok {
			add(h)
		}
		if p, err := c.src.Lookup(n); err == nil {
			for _, h := range c.byPath[p] {
				add(h)
			}
		}
	}
	return out
}

// Close stops the background decoder, dropping queued loads, detaches
// atlas entries from their backing textures and disposes all native
// state.
func (c *Cache) Close() {
	if c.closed {
		return
	}
	c.closed = true
	if c.worker != nil {
		c.worker.close()
	}
	c.parked = nil
	for _, unsub := range c.unsubs {
		unsub()
	}
	c.unsubs = nil
	for _, h := range c.table.All() {
		if d := h.Descriptor(); d.ID() == h.ID() {
			d.Dispose()
		}
	}
	c.log.Info("texture cache closed", "textures", c.table.Len())
}
