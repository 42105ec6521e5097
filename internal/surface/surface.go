// Package surface manages depth buffers and render targets: native state
// that is created from parameters alone and must follow the swap chain
// through resizes and device resets.
package surface

import (
	"errors"
	"fmt"
	"log/slog"

	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/logging"
	"gpu-resource-cache/internal/resource"
)

// ErrNotFound is returned for unknown surface names or ids.
var ErrNotFound = resource.ErrNotFound

// Factory creates native surfaces.
type Factory interface {
	NewSurface(label string, kind backend.SurfaceKind, width, height int) (resource.Resettable, error)
}

// Params describe a surface. They are kept so the surface can be rebuilt.
type Params struct {
	Kind   backend.SurfaceKind
	Width  int
	Height int
}

// Surface is one named surface. Consumers hold the Handle; its descriptor
// is replaced on Resize.
type Surface struct {
	*resource.Handle
	params Params
}

// Params returns the parameters the surface was last created with.
func (s *Surface) Params() Params { return s.params }

// Cache owns every surface created through it.
type Cache struct {
	factory Factory
	log     *slog.Logger
	table   *resource.Table[*Surface]
	lost    bool
}

// New creates an empty cache.
func New(factory Factory, log *slog.Logger) *Cache {
	return &Cache{
		factory: factory,
		log:     logging.OrNop(log),
		table:   resource.NewTable[*Surface](),
	}
}

// Create registers and allocates a surface. Creating an existing name
// returns the existing surface when the parameters match. While the device
// is lost the surface is only registered; PostReset allocates it.
func (c *Cache) Create(name string, p Params) (*Surface, error) {
	if s, ok := c.table.Lookup(name); ok {
		if s.params != p {
			return nil, fmt.Errorf("surface: create %s: %w", name, resource.ErrDuplicateName)
		}
		return s, nil
	}
	if p.Width <= 0 || p.Height <= 0 {
		return nil, fmt.Errorf("surface: create %s: invalid size %dx%d", name, p.Width, p.Height)
	}
	desc := resource.NewDeferred(p.Width, p.Height)
	if !c.lost {
		native, err := c.factory.NewSurface(name, p.Kind, p.Width, p.Height)
		if err != nil {
			return nil, fmt.Errorf("surface: create %s: %w", name, err)
		}
		desc = resource.NewWhole(p.Width, p.Height, native)
	}
	s, err := c.table.Register(name, func(id int) *Surface {
		return &Surface{Handle: resource.NewHandle(id, name, resource.Whole, desc), params: p}
	})
	if err != nil {
		desc.Dispose()
		return nil, err
	}
	c.log.Debug("surface created", "name", name, "id", s.ID(), "kind", p.Kind, "width", p.Width, "height", p.Height)
	return s, nil
}

// Get returns the surface registered under name.
func (c *Cache) Get(name string) (*Surface, error) {
	s, ok := c.table.Lookup(name)
	if !ok {
		return nil, fmt.Errorf("surface: %s: %w", name, ErrNotFound)
	}
	return s, nil
}

// GetByID returns the surface with the given id.
func (c *Cache) GetByID(id int) (*Surface, error) {
	s, err := c.table.ByID(id)
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}
	return s, nil
}

// Len returns the number of surfaces.
func (c *Cache) Len() int { return c.table.Len() }

// Resize recreates the named surface at a new size. The handle and id are
// kept and subscribers see the new descriptor. While the device is lost
// only the parameters change; PostReset creates the surface at the new
// size.
func (c *Cache) Resize(name string, width, height int) error {
	s, err := c.Get(name)
	if err != nil {
		return err
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("surface: resize %s: invalid size %dx%d", name, width, height)
	}
	p := s.params
	p.Width, p.Height = width, height
	if p == s.params {
		return nil
	}
	if c.lost {
		s.params = p
		return nil
	}
	native, err := c.factory.NewSurface(name, p.Kind, width, height)
	if err != nil {
		return fmt.Errorf("surface: resize %s: %w", name, err)
	}
	old := s.Descriptor()
	s.params = p
	s.Publish(resource.NewWhole(width, height, native))
	old.Dispose()
	c.log.Debug("surface resized", "name", name, "id", s.ID(), "width", width, "height", height)
	return nil
}

// ResizeAll resizes every surface, as when the swap chain changes size.
func (c *Cache) ResizeAll(width, height int) error {
	var errs []error
	for _, s := range c.table.All() {
		if err := c.Resize(s.Name(), width, height); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PreReset releases every surface.
func (c *Cache) PreReset() {
	if c.lost {
		return
	}
	c.lost = true
	for _, s := range c.table.All() {
		s.Descriptor().PreReset()
	}
}

// PostReset recreates every surface in id order. Surfaces created or
// resized while the device was lost are allocated at their current size.
func (c *Cache) PostReset() error {
	if !c.lost {
		return nil
	}
	for _, s := range c.table.All() {
		d := s.Descriptor()
		if !d.Deferred() && d.Width() == s.params.Width && d.Height() == s.params.Height {
			if err := d.PostReset(); err != nil {
				return fmt.Errorf("surface: recreate %s: %w", s.Name(), err)
			}
			continue
		}
		native, err := c.factory.NewSurface(s.Name(), s.params.Kind, s.params.Width, s.params.Height)
		if err != nil {
			return fmt.Errorf("surface: recreate %s: %w", s.Name(), err)
		}
		s.Publish(resource.NewWhole(s.params.Width, s.params.Height, native))
		d.Dispose()
	}
	c.lost = false
	c.log.Info("surfaces recreated", "surfaces", c.table.Len())
	return nil
}

// Close disposes every surface.
func (c *Cache) Close() {
	for _, s := range c.table.All() {
		s.Descriptor().Dispose()
	}
}
