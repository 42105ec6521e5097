// Package effect caches compiled shader effects. An effect is a WGSL
// source file compiled to SPIR-V and turned into a native shader module;
// effects are addressed by name or id like every other cached resource.
package effect

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/naga"
	"github.com/gogpu/naga/spirv"

	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/logging"
	"gpu-resource-cache/internal/resource"
)

// ErrNotFound is returned for unknown effect names or ids.
var ErrNotFound = resource.ErrNotFound

// ErrCompile marks WGSL that failed to compile.
var ErrCompile = errors.New("effect: compile failed")

// Source resolves logical names to paths and reads them.
type Source interface {
	Lookup(name string) (string, error)
	ReadFile(path string) ([]byte, error)
}

// Factory creates native shader modules.
type Factory interface {
	NewShaderModule(label string, code backend.ShaderCode) (resource.Resettable, error)
}

// Options configures a Cache.
type Options struct {
	Source  Source
	Factory Factory
	// Validate runs IR validation before SPIR-V generation.
	Validate bool
	Logger   *slog.Logger
}

// Cache is the effect cache. Loads are synchronous; like the texture
// cache it is owned by one goroutine.
type Cache struct {
	src      Source
	factory  Factory
	validate bool
	log      *slog.Logger
	table    *resource.Table[*resource.Handle]
	lost     bool
	// Code compiled while the device was lost, created at PostReset.
	deferred map[*resource.Handle]backend.ShaderCode
}

// New creates an empty cache.
func New(opts Options) *Cache {
	return &Cache{
		src:      opts.Source,
		factory:  opts.Factory,
		validate: opts.Validate,
		log:      logging.OrNop(opts.Logger),
		table:    resource.NewTable[*resource.Handle](),
		deferred: make(map[*resource.Handle]backend.ShaderCode),
	}
}

// Compile turns WGSL into SPIR-V.
func Compile(wgsl string, validate bool) ([]byte, error) {
	words, err := naga.CompileWithOptions(wgsl, naga.CompileOptions{
		SPIRVVersion: spirv.Version1_3,
		Validate:     validate,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCompile, err)
	}
	return words, nil
}

// GetByName returns the effect registered under name, loading it on first
// use. An effect that cannot be read or compiled is not registered; there
// is no placeholder effect to fall back to. While the device is lost the
// effect is compiled and registered, and its module is created by
// PostReset.
func (c *Cache) GetByName(name string) (*resource.Handle, error) {
	if h, ok := c.table.Lookup(name); ok {
		return h, nil
	}
	code, err := c.compile(name)
	if err != nil {
		return nil, err
	}
	desc := resource.NewDeferred(0, 0)
	if !c.lost {
		native, err := c.create(name, code)
		if err != nil {
			return nil, err
		}
		desc = resource.NewWhole(0, 0, native)
	}
	h, err := c.table.Register(name, func(id int) *resource.Handle {
		return resource.NewHandle(id, name, resource.Whole, desc)
	})
	if err != nil {
		desc.Dispose()
		return nil, err
	}
	if c.lost {
		c.deferred[h] = code
	}
	c.log.Debug("effect loaded", "name", name, "id", h.ID(), "deferred", c.lost)
	return h, nil
}

// GetByID returns the effect with the given id.
func (c *Cache) GetByID(id int) (*resource.Handle, error) {
	h, err := c.table.ByID(id)
	if err != nil {
		return nil, fmt.Errorf("effect: %w", err)
	}
	return h, nil
}

// Len returns the number of loaded effects.
func (c *Cache) Len() int { return c.table.Len() }

func (c *Cache) compile(name string) (backend.ShaderCode, error) {
	p, err := c.src.Lookup(name)
	if err != nil {
		return backend.ShaderCode{}, fmt.Errorf("effect: load %s: %w", name, err)
	}
	raw, err := c.src.ReadFile(p)
	if err != nil {
		return backend.ShaderCode{}, fmt.Errorf("effect: load %s: %w", name, err)
	}
	code := backend.ShaderCode{WGSL: string(raw)}
	if code.SPIRV, err = Compile(code.WGSL, c.validate); err != nil {
		return backend.ShaderCode{}, fmt.Errorf("effect: load %s: %w", name, err)
	}
	return code, nil
}

func (c *Cache) create(name string, code backend.ShaderCode) (resource.Resettable, error) {
	native, err := c.factory.NewShaderModule(name, code)
	if err != nil {
		return nil, fmt.Errorf("effect: create %s: %w", name, err)
	}
	return native, nil
}

// Reload recompiles an effect in place. A compile failure is logged and
// the current module stays in use. While the device is lost the new code
// replaces the module at PostReset.
func (c *Cache) Reload(name string) error {
	h, ok := c.table.Lookup(name)
	if !ok {
		return fmt.Errorf("effect: reload %s: %w", name, ErrNotFound)
	}
	code, err := c.compile(name)
	if err != nil {
		c.log.Warn("effect reload failed", "name", name, "err", err)
		return nil
	}
	if c.lost {
		c.deferred[h] = code
		return nil
	}
	native, err := c.create(name, code)
	if err != nil {
		c.log.Warn("effect reload failed", "name", name, "err", err)
		return nil
	}
	old := h.Descriptor()
	h.Publish(resource.NewWhole(0, 0, native))
	old.Dispose()
	c.log.Info("effect reloaded", "name", name, "id", h.ID())
	return nil
}

// PreReset releases every shader module.
func (c *Cache) PreReset() {
	if c.lost {
		return
	}
	c.lost = true
	for _, h := range c.table.All() {
		h.Descriptor().PreReset()
	}
}

// PostReset recreates every shader module in id order. Effects loaded or
// reloaded while the device was lost get a module built from their new
// code.
func (c *Cache) PostReset() error {
	if !c.lost {
		return nil
	}
	for _, h := range c.table.All() {
		if code, ok := c.deferred[h]; ok {
			native, err := c.create(h.Name(), code)
			if err != nil {
				return fmt.Errorf("effect: recreate %s: %w", h.Name(), err)
			}
			old := h.Descriptor()
			h.Publish(resource.NewWhole(0, 0, native))
			old.Dispose()
			delete(c.deferred, h)
			continue
		}
		if err := h.Descriptor().PostReset(); err != nil {
			return fmt.Errorf("effect: recreate %s: %w", h.Name(), err)
		}
	}
	c.lost = false
	c.log.Info("effects recreated", "effects", c.table.Len())
	return nil
}

// Close disposes every shader module.
func (c *Cache) Close() {
	clear(c.deferred)
	for _, h := range c.table.All() {
		h.Descriptor().Dispose()
	}
}
