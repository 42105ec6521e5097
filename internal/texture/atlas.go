package texture

import (
	"bytes"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"gpu-resource-cache/internal/atlas"
	"gpu-resource-cache/internal/resource"
)

// LoadAtlas loads an atlas definition and returns one handle per entry,
// in file order. Repeated calls with the same file return the same list
// without reading it again.
//
// The backing texture is looked up like any other name. Entries show the
// placeholder until the backing texture is resident; from then on every
// change of the backing texture re-derives them in place.
//
// An entry whose name is already registered (by another atlas or as a
// texture) is logged and left out of the result, so the list can be
// shorter than the definition. Look entries up by name rather than by
// position when definitions may overlap.
func (c *Cache) LoadAtlas(file string) ([]*resource.Handle, error) {
	if c.closed {
		return nil, ErrClosed
	}
	if hs, ok := c.atlases[file]; ok {
		return hs, nil
	}
	def, err := c.readDefinition(file)
	if err != nil {
		return nil, err
	}
	return c.registerAtlas(def)
}

// Atlas returns the handles of an already loaded atlas.
func (c *Cache) Atlas(file string) ([]*resource.Handle, bool) {
	hs, ok := c.atlases[file]
	return hs, ok
}

// AtlasFiles returns the loaded atlas definition files, sorted.
func (c *Cache) AtlasFiles() []string {
	return slices.Sorted(maps.Keys(c.atlases))
}

func (c *Cache) readDefinition(file string) (*atlas.Definition, error) {
	p, err := c.src.Lookup(file)
	if err != nil {
		return nil, fmt.Errorf("texture: atlas %s: %w", file, err)
	}
	raw, err := c.src.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("texture: atlas %s: %w", file, err)
	}
	def, err := atlas.Parse(bytes.NewReader(raw), file)
	if err != nil {
		return nil, fmt.Errorf("texture: atlas %s: %w", file, err)
	}
	return def, nil
}

func (c *Cache) registerAtlas(def *atlas.Definition) ([]*resource.Handle, error) {
	for _, s := range def.Skipped {
		c.log.Warn("atlas line skipped", "atlas", def.Source, "line", s.Line, "err", s.Err)
	}

	backing, err := c.GetByName(def.Filename)
	if err != nil {
		return nil, fmt.Errorf("texture: atlas %s: %w", def.Source, err)
	}
	if c.worker == nil && !c.lost && !backing.Loaded() {
		c.log.Warn("atlas backing file missing", "atlas", def.Source, "filename", def.Filename)
	}

	ph := c.mustPlaceholder()
	handles := make([]*resource.Handle, 0, len(def.Entries))
	for _, e := range def.Entries {
		h, err := c.table.Register(e.Name, func(id int) *resource.Handle {
			return resource.NewHandle(id, e.Name, resource.Derived, ph)
		})
		if err != nil {
			c.log.Warn("atlas entry skipped", "atlas", def.Source, "entry", e.Name, "err", err)
			continue
		}
		c.backingOf[h] = backing
		c.unsubs = append(c.unsubs, backing.Subscribe(func(d *resource.Descriptor) {
			c.derive(h, backing, e, d)
		}))
		if backing.Loaded() {
			c.derive(h, backing, e, backing.Descriptor())
		}
		handles = append(handles, h)
	}

	c.atlases[def.Source] = handles
	c.log.Info("atlas loaded", "atlas", def.Source, "filename", def.Filename, "entries", len(handles))
	return handles, nil
}

// derive publishes the sub-region e of backing's current descriptor d into
// h. A backing texture that shows the placeholder passes it through.
func (c *Cache) derive(h, backing *resource.Handle, e atlas.Entry, d *resource.Descriptor) {
	if d.IsPlaceholder() && d.ID() != backing.ID() {
		h.Publish(d)
		return
	}
	if !e.Fits(d.Width(), d.Height()) {
		c.log.Warn("atlas entry exceeds backing texture", "entry", e.String(), "backing", backing.Name(),
			"width", d.Width(), "height", d.Height())
	}
	h.Publish(resource.NewDerived(backing, e.Width, e.Height, e.Normalize(d.Width(), d.Height())))
}

// LoadAtlases loads every atlas definition named in a list file. The
// definitions are read and parsed concurrently, then registered in list
// order. A broken definition does not stop the others; all failures are
// joined into the returned error.
func (c *Cache) LoadAtlases(listFile string) error {
	if c.closed {
		return ErrClosed
	}
	p, err := c.src.Lookup(listFile)
	if err != nil {
		return fmt.Errorf("texture: atlas list %s: %w", listFile, err)
	}
	raw, err := c.src.ReadFile(p)
	if err != nil {
		return fmt.Errorf("texture: atlas list %s: %w", listFile, err)
	}
	files, err := atlas.ParseList(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("texture: atlas list %s: %w", listFile, err)
	}

	defs := make([]*atlas.Definition, len(files))
	errs := make([]error, len(files))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for i, f := range files {
		if _, ok := c.atlases[f]; ok {
			continue
		}
		g.Go(func() error {
			defs[i], errs[i] = c.readDefinition(f)
			return nil
		})
	}
	_ = g.Wait()

	for i, def := range defs {
		if def == nil {
			continue
		}
		if _, ok := c.atlases[def.Source]; ok {
			continue
		}
		if _, err := c.registerAtlas(def); err != nil {
			errs[i] = err
		}
	}
	return errors.Join(errs...)
}
