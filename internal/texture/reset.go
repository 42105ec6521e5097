package texture

import (
	"fmt"

	"gpu-resource-cache/internal/resource"
)

// PreReset releases the native state of every texture before the device
// is lost. Names, ids, sizes and atlas coordinates are kept. Until
// PostReset, Update applies nothing and finished background decodes wait.
func (c *Cache) PreReset() {
	if c.lost {
		return
	}
	c.lost = true
	for _, h := range c.table.All() {
		// The shared placeholder is reset once, through its own handle.
		if d := h.Descriptor(); d.ID() == h.ID() {
			d.PreReset()
		}
	}
	c.log.Info("texture cache discarded", "textures", c.table.Len())
}

// PostReset recreates native state once the device is back. Whole
// textures are recreated first, in id order; atlas entries then re-derive
// from their recreated backing textures, keeping their handles and ids.
//
// A failure is returned immediately: a partially recreated cache is not
// safe to render from.
func (c *Cache) PostReset() error {
	if !c.lost {
		return nil
	}
	for _, h := range c.table.All() {
		d := h.Descriptor()
		if d.ID() != h.ID() || d.Backing() != nil {
			continue
		}
		if err := d.PostReset(); err != nil {
			return fmt.Errorf("texture: recreate %s: %w", h.Name(), err)
		}
	}
	c.lost = false

	for _, h := range c.table.All() {
		if h.Kind() == resource.Whole && h.Subscribers() > 0 {
			h.Notify()
		}
	}
	// Entries whose backing has no subscribers left (closed atlases) still
	// own a discarded descriptor.
	for _, h := range c.table.All() {
		if d := h.Descriptor(); d.ID() == h.ID() && d.Backing() != nil {
			if err := d.PostReset(); err != nil {
				return fmt.Errorf("texture: recreate %s: %w", h.Name(), err)
			}
		}
	}
	c.log.Info("texture cache recreated", "textures", c.table.Len())
	return nil
}
