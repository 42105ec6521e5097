package texture

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/cases"

	"gpu-resource-cache/internal/resource"
)

// Stats summarizes the cache.
type Stats struct {
	Total    int // handles, placeholder included
	Loaded   int // whole textures showing real data
	Unloaded int // handles still on the placeholder
	Derived  int // atlas entries showing a slice of their backing
	Atlases  int
	Pending  int // background loads not yet applied
}

// Stats counts the cache's handles by state.
func (c *Cache) Stats() Stats {
	s := Stats{Total: c.table.Len(), Atlases: len(c.atlases), Pending: c.Pending()}
	for _, h := range c.table.All() {
		switch flag(h) {
		case 'L':
			s.Loaded++
		case 'A':
			s.Derived++
		default:
			s.Unloaded++
		}
	}
	return s
}

func flag(h *resource.Handle) byte {
	switch {
	case !h.Loaded():
		return 'U'
	case h.Descriptor().Kind() == resource.Derived:
		return 'A'
	default:
		return 'L'
	}
}

// Dump writes one line per cached texture whose name contains filter
// (case-insensitive; empty matches all), in id order.
func (c *Cache) Dump(w io.Writer, filter string) error {
	fold := cases.Fold()
	filter = fold.String(filter)

	fmt.Fprintln(w, "flags: L = Loaded, U = Unloaded, A = Atlas-derived")
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tF\tSIZE\tNAME\tCOORDS\tSTATE")
	shown := 0
	for id, h := range c.table.All() {
		if filter != "" && !strings.Contains(fold.String(h.Name()), filter) {
			continue
		}
		d := h.Descriptor()
		name := h.Name()
		if h == c.placeholder {
			name += " (placeholder)"
		} else if b := d.Backing(); b != nil {
			name += " <- " + b.Name()
		}
		fmt.Fprintf(tw, "%d\t%c\t%dx%d\t%s\t%s\t%s\n",
			id, flag(h), d.Width(), d.Height(), name, d.Coords(), d.State())
		shown++
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d of %d textures\n", shown, c.table.Len())
	return err
}
