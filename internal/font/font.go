// Package font caches rasterizing font faces. A face is keyed by font file
// and pixel size; like every device object it is released before a
// device reset and rebuilt afterwards from the parsed font it keeps.
package font

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"gpu-resource-cache/internal/logging"
	"gpu-resource-cache/internal/resource"
)

// ErrNotFound is returned for unknown face names or ids.
var ErrNotFound = resource.ErrNotFound

// Source resolves logical names to paths and reads them.
type Source interface {
	Lookup(name string) (string, error)
	ReadFile(path string) ([]byte, error)
}

// Key names a face as "file@size", e.g. "goregular.ttf@14".
func Key(file string, size float64) string {
	return file + "@" + strconv.FormatFloat(size, 'g', -1, 64)
}

// Face is the native state of one cached face.
type Face struct {
	font *opentype.Font
	size float64
	face font.Face
}

func newFace(f *opentype.Font, size float64) (*Face, error) {
	fc := &Face{font: f, size: size}
	if err := fc.open(); err != nil {
		return nil, err
	}
	return fc, nil
}

func (f *Face) open() error {
	face, err := opentype.NewFace(f.font, &opentype.FaceOptions{
		Size:    f.size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return err
	}
	f.face = face
	return nil
}

// Face returns the rasterizing face, nil while discarded.
func (f *Face) Face() font.Face { return f.face }

func (f *Face) Dispose() {
	f.PreReset()
	f.font = nil
}

func (f *Face) PreReset() {
	if f.face == nil {
		return
	}
	_ = f.face.Close()
	f.face = nil
}

func (f *Face) PostReset() error {
	if f.face != nil {
		return nil
	}
	if f.font == nil {
		return fmt.Errorf("font: face was disposed")
	}
	return f.open()
}

// Cache is the font cache. Parsed font files are shared between sizes.
type Cache struct {
	src   Source
	log   *slog.Logger
	table *resource.Table[*resource.Handle]
	fonts map[string]*opentype.Font
	lost  bool
}

// New creates an empty cache.
func New(src Source, log *slog.Logger) *Cache {
	return &Cache{
		src:   src,
		log:   logging.OrNop(log),
		table: resource.NewTable[*resource.Handle](),
		fonts: make(map[string]*opentype.Font),
	}
}

// Get returns the face for file at size pixels, loading it on first use.
// The descriptor's width is the advance of "M" and its height the line
// height, both in whole pixels.
func (c *Cache) Get(file string, size float64) (*resource.Handle, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font: %s: invalid size %g", file, size)
	}
	key := Key(file, size)
	if h, ok := c.table.Lookup(key); ok {
		return h, nil
	}
	f, err := c.parse(file)
	if err != nil {
		return nil, err
	}
	face, err := newFace(f, size)
	if err != nil {
		return nil, fmt.Errorf("font: face %s: %w", key, err)
	}
	desc := describe(face)
	if c.lost {
		// Metrics are taken; the face itself opens with the others.
		desc.PreReset()
	}
	h, err := c.table.Register(key, func(id int) *resource.Handle {
		return resource.NewHandle(id, key, resource.Whole, desc)
	})
	if err != nil {
		face.Dispose()
		return nil, err
	}
	c.log.Debug("font face loaded", "face", key, "id", h.ID())
	return h, nil
}

// GetByName accepts a "file@size" key.
func (c *Cache) GetByName(key string) (*resource.Handle, error) {
	if h, ok := c.table.Lookup(key); ok {
		return h, nil
	}
	i := strings.LastIndexByte(key, '@')
	if i < 0 {
		return nil, fmt.Errorf("font: %q has no @size: %w", key, ErrNotFound)
	}
	size, err := strconv.ParseFloat(key[i+1:], 64)
	if err != nil {
		return nil, fmt.Errorf("font: %q: %w", key, err)
	}
	return c.Get(key[:i], size)
}

// GetByID returns the face with the given id.
func (c *Cache) GetByID(id int) (*resource.Handle, error) {
	h, err := c.table.ByID(id)
	if err != nil {
		return nil, fmt.Errorf("font: %w", err)
	}
	return h, nil
}

// Len returns the number of cached faces.
func (c *Cache) Len() int { return c.table.Len() }

func (c *Cache) parse(file string) (*opentype.Font, error) {
	if f, ok := c.fonts[file]; ok {
		return f, nil
	}
	p, err := c.src.Lookup(file)
	if err != nil {
		return nil, fmt.Errorf("font: load %s: %w", file, err)
	}
	raw, err := c.src.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("font: load %s: %w", file, err)
	}
	f, err := opentype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("font: parse %s: %w", file, err)
	}
	c.fonts[file] = f
	return f, nil
}

func describe(f *Face) *resource.Descriptor {
	m := f.face.Metrics()
	adv, _ := f.face.GlyphAdvance('M')
	return resource.NewWhole(adv.Ceil(), m.Height.Ceil(), f)
}

// Measure returns the advance of s in pixels using the handle's face.
func Measure(h *resource.Handle, s string) (int, error) {
	f, ok := h.Descriptor().Native().(*Face)
	if !ok || f.Face() == nil {
		return 0, fmt.Errorf("font: %s is not resident", h.Name())
	}
	return font.MeasureString(f.Face(), s).Ceil(), nil
}

// Advance is a convenience for callers laying out text in 26.6 units.
func Advance(h *resource.Handle, r rune) (fixed.Int26_6, bool) {
	f, ok := h.Descriptor().Native().(*Face)
	if !ok || f.Face() == nil {
		return 0, false
	}
	return f.Face().GlyphAdvance(r)
}

// PreReset closes every face. Parsed fonts are kept.
func (c *Cache) PreReset() {
	if c.lost {
		return
	}
	c.lost = true
	for _, h := range c.table.All() {
		h.Descriptor().PreReset()
	}
}

// PostReset reopens every face in id order.
func (c *Cache) PostReset() error {
	if !c.lost {
		return nil
	}
	for _, h := range c.table.All() {
		if err := h.Descriptor().PostReset(); err != nil {
			return fmt.Errorf("font: recreate %s: %w", h.Name(), err)
		}
	}
	c.lost = false
	c.log.Info("font faces recreated", "faces", c.table.Len())
	return nil
}

// Close disposes every face.
func (c *Cache) Close() {
	for _, h := range c.table.All() {
		h.Descriptor().Dispose()
	}
}
