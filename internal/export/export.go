// Package export writes every atlas entry of a texture cache out as its
// own WebP image, plus a manifest describing where each came from.
package export

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/HugoSmits86/nativewebp"
	"golang.org/x/sync/singleflight"

	"gpu-resource-cache/internal/resource"
	"gpu-resource-cache/internal/texture"
)

// Entry is one atlas entry to export.
type Entry struct {
	Atlas   string
	Name    string
	Backing string
	Coords  resource.Rect
	Width   int
	Height  int
}

// Collect lists the entries of every loaded atlas whose backing texture
// is resident. Entries still showing the placeholder are skipped.
func Collect(c *texture.Cache) []Entry {
	var out []Entry
	for _, file := range c.AtlasFiles() {
		hs, _ := c.Atlas(file)
		for _, h := range hs {
			d := h.Descriptor()
			if d.Backing() == nil {
				continue
			}
			out = append(out, Entry{
				Atlas:   file,
				Name:    h.Name(),
				Backing: d.Backing().Name(),
				Coords:  d.Coords(),
				Width:   d.Width(),
				Height:  d.Height(),
			})
		}
	}
	return out
}

// Images decodes backing images on demand. Concurrent requests for the
// same image share one decode.
type Images struct {
	src texture.Source

	group singleflight.Group
	mu    sync.Mutex
	cache map[string]*image.NRGBA
}

// NewImages creates an image loader over src.
func NewImages(src texture.Source) *Images {
	return &Images{src: src, cache: make(map[string]*image.NRGBA)}
}

// Get returns the decoded image for name.
func (im *Images) Get(name string) (*image.NRGBA, error) {
	im.mu.Lock()
	img, ok := im.cache[name]
	im.mu.Unlock()
	if ok {
		return img, nil
	}
	v, err, _ := im.group.Do(name, func() (any, error) {
		p, err := im.src.Lookup(name)
		if err != nil {
			return nil, err
		}
		raw, err := im.src.ReadFile(p)
		if err != nil {
			return nil, err
		}
		img, err := texture.Decode(p, raw)
		if err != nil {
			return nil, err
		}
		im.mu.Lock()
		im.cache[name] = img
		im.mu.Unlock()
		return img, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*image.NRGBA), nil
}

// Config holds the shared settings for a run.
type Config struct {
	OutputDir string
	// Size bounds the longer side of each exported image; 0 keeps the
	// entry's own size.
	Size    int
	Workers int
	// Progress, when set, is called every two seconds with the count done.
	Progress func(done, total int, rate float64)
}

// Result holds the outcome of exporting one entry.
type Result struct {
	Entry
	Image   string
	Success bool
	Error   string
}

// Run exports all entries using a worker pool.
func Run(cfg Config, images *Images, entries []Entry) []Result {
	total := len(entries)
	results := make([]Result, total)
	var processed atomic.Int64
	workers := max(1, cfg.Workers)

	start := time.Now()

	// Progress reporter
	done := make(chan struct{})
	if cfg.Progress != nil {
		go func() {
			ticker := time.NewTicker(2 * time.Second)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return
				case <-ticker.C:
					p := processed.Load()
					if p > 0 {
						elapsed := time.Since(start).Seconds()
						cfg.Progress(int(p), total, float64(p)/elapsed)
					}
				}
			}
		}()
	}

	// Worker pool
	jobs := make(chan int, workers*2)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = exportEntry(cfg, images, entries[idx])
				processed.Add(1)
			}
		}()
	}

	// Send work
	for i := range entries {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(done)

	return results
}

// OutputName is the manifest-relative path an entry is written to.
func OutputName(e Entry) string {
	atlas := strings.TrimSuffix(filepath.Base(e.Atlas), filepath.Ext(e.Atlas))
	name := strings.NewReplacer("/", "_", "\\", "_", ":", "_").Replace(e.Name)
	return atlas + "/" + name + ".webp"
}

func exportEntry(cfg Config, images *Images, e Entry) Result {
	res := Result{Entry: e, Image: OutputName(e)}

	backing, err := images.Get(e.Backing)
	if err != nil {
		res.Error = fmt.Sprintf("backing %s: %v", e.Backing, err)
		return res
	}
	img := Fit(Extract(backing, e.Coords, e.Width, e.Height), cfg.Size)

	outPath := filepath.Join(cfg.OutputDir, filepath.FromSlash(res.Image))
	if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
		res.Error = err.Error()
		return res
	}

	f, err := os.Create(outPath)
	if err != nil {
		res.Error = err.Error()
		return res
	}
	defer f.Close()

	if err := nativewebp.Encode(f, img, nil); err != nil {
		res.Error = fmt.Sprintf("WebP encode: %v", err)
		return res
	}

	res.Success = true
	return res
}
