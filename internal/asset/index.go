// Package asset resolves logical asset names to readable paths.
package asset

import (
	"errors"
	"fmt"
	"io/fs"
	"path"
	"strings"
	"sync"

	"golang.org/x/text/cases"
)

// ErrNotFound is returned by Lookup for names that match no indexed file.
var ErrNotFound = errors.New("asset: not found")

// Index maps case-folded logical names to paths inside an fs.FS.
//
// A name resolves, in order, by its full relative path, by its base name,
// and by its stem. Stem matches let "foo.jpg" find "foo.ozj"; when two
// files share a stem the extension listed first in BuildIndex wins (OZT
// before OZJ keeps the alpha channel).
type Index struct {
	fsys fs.FS
	exts []string

	mu    sync.RWMutex
	paths map[string]string // folded relative path → path
	names map[string]string // folded base name → path
	stems map[string]string // folded stem → path
}

// BuildIndex walks fsys and indexes every file whose extension is in exts.
// With no exts every file is indexed.
func BuildIndex(fsys fs.FS, exts ...string) (*Index, error) {
	idx := &Index{
		fsys:  fsys,
		paths: make(map[string]string),
		names: make(map[string]string),
		stems: make(map[string]string),
	}
	for _, e := range exts {
		idx.exts = append(idx.exts, strings.ToLower(e))
	}

	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		idx.add(p)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("asset: index: %w", err)
	}
	return idx, nil
}

func fold(s string) string {
	return cases.Fold().String(s)
}

// rank returns the priority of an extension, lower is better, -1 if the
// extension is not indexed.
func (idx *Index) rank(ext string) int {
	if len(idx.exts) == 0 {
		return 0
	}
	ext = strings.ToLower(ext)
	for i, e := range idx.exts {
		if e == ext {
			return i
		}
	}
	return -1
}

// Add indexes one more file, for instance one that appeared after
// BuildIndex. Files with unindexed extensions are ignored.
func (idx *Index) Add(p string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.add(p)
}

func (idx *Index) add(p string) {
	ext := path.Ext(p)
	r := idx.rank(ext)
	if r < 0 {
		return
	}
	base := path.Base(p)
	stem := fold(strings.TrimSuffix(base, ext))

	idx.paths[fold(p)] = p
	idx.names[fold(base)] = p

	existing, exists := idx.stems[stem]
	if !exists || r < idx.rank(path.Ext(existing)) {
		idx.stems[stem] = p
	}
}

// Lookup returns the path of the file a logical name refers to.
func (idx *Index) Lookup(name string) (string, error) {
	// Strip path prefixes written with backslashes ("Interface\\foo.png").
	clean := strings.TrimPrefix(path.Clean(strings.ReplaceAll(name, "\\", "/")), "/")
	key := fold(clean)
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))

	idx.mu.RLock()
	defer idx.mu.RUnlock()
	if p, ok := idx.paths[key]; ok {
		return p, nil
	}
	if p, ok := idx.names[base]; ok {
		return p, nil
	}
	if p, ok := idx.stems[stem]; ok {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, name)
}

// ReadFile reads a path returned by Lookup.
func (idx *Index) ReadFile(p string) ([]byte, error) {
	data, err := fs.ReadFile(idx.fsys, p)
	if err != nil {
		return nil, fmt.Errorf("asset: read %s: %w", p, err)
	}
	return data, nil
}

// Read looks up name and reads its contents.
func (idx *Index) Read(name string) ([]byte, error) {
	p, err := idx.Lookup(name)
	if err != nil {
		return nil, err
	}
	return idx.ReadFile(p)
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.paths)
}
