// Package atlas parses atlas definition files: one backing image sliced
// into named pixel rectangles.
//
//	; comment lines start with a semicolon
//	filename=spritesheet.png
//	texture=icon_ok,0,0,32,32
//	texture=icon_cancel,32,0,32,32
package atlas

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"gpu-resource-cache/internal/resource"
)

// Atlas-related errors.
var (
	// ErrNoBackingFile is returned when a definition has no filename= line.
	ErrNoBackingFile = errors.New("atlas: definition has no backing filename")

	// ErrSyntax marks a malformed definition line.
	ErrSyntax = errors.New("atlas: syntax error")
)

const commentMarker = ";"

// Entry is one named pixel rectangle inside the backing image.
type Entry struct {
	Name   string
	X      int
	Y      int
	Width  int
	Height int
}

func (e Entry) String() string {
	return fmt.Sprintf("%s(%d,%d %dx%d)", e.Name, e.X, e.Y, e.Width, e.Height)
}

// Normalize maps the entry into the [0,1] space of a backing resource of
// the given pixel size. It is a pure function of its inputs.
func (e Entry) Normalize(backingWidth, backingHeight int) resource.Rect {
	w := float64(backingWidth)
	h := float64(backingHeight)
	return resource.Rect{
		U0: float64(e.X) / w,
		V0: float64(e.Y) / h,
		U1: float64(e.X+e.Width) / w,
		V1: float64(e.Y+e.Height) / h,
	}
}

// Fits reports whether the entry lies inside a backing resource of the
// given pixel size.
func (e Entry) Fits(backingWidth, backingHeight int) bool {
	return e.X+e.Width <= backingWidth && e.Y+e.Height <= backingHeight
}

// LineError reports a definition line that was skipped.
type LineError struct {
	Source string
	Line   int
	Err    error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("atlas: %s:%d: %v", e.Source, e.Line, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

// Definition is a parsed atlas definition file.
type Definition struct {
	// Source is the definition's own filename.
	Source string
	// Filename is the backing image.
	Filename string
	// Entries are in file order with unique names.
	Entries []Entry
	// Skipped lists lines that were ignored. They never abort parsing.
	Skipped []*LineError
}

// Parse reads a definition. Malformed lines are recorded in Skipped; a
// missing filename= line fails the whole definition with ErrNoBackingFile.
func Parse(r io.Reader, source string) (*Definition, error) {
	def := &Definition{Source: source}
	seen := make(map[string]bool)

	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, commentMarker) {
			continue
		}
		skip := func(err error) {
			def.Skipped = append(def.Skipped, &LineError{Source: source, Line: lineNo, Err: err})
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			skip(fmt.Errorf("%w: missing '=' in %q", ErrSyntax, line))
			continue
		}
		key = strings.ToLower(strings.TrimSpace(key))
		value = strings.TrimSpace(value)

		switch key {
		case "filename":
			if value == "" {
				skip(fmt.Errorf("%w: empty filename", ErrSyntax))
				continue
			}
			if def.Filename != "" && def.Filename != value {
				skip(fmt.Errorf("%w: second backing filename %q (already %q)", ErrSyntax, value, def.Filename))
				continue
			}
			def.Filename = value
		case "texture":
			e, err := parseEntry(value)
			if err != nil {
				skip(err)
				continue
			}
			if seen[e.Name] {
				skip(fmt.Errorf("%w: duplicate entry %q", ErrSyntax, e.Name))
				continue
			}
			seen[e.Name] = true
			def.Entries = append(def.Entries, e)
		default:
			skip(fmt.Errorf("%w: unknown key %q", ErrSyntax, key))
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("atlas: read %s: %w", source, err)
	}

	if def.Filename == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoBackingFile, source)
	}
	return def, nil
}

// parseEntry parses "name,x,y,width,height".
func parseEntry(value string) (Entry, error) {
	parts := strings.Split(value, ",")
	if len(parts) != 5 {
		return Entry{}, fmt.Errorf("%w: texture wants name,x,y,width,height, got %q", ErrSyntax, value)
	}
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return Entry{}, fmt.Errorf("%w: texture with empty name", ErrSyntax)
	}

	var nums [4]int
	for i, p := range parts[1:] {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return Entry{}, fmt.Errorf("%w: texture %s: %v", ErrSyntax, name, err)
		}
		nums[i] = n
	}
	e := Entry{Name: name, X: nums[0], Y: nums[1], Width: nums[2], Height: nums[3]}
	if e.X < 0 || e.Y < 0 || e.Width <= 0 || e.Height <= 0 {
		return Entry{}, fmt.Errorf("%w: texture %s has invalid rectangle", ErrSyntax, e)
	}
	return e, nil
}

// ParseList reads a list of definition filenames, one per line. Blank
// lines and comments are ignored.
func ParseList(r io.Reader) ([]string, error) {
	var files []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, commentMarker) {
			continue
		}
		files = append(files, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("atlas: read list: %w", err)
	}
	return files, nil
}
