package atlas

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-resource-cache/internal/resource"
)

const sample = `; comment lines start with a semicolon
filename=spritesheet.png
texture=icon_ok,0,0,32,32
texture=icon_cancel,32,0,32,32
`

func TestParse(t *testing.T) {
	def, err := Parse(strings.NewReader(sample), "ui.atlas")
	require.NoError(t, err)

	assert.Equal(t, "ui.atlas", def.Source)
	assert.Equal(t, "spritesheet.png", def.Filename)
	assert.Equal(t, []Entry{
		{Name: "icon_ok", X: 0, Y: 0, Width: 32, Height: 32},
		{Name: "icon_cancel", X: 32, Y: 0, Width: 32, Height: 32},
	}, def.Entries)
	assert.Empty(t, def.Skipped)
}

func TestParseToleratesWhitespace(t *testing.T) {
	src := "\n  filename = sheet.png  \n\ttexture= a , 1, 2 ,3,4\r\n"
	def, err := Parse(strings.NewReader(src), "ws.atlas")
	require.NoError(t, err)
	assert.Equal(t, "sheet.png", def.Filename)
	assert.Equal(t, []Entry{{Name: "a", X: 1, Y: 2, Width: 3, Height: 4}}, def.Entries)
}

func TestParseMissingFilename(t *testing.T) {
	_, err := Parse(strings.NewReader("texture=a,0,0,1,1\n"), "broken.atlas")
	assert.ErrorIs(t, err, ErrNoBackingFile)
}

func TestParseSkipsBadLines(t *testing.T) {
	src := `filename=sheet.png
texture=ok,0,0,16,16
texture=short,0,0
texture=nan,a,0,1,1
texture=neg,0,0,-1,4
texture=,0,0,1,1
texture=ok,16,0,16,16
filename=other.png
junk line
colour=red
texture=last,0,16,16,16
`
	def, err := Parse(strings.NewReader(src), "mixed.atlas")
	require.NoError(t, err)

	assert.Equal(t, "sheet.png", def.Filename)
	require.Len(t, def.Entries, 2)
	assert.Equal(t, "ok", def.Entries[0].Name)
	assert.Equal(t, "last", def.Entries[1].Name)

	var lines []int
	for _, s := range def.Skipped {
		assert.ErrorIs(t, s, ErrSyntax)
		lines = append(lines, s.Line)
	}
	assert.Equal(t, []int{3, 4, 5, 6, 7, 8, 9, 10}, lines)
	assert.Contains(t, def.Skipped[0].Error(), "mixed.atlas:3")
}

func TestParseRepeatedSameFilename(t *testing.T) {
	def, err := Parse(strings.NewReader("filename=a.png\nfilename=a.png\n"), "x")
	require.NoError(t, err)
	assert.Empty(t, def.Skipped)
}

func TestNormalize(t *testing.T) {
	e := Entry{Name: "icon", X: 0, Y: 0, Width: 16, Height: 16}
	r := e.Normalize(64, 64)
	assert.Equal(t, resource.Rect{U0: 0, V0: 0, U1: 0.25, V1: 0.25}, r)

	e = Entry{Name: "b", X: 32, Y: 16, Width: 32, Height: 48}
	r = e.Normalize(64, 64)
	assert.Equal(t, resource.Rect{U0: 0.5, V0: 0.25, U1: 1, V1: 1}, r)
}

func TestNormalizeIsIdempotent(t *testing.T) {
	e := Entry{Name: "odd", X: 7, Y: 13, Width: 29, Height: 3}
	first := e.Normalize(97, 61)
	second := e.Normalize(97, 61)
	assert.Equal(t, first, second)
}

func TestFits(t *testing.T) {
	e := Entry{Name: "b", X: 32, Y: 16, Width: 32, Height: 48}
	assert.True(t, e.Fits(64, 64))
	assert.False(t, e.Fits(63, 64))
	assert.False(t, e.Fits(64, 32))
}

func TestParseList(t *testing.T) {
	src := "; atlases\nui.atlas\n\n  fx.atlas  \n"
	files, err := ParseList(strings.NewReader(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"ui.atlas", "fx.atlas"}, files)
}
