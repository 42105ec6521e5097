package font

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/font/gofont/goregular"

	"gpu-resource-cache/internal/asset"
	"gpu-resource-cache/internal/resource"
)

func newCache(t *testing.T) *Cache {
	t.Helper()
	idx, err := asset.BuildIndex(fstest.MapFS{
		"fonts/goregular.ttf": {Data: goregular.TTF},
		"fonts/broken.ttf":    {Data: []byte("nope")},
	})
	require.NoError(t, err)
	c := New(idx, nil)
	t.Cleanup(c.Close)
	return c
}

func TestGetFace(t *testing.T) {
	c := newCache(t)
	h, err := c.Get("goregular.ttf", 14)
	require.NoError(t, err)
	assert.Equal(t, "goregular.ttf@14", h.Name())
	assert.Equal(t, 1, h.ID())
	assert.Positive(t, h.Width())
	assert.Positive(t, h.Height())

	same, err := c.GetByName("goregular.ttf@14")
	require.NoError(t, err)
	assert.Same(t, h, same)

	big, err := c.GetByName("goregular.ttf@28")
	require.NoError(t, err)
	assert.Equal(t, 2, big.ID())
	assert.Greater(t, big.Height(), h.Height())
	assert.Len(t, c.fonts, 1)

	small, err := Measure(h, "hello")
	require.NoError(t, err)
	large, err := Measure(big, "hello")
	require.NoError(t, err)
	assert.Greater(t, large, small)

	byID, err := c.GetByID(2)
	require.NoError(t, err)
	assert.Same(t, big, byID)
	_, err = c.GetByID(3)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetErrors(t *testing.T) {
	c := newCache(t)
	_, err := c.Get("goregular.ttf", 0)
	assert.Error(t, err)
	_, err = c.Get("broken.ttf", 12)
	assert.Error(t, err)
	_, err = c.Get("missing.ttf", 12)
	assert.ErrorIs(t, err, asset.ErrNotFound)
	_, err = c.GetByName("goregular.ttf")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = c.GetByName("goregular.ttf@big")
	assert.Error(t, err)
	assert.Equal(t, 0, c.Len())
}

func TestResetReopensFaces(t *testing.T) {
	c := newCache(t)
	h, err := c.Get("goregular.ttf", 16)
	require.NoError(t, err)
	w, ht := h.Width(), h.Height()

	c.PreReset()
	assert.Equal(t, resource.Discarded, h.Descriptor().State())
	_, err = Measure(h, "x")
	assert.Error(t, err)
	_, ok := Advance(h, 'x')
	assert.False(t, ok)

	require.NoError(t, c.PostReset())
	assert.Equal(t, resource.Resident, h.Descriptor().State())
	assert.Equal(t, w, h.Width())
	assert.Equal(t, ht, h.Height())
	adv, ok := Advance(h, 'x')
	assert.True(t, ok)
	assert.Positive(t, adv.Ceil())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "a.ttf@12.5", Key("a.ttf", 12.5))
	assert.Equal(t, "a.ttf@12", Key("a.ttf", 12))
}

func TestGetWhileLost(t *testing.T) {
	c := newCache(t)
	c.PreReset()
	h, err := c.Get("goregular.ttf", 16)
	require.NoError(t, err)
	assert.Positive(t, h.Width())
	assert.Equal(t, resource.Discarded, h.Descriptor().State())
	_, err = Measure(h, "M")
	assert.Error(t, err)

	require.NoError(t, c.PostReset())
	assert.Equal(t, resource.Resident, h.Descriptor().State())
	w, err := Measure(h, "M")
	require.NoError(t, err)
	assert.Equal(t, h.Width(), w)
}
