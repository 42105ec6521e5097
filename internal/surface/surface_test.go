package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-resource-cache/internal/backend"
	"gpu-resource-cache/internal/backend/soft"
	"gpu-resource-cache/internal/resource"
)

func TestCreateAndLookup(t *testing.T) {
	dev := soft.New(backend.RGBA8)
	c := New(dev, nil)
	defer c.Close()

	depth, err := c.Create("depth", Params{Kind: backend.Depth, Width: 640, Height: 480})
	require.NoError(t, err)
	rt, err := c.Create("scene", Params{Kind: backend.RenderTarget, Width: 320, Height: 240})
	require.NoError(t, err)
	assert.Equal(t, 1, depth.ID())
	assert.Equal(t, 2, rt.ID())
	assert.Equal(t, 2, dev.Live())

	again, err := c.Create("depth", Params{Kind: backend.Depth, Width: 640, Height: 480})
	require.NoError(t, err)
	assert.Same(t, depth, again)
	_, err = c.Create("depth", Params{Kind: backend.Depth, Width: 1, Height: 1})
	assert.ErrorIs(t, err, resource.ErrDuplicateName)

	got, err := c.GetByID(2)
	require.NoError(t, err)
	assert.Same(t, rt, got)
	_, err = c.Get("nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Create("bad", Params{Kind: backend.Depth})
	assert.Error(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestResize(t *testing.T) {
	dev := soft.New(backend.RGBA8)
	c := New(dev, nil)
	defer c.Close()
	s, err := c.Create("depth", Params{Kind: backend.Depth, Width: 64, Height: 64})
	require.NoError(t, err)

	var notified int
	s.Subscribe(func(*resource.Descriptor) { notified++ })

	require.NoError(t, c.Resize("depth", 128, 32))
	assert.Equal(t, 128, s.Width())
	assert.Equal(t, 32, s.Height())
	assert.Equal(t, 1, notified)
	assert.Equal(t, 1, dev.Live())
	assert.Equal(t, 1, s.ID())

	require.NoError(t, c.Resize("depth", 128, 32))
	assert.Equal(t, 1, notified)
	assert.Error(t, c.Resize("depth", 0, 32))
	assert.ErrorIs(t, c.Resize("nope", 1, 1), ErrNotFound)
}

func TestResetRecreatesAtCurrentSize(t *testing.T) {
	dev := soft.New(backend.RGBA8)
	c := New(dev, nil)
	defer c.Close()
	a, err := c.Create("depth", Params{Kind: backend.Depth, Width: 64, Height: 64})
	require.NoError(t, err)
	b, err := c.Create("scene", Params{Kind: backend.RenderTarget, Width: 64, Height: 64})
	require.NoError(t, err)

	c.PreReset()
	assert.Equal(t, 0, dev.Live())
	assert.Equal(t, resource.Discarded, a.Descriptor().State())

	// Resized while lost: applied on restore.
	require.NoError(t, c.ResizeAll(100, 50))
	assert.Equal(t, 64, a.Width())
	assert.Equal(t, 0, dev.Live())

	require.NoError(t, c.PostReset())
	assert.Equal(t, 2, dev.Live())
	assert.Equal(t, 100, a.Width())
	assert.Equal(t, 50, b.Height())
	assert.Equal(t, resource.Resident, a.Descriptor().State())
	assert.Equal(t, resource.Resident, b.Descriptor().State())
	assert.True(t, b.Descriptor().Native().(*soft.Surface).Resident())
}

func TestCreateWhileLost(t *testing.T) {
	dev := soft.New(backend.RGBA8)
	c := New(dev, nil)
	defer c.Close()

	c.PreReset()
	dev.Lose()
	depth, err := c.Create("depth", Params{Kind: backend.Depth, Width: 64, Height: 32})
	require.NoError(t, err)
	assert.Equal(t, 1, depth.ID())
	assert.True(t, depth.Descriptor().Deferred())
	assert.Equal(t, 0, dev.Created())

	_, err = c.Create("bad", Params{Kind: backend.Depth})
	assert.Error(t, err)
	require.NoError(t, c.Resize("depth", 128, 64))

	dev.Restore()
	require.NoError(t, c.PostReset())
	d := depth.Descriptor()
	assert.False(t, d.Deferred())
	assert.Equal(t, resource.Resident, d.State())
	assert.Equal(t, 128, d.Width())
	assert.Equal(t, 1, dev.Live())
}
