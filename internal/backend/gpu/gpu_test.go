package gpu

import (
	"image"
	"image/color"
	"os"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gpu-resource-cache/internal/backend"
)

// newDevice opens a fallback adapter. GPU tests only run when
// RESCACHE_GPU_TESTS is set, since CI machines rarely have one.
func newDevice(t *testing.T, f backend.PixelFormat) *Device {
	t.Helper()
	if os.Getenv("RESCACHE_GPU_TESTS") == "" {
		t.Skip("RESCACHE_GPU_TESTS not set")
	}
	d, err := New(f, Options{ForceFallbackAdapter: true})
	if err != nil {
		t.Skipf("no wgpu adapter: %v", err)
	}
	t.Cleanup(d.Release)
	return d
}

func TestTextureFormat(t *testing.T) {
	f, err := textureFormat(backend.RGBA8SRGB)
	require.NoError(t, err)
	assert.Equal(t, wgpu.TextureFormatRGBA8UnormSrgb, f)
	_, err = textureFormat(backend.PixelFormat(99))
	assert.ErrorIs(t, err, backend.ErrUnsupportedFormat)
}

func TestPackedSwizzlesBGRA(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 1, 1))
	img.SetNRGBA(0, 0, color.NRGBA{R: 1, G: 2, B: 3, A: 4})
	assert.Equal(t, []byte{1, 2, 3, 4}, (&Device{format: backend.RGBA8}).packed(img))
	assert.Equal(t, []byte{3, 2, 1, 4}, (&Device{format: backend.BGRA8}).packed(img))
}

func TestTextureReset(t *testing.T) {
	d := newDevice(t, backend.RGBA8)
	n, err := d.NewTexture("red", image.NewNRGBA(image.Rect(0, 0, 4, 4)))
	require.NoError(t, err)
	tex := n.(*Texture)
	assert.NotNil(t, tex.View())

	tex.PreReset()
	d.PreReset()
	assert.Nil(t, tex.View())
	assert.ErrorIs(t, tex.PostReset(), backend.ErrDeviceLost)

	require.NoError(t, d.PostReset())
	require.NoError(t, tex.PostReset())
	assert.NotNil(t, tex.View())
	tex.Dispose()
}

func TestSurfaceAndShader(t *testing.T) {
	d := newDevice(t, backend.BGRA8)
	s, err := d.NewSurface("depth", backend.Depth, 64, 64)
	require.NoError(t, err)
	assert.NotNil(t, s.(*Surface).View())
	s.Dispose()

	sh, err := d.NewShaderModule("fx", backend.ShaderCode{WGSL: `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color;
}
`})
	require.NoError(t, err)
	assert.NotNil(t, sh.(*Shader).Module())
	sh.Dispose()

	_, err = d.NewShaderModule("empty", backend.ShaderCode{})
	assert.Error(t, err)
}
