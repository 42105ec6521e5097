package texture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"path"
	"strings"

	"github.com/ftrvxmtrx/tga"
	"github.com/h2non/filetype"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned for data no decoder understands.
var ErrUnsupportedImage = errors.New("texture: unsupported image data")

const (
	ozjHeaderSize = 24 // OZJ: 24-byte header + JPEG data
	oztHeaderSize = 4  // OZT: 4-byte header + TGA data
)

var decoders = map[string]func(io.Reader) (image.Image, error){
	"jpg":  jpeg.Decode,
	"png":  png.Decode,
	"gif":  gif.Decode,
	"bmp":  bmp.Decode,
	"webp": webp.Decode,
	"tga":  tga.Decode,
}

// Decode turns raw asset bytes into an NRGBA image. The name's extension
// selects OZJ/OZT container handling and TGA (which has no magic number);
// everything else is identified from its contents.
func Decode(name string, raw []byte) (*image.NRGBA, error) {
	ext := strings.ToLower(path.Ext(name))
	data := raw
	kind := ""

	switch ext {
	case ".ozj":
		if len(raw) <= ozjHeaderSize {
			return nil, fmt.Errorf("texture: OZJ too short: %s", name)
		}
		data = raw[ozjHeaderSize:]
	case ".ozt":
		if len(raw) <= oztHeaderSize {
			return nil, fmt.Errorf("texture: OZT too short: %s", name)
		}
		data = raw[oztHeaderSize:]
		kind = "tga"
	case ".tga":
		kind = "tga"
	}

	if kind == "" {
		t, err := filetype.Match(data)
		if err != nil || t == filetype.Unknown {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, name)
		}
		kind = t.Extension
	}
	decode, ok := decoders[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %s is %s", ErrUnsupportedImage, name, kind)
	}

	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("texture: decode %s: %w", name, err)
	}
	return toNRGBA(img), nil
}

// toNRGBA converts any image to NRGBA with its origin at (0,0).
func toNRGBA(src image.Image) *image.NRGBA {
	b := src.Bounds()
	if n, ok := src.(*image.NRGBA); ok && b.Min == (image.Point{}) {
		return n
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}
