package export

import (
	"image"
	"image/color"
	"math"

	"gpu-resource-cache/internal/resource"
)

// PixelRect maps a normalized rectangle onto an image of the given size,
// rounding to the nearest texel edge and clipping to the image.
func PixelRect(r resource.Rect, width, height int) image.Rectangle {
	px := func(v float64, n int) int { return int(math.Round(v * float64(n))) }
	return image.Rect(
		px(r.U0, width), px(r.V0, height),
		px(r.U1, width), px(r.V1, height),
	).Intersect(image.Rect(0, 0, width, height))
}

// Crop copies the region r of img into a new image with its origin at
// (0,0).
func Crop(img *image.NRGBA, r resource.Rect) *image.NRGBA {
	b := img.Bounds()
	pr := PixelRect(r, b.Dx(), b.Dy()).Add(b.Min)
	dst := image.NewNRGBA(image.Rect(0, 0, pr.Dx(), pr.Dy()))
	for y := 0; y < pr.Dy(); y++ {
		src := img.Pix[img.PixOffset(pr.Min.X, pr.Min.Y+y):img.PixOffset(pr.Max.X, pr.Min.Y+y)]
		copy(dst.Pix[dst.PixOffset(0, y):], src)
	}
	return dst
}

// Extract returns the region r of img as a width×height image. Regions on
// whole texels at their own size are copied; anything else (fractional
// edges, a different target size, parts outside the image) is resampled.
// A non-positive width or height takes the region's pixel size.
func Extract(img *image.NRGBA, r resource.Rect, width, height int) *image.NRGBA {
	b := img.Bounds()
	pr := PixelRect(r, b.Dx(), b.Dy())
	if width <= 0 || height <= 0 {
		width, height = pr.Dx(), pr.Dy()
	}
	if onTexels(r, b.Dx(), b.Dy()) && pr.Dx() == width && pr.Dy() == height {
		return Crop(img, r)
	}
	return Resample(img, r, width, height)
}

func onTexels(r resource.Rect, width, height int) bool {
	on := func(v float64, n int) bool {
		p := v * float64(n)
		return v >= 0 && v <= 1 && math.Abs(p-math.Round(p)) < 1e-6
	}
	return on(r.U0, width) && on(r.U1, width) && on(r.V0, height) && on(r.V1, height)
}

// Resample draws the region r of img into a new width×height image,
// filtering bilinearly at the center of every destination texel.
func Resample(img *image.NRGBA, r resource.Rect, width, height int) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, max(width, 1), max(height, 1)))
	b := img.Bounds()
	if b.Empty() {
		return dst
	}
	// Sample puts texel i of n at i/(n-1); texel centers are at (i+0.5)/n.
	toSample := func(v float64, n int) float64 {
		if n <= 1 {
			return 0
		}
		return (v*float64(n) - 0.5) / float64(n-1)
	}
	sr := resource.Rect{
		U0: toSample(r.U0, b.Dx()), V0: toSample(r.V0, b.Dy()),
		U1: toSample(r.U1, b.Dx()), V1: toSample(r.V1, b.Dy()),
	}
	dw, dh := dst.Rect.Dx(), dst.Rect.Dy()
	for y := 0; y < dh; y++ {
		v := (float64(y) + 0.5) / float64(dh)
		for x := 0; x < dw; x++ {
			u := (float64(x) + 0.5) / float64(dw)
			dst.SetNRGBA(x, y, SampleRegion(img, sr, u, v))
		}
	}
	return dst
}

// Sample performs bilinear filtering at (u, v) in [0,1], clamping at the
// edges. Accesses tex.Pix directly for performance.
func Sample(tex *image.NRGBA, u, v float64) color.NRGBA {
	w := tex.Rect.Dx()
	h := tex.Rect.Dy()

	u = clamp01(u)
	v = clamp01(v)

	fx := u * float64(w-1)
	fy := v * float64(h-1)
	x0 := int(fx)
	y0 := int(fy)
	x1 := min(x0+1, w-1)
	y1 := min(y0+1, h-1)
	dx := fx - float64(x0)
	dy := fy - float64(y0)

	stride := tex.Stride
	pix := tex.Pix

	// Four texels
	i00 := y0*stride + x0*4
	i10 := y0*stride + x1*4
	i01 := y1*stride + x0*4
	i11 := y1*stride + x1*4

	w00 := (1 - dx) * (1 - dy)
	w10 := dx * (1 - dy)
	w01 := (1 - dx) * dy
	w11 := dx * dy

	var out [4]uint8
	for c := 0; c < 4; c++ {
		f := float64(pix[i00+c])*w00 + float64(pix[i10+c])*w10 + float64(pix[i01+c])*w01 + float64(pix[i11+c])*w11
		out[c] = uint8(f + 0.5)
	}
	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: out[3]}
}

// SampleRegion samples at (u, v) local to the region r of tex, so (0,0)
// and (1,1) are the region's corners.
func SampleRegion(tex *image.NRGBA, r resource.Rect, u, v float64) color.NRGBA {
	return Sample(tex, r.U0+u*(r.U1-r.U0), r.V0+v*(r.V1-r.V0))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
