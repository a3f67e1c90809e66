// Package effects implements the pure image operations used by the frame
// compositor: pan/zoom, crossfade, vignette, color grade, gradients, and
// text overlays. Every function is deterministic and side-effect free so
// frames can be rendered (and tested) without touching a renderer process.
package effects

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"

	"docuvid/internal/models"
)

// Default cinematic parameters.
const (
	// Ken Burns drift: zoom from 1.0 to 1.25 with at most 8% frame pan.
	DefaultZoomStart = 1.0
	DefaultZoomEnd   = 1.25
	MaxPanFraction   = 0.08

	// Vignette darkening strength at the frame corners.
	DefaultVignette = 0.4

	// Color grade: warm tint and gentle contrast boost.
	DefaultWarmth   = 0.05
	DefaultContrast = 1.1

	// Shadows are lifted to this floor so graded frames never crush.
	shadowFloor = 8
)

// EaseInOut is the cubic smoothstep 3t^2 - 2t^3, clamped to [0, 1].
func EaseInOut(t float64) float64 {
	if t <= 0 {
		return 0
	}
	if t >= 1 {
		return 1
	}
	return t * t * (3 - 2*t)
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}

// toRGBA returns img as *image.RGBA, copying only when needed.
func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	b := img.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return dst
}

// gradientPalettes are the deterministic fallback backgrounds, picked by
// scene index so re-renders are stable.
var gradientPalettes = [][2]color.RGBA{
	{{R: 0x1d, G: 0x2b, B: 0x53, A: 0xff}, {R: 0x3a, G: 0x5a, B: 0x8c, A: 0xff}},
	{{R: 0x2d, G: 0x1b, B: 0x4e, A: 0xff}, {R: 0x6b, G: 0x3f, B: 0x91, A: 0xff}},
	{{R: 0x0f, G: 0x3d, B: 0x3e, A: 0xff}, {R: 0x2e, G: 0x73, B: 0x6d, A: 0xff}},
	{{R: 0x4a, G: 0x2c, B: 0x20, A: 0xff}, {R: 0x8c, G: 0x5a, B: 0x3a, A: 0xff}},
	{{R: 0x22, G: 0x22, B: 0x2e, A: 0xff}, {R: 0x4e, G: 0x4e, B: 0x66, A: 0xff}},
}

// Gradient renders a vertical two-stop gradient. seed selects the palette
// deterministically.
func Gradient(width, height, seed int) *image.RGBA {
	if seed < 0 {
		seed = -seed
	}
	palette := gradientPalettes[seed%len(gradientPalettes)]
	top, bottom := palette[0], palette[1]

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		t := 0.0
		if height > 1 {
			t = float64(y) / float64(height-1)
		}
		r := clamp8(float64(top.R) + (float64(bottom.R)-float64(top.R))*t)
		g := clamp8(float64(top.G) + (float64(bottom.G)-float64(top.G))*t)
		b := clamp8(float64(top.B) + (float64(bottom.B)-float64(top.B))*t)
		row := img.PixOffset(0, y)
		for x := 0; x < width; x++ {
			i := row + x*4
			img.Pix[i] = r
			img.Pix[i+1] = g
			img.Pix[i+2] = b
			img.Pix[i+3] = 0xff
		}
	}
	return img
}

// FitFrame letterboxes img onto a width x height dark canvas, preserving
// aspect ratio.
func FitFrame(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.RGBA{R: 0x10, G: 0x10, B: 0x14, A: 0xff}), image.Point{}, draw.Src)

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return dst
	}

	scale := math.Min(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	w := int(float64(b.Dx()) * scale)
	h := int(float64(b.Dy()) * scale)
	x0 := (width - w) / 2
	y0 := (height - h) / 2

	draw.CatmullRom.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), img, b, draw.Over, nil)
	return dst
}

// CoverFrame scales img to fill width x height completely, cropping the
// overflow. Used for backgrounds where letterbox bars would be ugly.
func CoverFrame(img image.Image, width, height int) *image.RGBA {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return dst
	}

	scale := math.Max(float64(width)/float64(b.Dx()), float64(height)/float64(b.Dy()))
	srcW := float64(width) / scale
	srcH := float64(height) / scale
	cx := float64(b.Min.X) + float64(b.Dx())/2
	cy := float64(b.Min.Y) + float64(b.Dy())/2
	src := image.Rect(
		int(cx-srcW/2), int(cy-srcH/2),
		int(cx+srcW/2), int(cy+srcH/2),
	).Intersect(b)

	draw.CatmullRom.Scale(dst, dst.Bounds(), img, src, draw.Src, nil)
	return dst
}

// PanZoom renders one Ken Burns frame at progress t in [0, 1]. Zoom
// interpolates between p.ZoomStart and p.ZoomEnd with eased progress; pan
// offsets are fractions of the source frame, fully applied at t=1.
func PanZoom(src image.Image, width, height int, p models.EffectParams, t float64) *image.RGBA {
	base := CoverFrame(src, width, height)

	zs := p.ZoomStart
	ze := p.ZoomEnd
	if zs <= 0 {
		zs = DefaultZoomStart
	}
	if ze <= 0 {
		ze = DefaultZoomEnd
	}

	eased := EaseInOut(t)
	zoom := zs + (ze-zs)*eased
	if zoom < 1 {
		zoom = 1
	}

	srcW := float64(width) / zoom
	srcH := float64(height) / zoom

	// Pan moves the crop window; clamp keeps it inside the frame.
	cx := float64(width)/2 + p.PanX*eased*float64(width)
	cy := float64(height)/2 + p.PanY*eased*float64(height)
	cx = math.Max(srcW/2, math.Min(float64(width)-srcW/2, cx))
	cy = math.Max(srcH/2, math.Min(float64(height)-srcH/2, cy))

	crop := image.Rect(
		int(cx-srcW/2), int(cy-srcH/2),
		int(cx+srcW/2), int(cy+srcH/2),
	)

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), base, crop, draw.Src, nil)
	return dst
}

// Crossfade blends two equally sized frames; t=0 is all a, t=1 all b.
// t is clamped, not eased, so callers control the fade curve.
func Crossfade(a, b image.Image, t float64) *image.RGBA {
	if t <= 0 {
		return toRGBA(a)
	}
	if t >= 1 {
		return toRGBA(b)
	}

	ra := toRGBA(a)
	rb := toRGBA(b)
	bounds := ra.Bounds()
	dst := image.NewRGBA(bounds)

	for i := 0; i < len(dst.Pix); i++ {
		dst.Pix[i] = clamp8(float64(ra.Pix[i])*(1-t) + float64(rb.Pix[i])*t)
	}
	return dst
}

// Vignette darkens the frame toward its corners in place. intensity is
// the darkening fraction at the corner; 0 is a no-op.
func Vignette(img *image.RGBA, intensity float64) {
	if intensity <= 0 {
		return
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	cx, cy := float64(w)/2, float64(h)/2
	maxDist := math.Hypot(cx, cy)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dist := math.Hypot(float64(x)-cx, float64(y)-cy) / maxDist
			factor := 1 - intensity*dist*dist
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			img.Pix[i] = clamp8(float64(img.Pix[i]) * factor)
			img.Pix[i+1] = clamp8(float64(img.Pix[i+1]) * factor)
			img.Pix[i+2] = clamp8(float64(img.Pix[i+2]) * factor)
		}
	}
}

// ColorGrade applies a warm tint and contrast curve in place. Shadows are
// lifted to a small floor so dark regions keep detail after grading.
func ColorGrade(img *image.RGBA, warmth, contrast float64) {
	for i := 0; i < len(img.Pix); i += 4 {
		r := float64(img.Pix[i])
		g := float64(img.Pix[i+1])
		b := float64(img.Pix[i+2])

		r *= 1 + warmth
		b *= 1 - warmth

		r = (r-128)*contrast + 128
		g = (g-128)*contrast + 128
		b = (b-128)*contrast + 128

		if r < shadowFloor {
			r = shadowFloor
		}
		if g < shadowFloor {
			g = shadowFloor
		}
		if b < shadowFloor {
			b = shadowFloor
		}

		img.Pix[i] = clamp8(r)
		img.Pix[i+1] = clamp8(g)
		img.Pix[i+2] = clamp8(b)
	}
}

// Fade scales frame brightness in place; level 1 leaves the frame alone,
// level 0 is black. Used for fade-in/out at title cards.
func Fade(img *image.RGBA, level float64) {
	if level >= 1 {
		return
	}
	if level < 0 {
		level = 0
	}
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = clamp8(float64(img.Pix[i]) * level)
		img.Pix[i+1] = clamp8(float64(img.Pix[i+1]) * level)
		img.Pix[i+2] = clamp8(float64(img.Pix[i+2]) * level)
	}
}
