package effects

import (
	"image"
	"image/color"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// Watermark placement.
const (
	WatermarkScale   = 0.10 // fraction of frame width
	WatermarkOpacity = 0.35
	watermarkMargin  = 24
)

const (
	lowerThirdHeightFrac = 0.12
	calloutPadding       = 12
)

var (
	overlayBarColor  = color.RGBA{R: 0x00, G: 0x00, B: 0x00, A: 0xa0}
	calloutBoxColor  = color.RGBA{R: 0x12, G: 0x12, B: 0x18, A: 0xd0}
	overlayTextColor = color.RGBA{R: 0xf5, G: 0xf5, B: 0xf5, A: 0xff}
)

func textFace() font.Face { return basicfont.Face7x13 }

func drawString(dst *image.RGBA, text string, x, y int, c color.Color) {
	d := font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: textFace(),
		Dot:  fixed.P(x, y),
	}
	d.DrawString(text)
}

func textWidth(text string) int {
	return font.MeasureString(textFace(), text).Ceil()
}

// blendRect alpha-blends a solid color over a rectangle.
func blendRect(dst *image.RGBA, r image.Rectangle, c color.RGBA) {
	r = r.Intersect(dst.Bounds())
	alpha := float64(c.A) / 255
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			i := dst.PixOffset(x, y)
			dst.Pix[i] = clamp8(float64(dst.Pix[i])*(1-alpha) + float64(c.R)*alpha)
			dst.Pix[i+1] = clamp8(float64(dst.Pix[i+1])*(1-alpha) + float64(c.G)*alpha)
			dst.Pix[i+2] = clamp8(float64(dst.Pix[i+2])*(1-alpha) + float64(c.B)*alpha)
		}
	}
}

// DrawLowerThird renders a translucent text bar along the bottom of the
// frame. alpha in [0, 1] fades the whole overlay, used for scene-local
// fade-in of the text.
func DrawLowerThird(dst *image.RGBA, text string, alpha float64) {
	if text == "" || alpha <= 0 {
		return
	}
	if alpha > 1 {
		alpha = 1
	}

	b := dst.Bounds()
	barH := int(float64(b.Dy()) * lowerThirdHeightFrac)
	bar := image.Rect(b.Min.X, b.Max.Y-barH, b.Max.X, b.Max.Y)

	barColor := overlayBarColor
	barColor.A = clamp8(float64(barColor.A) * alpha)
	blendRect(dst, bar, barColor)

	textColor := overlayTextColor
	textColor.A = clamp8(float64(textColor.A) * alpha)

	lines := wrapText(text, (b.Dx()-2*calloutPadding)/7)
	lineH := textFace().Metrics().Height.Ceil() + 2
	y := bar.Min.Y + (barH-lineH*len(lines))/2 + textFace().Metrics().Ascent.Ceil()
	for _, line := range lines {
		x := b.Min.X + (b.Dx()-textWidth(line))/2
		drawString(dst, line, x, y, textColor)
		y += lineH
	}
}

// DrawCallout renders a small framed box near the top of the frame,
// used to label chart, diagram, and table scenes.
func DrawCallout(dst *image.RGBA, text string) {
	if text == "" {
		return
	}

	b := dst.Bounds()
	w := textWidth(text) + 2*calloutPadding
	h := textFace().Metrics().Height.Ceil() + 2*calloutPadding

	x0 := b.Min.X + (b.Dx()-w)/2
	y0 := b.Min.Y + b.Dy()/12
	box := image.Rect(x0, y0, x0+w, y0+h)

	blendRect(dst, box, calloutBoxColor)
	drawString(dst, text, x0+calloutPadding, y0+calloutPadding+textFace().Metrics().Ascent.Ceil(), overlayTextColor)
}

// DrawWatermark composites a logo into the top-right corner at a fixed
// scale and opacity. The watermark is always the topmost layer.
func DrawWatermark(dst *image.RGBA, logo image.Image) {
	if logo == nil {
		return
	}

	b := dst.Bounds()
	lb := logo.Bounds()
	if lb.Dx() == 0 || lb.Dy() == 0 {
		return
	}

	w := int(float64(b.Dx()) * WatermarkScale)
	h := int(float64(lb.Dy()) * float64(w) / float64(lb.Dx()))
	if w < 1 || h < 1 {
		return
	}

	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), logo, lb, draw.Over, nil)

	x0 := b.Max.X - w - watermarkMargin
	y0 := b.Min.Y + watermarkMargin
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			si := scaled.PixOffset(x, y)
			a := float64(scaled.Pix[si+3]) / 255 * WatermarkOpacity
			if a == 0 {
				continue
			}
			di := dst.PixOffset(x0+x, y0+y)
			dst.Pix[di] = clamp8(float64(dst.Pix[di])*(1-a) + float64(scaled.Pix[si])*a)
			dst.Pix[di+1] = clamp8(float64(dst.Pix[di+1])*(1-a) + float64(scaled.Pix[si+1])*a)
			dst.Pix[di+2] = clamp8(float64(dst.Pix[di+2])*(1-a) + float64(scaled.Pix[si+2])*a)
		}
	}
}

// TitleCard renders a gradient card with centered title and subtitle,
// used for the intro and outro.
func TitleCard(width, height int, title, subtitle string, seed int) *image.RGBA {
	card := Gradient(width, height, seed)
	Vignette(card, DefaultVignette)

	lineH := textFace().Metrics().Height.Ceil() + 4
	titleLines := wrapText(title, (width-4*calloutPadding)/7)
	subLines := wrapText(subtitle, (width-4*calloutPadding)/7)

	totalH := lineH * (len(titleLines) + len(subLines))
	if len(subLines) > 0 {
		totalH += lineH // gap between title and subtitle
	}

	y := (height-totalH)/2 + textFace().Metrics().Ascent.Ceil()
	for _, line := range titleLines {
		drawString(card, line, (width-textWidth(line))/2, y, overlayTextColor)
		y += lineH
	}
	y += lineH
	for _, line := range subLines {
		drawString(card, line, (width-textWidth(line))/2, y, color.RGBA{R: 0xc0, G: 0xc0, B: 0xc8, A: 0xff})
		y += lineH
	}
	return card
}

// wrapText splits text into lines of at most maxChars characters on word
// boundaries.
func wrapText(text string, maxChars int) []string {
	if maxChars < 8 {
		maxChars = 8
	}
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	var lines []string
	line := words[0]
	for _, word := range words[1:] {
		if len(line)+1+len(word) > maxChars {
			lines = append(lines, line)
			line = word
			continue
		}
		line += " " + word
	}
	return append(lines, line)
}
