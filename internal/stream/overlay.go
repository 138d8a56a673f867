package stream

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

const (
	placeholderWidth  = 640
	placeholderHeight = 480
	strokeWidth       = 2
)

var (
	colorKnown   = color.RGBA{R: 0, G: 200, B: 0, A: 255}
	colorUnknown = color.RGBA{R: 220, G: 0, B: 0, A: 255}
	colorLabelBg = color.RGBA{R: 0, G: 0, B: 0, A: 160}
)

// Annotate copies frame and draws a box around every result. The best
// known result, if any, is labelled with its identity and confidence;
// otherwise the banner reads "Unknown".
func Annotate(frame image.Image, results []domain.IdentificationResult, best *domain.IdentificationResult) *image.RGBA {
	bounds := frame.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), frame, bounds.Min, draw.Src)

	for _, r := range results {
		c := colorUnknown
		if r.Known() {
			c = colorKnown
		}
		drawBox(dst, r.Box.Rect(), c)
	}

	label, c := "Unknown", colorUnknown
	if best != nil {
		label, c = fmt.Sprintf("%s %.1f%%", best.IdentityID, best.Confidence), colorKnown
		drawLabel(dst, best.Box.Rect().Min, label, c)
	}
	drawBanner(dst, label, c)

	return dst
}

// Placeholder is the "no signal" frame sent when the camera cannot be opened.
func Placeholder() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, placeholderWidth, placeholderHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.Black), image.Point{}, draw.Src)
	return img
}

func drawBox(dst *image.RGBA, r image.Rectangle, c color.Color) {
	r = r.Intersect(dst.Bounds())
	if r.Empty() {
		return
	}
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+strokeWidth),
		image.Rect(r.Min.X, r.Max.Y-strokeWidth, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+strokeWidth, r.Max.Y),
		image.Rect(r.Max.X-strokeWidth, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}

// drawLabel writes text just above p, or inside the box when p is at the
// top edge.
func drawLabel(dst *image.RGBA, p image.Point, text string, c color.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, text).Ceil()
	height := face.Metrics().Height.Ceil()

	top := p.Y - height - 2
	if top < 0 {
		top = p.Y + strokeWidth
	}
	bg := image.Rect(p.X, top, p.X+width+4, top+height+2).Intersect(dst.Bounds())
	draw.Draw(dst, bg, image.NewUniform(colorLabelBg), image.Point{}, draw.Over)

	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(c),
		Face: face,
		Dot:  fixed.P(p.X+2, top+face.Metrics().Ascent.Ceil()+1),
	}
	d.DrawString(text)
}

func drawBanner(dst *image.RGBA, text string, c color.Color) {
	drawLabel(dst, image.Pt(10, 10+basicfont.Face7x13.Metrics().Height.Ceil()+2), text, c)
}
