// Package overlay draws detection boxes and labels onto a transparent surface,
// which is composited over the live camera view.
package overlay

import (
	"image"
	"image/color"
	"math"

	"github.com/chewxy/math32"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/pulseapp/companion/pkg/nn"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	DefaultWidth  = 640
	DefaultHeight = 480

	LineWidth = 3
	FontSize  = 20
	LabelLift = 5  // Label baseline is this many pixels above the top of the box
	FillAlpha = 51 // 0.2 * 255
)

var labelFont *truetype.Font

func init() {
	var err error
	labelFont, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Surface is a transparent RGBA canvas that detections are drawn onto.
// A Surface is not safe for concurrent use.
type Surface struct {
	dc   *gg.Context
	face font.Face
}

// NewSurface creates a surface. If width or height is zero, the default of 640x480 is used.
func NewSurface(width, height int) *Surface {
	if width <= 0 || height <= 0 {
		width, height = DefaultWidth, DefaultHeight
	}
	return &Surface{
		dc:   gg.NewContext(width, height),
		face: truetype.NewFace(labelFont, &truetype.Options{Size: FontSize}),
	}
}

func (s *Surface) Size() (width, height int) {
	return s.dc.Width(), s.dc.Height()
}

// Clear the entire surface to transparent
func (s *Surface) Clear() {
	s.dc.SetColor(color.Transparent)
	s.dc.Clear()
}

// Draw renders each detection as an outline, a label, and a translucent fill.
// Detections are drawn over whatever is already on the surface.
func (s *Surface) Draw(dets []nn.RenderedDetection) {
	dc := s.dc
	dc.SetFontFace(s.face)
	for _, d := range dets {
		x := float64(d.Box.X0)
		y := float64(d.Box.Y0)
		w := float64(d.Box.Width())
		h := float64(d.Box.Height())

		dc.SetColor(d.Color)
		dc.SetLineWidth(LineWidth)
		dc.DrawRectangle(x, y, w, h)
		dc.Stroke()

		dc.DrawString(d.Label, x, y-LabelLift)

		dc.SetColor(color.NRGBA{R: d.Color.R, G: d.Color.G, B: d.Color.B, A: FillAlpha})
		dc.DrawRectangle(x, y, w, h)
		dc.Fill()
	}
}

// Image returns the surface's backing image. It is overwritten by the next Clear/Draw.
func (s *Surface) Image() image.Image {
	return s.dc.Image()
}

// Snapshot returns a copy of the surface that is safe to hold onto
func (s *Surface) Snapshot() *image.RGBA {
	src := s.dc.Image().(*image.RGBA)
	dst := image.NewRGBA(src.Bounds())
	copy(dst.Pix, src.Pix)
	return dst
}

// ConfidenceColor maps a confidence of 0 to red, and 1 to green
func ConfidenceColor(confidence float32) color.RGBA {
	c := math.Max(0, math.Min(1, float64(confidence)))
	return color.RGBA{
		R: uint8(math.Round(255 * (1 - c))),
		G: uint8(math.Round(255 * c)),
		B: 0,
		A: 255,
	}
}

// Scale maps model-space detections onto a surface of the given size, and attaches labels and colors.
// If snap is true, box coordinates are rounded to whole pixels, and the color is derived from the
// confidence rounded to the precision that is shown in the label.
func Scale(dets []nn.Detection, modelWidth, modelHeight, surfaceWidth, surfaceHeight int, snap bool) []nn.RenderedDetection {
	sx := float32(surfaceWidth) / float32(modelWidth)
	sy := float32(surfaceHeight) / float32(modelHeight)
	out := make([]nn.RenderedDetection, 0, len(dets))
	for _, d := range dets {
		r := nn.RenderedDetection{
			Detection: d,
			Label:     nn.FormatLabel(d.Class, d.Confidence),
		}
		r.Box = d.Box.Scale(sx, sy)
		colorConf := d.Confidence
		if snap {
			r.Box = r.Box.Round()
			colorConf = math32.Round(d.Confidence*1000) / 1000
		}
		r.Color = ConfidenceColor(colorConf)
		out = append(out, r)
	}
	return out
}
