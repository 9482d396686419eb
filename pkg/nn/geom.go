package nn

import (
	"github.com/chewxy/math32"
)

// Box is an axis-aligned rectangle described by its corners.
// (X0,Y0) is the top-left corner and (X1,Y1) is the bottom-right corner.
type Box struct {
	X0 float32 `json:"x0"`
	Y0 float32 `json:"y0"`
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
}

// BoxFromCenter converts a YOLO style center/size box into corners
func BoxFromCenter(cx, cy, width, height float32) Box {
	return Box{
		X0: cx - width/2,
		Y0: cy - height/2,
		X1: cx + width/2,
		Y1: cy + height/2,
	}
}

func (b Box) Width() float32 {
	return b.X1 - b.X0
}

func (b Box) Height() float32 {
	return b.Y1 - b.Y0
}

func (b Box) Area() float32 {
	return b.Width() * b.Height()
}

// Intersection returns the overlapping region of the two boxes.
// If the boxes don't overlap, the result has zero width and/or height.
func (b Box) Intersection(o Box) Box {
	x0 := math32.Max(b.X0, o.X0)
	y0 := math32.Max(b.Y0, o.Y0)
	x1 := math32.Min(b.X1, o.X1)
	y1 := math32.Min(b.Y1, o.Y1)
	return Box{
		X0: x0,
		Y0: y0,
		X1: x0 + math32.Max(0, x1-x0),
		Y1: y0 + math32.Max(0, y1-y0),
	}
}

// Intersection over Union.
// Returns 0 for disjoint boxes, and for degenerate pairs whose union has no area.
func (b Box) IOU(o Box) float32 {
	inter := b.Intersection(o).Area()
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// Scale multiplies the X coordinates by sx and the Y coordinates by sy
func (b Box) Scale(sx, sy float32) Box {
	return Box{
		X0: b.X0 * sx,
		Y0: b.Y0 * sy,
		X1: b.X1 * sx,
		Y1: b.Y1 * sy,
	}
}

// Round snaps all corners to the nearest whole pixel
func (b Box) Round() Box {
	return Box{
		X0: math32.Round(b.X0),
		Y0: math32.Round(b.Y0),
		X1: math32.Round(b.X1),
		Y1: math32.Round(b.Y1),
	}
}
