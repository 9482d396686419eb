// Package preprocess converts camera frames into model input tensors.
package preprocess

import (
	"image"

	"github.com/disintegration/imaging"
	"github.com/pulseapp/companion/pkg/nn"
)

// ToTensor resizes frame to exactly width x height, and returns a [1, 3, height, width] tensor,
// with planar RGB channels, and values in the range [0, 1].
// Aspect ratio is not preserved, and alpha is ignored.
func ToTensor(frame image.Image, width, height int) *nn.Tensor {
	pix, stride := rgbaPixels(frame, width, height)

	t := nn.NewTensor(1, 3, height, width)
	plane := width * height
	r := t.Data[0:plane]
	g := t.Data[plane : 2*plane]
	b := t.Data[2*plane : 3*plane]
	for y := 0; y < height; y++ {
		src := pix[y*stride:]
		dst := y * width
		for x := 0; x < width; x++ {
			r[dst+x] = float32(src[x*4]) / 255
			g[dst+x] = float32(src[x*4+1]) / 255
			b[dst+x] = float32(src[x*4+2]) / 255
		}
	}
	return t
}

// Returns the 8-bit RGBA pixels of frame, resized to width x height, and the stride of the pixel buffer.
func rgbaPixels(frame image.Image, width, height int) ([]byte, int) {
	bounds := frame.Bounds()
	if bounds.Dx() == width && bounds.Dy() == height && bounds.Min == (image.Point{}) {
		// RGBA is premultiplied, so it goes through Clone like every other non-NRGBA image
		if img, ok := frame.(*image.NRGBA); ok {
			return img.Pix, img.Stride
		}
		clone := imaging.Clone(frame)
		return clone.Pix, clone.Stride
	}
	resized := imaging.Resize(frame, width, height, imaging.Linear)
	return resized.Pix, resized.Stride
}
