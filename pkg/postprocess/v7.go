package postprocess

import (
	"github.com/pulseapp/companion/pkg/nn"
)

// V7Decoder decodes YOLOv7 output with the end-to-end NMS export.
// The layout is [N, 7] of (batch, x0, y0, x1, y1, class, score). Every row is a final
// detection, so there is no threshold and no NMS.
type V7Decoder struct {
	NumClasses int
}

func (d *V7Decoder) Decode(output *nn.Tensor, params *nn.DetectionParams) ([]nn.Detection, error) {
	shape := output.Shape
	if len(shape) != 2 || shape[1] != 7 {
		return nil, shapeError("expected [N, 7] but got %v", shape)
	}
	if len(output.Data) != nn.ShapeSize(shape) {
		return nil, shapeError("tensor has %v elements, but shape %v needs %v", len(output.Data), shape, nn.ShapeSize(shape))
	}

	dets := make([]nn.Detection, 0, shape[0])
	for i := 0; i < shape[0]; i++ {
		row := output.Data[i*7 : i*7+7]
		class, err := classFromFloat(row[5], d.NumClasses)
		if err != nil {
			return nil, err
		}
		dets = append(dets, nn.Detection{
			Class:      class,
			Confidence: row[6],
			Box:        nn.Box{X0: row[1], Y0: row[2], X1: row[3], Y1: row[4]},
		})
	}
	return dets, nil
}
