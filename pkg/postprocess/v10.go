package postprocess

import (
	"github.com/pulseapp/companion/pkg/nn"
)

// V10Decoder decodes YOLOv10 output, which is [1, N, 6] of (x0, y0, x1, y1, score, class).
// Rows are sorted by descending score, so we stop at the first row below the threshold.
// NMS is part of the model, so there is none here.
type V10Decoder struct {
	NumClasses int
}

func (d *V10Decoder) Decode(output *nn.Tensor, params *nn.DetectionParams) ([]nn.Detection, error) {
	p := params.WithDefaults()
	shape := output.Shape
	if len(shape) != 3 || shape[0] != 1 || shape[2] != 6 {
		return nil, shapeError("expected [1, N, 6] but got %v", shape)
	}
	if len(output.Data) != nn.ShapeSize(shape) {
		return nil, shapeError("tensor has %v elements, but shape %v needs %v", len(output.Data), shape, nn.ShapeSize(shape))
	}

	dets := []nn.Detection{}
	for i := 0; i < shape[1]; i++ {
		row := output.Data[i*6 : i*6+6]
		score := row[4]
		if score < p.ProbabilityThreshold {
			break
		}
		class, err := classFromFloat(row[5], d.NumClasses)
		if err != nil {
			return nil, err
		}
		dets = append(dets, nn.Detection{
			Class:      class,
			Confidence: score,
			Box:        nn.Box{X0: row[0], Y0: row[1], X1: row[2], Y1: row[3]},
		})
	}
	return dets, nil
}
