package postprocess

import (
	"github.com/pulseapp/companion/pkg/nn"
)

// V11Decoder decodes the raw anchor grid emitted by YOLOv8/11/12 models.
// The layout is [1, 4+numClasses, numAnchors], with the rows being
// cx, cy, w, h, followed by one score per class.
// These models do not perform NMS internally, so we do it here.
type V11Decoder struct {
	NumClasses int
}

func (d *V11Decoder) Decode(output *nn.Tensor, params *nn.DetectionParams) ([]nn.Detection, error) {
	p := params.WithDefaults()
	shape := output.Shape
	if len(shape) != 3 || shape[0] != 1 || shape[1] <= 4 {
		return nil, shapeError("expected [1, 4+classes, anchors] but got %v", shape)
	}
	numClasses := shape[1] - 4
	numAnchors := shape[2]
	if numClasses > d.NumClasses {
		return nil, shapeError("tensor has %v classes, but vocabulary only has %v", numClasses, d.NumClasses)
	}
	if len(output.Data) != nn.ShapeSize(shape) {
		return nil, shapeError("tensor has %v elements, but shape %v needs %v", len(output.Data), shape, nn.ShapeSize(shape))
	}

	data := output.Data
	dets := []nn.Detection{}
	for i := 0; i < numAnchors; i++ {
		bestScore := float32(0)
		bestClass := 0
		for c := 0; c < numClasses; c++ {
			score := data[(4+c)*numAnchors+i]
			if score > bestScore {
				bestScore = score
				bestClass = c
			}
		}
		if bestScore <= p.ProbabilityThreshold {
			continue
		}
		cx := data[i]
		cy := data[numAnchors+i]
		w := data[2*numAnchors+i]
		h := data[3*numAnchors+i]
		dets = append(dets, nn.Detection{
			Class:      bestClass,
			Confidence: bestScore,
			Box:        nn.BoxFromCenter(cx, cy, w, h),
		})
	}

	return nn.Suppress(dets, p.NmsIouThreshold), nil
}
