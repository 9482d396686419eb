// Package postprocess decodes the raw output tensor of a YOLO model into a list of detections.
//
// Each model family has its own output layout. The decoders here only produce detections in
// the coordinate space of the model input. Scaling and drawing are done by the overlay package.
package postprocess

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/pulseapp/companion/pkg/nn"
)

// ErrShapeMismatch is returned when an output tensor does not have the layout that its model family requires
var ErrShapeMismatch = errors.New("Output tensor shape does not match model family")

// Decoder turns a model's output tensor into detections.
// params may be nil, in which case the defaults are used.
type Decoder interface {
	Decode(output *nn.Tensor, params *nn.DetectionParams) ([]nn.Detection, error)
}

// ForFamily returns the decoder for the given model family, using the COCO class vocabulary
func ForFamily(family nn.Family) Decoder {
	return ForFamilyWithClasses(family, len(nn.COCOClasses))
}

// ForFamilyWithClasses returns the decoder for the given model family, and a vocabulary of numClasses labels
func ForFamilyWithClasses(family nn.Family, numClasses int) Decoder {
	switch family {
	case nn.FamilyV11:
		return &V11Decoder{NumClasses: numClasses}
	case nn.FamilyV10:
		return &V10Decoder{NumClasses: numClasses}
	case nn.FamilyV7:
		return &V7Decoder{NumClasses: numClasses}
	}
	panic(fmt.Sprintf("Unknown model family %v", family))
}

func shapeError(format string, args ...any) error {
	return fmt.Errorf("%w: %v", ErrShapeMismatch, fmt.Sprintf(format, args...))
}

// The v10 and v7 exports store the class id as a float
func classFromFloat(v float32, numClasses int) (int, error) {
	c := int(math32.Round(v))
	if c < 0 || c >= numClasses {
		return 0, shapeError("class id %v outside of vocabulary of %v classes", v, numClasses)
	}
	return c, nil
}
