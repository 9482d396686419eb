package nn

// ImageLabels contains the labels found in one image.
// This is the output format of the batch detection tool.
type ImageLabels struct {
	Image      string      `json:"image,omitempty"`
	Model      string      `json:"model"`
	Width      int         `json:"width"`  // Model input width. Boxes are in this coordinate space.
	Height     int         `json:"height"` // Model input height.
	Objects    []Detection `json:"objects"`
	ClassNames []string    `json:"classNames"` // Capitalised label for each entry in Objects
}

// Build ImageLabels for a set of detections
func NewImageLabels(image string, model ModelConfig, dets []Detection) *ImageLabels {
	l := &ImageLabels{
		Image:   image,
		Model:   model.FileName,
		Width:   model.Width,
		Height:  model.Height,
		Objects: dets,
	}
	if l.Objects == nil {
		l.Objects = []Detection{}
	}
	l.ClassNames = make([]string, len(l.Objects))
	for i, d := range l.Objects {
		l.ClassNames[i] = ClassLabel(d.Class)
	}
	return l
}
