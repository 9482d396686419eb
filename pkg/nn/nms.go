package nn

import (
	"sort"

	flatbush "github.com/bmharper/flatbush-go"
)

// Suppress performs per-class non-max suppression.
// Detections are visited in order of descending confidence, and any later detection of the same
// class that overlaps a kept detection by more than iouThreshold is dropped.
// Detections of different classes never suppress each other.
// The result is ordered by descending confidence.
func Suppress(input []Detection, iouThreshold float32) []Detection {
	if len(input) == 0 {
		return nil
	}

	sorted := make([]Detection, len(input))
	copy(sorted, input)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	// Create spatial index to avoid comparing boxes that can't possibly overlap.
	// Boxes that don't touch have an IoU of zero, so they can never exceed the threshold.
	fb := flatbush.NewFlatbush[float32]()
	fb.Reserve(len(sorted))
	for _, d := range sorted {
		fb.Add(d.Box.X0, d.Box.Y0, d.Box.X1, d.Box.Y1)
	}
	fb.Finish()

	deleted := make([]bool, len(sorted))
	for i, a := range sorted {
		if deleted[i] {
			continue
		}
		for _, j := range fb.Search(a.Box.X0, a.Box.Y0, a.Box.X1, a.Box.Y1) {
			if j <= i || deleted[j] {
				continue
			}
			if sorted[j].Class != a.Class {
				continue
			}
			if a.Box.IOU(sorted[j].Box) > iouThreshold {
				deleted[j] = true
			}
		}
	}

	retain := make([]Detection, 0, len(sorted))
	for i, d := range sorted {
		if !deleted[i] {
			retain = append(retain, d)
		}
	}
	return retain
}
