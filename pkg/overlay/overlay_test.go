package overlay

import (
	"image"
	"image/color"
	"testing"

	"github.com/pulseapp/companion/pkg/nn"
	"github.com/stretchr/testify/require"
)

func TestConfidenceColor(t *testing.T) {
	require.Equal(t, color.RGBA{255, 0, 0, 255}, ConfidenceColor(0))
	require.Equal(t, color.RGBA{0, 255, 0, 255}, ConfidenceColor(1))
	require.Equal(t, color.RGBA{26, 229, 0, 255}, ConfidenceColor(0.9))
	require.Equal(t, color.RGBA{0, 255, 0, 255}, ConfidenceColor(1.5))
}

func TestScale(t *testing.T) {
	dets := []nn.Detection{
		{Class: nn.COCOPerson, Confidence: 0.9, Box: nn.BoxFromCenter(128, 128, 40, 40)},
	}
	smooth := Scale(dets, 256, 256, 640, 480, false)
	require.Len(t, smooth, 1)
	require.Equal(t, nn.Box{X0: 270, Y0: 202.5, X1: 370, Y1: 277.5}, smooth[0].Box)
	require.Equal(t, "Person 90%", smooth[0].Label)
	require.Equal(t, ConfidenceColor(0.9), smooth[0].Color)
	require.Equal(t, nn.COCOPerson, smooth[0].Class)

	snapped := Scale(dets, 256, 256, 640, 480, true)
	require.Equal(t, nn.Box{X0: 270, Y0: 203, X1: 370, Y1: 278}, snapped[0].Box)

	// Source detections are not modified
	require.Equal(t, nn.Box{X0: 108, Y0: 108, X1: 148, Y1: 148}, dets[0].Box)
}

func alphaAt(img image.Image, x, y int) uint32 {
	_, _, _, a := img.At(x, y).RGBA()
	return a >> 8
}

func TestSurfaceDraw(t *testing.T) {
	s := NewSurface(0, 0)
	w, h := s.Size()
	require.Equal(t, 640, w)
	require.Equal(t, 480, h)

	// Empty frames are fine
	s.Clear()
	s.Draw(nil)
	require.EqualValues(t, 0, alphaAt(s.Image(), 320, 240))

	dets := Scale([]nn.Detection{
		{Class: nn.COCOPerson, Confidence: 0.9, Box: nn.BoxFromCenter(128, 128, 40, 40)},
	}, 256, 256, 640, 480, false)
	s.Draw(dets)
	img := s.Image()

	// Outline
	r, g, _, a := img.At(270, 240).RGBA()
	require.EqualValues(t, 255, a>>8)
	require.Greater(t, g>>8, r>>8)

	// Interior is translucent
	require.InDelta(t, FillAlpha, alphaAt(img, 320, 240), 3)

	// Outside the box is untouched
	require.EqualValues(t, 0, alphaAt(img, 10, 10))
	require.EqualValues(t, 0, alphaAt(img, 600, 450))

	snap := s.Snapshot()

	s.Clear()
	require.EqualValues(t, 0, alphaAt(s.Image(), 270, 240))
	require.EqualValues(t, 0, alphaAt(s.Image(), 320, 240))

	// The snapshot survives the clear
	require.EqualValues(t, 255, alphaAt(snap, 270, 240))
}
