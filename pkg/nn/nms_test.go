package nn

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func det(class int, conf float32, x0, y0, x1, y1 float32) Detection {
	return Detection{
		Class:      class,
		Confidence: conf,
		Box:        Box{X0: x0, Y0: y0, X1: x1, Y1: y1},
	}
}

func TestSuppressSameClassOverlap(t *testing.T) {
	a := det(0, 0.9, 0, 0, 100, 100)
	b := det(0, 0.6, 5, 5, 105, 105) // IoU ~ 0.82
	out := Suppress([]Detection{b, a}, 0.4)
	require.Equal(t, []Detection{a}, out)
}

func TestSuppressLowOverlap(t *testing.T) {
	a := det(0, 0.9, 0, 0, 100, 100)
	b := det(0, 0.6, 80, 80, 180, 180) // IoU ~ 0.02
	out := Suppress([]Detection{a, b}, 0.4)
	require.Equal(t, []Detection{a, b}, out)
}

func TestSuppressDifferentClasses(t *testing.T) {
	a := det(0, 0.9, 0, 0, 100, 100)
	b := det(2, 0.6, 0, 0, 100, 100)
	out := Suppress([]Detection{a, b}, 0.4)
	require.Len(t, out, 2)
	require.True(t, ClassIDs(out).Contains(0))
	require.True(t, ClassIDs(out).Contains(2))
}

func TestSuppressThresholdIsExclusive(t *testing.T) {
	// Two 10x10 boxes offset by 5 in X have IoU = 50/150 = 1/3
	a := det(0, 0.9, 0, 0, 10, 10)
	b := det(0, 0.8, 5, 0, 15, 10)
	iou := a.Box.IOU(b.Box)
	require.Len(t, Suppress([]Detection{a, b}, iou), 2)
	require.Len(t, Suppress([]Detection{a, b}, iou-0.01), 1)
}

func TestSuppressChain(t *testing.T) {
	// b is suppressed by a, so b must not suppress c, even though b and c overlap heavily.
	a := det(1, 0.9, 0, 0, 10, 10)
	b := det(1, 0.8, 4, 0, 14, 10)
	c := det(1, 0.7, 8, 0, 18, 10)
	out := Suppress([]Detection{c, b, a}, 0.4)
	require.Equal(t, []Detection{a, c}, out)
}

func TestSuppressIdempotent(t *testing.T) {
	input := []Detection{
		det(0, 0.9, 0, 0, 100, 100),
		det(0, 0.85, 10, 10, 110, 110),
		det(0, 0.5, 200, 200, 250, 250),
		det(3, 0.7, 5, 5, 95, 95),
		det(3, 0.65, 6, 6, 96, 96),
		det(7, 0.3, 300, 10, 320, 40),
	}
	once := Suppress(input, 0.4)
	twice := Suppress(once, 0.4)
	require.Equal(t, once, twice)
	require.Len(t, once, 4)
}

func TestSuppressEmpty(t *testing.T) {
	require.Empty(t, Suppress(nil, 0.4))
}

func TestClassIDsDeduplicate(t *testing.T) {
	dets := []Detection{
		det(5, 0.9, 0, 0, 10, 10),
		det(5, 0.8, 100, 100, 110, 110),
		det(1, 0.7, 50, 50, 60, 60),
	}
	require.Equal(t, ClassIDSet{5, 1}, ClassIDs(dets))
	require.Equal(t, ClassIDSet{}, ClassIDs(nil))
}
