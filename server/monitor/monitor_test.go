package monitor

import (
	"context"
	"errors"
	"image"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/disintegration/imaging"
	"github.com/pulseapp/companion/pkg/detector"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	closed atomic.Bool
}

func (s *fakeSource) Next(ctx context.Context) (image.Image, error) {
	return image.NewRGBA(image.Rect(0, 0, 8, 8)), nil
}
func (s *fakeSource) Close()         { s.closed.Store(true) }
func (s *fakeSource) String() string { return "fake" }

// fakeProcessor is not ready for the first few frames, then fails once, then succeeds
type fakeProcessor struct {
	calls atomic.Int64
}

func (p *fakeProcessor) ProcessFrame(ctx context.Context, frame image.Image) (*detector.FrameResult, error) {
	n := p.calls.Add(1)
	switch {
	case n <= 3:
		return nil, detector.ErrNotReady
	case n == 4:
		return nil, errors.New("inference blew up")
	}
	return &detector.FrameResult{}, nil
}

func TestMonitorLoop(t *testing.T) {
	src := &fakeSource{}
	proc := &fakeProcessor{}
	m := NewMonitor(logs.NewTestingLog(t), src, proc, 500)

	require.Eventually(t, func() bool {
		return m.Stats().FramesProcessed >= 3
	}, 5*time.Second, 5*time.Millisecond)

	m.Close()
	require.True(t, src.closed.Load())

	st := m.Stats()
	require.EqualValues(t, 3, st.FramesSkipped)
	require.EqualValues(t, 1, st.Errors)
	require.Equal(t, st.FramesRead, st.FramesSkipped+st.Errors+st.FramesProcessed)

	// Nothing runs after Close
	calls := proc.calls.Load()
	time.Sleep(20 * time.Millisecond)
	require.Equal(t, calls, proc.calls.Load())
}

func writeImage(t *testing.T, fn string, c color.Color) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	require.NoError(t, imaging.Save(img, fn))
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	writeImage(t, filepath.Join(dir, "b.png"), color.NRGBA{0, 255, 0, 255})
	writeImage(t, filepath.Join(dir, "a.png"), color.NRGBA{255, 0, 0, 255})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hi"), 0644))

	src, err := NewSource("dir", dir, "")
	require.NoError(t, err)
	defer src.Close()

	red := func(img image.Image) uint32 {
		r, _, _, _ := img.At(0, 0).RGBA()
		return r >> 8
	}
	for i := 0; i < 2; i++ {
		a, err := src.Next(context.Background())
		require.NoError(t, err)
		require.EqualValues(t, 255, red(a))
		b, err := src.Next(context.Background())
		require.NoError(t, err)
		require.EqualValues(t, 0, red(b))
	}

	_, err = NewDirSource(t.TempDir())
	require.Error(t, err)
}

func TestSnapshotSource(t *testing.T) {
	dir := t.TempDir()
	fn := filepath.Join(dir, "snap.png")
	writeImage(t, fn, color.NRGBA{0, 0, 255, 255})

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/snapshot" {
			http.NotFound(w, r)
			return
		}
		http.ServeFile(w, r, fn)
	}))
	defer srv.Close()

	src := NewSnapshotSource(srv.URL + "/snapshot")
	img, err := src.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 4, img.Bounds().Dx())

	src = NewSnapshotSource(srv.URL + "/missing")
	_, err = src.Next(context.Background())
	require.Error(t, err)

	_, err = NewSource("rtsp", "", "")
	require.Error(t, err)
}
