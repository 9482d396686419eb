package detector

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/pulseapp/companion/pkg/nnload"
	"github.com/stretchr/testify/require"
)

// scriptedSession returns a fixed output tensor
type scriptedSession struct {
	output *nn.Tensor
	err    error
}

func (s *scriptedSession) Close() {}

func (s *scriptedSession) Run(input *nn.Tensor) (*nn.Tensor, error) {
	return s.output, s.err
}

type scriptedLoader struct {
	lock    sync.Mutex
	outputs map[string]*nn.Tensor
	fail    map[string]error
	loads   []string
}

func (l *scriptedLoader) Load(ctx context.Context, cfg nn.ModelConfig) (nn.Session, error) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.loads = append(l.loads, cfg.FileName)
	if err := l.fail[cfg.FileName]; err != nil {
		return nil, err
	}
	return &scriptedSession{output: l.outputs[cfg.FileName]}, nil
}

func (l *scriptedLoader) numLoads() int {
	l.lock.Lock()
	defer l.lock.Unlock()
	return len(l.loads)
}

// A single-anchor v11 output: class 0 at 0.9, centered at 128,128, 40x40
func personTensor() *nn.Tensor {
	t := nn.NewTensor(1, 84, 1)
	t.Data[0] = 128
	t.Data[1] = 128
	t.Data[2] = 40
	t.Data[3] = 40
	t.Data[4] = 0.9
	return t
}

func blackFrame(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

type callbackRecorder struct {
	lock  sync.Mutex
	calls []nn.ClassIDSet
}

func (c *callbackRecorder) onDetections(ids nn.ClassIDSet) {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.calls = append(c.calls, ids)
}

func newTestDetector(t *testing.T, loader nnload.Loader, initial string, cb *callbackRecorder) *Detector {
	d, err := New(logs.NewTestingLog(t), loader, Options{
		InitialModel: initial,
		OnDetections: cb.onDetections,
	})
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d
}

func TestEndToEnd(t *testing.T) {
	loader := &scriptedLoader{outputs: map[string]*nn.Tensor{"yolo11n.onnx": personTensor()}}
	cb := &callbackRecorder{}
	d := newTestDetector(t, loader, "yolo11n.onnx", cb)
	require.NoError(t, d.WaitForModel(context.Background()))

	res, err := d.ProcessFrame(context.Background(), blackFrame(256, 256))
	require.NoError(t, err)
	require.Len(t, res.Detections, 1)
	det := res.Detections[0]
	require.Equal(t, nn.Box{X0: 270, Y0: 202.5, X1: 370, Y1: 277.5}, det.Box)
	require.Equal(t, "Person 90%", det.Label)
	require.Equal(t, nn.ClassIDSet{0}, res.ClassIDs)
	require.Equal(t, []nn.ClassIDSet{{0}}, cb.calls)

	// The box is drawn on the surface
	_, _, _, a := d.Overlay().At(270, 240).RGBA()
	require.EqualValues(t, 255, a>>8)
	require.Same(t, res, d.LastResult())

	st := d.Status()
	require.Equal(t, nnload.StateReady, st.State)
	require.Empty(t, st.Message)
	require.Equal(t, 2, st.Index)
	require.EqualValues(t, 1, st.Stats[1].Samples)
}

func TestNotReady(t *testing.T) {
	loader := &scriptedLoader{fail: map[string]error{"yolov10n.onnx": errors.New("no such file")}}
	cb := &callbackRecorder{}
	d := newTestDetector(t, loader, "", cb)
	require.ErrorIs(t, d.WaitForModel(context.Background()), nnload.ErrModelLoad)

	st := d.Status()
	require.Equal(t, nnload.StateFailed, st.State)
	require.Equal(t, "Loading model yolov10n.onnx…", st.Message)
	require.Contains(t, st.LoadError, "no such file")

	_, err := d.ProcessFrame(context.Background(), blackFrame(640, 480))
	require.ErrorIs(t, err, ErrNotReady)
	require.Empty(t, cb.calls)
	_, _, _, a := d.Overlay().At(320, 240).RGBA()
	require.EqualValues(t, 0, a)
}

func TestShapeMismatchDropsFrame(t *testing.T) {
	// A v10 model that emits a v7 shaped tensor
	loader := &scriptedLoader{outputs: map[string]*nn.Tensor{"yolov10n.onnx": nn.NewTensor(3, 7)}}
	cb := &callbackRecorder{}
	d := newTestDetector(t, loader, "", cb)
	require.NoError(t, d.WaitForModel(context.Background()))

	_, err := d.ProcessFrame(context.Background(), blackFrame(320, 240))
	require.Error(t, err)
	require.Empty(t, cb.calls)
	require.Nil(t, d.LastResult())
}

func TestEmptyFrameStillCallsBack(t *testing.T) {
	loader := &scriptedLoader{outputs: map[string]*nn.Tensor{"yolov7-tiny_320x320.onnx": nn.NewTensor(0, 7)}}
	cb := &callbackRecorder{}
	d := newTestDetector(t, loader, "yolov7-tiny_320x320.onnx", cb)
	require.NoError(t, d.WaitForModel(context.Background()))

	res, err := d.ProcessFrame(context.Background(), blackFrame(640, 480))
	require.NoError(t, err)
	require.Empty(t, res.Detections)
	require.Equal(t, []nn.ClassIDSet{{}}, cb.calls)
}

func TestModelSwitching(t *testing.T) {
	loader := &scriptedLoader{}
	d := newTestDetector(t, loader, "", &callbackRecorder{})
	require.NoError(t, d.WaitForModel(context.Background()))
	require.Equal(t, "yolov10n.onnx", d.ModelName())

	d.ChangeModelResolution()
	require.Equal(t, "yolo12n.onnx", d.ModelName())

	// Already at 256x256, so nothing changes
	require.NoError(t, d.SetModelResolution(256, 256))
	require.Equal(t, "yolo12n.onnx", d.ModelName())

	require.NoError(t, d.SetModelResolution(640, 640))
	w, h := d.CurrentModelResolution()
	require.Equal(t, 640, w)
	require.Equal(t, 640, h)

	err := d.SetModelResolution(1024, 1024)
	require.ErrorIs(t, err, ErrUnknownResolution)
	require.Equal(t, "yolov7-tiny_640x640.onnx", d.ModelName())

	// Wrap around
	d.ChangeModelResolution()
	require.Equal(t, "yolov10n.onnx", d.ModelName())

	require.NoError(t, d.SelectModel("yolo11n.onnx"))
	require.ErrorIs(t, d.SelectModel("nope.onnx"), ErrUnknownModel)
	require.NoError(t, d.WaitForModel(context.Background()))
	require.Equal(t, nnload.StateReady, d.Status().State)
	require.Equal(t, "yolo11n.onnx", d.Status().Model.FileName)
	require.GreaterOrEqual(t, loader.numLoads(), 2)
}

func TestCancelledContext(t *testing.T) {
	d := newTestDetector(t, &scriptedLoader{}, "", &callbackRecorder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := d.ProcessFrame(ctx, blackFrame(10, 10))
	require.ErrorIs(t, err, context.Canceled)
}

func TestUnknownInitialModel(t *testing.T) {
	_, err := New(logs.NewTestingLog(t), &scriptedLoader{}, Options{InitialModel: "bogus.onnx"})
	require.ErrorIs(t, err, ErrUnknownModel)
}
