package streamer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/pulseapp/companion/pkg/detector"
	"github.com/pulseapp/companion/pkg/event"
	"github.com/pulseapp/companion/pkg/nn"
	"github.com/stretchr/testify/require"
)

func TestDetectionStreamer(t *testing.T) {
	log := logs.NewTestingLog(t)
	results := &event.Sender[*detector.FrameResult]{}
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		RunDetectionWebSocketStreamer(log, conn, results)
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return results.NumListeners() == 1 }, 5*time.Second, 5*time.Millisecond)

	results.SendEvent(&detector.FrameResult{
		Model:    nn.DefaultRegistry().At(2),
		ClassIDs: nn.ClassIDSet{0, 16},
	})

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	msgType, data, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, msgType)

	msg := struct {
		Type      string `json:"type"`
		Detection struct {
			ClassIDs []int `json:"classIDs"`
			Model    struct {
				FileName string `json:"fileName"`
			} `json:"model"`
		} `json:"detection"`
	}{}
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Equal(t, "detection", msg.Type)
	require.Equal(t, []int{0, 16}, msg.Detection.ClassIDs)
	require.Equal(t, "yolo11n.onnx", msg.Detection.Model.FileName)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"command":"pause"}`)))
	conn.Close()

	// The streamer unsubscribes when the client goes away
	require.Eventually(t, func() bool { return results.NumListeners() == 0 }, 5*time.Second, 5*time.Millisecond)
}
