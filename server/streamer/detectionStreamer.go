package streamer

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/gorilla/websocket"
	"github.com/pulseapp/companion/pkg/detector"
	"github.com/pulseapp/companion/pkg/event"
)

type webSocketMsg int

const (
	webSocketMsgPause  webSocketMsg = iota // pause stream (eg browser tab deactivated)
	webSocketMsgResume                     // resume stream (eg browser tab reactivated)
)

// Sent by client over websocket
type webSocketJSON struct {
	Command string `json:"command"`
}

// Every message that we send is a TEXT frame containing this
type webSocketSendMessage struct {
	Type      string                `json:"type"` // Only type of message is "detection"
	Detection *detector.FrameResult `json:"detection"`
}

// Number of detection results that we will buffer on the send side, before dropping results.
const WebSocketSendBufferSize = 30

var nextWebSocketStreamerID int64

// DetectionWebSocketStreamer pushes the result of every processed frame to a websocket client.
// A slow client drops results instead of blocking the frame loop.
type DetectionWebSocketStreamer struct {
	log           logs.Log
	streamerID    int64 // Intended to aid in logging/debugging
	closed        atomic.Bool
	paused        atomic.Bool
	fromWebSocket chan webSocketMsg
	stopped       chan struct{} // Closed when run() returns
	sendQueue     chan *detector.FrameResult
	lastDropMsg   time.Time
	nDropped      atomic.Int64
	nSent         atomic.Int64
}

// RunDetectionWebSocketStreamer subscribes to results, and returns when the websocket is closed
func RunDetectionWebSocketStreamer(logger logs.Log, conn *websocket.Conn, results *event.Sender[*detector.FrameResult]) {
	streamerID := atomic.AddInt64(&nextWebSocketStreamerID, 1)
	s := &DetectionWebSocketStreamer{
		log:           logger,
		streamerID:    streamerID,
		fromWebSocket: make(chan webSocketMsg, 1),
		stopped:       make(chan struct{}),
		sendQueue:     make(chan *detector.FrameResult, WebSocketSendBufferSize),
	}
	s.run(conn, results)
}

// OnEvent is called on the frame thread, so it must never block
func (s *DetectionWebSocketStreamer) OnEvent(result *detector.FrameResult) {
	if s.closed.Load() || s.paused.Load() {
		return
	}
	select {
	case s.sendQueue <- result:
	default:
		n := s.nDropped.Add(1)
		if time.Since(s.lastDropMsg) > 5*time.Second {
			s.log.Infof("WebSocket %v dropped %v/%v results", s.streamerID, n, n+s.nSent.Load())
			s.lastDropMsg = time.Now()
		}
	}
}

func (s *DetectionWebSocketStreamer) run(conn *websocket.Conn, results *event.Sender[*detector.FrameResult]) {
	defer close(s.stopped)
	defer conn.Close()

	results.AddListener(s)
	defer results.RemoveListener(s)

	go s.webSocketReader(conn)
	writerDone := make(chan bool)
	go s.webSocketWriter(conn, writerDone)

	for !s.closed.Load() {
		select {
		case wsMsg, ok := <-s.fromWebSocket:
			if !ok {
				s.closed.Store(true)
				break
			}
			switch wsMsg {
			case webSocketMsgPause:
				s.paused.Store(true)
			case webSocketMsgResume:
				s.paused.Store(false)
			}
		case <-writerDone:
			s.closed.Store(true)
		}
	}
	s.log.Infof("WebSocket %v closed after sending %v results", s.streamerID, s.nSent.Load())
}

// Read from the websocket and post to our own channel
func (s *DetectionWebSocketStreamer) webSocketReader(conn *websocket.Conn) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}
		msg := webSocketJSON{}
		if err := json.Unmarshal(data, &msg); err != nil {
			s.log.Infof("webSocketReader failed to decode JSON: %v", err)
			continue
		}
		var cmd webSocketMsg
		switch msg.Command {
		case "pause":
			cmd = webSocketMsgPause
		case "resume":
			cmd = webSocketMsgResume
		default:
			s.log.Infof("Unknown websocket message from client: '%v'", msg.Command)
			continue
		}
		select {
		case s.fromWebSocket <- cmd:
		case <-s.stopped:
			return
		}
	}
	close(s.fromWebSocket)
}

// Write results to the websocket on a separate thread, so that a slow client
// can't stall the frame loop.
func (s *DetectionWebSocketStreamer) webSocketWriter(conn *websocket.Conn, done chan bool) {
	defer close(done)
	for !s.closed.Load() {
		var result *detector.FrameResult
		select {
		case result = <-s.sendQueue:
		case <-time.After(time.Second):
			continue
		}
		if s.paused.Load() {
			continue
		}
		b, err := json.Marshal(&webSocketSendMessage{
			Type:      "detection",
			Detection: result,
		})
		if err != nil {
			s.log.Errorf("Failed to encode detection: %v", err)
			continue
		}
		conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
			s.log.Infof("WebSocket %v write failed: %v", s.streamerID, err)
			return
		}
		s.nSent.Add(1)
	}
}

func (s *DetectionWebSocketStreamer) String() string {
	return fmt.Sprintf("DetectionWebSocketStreamer %v", s.streamerID)
}
