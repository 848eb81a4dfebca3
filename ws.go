package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/models"
	"github.com/vjoshuanath-rgb/cocoa-yield-estimation/stream"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1 << 20,
	WriteBufferSize: 1 << 16,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// liveControl is a text message from the viewfinder client.
type liveControl struct {
	Action  string              `json:"action,omitempty"` // "start" | "stop"
	Display *models.DisplaySize `json:"display,omitempty"`
}

// liveResult is one published pipeline run.
type liveResult struct {
	Type   string         `json:"type"`
	FPS    float64        `json:"fps"`
	Result detectResponse `json:"result"`
}

// handleLive runs the live viewfinder loop over a websocket: the client
// streams JPEG frames as binary messages, the server streams back one result
// per completed pipeline run with boxes already in display space.
func (s *AppState) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Warnf("websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	source := newWSFrameSource()
	renderer := &wsRenderer{conn: conn}
	ctrl := stream.NewController(source, s.Analyzer, renderer, s.Log)
	renderer.fps = ctrl.FPS
	defer ctrl.Release()

	if err := ctrl.StartCapture(); err != nil {
		s.Log.Warnf("live capture start failed: %v", err)
		return
	}
	if err := ctrl.StartDetection(); err != nil {
		s.Log.Warnf("live detection start failed: %v", err)
		return
	}

	// Read pump. Closing the connection ends the stream; Release above
	// guarantees the capture side is torn down on every exit path.
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			source.Close()
			return
		}
		switch msgType {
		case websocket.BinaryMessage:
			img, _, err := image.Decode(bytes.NewReader(data))
			if err != nil {
				s.Log.Debugf("dropping undecodable frame: %v", err)
				continue
			}
			frame := models.FrameFromImage(img)
			frame.Display = source.display()
			source.push(frame)
		case websocket.TextMessage:
			var ctl liveControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				continue
			}
			if ctl.Display != nil {
				source.setDisplay(ctl.Display)
			}
			switch ctl.Action {
			case "start":
				if ctrl.State() == stream.StateCapturing {
					if err := ctrl.StartDetection(); err != nil {
						s.Log.Warnf("live detection restart failed: %v", err)
					}
				}
			case "stop":
				ctrl.StopDetection()
			}
		}
	}
}

// wsFrameSource adapts inbound websocket frames to stream.FrameSource,
// keeping only the newest frame so the loop never falls behind the camera.
type wsFrameSource struct {
	frames chan *models.Frame
	done   chan struct{}
	once   sync.Once

	mu   sync.Mutex
	disp *models.DisplaySize
}

func newWSFrameSource() *wsFrameSource {
	return &wsFrameSource{
		frames: make(chan *models.Frame, 1),
		done:   make(chan struct{}),
	}
}

func (s *wsFrameSource) push(frame *models.Frame) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
			// Replace the stale frame.
			select {
			case <-s.frames:
			default:
			}
		}
	}
}

func (s *wsFrameSource) NextFrame(ctx context.Context) (*models.Frame, error) {
	select {
	case frame := <-s.frames:
		return frame, nil
	case <-s.done:
		return nil, stream.ErrSourceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *wsFrameSource) Stop() {
	s.Close()
}

func (s *wsFrameSource) Close() {
	s.once.Do(func() { close(s.done) })
}

func (s *wsFrameSource) display() *models.DisplaySize {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disp
}

func (s *wsFrameSource) setDisplay(d *models.DisplaySize) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disp = d
}

// wsRenderer publishes results back over the same connection.
type wsRenderer struct {
	mu   sync.Mutex
	conn *websocket.Conn
	fps  func() float64
}

func (r *wsRenderer) Publish(result *models.AggregateResult, display []models.Detection) {
	resp := toDetectResponse(result)
	// Overlay boxes are the display-space set, not the source-space ones.
	resp.Pods = resp.Pods[:0]
	for _, d := range display {
		resp.Pods = append(resp.Pods, podResponse{
			BBox:          d.Box.Array(),
			Confidence:    d.Confidence,
			YieldCategory: d.YieldCategory,
			YieldScore:    d.YieldScore,
		})
	}

	msg := liveResult{Type: "result", Result: resp}
	if r.fps != nil {
		msg.FPS = r.fps()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Write errors surface on the read pump as a closed connection.
	_ = r.conn.WriteJSON(msg)
}
