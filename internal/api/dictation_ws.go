package api

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/yegors/voxprompt/internal/capture"
	"github.com/yegors/voxprompt/internal/recorder"
	"github.com/yegors/voxprompt/pkg/logger"
)

// Dictation socket protocol. The browser owns the microphone; this
// socket relays its audio to the transcription pipeline and streams
// display updates back.
//
// Client -> server:
//   binary frames: mono float32 little-endian PCM at the configured rate
//   text frames:   {"type":"start"} | {"type":"stop"}
// Server -> client:
//   {"type":"text","text":...}      current display text (raw or polished)
//   {"type":"status","status":...}  idle | listening | refining | polishing
//   {"type":"error","error":...}
type dictationControl struct {
	Type string `json:"type"`
}

type dictationUpdate struct {
	Type   string `json:"type"`
	Text   string `json:"text,omitempty"`
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

const stopGrace = 45 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 4096,
	// Cross-origin policy is enforced by the CORS middleware layer.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleDictationWS upgrades the connection and runs one dictation
// session loop. Each connection gets its own recording controller; the
// connection is both the audio source and the display sink.
func (h *Handler) HandleDictationWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Dictation socket upgrade failed", logger.Error(err))
		return
	}

	sock := newDictationConn(conn, h.logger)
	adapter := capture.NewAdapter(sock, h.logger)
	ctrl := recorder.NewController(adapter, h.opener, h.polisher, sock, h.recOpts, h.logger)

	sock.serve(r.Context(), ctrl)
}

// dictationConn adapts one WebSocket connection to the capture source
// and display sink interfaces the recording controller expects.
type dictationConn struct {
	conn   *websocket.Conn
	logger *logger.Logger

	writeMu sync.Mutex

	mu       sync.Mutex
	frames   chan []float32
	acquired bool
}

func newDictationConn(conn *websocket.Conn, log *logger.Logger) *dictationConn {
	return &dictationConn{
		conn:   conn,
		logger: log.Named("dictation-ws"),
	}
}

// Acquire implements capture.Source: the microphone already lives on
// the client, so granting is immediate.
func (d *dictationConn) Acquire(ctx context.Context) (<-chan []float32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.acquired {
		return nil, capture.ErrDeviceUnavailable
	}
	d.acquired = true
	d.frames = make(chan []float32, 32)
	return d.frames, nil
}

// Release implements capture.Source. Frames arriving afterwards are
// dropped; the channel itself stays open because the read loop may
// still be delivering into it.
func (d *dictationConn) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquired = false
	return nil
}

// deliver forwards one decoded frame to the active stream, dropping it
// when no stream is active or the pipeline is behind.
func (d *dictationConn) deliver(frame []float32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.acquired {
		return
	}
	select {
	case d.frames <- frame:
	default:
	}
}

// SetText implements recorder.DisplaySink.
func (d *dictationConn) SetText(text string) {
	d.send(dictationUpdate{Type: "text", Text: text})
}

// SetStatus implements recorder.DisplaySink.
func (d *dictationConn) SetStatus(status string) {
	d.send(dictationUpdate{Type: "status", Status: status})
}

func (d *dictationConn) sendError(msg string) {
	d.send(dictationUpdate{Type: "error", Error: msg})
}

func (d *dictationConn) send(update dictationUpdate) {
	data, err := json.Marshal(update)
	if err != nil {
		return
	}
	d.writeMu.Lock()
	defer d.writeMu.Unlock()
	if err := d.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		d.logger.Debug("Dictation socket write failed", logger.Error(err))
	}
}

// serve runs the connection read loop until the client disconnects,
// then shuts the controller down.
func (d *dictationConn) serve(ctx context.Context, ctrl *recorder.Controller) {
	defer d.conn.Close()

	for {
		msgType, data, err := d.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				d.logger.Debug("Dictation socket read ended", logger.Error(err))
			}
			break
		}

		switch msgType {
		case websocket.BinaryMessage:
			if frame := decodeFloat32LE(data); len(frame) > 0 {
				d.deliver(frame)
			}

		case websocket.TextMessage:
			var ctl dictationControl
			if err := json.Unmarshal(data, &ctl); err != nil {
				d.sendError("invalid control message")
				continue
			}
			d.handleControl(ctx, ctrl, ctl)
		}
	}

	// Client gone: best-effort stop so the live session and any final
	// polish do not linger.
	stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
	defer cancel()
	if err := ctrl.Stop(stopCtx); err != nil {
		d.logger.Warn("Failed to stop recording after disconnect", logger.Error(err))
	}
}

func (d *dictationConn) handleControl(ctx context.Context, ctrl *recorder.Controller, ctl dictationControl) {
	switch ctl.Type {
	case "start":
		if err := ctrl.Start(ctx); err != nil {
			d.logger.Warn("Failed to start recording", logger.Error(err))
			d.sendError(err.Error())
		}

	case "stop":
		// Stop blocks through the final polish; run it off the read
		// loop so late audio frames and pings keep draining.
		go func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
			defer cancel()
			if err := ctrl.Stop(stopCtx); err != nil {
				d.logger.Warn("Failed to stop recording", logger.Error(err))
				d.sendError("stop timed out")
			}
		}()

	default:
		d.sendError("unknown control type")
	}
}

// decodeFloat32LE decodes a binary frame of little-endian float32
// samples. A trailing partial sample is ignored.
func decodeFloat32LE(data []byte) []float32 {
	n := len(data) / 4
	frame := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := binary.LittleEndian.Uint32(data[i*4:])
		frame[i] = math.Float32frombits(bits)
	}
	return frame
}
