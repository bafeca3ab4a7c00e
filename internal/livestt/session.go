// Package livestt maintains one live speech-to-text session against the
// Gemini Live endpoint. Microphone audio goes out as base64 PCM chunks;
// incremental transcript deltas and turn boundaries come back as events
// on a single ordered channel.
package livestt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/coder/websocket"

	"github.com/yegors/voxprompt/internal/audio"
	"github.com/yegors/voxprompt/pkg/logger"
)

// State is the lifecycle state of a Session.
type State int

const (
	StateUnopened State = iota
	StateOpening
	StateOpen
	StateClosing
	StateClosed
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateUnopened:
		return "unopened"
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// EventType identifies a session event.
type EventType int

const (
	// EventOpened fires once when the server acknowledges the setup
	// message and the session starts accepting audio.
	EventOpened EventType = iota
	// EventDelta carries one incremental transcript fragment.
	EventDelta
	// EventTurnComplete marks a server-detected utterance boundary.
	EventTurnComplete
	// EventError is terminal: the session is dead.
	EventError
	// EventClosed is terminal: the session closed normally.
	EventClosed
)

// Event is one inbound session event. Events for a session are delivered
// strictly in arrival order, one at a time, on the Events channel.
type Event struct {
	Type EventType
	Text string
	Err  error
}

const defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"

// Chunks that arrive while the session is still opening are held back and
// flushed on acknowledgment, bounded so a stalled open cannot hoard audio.
const maxPendingChunks = 32

// Client opens live transcription sessions.
type Client struct {
	apiKey  string
	model   string
	baseURL string
	logger  *logger.Logger
}

// Option is a functional option for Client.
type Option func(*Client)

// WithModel sets the live transcription model.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithBaseURL overrides the WebSocket base URL. Used in tests to point at
// a local mock server.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// NewClient creates a live transcription client.
func NewClient(apiKey string, log *logger.Logger, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		model:   "gemini-2.5-flash-native-audio-preview-09-2025",
		baseURL: defaultBaseURL,
		logger:  log.Named("livestt"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open dials the live endpoint and sends the setup message. The returned
// session is in the Opening state; it transitions to Open when the server
// acknowledges, at which point EventOpened is emitted and any buffered
// audio is flushed.
func (c *Client) Open(ctx context.Context) (*Session, error) {
	if c.apiKey == "" {
		return nil, fmt.Errorf("livestt: API key is not configured")
	}

	wsURL := fmt.Sprintf(
		"%s/google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent?key=%s",
		c.baseURL, c.apiKey,
	)

	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("livestt: dial: %w", err)
	}
	// Transcript JSON frames are small but audio echo frames are not.
	conn.SetReadLimit(1 << 20)

	sessCtx, cancel := context.WithCancel(context.Background())
	sess := &Session{
		conn:   conn,
		events: make(chan Event, 64),
		state:  StateOpening,
		ctx:    sessCtx,
		cancel: cancel,
		logger: c.logger,
	}

	setup := setupMessage{
		Setup: setupConfig{
			Model: fmt.Sprintf("models/%s", c.model),
			GenerationConfig: generationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
		},
	}
	if err := sess.writeJSON(setup); err != nil {
		cancel()
		conn.Close(websocket.StatusInternalError, "setup failed")
		return nil, fmt.Errorf("livestt: setup: %w", err)
	}

	go sess.receiveLoop()

	return sess, nil
}

// Session is one live transcription connection.
type Session struct {
	conn   *websocket.Conn
	events chan Event
	logger *logger.Logger

	mu      sync.Mutex
	state   State
	pending []audio.Chunk

	ctx    context.Context
	cancel context.CancelFunc
}

// Events returns the ordered event channel. It is closed after the
// terminal EventError or EventClosed has been delivered.
func (s *Session) Events() <-chan Event {
	return s.events
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SendAudio transmits one audio chunk. While the session is still
// opening, chunks are buffered (bounded, oldest dropped first). In any
// state past Open this is a silent no-op: a queued audio tick firing
// after stop is normal, not an error.
func (s *Session) SendAudio(chunk audio.Chunk) error {
	s.mu.Lock()
	switch s.state {
	case StateOpening:
		if len(s.pending) >= maxPendingChunks {
			s.pending = s.pending[1:]
		}
		s.pending = append(s.pending, chunk)
		s.mu.Unlock()
		return nil
	case StateOpen:
		s.mu.Unlock()
		return s.writeChunk(chunk)
	default:
		s.mu.Unlock()
		return nil
	}
}

// Close tears the session down. Idempotent; safe in any state.
func (s *Session) Close() error {
	s.mu.Lock()
	switch s.state {
	case StateClosed, StateClosing, StateErrored:
		s.mu.Unlock()
		return nil
	default:
		s.state = StateClosing
	}
	s.mu.Unlock()

	s.cancel()
	s.conn.Close(websocket.StatusNormalClosure, "session closed")
	return nil
}

// writeChunk sends one media chunk frame.
func (s *Session) writeChunk(chunk audio.Chunk) error {
	msg := realtimeInputMessage{
		RealtimeInput: realtimeInput{
			MediaChunks: []mediaChunk{{
				MIMEType: fmt.Sprintf("audio/pcm;rate=%d", chunk.SampleRate),
				Data:     chunk.Base64(),
			}},
		},
	}
	return s.writeJSON(msg)
}

// writeJSON marshals v and writes it as one text frame.
func (s *Session) writeJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("livestt: marshal: %w", err)
	}
	return s.conn.Write(s.ctx, websocket.MessageText, data)
}

// receiveLoop reads server frames and turns them into events. It owns the
// events channel: exactly one terminal event is emitted, then the channel
// is closed.
func (s *Session) receiveLoop() {
	defer close(s.events)

	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() != nil || s.State() == StateClosing {
				s.setState(StateClosed)
				s.events <- Event{Type: EventClosed}
				return
			}
			s.setState(StateErrored)
			s.events <- Event{Type: EventError, Err: fmt.Errorf("livestt: read: %w", err)}
			return
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.logger.Debug("Skipping malformed server frame", logger.Error(err))
			continue
		}

		if terminal := s.handleServerMessage(&msg); terminal {
			return
		}
	}
}

// handleServerMessage dispatches one frame. Returns true when a terminal
// event was emitted.
func (s *Session) handleServerMessage(msg *serverMessage) bool {
	if msg.Error != nil {
		s.setState(StateErrored)
		errMsg := msg.Error.Message
		if errMsg == "" {
			errMsg = "unknown server error"
		}
		s.events <- Event{Type: EventError, Err: fmt.Errorf("livestt: server: %s", errMsg)}
		return true
	}

	if msg.SetupComplete != nil {
		s.ackOpen()
		return false
	}

	if sc := msg.ServerContent; sc != nil {
		if sc.InputTranscription != nil && sc.InputTranscription.Text != "" {
			s.events <- Event{Type: EventDelta, Text: sc.InputTranscription.Text}
		}
		if sc.TurnComplete {
			s.events <- Event{Type: EventTurnComplete}
		}
	}

	return false
}

// ackOpen transitions Opening -> Open and flushes audio buffered during
// the handshake.
func (s *Session) ackOpen() {
	s.mu.Lock()
	if s.state != StateOpening {
		s.mu.Unlock()
		return
	}
	s.state = StateOpen
	buffered := s.pending
	s.pending = nil
	s.mu.Unlock()

	s.events <- Event{Type: EventOpened}

	for _, chunk := range buffered {
		if err := s.writeChunk(chunk); err != nil {
			s.logger.Warn("Failed to flush buffered audio chunk", logger.Error(err))
			return
		}
	}
	if len(buffered) > 0 {
		s.logger.Debug("Flushed buffered audio", logger.Int("chunks", len(buffered)))
	}
}

func (s *Session) setState(state State) {
	s.mu.Lock()
	s.state = state
	s.mu.Unlock()
}
