// Package recorder implements the top-level dictation state machine. A
// controller supervises one recording session at a time: it pulls
// microphone frames from the capture adapter, streams them to the live
// transcription session, accumulates transcript deltas, schedules
// debounced cleanup passes, and reconciles polished text back into the
// display without letting a stale result clobber a newer one.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/yegors/voxprompt/internal/audio"
	"github.com/yegors/voxprompt/internal/capture"
	"github.com/yegors/voxprompt/internal/livestt"
	"github.com/yegors/voxprompt/internal/polish"
	"github.com/yegors/voxprompt/pkg/logger"
)

// State is the controller lifecycle state.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateFinalizing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateFinalizing:
		return "finalizing"
	default:
		return "unknown"
	}
}

// Display status values pushed to the sink alongside text updates.
const (
	StatusIdle      = "idle"
	StatusListening = "listening"
	StatusRefining  = "refining"
	StatusPolishing = "polishing"
)

// ErrBusy is returned by Start when a session is already active.
var ErrBusy = errors.New("recorder: session already active")

// DisplaySink receives transcript text and status updates. Calls are
// serialized by the controller's event loop.
type DisplaySink interface {
	SetText(text string)
	SetStatus(status string)
}

// Session is the slice of a live transcription session the controller
// needs. *livestt.Session satisfies it.
type Session interface {
	Events() <-chan livestt.Event
	SendAudio(chunk audio.Chunk) error
	Close() error
}

// SessionOpener opens live transcription sessions.
type SessionOpener interface {
	OpenSession(ctx context.Context) (Session, error)
}

// LiveOpener adapts a livestt.Client to the SessionOpener interface.
type LiveOpener struct {
	Client *livestt.Client
}

func (o LiveOpener) OpenSession(ctx context.Context) (Session, error) {
	sess, err := o.Client.Open(ctx)
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// AudioAcquirer hands out exclusive microphone streams.
// *capture.Adapter satisfies it.
type AudioAcquirer interface {
	Acquire(ctx context.Context) (*capture.Stream, error)
}

// Polisher cleans up one transcript snapshot. *polish.Invoker
// satisfies it.
type Polisher interface {
	Polish(ctx context.Context, transcript string, mode polish.Mode) (string, error)
}

// Options tune a controller.
type Options struct {
	QuietInterval time.Duration // debounce gap before an intermediate polish
	FinalTimeout  time.Duration // bound on the final polish during stop
	ChunkSamples  int
	SampleRate    int
}

// Controller owns the Idle -> Recording -> Finalizing -> Idle cycle.
type Controller struct {
	audio    AudioAcquirer
	opener   SessionOpener
	polisher Polisher
	sink     DisplaySink
	opts     Options
	logger   *logger.Logger

	mu    sync.Mutex
	state State
	rec   *recordingSession
}

// recordingSession is the aggregate for one recording: all handles, the
// transcript, and the watermark live here and die together.
type recordingSession struct {
	stream   *capture.Stream
	session  Session
	debounce *polish.Debouncer
	chunker  *audio.Chunker

	transcript string
	watermark  string

	polishInFlight bool
	pendingFire    bool
	finalizing     bool

	frames        <-chan []float32
	events        <-chan livestt.Event
	debounceFired chan struct{}
	polishDone    chan polishResult
	stopReq       chan struct{}
	stopOnce      sync.Once
	done          chan struct{}
}

type polishResult struct {
	slice string
	text  string
	mode  polish.Mode
	err   error
}

// NewController wires a controller. The sink must tolerate calls until
// Stop returns.
func NewController(aud AudioAcquirer, opener SessionOpener, pol Polisher, sink DisplaySink, opts Options, log *logger.Logger) *Controller {
	return &Controller{
		audio:    aud,
		opener:   opener,
		polisher: pol,
		sink:     sink,
		opts:     opts,
		logger:   log.Named("recorder"),
	}
}

// State returns the current controller state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start acquires the microphone, opens the transcription session, and
// begins streaming. Valid only from Idle; a failure releases anything
// partially acquired and returns the controller to Idle.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	c.state = StateRecording
	c.mu.Unlock()

	stream, err := c.audio.Acquire(ctx)
	if err != nil {
		c.setIdle(nil)
		return fmt.Errorf("recorder: acquire audio: %w", err)
	}

	sess, err := c.opener.OpenSession(ctx)
	if err != nil {
		stream.Release()
		c.setIdle(nil)
		return fmt.Errorf("recorder: open session: %w", err)
	}

	rec := &recordingSession{
		stream:        stream,
		session:       sess,
		chunker:       audio.NewChunker(c.opts.ChunkSamples, c.opts.SampleRate),
		frames:        stream.Frames(),
		events:        sess.Events(),
		debounceFired: make(chan struct{}, 1),
		polishDone:    make(chan polishResult, 1),
		stopReq:       make(chan struct{}),
		done:          make(chan struct{}),
	}
	rec.debounce = polish.NewDebouncer(c.opts.QuietInterval, func() {
		select {
		case rec.debounceFired <- struct{}{}:
		default:
		}
	})

	c.mu.Lock()
	c.rec = rec
	c.mu.Unlock()

	c.sink.SetText("")
	c.sink.SetStatus(StatusListening)
	c.logger.Info("Recording started")

	go c.run(rec)
	return nil
}

// Stop ends the current recording and blocks until the controller is
// Idle again, including the final polish. Calling it while Idle, or
// calling it twice, is a no-op.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	rec := c.rec
	c.mu.Unlock()
	if rec == nil {
		return nil
	}

	rec.stopOnce.Do(func() { close(rec.stopReq) })

	select {
	case <-rec.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run is the session event loop. All transcript and watermark mutation
// happens on this goroutine, so no lock guards them; the hazard is
// stale polish results, handled by the watermark comparison in
// applyPolish.
func (c *Controller) run(rec *recordingSession) {
	defer close(rec.done)

	for {
		select {
		case frame, ok := <-rec.frames:
			if !ok {
				rec.frames = nil
				continue
			}
			for _, chunk := range rec.chunker.Push(frame) {
				if err := rec.session.SendAudio(chunk); err != nil {
					c.logger.Warn("Failed to send audio chunk", logger.Error(err))
				}
			}

		case ev, ok := <-rec.events:
			if !ok {
				// Terminal event already handled, or the session died
				// without one. Either way the connection is gone.
				rec.events = nil
				c.finalize(rec)
				return
			}
			if terminal := c.handleEvent(rec, ev); terminal {
				c.finalize(rec)
				return
			}

		case <-rec.debounceFired:
			c.maybePolish(rec, polish.ModeIntermediate)

		case res := <-rec.polishDone:
			c.applyPolish(rec, res)

		case <-rec.stopReq:
			c.finalize(rec)
			return
		}
	}
}

// handleEvent processes one session event. Returns true when the event
// ends the session.
func (c *Controller) handleEvent(rec *recordingSession, ev livestt.Event) bool {
	switch ev.Type {
	case livestt.EventOpened:
		c.logger.Debug("Transcription session open")

	case livestt.EventDelta:
		// Deltas arrive in order and append-only; raw text is shown
		// immediately so the speaker sees words as they talk, and a
		// later polish pass replaces it wholesale.
		rec.transcript += ev.Text
		c.sink.SetText(rec.transcript)
		rec.debounce.Notify()

	case livestt.EventTurnComplete:
		// An utterance boundary is a natural polish point: fire now
		// instead of waiting out the quiet interval.
		c.maybePolish(rec, polish.ModeIntermediate)

	case livestt.EventError:
		c.logger.Warn("Transcription session error, stopping", logger.Error(ev.Err))
		return true

	case livestt.EventClosed:
		c.logger.Debug("Transcription session closed by server")
		return true
	}
	return false
}

// maybePolish launches a cleanup pass over the current transcript, if
// there is anything new and no call is already outstanding. When one is
// outstanding, the request is remembered and re-fired as soon as the
// outstanding call resolves.
func (c *Controller) maybePolish(rec *recordingSession, mode polish.Mode) {
	if rec.polishInFlight {
		rec.pendingFire = true
		return
	}
	slice := rec.transcript
	if slice == rec.watermark {
		return
	}

	rec.polishInFlight = true
	c.sink.SetStatus(StatusRefining)

	go func() {
		text, err := c.polisher.Polish(context.Background(), slice, mode)
		rec.polishDone <- polishResult{slice: slice, text: text, mode: mode, err: err}
	}()
}

// applyPolish reconciles one finished polish call. A result is applied
// only if its input slice extends past the current watermark; every
// slice is a prefix of the transcript, so length comparison is
// containment. Failures keep whatever text is already displayed.
func (c *Controller) applyPolish(rec *recordingSession, res polishResult) {
	rec.polishInFlight = false

	switch {
	case errors.Is(res.err, polish.ErrTooShort):
		c.logger.Debug("Skipped polish of short transcript")
	case res.err != nil:
		c.logger.Warn("Polish failed, keeping displayed text",
			logger.String("mode", string(res.mode)),
			logger.Error(res.err))
	case len(res.slice) > len(rec.watermark):
		rec.watermark = res.slice
		c.sink.SetText(res.text)
	default:
		c.logger.Debug("Discarded stale polish result",
			logger.Int("slice_len", len(res.slice)),
			logger.Int("watermark_len", len(rec.watermark)))
	}

	// During finalize the final polish pass covers anything a queued
	// re-fire would have; do not start a new intermediate call.
	if rec.pendingFire && !rec.finalizing {
		rec.pendingFire = false
		c.maybePolish(rec, polish.ModeIntermediate)
	}
}

// finalize is the single teardown path, shared by explicit stop and by
// server-initiated close or error. Cleanup steps are best effort: each
// failure is logged and the remaining steps still run. Ends with the
// controller Idle.
func (c *Controller) finalize(rec *recordingSession) {
	rec.finalizing = true
	c.setState(StateFinalizing)
	c.logger.Info("Finalizing recording")

	rec.debounce.Cancel()

	if tail, ok := rec.chunker.Flush(); ok {
		if err := rec.session.SendAudio(tail); err != nil {
			c.logger.Debug("Failed to flush audio tail", logger.Error(err))
		}
	}
	if err := rec.session.Close(); err != nil {
		c.logger.Warn("Failed to close transcription session", logger.Error(err))
	}
	rec.stream.Release()

	c.drainEvents(rec)

	// An in-flight intermediate polish still counts: its result is
	// applied unless a newer slice already advanced the watermark.
	if rec.polishInFlight {
		select {
		case res := <-rec.polishDone:
			c.applyPolish(rec, res)
		case <-time.After(c.opts.FinalTimeout):
			c.logger.Warn("Timed out waiting for in-flight polish")
		}
	}

	c.finalPolish(rec)

	c.sink.SetStatus(StatusIdle)
	c.setIdle(rec)
	c.logger.Info("Recording finished")
}

// drainEvents consumes any transcript deltas that raced the stop so the
// final polish sees everything the server transcribed.
func (c *Controller) drainEvents(rec *recordingSession) {
	if rec.events == nil {
		return
	}
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-rec.events:
			if !ok {
				rec.events = nil
				return
			}
			if ev.Type == livestt.EventDelta {
				rec.transcript += ev.Text
				c.sink.SetText(rec.transcript)
			}
			if ev.Type == livestt.EventClosed || ev.Type == livestt.EventError {
				rec.events = nil
				return
			}
		case <-deadline:
			return
		}
	}
}

// finalPolish runs the one bounded cleanup pass on stop, when the
// transcript has grown past the watermark. A failure leaves the last
// good text visible.
func (c *Controller) finalPolish(rec *recordingSession) {
	if rec.transcript == rec.watermark {
		return
	}

	c.sink.SetStatus(StatusPolishing)

	ctx, cancel := context.WithTimeout(context.Background(), c.opts.FinalTimeout)
	defer cancel()

	text, err := c.polisher.Polish(ctx, rec.transcript, polish.ModeFinal)
	switch {
	case errors.Is(err, polish.ErrTooShort):
		c.logger.Debug("Final transcript too short to polish")
	case err != nil:
		c.logger.Warn("Final polish failed, keeping displayed text", logger.Error(err))
	default:
		rec.watermark = rec.transcript
		c.sink.SetText(text)
	}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// setIdle returns to Idle and clears the session pointer if it still
// refers to rec.
func (c *Controller) setIdle(rec *recordingSession) {
	c.mu.Lock()
	c.state = StateIdle
	if c.rec == rec || rec == nil {
		c.rec = nil
	}
	c.mu.Unlock()
}
