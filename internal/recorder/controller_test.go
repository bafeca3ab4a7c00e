package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/yegors/voxprompt/internal/audio"
	"github.com/yegors/voxprompt/internal/capture"
	"github.com/yegors/voxprompt/internal/livestt"
	"github.com/yegors/voxprompt/internal/polish"
	"github.com/yegors/voxprompt/pkg/logger"
)

type fakeSource struct {
	mu         sync.Mutex
	frames     chan []float32
	releases   int
	acquireErr error
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan []float32, 16)}
}

func (f *fakeSource) Acquire(ctx context.Context) (<-chan []float32, error) {
	if f.acquireErr != nil {
		return nil, f.acquireErr
	}
	return f.frames, nil
}

func (f *fakeSource) Release() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releases++
	return nil
}

func (f *fakeSource) releaseCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.releases
}

type fakeSession struct {
	events chan livestt.Event
	term   sync.Once

	mu   sync.Mutex
	sent []audio.Chunk
}

func newFakeSession() *fakeSession {
	return &fakeSession{events: make(chan livestt.Event, 16)}
}

func (s *fakeSession) Events() <-chan livestt.Event { return s.events }

func (s *fakeSession) SendAudio(chunk audio.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, chunk)
	return nil
}

func (s *fakeSession) sentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func (s *fakeSession) Close() error {
	s.terminate(livestt.Event{Type: livestt.EventClosed})
	return nil
}

func (s *fakeSession) emit(ev livestt.Event) { s.events <- ev }

func (s *fakeSession) terminate(ev livestt.Event) {
	s.term.Do(func() {
		s.events <- ev
		close(s.events)
	})
}

type fakeOpener struct {
	sess *fakeSession
	err  error
}

func (o *fakeOpener) OpenSession(ctx context.Context) (Session, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.sess, nil
}

type polishCall struct {
	slice string
	mode  polish.Mode
}

type fakePolisher struct {
	mu    sync.Mutex
	calls []polishCall
	fn    func(slice string, mode polish.Mode) (string, error)
}

func (p *fakePolisher) Polish(_ context.Context, transcript string, mode polish.Mode) (string, error) {
	p.mu.Lock()
	p.calls = append(p.calls, polishCall{slice: transcript, mode: mode})
	fn := p.fn
	p.mu.Unlock()
	if fn != nil {
		return fn(transcript, mode)
	}
	return "POLISHED: " + transcript, nil
}

func (p *fakePolisher) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePolisher) callAt(i int) polishCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[i]
}

type fakeSink struct {
	mu     sync.Mutex
	text   string
	status string
}

func (s *fakeSink) SetText(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text = text
}

func (s *fakeSink) SetStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

func (s *fakeSink) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

type env struct {
	src  *fakeSource
	sess *fakeSession
	pol  *fakePolisher
	sink *fakeSink
	ctrl *Controller
}

func newEnv(t *testing.T, opts *Options) *env {
	t.Helper()
	e := &env{
		src:  newFakeSource(),
		sess: newFakeSession(),
		pol:  &fakePolisher{},
		sink: &fakeSink{},
	}
	o := Options{
		QuietInterval: time.Hour, // individual tests shorten this
		FinalTimeout:  2 * time.Second,
		ChunkSamples:  4,
		SampleRate:    16000,
	}
	if opts != nil {
		o = *opts
	}
	adapter := capture.NewAdapter(e.src, logger.Nop())
	e.ctrl = NewController(adapter, &fakeOpener{sess: e.sess}, e.pol, e.sink, o, logger.Nop())
	return e
}

func (e *env) stop(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.ctrl.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

func delta(text string) livestt.Event {
	return livestt.Event{Type: livestt.EventDelta, Text: text}
}

func TestDeltasAccumulateInOrder(t *testing.T) {
	e := newEnv(t, nil)
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.sess.emit(delta("buy "))
	e.sess.emit(delta("milk "))
	e.sess.emit(delta("and bread"))

	waitFor(t, func() bool { return e.sink.Text() == "buy milk and bread" },
		"deltas did not accumulate in arrival order")

	e.stop(t)
}

func TestTurnCompleteTriggersImmediatePolish(t *testing.T) {
	e := newEnv(t, nil)
	e.pol.fn = func(slice string, mode polish.Mode) (string, error) {
		return "Buy milk.", nil
	}
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.sess.emit(delta("buy milk"))
	waitFor(t, func() bool { return e.sink.Text() == "buy milk" }, "raw delta not displayed")

	e.sess.emit(livestt.Event{Type: livestt.EventTurnComplete})
	waitFor(t, func() bool { return e.sink.Text() == "Buy milk." }, "polished text not applied")

	call := e.pol.callAt(0)
	if call.slice != "buy milk" || call.mode != polish.ModeIntermediate {
		t.Errorf("polish call: got %+v", call)
	}

	// The transcript equals the watermark now, so stop must not run a
	// redundant final polish.
	e.stop(t)
	if n := e.pol.callCount(); n != 1 {
		t.Errorf("want exactly one polish call, got %d", n)
	}
	if e.sink.Text() != "Buy milk." {
		t.Errorf("final text: got %q", e.sink.Text())
	}
	if e.ctrl.State() != StateIdle {
		t.Errorf("want idle after stop, got %v", e.ctrl.State())
	}
}

func TestStopRunsFinalPolish(t *testing.T) {
	e := newEnv(t, nil)
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.sess.emit(delta("schedule a meeting tomorrow"))
	waitFor(t, func() bool { return e.sink.Text() != "" }, "delta not displayed")

	e.stop(t)

	if n := e.pol.callCount(); n != 1 {
		t.Fatalf("want one final polish call, got %d", n)
	}
	call := e.pol.callAt(0)
	if call.mode != polish.ModeFinal || call.slice != "schedule a meeting tomorrow" {
		t.Errorf("final polish call: got %+v", call)
	}
	if e.sink.Text() != "POLISHED: schedule a meeting tomorrow" {
		t.Errorf("final text: got %q", e.sink.Text())
	}
}

func TestStopIdempotent(t *testing.T) {
	e := newEnv(t, nil)
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	e.sess.emit(delta("some dictated text"))
	waitFor(t, func() bool { return e.sink.Text() != "" }, "delta not displayed")

	e.stop(t)
	e.stop(t) // second stop is a no-op

	if n := e.pol.callCount(); n != 1 {
		t.Errorf("double stop must not duplicate the final polish, got %d calls", n)
	}
	if n := e.src.releaseCount(); n != 1 {
		t.Errorf("want one release, got %d", n)
	}
}

func TestStopWhileIdle(t *testing.T) {
	e := newEnv(t, nil)
	if err := e.ctrl.Stop(context.Background()); err != nil {
		t.Fatalf("Stop while idle should be a no-op, got %v", err)
	}
}

func TestDebounceCoalescesDeltas(t *testing.T) {
	e := newEnv(t, &Options{
		QuietInterval: 50 * time.Millisecond,
		FinalTimeout:  2 * time.Second,
		ChunkSamples:  4,
		SampleRate:    16000,
	})
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// A burst of deltas inside the quiet interval must produce exactly
	// one intermediate polish, covering the whole burst.
	e.sess.emit(delta("one "))
	time.Sleep(10 * time.Millisecond)
	e.sess.emit(delta("two "))
	time.Sleep(10 * time.Millisecond)
	e.sess.emit(delta("three"))

	waitFor(t, func() bool { return e.pol.callCount() == 1 }, "debounced polish never fired")
	time.Sleep(120 * time.Millisecond)
	if n := e.pol.callCount(); n != 1 {
		t.Fatalf("want one coalesced polish, got %d", n)
	}
	if call := e.pol.callAt(0); call.slice != "one two three" {
		t.Errorf("polish slice: got %q", call.slice)
	}

	e.stop(t)
}

func TestPolishFailureKeepsDisplayedText(t *testing.T) {
	e := newEnv(t, nil)
	e.pol.fn = func(slice string, mode polish.Mode) (string, error) {
		return "", errors.New("backend unavailable")
	}
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.sess.emit(delta("hello there"))
	waitFor(t, func() bool { return e.sink.Text() == "hello there" }, "delta not displayed")

	e.sess.emit(livestt.Event{Type: livestt.EventTurnComplete})
	waitFor(t, func() bool { return e.pol.callCount() == 1 }, "polish never invoked")
	time.Sleep(20 * time.Millisecond)

	if e.sink.Text() != "hello there" {
		t.Errorf("failed polish must not change display, got %q", e.sink.Text())
	}
	if e.ctrl.State() != StateRecording {
		t.Errorf("failed polish must not end recording, state %v", e.ctrl.State())
	}

	// Subsequent deltas keep appending normally.
	e.sess.emit(delta(" general kenobi"))
	waitFor(t, func() bool { return e.sink.Text() == "hello there general kenobi" },
		"appending broken after polish failure")

	e.stop(t)
}

func TestLatePolishDoesNotOverwriteFinal(t *testing.T) {
	block := make(chan struct{})
	e := newEnv(t, &Options{
		QuietInterval: time.Hour,
		FinalTimeout:  50 * time.Millisecond,
		ChunkSamples:  4,
		SampleRate:    16000,
	})
	e.pol.fn = func(slice string, mode polish.Mode) (string, error) {
		if mode == polish.ModeIntermediate {
			<-block
			return "STALE: " + slice, nil
		}
		return "FINAL: " + slice, nil
	}
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.sess.emit(delta("first part"))
	waitFor(t, func() bool { return e.sink.Text() == "first part" }, "delta not displayed")
	e.sess.emit(livestt.Event{Type: livestt.EventTurnComplete})
	waitFor(t, func() bool { return e.pol.callCount() == 1 }, "intermediate polish never started")

	e.sess.emit(delta(" second part"))
	waitFor(t, func() bool { return e.sink.Text() == "first part second part" }, "second delta not displayed")

	// Stop times out waiting for the blocked intermediate call, then
	// runs the final polish over the longer slice.
	e.stop(t)
	if e.sink.Text() != "FINAL: first part second part" {
		t.Fatalf("final text: got %q", e.sink.Text())
	}

	// The stale intermediate result resolving late must not win.
	close(block)
	time.Sleep(50 * time.Millisecond)
	if e.sink.Text() != "FINAL: first part second part" {
		t.Errorf("stale result overwrote final text: %q", e.sink.Text())
	}
}

func TestSessionErrorFinalizes(t *testing.T) {
	e := newEnv(t, nil)
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.sess.emit(delta("text before the failure"))
	waitFor(t, func() bool { return e.sink.Text() != "" }, "delta not displayed")

	e.sess.terminate(livestt.Event{Type: livestt.EventError, Err: errors.New("connection reset")})

	waitFor(t, func() bool { return e.ctrl.State() == StateIdle }, "controller stuck after session error")
	if n := e.src.releaseCount(); n != 1 {
		t.Errorf("want audio released after session error, got %d releases", n)
	}
	// The pre-error transcript still gets its final polish.
	if n := e.pol.callCount(); n != 1 {
		t.Errorf("want one final polish after error, got %d", n)
	}
	if e.sink.Text() != "POLISHED: text before the failure" {
		t.Errorf("final text: got %q", e.sink.Text())
	}
}

func TestStartWhileRecordingRejected(t *testing.T) {
	e := newEnv(t, nil)
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := e.ctrl.Start(context.Background()); !errors.Is(err, ErrBusy) {
		t.Errorf("want ErrBusy, got %v", err)
	}
	e.stop(t)
}

func TestStartAcquireFailure(t *testing.T) {
	e := newEnv(t, nil)
	e.src.acquireErr = capture.ErrPermissionDenied

	err := e.ctrl.Start(context.Background())
	if !errors.Is(err, capture.ErrPermissionDenied) {
		t.Fatalf("want permission error, got %v", err)
	}
	if e.ctrl.State() != StateIdle {
		t.Errorf("failed start must return to idle, got %v", e.ctrl.State())
	}
}

func TestStartOpenFailure(t *testing.T) {
	e := newEnv(t, nil)
	adapter := capture.NewAdapter(e.src, logger.Nop())
	ctrl := NewController(adapter, &fakeOpener{err: errors.New("dial refused")}, e.pol, e.sink, Options{
		QuietInterval: time.Hour,
		FinalTimeout:  time.Second,
		ChunkSamples:  4,
		SampleRate:    16000,
	}, logger.Nop())

	if err := ctrl.Start(context.Background()); err == nil {
		t.Fatal("expected error when session open fails")
	}
	if ctrl.State() != StateIdle {
		t.Errorf("want idle after open failure, got %v", ctrl.State())
	}
	if n := e.src.releaseCount(); n != 1 {
		t.Errorf("partially acquired audio must be released, got %d releases", n)
	}
}

func TestAudioFramesForwardedAsChunks(t *testing.T) {
	e := newEnv(t, nil) // ChunkSamples = 4
	if err := e.ctrl.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	e.src.frames <- []float32{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8}
	waitFor(t, func() bool { return e.sess.sentCount() == 2 }, "frames not chunked and forwarded")

	e.stop(t)
}

func TestApplyPolishDiscardsStaleSlice(t *testing.T) {
	sink := &fakeSink{}
	c := NewController(nil, nil, nil, sink, Options{}, logger.Nop())
	rec := &recordingSession{transcript: "a longer transcript", watermark: "a longer transcript"}
	sink.SetText("current text")

	c.applyPolish(rec, polishResult{slice: "a longer", text: "STALE", mode: polish.ModeIntermediate})

	if sink.Text() != "current text" {
		t.Errorf("stale result applied: %q", sink.Text())
	}
	if rec.watermark != "a longer transcript" {
		t.Errorf("watermark regressed to %q", rec.watermark)
	}
}

func TestApplyPolishAdvancesWatermark(t *testing.T) {
	sink := &fakeSink{}
	c := NewController(nil, nil, nil, sink, Options{}, logger.Nop())
	rec := &recordingSession{transcript: "buy milk", watermark: ""}

	c.applyPolish(rec, polishResult{slice: "buy milk", text: "Buy milk.", mode: polish.ModeIntermediate})

	if sink.Text() != "Buy milk." {
		t.Errorf("result not applied: %q", sink.Text())
	}
	if rec.watermark != "buy milk" {
		t.Errorf("watermark: got %q", rec.watermark)
	}
}
