package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/yegors/voxprompt/pkg/logger"
)

// Sentinel errors for microphone acquisition failures. The browser side
// reports these through the dictation socket handshake.
var (
	ErrPermissionDenied  = errors.New("capture: microphone permission denied")
	ErrDeviceUnavailable = errors.New("capture: microphone device unavailable")
)

// Source supplies raw microphone frames from wherever the microphone
// actually lives. In production that is a browser relaying float32 PCM
// over the dictation WebSocket; in tests it is an in-memory fake.
type Source interface {
	// Acquire requests capture and blocks until the source grants it,
	// denies it, or ctx is done. The returned channel carries mono
	// float32 frames and is closed when the source stops producing.
	Acquire(ctx context.Context) (<-chan []float32, error)

	// Release stops hardware capture. Idempotent; safe to call when
	// Acquire never succeeded.
	Release() error
}

// Adapter owns the lifecycle of one microphone stream at a time.
type Adapter struct {
	source Source
	logger *logger.Logger

	mu     sync.Mutex
	active *Stream
}

// NewAdapter creates an adapter around the given frame source.
func NewAdapter(source Source, logger *logger.Logger) *Adapter {
	return &Adapter{
		source: source,
		logger: logger.Named("capture"),
	}
}

// Acquire requests the microphone and returns the live stream. Only one
// stream may be active; a second Acquire without an intervening Release
// fails.
func (a *Adapter) Acquire(ctx context.Context) (*Stream, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.active != nil {
		return nil, fmt.Errorf("capture: stream already active")
	}

	frames, err := a.source.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	stream := &Stream{
		frames: frames,
		release: func() {
			if err := a.source.Release(); err != nil {
				a.logger.Warn("Source release failed", logger.Error(err))
			}
			a.mu.Lock()
			a.active = nil
			a.mu.Unlock()
		},
	}
	a.active = stream

	a.logger.Debug("Microphone stream acquired")
	return stream, nil
}

// Release stops the active stream, if any. Idempotent.
func (a *Adapter) Release() {
	a.mu.Lock()
	stream := a.active
	a.mu.Unlock()

	if stream != nil {
		stream.Release()
	}
}

// Stream is one acquired microphone stream.
type Stream struct {
	frames  <-chan []float32
	release func()
	once    sync.Once
}

// Frames returns the channel of captured frames. The channel closes when
// the source stops (client disconnect or Release).
func (s *Stream) Frames() <-chan []float32 {
	return s.frames
}

// Release stops capture. Safe to call multiple times.
func (s *Stream) Release() {
	s.once.Do(s.release)
}
