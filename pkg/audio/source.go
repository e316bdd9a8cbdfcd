package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

// FrameSource delivers capture frames on a channel. The physical capture
// device is outside the pipeline; anything that can produce fixed-size PCM
// blocks (a sound card shim, a network tap, a file replay) can be a source.
type FrameSource interface {
	// Frames returns the delivery channel. The source closes it when the
	// stream ends or the source is closed.
	Frames() <-chan Frame

	// Close stops capture and releases resources. Safe to call twice.
	Close() error
}

// StreamSource reads raw PCM from an io.Reader and slices it into fixed-size
// frames. Timestamps are derived from the accumulated sample count, so replay
// from a file produces the same frame sequence as a live capture would.
//
// Typical use is piping a capture utility into stdin:
//
//	src := audio.NewStreamSource(os.Stdin, audio.StreamConfig{
//	    SampleRate: 16000,
//	    Format:     audio.FormatInt16,
//	    FrameSize:  1024,
//	})
type StreamSource struct {
	r   io.Reader
	cfg StreamConfig

	frames chan Frame
	done   chan struct{}
	once   sync.Once
	wg     sync.WaitGroup
}

// StreamConfig describes the PCM layout of a StreamSource's reader.
type StreamConfig struct {
	// SampleRate in Hz of the incoming PCM.
	SampleRate int

	// Format of the incoming PCM samples.
	Format SampleFormat

	// FrameSize is the number of samples per emitted frame.
	FrameSize int

	// Buffer is the frame channel depth. Defaults to 64.
	Buffer int
}

// NewStreamSource starts a reader goroutine that slices r into frames.
// The returned source must be closed to stop the goroutine if r never
// reaches EOF on its own.
func NewStreamSource(ctx context.Context, r io.Reader, cfg StreamConfig) (*StreamSource, error) {
	if cfg.SampleRate <= 0 {
		return nil, errors.New("audio: stream source: sample rate must be positive")
	}
	if !cfg.Format.IsValid() {
		return nil, ErrUnsupportedFormat
	}
	if cfg.FrameSize <= 0 {
		return nil, errors.New("audio: stream source: frame size must be positive")
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = 64
	}

	s := &StreamSource{
		r:      r,
		cfg:    cfg,
		frames: make(chan Frame, cfg.Buffer),
		done:   make(chan struct{}),
	}
	s.wg.Add(1)
	go s.readLoop(ctx)
	return s, nil
}

// Frames implements FrameSource.
func (s *StreamSource) Frames() <-chan Frame { return s.frames }

// Close implements FrameSource.
func (s *StreamSource) Close() error {
	s.once.Do(func() { close(s.done) })
	s.wg.Wait()
	return nil
}

func (s *StreamSource) readLoop(ctx context.Context) {
	defer s.wg.Done()
	defer close(s.frames)

	frameBytes := s.cfg.FrameSize * s.cfg.Format.BytesPerSample()
	var elapsed int64 // samples delivered so far

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		default:
		}

		buf := make([]byte, frameBytes)
		n, err := io.ReadFull(s.r, buf)
		if n > 0 {
			// Truncate a short final read to whole samples.
			n -= n % s.cfg.Format.BytesPerSample()
		}
		if n > 0 {
			frame := Frame{
				Data:       buf[:n],
				Format:     s.cfg.Format,
				SampleRate: s.cfg.SampleRate,
				Timestamp:  time.Duration(elapsed) * time.Second / time.Duration(s.cfg.SampleRate),
			}
			elapsed += int64(frame.Samples())
			select {
			case s.frames <- frame:
			case <-ctx.Done():
				return
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}
