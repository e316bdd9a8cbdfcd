package audio

import (
	"errors"
	"fmt"
	"time"
)

// SegmentReason records which rule cut a segment.
type SegmentReason string

const (
	// ReasonMaxDuration means the buffer hit its hard duration ceiling.
	ReasonMaxDuration SegmentReason = "max_duration"

	// ReasonMediumPause means a medium-length pause followed enough audio.
	ReasonMediumPause SegmentReason = "medium_pause"

	// ReasonLongPause means a long pause followed enough audio. Only reachable
	// when the configured medium pause exceeds the long pause.
	ReasonLongPause SegmentReason = "long_pause"

	// ReasonIdleFlush means the stream stalled and a stranded buffer was
	// flushed by the idle path.
	ReasonIdleFlush SegmentReason = "idle_flush"
)

// Segment is a completed, voice-delimited span of audio. Ownership transfers
// fully to the consumer; the segmenter retains no reference to Data.
type Segment struct {
	Data       []byte
	Format     SampleFormat
	SampleRate int
	Reason     SegmentReason

	// Start is the capture timestamp of the first sample in Data.
	Start time.Duration
}

// Samples returns the number of samples in the segment.
func (s Segment) Samples() int {
	bps := s.Format.BytesPerSample()
	if bps == 0 {
		return 0
	}
	return len(s.Data) / bps
}

// Duration returns the play time of the segment.
func (s Segment) Duration() time.Duration {
	if s.SampleRate <= 0 {
		return 0
	}
	return time.Duration(s.Samples()) * time.Second / time.Duration(s.SampleRate)
}

// SegmenterConfig holds the buffering and pause policy for a Segmenter.
type SegmenterConfig struct {
	// SampleRate of the incoming frames in Hz.
	SampleRate int `yaml:"sample_rate"`

	// Format of the incoming frames. Every pushed frame must match.
	Format SampleFormat `yaml:"format"`

	// MinBufferDuration is the emission floor: no segment shorter than this is
	// ever emitted.
	MinBufferDuration time.Duration `yaml:"min_buffer_duration"`

	// MaxBufferDuration forces a cut regardless of voice activity.
	MaxBufferDuration time.Duration `yaml:"max_buffer_duration"`

	// MediumPauseDuration cuts once the buffer holds at least
	// MinBufferDuration of audio and the tail silence reaches this length.
	MediumPauseDuration time.Duration `yaml:"medium_pause_duration"`

	// LongPauseDuration is the fallback pause rule, checked after the medium
	// rule, and the threshold for the idle flush path.
	LongPauseDuration time.Duration `yaml:"long_pause_duration"`

	// VAD holds the per-frame classification thresholds.
	VAD VADConfig `yaml:"vad"`
}

// Validate checks the configuration for coherence.
func (c SegmenterConfig) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample_rate %d must be positive", c.SampleRate))
	}
	if !c.Format.IsValid() {
		errs = append(errs, fmt.Errorf("%w: %q", ErrUnsupportedFormat, c.Format))
	}
	if c.MinBufferDuration <= 0 {
		errs = append(errs, fmt.Errorf("min_buffer_duration %v must be positive", c.MinBufferDuration))
	}
	if c.MaxBufferDuration <= c.MinBufferDuration {
		errs = append(errs, fmt.Errorf("max_buffer_duration %v must exceed min_buffer_duration %v", c.MaxBufferDuration, c.MinBufferDuration))
	}
	if c.MediumPauseDuration <= 0 {
		errs = append(errs, fmt.Errorf("medium_pause_duration %v must be positive", c.MediumPauseDuration))
	}
	if c.LongPauseDuration <= 0 {
		errs = append(errs, fmt.Errorf("long_pause_duration %v must be positive", c.LongPauseDuration))
	}
	return errors.Join(errs...)
}

// Segmenter accumulates frames and emits bounded, voice-delimited segments.
//
// All timing is derived from accumulated sample counts rather than the wall
// clock, so replaying a frame sequence through a fresh Segmenter yields
// identical segment boundaries. A Segmenter is owned by a single goroutine
// and is not safe for concurrent use.
type Segmenter struct {
	cfg SegmenterConfig

	buf          []byte
	bufSamples   int
	pauseSamples int // consecutive unvoiced samples at the buffer tail
	hadVoice     bool
	start        time.Duration
	started      bool

	// thresholds precomputed in samples
	minSamples         int
	maxSamples         int
	mediumPauseSamples int
	longPauseSamples   int
}

// NewSegmenter creates a Segmenter with the given policy. Returns an error if
// the configuration is invalid.
func NewSegmenter(cfg SegmenterConfig) (*Segmenter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("audio: segmenter config: %w", err)
	}
	return &Segmenter{
		cfg:                cfg,
		minSamples:         durationSamples(cfg.MinBufferDuration, cfg.SampleRate),
		maxSamples:         durationSamples(cfg.MaxBufferDuration, cfg.SampleRate),
		mediumPauseSamples: durationSamples(cfg.MediumPauseDuration, cfg.SampleRate),
		longPauseSamples:   durationSamples(cfg.LongPauseDuration, cfg.SampleRate),
	}, nil
}

// Push classifies a frame, appends it to the active buffer, and evaluates
// the segmentation rules. It returns a non-nil Segment when a cut fires.
//
// Silence that precedes any voice is discarded: an utterance buffer opens on
// the first voiced frame, so a stream of pure silence never accumulates and
// never emits.
//
// On a classification error an already-open buffer keeps the frame (no data
// loss) and the error is returned; the caller logs it and continues with the
// next frame.
func (s *Segmenter) Push(frame Frame) (*Segment, error) {
	if frame.Format != s.cfg.Format {
		return nil, fmt.Errorf("audio: frame format %q does not match segmenter format %q", frame.Format, s.cfg.Format)
	}

	voiced, err := Classify(frame, s.cfg.VAD)
	if err != nil {
		if s.started {
			s.append(frame)
		}
		return nil, err
	}
	if !voiced && !s.hadVoice {
		return nil, nil
	}

	s.append(frame)
	if voiced {
		s.hadVoice = true
		s.pauseSamples = 0
	} else {
		s.pauseSamples += frame.Samples()
	}

	// Rules in priority order. The long-pause check after the medium-pause
	// check looks redundant, but which one fires first depends on how the two
	// thresholds are ordered in the deployment's tuning.
	switch {
	case s.bufSamples >= s.maxSamples:
		return s.emit(ReasonMaxDuration), nil
	case s.bufSamples >= s.minSamples && s.pauseSamples >= s.mediumPauseSamples:
		return s.emit(ReasonMediumPause), nil
	case s.bufSamples >= s.minSamples && s.pauseSamples >= s.longPauseSamples:
		return s.emit(ReasonLongPause), nil
	}
	return nil, nil
}

// Flush implements the stream-stall path: when no frames have arrived within
// the poll interval, a buffer that has both reached the emission floor and
// been without voice for the long-pause threshold is flushed so data is not
// stranded. idle is the wall time since the last frame arrived; it extends
// whatever silence is already buffered. Returns nil when the buffer does not
// qualify.
func (s *Segmenter) Flush(idle time.Duration) *Segment {
	if s.bufSamples < s.minSamples {
		return nil
	}
	pause := time.Duration(s.pauseSamples) * time.Second / time.Duration(s.cfg.SampleRate)
	if pause+idle >= s.cfg.LongPauseDuration {
		return s.emit(ReasonIdleFlush)
	}
	return nil
}

// Buffered returns the number of samples currently accumulated.
func (s *Segmenter) Buffered() int { return s.bufSamples }

func (s *Segmenter) append(frame Frame) {
	if !s.started {
		s.start = frame.Timestamp
		s.started = true
	}
	s.buf = append(s.buf, frame.Data...)
	s.bufSamples += frame.Samples()
}

// emit cuts the current buffer into a Segment, excluding the silent tail when
// the trimmed slice still clears the emission floor, and resets all state for
// the next utterance.
func (s *Segmenter) emit(reason SegmentReason) *Segment {
	bps := s.cfg.Format.BytesPerSample()

	data := s.buf
	if s.pauseSamples > 0 {
		keep := s.bufSamples - s.pauseSamples
		if keep >= s.minSamples {
			data = s.buf[:keep*bps]
		}
	}

	// Hand ownership of the emitted bytes to the consumer.
	out := make([]byte, len(data))
	copy(out, data)

	seg := &Segment{
		Data:       out,
		Format:     s.cfg.Format,
		SampleRate: s.cfg.SampleRate,
		Reason:     reason,
		Start:      s.start,
	}

	s.buf = nil
	s.bufSamples = 0
	s.pauseSamples = 0
	s.hadVoice = false
	s.started = false
	return seg
}

func durationSamples(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}
