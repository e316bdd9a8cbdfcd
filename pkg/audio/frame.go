// Package audio provides the sample-level building blocks of the argot
// pipeline: the Frame transport type, sample normalization across bit depths,
// energy/zero-crossing voice activity detection, and the dynamic segmenter
// that cuts a live stream into bounded utterances.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// SampleFormat identifies the numeric encoding of PCM samples in a Frame.
type SampleFormat string

const (
	FormatInt8    SampleFormat = "int8"
	FormatInt16   SampleFormat = "int16"
	FormatInt32   SampleFormat = "int32"
	FormatFloat32 SampleFormat = "float32"
)

// IsValid reports whether f is a recognised sample format.
func (f SampleFormat) IsValid() bool {
	switch f {
	case FormatInt8, FormatInt16, FormatInt32, FormatFloat32:
		return true
	}
	return false
}

// BytesPerSample returns the width of one sample in bytes, or 0 for an
// unrecognised format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatInt8:
		return 1
	case FormatInt16:
		return 2
	case FormatInt32, FormatFloat32:
		return 4
	}
	return 0
}

// ErrUnsupportedFormat is returned when a Frame declares a sample format the
// pipeline cannot decode. This is a configuration bug and fatal at startup.
var ErrUnsupportedFormat = fmt.Errorf("audio: unsupported sample format")

// Frame is a fixed-length block of PCM samples flowing through the pipeline.
// Frames are immutable once produced; stages must not mutate Data.
type Frame struct {
	// Data holds little-endian PCM samples encoded per Format.
	Data []byte

	// Format declares the sample encoding of Data.
	Format SampleFormat

	// SampleRate in Hz (e.g., 16000 for speech recognition input).
	SampleRate int

	// Timestamp marks when this frame was captured, relative to stream start.
	Timestamp time.Duration
}

// Samples returns the number of samples encoded in f.Data.
func (f Frame) Samples() int {
	bps := f.Format.BytesPerSample()
	if bps == 0 {
		return 0
	}
	return len(f.Data) / bps
}

// Duration returns the play time of the frame at its declared sample rate.
func (f Frame) Duration() time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	return time.Duration(f.Samples()) * time.Second / time.Duration(f.SampleRate)
}

// Full-scale divisors used to map integer PCM onto [-1.0, 1.0].
const (
	scaleInt8  = 128.0
	scaleInt16 = 32768.0
	scaleInt32 = 2147483648.0
)

// Normalize decodes raw PCM bytes into float64 samples in the canonical
// [-1.0, 1.0] range. Integer formats divide by their full-scale value;
// float32 input is clipped into range. Returns ErrUnsupportedFormat for an
// unknown format.
func Normalize(data []byte, format SampleFormat) ([]float64, error) {
	switch format {
	case FormatInt8:
		out := make([]float64, len(data))
		for i, b := range data {
			out[i] = float64(int8(b)) / scaleInt8
		}
		return out, nil

	case FormatInt16:
		n := len(data) / 2
		out := make([]float64, n)
		for i := range n {
			s := int16(binary.LittleEndian.Uint16(data[i*2:]))
			out[i] = float64(s) / scaleInt16
		}
		return out, nil

	case FormatInt32:
		n := len(data) / 4
		out := make([]float64, n)
		for i := range n {
			s := int32(binary.LittleEndian.Uint32(data[i*4:]))
			out[i] = float64(s) / scaleInt32
		}
		return out, nil

	case FormatFloat32:
		n := len(data) / 4
		out := make([]float64, n)
		for i := range n {
			v := float64(math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:])))
			out[i] = clip(v, -1.0, 1.0)
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Denormalize encodes canonical float64 samples back into raw PCM bytes of
// the given format. Values outside [-1.0, 1.0] are clipped before encoding.
// Round-tripping through Normalize recovers the original samples within one
// least-significant bit of quantization error.
func Denormalize(samples []float64, format SampleFormat) ([]byte, error) {
	switch format {
	case FormatInt8:
		out := make([]byte, len(samples))
		for i, v := range samples {
			out[i] = byte(int8(clampInt(clip(v, -1.0, 1.0)*scaleInt8, -128, 127)))
		}
		return out, nil

	case FormatInt16:
		out := make([]byte, len(samples)*2)
		for i, v := range samples {
			s := int16(clampInt(clip(v, -1.0, 1.0)*scaleInt16, -32768, 32767))
			binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
		}
		return out, nil

	case FormatInt32:
		out := make([]byte, len(samples)*4)
		for i, v := range samples {
			s := int32(clampInt(clip(v, -1.0, 1.0)*scaleInt32, -2147483648, 2147483647))
			binary.LittleEndian.PutUint32(out[i*4:], uint32(s))
		}
		return out, nil

	case FormatFloat32:
		out := make([]byte, len(samples)*4)
		for i, v := range samples {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(float32(clip(v, -1.0, 1.0))))
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi float64) float64 {
	v = math.Round(v)
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
