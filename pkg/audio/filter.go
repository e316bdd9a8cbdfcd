package audio

import (
	"fmt"
	"math"
)

// SpeechFilter band-limits emitted segments to the voice band and gates out
// low-level background noise before they are queued for recognition. The
// filtering is a deterministic signal-processing step; segmentation
// correctness never depends on it.
//
// The band-pass is a cascade of two biquad sections (high-pass at the low
// edge, low-pass at the high edge). A SpeechFilter is stateless between
// segments and safe to reuse; it is not safe for concurrent use.
type SpeechFilter struct {
	// LowHz and HighHz bound the pass band. Speech intelligibility lives
	// almost entirely in 300–3000 Hz.
	LowHz  float64
	HighHz float64

	// GateThreshold is the windowed RMS level below which audio is treated as
	// background noise and muted. Zero disables the gate.
	GateThreshold float64
}

// NewSpeechFilter returns a filter with the standard telephony voice band.
func NewSpeechFilter() *SpeechFilter {
	return &SpeechFilter{LowHz: 300, HighHz: 3000, GateThreshold: 0.005}
}

// Apply filters a segment in the canonical float domain and re-encodes it in
// the segment's original format. The input segment is not modified.
func (f *SpeechFilter) Apply(seg Segment) (Segment, error) {
	samples, err := Normalize(seg.Data, seg.Format)
	if err != nil {
		return Segment{}, fmt.Errorf("audio: filter: %w", err)
	}

	rate := float64(seg.SampleRate)
	hp := newBiquadHighPass(f.LowHz, rate)
	lp := newBiquadLowPass(f.HighHz, rate)
	for i, s := range samples {
		samples[i] = lp.process(hp.process(s))
	}

	if f.GateThreshold > 0 {
		gate(samples, seg.SampleRate, f.GateThreshold)
	}

	data, err := Denormalize(samples, seg.Format)
	if err != nil {
		return Segment{}, fmt.Errorf("audio: filter: %w", err)
	}

	out := seg
	out.Data = data
	return out, nil
}

// gate mutes windows whose RMS falls below threshold. Window length is 10 ms.
func gate(samples []float64, sampleRate int, threshold float64) {
	win := sampleRate / 100
	if win < 1 {
		win = 1
	}
	for start := 0; start < len(samples); start += win {
		end := min(start+win, len(samples))
		if RMS(samples[start:end]) < threshold {
			for i := start; i < end; i++ {
				samples[i] = 0
			}
		}
	}
}

// biquad is a direct-form-1 second-order IIR section with RBJ cookbook
// coefficients.
type biquad struct {
	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

func (b *biquad) process(x float64) float64 {
	y := b.b0*x + b.b1*b.x1 + b.b2*b.x2 - b.a1*b.y1 - b.a2*b.y2
	b.x2, b.x1 = b.x1, x
	b.y2, b.y1 = b.y1, y
	return y
}

const filterQ = math.Sqrt2 / 2 // Butterworth response

func newBiquadHighPass(freq, sampleRate float64) *biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * filterQ)
	a0 := 1 + alpha
	return &biquad{
		b0: (1 + cosW0) / 2 / a0,
		b1: -(1 + cosW0) / a0,
		b2: (1 + cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}

func newBiquadLowPass(freq, sampleRate float64) *biquad {
	w0 := 2 * math.Pi * freq / sampleRate
	cosW0 := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * filterQ)
	a0 := 1 + alpha
	return &biquad{
		b0: (1 - cosW0) / 2 / a0,
		b1: (1 - cosW0) / a0,
		b2: (1 - cosW0) / 2 / a0,
		a1: -2 * cosW0 / a0,
		a2: (1 - alpha) / a0,
	}
}
