package audio

import "math"

// VADConfig holds the two detection thresholds for frame classification.
type VADConfig struct {
	// VoiceThreshold is the minimum normalized RMS energy for a frame to count
	// as voiced. Range: [0.0, 1.0]. Typical: 0.01–0.03.
	VoiceThreshold float64 `yaml:"voice_threshold"`

	// ZeroCrossingThreshold is the minimum zero-crossing rate for a frame to
	// have a speech-like spectral shape. The rate is sign changes divided by
	// twice the sample count, so its range is [0.0, 0.5]. Typical: 0.05–0.15.
	ZeroCrossingThreshold float64 `yaml:"zero_crossing_threshold"`
}

// Classify reports whether a frame contains voice. Both signals must agree:
// the normalized RMS energy must exceed cfg.VoiceThreshold AND the
// zero-crossing rate must exceed cfg.ZeroCrossingThreshold. Energy alone
// triggers on broadband noise and hum; requiring speech-like zero-crossing
// density suppresses that class of false positive.
//
// Classify is pure and has no failure mode beyond ErrUnsupportedFormat.
func Classify(frame Frame, cfg VADConfig) (bool, error) {
	samples, err := Normalize(frame.Data, frame.Format)
	if err != nil {
		return false, err
	}
	if len(samples) == 0 {
		return false, nil
	}

	hasEnergy := RMS(samples) > cfg.VoiceThreshold
	hasSpeechShape := ZeroCrossingRate(samples) > cfg.ZeroCrossingThreshold
	return hasEnergy && hasSpeechShape, nil
}

// RMS returns the root-mean-square energy of normalized samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// ZeroCrossingRate returns the number of sign changes between consecutive
// samples divided by twice the sample count.
func ZeroCrossingRate(samples []float64) float64 {
	if len(samples) < 2 {
		return 0
	}
	crossings := 0
	for i := 1; i < len(samples); i++ {
		if (samples[i-1] >= 0) != (samples[i] >= 0) {
			crossings++
		}
	}
	return float64(crossings) / (2 * float64(len(samples)))
}
