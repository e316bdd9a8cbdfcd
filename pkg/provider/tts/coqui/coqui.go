// Package coqui provides a Coqui TTS-backed synthesizer that connects to
// either a Coqui XTTS v2 server or a standard Coqui TTS server via its REST
// API. It implements the tts.Synthesizer interface.
//
// Two API modes are supported:
//
//   - APIModeStandard (default): targets the standard Coqui TTS server
//     (ghcr.io/coqui-ai/tts-cpu). Synthesis is performed via GET /api/tts with
//     URL query parameters.
//
//   - APIModeXTTS: targets the Coqui XTTS v2 API server. Synthesis is
//     performed via POST /tts_to_audio/ with a JSON body.
//
// Both servers operate in batch mode (one HTTP call per utterance). Speak
// splits its input into sentences and dispatches concurrent HTTP requests
// with a small lookahead window, writing PCM to the sink in sentence order to
// minimise perceived latency.
//
// Typical usage (standard server):
//
//	s, err := coqui.New("http://localhost:5002", player,
//	    coqui.WithLanguage("en"),
//	    coqui.WithTimeout(15*time.Second),
//	)
//	err = s.Speak(ctx, "Hello there. How are you?")
package coqui

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Synthesizer = (*Synthesizer)(nil)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second
	ttsEndpoint     = "/tts_to_audio/"
	apiTTSEndpoint  = "/api/tts"

	// sentenceLookahead controls how many concurrent HTTP synthesis requests
	// may be in-flight simultaneously. Higher values reduce perceived latency
	// at the cost of additional server load.
	sentenceLookahead = 4
)

// APIMode selects which Coqui server API the synthesizer will target.
type APIMode string

const (
	// APIModeXTTS targets the Coqui XTTS v2 API server (/tts_to_audio/).
	APIModeXTTS APIMode = "xtts"

	// APIModeStandard targets the standard Coqui TTS server (/api/tts).
	// This is the default mode.
	APIModeStandard APIMode = "standard"
)

// Option is a functional option for configuring a Synthesizer.
type Option func(*Synthesizer)

// WithLanguage sets the BCP-47 language code sent to the TTS server (e.g.,
// "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(s *Synthesizer) { s.language = lang }
}

// WithVoice sets the voice identifier: a speaker_id for the standard server,
// a speaker_wav reference for XTTS. XTTS mode requires a voice.
func WithVoice(voice string) Option {
	return func(s *Synthesizer) { s.voice = voice }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(s *Synthesizer) { s.httpClient.Timeout = d }
}

// WithAPIMode sets the server API mode. Use APIModeStandard (default) for the
// standard Coqui TTS Docker image or APIModeXTTS for the XTTS v2 API server.
func WithAPIMode(mode APIMode) Option {
	return func(s *Synthesizer) { s.apiMode = mode }
}

// WithOutputSampleRate resamples synthesized PCM to the given sample rate
// before writing it to the sink. When 0 (default) PCM is written at the
// model's native rate.
func WithOutputSampleRate(rate int) Option {
	return func(s *Synthesizer) { s.outputRate = rate }
}

// Synthesizer implements tts.Synthesizer backed by a Coqui TTS server.
type Synthesizer struct {
	serverURL  string
	out        io.Writer
	language   string
	voice      string
	httpClient *http.Client
	apiMode    APIMode
	outputRate int // target sample rate; 0 = no resampling
}

// New creates a Synthesizer targeting the TTS server at serverURL (e.g.,
// "http://localhost:5002") and writing PCM to out. Both must be non-nil.
func New(serverURL string, out io.Writer, opts ...Option) (*Synthesizer, error) {
	if serverURL == "" {
		return nil, errors.New("coqui: serverURL must not be empty")
	}
	if out == nil {
		return nil, errors.New("coqui: output sink must not be nil")
	}
	s := &Synthesizer{
		serverURL: strings.TrimRight(serverURL, "/"),
		out:       out,
		language:  defaultLanguage,
		apiMode:   APIModeStandard,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(s)
	}
	if s.apiMode == APIModeXTTS && s.voice == "" {
		return nil, errors.New("coqui: a voice is required in XTTS mode")
	}
	return s, nil
}

// ttsRequest is the JSON body sent to POST /tts_to_audio/ (XTTS mode).
type ttsRequest struct {
	Text       string `json:"text"`
	SpeakerWav string `json:"speaker_wav"`
	Language   string `json:"language"`
}

// audioResult carries a synthesized PCM byte slice or an error from a worker
// goroutine.
type audioResult struct {
	pcm []byte
	err error
}

// Speak splits text into sentences (on '.', '!', '?' followed by whitespace
// or end of input), issues one HTTP synthesis request per sentence with up to
// sentenceLookahead requests in flight, and writes the resulting PCM to the
// sink in the original sentence order.
func (s *Synthesizer) Speak(ctx context.Context, text string) error {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return tts.ErrEmptyText
	}

	// Ordered result channels keep output in sentence order while requests
	// overlap.
	results := make([]chan audioResult, len(sentences))
	for i := range results {
		results[i] = make(chan audioResult, 1)
	}

	sem := make(chan struct{}, sentenceLookahead)
	dispatchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		for i, sentence := range sentences {
			select {
			case sem <- struct{}{}:
			case <-dispatchCtx.Done():
				return
			}
			go func(sentence string, out chan<- audioResult) {
				defer func() { <-sem }()
				pcm, err := s.synthesize(dispatchCtx, sentence)
				out <- audioResult{pcm: pcm, err: err}
			}(sentence, results[i])
		}
	}()

	for i := range results {
		select {
		case result := <-results[i]:
			if result.err != nil {
				return result.err
			}
			if _, err := s.out.Write(result.pcm); err != nil {
				return fmt.Errorf("coqui: write pcm: %w", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close implements tts.Synthesizer. The HTTP client holds no resources that
// need explicit release; the sink is owned by the caller.
func (s *Synthesizer) Close() error { return nil }

// synthesize dispatches to the appropriate implementation based on the
// configured API mode.
func (s *Synthesizer) synthesize(ctx context.Context, sentence string) ([]byte, error) {
	if s.apiMode == APIModeStandard {
		return s.synthesizeStandard(ctx, sentence)
	}
	return s.synthesizeXTTS(ctx, sentence)
}

// synthesizeXTTS performs a single POST /tts_to_audio/ call (XTTS v2 mode)
// and returns the raw PCM (WAV header stripped).
func (s *Synthesizer) synthesizeXTTS(ctx context.Context, sentence string) ([]byte, error) {
	body := ttsRequest{
		Text:       sentence,
		SpeakerWav: s.voice,
		Language:   s.language,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("coqui: marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.serverURL+ttsEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/wav")

	return s.doSynthesisRequest(req, ttsEndpoint)
}

// synthesizeStandard performs a single GET /api/tts request (standard server
// mode) using URL query parameters and returns the raw PCM (WAV header
// stripped).
func (s *Synthesizer) synthesizeStandard(ctx context.Context, sentence string) ([]byte, error) {
	params := url.Values{}
	params.Set("text", sentence)
	if s.voice != "" {
		params.Set("speaker_id", s.voice)
	}
	if s.language != "" {
		params.Set("language_id", s.language)
	}

	reqURL := s.serverURL + apiTTSEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("coqui: create tts request: %w", err)
	}
	req.Header.Set("Accept", "audio/wav")

	return s.doSynthesisRequest(req, apiTTSEndpoint)
}

// doSynthesisRequest executes a prepared synthesis request, strips the WAV
// container, and applies output resampling.
func (s *Synthesizer) doSynthesisRequest(req *http.Request, endpoint string) ([]byte, error) {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("coqui: %s %s: %w", req.Method, endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("coqui: %s %s returned status %d", req.Method, endpoint, resp.StatusCode)
	}

	wav, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("coqui: read WAV response: %w", err)
	}

	info, err := parseWAV(wav)
	if err != nil {
		return nil, err
	}

	pcm := wav[info.DataOffset:]
	if s.outputRate > 0 && info.SampleRate != s.outputRate && info.Channels == 1 {
		pcm = audio.ResampleMono16(pcm, info.SampleRate, s.outputRate)
	}
	return pcm, nil
}

// ---- helpers ----

// splitSentences cuts text into sentences using findSentenceBoundary and
// appends any trailing partial sentence.
func splitSentences(text string) []string {
	var sentences []string
	rest := text
	for {
		idx := findSentenceBoundary(rest)
		if idx < 0 {
			break
		}
		if s := strings.TrimSpace(rest[:idx+1]); s != "" {
			sentences = append(sentences, s)
		}
		rest = rest[idx+1:]
	}
	if s := strings.TrimSpace(rest); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// findSentenceBoundary returns the index of the first sentence-ending
// character ('.', '!', '?') that is either at the end of s or immediately
// followed by whitespace. Returns -1 if no sentence boundary is found.
//
// This ensures that abbreviations like "Dr." or decimal numbers like "3.14"
// are not incorrectly treated as sentence boundaries when followed by a
// non-space character.
func findSentenceBoundary(s string) int {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '.' || c == '!' || c == '?' {
			if i+1 >= len(s) || unicode.IsSpace(rune(s[i+1])) {
				return i
			}
		}
	}
	return -1
}

// wavInfo holds the format metadata extracted from a RIFF/WAVE header.
type wavInfo struct {
	DataOffset int // byte offset of the first PCM sample
	SampleRate int // samples per second (e.g., 22050, 44100, 48000)
	Channels   int // 1 = mono, 2 = stereo
}

// parseWAV scans the RIFF/WAVE container in wav and returns the data offset
// and audio format from the "fmt " sub-chunk. This is more robust than
// hardcoding a fixed 44-byte offset because the fmt chunk size may vary.
//
// Returns an error if wav is not a valid RIFF/WAVE container or if the fmt
// or data chunk cannot be located.
func parseWAV(wav []byte) (wavInfo, error) {
	if len(wav) < 12 {
		return wavInfo{}, errors.New("coqui: WAV response too short to be a valid RIFF file")
	}
	if string(wav[0:4]) != "RIFF" {
		return wavInfo{}, errors.New("coqui: WAV response missing RIFF header")
	}
	if string(wav[8:12]) != "WAVE" {
		return wavInfo{}, errors.New("coqui: WAV response missing WAVE identifier")
	}

	var info wavInfo
	foundFmt := false

	// Walk RIFF chunks starting immediately after the 12-byte RIFF/WAVE header.
	offset := 12
	for offset+8 <= len(wav) {
		chunkID := string(wav[offset : offset+4])
		chunkSize := int(binary.LittleEndian.Uint32(wav[offset+4 : offset+8]))

		switch chunkID {
		case "fmt ":
			if chunkSize >= 16 && offset+8+16 <= len(wav) {
				fmtData := wav[offset+8:]
				info.Channels = int(binary.LittleEndian.Uint16(fmtData[2:4]))
				info.SampleRate = int(binary.LittleEndian.Uint32(fmtData[4:8]))
				foundFmt = true
			}
		case "data":
			info.DataOffset = offset + 8
			if !foundFmt {
				// fmt chunk should appear before data, but tolerate servers
				// that order chunks oddly.
				info.SampleRate = 22050
				info.Channels = 1
			}
			return info, nil
		}

		// Advance past this chunk (chunks are word-aligned: pad by 1 if odd size).
		offset += 8 + chunkSize
		if chunkSize%2 != 0 {
			offset++
		}
	}
	return wavInfo{}, errors.New("coqui: WAV response missing data chunk")
}
