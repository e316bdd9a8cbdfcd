package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/argot-voice/argot/internal/bridge"
	"github.com/argot-voice/argot/pkg/audio"
	asrmock "github.com/argot-voice/argot/pkg/provider/asr/mock"
	translatemock "github.com/argot-voice/argot/pkg/provider/translate/mock"
	ttsmock "github.com/argot-voice/argot/pkg/provider/tts/mock"
)

const (
	testRate      = 16000
	testFrameSize = 800 // 50 ms
)

// testConfig returns a pipeline configuration with short timings suitable
// for synthetic audio.
func testConfig() Config {
	return Config{
		Segmenter: audio.SegmenterConfig{
			SampleRate:          testRate,
			Format:              audio.FormatInt16,
			MinBufferDuration:   200 * time.Millisecond,
			MaxBufferDuration:   2 * time.Second,
			MediumPauseDuration: 100 * time.Millisecond,
			LongPauseDuration:   150 * time.Millisecond,
			VAD: audio.VADConfig{
				VoiceThreshold:        0.01,
				ZeroCrossingThreshold: 0.01,
			},
		},
		SystemPrompt:  "Translate from German to English.",
		BatchSize:     4,
		ErrorCooldown: time.Millisecond,
		ShutdownGrace: 2 * time.Second,
		IdlePoll:      20 * time.Millisecond,
	}
}

// stubSource is a FrameSource fed by the test.
type stubSource struct {
	ch chan audio.Frame
}

func newStubSource() *stubSource {
	return &stubSource{ch: make(chan audio.Frame, 256)}
}

func (s *stubSource) Frames() <-chan audio.Frame { return s.ch }
func (s *stubSource) Close() error               { return nil }

// voicedFrame returns a 440 Hz int16 frame loud enough for the detector.
func voicedFrame(ts time.Duration) audio.Frame {
	data := make([]byte, testFrameSize*2)
	for i := 0; i < testFrameSize; i++ {
		v := 0.5 * math.Sin(2*math.Pi*440*float64(i)/testRate)
		binary.LittleEndian.PutUint16(data[i*2:], uint16(int16(v*32767)))
	}
	return audio.Frame{Data: data, Format: audio.FormatInt16, SampleRate: testRate, Timestamp: ts}
}

func silentFrame(ts time.Duration) audio.Frame {
	return audio.Frame{
		Data:       make([]byte, testFrameSize*2),
		Format:     audio.FormatInt16,
		SampleRate: testRate,
		Timestamp:  ts,
	}
}

// feedUtterance pushes one speakable utterance: 300 ms of voice followed by
// enough silence to trip the medium pause rule.
func feedUtterance(src *stubSource, start time.Duration) time.Duration {
	frameDur := time.Duration(testFrameSize) * time.Second / testRate
	ts := start
	for i := 0; i < 6; i++ {
		src.ch <- voicedFrame(ts)
		ts += frameDur
	}
	for i := 0; i < 3; i++ {
		src.ch <- silentFrame(ts)
		ts += frameDur
	}
	return ts
}

// recordingTranscript implements TranscriptLogger.
type recordingTranscript struct {
	mu         sync.Mutex
	recognized []string
	translated [][2]string
}

func (r *recordingTranscript) Recognized(text string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.recognized = append(r.recognized, text)
	return nil
}

func (r *recordingTranscript) Translated(source, translated string, _ time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translated = append(r.translated, [2]string{source, translated})
	return nil
}

func (r *recordingTranscript) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.recognized), len(r.translated)
}

// recordingEvents implements Publisher.
type recordingEvents struct {
	mu     sync.Mutex
	events []bridge.Event
}

func (r *recordingEvents) Publish(ev bridge.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingEvents) byType(typ string) []bridge.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []bridge.Event
	for _, ev := range r.events {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestNewValidation(t *testing.T) {
	cfg := testConfig()
	src := newStubSource()
	rec := &asrmock.Recognizer{}
	tr := &translatemock.Translator{}

	if _, err := New(cfg, nil, rec, tr); err == nil {
		t.Error("expected error for nil source")
	}
	if _, err := New(cfg, src, nil, tr); err == nil {
		t.Error("expected error for nil recognizer")
	}
	if _, err := New(cfg, src, rec, nil); err == nil {
		t.Error("expected error for nil translator")
	}

	bad := cfg
	bad.Segmenter.SampleRate = 0
	if _, err := New(bad, src, rec, tr); err == nil {
		t.Error("expected error for invalid segmenter config")
	}

	noPrompt := cfg
	noPrompt.SystemPrompt = ""
	if _, err := New(noPrompt, src, rec, tr); err == nil {
		t.Error("expected error for empty system prompt")
	}
}

func TestPipelineEndToEnd(t *testing.T) {
	src := newStubSource()
	rec := &asrmock.Recognizer{Texts: []string{"guten tag"}}
	tr := &translatemock.Translator{Responses: []string{"good day"}}
	synth := &ttsmock.Synthesizer{}
	transcript := &recordingTranscript{}
	events := &recordingEvents{}

	p, err := New(testConfig(), src, rec, tr,
		WithSynthesizer(synth),
		WithTranscript(transcript),
		WithEvents(events),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go func() {
		feedUtterance(src, 0)
		close(src.ch)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	gotRec, gotTr := transcript.counts()
	if gotRec != 1 || gotTr != 1 {
		t.Fatalf("transcript lines: recognized=%d translated=%d, want 1/1", gotRec, gotTr)
	}
	if transcript.recognized[0] != "guten tag" {
		t.Errorf("recognized = %q", transcript.recognized[0])
	}
	if transcript.translated[0] != [2]string{"guten tag", "good day"} {
		t.Errorf("translated = %v", transcript.translated[0])
	}

	recEvents := events.byType(bridge.EventRecognized)
	trEvents := events.byType(bridge.EventTranslated)
	if len(recEvents) != 1 || len(trEvents) != 1 {
		t.Fatalf("events: recognized=%d translated=%d, want 1/1", len(recEvents), len(trEvents))
	}
	if recEvents[0].PairID == "" || recEvents[0].PairID != trEvents[0].PairID {
		t.Errorf("pair ids do not match: %q vs %q", recEvents[0].PairID, trEvents[0].PairID)
	}

	if len(synth.SpeakCalls) != 1 || synth.SpeakCalls[0].Text != "good day" {
		t.Errorf("synthesizer calls = %+v, want one call with %q", synth.SpeakCalls, "good day")
	}

	if len(tr.TranslateCalls) != 1 {
		t.Fatalf("translate calls = %d, want 1", len(tr.TranslateCalls))
	}
	req := tr.TranslateCalls[0].Req
	if req.SystemPrompt != "Translate from German to English." {
		t.Errorf("system prompt = %q", req.SystemPrompt)
	}
}

func TestPipelineSuppressesDuplicateLines(t *testing.T) {
	src := newStubSource()
	rec := &asrmock.Recognizer{Texts: []string{"same line"}}
	tr := &translatemock.Translator{Responses: []string{"gleiche zeile"}}
	transcript := &recordingTranscript{}

	p, err := New(testConfig(), src, rec, tr, WithTranscript(transcript))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	go func() {
		next := feedUtterance(src, 0)
		feedUtterance(src, next)
		close(src.ch)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(rec.TranscribeCalls) != 2 {
		t.Fatalf("transcribe calls = %d, want 2", len(rec.TranscribeCalls))
	}
	if len(tr.TranslateCalls) != 1 {
		t.Errorf("translate calls = %d, want 1 (duplicate suppressed)", len(tr.TranslateCalls))
	}
}

func TestTranslateLoopRetriesAndReloads(t *testing.T) {
	// Three consecutive failures hit the reload threshold exactly once;
	// every line then succeeds from the retry queue.
	failure := errors.New("model overloaded")
	tr := &translatemock.ReloadableTranslator{
		Translator: translatemock.Translator{
			Responses: []string{"ok"},
			Errs:      map[int]error{0: failure, 1: failure, 2: failure},
		},
	}

	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 3
	cfg.MaxRetries = 2
	p, err := New(cfg, newStubSource(), &asrmock.Recognizer{}, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan TextItem, 3)
	for _, text := range []string{"eins", "zwei", "drei"} {
		in <- TextItem{PairID: text, Text: text, At: time.Now()}
	}
	close(in)
	out := make(chan TranslatedItem, 8)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.translateLoop(ctx, in, out); err != nil {
		t.Fatalf("translateLoop: %v", err)
	}

	var results []TranslatedItem
	for item := range out {
		results = append(results, item)
	}
	if len(results) != 3 {
		t.Fatalf("translated items = %d, want 3", len(results))
	}
	for _, r := range results {
		if r.Text != "ok" {
			t.Errorf("translation = %q, want %q", r.Text, "ok")
		}
	}
	if tr.ReloadCount != 1 {
		t.Errorf("reload count = %d, want 1", tr.ReloadCount)
	}
	// 3 failures + 3 retry successes.
	if got := len(tr.TranslateCalls); got != 6 {
		t.Errorf("translate calls = %d, want 6", got)
	}
}

func TestTranslateLoopDropsAfterRetryBudget(t *testing.T) {
	tr := &translatemock.Translator{TranslateErr: errors.New("permanently broken")}

	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.MaxConsecutiveErrors = 100
	p, err := New(cfg, newStubSource(), &asrmock.Recognizer{}, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan TextItem, 1)
	in <- TextItem{PairID: "x", Text: "untranslatable", At: time.Now()}
	close(in)
	out := make(chan TranslatedItem, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.translateLoop(ctx, in, out); err != nil {
		t.Fatalf("translateLoop: %v", err)
	}

	if len(out) != 0 {
		t.Error("expected no translated items")
	}
	// Initial attempt plus one retry.
	if got := len(tr.TranslateCalls); got != 2 {
		t.Errorf("translate calls = %d, want 2", got)
	}
}

func TestTranslateLoopRetriesIndefinitelyWithoutCap(t *testing.T) {
	// No retry cap configured: a line failing more times than any default
	// budget still goes through once the translator recovers.
	failure := errors.New("model overloaded")
	tr := &translatemock.Translator{
		Responses: []string{"ok"},
		Errs:      map[int]error{0: failure, 1: failure, 2: failure, 3: failure},
	}

	cfg := testConfig()
	p, err := New(cfg, newStubSource(), &asrmock.Recognizer{}, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan TextItem, 1)
	in <- TextItem{PairID: "a", Text: "hallo", At: time.Now()}
	close(in)
	out := make(chan TranslatedItem, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.translateLoop(ctx, in, out); err != nil {
		t.Fatalf("translateLoop: %v", err)
	}

	item, ok := <-out
	if !ok {
		t.Fatal("expected the line to survive repeated failures")
	}
	if item.Text != "ok" {
		t.Errorf("translation = %q, want %q", item.Text, "ok")
	}
	if got := len(tr.TranslateCalls); got != 5 {
		t.Errorf("translate calls = %d, want 5", got)
	}
}

func TestTranslateLoopPeriodicReload(t *testing.T) {
	// With an expired reload timer, the loop refreshes the model before
	// picking up the next batch even though every translation succeeds.
	tr := &translatemock.ReloadableTranslator{
		Translator: translatemock.Translator{Responses: []string{"ok"}},
	}

	cfg := testConfig()
	cfg.ReloadInterval = time.Nanosecond
	p, err := New(cfg, newStubSource(), &asrmock.Recognizer{}, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan TextItem, 2)
	in <- TextItem{PairID: "a", Text: "eins", At: time.Now()}
	in <- TextItem{PairID: "b", Text: "zwei", At: time.Now()}
	close(in)
	out := make(chan TranslatedItem, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.translateLoop(ctx, in, out); err != nil {
		t.Fatalf("translateLoop: %v", err)
	}

	var results []TranslatedItem
	for item := range out {
		results = append(results, item)
	}
	if len(results) != 2 {
		t.Fatalf("translated items = %d, want 2", len(results))
	}
	if tr.ReloadCount == 0 {
		t.Error("reload count = 0, want at least one periodic reload")
	}
}

func TestTranslateLoopSkipsReloadForPlainTranslator(t *testing.T) {
	// A translator without a Reload method (a remote API) crosses the
	// consecutive-error threshold without any reload attempt.
	tr := &translatemock.Translator{TranslateErr: errors.New("rate limited")}

	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.MaxConsecutiveErrors = 2
	p, err := New(cfg, newStubSource(), &asrmock.Recognizer{}, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan TextItem, 3)
	for _, text := range []string{"a1", "b2", "c3"} {
		in <- TextItem{Text: text, At: time.Now()}
	}
	close(in)
	out := make(chan TranslatedItem, 3)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.translateLoop(ctx, in, out); err != nil {
		t.Fatalf("translateLoop: %v", err)
	}
	// Two attempts per line, then the retry cap drops it.
	if got := len(tr.TranslateCalls); got != 6 {
		t.Errorf("translate calls = %d, want 6", got)
	}
}

func TestTranslateLoopDegenerateResponseCountsAsFailure(t *testing.T) {
	tr := &translatemock.Translator{Responses: []string{"!!!", "eine gute antwort"}}

	cfg := testConfig()
	cfg.MaxRetries = 2
	p, err := New(cfg, newStubSource(), &asrmock.Recognizer{}, tr)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan TextItem, 1)
	in <- TextItem{Text: "hallo", At: time.Now()}
	close(in)
	out := make(chan TranslatedItem, 2)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.translateLoop(ctx, in, out); err != nil {
		t.Fatalf("translateLoop: %v", err)
	}

	item, ok := <-out
	if !ok {
		t.Fatal("expected a translated item after retry")
	}
	if item.Text != "eine gute antwort" {
		t.Errorf("translation = %q, want the retried response", item.Text)
	}
}

func TestCollectBatchRetriesComeFirst(t *testing.T) {
	cfg := testConfig()
	cfg.BatchSize = 5
	p, err := New(cfg, newStubSource(), &asrmock.Recognizer{}, &translatemock.Translator{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	retries := newRetryQueue(5)
	retries.push(TextItem{Text: "retry-1"})
	retries.push(TextItem{Text: "retry-2"})

	in := make(chan TextItem, 5)
	for _, text := range []string{"new-1", "new-2", "new-3", "new-4", "new-5"} {
		in <- TextItem{Text: text}
	}

	batch, more := p.collectBatch(context.Background(), in, retries)
	if !more {
		t.Fatal("collectBatch reported input exhausted")
	}

	want := []string{"retry-1", "retry-2", "new-1", "new-2", "new-3"}
	if len(batch) != len(want) {
		t.Fatalf("batch size = %d, want %d", len(batch), len(want))
	}
	for i, w := range want {
		if batch[i].Text != w {
			t.Errorf("batch[%d] = %q, want %q", i, batch[i].Text, w)
		}
	}
	if len(in) != 2 {
		t.Errorf("items left in channel = %d, want 2", len(in))
	}
}

func TestRecognizeLoopReloadsAfterConsecutiveErrors(t *testing.T) {
	rec := &asrmock.Recognizer{TranscribeErr: errors.New("decoder wedged")}

	cfg := testConfig()
	cfg.MaxConsecutiveErrors = 2
	p, err := New(cfg, newStubSource(), rec, &translatemock.Translator{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan audio.Segment, 4)
	for i := 0; i < 4; i++ {
		in <- audio.Segment{Data: []byte{0, 0}, Format: audio.FormatInt16, SampleRate: testRate}
	}
	close(in)
	out := make(chan TextItem, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.recognizeLoop(ctx, in, out); err != nil {
		t.Fatalf("recognizeLoop: %v", err)
	}

	// 4 failures with a threshold of 2 means two reloads.
	if rec.ReloadCount != 2 {
		t.Errorf("reload count = %d, want 2", rec.ReloadCount)
	}
	if len(out) != 0 {
		t.Error("expected no recognized lines")
	}
}

func TestRecognizeLoopSkipsFailedSegmentsWithoutPausing(t *testing.T) {
	rec := &asrmock.Recognizer{TranscribeErr: errors.New("decoder wedged")}

	cfg := testConfig()
	cfg.ErrorCooldown = 10 * time.Second
	p, err := New(cfg, newStubSource(), rec, &translatemock.Translator{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	in := make(chan audio.Segment, 2)
	for i := 0; i < 2; i++ {
		in <- audio.Segment{Data: []byte{0, 0}, Format: audio.FormatInt16, SampleRate: testRate}
	}
	close(in)
	out := make(chan TextItem, 2)

	start := time.Now()
	if err := p.recognizeLoop(context.Background(), in, out); err != nil {
		t.Fatalf("recognizeLoop: %v", err)
	}
	if elapsed := time.Since(start); elapsed >= cfg.ErrorCooldown {
		t.Errorf("recognize loop paused %v after failures, should skip immediately", elapsed)
	}
	if got := len(rec.TranscribeCalls); got != 2 {
		t.Errorf("transcribe calls = %d, want 2", got)
	}
}

func TestPipelineShutdownOnCancel(t *testing.T) {
	src := newStubSource() // never closed: simulates a live stream
	p, err := New(testConfig(), src, &asrmock.Recognizer{}, &translatemock.Translator{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
