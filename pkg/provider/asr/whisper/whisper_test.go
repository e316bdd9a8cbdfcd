package whisper

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/argot-voice/argot/pkg/audio"
	"github.com/argot-voice/argot/pkg/provider/asr"
)

func pcm16Segment(samples []int16, rate int) audio.Segment {
	data := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(data[i*2:], uint16(s))
	}
	return audio.Segment{Data: data, Format: audio.FormatInt16, SampleRate: rate}
}

func TestClientTranscribe(t *testing.T) {
	var gotWAV []byte
	var gotLanguage, gotModel string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/inference" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		gotWAV, _ = io.ReadAll(f)
		gotLanguage = r.FormValue("language")
		gotModel = r.FormValue("model")
		w.Write([]byte(`{"text": "hello world"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithLanguage("de"), WithModel("base"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	text, err := c.Transcribe(context.Background(), pcm16Segment([]int16{100, 200, 300, 400}, 16000))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "hello world" {
		t.Errorf("text: got %q, want %q", text, "hello world")
	}
	if gotLanguage != "de" {
		t.Errorf("language field: got %q, want %q", gotLanguage, "de")
	}
	if gotModel != "base" {
		t.Errorf("model field: got %q, want %q", gotModel, "base")
	}

	// The uploaded file must be a valid 16 kHz mono PCM16 WAV.
	if len(gotWAV) != 44+8 {
		t.Fatalf("wav size: got %d, want %d", len(gotWAV), 44+8)
	}
	if string(gotWAV[0:4]) != "RIFF" || string(gotWAV[8:12]) != "WAVE" {
		t.Error("missing RIFF/WAVE markers")
	}
	if rate := binary.LittleEndian.Uint32(gotWAV[24:28]); rate != 16000 {
		t.Errorf("wav sample rate: got %d, want 16000", rate)
	}
	if ch := binary.LittleEndian.Uint16(gotWAV[22:24]); ch != 1 {
		t.Errorf("wav channels: got %d, want 1", ch)
	}
	if sz := binary.LittleEndian.Uint32(gotWAV[40:44]); sz != 8 {
		t.Errorf("wav data size: got %d, want 8", sz)
	}
}

func TestClientTranscribeResamples(t *testing.T) {
	var dataSize uint32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse multipart: %v", err)
		}
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		wav, _ := io.ReadAll(f)
		dataSize = binary.LittleEndian.Uint32(wav[40:44])
		w.Write([]byte(`{"text": "ok"}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// 8 samples at 32 kHz resample to 4 samples at 16 kHz.
	seg := pcm16Segment([]int16{1, 2, 3, 4, 5, 6, 7, 8}, 32000)
	if _, err := c.Transcribe(context.Background(), seg); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if dataSize != 8 {
		t.Errorf("resampled data size: got %d bytes, want 8", dataSize)
	}
}

func TestClientTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Transcribe(context.Background(), pcm16Segment([]int16{1, 2}, 16000)); err == nil {
		t.Fatal("expected error for HTTP 500, got nil")
	}
}

func TestClientTranscribeEmptySegment(t *testing.T) {
	c, err := New("http://localhost:1")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.Transcribe(context.Background(), audio.Segment{Format: audio.FormatInt16, SampleRate: 16000})
	if !errors.Is(err, asr.ErrEmptySegment) {
		t.Fatalf("expected ErrEmptySegment, got %v", err)
	}
}

func TestNewRequiresServerURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty serverURL, got nil")
	}
}

func TestSegmentPCM16ConvertsFormat(t *testing.T) {
	// A float32 segment is re-encoded to int16 before upload.
	samples := []float64{0.5, -0.5}
	data, err := audio.Denormalize(samples, audio.FormatFloat32)
	if err != nil {
		t.Fatalf("Denormalize: %v", err)
	}
	seg := audio.Segment{Data: data, Format: audio.FormatFloat32, SampleRate: 16000}

	pcm, err := segmentPCM16(seg)
	if err != nil {
		t.Fatalf("segmentPCM16: %v", err)
	}
	if len(pcm) != 4 {
		t.Fatalf("pcm length: got %d, want 4", len(pcm))
	}
	if got := int16(binary.LittleEndian.Uint16(pcm[0:2])); got != 16384 {
		t.Errorf("first sample: got %d, want 16384", got)
	}
}

func TestPCM16ToFloat32(t *testing.T) {
	pcm := []byte{0, 0x40, 0, 0xC0} // 16384, -16384
	samples := pcm16ToFloat32(pcm)
	if len(samples) != 2 {
		t.Fatalf("length: got %d, want 2", len(samples))
	}
	if samples[0] != 0.5 {
		t.Errorf("sample 0: got %v, want 0.5", samples[0])
	}
	if samples[1] != -0.5 {
		t.Errorf("sample 1: got %v, want -0.5", samples[1])
	}
}
