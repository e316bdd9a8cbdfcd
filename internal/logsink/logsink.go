// Package logsink writes recognized and translated lines to append-only
// transcript files.
//
// Three files are produced per session, named by the session start time:
// one with recognized source-language lines, one with translated lines, and
// a bilingual file pairing both. Writes are buffered and flushed every
// few lines so a crash loses at most a handful of entries.
package logsink

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	// flushEvery is the number of buffered lines after which a file buffer
	// is written out.
	flushEvery = 10

	// timestampLayout is the per-line timestamp prefix format.
	timestampLayout = "15:04:05"

	// fileStampLayout names the session files.
	fileStampLayout = "2006-01-02_150405"
)

// lineBuffer accumulates lines for one output file and flushes them in
// batches.
type lineBuffer struct {
	w       io.WriteCloser
	pending []string
}

func (b *lineBuffer) add(line string) error {
	b.pending = append(b.pending, line)
	if len(b.pending) >= flushEvery {
		return b.flush()
	}
	return nil
}

func (b *lineBuffer) flush() error {
	if len(b.pending) == 0 {
		return nil
	}
	joined := strings.Join(b.pending, "\n") + "\n"
	b.pending = b.pending[:0]
	_, err := io.WriteString(b.w, joined)
	return err
}

func (b *lineBuffer) close() error {
	ferr := b.flush()
	cerr := b.w.Close()
	if ferr != nil {
		return ferr
	}
	return cerr
}

// Option configures a [Sink].
type Option func(*config)

type config struct {
	maxSizeMB  int
	maxBackups int
	langPair   string
	now        func() time.Time
}

// WithRotation overrides the rotation limits of the underlying files.
// Size is in megabytes.
func WithRotation(maxSizeMB, maxBackups int) Option {
	return func(c *config) {
		c.maxSizeMB = maxSizeMB
		c.maxBackups = maxBackups
	}
}

// WithLanguages tags the translated and bilingual file names with the
// translation direction, e.g. translated_de-en_2026-01-02_150405.log.
func WithLanguages(source, target string) Option {
	return func(c *config) {
		if source != "" && target != "" {
			c.langPair = source + "-" + target
		}
	}
}

// withClock fixes the session clock, for tests.
func withClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// Sink writes transcript lines for one session. It is safe for concurrent
// use.
type Sink struct {
	mu         sync.Mutex
	recognized *lineBuffer
	translated *lineBuffer
	bilingual  *lineBuffer
	now        func() time.Time
	closed     bool
}

// New creates a transcript sink writing under dir. The directory is created
// when missing. File names carry the session start time, e.g.
// recognized_2026-01-02_150405.log.
func New(dir string, opts ...Option) (*Sink, error) {
	if dir == "" {
		return nil, fmt.Errorf("logsink: empty directory")
	}

	cfg := config{
		maxSizeMB:  50,
		maxBackups: 5,
		now:        time.Now,
	}
	for _, o := range opts {
		o(&cfg)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("logsink: create directory: %w", err)
	}

	stamp := cfg.now().Format(fileStampLayout)
	open := func(kind string, withPair bool) (*lineBuffer, error) {
		name := fmt.Sprintf("%s_%s.log", kind, stamp)
		if withPair && cfg.langPair != "" {
			name = fmt.Sprintf("%s_%s_%s.log", kind, cfg.langPair, stamp)
		}
		path := filepath.Join(dir, name)
		// lumberjack creates files lazily; touch the session file so it
		// exists even when nothing gets written.
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("logsink: create %s: %w", path, err)
		}
		if err := f.Close(); err != nil {
			return nil, fmt.Errorf("logsink: create %s: %w", path, err)
		}
		return &lineBuffer{w: &lumberjack.Logger{
			Filename:   path,
			MaxSize:    cfg.maxSizeMB,
			MaxBackups: cfg.maxBackups,
			Compress:   false,
		}}, nil
	}

	s := &Sink{now: cfg.now}
	var err error
	if s.recognized, err = open("recognized", false); err != nil {
		return nil, err
	}
	if s.translated, err = open("translated", true); err != nil {
		return nil, err
	}
	if s.bilingual, err = open("bilingual", true); err != nil {
		return nil, err
	}
	return s, nil
}

// Recognized appends one recognized source-language line.
func (s *Sink) Recognized(text string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("logsink: sink closed")
	}
	return s.recognized.add(formatLine(at, text))
}

// Translated appends one translated line and the matching bilingual pair.
func (s *Sink) Translated(source, translated string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("logsink: sink closed")
	}
	if err := s.translated.add(formatLine(at, translated)); err != nil {
		return err
	}
	pair := fmt.Sprintf("%s\n%s", formatLine(at, source), "    -> "+translated)
	return s.bilingual.add(pair)
}

// Flush writes out all buffered lines.
func (s *Sink) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	for _, b := range []*lineBuffer{s.recognized, s.translated, s.bilingual} {
		if err := b.flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close flushes and closes all files. Further writes fail.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var firstErr error
	for _, b := range []*lineBuffer{s.recognized, s.translated, s.bilingual} {
		if err := b.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func formatLine(at time.Time, text string) string {
	return fmt.Sprintf("[%s] %s", at.Format(timestampLayout), text)
}
