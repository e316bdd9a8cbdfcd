package pipeline

import (
	"strings"
	"time"

	"github.com/antzucaro/matchr"
)

// fuzzyThreshold is the Jaro-Winkler similarity above which two lines count
// as the same utterance when fuzzy matching is enabled.
const fuzzyThreshold = 0.92

// deduper suppresses recognized lines that repeat a recent line. Overlapping
// segments make the recognizer emit the same utterance twice; dropping the
// repeat keeps it from being translated and spoken again.
//
// In the default mode a line is a duplicate only when it exactly matches the
// last emitted line within the window. Fuzzy mode widens this to every line
// emitted in the window, compared case- and whitespace-insensitively and by
// Jaro-Winkler similarity, to also catch near-identical re-recognitions.
//
// deduper is used by a single goroutine and needs no locking.
type deduper struct {
	window time.Duration
	fuzzy  bool

	lastText string
	lastAt   time.Time

	// entries is the emitted-line history, fuzzy mode only.
	entries []dedupeEntry
}

type dedupeEntry struct {
	text string
	at   time.Time
}

func newDeduper(window time.Duration, fuzzy bool) *deduper {
	return &deduper{window: window, fuzzy: fuzzy}
}

// seen reports whether text duplicates a recently emitted line ending at
// now. Non-duplicates are recorded; suppressed lines are not, so a repeat
// stops being suppressed once the emitted original ages out of the window.
func (d *deduper) seen(text string, now time.Time) bool {
	if d.fuzzy {
		return d.seenFuzzy(text, now)
	}

	if text == d.lastText && !d.lastAt.IsZero() && now.Sub(d.lastAt) < d.window {
		return true
	}
	d.lastText, d.lastAt = text, now
	return false
}

func (d *deduper) seenFuzzy(text string, now time.Time) bool {
	norm := normalizeForDedupe(text)
	if norm == "" {
		return false
	}

	d.prune(now)

	for _, e := range d.entries {
		if e.text == norm {
			return true
		}
		if matchr.JaroWinkler(e.text, norm, false) >= fuzzyThreshold {
			return true
		}
	}

	d.entries = append(d.entries, dedupeEntry{text: norm, at: now})
	return false
}

// prune drops entries older than the window.
func (d *deduper) prune(now time.Time) {
	cutoff := now.Add(-d.window)
	kept := d.entries[:0]
	for _, e := range d.entries {
		if e.at.After(cutoff) {
			kept = append(kept, e)
		}
	}
	d.entries = kept
}

// normalizeForDedupe lowercases and collapses whitespace so trivial
// recognizer variations compare equal in fuzzy mode.
func normalizeForDedupe(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
