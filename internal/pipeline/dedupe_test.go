package pipeline

import (
	"testing"
	"time"
)

func TestDeduperExactRepeat(t *testing.T) {
	d := newDeduper(5*time.Second, false)
	now := time.Now()

	if d.seen("hello world", now) {
		t.Fatal("first occurrence reported as duplicate")
	}
	if !d.seen("hello world", now.Add(time.Second)) {
		t.Error("repeat within window not suppressed")
	}
}

func TestDeduperWindowExpiry(t *testing.T) {
	d := newDeduper(5*time.Second, false)
	now := time.Now()

	d.seen("hello world", now)
	if d.seen("hello world", now.Add(6*time.Second)) {
		t.Error("repeat after window expiry was suppressed")
	}
}

func TestDeduperExactModeIsCaseSensitive(t *testing.T) {
	d := newDeduper(5*time.Second, false)
	now := time.Now()

	d.seen("Hello  World", now)
	if d.seen("hello world", now.Add(time.Second)) {
		t.Error("case and whitespace variation suppressed without fuzzy mode")
	}
}

func TestDeduperExactModeComparesLastLineOnly(t *testing.T) {
	d := newDeduper(5*time.Second, false)
	now := time.Now()

	if d.seen("Yes.", now) {
		t.Fatal("first line reported as duplicate")
	}
	if d.seen("Okay.", now.Add(time.Second)) {
		t.Fatal("distinct line reported as duplicate")
	}
	if d.seen("Yes.", now.Add(2*time.Second)) {
		t.Error("line alternating with another suppressed, only the immediate repeat should be")
	}
}

func TestDeduperFuzzyNormalizesWhitespaceAndCase(t *testing.T) {
	d := newDeduper(5*time.Second, true)
	now := time.Now()

	d.seen("Hello  World", now)
	if !d.seen("hello world", now.Add(time.Second)) {
		t.Error("case and whitespace variation not treated as duplicate in fuzzy mode")
	}
}

func TestDeduperFuzzyMatch(t *testing.T) {
	d := newDeduper(5*time.Second, true)
	now := time.Now()

	d.seen("the weather is nice today", now)
	if !d.seen("the weather is nice todey", now.Add(time.Second)) {
		t.Error("near-duplicate not suppressed in fuzzy mode")
	}
	if d.seen("completely different sentence here", now.Add(2*time.Second)) {
		t.Error("unrelated line suppressed in fuzzy mode")
	}
}

func TestDeduperExactModeIgnoresNearMatches(t *testing.T) {
	d := newDeduper(5*time.Second, false)
	now := time.Now()

	d.seen("the weather is nice today", now)
	if d.seen("the weather is nice todey", now.Add(time.Second)) {
		t.Error("near-duplicate suppressed without fuzzy mode")
	}
}

func TestDeduperEmptyText(t *testing.T) {
	d := newDeduper(5*time.Second, false)
	now := time.Now()

	if d.seen("   ", now) || d.seen("", now.Add(time.Millisecond)) {
		t.Error("empty text reported as duplicate")
	}
}
