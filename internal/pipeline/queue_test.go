package pipeline

import "testing"

func TestRetryQueueOrder(t *testing.T) {
	q := newRetryQueue(3)
	q.push(TextItem{Text: "first"})
	q.push(TextItem{Text: "second"})

	if got := q.len(); got != 2 {
		t.Fatalf("len = %d, want 2", got)
	}
	a, _ := q.pop()
	b, _ := q.pop()
	if a.Text != "first" || b.Text != "second" {
		t.Errorf("pop order = %q, %q; want first, second", a.Text, b.Text)
	}
	if _, ok := q.pop(); ok {
		t.Error("pop on empty queue reported ok")
	}
}

func TestRetryQueueBudget(t *testing.T) {
	q := newRetryQueue(2)
	item := TextItem{Text: "stubborn"}

	for i := 0; i < 2; i++ {
		if !q.push(item) {
			t.Fatalf("push %d rejected within budget", i)
		}
		item, _ = q.pop()
	}
	if q.push(item) {
		t.Error("push accepted after retry budget spent")
	}
}

func TestRetryQueueUncappedByDefault(t *testing.T) {
	q := newRetryQueue(0)
	item := TextItem{Text: "stubborn"}

	for i := 0; i < 10; i++ {
		if !q.push(item) {
			t.Fatalf("push %d rejected without a retry cap", i)
		}
		item, _ = q.pop()
	}
}

func TestHistoryRing(t *testing.T) {
	h := newHistory(3)
	for _, s := range []string{"a", "b", "c", "d"} {
		h.add(s)
	}

	got := h.recent()
	want := []string{"b", "c", "d"}
	if len(got) != len(want) {
		t.Fatalf("recent = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("recent[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHistoryZeroCapacity(t *testing.T) {
	h := newHistory(0)
	h.add("ignored")
	if got := h.recent(); got != nil {
		t.Errorf("recent = %v, want nil", got)
	}
}

func TestHistoryReturnsCopy(t *testing.T) {
	h := newHistory(2)
	h.add("one")

	got := h.recent()
	got[0] = "mutated"
	if h.recent()[0] != "one" {
		t.Error("recent exposed internal storage")
	}
}
