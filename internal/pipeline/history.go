package pipeline

// history keeps the most recent source lines for translation context. It is
// a fixed-capacity ring used by a single goroutine.
type history struct {
	lines []string
	cap   int
}

func newHistory(capacity int) *history {
	if capacity < 0 {
		capacity = 0
	}
	return &history{cap: capacity}
}

// add records a line, evicting the oldest once the capacity is reached.
func (h *history) add(line string) {
	if h.cap == 0 {
		return
	}
	if len(h.lines) == h.cap {
		copy(h.lines, h.lines[1:])
		h.lines = h.lines[:h.cap-1]
	}
	h.lines = append(h.lines, line)
}

// recent returns the stored lines, oldest first. The returned slice is a
// copy.
func (h *history) recent() []string {
	if len(h.lines) == 0 {
		return nil
	}
	out := make([]string, len(h.lines))
	copy(out, h.lines)
	return out
}
