package pipeline

// retryQueue holds lines whose translation failed, in arrival order. Failed
// lines are pulled before new input so a struggling translator catches up in
// the order the speaker said things. The queue itself is unbounded; the
// error cooldown throttles how fast it can grow.
//
// retryQueue is used by a single goroutine and needs no locking.
type retryQueue struct {
	items      []TextItem
	maxRetries int
}

// newRetryQueue creates a queue. maxRetries caps the attempts per line;
// zero or negative retries every line indefinitely.
func newRetryQueue(maxRetries int) *retryQueue {
	return &retryQueue{maxRetries: maxRetries}
}

// push re-enqueues a failed line. With a positive retry cap, lines that
// already used up their retries are dropped and push reports false.
func (q *retryQueue) push(item TextItem) bool {
	if q.maxRetries > 0 && item.retries >= q.maxRetries {
		return false
	}
	item.retries++
	q.items = append(q.items, item)
	return true
}

// pop removes and returns the oldest queued line.
func (q *retryQueue) pop() (TextItem, bool) {
	if len(q.items) == 0 {
		return TextItem{}, false
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, true
}

func (q *retryQueue) len() int {
	return len(q.items)
}
