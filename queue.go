package llmux

// Queue is a FIFO of events waiting to be returned from Next. Decoders and
// stages push zero or more events per input frame and drain one per call.
// The backing array is reused once the queue empties.
type Queue struct {
	events []Event
	head   int
}

// Push appends events to the queue.
func (q *Queue) Push(events ...Event) {
	q.events = append(q.events, events...)
}

// Pop removes and returns the oldest event.
func (q *Queue) Pop() (Event, bool) {
	if q.head >= len(q.events) {
		return nil, false
	}
	evt := q.events[q.head]
	q.events[q.head] = nil
	q.head++
	if q.head == len(q.events) {
		q.events = q.events[:0]
		q.head = 0
	}
	return evt, true
}

// Len returns the number of queued events.
func (q *Queue) Len() int {
	return len(q.events) - q.head
}
