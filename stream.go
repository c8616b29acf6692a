package llmux

// StreamState indicates the current state of a Stream.
type StreamState int

const (
	StreamStateNew       StreamState = iota // Before Next() is ever called.
	StreamStateStreaming                    // Mid-stream, delivering events.
	StreamStateComplete                     // EventFinish delivered; Next() returns io.EOF.
	StreamStateError                        // Next() returned a non-EOF error.
	StreamStateAborted                      // The request context was canceled mid-stream.
	StreamStateClosed                       // Close() called before a terminal state.
)

// String returns a lowercase name for the state.
func (s StreamState) String() string {
	switch s {
	case StreamStateNew:
		return "new"
	case StreamStateStreaming:
		return "streaming"
	case StreamStateComplete:
		return "complete"
	case StreamStateError:
		return "error"
	case StreamStateAborted:
		return "aborted"
	case StreamStateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stream uses a pull-based iterator pattern over canonical events.
// Cancellation flows through the context passed to Provider.Stream().
//
// Next() behavior by outcome:
//   - normal completion: the last event is EventFinish, after which Next()
//     returns io.EOF and State() is StreamStateComplete;
//   - read or protocol failure: Next() returns the error, no EventFinish is
//     delivered, State() is StreamStateError;
//   - cancellation: Next() returns an error wrapping ErrAborted and the
//     context error, no EventFinish is delivered, State() is
//     StreamStateAborted.
//
// Events already returned are never retracted. Close() releases the
// underlying body and may be called in any state.
type Stream interface {
	Next() (Event, error)
	State() StreamState
	Close() error
}
