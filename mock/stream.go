package mock

import (
	"errors"
	"io"

	"github.com/fwojciec/llmux"
)

// Interface compliance check.
var _ llmux.Stream = (*Stream)(nil)

// Stream is a test double for llmux.Stream.
// Set the function fields for the methods you need. NextFn panics when nil
// to catch missing setup. CloseFn and StateFn are nil-safe (no-op and zero
// value) because test code commonly calls defer stream.Close() and these
// methods rarely need custom behavior.
type Stream struct {
	NextFn  func() (llmux.Event, error)
	StateFn func() llmux.StreamState
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *Stream) Next() (llmux.Event, error) {
	return s.NextFn()
}

// State delegates to StateFn. Returns StreamStateNew when StateFn is nil.
func (s *Stream) State() llmux.StreamState {
	if s.StateFn == nil {
		return llmux.StreamStateNew
	}
	return s.StateFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is not set.
func (s *Stream) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}

// EventStream returns a Stream that yields events in order and then io.EOF.
// State follows the llmux.Stream contract: complete once an EventFinish has
// been returned.
func EventStream(events ...llmux.Event) *Stream {
	return ErrorStream(nil, events...)
}

// ErrorStream is like EventStream but returns err after the last event
// instead of io.EOF. An err wrapping llmux.ErrAborted puts the stream in
// StreamStateAborted, any other err in StreamStateError.
func ErrorStream(err error, events ...llmux.Event) *Stream {
	var (
		pos   int
		state = llmux.StreamStateNew
	)
	s := &Stream{}
	s.NextFn = func() (llmux.Event, error) {
		switch state {
		case llmux.StreamStateClosed:
			return nil, llmux.ErrStreamClosed
		case llmux.StreamStateError, llmux.StreamStateAborted:
			return nil, err
		}
		if pos < len(events) {
			evt := events[pos]
			pos++
			state = llmux.StreamStateStreaming
			if _, done := evt.(llmux.EventFinish); done {
				state = llmux.StreamStateComplete
			}
			return evt, nil
		}
		if err == nil {
			state = llmux.StreamStateComplete
			return nil, io.EOF
		}
		state = llmux.StreamStateError
		if errors.Is(err, llmux.ErrAborted) {
			state = llmux.StreamStateAborted
		}
		return nil, err
	}
	s.StateFn = func() llmux.StreamState { return state }
	s.CloseFn = func() error {
		switch state {
		case llmux.StreamStateComplete, llmux.StreamStateError, llmux.StreamStateAborted:
		default:
			state = llmux.StreamStateClosed
		}
		return nil
	}
	return s
}
