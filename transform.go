package llmux

import (
	"errors"
	"fmt"
	"io"
)

// Stage rewrites a canonical event sequence one upstream event at a time.
//
// Process pushes zero or more output events for evt onto out. EventFinish is
// delivered like any other event and is the last one a stage sees, so stages
// flush carry-over buffers and close their own spans before forwarding it.
type Stage interface {
	Process(evt Event, out *Queue)
}

// StageFunc adapts a function to the Stage interface.
type StageFunc func(evt Event, out *Queue)

// Process calls f(evt, out).
func (f StageFunc) Process(evt Event, out *Queue) { f(evt, out) }

// Transform returns a Stream that runs every event of upstream through st.
// Upstream errors are returned unchanged and end the stream without a
// finish; Close closes upstream.
func Transform(upstream Stream, st Stage) Stream {
	return &transformStream{upstream: upstream, stage: st, state: StreamStateNew}
}

type transformStream struct {
	upstream Stream
	stage    Stage
	queue    Queue
	state    StreamState
	err      error
	finished bool
}

func (t *transformStream) Next() (Event, error) {
	switch t.state {
	case StreamStateComplete:
		return nil, io.EOF
	case StreamStateError, StreamStateAborted:
		return nil, t.err
	case StreamStateClosed:
		return nil, fmt.Errorf("transform: %w", ErrStreamClosed)
	}

	for {
		if evt, ok := t.queue.Pop(); ok {
			t.state = StreamStateStreaming
			if _, done := evt.(EventFinish); done {
				t.state = StreamStateComplete
			}
			return evt, nil
		}
		if t.finished {
			t.state = StreamStateComplete
			return nil, io.EOF
		}

		evt, err := t.upstream.Next()
		if errors.Is(err, io.EOF) {
			// Upstream completed; its finish has already been processed.
			t.finished = true
			continue
		}
		if err != nil {
			t.err = err
			t.state = StreamStateError
			if errors.Is(err, ErrAborted) {
				t.state = StreamStateAborted
			}
			return nil, err
		}
		if _, done := evt.(EventFinish); done {
			t.finished = true
		}
		t.stage.Process(evt, &t.queue)
	}
}

func (t *transformStream) State() StreamState {
	return t.state
}

func (t *transformStream) Close() error {
	switch t.state {
	case StreamStateComplete, StreamStateError, StreamStateAborted:
	default:
		t.state = StreamStateClosed
	}
	return t.upstream.Close()
}
