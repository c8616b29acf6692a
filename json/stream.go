package json

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/fwojciec/llmux"
)

// maxLine bounds one recorded event line.
const maxLine = 4 << 20

// stream replays a JSON-lines event log.
type stream struct {
	r       io.Reader
	scanner *bufio.Scanner
	line    int
	state   llmux.StreamState
	err     error
}

// Interface compliance check.
var _ llmux.Stream = (*stream)(nil)

// NewStream returns a Stream replaying the events recorded in r, one JSON
// object per line. Blank lines are skipped. A log that ends without a
// finish event ends the stream with io.ErrUnexpectedEOF. Close closes r
// when it is an io.Closer.
func NewStream(r io.Reader) llmux.Stream {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), maxLine)
	return &stream{r: r, scanner: sc, state: llmux.StreamStateNew}
}

func (s *stream) Next() (llmux.Event, error) {
	switch s.state {
	case llmux.StreamStateComplete:
		return nil, io.EOF
	case llmux.StreamStateError:
		return nil, s.err
	case llmux.StreamStateClosed:
		return nil, fmt.Errorf("json: %w", llmux.ErrStreamClosed)
	}

	for s.scanner.Scan() {
		s.line++
		data := bytes.TrimSpace(s.scanner.Bytes())
		if len(data) == 0 {
			continue
		}
		evt, err := UnmarshalEvent(data)
		if err != nil {
			return nil, s.fail(fmt.Errorf("json: line %d: %w", s.line, err))
		}
		s.state = llmux.StreamStateStreaming
		if _, done := evt.(llmux.EventFinish); done {
			s.state = llmux.StreamStateComplete
		}
		return evt, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, s.fail(fmt.Errorf("json: %w", err))
	}
	return nil, s.fail(fmt.Errorf("json: log ends without finish: %w", io.ErrUnexpectedEOF))
}

func (s *stream) fail(err error) error {
	s.state = llmux.StreamStateError
	s.err = err
	return err
}

func (s *stream) State() llmux.StreamState {
	return s.state
}

func (s *stream) Close() error {
	if s.state != llmux.StreamStateComplete && s.state != llmux.StreamStateError {
		s.state = llmux.StreamStateClosed
	}
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
