// Package sse reads server-sent event frames from an HTTP response body.
//
// Frames are groups of "field: value" lines terminated by a blank line. The
// reader owns a line buffer, so frames split across arbitrary network reads
// decode identically to frames delivered in one read.
package sse

import (
	"bufio"
	"io"
	"strings"
)

// Event is one decoded frame. Type is empty when the frame had no "event:"
// line. Multiple "data:" lines are joined with "\n".
type Event struct {
	Type string
	Data string
}

// Reader decodes frames from an underlying byte stream.
type Reader struct {
	br *bufio.Reader
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReader(r)}
}

// Next returns the next frame carrying data. Frames without data lines
// (keep-alives, bare comments) are skipped. It returns io.EOF once the
// stream is exhausted; a final frame lacking its blank terminator is still
// delivered. Any other error comes from the underlying reader.
func (r *Reader) Next() (Event, error) {
	var (
		evt     Event
		data    strings.Builder
		hasData bool
	)
	for {
		line, err := r.br.ReadString('\n')
		if err != nil && err != io.EOF {
			return Event{}, err
		}
		atEOF := err == io.EOF
		if atEOF && line == "" {
			if hasData {
				evt.Data = data.String()
				return evt, nil
			}
			return Event{}, io.EOF
		}

		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if hasData {
				evt.Data = data.String()
				return evt, nil
			}
			evt = Event{}
			continue
		}

		field, value := splitField(line)
		switch field {
		case "event":
			evt.Type = value
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		}
		// Comments (":...") and unknown fields (id, retry) are ignored.

		if atEOF {
			if hasData {
				evt.Data = data.String()
				return evt, nil
			}
			return Event{}, io.EOF
		}
	}
}

// splitField splits "field: value", dropping one optional space after the
// colon. A line starting with ':' is a comment and yields an empty field.
func splitField(line string) (string, string) {
	if strings.HasPrefix(line, ":") {
		return "", ""
	}
	field, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return field, strings.TrimPrefix(value, " ")
}
