// Package xmltool extracts tool calls that a model writes inline as markup:
//
//	<read_file>
//	<path>main.go</path>
//	</read_file>
//
// Only tags naming a declared tool are recognized. Ordinary text streams
// through as it arrives. Text that might begin a tool tag is held back until
// it resolves or a non-text event arrives. A candidate that grows past the size ceiling without a
// closing tag is released as plain text.
package xmltool

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/internal/tagscan"
)

// DefaultMaxCandidate is the default size ceiling for a buffered candidate.
const DefaultMaxCandidate = 64 << 10

// callIDParam names the optional parameter that supplies the call ID.
const callIDParam = "callId"

// Options configures an Extractor.
type Options struct {
	// ToolNames is the set of tool names to recognize.
	ToolNames []string
	// TrimWhitespace trims leading and trailing whitespace from parameter
	// values before they are decoded.
	TrimWhitespace bool
	// MaxCandidate is the size ceiling in bytes; 0 means DefaultMaxCandidate.
	MaxCandidate int
}

// Extractor is a [llmux.Stage] that turns inline tool markup in text deltas
// into the tool-input lifecycle and EventToolCall.
type Extractor struct {
	openTags []string
	trim     bool
	max      int

	pending   string // unresolved text, at most a partial opening tag
	candidate string // raw text since a recognized opening tag
	name      string // tool name of the candidate, "" when not buffering

	spanIDs *llmux.IDSource
	callIDs *llmux.IDSource
	textID  string
	calls   int
}

// Interface compliance check.
var _ llmux.Stage = (*Extractor)(nil)

// New returns an Extractor for one stream.
func New(opts Options) *Extractor {
	x := &Extractor{
		trim:    opts.TrimWhitespace,
		max:     opts.MaxCandidate,
		spanIDs: llmux.NewIDSource("xmltool-"),
		callIDs: llmux.NewToolCallIDSource(),
	}
	if x.max <= 0 {
		x.max = DefaultMaxCandidate
	}
	for _, name := range opts.ToolNames {
		if name != "" {
			x.openTags = append(x.openTags, "<"+name+">")
		}
	}
	return x
}

// Wrap runs s through a new Extractor.
func Wrap(s llmux.Stream, opts Options) llmux.Stream {
	return llmux.Transform(s, New(opts))
}

// Process implements [llmux.Stage].
func (x *Extractor) Process(evt llmux.Event, out *llmux.Queue) {
	switch e := evt.(type) {
	case llmux.EventTextStart:
	case llmux.EventTextDelta:
		x.pending += e.Delta
		x.scan(out)
	case llmux.EventTextEnd:
		x.flush(out)
		x.closeText(out)
	case llmux.EventFinish:
		x.flush(out)
		x.closeText(out)
		if x.calls > 0 {
			e.Reason = llmux.FinishToolCalls
		}
		out.Push(e)
	default:
		x.releasePending(out)
		out.Push(evt)
	}
}

// releasePending emits a held partial opening tag as text so that it keeps
// its place ahead of a non-text event. A tag is only recognized when it
// arrives as contiguous text. An open candidate stays buffered: the call it
// may become completes after the event.
func (x *Extractor) releasePending(out *llmux.Queue) {
	if x.name != "" {
		return
	}
	x.emitText(x.pending, out)
	x.pending = ""
}

func (x *Extractor) scan(out *llmux.Queue) {
	for {
		if x.name != "" {
			x.candidate += x.pending
			x.pending = ""
			if !x.resolveCandidate(out) {
				return
			}
			continue
		}
		if x.pending == "" {
			return
		}
		idx, tag := tagscan.Index(x.pending, x.openTags)
		if idx >= 0 {
			x.emitText(x.pending[:idx], out)
			x.name = tag[1 : len(tag)-1]
			x.candidate = ""
			x.pending = x.pending[idx:]
			continue
		}
		keep := tagscan.PartialSuffix(x.pending, x.openTags)
		x.emitText(x.pending[:len(x.pending)-keep], out)
		x.pending = x.pending[len(x.pending)-keep:]
		return
	}
}

// resolveCandidate completes or abandons the buffered candidate. It reports
// whether the candidate was resolved and scanning should continue.
func (x *Extractor) resolveCandidate(out *llmux.Queue) bool {
	open := "<" + x.name + ">"
	closing := "</" + x.name + ">"
	if i := strings.Index(x.candidate[len(open):], closing); i >= 0 {
		end := len(open) + i
		x.emitCall(x.name, x.candidate[len(open):end], out)
		x.pending = x.candidate[end+len(closing):]
		x.candidate, x.name = "", ""
		return true
	}
	if len(x.candidate) > x.max {
		x.emitText(x.candidate, out)
		x.candidate, x.name = "", ""
		return true
	}
	return false
}

// flush releases everything held back. Candidates are resolved as soon as
// their closing tag arrives, so one still buffered here was not a tool call.
func (x *Extractor) flush(out *llmux.Queue) {
	if x.name != "" {
		x.emitText(x.candidate, out)
		x.candidate, x.name = "", ""
	}
	x.emitText(x.pending, out)
	x.pending = ""
}

func (x *Extractor) emitCall(name, body string, out *llmux.Queue) {
	x.closeText(out)
	id, input := x.parseParams(body)
	if id == "" {
		id = x.callIDs.Next()
	}
	out.Push(
		llmux.EventToolInputStart{ID: id, ToolName: name},
		llmux.EventToolInputDelta{ID: id, Delta: string(input)},
		llmux.EventToolInputEnd{ID: id},
		llmux.EventToolCall{ID: id, ToolName: name, Input: input},
	)
	x.calls++
}

// parseParams turns <param>value</param> pairs into a JSON object, keeping
// first-seen key order. A repeated key keeps its last value.
func (x *Extractor) parseParams(body string) (string, json.RawMessage) {
	var (
		keys   []string
		values = make(map[string]json.RawMessage)
		callID string
	)
	rest := body
	for {
		lt := strings.IndexByte(rest, '<')
		if lt < 0 {
			break
		}
		gt := strings.IndexByte(rest[lt:], '>')
		if gt < 0 {
			break
		}
		key := rest[lt+1 : lt+gt]
		if !validParamName(key) {
			rest = rest[lt+1:]
			continue
		}
		valueStart := lt + gt + 1
		end := strings.Index(rest[valueStart:], "</"+key+">")
		if end < 0 {
			rest = rest[valueStart:]
			continue
		}
		value := rest[valueStart : valueStart+end]
		rest = rest[valueStart+end+len(key)+3:]

		if x.trim {
			value = strings.TrimSpace(value)
		}
		if key == callIDParam {
			callID = strings.TrimSpace(value)
			var s string
			if json.Unmarshal([]byte(callID), &s) == nil {
				callID = s
			}
			continue
		}
		if _, seen := values[key]; !seen {
			keys = append(keys, key)
		}
		values[key] = decodeValue(value)
	}

	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			b.WriteByte(',')
		}
		name, _ := json.Marshal(k)
		b.Write(name)
		b.WriteByte(':')
		b.Write(values[k])
	}
	b.WriteByte('}')
	return callID, json.RawMessage(b.Bytes())
}

// decodeValue keeps a value that is valid JSON as JSON and encodes anything
// else as a string.
func decodeValue(value string) json.RawMessage {
	if trimmed := strings.TrimSpace(value); trimmed != "" && json.Valid([]byte(trimmed)) {
		var b bytes.Buffer
		if json.Compact(&b, []byte(trimmed)) == nil {
			return b.Bytes()
		}
	}
	return marshalString(value)
}

// marshalString encodes s as a JSON string without HTML escaping, so markup
// inside a parameter reaches the tool as written.
func marshalString(s string) json.RawMessage {
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(s)
	return bytes.TrimSuffix(b.Bytes(), []byte("\n"))
}

func validParamName(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-' || r == '.'):
		default:
			return false
		}
	}
	return true
}

func (x *Extractor) emitText(s string, out *llmux.Queue) {
	if s == "" {
		return
	}
	if x.textID == "" {
		x.textID = x.spanIDs.Next()
		out.Push(llmux.EventTextStart{ID: x.textID})
	}
	out.Push(llmux.EventTextDelta{ID: x.textID, Delta: s})
}

func (x *Extractor) closeText(out *llmux.Queue) {
	if x.textID != "" {
		out.Push(llmux.EventTextEnd{ID: x.textID})
		x.textID = ""
	}
}
