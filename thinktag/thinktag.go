// Package thinktag splits reasoning written inline as <think>...</think> or
// <thinking>...</thinking> out of a text stream.
//
// <think> is honored once, and only when it opens the very first text of
// the stream. <thinking> is honored anywhere, any number of times. Text that
// might be the start of a tag is held back until it resolves; nothing is
// emitted speculatively.
package thinktag

import (
	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/internal/tagscan"
)

const (
	thinkOpen     = "<think>"
	thinkClose    = "</think>"
	thinkingOpen  = "<thinking>"
	thinkingClose = "</thinking>"
)

type parseState int

const (
	stateNormal     parseState = iota // nothing resolved yet; <think> still possible
	stateInThink                      // inside the leading <think> block
	stateInThinking                   // inside a <thinking> block
	stateAfterThink                   // only <thinking> is recognized
)

// Extractor is a [llmux.Stage] that rewrites text deltas into text and
// reasoning deltas. Non-text events pass through in order.
//
// A tag must arrive as contiguous text: bytes held back as a possible tag
// are released before any non-text event is forwarded. Only one reasoning
// span is open at a time. An upstream reasoning span still open when inline
// reasoning begins is ended early, and its later deltas continue in this
// stage's own span.
type Extractor struct {
	state       parseState
	buf         string
	ids         *llmux.IDSource
	textID      string
	reasoningID string

	upstreamID  string // open upstream reasoning span
	displacedID string // upstream span this stage ended early
}

// Interface compliance check.
var _ llmux.Stage = (*Extractor)(nil)

// New returns an Extractor for one stream.
func New() *Extractor {
	return &Extractor{ids: llmux.NewIDSource("thinktag-")}
}

// Wrap runs s through a new Extractor.
func Wrap(s llmux.Stream) llmux.Stream {
	return llmux.Transform(s, New())
}

// Process implements [llmux.Stage].
func (x *Extractor) Process(evt llmux.Event, out *llmux.Queue) {
	switch e := evt.(type) {
	case llmux.EventTextStart:
		// Spans are re-opened lazily with this stage's own IDs.
	case llmux.EventTextDelta:
		x.buf += e.Delta
		x.scan(out)
	case llmux.EventTextEnd:
		x.flush(out)
		x.closeReasoning(out)
		x.closeText(out)
	case llmux.EventReasoningStart:
		x.flush(out)
		x.closeReasoning(out)
		x.upstreamID = e.ID
		out.Push(evt)
	case llmux.EventReasoningDelta:
		x.flush(out)
		if e.ID != "" && e.ID == x.displacedID {
			x.emitReasoning(e.Delta, out)
			return
		}
		out.Push(evt)
	case llmux.EventReasoningEnd:
		x.flush(out)
		switch {
		case e.ID != "" && e.ID == x.displacedID:
			// Already ended; its tail went to this stage's span.
			x.displacedID = ""
			if !x.inBlock() {
				x.closeReasoning(out)
			}
		case e.ID == x.upstreamID:
			x.upstreamID = ""
			out.Push(evt)
		default:
			out.Push(evt)
		}
	case llmux.EventFinish:
		x.flush(out)
		x.closeReasoning(out)
		x.closeText(out)
		out.Push(evt)
	default:
		x.flush(out)
		out.Push(evt)
	}
}

func (x *Extractor) inBlock() bool {
	return x.state == stateInThink || x.state == stateInThinking
}

// scan consumes as much of the carry-over buffer as can be resolved.
func (x *Extractor) scan(out *llmux.Queue) {
	for x.buf != "" {
		switch x.state {
		case stateNormal:
			if len(x.buf) >= len(thinkOpen) && x.buf[:len(thinkOpen)] == thinkOpen {
				x.buf = x.buf[len(thinkOpen):]
				x.enterBlock(stateInThink, out)
				continue
			}
			if tagscan.IsPrefix(x.buf, thinkOpen) {
				return
			}
			if !x.scanText(out) {
				return
			}
		case stateAfterThink:
			if !x.scanText(out) {
				return
			}
		case stateInThink:
			if !x.scanBlock(thinkClose, out) {
				return
			}
		case stateInThinking:
			if !x.scanBlock(thinkingClose, out) {
				return
			}
		}
	}
}

// scanText handles the text states. It reports whether scanning should
// continue with the remaining buffer.
func (x *Extractor) scanText(out *llmux.Queue) bool {
	tags := []string{thinkingOpen}
	if idx, _ := tagscan.Index(x.buf, tags); idx >= 0 {
		x.emitText(x.buf[:idx], out)
		x.buf = x.buf[idx+len(thinkingOpen):]
		x.enterBlock(stateInThinking, out)
		return true
	}
	keep := tagscan.PartialSuffix(x.buf, tags)
	if x.state == stateNormal && keep == len(x.buf) {
		// Still could be the leading <thinking>; <think> was ruled out
		// by the caller.
		return false
	}
	x.emitText(x.buf[:len(x.buf)-keep], out)
	x.buf = x.buf[len(x.buf)-keep:]
	x.state = stateAfterThink
	return false
}

// scanBlock handles the block states. It reports whether the closing tag was
// consumed.
func (x *Extractor) scanBlock(closing string, out *llmux.Queue) bool {
	tags := []string{closing}
	if idx, _ := tagscan.Index(x.buf, tags); idx >= 0 {
		x.emitReasoning(x.buf[:idx], out)
		x.buf = x.buf[idx+len(closing):]
		x.closeReasoning(out)
		x.state = stateAfterThink
		return true
	}
	keep := tagscan.PartialSuffix(x.buf, tags)
	x.emitReasoning(x.buf[:len(x.buf)-keep], out)
	x.buf = x.buf[len(x.buf)-keep:]
	return false
}

func (x *Extractor) enterBlock(state parseState, out *llmux.Queue) {
	x.closeText(out)
	x.state = state
}

// flush emits whatever is still held back, as reasoning inside a block and
// as text otherwise.
func (x *Extractor) flush(out *llmux.Queue) {
	if x.buf == "" {
		return
	}
	if x.inBlock() {
		x.emitReasoning(x.buf, out)
	} else {
		x.emitText(x.buf, out)
		x.state = stateAfterThink
	}
	x.buf = ""
}

func (x *Extractor) emitText(s string, out *llmux.Queue) {
	if s == "" {
		return
	}
	if x.textID == "" {
		x.textID = x.ids.Next()
		out.Push(llmux.EventTextStart{ID: x.textID})
	}
	out.Push(llmux.EventTextDelta{ID: x.textID, Delta: s})
}

func (x *Extractor) emitReasoning(s string, out *llmux.Queue) {
	if s == "" {
		return
	}
	if x.reasoningID == "" {
		x.endUpstream(out)
		x.reasoningID = x.ids.Next()
		out.Push(llmux.EventReasoningStart{ID: x.reasoningID})
	}
	out.Push(llmux.EventReasoningDelta{ID: x.reasoningID, Delta: s})
}

func (x *Extractor) closeText(out *llmux.Queue) {
	if x.textID != "" {
		out.Push(llmux.EventTextEnd{ID: x.textID})
		x.textID = ""
	}
}

// endUpstream ends the open upstream reasoning span so this stage can open
// its own.
func (x *Extractor) endUpstream(out *llmux.Queue) {
	if x.upstreamID == "" {
		return
	}
	out.Push(llmux.EventReasoningEnd{ID: x.upstreamID})
	x.displacedID = x.upstreamID
	x.upstreamID = ""
}

func (x *Extractor) closeReasoning(out *llmux.Queue) {
	if x.reasoningID != "" {
		out.Push(llmux.EventReasoningEnd{ID: x.reasoningID})
		x.reasoningID = ""
	}
}
