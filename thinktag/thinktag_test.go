package thinktag_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/fwojciec/llmux"
	"github.com/fwojciec/llmux/mock"
	"github.com/fwojciec/llmux/thinktag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// textStream wraps deltas in one upstream text span followed by a finish.
func textStream(deltas ...string) *mock.Stream {
	events := []llmux.Event{llmux.EventTextStart{ID: "up-1"}}
	for _, d := range deltas {
		events = append(events, llmux.EventTextDelta{ID: "up-1", Delta: d})
	}
	events = append(events,
		llmux.EventTextEnd{ID: "up-1"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	)
	return mock.EventStream(events...)
}

func collect(t *testing.T, s llmux.Stream) []llmux.Event {
	t.Helper()
	var events []llmux.Event
	for {
		evt, err := s.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		events = append(events, evt)
	}
	return events
}

// split returns the reasoning and text carried by a message.
func split(t *testing.T, deltas ...string) (reasoning, text string) {
	t.Helper()
	msg, err := llmux.Drain(context.Background(), thinktag.Wrap(textStream(deltas...)), nil)
	require.NoError(t, err)
	for _, b := range msg.Content {
		switch bl := b.(type) {
		case llmux.ThinkingBlock:
			reasoning += bl.Thinking
		case llmux.TextBlock:
			text += bl.Text
		}
	}
	return reasoning, text
}

func TestExtractor_LeadingThink(t *testing.T) {
	t.Parallel()
	events := collect(t, thinktag.Wrap(textStream("<think>abc</think>hello")))

	assert.Equal(t, []llmux.Event{
		llmux.EventReasoningStart{ID: "thinktag-1"},
		llmux.EventReasoningDelta{ID: "thinktag-1", Delta: "abc"},
		llmux.EventReasoningEnd{ID: "thinktag-1"},
		llmux.EventTextStart{ID: "thinktag-2"},
		llmux.EventTextDelta{ID: "thinktag-2", Delta: "hello"},
		llmux.EventTextEnd{ID: "thinktag-2"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	}, events)
}

func TestExtractor_EverySplitPoint(t *testing.T) {
	t.Parallel()
	inputs := []struct {
		raw           string
		wantReasoning string
		wantText      string
	}{
		{"<think>abc</think>hello", "abc", "hello"},
		{"pre<thinking>a</thinking>mid<thinking>b</thinking>post", "ab", "premidpost"},
		{"x<think>not reasoning</think>", "", "x<think>not reasoning</think>"},
		{"<thinking>t</thinking><think>late</think>", "t", "<think>late</think>"},
		{"a < b and <thin", "", "a < b and <thin"},
	}
	for _, in := range inputs {
		for i := 0; i <= len(in.raw); i++ {
			reasoning, text := split(t, in.raw[:i], in.raw[i:])
			assert.Equal(t, in.wantReasoning, reasoning, "input %q split at %d", in.raw, i)
			assert.Equal(t, in.wantText, text, "input %q split at %d", in.raw, i)
		}
	}
}

func TestExtractor_ByteAtATime(t *testing.T) {
	t.Parallel()
	raw := "<think>plan</think>answer <thinking>again</thinking>done"
	deltas := make([]string, len(raw))
	for i := range raw {
		deltas[i] = raw[i : i+1]
	}

	reasoning, text := split(t, deltas...)

	assert.Equal(t, "planagain", reasoning)
	assert.Equal(t, "answer done", text)
}

func TestExtractor_PartialTagHeldBack(t *testing.T) {
	t.Parallel()
	x := thinktag.New()
	var q llmux.Queue

	x.Process(llmux.EventTextDelta{ID: "up", Delta: "hi <thin"}, &q)
	var got []llmux.Event
	for evt, ok := q.Pop(); ok; evt, ok = q.Pop() {
		got = append(got, evt)
	}
	assert.Equal(t, []llmux.Event{
		llmux.EventTextStart{ID: "thinktag-1"},
		llmux.EventTextDelta{ID: "thinktag-1", Delta: "hi "},
	}, got)

	x.Process(llmux.EventTextDelta{ID: "up", Delta: "king>"}, &q)
	evt, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, llmux.EventTextEnd{ID: "thinktag-1"}, evt)
	assert.Equal(t, 0, q.Len())
}

func TestExtractor_UnterminatedBlockFlushedAsReasoning(t *testing.T) {
	t.Parallel()
	events := collect(t, thinktag.Wrap(textStream("<think>still going</thi")))

	assert.Equal(t, []llmux.Event{
		llmux.EventReasoningStart{ID: "thinktag-1"},
		llmux.EventReasoningDelta{ID: "thinktag-1", Delta: "still going"},
		llmux.EventReasoningDelta{ID: "thinktag-1", Delta: "</thi"},
		llmux.EventReasoningEnd{ID: "thinktag-1"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	}, events)
}

func TestExtractor_PassesOtherEventsInOrder(t *testing.T) {
	t.Parallel()
	upstream := mock.EventStream(
		llmux.EventReasoningStart{ID: "up-r"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: "native"},
		llmux.EventReasoningEnd{ID: "up-r"},
		llmux.EventTextStart{ID: "up-t"},
		llmux.EventTextDelta{ID: "up-t", Delta: "hi"},
		llmux.EventTextEnd{ID: "up-t"},
		llmux.EventToolInputStart{ID: "c1", ToolName: "read"},
		llmux.EventToolInputEnd{ID: "c1"},
		llmux.EventFinish{Reason: llmux.FinishToolCalls},
	)

	events := collect(t, thinktag.Wrap(upstream))

	assert.Equal(t, []llmux.Event{
		llmux.EventReasoningStart{ID: "up-r"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: "native"},
		llmux.EventReasoningEnd{ID: "up-r"},
		llmux.EventTextStart{ID: "thinktag-1"},
		llmux.EventTextDelta{ID: "thinktag-1", Delta: "hi"},
		llmux.EventTextEnd{ID: "thinktag-1"},
		llmux.EventToolInputStart{ID: "c1", ToolName: "read"},
		llmux.EventToolInputEnd{ID: "c1"},
		llmux.EventFinish{Reason: llmux.FinishToolCalls},
	}, events)
}

func TestExtractor_UpstreamErrorPropagates(t *testing.T) {
	t.Parallel()
	wantErr := errors.New("read failed")
	s := thinktag.Wrap(mock.ErrorStream(wantErr,
		llmux.EventTextStart{ID: "up"},
		llmux.EventTextDelta{ID: "up", Delta: "<think>partial"},
	))

	var err error
	var events []llmux.Event
	for {
		var evt llmux.Event
		evt, err = s.Next()
		if err != nil {
			break
		}
		events = append(events, evt)
	}

	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, llmux.StreamStateError, s.State())
	for _, evt := range events {
		_, isFinish := evt.(llmux.EventFinish)
		assert.False(t, isFinish)
	}
}

func TestExtractor_RepeatedThinkingEveryThreeWaySplit(t *testing.T) {
	t.Parallel()
	raw := "<thinking>A</thinking>B<thinking>C</thinking>D"
	want := []llmux.Event{
		llmux.EventReasoningDelta{Delta: "A"},
		llmux.EventTextDelta{Delta: "B"},
		llmux.EventReasoningDelta{Delta: "C"},
		llmux.EventTextDelta{Delta: "D"},
	}
	for i := 0; i <= len(raw); i++ {
		for j := i; j <= len(raw); j++ {
			events := collect(t, thinktag.Wrap(textStream(raw[:i], raw[i:j], raw[j:])))
			assert.Equal(t, want, deltasOnly(events), "splits at %d and %d", i, j)
		}
	}
}

// deltasOnly keeps delta events with their IDs cleared.
func deltasOnly(events []llmux.Event) []llmux.Event {
	var out []llmux.Event
	for _, evt := range events {
		switch e := evt.(type) {
		case llmux.EventTextDelta:
			out = append(out, llmux.EventTextDelta{Delta: e.Delta})
		case llmux.EventReasoningDelta:
			out = append(out, llmux.EventReasoningDelta{Delta: e.Delta})
		}
	}
	return out
}

// assertOneSpanEach fails when two text spans or two reasoning spans are
// open at the same time, or when a delta or end names a span that is not
// open.
func assertOneSpanEach(t *testing.T, events []llmux.Event) {
	t.Helper()
	text := map[string]bool{}
	reasoning := map[string]bool{}
	open := func(spans map[string]bool, i int, id string) {
		assert.False(t, spans[id], "event %d: span %q opened twice", i, id)
		spans[id] = true
		assert.LessOrEqual(t, len(spans), 1, "event %d: spans open: %v", i, spans)
	}
	use := func(spans map[string]bool, i int, id string) {
		assert.True(t, spans[id], "event %d: span %q is not open", i, id)
	}
	for i, evt := range events {
		switch e := evt.(type) {
		case llmux.EventTextStart:
			open(text, i, e.ID)
		case llmux.EventTextDelta:
			use(text, i, e.ID)
		case llmux.EventTextEnd:
			use(text, i, e.ID)
			delete(text, e.ID)
		case llmux.EventReasoningStart:
			open(reasoning, i, e.ID)
		case llmux.EventReasoningDelta:
			use(reasoning, i, e.ID)
		case llmux.EventReasoningEnd:
			use(reasoning, i, e.ID)
			delete(reasoning, e.ID)
		}
	}
	assert.Empty(t, text, "text spans left open")
	assert.Empty(t, reasoning, "reasoning spans left open")
}

func TestExtractor_NativeReasoningStillOpen(t *testing.T) {
	t.Parallel()
	// Native reasoning stays open until the end of the message, as the
	// Messages API decoder reports it.
	upstream := mock.EventStream(
		llmux.EventReasoningStart{ID: "up-r"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: "native"},
		llmux.EventTextStart{ID: "up-t"},
		llmux.EventTextDelta{ID: "up-t", Delta: "a<thinking>x</thinking>b"},
		llmux.EventReasoningEnd{ID: "up-r"},
		llmux.EventTextEnd{ID: "up-t"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	)

	events := collect(t, thinktag.Wrap(upstream))

	assert.Equal(t, []llmux.Event{
		llmux.EventReasoningStart{ID: "up-r"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: "native"},
		llmux.EventTextStart{ID: "thinktag-1"},
		llmux.EventTextDelta{ID: "thinktag-1", Delta: "a"},
		llmux.EventTextEnd{ID: "thinktag-1"},
		llmux.EventReasoningEnd{ID: "up-r"},
		llmux.EventReasoningStart{ID: "thinktag-2"},
		llmux.EventReasoningDelta{ID: "thinktag-2", Delta: "x"},
		llmux.EventReasoningEnd{ID: "thinktag-2"},
		llmux.EventTextStart{ID: "thinktag-3"},
		llmux.EventTextDelta{ID: "thinktag-3", Delta: "b"},
		llmux.EventTextEnd{ID: "thinktag-3"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	}, events)
	assertOneSpanEach(t, events)
}

func TestExtractor_NativeReasoningInsideInlineBlock(t *testing.T) {
	t.Parallel()
	upstream := mock.EventStream(
		llmux.EventTextStart{ID: "up-t"},
		llmux.EventTextDelta{ID: "up-t", Delta: "<thinking>a"},
		llmux.EventReasoningStart{ID: "up-r"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: "native"},
		llmux.EventTextDelta{ID: "up-t", Delta: "b</thinking>c"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: " tail"},
		llmux.EventReasoningEnd{ID: "up-r"},
		llmux.EventTextEnd{ID: "up-t"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	)

	events := collect(t, thinktag.Wrap(upstream))

	assertOneSpanEach(t, events)
	reasoning, text := "", ""
	for _, evt := range events {
		switch e := evt.(type) {
		case llmux.EventReasoningDelta:
			reasoning += e.Delta
		case llmux.EventTextDelta:
			text += e.Delta
		}
	}
	assert.Equal(t, "anativeb tail", reasoning)
	assert.Equal(t, "c", text)
}

func TestExtractor_HeldTagReleasedBeforeOtherEvents(t *testing.T) {
	t.Parallel()
	upstream := mock.EventStream(
		llmux.EventTextStart{ID: "up-t"},
		llmux.EventTextDelta{ID: "up-t", Delta: "hi <thi"},
		llmux.EventReasoningStart{ID: "up-r"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: "native"},
		llmux.EventReasoningEnd{ID: "up-r"},
		llmux.EventTextDelta{ID: "up-t", Delta: "nking>x"},
		llmux.EventTextEnd{ID: "up-t"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	)

	events := collect(t, thinktag.Wrap(upstream))

	assert.Equal(t, []llmux.Event{
		llmux.EventTextStart{ID: "thinktag-1"},
		llmux.EventTextDelta{ID: "thinktag-1", Delta: "hi "},
		llmux.EventTextDelta{ID: "thinktag-1", Delta: "<thi"},
		llmux.EventReasoningStart{ID: "up-r"},
		llmux.EventReasoningDelta{ID: "up-r", Delta: "native"},
		llmux.EventReasoningEnd{ID: "up-r"},
		llmux.EventTextDelta{ID: "thinktag-1", Delta: "nking>x"},
		llmux.EventTextEnd{ID: "thinktag-1"},
		llmux.EventFinish{Reason: llmux.FinishStop},
	}, events)
}
