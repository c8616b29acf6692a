package llmux

import (
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// IDSource hands out identifiers that are unique within one stream. Each
// decoder and stage owns its own source; there is no shared counter.
type IDSource struct {
	prefix string
	n      int
}

// NewIDSource returns a source producing prefix1, prefix2, ...
func NewIDSource(prefix string) *IDSource {
	return &IDSource{prefix: prefix}
}

// NewToolCallIDSource returns a source for synthesized tool-call IDs. Tool
// call IDs are echoed back to the model in later turns, so the counter is
// prefixed with a random nonce to keep IDs distinct across turns.
func NewToolCallIDSource() *IDSource {
	nonce := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	return NewIDSource("call_" + nonce + "_")
}

// Next returns the next identifier.
func (s *IDSource) Next() string {
	s.n++
	return s.prefix + strconv.Itoa(s.n)
}
