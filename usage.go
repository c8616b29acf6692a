package llmux

// Usage tracks token consumption. A nil field means the provider did not
// report it.
//
// TotalTokens is derived: InputTokens + OutputTokens when both are present,
// nil otherwise. Decoders fill it through Total rather than trusting an
// upstream total.
type Usage struct {
	InputTokens      *int
	OutputTokens     *int
	TotalTokens      *int
	CacheReadTokens  *int
	CacheWriteTokens *int
}

// Int returns a pointer to n. Convenience for building Usage values.
func Int(n int) *int {
	return &n
}

// Total returns a copy of u with TotalTokens recomputed from the input and
// output counts.
func (u Usage) Total() Usage {
	u.TotalTokens = nil
	if u.InputTokens != nil && u.OutputTokens != nil {
		u.TotalTokens = Int(*u.InputTokens + *u.OutputTokens)
	}
	return u
}
