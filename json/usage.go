package json

import "github.com/fwojciec/llmux"

// usageDTO mirrors llmux.Usage; absent counts are omitted, not zero.
type usageDTO struct {
	InputTokens      *int `json:"input_tokens,omitempty"`
	OutputTokens     *int `json:"output_tokens,omitempty"`
	TotalTokens      *int `json:"total_tokens,omitempty"`
	CacheReadTokens  *int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int `json:"cache_write_tokens,omitempty"`
}

func marshalUsage(u llmux.Usage) *usageDTO {
	if u == (llmux.Usage{}) {
		return nil
	}
	return &usageDTO{
		InputTokens:      u.InputTokens,
		OutputTokens:     u.OutputTokens,
		TotalTokens:      u.TotalTokens,
		CacheReadTokens:  u.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens,
	}
}

func unmarshalUsage(dto *usageDTO) llmux.Usage {
	if dto == nil {
		return llmux.Usage{}
	}
	return llmux.Usage{
		InputTokens:      dto.InputTokens,
		OutputTokens:     dto.OutputTokens,
		TotalTokens:      dto.TotalTokens,
		CacheReadTokens:  dto.CacheReadTokens,
		CacheWriteTokens: dto.CacheWriteTokens,
	}
}
