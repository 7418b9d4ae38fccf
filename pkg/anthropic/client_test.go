package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResponseText(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "text", Text: "{\"lockup\""},
		{Type: "tool_use", Text: "ignored"},
		{Type: "text", Text: ": []}"},
	}}
	assert.Equal(t, `{"lockup": []}`, resp.Text())

	empty := &MessageResponse{}
	assert.Equal(t, "", empty.Text())
}

func TestEstimateCost(t *testing.T) {
	usage := TokenUsage{
		InputTokens:              1_000_000,
		OutputTokens:             100_000,
		CacheCreationInputTokens: 200_000,
		CacheReadInputTokens:     400_000,
	}

	cost := usage.EstimateCost("claude-sonnet-4-5-20250929")
	// 3.00 + 1.50 + 0.2*3*1.25 + 0.4*3*0.1
	assert.InDelta(t, 3.00+1.50+0.75+0.12, cost, 1e-9)

	assert.Zero(t, usage.EstimateCost("unknown-model"))
}

func TestCachedSystemBlocks(t *testing.T) {
	blocks := BuildCachedSystemBlocks("추출 규칙")
	assert.Len(t, blocks, 1)
	assert.Equal(t, "추출 규칙", blocks[0].Text)
	assert.Equal(t, "1h", blocks[0].CacheControl.TTL)
}
