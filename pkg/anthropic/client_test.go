package anthropic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockClient returns canned responses for testing callers of Client.
type mockClient struct {
	resp *MessageResponse
	err  error
	last MessageRequest
}

func (m *mockClient) CreateMessage(_ context.Context, req MessageRequest) (*MessageResponse, error) {
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return m.resp, nil
}

func TestCreateMessage_MockClient(t *testing.T) {
	mock := &mockClient{
		resp: &MessageResponse{
			ID:      "msg_1",
			Content: []ContentBlock{{Type: "text", Text: "hello"}},
			Usage:   TokenUsage{InputTokens: 10, OutputTokens: 5},
		},
	}

	resp, err := mock.CreateMessage(context.Background(), MessageRequest{
		Model:     "claude-haiku-4-5-20251001",
		MaxTokens: 1024,
		Messages:  []Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", resp.Text())
	assert.Equal(t, int64(10), resp.Usage.InputTokens)
}

func TestResponseText_SkipsNonTextBlocks(t *testing.T) {
	resp := &MessageResponse{Content: []ContentBlock{
		{Type: "thinking", Text: "ignored"},
		{Type: "text", Text: "a"},
		{Type: "text", Text: "b"},
	}}
	assert.Equal(t, "ab", resp.Text())
}

func TestToSDKMessages_DocumentBlock(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "extract listings", Document: []byte("%PDF-1.4 fake")},
	})
	require.Len(t, msgs, 1)
	require.Len(t, msgs[0].Content, 2)
	assert.NotNil(t, msgs[0].Content[0].OfDocument)
	assert.NotNil(t, msgs[0].Content[1].OfText)
}

func TestToSDKMessages_TextOnly(t *testing.T) {
	msgs := toSDKMessages([]Message{
		{Role: "user", Content: "hi"},
		{Role: "assistant", Content: "hello"},
	})
	require.Len(t, msgs, 2)
	assert.Len(t, msgs[0].Content, 1)
	assert.Equal(t, "assistant", string(msgs[1].Role))
}

func TestToSDKSystemBlocks_CacheControl(t *testing.T) {
	blocks := toSDKSystemBlocks(BuildCachedSystemBlocks("system prompt"))
	require.Len(t, blocks, 1)
	assert.Equal(t, "system prompt", blocks[0].Text)
	assert.Equal(t, "1h", string(blocks[0].CacheControl.TTL))
}

func TestEstimateCost_Haiku(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000, OutputTokens: 1_000_000}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	assert.InDelta(t, 4.80, cost, 0.001)
}

func TestEstimateCost_WithCache(t *testing.T) {
	u := TokenUsage{
		InputTokens:              100_000,
		OutputTokens:             50_000,
		CacheCreationInputTokens: 200_000,
		CacheReadInputTokens:     400_000,
	}
	cost := u.EstimateCost("claude-haiku-4-5-20251001")
	// 0.08 + 0.20 + (0.16*1.25) + (0.32*0.1)
	assert.InDelta(t, 0.512, cost, 0.001)
}

func TestEstimateCost_UnknownModel(t *testing.T) {
	u := TokenUsage{InputTokens: 1_000_000}
	assert.Zero(t, u.EstimateCost("some-other-model"))
}

func TestLogCost_DoesNotPanic(t *testing.T) {
	u := TokenUsage{InputTokens: 100, OutputTokens: 50}
	assert.NotPanics(t, func() {
		u.LogCost("claude-haiku-4-5-20251001", "vision")
	})
}
