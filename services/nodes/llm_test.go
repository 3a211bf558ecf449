package nodes

import (
	"context"
	"errors"
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

type fakeChatClient struct {
	reply string
	err   error
	req   openai.ChatCompletionRequest
}

func (f *fakeChatClient) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	f.req = req
	if f.err != nil {
		return openai.ChatCompletionResponse{}, f.err
	}
	return openai.ChatCompletionResponse{
		Model: req.Model,
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: f.reply}, FinishReason: openai.FinishReasonStop},
		},
		Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 3, TotalTokens: 15},
	}, nil
}

func TestLLM_SendsPromptAndReturnsReply(t *testing.T) {
	client := &fakeChatClient{reply: "Bring an umbrella."}
	ec := node.NewContext(map[string]any{"city": "Perth"}, nil)

	n := newTestNode(t, Deps{LLM: client, LLMModel: "gpt-test"}, workflow.NodeSpec{
		ID: "advice", Type: "llm",
		Inputs:   map[string]any{"prompt": "What should I wear in {{city}}?"},
		Metadata: map[string]any{"systemPrompt": "Be brief.", "maxTokens": 50},
	})

	out, err := n.Execute(context.Background(), ec)

	require.NoError(t, err)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, "Bring an umbrella.", out["text"])
	assert.Equal(t, "gpt-test", client.req.Model)
	assert.Equal(t, 50, client.req.MaxCompletionTokens)
	require.Len(t, client.req.Messages, 2)
	assert.Equal(t, "Be brief.", client.req.Messages[0].Content)
	assert.Equal(t, "What should I wear in Perth?", client.req.Messages[1].Content)
}

func TestLLM_ExpectedFailures(t *testing.T) {
	tests := []struct {
		name    string
		deps    Deps
		inputs  map[string]any
		wantErr string
	}{
		{"no client", Deps{}, map[string]any{"prompt": "hi"}, "no LLM client"},
		{"empty prompt", Deps{LLM: &fakeChatClient{}}, nil, "prompt is empty"},
		{"api error", Deps{LLM: &fakeChatClient{err: errors.New("rate limited")}}, map[string]any{"prompt": "hi"}, "rate limited"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNode(t, tt.deps, workflow.NodeSpec{ID: "llm", Type: "llm", Inputs: tt.inputs})

			out, err := n.Execute(context.Background(), node.NewContext(nil, nil))

			require.NoError(t, err)
			assert.Equal(t, false, out["success"])
			assert.Contains(t, out["error"], tt.wantErr)
		})
	}
}
