package nodes

import (
	"context"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai"

	"nodeflow/services/node"
	"nodeflow/services/workflow"
)

// DefaultLLMModel is used when neither the node nor the process names a model.
const DefaultLLMModel = "gpt-4o-mini"

const llmTimeout = 60 * time.Second

// ChatClient is the subset of *openai.Client the llm node uses.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

type llmSettings struct {
	Model        string  `mapstructure:"model"`
	SystemPrompt string  `mapstructure:"systemPrompt"`
	Temperature  float32 `mapstructure:"temperature"`
	MaxTokens    int     `mapstructure:"maxTokens"`
}

// llmNode sends its "prompt" input to a chat completion model and emits the
// reply as "text".
type llmNode struct {
	*node.Base
	client ChatClient
	model  string
	cfg    llmSettings
}

func llmConstructor(client ChatClient, model string) node.Constructor {
	if model == "" {
		model = DefaultLLMModel
	}
	return func(id string, spec workflow.NodeSpec) node.Node {
		return &llmNode{Base: node.NewBase(id, spec, node.ModeOnce), client: client, model: model}
	}
}

func (n *llmNode) Initialize(ctx context.Context, _ *workflow.Graph, _ map[string]node.Node) error {
	if err := decodeSettings(settings(ctx, n.Base), &n.cfg); err != nil {
		return err
	}
	if n.cfg.Model == "" {
		n.cfg.Model = n.model
	}
	if n.cfg.SystemPrompt == "" {
		n.cfg.SystemPrompt = "You are a helpful assistant."
	}
	return nil
}

func (n *llmNode) Execute(ctx context.Context, ec *node.Context) (node.Outputs, error) {
	if n.client == nil {
		return failure(fmt.Errorf("no LLM client configured")), nil
	}
	prompt := n.InputString("prompt", ec, "")
	if prompt == "" {
		return failure(fmt.Errorf("prompt is empty")), nil
	}

	req := openai.ChatCompletionRequest{
		Model: n.cfg.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: n.InputString("systemPrompt", ec, n.cfg.SystemPrompt)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: n.cfg.Temperature,
	}
	if n.cfg.MaxTokens > 0 {
		req.MaxCompletionTokens = n.cfg.MaxTokens
	}

	ctx, cancel := context.WithTimeout(ctx, llmTimeout)
	defer cancel()

	resp, err := n.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return failure(fmt.Errorf("OpenAI API call failed: %w", err)), nil
	}
	if len(resp.Choices) == 0 {
		return failure(fmt.Errorf("OpenAI returned no choices")), nil
	}

	return node.Outputs{
		"success":      true,
		"text":         resp.Choices[0].Message.Content,
		"model":        resp.Model,
		"finishReason": string(resp.Choices[0].FinishReason),
		"usage": map[string]any{
			"promptTokens":     resp.Usage.PromptTokens,
			"completionTokens": resp.Usage.CompletionTokens,
			"totalTokens":      resp.Usage.TotalTokens,
		},
	}, nil
}
