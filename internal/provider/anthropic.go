package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/aistaff-ai/agentcore/internal/budget"
)

// Anthropic is the native provider variant, backed directly by Claude.
// Adapted from internal/llm/anthropic.go's AnthropicProvider: same
// streaming-to-avoid-long-request-timeout technique, same block-by-block
// accumulation, generalized from llm.ToolMessage's pre-flattened content
// blocks to CompleteRequest's Messages/ToolResults split so the agent loop
// doesn't need to know about Anthropic's content-block wire shape.
type Anthropic struct {
	client *anthropic.Client
	model  string
}

func NewAnthropic(apiKey, baseURL, model string) *Anthropic {
	opts := []option.RequestOption{}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	client := anthropic.NewClient(opts...)
	if model == "" {
		model = "claude-sonnet-4-5"
	}
	return &Anthropic{client: &client, model: model}
}

func (a *Anthropic) Name() string { return "anthropic" }

// Capabilities: the native SDK path talks directly to Anthropic's API with
// no intermediary sandboxing, so it is the one provider variant the
// capability policy may grant the dangerous bit against (spec §4.4/§4.7).
func (a *Anthropic) Capabilities() Capabilities {
	return Capabilities{CanGenerateDocs: true, CanReadAttachments: true, CanRunUnsandboxed: true}
}

func (a *Anthropic) Complete(ctx context.Context, req CompleteRequest) (*CompleteResponse, error) {
	messages, err := buildAnthropicMessages(req.Messages, req.ToolResults)
	if err != nil {
		return nil, &Error{Provider: a.Name(), Message: err.Error()}
	}

	var tools []anthropic.ToolUnionParam
	for _, t := range req.Tools {
		tools = append(tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{Properties: t.InputSchema},
			},
		})
	}

	model := req.Model
	if model == "" {
		model = a.model
	}
	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  messages,
		Tools:     tools,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}

	stream := a.client.Messages.NewStreaming(ctx, params, option.WithRequestTimeout(20*time.Minute))
	defer stream.Close()

	message := anthropic.Message{}
	for stream.Next() {
		if err := message.Accumulate(stream.Current()); err != nil {
			return nil, &Error{Provider: a.Name(), Message: fmt.Sprintf("stream accumulate: %v", err)}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, &Error{Provider: a.Name(), Message: err.Error()}
	}

	var content string
	var toolCalls []ToolCall
	for _, block := range message.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += v.Text
		case anthropic.ToolUseBlock:
			inputJSON, _ := json.Marshal(v.Input)
			toolCalls = append(toolCalls, ToolCall{ID: v.ID, Name: v.Name, Input: inputJSON})
		}
	}

	inputTokens := int(message.Usage.InputTokens)
	outputTokens := int(message.Usage.OutputTokens)
	if inputTokens > 200_000 {
		slog.Warn("anthropic request exceeded 200K input tokens", "input_tokens", inputTokens, "model", string(message.Model))
	}

	return &CompleteResponse{
		Content: content, ToolCalls: toolCalls, StopReason: string(message.StopReason),
		InputTokens: inputTokens, OutputTokens: outputTokens,
	}, nil
}

func buildAnthropicMessages(history []budget.ChatMessage, results []ToolResult) ([]anthropic.MessageParam, error) {
	var messages []anthropic.MessageParam
	for _, m := range history {
		switch m.Role {
		case "user":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		case "assistant":
			if m.ToolCallsJSON != "" {
				var calls []ToolCall
				if err := json.Unmarshal([]byte(m.ToolCallsJSON), &calls); err != nil {
					return nil, fmt.Errorf("decode stored tool calls: %w", err)
				}
				var blocks []anthropic.ContentBlockParamUnion
				if m.Content != "" {
					blocks = append(blocks, anthropic.NewTextBlock(m.Content))
				}
				for _, c := range calls {
					var input any
					if len(c.Input) > 0 {
						if err := json.Unmarshal(c.Input, &input); err != nil {
							input = map[string]any{}
						}
					} else {
						input = map[string]any{}
					}
					blocks = append(blocks, anthropic.NewToolUseBlock(c.ID, input, c.Name))
				}
				messages = append(messages, anthropic.NewAssistantMessage(blocks...))
			} else {
				messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
			}
		case "tool":
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewToolResultBlock(m.ToolCallID, m.Content, false)))
		}
	}

	if len(results) > 0 {
		var blocks []anthropic.ContentBlockParamUnion
		for _, r := range results {
			blocks = append(blocks, anthropic.NewToolResultBlock(r.ToolCallID, r.Content, r.IsError))
		}
		messages = append(messages, anthropic.NewUserMessage(blocks...))
	}

	return messages, nil
}
