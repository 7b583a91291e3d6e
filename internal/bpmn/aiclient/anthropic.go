package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
)

// AnthropicClient implements Client on top of the Anthropic Messages
// streaming API, grounded on the teacher's features/model/anthropic adapter
// (translate request -> sdk.MessageNewParams, drive NewStreaming, translate
// content-block deltas back into the engine's event vocabulary).
type AnthropicClient struct {
	messages     *sdk.MessageService
	defaultModel string
	maxTokens    int64
}

// NewAnthropicClient constructs a client from an API key.
func NewAnthropicClient(apiKey, defaultModel string, maxTokens int64) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, errors.New("aiclient: anthropic api key is required")
	}
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	c := sdk.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{messages: &c.Messages, defaultModel: defaultModel, maxTokens: maxTokens}, nil
}

func (c *AnthropicClient) Stream(ctx context.Context, req Request) (Stream, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(modelID),
		MaxTokens: c.maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(req.Input)),
		},
	}
	if req.SystemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: req.SystemPrompt}}
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, sdk.ToolUnionParam{
			OfTool: &sdk.ToolParam{
				Name:        tool.Name,
				Description: sdk.String(tool.Description),
				InputSchema: sdk.ToolInputSchemaParam{Properties: tool.Schema},
			},
		})
	}

	s := c.messages.NewStreaming(ctx, params)
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("aiclient: anthropic stream: %w", err)
	}
	return &anthropicStream{raw: s}, nil
}

type anthropicStream struct {
	raw     *ssestream.Stream[sdk.MessageStreamEventUnion]
	content strings.Builder
	done    bool
}

func (a *anthropicStream) Next(ctx context.Context) (Event, bool, error) {
	if a.done {
		return Event{}, false, nil
	}
	for a.raw.Next() {
		ev := a.raw.Current()
		switch variant := ev.AsAny().(type) {
		case sdk.ContentBlockDeltaEvent:
			if delta, ok := variant.Delta.AsAny().(sdk.TextDelta); ok && delta.Text != "" {
				a.content.WriteString(delta.Text)
				return Event{Kind: EventDelta, Delta: delta.Text}, true, nil
			}
		case sdk.ContentBlockStartEvent:
			if tu, ok := variant.ContentBlock.AsAny().(sdk.ToolUseBlock); ok {
				var args map[string]any
				_ = json.Unmarshal(tu.Input, &args)
				tc := ToolCallRequest{ID: tu.ID, Name: tu.Name, Args: args}
				return Event{Kind: EventToolCall, ToolCall: &tc}, true, nil
			}
		case sdk.MessageStopEvent:
			a.done = true
			return Event{Kind: EventDone, Content: a.content.String(), Confidence: extractConfidence(a.content.String())}, true, nil
		}
	}
	if err := a.raw.Err(); err != nil {
		return Event{}, false, fmt.Errorf("aiclient: anthropic stream read: %w", err)
	}
	a.done = true
	return Event{Kind: EventDone, Content: a.content.String(), Confidence: extractConfidence(a.content.String())}, true, nil
}

func (a *anthropicStream) Close() error { return nil }
