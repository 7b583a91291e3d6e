package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements Client against the Chat Completions streaming API,
// grounded on the teacher's features/model/openai adapter (which calls the
// same github.com/sashabaranov/go-openai client, non-streaming; this adapter
// adds the streaming path the agentic executor needs).
type OpenAIClient struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIClient constructs a client from an API key.
func NewOpenAIClient(apiKey, defaultModel string) *OpenAIClient {
	return &OpenAIClient{client: openai.NewClient(apiKey), defaultModel: defaultModel}
}

func (c *OpenAIClient) Stream(ctx context.Context, req Request) (Stream, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	messages := []openai.ChatCompletionMessage{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt})
	}
	messages = append(messages, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Input})

	request := openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
		Stream:   true,
	}
	for _, tool := range req.Tools {
		schema, _ := json.Marshal(tool.Schema)
		request.Tools = append(request.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        tool.Name,
				Description: tool.Description,
				Parameters:  json.RawMessage(schema),
			},
		})
	}

	stream, err := c.client.CreateChatCompletionStream(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("aiclient: openai stream: %w", err)
	}
	return &openaiStream{raw: stream}, nil
}

type openaiStream struct {
	raw     *openai.ChatCompletionStream
	content strings.Builder
	done    bool
}

func (o *openaiStream) Next(ctx context.Context) (Event, bool, error) {
	if o.done {
		return Event{}, false, nil
	}
	for {
		resp, err := o.raw.Recv()
		if errors.Is(err, io.EOF) {
			o.done = true
			return Event{Kind: EventDone, Content: o.content.String(), Confidence: extractConfidence(o.content.String())}, true, nil
		}
		if err != nil {
			return Event{}, false, fmt.Errorf("aiclient: openai stream read: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		choice := resp.Choices[0]
		if delta := choice.Delta.Content; delta != "" {
			o.content.WriteString(delta)
			return Event{Kind: EventDelta, Delta: delta}, true, nil
		}
		if len(choice.Delta.ToolCalls) > 0 {
			tc := choice.Delta.ToolCalls[0]
			var args map[string]any
			if tc.Function.Arguments != "" {
				_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			}
			return Event{Kind: EventToolCall, ToolCall: &ToolCallRequest{ID: tc.ID, Name: tc.Function.Name, Args: args}}, true, nil
		}
		if choice.FinishReason != "" {
			o.done = true
			return Event{Kind: EventDone, Content: o.content.String(), Confidence: extractConfidence(o.content.String())}, true, nil
		}
	}
}

func (o *openaiStream) Close() error {
	o.raw.Close()
	return nil
}
