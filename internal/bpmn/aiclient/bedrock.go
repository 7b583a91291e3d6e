package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// BedrockClient implements Client against Amazon Bedrock's
// InvokeModelWithResponseStream API using the Anthropic-on-Bedrock message
// body shape, for deployments that route the agentic task executor through
// AWS rather than directly to a provider (spec §1: "the concrete AI-provider
// client" is an opaque collaborator; this is one such collaborator).
type BedrockClient struct {
	rt           *bedrockruntime.Client
	defaultModel string
	maxTokens    int
}

// NewBedrockClient wraps an already-configured bedrockruntime.Client.
func NewBedrockClient(rt *bedrockruntime.Client, defaultModel string, maxTokens int) *BedrockClient {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &BedrockClient{rt: rt, defaultModel: defaultModel, maxTokens: maxTokens}
}

type bedrockRequestBody struct {
	AnthropicVersion string              `json:"anthropic_version"`
	MaxTokens        int                 `json:"max_tokens"`
	System           string              `json:"system,omitempty"`
	Messages         []bedrockMessage    `json:"messages"`
}

type bedrockMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (c *BedrockClient) Stream(ctx context.Context, req Request) (Stream, error) {
	modelID := req.Model
	if modelID == "" {
		modelID = c.defaultModel
	}
	body, err := json.Marshal(bedrockRequestBody{
		AnthropicVersion: "bedrock-2023-05-31",
		MaxTokens:        c.maxTokens,
		System:           req.SystemPrompt,
		Messages:         []bedrockMessage{{Role: "user", Content: req.Input}},
	})
	if err != nil {
		return nil, fmt.Errorf("aiclient: bedrock: encoding request: %w", err)
	}

	out, err := c.rt.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(modelID),
		Body:        body,
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		if isRateLimited(err) {
			return nil, fmt.Errorf("aiclient: bedrock: invoke: %w: %w", ErrRateLimited, err)
		}
		return nil, fmt.Errorf("aiclient: bedrock: invoke: %w", err)
	}
	return &bedrockStream{events: out.GetStream().Events(), closer: out.GetStream()}, nil
}

// isRateLimited reports whether err represents a Bedrock throttling
// response, recognizing both the provider's ThrottlingException error code
// and a raw HTTP 429, so RateLimitedClient backs off regardless of which
// shape a given Bedrock model returns it in.
func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "ThrottlingException", "TooManyRequestsException":
			return true
		}
	}
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 429 {
		return true
	}
	return false
}

type bedrockStreamChunk struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

type bedrockStream struct {
	events  <-chan types.ResponseStream
	closer  interface{ Close() error }
	content strings.Builder
	done    bool
}

func (s *bedrockStream) Next(ctx context.Context) (Event, bool, error) {
	if s.done {
		return Event{}, false, nil
	}
	for {
		select {
		case ev, ok := <-s.events:
			if !ok {
				s.done = true
				return Event{Kind: EventDone, Content: s.content.String(), Confidence: extractConfidence(s.content.String())}, true, nil
			}
			member, ok := ev.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			var chunk bedrockStreamChunk
			if err := json.Unmarshal(member.Value.Bytes, &chunk); err != nil {
				continue
			}
			if chunk.Type == "content_block_delta" && chunk.Delta.Text != "" {
				s.content.WriteString(chunk.Delta.Text)
				return Event{Kind: EventDelta, Delta: chunk.Delta.Text}, true, nil
			}
			if chunk.Type == "message_stop" {
				s.done = true
				return Event{Kind: EventDone, Content: s.content.String(), Confidence: extractConfidence(s.content.String())}, true, nil
			}
		case <-ctx.Done():
			return Event{}, false, ctx.Err()
		}
	}
}

func (s *bedrockStream) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
