package exec

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/bpmnkit/engine/internal/bpmn/aiclient"
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/events"
	"github.com/bpmnkit/engine/internal/bpmn/expr"
	"github.com/bpmnkit/engine/internal/bpmn/mcp"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// sentenceTerminators are the characters/sequences that close a text.message.chunk
// (spec §4.5.1.b: "each time a sentence terminator (.,!,?,\n\n) is crossed").
var sentenceTerminators = []string{"\n\n", ".", "!", "?"}

// executeAgenticTask drives the agentic-task retry loop (spec §4.5.1): up to
// maxRetries streaming completions, forwarding deltas and sentence chunks,
// dispatching MCP tool calls, and accepting the first attempt whose parsed
// confidence score clears the threshold. It is cancellable at every await —
// ctx is checked before each stream read and passed to stream.Next and the
// MCP call, and a stream failure seen after ctx is cancelled ends the
// attempt as cancelled rather than as a failed attempt.
func executeAgenticTask(ctx context.Context, rc *RunContext) (Result, error) {
	e := rc.Element
	resultVar := e.StringProp("resultVariable")
	if resultVar == "" {
		resultVar = "result"
	}

	modelID := e.StringProp("model")
	systemPrompt := e.StringProp("systemPrompt")
	threshold := confidenceThreshold(e, rc)
	maxRetries := maxRetries(e, rc)
	tools := mcpToolSpecs(e)

	if rc.Deps == nil || rc.Deps.AI == nil {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "agenticTask %s: no AI registry configured", e.ID)
	}
	client, resolvedModel := rc.Deps.AI.Resolve(modelID)
	if client == nil {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "agenticTask %s: no AI client available for model %q", e.ID, modelID)
	}

	rc.Emit(events.TaskThinking{
		Base: events.NewBase(events.TypeTaskThinking, rc.InstanceID, e.ID),
		Data: events.TaskThinkingPayload{Message: fmt.Sprintf("Initializing %s agent", modelID)},
	})

	input := agenticInput(e, rc)

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		content, confidence, cancelled, err := runAgenticAttempt(ctx, rc, client, aiclient.Request{
			Model:        resolvedModel,
			SystemPrompt: systemPrompt,
			Input:        input,
			Tools:        tools,
		})
		if cancelled {
			return Result{}, bpmnerr.Wrap(bpmnerr.KindCancelled, ctx.Err(), "agenticTask %s cancelled mid-stream", e.ID)
		}
		if err != nil {
			lastErr = err
			rc.Emit(events.TaskThinking{
				Base: events.NewBase(events.TypeTaskThinking, rc.InstanceID, e.ID),
				Data: events.TaskThinkingPayload{Message: fmt.Sprintf("attempt %d/%d failed: %v", attempt, maxRetries, err)},
			})
			continue
		}
		if confidence >= threshold {
			rc.Store.Set(resultVar, content)
			rc.Store.Set(resultVar+"_confidence", confidence)
			return Result{ResultVariable: resultVar}, nil
		}
		rc.Emit(events.TaskThinking{
			Base: events.NewBase(events.TypeTaskThinking, rc.InstanceID, e.ID),
			Data: events.TaskThinkingPayload{Message: fmt.Sprintf("attempt %d/%d confidence %.2f below threshold %.2f, retrying", attempt, maxRetries, confidence, threshold)},
		})
	}

	if lastErr != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindLowConfidence, lastErr, "agenticTask %s: exhausted %d attempts", e.ID, maxRetries)
	}
	return Result{}, bpmnerr.New(bpmnerr.KindLowConfidence, "agenticTask %s: exhausted %d attempts without reaching confidence threshold %.2f", e.ID, maxRetries, threshold)
}

// runAgenticAttempt drives a single streaming completion attempt, returning
// the assembled content, parsed confidence, and whether the attempt was
// interrupted by cancellation.
func runAgenticAttempt(ctx context.Context, rc *RunContext, client aiclient.Client, req aiclient.Request) (content string, confidence float64, cancelled bool, err error) {
	stream, err := client.Stream(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			return "", 0, true, ctx.Err()
		}
		return "", 0, false, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "agenticTask %s: opening stream", rc.Element.ID)
	}
	defer stream.Close()

	messageID := uuid.NewString()
	rc.Emit(events.TextMessageStart{
		Base: events.NewBase(events.TypeTextMessageStart, rc.InstanceID, rc.Element.ID),
		Data: events.TextMessagePayload{MessageID: messageID, Role: "assistant"},
	})

	var assembled strings.Builder
	var pendingSentence strings.Builder

	for {
		select {
		case <-ctx.Done():
			rc.Emit(events.TextMessageEnd{
				Base: events.NewBase(events.TypeTextMessageEnd, rc.InstanceID, rc.Element.ID),
				Data: events.TextMessageEndPayload{
					MessageID:          messageID,
					Content:            assembled.String(),
					Cancelled:          true,
					CancellationReason: ctx.Err().Error(),
				},
			})
			return assembled.String(), 0, true, ctx.Err()
		default:
		}

		ev, ok, streamErr := stream.Next(ctx)
		if streamErr != nil {
			if ctx.Err() != nil {
				rc.Emit(events.TextMessageEnd{
					Base: events.NewBase(events.TypeTextMessageEnd, rc.InstanceID, rc.Element.ID),
					Data: events.TextMessageEndPayload{
						MessageID:          messageID,
						Content:            assembled.String(),
						Cancelled:          true,
						CancellationReason: ctx.Err().Error(),
					},
				})
				return assembled.String(), 0, true, ctx.Err()
			}
			return "", 0, false, bpmnerr.Wrap(bpmnerr.KindExecutorException, streamErr, "agenticTask %s: stream error", rc.Element.ID)
		}
		if !ok {
			break
		}

		switch ev.Kind {
		case aiclient.EventDelta:
			assembled.WriteString(ev.Delta)
			pendingSentence.WriteString(ev.Delta)
			rc.Emit(events.TextMessageContent{
				Base: events.NewBase(events.TypeTextMessageContent, rc.InstanceID, rc.Element.ID),
				Data: events.TextMessageContentPayload{MessageID: messageID, Delta: ev.Delta},
			})
			for crossesSentenceBoundary(pendingSentence.String()) {
				sentence := pendingSentence.String()
				rc.Emit(events.TextMessageChunk{
					Base: events.NewBase(events.TypeTextMessageChunk, rc.InstanceID, rc.Element.ID),
					Data: events.TextMessageChunkPayload{MessageID: messageID, Sentence: sentence},
				})
				pendingSentence.Reset()
			}

		case aiclient.EventToolCall:
			if ev.ToolCall == nil {
				continue
			}
			result, serverData, toolErr := invokeMCPTool(ctx, rc, ev.ToolCall)
			if toolErr != nil {
				rc.Emit(events.TaskToolEnd{
					Base: events.NewBase(events.TypeTaskToolEnd, rc.InstanceID, rc.Element.ID),
					Data: events.TaskToolEndPayload{ToolCallID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Error: toolErr.Error()},
				})
				continue
			}
			rc.Emit(events.TaskToolEnd{
				Base: events.NewBase(events.TypeTaskToolEnd, rc.InstanceID, rc.Element.ID),
				Data: events.TaskToolEndPayload{ToolCallID: ev.ToolCall.ID, Name: ev.ToolCall.Name, Result: result, ServerData: serverData},
			})
			rc.Emit(events.AgentToolUse{
				Base: events.NewBase(events.TypeAgentToolUse, rc.InstanceID, rc.Element.ID),
				Data: events.AgentToolUsePayload{Name: ev.ToolCall.Name},
			})

		case aiclient.EventDone:
			if pendingSentence.Len() > 0 {
				rc.Emit(events.TextMessageChunk{
					Base: events.NewBase(events.TypeTextMessageChunk, rc.InstanceID, rc.Element.ID),
					Data: events.TextMessageChunkPayload{MessageID: messageID, Sentence: pendingSentence.String()},
				})
				pendingSentence.Reset()
			}
			rc.Emit(events.TextMessageEnd{
				Base: events.NewBase(events.TypeTextMessageEnd, rc.InstanceID, rc.Element.ID),
				Data: events.TextMessageEndPayload{MessageID: messageID, Content: assembled.String()},
			})
			return assembled.String(), ev.Confidence, false, nil
		}
	}

	rc.Emit(events.TextMessageEnd{
		Base: events.NewBase(events.TypeTextMessageEnd, rc.InstanceID, rc.Element.ID),
		Data: events.TextMessageEndPayload{MessageID: messageID, Content: assembled.String()},
	})
	return assembled.String(), 1.0, false, nil
}

func crossesSentenceBoundary(s string) bool {
	for _, term := range sentenceTerminators {
		if strings.HasSuffix(s, term) {
			return true
		}
	}
	return false
}

func invokeMCPTool(ctx context.Context, rc *RunContext, call *aiclient.ToolCallRequest) (json.RawMessage, []mcp.ServerDataItem, error) {
	rc.Emit(events.TaskToolStart{
		Base: events.NewBase(events.TypeTaskToolStart, rc.InstanceID, rc.Element.ID),
		Data: events.TaskToolStartPayload{ToolCallID: call.ID, Name: call.Name, Args: call.Args},
	})

	if rc.Deps == nil || rc.Deps.MCP == nil {
		return nil, nil, bpmnerr.New(bpmnerr.KindExecutorException, "agenticTask %s: no MCP caller configured", rc.Element.ID)
	}

	suite, tool := splitToolName(call.Name)
	payload, err := json.Marshal(call.Args)
	if err != nil {
		return nil, nil, err
	}

	resp, err := rc.Deps.MCP.CallTool(ctx, mcp.CallRequest{Suite: suite, Tool: tool, Payload: payload})
	if err != nil {
		return nil, nil, err
	}
	return resp.Result, resp.ServerData, nil
}

func splitToolName(name string) (suite, tool string) {
	if idx := strings.IndexByte(name, '.'); idx >= 0 {
		return name[:idx], name[idx+1:]
	}
	return "", name
}

func confidenceThreshold(e *model.Element, rc *RunContext) float64 {
	if v, ok := model.Property[float64](e, "confidenceThreshold"); ok {
		return v
	}
	if rc.Deps != nil && rc.Deps.ConfidenceDefault > 0 {
		return rc.Deps.ConfidenceDefault
	}
	return 0.8
}

func maxRetries(e *model.Element, rc *RunContext) int {
	if n := e.IntProp("maxRetries"); n > 0 {
		return n
	}
	if rc.Deps != nil && rc.Deps.MaxRetriesDefault > 0 {
		return rc.Deps.MaxRetriesDefault
	}
	return 3
}

// agenticInput resolves the element's "input" property (a ${...}-templated
// string) against context; when the property is absent, it falls back to a
// JSON rendering of the full context snapshot so the model still receives
// the instance's working data.
func agenticInput(e *model.Element, rc *RunContext) string {
	if raw := e.StringProp("input"); raw != "" {
		return expr.Resolve(raw, rc.Store)
	}
	snapshot, err := json.Marshal(rc.Store.Snapshot())
	if err != nil {
		return ""
	}
	return string(snapshot)
}

func mcpToolSpecs(e *model.Element) []aiclient.ToolSpec {
	raw, ok := model.Property[[]any](e, "mcpTools")
	if !ok {
		return nil
	}
	specs := make([]aiclient.ToolSpec, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name, _ := m["name"].(string)
		desc, _ := m["description"].(string)
		schema, _ := m["schema"].(map[string]any)
		specs = append(specs, aiclient.ToolSpec{Name: name, Description: desc, Schema: schema})
	}
	return specs
}
