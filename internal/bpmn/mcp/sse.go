package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"
)

// SSECaller invokes MCP tools over the HTTP+SSE transport: a tools/call
// JSON-RPC request is POSTed and the result arrives as a "response" (or
// "error") server-sent event on the returned stream, rather than in the
// POST's own response body. Grounded on runtime/mcp/ssecaller.go's
// event-parsing loop, adapted to this package's CallRequest/CallResponse
// shape (the teacher's trace-header injection and Structured result field
// have no counterpart here and are dropped rather than stubbed).
type SSECaller struct {
	BaseURL string
	Client  *http.Client
	nextID  int64
}

// NewSSECaller constructs an SSECaller with a sane default timeout.
func NewSSECaller(baseURL string) *SSECaller {
	return &SSECaller{BaseURL: baseURL, Client: &http.Client{Timeout: 60 * time.Second}}
}

func (c *SSECaller) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      int(atomic.AddInt64(&c.nextID, 1)),
		Method:  "tools/call",
		Params:  toolCallParams{Name: req.Suite + "." + req.Tool, Arguments: req.Payload},
	})
	if err != nil {
		return CallResponse{}, fmt.Errorf("mcp: sse: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return CallResponse{}, fmt.Errorf("mcp: sse: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return CallResponse{}, fmt.Errorf("mcp: sse: calling %s.%s: %w", req.Suite, req.Tool, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return CallResponse{}, fmt.Errorf("mcp: sse: status %d: %s", resp.StatusCode, string(raw))
	}
	if ct := strings.ToLower(resp.Header.Get("Content-Type")); ct != "" && !strings.HasPrefix(ct, "text/event-stream") {
		raw, _ := io.ReadAll(resp.Body)
		return CallResponse{}, fmt.Errorf("mcp: sse: unexpected content type %q: %s", resp.Header.Get("Content-Type"), string(raw))
	}

	return readSSEResponse(bufio.NewReader(resp.Body))
}

// readSSEResponse drains SSE frames until a "response" or "error" event
// carries the tools/call result, ignoring keepalive comments and
// notification events along the way.
func readSSEResponse(reader *bufio.Reader) (CallResponse, error) {
	for {
		event, data, err := readSSEEvent(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return CallResponse{}, errors.New("mcp: sse: stream closed before response")
			}
			return CallResponse{}, err
		}
		switch event {
		case "response", "error":
			var rpc rpcResponse
			if err := json.Unmarshal(data, &rpc); err != nil {
				return CallResponse{}, fmt.Errorf("mcp: sse: decoding %s event: %w", event, err)
			}
			if rpc.Error != nil {
				return CallResponse{}, rpc.Error
			}
			if rpc.Result == nil || len(rpc.Result.Content) == 0 {
				return CallResponse{}, nil
			}
			return CallResponse{Result: json.RawMessage(rpc.Result.Content[0].Text), ServerData: rpc.Result.ServerData}, nil
		case "close":
			return CallResponse{}, errors.New("mcp: sse: stream closed without response")
		default:
			continue
		}
	}
}

// readSSEEvent reads one "event: ...\ndata: ...\n\n" frame, accumulating
// multi-line data fields the way the SSE spec requires.
func readSSEEvent(reader *bufio.Reader) (string, []byte, error) {
	var event string
	var data []byte
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return "", nil, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			if event == "" && len(data) == 0 {
				continue
			}
			return event, data, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		if after, ok := strings.CutPrefix(line, "event:"); ok {
			event = strings.TrimSpace(after)
			continue
		}
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			if len(data) > 0 {
				data = append(data, '\n')
			}
			data = append(data, strings.TrimPrefix(after, " ")...)
			continue
		}
	}
}
