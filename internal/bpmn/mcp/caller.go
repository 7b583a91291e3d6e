// Package mcp adapts Model Context Protocol tool servers to the Caller
// interface the agentic task executor invokes (spec §4.5.1). The interface
// and request/response shape are grounded on the teacher's runtime/mcp
// package. Three transports implement Caller: HTTPCaller (one-shot
// JSON-RPC POST), SSECaller (HTTP+SSE, grounded on runtime/mcp/ssecaller.go's
// event-parsing loop), and StdioCaller (JSON-RPC over a child process's
// stdin/stdout, authored from the MCP stdio convention since no teacher file
// covers it). RetryCaller wraps any of the three with exponential backoff.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Caller invokes a single MCP tool and returns its result. Implementations
// must be safe for concurrent use: the agentic executor may invoke several
// tools from different instances concurrently.
type Caller interface {
	CallTool(ctx context.Context, req CallRequest) (CallResponse, error)
}

// CallRequest describes one tool invocation.
type CallRequest struct {
	Suite   string
	Tool    string
	Payload json.RawMessage
}

// CallResponse carries the tool's result payload.
type CallResponse struct {
	Result json.RawMessage

	// ServerData carries server-only diagnostic payloads published alongside
	// the result (spec §3.4), never sent back to the model: trace evidence,
	// UI render cards, anything a tool executor wants retained without it
	// becoming part of the wire conversation. Grounded on
	// runtime/toolregistry/messages.go's ToolResultMessage.ServerData.
	ServerData []ServerDataItem
}

// ServerDataItem is one server-only diagnostic payload attached to a tool
// call result. Grounded on runtime/toolregistry/messages.go's
// ServerDataItem (Kind/Audience/Data).
type ServerDataItem struct {
	Kind     string          `json:"kind"`
	Audience string          `json:"audience"`
	Data     json.RawMessage `json:"data"`
}

// Error represents a JSON-RPC error returned by an MCP server.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("mcp: %s (code %d)", e.Message, e.Code)
}

// JSON-RPC canonical error codes (per the MCP/JSON-RPC spec).
const (
	JSONRPCParseError     = -32700
	JSONRPCInvalidRequest = -32600
	JSONRPCMethodNotFound = -32601
	JSONRPCInvalidParams  = -32602
	JSONRPCInternalError  = -32603
)

// HTTPCaller invokes MCP tools over the streamable-HTTP JSON-RPC transport:
// one POST per tools/call request against a fixed base URL.
type HTTPCaller struct {
	BaseURL string
	Client  *http.Client
}

// NewHTTPCaller constructs an HTTPCaller with a sane default timeout.
func NewHTTPCaller(baseURL string) *HTTPCaller {
	return &HTTPCaller{BaseURL: baseURL, Client: &http.Client{Timeout: 60 * time.Second}}
}

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int            `json:"id"`
	Method  string         `json:"method"`
	Params  toolCallParams `json:"params"`
}

type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

type rpcResponse struct {
	Result *struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		ServerData []ServerDataItem `json:"server_data,omitempty"`
	} `json:"result"`
	Error *Error `json:"error"`
}

// CallTool issues a tools/call JSON-RPC request and unwraps the first text
// content block as the result payload.
func (c *HTTPCaller) CallTool(ctx context.Context, req CallRequest) (CallResponse, error) {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "tools/call",
		Params:  toolCallParams{Name: req.Suite + "." + req.Tool, Arguments: req.Payload},
	})
	if err != nil {
		return CallResponse{}, fmt.Errorf("mcp: encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL, bytes.NewReader(body))
	if err != nil {
		return CallResponse{}, fmt.Errorf("mcp: building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(httpReq)
	if err != nil {
		return CallResponse{}, fmt.Errorf("mcp: calling %s.%s: %w", req.Suite, req.Tool, err)
	}
	defer resp.Body.Close()

	var rpc rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpc); err != nil {
		return CallResponse{}, fmt.Errorf("mcp: decoding response: %w", err)
	}
	if rpc.Error != nil {
		return CallResponse{}, rpc.Error
	}
	if rpc.Result == nil || len(rpc.Result.Content) == 0 {
		return CallResponse{}, nil
	}
	return CallResponse{Result: json.RawMessage(rpc.Result.Content[0].Text), ServerData: rpc.Result.ServerData}, nil
}
