package mcp_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/mcp"
)

func TestHTTPCaller_CallTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"result":{"content":[{"type":"text","text":"42"}]}}`)
	}))
	defer srv.Close()

	caller := mcp.NewHTTPCaller(srv.URL)
	resp, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "math", Tool: "add"})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("42"), resp.Result)
}

func TestHTTPCaller_JSONRPCError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"jsonrpc":"2.0","id":1,"error":{"code":-32602,"message":"bad params"}}`)
	}))
	defer srv.Close()

	caller := mcp.NewHTTPCaller(srv.URL)
	_, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "math", Tool: "add"})
	require.Error(t, err)
	var rpcErr *mcp.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, mcp.JSONRPCInvalidParams, rpcErr.Code)
}

func TestSSECaller_CallTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: response\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"ok\"}]}}\n\n")
	}))
	defer srv.Close()

	caller := mcp.NewSSECaller(srv.URL)
	resp, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "files", Tool: "read"})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("ok"), resp.Result)
}

func TestSSECaller_ErrorEvent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event: error\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"error\":{\"code\":-32601,\"message\":\"no such tool\"}}\n\n")
	}))
	defer srv.Close()

	caller := mcp.NewSSECaller(srv.URL)
	_, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "files", Tool: "read"})
	require.Error(t, err)
	var rpcErr *mcp.Error
	require.True(t, errors.As(err, &rpcErr))
	assert.Equal(t, mcp.JSONRPCMethodNotFound, rpcErr.Code)
}

func TestSSECaller_IgnoresKeepaliveComments(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "event: response\ndata: {\"jsonrpc\":\"2.0\",\"id\":1,\"result\":{\"content\":[{\"type\":\"text\",\"text\":\"ok\"}]}}\n\n")
	}))
	defer srv.Close()

	caller := mcp.NewSSECaller(srv.URL)
	resp, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "files", Tool: "read"})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage("ok"), resp.Result)
}

type flakyCaller struct {
	failures int
	calls    int
}

func (f *flakyCaller) CallTool(ctx context.Context, req mcp.CallRequest) (mcp.CallResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return mcp.CallResponse{}, &mcp.Error{Code: mcp.JSONRPCInternalError, Message: "transient"}
	}
	return mcp.CallResponse{Result: json.RawMessage(`"ok"`)}, nil
}

func TestRetryCaller_RetriesTransientFailures(t *testing.T) {
	inner := &flakyCaller{failures: 2}
	caller := mcp.NewRetryCaller(inner, 3, time.Millisecond, 10*time.Millisecond)

	resp, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "s", Tool: "t"})
	require.NoError(t, err)
	assert.Equal(t, json.RawMessage(`"ok"`), resp.Result)
	assert.Equal(t, 3, inner.calls)
}

func TestRetryCaller_GivesUpAfterMaxRetries(t *testing.T) {
	inner := &flakyCaller{failures: 99}
	caller := mcp.NewRetryCaller(inner, 2, time.Millisecond, 10*time.Millisecond)

	_, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "s", Tool: "t"})
	require.Error(t, err)
	assert.Equal(t, 3, inner.calls) // initial attempt + 2 retries
}

type invalidParamsCaller struct{ calls int }

func (c *invalidParamsCaller) CallTool(ctx context.Context, req mcp.CallRequest) (mcp.CallResponse, error) {
	c.calls++
	return mcp.CallResponse{}, &mcp.Error{Code: mcp.JSONRPCInvalidParams, Message: "bad params"}
}

func TestRetryCaller_DoesNotRetryNonTransientErrors(t *testing.T) {
	inner := &invalidParamsCaller{}
	caller := mcp.NewRetryCaller(inner, 3, time.Millisecond, 10*time.Millisecond)

	_, err := caller.CallTool(context.Background(), mcp.CallRequest{Suite: "s", Tool: "t"})
	require.Error(t, err)
	assert.Equal(t, 1, inner.calls)
}
