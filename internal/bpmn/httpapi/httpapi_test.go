package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bpmnkit/engine/internal/bpmn/config"
	"github.com/bpmnkit/engine/internal/bpmn/engine"
	"github.com/bpmnkit/engine/internal/bpmn/httpapi"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

func testConfig() *config.Config {
	return &config.Config{
		DeadlockTimeout:      time.Second,
		CorrelationBufferTTL: time.Second,
		ObserverQueueSize:    32,
		MaxRetriesDefault:    3,
		ConfidenceDefault:    0.8,
	}
}

func addNumbersProcess() *model.Process {
	return &model.Process{
		ID: "add-numbers",
		Elements: []*model.Element{
			{ID: "start", Kind: model.KindStartEvent},
			{ID: "sum", Kind: model.KindScriptTask, Properties: map[string]any{
				"script":         "context.get('num1') + context.get('num2')",
				"resultVariable": "sum",
			}},
			{ID: "end", Kind: model.KindEndEvent},
		},
		Connections: []*model.Connection{
			{ID: "c1", From: "start", To: "sum"},
			{ID: "c2", From: "sum", To: "end"},
		},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.Options{Config: testConfig()})
	require.NoError(t, eng.RegisterProcess(addNumbersProcess()))
	srv := httptest.NewServer(httpapi.New(eng, nil).Router())
	t.Cleanup(srv.Close)
	return srv, eng
}

func TestHandleExecute_KnownProcess(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"processId":"add-numbers","context":{"num1":2,"num2":3}}`)
	resp, err := http.Post(srv.URL+"/workflows/execute", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	var out map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.NotEmpty(t, out["instanceId"])
}

func TestHandleExecute_UnknownProcessReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"processId":"does-not-exist"}`)
	resp, err := http.Post(srv.URL+"/workflows/execute", "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleStatus_RunsToCompletion(t *testing.T) {
	srv, eng := newTestServer(t)

	id, err := eng.Start("add-numbers", map[string]any{"num1": int64(4), "num2": int64(5)})
	require.NoError(t, err)

	var status string
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(srv.URL + "/workflows/" + id + "/status")
		require.NoError(t, err)
		var snap map[string]any
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
		resp.Body.Close()
		status, _ = snap["Status"].(string)
		if status != "" && status != "running" {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, "succeeded", status)
}

func TestHandleCancel_UnknownInstanceReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/workflows/bogus/cancel", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleEventsSSE_StreamsWorkflowCompleted(t *testing.T) {
	srv, eng := newTestServer(t)

	id, err := eng.Start("add-numbers", map[string]any{"num1": int64(1), "num2": int64(1)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/workflows/"+id+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	sawCompleted := false
	for !sawCompleted {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "event: workflow.completed") {
			sawCompleted = true
		}
	}
	assert.True(t, sawCompleted)
}

func TestHandleEventPing_DeliversPongToRealSSEStream(t *testing.T) {
	srv, eng := newTestServer(t)

	id, err := eng.Start("add-numbers", map[string]any{"num1": int64(1), "num2": int64(1)})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/workflows/"+id+"/events", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	pingResp, err := http.Post(srv.URL+"/workflows/"+id+"/events/ping", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	pingResp.Body.Close()
	assert.Equal(t, http.StatusNoContent, pingResp.StatusCode)

	reader := bufio.NewReader(resp.Body)
	sawPong := false
	for !sawPong {
		line, err := reader.ReadString('\n')
		if err != nil {
			break
		}
		if strings.HasPrefix(line, "event: pong") {
			sawPong = true
		}
	}
	assert.True(t, sawPong, "expected the pong to arrive on the caller's own SSE stream")
}

func TestHandleEventPing_UnknownInstanceReturnsBadRequest(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/workflows/bogus/events/ping", "application/json", strings.NewReader(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleWebhookApprove_PublishesDecision(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/webhooks/approve/invoiceApproval/order-123")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}
