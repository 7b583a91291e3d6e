package exec

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/correlation"
	"github.com/bpmnkit/engine/internal/bpmn/expr"
)

// serviceTask implementation kinds recognized by the executor (spec §4.5
// serviceTask row).
const (
	implExternal           = "External"
	implWebService         = "Web Service"
	implJavaClass          = "Java Class"
	implExpression         = "Expression"
	implDelegateExpression = "Delegate Expression"
)

var httpClient = &http.Client{Timeout: 30 * time.Second}

// executeServiceTask dispatches on the `implementation` property. External
// registers a waiter on the correlation bus under (topic, instance id) and
// suspends until a completion is published there, reusing C7 as the
// serviceTask's external-collaborator rendezvous exactly the way receiveTask
// reuses it for inbound messages; it does not itself send any topic
// message. Web Service issues an
// HTTP call. The Java Class / Expression / Delegate Expression variants name
// JVM/Camunda-specific mechanisms this engine has no runtime for; spec §4.5
// treats them as instant no-ops with a logged warning, which is what we do.
func executeServiceTask(ctx context.Context, rc *RunContext) (Result, error) {
	impl := rc.Element.StringProp("implementation")
	resultVar := rc.Element.StringProp("resultVariable")
	if resultVar == "" {
		resultVar = "result"
	}

	switch impl {
	case implExternal:
		return executeExternalServiceTask(ctx, rc, resultVar)
	case implWebService:
		return executeWebServiceTask(ctx, rc, resultVar)
	case implJavaClass, implExpression, implDelegateExpression, "":
		if rc.Deps != nil && rc.Deps.Log != nil {
			rc.Deps.Log.Warn(ctx, "serviceTask implementation has no runtime support, treating as instant no-op", "elementId", rc.Element.ID, "implementation", impl)
		}
		return Result{}, nil
	default:
		if rc.Deps != nil && rc.Deps.Log != nil {
			rc.Deps.Log.Warn(ctx, "unrecognized serviceTask implementation, treating as instant no-op", "elementId", rc.Element.ID, "implementation", impl)
		}
		return Result{}, nil
	}
}

func executeExternalServiceTask(ctx context.Context, rc *RunContext, resultVar string) (Result, error) {
	topic := rc.Element.StringProp("topic")
	if topic == "" {
		return Result{}, bpmnerr.New(bpmnerr.KindMalformedDefinition, "serviceTask %s: External implementation requires a topic", rc.Element.ID)
	}
	if rc.Deps == nil || rc.Deps.Correlation == nil {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "serviceTask %s: no correlation bus configured", rc.Element.ID)
	}

	key := correlation.Key{MessageRef: topic, CorrelationKey: rc.InstanceID}
	deadline := timeoutProp(rc.Element, 0)
	future, err := rc.Deps.Correlation.Wait(key, deadline)
	if err != nil {
		return Result{}, err
	}
	payload, err := future.Await(ctx)
	if err != nil {
		return Result{}, err
	}
	rc.Store.Merge(payload)
	rc.Store.Set(resultVar, payload)
	return Result{ResultVariable: resultVar}, nil
}

func executeWebServiceTask(ctx context.Context, rc *RunContext, resultVar string) (Result, error) {
	endpoint := expr.Resolve(rc.Element.StringProp("endpoint"), rc.Store)
	method := rc.Element.StringProp("method")
	if method == "" {
		method = http.MethodGet
	}
	if endpoint == "" {
		return Result{}, bpmnerr.New(bpmnerr.KindMalformedDefinition, "serviceTask %s: Web Service implementation requires an endpoint", rc.Element.ID)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(method), endpoint, nil)
	if err != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "serviceTask %s: building request", rc.Element.ID)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "serviceTask %s: calling %s", rc.Element.ID, endpoint)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "serviceTask %s: reading response", rc.Element.ID)
	}
	if resp.StatusCode >= 400 {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "serviceTask %s: %s returned status %d", rc.Element.ID, endpoint, resp.StatusCode)
	}

	rc.Store.Set(resultVar, string(body))
	return Result{ResultVariable: resultVar}, nil
}
