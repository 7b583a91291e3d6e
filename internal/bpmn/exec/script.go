package exec

import (
	"context"
	"math/rand"
	"time"

	"github.com/dop251/goja"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
)

// scriptBuiltins seeds every script VM with the curated safe utilities spec
// §4.5 calls for (random, date/time), grounded on the teacher pack's goja
// sandbox (r3e-network-service_layer/system/tee/script_engine.go), which
// seeds an isolated goja.Runtime per invocation with a similar builtins
// string rather than exposing the host Go runtime directly.
const scriptBuiltins = `
var datetime = {
	now: function() { return __now_rfc3339; },
	nowUnix: function() { return __now_unix; }
};
`

// executeScriptTask runs scriptTask's script in an isolated goja.Runtime
// (spec §4.5 scriptTask row): context is exposed read/write via a bound
// "context" object, and the result is assigned to resultVariable (or
// "result" if unset).
func executeScriptTask(ctx context.Context, rc *RunContext) (Result, error) {
	format := rc.Element.StringProp("scriptFormat")
	if format != "" && format != "javascript" && format != "js" {
		return Result{}, bpmnerr.New(bpmnerr.KindExecutorException, "scriptTask %s: unsupported scriptFormat %q (only javascript is supported)", rc.Element.ID, format)
	}
	script := rc.Element.StringProp("script")
	resultVar := rc.Element.StringProp("resultVariable")
	if resultVar == "" {
		resultVar = "result"
	}

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	default:
	}

	vm := goja.New()
	now := time.Now().UTC()
	if err := vm.Set("__now_rfc3339", now.Format(time.RFC3339)); err != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "scriptTask %s: seeding runtime", rc.Element.ID)
	}
	_ = vm.Set("__now_unix", now.Unix())
	_ = vm.Set("random", rand.Float64)

	contextObj := newScriptContextBinding(vm, rc.Store)
	if err := vm.Set("context", contextObj); err != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "scriptTask %s: binding context", rc.Element.ID)
	}

	if _, err := vm.RunString(scriptBuiltins); err != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "scriptTask %s: loading builtins", rc.Element.ID)
	}

	val, err := vm.RunString(script)
	if err != nil {
		return Result{}, bpmnerr.Wrap(bpmnerr.KindExecutorException, err, "scriptTask %s: script error", rc.Element.ID)
	}

	if val != nil && !goja.IsUndefined(val) && !goja.IsNull(val) {
		rc.Store.Set(resultVar, val.Export())
	}
	return Result{ResultVariable: resultVar}, nil
}

// newScriptContextBinding exposes the context store to the script VM as a
// plain object with get/set methods, avoiding direct exposure of the Go
// *bctx.Store value (and its mutex) to guest code.
func newScriptContextBinding(vm *goja.Runtime, store interface {
	Get(string) any
	Set(string, any)
}) map[string]any {
	return map[string]any{
		"get": func(path string) any { return store.Get(path) },
		"set": func(key string, value goja.Value) {
			store.Set(key, value.Export())
		},
	}
}
