package expr

import (
	"strings"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
)

// Resolve replaces every ${path} occurrence in s with the stringified
// context value at that path, leaving non-template text untouched. Unlike
// Evaluate, the result is a plain string, not a boolean — this is the
// substitution send, receive, service and agentic tasks use to fill `${...}`
// fields (spec §4.5 sendTask row).
func Resolve(s string, store *bctx.Store) string {
	return templateRef.ReplaceAllStringFunc(s, func(m string) string {
		path := templateRef.FindStringSubmatch(m)[1]
		return store.GetString(strings.TrimSpace(path))
	})
}
