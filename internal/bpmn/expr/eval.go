// Package expr implements the restricted condition-expression evaluator
// (spec §4.3). Conditions are ${path}-templated strings evaluated against a
// bctx.Store; the grammar supports literals, context-bound identifiers, and
// the operators == != > >= < <= and or not + - * / with parenthesization.
//
// A fallback rule preserves compatibility with label-only flows: a string
// with no ${...} substitution and no recognized operator is treated as a
// boolean based on a small keyword allowlist (spec §4.3).
package expr

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
)

var templateRef = regexp.MustCompile(`\$\{([^}]+)\}`)

// truthyLabels are case-insensitively treated as true by the fallback rule.
var truthyLabels = map[string]bool{
	"approved": true,
	"yes":      true,
	"true":     true,
	"1":        true,
}

// Evaluate resolves ${path} templates in raw against store, then evaluates
// the restricted boolean expression grammar. It never returns an error for
// empty input; callers (the gateway evaluator) must not call Evaluate on an
// empty condition — an empty condition means "default"/"unconditional" and
// is handled upstream without invoking the evaluator at all.
func Evaluate(raw string, store *bctx.Store) (bool, error) {
	trimmed := strings.TrimSpace(raw)
	hasTemplate := templateRef.MatchString(trimmed)
	substituted := substituteTemplates(trimmed, store)

	if !hasTemplate && !containsOperator(substituted) {
		return truthyLabels[strings.ToLower(strings.TrimSpace(trimmed))], nil
	}

	p := newParser(substituted, store)
	val, err := p.parseExpr()
	if err != nil {
		return false, bpmnerr.Wrap(bpmnerr.KindConditionEvaluation, err, "evaluating condition %q", raw)
	}
	if !p.atEnd() {
		return false, bpmnerr.New(bpmnerr.KindConditionEvaluation, "unexpected trailing input evaluating condition %q", raw)
	}
	return truthy(val), nil
}

// substituteTemplates replaces every ${path} occurrence with a
// grammar-safe literal form of the resolved context value: strings are
// quoted so they parse as string literals, everything else is stringified
// as-is (numbers, booleans).
func substituteTemplates(s string, store *bctx.Store) string {
	return templateRef.ReplaceAllStringFunc(s, func(m string) string {
		path := templateRef.FindStringSubmatch(m)[1]
		v := store.Get(strings.TrimSpace(path))
		return literalFor(v)
	})
}

func literalFor(v any) string {
	switch t := v.(type) {
	case nil:
		return `""`
	case string:
		return strconv.Quote(t)
	case bool:
		return strconv.FormatBool(t)
	default:
		return bctx.Stringify(t)
	}
}

var operatorTokens = []string{"==", "!=", ">=", "<=", ">", "<", "and", "or", "not", "+", "-", "*", "/", "(", ")"}

func containsOperator(s string) bool {
	for _, op := range operatorTokens {
		if isWordOp(op) {
			if containsWord(s, op) {
				return true
			}
			continue
		}
		if strings.Contains(s, op) {
			return true
		}
	}
	return false
}

func isWordOp(op string) bool {
	switch op {
	case "and", "or", "not":
		return true
	default:
		return false
	}
}

func containsWord(s, word string) bool {
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
	return re.MatchString(s)
}

func truthy(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case string:
		return t != ""
	case nil:
		return false
	default:
		return fmt.Sprint(t) != ""
	}
}
