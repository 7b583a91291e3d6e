package bctx

import (
	"fmt"
	"strconv"
)

// Stringify renders a context value the way template substitution and
// condition evaluation need: strings pass through unchanged, numbers use
// their canonical decimal form (no trailing zeros for integral floats), and
// everything else (including nil) falls back to fmt.Sprint / "" for nil.
func Stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'g', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}
