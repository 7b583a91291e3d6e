package aiclient

import (
	"regexp"
	"strconv"
)

// confidenceTagRef matches a structured trailing "<confidence>0.87</confidence>"
// tag (spec §4.5.1.d).
var confidenceTagRef = regexp.MustCompile(`(?i)<confidence>\s*(-?[0-9]*\.?[0-9]+)\s*</confidence>`)

// confidenceJSONRef matches a JSON trailer of the form {"confidence":0.87}
// (spec §4.5.1.d), independent of surrounding object keys or whitespace.
var confidenceJSONRef = regexp.MustCompile(`(?i)"confidence"\s*:\s*([0-9]*\.?[0-9]+)`)

// confidenceRef matches a trailing "confidence: 0.87" (or "Confidence=87%")
// annotation models are prompted to emit at the end of a completion (spec
// §4.5.1.d). Checked last since it's the loosest pattern, and should not
// shadow the two structured formats above when they're present.
var confidenceRef = regexp.MustCompile(`(?i)confidence\s*[:=]\s*([0-9]*\.?[0-9]+)\s*(%)?`)

// extractConfidence parses a trailing confidence annotation out of content,
// recognizing the `<confidence>` tag, the JSON trailer, and the bare
// "confidence: N" annotation, in that priority order. Returns 1.0 when none
// is present, matching the spec's "if absent, assume 1.0" rule.
func extractConfidence(content string) float64 {
	if m := confidenceTagRef.FindStringSubmatch(content); m != nil {
		return parseConfidence(m[1], false)
	}
	if m := confidenceJSONRef.FindStringSubmatch(content); m != nil {
		return parseConfidence(m[1], false)
	}
	if m := confidenceRef.FindStringSubmatch(content); m != nil {
		return parseConfidence(m[1], m[2] == "%")
	}
	return 1.0
}

// parseConfidence converts a matched numeric string to a [0,1] confidence
// value, dividing by 100 when isPercent is set.
func parseConfidence(raw string, isPercent bool) float64 {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 1.0
	}
	if isPercent {
		v /= 100
	}
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
