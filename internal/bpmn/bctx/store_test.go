package bctx_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bpmnkit/engine/internal/bpmn/bctx"
)

func TestStore_DottedGet(t *testing.T) {
	s := bctx.New(map[string]any{
		"a": map[string]any{
			"b": map[string]any{
				"c": "deep",
			},
		},
		"num1": 7,
	})
	assert.Equal(t, "deep", s.Get("a.b.c"))
	assert.Equal(t, "", s.Get("a.missing.c"), "missing segment resolves to empty string, never an error")
	assert.Equal(t, "", s.Get("num1.nested"), "traversing into a non-map value resolves to empty string")
	assert.Equal(t, 7, s.Get("num1"))
}

func TestStore_SetAndMerge(t *testing.T) {
	s := bctx.New(nil)
	s.Set("x", 1)
	s.Merge(map[string]any{"y": "z", "x": 2})
	snap := s.Snapshot()
	assert.Equal(t, 2, snap["x"])
	assert.Equal(t, "z", snap["y"])
}

func TestStore_SnapshotIsCopy(t *testing.T) {
	s := bctx.New(map[string]any{"a": 1})
	snap := s.Snapshot()
	snap["a"] = 2
	assert.Equal(t, 1, s.Get("a"))
}
