// Package bctx implements the per-instance context store (spec §3.2, §4.2):
// a flat top-level map with dotted-path reads over nested values. Reads are
// total functions — a missing segment anywhere along the path yields ""
// rather than an error, so a free-form, YAML-authored context can be read
// without per-call error handling.
package bctx

import (
	"strings"
	"sync"
)

// Store is a thread-safe key/value context owned by a single workflow
// instance. Only one executor writes at a time per SPEC_FULL §5, but reads
// may race with writes from concurrent parallel-gateway branches, so the
// store itself is internally synchronized.
type Store struct {
	mu   sync.RWMutex
	data map[string]any
}

// New constructs a Store seeded with the given initial context. The input
// map is copied defensively; later mutation of the caller's map has no
// effect on the Store.
func New(initial map[string]any) *Store {
	s := &Store{data: make(map[string]any, len(initial))}
	for k, v := range initial {
		s.data[k] = v
	}
	return s
}

// Get resolves a dotted path (e.g. "a.b.c") against the top-level map,
// traversing nested map[string]any values. Returns "" if any segment is
// missing, the traversal hits a non-map value, or path is empty — it never
// errors.
func (s *Store) Get(path string) any {
	if path == "" {
		return ""
	}
	segments := strings.Split(path, ".")
	s.mu.RLock()
	defer s.mu.RUnlock()
	var cur any = s.data
	for _, seg := range segments {
		m, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		v, present := m[seg]
		if !present {
			return ""
		}
		cur = v
	}
	return cur
}

// GetString resolves a dotted path and stringifies the result for use in
// template/condition substitution. Missing values resolve to "".
func (s *Store) GetString(path string) string {
	return Stringify(s.Get(path))
}

// Set performs a flat top-level assignment: context[key] = value. Scripts
// and task results populate top-level keys by convention (spec §4.2).
func (s *Store) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]any)
	}
	s.data[key] = value
}

// Merge shallowly merges payload into the top-level map. Every inbound
// correlation payload (webhook body, user-task submission) is merged this
// way when a suspended executor resumes (spec §4.2).
func (s *Store) Merge(payload map[string]any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]any, len(payload))
	}
	for k, v := range payload {
		s.data[k] = v
	}
}

// Snapshot returns a shallow copy of the top-level context, suitable for
// presenting in an InstanceStatus or history record without risking
// concurrent-map-read races on later mutation.
func (s *Store) Snapshot() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]any, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}

// Keys returns the top-level key set in unspecified order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.data))
	for k := range s.data {
		out = append(out, k)
	}
	return out
}
