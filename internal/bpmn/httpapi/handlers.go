package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/bpmnkit/engine/internal/bpmn/bpmnerr"
	"github.com/bpmnkit/engine/internal/bpmn/model"
)

// statusForKind maps the engine's error taxonomy onto HTTP status codes for
// every handler's error path.
func statusForKind(k bpmnerr.Kind) int {
	switch k {
	case bpmnerr.KindMalformedDefinition, bpmnerr.KindNoMatchingPath, bpmnerr.KindConditionEvaluation:
		return http.StatusBadRequest
	case bpmnerr.KindDuplicateWaiter:
		return http.StatusConflict
	case bpmnerr.KindReceiveTimeout, bpmnerr.KindLowConfidence, bpmnerr.KindDeadlock:
		return http.StatusUnprocessableEntity
	case bpmnerr.KindCancelled:
		return http.StatusGone
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := bpmnerr.Kind("")
	if be, ok := err.(*bpmnerr.Error); ok {
		status = statusForKind(be.Kind)
		kind = be.Kind
	}
	writeJSON(w, status, map[string]any{
		"error": err.Error(),
		"kind":  string(kind),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// executeRequest is the body of POST /workflows/execute (spec §6.3): either
// processId references an already-registered definition, or definition
// inlines one as a JSON object with the YAML structure, to be loaded and
// registered on the fly. The body is decoded as JSON only; YAML text is not
// accepted.
type executeRequest struct {
	ProcessID  string         `json:"processId"`
	Definition map[string]any `json:"definition"`
	Context    map[string]any `json:"context"`
}

type executeResponse struct {
	InstanceID string `json:"instanceId"`
	ProcessID  string `json:"processId"`
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, bpmnerr.Wrap(bpmnerr.KindMalformedDefinition, err, "invalid request body"))
		return
	}

	processID := req.ProcessID
	if req.Definition != nil {
		proc, err := model.LoadMap(req.Definition)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := s.engine.RegisterProcess(proc); err != nil {
			writeError(w, err)
			return
		}
		processID = proc.ID
	}
	if processID == "" {
		writeError(w, bpmnerr.New(bpmnerr.KindMalformedDefinition, "processId or definition is required"))
		return
	}

	instanceID, err := s.engine.Start(processID, req.Context)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, executeResponse{InstanceID: instanceID, ProcessID: processID})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.engine.Status(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var body struct {
		ElementID string `json:"elementId"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	if err := s.engine.Cancel(id, body.ElementID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	processID := r.URL.Query().Get("processId")
	writeJSON(w, http.StatusOK, s.engine.ListInstances(processID))
}
