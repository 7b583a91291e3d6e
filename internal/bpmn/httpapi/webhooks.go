package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// handleWebhook implements spec §6.2's email-approval links: a GET request
// (so the decision can be driven by clicking a link in an email client,
// which cannot issue POST) publishes {decision, method, timestamp} to the
// correlation bus keyed by (messageRef, correlationKey) and returns a
// terminal confirmation page.
func (s *Server) handleWebhook(decision string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		messageRef := chi.URLParam(r, "messageRef")
		correlationKey := chi.URLParam(r, "correlationKey")

		s.engine.PublishMessage(messageRef, correlationKey, map[string]any{
			"decision":  decision,
			"method":    "email",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "<html><body><p>Recorded decision: %s</p></body></html>", decision)
	}
}
