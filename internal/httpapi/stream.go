package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/notify"
)

// Stream handles Server-Sent Events for notification delivery. The
// scope is resolved exactly like the inbox endpoints: personal by
// default, a unit queue with ?unit=.
func (a *API) Stream(w http.ResponseWriter, r *http.Request) {
	if a.broker == nil {
		http.Error(w, "streaming disabled", http.StatusServiceUnavailable)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	scope, err := scopeFromRequest(r, actor)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if !canSubscribe(actor, scope) {
		writeError(w, r, http.StatusForbidden, "not allowed to subscribe to this scope")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := a.broker.Subscribe(ctx, scope)

	// Send an initial comment to establish the stream
	_, _ = w.Write([]byte(": stream started\n\n"))
	flusher.Flush()

	for n := range ch {
		payload, err := json.Marshal(n)
		if err != nil {
			continue
		}
		_, _ = w.Write([]byte("data: "))
		_, _ = w.Write(payload)
		_, _ = w.Write([]byte("\n\n"))
		flusher.Flush()
	}
}

// canSubscribe mirrors the inbox access rule: own personal scope, own
// unit's queue, or super admin.
func canSubscribe(actor identity.Identity, scope notify.Scope) bool {
	if actor.IsSuperAdmin() {
		return true
	}
	if scope.UserID != "" {
		return actor.UserID == scope.UserID
	}
	return actor.IsStaff() && actor.StaffUnit == scope.Unit
}
