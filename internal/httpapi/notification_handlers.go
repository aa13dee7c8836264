package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/notify"
)

type listNotificationsResponse struct {
	Items []notify.Notification `json:"items"`
	AsOf  time.Time             `json:"as_of"`
}

// scopeFromRequest resolves the inbox the caller addresses. Without a
// unit parameter the caller's personal inbox is assumed; access to the
// scope itself is enforced by the notify service.
func scopeFromRequest(r *http.Request, actor identity.Identity) (notify.Scope, error) {
	rawUnit := strings.TrimSpace(r.URL.Query().Get("unit"))
	if rawUnit == "" {
		return notify.UserScope(actor.UserID), nil
	}
	unit, err := identity.ParseStaffUnit(rawUnit)
	if err != nil {
		return notify.Scope{}, err
	}
	return notify.UnitScope(unit), nil
}

func (a *API) handleNotificationsCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
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
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 500)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	items, err := a.notify.List(r.Context(), scope, actor, unreadOnly, limit)
	if err != nil {
		handleNotifyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listNotificationsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) handleUnreadCount(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
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
	count, err := a.notify.UnreadCount(r.Context(), scope, actor)
	if err != nil {
		handleNotifyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"unread": count})
}

func (a *API) handleReadAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
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
	flipped, err := a.notify.MarkAllRead(r.Context(), scope, actor)
	if err != nil {
		handleNotifyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"marked_read": flipped})
}

func (a *API) handleNotificationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/notifications/")
	if !strings.HasSuffix(path, "/read") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	id := strings.TrimSuffix(strings.TrimSuffix(path, "/read"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, r, http.StatusNotFound, "notification not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if err := a.notify.MarkRead(r.Context(), id, actor); err != nil {
		handleNotifyError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "read"})
}

func handleNotifyError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, notify.ErrInvalidScope):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, notify.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, notify.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
