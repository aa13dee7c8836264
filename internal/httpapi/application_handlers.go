package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/obs"
	"permitdesk.org/internal/policy"
	"permitdesk.org/internal/workflow"
)

type createApplicationRequest struct {
	Type string `json:"type"`
}

type transitionRequest struct {
	Action           string     `json:"action"`
	ExpectedVersion  int64      `json:"expected_version"`
	Notes            string     `json:"notes,omitempty"`
	Recommendations  string     `json:"recommendations,omitempty"`
	RequiresEIA      bool       `json:"requires_eia,omitempty"`
	RequiresWorkplan bool       `json:"requires_workplan,omitempty"`
	FollowUpDue      *time.Time `json:"follow_up_due,omitempty"`
}

type listApplicationsResponse struct {
	Items []workflow.Application `json:"items"`
	AsOf  time.Time              `json:"as_of"`
}

func (a *API) handleApplicationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createApplication(w, r)
	case http.MethodGet:
		a.listApplications(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleApplicationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/applications/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	if strings.HasSuffix(path, "/transition") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/transition"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "application not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.transitionApplication(w, r, id)
		return
	}

	if strings.HasSuffix(path, "/reviews") {
		id := strings.TrimSuffix(strings.TrimSuffix(path, "/reviews"), "/")
		if id == "" {
			writeError(w, r, http.StatusNotFound, "application not found")
			return
		}
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		a.listReviews(w, r, id)
		return
	}

	if strings.Contains(path, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.getApplication(w, r, path)
	default:
		methodNotAllowed(w, r, http.MethodGet)
	}
}

func (a *API) createApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	if !policy.Authorize(actor, policy.Applicant) {
		writeError(w, r, http.StatusForbidden, "only applicants open applications")
		return
	}

	var req createApplicationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	appType, err := workflow.ParseApplicationType(req.Type)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	app, err := a.workflow.Create(r.Context(), actor, appType)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}

	w.Header().Set("Location", "/v1/applications/"+app.ID)
	writeJSON(w, http.StatusCreated, app)
}

func (a *API) getApplication(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	app, err := a.workflow.Get(r.Context(), id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	if !canViewApplication(actor, app) {
		writeError(w, r, http.StatusForbidden, "not allowed to view this application")
		return
	}
	writeJSON(w, http.StatusOK, app)
}

func (a *API) listApplications(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	limit, err := parsePositiveInt(r.URL.Query().Get("limit"), 100, 1, 1000)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	filter := workflow.ListFilter{
		OwnerID: strings.TrimSpace(r.URL.Query().Get("owner_id")),
		Limit:   limit,
	}
	for _, raw := range r.URL.Query()["status"] {
		raw = strings.TrimSpace(raw)
		if raw != "" {
			filter.Statuses = append(filter.Statuses, workflow.Status(raw))
		}
	}

	// Applicants only ever see their own records, whatever they ask for.
	if !policy.Authorize(actor, policy.AnyStaff) {
		filter.OwnerID = actor.UserID
	}

	items, err := a.workflow.List(r.Context(), filter)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listApplicationsResponse{
		Items: items,
		AsOf:  time.Now().UTC(),
	})
}

func (a *API) listReviews(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}
	// Review records carry internal recommendations; staff only.
	if !policy.Authorize(actor, policy.AnyStaff) {
		writeError(w, r, http.StatusForbidden, "review records are staff only")
		return
	}
	records, err := a.workflow.Reviews(r.Context(), id)
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": records})
}

func (a *API) transitionApplication(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := actorFrom(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Action) == "" {
		writeError(w, r, http.StatusBadRequest, "action is required")
		return
	}
	if req.ExpectedVersion < 1 {
		writeError(w, r, http.StatusBadRequest, "expected_version must be >= 1")
		return
	}

	updated, err := a.workflow.Transition(r.Context(), id, actor, workflow.TransitionInput{
		Action:           workflow.Action(strings.TrimSpace(req.Action)),
		ExpectedVersion:  req.ExpectedVersion,
		Notes:            req.Notes,
		Recommendations:  req.Recommendations,
		RequiresEIA:      req.RequiresEIA,
		RequiresWorkplan: req.RequiresWorkplan,
		FollowUpDue:      req.FollowUpDue,
	})
	if err != nil {
		handleWorkflowError(w, r, err)
		return
	}

	obs.ObserveTransition(req.Action, string(updated.Status))
	writeJSON(w, http.StatusOK, updated)
}

func canViewApplication(actor identity.Identity, app workflow.Application) bool {
	if actor.IsSuperAdmin() || actor.UserID == app.OwnerID {
		return true
	}
	return policy.Authorize(actor, policy.AnyStaff)
}

func handleWorkflowError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, workflow.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, workflow.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, workflow.ErrUnauthorized):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, workflow.ErrVersionConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrTerminalState):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, workflow.ErrInvalidTransition):
		writeError(w, r, http.StatusUnprocessableEntity, err.Error())
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
