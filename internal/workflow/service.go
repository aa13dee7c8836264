package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"permitdesk.org/internal/audit"
	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/ids"
	"permitdesk.org/internal/obs"
)

// Store is the persistence boundary. ApplyTransition must perform the
// status compare-and-swap, the review record upsert and the audit append
// atomically, and return ErrVersionConflict on a stale version.
type Store interface {
	CreateApplication(ctx context.Context, app *Application) error
	GetApplication(ctx context.Context, id string) (Application, error)
	ListApplications(ctx context.Context, filter ListFilter) ([]Application, error)
	ReviewRecords(ctx context.Context, applicationID string) ([]ReviewRecord, error)
	ApplyTransition(ctx context.Context, commit TransitionCommit) (Application, error)
	AppendAudit(ctx context.Context, entry AuditEntry) error
	// LastTransition returns the audit entry of the most recent committed
	// transition for the application, if any. Denied attempts and create
	// entries are not transitions.
	LastTransition(ctx context.Context, applicationID string) (AuditEntry, bool, error)
}

// ListFilter narrows ListApplications.
type ListFilter struct {
	OwnerID  string
	Statuses []Status
	Limit    int
}

// TransitionCommit is the atomic unit handed to the store.
type TransitionCommit struct {
	ApplicationID   string
	ExpectedVersion int64
	NewStatus       Status
	AssignedTo      string
	Review          *ReviewRecord
	Audit           AuditEntry
	Now             time.Time
}

// Sink consumes committed transition events.
type Sink interface {
	OnTransition(ctx context.Context, event TransitionEvent) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(ctx context.Context, event TransitionEvent) error

func (f SinkFunc) OnTransition(ctx context.Context, event TransitionEvent) error {
	return f(ctx, event)
}

// TransitionInput carries the acting unit's assessment alongside the action.
type TransitionInput struct {
	Action           Action
	ExpectedVersion  int64
	Notes            string
	Recommendations  string
	RequiresEIA      bool
	RequiresWorkplan bool
	FollowUpDue      *time.Time
}

// Service validates and applies workflow transitions.
type Service struct {
	store Store
	sink  Sink
	now   func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithSink wires the consumer of transition events.
func WithSink(sink Sink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the workflow service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ParseApplicationType normalizes and validates an application type.
func ParseApplicationType(raw string) (ApplicationType, error) {
	t := ApplicationType(strings.TrimSpace(strings.ToLower(raw)))
	for _, known := range ApplicationTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("%w: unknown application type %q", ErrInvalidInput, raw)
}

// Create opens a new application in draft for the acting applicant.
func (s *Service) Create(ctx context.Context, actor identity.Identity, appType ApplicationType) (Application, error) {
	if actor.IsZero() {
		return Application{}, ErrUnauthorized
	}
	if _, err := ParseApplicationType(string(appType)); err != nil {
		return Application{}, err
	}
	now := s.now().UTC()
	app := Application{
		ID:        ids.New(),
		Type:      appType,
		Status:    StatusDraft,
		OwnerID:   actor.UserID,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.CreateApplication(ctx, &app); err != nil {
		return Application{}, err
	}
	entry := AuditEntry{
		ID:         ids.New(),
		OccurredAt: now,
		ActorID:    actor.UserID,
		Action:     AuditCreate,
		TargetType: "application",
		TargetID:   app.ID,
		IPAddress:  audit.ClientIPFromContext(ctx),
		Metadata:   map[string]string{"type": string(appType)},
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{"level": "error", "msg": "audit append failed", "application_id": app.ID, "error": err.Error()})
	}
	_ = audit.LogEvent(ctx, "workflow.application.create", map[string]any{
		"application_id": app.ID,
		"type":           string(appType),
	})
	return app, nil
}

// Get loads an application by id.
func (s *Service) Get(ctx context.Context, id string) (Application, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return Application{}, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	return s.store.GetApplication(ctx, id)
}

// List returns applications matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Application, error) {
	return s.store.ListApplications(ctx, filter)
}

// Reviews returns the per-unit review trail for an application.
func (s *Service) Reviews(ctx context.Context, applicationID string) ([]ReviewRecord, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return nil, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	return s.store.ReviewRecords(ctx, applicationID)
}

// Transition validates actor and edge, then applies the status change,
// review record and audit entry as one store commit. A stale version that
// is exactly the already-committed replay of this call is a no-op
// returning the current application; any other stale write fails with
// ErrVersionConflict.
func (s *Service) Transition(ctx context.Context, applicationID string, actor identity.Identity, in TransitionInput) (Application, error) {
	applicationID = strings.TrimSpace(applicationID)
	if applicationID == "" {
		return Application{}, fmt.Errorf("%w: application id is required", ErrInvalidInput)
	}
	if in.Action == "" {
		return Application{}, fmt.Errorf("%w: action is required", ErrInvalidInput)
	}

	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return Application{}, err
	}

	if app.Version != in.ExpectedVersion {
		if replayed, ok := s.detectReplay(ctx, app, actor, in); ok {
			return replayed, nil
		}
		return Application{}, ErrVersionConflict
	}

	if IsTerminal(app.Status) {
		return Application{}, ErrTerminalState
	}

	// Actor validation precedes the edge check: a wrong-unit approve is
	// Unauthorized, not InvalidTransition.
	if err := authorize(actor, app, in.Action); err != nil {
		// Denied attempts still hit the audit trail for security review.
		s.auditDenied(ctx, actor, app, in.Action)
		return Application{}, err
	}

	next, ok := Next(app.Status, in.Action)
	if !ok {
		return Application{}, fmt.Errorf("%w: no edge %s --%s-->", ErrInvalidTransition, app.Status, in.Action)
	}

	now := s.now().UTC()
	commit := TransitionCommit{
		ApplicationID:   app.ID,
		ExpectedVersion: in.ExpectedVersion,
		NewStatus:       next,
		AssignedTo:      app.AssignedTo,
		Review:          s.reviewFor(actor, app, in, now),
		Now:             now,
		Audit: AuditEntry{
			ID:         ids.New(),
			OccurredAt: now,
			ActorID:    actor.UserID,
			Action:     AuditUpdate,
			TargetType: "application",
			TargetID:   app.ID,
			IPAddress:  audit.ClientIPFromContext(ctx),
			Metadata: map[string]string{
				"action": string(in.Action),
				"from":   string(app.Status),
				"to":     string(next),
			},
		},
	}
	if actor.IsStaff() && (in.Action == ActionBeginAssessment || in.Action == ActionBeginCompliance) {
		commit.AssignedTo = actor.UserID
	}

	updated, err := s.store.ApplyTransition(ctx, commit)
	if err != nil {
		if errors.Is(err, ErrVersionConflict) {
			// Lost the race; the winner may have been our own duplicate.
			current, getErr := s.store.GetApplication(ctx, applicationID)
			if getErr == nil {
				if replayed, ok := s.detectReplay(ctx, current, actor, in); ok {
					return replayed, nil
				}
			}
			return Application{}, ErrVersionConflict
		}
		return Application{}, err
	}

	event := TransitionEvent{
		ApplicationID:   updated.ID,
		ApplicationType: updated.Type,
		OwnerID:         updated.OwnerID,
		From:            app.Status,
		To:              updated.Status,
		Action:          in.Action,
		Actor:           actor,
		OccurredAt:      now,
	}
	if s.sink != nil {
		if err := s.sink.OnTransition(ctx, event); err != nil {
			// Notifications are reconcilable via the query API; the
			// committed transition stands.
			obs.LogRequest(map[string]any{
				"level":          "error",
				"msg":            "transition sink failed",
				"application_id": updated.ID,
				"error":          err.Error(),
			})
		}
	}
	_ = audit.LogEvent(ctx, "workflow.transition", map[string]any{
		"application_id": updated.ID,
		"action":         string(in.Action),
		"from":           string(app.Status),
		"to":             string(updated.Status),
	})
	return updated, nil
}

// detectReplay recognizes a duplicate of an already-committed transition:
// the version advanced exactly once past what the caller read, and the
// last committed transition carries the same actor, the same action and
// the current status as its target. Anything else at a stale version is
// a genuine conflict.
func (s *Service) detectReplay(ctx context.Context, current Application, actor identity.Identity, in TransitionInput) (Application, bool) {
	if current.Version != in.ExpectedVersion+1 {
		return Application{}, false
	}
	last, ok, err := s.store.LastTransition(ctx, current.ID)
	if err != nil || !ok {
		return Application{}, false
	}
	if last.ActorID != actor.UserID {
		return Application{}, false
	}
	if last.Metadata["action"] != string(in.Action) || last.Metadata["to"] != string(current.Status) {
		return Application{}, false
	}
	return current, true
}

func (s *Service) reviewFor(actor identity.Identity, app Application, in TransitionInput, now time.Time) *ReviewRecord {
	if !actor.IsStaff() {
		return nil
	}
	status := assessmentStatus(in.Action)
	if status == "" {
		return nil
	}
	return &ReviewRecord{
		ApplicationID:       app.ID,
		Unit:                actor.StaffUnit,
		AssessedBy:          actor.UserID,
		AssessmentStatus:    status,
		Notes:               strings.TrimSpace(in.Notes),
		Recommendations:     strings.TrimSpace(in.Recommendations),
		RequiresEIA:         in.RequiresEIA,
		RequiresWorkplan:    in.RequiresWorkplan,
		ForwardedToNextUnit: in.Action == ActionForwardToCompliance || in.Action == ActionForwardToDirectorate,
		FollowUpDue:         in.FollowUpDue,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}

func (s *Service) auditDenied(ctx context.Context, actor identity.Identity, app Application, action Action) {
	now := s.now().UTC()
	entry := AuditEntry{
		ID:         ids.New(),
		OccurredAt: now,
		ActorID:    actor.UserID,
		Action:     AuditUpdate,
		TargetType: "application",
		TargetID:   app.ID,
		IPAddress:  audit.ClientIPFromContext(ctx),
		Metadata: map[string]string{
			"action": string(action),
			"from":   string(app.Status),
			"denied": "unauthorized",
		},
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		obs.LogRequest(map[string]any{"level": "error", "msg": "audit append failed", "application_id": app.ID, "error": err.Error()})
	}
	_ = audit.LogEvent(ctx, "workflow.transition.denied", map[string]any{
		"application_id": app.ID,
		"action":         string(action),
		"actor_id":       actor.UserID,
	})
}
