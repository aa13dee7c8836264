package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"permitdesk.org/internal/identity"
)

// fakeStore applies commits against a single in-memory map, enforcing
// the same version compare-and-swap contract as the real stores.
type fakeStore struct {
	apps    map[string]Application
	reviews map[string][]ReviewRecord
	audits  []AuditEntry
	commits int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		apps:    make(map[string]Application),
		reviews: make(map[string][]ReviewRecord),
	}
}

func (f *fakeStore) CreateApplication(ctx context.Context, app *Application) error {
	f.apps[app.ID] = *app
	return nil
}

func (f *fakeStore) GetApplication(ctx context.Context, id string) (Application, error) {
	app, ok := f.apps[id]
	if !ok {
		return Application{}, ErrNotFound
	}
	return app, nil
}

func (f *fakeStore) ListApplications(ctx context.Context, filter ListFilter) ([]Application, error) {
	var res []Application
	for _, app := range f.apps {
		if filter.OwnerID != "" && app.OwnerID != filter.OwnerID {
			continue
		}
		res = append(res, app)
	}
	return res, nil
}

func (f *fakeStore) ReviewRecords(ctx context.Context, applicationID string) ([]ReviewRecord, error) {
	return f.reviews[applicationID], nil
}

func (f *fakeStore) ApplyTransition(ctx context.Context, commit TransitionCommit) (Application, error) {
	app, ok := f.apps[commit.ApplicationID]
	if !ok {
		return Application{}, ErrNotFound
	}
	if app.Version != commit.ExpectedVersion {
		return Application{}, ErrVersionConflict
	}
	app.Status = commit.NewStatus
	app.Version++
	app.AssignedTo = commit.AssignedTo
	app.UpdatedAt = commit.Now
	f.apps[app.ID] = app
	if commit.Review != nil {
		f.reviews[app.ID] = append(f.reviews[app.ID], *commit.Review)
	}
	f.audits = append(f.audits, commit.Audit)
	f.commits++
	return app, nil
}

func (f *fakeStore) AppendAudit(ctx context.Context, entry AuditEntry) error {
	f.audits = append(f.audits, entry)
	return nil
}

func (f *fakeStore) LastTransition(ctx context.Context, applicationID string) (AuditEntry, bool, error) {
	for i := len(f.audits) - 1; i >= 0; i-- {
		entry := f.audits[i]
		if entry.TargetID != applicationID || entry.Action != AuditUpdate || entry.Metadata["to"] == "" {
			continue
		}
		return entry, true, nil
	}
	return AuditEntry{}, false, nil
}

func applicant() identity.Identity {
	return identity.Identity{UserID: "user-1", UserType: identity.UserTypePublic}
}

func seedApp(f *fakeStore, status Status, version int64) Application {
	app := Application{
		ID:        "app-1",
		Type:      TypeNew,
		Status:    status,
		OwnerID:   "user-1",
		Version:   version,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	f.apps[app.ID] = app
	return app
}

func TestCreateOpensDraft(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)

	app, err := svc.Create(t.Context(), applicant(), TypeRenewal)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if app.Status != StatusDraft || app.Version != 1 || app.OwnerID != "user-1" {
		t.Fatalf("unexpected application: %+v", app)
	}
	if len(f.audits) != 1 || f.audits[0].Action != AuditCreate {
		t.Fatalf("expected CREATE audit entry, got %+v", f.audits)
	}
}

func TestCreateRejectsUnknownType(t *testing.T) {
	svc := NewService(newFakeStore())
	if _, err := svc.Create(t.Context(), applicant(), ApplicationType("lease")); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestTransitionRecordsReviewAndEmitsEvent(t *testing.T) {
	f := newFakeStore()
	var events []TransitionEvent
	svc := NewService(f, WithSink(SinkFunc(func(ctx context.Context, e TransitionEvent) error {
		events = append(events, e)
		return nil
	})))
	seedApp(f, StatusSubmitted, 2)

	officer := staff(identity.UnitRegistry, identity.PositionOfficer)
	updated, err := svc.Transition(t.Context(), "app-1", officer, TransitionInput{
		Action:          ActionAssessPass,
		ExpectedVersion: 2,
		Notes:           "complete submission",
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if updated.Status != StatusPassedInitialReview || updated.Version != 3 {
		t.Fatalf("unexpected application: %+v", updated)
	}

	reviews := f.reviews["app-1"]
	if len(reviews) != 1 {
		t.Fatalf("expected one review record, got %d", len(reviews))
	}
	r := reviews[0]
	if r.Unit != identity.UnitRegistry || r.AssessmentStatus != "passed" || r.Notes != "complete submission" {
		t.Fatalf("unexpected review record: %+v", r)
	}

	if len(events) != 1 {
		t.Fatalf("expected one event, got %d", len(events))
	}
	e := events[0]
	if e.From != StatusSubmitted || e.To != StatusPassedInitialReview || e.Action != ActionAssessPass {
		t.Fatalf("unexpected event: %+v", e)
	}
	if e.OwnerID != "user-1" || e.ApplicationType != TypeNew {
		t.Fatalf("event must carry owner and type: %+v", e)
	}
}

func TestTransitionAssignsOnBeginAssessment(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusSubmitted, 1)

	officer := staff(identity.UnitRegistry, identity.PositionOfficer)
	updated, err := svc.Transition(t.Context(), "app-1", officer, TransitionInput{
		Action:          ActionBeginAssessment,
		ExpectedVersion: 1,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if updated.AssignedTo != officer.UserID {
		t.Fatalf("begin_assessment must assign the actor, got %q", updated.AssignedTo)
	}
}

func TestTransitionUnauthorizedLeavesStateUntouched(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusComplianceReview, 4)

	outsider := staff(identity.UnitRevenue, identity.PositionOfficer)
	_, err := svc.Transition(t.Context(), "app-1", outsider, TransitionInput{
		Action:          ActionForwardToDirectorate,
		ExpectedVersion: 4,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	app := f.apps["app-1"]
	if app.Status != StatusComplianceReview || app.Version != 4 {
		t.Fatalf("denied attempt must not mutate: %+v", app)
	}
	if len(f.audits) != 1 || f.audits[0].Metadata["denied"] != "unauthorized" {
		t.Fatalf("denied attempt must be audited: %+v", f.audits)
	}
}

func TestTransitionInvalidEdge(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusSubmitted, 1)

	// The actor owns the stage, so the missing edge is what fails.
	officer := staff(identity.UnitRegistry, identity.PositionOfficer)
	_, err := svc.Transition(t.Context(), "app-1", officer, TransitionInput{
		Action:          ActionForwardToDirectorate,
		ExpectedVersion: 1,
	})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestTransitionWrongUnitApproveIsUnauthorized(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusComplianceReview, 4)

	// approve is not even a legal edge here, but actor validation runs
	// first: the caller learns they may not act, not what edges exist.
	outsider := staff(identity.UnitRevenue, identity.PositionOfficer)
	_, err := svc.Transition(t.Context(), "app-1", outsider, TransitionInput{
		Action:          ActionApprove,
		ExpectedVersion: 4,
	})
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if app := f.apps["app-1"]; app.Status != StatusComplianceReview || app.Version != 4 {
		t.Fatalf("denied attempt must not mutate: %+v", app)
	}
	if len(f.audits) != 1 || f.audits[0].Metadata["denied"] != "unauthorized" {
		t.Fatalf("denied attempt must be audited: %+v", f.audits)
	}
}

func TestTransitionTerminalState(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusRejected, 5)

	_, err := svc.Transition(t.Context(), "app-1", applicant(), TransitionInput{
		Action:          ActionSubmit,
		ExpectedVersion: 5,
	})
	if !errors.Is(err, ErrTerminalState) {
		t.Fatalf("expected ErrTerminalState, got %v", err)
	}
}

func TestTransitionVersionConflict(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusSubmitted, 3)

	officer := staff(identity.UnitRegistry, identity.PositionOfficer)
	_, err := svc.Transition(t.Context(), "app-1", officer, TransitionInput{
		Action:          ActionAssessPass,
		ExpectedVersion: 1,
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestTransitionIdempotentReplay(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusSubmitted, 2)

	officer := staff(identity.UnitRegistry, identity.PositionOfficer)
	in := TransitionInput{Action: ActionAssessPass, ExpectedVersion: 2}

	first, err := svc.Transition(t.Context(), "app-1", officer, in)
	if err != nil {
		t.Fatalf("first transition: %v", err)
	}
	commits := f.commits

	// Same call again, as a retried duplicate would arrive.
	second, err := svc.Transition(t.Context(), "app-1", officer, in)
	if err != nil {
		t.Fatalf("replay must be a no-op, got %v", err)
	}
	if second.Status != first.Status || second.Version != first.Version {
		t.Fatalf("replay returned different state: %+v vs %+v", second, first)
	}
	if f.commits != commits {
		t.Fatalf("replay must not commit again: %d vs %d", f.commits, commits)
	}
}

func TestTransitionReplayByOtherActorConflicts(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusSubmitted, 2)

	officer := staff(identity.UnitRegistry, identity.PositionOfficer)
	if _, err := svc.Transition(t.Context(), "app-1", officer, TransitionInput{
		Action:          ActionAssessPass,
		ExpectedVersion: 2,
	}); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	// Same action and stale version, but a different caller: not a
	// duplicate of the committed call, so the conflict stands.
	outsider := staff(identity.UnitRevenue, identity.PositionOfficer)
	_, err := svc.Transition(t.Context(), "app-1", outsider, TransitionInput{
		Action:          ActionAssessPass,
		ExpectedVersion: 2,
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}

func TestTransitionStaleVersionOtherActionConflicts(t *testing.T) {
	f := newFakeStore()
	svc := NewService(f)
	seedApp(f, StatusSubmitted, 2)

	officer := staff(identity.UnitRegistry, identity.PositionOfficer)
	if _, err := svc.Transition(t.Context(), "app-1", officer, TransitionInput{
		Action:          ActionAssessPass,
		ExpectedVersion: 2,
	}); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	// A different action against the stale version is a real conflict,
	// not a replay.
	_, err := svc.Transition(t.Context(), "app-1", officer, TransitionInput{
		Action:          ActionRequestClarification,
		ExpectedVersion: 2,
	})
	if !errors.Is(err, ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}
}
