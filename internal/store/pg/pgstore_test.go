package pg

import (
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/notify"
	"permitdesk.org/internal/workflow"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func appRows(app workflow.Application) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "app_type", "status", "owner_id", "assigned_to", "version", "created_at", "updated_at"}).
		AddRow(app.ID, string(app.Type), string(app.Status), app.OwnerID, app.AssignedTo, app.Version, app.CreatedAt, app.UpdatedAt)
}

func TestApplyTransitionCommit(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	updated := workflow.Application{
		ID:        "app-1",
		Type:      workflow.TypeNew,
		Status:    workflow.StatusPassedInitialReview,
		OwnerID:   "user-1",
		Version:   3,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now,
	}

	mock.ExpectBegin()
	mock.ExpectQuery(`update applications`).
		WithArgs("app-1", string(workflow.StatusPassedInitialReview), "", now, int64(2)).
		WillReturnRows(appRows(updated))
	mock.ExpectExec(`insert into review_records`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`insert into audit_log`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	got, err := store.ApplyTransition(t.Context(), workflow.TransitionCommit{
		ApplicationID:   "app-1",
		ExpectedVersion: 2,
		NewStatus:       workflow.StatusPassedInitialReview,
		Review: &workflow.ReviewRecord{
			ApplicationID:    "app-1",
			Unit:             identity.UnitRegistry,
			AssessedBy:       "staff-1",
			AssessmentStatus: "passed",
			CreatedAt:        now,
			UpdatedAt:        now,
		},
		Audit: workflow.AuditEntry{
			ID:         "audit-1",
			OccurredAt: now,
			ActorID:    "staff-1",
			Action:     workflow.AuditUpdate,
			TargetType: "application",
			TargetID:   "app-1",
		},
		Now: now,
	})
	require.NoError(t, err)
	require.Equal(t, workflow.StatusPassedInitialReview, got.Status)
	require.Equal(t, int64(3), got.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionVersionConflict(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery(`update applications`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_type", "status", "owner_id", "assigned_to", "version", "created_at", "updated_at"}))
	mock.ExpectQuery(`select exists`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	_, err := store.ApplyTransition(t.Context(), workflow.TransitionCommit{
		ApplicationID:   "app-1",
		ExpectedVersion: 5,
		NewStatus:       workflow.StatusUnderAssessment,
		Now:             now,
	})
	require.ErrorIs(t, err, workflow.ErrVersionConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTransitionNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`update applications`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_type", "status", "owner_id", "assigned_to", "version", "created_at", "updated_at"}))
	mock.ExpectQuery(`select exists`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	_, err := store.ApplyTransition(t.Context(), workflow.TransitionCommit{
		ApplicationID:   "missing",
		ExpectedVersion: 1,
		NewStatus:       workflow.StatusSubmitted,
		Now:             time.Now().UTC(),
	})
	require.ErrorIs(t, err, workflow.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReviewRecordsScanBooleanFlags(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	rows := sqlmock.NewRows([]string{
		"application_id", "unit", "assessed_by", "assessment_status",
		"notes", "recommendations", "requires_eia", "requires_workplan",
		"forwarded_to_next_unit", "follow_up_due", "created_at", "updated_at",
	}).
		AddRow("app-1", "registry", "staff-1", "forwarded", "", "", true, false, true, nil, now, now).
		AddRow("app-1", "compliance", "staff-2", "in_progress", "site visit", "", false, false, false, nil, now, now)

	mock.ExpectQuery(`select .+ from review_records`).
		WithArgs("app-1").
		WillReturnRows(rows)

	records, err := store.ReviewRecords(t.Context(), "app-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.True(t, records[0].ForwardedToNextUnit)
	require.True(t, records[0].RequiresEIA)
	require.False(t, records[1].ForwardedToNextUnit)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastTransition(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`select .+ from audit_log`).
		WithArgs("app-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "occurred_at", "actor_id", "action", "target_type", "target_id", "ip_address", "metadata",
		}).AddRow("audit-9", now, "staff-1", "UPDATE", "application", "app-1", "",
			[]byte(`{"action":"assess_pass","from":"submitted","to":"passed_initial_review"}`)))

	entry, ok, err := store.LastTransition(t.Context(), "app-1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "staff-1", entry.ActorID)
	require.Equal(t, "assess_pass", entry.Metadata["action"])
	require.Equal(t, "passed_initial_review", entry.Metadata["to"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestLastTransitionAbsent(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from audit_log`).
		WithArgs("app-2").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "occurred_at", "actor_id", "action", "target_type", "target_id", "ip_address", "metadata",
		}))

	_, ok, err := store.LastTransition(t.Context(), "app-2")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetApplicationNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select .+ from applications`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_type", "status", "owner_id", "assigned_to", "version", "created_at", "updated_at"}))

	_, err := store.GetApplication(t.Context(), "missing")
	require.ErrorIs(t, err, workflow.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkReadNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`update notifications set is_read=true where id=`).
		WithArgs("missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkRead(t.Context(), "missing")
	require.ErrorIs(t, err, notify.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkAllReadPassesCutoff(t *testing.T) {
	store, mock := newMockStore(t)
	cutoff := time.Now().UTC()

	mock.ExpectExec(`update notifications set is_read=true`).
		WithArgs("compliance", "", cutoff).
		WillReturnResult(sqlmock.NewResult(0, 4))

	flipped, err := store.MarkAllRead(t.Context(), notify.UnitScope(identity.UnitCompliance), cutoff)
	require.NoError(t, err)
	require.Equal(t, int64(4), flipped)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountUnread(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery(`select count`).
		WithArgs("", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	count, err := store.CountUnread(t.Context(), notify.UserScope("user-1"))
	require.NoError(t, err)
	require.Equal(t, 7, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
