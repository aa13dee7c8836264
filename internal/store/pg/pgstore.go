// Package pg is the Postgres-backed store for applications, review
// records, notifications and the audit log.
package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"permitdesk.org/internal/notify"
	"permitdesk.org/internal/workflow"
)

type Store struct {
	db *sql.DB
}

var (
	_ workflow.Store = (*Store)(nil)
	_ notify.Store   = (*Store)(nil)
)

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	// Tuned pool defaults; adjust under load tests
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// --- workflow.Store -------------------------------------------------------

func (s *Store) CreateApplication(ctx context.Context, app *workflow.Application) error {
	_, err := s.db.ExecContext(ctx, `
		insert into applications(id, app_type, status, owner_id, assigned_to, version, created_at, updated_at)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7,$8)
	`, app.ID, app.Type, app.Status, app.OwnerID, app.AssignedTo, app.Version, app.CreatedAt, app.UpdatedAt)
	return err
}

const applicationColumns = `id, app_type, status, owner_id, coalesce(assigned_to,''), version, created_at, updated_at`

func scanApplication(row interface{ Scan(...any) error }) (workflow.Application, error) {
	var app workflow.Application
	err := row.Scan(&app.ID, &app.Type, &app.Status, &app.OwnerID, &app.AssignedTo, &app.Version, &app.CreatedAt, &app.UpdatedAt)
	return app, err
}

func (s *Store) GetApplication(ctx context.Context, id string) (workflow.Application, error) {
	app, err := scanApplication(s.db.QueryRowContext(ctx, `
		select `+applicationColumns+` from applications where id=$1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.Application{}, workflow.ErrNotFound
	}
	if err != nil {
		return workflow.Application{}, err
	}
	return app, nil
}

func (s *Store) ListApplications(ctx context.Context, filter workflow.ListFilter) ([]workflow.Application, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	statuses := make([]string, 0, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses = append(statuses, string(st))
	}

	rows, err := s.db.QueryContext(ctx, `
		select `+applicationColumns+`
		from applications
		where ($1 = '' or owner_id = $1)
		  and (cardinality($2::text[]) = 0 or status = any($2))
		order by id
		limit $3
	`, filter.OwnerID, statuses, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []workflow.Application
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, app)
	}
	return res, rows.Err()
}

func (s *Store) ReviewRecords(ctx context.Context, applicationID string) ([]workflow.ReviewRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		select application_id, unit, assessed_by, assessment_status,
		       coalesce(notes,''), coalesce(recommendations,''),
		       requires_eia, requires_workplan, forwarded_to_next_unit,
		       follow_up_due, created_at, updated_at
		from review_records
		where application_id=$1
		order by created_at
	`, applicationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []workflow.ReviewRecord
	for rows.Next() {
		var r workflow.ReviewRecord
		var due sql.NullTime
		if err := rows.Scan(&r.ApplicationID, &r.Unit, &r.AssessedBy, &r.AssessmentStatus,
			&r.Notes, &r.Recommendations, &r.RequiresEIA, &r.RequiresWorkplan,
			&r.ForwardedToNextUnit, &due, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		if due.Valid {
			t := due.Time
			r.FollowUpDue = &t
		}
		res = append(res, r)
	}
	return res, rows.Err()
}

// ApplyTransition commits the state change, the review record and the
// audit entry in one transaction. The version predicate on the update is
// the compare-and-swap: zero rows affected with an existing row means a
// concurrent writer won.
func (s *Store) ApplyTransition(ctx context.Context, commit workflow.TransitionCommit) (workflow.Application, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return workflow.Application{}, err
	}
	defer func() { _ = tx.Rollback() }()

	app, err := scanApplication(tx.QueryRowContext(ctx, `
		update applications
		set status=$2, version=version+1, assigned_to=nullif($3,''), updated_at=$4
		where id=$1 and version=$5
		returning `+applicationColumns+`
	`, commit.ApplicationID, commit.NewStatus, commit.AssignedTo, commit.Now, commit.ExpectedVersion))
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if err := tx.QueryRowContext(ctx, `select exists(select 1 from applications where id=$1)`, commit.ApplicationID).Scan(&exists); err != nil {
			return workflow.Application{}, err
		}
		if !exists {
			return workflow.Application{}, workflow.ErrNotFound
		}
		return workflow.Application{}, workflow.ErrVersionConflict
	}
	if err != nil {
		return workflow.Application{}, err
	}

	if r := commit.Review; r != nil {
		if _, err := tx.ExecContext(ctx, `
			insert into review_records(application_id, unit, assessed_by, assessment_status,
				notes, recommendations, requires_eia, requires_workplan,
				forwarded_to_next_unit, follow_up_due, created_at, updated_at)
			values ($1,$2,$3,$4,nullif($5,''),nullif($6,''),$7,$8,$9,$10,$11,$12)
			on conflict (application_id, unit) do update
			set assessed_by=excluded.assessed_by,
			    assessment_status=excluded.assessment_status,
			    notes=excluded.notes,
			    recommendations=excluded.recommendations,
			    requires_eia=excluded.requires_eia,
			    requires_workplan=excluded.requires_workplan,
			    forwarded_to_next_unit=excluded.forwarded_to_next_unit,
			    follow_up_due=excluded.follow_up_due,
			    updated_at=excluded.updated_at
		`, r.ApplicationID, r.Unit, r.AssessedBy, r.AssessmentStatus,
			r.Notes, r.Recommendations, r.RequiresEIA, r.RequiresWorkplan,
			r.ForwardedToNextUnit, r.FollowUpDue, r.CreatedAt, r.UpdatedAt); err != nil {
			return workflow.Application{}, err
		}
	}

	if err := insertAudit(ctx, tx, commit.Audit); err != nil {
		return workflow.Application{}, err
	}
	if err := tx.Commit(); err != nil {
		return workflow.Application{}, err
	}
	return app, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertAudit(ctx context.Context, db execer, entry workflow.AuditEntry) error {
	meta := []byte("{}")
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return err
		}
		meta = b
	}
	_, err := db.ExecContext(ctx, `
		insert into audit_log(id, occurred_at, actor_id, action, target_type, target_id, ip_address, metadata)
		values ($1,$2,nullif($3,''),$4,$5,$6,nullif($7,''),$8)
	`, entry.ID, entry.OccurredAt, entry.ActorID, entry.Action, entry.TargetType, entry.TargetID, entry.IPAddress, meta)
	return err
}

func (s *Store) AppendAudit(ctx context.Context, entry workflow.AuditEntry) error {
	return insertAudit(ctx, s.db, entry)
}

// LastTransition returns the newest committed transition audit entry for
// the application. Denied attempts carry no "to" key and are skipped.
func (s *Store) LastTransition(ctx context.Context, applicationID string) (workflow.AuditEntry, bool, error) {
	var (
		entry workflow.AuditEntry
		meta  []byte
	)
	err := s.db.QueryRowContext(ctx, `
		select id, occurred_at, coalesce(actor_id,''), action, target_type, target_id, coalesce(ip_address,''), metadata
		from audit_log
		where target_type='application' and target_id=$1 and action='UPDATE'
		  and metadata->>'to' is not null
		order by occurred_at desc, id desc
		limit 1
	`, applicationID).Scan(&entry.ID, &entry.OccurredAt, &entry.ActorID, &entry.Action,
		&entry.TargetType, &entry.TargetID, &entry.IPAddress, &meta)
	if errors.Is(err, sql.ErrNoRows) {
		return workflow.AuditEntry{}, false, nil
	}
	if err != nil {
		return workflow.AuditEntry{}, false, err
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &entry.Metadata); err != nil {
			return workflow.AuditEntry{}, false, err
		}
	}
	return entry, true, nil
}

// --- notify.Store ---------------------------------------------------------

const notificationColumns = `id, coalesce(target_unit,''), coalesce(target_user_id,''), type, title, message,
	priority, action_required, coalesce(application_id,''), is_read, created_at`

func scanNotification(row interface{ Scan(...any) error }) (notify.Notification, error) {
	var n notify.Notification
	err := row.Scan(&n.ID, &n.TargetUnit, &n.TargetUserID, &n.Type, &n.Title, &n.Message,
		&n.Priority, &n.ActionRequired, &n.ApplicationID, &n.IsRead, &n.CreatedAt)
	return n, err
}

func (s *Store) CreateNotification(ctx context.Context, n *notify.Notification) error {
	_, err := s.db.ExecContext(ctx, `
		insert into notifications(id, target_unit, target_user_id, type, title, message,
			priority, action_required, application_id, is_read, created_at)
		values ($1,nullif($2,''),nullif($3,''),$4,$5,$6,$7,$8,nullif($9,''),$10,$11)
	`, n.ID, n.TargetUnit, n.TargetUserID, n.Type, n.Title, n.Message,
		n.Priority, n.ActionRequired, n.ApplicationID, n.IsRead, n.CreatedAt)
	return err
}

func (s *Store) GetNotification(ctx context.Context, id string) (notify.Notification, error) {
	n, err := scanNotification(s.db.QueryRowContext(ctx, `
		select `+notificationColumns+` from notifications where id=$1
	`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return notify.Notification{}, notify.ErrNotFound
	}
	if err != nil {
		return notify.Notification{}, err
	}
	return n, nil
}

func scopeArgs(scope notify.Scope) (unit, userID string) {
	return string(scope.Unit), scope.UserID
}

func (s *Store) ListNotifications(ctx context.Context, scope notify.Scope, unreadOnly bool, limit int) ([]notify.Notification, error) {
	unit, userID := scopeArgs(scope)
	rows, err := s.db.QueryContext(ctx, `
		select `+notificationColumns+`
		from notifications
		where coalesce(target_unit,'') = $1
		  and coalesce(target_user_id,'') = $2
		  and ($3 = false or is_read = false)
		order by created_at desc, id desc
		limit $4
	`, unit, userID, unreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []notify.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, n)
	}
	return res, rows.Err()
}

func (s *Store) MarkRead(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `update notifications set is_read=true where id=$1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notify.ErrNotFound
	}
	return nil
}

func (s *Store) MarkAllRead(ctx context.Context, scope notify.Scope, cutoff time.Time) (int64, error) {
	unit, userID := scopeArgs(scope)
	res, err := s.db.ExecContext(ctx, `
		update notifications set is_read=true
		where coalesce(target_unit,'') = $1
		  and coalesce(target_user_id,'') = $2
		  and is_read = false
		  and created_at <= $3
	`, unit, userID, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) CountUnread(ctx context.Context, scope notify.Scope) (int, error) {
	unit, userID := scopeArgs(scope)
	var count int
	err := s.db.QueryRowContext(ctx, `
		select count(*) from notifications
		where coalesce(target_unit,'') = $1
		  and coalesce(target_user_id,'') = $2
		  and is_read = false
	`, unit, userID).Scan(&count)
	return count, err
}
