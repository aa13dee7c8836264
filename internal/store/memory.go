// Package store provides the in-memory record store used for tests and
// DSN-less startup. The durable implementation lives in store/pg.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"permitdesk.org/internal/notify"
	"permitdesk.org/internal/workflow"
)

// Memory implements workflow.Store and notify.Store with in-process
// concurrency safety.
type Memory struct {
	mu            sync.RWMutex
	applications  map[string]*workflow.Application
	reviews       map[string][]*workflow.ReviewRecord
	auditLog      []workflow.AuditEntry
	notifications []*notify.Notification
	byNotifID     map[string]*notify.Notification
}

var (
	_ workflow.Store = (*Memory)(nil)
	_ notify.Store   = (*Memory)(nil)
)

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		applications: make(map[string]*workflow.Application),
		reviews:      make(map[string][]*workflow.ReviewRecord),
		byNotifID:    make(map[string]*notify.Notification),
	}
}

// --- workflow.Store -------------------------------------------------------

func (m *Memory) CreateApplication(ctx context.Context, app *workflow.Application) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *app
	m.applications[app.ID] = &cp
	return nil
}

func (m *Memory) GetApplication(ctx context.Context, id string) (workflow.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	app, ok := m.applications[id]
	if !ok {
		return workflow.Application{}, workflow.ErrNotFound
	}
	return *app, nil
}

func (m *Memory) ListApplications(ctx context.Context, filter workflow.ListFilter) ([]workflow.Application, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit := filter.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}

	var res []workflow.Application
	for _, app := range m.applications {
		if filter.OwnerID != "" && app.OwnerID != filter.OwnerID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, app.Status) {
			continue
		}
		res = append(res, *app)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *Memory) ReviewRecords(ctx context.Context, applicationID string) ([]workflow.ReviewRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := m.reviews[applicationID]
	res := make([]workflow.ReviewRecord, 0, len(records))
	for _, r := range records {
		res = append(res, *r)
	}
	return res, nil
}

func (m *Memory) ApplyTransition(ctx context.Context, commit workflow.TransitionCommit) (workflow.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[commit.ApplicationID]
	if !ok {
		return workflow.Application{}, workflow.ErrNotFound
	}
	if app.Version != commit.ExpectedVersion {
		return workflow.Application{}, workflow.ErrVersionConflict
	}

	app.Status = commit.NewStatus
	app.Version++
	app.AssignedTo = commit.AssignedTo
	app.UpdatedAt = commit.Now

	if commit.Review != nil {
		m.upsertReview(commit.Review)
	}
	m.auditLog = append(m.auditLog, commit.Audit)

	return *app, nil
}

func (m *Memory) upsertReview(review *workflow.ReviewRecord) {
	records := m.reviews[review.ApplicationID]
	for _, existing := range records {
		if existing.Unit == review.Unit {
			created := existing.CreatedAt
			*existing = *review
			existing.CreatedAt = created
			return
		}
	}
	cp := *review
	m.reviews[review.ApplicationID] = append(records, &cp)
}

func (m *Memory) AppendAudit(ctx context.Context, entry workflow.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auditLog = append(m.auditLog, entry)
	return nil
}

// LastTransition scans the audit trail backwards for the newest
// committed transition on the application. Denied attempts record no
// "to" target and are skipped.
func (m *Memory) LastTransition(ctx context.Context, applicationID string) (workflow.AuditEntry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := len(m.auditLog) - 1; i >= 0; i-- {
		entry := m.auditLog[i]
		if entry.TargetType != "application" || entry.TargetID != applicationID {
			continue
		}
		if entry.Action != workflow.AuditUpdate || entry.Metadata["to"] == "" {
			continue
		}
		return entry, true, nil
	}
	return workflow.AuditEntry{}, false, nil
}

// AuditEntries returns a copy of the audit trail, oldest first.
func (m *Memory) AuditEntries() []workflow.AuditEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]workflow.AuditEntry, len(m.auditLog))
	copy(res, m.auditLog)
	return res
}

// --- notify.Store ---------------------------------------------------------

func (m *Memory) CreateNotification(ctx context.Context, n *notify.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *n
	m.notifications = append(m.notifications, &cp)
	m.byNotifID[cp.ID] = &cp
	return nil
}

func (m *Memory) GetNotification(ctx context.Context, id string) (notify.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.byNotifID[id]
	if !ok {
		return notify.Notification{}, notify.ErrNotFound
	}
	return *n, nil
}

func (m *Memory) ListNotifications(ctx context.Context, scope notify.Scope, unreadOnly bool, limit int) ([]notify.Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var res []notify.Notification
	// Newest first.
	for i := len(m.notifications) - 1; i >= 0; i-- {
		n := m.notifications[i]
		if notify.ScopeOf(*n) != scope {
			continue
		}
		if unreadOnly && n.IsRead {
			continue
		}
		res = append(res, *n)
		if len(res) >= limit {
			break
		}
	}
	return res, nil
}

func (m *Memory) MarkRead(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.byNotifID[id]
	if !ok {
		return notify.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (m *Memory) MarkAllRead(ctx context.Context, scope notify.Scope, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var flipped int64
	for _, n := range m.notifications {
		if notify.ScopeOf(*n) != scope || n.IsRead {
			continue
		}
		if n.CreatedAt.After(cutoff) {
			continue
		}
		n.IsRead = true
		flipped++
	}
	return flipped, nil
}

func (m *Memory) CountUnread(ctx context.Context, scope notify.Scope) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, n := range m.notifications {
		if notify.ScopeOf(*n) == scope && !n.IsRead {
			count++
		}
	}
	return count, nil
}

func containsStatus(list []workflow.Status, s workflow.Status) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
