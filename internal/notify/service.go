package notify

import (
	"context"
	"time"

	"permitdesk.org/internal/identity"
	"permitdesk.org/internal/ids"
	"permitdesk.org/internal/obs"
	"permitdesk.org/internal/workflow"
)

// Store persists notifications. MarkAllRead flips only rows created at or
// before the cutoff so rows inserted during the bulk call stay unread.
type Store interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (Notification, error)
	ListNotifications(ctx context.Context, scope Scope, unreadOnly bool, limit int) ([]Notification, error)
	MarkRead(ctx context.Context, id string) error
	MarkAllRead(ctx context.Context, scope Scope, cutoff time.Time) (int64, error)
	CountUnread(ctx context.Context, scope Scope) (int, error)
}

// Publisher pushes a created notification to subscribed clients.
// Delivery is at-least-once; subscribers de-duplicate by notification id.
type Publisher interface {
	Publish(ctx context.Context, n Notification) error
}

type multiPublisher []Publisher

// MultiPublisher publishes to every given publisher, collecting the
// first error after trying all of them.
func MultiPublisher(publishers ...Publisher) Publisher {
	return multiPublisher(publishers)
}

func (m multiPublisher) Publish(ctx context.Context, n Notification) error {
	var first error
	for _, p := range m {
		if err := p.Publish(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Service derives, stores and publishes notifications, and tracks their
// read state.
type Service struct {
	store     Store
	publisher Publisher
	now       func() time.Time
}

// Option configures Service.
type Option func(*Service)

// WithPublisher wires the real-time delivery channel.
func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) Option {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService constructs the notification service.
func NewService(store Store, opts ...Option) *Service {
	s := &Service{store: store, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnTransition derives recipients for a committed workflow transition:
// a unit-wide notification to the unit that now owns the state, and a
// personal notification to the submitter on terminal or clarification
// outcomes. Content comes from the static template tables only.
func (s *Service) OnTransition(ctx context.Context, event workflow.TransitionEvent) ([]Notification, error) {
	now := s.now().UTC()
	var created []Notification

	if tpl, ok := unitTemplates[transitionKey{event.From, event.To}]; ok {
		unit := tpl.Unit
		if unit == "" {
			if owner, owned := workflow.StageOwner(event.To); owned {
				unit = owner
			}
		}
		if unit != "" {
			title, message := render(tpl, event)
			created = append(created, Notification{
				ID:             ids.NewAt(now),
				TargetUnit:     unit,
				Type:           tpl.Type,
				Title:          title,
				Message:        message,
				Priority:       tpl.Priority,
				ActionRequired: tpl.ActionRequired,
				ApplicationID:  event.ApplicationID,
				CreatedAt:      now,
			})
		}
	}

	if tpl, ok := submitterTemplates[event.To]; ok && event.OwnerID != "" {
		title, message := render(tpl, event)
		created = append(created, Notification{
			ID:             ids.NewAt(now),
			TargetUserID:   event.OwnerID,
			Type:           tpl.Type,
			Title:          title,
			Message:        message,
			Priority:       tpl.Priority,
			ActionRequired: tpl.ActionRequired,
			ApplicationID:  event.ApplicationID,
			CreatedAt:      now,
		})
	}

	for i := range created {
		if err := s.store.CreateNotification(ctx, &created[i]); err != nil {
			return created[:i], err
		}
		obs.ObserveNotification(created[i].Type)
		s.publish(ctx, created[i])
	}
	return created, nil
}

func (s *Service) publish(ctx context.Context, n Notification) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, n); err != nil {
		// Clients reconcile missed pushes by querying the inbox.
		obs.LogRequest(map[string]any{
			"level":           "error",
			"msg":             "notification publish failed",
			"notification_id": n.ID,
			"error":           err.Error(),
		})
	}
}

// canTouch implements the read-state access rule: the target user, a
// staff member of the target unit, or a super admin.
func canTouch(actor identity.Identity, scope Scope) bool {
	if actor.IsZero() {
		return false
	}
	if actor.IsSuperAdmin() {
		return true
	}
	if scope.UserID != "" {
		return actor.UserID == scope.UserID
	}
	return actor.IsStaff() && actor.StaffUnit == scope.Unit
}

// List returns the actor's inbox for the given scope.
func (s *Service) List(ctx context.Context, scope Scope, actor identity.Identity, unreadOnly bool, limit int) ([]Notification, error) {
	if !scope.Valid() {
		return nil, ErrInvalidScope
	}
	if !canTouch(actor, scope) {
		return nil, ErrForbidden
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	return s.store.ListNotifications(ctx, scope, unreadOnly, limit)
}

// MarkRead flips one notification to read. Only the target user or a
// member of the target unit may do so.
func (s *Service) MarkRead(ctx context.Context, notificationID string, actor identity.Identity) error {
	n, err := s.store.GetNotification(ctx, notificationID)
	if err != nil {
		return err
	}
	if !canTouch(actor, ScopeOf(n)) {
		return ErrForbidden
	}
	if n.IsRead {
		return nil
	}
	return s.store.MarkRead(ctx, notificationID)
}

// MarkAllRead flips every notification in scope that was unread when the
// call started. Notifications created afterwards remain unread.
func (s *Service) MarkAllRead(ctx context.Context, scope Scope, actor identity.Identity) (int64, error) {
	if !scope.Valid() {
		return 0, ErrInvalidScope
	}
	if !canTouch(actor, scope) {
		return 0, ErrForbidden
	}
	cutoff := s.now().UTC()
	return s.store.MarkAllRead(ctx, scope, cutoff)
}

// UnreadCount is a pure projection over the store; no separate counter
// is maintained anywhere.
func (s *Service) UnreadCount(ctx context.Context, scope Scope, actor identity.Identity) (int, error) {
	if !scope.Valid() {
		return 0, ErrInvalidScope
	}
	if !canTouch(actor, scope) {
		return 0, ErrForbidden
	}
	return s.store.CountUnread(ctx, scope)
}
