// Package notification persists user-facing event records and pushes
// them to the recipient's private channel. The store write is the unit
// of success; the push is strictly best-effort.
package notification

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"

	"github.com/usta-app/usta-server/internal/data"
	"github.com/usta-app/usta-server/internal/realtime"
)

// Store is the persistence the service needs.
type Store interface {
	Insert(ctx context.Context, n *data.Notification) error
	List(ctx context.Context, recipientID bson.ObjectID, page, perPage int64, unreadOnly bool) ([]*data.Notification, int64, error)
	MarkRead(ctx context.Context, id, recipientID bson.ObjectID) error
	MarkAllRead(ctx context.Context, recipientID bson.ObjectID) (int64, error)
	Deactivate(ctx context.Context, id, recipientID bson.ObjectID) error
}

// Service creates and manages notifications.
type Service struct {
	store Store
	pub   realtime.Publisher
}

// NewService wires the service. A nil publisher disables pushes.
func NewService(store Store, pub realtime.Publisher) *Service {
	if pub == nil {
		pub = realtime.NopPublisher{}
	}
	return &Service{store: store, pub: pub}
}

// CreateParams describes one notification to record.
type CreateParams struct {
	Recipient bson.ObjectID
	Type      data.NotificationType
	Title     string
	Message   string
	Data      data.NotificationData
	Priority  data.NotificationPriority
	ExpiresAt *time.Time
}

// Create persists the notification, then attempts a push to the
// recipient's private channel. A failed push is logged and swallowed;
// it never propagates to the triggering operation.
func (s *Service) Create(ctx context.Context, p CreateParams) (*data.Notification, error) {
	if p.Priority == "" {
		p.Priority = data.PriorityMedium
	}

	n := &data.Notification{
		RecipientID: p.Recipient,
		Type:        p.Type,
		Title:       p.Title,
		Message:     p.Message,
		Data:        p.Data,
		Priority:    p.Priority,
		IsActive:    true,
		ExpiresAt:   p.ExpiresAt,
		CreatedAt:   time.Now(),
	}

	if err := s.store.Insert(ctx, n); err != nil {
		return nil, err
	}

	s.pub.Publish(realtime.UserChannel(p.Recipient.Hex()), realtime.Event{
		Name:    realtime.EventNotificationNew,
		Payload: n,
	})

	return n, nil
}

// Notify is Create for callers that must not fail on notification
// problems: any error is logged and dropped, matching the attempt-once,
// log-on-failure policy for secondary effects.
func (s *Service) Notify(ctx context.Context, p CreateParams) {
	if _, err := s.Create(ctx, p); err != nil {
		log.Printf("notification: create for %s failed: %v", p.Recipient.Hex(), err)
	}
}

// List returns a page of the recipient's notifications plus the unread count.
func (s *Service) List(ctx context.Context, recipient bson.ObjectID, page, perPage int64, unreadOnly bool) ([]*data.Notification, int64, error) {
	return s.store.List(ctx, recipient, page, perPage, unreadOnly)
}

// MarkRead flags one notification read.
func (s *Service) MarkRead(ctx context.Context, id, recipient bson.ObjectID) error {
	return s.store.MarkRead(ctx, id, recipient)
}

// MarkAllRead flags all of the recipient's notifications read.
func (s *Service) MarkAllRead(ctx context.Context, recipient bson.ObjectID) (int64, error) {
	return s.store.MarkAllRead(ctx, recipient)
}

// Delete soft-deletes a notification.
func (s *Service) Delete(ctx context.Context, id, recipient bson.ObjectID) error {
	return s.store.Deactivate(ctx, id, recipient)
}
