package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/usta-app/usta-server/internal/apperr"
)

// NotificationsStore provides notification database operations.
type NotificationsStore struct {
	coll *mongo.Collection
}

// NewNotificationsStore returns a NotificationsStore using the given collection.
func NewNotificationsStore(coll *mongo.Collection) *NotificationsStore {
	return &NotificationsStore{coll: coll}
}

// Insert persists a notification document and populates its id.
func (s *NotificationsStore) Insert(ctx context.Context, n *Notification) error {
	result, err := s.coll.InsertOne(ctx, n)
	if err != nil {
		return err
	}
	n.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

// List returns a page of the recipient's active notifications, newest
// first, together with their total unread count.
func (s *NotificationsStore) List(ctx context.Context, recipientID bson.ObjectID, page, perPage int64, unreadOnly bool) ([]*Notification, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	filter := bson.M{"recipient_id": recipientID, "is_active": true}
	if unreadOnly {
		filter["is_read"] = false
	}
	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip((page - 1) * perPage).
		SetLimit(perPage)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	var items []*Notification
	if err := cursor.All(ctx, &items); err != nil {
		return nil, 0, err
	}

	unread, err := s.coll.CountDocuments(ctx, bson.M{
		"recipient_id": recipientID,
		"is_active":    true,
		"is_read":      false,
	})
	if err != nil {
		return nil, 0, err
	}

	return items, unread, nil
}

// MarkRead flags a single notification read. Idempotent: marking an
// already-read notification is a no-op, not an error. The recipient
// filter doubles as the authorization check.
func (s *NotificationsStore) MarkRead(ctx context.Context, id, recipientID bson.ObjectID) error {
	now := time.Now()
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("notification %s not found", id.Hex())
	}
	return nil
}

// MarkAllRead flags every unread notification of the recipient read.
func (s *NotificationsStore) MarkAllRead(ctx context.Context, recipientID bson.ObjectID) (int64, error) {
	now := time.Now()
	result, err := s.coll.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Deactivate soft-deletes a notification (is_active=false). Idempotent.
func (s *NotificationsStore) Deactivate(ctx context.Context, id, recipientID bson.ObjectID) error {
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"is_active": false}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("notification %s not found", id.Hex())
	}
	return nil
}
