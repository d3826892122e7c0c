package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/usta-app/usta-server/internal/apperr"
)

// MessagesStore provides message database operations. Deletion is always
// soft: documents stay in storage and reads filter them out, so the two
// per-viewer visibility mechanisms (is_deleted and hidden_for) compose.
type MessagesStore struct {
	coll *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using the given collection.
func NewMessagesStore(coll *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll}
}

// Insert persists a message document and populates its id.
func (s *MessagesStore) Insert(ctx context.Context, msg *Message) error {
	result, err := s.coll.InsertOne(ctx, msg)
	if err != nil {
		return err
	}
	msg.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

// Get returns the message with the given id, including soft-deleted ones;
// callers decide whether a deleted message is addressable.
func (s *MessagesStore) Get(ctx context.Context, id bson.ObjectID) (*Message, error) {
	var msg Message
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("message %s not found", id.Hex())
		}
		return nil, err
	}
	return &msg, nil
}

// ListPage returns a page of the conversation's messages visible to the
// viewer (not soft-deleted, not hidden for them), oldest to newest.
func (s *MessagesStore) ListPage(ctx context.Context, convID, viewerID bson.ObjectID, page, perPage int64) ([]*Message, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 200 {
		perPage = 50
	}

	filter := bson.M{
		"conversation_id": convID,
		"is_deleted":      false,
		"hidden_for":      bson.M{"$ne": viewerID},
	}
	opts := options.Find().
		SetSort(bson.M{"created_at": 1}).
		SetSkip((page - 1) * perPage).
		SetLimit(perPage)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var msgs []*Message
	if err := cursor.All(ctx, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// SetText replaces the text body of a message and marks it edited.
// Sender and age checks live in the chat service.
func (s *MessagesStore) SetText(ctx context.Context, id bson.ObjectID, body string) error {
	now := time.Now()
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{
			"content.text.body": body,
			"is_edited":         true,
			"edited_at":         now,
		}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("message %s not found", id.Hex())
	}
	return nil
}

// SoftDelete marks a single message deleted for everyone.
func (s *MessagesStore) SoftDelete(ctx context.Context, id bson.ObjectID) error {
	now := time.Now()
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"is_deleted": true, "deleted_at": now}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("message %s not found", id.Hex())
	}
	return nil
}

// SoftDeleteBySender marks all of one sender's messages in a
// conversation deleted for everyone. Returns how many were affected.
func (s *MessagesStore) SoftDeleteBySender(ctx context.Context, convID, senderID bson.ObjectID) (int64, error) {
	now := time.Now()
	result, err := s.coll.UpdateMany(ctx,
		bson.M{"conversation_id": convID, "sender_id": senderID, "is_deleted": false},
		bson.M{"$set": bson.M{"is_deleted": true, "deleted_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// HideAllFor adds the viewer to every message's hidden_for set in the
// conversation. The other participant's view is unaffected.
func (s *MessagesStore) HideAllFor(ctx context.Context, convID, viewerID bson.ObjectID) (int64, error) {
	result, err := s.coll.UpdateMany(ctx,
		bson.M{"conversation_id": convID},
		bson.M{"$addToSet": bson.M{"hidden_for": viewerID}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// MarkReadFromSender marks all unread messages from the given sender in
// the conversation as read. Returns how many flipped.
func (s *MessagesStore) MarkReadFromSender(ctx context.Context, convID, senderID bson.ObjectID) (int64, error) {
	now := time.Now()
	result, err := s.coll.UpdateMany(ctx,
		bson.M{"conversation_id": convID, "sender_id": senderID, "is_read": false},
		bson.M{"$set": bson.M{"is_read": true, "read_at": now}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}
