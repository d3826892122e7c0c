package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/usta-app/usta-server/internal/apperr"
)

// ConversationsStore provides conversation database operations.
type ConversationsStore struct {
	coll *mongo.Collection
}

// NewConversationsStore returns a ConversationsStore using the given collection.
func NewConversationsStore(coll *mongo.Collection) *ConversationsStore {
	return &ConversationsStore{coll: coll}
}

// Insert persists a new conversation document and populates its id.
func (s *ConversationsStore) Insert(ctx context.Context, conv *Conversation) error {
	result, err := s.coll.InsertOne(ctx, conv)
	if err != nil {
		return err
	}
	conv.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

// Get returns the conversation with the given id.
func (s *ConversationsStore) Get(ctx context.Context, id bson.ObjectID) (*Conversation, error) {
	var conv Conversation
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&conv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("conversation %s not found", id.Hex())
		}
		return nil, err
	}
	return &conv, nil
}

// FindByPair looks up the conversation containing both users, regardless
// of which side created it. Returns nil (no error) when none exists.
func (s *ConversationsStore) FindByPair(ctx context.Context, userA, userB bson.ObjectID) (*Conversation, error) {
	filter := bson.M{
		"$and": bson.A{
			bson.M{"participants.user_id": userA},
			bson.M{"participants.user_id": userB},
		},
	}

	var conv Conversation
	err := s.coll.FindOne(ctx, filter).Decode(&conv)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, err
	}
	return &conv, nil
}

// ListForUser returns the user's conversations, excluding those the user
// has hidden, most recent activity first.
func (s *ConversationsStore) ListForUser(ctx context.Context, userID bson.ObjectID, page, perPage int64) ([]*Conversation, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	filter := bson.M{
		"participants.user_id": userID,
		"hidden_for":           bson.M{"$ne": userID},
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "last_message_at", Value: -1}, {Key: "created_at", Value: -1}}).
		SetSkip((page - 1) * perPage).
		SetLimit(perPage)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var convs []*Conversation
	if err := cursor.All(ctx, &convs); err != nil {
		return nil, err
	}
	return convs, nil
}

// RecordMessage refreshes the denormalized last-message fields, bumps
// the recipient role's unread counter by exactly one and clears the
// hidden_for set: new activity un-hides the conversation for both sides.
func (s *ConversationsStore) RecordMessage(ctx context.Context, convID bson.ObjectID, msg *Message, preview string, recipientRole Role) error {
	unreadField := "unread.professional"
	if recipientRole == RoleClient {
		unreadField = "unread.client"
	}

	update := bson.M{
		"$set": bson.M{
			"last_message_id":      msg.ID,
			"last_message_preview": preview,
			"last_message_at":      msg.CreatedAt,
			"hidden_for":           []bson.ObjectID{},
			"updated_at":           time.Now(),
		},
		"$inc": bson.M{unreadField: 1},
	}

	result, err := s.coll.UpdateOne(ctx, bson.M{"_id": convID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("conversation %s not found", convID.Hex())
	}
	return nil
}

// ResetUnread zeroes the counter belonging to the given role.
func (s *ConversationsStore) ResetUnread(ctx context.Context, convID bson.ObjectID, role Role) error {
	unreadField := "unread.professional"
	if role == RoleClient {
		unreadField = "unread.client"
	}

	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$set": bson.M{unreadField: 0, "updated_at": time.Now()}},
	)
	return err
}

// HideFor adds the viewer to the conversation's hidden_for set.
// $addToSet keeps the operation idempotent: repeated calls leave one entry.
func (s *ConversationsStore) HideFor(ctx context.Context, convID, userID bson.ObjectID) error {
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{
			"$addToSet": bson.M{"hidden_for": userID},
			"$set":      bson.M{"updated_at": time.Now()},
		},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("conversation %s not found", convID.Hex())
	}
	return nil
}

// Unhide clears the hidden_for set entirely.
func (s *ConversationsStore) Unhide(ctx context.Context, convID bson.ObjectID) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$set": bson.M{"hidden_for": []bson.ObjectID{}, "updated_at": time.Now()}},
	)
	return err
}

// SetJob binds a job to the conversation. The binding is set-once: a
// conversation already linked to a job keeps its original link.
func (s *ConversationsStore) SetJob(ctx context.Context, convID, jobID bson.ObjectID) error {
	result, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID, "job_id": bson.M{"$exists": false}},
		bson.M{"$set": bson.M{"job_id": jobID, "updated_at": time.Now()}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.Conflict("conversation %s is already linked to a job", convID.Hex())
	}
	return nil
}

// ClearJob removes the job link, used when a cancelled job is deleted.
func (s *ConversationsStore) ClearJob(ctx context.Context, convID bson.ObjectID) error {
	_, err := s.coll.UpdateOne(ctx,
		bson.M{"_id": convID},
		bson.M{"$unset": bson.M{"job_id": ""}, "$set": bson.M{"updated_at": time.Now()}},
	)
	return err
}
