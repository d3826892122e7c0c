// Package db manages MongoDB connections and collections.
package db

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

// Client wraps mongo.Client and exposes the collections used by the core.
type Client struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to MongoDB, verifies the connection with a ping and
// returns a Client bound to the usta database.
func New(ctx context.Context, mongoURI string) (*Client, error) {
	opts := options.Client().
		ApplyURI(mongoURI).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &Client{
		client: client,
		db:     client.Database("usta_db"),
	}, nil
}

// UsersCollection returns the users collection.
func (c *Client) UsersCollection() *mongo.Collection {
	return c.db.Collection("users")
}

// ProfessionalsCollection returns the professionals collection.
func (c *Client) ProfessionalsCollection() *mongo.Collection {
	return c.db.Collection("professionals")
}

// JobsCollection returns the jobs collection.
func (c *Client) JobsCollection() *mongo.Collection {
	return c.db.Collection("jobs")
}

// ConversationsCollection returns the conversations collection.
func (c *Client) ConversationsCollection() *mongo.Collection {
	return c.db.Collection("conversations")
}

// MessagesCollection returns the messages collection.
func (c *Client) MessagesCollection() *mongo.Collection {
	return c.db.Collection("messages")
}

// NotificationsCollection returns the notifications collection.
func (c *Client) NotificationsCollection() *mongo.Collection {
	return c.db.Collection("notifications")
}

// Close disconnects from MongoDB.
func (c *Client) Close(ctx context.Context) error {
	return c.client.Disconnect(ctx)
}

// CreateIndexes creates the indexes the stores rely on. Safe to call on
// every startup; Mongo treats existing identical indexes as a no-op.
func (c *Client) CreateIndexes(ctx context.Context) error {
	// Professional lookup by owning user happens on every chat-originated
	// job request.
	_, err := c.ProfessionalsCollection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    map[string]int{"user_id": 1},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create professionals index: %w", err)
	}

	jobIndexes := []mongo.IndexModel{
		{
			// Feed queries: open jobs, newest first.
			Keys: bson.D{{Key: "status", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			// My-jobs queries by client.
			Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			// My-jobs queries by assigned professional.
			Keys: bson.D{{Key: "professional_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
	}
	if _, err := c.JobsCollection().Indexes().CreateMany(ctx, jobIndexes); err != nil {
		return fmt.Errorf("failed to create job indexes: %w", err)
	}

	conversationIndexes := []mongo.IndexModel{
		{
			// Pair lookup for findOrCreate and membership checks.
			Keys: map[string]int{"participants.user_id": 1},
		},
		{
			// Conversation lists, newest activity first.
			Keys: map[string]int{"last_message_at": -1},
		},
	}
	if _, err := c.ConversationsCollection().Indexes().CreateMany(ctx, conversationIndexes); err != nil {
		return fmt.Errorf("failed to create conversation indexes: %w", err)
	}

	// Message pages are always read per conversation in insertion order.
	_, err = c.MessagesCollection().Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "conversation_id", Value: 1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create message index: %w", err)
	}

	notificationIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{{Key: "recipient_id", Value: 1}, {Key: "created_at", Value: -1}},
		},
		{
			// TTL purge: documents disappear once expires_at passes.
			// Documents without expires_at are never purged.
			Keys:    map[string]int{"expires_at": 1},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}
	if _, err := c.NotificationsCollection().Indexes().CreateMany(ctx, notificationIndexes); err != nil {
		return fmt.Errorf("failed to create notification indexes: %w", err)
	}

	return nil
}
