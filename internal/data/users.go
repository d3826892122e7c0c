// Package data provides DB models and stores.
package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/usta-app/usta-server/internal/apperr"
)

// UsersStore performs user and professional-profile DB operations.
type UsersStore struct {
	users         *mongo.Collection
	professionals *mongo.Collection
}

// NewUsersStore returns a UsersStore using the provided collections.
func NewUsersStore(users, professionals *mongo.Collection) *UsersStore {
	return &UsersStore{users: users, professionals: professionals}
}

// CreateUser inserts a user document. Account identity normally arrives
// from the external auth service; this path serves seeding and tests.
func (u *UsersStore) CreateUser(ctx context.Context, name string, role Role) (*User, error) {
	user := &User{
		Name:      name,
		Role:      role,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	result, err := u.users.InsertOne(ctx, user)
	if err != nil {
		return nil, err
	}
	user.ID = result.InsertedID.(bson.ObjectID)
	return user, nil
}

// GetUserByID finds a user by ObjectID.
func (u *UsersStore) GetUserByID(ctx context.Context, id bson.ObjectID) (*User, error) {
	var user User
	err := u.users.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("user %s not found", id.Hex())
		}
		return nil, err
	}
	return &user, nil
}

// SetPresence updates a user's online flag; lastSeen is recorded only
// when going offline.
func (u *UsersStore) SetPresence(ctx context.Context, id bson.ObjectID, online bool) (*Presence, error) {
	presence := Presence{IsOnline: online}
	if !online {
		now := time.Now()
		presence.LastSeen = &now
	}

	_, err := u.users.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"presence": presence, "updated_at": time.Now()}},
	)
	if err != nil {
		return nil, err
	}
	return &presence, nil
}

// CreateProfessional inserts a professional profile owned by a user.
func (u *UsersStore) CreateProfessional(ctx context.Context, userID bson.ObjectID, category, location string) (*Professional, error) {
	pro := &Professional{
		UserID:    userID,
		Category:  category,
		Location:  location,
		CreatedAt: time.Now(),
	}

	result, err := u.professionals.InsertOne(ctx, pro)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, apperr.Conflict("user %s already has a professional profile", userID.Hex())
		}
		return nil, err
	}
	pro.ID = result.InsertedID.(bson.ObjectID)
	return pro, nil
}

// GetProfessionalByID finds a professional profile by its own id.
func (u *UsersStore) GetProfessionalByID(ctx context.Context, id bson.ObjectID) (*Professional, error) {
	var pro Professional
	err := u.professionals.FindOne(ctx, bson.M{"_id": id}).Decode(&pro)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("professional %s not found", id.Hex())
		}
		return nil, err
	}
	return &pro, nil
}

// GetProfessionalByUserID finds the profile owned by the given user.
func (u *UsersStore) GetProfessionalByUserID(ctx context.Context, userID bson.ObjectID) (*Professional, error) {
	var pro Professional
	err := u.professionals.FindOne(ctx, bson.M{"user_id": userID}).Decode(&pro)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("no professional profile for user %s", userID.Hex())
		}
		return nil, err
	}
	return &pro, nil
}

// IncrementCompletedJobs bumps the profile's completed-jobs counter by one.
func (u *UsersStore) IncrementCompletedJobs(ctx context.Context, id bson.ObjectID) error {
	result, err := u.professionals.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$inc": bson.M{"completed_jobs": 1}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("professional %s not found", id.Hex())
	}
	return nil
}
