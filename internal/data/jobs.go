package data

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/usta-app/usta-server/internal/apperr"
)

// JobsStore provides job database operations. All mutations after insert
// go through Replace: the lifecycle engine mutates an in-memory copy and
// persists it as a single document write, which is the unit of atomicity
// for a job.
type JobsStore struct {
	coll *mongo.Collection
}

// NewJobsStore returns a JobsStore using the given collection.
func NewJobsStore(coll *mongo.Collection) *JobsStore {
	return &JobsStore{coll: coll}
}

// Insert persists a new job document and populates its id.
func (s *JobsStore) Insert(ctx context.Context, job *Job) error {
	result, err := s.coll.InsertOne(ctx, job)
	if err != nil {
		return err
	}
	job.ID = result.InsertedID.(bson.ObjectID)
	return nil
}

// Get returns the job with the given id.
func (s *JobsStore) Get(ctx context.Context, id bson.ObjectID) (*Job, error) {
	var job Job
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&job)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, apperr.NotFound("job %s not found", id.Hex())
		}
		return nil, err
	}
	return &job, nil
}

// Replace overwrites the stored job document with the provided state.
func (s *JobsStore) Replace(ctx context.Context, job *Job) error {
	job.UpdatedAt = time.Now()
	result, err := s.coll.ReplaceOne(ctx, bson.M{"_id": job.ID}, job)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return apperr.NotFound("job %s not found", job.ID.Hex())
	}
	return nil
}

// Delete removes the job document entirely.
func (s *JobsStore) Delete(ctx context.Context, id bson.ObjectID) error {
	result, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return apperr.NotFound("job %s not found", id.Hex())
	}
	return nil
}

// ListByClient returns the client's jobs, newest first.
func (s *JobsStore) ListByClient(ctx context.Context, clientID bson.ObjectID, page, perPage int64) ([]*Job, error) {
	return s.list(ctx, bson.M{"client_id": clientID}, page, perPage)
}

// ListByProfessional returns jobs assigned to the professional, newest first.
func (s *JobsStore) ListByProfessional(ctx context.Context, proID bson.ObjectID, page, perPage int64) ([]*Job, error) {
	return s.list(ctx, bson.M{"professional_id": proID}, page, perPage)
}

// ListFeed returns open (Pending) jobs for professionals to browse,
// optionally filtered by category, newest first.
func (s *JobsStore) ListFeed(ctx context.Context, category string, page, perPage int64) ([]*Job, error) {
	filter := bson.M{"status": JobPending}
	if category != "" {
		filter["category"] = category
	}
	return s.list(ctx, filter, page, perPage)
}

func (s *JobsStore) list(ctx context.Context, filter bson.M, page, perPage int64) ([]*Job, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}

	opts := options.Find().
		SetSort(bson.M{"created_at": -1}).
		SetSkip((page - 1) * perPage).
		SetLimit(perPage)

	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var jobs []*Job
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}
