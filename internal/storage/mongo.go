package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/clipjobs/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// JobsCollection is the collection holding job documents
const JobsCollection = "jobs"

// MongoStore persists jobs as MongoDB documents
type MongoStore struct {
	coll   *mongo.Collection
	logger *slog.Logger
}

// NewMongoStore creates a store over the given collection
func NewMongoStore(coll *mongo.Collection, logger *slog.Logger) *MongoStore {
	return &MongoStore{
		coll:   coll,
		logger: logger,
	}
}

// EnsureIndexes creates the unique job_id index and the s3_key secondary index
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "job_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "s3_key", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "type", Value: 1}, {Key: "created_at", Value: 1}}},
	})
	if err != nil {
		return domain.NewPersistenceError(fmt.Sprintf("failed to create indexes: %v", err), err)
	}
	return nil
}

// now is truncated to the millisecond precision BSON dates keep
func mongoNow() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

func (s *MongoStore) Create(ctx context.Context, in domain.NewJob) (*domain.Job, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	job := in.Build(uuid.NewString(), mongoNow())
	if _, err := s.coll.InsertOne(ctx, job); err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to create job: %v", err), err)
	}

	s.logger.Info("Job created",
		slog.String("job_id", job.JobID),
		slog.String("job_type", string(job.Type)),
	)

	return job, nil
}

// Update reads, merges and replaces the document guarded by its previous updated_at
func (s *MongoStore) Update(ctx context.Context, jobID string, update domain.JobUpdate) (*domain.Job, error) {
	if err := update.Validate(); err != nil {
		return nil, err
	}

	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		s.logger.Warn("Update skipped - job not found",
			slog.String("job_id", jobID),
		)
		return nil, nil
	}

	previous := job.UpdatedAt
	now := mongoNow()
	if !now.After(previous) {
		now = previous.Add(time.Millisecond)
	}
	if err := job.Apply(update, now); err != nil {
		return nil, err
	}

	result, err := s.coll.ReplaceOne(ctx, bson.M{"job_id": jobID, "updated_at": previous}, job)
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to update job: %v", err), err)
	}
	if result.MatchedCount == 0 {
		return nil, domain.NewPersistenceError("failed to update job: concurrent modification", nil)
	}

	s.logger.Info("Job updated",
		slog.String("job_id", jobID),
		slog.String("status", string(job.Status)),
	)

	return job, nil
}

func (s *MongoStore) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	filter := bson.M{"job_id": jobID, "status": domain.JobStatusPending}
	change := bson.M{"$set": bson.M{"status": domain.JobStatusProcessing, "updated_at": mongoNow()}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var job domain.Job
	err := s.coll.FindOneAndUpdate(ctx, filter, change, opts).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to claim job: %v", err), err)
	}

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("job_type", string(job.Type)),
	)

	return &job, nil
}

func (s *MongoStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	err := s.coll.FindOne(ctx, bson.M{"job_id": jobID}).Decode(&job)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to get job: %v", err), err)
	}
	return &job, nil
}

func (s *MongoStore) ListAll(ctx context.Context) ([]domain.Job, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "job_id", Value: 1}})
	return s.find(ctx, bson.M{}, opts)
}

func (s *MongoStore) ListPending(ctx context.Context, jobType domain.JobType) ([]domain.Job, error) {
	filter := bson.M{"status": domain.JobStatusPending}
	if jobType != "" {
		filter["type"] = jobType
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}, {Key: "job_id", Value: 1}})
	return s.find(ctx, filter, opts)
}

func (s *MongoStore) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := bson.M{}
	if filter.UserID != "" {
		query["user_id"] = filter.UserID
	}
	if filter.JobType != "" {
		query["type"] = filter.JobType
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	if c := filter.Cursor; c != nil {
		query["$or"] = bson.A{
			bson.M{"created_at": bson.M{"$lt": c.CreatedAt}},
			bson.M{"created_at": c.CreatedAt, "job_id": bson.M{"$lt": c.JobID}},
		}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "job_id", Value: -1}}).
		SetLimit(int64(filter.pageSize() + 1))
	return s.find(ctx, query, opts)
}

func (s *MongoStore) DeleteByS3Key(ctx context.Context, key string) (int64, error) {
	result, err := s.coll.DeleteMany(ctx, bson.M{"s3_key": key})
	if err != nil {
		return 0, domain.NewPersistenceError(fmt.Sprintf("failed to delete jobs: %v", err), err)
	}

	s.logger.Info("Jobs deleted by s3 key",
		slog.String("s3_key", key),
		slog.Int64("removed", result.DeletedCount),
	)

	return result.DeletedCount, nil
}

func (s *MongoStore) find(ctx context.Context, filter interface{}, opts *options.FindOptions) ([]domain.Job, error) {
	cursor, err := s.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to list jobs: %v", err), err)
	}
	defer cursor.Close(ctx)

	jobs := []domain.Job{}
	if err := cursor.All(ctx, &jobs); err != nil {
		return nil, domain.NewPersistenceError(fmt.Sprintf("failed to decode jobs: %v", err), err)
	}
	return jobs, nil
}
