package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/Silent-Watcher/note-app-api/executor"
)

// ErrStoreUnavailable wraps every failure to reach the document store,
// including the breaker failing fast.
var ErrStoreUnavailable = errors.New("token store unavailable")

// DefaultCollection is the Mongo collection holding rotation records.
const DefaultCollection = "refresh_tokens"

// Store is the persistence boundary of the rotation engine.
//
// Claim is the heart of the rotation protocol: it atomically flips the
// record matching (userID, tokenHash) from valid to invalid and returns the
// record as it was before the flip, with claimed=true only for the caller
// that performed the flip. A concurrent duplicate request is therefore
// guaranteed to observe claimed=false — the reuse path — never a double
// win. A missing record returns (nil, false, nil).
type Store interface {
	Create(ctx context.Context, rec *Record) error
	Claim(ctx context.Context, userID, tokenHash string) (*Record, bool, error)
	MarkRevoked(ctx context.Context, id string, at time.Time) error
	InvalidateAll(ctx context.Context, userID string) (int64, error)
}

// MongoStore persists records in a Mongo collection. Every call runs
// through the document-store breaker; the atomic Claim rides on Mongo's
// single-document FindOneAndUpdate.
type MongoStore struct {
	col     *mongo.Collection
	breaker *executor.Breaker
}

// NewMongoStore creates a MongoStore over db's collection (DefaultCollection
// when empty).
func NewMongoStore(db *mongo.Database, collection string, breaker *executor.Breaker) *MongoStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &MongoStore{
		col:     db.Collection(collection),
		breaker: breaker,
	}
}

// Create inserts a new rotation record.
func (s *MongoStore) Create(ctx context.Context, rec *Record) error {
	res := executor.Run(ctx, s.breaker, func(ctx context.Context) (struct{}, error) {
		_, err := s.col.InsertOne(ctx, rec)
		return struct{}{}, err
	})
	if !res.Ok() {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
	return nil
}

type claimOutcome struct {
	rec     *Record
	claimed bool
}

// Claim implements the atomic valid-to-invalid compare-and-set described on
// the Store interface.
func (s *MongoStore) Claim(ctx context.Context, userID, tokenHash string) (*Record, bool, error) {
	res := executor.Run(ctx, s.breaker, func(ctx context.Context) (claimOutcome, error) {
		filter := bson.M{"user": userID, "hash": tokenHash, "status": TokenValid}
		update := bson.M{"$set": bson.M{"status": TokenInvalid}}
		opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

		var rec Record
		err := s.col.FindOneAndUpdate(ctx, filter, update, opts).Decode(&rec)
		if err == nil {
			return claimOutcome{rec: &rec, claimed: true}, nil
		}
		if !errors.Is(err, mongo.ErrNoDocuments) {
			return claimOutcome{}, err
		}

		// No valid record: either the token was never issued or it was
		// already rotated — the caller distinguishes the two.
		err = s.col.FindOne(ctx, bson.M{"user": userID, "hash": tokenHash}).Decode(&rec)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return claimOutcome{}, nil
		}
		if err != nil {
			return claimOutcome{}, err
		}
		return claimOutcome{rec: &rec}, nil
	})
	if !res.Ok() {
		return nil, false, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
	return res.Value.rec, res.Value.claimed, nil
}

// MarkRevoked stamps the record's revocation time. Used on the reuse path
// so the incident is visible in the collection.
func (s *MongoStore) MarkRevoked(ctx context.Context, id string, at time.Time) error {
	res := executor.Run(ctx, s.breaker, func(ctx context.Context) (struct{}, error) {
		_, err := s.col.UpdateByID(ctx, id, bson.M{"$set": bson.M{"revokedAt": at}})
		return struct{}{}, err
	})
	if !res.Ok() {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
	return nil
}

// InvalidateAll flips every record of the user to invalid and returns how
// many were affected.
func (s *MongoStore) InvalidateAll(ctx context.Context, userID string) (int64, error) {
	res := executor.Run(ctx, s.breaker, func(ctx context.Context) (int64, error) {
		out, err := s.col.UpdateMany(
			ctx,
			bson.M{"user": userID},
			bson.M{"$set": bson.M{"status": TokenInvalid}},
		)
		if err != nil {
			return 0, err
		}
		return out.ModifiedCount, nil
	})
	if !res.Ok() {
		return 0, fmt.Errorf("%w: %v", ErrStoreUnavailable, res.Err)
	}
	return res.Value, nil
}
