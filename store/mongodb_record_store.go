// Package store provides MongoDB-backed implementations of the record,
// checkpoint, and snapshot store interfaces.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

const fieldPrefix = "fields."

// MongoRecordStore implements record access over MongoDB collections. One
// collection per table; the record's primary key is the document _id.
type MongoRecordStore struct {
	db *mongo.Database
}

// NewMongoRecordStore creates a MongoDB record store.
func NewMongoRecordStore(db *mongo.Database) interfaces.RecordStore {
	return &MongoRecordStore{db: db}
}

// Scan returns up to limit records with _id strictly greater than afterKey,
// in ascending _id order. The scope filter is pushed down as field equality
// so out-of-scope documents never leave the server.
func (s *MongoRecordStore) Scan(ctx context.Context, table string, afterKey string, limit int, scope types.ScopeFilter) ([]types.Record, error) {
	filter := bson.M{"_id": bson.M{"$gt": afterKey}}
	for k, v := range scope {
		filter[fieldPrefix+k] = v
	}

	cursor, err := s.db.Collection(table).Find(
		ctx,
		filter,
		options.Find().
			SetSort(bson.D{{Key: "_id", Value: 1}}).
			SetLimit(int64(limit)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", table, err)
	}
	defer cursor.Close(ctx)

	var records []types.Record
	if err := cursor.All(ctx, &records); err != nil {
		return nil, fmt.Errorf("failed to decode records from %s: %w", table, err)
	}
	return records, nil
}

// Get returns a single record by _id.
func (s *MongoRecordStore) Get(ctx context.Context, table string, id string) (*types.Record, error) {
	var record types.Record
	err := s.db.Collection(table).FindOne(ctx, bson.M{"_id": id}).Decode(&record)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get record %s from %s: %w", id, table, err)
	}
	return &record, nil
}

// UpdateField sets a field iff the stored value still equals expected. The
// compare-and-set is a single conditional update, so a concurrent writer can
// never be clobbered between read and write.
func (s *MongoRecordStore) UpdateField(ctx context.Context, table string, id string, field string, expected string, value string) error {
	result, err := s.db.Collection(table).UpdateOne(
		ctx,
		bson.M{"_id": id, fieldPrefix + field: expected},
		bson.M{"$set": bson.M{fieldPrefix + field: value}},
	)
	if err != nil {
		return fmt.Errorf("failed to update field %s on %s/%s: %w", field, table, id, err)
	}
	if result.MatchedCount > 0 {
		return nil
	}

	// Distinguish a lost race from a deleted record.
	count, err := s.db.Collection(table).CountDocuments(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("failed to check record %s/%s: %w", table, id, err)
	}
	if count == 0 {
		return interfaces.ErrRecordNotFound
	}
	return interfaces.ErrWriteConflict
}

// PutField writes a field unconditionally. Rollback only.
func (s *MongoRecordStore) PutField(ctx context.Context, table string, id string, field string, value string) error {
	result, err := s.db.Collection(table).UpdateOne(
		ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{fieldPrefix + field: value}},
	)
	if err != nil {
		return fmt.Errorf("failed to put field %s on %s/%s: %w", field, table, id, err)
	}
	if result.MatchedCount == 0 {
		return interfaces.ErrRecordNotFound
	}
	return nil
}
