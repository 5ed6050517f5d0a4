package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

const snapshotCollection = "migration_snapshots"

// snapshotDoc stores one pre-image together with the snapshot it belongs to.
type snapshotDoc struct {
	SnapshotID          string `bson:"snapshotId"`
	types.SnapshotEntry `bson:",inline"`
}

// MongoSnapshotStore persists migration pre-images in MongoDB.
type MongoSnapshotStore struct {
	db *mongo.Database
}

// NewMongoSnapshotStore creates a MongoDB snapshot store.
func NewMongoSnapshotStore(db *mongo.Database) interfaces.SnapshotStore {
	return &MongoSnapshotStore{db: db}
}

// Append stores pre-images for one batch of a run.
func (s *MongoSnapshotStore) Append(ctx context.Context, snapshotID string, entries []types.SnapshotEntry) error {
	if len(entries) == 0 {
		return nil
	}

	docs := make([]interface{}, 0, len(entries))
	for _, entry := range entries {
		docs = append(docs, snapshotDoc{SnapshotID: snapshotID, SnapshotEntry: entry})
	}

	if _, err := s.db.Collection(snapshotCollection).InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("failed to append snapshot %s: %w", snapshotID, err)
	}

	log.Debug().
		Str("snapshot_id", snapshotID).
		Int("entries", len(entries)).
		Msg("Snapshot batch appended")
	return nil
}

// List returns every pre-image captured under a snapshot ID, in insertion
// order so rollback replays writes in the order they were taken.
func (s *MongoSnapshotStore) List(ctx context.Context, snapshotID string) ([]types.SnapshotEntry, error) {
	cursor, err := s.db.Collection(snapshotCollection).Find(ctx, bson.M{"snapshotId": snapshotID})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshot %s: %w", snapshotID, err)
	}
	defer cursor.Close(ctx)

	var docs []snapshotDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", snapshotID, err)
	}

	entries := make([]types.SnapshotEntry, 0, len(docs))
	for _, doc := range docs {
		entries = append(entries, doc.SnapshotEntry)
	}
	return entries, nil
}

// Delete discards a snapshot after the run has been verified.
func (s *MongoSnapshotStore) Delete(ctx context.Context, snapshotID string) error {
	result, err := s.db.Collection(snapshotCollection).DeleteMany(ctx, bson.M{"snapshotId": snapshotID})
	if err != nil {
		return fmt.Errorf("failed to delete snapshot %s: %w", snapshotID, err)
	}

	log.Debug().
		Str("snapshot_id", snapshotID).
		Int64("deleted", result.DeletedCount).
		Msg("Snapshot discarded")
	return nil
}
