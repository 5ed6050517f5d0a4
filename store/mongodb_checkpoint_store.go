package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/root-sector/customer-data-protection-module-encryption/interfaces"
	"github.com/root-sector/customer-data-protection-module-encryption/types"
)

const (
	checkpointCollection = "migration_checkpoints"

	cacheKeyPrefixCheckpoint = "checkpoint"

	// Short TTL: checkpoints change after every batch, the cache only
	// absorbs status polling bursts.
	defaultCheckpointCacheTTL = 5 * time.Second
)

// MongoCheckpointStore persists migration checkpoints, optionally fronted by
// a read cache for the operator status surface.
type MongoCheckpointStore struct {
	db       *mongo.Database
	cache    interfaces.Storage
	cacheTTL time.Duration
}

// NewMongoCheckpointStore creates a checkpoint store. The cache is optional;
// when nil every read hits the database.
func NewMongoCheckpointStore(db *mongo.Database, cache interfaces.Storage) interfaces.CheckpointStore {
	return &MongoCheckpointStore{
		db:       db,
		cache:    cache,
		cacheTTL: defaultCheckpointCacheTTL,
	}
}

func checkpointCacheKey(runID string) string {
	return fmt.Sprintf("%s:%s", cacheKeyPrefixCheckpoint, runID)
}

// Get returns the checkpoint for a run ID.
func (s *MongoCheckpointStore) Get(ctx context.Context, runID string) (*types.Checkpoint, error) {
	if s.cache != nil {
		var cached types.Checkpoint
		if err := s.cache.Get(ctx, checkpointCacheKey(runID), &cached); err == nil {
			return &cached, nil
		}
	}

	var cp types.Checkpoint
	err := s.db.Collection(checkpointCollection).FindOne(ctx, bson.M{"_id": runID}).Decode(&cp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, interfaces.ErrCheckpointNotFound
		}
		return nil, fmt.Errorf("failed to get checkpoint %s: %w", runID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, checkpointCacheKey(runID), &cp, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("Failed to cache checkpoint")
		}
	}
	return &cp, nil
}

// FindByTable returns the most recently started checkpoint for a table, or
// nil when the table has never been migrated.
func (s *MongoCheckpointStore) FindByTable(ctx context.Context, table string) (*types.Checkpoint, error) {
	var cp types.Checkpoint
	err := s.db.Collection(checkpointCollection).FindOne(
		ctx,
		bson.M{"table": table},
		options.FindOne().SetSort(bson.D{{Key: "startedAt", Value: -1}}),
	).Decode(&cp)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find checkpoint for table %s: %w", table, err)
	}
	return &cp, nil
}

// Save creates or replaces a checkpoint and refreshes the cache so status
// reads observe the latest batch immediately.
func (s *MongoCheckpointStore) Save(ctx context.Context, cp *types.Checkpoint) error {
	_, err := s.db.Collection(checkpointCollection).ReplaceOne(
		ctx,
		bson.M{"_id": cp.RunID},
		cp,
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", cp.RunID, err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, checkpointCacheKey(cp.RunID), cp, s.cacheTTL); err != nil {
			log.Warn().Err(err).Str("run_id", cp.RunID).Msg("Failed to cache checkpoint")
		}
	}

	log.Debug().
		Str("run_id", cp.RunID).
		Str("table", cp.Table).
		Str("status", string(cp.Status)).
		Str("last_key", cp.LastKey).
		Int64("scanned", cp.Counts.Scanned).
		Msg("Checkpoint saved")
	return nil
}
