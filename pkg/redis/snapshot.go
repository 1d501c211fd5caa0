package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Ramsey-B/tally/pkg/metrics"
	"github.com/Ramsey-B/tally/pkg/tracing"
)

// DefaultSnapshotTTL bounds how long a dashboard snapshot is served
const DefaultSnapshotTTL = 5 * time.Second

// SnapshotCache is a read-through cache for dashboard views. Keys embed a per-election
// generation counter that every accepted write increments, so a write retires all
// snapshots of its election at once.
type SnapshotCache struct {
	client    *Client
	ttl       time.Duration
	keyPrefix string
}

func NewSnapshotCache(client *Client, ttl time.Duration, keyPrefix string) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultSnapshotTTL
	}
	if keyPrefix == "" {
		keyPrefix = "tally:"
	}
	return &SnapshotCache{
		client:    client,
		ttl:       ttl,
		keyPrefix: keyPrefix,
	}
}

func (s *SnapshotCache) generationKey(electionID string) string {
	return s.keyPrefix + "generation:" + electionID
}

func (s *SnapshotCache) snapshotKey(electionID string, generation int64, view string) string {
	return fmt.Sprintf("%sdashboard:%s:%d:%s", s.keyPrefix, electionID, generation, view)
}

// Generation returns the current write generation of an election, 0 before the first write
func (s *SnapshotCache) Generation(ctx context.Context, electionID string) (int64, error) {
	return s.client.generation(ctx, s.generationKey(electionID))
}

// Invalidate moves the election to a new generation
func (s *SnapshotCache) Invalidate(ctx context.Context, electionID string) error {
	_, err := s.client.bumpGeneration(ctx, s.generationKey(electionID))
	return err
}

// Fetch returns the cached view for the election's current generation or computes and
// stores it. Cache failures are logged and fall through to compute.
func Fetch[T any](ctx context.Context, cache *SnapshotCache, electionID, view string, compute func(ctx context.Context) (T, error)) (T, error) {
	if cache == nil {
		return compute(ctx)
	}

	ctx, span := tracing.StartSpan(ctx, "SnapshotCache.Fetch")
	defer span.End()

	logger := cache.client.logger.WithContext(ctx).WithFields(map[string]any{
		"election_id": electionID,
		"view":        view,
	})

	generation, err := cache.Generation(ctx, electionID)
	if err != nil {
		logger.WithError(err).Warn("failed to read dashboard generation, computing without cache")
		return compute(ctx)
	}

	key := cache.snapshotKey(electionID, generation, view)
	raw, found, err := cache.client.snapshot(ctx, key)
	switch {
	case err != nil:
		logger.WithError(err).Warn("failed to read dashboard snapshot")
	case found:
		var cached T
		if jsonErr := json.Unmarshal(raw, &cached); jsonErr == nil {
			metrics.RecordCacheLookup(true)
			return cached, nil
		}
		logger.Warn("discarding unreadable dashboard snapshot")
	}
	metrics.RecordCacheLookup(false)

	value, err := compute(ctx)
	if err != nil {
		return value, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		logger.WithError(err).Warn("failed to encode dashboard snapshot")
		return value, nil
	}
	if err := cache.client.storeSnapshot(ctx, key, data, cache.ttl); err != nil {
		logger.WithError(err).Warn("failed to store dashboard snapshot")
	}
	return value, nil
}
