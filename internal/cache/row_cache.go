package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"tankwatch-chart/internal/models"
)

// RowCache last rendering of each view, shared with other processes.
type RowCache struct {
	kv     KVStore
	ttl    time.Duration
	logger *zap.Logger
}

// NewRowCache entries expire after ttl unless rewritten.
func NewRowCache(kv KVStore, ttl time.Duration, logger *zap.Logger) *RowCache {
	return &RowCache{
		kv:     kv,
		ttl:    ttl,
		logger: logger,
	}
}

func rowsKey(viewID string) string {
	return fmt.Sprintf("chart:view:%s:rows", viewID)
}

// Store writes the snapshot as JSON.
func (c *RowCache) Store(ctx context.Context, snapshot *models.ViewSnapshot) error {
	key := rowsKey(snapshot.ViewID)

	jsonData, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal view snapshot: %w", err)
	}

	if err := c.kv.Set(ctx, key, string(jsonData), c.ttl); err != nil {
		return fmt.Errorf("failed to set cache: %w", err)
	}

	c.logger.Debug("Updated view rows cache",
		zap.String("view_id", snapshot.ViewID),
		zap.String("key", key),
		zap.Int("rows", len(snapshot.Rows)),
	)
	return nil
}

// Load returns ErrCacheMiss when nothing is cached for viewID.
func (c *RowCache) Load(ctx context.Context, viewID string) (*models.ViewSnapshot, error) {
	raw, err := c.kv.Get(ctx, rowsKey(viewID))
	if err != nil {
		return nil, err
	}

	var snapshot models.ViewSnapshot
	if err := json.Unmarshal([]byte(raw), &snapshot); err != nil {
		return nil, fmt.Errorf("failed to unmarshal view snapshot: %w", err)
	}
	return &snapshot, nil
}

// Evict removes a closed view's entry.
func (c *RowCache) Evict(ctx context.Context, viewID string) error {
	return c.kv.Del(ctx, rowsKey(viewID))
}
