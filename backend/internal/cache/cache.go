// Package cache is the coherency layer between graph mutations and cached
// reads. Three families share one store: query results, per-entity
// neighborhoods and per-tenant stats. Every cache failure is soft — logged
// and treated as a miss — because caching must never fail the operation
// that produced the data.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"memograph/backend/internal/constants"
	"memograph/backend/pkg/logger"
)

// writeTimeout bounds the background goroutines that perform
// fire-and-forget cache writes
const writeTimeout = 5 * time.Second

// Config carries the per-family TTLs
type Config struct {
	QueryTTL        time.Duration
	SearchTTL       time.Duration
	NeighborhoodTTL time.Duration
	StatsTTL        time.Duration
}

// DefaultConfig returns the production TTLs
func DefaultConfig() Config {
	return Config{
		QueryTTL:        time.Hour,
		SearchTTL:       30 * time.Minute,
		NeighborhoodTTL: 30 * time.Minute,
		StatsTTL:        5 * time.Minute,
	}
}

// Cache is the coherency layer over a key-value store
type Cache struct {
	store  Store
	cfg    Config
	logger *zap.Logger
}

// New creates a cache over the given store
func New(store Store, cfg Config) *Cache {
	return &Cache{store: store, cfg: cfg, logger: logger.Get()}
}

// ============================================================================
// Keys
// ============================================================================
//
// Keys are plain strings shaped <family>:<tenant_id>:<discriminator>.

// QueryKey fingerprints a statement and its parameters
func QueryKey(tenantID, statement string, params map[string]interface{}) string {
	h := sha256.New()
	h.Write([]byte(statement))
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "|%s=%v", k, params[k])
	}
	return fmt.Sprintf("query:%s:%s", tenantID, hex.EncodeToString(h.Sum(nil))[:32])
}

// NeighborhoodKey addresses one entity's neighborhood at one depth
func NeighborhoodKey(tenantID, entityID string, depth int) string {
	return fmt.Sprintf("neighborhood:%s:%s:%d", tenantID, entityID, depth)
}

// StatsKey is the tenant's single stats slot
func StatsKey(tenantID string) string {
	return fmt.Sprintf("stats:%s", tenantID)
}

// registryKey is the per-tenant set of outstanding query-cache keys; the
// store has no prefix delete, so broad invalidation walks this set
func registryKey(tenantID string) string {
	return fmt.Sprintf("querykeys:%s", tenantID)
}

// ============================================================================
// Reads
// ============================================================================

// Get reads a cached value into dest; ok is false on miss or any store
// failure
func (c *Cache) Get(ctx context.Context, key string, dest interface{}) bool {
	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("Cache read failed, treating as miss",
			zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		c.logger.Warn("Cache entry undecodable, treating as miss",
			zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

// ============================================================================
// Writes
// ============================================================================

// PutQuery caches a query result in the background. search selects the
// shorter search TTL. The key lands in the tenant's registry set so broad
// invalidation can find it.
func (c *Cache) PutQuery(tenantID, key string, value interface{}, search bool) {
	ttl := c.cfg.QueryTTL
	if search {
		ttl = c.cfg.SearchTTL
	}
	c.putAsync(key, value, ttl, func(ctx context.Context) error {
		return c.store.AddToSet(ctx, registryKey(tenantID), key)
	})
}

// PutNeighborhood caches one neighborhood result in the background
func (c *Cache) PutNeighborhood(key string, value interface{}) {
	c.putAsync(key, value, c.cfg.NeighborhoodTTL, nil)
}

// PutStats caches a tenant's stats in the background
func (c *Cache) PutStats(key string, value interface{}) {
	c.putAsync(key, value, c.cfg.StatsTTL, nil)
}

// putAsync is the fire-and-forget write path: a spawned goroutine with its
// own deadline and error handling, never awaited by the read that filled it
func (c *Cache) putAsync(key string, value interface{}, ttl time.Duration, after func(context.Context) error) {
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("Cache value not serializable",
			zap.String("key", key), zap.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()

		if err := c.store.SetWithTTL(ctx, key, string(data), ttl); err != nil {
			c.logger.Warn("Cache write failed",
				zap.String("key", key), zap.Error(err))
			return
		}
		if after != nil {
			if err := after(ctx); err != nil {
				c.logger.Warn("Cache key registry update failed",
					zap.String("key", key), zap.Error(err))
			}
		}
	}()
}

// ============================================================================
// Invalidation
// ============================================================================

// InvalidateStats drops the tenant's stats slot. Runs on every successful
// mutation for the tenant.
func (c *Cache) InvalidateStats(ctx context.Context, tenantID string) {
	if err := c.store.Delete(ctx, StatsKey(tenantID)); err != nil {
		c.logger.Warn("Stats cache invalidation failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// InvalidateEntities drops the neighborhood entries for the affected
// entities at every valid depth
func (c *Cache) InvalidateEntities(ctx context.Context, tenantID string, entityIDs []string) {
	g, gctx := errgroup.WithContext(ctx)
	for _, entityID := range entityIDs {
		keys := make([]string, 0, constants.MaxNeighborhoodDepth)
		for depth := constants.MinNeighborhoodDepth; depth <= constants.MaxNeighborhoodDepth; depth++ {
			keys = append(keys, NeighborhoodKey(tenantID, entityID, depth))
		}
		g.Go(func() error {
			return c.store.Delete(gctx, keys...)
		})
	}
	if err := g.Wait(); err != nil {
		c.logger.Warn("Neighborhood cache invalidation failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}

// InvalidateTenantQueries drops every outstanding query-cache entry for the
// tenant. Used when a mutation's blast radius isn't easily scoped, like a
// bulk sync.
func (c *Cache) InvalidateTenantQueries(ctx context.Context, tenantID string) {
	registry := registryKey(tenantID)
	keys, err := c.store.SetMembers(ctx, registry)
	if err != nil {
		c.logger.Warn("Query cache registry read failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
		return
	}
	if len(keys) > 0 {
		if err := c.store.Delete(ctx, keys...); err != nil {
			c.logger.Warn("Query cache invalidation failed",
				zap.String("tenant_id", tenantID), zap.Error(err))
			return
		}
	}
	if err := c.store.Delete(ctx, registry); err != nil {
		c.logger.Warn("Query cache registry delete failed",
			zap.String("tenant_id", tenantID), zap.Error(err))
	}
}
