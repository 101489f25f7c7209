// Package metadata is the boundary to the durable tenant metadata store.
// The engine only needs one mapping from it: tenant id to graph name.
package metadata

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Store persists tenant-to-graph mappings across process restarts
type Store interface {
	// GetGraphName returns the stored mapping, or ok=false when absent
	GetGraphName(ctx context.Context, tenantID string) (name string, ok bool, err error)
	// PutGraphName stores the mapping idempotently
	PutGraphName(ctx context.Context, tenantID, name string) error
}

const mappingKey = "graph_namespaces"

// RedisStore keeps the mappings in a Redis hash
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a store on the given client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetGraphName(ctx context.Context, tenantID string) (string, bool, error) {
	name, err := s.client.HGet(ctx, mappingKey, tenantID).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return name, true, nil
}

func (s *RedisStore) PutGraphName(ctx context.Context, tenantID, name string) error {
	return s.client.HSet(ctx, mappingKey, tenantID, name).Err()
}

// MemoryStore is an in-process Store for tests
type MemoryStore struct {
	mu       sync.Mutex
	mappings map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{mappings: make(map[string]string)}
}

func (s *MemoryStore) GetGraphName(_ context.Context, tenantID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.mappings[tenantID]
	return name, ok, nil
}

func (s *MemoryStore) PutGraphName(_ context.Context, tenantID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mappings[tenantID] = name
	return nil
}
