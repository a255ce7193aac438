package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/iota-uz/org-hierarchy/modules/org/domain/hierarchy"
)

// Cache stores fetched node lists per tenant. Entries are dropped as a whole
// per tenant whenever that tenant's hierarchy changes.
type Cache interface {
	Get(ctx context.Context, key string) ([]hierarchy.Node, bool, error)
	Set(ctx context.Context, tenantID uuid.UUID, key string, nodes []hierarchy.Node) error
	InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error
}

func hierarchyCacheKey(tenantID uuid.UUID, kind hierarchy.Kind, scope Scope) string {
	sector := "all"
	if scope.SectorID != nil {
		sector = scope.SectorID.String()
	}
	return fmt.Sprintf("org:hierarchy:%s:%s:%s", tenantID, kind, sector)
}

type cacheEntry struct {
	nodes     []hierarchy.Node
	expiresAt time.Time
}

type memoryCache struct {
	mu          sync.RWMutex
	ttl         time.Duration
	now         func() time.Time
	entries     map[string]cacheEntry
	tenantIndex map[uuid.UUID]map[string]struct{}
}

// NewMemoryCache keeps entries in process. A zero ttl never expires.
func NewMemoryCache(ttl time.Duration) Cache {
	return &memoryCache{
		ttl:         ttl,
		now:         time.Now,
		entries:     make(map[string]cacheEntry),
		tenantIndex: make(map[uuid.UUID]map[string]struct{}),
	}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]hierarchy.Node, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && c.now().After(e.expiresAt) {
		return nil, false, nil
	}
	return cloneNodes(e.nodes), true, nil
}

func (c *memoryCache) Set(_ context.Context, tenantID uuid.UUID, key string, nodes []hierarchy.Node) error {
	if tenantID == uuid.Nil || key == "" {
		return nil
	}
	e := cacheEntry{nodes: cloneNodes(nodes)}
	if c.ttl > 0 {
		e.expiresAt = c.now().Add(c.ttl)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = e
	if _, ok := c.tenantIndex[tenantID]; !ok {
		c.tenantIndex[tenantID] = make(map[string]struct{})
	}
	c.tenantIndex[tenantID][key] = struct{}{}
	return nil
}

func (c *memoryCache) InvalidateTenant(_ context.Context, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.tenantIndex[tenantID] {
		delete(c.entries, key)
	}
	delete(c.tenantIndex, tenantID)
	return nil
}

type redisCache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisCache stores node lists as JSON and tracks each tenant's keys in a
// set so a tenant can be invalidated in one round trip.
func NewRedisCache(client redis.UniversalClient, ttl time.Duration) Cache {
	return &redisCache{client: client, ttl: ttl}
}

func tenantIndexKey(tenantID uuid.UUID) string {
	return "org:hierarchy:tenant:" + tenantID.String()
}

func (c *redisCache) Get(ctx context.Context, key string) ([]hierarchy.Node, bool, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var nodes []hierarchy.Node
	if err := json.Unmarshal(b, &nodes); err != nil {
		return nil, false, err
	}
	return nodes, true, nil
}

func (c *redisCache) Set(ctx context.Context, tenantID uuid.UUID, key string, nodes []hierarchy.Node) error {
	if tenantID == uuid.Nil || key == "" {
		return nil
	}
	b, err := json.Marshal(nodes)
	if err != nil {
		return err
	}
	_, err = c.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, b, c.ttl)
		p.SAdd(ctx, tenantIndexKey(tenantID), key)
		return nil
	})
	return err
}

func (c *redisCache) InvalidateTenant(ctx context.Context, tenantID uuid.UUID) error {
	if tenantID == uuid.Nil {
		return nil
	}
	idx := tenantIndexKey(tenantID)
	keys, err := c.client.SMembers(ctx, idx).Result()
	if err != nil {
		return err
	}
	return c.client.Del(ctx, append(keys, idx)...).Err()
}

type noopCache struct{}

// NewNoopCache disables caching.
func NewNoopCache() Cache { return noopCache{} }

func (noopCache) Get(context.Context, string) ([]hierarchy.Node, bool, error) {
	return nil, false, nil
}

func (noopCache) Set(context.Context, uuid.UUID, string, []hierarchy.Node) error { return nil }

func (noopCache) InvalidateTenant(context.Context, uuid.UUID) error { return nil }

func cloneNodes(nodes []hierarchy.Node) []hierarchy.Node {
	if nodes == nil {
		return nil
	}
	out := make([]hierarchy.Node, len(nodes))
	for i, n := range nodes {
		out[i] = n
		if n.ParentID != nil {
			p := *n.ParentID
			out[i].ParentID = &p
		}
	}
	return out
}
