package graph

import (
	"context"
	"time"

	"go.uber.org/zap"

	"memograph/backend/internal/cache"
	"memograph/backend/pkg/errors"
	"memograph/backend/pkg/logger"
)

// ============================================================================
// Graph Service
// ============================================================================
//
// Service is the engine's call surface: raw statement execution, the typed
// read path with cache-aside semantics, and entity-scoped mutations with
// their invalidation contract.

// Service exposes the engine to callers
type Service struct {
	executor *Executor
	pool     *Pool
	resolver *Resolver
	cache    *cache.Cache
	logger   *zap.Logger
}

// NewService wires the engine's call surface
func NewService(executor *Executor, pool *Pool, resolver *Resolver, c *cache.Cache) *Service {
	return &Service{
		executor: executor,
		pool:     pool,
		resolver: resolver,
		cache:    c,
		logger:   logger.Get(),
	}
}

// Execute runs one raw statement for a tenant, cache-aside for reads. A
// raw statement's blast radius is not scoped to any entity, so one that
// mutated anything drops the tenant's stats slot and every outstanding
// query-cache entry.
func (s *Service) Execute(ctx context.Context, tenantID, statement string, params map[string]interface{}) (QueryResult, error) {
	key := cache.QueryKey(tenantID, statement, params)
	var cached QueryResult
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	result, err := s.executor.Execute(ctx, tenantID, BatchOperation{Statement: statement, Params: params})
	if err != nil {
		return QueryResult{}, err
	}
	if mutated(result.Statistics) {
		s.cache.InvalidateStats(ctx, tenantID)
		s.cache.InvalidateTenantQueries(ctx, tenantID)
		return result, nil
	}

	s.cache.PutQuery(tenantID, key, result, false)
	return result, nil
}

// ExecuteBatch runs ordered statements with fail-fast semantics. Any
// mutation invalidates the tenant's stats cache; a batch's blast radius is
// not scoped, so the query cache is dropped too.
func (s *Service) ExecuteBatch(ctx context.Context, tenantID string, ops []BatchOperation) ([]OperationResult, error) {
	results, err := s.executor.RunBatch(ctx, tenantID, ops)

	anyMutation := false
	for _, r := range results {
		if r.Outcome != OutcomeNoOp {
			anyMutation = true
			break
		}
	}
	if anyMutation {
		s.cache.InvalidateStats(ctx, tenantID)
		s.cache.InvalidateTenantQueries(ctx, tenantID)
	}
	return results, err
}

// ResolveNamespace returns the tenant's graph name, creating it on first use
func (s *Service) ResolveNamespace(ctx context.Context, tenantID string) (string, error) {
	return s.resolver.Resolve(ctx, tenantID)
}

// Health reports pool status
func (s *Service) Health() HealthStatus {
	return s.pool.Health()
}

// ============================================================================
// Read Path
// ============================================================================

// Neighborhood fetches an entity's neighborhood at the given depth,
// cache-aside
func (s *Service) Neighborhood(ctx context.Context, tenantID, entityID string, depth int) (*Neighborhood, error) {
	op, err := BuildNeighborhood(tenantID, entityID, depth)
	if err != nil {
		return nil, err
	}

	key := cache.NeighborhoodKey(tenantID, entityID, depth)
	var cached Neighborhood
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	result, err := s.executor.Execute(ctx, tenantID, op)
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, errors.New(errors.CodeGraphNotFound, "entity not found: "+entityID, nil)
	}

	neighborhood := &Neighborhood{Depth: depth}
	seen := make(map[string]bool)
	for i, row := range result.Rows {
		if i == 0 {
			neighborhood.Center = NodeRef{
				EntityID: getStringFromRow(row, "center_id"),
				Type:     getStringFromRow(row, "center_type"),
				Name:     getStringFromRow(row, "center_name"),
			}
		}
		neighborID := getStringFromRow(row, "neighbor_id")
		if neighborID == "" || neighborID == entityID || seen[neighborID] {
			continue
		}
		seen[neighborID] = true
		neighborhood.Neighbors = append(neighborhood.Neighbors, NodeRef{
			EntityID: neighborID,
			Type:     getStringFromRow(row, "neighbor_type"),
			Name:     getStringFromRow(row, "neighbor_name"),
		})
	}

	s.cache.PutNeighborhood(key, neighborhood)
	return neighborhood, nil
}

// Search finds tenant nodes by name, cache-aside with the shorter search TTL
func (s *Service) Search(ctx context.Context, tenantID, text string, limit int) ([]SearchResult, error) {
	op := BuildSearch(tenantID, text, limit)

	key := cache.QueryKey(tenantID, op.Statement, op.Params)
	var cached []SearchResult
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	result, err := s.executor.Execute(ctx, tenantID, op)
	if err != nil {
		return nil, err
	}

	hits := make([]SearchResult, 0, len(result.Rows))
	for _, row := range result.Rows {
		name := getStringFromRow(row, "name")
		hits = append(hits, SearchResult{
			EntityID: getStringFromRow(row, "entity_id"),
			Type:     getStringFromRow(row, "type"),
			Name:     name,
			Score:    NameSimilarity(text, name),
		})
	}

	s.cache.PutQuery(tenantID, key, hits, true)
	return hits, nil
}

// Stats aggregates the tenant's graph shape, cache-aside on the tenant's
// single stats slot
func (s *Service) Stats(ctx context.Context, tenantID string) (*TenantStats, error) {
	key := cache.StatsKey(tenantID)
	var cached TenantStats
	if s.cache.Get(ctx, key, &cached) {
		return &cached, nil
	}

	nodeRes, err := s.executor.Execute(ctx, tenantID, BuildNodeStats(tenantID))
	if err != nil {
		return nil, err
	}
	relRes, err := s.executor.Execute(ctx, tenantID, BuildRelationshipStats(tenantID))
	if err != nil {
		return nil, err
	}
	connectedRes, err := s.executor.Execute(ctx, tenantID, BuildMostConnected(tenantID, 5))
	if err != nil {
		return nil, err
	}

	stats := &TenantStats{NodesByType: make(map[string]int64)}
	for _, row := range nodeRes.Rows {
		nodeType := getStringFromRow(row, "type")
		count := getInt64FromRow(row, "node_count")
		if nodeType != "" {
			stats.NodesByType[nodeType] = count
			stats.NodeCount += count
		}
	}
	if len(relRes.Rows) > 0 {
		stats.RelationshipCount = getInt64FromRow(relRes.Rows[0], "relationship_count")
	}
	for _, row := range connectedRes.Rows {
		stats.MostConnected = append(stats.MostConnected, ConnectedNode{
			EntityID: getStringFromRow(row, "entity_id"),
			Name:     getStringFromRow(row, "name"),
			Type:     getStringFromRow(row, "type"),
			Degree:   getInt64FromRow(row, "degree"),
		})
	}

	s.cache.PutStats(key, stats)
	return stats, nil
}

// ============================================================================
// Mutations
// ============================================================================

// UpdateNode writes properties on an existing node
func (s *Service) UpdateNode(ctx context.Context, tenantID, entityID string, props map[string]interface{}) error {
	op, err := BuildSetNodeProperties(tenantID, entityID, props)
	if err != nil {
		return err
	}
	result, err := s.executor.Execute(ctx, tenantID, op)
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		return errors.New(errors.CodeGraphNotFound, "entity not found: "+entityID, nil)
	}
	s.invalidateEntityScoped(ctx, tenantID, entityID)
	return nil
}

// DeleteNode removes a node and, by cascade, all its relationships
func (s *Service) DeleteNode(ctx context.Context, tenantID, entityID string) error {
	if _, err := s.executor.Execute(ctx, tenantID, BuildDeleteNode(tenantID, entityID)); err != nil {
		return err
	}
	s.invalidateEntityScoped(ctx, tenantID, entityID)
	return nil
}

// CreateRelationship upserts one edge after validating the type pair
func (s *Service) CreateRelationship(ctx context.Context, tenantID string, rel Relationship, fromType, toType string) error {
	if err := ValidateRelationship(rel.Type, fromType, toType); err != nil {
		return err
	}
	op, err := BuildCreateRelationship(tenantID, rel)
	if err != nil {
		return err
	}
	result, err := s.executor.Execute(ctx, tenantID, op)
	if err != nil {
		return err
	}
	if len(result.Rows) == 0 {
		return errors.New(errors.CodeGraphNotFound, "relationship endpoints not found", nil)
	}
	s.invalidateEntityScoped(ctx, tenantID, rel.FromID, rel.ToID)
	return nil
}

// DeleteRelationship removes one edge
func (s *Service) DeleteRelationship(ctx context.Context, tenantID, fromID, toID, relType string) error {
	op, err := BuildDeleteRelationship(tenantID, fromID, toID, relType)
	if err != nil {
		return err
	}
	if _, err := s.executor.Execute(ctx, tenantID, op); err != nil {
		return err
	}
	s.invalidateEntityScoped(ctx, tenantID, fromID, toID)
	return nil
}

// MergeEntities absorbs the losing entity into the winning one: every
// incident relationship moves over with its original type and properties,
// property bags merge per policy, mention counts sum, the earliest
// first-seen timestamp survives, and the loser is deleted
func (s *Service) MergeEntities(ctx context.Context, tenantID, losingID, winningID string, policy MergePolicy) error {
	if losingID == winningID {
		return errors.New(errors.CodeInvalidEntity, "cannot merge an entity into itself", nil)
	}

	loser, err := s.fetchNode(ctx, tenantID, losingID)
	if err != nil {
		return err
	}
	winner, err := s.fetchNode(ctx, tenantID, winningID)
	if err != nil {
		return err
	}

	var ops []BatchOperation

	// Move the loser's edges onto the winner, preserving type and
	// properties. The type arrives as data and goes back through the
	// known-type table before inlining.
	outgoing, err := s.executor.Execute(ctx, tenantID, BuildOutgoingRelationships(tenantID, losingID))
	if err != nil {
		return err
	}
	incoming, err := s.executor.Execute(ctx, tenantID, BuildIncomingRelationships(tenantID, losingID))
	if err != nil {
		return err
	}
	touched := []string{losingID, winningID}
	for _, spec := range []struct {
		rows     []map[string]interface{}
		outgoing bool
	}{{outgoing.Rows, true}, {incoming.Rows, false}} {
		for _, row := range spec.rows {
			relType := getStringFromRow(row, "rel_type")
			otherID := getStringFromRow(row, "other_id")
			if otherID == "" || otherID == winningID {
				continue
			}
			op, err := BuildCopyRelationship(tenantID, winningID, otherID, relType, spec.outgoing, getMapFromRow(row, "props"))
			if err != nil {
				return err
			}
			ops = append(ops, op)
			touched = append(touched, otherID)
		}
	}

	// Merged property bag, summed mentions, earliest first-seen
	mergedProps := MergeProperties(loser.Properties, winner.Properties, policy)
	if len(mergedProps) > 0 {
		op, err := BuildSetNodeProperties(tenantID, winningID, mergedProps)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	firstMentioned := winner.FirstMentioned
	if !loser.FirstMentioned.IsZero() && loser.FirstMentioned.Before(winner.FirstMentioned) {
		firstMentioned = loser.FirstMentioned
	}
	ops = append(ops, BuildMergeCounters(tenantID, winningID,
		loser.MentionCount+winner.MentionCount, firstMentioned.UTC().Format(time.RFC3339)))
	ops = append(ops, BuildDeleteNode(tenantID, losingID))

	if _, err := s.executor.RunBatch(ctx, tenantID, ops); err != nil {
		return err
	}

	s.cache.InvalidateStats(ctx, tenantID)
	s.cache.InvalidateEntities(ctx, tenantID, touched)
	s.cache.InvalidateTenantQueries(ctx, tenantID)

	s.logger.Info("Entities merged",
		zap.String("tenant_id", tenantID),
		zap.String("losing_id", losingID),
		zap.String("winning_id", winningID),
		zap.String("policy", string(policy)),
	)
	return nil
}

func (s *Service) fetchNode(ctx context.Context, tenantID, entityID string) (*Node, error) {
	result, err := s.executor.Execute(ctx, tenantID, BuildNodeWithProperties(tenantID, entityID))
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return nil, errors.New(errors.CodeGraphNotFound, "entity not found: "+entityID, nil)
	}

	row := result.Rows[0]
	node := &Node{
		EntityID:     getStringFromRow(row, "entity_id"),
		Type:         getStringFromRow(row, "type"),
		Name:         getStringFromRow(row, "name"),
		MentionCount: getInt64FromRow(row, "mention_count"),
	}
	if ts := getStringFromRow(row, "first_mentioned"); ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			node.FirstMentioned = parsed
		}
	}

	props := getMapFromRow(row, "props")
	node.Properties = make(map[string]interface{}, len(props))
	for k, v := range props {
		switch k {
		case "tenant_id", "entity_id", "name", "mention_count", "first_mentioned":
			continue
		}
		node.Properties[k] = v
	}
	return node, nil
}

func (s *Service) invalidateEntityScoped(ctx context.Context, tenantID string, entityIDs ...string) {
	s.cache.InvalidateStats(ctx, tenantID)
	s.cache.InvalidateEntities(ctx, tenantID, entityIDs)
}

func mutated(stats map[string]int64) bool {
	for _, key := range []string{
		"nodes_created", "nodes_deleted",
		"relationships_created", "relationships_deleted",
		"properties_set", "labels_added",
	} {
		if stats[key] > 0 {
			return true
		}
	}
	return false
}
