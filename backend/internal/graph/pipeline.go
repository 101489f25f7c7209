package graph

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"memograph/backend/internal/cache"
	"memograph/backend/pkg/logger"
)

// ============================================================================
// Transactional Sync Pipeline
// ============================================================================
//
// One sync run is all-or-nothing from the caller's point of view: either
// every node and relationship for the run exists afterwards, or none do.
// Rollback is a synchronous compensating delete, not a backend-native
// transaction — a crash between write and rollback can leave orphaned
// nodes. That gap is accepted and documented, not hidden.

// RelationshipInferrer is the external collaborator that proposes
// relationships between entities
type RelationshipInferrer interface {
	InferRelationships(ctx context.Context, entities []Entity) ([]CandidateRelationship, error)
}

// PipelineConfig carries the sync tuning knobs
type PipelineConfig struct {
	// EntityConfidence drops candidate entities below it
	EntityConfidence float64
	// MergeConfidence merges a candidate into an existing entity at or
	// above it instead of creating a duplicate node
	MergeConfidence float64
	// Deadline caps one whole sync run
	Deadline time.Duration
}

// DefaultPipelineConfig returns the source-tuned defaults
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		EntityConfidence: 0.7,
		MergeConfidence:  0.85,
		Deadline:         60 * time.Second,
	}
}

// Pipeline orchestrates one sync run
type Pipeline struct {
	executor *Executor
	inferrer RelationshipInferrer
	cache    *cache.Cache
	cfg      PipelineConfig
	logger   *zap.Logger
}

// NewPipeline creates a sync pipeline
func NewPipeline(executor *Executor, inferrer RelationshipInferrer, c *cache.Cache, cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		executor: executor,
		inferrer: inferrer,
		cache:    c,
		cfg:      cfg,
		logger:   logger.Get(),
	}
}

// SyncEntities turns a batch of extracted entities into graph mutations
func (p *Pipeline) SyncEntities(ctx context.Context, tenantID string, entities []Entity) (*SyncResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Deadline)
	defer cancel()

	// filter: drop low-confidence candidates, validate the rest
	accepted := make([]Entity, 0, len(entities))
	for _, e := range entities {
		if e.Confidence < p.cfg.EntityConfidence {
			continue
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := ValidateEntity(e); err != nil {
			return nil, err
		}
		accepted = append(accepted, e)
	}

	result := &SyncResult{EntityNodes: make(map[string]Entity, len(accepted))}
	if len(accepted) == 0 {
		return result, nil
	}

	// dedupe-merge: map candidates onto sufficiently similar existing nodes
	merged, err := p.dedupeMerge(ctx, tenantID, accepted, result)
	if err != nil {
		return nil, err
	}

	// write-nodes
	createdIDs, err := p.writeNodes(ctx, tenantID, merged, result)
	if err != nil {
		p.rollback(ctx, tenantID, createdIDs)
		return nil, err
	}

	// write-relationships
	if err := p.writeRelationships(ctx, tenantID, merged, result); err != nil {
		p.rollback(ctx, tenantID, createdIDs)
		return nil, err
	}

	// commit: the mutations are durable; make the caches coherent
	p.invalidate(ctx, tenantID, merged)

	p.logger.Info("Sync run committed",
		zap.String("tenant_id", tenantID),
		zap.Int("nodes_created", result.NodesCreated),
		zap.Int("nodes_updated", result.NodesUpdated),
		zap.Int("relationships_created", result.RelationshipsCreated),
		zap.Int("entities_merged", result.EntitiesMerged),
	)
	return result, nil
}

// dedupeMerge searches for high-similarity existing entities and maps each
// candidate onto the match instead of creating a duplicate node
func (p *Pipeline) dedupeMerge(ctx context.Context, tenantID string, entities []Entity, result *SyncResult) ([]Entity, error) {
	merged := make([]Entity, 0, len(entities))
	for _, e := range entities {
		inputID := e.ID

		res, err := p.executor.Execute(ctx, tenantID, BuildSearch(tenantID, e.Name, 10))
		if err != nil {
			return nil, err
		}

		bestScore := 0.0
		bestID := ""
		for _, row := range res.Rows {
			existingID, _ := row["entity_id"].(string)
			existingType, _ := row["type"].(string)
			existingName, _ := row["name"].(string)
			if existingID == "" || existingID == e.ID || existingType != e.Type {
				continue
			}
			if score := NameSimilarity(e.Name, existingName); score > bestScore {
				bestScore = score
				bestID = existingID
			}
		}

		if bestScore >= p.cfg.MergeConfidence {
			p.logger.Debug("Merging candidate into existing entity",
				zap.String("tenant_id", tenantID),
				zap.String("candidate_id", e.ID),
				zap.String("existing_id", bestID),
				zap.Float64("similarity", bestScore),
			)
			e.ID = bestID
			result.EntitiesMerged++
		}

		result.EntityNodes[inputID] = e
		merged = append(merged, e)
	}
	return merged, nil
}

// writeNodes upserts every entity and tracks which ids were created in
// this run — those are the rollback set
func (p *Pipeline) writeNodes(ctx context.Context, tenantID string, entities []Entity, result *SyncResult) ([]string, error) {
	now := time.Now()
	ops := make([]BatchOperation, 0, len(entities))
	for _, e := range entities {
		op, err := BuildUpsertNode(tenantID, e, now)
		if err != nil {
			return nil, err
		}
		ops = append(ops, op)
	}

	outcomes, err := p.executor.RunBatch(ctx, tenantID, ops)

	// Outcomes cover completed operations even on failure; anything created
	// before the abort still needs rolling back
	var createdIDs []string
	for i, outcome := range outcomes {
		if i >= len(entities) {
			break
		}
		switch outcome.Outcome {
		case OutcomeCreated:
			createdIDs = append(createdIDs, entities[i].ID)
			result.NodesCreated++
		case OutcomeUpdated, OutcomeNoOp:
			result.NodesUpdated++
		}
	}

	if err != nil {
		return createdIDs, err
	}
	return createdIDs, nil
}

// writeRelationships delegates inference to the collaborator, validates the
// proposals against the relationship schema and writes the survivors
func (p *Pipeline) writeRelationships(ctx context.Context, tenantID string, entities []Entity, result *SyncResult) error {
	candidates, err := p.inferrer.InferRelationships(ctx, entities)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		return nil
	}

	known := make(map[string]bool, len(entities))
	for _, e := range entities {
		known[e.ID] = true
	}

	ops := make([]BatchOperation, 0, len(candidates))
	for _, c := range candidates {
		if !known[c.FromID] || !known[c.ToID] {
			p.logger.Debug("Dropping inferred relationship with unknown endpoint",
				zap.String("from_id", c.FromID), zap.String("to_id", c.ToID))
			continue
		}
		if err := ValidateRelationship(c.Type, c.FromType, c.ToType); err != nil {
			p.logger.Debug("Dropping inferred relationship with invalid type pair",
				zap.String("type", c.Type), zap.Error(err))
			continue
		}
		op, err := BuildCreateRelationship(tenantID, Relationship{
			FromID:     c.FromID,
			ToID:       c.ToID,
			Type:       c.Type,
			Properties: c.Properties,
		})
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}

	outcomes, err := p.executor.RunBatch(ctx, tenantID, ops)
	for _, outcome := range outcomes {
		if outcome.Statistics["relationships_created"] > 0 {
			result.RelationshipsCreated++
		}
	}
	return err
}

// rollback deletes every node created in this run. Cascading delete also
// removes any relationships created on them. Rollback failures are logged
// and never mask the original error.
func (p *Pipeline) rollback(ctx context.Context, tenantID string, createdIDs []string) {
	if len(createdIDs) == 0 {
		return
	}

	// The run's deadline may already be spent; rollback gets its own
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	p.logger.Warn("Rolling back partial sync",
		zap.String("tenant_id", tenantID),
		zap.Int("nodes", len(createdIDs)),
	)

	for _, entityID := range createdIDs {
		if _, err := p.executor.Execute(rctx, tenantID, BuildDeleteNode(tenantID, entityID)); err != nil {
			p.logger.Error("Rollback delete failed, node may be orphaned",
				zap.String("tenant_id", tenantID),
				zap.String("entity_id", entityID),
				zap.Error(err),
			)
		}
	}
}

// invalidate makes the cache coherent after a committed run: stats always,
// neighborhoods for every touched entity, and the whole query family
// because a bulk sync's blast radius isn't scoped
func (p *Pipeline) invalidate(ctx context.Context, tenantID string, entities []Entity) {
	if p.cache == nil {
		return
	}
	ids := make([]string, 0, len(entities))
	for _, e := range entities {
		ids = append(ids, e.ID)
	}
	p.cache.InvalidateStats(ctx, tenantID)
	p.cache.InvalidateEntities(ctx, tenantID, ids)
	p.cache.InvalidateTenantQueries(ctx, tenantID)
}
