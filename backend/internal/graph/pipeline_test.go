package graph

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "memograph/backend/pkg/errors"
)

// syncHandler scripts a backend for whole pipeline runs: search rows come
// from the rows map keyed by search text, everything else succeeds with
// plausible write statistics
func syncHandler(searchRows map[string][]map[string]interface{}) queryHandler {
	return func(_, statement string, params map[string]interface{}) (QueryResult, error) {
		switch {
		case strings.Contains(statement, "CONTAINS toLower($text)"):
			text, _ := params["text"].(string)
			return QueryResult{Rows: searchRows[text], Statistics: map[string]int64{}}, nil
		case strings.Contains(statement, "ON CREATE SET"):
			return QueryResult{Statistics: map[string]int64{"nodes_created": 1}}, nil
		case strings.Contains(statement, "MERGE (a)-[r:"):
			return QueryResult{Statistics: map[string]int64{"relationships_created": 1}}, nil
		default:
			return QueryResult{Statistics: map[string]int64{}}, nil
		}
	}
}

func newPipeline(engine *testEngine, inferrer RelationshipInferrer) *Pipeline {
	return NewPipeline(engine.executor, inferrer, engine.cache, DefaultPipelineConfig())
}

func TestPipeline_FiltersLowConfidenceEntities(t *testing.T) {
	engine := newTestEngine(syncHandler(nil))
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{})

	result, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{Type: "Person", Name: "Sarah Johnson", Confidence: 0.9},
		{Type: "Topic", Name: "maybe a topic", Confidence: 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.NodesCreated)
	assert.Len(t, result.EntityNodes, 1)

	// The dropped candidate never reaches the backend, not even for search
	for _, q := range engine.dialer.queriesMatching("CONTAINS") {
		assert.NotEqual(t, "maybe a topic", q.params["text"])
	}
}

func TestPipeline_AllEntitiesFilteredIsEmptySuccess(t *testing.T) {
	engine := newTestEngine(syncHandler(nil))
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{})

	result, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{Type: "Person", Name: "x", Confidence: 0.1},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.NodesCreated)
	assert.Empty(t, engine.dialer.queriesMatching("CONTAINS"))
}

func TestPipeline_InvalidEntityFailsTheRun(t *testing.T) {
	engine := newTestEngine(syncHandler(nil))
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{})

	_, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{Type: "Starship", Name: "Enterprise", Confidence: 0.9},
	})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidEntity))
}

func TestPipeline_DedupeMergeAdoptsExistingNode(t *testing.T) {
	engine := newTestEngine(syncHandler(map[string][]map[string]interface{}{
		"sarah johnson": {
			{"entity_id": "existing-1", "type": "Person", "name": "Sarah Johnson"},
		},
	}))
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{})

	result, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{ID: "cand-1", Type: "Person", Name: "sarah johnson", Confidence: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.EntitiesMerged)

	// The result maps the caller's id onto the adopted node
	mapped, ok := result.EntityNodes["cand-1"]
	require.True(t, ok)
	assert.Equal(t, "existing-1", mapped.ID)

	// The upsert targeted the existing node, not a duplicate
	upserts := engine.dialer.queriesMatching("ON CREATE SET")
	require.Len(t, upserts, 1)
	assert.Equal(t, "existing-1", upserts[0].params["entity_id"])
}

func TestPipeline_DedupeIgnoresDifferentTypeAndWeakMatches(t *testing.T) {
	engine := newTestEngine(syncHandler(map[string][]map[string]interface{}{
		"Mercury": {
			// Same name, wrong type: never a merge target
			{"entity_id": "planet-1", "type": "Topic", "name": "Mercury"},
			// Right type, weak similarity
			{"entity_id": "tech-1", "type": "Technology", "name": "Mercury Mail Transport System"},
		},
	}))
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{})

	result, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{ID: "cand-1", Type: "Technology", Name: "Mercury", Confidence: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.EntitiesMerged)

	upserts := engine.dialer.queriesMatching("ON CREATE SET")
	require.Len(t, upserts, 1)
	assert.Equal(t, "cand-1", upserts[0].params["entity_id"])
}

func TestPipeline_WritesValidatedInferredRelationships(t *testing.T) {
	inferrer := &fakeInferrer{candidates: []CandidateRelationship{
		// Valid: Person WORKS_ON Project
		{FromID: "p1", FromType: "Person", ToID: "pr1", ToType: "Project", Type: "WORKS_ON"},
		// Invalid pair for the type: dropped, not an error
		{FromID: "pr1", FromType: "Project", ToID: "p1", ToType: "Person", Type: "WORKS_ON"},
		// Endpoint the run never saw: dropped
		{FromID: "ghost", FromType: "Person", ToID: "pr1", ToType: "Project", Type: "WORKS_ON"},
	}}
	engine := newTestEngine(syncHandler(nil))
	defer engine.close()
	pipeline := newPipeline(engine, inferrer)

	result, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{ID: "p1", Type: "Person", Name: "Sarah", Confidence: 0.9},
		{ID: "pr1", Type: "Project", Name: "Atlas", Confidence: 0.9},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.RelationshipsCreated)

	rels := engine.dialer.queriesMatching("MERGE (a)-[r:")
	require.Len(t, rels, 1)
	assert.Equal(t, "p1", rels[0].params["from_id"])
	assert.Equal(t, "pr1", rels[0].params["to_id"])
}

func TestPipeline_RollsBackCreatedNodesOnRelationshipFailure(t *testing.T) {
	base := syncHandler(nil)
	handler := func(graphName, statement string, params map[string]interface{}) (QueryResult, error) {
		if strings.Contains(statement, "MERGE (a)-[r:") {
			return QueryResult{}, fmt.Errorf("oom command not allowed")
		}
		return base(graphName, statement, params)
	}
	inferrer := &fakeInferrer{candidates: []CandidateRelationship{
		{FromID: "p1", FromType: "Person", ToID: "pr1", ToType: "Project", Type: "WORKS_ON"},
	}}
	engine := newTestEngine(handler)
	defer engine.close()
	pipeline := newPipeline(engine, inferrer)

	_, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{ID: "p1", Type: "Person", Name: "Sarah", Confidence: 0.9},
		{ID: "pr1", Type: "Project", Name: "Atlas", Confidence: 0.9},
	})
	require.Error(t, err)
	// The original failure surfaces, not a rollback artifact
	assert.True(t, apperrors.IsCode(err, apperrors.CodeResourceExhausted))

	// Every node created this run was compensated with a cascading delete
	deletes := engine.dialer.queriesMatching("DETACH DELETE")
	require.Len(t, deletes, 2)
	deleted := map[interface{}]bool{
		deletes[0].params["entity_id"]: true,
		deletes[1].params["entity_id"]: true,
	}
	assert.True(t, deleted["p1"])
	assert.True(t, deleted["pr1"])
}

func TestPipeline_RollsBackOnInferrerFailure(t *testing.T) {
	engine := newTestEngine(syncHandler(nil))
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{err: fmt.Errorf("inference backend unavailable")})

	_, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{ID: "p1", Type: "Person", Name: "Sarah", Confidence: 0.9},
	})
	require.Error(t, err)
	assert.Len(t, engine.dialer.queriesMatching("DETACH DELETE"), 1)
}

func TestPipeline_RollbackFailureDoesNotMaskOriginalError(t *testing.T) {
	handler := func(graphName, statement string, params map[string]interface{}) (QueryResult, error) {
		switch {
		case strings.Contains(statement, "DETACH DELETE"):
			return QueryResult{}, fmt.Errorf("connection reset by peer")
		case strings.Contains(statement, "ON CREATE SET"):
			return QueryResult{Statistics: map[string]int64{"nodes_created": 1}}, nil
		default:
			return QueryResult{Statistics: map[string]int64{}}, nil
		}
	}
	engine := newTestEngine(handler)
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{err: fmt.Errorf("inference backend unavailable")})

	_, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{ID: "p1", Type: "Person", Name: "Sarah", Confidence: 0.9},
	})
	require.Error(t, err)
	assert.ErrorContains(t, err, "inference backend unavailable",
		"rollback failure must not replace the original error")
}

func TestPipeline_ExistingNodeUpdateIsNotRolledBack(t *testing.T) {
	handler := func(graphName, statement string, params map[string]interface{}) (QueryResult, error) {
		switch {
		case strings.Contains(statement, "ON CREATE SET"):
			// Node already existed: the merge matched instead of creating
			return QueryResult{Statistics: map[string]int64{"properties_set": 2}}, nil
		default:
			return QueryResult{Statistics: map[string]int64{}}, nil
		}
	}
	engine := newTestEngine(handler)
	defer engine.close()
	pipeline := newPipeline(engine, &fakeInferrer{err: fmt.Errorf("inference backend unavailable")})

	_, err := pipeline.SyncEntities(context.Background(), "acme", []Entity{
		{ID: "p1", Type: "Person", Name: "Sarah", Confidence: 0.9},
	})
	require.Error(t, err)

	// Updated nodes predate the run; rollback only removes what it created
	assert.Empty(t, engine.dialer.queriesMatching("DETACH DELETE"))
}
