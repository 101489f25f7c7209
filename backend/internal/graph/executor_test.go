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

func batchOp(tag string) BatchOperation {
	return BatchOperation{
		Statement: fmt.Sprintf("MERGE (n {tenant_id: $tenant_id, tag: '%s'})", tag),
		Params:    map[string]interface{}{"tenant_id": "acme"},
	}
}

func TestExecutor_RunBatchInOrder(t *testing.T) {
	engine := newTestEngine(func(_, statement string, _ map[string]interface{}) (QueryResult, error) {
		return QueryResult{Statistics: map[string]int64{"nodes_created": 1}}, nil
	})
	defer engine.close()

	ops := []BatchOperation{batchOp("a"), batchOp("b"), batchOp("c"), batchOp("d"), batchOp("e")}
	results, err := engine.executor.RunBatch(context.Background(), "acme", ops)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for _, r := range results {
		assert.Equal(t, OutcomeCreated, r.Outcome)
	}

	var tags []string
	for _, q := range engine.dialer.queriesMatching("tag:") {
		tags = append(tags, q.statement)
	}
	require.Len(t, tags, 5)
	for i, tag := range []string{"a", "b", "c", "d", "e"} {
		assert.Contains(t, tags[i], fmt.Sprintf("tag: '%s'", tag), "operations must run in submission order")
	}
}

func TestExecutor_FailFastAbortsRemainingOperations(t *testing.T) {
	engine := newTestEngine(func(_, statement string, _ map[string]interface{}) (QueryResult, error) {
		if strings.Contains(statement, "tag: 'c'") {
			return QueryResult{}, fmt.Errorf("Syntax error at offset 3")
		}
		return QueryResult{Statistics: map[string]int64{"nodes_created": 1}}, nil
	})
	defer engine.close()

	ops := []BatchOperation{batchOp("a"), batchOp("b"), batchOp("c"), batchOp("d"), batchOp("e")}
	results, err := engine.executor.RunBatch(context.Background(), "acme", ops)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidQuery))

	// Two completed results come back alongside the error
	assert.Len(t, results, 2)

	// Operations after the failure never reach the backend
	executed := engine.dialer.queriesMatching("tag:")
	require.Len(t, executed, 3)
	assert.NotContains(t, executed[len(executed)-1].statement, "tag: 'd'")
}

func TestExecutor_ChunksLargeBatches(t *testing.T) {
	engine := newTestEngine(nil)
	defer engine.close()

	executor := NewExecutor(engine.pool, engine.resolver, 2)
	ops := []BatchOperation{batchOp("a"), batchOp("b"), batchOp("c"), batchOp("d"), batchOp("e")}
	results, err := executor.RunBatch(context.Background(), "acme", ops)
	require.NoError(t, err)
	assert.Len(t, results, 5)
	assert.Len(t, engine.dialer.queriesMatching("tag:"), 5)
}

func TestExecutor_ExecuteRoutesToTenantGraph(t *testing.T) {
	engine := newTestEngine(nil)
	defer engine.close()

	_, err := engine.executor.Execute(context.Background(), "acme", batchOp("x"))
	require.NoError(t, err)

	queries := engine.dialer.queriesMatching("tag: 'x'")
	require.Len(t, queries, 1)
	assert.Equal(t, "tenant_acme_kg", queries[0].graphName)
}

func TestExecutor_EmptyBatchIsNoOp(t *testing.T) {
	engine := newTestEngine(nil)
	defer engine.close()

	results, err := engine.executor.RunBatch(context.Background(), "acme", nil)
	require.NoError(t, err)
	assert.Nil(t, results)
	assert.Equal(t, 0, engine.dialer.dialCount())
}
