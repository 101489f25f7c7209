package graph

import (
	"context"

	"go.uber.org/zap"

	"memograph/backend/pkg/errors"
	"memograph/backend/pkg/logger"
)

// ============================================================================
// Batched Mutation Executor
// ============================================================================

// Executor runs ordered groups of statements through the pool, chunked to
// bound per-request backend load
type Executor struct {
	pool      *Pool
	resolver  *Resolver
	chunkSize int
	logger    *zap.Logger
}

// NewExecutor creates an executor over the given pool and resolver
func NewExecutor(pool *Pool, resolver *Resolver, chunkSize int) *Executor {
	if chunkSize < 1 {
		chunkSize = 10
	}
	return &Executor{
		pool:      pool,
		resolver:  resolver,
		chunkSize: chunkSize,
		logger:    logger.Get(),
	}
}

// Execute runs one statement for a tenant
func (e *Executor) Execute(ctx context.Context, tenantID string, op BatchOperation) (QueryResult, error) {
	graphName, err := e.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return QueryResult{}, err
	}

	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return QueryResult{}, err
	}
	defer e.pool.Release(conn)

	result, err := conn.Query(ctx, graphName, op.Statement, op.Params)
	if err != nil {
		return QueryResult{}, errors.Classify(err)
	}
	return result, nil
}

// RunBatch executes the operations in order, one pooled connection per
// chunk. A failure anywhere aborts the whole batch immediately: later
// chunks assume earlier ones succeeded, so skipping is never safe.
func (e *Executor) RunBatch(ctx context.Context, tenantID string, ops []BatchOperation) ([]OperationResult, error) {
	if len(ops) == 0 {
		return nil, nil
	}

	graphName, err := e.resolver.Resolve(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	results := make([]OperationResult, 0, len(ops))
	for start := 0; start < len(ops); start += e.chunkSize {
		end := start + e.chunkSize
		if end > len(ops) {
			end = len(ops)
		}

		chunkResults, err := e.runChunk(ctx, graphName, ops[start:end])
		results = append(results, chunkResults...)
		if err != nil {
			e.logger.Warn("Batch aborted",
				zap.String("tenant_id", tenantID),
				zap.Int("completed_operations", len(results)),
				zap.Int("total_operations", len(ops)),
				zap.Error(err),
			)
			return results, err
		}
	}

	return results, nil
}

func (e *Executor) runChunk(ctx context.Context, graphName string, ops []BatchOperation) ([]OperationResult, error) {
	conn, err := e.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer e.pool.Release(conn)

	results := make([]OperationResult, 0, len(ops))
	for _, op := range ops {
		res, err := conn.Query(ctx, graphName, op.Statement, op.Params)
		if err != nil {
			return results, errors.Classify(err)
		}
		results = append(results, OperationResult{
			Outcome:    OutcomeFromStatistics(res.Statistics),
			Statistics: res.Statistics,
		})
	}
	return results, nil
}
