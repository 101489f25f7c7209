package graph

import (
	"context"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"memograph/backend/internal/constants"
	"memograph/backend/internal/metadata"
	"memograph/backend/pkg/errors"
	"memograph/backend/pkg/logger"
)

// ============================================================================
// Namespace Resolver
// ============================================================================
//
// Maps a trusted tenant identifier to its isolated graph name. Like the
// pool, the resolver is a single goroutine owning its in-memory cache;
// serializing requests also means first-use graph creation happens at most
// once per tenant per process.

// tenantIDPattern is the allow-list for tenant identifiers. Lowercase
// only: ids are already canonical, so no folding happens downstream and
// two distinct ids can never derive the same graph name.
var tenantIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// ValidateTenantID checks a tenant identifier against the strict format
func ValidateTenantID(tenantID string) error {
	if tenantID == "" || len(tenantID) > constants.MaxTenantIDLength {
		return errors.New(errors.CodeInvalidTenant,
			fmt.Sprintf("tenant id must be 1-%d characters", constants.MaxTenantIDLength), nil)
	}
	if !tenantIDPattern.MatchString(tenantID) {
		return errors.New(errors.CodeInvalidTenant,
			"tenant id contains characters outside [a-z0-9_-]", nil)
	}
	return nil
}

// DeriveGraphName deterministically derives the graph name for a tenant.
// The validated id is embedded verbatim; the graph is the tenant's
// isolation boundary, so the mapping must be injective.
func DeriveGraphName(tenantID string) (string, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	return constants.GraphNamePrefix + tenantID + constants.GraphNameSuffix, nil
}

type resolveReply struct {
	graphName string
	err       error
}

type resolveRequest struct {
	ctx      context.Context
	tenantID string
	reply    chan resolveReply
}

// Resolver resolves tenant ids to graph names, creating graphs on first use
type Resolver struct {
	pool     *Pool
	store    metadata.Store
	requests chan resolveRequest
	done     chan struct{}
	logger   *zap.Logger
}

// NewResolver starts the resolver actor
func NewResolver(pool *Pool, store metadata.Store) *Resolver {
	r := &Resolver{
		pool:     pool,
		store:    store,
		requests: make(chan resolveRequest),
		done:     make(chan struct{}),
		logger:   logger.Get(),
	}
	go r.run()
	return r
}

// Resolve returns the tenant's graph name, creating the graph on first use
func (r *Resolver) Resolve(ctx context.Context, tenantID string) (string, error) {
	reply := make(chan resolveReply, 1)
	select {
	case r.requests <- resolveRequest{ctx: ctx, tenantID: tenantID, reply: reply}:
	case <-ctx.Done():
		return "", errors.Classify(ctx.Err())
	}
	select {
	case res := <-reply:
		return res.graphName, res.err
	case <-ctx.Done():
		return "", errors.Classify(ctx.Err())
	}
}

// Close stops the resolver actor
func (r *Resolver) Close() {
	close(r.done)
}

func (r *Resolver) run() {
	cache := make(map[string]string)

	for {
		select {
		case req := <-r.requests:
			name, err := r.resolve(req.ctx, cache, req.tenantID)
			req.reply <- resolveReply{graphName: name, err: err}
		case <-r.done:
			return
		}
	}
}

func (r *Resolver) resolve(ctx context.Context, cache map[string]string, tenantID string) (string, error) {
	if err := ValidateTenantID(tenantID); err != nil {
		return "", err
	}

	if name, ok := cache[tenantID]; ok {
		return name, nil
	}

	name, ok, err := r.store.GetGraphName(ctx, tenantID)
	if err != nil {
		return "", errors.Classify(err)
	}
	if ok {
		cache[tenantID] = name
		return name, nil
	}

	name, err = DeriveGraphName(tenantID)
	if err != nil {
		return "", err
	}

	// The backend creates a graph on its first statement; a trivial no-op
	// against the name is an idempotent create.
	if err := r.createGraph(ctx, name); err != nil {
		return "", err
	}

	if err := r.store.PutGraphName(ctx, tenantID, name); err != nil {
		return "", errors.Classify(err)
	}
	cache[tenantID] = name

	r.logger.Info("Tenant graph created",
		zap.String("tenant_id", tenantID),
		zap.String("graph_name", name),
	)
	return name, nil
}

func (r *Resolver) createGraph(ctx context.Context, graphName string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return err
	}
	defer r.pool.Release(conn)

	if _, err := conn.Query(ctx, graphName, "RETURN 1", nil); err != nil {
		return errors.Classify(err)
	}
	return nil
}
