package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memograph/backend/internal/metadata"
	apperrors "memograph/backend/pkg/errors"
)

func TestValidateTenantID(t *testing.T) {
	require.NoError(t, ValidateTenantID("acme"))
	require.NoError(t, ValidateTenantID("acme-corp_42"))

	for _, id := range []string{
		"",
		"Acme",
		"acme-CORP",
		"-leading-dash",
		"_leading_underscore",
		"has space",
		"semi;colon",
		"dot.dot",
		"x/../y",
		string(make([]byte, 65)),
	} {
		err := ValidateTenantID(id)
		require.Error(t, err, "tenant id %q", id)
		assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTenant))
	}
}

func TestDeriveGraphName(t *testing.T) {
	name, err := DeriveGraphName("acme-corp")
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme-corp_kg", name)

	// Deterministic
	again, err := DeriveGraphName("acme-corp")
	require.NoError(t, err)
	assert.Equal(t, name, again)

	_, err = DeriveGraphName("bad tenant!")
	require.Error(t, err)

	// Uppercase ids are rejected outright, never folded onto another
	// tenant's graph
	_, err = DeriveGraphName("Acme-Corp")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTenant))
}

func TestDeriveGraphName_DistinctTenantsNeverCollide(t *testing.T) {
	// Ids that a case/dash folding scheme would collapse onto one graph.
	// Each accepted id must map to its own graph, and non-canonical
	// variants must not be accepted at all.
	a, err := DeriveGraphName("acme-corp")
	require.NoError(t, err)
	b, err := DeriveGraphName("acme_corp")
	require.NoError(t, err)
	assert.NotEqual(t, a, b, "dash and underscore tenants must not share a graph")

	for _, id := range []string{"Acme_Corp", "ACME-CORP", "Acme-corp"} {
		_, err := DeriveGraphName(id)
		require.Error(t, err, "tenant id %q", id)
	}
}

func TestResolver_CreatesGraphOnceAndCaches(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewPool(testPoolConfig(), dialer.dial)
	defer pool.Close()
	resolver := NewResolver(pool, metadata.NewMemoryStore())
	defer resolver.Close()

	ctx := context.Background()
	name1, err := resolver.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme_kg", name1)

	name2, err := resolver.Resolve(ctx, "acme")
	require.NoError(t, err)
	assert.Equal(t, name1, name2)

	// The no-op create statement ran exactly once despite two resolves
	creates := dialer.queriesMatching("RETURN 1")
	require.Len(t, creates, 1)
	assert.Equal(t, "tenant_acme_kg", creates[0].graphName)
}

func TestResolver_MappingSurvivesRestartViaStore(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewPool(testPoolConfig(), dialer.dial)
	defer pool.Close()
	store := metadata.NewMemoryStore()

	resolver := NewResolver(pool, store)
	_, err := resolver.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	resolver.Close()

	// A fresh resolver over the same store finds the mapping and does not
	// issue a second create
	resolver = NewResolver(pool, store)
	defer resolver.Close()
	name, err := resolver.Resolve(context.Background(), "acme")
	require.NoError(t, err)
	assert.Equal(t, "tenant_acme_kg", name)
	assert.Len(t, dialer.queriesMatching("RETURN 1"), 1)
}

func TestResolver_RejectsInvalidTenantBeforeBackend(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewPool(testPoolConfig(), dialer.dial)
	defer pool.Close()
	resolver := NewResolver(pool, metadata.NewMemoryStore())
	defer resolver.Close()

	_, err := resolver.Resolve(context.Background(), "bad tenant")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidTenant))
	assert.Equal(t, 0, dialer.dialCount(), "invalid tenant must never reach the backend")
}

func TestResolver_DistinctTenantsGetDistinctGraphs(t *testing.T) {
	dialer := &fakeDialer{}
	pool := NewPool(testPoolConfig(), dialer.dial)
	defer pool.Close()
	resolver := NewResolver(pool, metadata.NewMemoryStore())
	defer resolver.Close()

	ctx := context.Background()
	a, err := resolver.Resolve(ctx, "acme")
	require.NoError(t, err)
	b, err := resolver.Resolve(ctx, "globex")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
