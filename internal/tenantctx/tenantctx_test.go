package tenantctx

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestPurpose: Validates that tenant context retrieval fails hard when no
// tenant is bound, rather than defaulting to an empty tenant.
// Scope: Unit Test
// Security: Unbound context is a data-leak vector; silent omission is forbidden.
func TestTenantCtx_From_UnboundIsFatal(t *testing.T) {
	_, err := From(context.Background())
	assert.ErrorIs(t, err, ErrContextUnbound)

	// An explicitly empty tenant id is equally unbound.
	ctx := Bind(context.Background(), TenantContext{})
	_, err = From(ctx)
	assert.ErrorIs(t, err, ErrContextUnbound)
}

func TestTenantCtx_BindAndFrom(t *testing.T) {
	tc := TenantContext{TenantID: "t-1", TenantSlug: "acme"}
	ctx := Bind(context.Background(), tc)

	got, err := From(ctx)
	require.NoError(t, err)
	assert.Equal(t, tc, got)
}

func TestTenantCtx_Run_ScopedToFn(t *testing.T) {
	parent := context.Background()
	err := Run(parent, TenantContext{TenantID: "t-1", TenantSlug: "acme"}, func(ctx context.Context) error {
		tc, err := From(ctx)
		require.NoError(t, err)
		assert.Equal(t, "t-1", tc.TenantID)
		return nil
	})
	require.NoError(t, err)

	// The parent context stays unbound after Run returns.
	_, err = From(parent)
	assert.ErrorIs(t, err, ErrContextUnbound)
}

// TestPurpose: Validates that two interleaved operations bound to different
// tenants never observe each other's tenant context.
// Scope: Unit Test
// Security: Multi-tenant boundary enforcement under concurrency.
func TestTenantCtx_NoLeakAcrossConcurrentOperations(t *testing.T) {
	var wg sync.WaitGroup
	for _, id := range []string{"t-1", "t-2", "t-3", "t-4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			ctx := Bind(context.Background(), TenantContext{TenantID: id})
			for i := 0; i < 1000; i++ {
				tc, err := From(ctx)
				if err != nil || tc.TenantID != id {
					t.Errorf("tenant context leaked: want %s got %v (err=%v)", id, tc.TenantID, err)
					return
				}
			}
		}(id)
	}
	wg.Wait()
}

func TestTenantCtx_Require(t *testing.T) {
	ctx := Bind(context.Background(), TenantContext{TenantID: "t-1"})

	t.Run("matching pin passes", func(t *testing.T) {
		tc, err := Require(ctx, "t-1")
		require.NoError(t, err)
		assert.Equal(t, "t-1", tc.TenantID)
	})

	t.Run("empty pin passes", func(t *testing.T) {
		_, err := Require(ctx, "")
		assert.NoError(t, err)
	})

	t.Run("conflicting pin fails loudly", func(t *testing.T) {
		_, err := Require(ctx, "t-2")
		assert.ErrorIs(t, err, ErrTenantMismatch)
	})

	t.Run("unbound fails before pin evaluation", func(t *testing.T) {
		_, err := Require(context.Background(), "t-1")
		assert.ErrorIs(t, err, ErrContextUnbound)
	})
}
