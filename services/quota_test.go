package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phonginreallife/enablement/db"
)

func TestQuotaEnforcer_GetOrCreate(t *testing.T) {
	f := newFixture(t)

	quota, err := f.quotas.GetOrCreate(context.Background(), "child")
	require.NoError(t, err)
	assert.Equal(t, 1000, quota.MaxContextItems)
	assert.Equal(t, 10, quota.MaxGlobalAccess)
	assert.Equal(t, 100, quota.MaxSharingRequests)
	assert.Zero(t, quota.CurrentContextItems)

	_, err = f.quotas.GetOrCreate(context.Background(), "")
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestQuotaEnforcer_UnknownOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.quotas.GetOrCreate(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)
	assert.Equal(t, KindNotFound, KindOf(err))

	_, err = f.quotas.Check(ctx, "ghost", db.QuotaContextItems, 1)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.quotas.Reserve(ctx, "ghost", db.QuotaSharingRequests, 1)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.mem.Store().Quotas.Get(ctx, "ghost")
	assert.True(t, errors.Is(err, ErrNotFound), "no quota row is created")
}

func TestQuotaEnforcer_Check(t *testing.T) {
	f := newFixture(t)
	f.mem.SetQuota(db.OrganizationQuota{
		OrganizationID:      "child",
		MaxContextItems:     1000,
		CurrentContextItems: 998,
		MaxGlobalAccess:     10,
		MaxSharingRequests:  100,
	})

	tests := []struct {
		name         string
		quotaType    db.QuotaType
		qty          int
		wantExceeded bool
		wantErr      error
	}{
		{"fits exactly", db.QuotaContextItems, 2, false, nil},
		{"one over", db.QuotaContextItems, 3, true, nil},
		{"zero quantity", db.QuotaContextItems, 0, false, ErrInvalidInput},
		{"negative quantity", db.QuotaContextItems, -1, false, ErrInvalidInput},
		{"unknown type", db.QuotaType("tokens"), 1, false, ErrInvalidInput},
		{"other counter untouched", db.QuotaGlobalAccess, 10, false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			check, err := f.quotas.Check(context.Background(), "child", tt.quotaType, tt.qty)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantExceeded, check.QuotaExceeded)
		})
	}

	check, err := f.quotas.Check(context.Background(), "child", db.QuotaContextItems, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, check.Remaining)
	assert.Equal(t, 998, check.Current)
	assert.Equal(t, 1000, check.Limit)
}

func TestQuotaEnforcer_Reserve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SetQuota(db.OrganizationQuota{OrganizationID: "child", MaxSharingRequests: 2})

	_, err := f.quotas.Reserve(ctx, "child", db.QuotaSharingRequests, 2)
	require.NoError(t, err)

	_, err = f.quotas.Reserve(ctx, "child", db.QuotaSharingRequests, 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuotaExceeded))
	assert.Equal(t, KindQuotaExceeded, KindOf(err))

	var exceeded *QuotaExceededError
	require.True(t, errors.As(err, &exceeded))
	assert.Equal(t, 2, exceeded.Current)
	assert.Equal(t, 2, exceeded.Limit)
	assert.Equal(t, 1, exceeded.Requested)
	assert.Equal(t, db.QuotaSharingRequests, exceeded.Resource)

	assert.Equal(t, 2, f.usage(t, "child", db.QuotaSharingRequests))

	f.quotas.Release(ctx, "child", db.QuotaSharingRequests, 1)
	assert.Equal(t, 1, f.usage(t, "child", db.QuotaSharingRequests))

	_, err = f.quotas.Reserve(ctx, "child", db.QuotaSharingRequests, 0)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestQuotaEnforcer_UpdateUsage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// No row yet
	_, err := f.quotas.UpdateUsage(ctx, "child", db.QuotaContextItems, db.QuotaIncrement, 1)
	assert.True(t, errors.Is(err, ErrNotFound))

	_, err = f.quotas.GetOrCreate(ctx, "child")
	require.NoError(t, err)

	quota, err := f.quotas.UpdateUsage(ctx, "child", db.QuotaContextItems, db.QuotaIncrement, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, quota.CurrentContextItems)

	// Decrements clamp at zero
	quota, err = f.quotas.UpdateUsage(ctx, "child", db.QuotaContextItems, db.QuotaDecrement, 5)
	require.NoError(t, err)
	assert.Equal(t, 0, quota.CurrentContextItems)

	_, err = f.quotas.UpdateUsage(ctx, "child", db.QuotaContextItems, db.QuotaDirection("sideways"), 1)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = f.quotas.UpdateUsage(ctx, "child", db.QuotaContextItems, db.QuotaIncrement, 0)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestQuotaEnforcer_Reset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SetQuota(db.OrganizationQuota{
		OrganizationID:         "child",
		MaxContextItems:        10,
		CurrentContextItems:    4,
		MaxGlobalAccess:        10,
		CurrentGlobalAccess:    3,
		MaxSharingRequests:     10,
		CurrentSharingRequests: 2,
	})

	one := db.QuotaGlobalAccess
	quota, err := f.quotas.Reset(ctx, "child", &one)
	require.NoError(t, err)
	assert.Equal(t, 0, quota.CurrentGlobalAccess)
	assert.Equal(t, 4, quota.CurrentContextItems)

	quota, err = f.quotas.Reset(ctx, "child", nil)
	require.NoError(t, err)
	assert.Equal(t, 0, quota.CurrentContextItems)
	assert.Equal(t, 0, quota.CurrentSharingRequests)

	bad := db.QuotaType("tokens")
	_, err = f.quotas.Reset(ctx, "child", &bad)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestQuotaEnforcer_SetLimits(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	five := 5
	quota, err := f.quotas.SetLimits(ctx, "child", db.QuotaLimits{MaxGlobalAccess: &five})
	require.NoError(t, err)
	assert.Equal(t, 5, quota.MaxGlobalAccess)
	assert.Equal(t, 1000, quota.MaxContextItems)

	negative := -1
	_, err = f.quotas.SetLimits(ctx, "child", db.QuotaLimits{MaxContextItems: &negative})
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestQuotaEnforcer_StoreFailure(t *testing.T) {
	f := newFixture(t)
	f.mem.Fail = errors.New("connection refused")

	_, err := f.quotas.Check(context.Background(), "child", db.QuotaContextItems, 1)
	require.Error(t, err)
	assert.Equal(t, KindPersistence, KindOf(err))
}
