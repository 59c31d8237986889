package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureToggleService_Set(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		setup   func()
		orgID   string
		feature string
		enabled bool
		wantErr error
	}{
		{name: "org admin own org", orgID: "child", feature: "kb", enabled: true},
		{name: "unknown feature", orgID: "child", feature: "nope", enabled: true, wantErr: ErrNotFound},
		{name: "empty feature", orgID: "child", feature: "", enabled: true, wantErr: ErrInvalidInput},
		{
			name:    "blocked by ancestor",
			setup:   func() { f.mem.SetToggle("parent", "summarize", false) },
			orgID:   "child",
			feature: "summarize",
			enabled: true,
			wantErr: ErrBlockedByAncestor,
		},
		{name: "disable under disabling ancestor", orgID: "grandchild", feature: "summarize", enabled: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.setup != nil {
				tt.setup()
			}
			toggle, err := f.toggles.Set(ctx, orgAdmin(tt.orgID), tt.orgID, tt.feature, tt.enabled)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, toggle)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.enabled, toggle.Enabled)
			assert.NotEmpty(t, toggle.ID)
		})
	}
}

func TestFeatureToggleService_Set_GrandparentDisable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.toggles.Set(ctx, systemAdmin, "parent", "kb", false)
	require.NoError(t, err)

	_, err = f.toggles.Set(ctx, systemAdmin, "grandchild", "kb", true)
	assert.True(t, errors.Is(err, ErrBlockedByAncestor))
	assert.Equal(t, KindConflict, KindOf(err))

	toggles, err := f.toggles.List(ctx, "grandchild")
	require.NoError(t, err)
	assert.Empty(t, toggles)
}

func TestFeatureToggleService_Set_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.toggles.Set(ctx, member("child"), "child", "kb", true)
	assert.True(t, errors.Is(err, ErrForbidden))

	_, err = f.toggles.Set(ctx, orgAdmin("sibling"), "child", "kb", true)
	assert.True(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, KindPermissionDenied, KindOf(err))

	_, err = f.toggles.Set(ctx, systemAdmin, "child", "kb", true)
	assert.NoError(t, err)
	assert.Equal(t, []string{AuditToggleSet}, f.audit.types())
}

func TestFeatureToggleService_BulkSet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SetToggle("parent", "summarize", false)

	results, err := f.toggles.BulkSet(ctx, orgAdmin("child"), "child", map[string]bool{
		"search":    false,
		"kb":        true,
		"summarize": true,
		"unknown":   true,
	})
	require.NoError(t, err)
	require.Len(t, results, 4)

	assert.Equal(t, "kb", results[0].RAGFeature)
	assert.True(t, results[0].Success)
	assert.Equal(t, "search", results[1].RAGFeature)
	assert.True(t, results[1].Success)
	assert.Equal(t, "summarize", results[2].RAGFeature)
	assert.False(t, results[2].Success)
	assert.Equal(t, KindConflict, results[2].Kind)
	assert.Equal(t, "unknown", results[3].RAGFeature)
	assert.Equal(t, KindNotFound, results[3].Kind)

	toggles, err := f.toggles.List(ctx, "child")
	require.NoError(t, err)
	assert.Len(t, toggles, 2)

	_, err = f.toggles.BulkSet(ctx, orgAdmin("child"), "child", nil)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = f.toggles.BulkSet(ctx, member("child"), "child", map[string]bool{"kb": true})
	assert.True(t, errors.Is(err, ErrForbidden))
}

func TestFeatureToggleService_UnknownOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, enabled := range []bool{false, true} {
		toggle, err := f.toggles.Set(ctx, systemAdmin, "ghost", "kb", enabled)
		assert.True(t, errors.Is(err, ErrNotFound), "enabled=%t: got %v", enabled, err)
		assert.Equal(t, KindNotFound, KindOf(err))
		assert.Nil(t, toggle)
	}

	_, err := f.toggles.BulkSet(ctx, systemAdmin, "ghost", map[string]bool{"kb": false, "search": false})
	assert.True(t, errors.Is(err, ErrNotFound))

	err = f.toggles.Delete(ctx, systemAdmin, "ghost", "kb")
	assert.True(t, errors.Is(err, ErrNotFound))

	rows, err := f.toggles.List(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, f.audit.types())
}

func TestFeatureToggleService_DeleteRevertsToInherited(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.mem.SetToggle("parent", "kb", true)

	_, err := f.toggles.Set(ctx, orgAdmin("child"), "child", "kb", false)
	require.NoError(t, err)

	enabled, err := f.toggles.Enabled(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, []string{"search"}, enabled)

	require.NoError(t, f.toggles.Delete(ctx, orgAdmin("child"), "child", "kb"))

	enabled, err = f.toggles.Enabled(ctx, "child")
	require.NoError(t, err)
	assert.Equal(t, []string{"kb", "search"}, enabled)

	err = f.toggles.Delete(ctx, orgAdmin("child"), "child", "kb")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFeatureToggleService_MoveOrganization(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	sibling := "sibling"

	err := f.toggles.MoveOrganization(ctx, orgAdmin("grandchild"), "grandchild", &sibling)
	assert.True(t, errors.Is(err, ErrForbidden))

	require.NoError(t, f.toggles.MoveOrganization(ctx, systemAdmin, "grandchild", &sibling))
	assert.Contains(t, f.audit.types(), AuditHierarchyMoved)

	parent := "grandchild"
	err = f.toggles.MoveOrganization(ctx, systemAdmin, "sibling", &parent)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}
