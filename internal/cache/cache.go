// Package cache holds resolved feature sets keyed by organization.
// Entries are invalidated by the toggle service whenever an organization or
// one of its ancestors changes an explicit toggle.
package cache

import (
	"context"
	"errors"

	"github.com/phonginreallife/enablement/db"
)

// ErrCacheMiss is returned when no entry exists for an organization
var ErrCacheMiss = errors.New("cache miss")

// FeatureCache stores resolved features per organization
type FeatureCache interface {
	Get(ctx context.Context, orgID string) ([]db.EffectiveFeature, error)
	Set(ctx context.Context, orgID string, features []db.EffectiveFeature) error
	Invalidate(ctx context.Context, orgIDs ...string) error

	// Backend names the implementation for metrics labels
	Backend() string
}

// Nop never stores anything
type Nop struct{}

func (Nop) Get(context.Context, string) ([]db.EffectiveFeature, error) { return nil, ErrCacheMiss }

func (Nop) Set(context.Context, string, []db.EffectiveFeature) error { return nil }

func (Nop) Invalidate(context.Context, ...string) error { return nil }

func (Nop) Backend() string { return "none" }
