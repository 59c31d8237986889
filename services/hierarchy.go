package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/store"
)

// DefaultMaxDepth bounds ancestor walks when no limit is configured
const DefaultMaxDepth = 32

// HierarchyResolver walks parent links between organizations
type HierarchyResolver struct {
	orgs     store.OrganizationRepo
	maxDepth int
}

// NewHierarchyResolver creates a new HierarchyResolver
func NewHierarchyResolver(orgs store.OrganizationRepo, maxDepth int) *HierarchyResolver {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &HierarchyResolver{orgs: orgs, maxDepth: maxDepth}
}

// Chain returns [org, parent, ..., root]. A missing organization ends the
// walk without being included, so an unknown orgID yields an empty chain.
// Revisiting an organization or passing maxDepth returns ErrHierarchyCycle.
func (h *HierarchyResolver) Chain(ctx context.Context, orgID string) (*db.Hierarchy, error) {
	result := &db.Hierarchy{OrganizationID: orgID, Chain: make([]db.ChainEntry, 0)}
	visited := make(map[string]bool)

	current := orgID
	for current != "" {
		if visited[current] {
			return nil, fmt.Errorf("%w: organization %s appears twice above %s", ErrHierarchyCycle, current, orgID)
		}
		if len(result.Chain) > h.maxDepth {
			return nil, fmt.Errorf("%w: %s is deeper than %d levels", ErrHierarchyCycle, orgID, h.maxDepth)
		}
		visited[current] = true

		org, err := h.orgs.Get(ctx, current)
		if errors.Is(err, store.ErrNotFound) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to walk organization hierarchy: %w", err)
		}

		result.Chain = append(result.Chain, db.ChainEntry{
			ID:                   org.ID,
			Name:                 org.Name,
			ParentOrganizationID: org.ParentOrganizationID,
		})

		if !org.HasParent() {
			break
		}
		current = *org.ParentOrganizationID
	}

	if len(result.Chain) > 0 {
		result.Depth = len(result.Chain) - 1
	}
	return result, nil
}

// ValidateHierarchy checks that childID may be placed under parentID
func (h *HierarchyResolver) ValidateHierarchy(ctx context.Context, parentID, childID string) error {
	if parentID == "" || childID == "" {
		return invalid("parent and child organization ids are required")
	}

	if _, err := h.orgs.Get(ctx, parentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: parent organization %s", ErrNotFound, parentID)
		}
		return fmt.Errorf("failed to get parent organization: %w", err)
	}
	if _, err := h.orgs.Get(ctx, childID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: child organization %s", ErrNotFound, childID)
		}
		return fmt.Errorf("failed to get child organization: %w", err)
	}

	if parentID == childID {
		return invalid("organization cannot be its own parent")
	}

	chain, err := h.Chain(ctx, parentID)
	if err != nil {
		return err
	}
	for _, entry := range chain.Chain {
		if entry.ID == childID {
			return invalid("circular dependency detected: %s is an ancestor of %s", childID, parentID)
		}
	}
	return nil
}

// Children returns the direct children of an organization
func (h *HierarchyResolver) Children(ctx context.Context, orgID string) ([]db.Organization, error) {
	children, err := h.orgs.ListChildren(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list child organizations: %w", err)
	}
	return children, nil
}

// Descendants returns every organization below orgID, breadth first.
// Levels past maxDepth are not visited.
func (h *HierarchyResolver) Descendants(ctx context.Context, orgID string) ([]string, error) {
	visited := map[string]bool{orgID: true}
	descendants := make([]string, 0)
	level := []string{orgID}

	for depth := 0; depth < h.maxDepth && len(level) > 0; depth++ {
		next := make([]string, 0)
		for _, id := range level {
			children, err := h.Children(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, child := range children {
				if visited[child.ID] {
					continue
				}
				visited[child.ID] = true
				descendants = append(descendants, child.ID)
				next = append(next, child.ID)
			}
		}
		level = next
	}
	return descendants, nil
}

// SetParent re-parents orgID; nil parentID makes it a root
func (h *HierarchyResolver) SetParent(ctx context.Context, orgID string, parentID *string) error {
	if orgID == "" {
		return invalid("organization id is required")
	}
	if parentID != nil && *parentID == "" {
		parentID = nil
	}
	if parentID != nil {
		if err := h.ValidateHierarchy(ctx, *parentID, orgID); err != nil {
			return err
		}
	}

	if err := h.orgs.UpdateParent(ctx, orgID, parentID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
		}
		return fmt.Errorf("failed to update organization parent: %w", err)
	}
	return nil
}
