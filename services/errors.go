package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/store"
)

// Common errors. Store and authz sentinels are re-exported so callers only
// need this package for errors.Is checks.
var (
	ErrNotFound          = store.ErrNotFound
	ErrAlreadyExists     = store.ErrDuplicate
	ErrForbidden         = authz.ErrForbidden
	ErrInvalidInput      = errors.New("invalid input")
	ErrQuotaExceeded     = errors.New("quota exceeded")
	ErrBlockedByAncestor = errors.New("blocked by ancestor organization")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrHierarchyCycle    = errors.New("organization hierarchy contains a cycle")
	ErrNoParent          = errors.New("no parent organization")
)

// QuotaExceededError reports a refused reservation
type QuotaExceededError struct {
	OrganizationID string
	Resource       db.QuotaType
	Current        int
	Limit          int
	Requested      int
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: %d + %d exceeds limit of %d",
		e.Resource, e.Current, e.Requested, e.Limit)
}

// Is makes errors.Is(err, ErrQuotaExceeded) match
func (e *QuotaExceededError) Is(target error) bool {
	return target == ErrQuotaExceeded
}

// Kind classifies an error for callers that branch on outcome rather than cause
type Kind string

const (
	KindNone             Kind = ""
	KindValidation       Kind = "validation"
	KindNotFound         Kind = "not_found"
	KindPermissionDenied Kind = "permission_denied"
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindConflict         Kind = "conflict"
	KindPersistence      Kind = "persistence"
)

// KindOf maps any error returned by this package to its Kind.
// Errors that match no sentinel are persistence failures.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrForbidden):
		return KindPermissionDenied
	case errors.Is(err, ErrQuotaExceeded):
		return KindQuotaExceeded
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrNoParent):
		return KindNotFound
	case errors.Is(err, ErrAlreadyExists),
		errors.Is(err, ErrBlockedByAncestor),
		errors.Is(err, ErrInvalidTransition),
		errors.Is(err, ErrHierarchyCycle),
		errors.Is(err, store.ErrStaleState):
		return KindConflict
	default:
		return KindPersistence
	}
}

// requireOrganization returns ErrNotFound when orgID has no organization row
func requireOrganization(ctx context.Context, orgs store.OrganizationRepo, orgID string) error {
	if _, err := orgs.Get(ctx, orgID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: organization %s", ErrNotFound, orgID)
		}
		return fmt.Errorf("failed to get organization: %w", err)
	}
	return nil
}

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
