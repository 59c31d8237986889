package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/authz"
	"github.com/phonginreallife/enablement/db"
	"github.com/phonginreallife/enablement/store"
)

// GlobalAccessService grants organizations access to global items under the global_access quota
type GlobalAccessService struct {
	checker *authz.PermissionChecker
	global  store.GlobalAccessRepo
	quotas  *QuotaEnforcer
	audit   AuditPublisher
	logger  *logrus.Logger
}

// NewGlobalAccessService creates a new GlobalAccessService
func NewGlobalAccessService(checker *authz.PermissionChecker, repos *store.Store, quotas *QuotaEnforcer, audit AuditPublisher, logger *logrus.Logger) *GlobalAccessService {
	if audit == nil {
		audit = NopAuditPublisher{}
	}
	return &GlobalAccessService{
		checker: checker,
		global:  repos.Global,
		quotas:  quotas,
		audit:   audit,
		logger:  logger,
	}
}

// Grant gives orgID access to a global item, taking one global_access unit
func (s *GlobalAccessService) Grant(ctx context.Context, caller authz.Caller, orgID, globalItemID string) (*db.GlobalAccessGrant, error) {
	if orgID == "" || globalItemID == "" {
		return nil, invalid("organization id and global item id are required")
	}
	if err := s.checker.Require(caller, authz.CapManageFeatures, orgID); err != nil {
		return nil, err
	}

	if _, err := s.global.GetItem(ctx, globalItemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: global item %s", ErrNotFound, globalItemID)
		}
		return nil, fmt.Errorf("failed to get global item: %w", err)
	}

	if _, err := s.quotas.Reserve(ctx, orgID, db.QuotaGlobalAccess, 1); err != nil {
		return nil, err
	}

	grant := &db.GlobalAccessGrant{OrganizationID: orgID, GlobalItemID: globalItemID, GrantedBy: caller.UserID}
	if err := s.global.Grant(ctx, grant); err != nil {
		s.quotas.Release(ctx, orgID, db.QuotaGlobalAccess, 1)
		if errors.Is(err, store.ErrDuplicate) {
			return nil, fmt.Errorf("%w: organization already has access to %s", ErrAlreadyExists, globalItemID)
		}
		return nil, fmt.Errorf("failed to grant global access: %w", err)
	}

	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditGlobalGranted,
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		ResourceID:     globalItemID,
	})
	s.logger.WithFields(logrus.Fields{
		"org_id":         orgID,
		"global_item_id": globalItemID,
		"user_id":        caller.UserID,
	}).Info("Global access granted")
	return grant, nil
}

// Revoke removes a grant and returns its global_access unit
func (s *GlobalAccessService) Revoke(ctx context.Context, caller authz.Caller, orgID, globalItemID string) error {
	if orgID == "" || globalItemID == "" {
		return invalid("organization id and global item id are required")
	}
	if err := s.checker.Require(caller, authz.CapManageFeatures, orgID); err != nil {
		return err
	}

	if err := s.global.Revoke(ctx, orgID, globalItemID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: no grant for %s", ErrNotFound, globalItemID)
		}
		return fmt.Errorf("failed to revoke global access: %w", err)
	}

	s.quotas.Release(ctx, orgID, db.QuotaGlobalAccess, 1)
	s.audit.Publish(ctx, AuditEvent{
		Type:           AuditGlobalRevoked,
		OrganizationID: orgID,
		ActorID:        caller.UserID,
		ResourceID:     globalItemID,
	})
	return nil
}

// ListGrants returns the organization's grants
func (s *GlobalAccessService) ListGrants(ctx context.Context, orgID string) ([]db.GlobalAccessGrant, error) {
	grants, err := s.global.ListGrants(ctx, orgID)
	if err != nil {
		return nil, fmt.Errorf("failed to list global access grants: %w", err)
	}
	return grants, nil
}
