package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// Audit event types
const (
	AuditToggleSet        = "feature_toggle.set"
	AuditToggleDeleted    = "feature_toggle.deleted"
	AuditSharingRequested = "sharing.requested"
	AuditSharingApproved  = "sharing.approved"
	AuditSharingRejected  = "sharing.rejected"
	AuditHierarchyMoved   = "organization.moved"
	AuditItemCreated      = "context_item.created"
	AuditItemDeleted      = "context_item.deleted"
	AuditGlobalGranted    = "global_access.granted"
	AuditGlobalRevoked    = "global_access.revoked"
)

// AuditEvent records a state change for later inspection
type AuditEvent struct {
	Type           string                 `json:"type"`
	OrganizationID string                 `json:"organization_id"`
	ActorID        string                 `json:"actor_id"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
	OccurredAt     time.Time              `json:"occurred_at"`
}

// AuditPublisher emits audit events. Publishing never fails the caller's operation.
type AuditPublisher interface {
	Publish(ctx context.Context, event AuditEvent)
}

// RedisAuditPublisher pushes events onto a Redis list consumed by the audit worker
type RedisAuditPublisher struct {
	redis  *redis.Client
	queue  string
	logger *logrus.Logger
}

// NewRedisAuditPublisher creates a new RedisAuditPublisher
func NewRedisAuditPublisher(client *redis.Client, queue string, logger *logrus.Logger) *RedisAuditPublisher {
	return &RedisAuditPublisher{redis: client, queue: queue, logger: logger}
}

func (p *RedisAuditPublisher) Publish(ctx context.Context, event AuditEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	payload, err := json.Marshal(event)
	if err != nil {
		p.logger.WithError(err).WithField("type", event.Type).Error("Failed to encode audit event")
		return
	}

	if err := p.redis.RPush(ctx, p.queue, payload).Err(); err != nil {
		p.logger.WithError(err).WithFields(logrus.Fields{
			"type":   event.Type,
			"org_id": event.OrganizationID,
			"queue":  p.queue,
		}).Warn("Failed to queue audit event")
	}
}

// NopAuditPublisher drops every event
type NopAuditPublisher struct{}

func (NopAuditPublisher) Publish(context.Context, AuditEvent) {}
