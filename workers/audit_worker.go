package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/phonginreallife/enablement/services"
)

// AuditWorker drains the audit queue into the audit_events table.
// Events that cannot be decoded or stored are moved to the dead-letter list.
type AuditWorker struct {
	PG         *sql.DB
	Redis      *redis.Client
	Queue      string
	DeadLetter string
	Logger     *logrus.Logger

	// PollTimeout bounds each blocking pop so shutdown is noticed
	PollTimeout time.Duration
}

func NewAuditWorker(pg *sql.DB, client *redis.Client, queue string, logger *logrus.Logger) *AuditWorker {
	return &AuditWorker{
		PG:          pg,
		Redis:       client,
		Queue:       queue,
		DeadLetter:  queue + ":dead",
		Logger:      logger,
		PollTimeout: 5 * time.Second,
	}
}

// Run processes events until ctx is cancelled
func (w *AuditWorker) Run(ctx context.Context) error {
	w.Logger.WithField("queue", w.Queue).Info("Audit worker started")

	for {
		select {
		case <-ctx.Done():
			w.Logger.Info("Audit worker stopped")
			return nil
		default:
		}

		if _, err := w.ProcessNext(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			w.Logger.WithError(err).Error("Audit worker iteration failed")
			// Back off so a broken Redis does not spin
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

// ProcessNext handles at most one queued event. It reports whether an event was popped.
func (w *AuditWorker) ProcessNext(ctx context.Context) (bool, error) {
	result, err := w.Redis.BLPop(ctx, w.PollTimeout, w.Queue).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to pop audit event: %w", err)
	}

	// BLPOP returns [queue, payload]
	payload := result[1]

	var event services.AuditEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		w.Logger.WithError(err).Warn("Discarding malformed audit event")
		w.deadLetter(payload)
		return true, nil
	}

	if err := w.persist(ctx, event); err != nil {
		w.Logger.WithError(err).WithFields(logrus.Fields{
			"type":   event.Type,
			"org_id": event.OrganizationID,
		}).Error("Failed to store audit event")
		w.deadLetter(payload)
		return true, nil
	}

	w.Logger.WithFields(logrus.Fields{
		"type":        event.Type,
		"org_id":      event.OrganizationID,
		"actor_id":    event.ActorID,
		"resource_id": event.ResourceID,
	}).Debug("Audit event stored")
	return true, nil
}

func (w *AuditWorker) persist(ctx context.Context, event services.AuditEvent) error {
	var details interface{}
	if len(event.Details) > 0 {
		encoded, err := json.Marshal(event.Details)
		if err != nil {
			return fmt.Errorf("failed to encode details: %w", err)
		}
		details = string(encoded)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	query := `
		INSERT INTO audit_events (id, event_type, organization_id, actor_id, resource_id, details, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := w.PG.ExecContext(ctx, query,
		uuid.New().String(),
		event.Type,
		event.OrganizationID,
		event.ActorID,
		event.ResourceID,
		details,
		occurredAt,
	)
	return err
}

// deadLetterTimeout bounds the dead-letter push, which runs detached from
// the caller's context so a popped event survives shutdown
const deadLetterTimeout = 5 * time.Second

func (w *AuditWorker) deadLetter(payload string) {
	ctx, cancel := context.WithTimeout(context.Background(), deadLetterTimeout)
	defer cancel()

	if err := w.Redis.RPush(ctx, w.DeadLetter, payload).Err(); err != nil {
		w.Logger.WithError(err).WithField("queue", w.DeadLetter).Error("Failed to dead-letter audit event")
	}
}
