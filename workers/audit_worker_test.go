package workers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phonginreallife/enablement/internal/observability"
	"github.com/phonginreallife/enablement/services"
)

func newTestWorker(t *testing.T) (*AuditWorker, sqlmock.Sqlmock, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	pg, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { pg.Close() })

	worker := NewAuditWorker(pg, client, "audit:queue", observability.NewNopLogger())
	worker.PollTimeout = 100 * time.Millisecond
	return worker, mock, mr
}

func pushEvent(t *testing.T, mr *miniredis.Miniredis, event services.AuditEvent) {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	_, err = mr.Push("audit:queue", string(payload))
	require.NoError(t, err)
}

func TestAuditWorker_ProcessNext(t *testing.T) {
	occurred := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		setup      func(t *testing.T, mock sqlmock.Sqlmock, mr *miniredis.Miniredis)
		wantPopped bool
		wantDead   int
	}{
		{
			name: "stores event",
			setup: func(t *testing.T, mock sqlmock.Sqlmock, mr *miniredis.Miniredis) {
				pushEvent(t, mr, services.AuditEvent{
					Type:           services.AuditToggleSet,
					OrganizationID: "org-1",
					ActorID:        "u1",
					ResourceID:     "kb",
					Details:        map[string]interface{}{"enabled": true},
					OccurredAt:     occurred,
				})
				mock.ExpectExec("INSERT INTO audit_events").
					WithArgs(sqlmock.AnyArg(), services.AuditToggleSet, "org-1", "u1", "kb", `{"enabled":true}`, sqlmock.AnyArg()).
					WillReturnResult(sqlmock.NewResult(0, 1))
			},
			wantPopped: true,
		},
		{
			name: "malformed payload is dead-lettered",
			setup: func(t *testing.T, mock sqlmock.Sqlmock, mr *miniredis.Miniredis) {
				_, err := mr.Push("audit:queue", "{not json")
				require.NoError(t, err)
			},
			wantPopped: true,
			wantDead:   1,
		},
		{
			name: "insert failure is dead-lettered",
			setup: func(t *testing.T, mock sqlmock.Sqlmock, mr *miniredis.Miniredis) {
				pushEvent(t, mr, services.AuditEvent{Type: services.AuditSharingApproved, OrganizationID: "org-1", OccurredAt: occurred})
				mock.ExpectExec("INSERT INTO audit_events").
					WillReturnError(errors.New("relation does not exist"))
			},
			wantPopped: true,
			wantDead:   1,
		},
		{
			name:       "empty queue",
			setup:      func(t *testing.T, mock sqlmock.Sqlmock, mr *miniredis.Miniredis) {},
			wantPopped: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			worker, mock, mr := newTestWorker(t)
			tt.setup(t, mock, mr)

			popped, err := worker.ProcessNext(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantPopped, popped)

			dead, _ := mr.List("audit:queue:dead")
			assert.Len(t, dead, tt.wantDead)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestAuditWorker_CancelledDuringInsertKeepsEvent(t *testing.T) {
	worker, mock, mr := newTestWorker(t)
	pushEvent(t, mr, services.AuditEvent{Type: services.AuditToggleSet, OrganizationID: "org-1", OccurredAt: time.Now().UTC()})
	mock.ExpectExec("INSERT INTO audit_events").
		WillDelayFor(time.Second).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	time.AfterFunc(50*time.Millisecond, cancel)

	popped, err := worker.ProcessNext(ctx)
	require.NoError(t, err)
	assert.True(t, popped)

	dead, err := mr.List("audit:queue:dead")
	require.NoError(t, err)
	require.Len(t, dead, 1)

	var event services.AuditEvent
	require.NoError(t, json.Unmarshal([]byte(dead[0]), &event))
	assert.Equal(t, "org-1", event.OrganizationID)
}

func TestAuditWorker_RunStopsOnCancel(t *testing.T) {
	worker, mock, mr := newTestWorker(t)
	pushEvent(t, mr, services.AuditEvent{Type: services.AuditItemCreated, OrganizationID: "org-1", OccurredAt: time.Now().UTC()})
	mock.ExpectExec("INSERT INTO audit_events").WillReturnResult(sqlmock.NewResult(0, 1))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	require.Eventually(t, func() bool {
		return mock.ExpectationsWereMet() == nil
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
