package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation
const uniqueViolation = "23505"

// NewPostgresStore creates all PostgreSQL repositories at once
func NewPostgresStore(pg *sql.DB) *Store {
	return &Store{
		Organizations: NewPostgresOrganizationRepo(pg),
		Catalog:       NewPostgresFeatureCatalogRepo(pg),
		Toggles:       NewPostgresFeatureToggleRepo(pg),
		Quotas:        NewPostgresQuotaRepo(pg),
		Sharing:       NewPostgresSharingRequestRepo(pg),
		Items:         NewPostgresContextItemRepo(pg),
		Global:        NewPostgresGlobalAccessRepo(pg),
	}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullTimePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// scanner is satisfied by *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}
