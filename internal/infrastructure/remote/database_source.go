package remote

import (
	"context"
	"fmt"

	"github.com/xtravels/backend/internal/infrastructure/config"
	"github.com/xtravels/backend/internal/infrastructure/persistence"
	"github.com/xtravels/backend/internal/infrastructure/schema"
	"github.com/xtravels/backend/internal/infrastructure/store"
	"github.com/xtravels/backend/internal/infrastructure/telemetry"
)

// DatabaseSource reads master data directly from the remote system's database
type DatabaseSource struct {
	db    *persistence.Database
	store *store.GormStore
}

// NewDatabaseSource wraps an open database holding the federated tables
func NewDatabaseSource(db *persistence.Database, registry *schema.Registry) *DatabaseSource {
	return &DatabaseSource{db: db, store: store.NewGormStore(db.DB, registry)}
}

// OpenDatabaseSource connects to the remote database described by cfg
func OpenDatabaseSource(cfg *config.DatabaseConfig, registry *schema.Registry) (*DatabaseSource, error) {
	db, err := persistence.NewDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open remote database: %w", err)
	}
	return NewDatabaseSource(db, registry), nil
}

// Select runs q against the remote database
func (s *DatabaseSource) Select(ctx context.Context, q store.Query) (*store.Result, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "remote", "select", telemetry.SpanAttrEntity, q.Entity)
	defer span.End()

	res, err := s.store.Select(ctx, q)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	return res, nil
}

// Close closes the remote database
func (s *DatabaseSource) Close() error {
	return s.db.Close()
}
