package store

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// dbPool is the subset of pgxpool.Pool used by the repositories.
type dbPool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
	Ping(ctx context.Context) error
}

// Store aggregates repositories backed by PostgreSQL.
type Store struct {
	pool dbPool

	Users       UserRepository
	Schedules   ScheduleRepository
	EventTypes  EventTypeRepository
	Apps        AppRepository
	Credentials CredentialRepository
}

// New wires concrete repository implementations with shared connection pool.
func New(pool dbPool) *Store {
	return &Store{
		pool:        pool,
		Users:       &userRepo{pool: pool},
		Schedules:   &scheduleRepo{pool: pool},
		EventTypes:  &eventTypeRepo{pool: pool},
		Apps:        &appRepo{pool: pool},
		Credentials: &credentialRepo{pool: pool},
	}
}

// HealthCheck verifies that the underlying database is reachable.
func (s *Store) HealthCheck(ctx context.Context) error {
	defer observeDB(ctx, "db.healthcheck")()
	return s.pool.Ping(ctx)
}
