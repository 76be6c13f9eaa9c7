package store

import "context"

// UserRepository defines persistence operations for users.
type UserRepository interface {
	UpsertOAuthUser(ctx context.Context, subject, email, name string) (*User, error)
	GetByID(ctx context.Context, id int64) (*User, error)
}

// ScheduleRepository handles availability schedules.
type ScheduleRepository interface {
	GetByID(ctx context.Context, id int64) (*Schedule, error)
	ListByUser(ctx context.Context, userID int64) ([]Schedule, error)
	Update(ctx context.Context, update ScheduleUpdate) error
}

// EventTypeRepository handles event types and their rosters.
type EventTypeRepository interface {
	ListByUser(ctx context.Context, userID int64) ([]EventType, error)
	ListWithAppEnabled(ctx context.Context, slug string) ([]EventType, error)
	UpdateMetadata(ctx context.Context, id int64, metadata []byte) error
	ListRoster(ctx context.Context, eventTypeID int64) ([]User, error)
}

// AppRepository handles stored app rows.
type AppRepository interface {
	Seed(ctx context.Context, slug string, categories []string) error
	GetBySlug(ctx context.Context, slug string) (*App, error)
	ListByCategory(ctx context.Context, category string) ([]App, error)
	SetEnabled(ctx context.Context, slug string, enabled bool) (*App, error)
	UpdateKeys(ctx context.Context, slug string, sealedKeys string) error
}

// CredentialRepository resolves user/app links.
type CredentialRepository interface {
	ListUsersByApp(ctx context.Context, slug string) ([]User, error)
}
