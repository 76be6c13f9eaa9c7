package store

import "time"

// Roles recognised on users.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

// User represents a person authenticated via OAuth.
type User struct {
	ID           int64
	OAuthSubject string
	Email        string
	Name         string
	Locale       string
	Role         string
	CreatedAt    time.Time
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName prefers the profile name and falls back to the email address.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// Interval is one weekly availability window, in minutes from midnight.
type Interval struct {
	Day         time.Weekday
	StartMinute int
	EndMinute   int
}

// Schedule is a named weekly availability template.
type Schedule struct {
	ID           int64
	UserID       int64
	Name         string
	TimeZone     string
	IsDefault    bool
	Availability []Interval
	UpdatedAt    time.Time
}

// ScheduleUpdate replaces a schedule wholesale.
type ScheduleUpdate struct {
	ID           int64
	UserID       int64
	Name         string
	TimeZone     string
	IsDefault    bool
	Availability []Interval

	// SyncEventTypes makes EventTypeIDs the complete set of event types the
	// user owns or hosts that point at this schedule. Ids outside that set
	// fail the update with ErrNotAssociable.
	SyncEventTypes bool
	EventTypeIDs   []int64
}

// App is a bundled integration with its stored enable state and keys.
type App struct {
	Slug       string
	Categories []string
	Enabled    bool
	// Keys holds the sealed JSON object of configuration keys, if any.
	Keys      *string
	UpdatedAt time.Time
}

// HasCategory reports whether the app is tagged with category.
func (a App) HasCategory(category string) bool {
	for _, c := range a.Categories {
		if c == category {
			return true
		}
	}
	return false
}

// EventType is a bookable event definition.
type EventType struct {
	ID         int64
	Title      string
	Slug       string
	UserID     *int64
	OwnerName  string
	TeamID     *int64
	TeamName   string
	ScheduleID *int64
	// Metadata is the raw JSON document; apps.<slug>.enabled flags app usage.
	Metadata []byte
}
