// Package apps implements the admin procedures for bundled apps.
package apps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/jw6ventures/bookings/internal/crypto"
	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
	"github.com/jw6ventures/bookings/internal/metrics"
	"github.com/jw6ventures/bookings/internal/notify"
	"github.com/jw6ventures/bookings/internal/store"
)

// Notifier hands notices off for background delivery.
type Notifier interface {
	Dispatch(ctx context.Context, notices []notify.Notice)
}

// LocalApp is one listLocal record: bundled metadata merged with the stored
// row. Exactly one of Keys and KeyNames is set.
type LocalApp struct {
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	Type        string          `json:"type"`
	Logo        string          `json:"logo"`
	Description string          `json:"description"`
	Categories  []string        `json:"categories"`
	Enabled     bool            `json:"enabled"`
	Keys        json.RawMessage `json:"keys,omitempty"`
	KeyNames    []string        `json:"keyNames,omitempty"`
}

type Service struct {
	catalog     *Catalog
	apps        store.AppRepository
	eventTypes  store.EventTypeRepository
	credentials store.CredentialRepository
	sealer      crypto.Service
	notifier    Notifier
}

func NewService(catalog *Catalog, st *store.Store, sealer crypto.Service, notifier Notifier) *Service {
	return &Service{
		catalog:     catalog,
		apps:        st.Apps,
		eventTypes:  st.EventTypes,
		credentials: st.Credentials,
		sealer:      sealer,
		notifier:    notifier,
	}
}

// Seed makes sure every catalog app has a stored row.
func (s *Service) Seed(ctx context.Context) error {
	for _, m := range s.catalog.All() {
		if err := s.apps.Seed(ctx, m.Slug, m.Categories); err != nil {
			return err
		}
	}
	return nil
}

// ResolveVariant maps request variants onto catalog categories.
func ResolveVariant(variant string) string {
	v := strings.ToLower(strings.TrimSpace(variant))
	if v == "conferencing" {
		return "video"
	}
	return v
}

// ListLocal returns the catalog apps in the resolved category, in catalog
// order. Stored keys are returned decrypted as stored; apps without stored
// keys only expose their schema key names.
func (s *Service) ListLocal(ctx context.Context, variant string) ([]LocalApp, error) {
	category := ResolveVariant(variant)
	if category == "" {
		return nil, httperrors.Validation("variant is required").WithField("variant", "required")
	}

	rows, err := s.apps.ListByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("list apps in %s: %w", category, err)
	}
	stored := make(map[string]store.App, len(rows))
	for _, row := range rows {
		stored[row.Slug] = row
	}

	out := []LocalApp{}
	for _, m := range s.catalog.All() {
		if !m.HasCategory(category) {
			continue
		}
		la := LocalApp{
			Name:        m.Name,
			Slug:        m.Slug,
			Type:        m.Type,
			Logo:        m.Logo,
			Description: m.Description,
			Categories:  m.Categories,
		}
		row, ok := stored[m.Slug]
		la.Enabled = ok && row.Enabled
		if ok && row.Keys != nil {
			plain, err := s.sealer.Decrypt(*row.Keys)
			if err != nil {
				return nil, fmt.Errorf("decrypt keys for %s: %w", m.Slug, err)
			}
			la.Keys = json.RawMessage(plain)
		} else {
			la.KeyNames = KeyNames(m.Type)
		}
		out = append(out, la)
	}
	return out, nil
}

// Toggle stores the negation of enabled: callers pass the state they
// currently see. Kept for existing clients; new callers use SetEnabled.
func (s *Service) Toggle(ctx context.Context, slug string, enabled bool) (bool, error) {
	return s.SetEnabled(ctx, slug, !enabled)
}

// SetEnabled stores the desired enabled flag and returns the stored value.
// Disabling switches the app off wherever it is in use and notifies the
// affected users in the background.
func (s *Service) SetEnabled(ctx context.Context, slug string, enabled bool) (bool, error) {
	app, err := s.apps.SetEnabled(ctx, slug, enabled)
	if errors.Is(err, store.ErrNotFound) {
		return false, httperrors.NotFound("app not found")
	}
	if err != nil {
		return false, fmt.Errorf("set %s enabled=%t: %w", slug, enabled, err)
	}
	metrics.AppStateChanged(slug, app.Enabled)
	slog.InfoContext(ctx, "app state changed", "slug", slug, "enabled", app.Enabled)

	if app.Enabled {
		return true, nil
	}

	// Notices owed for the event types already switched off go out even
	// when a later one fails.
	notices, err := s.disable(ctx, app)
	if len(notices) > 0 {
		s.notifier.Dispatch(ctx, notices)
	}
	if err != nil {
		return false, err
	}
	return false, nil
}

func (s *Service) disable(ctx context.Context, app *store.App) ([]notify.Notice, error) {
	name := app.Slug
	if m, ok := s.catalog.Lookup(app.Slug); ok {
		name = m.Name
	}

	if app.HasCategory("calendar") || app.HasCategory("video") {
		users, err := s.credentials.ListUsersByApp(ctx, app.Slug)
		if err != nil {
			return nil, fmt.Errorf("list credentialed users for %s: %w", app.Slug, err)
		}
		notices := make([]notify.Notice, 0, len(users))
		for _, u := range users {
			notices = append(notices, notifyDisabled(u, name, app.Categories, nil))
		}
		return notices, nil
	}

	eventTypes, err := s.eventTypes.ListWithAppEnabled(ctx, app.Slug)
	if err != nil {
		return nil, fmt.Errorf("list event types using %s: %w", app.Slug, err)
	}

	var (
		notices []notify.Notice
		errs    []error
	)
	seen := make(map[int64]struct{})
	for _, et := range eventTypes {
		metadata, changed, err := switchOff(et.Metadata, app.Slug)
		if err != nil {
			errs = append(errs, fmt.Errorf("patch metadata of event type %d: %w", et.ID, err))
			continue
		}
		if changed {
			if err := s.eventTypes.UpdateMetadata(ctx, et.ID, metadata); err != nil {
				errs = append(errs, fmt.Errorf("update metadata of event type %d: %w", et.ID, err))
				continue
			}
		}

		roster, err := s.eventTypes.ListRoster(ctx, et.ID)
		if err != nil {
			errs = append(errs, fmt.Errorf("list roster of event type %d: %w", et.ID, err))
			continue
		}
		etID := et.ID
		for _, u := range roster {
			if _, dup := seen[u.ID]; dup {
				continue
			}
			seen[u.ID] = struct{}{}
			notices = append(notices, notifyDisabled(u, name, app.Categories, &etID))
		}
	}
	return notices, errors.Join(errs...)
}

// notifyDisabled builds the notice sent to one affected user.
func notifyDisabled(u store.User, appName string, categories []string, eventTypeID *int64) notify.Notice {
	return notify.Notice{
		RecipientEmail: u.Email,
		RecipientName:  u.DisplayName(),
		Locale:         u.Locale,
		AppName:        appName,
		Categories:     categories,
		EventTypeID:    eventTypeID,
	}
}

// switchOff forces apps.<slug>.enabled to false, leaving the rest of the
// metadata untouched.
func switchOff(metadata []byte, slug string) ([]byte, bool, error) {
	path := "apps." + escapePath(slug) + ".enabled"
	if len(metadata) == 0 {
		metadata = []byte("{}")
	}
	if current := gjson.GetBytes(metadata, path); current.Exists() && !current.Bool() {
		return metadata, false, nil
	}
	out, err := sjson.SetBytes(metadata, path, false)
	if err != nil {
		return nil, false, err
	}
	return out, true, nil
}

func escapePath(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '.', '*', '?', '|', '#', '@', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// SaveKeys validates keys against the schema for appType and stores the
// parsed value sealed. Nothing is written when validation fails.
func (s *Service) SaveKeys(ctx context.Context, slug, appType string, keys json.RawMessage) error {
	m, ok := s.catalog.Lookup(slug)
	if !ok {
		return httperrors.NotFound("app not found")
	}
	if SchemaKey(appType) != SchemaKey(m.Type) {
		return httperrors.Validation("type does not match app").WithField("type", "expected "+m.Type)
	}

	parsed, err := ParseKeys(appType, keys)
	if err != nil {
		return err
	}
	sealed, err := s.sealer.Encrypt(string(parsed))
	if err != nil {
		return fmt.Errorf("seal keys for %s: %w", slug, err)
	}
	if err := s.apps.UpdateKeys(ctx, slug, sealed); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return httperrors.NotFound("app not found")
		}
		return fmt.Errorf("store keys for %s: %w", slug, err)
	}
	slog.InfoContext(ctx, "app keys saved", "slug", slug)
	return nil
}
