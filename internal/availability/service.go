package availability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	httperrors "github.com/jw6ventures/bookings/internal/http/errors"
	"github.com/jw6ventures/bookings/internal/store"
)

// ScheduleCache serves schedule reads and drops entries after writes.
type ScheduleCache interface {
	Get(ctx context.Context, id int64) (*store.Schedule, error)
	Invalidate(ctx context.Context, id int64)
}

type Service struct {
	schedules  store.ScheduleRepository
	eventTypes store.EventTypeRepository
	cache      ScheduleCache
}

func NewService(st *store.Store, cache ScheduleCache) *Service {
	return &Service{
		schedules:  st.Schedules,
		eventTypes: st.EventTypes,
		cache:      cache,
	}
}

// List returns the user's schedules for the list page.
func (s *Service) List(ctx context.Context, userID int64) ([]store.Schedule, error) {
	schedules, err := s.schedules.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list schedules of user %d: %w", userID, err)
	}
	return schedules, nil
}

// Load returns the form for a schedule owned by userID. Missing schedules
// and schedules of other users are both reported as not found.
func (s *Service) Load(ctx context.Context, userID, scheduleID int64) (*Form, error) {
	schedule, err := s.owned(ctx, userID, scheduleID)
	if err != nil {
		return nil, err
	}
	eventTypes, err := s.eventTypes.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list event types of user %d: %w", userID, err)
	}
	return formFromSchedule(schedule, selectedIDs(eventTypes, scheduleID)), nil
}

// EventTypes returns the user's event types grouped for the selector, with
// the ones using scheduleID marked selected.
func (s *Service) EventTypes(ctx context.Context, userID, scheduleID int64) ([]EventTypeGroup, error) {
	eventTypes, err := s.eventTypes.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list event types of user %d: %w", userID, err)
	}
	return GroupEventTypes(eventTypes, scheduleID), nil
}

// Update validates and stores in, then drops the cached schedule and
// returns the refetched form.
func (s *Service) Update(ctx context.Context, userID int64, in UpdateInput) (*Form, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	update := store.ScheduleUpdate{
		ID:           in.ScheduleID,
		UserID:       userID,
		Name:         in.Name,
		TimeZone:     in.TimeZone,
		IsDefault:    in.IsDefault,
		Availability: intervals(in.Schedule),
	}
	if in.EventTypeIDs != nil {
		if err := s.checkAssociable(ctx, userID, *in.EventTypeIDs); err != nil {
			return nil, err
		}
		update.SyncEventTypes = true
		update.EventTypeIDs = *in.EventTypeIDs
	}

	err := s.schedules.Update(ctx, update)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperrors.NotFound("schedule not found")
	}
	if errors.Is(err, store.ErrNotAssociable) {
		return nil, notAssociable()
	}
	if err != nil {
		return nil, fmt.Errorf("update schedule %d: %w", in.ScheduleID, err)
	}
	slog.InfoContext(ctx, "schedule updated", "schedule_id", in.ScheduleID, "user_id", userID)

	s.cache.Invalidate(ctx, in.ScheduleID)
	return s.Load(ctx, userID, in.ScheduleID)
}

// checkAssociable rejects ids outside the event types the selector offers
// to userID.
func (s *Service) checkAssociable(ctx context.Context, userID int64, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	eventTypes, err := s.eventTypes.ListByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("list event types of user %d: %w", userID, err)
	}
	allowed := make(map[int64]bool, len(eventTypes))
	for _, et := range eventTypes {
		allowed[et.ID] = true
	}
	for _, id := range ids {
		if !allowed[id] {
			return notAssociable()
		}
	}
	return nil
}

func notAssociable() error {
	return httperrors.Validation("invalid schedule").WithField("eventTypeIds", "unknown event type")
}

func (s *Service) owned(ctx context.Context, userID, scheduleID int64) (*store.Schedule, error) {
	schedule, err := s.cache.Get(ctx, scheduleID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, httperrors.NotFound("schedule not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load schedule %d: %w", scheduleID, err)
	}
	if schedule.UserID != userID {
		return nil, httperrors.NotFound("schedule not found")
	}
	return schedule, nil
}

func selectedIDs(eventTypes []store.EventType, scheduleID int64) []int64 {
	ids := []int64{}
	for _, et := range eventTypes {
		if et.ScheduleID != nil && *et.ScheduleID == scheduleID {
			ids = append(ids, et.ID)
		}
	}
	return ids
}
