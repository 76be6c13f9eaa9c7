// Package cache keeps recently read schedules in process memory and Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/jw6ventures/bookings/internal/metrics"
	"github.com/jw6ventures/bookings/internal/store"
)

const (
	invalidationChannel = "schedule:invalidate"
	redisTTL            = time.Hour
	loadTimeout         = 10 * time.Second
)

// ScheduleSource loads schedules from the system of record.
type ScheduleSource interface {
	GetByID(ctx context.Context, id int64) (*store.Schedule, error)
}

// Schedules serves schedules by id. Entries younger than the revalidate
// interval are returned directly; older memory entries are returned and
// refreshed in the background.
type Schedules struct {
	source     ScheduleSource
	rdb        goredis.UniversalClient
	clock      clockwork.Clock
	revalidate time.Duration

	mu      sync.RWMutex
	entries map[int64]entry
	// gens is bumped on every invalidation so loads that raced with a write
	// do not repopulate the old value.
	gens map[int64]uint64

	group singleflight.Group
	bg    sync.WaitGroup
}

type entry struct {
	Schedule  store.Schedule `json:"schedule"`
	FetchedAt time.Time      `json:"fetched_at"`
}

type Option func(*Schedules)

func WithClock(c clockwork.Clock) Option {
	return func(s *Schedules) { s.clock = c }
}

// NewSchedules builds the cache. rdb may be nil for a memory-only cache.
func NewSchedules(source ScheduleSource, rdb goredis.UniversalClient, revalidate time.Duration, opts ...Option) *Schedules {
	s := &Schedules{
		source:     source,
		rdb:        rdb,
		clock:      clockwork.NewRealClock(),
		revalidate: revalidate,
		entries:    make(map[int64]entry),
		gens:       make(map[int64]uint64),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the schedule with id, from cache when possible.
func (s *Schedules) Get(ctx context.Context, id int64) (*store.Schedule, error) {
	if e, ok := s.memGet(id); ok {
		if s.clock.Since(e.FetchedAt) < s.revalidate {
			metrics.CacheLookup("memory", "hit")
			return cloneSchedule(e.Schedule), nil
		}
		metrics.CacheLookup("memory", "stale")
		s.refreshAsync(ctx, id)
		return cloneSchedule(e.Schedule), nil
	}
	metrics.CacheLookup("memory", "miss")

	// Joined callers share one load; a caller that goes away stops waiting
	// without cancelling it for the others.
	ch := s.group.DoChan(key(id), func() (any, error) {
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx, id)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneSchedule(res.Val.(store.Schedule)), nil
	}
}

// load reads through Redis to the source and fills both layers.
func (s *Schedules) load(ctx context.Context, id int64) (store.Schedule, error) {
	gen := s.generation(id)

	if e, ok := s.redisGet(ctx, id); ok && s.clock.Since(e.FetchedAt) < s.revalidate {
		metrics.CacheLookup("redis", "hit")
		s.memSet(id, gen, e)
		return e.Schedule, nil
	}
	if s.rdb != nil {
		metrics.CacheLookup("redis", "miss")
	}
	return s.fetch(ctx, id, gen)
}

func (s *Schedules) fetch(ctx context.Context, id int64, gen uint64) (store.Schedule, error) {
	sched, err := s.source.GetByID(ctx, id)
	if err != nil {
		return store.Schedule{}, err
	}
	metrics.CacheLookup("origin", "hit")

	e := entry{Schedule: *sched, FetchedAt: s.clock.Now()}
	if s.memSet(id, gen, e) {
		s.redisSet(ctx, id, e)
	}
	return e.Schedule, nil
}

func (s *Schedules) refreshAsync(ctx context.Context, id int64) {
	ctx = context.WithoutCancel(ctx)
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		_, err, _ := s.group.Do("refresh:"+key(id), func() (any, error) {
			return s.fetch(ctx, id, s.generation(id))
		})
		if errors.Is(err, store.ErrNotFound) {
			s.memDelete(id)
			return
		}
		if err != nil {
			slog.WarnContext(ctx, "background schedule refresh failed", "schedule_id", id, "error", err)
		}
	}()
}

// Invalidate drops id from both layers and tells peer processes to drop
// their memory copy. Redis failures are logged, not returned.
func (s *Schedules) Invalidate(ctx context.Context, id int64) {
	s.mu.Lock()
	s.gens[id]++
	delete(s.entries, id)
	s.mu.Unlock()
	metrics.CacheInvalidated()

	if s.rdb == nil {
		return
	}
	if err := s.rdb.Del(ctx, key(id)).Err(); err != nil {
		slog.WarnContext(ctx, "redis schedule cache delete failed", "schedule_id", id, "error", err)
	}
	if err := s.rdb.Publish(ctx, invalidationChannel, strconv.FormatInt(id, 10)).Err(); err != nil {
		slog.WarnContext(ctx, "schedule invalidation publish failed", "schedule_id", id, "error", err)
	}
}

// Subscribe listens for invalidations published by peers until ctx ends.
// It returns once the subscription is confirmed.
func (s *Schedules) Subscribe(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	pubsub := s.rdb.Subscribe(ctx, invalidationChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", invalidationChannel, err)
	}

	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				id, err := strconv.ParseInt(msg.Payload, 10, 64)
				if err != nil {
					slog.Warn("invalid schedule invalidation payload", "payload", msg.Payload)
					continue
				}
				s.mu.Lock()
				s.gens[id]++
				delete(s.entries, id)
				s.mu.Unlock()
			case <-ctx.Done():
				return
			}
		}
	}()
	return nil
}

// Wait blocks until background refreshes finish.
func (s *Schedules) Wait() {
	s.bg.Wait()
}

func (s *Schedules) generation(id int64) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[id]
}

func (s *Schedules) memGet(id int64) (entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	return e, ok
}

// memSet stores e unless id was invalidated since gen was read.
func (s *Schedules) memSet(id int64, gen uint64, e entry) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gens[id] != gen {
		return false
	}
	s.entries[id] = e
	return true
}

func (s *Schedules) memDelete(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, id)
}

func (s *Schedules) redisGet(ctx context.Context, id int64) (entry, bool) {
	if s.rdb == nil {
		return entry{}, false
	}
	data, err := s.rdb.Get(ctx, key(id)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "redis schedule cache GET failed", "schedule_id", id, "error", err)
		}
		return entry{}, false
	}
	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		slog.WarnContext(ctx, "failed to unmarshal cached schedule", "schedule_id", id, "error", err)
		return entry{}, false
	}
	return e, true
}

func (s *Schedules) redisSet(ctx context.Context, id int64, e entry) {
	if s.rdb == nil {
		return
	}
	encoded, err := json.Marshal(e)
	if err != nil {
		slog.WarnContext(ctx, "failed to marshal schedule for redis", "schedule_id", id, "error", err)
		return
	}
	if err := s.rdb.Set(ctx, key(id), encoded, redisTTL).Err(); err != nil {
		slog.WarnContext(ctx, "failed to populate redis schedule cache", "schedule_id", id, "error", err)
	}
}

func key(id int64) string {
	return "schedule_cache:" + strconv.FormatInt(id, 10)
}

func cloneSchedule(s store.Schedule) *store.Schedule {
	out := s
	out.Availability = append([]store.Interval(nil), s.Availability...)
	return &out
}
