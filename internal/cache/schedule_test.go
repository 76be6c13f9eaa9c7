package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jw6ventures/bookings/internal/store"
)

type fakeSource struct {
	mu        sync.Mutex
	schedules map[int64]store.Schedule
	calls     int
}

func (f *fakeSource) GetByID(ctx context.Context, id int64) (*store.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	s, ok := f.schedules[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &s, nil
}

func (f *fakeSource) set(s store.Schedule) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.schedules[s.ID] = s
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// blockingSource holds every read until release is closed.
type blockingSource struct {
	*fakeSource
	once    sync.Once
	entered chan struct{}
	release chan struct{}
	ctxErr  error
}

func (b *blockingSource) GetByID(ctx context.Context, id int64) (*store.Schedule, error) {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	b.ctxErr = ctx.Err()
	return b.fakeSource.GetByID(ctx, id)
}

func newSource() *fakeSource {
	return &fakeSource{schedules: map[int64]store.Schedule{
		1: {ID: 1, UserID: 9, Name: "Work", TimeZone: "UTC", Availability: []store.Interval{{Day: time.Monday, StartMinute: 540, EndMinute: 1020}}},
	}}
}

func setupRedis(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func TestGetServesFreshEntriesFromMemory(t *testing.T) {
	src := newSource()
	c := NewSchedules(src, nil, time.Minute, WithClock(clockwork.NewFakeClock()))

	first, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	second, err := c.Get(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "Work", second.Name)
	assert.Equal(t, 1, src.callCount())

	// Callers get independent copies.
	first.Availability[0].StartMinute = 0
	third, _ := c.Get(context.Background(), 1)
	assert.Equal(t, 540, third.Availability[0].StartMinute)
}

func TestGetServesStaleAndRefreshesInBackground(t *testing.T) {
	src := newSource()
	clock := clockwork.NewFakeClock()
	c := NewSchedules(src, nil, time.Minute, WithClock(clock))

	_, err := c.Get(context.Background(), 1)
	require.NoError(t, err)

	src.set(store.Schedule{ID: 1, UserID: 9, Name: "Renamed", TimeZone: "UTC"})
	clock.Advance(2 * time.Minute)

	stale, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Work", stale.Name)

	c.Wait()
	fresh, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Renamed", fresh.Name)
	assert.Equal(t, 2, src.callCount())
}

func TestGetMissingScheduleIsNotCached(t *testing.T) {
	src := newSource()
	c := NewSchedules(src, nil, time.Minute)

	_, err := c.Get(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = c.Get(context.Background(), 404)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Equal(t, 2, src.callCount())
}

func TestRedisLayerIsSharedAcrossProcesses(t *testing.T) {
	_, rdb := setupRedis(t)
	src := newSource()
	clock := clockwork.NewFakeClock()

	a := NewSchedules(src, rdb, time.Minute, WithClock(clock))
	b := NewSchedules(src, rdb, time.Minute, WithClock(clock))

	_, err := a.Get(context.Background(), 1)
	require.NoError(t, err)
	got, err := b.Get(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "Work", got.Name)
	assert.Equal(t, 1, src.callCount())
}

func TestInvalidateDropsEntryEverywhere(t *testing.T) {
	mr, rdb := setupRedis(t)
	src := newSource()
	clock := clockwork.NewFakeClock()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewSchedules(src, rdb, time.Minute, WithClock(clock))
	b := NewSchedules(src, rdb, time.Minute, WithClock(clock))
	require.NoError(t, b.Subscribe(ctx))

	_, err := a.Get(ctx, 1)
	require.NoError(t, err)
	_, err = b.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, mr.Exists(key(1)))

	src.set(store.Schedule{ID: 1, UserID: 9, Name: "Updated", TimeZone: "UTC"})
	a.Invalidate(ctx, 1)

	assert.False(t, mr.Exists(key(1)))
	require.Eventually(t, func() bool {
		_, ok := b.memGet(1)
		return !ok
	}, time.Second, 5*time.Millisecond)

	got, err := a.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Updated", got.Name)
}

func TestInvalidatedLoadDoesNotRepopulate(t *testing.T) {
	src := newSource()
	c := NewSchedules(src, nil, time.Minute)

	gen := c.generation(1)
	c.Invalidate(context.Background(), 1)

	assert.False(t, c.memSet(1, gen, entry{Schedule: store.Schedule{ID: 1, Name: "old"}}))
	_, ok := c.memGet(1)
	assert.False(t, ok)
}

func TestRedisOutageFallsBackToSource(t *testing.T) {
	mr, rdb := setupRedis(t)
	mr.Close()

	src := newSource()
	c := NewSchedules(src, rdb, time.Minute)

	got, err := c.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Work", got.Name)

	c.Invalidate(context.Background(), 1)
}

func TestCancelledCallerDoesNotFailJoinedCallers(t *testing.T) {
	src := &blockingSource{fakeSource: newSource(), entered: make(chan struct{}), release: make(chan struct{})}
	c := NewSchedules(src, nil, time.Minute, WithClock(clockwork.NewFakeClock()))

	firstCtx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Get(firstCtx, 1)
		firstErr <- err
	}()
	<-src.entered

	type result struct {
		s   *store.Schedule
		err error
	}
	second := make(chan result, 1)
	go func() {
		s, err := c.Get(context.Background(), 1)
		second <- result{s, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(src.release)
	got := <-second
	require.NoError(t, got.err)
	assert.Equal(t, "Work", got.s.Name)
	assert.NoError(t, src.ctxErr)
}
