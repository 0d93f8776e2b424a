package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warebase/ferry/pkg/state"
)

type memScheduleStore struct {
	mu        sync.Mutex
	schedules []state.Schedule
	listErr   error
	fireErr   error
}

func (s *memScheduleStore) ListSchedules(context.Context) ([]state.Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	return append([]state.Schedule(nil), s.schedules...), nil
}

func (s *memScheduleStore) MarkScheduleFired(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fireErr != nil {
		return s.fireErr
	}
	for i := range s.schedules {
		if s.schedules[i].ID == id {
			fired := at
			s.schedules[i].LastFiredAt = &fired
		}
	}
	return nil
}

type firing struct {
	server, database string
}

func TestTickFiresDueSchedules(t *testing.T) {
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	store := &memScheduleStore{schedules: []state.Schedule{
		{ID: "due", ServerName: "primary", DatabaseName: "sales", Kind: state.TriggerInterval, IntervalMinutes: 15, LastFiredAt: &past},
		{ID: "not-due", ServerName: "primary", Kind: state.TriggerInterval, IntervalMinutes: 120, LastFiredAt: &past},
		{ID: "cancelled", ServerName: "primary", Kind: state.TriggerInterval, IntervalMinutes: 1, CancelledAt: &past},
	}}

	var mu sync.Mutex
	var fired []firing
	run := func(_ context.Context, server, database string) {
		mu.Lock()
		defer mu.Unlock()
		fired = append(fired, firing{server, database})
	}

	s := New(store, run, time.Minute, nil)
	s.tick(context.Background(), now)

	require.Len(t, fired, 1)
	assert.Equal(t, firing{"primary", "sales"}, fired[0])

	// The firing is recorded so the next tick does not refire.
	require.NotNil(t, store.schedules[0].LastFiredAt)
	assert.Equal(t, now, *store.schedules[0].LastFiredAt)

	fired = nil
	s.tick(context.Background(), now.Add(time.Minute))
	assert.Empty(t, fired)
}

func TestTickSkipsScheduleWhenMarkingFails(t *testing.T) {
	store := &memScheduleStore{
		schedules: []state.Schedule{
			{ID: "due", ServerName: "primary", Kind: state.TriggerInterval, IntervalMinutes: 1},
		},
		fireErr: errors.New("write failed"),
	}

	var fired int
	run := func(context.Context, string, string) { fired++ }

	s := New(store, run, time.Minute, nil)
	s.tick(context.Background(), time.Now())
	assert.Zero(t, fired, "a schedule whose firing cannot be recorded must not run")
}

func TestTickToleratesListFailure(t *testing.T) {
	store := &memScheduleStore{listErr: errors.New("connection lost")}
	s := New(store, func(context.Context, string, string) {}, time.Minute, nil)
	s.tick(context.Background(), time.Now())
}

func TestRunStopsOnCancel(t *testing.T) {
	store := &memScheduleStore{}
	s := New(store, func(context.Context, string, string) {}, 10*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}
