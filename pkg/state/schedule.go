package state

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// TriggerKind selects between interval and daily schedules.
type TriggerKind string

const (
	TriggerInterval TriggerKind = "interval"
	TriggerDaily    TriggerKind = "daily"
)

// Schedule is one row of sync_schedules. Cancellation is expressed as a
// cancelled_at marker rather than deletion, so it survives restarts and
// is consulted before each run.
type Schedule struct {
	ID              string
	ServerName      string
	DatabaseName    string // empty means the whole server
	Kind            TriggerKind
	IntervalMinutes int    // for TriggerInterval
	DailyAt         string // "HH:MM", for TriggerDaily
	LastFiredAt     *time.Time
	CancelledAt     *time.Time
}

// Cancelled reports whether the schedule has been cancelled.
func (sch *Schedule) Cancelled() bool {
	return sch.CancelledAt != nil
}

// Due reports whether the schedule should fire at the given instant.
// Cancelled schedules are never due. Interval schedules fire when the
// interval has elapsed since the last firing (or immediately if never
// fired); daily schedules fire once per day at or after their HH:MM.
func (sch *Schedule) Due(now time.Time) bool {
	if sch.Cancelled() {
		return false
	}
	switch sch.Kind {
	case TriggerInterval:
		if sch.LastFiredAt == nil {
			return true
		}
		return now.Sub(*sch.LastFiredAt) >= time.Duration(sch.IntervalMinutes)*time.Minute
	case TriggerDaily:
		hour, minute, err := parseDailyAt(sch.DailyAt)
		if err != nil {
			return false
		}
		todayAt := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
		if now.Before(todayAt) {
			return false
		}
		return sch.LastFiredAt == nil || sch.LastFiredAt.Before(todayAt)
	}
	return false
}

func parseDailyAt(s string) (hour, minute int, err error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid daily time %q", s)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily time %q", s)
	}
	minute, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid daily time %q", s)
	}
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid daily time %q", s)
	}
	return hour, minute, nil
}

// AddSchedule inserts a new schedule and returns its generated id.
func (s *Store) AddSchedule(ctx context.Context, sch Schedule) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_schedules (id, server_name, database_name, trigger_kind, interval_minutes, daily_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, sch.ServerName, sch.DatabaseName, string(sch.Kind), sch.IntervalMinutes, sch.DailyAt)
	if err != nil {
		return "", fmt.Errorf("adding schedule: %w", err)
	}
	return id, nil
}

// CancelSchedule sets the cancelled_at marker. Cancelling an already
// cancelled schedule is a no-op.
func (s *Store) CancelSchedule(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE sync_schedules SET cancelled_at = $1
		WHERE id = $2 AND cancelled_at IS NULL`, time.Now(), id)
	if err != nil {
		return fmt.Errorf("cancelling schedule %s: %w", id, err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		// Either unknown or already cancelled; check which.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM sync_schedules WHERE id = $1)`, id).Scan(&exists); err == nil && !exists {
			return fmt.Errorf("schedule %s not found", id)
		}
	}
	return nil
}

// ListSchedules returns all non-cancelled schedules.
func (s *Store) ListSchedules(ctx context.Context) ([]Schedule, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, server_name, database_name, trigger_kind, interval_minutes, daily_at, last_fired_at, cancelled_at
		FROM sync_schedules
		WHERE cancelled_at IS NULL
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("listing schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		var sch Schedule
		var database, dailyAt sql.NullString
		var interval sql.NullInt64
		var lastFired, cancelled sql.NullTime
		if err := rows.Scan(&sch.ID, &sch.ServerName, &database, (*string)(&sch.Kind),
			&interval, &dailyAt, &lastFired, &cancelled); err != nil {
			return nil, err
		}
		sch.DatabaseName = database.String
		sch.IntervalMinutes = int(interval.Int64)
		sch.DailyAt = dailyAt.String
		if lastFired.Valid {
			sch.LastFiredAt = &lastFired.Time
		}
		if cancelled.Valid {
			sch.CancelledAt = &cancelled.Time
		}
		schedules = append(schedules, sch)
	}
	return schedules, rows.Err()
}

// MarkScheduleFired records a firing so interval and daily due checks
// advance.
func (s *Store) MarkScheduleFired(ctx context.Context, id string, at time.Time) error {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sync_schedules SET last_fired_at = $1 WHERE id = $2`, at, id); err != nil {
		return fmt.Errorf("marking schedule %s fired: %w", id, err)
	}
	return nil
}
