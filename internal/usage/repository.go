package usage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database"
)

// Repository persists sessions and daily statistics. Every method that
// touches both tables does so in a single transaction.
type Repository interface {
	// OpenSession closes any sessions already open for the device as
	// anomalies, starts a new one at at, and counts a turn-on against date.
	// The anomalous sessions are returned.
	OpenSession(ctx context.Context, deviceID string, at time.Time, date string) (opened *Session, stale []Session, err error)

	// CloseSession ends the device's most recent open session at at. When
	// bill yields a positive number of minutes the charge is added to date.
	// Returns nil when no session was open.
	CloseSession(ctx context.Context, deviceID string, at time.Time, date string, bill func(time.Duration) Charge) (*Session, *Charge, error)

	// DailyStats returns per-day rows for a device between two dates inclusive.
	DailyStats(ctx context.Context, deviceID, from, to string) ([]DailyStatistic, error)

	// Summary totals every device's statistics between two dates inclusive.
	Summary(ctx context.Context, from, to string) ([]DeviceSummary, error)

	// OpenSessions lists every session without an end time.
	OpenSessions(ctx context.Context) ([]OpenSession, error)

	// CloseStale closes, unbilled, sessions started before cutoff.
	CloseStale(ctx context.Context, cutoff, at time.Time) (int, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new usage repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// OpenSession implements Repository.
func (r *SQLiteRepository) OpenSession(ctx context.Context, deviceID string, at time.Time, date string) (*Session, []Session, error) {
	var opened *Session
	var stale []Session

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		open, err := querySessions(ctx, tx,
			`SELECT id, device_id, start_time, end_time, duration_minutes, close_reason
			 FROM usage_sessions WHERE device_id = ? AND end_time IS NULL`, deviceID)
		if err != nil {
			return err
		}
		for i := range open {
			if err := endSession(ctx, tx, &open[i], at, CloseAnomaly); err != nil {
				return err
			}
		}
		stale = open

		s := &Session{ID: uuid.NewString(), DeviceID: deviceID, StartTime: at.UTC().Truncate(time.Second)}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO usage_sessions (id, device_id, start_time) VALUES (?, ?, ?)`,
			s.ID, s.DeviceID, s.StartTime.Format(time.RFC3339))
		if err != nil {
			return fmt.Errorf("inserting usage session: %w", err)
		}
		opened = s

		return addStatistic(ctx, tx, DailyStatistic{DeviceID: deviceID, Date: date, TurnOnCount: 1}, at)
	})
	if err != nil {
		return nil, nil, err
	}
	return opened, stale, nil
}

// CloseSession implements Repository.
func (r *SQLiteRepository) CloseSession(ctx context.Context, deviceID string, at time.Time, date string, bill func(time.Duration) Charge) (*Session, *Charge, error) {
	var closed *Session
	var charge *Charge

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		open, err := querySessions(ctx, tx,
			`SELECT id, device_id, start_time, end_time, duration_minutes, close_reason
			 FROM usage_sessions WHERE device_id = ? AND end_time IS NULL
			 ORDER BY start_time DESC LIMIT 1`, deviceID)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			return nil
		}

		s := open[0]
		if err := endSession(ctx, tx, &s, at, CloseBilled); err != nil {
			return err
		}
		closed = &s

		c := bill(s.EndTime.Sub(s.StartTime))
		c.Minutes = s.DurationMinutes
		charge = &c
		if c.Minutes == 0 {
			return nil
		}
		return addStatistic(ctx, tx, DailyStatistic{
			DeviceID:          deviceID,
			Date:              date,
			TotalUsageMinutes: c.Minutes,
			PowerConsumption:  c.EnergyKWh,
			Cost:              c.Cost,
		}, at)
	})
	if err != nil {
		return nil, nil, err
	}
	return closed, charge, nil
}

// DailyStats implements Repository.
func (r *SQLiteRepository) DailyStats(ctx context.Context, deviceID, from, to string) ([]DailyStatistic, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT device_id, date, turn_on_count, total_usage_minutes, power_consumption, cost
		 FROM device_statistics
		 WHERE device_id = ? AND date >= ? AND date <= ?
		 ORDER BY date`, deviceID, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying daily statistics: %w", err)
	}
	defer rows.Close()

	stats := []DailyStatistic{}
	for rows.Next() {
		var s DailyStatistic
		if err := rows.Scan(&s.DeviceID, &s.Date, &s.TurnOnCount, &s.TotalUsageMinutes, &s.PowerConsumption, &s.Cost); err != nil {
			return nil, fmt.Errorf("scanning daily statistic: %w", err)
		}
		stats = append(stats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating daily statistics: %w", err)
	}
	return stats, nil
}

// Summary implements Repository.
func (r *SQLiteRepository) Summary(ctx context.Context, from, to string) ([]DeviceSummary, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT d.id, d.name, d.type,
			COALESCE(SUM(s.turn_on_count), 0),
			COALESCE(SUM(s.total_usage_minutes), 0),
			COALESCE(SUM(s.power_consumption), 0),
			COALESCE(SUM(s.cost), 0)
		 FROM devices d
		 JOIN device_statistics s ON s.device_id = d.id
		 WHERE s.date >= ? AND s.date <= ?
		 GROUP BY d.id, d.name, d.type
		 ORDER BY SUM(s.cost) DESC, d.name`, from, to)
	if err != nil {
		return nil, fmt.Errorf("querying usage summary: %w", err)
	}
	defer rows.Close()

	summaries := []DeviceSummary{}
	for rows.Next() {
		var s DeviceSummary
		if err := rows.Scan(&s.DeviceID, &s.DeviceName, &s.DeviceType,
			&s.TurnOnCount, &s.TotalUsageMinutes, &s.PowerConsumption, &s.Cost); err != nil {
			return nil, fmt.Errorf("scanning usage summary: %w", err)
		}
		summaries = append(summaries, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage summary: %w", err)
	}
	return summaries, nil
}

// OpenSessions implements Repository.
func (r *SQLiteRepository) OpenSessions(ctx context.Context) ([]OpenSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.device_id, s.start_time, d.name, d.type
		 FROM usage_sessions s
		 JOIN devices d ON d.id = s.device_id
		 WHERE s.end_time IS NULL
		 ORDER BY s.start_time`)
	if err != nil {
		return nil, fmt.Errorf("querying open sessions: %w", err)
	}
	defer rows.Close()

	sessions := []OpenSession{}
	for rows.Next() {
		var s OpenSession
		var start string
		if err := rows.Scan(&s.ID, &s.DeviceID, &start, &s.DeviceName, &s.DeviceType); err != nil {
			return nil, fmt.Errorf("scanning open session: %w", err)
		}
		if s.StartTime, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parsing start_time: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating open sessions: %w", err)
	}
	return sessions, nil
}

// CloseStale implements Repository.
func (r *SQLiteRepository) CloseStale(ctx context.Context, cutoff, at time.Time) (int, error) {
	var closed int

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		stale, err := querySessions(ctx, tx,
			`SELECT id, device_id, start_time, end_time, duration_minutes, close_reason
			 FROM usage_sessions WHERE end_time IS NULL AND start_time < ?`,
			cutoff.UTC().Format(time.RFC3339))
		if err != nil {
			return err
		}
		for i := range stale {
			if err := endSession(ctx, tx, &stale[i], at, CloseStale); err != nil {
				return err
			}
		}
		closed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return closed, nil
}

func endSession(ctx context.Context, tx *sql.Tx, s *Session, at time.Time, reason string) error {
	end := at.UTC().Truncate(time.Second)
	s.EndTime = &end
	s.DurationMinutes = WholeMinutes(end.Sub(s.StartTime))
	s.CloseReason = reason

	_, err := tx.ExecContext(ctx,
		`UPDATE usage_sessions SET end_time = ?, duration_minutes = ?, close_reason = ? WHERE id = ?`,
		end.Format(time.RFC3339), s.DurationMinutes, reason, s.ID)
	if err != nil {
		return fmt.Errorf("closing usage session: %w", err)
	}
	return nil
}

// addStatistic adds delta to the (device, date) row, creating it if needed.
func addStatistic(ctx context.Context, tx *sql.Tx, delta DailyStatistic, at time.Time) error {
	stamp := at.UTC().Format(time.RFC3339)
	_, err := tx.ExecContext(ctx,
		`INSERT INTO device_statistics
			(device_id, date, turn_on_count, total_usage_minutes, power_consumption, cost, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (device_id, date) DO UPDATE SET
			turn_on_count = turn_on_count + excluded.turn_on_count,
			total_usage_minutes = total_usage_minutes + excluded.total_usage_minutes,
			power_consumption = power_consumption + excluded.power_consumption,
			cost = cost + excluded.cost,
			updated_at = excluded.updated_at`,
		delta.DeviceID, delta.Date, delta.TurnOnCount, delta.TotalUsageMinutes,
		delta.PowerConsumption, delta.Cost, stamp, stamp)
	if err != nil {
		return fmt.Errorf("updating daily statistic: %w", err)
	}
	return nil
}

func querySessions(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]Session, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying usage sessions: %w", err)
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		var start string
		var end, reason sql.NullString
		if err := rows.Scan(&s.ID, &s.DeviceID, &start, &end, &s.DurationMinutes, &reason); err != nil {
			return nil, fmt.Errorf("scanning usage session: %w", err)
		}
		if s.StartTime, err = time.Parse(time.RFC3339, start); err != nil {
			return nil, fmt.Errorf("parsing start_time: %w", err)
		}
		if end.Valid {
			t, err := time.Parse(time.RFC3339, end.String)
			if err != nil {
				return nil, fmt.Errorf("parsing end_time: %w", err)
			}
			s.EndTime = &t
		}
		s.CloseReason = reason.String
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating usage sessions: %w", err)
	}
	return sessions, nil
}
