package schedule

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the persistence operations for schedules.
type Repository interface {
	// GetByID returns ErrScheduleNotFound if the schedule does not exist.
	GetByID(ctx context.Context, id string) (*Schedule, error)

	// List returns schedules ordered by time of day.
	List(ctx context.Context, filter Filter) ([]Schedule, error)

	Create(ctx context.Context, s *Schedule) error
	Update(ctx context.Context, s *Schedule) error
	Delete(ctx context.Context, id string) error

	// ListCandidates returns active schedules the evaluator must look at:
	// every pending one and every recurring one.
	ListCandidates(ctx context.Context) ([]Schedule, error)

	// Rearm clears is_executed on a recurring schedule whose next
	// occurrence has come round.
	Rearm(ctx context.Context, id string, at time.Time) error

	// MarkResolved moves an occurrence to its terminal state. executedAt
	// is zero for a skipped or failed occurrence.
	MarkResolved(ctx context.Context, id string, due, executedAt, at time.Time) error
}

const selectScheduleColumns = `
	SELECT id, device_id, user_id, name, action, time_of_day, date, repeat,
		repeat_days, is_active, is_executed, executed_at, last_due_at,
		created_at, updated_at
	FROM schedules`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a schedule by ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Schedule, error) {
	s, err := scanSchedule(r.db.QueryRowContext(ctx, selectScheduleColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, fmt.Errorf("querying schedule by id: %w", err)
	}
	return s, nil
}

// List retrieves schedules matching filter.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) ([]Schedule, error) {
	var where []string
	var args []any
	if filter.UserID != "" {
		where = append(where, "user_id = ?")
		args = append(args, filter.UserID)
	}
	if filter.DeviceID != "" {
		where = append(where, "device_id = ?")
		args = append(args, filter.DeviceID)
	}

	query := selectScheduleColumns
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY time_of_day, created_at, id"

	return r.querySchedules(ctx, query, args...)
}

// ListCandidates retrieves the schedules the evaluator considers each tick.
func (r *SQLiteRepository) ListCandidates(ctx context.Context) ([]Schedule, error) {
	return r.querySchedules(ctx, selectScheduleColumns+`
		WHERE is_active = 1 AND (is_executed = 0 OR repeat != 'once')
		ORDER BY time_of_day, id`)
}

// Create inserts a new schedule.
func (r *SQLiteRepository) Create(ctx context.Context, s *Schedule) error {
	days, err := marshalDays(s.RepeatDays)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO schedules (
			id, device_id, user_id, name, action, time_of_day, date, repeat,
			repeat_days, is_active, is_executed, executed_at, last_due_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.DeviceID, s.UserID, s.Name, string(s.Action), s.TimeOfDay.String(),
		nullableDate(s.Date), string(s.Repeat), days,
		boolToInt(s.IsActive), boolToInt(s.IsExecuted),
		nullableTime(s.ExecutedAt), nullableTime(s.LastDueAt),
		formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting schedule: %w", err)
	}
	return nil
}

// Update overwrites every mutable column of a schedule.
func (r *SQLiteRepository) Update(ctx context.Context, s *Schedule) error {
	days, err := marshalDays(s.RepeatDays)
	if err != nil {
		return err
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET
			device_id = ?, name = ?, action = ?, time_of_day = ?, date = ?,
			repeat = ?, repeat_days = ?, is_active = ?, is_executed = ?,
			executed_at = ?, last_due_at = ?, updated_at = ?
		WHERE id = ?`,
		s.DeviceID, s.Name, string(s.Action), s.TimeOfDay.String(), nullableDate(s.Date),
		string(s.Repeat), days, boolToInt(s.IsActive), boolToInt(s.IsExecuted),
		nullableTime(s.ExecutedAt), nullableTime(s.LastDueAt), formatTime(s.UpdatedAt),
		s.ID,
	)
	if err != nil {
		return fmt.Errorf("updating schedule: %w", err)
	}
	return requireRow(result)
}

// Delete removes a schedule.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting schedule: %w", err)
	}
	return requireRow(result)
}

// Rearm clears the executed flag of a recurring schedule.
func (r *SQLiteRepository) Rearm(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET is_executed = 0, updated_at = ?
		WHERE id = ? AND repeat != 'once'`,
		formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("re-arming schedule: %w", err)
	}
	return requireRow(result)
}

// MarkResolved sets is_executed, last_due_at and, for an executed
// occurrence, executed_at.
func (r *SQLiteRepository) MarkResolved(ctx context.Context, id string, due, executedAt, at time.Time) error {
	var executed sql.NullString
	if !executedAt.IsZero() {
		executed = sql.NullString{String: formatTime(executedAt), Valid: true}
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE schedules SET
			is_executed = 1,
			executed_at = COALESCE(?, executed_at),
			last_due_at = ?,
			updated_at = ?
		WHERE id = ?`,
		executed, formatTime(due), formatTime(at), id,
	)
	if err != nil {
		return fmt.Errorf("marking schedule resolved: %w", err)
	}
	return requireRow(result)
}

func (r *SQLiteRepository) querySchedules(ctx context.Context, query string, args ...any) ([]Schedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying schedules: %w", err)
	}
	defer rows.Close()

	var schedules []Schedule
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning schedule: %w", err)
		}
		schedules = append(schedules, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating schedules: %w", err)
	}
	return schedules, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(scanner rowScanner) (*Schedule, error) {
	var s Schedule
	var action, timeOfDay, repeat, daysJSON, createdAt, updatedAt string
	var date, executedAt, lastDueAt sql.NullString
	var isActive, isExecuted int

	err := scanner.Scan(
		&s.ID, &s.DeviceID, &s.UserID, &s.Name, &action, &timeOfDay, &date, &repeat,
		&daysJSON, &isActive, &isExecuted, &executedAt, &lastDueAt,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.Action = Action(action)
	s.Repeat = Repeat(repeat)
	s.IsActive = isActive != 0
	s.IsExecuted = isExecuted != 0

	if s.TimeOfDay, err = ParseTimeOfDay(timeOfDay); err != nil {
		return nil, err
	}
	if date.Valid {
		d, parseErr := ParseDate(date.String)
		if parseErr != nil {
			return nil, parseErr
		}
		s.Date = &d
	}
	if err := json.Unmarshal([]byte(daysJSON), &s.RepeatDays); err != nil {
		return nil, fmt.Errorf("unmarshalling repeat_days: %w", err)
	}
	if s.RepeatDays == nil {
		s.RepeatDays = []Weekday{}
	}

	if s.ExecutedAt, err = parseNullTime(executedAt); err != nil {
		return nil, fmt.Errorf("parsing executed_at: %w", err)
	}
	if s.LastDueAt, err = parseNullTime(lastDueAt); err != nil {
		return nil, fmt.Errorf("parsing last_due_at: %w", err)
	}
	if s.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if s.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &s, nil
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

func marshalDays(days []Weekday) (string, error) {
	if days == nil {
		days = []Weekday{}
	}
	b, err := json.Marshal(days)
	if err != nil {
		return "", fmt.Errorf("marshalling repeat_days: %w", err)
	}
	return string(b), nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil || t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullableDate(d *Date) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func parseNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
