// Package audit records every applied device transition in the
// device_logs table and reads it back for the history endpoints.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sources of a device transition.
const (
	SourceAPI      = "api"
	SourceSchedule = "schedule"
	SourceSync     = "sync"
	SourceMQTT     = "mqtt"
)

const (
	defaultLimit = 50
	maxLimit     = 200
)

// DeviceLog is one append-only entry describing a device change.
type DeviceLog struct {
	ID        string         `json:"id"`
	DeviceID  string         `json:"device_id"`
	Action    string         `json:"action"`
	OldStatus map[string]any `json:"old_status"`
	NewStatus map[string]any `json:"new_status"`
	UserID    string         `json:"user_id,omitempty"`
	Source    string         `json:"source"`
	CreatedAt time.Time      `json:"created_at"`
}

// Snapshot flattens is_on into a copy of status, the shape stored in
// old_status and new_status.
func Snapshot(isOn bool, status map[string]any) map[string]any {
	out := make(map[string]any, len(status)+1)
	for k, v := range status {
		out[k] = v
	}
	out["is_on"] = isOn
	return out
}

// Filter controls which device logs to return.
type Filter struct {
	DeviceID string // required
	Action   string // optional
	Source   string // optional
	Limit    int    // default 50, max 200
	Offset   int
}

// ListResult contains a page of device logs.
type ListResult struct {
	Logs   []DeviceLog `json:"logs"`
	Total  int         `json:"total"`
	Limit  int         `json:"limit"`
	Offset int         `json:"offset"`
}

// Repository defines the device log operations.
type Repository interface {
	Create(ctx context.Context, log *DeviceLog) error
	ListByDevice(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores device logs in SQLite.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository creates a new device log repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db, now: time.Now}
}

// Create inserts a log entry. ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *DeviceLog) error {
	if log.ID == "" {
		log.ID = uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = r.now().UTC()
	}

	oldJSON, err := marshalStatus(log.OldStatus)
	if err != nil {
		return fmt.Errorf("marshalling old status: %w", err)
	}
	newJSON, err := marshalStatus(log.NewStatus)
	if err != nil {
		return fmt.Errorf("marshalling new status: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO device_logs (id, device_id, action, old_status, new_status, user_id, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.DeviceID, log.Action, oldJSON, newJSON,
		log.UserID, log.Source,
		log.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting device log: %w", err)
	}
	return nil
}

// ListByDevice returns a device's logs, newest first.
func (r *SQLiteRepository) ListByDevice(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	conditions := []string{"device_id = ?"}
	args := []any{filter.DeviceID}
	if filter.Action != "" {
		conditions = append(conditions, "action = ?")
		args = append(args, filter.Action)
	}
	if filter.Source != "" {
		conditions = append(conditions, "source = ?")
		args = append(args, filter.Source)
	}
	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM device_logs " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting device logs: %w", err)
	}

	query := `SELECT id, device_id, action, old_status, new_status, user_id, source, created_at
		FROM device_logs ` + where + ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?` //nolint:gosec // as above
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying device logs: %w", err)
	}
	defer rows.Close()

	logs := make([]DeviceLog, 0, filter.Limit)
	for rows.Next() {
		var l DeviceLog
		var oldJSON, newJSON, createdAt string
		if err := rows.Scan(&l.ID, &l.DeviceID, &l.Action, &oldJSON, &newJSON, &l.UserID, &l.Source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning device log: %w", err)
		}
		if err := json.Unmarshal([]byte(oldJSON), &l.OldStatus); err != nil {
			return nil, fmt.Errorf("unmarshalling old status: %w", err)
		}
		if err := json.Unmarshal([]byte(newJSON), &l.NewStatus); err != nil {
			return nil, fmt.Errorf("unmarshalling new status: %w", err)
		}
		if l.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating device logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}

func marshalStatus(status map[string]any) (string, error) {
	if status == nil {
		return "{}", nil
	}
	b, err := json.Marshal(status)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
