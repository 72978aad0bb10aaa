package device

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database"
)

// Repository defines the persistence operations for devices.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by name.
	List(ctx context.Context) ([]Device, error)

	// ListWithAddress retrieves devices that have a controller address.
	ListWithAddress(ctx context.Context) ([]Device, error)

	// Create inserts a new device.
	// Returns ErrDeviceExists if the ID or device code is taken.
	Create(ctx context.Context, device *Device) error

	// ApplyTransition sets is_on and merges patch into the stored status in
	// a single transaction, returning the row before and after the write.
	ApplyTransition(ctx context.Context, id string, isOn bool, patch Status, at time.Time) (old, updated *Device, err error)

	// SetOnline records reachability for the given devices.
	SetOnline(ctx context.Context, ids []string, online bool, at time.Time) error
}

const selectDeviceColumns = `
	SELECT id, name, device_code, type, room, address, is_on, status,
		is_online, description, created_at, updated_at
	FROM devices`

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	return getDevice(ctx, r.db, id)
}

// List retrieves all devices.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectDeviceColumns+` ORDER BY name, id`)
}

// ListWithAddress retrieves devices that can be reached over the network.
func (r *SQLiteRepository) ListWithAddress(ctx context.Context) ([]Device, error) {
	return r.queryDevices(ctx, selectDeviceColumns+` WHERE address != '' ORDER BY address, id`)
}

// Create inserts a new device.
func (r *SQLiteRepository) Create(ctx context.Context, device *Device) error {
	status := device.Status
	if status == nil {
		status = Status{}
	}
	statusJSON, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshalling status: %w", err)
	}

	query := `
		INSERT INTO devices (
			id, name, device_code, type, room, address, is_on, status,
			is_online, description, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.ExecContext(ctx, query,
		device.ID,
		device.Name,
		nullableString(device.DeviceCode),
		string(device.Type),
		nullableString((*string)(&device.Room)),
		device.Address,
		boolToInt(device.IsOn),
		string(statusJSON),
		boolToInt(device.IsOnline),
		device.Description,
		device.CreatedAt.UTC().Format(time.RFC3339),
		device.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDeviceExists
		}
		return fmt.Errorf("inserting device: %w", err)
	}
	return nil
}

// ApplyTransition reads, merges and writes a device inside one transaction.
//
// The merge happens in Go rather than with json_patch so the caller gets
// back exactly what was stored.
func (r *SQLiteRepository) ApplyTransition(ctx context.Context, id string, isOn bool, patch Status, at time.Time) (*Device, *Device, error) {
	var old, updated *Device

	err := database.WithTx(ctx, r.db, func(tx *sql.Tx) error {
		current, err := getDevice(ctx, tx, id)
		if err != nil {
			return err
		}

		merged := current.Status.Merge(patch)
		statusJSON, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("marshalling status: %w", err)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE devices SET is_on = ?, status = ?, updated_at = ? WHERE id = ?`,
			boolToInt(isOn),
			string(statusJSON),
			at.UTC().Format(time.RFC3339),
			id,
		)
		if err != nil {
			return fmt.Errorf("updating device state: %w", err)
		}

		next := current.DeepCopy()
		next.IsOn = isOn
		next.UpdatedAt = at.UTC().Truncate(time.Second)
		next.Status = Status{}
		if err := json.Unmarshal(statusJSON, &next.Status); err != nil {
			return fmt.Errorf("unmarshalling status: %w", err)
		}

		old, updated = current, next
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return old, updated, nil
}

// SetOnline records reachability. Rows already in the requested state are
// left untouched.
func (r *SQLiteRepository) SetOnline(ctx context.Context, ids []string, online bool, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	query := `UPDATE devices SET is_online = ?, updated_at = ?
		WHERE is_online != ? AND id IN (` + placeholders + `)`

	args := make([]any, 0, len(ids)+3)
	args = append(args, boolToInt(online), at.UTC().Format(time.RFC3339), boolToInt(online))
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("updating device reachability: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) queryDevices(ctx context.Context, query string, args ...any) ([]Device, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		device, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *device)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getDevice(ctx context.Context, q queryer, id string) (*Device, error) {
	device, err := scanDevice(q.QueryRowContext(ctx, selectDeviceColumns+` WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return device, nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var deviceCode, room sql.NullString
	var deviceType, statusJSON, createdAt, updatedAt string
	var isOn, isOnline int

	err := scanner.Scan(
		&d.ID,
		&d.Name,
		&deviceCode,
		&deviceType,
		&room,
		&d.Address,
		&isOn,
		&statusJSON,
		&isOnline,
		&d.Description,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	d.Type = Type(deviceType)
	d.IsOn = isOn != 0
	d.IsOnline = isOnline != 0
	if deviceCode.Valid {
		d.DeviceCode = &deviceCode.String
	}
	if room.Valid {
		d.Room = Room(room.String)
	}

	var parseErr error
	d.CreatedAt, parseErr = time.Parse(time.RFC3339, createdAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing created_at: %w", parseErr)
	}
	d.UpdatedAt, parseErr = time.Parse(time.RFC3339, updatedAt)
	if parseErr != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", parseErr)
	}

	d.Status = Status{}
	if err := json.Unmarshal([]byte(statusJSON), &d.Status); err != nil {
		return nil, fmt.Errorf("unmarshalling status: %w", err)
	}
	if d.Status == nil {
		d.Status = Status{}
	}

	return &d, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// nullableString returns a sql.NullString for optional string pointers.
func nullableString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
