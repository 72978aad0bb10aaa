package device

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database/databasetest"
)

var testTime = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)

func setupTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	return NewSQLiteRepository(databasetest.Open(t).DB)
}

func testDevice(id, name string, typ Type) *Device {
	return &Device{
		ID:        id,
		Name:      name,
		Type:      typ,
		Room:      RoomLivingRoom,
		Address:   "192.168.1.50",
		Status:    Status{},
		CreatedAt: testTime,
		UpdatedAt: testTime,
	}
}

func TestSQLiteRepository_CreateAndGet(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	code := "FAN-LR-01"
	d := testDevice("fan-01", "Living Room Fan", TypeFan)
	d.DeviceCode = &code
	d.Status = Status{"mode": "normal"}
	d.Description = "ceiling fan"

	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "fan-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Name != "Living Room Fan" || got.Type != TypeFan || got.Room != RoomLivingRoom {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.DeviceCode == nil || *got.DeviceCode != code {
		t.Errorf("DeviceCode = %v, want %q", got.DeviceCode, code)
	}
	if got.Status["mode"] != "normal" {
		t.Errorf("Status[mode] = %v, want normal", got.Status["mode"])
	}
	if !got.CreatedAt.Equal(testTime) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, testTime)
	}
	if got.IsOn || got.IsOnline {
		t.Error("new device should be off and offline")
	}
}

func TestSQLiteRepository_CreateDuplicate(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	code := "LED-01"
	first := testDevice("led-01", "Strip", TypeLED)
	first.DeviceCode = &code
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name   string
		device *Device
	}{
		{name: "same id", device: testDevice("led-01", "Other", TypeLED)},
		{
			name: "same device code",
			device: func() *Device {
				d := testDevice("led-02", "Other", TypeLED)
				d.DeviceCode = &code
				return d
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := repo.Create(ctx, tt.device)
			if !errors.Is(err, ErrDeviceExists) {
				t.Errorf("Create() error = %v, want ErrDeviceExists", err)
			}
		})
	}
}

func TestSQLiteRepository_GetByID_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_ListWithAddress(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	withAddr := testDevice("light-01", "Hall Light", TypeLight)
	virtual := testDevice("sensor-01", "Virtual Sensor", TypeSensor)
	virtual.Address = ""
	for _, d := range []*Device{withAddr, virtual} {
		if err := repo.Create(ctx, d); err != nil {
			t.Fatalf("Create(%s) error = %v", d.ID, err)
		}
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 2 {
		t.Errorf("List() returned %d devices, want 2", len(all))
	}

	reachable, err := repo.ListWithAddress(ctx)
	if err != nil {
		t.Fatalf("ListWithAddress() error = %v", err)
	}
	if len(reachable) != 1 || reachable[0].ID != "light-01" {
		t.Errorf("ListWithAddress() = %v, want [light-01]", reachable)
	}
}

func TestSQLiteRepository_ApplyTransition(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	d := testDevice("fan-01", "Fan", TypeFan)
	d.Status = Status{"mode": "sleep", "speed": 1}
	if err := repo.Create(ctx, d); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	at := testTime.Add(2 * time.Minute)
	old, updated, err := repo.ApplyTransition(ctx, "fan-01", true, Status{"speed": 3, "state": "on"}, at)
	if err != nil {
		t.Fatalf("ApplyTransition() error = %v", err)
	}

	if old.IsOn {
		t.Error("old.IsOn = true, want false")
	}
	if old.Status["speed"] != float64(1) {
		t.Errorf("old speed = %v, want 1", old.Status["speed"])
	}
	if !updated.IsOn {
		t.Error("updated.IsOn = false, want true")
	}
	if !updated.UpdatedAt.Equal(at) {
		t.Errorf("updated.UpdatedAt = %v, want %v", updated.UpdatedAt, at)
	}

	got, err := repo.GetByID(ctx, "fan-01")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	want := Status{"mode": "sleep", "speed": float64(3), "state": "on"}
	for k, v := range want {
		if got.Status[k] != v {
			t.Errorf("Status[%s] = %v, want %v", k, got.Status[k], v)
		}
		if updated.Status[k] != v {
			t.Errorf("returned Status[%s] = %v, want %v", k, updated.Status[k], v)
		}
	}
	if len(got.Status) != len(want) {
		t.Errorf("Status has %d keys, want %d", len(got.Status), len(want))
	}
}

func TestSQLiteRepository_ApplyTransition_NotFound(t *testing.T) {
	repo := setupTestRepo(t)

	_, _, err := repo.ApplyTransition(context.Background(), "missing", true, nil, testTime)
	if !errors.Is(err, ErrDeviceNotFound) {
		t.Errorf("ApplyTransition() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestSQLiteRepository_SetOnline(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	for _, id := range []string{"light-01", "light-02"} {
		if err := repo.Create(ctx, testDevice(id, id, TypeLight)); err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	if err := repo.SetOnline(ctx, []string{"light-01"}, true, testTime); err != nil {
		t.Fatalf("SetOnline() error = %v", err)
	}

	first, _ := repo.GetByID(ctx, "light-01")
	second, _ := repo.GetByID(ctx, "light-02")
	if !first.IsOnline {
		t.Error("light-01 should be online")
	}
	if second.IsOnline {
		t.Error("light-02 should still be offline")
	}

	if err := repo.SetOnline(ctx, nil, true, testTime); err != nil {
		t.Errorf("SetOnline(nil) error = %v", err)
	}
}
