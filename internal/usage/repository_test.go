package usage

import (
	"context"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/infrastructure/database/databasetest"
)

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db := databasetest.Open(t)
	databasetest.Exec(t, db, `INSERT INTO devices (id, name, type) VALUES
		('fan-01', 'Bedroom Fan', 'fan'), ('ac-01', 'Living AC', 'ac'), ('door-01', 'Gate', 'door')`)
	return NewSQLiteRepository(db.DB)
}

func flatBill(perHour float64) func(time.Duration) Charge {
	return func(d time.Duration) Charge {
		kwh := perHour * d.Hours()
		return Charge{EnergyKWh: kwh, Cost: kwh * 1000}
	}
}

func TestRepository_OpenCloseRoundTrip(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)

	opened, stale, err := repo.OpenSession(ctx, "fan-01", start, "2026-03-01")
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if len(stale) != 0 || !opened.IsOpen() {
		t.Fatalf("OpenSession() = %+v, stale %d", opened, len(stale))
	}

	closed, charge, err := repo.CloseSession(ctx, "fan-01", start.Add(90*time.Minute+40*time.Second), "2026-03-01", flatBill(0.05))
	if err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if closed.ID != opened.ID || closed.DurationMinutes != 90 || closed.CloseReason != CloseBilled {
		t.Errorf("closed = %+v", closed)
	}
	if charge.Minutes != 90 {
		t.Errorf("charge.Minutes = %d, want 90", charge.Minutes)
	}

	stats, err := repo.DailyStats(ctx, "fan-01", "2026-03-01", "2026-03-01")
	if err != nil {
		t.Fatalf("DailyStats() error = %v", err)
	}
	if len(stats) != 1 || stats[0].TurnOnCount != 1 || stats[0].TotalUsageMinutes != 90 {
		t.Errorf("stats = %+v", stats)
	}

	// Nothing open: close is a no-op.
	closed, charge, err = repo.CloseSession(ctx, "fan-01", start.Add(2*time.Hour), "2026-03-01", flatBill(0.05))
	if err != nil || closed != nil || charge != nil {
		t.Errorf("second CloseSession() = %v, %v, %v; want all nil", closed, charge, err)
	}
}

func TestRepository_OpenClosesAnomalies(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)

	first, _, err := repo.OpenSession(ctx, "fan-01", start, "2026-03-01")
	if err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	_, stale, err := repo.OpenSession(ctx, "fan-01", start.Add(30*time.Minute), "2026-03-01")
	if err != nil {
		t.Fatalf("second OpenSession() error = %v", err)
	}
	if len(stale) != 1 || stale[0].ID != first.ID || stale[0].CloseReason != CloseAnomaly {
		t.Fatalf("stale = %+v, want the first session closed as anomaly", stale)
	}

	open, err := repo.OpenSessions(ctx)
	if err != nil {
		t.Fatalf("OpenSessions() error = %v", err)
	}
	if len(open) != 1 || open[0].DeviceName != "Bedroom Fan" || open[0].DeviceType != "fan" {
		t.Errorf("open = %+v", open)
	}

	// The anomaly is never billed: only turn-ons are counted.
	stats, _ := repo.DailyStats(ctx, "fan-01", "2026-03-01", "2026-03-01")
	if len(stats) != 1 || stats[0].TurnOnCount != 2 || stats[0].TotalUsageMinutes != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestRepository_ZeroMinuteCloseLeavesStatistic(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC)

	if _, _, err := repo.OpenSession(ctx, "door-01", start, "2026-03-01"); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	_, charge, err := repo.CloseSession(ctx, "door-01", start.Add(59*time.Second), "2026-03-01", flatBill(0.005))
	if err != nil {
		t.Fatalf("CloseSession() error = %v", err)
	}
	if charge.Minutes != 0 {
		t.Errorf("charge.Minutes = %d, want 0", charge.Minutes)
	}
	stats, _ := repo.DailyStats(ctx, "door-01", "2026-03-01", "2026-03-01")
	if len(stats) != 1 || stats[0].TotalUsageMinutes != 0 || stats[0].Cost != 0 {
		t.Errorf("stats = %+v, want only the turn-on", stats)
	}
}

func TestRepository_Summary(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	sessions := []struct {
		device string
		date   string
		start  time.Time
		length time.Duration
		rate   float64
	}{
		{"fan-01", "2026-03-01", time.Date(2026, 3, 1, 1, 0, 0, 0, time.UTC), time.Hour, 0.05},
		{"fan-01", "2026-03-02", time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC), 2 * time.Hour, 0.05},
		{"ac-01", "2026-03-02", time.Date(2026, 3, 2, 3, 0, 0, 0, time.UTC), time.Hour, 0.8},
		{"ac-01", "2026-03-05", time.Date(2026, 3, 5, 3, 0, 0, 0, time.UTC), time.Hour, 0.8},
	}
	for _, s := range sessions {
		if _, _, err := repo.OpenSession(ctx, s.device, s.start, s.date); err != nil {
			t.Fatalf("OpenSession(%s) error = %v", s.device, err)
		}
		if _, _, err := repo.CloseSession(ctx, s.device, s.start.Add(s.length), s.date, flatBill(s.rate)); err != nil {
			t.Fatalf("CloseSession(%s) error = %v", s.device, err)
		}
	}

	summary, err := repo.Summary(ctx, "2026-03-01", "2026-03-02")
	if err != nil {
		t.Fatalf("Summary() error = %v", err)
	}
	if len(summary) != 2 {
		t.Fatalf("Summary() returned %d devices, want 2", len(summary))
	}
	// Ordered by cost, highest first.
	if summary[0].DeviceID != "ac-01" || summary[0].TotalUsageMinutes != 60 {
		t.Errorf("summary[0] = %+v, want ac-01 with 60 minutes", summary[0])
	}
	if summary[1].DeviceID != "fan-01" || summary[1].TotalUsageMinutes != 180 || summary[1].TurnOnCount != 2 {
		t.Errorf("summary[1] = %+v, want fan-01 with 180 minutes over 2 turn-ons", summary[1])
	}

	empty, err := repo.Summary(ctx, "2026-04-01", "2026-04-30")
	if err != nil || len(empty) != 0 {
		t.Errorf("Summary(april) = %v, %v; want empty", empty, err)
	}
}

func TestRepository_CloseStale(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 3, 12, 0, 0, 0, time.UTC)

	if _, _, err := repo.OpenSession(ctx, "fan-01", now.Add(-30*time.Hour), "2026-03-02"); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}
	if _, _, err := repo.OpenSession(ctx, "ac-01", now.Add(-2*time.Hour), "2026-03-03"); err != nil {
		t.Fatalf("OpenSession() error = %v", err)
	}

	n, err := repo.CloseStale(ctx, now.Add(-24*time.Hour), now)
	if err != nil {
		t.Fatalf("CloseStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("CloseStale() = %d, want 1", n)
	}

	open, _ := repo.OpenSessions(ctx)
	if len(open) != 1 || open[0].DeviceID != "ac-01" {
		t.Errorf("open after cleanup = %+v, want only ac-01", open)
	}
	stats, _ := repo.DailyStats(ctx, "fan-01", "2026-03-02", "2026-03-03")
	if len(stats) != 1 || stats[0].TotalUsageMinutes != 0 {
		t.Errorf("fan stats = %+v, want the stale session unbilled", stats)
	}
}
