package usage

import (
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
)

func TestTariff_Bill(t *testing.T) {
	tariff := testTariff()

	tests := []struct {
		name        string
		typ         device.Type
		elapsed     time.Duration
		wantMinutes int
		wantKWh     float64
	}{
		{"fan 90 minutes", device.TypeFan, 90 * time.Minute, 90, 0.075},
		{"ac one hour", device.TypeAC, time.Hour, 60, 0.8},
		{"default rate", device.TypeSocket, 30 * time.Minute, 30, 0.005},
		{"truncates partial minute", device.TypeFan, 119 * time.Second, 1, 0.05 / 60},
		{"negative clamps to zero", device.TypeFan, -time.Minute, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tariff.Bill(tt.typ, tt.elapsed)
			if c.Minutes != tt.wantMinutes {
				t.Errorf("Minutes = %d, want %d", c.Minutes, tt.wantMinutes)
			}
			if !approx(c.EnergyKWh, tt.wantKWh) {
				t.Errorf("EnergyKWh = %v, want %v", c.EnergyKWh, tt.wantKWh)
			}
			if !approx(c.Cost, tt.wantKWh*3000) {
				t.Errorf("Cost = %v, want %v", c.Cost, tt.wantKWh*3000)
			}
		})
	}
}

func TestTariffFromConfig(t *testing.T) {
	tariff := TariffFromConfig(config.UsageConfig{
		PricePerKWh: 2500,
		PowerRates:  config.DefaultPowerRates(),
		DefaultRate: 0.02,
	})

	if tariff.RateFor(device.TypeDryer) != 0.1 {
		t.Errorf("RateFor(dryer) = %v, want 0.1", tariff.RateFor(device.TypeDryer))
	}
	if tariff.RateFor(device.TypeSensor) != 0.02 {
		t.Errorf("RateFor(sensor) = %v, want default 0.02", tariff.RateFor(device.TypeSensor))
	}
	if tariff.PricePerKWh != 2500 {
		t.Errorf("PricePerKWh = %v, want 2500", tariff.PricePerKWh)
	}
}
