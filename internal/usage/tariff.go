package usage

import (
	"time"

	"github.com/nerrad567/gray-logic-home/internal/device"
	"github.com/nerrad567/gray-logic-home/internal/infrastructure/config"
)

// Tariff converts usage time into energy and cost.
type Tariff struct {
	// PricePerKWh is the currency cost of one kWh.
	PricePerKWh float64

	// Rates is kWh consumed per hour of use, by device type.
	Rates map[device.Type]float64

	// DefaultRate applies to types missing from Rates.
	DefaultRate float64
}

// TariffFromConfig builds a Tariff from the usage config section.
func TariffFromConfig(cfg config.UsageConfig) Tariff {
	rates := make(map[device.Type]float64, len(cfg.PowerRates))
	for t, r := range cfg.PowerRates {
		rates[device.Type(t)] = r
	}
	return Tariff{PricePerKWh: cfg.PricePerKWh, Rates: rates, DefaultRate: cfg.DefaultRate}
}

// RateFor returns the hourly consumption for a device type.
func (t Tariff) RateFor(typ device.Type) float64 {
	if r, ok := t.Rates[typ]; ok {
		return r
	}
	return t.DefaultRate
}

// Bill charges whole minutes of use. Partial minutes are truncated.
func (t Tariff) Bill(typ device.Type, d time.Duration) Charge {
	minutes := WholeMinutes(d)
	energy := t.RateFor(typ) * float64(minutes) / 60
	return Charge{
		Minutes:   minutes,
		EnergyKWh: energy,
		Cost:      energy * t.PricePerKWh,
	}
}

// WholeMinutes truncates a duration to whole minutes, clamping negatives
// to zero.
func WholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
