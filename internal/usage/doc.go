// Package usage tracks how long devices are on and what that costs.
//
// The Accumulator is driven by device transitions. Turning a device on
// opens a usage session and counts a turn-on for the day; turning it off
// closes the session, truncates its length to whole minutes and adds
// minutes, kWh and cost to the device's statistic for the site-local day.
//
//	energy (kWh) = rate(type) × minutes / 60
//	cost         = energy × price_per_kwh
//
// Each open or close, together with its statistic update, commits in one
// transaction. A device never has more than one open session: a leftover
// session found when the device turns on again is closed without billing.
package usage
