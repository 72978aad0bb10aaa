// Package schedule stores time-based on/off rules and fires them.
//
// Times of day and dates are civil values; DueInstant combines them with
// the site location into an absolute instant before any comparison with
// the clock. The Evaluator runs on a ticker, executes occurrences that
// are due within the grace window through the control service, and skips
// the ones that are later than that.
//
// Recurring schedules (daily, weekly) re-arm: once an occurrence has been
// resolved, last_due_at remembers it, and the flag is cleared again when a
// later occurrence comes due.
package schedule
