// Package scheduler runs named cron schedules in a configurable timezone.
//
// Schedules are upserted by name, survive Start/Stop and timezone changes,
// and never overlap with themselves: a trigger that fires while the previous
// run is still in flight is skipped.
package scheduler
