// Package scheduler wraps robfig/cron with named, replaceable repeating
// triggers and a bounded worker pool.
//
// Keys are upserted: scheduling a key that already exists tears down the
// previous cron entry before the new one is registered, so there is never
// more than one live trigger per key. Cancel is idempotent.
//
// Firings are enqueued, not run inline on the cron goroutine; workers apply
// a per-firing timeout and record a bounded history ring.
package scheduler
