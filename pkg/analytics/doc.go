// Package analytics turns a user's usage log into weekly and monthly
// statistics, a 0-100 risk score and a short list of recommendations.
//
// # Computation
//
// The computation is pure: Aggregate buckets entries by day offset from an
// explicit reference time, and ScoreAndRecommend scores the weekly window and
// runs a fixed, ordered rule table. Neither reads the clock or shares state.
//
//	stats, err := analytics.Aggregate(entries, time.Now().In(loc))
//	if err != nil {
//		// errors.Is(err, usage.ErrInvalidInput)
//	}
//	a := analytics.ScoreAndRecommend(stats.Weekly, stats.Monthly, stats.Weekly.PeakMinutes)
//
// Windows are 7 and 30 days ending on the reference date. Each window's trend
// compares its total with the preceding window of equal length.
//
// # Policy
//
// Weights, thresholds and rule limits live in Policy. An Engine binds one
// policy; the package-level functions use DefaultPolicy. PolicyWatcher reloads
// a YAML policy file when it changes.
//
// # Service
//
// Service serves dashboards for stored usage. It reads each user's last 60
// days in one query, caches the result per user and calendar day, and
// collapses concurrent computations for the same key. Usage writes must call
// Invalidate.
//
// SnapshotJob persists a daily risk snapshot per active user for the history
// endpoint.
package analytics
