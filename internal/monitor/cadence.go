package monitor

import "time"

// Polling cadence tiers. The loop polls fast right after activity and
// relaxes toward the configured base interval as the mailbox stays quiet.
const (
	burstInterval   = 500 * time.Millisecond
	activeInterval  = 1 * time.Second
	recentInterval  = 2 * time.Second
	relaxedInterval = 5 * time.Second

	activeWindow = 30 * time.Second
	recentWindow = 120 * time.Second
)

// Error backoff. Consecutive failed ticks push the next poll out
// exponentially, capped at backoffCeiling.
const (
	backoffBase    = 10 * time.Second
	backoffCeiling = 60 * time.Second
	backoffMaxExp  = 3
)

// nextInterval picks the delay before the next tick. A tick that found mail
// polls again almost immediately; otherwise the delay grows with the time
// since the last activity, never exceeding the smaller of the relaxed tier
// and the configured base interval.
func nextInterval(base time.Duration, sinceActivity time.Duration, activeNow bool) time.Duration {
	if activeNow {
		return burstInterval
	}
	if sinceActivity < activeWindow {
		return activeInterval
	}
	if sinceActivity < recentWindow {
		return recentInterval
	}
	if base < relaxedInterval {
		return base
	}
	return relaxedInterval
}

// backoffDelay returns the delay after the n-th consecutive failed tick
// (n >= 1): 10s, 20s, 40s, then 60s for every failure after that.
func backoffDelay(consecutiveFailures int) time.Duration {
	if consecutiveFailures < 1 {
		return 0
	}
	exp := consecutiveFailures - 1
	if exp > backoffMaxExp {
		exp = backoffMaxExp
	}
	d := backoffBase << uint(exp)
	if d > backoffCeiling {
		d = backoffCeiling
	}
	return d
}
