package queuestore

import "time"

// retryBackoffs is the fixed 500/1000/1500 ms schedule from spec.md §4.1,
// capped at 2000 ms (the cap never actually binds at this length, but is
// kept explicit since the spec calls it out as a property of the policy).
var retryBackoffs = []time.Duration{
	500 * time.Millisecond,
	1000 * time.Millisecond,
	1500 * time.Millisecond,
}

const maxBackoff = 2000 * time.Millisecond

// withRetry runs fn up to len(retryBackoffs)+1 times, sleeping the
// configured backoff between attempts. It returns the last error if every
// attempt fails.
func withRetry(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if attempt >= len(retryBackoffs) {
			return err
		}
		backoff := retryBackoffs[attempt]
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
		time.Sleep(backoff)
	}
}
