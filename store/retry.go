package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/runforge/runforge/metrics"
)

// IsBusy reports whether err is transient single-writer contention.
func IsBusy(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked
	}
	return false
}

// withBusyRetry runs fn, waiting out transient contention on the backoff
// schedule. Non-busy errors return immediately; once the schedule is
// exhausted the last busy error surfaces to the caller.
func withBusyRetry(op string, backoff []time.Duration, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || !IsBusy(err) {
			return err
		}
		if attempt >= len(backoff) {
			return fmt.Errorf("%s: retries exhausted: %w", op, err)
		}
		metrics.BusyRetries.Inc()
		time.Sleep(backoff[attempt])
	}
}
