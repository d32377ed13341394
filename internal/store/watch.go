package store

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sendmessage/internal/metrics"
)

const (
	minWatchBackoff = 500 * time.Millisecond
	maxWatchBackoff = 30 * time.Second
)

// Supervise runs w.Watch until ctx is cancelled, restarting it with
// exponential backoff whenever the feed fails. subscribed runs after every
// successful subscription, including the first; use it to re-read state that
// may have changed while no subscription was active.
func Supervise(ctx context.Context, w Watcher, logger zerolog.Logger, subscribed func()) {
	supervise(ctx, w, logger, subscribed, minWatchBackoff, maxWatchBackoff)
}

func supervise(ctx context.Context, w Watcher, logger zerolog.Logger, subscribed func(), minBackoff, maxBackoff time.Duration) {
	backoff := minBackoff
	for {
		connected := false
		err := w.Watch(ctx, func() {
			connected = true
			subscribed()
		})
		if ctx.Err() != nil {
			return
		}
		if connected {
			backoff = minBackoff
		}

		metrics.PropertyFeedRestarts.Inc()
		logger.Warn().
			Err(err).
			Dur("retry_in", backoff).
			Msg("property change feed lost, resubscribing")

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}
