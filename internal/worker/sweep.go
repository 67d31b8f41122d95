package worker

import (
	"context"
	"net/http"
	"time"

	"github.com/robfig/cron/v3"

	"idgateway/internal/pool"
	"idgateway/internal/shared/logger"
	"idgateway/internal/validate"
)

// smokeTestURL is a known-public endpoint used only to confirm the current
// connection can still reach the outside world.
const smokeTestURL = "https://steamcommunity.com/"

// startSweeps schedules the two periodic jobs from spec.md §4.4: a 60 s
// pool/deferred-reclaim sweep and a 15 min proxy smoke test. Using
// robfig/cron in place of a raw time.Ticker per job lets both schedules
// share one scheduler goroutine.
func (l *Loop) startSweeps(ctx context.Context) {
	l.cronJob = cron.New()
	if _, err := l.cronJob.AddFunc("@every 60s", l.poolSweep); err != nil {
		logger.WithComponent("worker").Error().Err(err).Msg("failed to schedule pool sweep")
	}
	if _, err := l.cronJob.AddFunc("@every 15m", func() { l.smokeTest(ctx) }); err != nil {
		logger.WithComponent("worker").Error().Err(err).Msg("failed to schedule proxy smoke test")
	}
	l.cronJob.Start()
}

// poolSweep resets deferred checks back to to_check whenever the pool has
// at least one available connection, so items blocked on cooldown are
// retried promptly rather than waiting for the next natural tick.
func (l *Loop) poolSweep() {
	if l.pool.AllInCooldown() {
		return
	}
	if err := l.queue.ResetDeferredToToCheck(); err != nil {
		logger.WithComponent("worker").Warn().Err(err).Msg("pool sweep: failed to reset deferred checks")
	}
}

// smokeTest issues a known-public request through the current connection.
// A 401 counts as success (the endpoint is reachable, just gated). Any
// classified transport error marks the connection cooled, same as a real
// check failure would.
func (l *Loop) smokeTest(ctx context.Context) {
	log := logger.WithComponent("worker")
	conn := l.pool.Current()

	client, err := pool.NewClient(conn, 10*time.Second)
	if err != nil {
		log.Warn().Err(err).Msg("smoke test: failed to build client")
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, smokeTestURL, nil)
	if err != nil {
		log.Warn().Err(err).Msg("smoke test: failed to build request")
		return
	}
	req.Header.Set("User-Agent", pool.UserAgent)

	resp, err := client.Do(req)
	if err != nil {
		l.smokeTestFailure(nil, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || (resp.StatusCode >= 200 && resp.StatusCode < 400) {
		return
	}
	l.smokeTestFailure(resp, nil)
}

func (l *Loop) smokeTestFailure(resp *http.Response, err error) {
	class, categorized := validate.ClassifyTransportError(resp, err)
	if !categorized {
		logger.WithComponent("worker").Warn().Err(err).Msg("smoke test failed with an uncategorized error, leaving connection as-is")
		return
	}
	msg := "smoke test failed"
	if err != nil {
		msg = err.Error()
	} else if resp != nil {
		msg = http.StatusText(resp.StatusCode)
	}
	l.pool.MarkCurrentCooldown(class, pool.EndpointOther, msg)
}
