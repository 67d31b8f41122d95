package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"idgateway/internal/metrics"
	"idgateway/internal/pool"
	"idgateway/internal/queuestore"
	"idgateway/internal/remoteapi"
	"idgateway/internal/shared/logger"
	"idgateway/internal/validate"
)

const (
	idleDelay  = 350 * time.Millisecond
	emptyDelay = 5000 * time.Millisecond
)

// checkFunc is the signature shared by all seven validation checks.
type checkFunc func(context.Context, string) validate.Outcome

// Loop is the single-worker scheduling loop of spec.md §4.4. It is the
// sole mutator of check statuses after enqueue.
type Loop struct {
	queue      *queuestore.Store
	pool       *pool.Pool
	validator  *validate.Client
	downstream *remoteapi.DownstreamClient

	running atomic.Bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	cronJob *cron.Cron
}

func New(queue *queuestore.Store, p *pool.Pool, validator *validate.Client, downstream *remoteapi.DownstreamClient) *Loop {
	return &Loop{
		queue:      queue,
		pool:       p,
		validator:  validator,
		downstream: downstream,
	}
}

// Start resets every deferred check in the queue back to to_check (the
// queue file is the only record of deferral; there is no separate in-memory
// deferred set), then launches the tick goroutine and the periodic sweeps.
func (l *Loop) Start(ctx context.Context) {
	if err := l.queue.ResetDeferredToToCheck(); err != nil {
		logger.WithComponent("worker").Warn().Err(err).Msg("failed to reset deferred checks at startup")
	}

	l.stopCh = make(chan struct{})
	l.startSweeps(ctx)

	l.wg.Add(1)
	go l.run(ctx)
}

// Stop signals the tick goroutine and sweeps to stop re-arming, then waits
// for the in-flight pass (if any) to finish. Cancellation is soft, per
// spec.md §5: the active check completes; only re-arming stops.
func (l *Loop) Stop() {
	if l.stopCh != nil {
		close(l.stopCh)
	}
	if l.cronJob != nil {
		l.cronJob.Stop()
	}
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	delay := time.Duration(0)
	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-time.After(delay):
		}

		if l.tick(ctx) {
			delay = idleDelay
		} else {
			delay = emptyDelay
		}
	}
}

// tick runs one processQueue pass, per spec.md §4.4. It reports whether it
// found and acted on an item, which the caller uses to pick the next
// re-arm delay.
func (l *Loop) tick(ctx context.Context) bool {
	if !l.running.CompareAndSwap(false, true) {
		return false
	}
	defer l.running.Store(false)

	allCooled := l.pool.AllInCooldown()
	if !allCooled {
		if err := l.queue.ResetDeferredToToCheck(); err != nil {
			logger.WithComponent("worker").Warn().Err(err).Msg("failed to reset deferred checks")
		}
	}

	item := l.queue.GetNextProcessable(allCooled)
	metrics.QueueDepth.Set(float64(l.queue.Stats().TotalItems))
	if item == nil {
		return false
	}

	toRun := item.ToRun()
	if len(toRun) == 0 {
		l.finalize(ctx, item)
		return true
	}

	private := false
	log := logger.WithComponent("worker")

	for _, check := range toRun {
		if private && queuestore.RateLimitedChecks[check] {
			if err := l.queue.UpdateCheck(item.AccountID, check, queuestore.StatusPassed); err != nil {
				log.Warn().Err(err).Str("account_id", item.AccountID).Str("check", string(check)).Msg("failed to persist private short-circuit pass")
			}
			continue
		}

		if queuestore.RateLimitedChecks[check] && allCooled {
			if err := l.queue.UpdateCheck(item.AccountID, check, queuestore.StatusDeferred); err != nil {
				log.Warn().Err(err).Str("account_id", item.AccountID).Str("check", string(check)).Msg("failed to persist deferred check")
			}
			continue
		}

		fn := l.checkFunc(check)
		outcome := fn(ctx, item.AccountID)
		metrics.ChecksTotal.WithLabelValues(string(check), string(outcome.Kind)).Inc()

		switch outcome.Kind {
		case validate.KindPassed:
			if err := l.queue.UpdateCheck(item.AccountID, check, queuestore.StatusPassed); err != nil {
				log.Warn().Err(err).Str("account_id", item.AccountID).Str("check", string(check)).Msg("failed to persist passed check")
			}
			if check == queuestore.CheckSteamLevel && outcome.Private {
				private = true
			}
		case validate.KindFailed:
			if _, err := l.queue.Remove(item.AccountID); err != nil {
				log.Error().Err(err).Str("account_id", item.AccountID).Msg("failed to remove failed item")
			}
			metrics.ItemsFinalizedTotal.WithLabelValues("check_failed").Inc()
			return true
		case validate.KindDeferred:
			if err := l.queue.UpdateCheck(item.AccountID, check, queuestore.StatusDeferred); err != nil {
				log.Warn().Err(err).Str("account_id", item.AccountID).Str("check", string(check)).Msg("failed to persist deferred check")
			}
		case validate.KindError:
			log.Warn().Err(outcome.Err).Str("account_id", item.AccountID).Str("check", string(check)).Msg("transient check error, retrying next pass")
			return true
		}
	}

	return true
}

func (l *Loop) checkFunc(name queuestore.CheckName) checkFunc {
	switch name {
	case queuestore.CheckAnimatedAvatar:
		return l.validator.AnimatedAvatar
	case queuestore.CheckAvatarFrame:
		return l.validator.AvatarFrame
	case queuestore.CheckMiniProfileBackground:
		return l.validator.MiniProfileBackground
	case queuestore.CheckProfileBackground:
		return l.validator.ProfileBackground
	case queuestore.CheckSteamLevel:
		return l.validator.SteamLevel
	case queuestore.CheckFriends:
		return l.validator.Friends
	case queuestore.CheckCSGOInventory:
		return l.validator.CSGOInventory
	default:
		return nil
	}
}
