package worker

import (
	"context"

	"idgateway/internal/metrics"
	"idgateway/internal/queuestore"
	"idgateway/internal/remoteapi"
	"idgateway/internal/shared/logger"
)

// finalize handles an item whose checks are all resolved (no to_check, no
// deferred), per spec.md §4.4's "Finalization" rules.
func (l *Loop) finalize(ctx context.Context, item *queuestore.QueueItem) {
	log := logger.WithComponent("worker")

	if item.AnyFailed() {
		if _, err := l.queue.Remove(item.AccountID); err != nil {
			log.Error().Err(err).Str("account_id", item.AccountID).Msg("failed to remove failed item at finalization")
		}
		metrics.ItemsFinalizedTotal.WithLabelValues("check_failed").Inc()
		return
	}

	outcome, err := l.downstream.Write(ctx, item.AccountID, item.Submitter)
	switch outcome {
	case remoteapi.WriteSuccess, remoteapi.WriteAlreadyExists:
		if _, rmErr := l.queue.Remove(item.AccountID); rmErr != nil {
			log.Error().Err(rmErr).Str("account_id", item.AccountID).Msg("failed to remove finalized item")
		}
		// A second, unconditional removal call mirrors the original
		// finalization path's redundant call after this branch (spec.md
		// §9's documented open question). Remove is idempotent, so this
		// is a harmless no-op.
		l.queue.Remove(item.AccountID)
		metrics.ItemsFinalizedTotal.WithLabelValues(string(outcome)).Inc()
	case remoteapi.WriteRetryable:
		log.Warn().Err(err).Str("account_id", item.AccountID).Msg("downstream write failed, retryable, leaving item queued")
	case remoteapi.WritePermanent:
		log.Error().Err(err).Str("account_id", item.AccountID).Msg("downstream write failed permanently, removing item")
		if _, rmErr := l.queue.Remove(item.AccountID); rmErr != nil {
			log.Error().Err(rmErr).Str("account_id", item.AccountID).Msg("failed to remove permanently-failed item")
		}
		metrics.ItemsFinalizedTotal.WithLabelValues("downstream_permanent_failure").Inc()
	}
}
