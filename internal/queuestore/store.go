package queuestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"idgateway/internal/shared/logger"
)

var (
	// ErrNotFound is returned by UpdateCheck when the account_id is absent.
	ErrNotFound = errors.New("queuestore: item not found")
	// ErrInvalidStatus is returned by UpdateCheck for an unrecognized status.
	ErrInvalidStatus = errors.New("queuestore: invalid check status")
	// ErrInvalidInput is returned by Enqueue for a malformed account_id or
	// empty submitter.
	ErrInvalidInput = errors.New("queuestore: invalid account_id or submitter")
)

// EnqueueOutcome reports what Enqueue did.
type EnqueueOutcome string

const (
	Added              EnqueueOutcome = "added"
	AlreadyQueued      EnqueueOutcome = "already_queued"
	DuplicateInRemote  EnqueueOutcome = "duplicate_in_remote"
)

// ExistenceChecker consults the remote account service's existence
// endpoint. It is the queue store's only outbound dependency, injected so
// the store itself never speaks HTTP.
type ExistenceChecker interface {
	Exists(ctx context.Context, accountID string) (bool, error)
}

// Stats aggregates queue counts by check status and by submitter.
type Stats struct {
	TotalItems      int                        `json:"total_items"`
	ByCheckStatus   map[CheckName]map[CheckStatus]int `json:"by_check_status"`
	BySubmitter     map[string]int             `json:"by_submitter"`
}

// Store is the persistent, ordered work queue. All mutations take the same
// mutex and are followed by a whole-file rewrite of the backing JSON file.
type Store struct {
	mu       sync.Mutex
	path     string
	items    []*QueueItem
	checker  ExistenceChecker
	log      interface {
		Warn() *logger.Event
		Error() *logger.Event
	}
}

type logAdapter struct{}

func (logAdapter) Warn() *logger.Event {
	l := logger.WithComponent("queuestore")
	return &logger.Event{Event: l.Warn()}
}
func (logAdapter) Error() *logger.Event {
	l := logger.WithComponent("queuestore")
	return &logger.Event{Event: l.Error()}
}

// New creates a Store backed by the JSON file at path. It does not load
// existing state — call Load for that.
func New(path string, checker ExistenceChecker) *Store {
	return &Store{
		path:    path,
		checker: checker,
		log:     logAdapter{},
	}
}

// Load reads the backing file into memory. A missing file starts the queue
// empty, matching the teacher's storage.Load "not found is not an error"
// convention.
func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.items = nil
			return nil
		}
		return fmt.Errorf("queuestore: read %s: %w", s.path, err)
	}
	if len(data) == 0 {
		s.items = nil
		return nil
	}
	var items []*QueueItem
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("queuestore: parse %s: %w", s.path, err)
	}
	s.items = items
	return nil
}

// persist rewrites the whole file, with the three-attempt capped-backoff
// retry policy. Must be called with s.mu held.
func (s *Store) persist() error {
	data, err := json.MarshalIndent(s.items, "", "  ")
	if err != nil {
		return fmt.Errorf("queuestore: marshal: %w", err)
	}
	return withRetry(func() error {
		return atomicWrite(s.path, data)
	})
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".queuestore-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (s *Store) find(accountID string) (int, *QueueItem) {
	for i, it := range s.items {
		if it.AccountID == accountID {
			return i, it
		}
	}
	return -1, nil
}

// Enqueue validates input, consults the remote existence check, and
// appends a new item. A network error on the existence check is treated as
// best-effort: the item is appended anyway.
func (s *Store) Enqueue(ctx context.Context, accountID, submitter string) (EnqueueOutcome, error) {
	if submitter == "" || !ValidAccountID(accountID) {
		return "", ErrInvalidInput
	}

	s.mu.Lock()
	if _, existing := s.find(accountID); existing != nil {
		s.mu.Unlock()
		return AlreadyQueued, nil
	}
	s.mu.Unlock()

	if s.checker != nil {
		exists, err := s.checker.Exists(ctx, accountID)
		if err == nil && exists {
			return DuplicateInRemote, nil
		}
		if err != nil {
			s.log.Warn().Err(err).Str("account_id", accountID).Msg("existence check failed, enqueueing best-effort")
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// Re-check under lock in case of a concurrent enqueue for the same id
	// while the existence check was in flight.
	if _, existing := s.find(accountID); existing != nil {
		return AlreadyQueued, nil
	}
	item := NewQueueItem(accountID, submitter, time.Now())
	s.items = append(s.items, item)
	if err := s.persist(); err != nil {
		s.log.Error().Err(err).Str("account_id", accountID).Msg("failed to persist queue after enqueue")
	}
	return Added, nil
}

// UpdateCheck sets a single check's status on an item and persists.
func (s *Store) UpdateCheck(accountID string, check CheckName, status CheckStatus) error {
	if !IsValidStatus(status) {
		return ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	_, item := s.find(accountID)
	if item == nil {
		return ErrNotFound
	}
	item.Checks[check] = status
	return s.persist()
}

// Remove deletes an item by account_id. It is idempotent: removing an
// absent item is not an error and simply reports false.
func (s *Store) Remove(accountID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx, item := s.find(accountID)
	if item == nil {
		return false, nil
	}
	s.items = append(s.items[:idx], s.items[idx+1:]...)
	if err := s.persist(); err != nil {
		return true, err
	}
	return true, nil
}

// GetNextProcessable implements the selection algorithm from spec.md §4.1.
// It returns a deep copy so callers can inspect it without holding the
// store's lock across their own outbound calls.
func (s *Store) GetNextProcessable(allPoolInCooldown bool) *QueueItem {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return nil
	}

	head := s.items[0]
	hasToCheck := head.HasStatus(StatusToCheck)
	hasDeferred := head.HasStatus(StatusDeferred)

	switch {
	case !hasToCheck && !hasDeferred:
		return copyItem(head)
	case !hasToCheck && hasDeferred:
		if !allPoolInCooldown {
			return copyItem(head)
		}
	case hasToCheck:
		if !allPoolInCooldown {
			return copyItem(head)
		}
	}

	// Fallback: pool fully cooled. Scan from head for an item with any
	// non-rate-limited check still at to_check.
	for _, it := range s.items {
		for _, c := range CanonicalOrder {
			if RateLimitedChecks[c] {
				continue
			}
			if it.Checks[c] == StatusToCheck {
				return copyItem(it)
			}
		}
	}
	return nil
}

func copyItem(it *QueueItem) *QueueItem {
	checks := make(map[CheckName]CheckStatus, len(it.Checks))
	for k, v := range it.Checks {
		checks[k] = v
	}
	cp := *it
	cp.Checks = checks
	return &cp
}

// ResetDeferredToToCheck replaces every deferred check with to_check, used
// at process start and whenever the pool becomes healthy again.
func (s *Store) ResetDeferredToToCheck() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, it := range s.items {
		for c, st := range it.Checks {
			if st == StatusDeferred {
				it.Checks[c] = StatusToCheck
				changed = true
			}
		}
	}
	if !changed {
		return nil
	}
	return s.persist()
}

// Stats returns aggregate counts by per-check status and by submitter.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		TotalItems:    len(s.items),
		ByCheckStatus: make(map[CheckName]map[CheckStatus]int),
		BySubmitter:   make(map[string]int),
	}
	for _, c := range CanonicalOrder {
		stats.ByCheckStatus[c] = map[CheckStatus]int{}
	}
	for _, it := range s.items {
		stats.BySubmitter[it.Submitter]++
		for c, st := range it.Checks {
			if stats.ByCheckStatus[c] == nil {
				stats.ByCheckStatus[c] = map[CheckStatus]int{}
			}
			stats.ByCheckStatus[c][st]++
		}
	}
	return stats
}
