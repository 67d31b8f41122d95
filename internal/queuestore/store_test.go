package queuestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	exists  bool
	err     error
	calls   int
}

func (f *fakeChecker) Exists(ctx context.Context, accountID string) (bool, error) {
	f.calls++
	return f.exists, f.err
}

func newTestStore(t *testing.T, checker ExistenceChecker) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles_queue.json")
	return New(path, checker)
}

func TestEnqueueAddsNewItem(t *testing.T) {
	checker := &fakeChecker{exists: false}
	s := newTestStore(t, checker)
	require.NoError(t, s.Load())

	outcome, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	assert.Equal(t, Added, outcome)
	assert.Equal(t, 1, checker.calls)

	idx, item := s.find("76561197960434622")
	require.GreaterOrEqual(t, idx, 0)
	for _, c := range CanonicalOrder {
		assert.Equal(t, StatusToCheck, item.Checks[c])
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())

	_, err := s.Enqueue(context.Background(), "not-17-digits", "alice")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Enqueue(context.Background(), "76561197960434622", "")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestEnqueueDuplicateInRemote(t *testing.T) {
	s := newTestStore(t, &fakeChecker{exists: true})
	require.NoError(t, s.Load())

	outcome, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	assert.Equal(t, DuplicateInRemote, outcome)

	_, item := s.find("76561197960434622")
	assert.Nil(t, item)
}

func TestEnqueueAlreadyQueued(t *testing.T) {
	s := newTestStore(t, &fakeChecker{exists: false})
	require.NoError(t, s.Load())

	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)

	outcome, err := s.Enqueue(context.Background(), "76561197960434622", "bob")
	require.NoError(t, err)
	assert.Equal(t, AlreadyQueued, outcome)
}

func TestEnqueueBestEffortOnCheckerError(t *testing.T) {
	s := newTestStore(t, &fakeChecker{err: assertError{}})
	require.NoError(t, s.Load())

	outcome, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	assert.Equal(t, Added, outcome)
}

type assertError struct{}

func (assertError) Error() string { return "network error" }

func TestUpdateCheckAndPersistence(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)

	require.NoError(t, s.UpdateCheck("76561197960434622", CheckAnimatedAvatar, StatusPassed))

	reloaded := New(s.path, &fakeChecker{})
	require.NoError(t, reloaded.Load())
	_, item := reloaded.find("76561197960434622")
	require.NotNil(t, item)
	assert.Equal(t, StatusPassed, item.Checks[CheckAnimatedAvatar])
}

func TestUpdateCheckErrors(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)

	err = s.UpdateCheck("does-not-exist", CheckAnimatedAvatar, StatusPassed)
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.UpdateCheck("76561197960434622", CheckAnimatedAvatar, "bogus")
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)

	removed, err := s.Remove("76561197960434622")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Remove("76561197960434622")
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestGetNextProcessableHeadComplete(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	for _, c := range CanonicalOrder {
		require.NoError(t, s.UpdateCheck("76561197960434622", c, StatusPassed))
	}

	item := s.GetNextProcessable(false)
	require.NotNil(t, item)
	assert.Equal(t, "76561197960434622", item.AccountID)
}

func TestGetNextProcessableDeferredBlockedByCooldown(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	for _, c := range CanonicalOrder {
		if c == CheckFriends || c == CheckCSGOInventory {
			require.NoError(t, s.UpdateCheck("76561197960434622", c, StatusDeferred))
		} else {
			require.NoError(t, s.UpdateCheck("76561197960434622", c, StatusPassed))
		}
	}

	// All pool cooled: head has only deferred checks outstanding, so it is
	// not returned, and no non-rate-limited to_check check exists either.
	assert.Nil(t, s.GetNextProcessable(true))

	// Pool healthy: head is returned since it has a deferred check.
	item := s.GetNextProcessable(false)
	require.NotNil(t, item)
	assert.Equal(t, "76561197960434622", item.AccountID)
}

func TestGetNextProcessableFallbackScansForNonRateLimited(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	_, err = s.Enqueue(context.Background(), "11111111111111111", "bob")
	require.NoError(t, err)

	// Head item only has rate-limited checks outstanding.
	for _, c := range CanonicalOrder {
		if c == CheckFriends || c == CheckCSGOInventory {
			continue
		}
		require.NoError(t, s.UpdateCheck("76561197960434622", c, StatusPassed))
	}

	item := s.GetNextProcessable(true)
	require.NotNil(t, item)
	assert.Equal(t, "11111111111111111", item.AccountID)
}

func TestResetDeferredToToCheck(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	require.NoError(t, s.UpdateCheck("76561197960434622", CheckFriends, StatusDeferred))

	require.NoError(t, s.ResetDeferredToToCheck())

	_, item := s.find("76561197960434622")
	assert.Equal(t, StatusToCheck, item.Checks[CheckFriends])
}

func TestStats(t *testing.T) {
	s := newTestStore(t, &fakeChecker{})
	require.NoError(t, s.Load())
	_, err := s.Enqueue(context.Background(), "76561197960434622", "alice")
	require.NoError(t, err)
	_, err = s.Enqueue(context.Background(), "11111111111111111", "alice")
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 2, stats.BySubmitter["alice"])
	assert.Equal(t, 2, stats.ByCheckStatus[CheckAnimatedAvatar][StatusToCheck])
}
