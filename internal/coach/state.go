package coach

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/moodcoach/internal/domain"
	"github.com/ashureev/moodcoach/internal/metrics"
	"github.com/ashureev/moodcoach/internal/store"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// userState is everything the engine keeps in memory for one user. It is only
// read or written while the user's lock from userLocks is held.
type userState struct {
	moods         []domain.MoodEntry
	memory        *Memory
	interventions []domain.InterventionRecord
}

// userLocks hands out one mutex per user. Entries are reference counted and
// dropped when the last holder releases, so the table only holds users with
// requests in flight and never loses a lock that is still held.
type userLocks struct {
	mu    sync.Mutex
	locks map[string]*userLock
}

type userLock struct {
	mu   sync.Mutex
	refs int
}

// lock blocks until userID's lock is held and returns its release func.
func (l *userLocks) lock(userID string) func() {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[string]*userLock)
	}
	ul, ok := l.locks[userID]
	if !ok {
		ul = &userLock{}
		l.locks[userID] = ul
	}
	ul.refs++
	l.mu.Unlock()

	ul.mu.Lock()
	return func() {
		ul.mu.Unlock()
		l.mu.Lock()
		ul.refs--
		if ul.refs == 0 {
			delete(l.locks, userID)
		}
		l.mu.Unlock()
	}
}

// held reports how many users have a lock entry.
func (l *userLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// stateCache maps user IDs to their state. Entries are created on first use by
// loading from the repository and evicted by LRU size or idle TTL. Eviction
// never races a pipeline: state is looked up and loaded only under the user's
// lock, so a reload always sees what the previous holder persisted.
type stateCache struct {
	repo         store.Repository
	lru          *expirable.LRU[string, *userState]
	locks        userLocks
	resident     atomic.Int64
	historyLimit int
	metrics      *metrics.Metrics
}

func newStateCache(repo store.Repository, size int, ttl time.Duration, historyLimit int, m *metrics.Metrics) *stateCache {
	c := &stateCache{
		repo:         repo,
		historyLimit: historyLimit,
		metrics:      m,
	}
	// Runs under the LRU's own lock, so it must not call back into c.lru.
	c.lru = expirable.NewLRU[string, *userState](size, func(userID string, _ *userState) {
		c.metrics.SetCachedUsers(int(c.resident.Add(-1)))
		slog.Debug("Evicted user state", "user_id", userID)
	}, ttl)
	return c
}

// acquire locks userID and returns its state, loading it on a miss. The
// caller must call release when done with the state.
func (c *stateCache) acquire(ctx context.Context, userID string) (st *userState, release func(), err error) {
	release = c.locks.lock(userID)

	if st, ok := c.lru.Get(userID); ok {
		return st, release, nil
	}

	st, err = c.load(ctx, userID)
	if err != nil {
		release()
		return nil, nil, err
	}
	// An expired entry can linger until the reaper runs and Add would update
	// it in place without the eviction callback, so drop it first.
	c.lru.Remove(userID)
	c.lru.Add(userID, st)
	c.metrics.SetCachedUsers(int(c.resident.Add(1)))
	return st, release, nil
}

func (c *stateCache) load(ctx context.Context, userID string) (*userState, error) {
	moods, err := c.repo.ListMoodEntries(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load mood entries: %w", err)
	}
	turns, err := c.repo.ListRecentTurns(ctx, userID, c.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("load conversation: %w", err)
	}
	records, err := c.repo.ListInterventionRecords(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load intervention records: %w", err)
	}

	mem := NewMemory(c.historyLimit)
	mem.Append(turns...)

	slog.Debug("Loaded user state",
		"user_id", userID,
		"mood_entries", len(moods),
		"turns", len(turns),
		"interventions", len(records),
	)
	return &userState{
		moods:         moods,
		memory:        mem,
		interventions: records,
	}, nil
}

// len reports the number of resident states.
func (c *stateCache) len() int {
	return c.lru.Len()
}
