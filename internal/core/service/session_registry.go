package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/rl1809/cart-checkout/internal/core/domain"
	"github.com/rl1809/cart-checkout/internal/metrics"
	"github.com/rl1809/cart-checkout/internal/port"
)

var ErrSessionRequired = errors.New("session id required")

// SessionRegistry hands out exactly one CartStore per session, restoring the
// persisted snapshot the first time a session is seen.
type SessionRegistry struct {
	mu     sync.RWMutex
	stores map[string]*CartStore
	loads  singleflight.Group

	repo    port.CartRepository
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func NewSessionRegistry(repo port.CartRepository, log zerolog.Logger, m *metrics.Metrics) *SessionRegistry {
	return &SessionRegistry{
		stores:  make(map[string]*CartStore),
		repo:    repo,
		log:     log,
		metrics: m,
	}
}

func (r *SessionRegistry) Get(ctx context.Context, sessionID string) (*CartStore, error) {
	if sessionID == "" {
		return nil, ErrSessionRequired
	}

	r.mu.RLock()
	store, ok := r.stores[sessionID]
	r.mu.RUnlock()
	if ok {
		store.touch()
		return store, nil
	}

	v, err, _ := r.loads.Do(sessionID, func() (interface{}, error) {
		r.mu.RLock()
		existing, ok := r.stores[sessionID]
		r.mu.RUnlock()
		if ok {
			existing.touch()
			return existing, nil
		}

		key := domain.StorageKey(sessionID)
		snapshot, found, err := r.repo.Load(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("load cart %s: %w", key, err)
		}
		if !found {
			snapshot = domain.NewCartState()
		}

		created := NewCartStore(key, snapshot, r.repo, r.log.With().Str("session_id", sessionID).Logger(), r.metrics)

		r.mu.Lock()
		r.stores[sessionID] = created
		active := len(r.stores)
		r.mu.Unlock()
		r.metrics.ActiveSessions(active)

		r.log.Debug().Str("session_id", sessionID).Bool("restored", found).Msg("cart session opened")
		return created, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*CartStore), nil
}

// Peek returns the session's cart without opening a store for it. Sessions
// that were never written read as an empty cart.
func (r *SessionRegistry) Peek(ctx context.Context, sessionID string) (domain.CartState, error) {
	if sessionID == "" {
		return domain.CartState{}, ErrSessionRequired
	}

	r.mu.RLock()
	store, ok := r.stores[sessionID]
	r.mu.RUnlock()
	if ok {
		store.touch()
		return store.Snapshot(), nil
	}

	key := domain.StorageKey(sessionID)
	snapshot, found, err := r.repo.Load(ctx, key)
	if err != nil {
		return domain.CartState{}, fmt.Errorf("load cart %s: %w", key, err)
	}
	if !found {
		return domain.NewCartState(), nil
	}
	if snapshot.Cart == nil {
		snapshot.Cart = []domain.LineItem{}
	}
	return snapshot, nil
}

// EvictIdle drops stores unused for at least idle. Durable snapshots are kept,
// and a store with a payment confirmation in flight is never dropped.
func (r *SessionRegistry) EvictIdle(idle time.Duration) int {
	now := time.Now()

	r.mu.Lock()
	evicted := 0
	for id, store := range r.stores {
		if store.idleSince(now) < idle || store.busy() {
			continue
		}
		delete(r.stores, id)
		evicted++
	}
	active := len(r.stores)
	r.mu.Unlock()

	r.metrics.ActiveSessions(active)
	r.metrics.SessionsEvicted(evicted)
	return evicted
}

// RunEviction calls EvictIdle every interval until ctx is done.
func (r *SessionRegistry) RunEviction(ctx context.Context, idle, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.EvictIdle(idle); n > 0 {
				r.log.Debug().Int("evicted", n).Dur("idle", idle).Msg("evicted idle cart sessions")
			}
		}
	}
}

func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.stores)
}
