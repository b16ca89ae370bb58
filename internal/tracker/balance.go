package tracker

import (
	"context"
	"fmt"
	"sync"
)

// Balance caches one user's token count. The server owns the number; the cache
// is only ever refreshed, never decremented locally.
type Balance struct {
	userID  string
	fetcher BalanceFetcher
	store   *Store

	mu     sync.Mutex
	tokens int
	known  bool
}

// NewBalance creates an empty cache. store may be nil.
func NewBalance(userID string, fetcher BalanceFetcher, store *Store) *Balance {
	return &Balance{userID: userID, fetcher: fetcher, store: store}
}

// Get returns the cached balance and whether it was ever fetched.
func (b *Balance) Get() (int, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens, b.known
}

// Refresh fetches the balance and broadcasts it.
func (b *Balance) Refresh(ctx context.Context) (int, error) {
	tokens, err := b.fetcher.Balance(ctx, b.userID)
	if err != nil {
		return 0, fmt.Errorf("fetch balance: %w", err)
	}
	b.mu.Lock()
	b.tokens = tokens
	b.known = true
	b.mu.Unlock()

	if b.store != nil {
		b.store.PublishBalance(tokens)
	}
	return tokens, nil
}

// Known returns the cached balance, fetching it first if it was never loaded.
func (b *Balance) Known(ctx context.Context) (int, error) {
	if tokens, ok := b.Get(); ok {
		return tokens, nil
	}
	return b.Refresh(ctx)
}
