package cache

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"
)

// ErrNotCached is returned by Debit and Credit when the key holds no value.
var ErrNotCached = errors.New("balance not cached")

// ErrInsufficient is returned by Debit when the cached balance cannot cover
// the amount.
var ErrInsufficient = errors.New("insufficient cached balance")

// BalanceKey builds the cache key for a token balance.
func BalanceKey(symbol, scope, address string) string {
	return strings.Join([]string{symbol, scope, strings.ToLower(address)}, ":")
}

// Cache is a lock-free optimistic balance cache. Values are decimal strings
// of base-unit integers. Consistency under concurrent population is achieved
// by the first-writer-wins rule in GetBalanceOf, not by locks or versions.
type Cache struct {
	backend Backend
	logger  *zap.Logger
}

// New builds a cache over a backend.
func New(backend Backend, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: backend, logger: logger}
}

// Get returns the cached balance, if any.
func (c *Cache) Get(ctx context.Context, key string) (*big.Int, bool, error) {
	raw, ok, err := c.backend.Get(ctx, key)
	if err != nil || !ok {
		return nil, false, err
	}
	value, err := parseBalance(raw)
	if err != nil {
		return nil, false, fmt.Errorf("key %s: %w", key, err)
	}
	return value, true, nil
}

// Set overwrites the cached balance.
func (c *Cache) Set(ctx context.Context, key string, value *big.Int) error {
	return c.backend.Set(ctx, key, value.String())
}

// Invalidate drops the cached balance.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.backend.Delete(ctx, key)
}

// Debit subtracts amount from the cached balance and returns the new value.
func (c *Cache) Debit(ctx context.Context, key string, amount *big.Int) (*big.Int, error) {
	current, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("debit %s: %w", key, ErrNotCached)
	}
	if current.Cmp(amount) < 0 {
		return nil, fmt.Errorf("debit %s: %w", key, ErrInsufficient)
	}
	next := new(big.Int).Sub(current, amount)
	if err := c.backend.Set(ctx, key, next.String()); err != nil {
		return nil, err
	}
	return next, nil
}

// Credit adds amount to the cached balance and returns the new value.
func (c *Cache) Credit(ctx context.Context, key string, amount *big.Int) (*big.Int, error) {
	current, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("credit %s: %w", key, ErrNotCached)
	}
	next := new(big.Int).Add(current, amount)
	if err := c.backend.Set(ctx, key, next.String()); err != nil {
		return nil, err
	}
	return next, nil
}

// GetBalanceOf returns the cached balance, falling back to fetch on a miss.
// The freshly fetched value populates the cache only if the key is still
// empty at write time; when another path won the race, the pre-existing
// value wins and the fresh read is discarded. Same-process writes (debits,
// credits) are therefore never clobbered by a slow remote read.
func (c *Cache) GetBalanceOf(ctx context.Context, key string, fetch func(ctx context.Context) (*big.Int, error)) (*big.Int, error) {
	cached, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if ok {
		return cached, nil
	}

	fresh, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch balance %s: %w", key, err)
	}

	stored, err := c.backend.SetIfAbsent(ctx, key, fresh.String())
	if err != nil {
		return nil, err
	}
	if stored {
		return fresh, nil
	}

	// Lost the populate race; defer to the existing entry.
	existing, ok, err := c.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Invalidated between the failed populate and the re-read.
		return fresh, nil
	}
	c.logger.Debug("populate race lost", zap.String("key", key))
	return existing, nil
}

func parseBalance(raw string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, fmt.Errorf("malformed balance value: %q", raw)
	}
	return value, nil
}
