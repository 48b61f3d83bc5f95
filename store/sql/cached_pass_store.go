package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-callpass/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const passResolveCacheKeyPrefix = "go-callpass::pass_resolve::v1"

// CachedPassStore fronts the resolve path with a cache so the inbound
// call check stays off the database. Every write to a number
// invalidates that number's entry; cache hits still re-derive activity
// against the caller's clock, so a stale hit can only be too
// conservative, never allow an expired grant.
type CachedPassStore struct {
	base  core.PassStore
	cache repositorycache.CacheService
}

func NewCachedPassStore(base core.PassStore, cacheService repositorycache.CacheService) (*CachedPassStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base pass store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: pass cache service is required")
	}
	return &CachedPassStore{base: base, cache: cacheService}, nil
}

// PassResolveCacheKey returns the deterministic cache key for a
// number's resolved pass: go-callpass::pass_resolve::v1::<number>.
func PassResolveCacheKey(phoneNumber string) (string, error) {
	trimmed := strings.TrimSpace(phoneNumber)
	if trimmed == "" {
		return "", fmt.Errorf("sqlstore: phone number is required for cache key")
	}
	return passResolveCacheKeyPrefix + "::" + url.PathEscape(trimmed), nil
}

func (s *CachedPassStore) Create(ctx context.Context, in core.CreatePassInput) (core.Pass, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	created, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Pass{}, err
	}
	if err := s.invalidateNumber(ctx, created.PhoneNumber); err != nil {
		return core.Pass{}, err
	}
	return created, nil
}

func (s *CachedPassStore) Get(ctx context.Context, id string) (core.Pass, error) {
	if s == nil || s.base == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	return s.base.Get(ctx, id)
}

func (s *CachedPassStore) Resolve(ctx context.Context, phoneNumber string, now time.Time) (core.Pass, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Pass{}, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	cacheKey, err := PassResolveCacheKey(phoneNumber)
	if err != nil {
		return core.Pass{}, err
	}

	pass, err := repositorycache.GetOrFetch(ctx, s.cache, cacheKey, func(ctx context.Context) (core.Pass, error) {
		return s.base.Resolve(ctx, phoneNumber, now)
	})
	if err != nil {
		return core.Pass{}, err
	}
	if !pass.ActiveAt(now) {
		// The cached grant lapsed since it was stored; drop it and ask
		// the base store for a fresher one.
		if deleteErr := s.cache.Delete(ctx, cacheKey); deleteErr != nil {
			return core.Pass{}, deleteErr
		}
		return s.base.Resolve(ctx, phoneNumber, now)
	}
	return pass, nil
}

func (s *CachedPassStore) RecordUse(ctx context.Context, id string) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	pass, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.RecordUse(ctx, id); err != nil {
		return err
	}
	return s.invalidateNumber(ctx, pass.PhoneNumber)
}

func (s *CachedPassStore) Revoke(ctx context.Context, id string, now time.Time) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	pass, err := s.base.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := s.base.Revoke(ctx, id, now); err != nil {
		return err
	}
	return s.invalidateNumber(ctx, pass.PhoneNumber)
}

func (s *CachedPassStore) ListActive(ctx context.Context, now time.Time) ([]core.Pass, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	return s.base.ListActive(ctx, now)
}

func (s *CachedPassStore) SweepExpired(ctx context.Context, cutoff time.Time) (int, error) {
	if s == nil || s.base == nil {
		return 0, fmt.Errorf("sqlstore: cached pass store is not configured")
	}
	return s.base.SweepExpired(ctx, cutoff)
}

func (s *CachedPassStore) invalidateNumber(ctx context.Context, phoneNumber string) error {
	cacheKey, err := PassResolveCacheKey(phoneNumber)
	if err != nil {
		return err
	}
	return s.cache.Delete(ctx, cacheKey)
}

var _ core.PassStore = (*CachedPassStore)(nil)
