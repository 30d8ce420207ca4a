// Package cache is the fallback tier for workflow state. Values are stored
// as JSON in a process-local map and, when configured, mirrored to redis so
// another server instance can pick up a stage the store never received.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
)

// Options configures a Store.
type Options struct {
	// Prefix is prepended to every redis key.
	Prefix string
	TTL    time.Duration
	// Redis is optional; nil keeps the cache process-local.
	Redis  *redis.Client
	Logger zerolog.Logger
}

type entry struct {
	data    []byte
	expires time.Time
}

// Store is a two-tier JSON cache. Redis failures are logged and never
// returned: the local tier alone is enough to keep a session moving.
type Store struct {
	prefix string
	ttl    time.Duration
	rdb    *redis.Client
	logger zerolog.Logger
	now    func() time.Time

	mu    sync.RWMutex
	local map[string]entry
}

func New(opts Options) *Store {
	if opts.TTL <= 0 {
		opts.TTL = 24 * time.Hour
	}
	return &Store{
		prefix: opts.Prefix,
		ttl:    opts.TTL,
		rdb:    opts.Redis,
		logger: opts.Logger.With().Str("component", "cache").Logger(),
		now:    time.Now,
		local:  make(map[string]entry),
	}
}

// NewRedisClient builds the shared-tier client.
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Set stores v under key in both tiers.
func (s *Store) Set(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}

	s.mu.Lock()
	s.local[key] = entry{data: data, expires: s.now().Add(s.ttl)}
	s.mu.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Set(ctx, s.prefix+key, data, s.ttl).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("redis set failed, local cache only")
		}
	}
	return nil
}

// Get decodes the cached value for key into dst and reports whether one
// was found. The local tier wins; a redis hit is copied into it.
func (s *Store) Get(ctx context.Context, key string, dst interface{}) (bool, error) {
	s.mu.RLock()
	e, ok := s.local[key]
	s.mu.RUnlock()

	if ok && s.now().After(e.expires) {
		s.mu.Lock()
		delete(s.local, key)
		s.mu.Unlock()
		ok = false
	}

	if !ok && s.rdb != nil {
		data, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			s.logger.Warn().Err(err).Str("key", key).Msg("redis get failed")
		default:
			e = entry{data: data, expires: s.now().Add(s.ttl)}
			ok = true
			s.mu.Lock()
			s.local[key] = e
			s.mu.Unlock()
		}
	}

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(e.data, dst); err != nil {
		return false, fmt.Errorf("cache unmarshal %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key from both tiers.
func (s *Store) Delete(ctx context.Context, key string) {
	s.mu.Lock()
	delete(s.local, key)
	s.mu.Unlock()

	if s.rdb != nil {
		if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("redis delete failed")
		}
	}
}

// Keys returns the live local keys. Used by the reconciler to find entries
// that never reached the store.
func (s *Store) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	keys := make([]string, 0, len(s.local))
	for k, e := range s.local {
		if now.Before(e.expires) {
			keys = append(keys, k)
		}
	}
	return keys
}

// Ping checks the shared tier. A process-local cache is always healthy.
func (s *Store) Ping(ctx context.Context) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
