package semcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"helmsman/internal/logging"
	"helmsman/internal/resilience"
)

// Options controls answer caching behavior.
type Options struct {
	Enabled bool
	// AllowSensitiveContent permits caching turns that touched tenant data
	// through tool calls. Off by default: those answers stay per-request.
	AllowSensitiveContent bool
	// Mode is "exact" (digest lookup only) or "semantic" (digest lookup with
	// a vector search fallback).
	Mode string
	TTL  time.Duration
}

// StringStore is the minimal key-value surface the exact cache needs.
type StringStore interface {
	GetString(ctx context.Context, key string) (string, bool, error)
	SetString(ctx context.Context, key, value string, ttl time.Duration) error
}

// RedisStore backs StringStore with a Redis client.
type RedisStore struct {
	client redis.UniversalClient
}

func NewRedisStore(addrs []string, db int) *RedisStore {
	return &RedisStore{
		client: redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: addrs,
			DB:    db,
		}),
	}
}

func NewRedisStoreFromClient(client redis.UniversalClient) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) GetString(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (s *RedisStore) SetString(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.client.Set(ctx, key, value, ttl).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// AnswerCache caches final assistant answers keyed by the turn digest,
// namespaced per tenant. Store failures degrade to a miss; the cache is never
// allowed to fail a turn.
type AnswerCache struct {
	store  StringStore
	vector *VectorIndex
	opts   Options
	policy *resilience.Policy
	logger logging.Logger
}

func NewAnswerCache(store StringStore, vector *VectorIndex, opts Options, policy *resilience.Policy, logger logging.Logger) *AnswerCache {
	return &AnswerCache{
		store:  store,
		vector: vector,
		opts:   opts,
		policy: policy,
		logger: logger,
	}
}

// Enabled reports whether any lookups or writes will happen at all.
func (c *AnswerCache) Enabled() bool {
	return c.opts.Enabled && c.store != nil
}

func (c *AnswerCache) answerKey(tenantID string, key Key) string {
	return fmt.Sprintf("helmsman:ans:%s:%s", tenantID, key.Digest())
}

// TryGetAnswer returns a cached answer for the key, or "" on a miss. Errors
// from the backing store are logged, counted and reported as a miss.
func (c *AnswerCache) TryGetAnswer(ctx context.Context, tenantID string, key Key) (string, bool) {
	if !c.Enabled() {
		return "", false
	}

	redisKey := c.answerKey(tenantID, key)
	var (
		answer string
		found  bool
	)
	err := c.policy.Run(ctx, func() error {
		var err error
		answer, found, err = c.store.GetString(ctx, redisKey)
		return err
	})
	if err != nil {
		cacheErrors.WithLabelValues("get").Inc()
		c.logger.WithError(err).Debug("Answer cache lookup failed, treating as miss")
		return "", false
	}
	if found {
		cacheHits.WithLabelValues("exact").Inc()
		return answer, true
	}

	if c.opts.Mode == ModeSemantic && c.vector != nil {
		answer, found = c.vector.Lookup(ctx, tenantID, key)
		if found {
			cacheHits.WithLabelValues("semantic").Inc()
			return answer, true
		}
	}

	cacheMisses.Inc()
	return "", false
}

// SetAnswer stores a final answer. sensitive marks turns that exposed tenant
// data through tools; those are only cached when the tenant opted in.
func (c *AnswerCache) SetAnswer(ctx context.Context, tenantID string, key Key, answer string, sensitive bool) {
	if !c.Enabled() || answer == "" {
		return
	}
	if sensitive && !c.opts.AllowSensitiveContent {
		return
	}

	redisKey := c.answerKey(tenantID, key)
	err := c.policy.Run(ctx, func() error {
		return c.store.SetString(ctx, redisKey, answer, c.opts.TTL)
	})
	if err != nil {
		cacheErrors.WithLabelValues("set").Inc()
		c.logger.WithError(err).Debug("Answer cache write failed")
		return
	}
	cacheWrites.Inc()

	if c.opts.Mode == ModeSemantic && c.vector != nil {
		c.vector.Store(ctx, tenantID, key, answer)
	}
}

// Cache modes.
const (
	ModeExact    = "exact"
	ModeSemantic = "semantic"
)
