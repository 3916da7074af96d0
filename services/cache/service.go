package cache

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"

	"github.com/customeros/mailprobe/config"
	"github.com/customeros/mailprobe/internal/enum"
	mperrors "github.com/customeros/mailprobe/internal/errors"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/internal/metrics"
)

const (
	tierLocal  = "local"
	tierShared = "shared"
	scanCount  = 500
	flagTrue   = "1"
	flagFalse  = "0"
	allEntries = "all"

	defaultLocalSize = 10000
)

type namespaceSettings struct {
	ttl     time.Duration
	enabled bool
}

// Service is a two-tier cache: a bounded process-local LRU in front of Redis. Redis
// failures are logged and treated as misses.
type Service struct {
	log      logger.Logger
	client   redis.Cmdable
	prefix   string
	useLocal bool
	settings map[enum.CacheNamespace]namespaceSettings
	local    *lru.Cache[string, string]
	flight   singleflight.Group
}

func NewService(cfg *config.CacheConfig, client redis.Cmdable, log logger.Logger) *Service {
	seconds := func(v int) time.Duration { return time.Duration(v) * time.Second }
	size := cfg.LocalCacheSize
	if size <= 0 {
		size = defaultLocalSize
	}
	local, _ := lru.New[string, string](size)
	return &Service{
		log:      log,
		client:   client,
		prefix:   cfg.KeyPrefix,
		useLocal: cfg.EnableLocalCache,
		settings: map[enum.CacheNamespace]namespaceSettings{
			enum.CacheFullResult: {ttl: seconds(cfg.TTLFullResult), enabled: cfg.EnableResultCache},
			enum.CacheMX:         {ttl: seconds(cfg.TTLMXRecords), enabled: cfg.EnableMXCache},
			enum.CacheBlacklist:  {ttl: seconds(cfg.TTLBlacklist), enabled: cfg.EnableBlacklistCache},
			enum.CacheDisposable: {ttl: seconds(cfg.TTLDisposable), enabled: cfg.EnableDisposableCache},
			enum.CacheCatchAll:   {ttl: seconds(cfg.TTLCatchAll), enabled: cfg.EnableCatchAllCache},
		},
		local: local,
	}
}

func (s *Service) Key(ns enum.CacheNamespace, key string) string {
	return s.prefix + string(ns) + ":" + key
}

func (s *Service) Enabled(ns enum.CacheNamespace) bool {
	return s.settings[ns].enabled
}

func (s *Service) TTL(ns enum.CacheNamespace) time.Duration {
	return s.settings[ns].ttl
}

// Get reads the raw value, local tier first.
func (s *Service) Get(ctx context.Context, ns enum.CacheNamespace, key string) (string, bool) {
	if !s.Enabled(ns) {
		return "", false
	}
	fullKey := s.Key(ns, key)

	if s.useLocal {
		value, ok := s.local.Get(fullKey)
		metrics.CacheLookup(string(ns), tierLocal, ok)
		if ok {
			return value, true
		}
	}

	if s.client == nil {
		return "", false
	}
	value, err := s.client.Get(ctx, fullKey).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warnf("cache read %s failed: %v", fullKey, err)
		}
		metrics.CacheLookup(string(ns), tierShared, false)
		return "", false
	}
	metrics.CacheLookup(string(ns), tierShared, true)

	s.setLocal(fullKey, value)
	return value, true
}

// Set writes through both tiers with the namespace TTL.
func (s *Service) Set(ctx context.Context, ns enum.CacheNamespace, key, value string) {
	if !s.Enabled(ns) {
		return
	}
	fullKey := s.Key(ns, key)
	s.setLocal(fullKey, value)

	if s.client == nil {
		return
	}
	if err := s.client.Set(ctx, fullKey, value, s.TTL(ns)).Err(); err != nil {
		s.log.Warnf("cache write %s failed: %v", fullKey, err)
	}
}

func (s *Service) GetJSON(ctx context.Context, ns enum.CacheNamespace, key string, dest any) bool {
	raw, ok := s.Get(ctx, ns, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		s.log.Warnf("cache entry %s is not valid json: %v", s.Key(ns, key), err)
		return false
	}
	return true
}

func (s *Service) SetJSON(ctx context.Context, ns enum.CacheNamespace, key string, value any) {
	if !s.Enabled(ns) {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.Warnf("cache entry %s not serializable: %v", s.Key(ns, key), err)
		return
	}
	s.Set(ctx, ns, key, string(raw))
}

// GetFlag returns the stored boolean and whether one was found.
func (s *Service) GetFlag(ctx context.Context, ns enum.CacheNamespace, key string) (bool, bool) {
	raw, ok := s.Get(ctx, ns, key)
	if !ok {
		return false, false
	}
	return raw == flagTrue, true
}

func (s *Service) SetFlag(ctx context.Context, ns enum.CacheNamespace, key string, value bool) {
	raw := flagFalse
	if value {
		raw = flagTrue
	}
	s.Set(ctx, ns, key, raw)
}

// Remember returns the cached JSON value or computes, stores and returns a fresh
// one. Concurrent callers for the same key share a single computation.
func Remember[T any](ctx context.Context, s *Service, ns enum.CacheNamespace, key string, compute func(context.Context) (T, error)) (T, error) {
	var cached T
	if s.GetJSON(ctx, ns, key, &cached) {
		return cached, nil
	}

	value, err, _ := s.flight.Do(s.Key(ns, key), func() (interface{}, error) {
		fresh, err := compute(ctx)
		if err != nil {
			return fresh, err
		}
		s.SetJSON(ctx, ns, key, fresh)
		return fresh, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return value.(T), nil
}

// View lists entries of a namespace, or of every namespace for "all". Shared-tier
// values take precedence over local ones.
func (s *Service) View(ctx context.Context, namespace string) (map[string]string, error) {
	pattern, err := s.pattern(namespace)
	if err != nil {
		return nil, err
	}
	entries := make(map[string]string)

	prefix := strings.TrimSuffix(pattern, "*")
	for _, key := range s.local.Keys() {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if value, ok := s.local.Peek(key); ok {
			entries[key] = value
		}
	}

	if s.client == nil {
		return entries, nil
	}
	keys, err := s.scan(ctx, pattern)
	if err != nil {
		return entries, err
	}
	for _, key := range keys {
		value, err := s.client.Get(ctx, key).Result()
		if err != nil {
			continue
		}
		entries[key] = value
	}
	return entries, nil
}

// Clear removes entries of a namespace, or of every namespace for "all", from both
// tiers and returns the number of distinct keys removed.
func (s *Service) Clear(ctx context.Context, namespace string) (int, error) {
	pattern, err := s.pattern(namespace)
	if err != nil {
		return 0, err
	}
	prefix := strings.TrimSuffix(pattern, "*")
	removed := make(map[string]struct{})

	for _, key := range s.local.Keys() {
		if strings.HasPrefix(key, prefix) && s.local.Remove(key) {
			removed[key] = struct{}{}
		}
	}

	if s.client == nil {
		return len(removed), nil
	}
	keys, err := s.scan(ctx, pattern)
	if err != nil {
		return len(removed), err
	}
	if len(keys) > 0 {
		if err := s.client.Del(ctx, keys...).Err(); err != nil {
			return len(removed), errors.Wrap(mperrors.ErrCacheUnavailable, err.Error())
		}
	}
	for _, key := range keys {
		removed[key] = struct{}{}
	}
	s.log.Infof("cleared %d cache entries for %s", len(removed), namespace)
	return len(removed), nil
}

func (s *Service) pattern(namespace string) (string, error) {
	if strings.EqualFold(strings.TrimSpace(namespace), allEntries) {
		return s.prefix + "*", nil
	}
	ns, ok := enum.GetCacheNamespace(namespace)
	if !ok {
		return "", errors.Wrapf(mperrors.ErrInvalidNamespace, "%q", namespace)
	}
	return s.prefix + string(ns) + ":*", nil
}

func (s *Service) scan(ctx context.Context, pattern string) ([]string, error) {
	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanCount).Result()
		if err != nil {
			return keys, errors.Wrap(mperrors.ErrCacheUnavailable, err.Error())
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}

func (s *Service) setLocal(fullKey, value string) {
	if !s.useLocal {
		return
	}
	s.local.Add(fullKey, value)
}
