// Package redis implements store.Store on Redis. Each entry is a hash
// holding the value and its lifetime; when a tick duration is configured
// the key also carries a native expiry so Redis evicts lapsed entries on
// its own. Every key ever written is recorded in a set under <prefix>keys,
// which lets Get tell an evicted entry from one never written.
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/subledger/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

const (
	fieldValue     = "v"
	fieldLiveUntil = "lu"

	writtenSet = "keys"

	scanBatch = 500
)

// Config holds connection and keyspace settings.
type Config struct {
	Addr     string `json:"addr" mapstructure:"addr" yaml:"addr"`
	Password string `json:"password" mapstructure:"password" yaml:"password"`
	DB       int    `json:"db" mapstructure:"db" yaml:"db"`
	Prefix   string `json:"prefix" mapstructure:"prefix" yaml:"prefix"`
	// TickDuration converts remaining lifetime to a native key expiry.
	// Zero disables native expiry; Purge then evicts lapsed entries.
	TickDuration time.Duration `json:"tick_duration" mapstructure:"tick_duration" yaml:"tick_duration"`
}

// Store is a Redis-backed expiring key-value store.
type Store struct {
	client *redis.Client
	cfg    Config
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// New connects to Redis and verifies the connection with PING.
func New(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	ropts := &redis.Options{
		Addr: cfg.Addr,
		DB:   cfg.DB,
	}
	if cfg.Password != "" {
		ropts.Password = cfg.Password
	}

	client := redis.NewClient(ropts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis store: ping %s: %w", cfg.Addr, err)
	}

	s := NewWithClient(client, cfg, opts...)
	s.logger.Info("redis store connected", "addr", cfg.Addr, "prefix", cfg.Prefix)
	return s, nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, cfg Config, opts ...Option) *Store {
	s := &Store{client: client, cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) key(class store.Class, key string) string {
	return s.cfg.Prefix + class.String() + ":" + key
}

func (s *Store) written() string { return s.cfg.Prefix + writtenSet }

func (s *Store) Get(ctx context.Context, class store.Class, key string) (store.Entry, error) {
	k := s.key(class, key)
	fields, err := s.client.HGetAll(ctx, k).Result()
	if err != nil {
		return store.Entry{}, fmt.Errorf("redis store: get %s: %w", key, err)
	}
	if len(fields) == 0 {
		seen, err := s.client.SIsMember(ctx, s.written(), k).Result()
		if err != nil {
			return store.Entry{}, fmt.Errorf("redis store: get %s: %w", key, err)
		}
		if seen {
			return store.Entry{}, store.ErrArchived
		}
		return store.Entry{}, store.ErrNotFound
	}

	liveUntil, err := strconv.ParseUint(fields[fieldLiveUntil], 10, 32)
	if err != nil {
		return store.Entry{}, fmt.Errorf("redis store: get %s: lifetime: %w", key, err)
	}
	return store.Entry{Value: []byte(fields[fieldValue]), LiveUntil: uint32(liveUntil)}, nil
}

// Apply writes the batch inside MULTI/EXEC.
func (s *Store) Apply(ctx context.Context, now uint32, muts []store.Mutation) error {
	if len(muts) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, m := range muts {
			k := s.key(m.Class, m.Key)
			pipe.HSet(ctx, k,
				fieldValue, m.Value,
				fieldLiveUntil, strconv.FormatUint(uint64(m.LiveUntil), 10),
			)
			pipe.SAdd(ctx, s.written(), k)
			if ttl := s.ttl(now, m.LiveUntil); ttl > 0 {
				pipe.PExpire(ctx, k, ttl)
			} else {
				pipe.Persist(ctx, k)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis store: apply %d mutations: %w", len(muts), err)
	}
	return nil
}

// ttl converts a lifetime to a key expiry. An entry stays live through
// tick liveUntil, so it expires one tick after that.
func (s *Store) ttl(now, liveUntil uint32) time.Duration {
	if s.cfg.TickDuration <= 0 || liveUntil < now {
		return 0
	}
	return time.Duration(uint64(liveUntil-now)+1) * s.cfg.TickDuration
}

// Purge scans both class namespaces and deletes entries whose lifetime has
// ended. Deleted keys stay in the written set and read as archived.
func (s *Store) Purge(ctx context.Context, now uint32) (int64, error) {
	var purged int64
	for _, class := range []store.Class{store.ClassInstance, store.ClassPersistent} {
		n, err := s.purgeClass(ctx, class, now)
		purged += n
		if err != nil {
			return purged, err
		}
	}
	if purged > 0 {
		s.logger.Debug("redis store purged entries", "count", purged, "tick", now)
	}
	return purged, nil
}

func (s *Store) purgeClass(ctx context.Context, class store.Class, now uint32) (int64, error) {
	var (
		cursor uint64
		purged int64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.key(class, "*"), scanBatch).Result()
		if err != nil {
			return purged, fmt.Errorf("redis store: scan: %w", err)
		}
		for _, k := range keys {
			raw, err := s.client.HGet(ctx, k, fieldLiveUntil).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return purged, fmt.Errorf("redis store: purge %s: %w", k, err)
			}
			liveUntil, err := strconv.ParseUint(raw, 10, 32)
			if err != nil || uint32(liveUntil) >= now {
				continue
			}
			n, err := s.client.Del(ctx, k).Result()
			if err != nil {
				return purged, fmt.Errorf("redis store: purge %s: %w", k, err)
			}
			purged += n
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return purged, nil
}

// Core methods
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() error {
	if err := s.client.Close(); err != nil {
		if errors.Is(err, redis.ErrClosed) {
			return store.ErrClosed
		}
		return err
	}
	return nil
}
