package mapping

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/tintoy/confluence-docfx-import/config"
)

// RedisStore implements Store using two Redis hashes: one keyed by DocFX
// UID holding the JSON mapping, one keyed by href holding the UID.
type RedisStore struct {
	client *redis.Client
	config config.RedisConfig
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 10
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 3 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 3 * time.Second
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "docfx:mappings:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &RedisStore{
		client: client,
		config: cfg,
	}, nil
}

func (s *RedisStore) uidKey() string  { return s.config.KeyPrefix + "uid" }
func (s *RedisStore) hrefKey() string { return s.config.KeyPrefix + "href" }

func (s *RedisStore) Put(ctx context.Context, m Mapping) error {
	if err := m.validate(); err != nil {
		return err
	}
	m.DocFXHref = NormalizeHref(m.DocFXHref)

	data, err := json.Marshal(m)
	if err != nil {
		return err
	}

	old, err := s.ByUID(ctx, m.DocFXUID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if old.DocFXHref != "" && old.DocFXHref != m.DocFXHref {
			pipe.HDel(ctx, s.hrefKey(), old.DocFXHref)
		}
		pipe.HSet(ctx, s.uidKey(), m.DocFXUID, data)
		if m.DocFXHref != "" {
			pipe.HSet(ctx, s.hrefKey(), m.DocFXHref, m.DocFXUID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store mapping %s: %w", m.DocFXUID, err)
	}
	return nil
}

func (s *RedisStore) ByUID(ctx context.Context, uid string) (Mapping, error) {
	data, err := s.client.HGet(ctx, s.uidKey(), uid).Result()
	if errors.Is(err, redis.Nil) {
		return Mapping{}, fmt.Errorf("%w: uid %s", ErrNotFound, uid)
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("failed to read mapping %s: %w", uid, err)
	}

	var m Mapping
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return Mapping{}, fmt.Errorf("corrupt mapping %s: %w", uid, err)
	}
	return m, nil
}

func (s *RedisStore) ByHref(ctx context.Context, href string) (Mapping, error) {
	uid, err := s.client.HGet(ctx, s.hrefKey(), NormalizeHref(href)).Result()
	if errors.Is(err, redis.Nil) {
		return Mapping{}, fmt.Errorf("%w: href %s", ErrNotFound, href)
	}
	if err != nil {
		return Mapping{}, fmt.Errorf("failed to read href %s: %w", href, err)
	}
	return s.ByUID(ctx, uid)
}

func (s *RedisStore) List(ctx context.Context) ([]Mapping, error) {
	values, err := s.client.HGetAll(ctx, s.uidKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}

	mappings := make([]Mapping, 0, len(values))
	for uid, data := range values {
		var m Mapping
		if err := json.Unmarshal([]byte(data), &m); err != nil {
			return nil, fmt.Errorf("corrupt mapping %s: %w", uid, err)
		}
		mappings = append(mappings, m)
	}
	sortMappings(mappings)
	return mappings, nil
}

func (s *RedisStore) Replace(ctx context.Context, mappings []Mapping) error {
	uidValues := make([]interface{}, 0, len(mappings)*2)
	hrefValues := make([]interface{}, 0, len(mappings)*2)
	for _, m := range mappings {
		if err := m.validate(); err != nil {
			return err
		}
		m.DocFXHref = NormalizeHref(m.DocFXHref)
		data, err := json.Marshal(m)
		if err != nil {
			return err
		}
		uidValues = append(uidValues, m.DocFXUID, data)
		if m.DocFXHref != "" {
			hrefValues = append(hrefValues, m.DocFXHref, m.DocFXUID)
		}
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, s.uidKey(), s.hrefKey())
		if len(uidValues) > 0 {
			pipe.HSet(ctx, s.uidKey(), uidValues...)
		}
		if len(hrefValues) > 0 {
			pipe.HSet(ctx, s.hrefKey(), hrefValues...)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to replace mappings: %w", err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
