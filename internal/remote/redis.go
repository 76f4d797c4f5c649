package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/conorfennell/drillcard/internal/domain"
)

const (
	profileIndexKey   = "drillcard:profiles"
	profileKeyPrefix  = "drillcard:profile:"
	progressKeyPrefix = "drillcard:progress:"

	// defaultTxRetries is how many times an optimistic update is retried
	// after losing a race with a concurrent writer.
	defaultTxRetries = 5
)

// RedisStore is a Store backed by Redis. Profile metadata and progress live
// under separate keys so progress writes never clobber metadata; atomic
// updates use WATCH-based optimistic transactions on the progress key.
type RedisStore struct {
	rdb       *redis.Client
	txRetries int
}

// NewRedisStore connects to Redis at the given address and verifies the
// connection with a ping.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{rdb: rdb, txRetries: defaultTxRetries}, nil
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func profileKey(id string) string  { return profileKeyPrefix + id }
func progressKey(id string) string { return progressKeyPrefix + id }

// ListProfiles implements Store.
func (s *RedisStore) ListProfiles(ctx context.Context) ([]domain.Profile, error) {
	ids, err := s.rdb.SMembers(ctx, profileIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("listing profiles: %w", err)
	}

	profiles := make([]domain.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProfile(ctx, id)
		if errors.Is(err, ErrProfileNotFound) {
			continue // index entry without a document; skip
		}
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// CreateProfile implements Store.
func (s *RedisStore) CreateProfile(ctx context.Context, p domain.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding profile %s: %w", p.ID, err)
	}
	if err := s.rdb.Set(ctx, profileKey(p.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("storing profile %s: %w", p.ID, err)
	}
	if err := s.rdb.SAdd(ctx, profileIndexKey, p.ID).Err(); err != nil {
		return fmt.Errorf("indexing profile %s: %w", p.ID, err)
	}
	return nil
}

// GetProfile implements Store.
func (s *RedisStore) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	raw, err := s.rdb.Get(ctx, profileKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Profile{}, fmt.Errorf("%w: %s", ErrProfileNotFound, id)
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("loading profile %s: %w", id, err)
	}
	var p domain.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Profile{}, fmt.Errorf("decoding profile %s: %w", id, err)
	}
	return p, nil
}

// LoadProgress implements Store.
func (s *RedisStore) LoadProgress(ctx context.Context, id string) (domain.Progress, error) {
	if _, err := s.GetProfile(ctx, id); err != nil {
		return domain.Progress{}, err
	}
	raw, err := s.rdb.Get(ctx, progressKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Progress{}, nil // profile exists, nothing saved yet
	}
	if err != nil {
		return domain.Progress{}, fmt.Errorf("loading progress for %s: %w", id, err)
	}
	return decodeProgress(raw, id)
}

// SaveProgress implements Store.
func (s *RedisStore) SaveProgress(ctx context.Context, id string, p domain.Progress) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding progress for %s: %w", id, err)
	}
	if err := s.rdb.Set(ctx, progressKey(id), raw, 0).Err(); err != nil {
		return fmt.Errorf("storing progress for %s: %w", id, err)
	}
	return nil
}

// UpdateProgress implements Store. The read, the merge computed by fn and
// the write all happen inside one optimistic transaction: if another client
// commits to the same progress key between our read and write, the whole
// cycle is retried against the fresh value.
func (s *RedisStore) UpdateProgress(ctx context.Context, id string, fn UpdateFunc) (domain.Progress, error) {
	key := progressKey(id)
	var updated domain.Progress

	txf := func(tx *redis.Tx) error {
		var current domain.Progress
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			// First save from any device; start from an empty document.
		case err != nil:
			return fmt.Errorf("reading progress for %s: %w", id, err)
		default:
			if current, err = decodeProgress(raw, id); err != nil {
				return err
			}
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		out, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encoding progress for %s: %w", id, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, 0)
			return nil
		})
		if err == nil {
			updated = next
		}
		return err
	}

	for attempt := 0; attempt <= s.txRetries; attempt++ {
		err := s.rdb.Watch(ctx, txf, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue // lost the race, re-read and retry
		}
		return domain.Progress{}, err
	}
	return domain.Progress{}, fmt.Errorf("%w: profile %s: transaction retries exhausted", ErrSyncFailed, id)
}

func decodeProgress(raw []byte, id string) (domain.Progress, error) {
	var p domain.Progress
	if err := json.Unmarshal(raw, &p); err != nil {
		return domain.Progress{}, fmt.Errorf("decoding progress for %s: %w", id, err)
	}
	return p, nil
}
