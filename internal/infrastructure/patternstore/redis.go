package patternstore

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/shelfwatch/backend/internal/domain"
)

const (
	attemptsSuffix  = "attempts"
	successesSuffix = "successes"
)

// RedisStore keeps counters in one hash per retailer so every worker
// process shares them. Fields are "{provider}|{field}|{attempts|successes}".
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed pattern store
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) hashKey(retailer string) string {
	return s.prefix + retailer
}

func (s *RedisStore) seqKey(retailer string) string {
	return s.prefix + retailer + ":seq"
}

func hashField(provider string, field domain.PatternField, suffix string) string {
	return provider + "|" + string(field) + "|" + suffix
}

// Record counts one attempt. Both increments go through MULTI so a
// success is never counted without its attempt.
func (s *RedisStore) Record(ctx context.Context, retailer, provider string, field domain.PatternField, success bool) error {
	key := s.hashKey(retailer)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, hashField(provider, field, attemptsSuffix), 1)
		if success {
			pipe.HIncrBy(ctx, key, hashField(provider, field, successesSuffix), 1)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record pattern outcome: %w", err)
	}
	return nil
}

// Stats returns all counters for a retailer sorted by provider and field
func (s *RedisStore) Stats(ctx context.Context, retailer string) ([]domain.PatternStats, error) {
	raw, err := s.client.HGetAll(ctx, s.hashKey(retailer)).Result()
	if err != nil {
		return nil, fmt.Errorf("load pattern stats: %w", err)
	}

	byKey := make(map[string]*domain.PatternStats)
	for k, v := range raw {
		parts := strings.Split(k, "|")
		if len(parts) != 3 {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			continue
		}

		id := parts[0] + "|" + parts[1]
		st, ok := byKey[id]
		if !ok {
			st = &domain.PatternStats{
				Retailer: retailer,
				Provider: parts[0],
				Field:    domain.PatternField(parts[1]),
			}
			byKey[id] = st
		}
		switch parts[2] {
		case attemptsSuffix:
			st.Attempts = n
		case successesSuffix:
			st.Successes = n
		}
	}

	out := make([]domain.PatternStats, 0, len(byKey))
	for _, st := range byKey {
		out = append(out, *st)
	}
	sortStats(out)
	return out, nil
}

// NextSequence increments and returns the retailer's attempt sequence
func (s *RedisStore) NextSequence(ctx context.Context, retailer string) (int64, error) {
	n, err := s.client.Incr(ctx, s.seqKey(retailer)).Result()
	if err != nil {
		return 0, fmt.Errorf("next pattern sequence: %w", err)
	}
	return n, nil
}
