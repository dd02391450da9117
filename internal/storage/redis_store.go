package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"painscope/internal/model"
)

// RedisStore holds the pipeline's non-durable side state: cached community
// metadata and the classifier's daily request-quota counter.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func communityKey(name string) string {
	return fmt.Sprintf("painscope:community:%s", name)
}

func quotaKey(day string) string {
	return fmt.Sprintf("painscope:sentiment:quota:%s", day)
}

// CommunityMetadata returns cached metadata for a community, or nil on miss.
func (s *RedisStore) CommunityMetadata(ctx context.Context, name string) (*model.CommunityMetadata, error) {
	b, err := s.rdb.Get(ctx, communityKey(name)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var md model.CommunityMetadata
	if err := json.Unmarshal(b, &md); err != nil {
		return nil, err
	}
	return &md, nil
}

// SetCommunityMetadata caches metadata with a TTL.
func (s *RedisStore) SetCommunityMetadata(ctx context.Context, md *model.CommunityMetadata, ttl time.Duration) error {
	b, err := json.Marshal(md)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, communityKey(md.Name), b, ttl).Err()
}

// ReserveClassification counts one classifier request against the current
// UTC day's ceiling. It returns false once the ceiling is reached; the
// reservation that crosses the ceiling is not refunded, matching the
// provider's own accounting.
func (s *RedisStore) ReserveClassification(ctx context.Context, ceiling int) (bool, error) {
	if ceiling <= 0 {
		return true, nil
	}
	key := quotaKey(time.Now().UTC().Format("2006-01-02"))
	n, err := s.rdb.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if n == 1 {
		// Keep the counter past midnight so late readers still see it.
		_ = s.rdb.Expire(ctx, key, 48*time.Hour).Err()
	}
	return n <= int64(ceiling), nil
}
