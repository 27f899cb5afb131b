package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
)

var ctx = context.Background()

// RedisStore implements Store on top of a single Redis instance.
type RedisStore struct {
	inner *redis.Client
}

// GetRedisStore connects to the Redis instance configured through
// REDIS_HOST, REDIS_PORT and REDIS_PASSWD and verifies the connection before
// returning.
func GetRedisStore() (*RedisStore, error) {
	redisClient := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", os.Getenv("REDIS_HOST"), os.Getenv("REDIS_PORT")),
		Password: os.Getenv("REDIS_PASSWD"),
		DB:       0, // use default DB
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		return nil, errors.Wrap(err, "fail to ping redis")
	}
	return &RedisStore{inner: redisClient}, nil
}

func (r *RedisStore) Get(key string) (string, error) {
	val, err := r.inner.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrapf(err, "fail to get key %s", key)
	}
	return val, nil
}

func (r *RedisStore) SetWithTTL(key string, value string, ttl time.Duration) error {
	return errors.Wrapf(r.inner.Set(ctx, key, value, ttl).Err(), "fail to set key %s", key)
}

func (r *RedisStore) SetAdd(key string, member string) error {
	return errors.Wrapf(r.inner.SAdd(ctx, key, member).Err(), "fail to sadd key %s", key)
}

func (r *RedisStore) SetMembersInt(key string) ([]int64, error) {
	members, err := r.inner.SMembers(ctx, key).Result()
	if err != nil {
		return nil, errors.Wrapf(err, "fail to read set %s", key)
	}
	ids := make([]int64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseInt(m, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "non-integer member %q in set %s", m, key)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *RedisStore) SortedSetAddWithTTL(key string, member string, score float64, ttl time.Duration) error {
	pipe := r.inner.TxPipeline()
	pipe.ZAdd(ctx, key, &redis.Z{Score: score, Member: member})
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return errors.Wrapf(err, "fail to zadd key %s", key)
}

func (r *RedisStore) Ping() error {
	return r.inner.Ping(ctx).Err()
}
