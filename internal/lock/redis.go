package lock

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired lock taken over by another holder is left alone.
var releaseScript = goredis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// RedisConfig configures the Redis locker.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Redis is a Locker shared by every process pointed at the same server.
type Redis struct {
	rdb    goredis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *zap.Logger

	minWait time.Duration
	maxWait time.Duration
}

// NewRedis connects to cfg.Addr and verifies the server with a ping.
func NewRedis(ctx context.Context, cfg RedisConfig, log *zap.Logger) (*Redis, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisFromClient(rdb, cfg, log), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(rdb goredis.UniversalClient, cfg RedisConfig, log *zap.Logger) *Redis {
	if log == nil {
		log = zap.NewNop()
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "masterypath:lock:"
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Redis{
		rdb:     rdb,
		prefix:  prefix,
		ttl:     ttl,
		log:     log.With(zap.String("component", "lock")),
		minWait: 10 * time.Millisecond,
		maxWait: 250 * time.Millisecond,
	}
}

// Lock retries SET NX with capped, jittered exponential backoff until it
// wins or ctx is done. The lock expires after the TTL if the holder dies.
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	k := r.prefix + key
	token := uuid.NewString()
	wait := r.minWait
	for {
		ok, err := r.rdb.SetNX(ctx, k, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(jitter(wait)):
		}
		wait = min(wait*2, r.maxWait)
	}

	return func() {
		// The caller's ctx may already be cancelled; release regardless.
		relCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := releaseScript.Run(relCtx, r.rdb, []string{k}, token).Err(); err != nil {
			r.log.Warn("release lock failed", zap.String("key", key), zap.Error(err))
		}
	}, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.rdb.Close()
}

// jitter returns a uniform duration in [d/2, d).
func jitter(d time.Duration) time.Duration {
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half)
}
