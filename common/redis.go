package common

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
)

var RDB *redis.Client
var RedisEnabled = true

// InitRedisClient This function is called after init()
func InitRedisClient() (err error) {
	if os.Getenv("REDIS_CONN_STRING") == "" {
		RedisEnabled = false
		SysLog("REDIS_CONN_STRING not set, Redis is not enabled")
		return nil
	}
	SysLog("Redis is enabled")
	opt, err := redis.ParseURL(os.Getenv("REDIS_CONN_STRING"))
	if err != nil {
		FatalLog("failed to parse Redis connection string: " + err.Error())
	}
	opt.PoolSize = GetEnvOrDefault("REDIS_POOL_SIZE", 10)
	RDB = redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err = RDB.Ping(ctx).Result()
	if err != nil {
		FatalLog("Redis ping test failed: " + err.Error())
	}
	if DebugEnabled {
		SysLog(fmt.Sprintf("Redis connected to %s", opt.Addr))
		SysLog(fmt.Sprintf("Redis database: %d", opt.DB))
	}
	return err
}

func RedisSet(key string, value string, expiration time.Duration) error {
	if DebugEnabled {
		SysLog(fmt.Sprintf("Redis SET: key=%s, value=%s, expiration=%v", key, value, expiration))
	}
	ctx := context.Background()
	return RDB.Set(ctx, key, value, expiration).Err()
}

func RedisGet(key string) (string, error) {
	if DebugEnabled {
		SysLog(fmt.Sprintf("Redis GET: key=%s", key))
	}
	ctx := context.Background()
	val, err := RDB.Get(ctx, key).Result()
	return val, err
}

// RedisSetNX sets key to value only when the key does not exist, returning
// whether the caller obtained it. 锁的基础原语
func RedisSetNX(ctx context.Context, key string, value string, expiration time.Duration) (bool, error) {
	if DebugEnabled {
		SysLog(fmt.Sprintf("Redis SETNX: key=%s, expiration=%v", key, expiration))
	}
	return RDB.SetNX(ctx, key, value, expiration).Result()
}

func RedisExists(ctx context.Context, key string) (bool, error) {
	n, err := RDB.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// RedisEval runs a Lua script. Used by the lock release path for atomic
// compare-and-delete.
func RedisEval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error) {
	if DebugEnabled {
		SysLog(fmt.Sprintf("Redis EVAL: keys=%v", keys))
	}
	return RDB.Eval(ctx, script, keys, args...).Result()
}
