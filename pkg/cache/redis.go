package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"tradeflow/conf"
	"tradeflow/pkg/utils"
)

var redisClient *redis.Client

// NewRedis 按配置创建客户端并检查连通性
func NewRedis(ctx context.Context, redisCfg conf.RedisConfig) (*redis.Client, error) {
	c := redis.NewClient(&redis.Options{
		DB:              redisCfg.Db,
		Addr:            redisCfg.Addr,
		Password:        redisCfg.Password,
		PoolSize:        redisCfg.PoolSize,
		MinIdleConns:    redisCfg.MinIdleConns,
		ConnMaxIdleTime: time.Duration(redisCfg.IdleTimeout) * time.Second,
	})
	// 启动时 redis 可能还没就绪，重试几次
	err := utils.Retry(ctx, 3, 200*time.Millisecond, true, func() error {
		return c.Ping(ctx).Err()
	})
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// InitRedis 初始化全局 redisClient
func InitRedis(ctx context.Context, redisCfg conf.RedisConfig) error {
	c, err := NewRedis(ctx, redisCfg)
	if err != nil {
		return err
	}
	redisClient = c
	return nil
}

func GetRedisClient() *redis.Client {
	if nil == redisClient {
		panic("Please initialize the Redis client first!")
	}
	return redisClient
}

// 关闭redis client
func CloseRedis() {
	if nil != redisClient {
		_ = redisClient.Close()
	}
}
