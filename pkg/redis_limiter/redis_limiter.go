package redis_limiter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

// ErrLimitReached 槽位已满
var ErrLimitReached = errors.New("并发限制已达到上限")

// 计数未达上限时加一并续期，否则返回上限+1
var acquireScript = redis.NewScript(`local current = redis.call('GET', KEYS[1])
if current == false then
	current = 0
else
	current = tonumber(current)
end

if current >= tonumber(ARGV[1]) then
	return current + 1
end

local newCount = redis.call('INCR', KEYS[1])
redis.call('EXPIRE', KEYS[1], tonumber(ARGV[2]))
return newCount`)

// 计数减一，归零时删除key
var releaseScript = redis.NewScript(`local count = redis.call('DECR', KEYS[1])
if tonumber(count) <= 0 then
	redis.call('DEL', KEYS[1])
	return 0
else
	redis.call('EXPIRE', KEYS[1], tonumber(ARGV[1]))
	return count
end`)

// RedisLimiter 基于Redis的按模型并发限制器，多个进程共享同一计数
type RedisLimiter struct {
	client        *redis.Client
	maxConcurrent int
	keyPrefix     string
	ttl           time.Duration
	maxWait       time.Duration
	logger        logrus.FieldLogger

	// 退避区间
	minBackoff time.Duration
	maxBackoff time.Duration
}

// Options 限制器配置
type Options struct {
	MaxConcurrent int
	KeyPrefix     string
	TTL           time.Duration // 计数key的过期时间，防止进程崩溃后槽位泄漏
	MaxWait       time.Duration // Acquire 的最长等待时间
	Logger        logrus.FieldLogger
}

// NewRedisLimiter 创建基于Redis的并发限制器
func NewRedisLimiter(client *redis.Client, opts Options) *RedisLimiter {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 5
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "model_limit:"
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Hour
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &RedisLimiter{
		client:        client,
		maxConcurrent: opts.MaxConcurrent,
		keyPrefix:     opts.KeyPrefix,
		ttl:           opts.TTL,
		maxWait:       opts.MaxWait,
		logger:        opts.Logger,
		minBackoff:    500 * time.Millisecond,
		maxBackoff:    5 * time.Second,
	}
}

// TryAcquire 尝试获取一次槽位，槽位已满时返回 ErrLimitReached
func (rl *RedisLimiter) TryAcquire(ctx context.Context, key string) error {
	redisKey := rl.keyPrefix + key

	result, err := acquireScript.Run(ctx, rl.client, []string{redisKey}, rl.maxConcurrent, int(rl.ttl.Seconds())).Int()
	if err != nil {
		return fmt.Errorf("执行Lua脚本失败: %w", err)
	}

	if result > rl.maxConcurrent {
		return fmt.Errorf("%w: %d", ErrLimitReached, rl.maxConcurrent)
	}

	rl.logger.WithFields(logrus.Fields{
		"model":   key,
		"current": result,
		"max":     rl.maxConcurrent,
	}).Debug("[RedisLimiter] 成功获取槽位")
	return nil
}

// Acquire 获取槽位，槽位已满时指数退避重试，直到超过最大等待时间
func (rl *RedisLimiter) Acquire(ctx context.Context, key string) error {
	start := time.Now()
	retryInterval := rl.minBackoff

	for {
		err := rl.TryAcquire(ctx, key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrLimitReached) {
			return err
		}

		elapsed := time.Since(start)
		if elapsed+retryInterval > rl.maxWait {
			return fmt.Errorf("获取模型令牌超时: 已等待 %v, 超过最大等待时间 %v: %w", elapsed.Round(time.Millisecond), rl.maxWait, err)
		}

		rl.logger.WithFields(logrus.Fields{
			"model":   key,
			"waited":  elapsed.Round(time.Millisecond).String(),
			"max":     rl.maxConcurrent,
			"backoff": retryInterval.String(),
		}).Info("[RedisLimiter] 模型服务繁忙, 等待重试")

		timer := time.NewTimer(retryInterval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("上下文已取消: %w", ctx.Err())
		}

		retryInterval *= 2
		if retryInterval > rl.maxBackoff {
			retryInterval = rl.maxBackoff
		}
	}
}

// Release 释放并发槽位
func (rl *RedisLimiter) Release(ctx context.Context, key string) {
	redisKey := rl.keyPrefix + key

	remaining, err := releaseScript.Run(ctx, rl.client, []string{redisKey}, int(rl.ttl.Seconds())).Int()
	if err != nil {
		rl.logger.WithError(err).WithField("model", key).Error("[RedisLimiter] 释放槽位失败")
		return
	}

	rl.logger.WithFields(logrus.Fields{
		"model":     key,
		"remaining": remaining,
	}).Debug("[RedisLimiter] 成功释放槽位")
}

// GetCurrent 获取当前并发数
func (rl *RedisLimiter) GetCurrent(ctx context.Context, key string) (int, error) {
	current, err := rl.client.Get(ctx, rl.keyPrefix+key).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("获取当前并发数失败: %w", err)
	}
	return current, nil
}
