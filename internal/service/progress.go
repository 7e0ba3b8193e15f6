package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"gallery-go/internal/models"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

const progressTTL = 24 * time.Hour

// Progress 任务进度快照
type Progress struct {
	Status    string
	Total     int
	Attempted int
	Succeeded int
}

// ProgressTracker 记录生成任务进度。写入失败只记日志，不影响任务本身
type ProgressTracker interface {
	Start(ctx context.Context, taskID string, total int)
	Update(ctx context.Context, taskID string, attempted, succeeded int)
	Finish(ctx context.Context, taskID string, status models.TaskStatus)
	// Get 没有记录时返回 nil, nil
	Get(ctx context.Context, taskID string) (*Progress, error)
}

// NewProgressTracker Redis未启用时返回空实现
func NewProgressTracker(client *redis.Client, logger logrus.FieldLogger) ProgressTracker {
	if client == nil {
		return noopProgressTracker{}
	}
	return &RedisProgressTracker{client: client, ttl: progressTTL, logger: logger}
}

// RedisProgressTracker 进度写入 generation_progress:<task_id> 哈希
type RedisProgressTracker struct {
	client *redis.Client
	ttl    time.Duration
	logger logrus.FieldLogger
}

func progressKey(taskID string) string {
	return fmt.Sprintf("generation_progress:%s", taskID)
}

func (t *RedisProgressTracker) write(ctx context.Context, taskID string, values map[string]interface{}) {
	key := progressKey(taskID)
	pipe := t.client.Pipeline()
	pipe.HSet(ctx, key, values)
	pipe.Expire(ctx, key, t.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		t.logger.WithError(err).WithField("task_id", taskID).Warn("[Progress] 写入进度失败")
	}
}

// Start 初始化进度
func (t *RedisProgressTracker) Start(ctx context.Context, taskID string, total int) {
	t.write(ctx, taskID, map[string]interface{}{
		"status":    string(models.TaskStatusProcessing),
		"total":     total,
		"attempted": 0,
		"succeeded": 0,
	})
}

// Update 更新尝试数和成功数
func (t *RedisProgressTracker) Update(ctx context.Context, taskID string, attempted, succeeded int) {
	t.write(ctx, taskID, map[string]interface{}{
		"attempted": attempted,
		"succeeded": succeeded,
	})
}

// Finish 写入终态
func (t *RedisProgressTracker) Finish(ctx context.Context, taskID string, status models.TaskStatus) {
	t.write(ctx, taskID, map[string]interface{}{"status": string(status)})
}

// Get 读取进度
func (t *RedisProgressTracker) Get(ctx context.Context, taskID string) (*Progress, error) {
	values, err := t.client.HGetAll(ctx, progressKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("读取进度失败: %w", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	atoi := func(s string) int {
		n, _ := strconv.Atoi(s)
		return n
	}
	return &Progress{
		Status:    values["status"],
		Total:     atoi(values["total"]),
		Attempted: atoi(values["attempted"]),
		Succeeded: atoi(values["succeeded"]),
	}, nil
}

type noopProgressTracker struct{}

func (noopProgressTracker) Start(context.Context, string, int)                {}
func (noopProgressTracker) Update(context.Context, string, int, int)          {}
func (noopProgressTracker) Finish(context.Context, string, models.TaskStatus) {}
func (noopProgressTracker) Get(context.Context, string) (*Progress, error)    { return nil, nil }
