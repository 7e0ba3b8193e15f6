package imagegen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

// 远端异步任务状态
const (
	RemoteStatusSuccess = "Success"
	RemoteStatusFailed  = "Failed"
)

// 轮询默认值
const (
	DefaultPollMaxRetries = 30
	DefaultPollInterval   = 5 * time.Second
)

// QueryResult 一次结果查询的返回
type QueryResult struct {
	Status       string
	ImageURLs    []string
	ErrorMessage string
	Raw          json.RawMessage
}

// ResultQuerier 按远端任务ID查询结果
type ResultQuerier interface {
	QueryResult(ctx context.Context, remoteTaskID string) (*QueryResult, error)
}

// Poller 固定间隔轮询，直到成功、失败或次数耗尽
type Poller struct {
	MaxRetries int
	Interval   time.Duration
	Logger     logrus.FieldLogger

	// 测试可替换
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPoller 创建轮询器
func NewPoller(maxRetries int, interval time.Duration, logger logrus.FieldLogger) *Poller {
	if maxRetries <= 0 {
		maxRetries = DefaultPollMaxRetries
	}
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Poller{
		MaxRetries: maxRetries,
		Interval:   interval,
		Logger:     logger,
		sleep:      sleepContext,
	}
}

// Poll 查询 MaxRetries 次。网络错误消耗一次重试机会，其他错误立即返回
func (p *Poller) Poll(ctx context.Context, q ResultQuerier, remoteTaskID string) (*QueryResult, error) {
	const op = "poll"

	sleep := p.sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for i := 0; i < p.MaxRetries; i++ {
		if i > 0 {
			if err := sleep(ctx, p.Interval); err != nil {
				return nil, requestFailed(op, err)
			}
		}

		result, err := q.QueryResult(ctx, remoteTaskID)
		if err != nil {
			if !errors.Is(err, ErrRequestFailed) {
				return nil, err
			}
			lastErr = err
			p.Logger.WithError(err).WithFields(logrus.Fields{
				"remote_task_id": remoteTaskID,
				"attempt":        i + 1,
			}).Warn("查询任务结果失败")
			continue
		}

		switch result.Status {
		case RemoteStatusSuccess:
			return result, nil
		case RemoteStatusFailed:
			msg := result.ErrorMessage
			if msg == "" {
				msg = "Unknown error"
			}
			return result, &APIError{Kind: ErrTaskFailed, Op: op, Message: msg}
		}

		p.Logger.WithFields(logrus.Fields{
			"remote_task_id": remoteTaskID,
			"status":         result.Status,
			"attempt":        fmt.Sprintf("%d/%d", i+1, p.MaxRetries),
		}).Debug("轮询任务状态中")
	}

	msg := fmt.Sprintf("任务轮询超时 (%d次)", p.MaxRetries)
	if lastErr != nil {
		// 只保留文本，避免 errors.Is 同时命中 ErrRequestFailed
		msg += ", last error: " + lastErr.Error()
	}
	return nil, &APIError{Kind: ErrTimeout, Op: op, Message: msg}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
