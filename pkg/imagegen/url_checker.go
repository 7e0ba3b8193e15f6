package imagegen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
)

// URLChecker 源图片URL健康检查，结果短时间缓存
type URLChecker struct {
	client *http.Client
	cache  *lru.Cache[string, urlCheckEntry]
	ttl    time.Duration
	logger logrus.FieldLogger
	now    func() time.Time
}

type urlCheckEntry struct {
	err       error
	checkedAt time.Time
}

// URLCheckerOptions 检查器配置
type URLCheckerOptions struct {
	Timeout   time.Duration
	CacheSize int
	TTL       time.Duration
	Logger    logrus.FieldLogger
}

// NewURLChecker 创建URL检查器
func NewURLChecker(opts URLCheckerOptions) *URLChecker {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = 256
	}
	if opts.TTL <= 0 {
		opts.TTL = time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	// size > 0 时 lru.New 不会返回错误
	cache, _ := lru.New[string, urlCheckEntry](opts.CacheSize)
	return &URLChecker{
		client: &http.Client{Timeout: opts.Timeout},
		cache:  cache,
		ttl:    opts.TTL,
		logger: opts.Logger,
		now:    time.Now,
	}
}

// Check 对URL发送HEAD请求，2xx视为可用；非图片Content-Type只记录警告
func (u *URLChecker) Check(ctx context.Context, rawURL string) error {
	const op = "url.check"

	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return invalidInput(op, "URL必须以http://或https://开头")
	}

	entry, ok := u.cache.Get(rawURL)
	if ok && u.now().Sub(entry.checkedAt) < u.ttl {
		return entry.err
	}

	err := u.head(ctx, rawURL)

	// 网络错误不缓存，下次重新检查
	if err == nil || !errors.Is(err, ErrRequestFailed) {
		u.cache.Add(rawURL, urlCheckEntry{err: err, checkedAt: u.now()})
	}
	return err
}

func (u *URLChecker) head(ctx context.Context, rawURL string) error {
	const op = "url.check"

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, rawURL, nil)
	if err != nil {
		return invalidInput(op, fmt.Sprintf("无效的URL: %v", err))
	}
	resp, err := u.client.Do(req)
	if err != nil {
		return requestFailed(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return httpStatus(op, resp.StatusCode, nil)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		u.logger.WithFields(logrus.Fields{
			"url":          rawURL,
			"content_type": contentType,
		}).Warn("URL可能不是图片")
	}
	return nil
}
