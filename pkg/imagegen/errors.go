package imagegen

import (
	"errors"
	"fmt"
)

// 错误类别，调用方通过 errors.Is 判断
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrRequestFailed     = errors.New("request failed")
	ErrHTTPStatus        = errors.New("unexpected http status")
	ErrMalformedResponse = errors.New("malformed response")
	ErrTaskFailed        = errors.New("task failed")
	ErrTimeout           = errors.New("task polling timeout")
)

// APIError 生成服务调用错误
type APIError struct {
	Kind       error  // 上面的错误类别之一
	Op         string // 出错的操作，如 "ark.generate"
	StatusCode int    // 仅 ErrHTTPStatus 时有效
	Body       string // 非2xx响应的原始内容，用于诊断
	Message    string // 远端返回的错误信息
	Err        error  // 底层错误
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Kind)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status=%d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Body != "" {
		msg += ", body=" + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is 使 errors.Is(err, ErrTimeout) 等判断可用
func (e *APIError) Is(target error) bool {
	return target == e.Kind
}

func (e *APIError) Unwrap() error {
	return e.Err
}

func invalidInput(op, message string) error {
	return &APIError{Kind: ErrInvalidInput, Op: op, Message: message}
}

func requestFailed(op string, err error) error {
	return &APIError{Kind: ErrRequestFailed, Op: op, Err: err}
}

func httpStatus(op string, status int, body []byte) error {
	return &APIError{Kind: ErrHTTPStatus, Op: op, StatusCode: status, Body: truncate(string(body), 2000)}
}

func malformed(op string, err error) error {
	return &APIError{Kind: ErrMalformedResponse, Op: op, Err: err}
}

// ErrorKind 返回错误类别的名称，便于日志和诊断字段记录
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrRequestFailed):
		return "request_failed"
	case errors.Is(err, ErrHTTPStatus):
		return "http_status"
	case errors.Is(err, ErrMalformedResponse):
		return "malformed_response"
	case errors.Is(err, ErrTaskFailed):
		return "task_failed"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "unknown"
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
