package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// 签名协议默认值
const (
	DefaultVisualHost     = "visual.volcengineapi.com"
	DefaultVisualRegion   = "cn-north-1"
	DefaultVisualService  = "cv"
	DefaultVisualEndpoint = "https://visual.volcengineapi.com"
	DefaultVisualTimeout  = 30 * time.Second

	visualAPIVersion   = "2022-08-31"
	visualReqKey       = "jimeng_t2i_v40"
	actionSubmitTask   = "CVSync2AsyncSubmitTask"
	actionGetResult    = "CVSync2AsyncGetResult"
	maxVisualImageURLs = 10
	maxVisualPromptLen = 800
	defaultVisualScale = 0.5
)

// 面积档位
var visualSizeAreas = map[string]int{
	"1K": 1048576,
	"2K": 4194304,
	"4K": 16777216,
}

// VisualClient 签名协议的异步图生图客户端：提交任务后轮询结果
type VisualClient struct {
	client   *http.Client
	signer   *Signer
	endpoint string
	poller   *Poller
	now      func() time.Time
}

// VisualOptions 客户端配置
type VisualOptions struct {
	AccessKey    string
	SecretKey    string
	Host         string
	Region       string
	Service      string
	Endpoint     string
	Timeout      time.Duration
	PollInterval time.Duration
	MaxRetries   int
	Poller       *Poller
}

// SubmitRequest 提交任务参数
type SubmitRequest struct {
	ImageURLs   []string
	Prompt      string
	Size        string // 1K/2K/4K 或 WxH
	Scale       float64
	ForceSingle bool
	MinRatio    float64
	MaxRatio    float64
}

// visualSubmitBody 提交请求体
type visualSubmitBody struct {
	ReqKey      string   `json:"req_key"`
	Prompt      string   `json:"prompt"`
	ImageURLs   []string `json:"image_urls"`
	Scale       float64  `json:"scale"`
	ForceSingle bool     `json:"force_single"`
	MinRatio    float64  `json:"min_ratio"`
	MaxRatio    float64  `json:"max_ratio"`
	Size        int      `json:"size,omitempty"`
	Width       int      `json:"width,omitempty"`
	Height      int      `json:"height,omitempty"`
}

// visualResponse 提交/查询共用响应
type visualResponse struct {
	TaskID string `json:"TaskId"`
	Result *struct {
		Status       string   `json:"Status"`
		Data         []string `json:"Data"`
		ErrorMessage string   `json:"ErrorMessage"`
	} `json:"Result"`
	ResponseMetadata *struct {
		Error *struct {
			Code    string `json:"Code"`
			Message string `json:"Message"`
		} `json:"Error"`
	} `json:"ResponseMetadata"`
}

// NewVisualClient 创建签名协议客户端
func NewVisualClient(opts VisualOptions) *VisualClient {
	if opts.Host == "" {
		opts.Host = DefaultVisualHost
	}
	if opts.Region == "" {
		opts.Region = DefaultVisualRegion
	}
	if opts.Service == "" {
		opts.Service = DefaultVisualService
	}
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultVisualEndpoint
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultVisualTimeout
	}
	poller := opts.Poller
	if poller == nil {
		poller = NewPoller(opts.MaxRetries, opts.PollInterval, nil)
	}
	return &VisualClient{
		client: &http.Client{Timeout: opts.Timeout},
		signer: &Signer{
			AccessKey: opts.AccessKey,
			SecretKey: opts.SecretKey,
			Region:    opts.Region,
			Service:   opts.Service,
			Host:      opts.Host,
		},
		endpoint: strings.TrimRight(opts.Endpoint, "/"),
		poller:   poller,
		now:      time.Now,
	}
}

// Name 后端名称
func (c *VisualClient) Name() string {
	return "visual"
}

// AcceptsInlineImage 签名协议只接受图片URL
func (c *VisualClient) AcceptsInlineImage() bool {
	return false
}

// MaxPromptLength 签名协议的提示词长度上限
func (c *VisualClient) MaxPromptLength() int {
	return maxVisualPromptLen
}

// Generate 提交一个单图任务并轮询至结束
func (c *VisualClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	const op = "visual.generate"

	if req.Source.URL == "" {
		return nil, invalidInput(op, "签名协议只支持图片URL")
	}

	strength := defaultVisualScale
	if req.Strength != nil {
		strength = *req.Strength
	}
	remoteTaskID, err := c.Submit(ctx, &SubmitRequest{
		ImageURLs:   []string{req.Source.URL},
		Prompt:      req.Prompt,
		Size:        req.Size,
		Scale:       strength,
		ForceSingle: true,
	})
	if err != nil {
		return nil, err
	}

	result, err := c.poller.Poll(ctx, c, remoteTaskID)
	if err != nil {
		return nil, err
	}
	return &GenerateResult{ImageURLs: result.ImageURLs, Raw: result.Raw}, nil
}

// Submit 提交异步任务，返回远端任务ID
func (c *VisualClient) Submit(ctx context.Context, req *SubmitRequest) (string, error) {
	const op = "visual.submit"

	if len(req.ImageURLs) == 0 {
		return "", invalidInput(op, "image_urls必须是非空列表")
	}
	if len(req.ImageURLs) > maxVisualImageURLs {
		return "", invalidInput(op, fmt.Sprintf("image_urls最多支持%d张图片", maxVisualImageURLs))
	}
	if req.Prompt == "" || utf8.RuneCountInString(req.Prompt) > maxVisualPromptLen {
		return "", invalidInput(op, fmt.Sprintf("prompt必须非空且长度不超过%d字符", maxVisualPromptLen))
	}

	body := visualSubmitBody{
		ReqKey:      visualReqKey,
		Prompt:      req.Prompt,
		ImageURLs:   req.ImageURLs,
		Scale:       req.Scale,
		ForceSingle: req.ForceSingle,
		MinRatio:    req.MinRatio,
		MaxRatio:    req.MaxRatio,
	}
	if body.MinRatio <= 0 {
		body.MinRatio = 1.0 / 3
	}
	if body.MaxRatio <= 0 {
		body.MaxRatio = 3
	}
	if req.Size != "" {
		area, width, height, err := ParseVisualSize(req.Size)
		if err != nil {
			return "", invalidInput(op, err.Error())
		}
		body.Size, body.Width, body.Height = area, width, height
	}

	resp, _, err := c.call(ctx, op, actionSubmitTask, body)
	if err != nil {
		return "", err
	}
	if resp.TaskID == "" {
		return "", malformed(op, fmt.Errorf("响应缺少TaskId"))
	}
	return resp.TaskID, nil
}

// QueryResult 查询任务结果，实现 ResultQuerier
func (c *VisualClient) QueryResult(ctx context.Context, remoteTaskID string) (*QueryResult, error) {
	const op = "visual.query"

	resp, raw, err := c.call(ctx, op, actionGetResult, map[string]string{"task_id": remoteTaskID})
	if err != nil {
		return nil, err
	}
	result := &QueryResult{Raw: raw}
	if resp.Result != nil {
		result.Status = resp.Result.Status
		result.ImageURLs = resp.Result.Data
		result.ErrorMessage = resp.Result.ErrorMessage
	}
	return result, nil
}

func (c *VisualClient) call(ctx context.Context, op, action string, payload interface{}) (*visualResponse, json.RawMessage, error) {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, invalidInput(op, fmt.Sprintf("序列化请求失败: %v", err))
	}

	query := FormatQuery(map[string]string{
		"Action":  action,
		"Version": visualAPIVersion,
	})
	headers := c.signer.Sign(http.MethodPost, query, jsonBody, c.now())

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"?"+query, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, nil, requestFailed(op, fmt.Errorf("创建请求失败: %w", err))
	}
	httpReq.Header.Set("X-Date", headers.XDate)
	httpReq.Header.Set("Authorization", headers.Authorization)
	httpReq.Header.Set("X-Content-Sha256", headers.ContentSha256)
	httpReq.Header.Set("Content-Type", headers.ContentType)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, nil, requestFailed(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, requestFailed(op, fmt.Errorf("读取响应失败: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil, httpStatus(op, resp.StatusCode, body)
	}

	var result visualResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, nil, malformed(op, err)
	}
	if result.ResponseMetadata != nil && result.ResponseMetadata.Error != nil {
		e := result.ResponseMetadata.Error
		return nil, nil, &APIError{Kind: ErrTaskFailed, Op: op, Message: e.Code + ": " + e.Message}
	}
	return &result, json.RawMessage(body), nil
}

// ParseVisualSize 将 1K/2K/4K 转为面积，WxH 转为宽高
func ParseVisualSize(size string) (area, width, height int, err error) {
	if a, ok := visualSizeAreas[strings.ToUpper(size)]; ok {
		return a, 0, 0, nil
	}
	parts := strings.Split(strings.ToLower(size), "x")
	if len(parts) == 2 {
		w, werr := strconv.Atoi(strings.TrimSpace(parts[0]))
		h, herr := strconv.Atoi(strings.TrimSpace(parts[1]))
		if werr == nil && herr == nil && w > 0 && h > 0 {
			return 0, w, h, nil
		}
	}
	return 0, 0, 0, fmt.Errorf("不支持的尺寸: %s", size)
}
