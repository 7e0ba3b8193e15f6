package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultArkURL 方舟图片生成接口
	DefaultArkURL = "https://ark.cn-beijing.volces.com/api/v3/images/generations"
	// 图生图耗时较长
	DefaultArkTimeout = 120 * time.Second
)

// ArkClient Bearer Token 协议的同步图生图客户端
type ArkClient struct {
	client *http.Client
	apiURL string
	apiKey string
}

// ArkOptions 客户端配置
type ArkOptions struct {
	APIURL  string
	APIKey  string
	Timeout time.Duration
}

// arkPayload 请求体
type arkPayload struct {
	Model                     string   `json:"model"`
	Prompt                    string   `json:"prompt"`
	Image                     string   `json:"image"`
	SequentialImageGeneration string   `json:"sequential_image_generation"`
	ResponseFormat            string   `json:"response_format"`
	Size                      string   `json:"size"`
	Stream                    bool     `json:"stream"`
	Watermark                 bool     `json:"watermark"`
	Steps                     int      `json:"steps,omitempty"`
	Strength                  *float64 `json:"strength,omitempty"`
	NegativePrompt            string   `json:"negative_prompt,omitempty"`
}

// ArkResponse 接口响应
type ArkResponse struct {
	Model   string `json:"model"`
	Created int64  `json:"created"`
	Data    []struct {
		URL  string `json:"url"`
		Size string `json:"size"`
	} `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// NewArkClient 创建方舟客户端
func NewArkClient(opts ArkOptions) *ArkClient {
	if opts.APIURL == "" {
		opts.APIURL = DefaultArkURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultArkTimeout
	}
	return &ArkClient{
		client: &http.Client{
			Timeout: opts.Timeout,
		},
		apiURL: opts.APIURL,
		apiKey: opts.APIKey,
	}
}

// Name 后端名称
func (c *ArkClient) Name() string {
	return "ark"
}

// AcceptsInlineImage 方舟接口同时接受URL和base64
func (c *ArkClient) AcceptsInlineImage() bool {
	return true
}

// Generate 调用一次图生图接口
func (c *ArkClient) Generate(ctx context.Context, req *GenerateRequest) (*GenerateResult, error) {
	const op = "ark.generate"

	image := req.Source.URL
	if image == "" {
		image = req.Source.Base64
	}
	if image == "" || req.Prompt == "" {
		return nil, invalidInput(op, "图片和提示词不能为空")
	}
	if req.Source.URL != "" && req.Source.Base64 != "" {
		return nil, invalidInput(op, "image_url和image_base64不能同时提供")
	}

	payload := arkPayload{
		Model:                     req.Model,
		Prompt:                    req.Prompt,
		Image:                     image,
		SequentialImageGeneration: "disabled",
		ResponseFormat:            "url",
		Size:                      req.Size,
		Stream:                    req.Stream,
		Watermark:                 req.Watermark,
		Steps:                     req.Steps,
		Strength:                  req.Strength,
		NegativePrompt:            req.NegativePrompt,
	}

	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return nil, invalidInput(op, fmt.Sprintf("序列化请求失败: %v", err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, requestFailed(op, fmt.Errorf("创建请求失败: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, requestFailed(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, requestFailed(op, fmt.Errorf("读取响应失败: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpStatus(op, resp.StatusCode, body)
	}

	var result ArkResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, malformed(op, err)
	}
	if result.Error != nil {
		return nil, &APIError{Kind: ErrTaskFailed, Op: op, Message: result.Error.Code + ": " + result.Error.Message}
	}

	urls := make([]string, 0, len(result.Data))
	for _, d := range result.Data {
		if d.URL != "" {
			urls = append(urls, d.URL)
		}
	}

	return &GenerateResult{ImageURLs: urls, Raw: json.RawMessage(body)}, nil
}
