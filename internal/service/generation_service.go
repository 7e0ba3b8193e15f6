package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"gallery-go/internal/dto"
	"gallery-go/internal/models"
	"gallery-go/internal/repository"
	"gallery-go/pkg/imagegen"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ErrTaskNotFound 任务不存在
var ErrTaskNotFound = errors.New("任务不存在")

const (
	recentResultsLimit = 10
	failedTaskMessage  = "所有图片生成均失败"
)

// Limiter 按模型限制并发，imagegen.ConcurrencyLimiter 与 redis_limiter.RedisLimiter 都满足
type Limiter interface {
	Acquire(ctx context.Context, key string) error
	Release(ctx context.Context, key string)
}

// SourceChecker 生成前检查源图片URL
type SourceChecker interface {
	Check(ctx context.Context, rawURL string) error
}

// GenerationService 图生图任务编排：校验、建任务、逐次生成、收尾
type GenerationService struct {
	repo      *repository.GenerationRepository
	backend   imagegen.Backend
	validator *GenerationValidator
	checker   SourceChecker
	limiter   Limiter
	progress  ProgressTracker
	logger    logrus.FieldLogger

	now       func() time.Time
	newTaskID func() string
}

// NewGenerationService 创建生成服务，checker 为 nil 时跳过源图片检查
func NewGenerationService(
	repo *repository.GenerationRepository,
	backend imagegen.Backend,
	validator *GenerationValidator,
	checker SourceChecker,
	limiter Limiter,
	progress ProgressTracker,
	logger logrus.FieldLogger,
) *GenerationService {
	if progress == nil {
		progress = noopProgressTracker{}
	}
	return &GenerationService{
		repo:      repo,
		backend:   backend,
		validator: validator,
		checker:   checker,
		limiter:   limiter,
		progress:  progress,
		logger:    logger,
		now:       time.Now,
		newTaskID: uuid.NewString,
	}
}

// attemptOutcome 一次生成尝试的结果，ImageURL 与 Err 恰有一个有效
type attemptOutcome struct {
	ImageURL string
	Raw      json.RawMessage
	Err      error
}

// diagnostic 写入任务 api_response 的内容
func (o attemptOutcome) diagnostic() datatypes.JSON {
	if o.Err != nil {
		data, _ := json.Marshal(map[string]string{
			"error": o.Err.Error(),
			"kind":  imagegen.ErrorKind(o.Err),
		})
		return datatypes.JSON(data)
	}
	if len(o.Raw) > 0 && json.Valid(o.Raw) {
		return datatypes.JSON(o.Raw)
	}
	data, _ := json.Marshal(map[string]string{"image_url": o.ImageURL})
	return datatypes.JSON(data)
}

// Generate 处理一次图生图请求。
// 校验失败返回 *ValidationError；生成失败通过响应的 success 字段返回；只有数据库错误作为 error 返回
func (s *GenerationService) Generate(ctx context.Context, req *dto.ImageToImageRequest) (*dto.ImageToImageResponse, error) {
	params, err := s.validator.Validate(req)
	if err != nil {
		return nil, err
	}

	if params.Source.URL != "" && s.checker != nil {
		if err := s.checker.Check(ctx, params.Source.URL); err != nil {
			s.logger.WithError(err).WithField("image_url", params.Source.URL).Warn("[Generate] 源图片检查失败")
			return nil, &ValidationError{Field: "image_url", Reason: "源图片URL无法访问"}
		}
	}

	task := &models.ImageGenerationTask{
		TaskID:    s.newTaskID(),
		Prompt:    params.Prompt,
		Model:     params.Model,
		Size:      params.Size,
		Watermark: params.Watermark,
		Status:    models.TaskStatusPending,
	}
	if params.Source.URL != "" {
		url := params.Source.URL
		task.InputImageURL = &url
	}
	if err := s.repo.CreateTask(task, params.Snapshot()); err != nil {
		return nil, fmt.Errorf("创建生成任务失败: %w", err)
	}

	// 任务行已存在，之后的工作不随请求取消而中断，保证任务一定进入终态
	ctx = context.WithoutCancel(ctx)

	logger := s.logger.WithFields(logrus.Fields{
		"task_id": task.TaskID,
		"backend": s.backend.Name(),
		"model":   params.Model,
	})
	logger.WithField("num_images", params.NumImages).Info("[Generate] 任务开始")
	s.progress.Start(ctx, task.TaskID, params.NumImages)

	summary, err := s.runAttempts(ctx, task, params, logger)
	if err != nil {
		return nil, err
	}
	return s.finalize(ctx, task, params, summary, logger)
}

// attemptSummary 所有尝试的汇总
type attemptSummary struct {
	results []models.GenerationResult
	lastErr error
}

// runAttempts 顺序执行 NumImages 次尝试，单次失败不影响后续尝试。每次尝试立即提交
func (s *GenerationService) runAttempts(ctx context.Context, task *models.ImageGenerationTask, params *GenerationParams, logger logrus.FieldLogger) (*attemptSummary, error) {
	summary := &attemptSummary{}
	for i := 0; i < params.NumImages; i++ {
		outcome := s.attempt(ctx, params)

		var result *models.GenerationResult
		if outcome.Err == nil {
			result = &models.GenerationResult{
				GeneratedImageURL: outcome.ImageURL,
				Model:             params.Model,
			}
		} else {
			summary.lastErr = outcome.Err
			logger.WithError(outcome.Err).WithFields(logrus.Fields{
				"attempt": fmt.Sprintf("%d/%d", i+1, params.NumImages),
				"kind":    imagegen.ErrorKind(outcome.Err),
			}).Warn("[Generate] 生成失败")
		}

		if err := s.repo.RecordAttempt(task.ID, outcome.diagnostic(), result); err != nil {
			return nil, fmt.Errorf("保存生成结果失败: %w", err)
		}
		if result != nil {
			summary.results = append(summary.results, *result)
			logger.WithField("attempt", fmt.Sprintf("%d/%d", i+1, params.NumImages)).Info("[Generate] 生成成功")
		}
		s.progress.Update(ctx, task.TaskID, i+1, len(summary.results))
	}
	return summary, nil
}

// attempt 调用一次后端，只取第一张图片
func (s *GenerationService) attempt(ctx context.Context, params *GenerationParams) attemptOutcome {
	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx, params.Model); err != nil {
			return attemptOutcome{Err: fmt.Errorf("获取模型并发槽位失败: %w", err)}
		}
		defer s.limiter.Release(ctx, params.Model)
	}

	res, err := s.backend.Generate(ctx, params.AttemptRequest())
	if err != nil {
		return attemptOutcome{Err: err}
	}
	for _, u := range res.ImageURLs {
		if u != "" {
			return attemptOutcome{ImageURL: u, Raw: res.Raw}
		}
	}
	return attemptOutcome{Raw: res.Raw, Err: errors.New("响应中没有生成的图片")}
}

// finalize 根据结果数决定终态并提交
func (s *GenerationService) finalize(ctx context.Context, task *models.ImageGenerationTask, params *GenerationParams, summary *attemptSummary, logger logrus.FieldLogger) (*dto.ImageToImageResponse, error) {
	results := summary.results
	status := models.TaskStatusCompleted
	errMsg := ""
	if len(results) == 0 {
		status = models.TaskStatusFailed
		errMsg = failedTaskMessage
	}

	if err := s.repo.Finalize(task.ID, status, errMsg, s.now()); err != nil {
		return nil, fmt.Errorf("更新任务状态失败: %w", err)
	}
	s.progress.Finish(ctx, task.TaskID, status)

	resp := &dto.ImageToImageResponse{
		Success: len(results) > 0,
		TaskID:  task.TaskID,
		Results: make([]dto.GeneratedImage, 0, len(results)),
		Message: fmt.Sprintf("generated %d/%d images", len(results), params.NumImages),
	}
	for _, r := range results {
		resp.Results = append(resp.Results, dto.GeneratedImage{ImageURL: r.GeneratedImageURL, ImageID: r.ID})
	}
	if !resp.Success {
		resp.Error = fmt.Sprintf("all %d generation attempts failed", params.NumImages)
		if kind := imagegen.ErrorKind(summary.lastErr); kind != "" {
			resp.Error += " (last error: " + kind + ")"
		}
	}

	logger.WithFields(logrus.Fields{
		"status":    status,
		"succeeded": len(results),
		"total":     params.NumImages,
	}).Info("[Generate] 任务结束")
	return resp, nil
}

// GetTask 任务详情
func (s *GenerationService) GetTask(taskID string) (*dto.TaskDetailResponse, error) {
	task, err := s.repo.GetTaskByTaskID(taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}

	resp := &dto.TaskDetailResponse{
		TaskID:        task.TaskID,
		Status:        string(task.Status),
		Prompt:        task.Prompt,
		Model:         task.Model,
		Size:          task.Size,
		Watermark:     task.Watermark,
		InputImageURL: task.InputImageURL,
		ErrorMessage:  task.ErrorMessage,
		CreatedAt:     task.CreatedAt,
		CompletedAt:   task.CompletedAt,
		Parameters:    make(map[string]string, len(task.Parameters)),
		Results:       make([]dto.GeneratedImage, 0, len(task.Results)),
	}
	for _, p := range task.Parameters {
		resp.Parameters[p.ParameterName] = p.ParameterValue
	}
	for _, r := range task.Results {
		resp.Results = append(resp.Results, dto.GeneratedImage{ImageURL: r.GeneratedImageURL, ImageID: r.ID})
	}
	return resp, nil
}

// GetProgress 优先读取Redis中的进度，没有时从数据库推算
func (s *GenerationService) GetProgress(ctx context.Context, taskID string) (*dto.TaskProgressResponse, error) {
	p, err := s.progress.Get(ctx, taskID)
	if err != nil {
		s.logger.WithError(err).WithField("task_id", taskID).Warn("[Progress] 读取Redis进度失败，改用数据库")
	}
	if p != nil {
		return &dto.TaskProgressResponse{
			TaskID:    taskID,
			Status:    p.Status,
			Total:     p.Total,
			Attempted: p.Attempted,
			Succeeded: p.Succeeded,
			Source:    "redis",
		}, nil
	}

	task, err := s.repo.GetTaskByTaskID(taskID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}

	resp := &dto.TaskProgressResponse{
		TaskID:    task.TaskID,
		Status:    string(task.Status),
		Succeeded: len(task.Results),
		Source:    "database",
	}
	for _, param := range task.Parameters {
		if param.ParameterName == models.ParamNumImages {
			resp.Total, _ = strconv.Atoi(param.ParameterValue)
		}
	}
	// 数据库不记录失败的尝试，终态时全部尝试都已完成
	if task.Status.IsTerminal() {
		resp.Attempted = resp.Total
	} else {
		resp.Attempted = resp.Succeeded
	}
	return resp, nil
}

// ListRecentResults 最近的生成结果
func (s *GenerationService) ListRecentResults() ([]dto.GenerationResultResponse, error) {
	results, err := s.repo.ListRecentResults(recentResultsLimit)
	if err != nil {
		return nil, fmt.Errorf("查询生成结果失败: %w", err)
	}
	resp := make([]dto.GenerationResultResponse, len(results))
	for i, r := range results {
		resp[i] = dto.GenerationResultResponse{
			ID:               r.ID,
			ImageURL:         r.GeneratedImageURL,
			Model:            r.Model,
			GeneratedImageID: r.GeneratedImageID,
			CreatedAt:        r.CreatedAt,
		}
	}
	return resp, nil
}
