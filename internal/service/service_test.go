package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"sync"
	"testing"

	"gallery-go/internal/config"
	"gallery-go/internal/models"
	"gallery-go/internal/repository"
	"gallery-go/pkg/blobstore"
	"gallery-go/pkg/imagegen"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testModel = "doubao-seedream-4-0-250828"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testGenerationConfig() *config.GenerationConfig {
	return &config.GenerationConfig{
		Backend:          "ark",
		DefaultModel:     testModel,
		AllowedModels:    []string{testModel, "doubao-seededit-3-0-i2i-250628"},
		DefaultSize:      "2K",
		MaxImagesPerTask: 10,
	}
}

// fakeOutcome 假后端单次调用的结果
type fakeOutcome struct {
	url    string
	err    error
	panics bool
	hook   func()
}

// fakeBackend 按顺序返回预设结果的生成后端
type fakeBackend struct {
	mu       sync.Mutex
	outcomes []fakeOutcome
	calls     []*imagegen.GenerateRequest
	inline    bool
	maxPrompt int
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) AcceptsInlineImage() bool { return b.inline }

func (b *fakeBackend) MaxPromptLength() int { return b.maxPrompt }

func (b *fakeBackend) Generate(ctx context.Context, req *imagegen.GenerateRequest) (*imagegen.GenerateResult, error) {
	b.mu.Lock()
	b.calls = append(b.calls, req)
	n := len(b.calls) - 1
	b.mu.Unlock()

	if n >= len(b.outcomes) {
		return nil, &imagegen.APIError{Kind: imagegen.ErrRequestFailed, Op: "fake", Err: errors.New("no outcome")}
	}
	o := b.outcomes[n]
	if o.hook != nil {
		o.hook()
	}
	if o.panics {
		panic("simulated crash")
	}
	if o.err != nil {
		return nil, o.err
	}
	raw := []byte(fmt.Sprintf(`{"data":[{"url":%q}]}`, o.url))
	return &imagegen.GenerateResult{ImageURLs: []string{o.url}, Raw: raw}, nil
}

func (b *fakeBackend) callCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.calls)
}

// fakeChecker 记录检查次数
type fakeChecker struct {
	err   error
	calls int
}

func (c *fakeChecker) Check(ctx context.Context, rawURL string) error {
	c.calls++
	return c.err
}

// fakeStore 内存对象存储
type fakeStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	deleteErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) PutPhoto(ctx context.Context, filename string, content []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[blobstore.PhotoPrefix+filename] = content
	return "https://cdn.test/" + blobstore.PhotoPrefix + filename, nil
}

func (s *fakeStore) PutThumbnail(ctx context.Context, filename string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[blobstore.ThumbnailPrefix+filename] = content
	return "https://cdn.test/" + blobstore.ThumbnailPrefix + filename, nil
}

func (s *fakeStore) DeleteFiles(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	delete(s.objects, blobstore.PhotoPrefix+filename)
	delete(s.objects, blobstore.ThumbnailPrefix+filename)
	return nil
}

func (s *fakeStore) has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[key]
	return ok
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// testPNG 生成一张指定尺寸的PNG
func testPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestPhotoService(t *testing.T, db *gorm.DB, store blobstore.Store) *PhotoService {
	t.Helper()
	return NewPhotoService(
		repository.NewPhotoRepository(db),
		repository.NewTagRepository(db),
		store,
		config.UploadConfig{
			MaxFileSizeMB:     1,
			AllowedExtensions: []string{"png", "jpg", "jpeg", "gif", "bmp", "webp"},
			ThumbnailSize:     400,
		},
		testLogger(),
	)
}
