package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"gallery-go/internal/config"
	"gallery-go/internal/models"
	"gallery-go/pkg/imagegen"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testModel = "doubao-seedream-4-0-250828"

type memoryStore struct {
	mu      sync.Mutex
	objects map[string]int
}

func (s *memoryStore) PutPhoto(ctx context.Context, filename string, content []byte, contentType string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects["photos/"+filename] = len(content)
	return "https://cdn.test/photos/" + filename, nil
}

func (s *memoryStore) PutThumbnail(ctx context.Context, filename string, content []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects["thumbnails/"+filename] = len(content)
	return "https://cdn.test/thumbnails/" + filename, nil
}

func (s *memoryStore) DeleteFiles(ctx context.Context, filename string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, "photos/"+filename)
	delete(s.objects, "thumbnails/"+filename)
	return nil
}

type testServer struct {
	engine  *gin.Engine
	db      *gorm.DB
	store   *memoryStore
	source  *httptest.Server
	arkHits int32
}

// newTestServer 方舟接口第一次调用成功，之后返回500
func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := models.InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, _ := db.DB()
	t.Cleanup(func() { sqlDB.Close() })

	ts := &testServer{db: db, store: &memoryStore{objects: make(map[string]int)}}

	ts.source = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
	}))
	t.Cleanup(ts.source.Close)

	ark := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&ts.arkHits, 1) == 1 {
			w.Write([]byte(`{"data":[{"url":"https://cdn/out-1.png"}]}`))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"code":"InternalServiceError","message":"boom"}}`))
	}))
	t.Cleanup(ark.Close)

	logger, _ := test.NewNullLogger()
	checker := imagegen.NewURLChecker(imagegen.URLCheckerOptions{Logger: logger})
	cfg := &config.Config{
		Generation: config.GenerationConfig{
			Backend:          "ark",
			DefaultModel:     testModel,
			AllowedModels:    []string{testModel},
			DefaultSize:      "2K",
			MaxImagesPerTask: 10,
		},
		Upload: config.UploadConfig{
			MaxFileSizeMB:     1,
			AllowedExtensions: []string{"png", "jpg"},
			ThumbnailSize:     400,
		},
	}
	ts.engine = SetupRouter(cfg, logger, &Dependencies{
		DB:      db,
		Store:   ts.store,
		Backend: imagegen.NewArkClient(imagegen.ArkOptions{APIURL: ark.URL, APIKey: "k"}),
		Checker: checker,
		Limiter: imagegen.NewConcurrencyLimiter(2),
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)

	var out map[string]interface{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w, out
}

func TestImageToImageEndToEnd(t *testing.T) {
	ts := newTestServer(t)

	w, body := ts.do(t, http.MethodPost, "/api/image-to-image", map[string]interface{}{
		"image_url":  ts.source.URL + "/y.jpg",
		"prompt":     "p",
		"num_images": 2,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "generated 1/2 images", body["message"])
	results := body["results"].([]interface{})
	require.Len(t, results, 1)
	assert.Equal(t, "https://cdn/out-1.png", results[0].(map[string]interface{})["image_url"])
	assert.EqualValues(t, 2, atomic.LoadInt32(&ts.arkHits))

	taskID := body["task_id"].(string)
	w, detail := ts.do(t, http.MethodGet, "/api/image-to-image/tasks/"+taskID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := detail["data"].(map[string]interface{})
	assert.Equal(t, "completed", data["status"])

	w, progress := ts.do(t, http.MethodGet, "/api/image-to-image/tasks/"+taskID+"/progress", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "database", progress["data"].(map[string]interface{})["source"])

	w, list := ts.do(t, http.MethodGet, "/api/generated-images", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list["data"], 1)
}

func TestImageToImageTotalFailureIsStillOK(t *testing.T) {
	ts := newTestServer(t)
	atomic.StoreInt32(&ts.arkHits, 1)

	w, body := ts.do(t, http.MethodPost, "/api/image-to-image", map[string]interface{}{
		"image_base64": "aGVsbG8=",
		"prompt":       "p",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "generated 0/1 images", body["message"])
	assert.Contains(t, body["error"], "http_status")
	assert.NotContains(t, body["error"], "boom")
}

func TestImageToImageValidation(t *testing.T) {
	ts := newTestServer(t)

	cases := map[string]interface{}{
		"both sources":  map[string]interface{}{"image_url": "https://x/y.jpg", "image_base64": "aGk=", "prompt": "p"},
		"no source":     map[string]interface{}{"prompt": "p"},
		"invalid model": map[string]interface{}{"image_url": "https://x/y.jpg", "prompt": "p", "model": "other"},
		"bad source":    map[string]interface{}{"image_url": "ftp://x/y.jpg", "prompt": "p"},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			w, body := ts.do(t, http.MethodPost, "/api/image-to-image", payload)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, false, body["success"])
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.Zero(t, atomic.LoadInt32(&ts.arkHits))

	req := httptest.NewRequest(http.MethodPost, "/api/image-to-image", bytes.NewBufferString("{not json"))
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTaskNotFound(t *testing.T) {
	ts := newTestServer(t)
	w, _ := ts.do(t, http.MethodGet, "/api/image-to-image/tasks/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 10))
	for x := 0; x < 20; x++ {
		img.Set(x, 5, color.Black)
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadAndCatalog(t *testing.T) {
	ts := newTestServer(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("files", "cat.png")
	require.NoError(t, err)
	part.Write(pngBytes(t))
	part, err = mw.CreateFormFile("files", "notes.txt")
	require.NoError(t, err)
	part.Write([]byte("hello"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	ts.engine.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var upload struct {
		Data struct {
			Success bool           `json:"success"`
			Count   int            `json:"count"`
			Photos  []models.Photo `json:"photos"`
			Errors  []string       `json:"errors"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &upload))
	assert.True(t, upload.Data.Success)
	assert.Equal(t, 1, upload.Data.Count)
	require.Len(t, upload.Data.Errors, 1)
	assert.Contains(t, upload.Data.Errors[0], "notes.txt")
	photoID := upload.Data.Photos[0].ID

	w, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/api/photos/%d/tags", photoID), []string{"cat", "cute"})
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = ts.do(t, http.MethodPost, fmt.Sprintf("/api/photos/%d/tags", photoID), map[string][]string{"tags": {"pet"}})
	require.Equal(t, http.StatusOK, w.Code)

	w, tags := ts.do(t, http.MethodGet, "/api/tags", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, tags["data"], 3)

	w, photo := ts.do(t, http.MethodGet, fmt.Sprintf("/api/photos/%d", photoID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, photo["data"].(map[string]interface{})["view_count"])

	w, _ = ts.do(t, http.MethodPut, fmt.Sprintf("/api/photos/%d", photoID), map[string]interface{}{"title": "Kitty"})
	require.Equal(t, http.StatusOK, w.Code)

	w, list := ts.do(t, http.MethodGet, "/api/photos", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list["data"], 1)

	w, list = ts.do(t, http.MethodGet, "/api/photos?search=Kit", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list["data"], 1)
	w, list = ts.do(t, http.MethodGet, "/api/photos?search=dog", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, list["data"])

	tagID := int(tags["data"].([]interface{})[0].(map[string]interface{})["id"].(float64))
	w, list = ts.do(t, http.MethodGet, fmt.Sprintf("/api/photos?tag=%d", tagID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, list["data"], 1)

	w, _ = ts.do(t, http.MethodGet, "/api/photos/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = ts.do(t, http.MethodDelete, fmt.Sprintf("/api/photos/%d", photoID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, ts.store.objects)

	w, _ = ts.do(t, http.MethodGet, fmt.Sprintf("/api/photos/%d", photoID), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	w, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ark", body["backend"])
}
