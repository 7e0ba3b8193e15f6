package service

import (
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"gallery-go/internal/dto"
	"gallery-go/internal/models"
	"gallery-go/internal/repository"
	"gallery-go/pkg/blobstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type resultFixture struct {
	db      *gorm.DB
	store   *fakeStore
	genRepo *repository.GenerationRepository
	svc     *ResultService
	server  *httptest.Server
}

func newResultFixture(t *testing.T) *resultFixture {
	t.Helper()
	db := newTestDB(t)
	store := newFakeStore()
	png := testPNG(t, 64, 32, color.RGBA{B: 255, A: 255})

	mux := http.NewServeMux()
	mux.HandleFunc("/img.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		w.Write(png)
	})
	mux.HandleFunc("/missing.png", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	genRepo := repository.NewGenerationRepository(db)
	svc := NewResultService(genRepo, newTestPhotoService(t, db, store), time.Second, testLogger())
	svc.now = func() time.Time { return fixedNow }
	return &resultFixture{db: db, store: store, genRepo: genRepo, svc: svc, server: server}
}

// createResult 创建一个带一条结果的已完成任务
func (f *resultFixture) createResult(t *testing.T, imageURL string) *models.GenerationResult {
	t.Helper()
	task := &models.ImageGenerationTask{TaskID: "task-r", Prompt: "p", Model: testModel}
	require.NoError(t, f.genRepo.CreateTask(task, nil))
	result := &models.GenerationResult{GeneratedImageURL: imageURL, Model: testModel}
	require.NoError(t, f.genRepo.RecordAttempt(task.ID, []byte(`{}`), result))
	require.NoError(t, f.genRepo.Finalize(task.ID, models.TaskStatusCompleted, "", fixedNow))
	return result
}

func TestSaveResult(t *testing.T) {
	f := newResultFixture(t)
	result := f.createResult(t, f.server.URL+"/img.png")

	photo, err := f.svc.SaveResult(context.Background(), result.ID, &dto.SaveResultRequest{Title: "My art"})
	require.NoError(t, err)
	assert.Equal(t, "My art", photo.Title)
	assert.True(t, photo.IsAIGenerated)
	assert.Equal(t, 64, photo.Width)
	assert.Equal(t, "image/png", photo.MimeType)
	assert.Equal(t, "generated_1741064767.png", photo.OriginalFilename)

	saved, err := f.genRepo.GetResult(result.ID)
	require.NoError(t, err)
	require.NotNil(t, saved.GeneratedImageID)
	assert.Equal(t, photo.ID, *saved.GeneratedImageID)
	assert.Equal(t, "image/png", saved.ContentType)

	_, err = f.svc.SaveResult(context.Background(), result.ID, &dto.SaveResultRequest{})
	assert.ErrorIs(t, err, ErrResultAlreadySaved)

	_, err = f.svc.SaveResult(context.Background(), 999, &dto.SaveResultRequest{})
	assert.ErrorIs(t, err, ErrResultNotFound)
}

func TestImportImage(t *testing.T) {
	f := newResultFixture(t)

	photo, err := f.svc.ImportImage(context.Background(), &dto.ImportImageRequest{ImageURL: f.server.URL + "/img.png"})
	require.NoError(t, err)
	assert.Equal(t, "Generated Image 1741064767", photo.Title)
	assert.True(t, f.store.has(blobstore.PhotoPrefix+photo.Filename))

	_, err = f.svc.ImportImage(context.Background(), &dto.ImportImageRequest{ImageURL: f.server.URL + "/img.png"})
	assert.ErrorIs(t, err, ErrDuplicatePhoto)

	_, err = f.svc.ImportImage(context.Background(), &dto.ImportImageRequest{ImageURL: f.server.URL + "/missing.png"})
	assert.ErrorIs(t, err, ErrDownloadFailed)
}

func TestDeleteResultRemovesPhotoAndBlobs(t *testing.T) {
	f := newResultFixture(t)
	result := f.createResult(t, f.server.URL+"/img.png")
	photo, err := f.svc.SaveResult(context.Background(), result.ID, &dto.SaveResultRequest{})
	require.NoError(t, err)
	require.Equal(t, 2, f.store.count())

	require.NoError(t, f.svc.DeleteResult(context.Background(), result.ID))
	assert.Zero(t, f.store.count())

	var results, photos int64
	require.NoError(t, f.db.Model(&models.GenerationResult{}).Count(&results).Error)
	require.NoError(t, f.db.Model(&models.Photo{}).Where("id = ?", photo.ID).Count(&photos).Error)
	assert.Zero(t, results)
	assert.Zero(t, photos)

	assert.ErrorIs(t, f.svc.DeleteResult(context.Background(), result.ID), ErrResultNotFound)
}

func TestDeleteResultWithoutPhoto(t *testing.T) {
	f := newResultFixture(t)
	result := f.createResult(t, "https://out/unsaved.jpg")

	require.NoError(t, f.svc.DeleteResult(context.Background(), result.ID))
	_, err := f.genRepo.GetResult(result.ID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
