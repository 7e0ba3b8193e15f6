package repository

import (
	"fmt"
	"testing"
	"time"

	"gallery-go/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := models.InitDB(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db
}

func createPhoto(t *testing.T, db *gorm.DB, name string) *models.Photo {
	t.Helper()
	photo := &models.Photo{
		Title:            name,
		Filename:         name + ".jpg",
		OriginalFilename: name + ".jpg",
		TosURL:           "https://bucket.tos/photos/" + name + ".jpg",
		HashValue:        uuid.NewString(),
		IsPublic:         true,
	}
	require.NoError(t, NewPhotoRepository(db).Create(photo))
	return photo
}

func createTask(t *testing.T, repo *GenerationRepository) *models.ImageGenerationTask {
	t.Helper()
	url := "https://x/y.jpg"
	task := &models.ImageGenerationTask{
		TaskID:        uuid.NewString(),
		InputImageURL: &url,
		Prompt:        "p",
		Model:         "doubao-seedream-4-0-250828",
		Size:          "2K",
	}
	params := []models.GenerationParameter{
		{ParameterName: models.ParamPrompt, ParameterValue: "p"},
		{ParameterName: models.ParamSize, ParameterValue: "2K"},
	}
	require.NoError(t, repo.CreateTask(task, params))
	return task
}

var testNow = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
