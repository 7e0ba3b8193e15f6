package repository

import (
	"errors"
	"testing"

	"gallery-go/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func red() string { return "#FF6B6B" }

func TestPhotoTags(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	tags := NewTagRepository(db)
	photo := createPhoto(t, db, "cat")

	added, err := photos.AddTags(photo.ID, []string{"animal", " cute ", "", "animal"}, red)
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "cute", added[1].Name)

	// 重复添加不计数
	added, err = photos.AddTags(photo.ID, []string{"animal"}, red)
	require.NoError(t, err)
	assert.Empty(t, added)

	other := createPhoto(t, db, "dog")
	_, err = photos.AddTags(other.ID, []string{"animal"}, red)
	require.NoError(t, err)

	popular, err := tags.ListPopular(50)
	require.NoError(t, err)
	require.Len(t, popular, 2)
	assert.Equal(t, "animal", popular[0].Name)
	assert.Equal(t, 2, popular[0].UsageCount)

	list, err := photos.ListPublic(PhotoFilter{TagID: popular[1].ID}, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, photo.ID, list[0].ID)

	require.NoError(t, photos.RemoveTag(photo.ID, popular[0].ID))
	assert.True(t, errors.Is(photos.RemoveTag(photo.ID, popular[0].ID), ErrTagNotOnPhoto))

	tag, err := tags.GetByID(popular[0].ID)
	require.NoError(t, err)
	assert.Equal(t, 1, tag.UsageCount)
}

func TestPhotoListAndUpdate(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	visible := createPhoto(t, db, "visible")
	hidden := createPhoto(t, db, "hidden")
	require.NoError(t, photos.UpdateFields(hidden.ID, map[string]interface{}{"is_public": false}))

	list, err := photos.ListPublic(PhotoFilter{}, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, visible.ID, list[0].ID)

	require.NoError(t, photos.IncrementViewCount(visible.ID))
	require.NoError(t, photos.IncrementViewCount(visible.ID))
	loaded, err := photos.GetByID(visible.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.ViewCount)

	exists, err := photos.ExistsByHash(visible.HashValue)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestPhotoDeleteClearsResultReference(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	gen := NewGenerationRepository(db)
	task := createTask(t, gen)
	photo := createPhoto(t, db, "gen")

	result := &models.GenerationResult{GeneratedImageURL: "u"}
	require.NoError(t, gen.RecordAttempt(task.ID, nil, result))
	require.NoError(t, gen.LinkResultPhoto(result.ID, photo.ID, "image/jpeg", 1))

	require.NoError(t, photos.Delete(photo))

	_, err := photos.GetByID(photo.ID)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
	loaded, err := gen.GetResult(result.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded.GeneratedImageID)
}

func TestPhotoListSearch(t *testing.T) {
	db := newTestDB(t)
	photos := NewPhotoRepository(db)
	beach := createPhoto(t, db, "beach sunset")
	forest := createPhoto(t, db, "forest")
	require.NoError(t, photos.UpdateFields(forest.ID, map[string]interface{}{"description": "morning by the sea"}))
	createPhoto(t, db, "city")

	list, err := photos.ListPublic(PhotoFilter{Search: "sunset"}, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, beach.ID, list[0].ID)

	list, err = photos.ListPublic(PhotoFilter{Search: "sea"}, 20)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, forest.ID, list[0].ID)

	list, err = photos.ListPublic(PhotoFilter{Search: "nothing"}, 20)
	require.NoError(t, err)
	assert.Empty(t, list)
}
