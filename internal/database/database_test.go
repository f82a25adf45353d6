package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/config"
	"github.com/jashabalcom/dubai-wealth-ai-sub007/internal/models"
)

func newTestDB(t *testing.T) *GormDB {
	t.Helper()
	gdb, err := Open(config.DatabaseConfig{
		Type:   "sqlite",
		SQLite: config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "portal.db")},
	})
	require.NoError(t, err)
	require.NoError(t, gdb.InitSchema())
	t.Cleanup(func() { _ = gdb.Close() })
	return gdb
}

func listing(externalID string, price int64) *models.Property {
	return &models.Property{
		ExternalID:     externalID,
		ExternalSource: "bayut",
		Title:          "Marina Tower",
		Slug:           "marina-tower-" + externalID,
		PropertyType:   models.PropertyTypeApartment,
		Price:          price,
	}
}

func TestUpsertProperty_CreatesThenUpdates(t *testing.T) {
	gdb := newTestDB(t)
	ctx := context.Background()

	previous, err := gdb.UpsertProperty(ctx, listing("101", 1000000), []string{"https://img/1.jpg", "https://img/2.jpg"})
	require.NoError(t, err)
	assert.Nil(t, previous)

	id := PropertyID("bayut", "101")
	require.NoError(t, gdb.DB().Model(&models.Property{}).Where("id = ?", id).Update("is_published", true).Error)

	previous, err = gdb.UpsertProperty(ctx, listing("101", 950000), nil)
	require.NoError(t, err)
	require.NotNil(t, previous)
	assert.Equal(t, int64(1000000), previous.Price)

	stored, err := gdb.GetPropertyByID(id)
	require.NoError(t, err)
	assert.Equal(t, int64(950000), stored.Price)
	assert.True(t, stored.IsPublished)
	assert.True(t, stored.IsActive())

	images, err := gdb.GetPropertyImages(id)
	require.NoError(t, err)
	assert.Len(t, images, 2)
}

func TestUpsertProperty_CancelledContextWritesNothing(t *testing.T) {
	gdb := newTestDB(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := gdb.UpsertProperty(ctx, listing("202", 500000), []string{"https://img/a.jpg"})
	require.ErrorIs(t, err, context.Canceled)

	var n int64
	require.NoError(t, gdb.DB().Model(&models.Property{}).Count(&n).Error)
	assert.Zero(t, n)
}
