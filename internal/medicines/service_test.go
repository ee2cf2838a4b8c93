package medicines

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/medimart/storefront/pkg/db/models"
	pkgerrors "github.com/medimart/storefront/pkg/errors"
)

func seedCatalog(t *testing.T) (*gorm.DB, []models.Medicine) {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&models.Medicine{}))

	rows := []models.Medicine{
		{ID: uuid.New(), Name: "Paracetamol", Brand: "Calpol", Category: "Pain Relief", Tags: []string{"fever"}, PriceCents: 399, IsActive: true},
		{ID: uuid.New(), Name: "Aspirin", Brand: "Bayer", Category: "Pain Relief", PriceCents: 499, IsActive: true},
		{ID: uuid.New(), Name: "Cetirizine", Brand: "Zyrtec", Category: "Allergy", PriceCents: 899, IsActive: true},
		{ID: uuid.New(), Name: "Discontinued", Brand: "Old", Category: "Allergy", PriceCents: 100, IsActive: true},
	}
	require.NoError(t, conn.Create(&rows).Error)
	require.NoError(t, conn.Model(&models.Medicine{}).Where("id = ?", rows[3].ID).Update("is_active", false).Error)
	return conn, rows
}

func TestListFiltersInactiveAndCategory(t *testing.T) {
	conn, _ := seedCatalog(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Aspirin", all[0].Name)
	assert.Equal(t, "4.99", all[0].Price.StringFixed(2))

	pain, err := svc.List(context.Background(), " pain relief ")
	require.NoError(t, err)
	require.Len(t, pain, 2)
	assert.Equal(t, []string{"fever"}, pain[1].Tags)
}

func TestGetHidesInactive(t *testing.T) {
	conn, rows := seedCatalog(t)
	svc, err := NewService(NewRepository(conn))
	require.NoError(t, err)

	got, err := svc.Get(context.Background(), rows[2].ID)
	require.NoError(t, err)
	assert.Equal(t, "Cetirizine", got.Name)

	_, err = svc.Get(context.Background(), rows[3].ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	_, err = svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestFindByIDs(t *testing.T) {
	conn, rows := seedCatalog(t)
	repo := NewRepository(conn)

	found, err := repo.FindByIDs(context.Background(), []uuid.UUID{rows[0].ID, uuid.New()})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, int64(399), found[rows[0].ID].PriceCents)
}
