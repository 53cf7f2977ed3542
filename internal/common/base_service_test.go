package common

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// TestModel 测试用的模型
type TestModel struct {
	ID          uint   `gorm:"primaryKey"`
	TenantID    string `gorm:"size:255;index"`
	Name        string `gorm:"size:255"`
	Description string `gorm:"size:255"`
	IsActive    bool
	CreatedAt   time.Time
}

func setupTestDB(t *testing.T) *gorm.DB {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&TestModel{}))

	seed := []TestModel{
		{TenantID: "tenant1", Name: "请假审批", Description: "HR", IsActive: true},
		{TenantID: "tenant1", Name: "报销审批", Description: "财务", IsActive: false},
		{TenantID: "tenant2", Name: "采购审批", Description: "采购", IsActive: true},
	}
	require.NoError(t, db.Create(&seed).Error)
	return db
}

func TestBaseService_ApplyTenantFilter(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBaseService(db)

	var items []TestModel
	err := svc.ApplyTenantFilter(db.Model(&TestModel{}), "tenant1").Find(&items).Error
	require.NoError(t, err)
	assert.Len(t, items, 2)

	err = svc.ApplyTenantFilter(db.Model(&TestModel{}), "").Find(&items).Error
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestBaseService_ApplyKeywordSearch(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBaseService(db)

	var items []TestModel
	err := svc.ApplyKeywordSearch(db.Model(&TestModel{}), "财务", []string{"name", "description"}).Find(&items).Error
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "报销审批", items[0].Name)
}

func TestScopes(t *testing.T) {
	db := setupTestDB(t)

	var items []TestModel
	require.NoError(t, db.Scopes(ByTenant("tenant1"), ActiveOnly()).Find(&items).Error)
	assert.Len(t, items, 1)

	require.NoError(t, db.Scopes(Paginate(PaginationRequest{Page: 2, PageSize: 2})).Order("id").Find(&items).Error)
	assert.Len(t, items, 1)
}

func TestBaseService_TransactionRollback(t *testing.T) {
	db := setupTestDB(t)
	svc := NewBaseService(db)
	ctx := context.Background()

	boom := errors.New("boom")
	err := svc.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&TestModel{TenantID: "tenant3", Name: "临时"}).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	exists, err := svc.Exists(ctx, &TestModel{}, "tenant_id = ?", "tenant3")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestPaginationRequestDefaults(t *testing.T) {
	assert.Equal(t, 1, PaginationRequest{}.GetPage())
	assert.Equal(t, 20, PaginationRequest{}.GetPageSize())
	assert.Equal(t, 100, PaginationRequest{PageSize: 1000}.GetPageSize())
	assert.Equal(t, 40, PaginationRequest{Page: 3, PageSize: 20}.GetOffset())
}

func TestHTTPStatusMapping(t *testing.T) {
	assert.Equal(t, 404, HTTPStatus(CodeTaskNotFound))
	assert.Equal(t, 409, HTTPStatus(CodeConcurrentModification))
	assert.Equal(t, 403, HTTPStatus(CodeNotAssignee))
	assert.Equal(t, 400, HTTPStatus(CodeDanglingTransitionReference))
	assert.Equal(t, 500, HTTPStatus(CodeInternalError))
}
