package common

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// BaseService 服务基类，封装通用的数据库操作方法
type BaseService struct {
	DB *gorm.DB
}

// NewBaseService 创建BaseService实例
func NewBaseService(db *gorm.DB) *BaseService {
	return &BaseService{DB: db}
}

// ApplyTenantFilter 应用租户过滤条件
func (s *BaseService) ApplyTenantFilter(query *gorm.DB, tenantID string) *gorm.DB {
	if tenantID != "" {
		return query.Where("tenant_id = ?", tenantID)
	}
	return query
}

// ApplyKeywordSearch 应用关键词模糊搜索
// 示例: ApplyKeywordSearch(query, "报销", []string{"name", "description"})
func (s *BaseService) ApplyKeywordSearch(query *gorm.DB, keyword string, fields []string) *gorm.DB {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" || len(fields) == 0 {
		return query
	}

	conditions := make([]string, 0, len(fields))
	args := make([]any, 0, len(fields))
	for _, field := range fields {
		conditions = append(conditions, fmt.Sprintf("%s LIKE ?", field))
		args = append(args, "%"+keyword+"%")
	}
	return query.Where("("+strings.Join(conditions, " OR ")+")", args...)
}

// Exists 检查记录是否存在
func (s *BaseService) Exists(ctx context.Context, model any, condition string, args ...any) (bool, error) {
	var count int64
	err := s.DB.WithContext(ctx).Model(model).Where(condition, args...).Limit(1).Count(&count).Error
	return count > 0, err
}

// Transaction 执行事务
func (s *BaseService) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return s.DB.WithContext(ctx).Transaction(fn)
}
