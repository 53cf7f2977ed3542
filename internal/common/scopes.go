package common

import "gorm.io/gorm"

// ByTenant 按租户ID过滤（多租户查询通用Scope）
// 使用方法：db.Scopes(common.ByTenant(tenantID)).Find(&workflows)
func ByTenant(tenantID string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("tenant_id = ?", tenantID)
	}
}

// ActiveOnly 仅查询启用状态的记录（is_active = true）
func ActiveOnly() func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("is_active = ?", true)
	}
}

// Paginate 分页Scope
// 使用方法：db.Scopes(common.Paginate(req)).Find(&items)
func Paginate(req PaginationRequest) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(req.GetOffset()).Limit(req.GetPageSize())
	}
}
