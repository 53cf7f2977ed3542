package tenant

import (
	"strings"
	"time"
)

// Tenant represents a logical tenant in the system. All tenant-scoped data
// references TenantID to ensure proper isolation.
type Tenant struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Slug      string    `json:"slug" gorm:"size:100;uniqueIndex;not null"`
	Status    string    `json:"status" gorm:"size:50;not null;default:active"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (Tenant) TableName() string {
	return "tenants"
}

// User 租户下的用户（流程引擎只读取，管理由用户中心负责）
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID  string    `json:"tenantId" gorm:"type:uuid;not null;index"`
	Email     string    `json:"email" gorm:"size:255;not null"`
	Username  string    `json:"username" gorm:"size:100;not null"`
	FirstName string    `json:"firstName" gorm:"size:100"`
	LastName  string    `json:"lastName" gorm:"size:100"`
	Status    string    `json:"status" gorm:"size:50;not null;default:active"`
	CreatedAt time.Time `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// DisplayName 用户显示名：姓名优先，其次邮箱
func (u *User) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(u.FirstName) + " " + strings.TrimSpace(u.LastName))
	if name != "" {
		return name
	}
	if u.Email != "" {
		return u.Email
	}
	return u.Username
}

// ProjectStatus 项目状态
type ProjectStatus string

const (
	ProjectStatusDraft    ProjectStatus = "DRAFT"
	ProjectStatusActive   ProjectStatus = "ACTIVE"
	ProjectStatusArchived ProjectStatus = "ARCHIVED"
)

// Project 项目，任务挂在项目下
type Project struct {
	ID          string        `json:"id" gorm:"primaryKey;type:uuid"`
	TenantID    string        `json:"tenantId" gorm:"type:uuid;not null;index"`
	Name        string        `json:"name" gorm:"size:255;not null"`
	Description string        `json:"description" gorm:"type:text"`
	Status      ProjectStatus `json:"status" gorm:"size:20;not null;default:DRAFT"`
	CreatedBy   string        `json:"createdBy" gorm:"type:uuid"`
	CreatedAt   time.Time     `json:"createdAt" gorm:"not null;autoCreateTime"`
	UpdatedAt   time.Time     `json:"updatedAt" gorm:"not null;autoUpdateTime"`
}

// TableName 指定表名
func (Project) TableName() string {
	return "projects"
}
