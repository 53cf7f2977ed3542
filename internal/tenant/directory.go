package tenant

import (
	"context"
	"errors"
	"fmt"
	"time"

	"processhub/internal/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrUserNotFound 用户不存在或不属于该租户
	ErrUserNotFound = errors.New("tenant: user not found")
	// ErrProjectNotFound 项目不存在或不属于该租户
	ErrProjectNotFound = errors.New("tenant: project not found")
)

const displayNameKeyPattern = "tenant:user:display:%s:%s"

// Directory 用户目录，为流程引擎提供用户解析与显示名查询
type Directory struct {
	db     *gorm.DB
	cache  redis.UniversalClient
	ttl    time.Duration
	logger *zap.Logger
}

// DirectoryOption 用户目录配置项
type DirectoryOption func(*Directory)

// WithDisplayNameCache 启用 Redis 显示名缓存
func WithDisplayNameCache(rdb redis.UniversalClient, ttl time.Duration) DirectoryOption {
	return func(d *Directory) {
		d.cache = rdb
		if ttl > 0 {
			d.ttl = ttl
		}
	}
}

// WithDirectoryLogger 设置日志器
func WithDirectoryLogger(l *zap.Logger) DirectoryOption {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDirectory 创建用户目录
func NewDirectory(db *gorm.DB, opts ...DirectoryOption) *Directory {
	d := &Directory{
		db:     db,
		ttl:    10 * time.Minute,
		logger: logger.Get(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// GetUser 查询租户内的用户
func (d *Directory) GetUser(ctx context.Context, tenantID, userID string) (*User, error) {
	if userID == "" {
		return nil, ErrUserNotFound
	}
	var user User
	err := d.db.WithContext(ctx).
		Where("id = ? AND tenant_id = ?", userID, tenantID).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}

// IsMember 判断用户是否属于该租户
func (d *Directory) IsMember(ctx context.Context, tenantID, userID string) (bool, error) {
	if _, err := d.GetUser(ctx, tenantID, userID); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// DisplayName 返回用户显示名，用户不存在时返回空串
func (d *Directory) DisplayName(ctx context.Context, tenantID, userID string) string {
	if userID == "" {
		return ""
	}
	key := fmt.Sprintf(displayNameKeyPattern, tenantID, userID)
	if d.cache != nil {
		name, err := d.cache.Get(ctx, key).Result()
		if err == nil {
			return name
		}
		if !errors.Is(err, redis.Nil) {
			d.logger.Debug("读取显示名缓存失败", zap.String("user_id", userID), zap.Error(err))
		}
	}

	user, err := d.GetUser(ctx, tenantID, userID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			d.logger.Warn("解析用户显示名失败", zap.String("user_id", userID), zap.Error(err))
		}
		return ""
	}

	name := user.DisplayName()
	if d.cache != nil {
		if err := d.cache.Set(ctx, key, name, d.ttl).Err(); err != nil {
			d.logger.Debug("写入显示名缓存失败", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return name
}

// DisplayNames 批量解析显示名
func (d *Directory) DisplayNames(ctx context.Context, tenantID string, userIDs []string) map[string]string {
	names := make(map[string]string, len(userIDs))
	for _, id := range userIDs {
		if id == "" {
			continue
		}
		if _, done := names[id]; done {
			continue
		}
		names[id] = d.DisplayName(ctx, tenantID, id)
	}
	return names
}

// FindProject 在事务内查询租户的项目
func FindProject(tx *gorm.DB, tenantID, projectID string) (*Project, error) {
	var project Project
	err := tx.Where("id = ? AND tenant_id = ?", projectID, tenantID).First(&project).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	return &project, nil
}

// ActivateProject 草稿项目在创建首个任务时转为进行中
func ActivateProject(tx *gorm.DB, project *Project) (bool, error) {
	if project.Status != ProjectStatusDraft {
		return false, nil
	}
	result := tx.Model(&Project{}).
		Where("id = ? AND status = ?", project.ID, ProjectStatusDraft).
		Updates(map[string]any{
			"status":     ProjectStatusActive,
			"updated_at": time.Now().UTC(),
		})
	if result.Error != nil {
		return false, fmt.Errorf("激活项目失败: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		project.Status = ProjectStatusActive
	}
	return result.RowsAffected > 0, nil
}
