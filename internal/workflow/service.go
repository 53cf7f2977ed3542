package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"processhub/internal/common"
	"processhub/internal/logger"
	"processhub/internal/tenant"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// WorkflowService 流程模板管理服务
type WorkflowService struct {
	*common.BaseService
	validator *Validator
	users     UserDirectory
	logger    *zap.Logger
	now       func() time.Time
}

// ServiceOption 服务配置项
type ServiceOption func(*WorkflowService)

// WithUserDirectory 设置用户目录，用于解析固定处理人显示名
func WithUserDirectory(d UserDirectory) ServiceOption {
	return func(s *WorkflowService) {
		s.users = d
	}
}

// WithServiceLogger 设置日志器
func WithServiceLogger(l *zap.Logger) ServiceOption {
	return func(s *WorkflowService) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewWorkflowService 创建 WorkflowService 实例
func NewWorkflowService(db *gorm.DB, opts ...ServiceOption) *WorkflowService {
	s := &WorkflowService{
		BaseService: common.NewBaseService(db),
		validator:   NewValidator(),
		logger:      logger.Get(),
		now:         func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// ListWorkflowsResponse 流程模板分页结果
type ListWorkflowsResponse struct {
	Items    []WorkflowSummary `json:"items"`
	Total    int64             `json:"total"`
	Page     int               `json:"page"`
	PageSize int               `json:"pageSize"`
}

// CreateWorkflow 校验并创建流程模板（含步骤与流转）
func (s *WorkflowService) CreateWorkflow(ctx context.Context, tc tenant.TenantContext, req *CreateWorkflowRequest) (*WorkflowDetail, error) {
	if err := s.validator.Check(req.Steps, req.Transitions); err != nil {
		return nil, err
	}

	now := s.now()
	wf := &Workflow{
		ID:          uuid.New().String(),
		TenantID:    tc.TenantID,
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		IsActive:    req.IsActive == nil || *req.IsActive,
		CreatedBy:   tc.UserID,
		UpdatedBy:   tc.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	var (
		steps       []WorkflowStep
		transitions []WorkflowStepTransition
	)
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(wf).Error; err != nil {
			return fmt.Errorf("创建工作流失败: %w", err)
		}
		var err error
		steps, transitions, err = insertGraph(tx, wf.ID, req.Steps, req.Transitions, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("工作流已创建",
		zap.String("workflow_id", wf.ID),
		zap.String("tenant_id", wf.TenantID),
		zap.Int("steps", len(steps)),
		zap.Int("transitions", len(transitions)))
	return s.buildDetail(ctx, wf, steps, transitions), nil
}

// UpdateWorkflow 整体替换流程模板的步骤与流转，已被任务引用的模板不可修改
func (s *WorkflowService) UpdateWorkflow(ctx context.Context, tc tenant.TenantContext, id string, req *UpdateWorkflowRequest) (*WorkflowDetail, error) {
	if err := s.validator.Check(req.Steps, req.Transitions); err != nil {
		return nil, err
	}

	now := s.now()
	var (
		wf          *Workflow
		steps       []WorkflowStep
		transitions []WorkflowStepTransition
	)
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		var err error
		if wf, err = lockOwnedWorkflow(tx, tc.TenantID, id); err != nil {
			return err
		}
		if err := ensureNotInUse(tx, wf.ID); err != nil {
			return err
		}
		if err := deleteGraph(tx, wf.ID); err != nil {
			return err
		}

		wf.Name = strings.TrimSpace(req.Name)
		wf.Description = req.Description
		if req.IsActive != nil {
			wf.IsActive = *req.IsActive
		}
		wf.UpdatedBy = tc.UserID
		wf.UpdatedAt = now
		if err := tx.Model(wf).Select("name", "description", "is_active", "updated_by", "updated_at").Updates(wf).Error; err != nil {
			return fmt.Errorf("更新工作流失败: %w", err)
		}

		steps, transitions, err = insertGraph(tx, wf.ID, req.Steps, req.Transitions, now)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("工作流已更新", zap.String("workflow_id", wf.ID), zap.String("tenant_id", wf.TenantID))
	return s.buildDetail(ctx, wf, steps, transitions), nil
}

// DeleteWorkflow 删除流程模板，已被任务引用的模板不可删除
func (s *WorkflowService) DeleteWorkflow(ctx context.Context, tc tenant.TenantContext, id string) error {
	err := s.Transaction(ctx, func(tx *gorm.DB) error {
		wf, err := lockOwnedWorkflow(tx, tc.TenantID, id)
		if err != nil {
			return err
		}
		if err := ensureNotInUse(tx, wf.ID); err != nil {
			return err
		}
		if err := deleteGraph(tx, wf.ID); err != nil {
			return err
		}
		if err := tx.Delete(&Workflow{}, "id = ?", wf.ID).Error; err != nil {
			return fmt.Errorf("删除工作流失败: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("工作流已删除", zap.String("workflow_id", id), zap.String("tenant_id", tc.TenantID))
	return nil
}

// GetWorkflow 获取流程模板详情
func (s *WorkflowService) GetWorkflow(ctx context.Context, tc tenant.TenantContext, id string) (*WorkflowDetail, error) {
	db := s.DB.WithContext(ctx)
	wf, err := findOwnedWorkflow(db, tc.TenantID, id)
	if err != nil {
		return nil, err
	}
	steps, transitions, err := LoadGraph(db, wf.ID)
	if err != nil {
		return nil, err
	}
	return s.buildDetail(ctx, wf, steps, transitions), nil
}

// ListWorkflows 分页查询租户的流程模板
func (s *WorkflowService) ListWorkflows(ctx context.Context, tc tenant.TenantContext, req *ListWorkflowsRequest) (*ListWorkflowsResponse, error) {
	query := s.DB.WithContext(ctx).Model(&Workflow{}).Scopes(common.ByTenant(tc.TenantID))
	if req.IsActive != nil {
		if *req.IsActive {
			query = query.Scopes(common.ActiveOnly())
		} else {
			query = query.Where("is_active = ?", false)
		}
	}
	query = s.ApplyKeywordSearch(query, req.Keyword, []string{"name"})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("统计工作流数量失败: %w", err)
	}

	var workflows []Workflow
	if err := query.Order("created_at DESC").Scopes(common.Paginate(req.PaginationRequest)).Find(&workflows).Error; err != nil {
		return nil, fmt.Errorf("查询工作流列表失败: %w", err)
	}

	counts := make(map[string]int64, len(workflows))
	if len(workflows) > 0 {
		ids := make([]string, 0, len(workflows))
		for _, wf := range workflows {
			ids = append(ids, wf.ID)
		}
		var rows []struct {
			WorkflowID string
			Total      int64
		}
		if err := s.DB.WithContext(ctx).Model(&WorkflowStep{}).
			Select("workflow_id, COUNT(*) AS total").
			Where("workflow_id IN ?", ids).
			Group("workflow_id").
			Scan(&rows).Error; err != nil {
			return nil, fmt.Errorf("统计步骤数量失败: %w", err)
		}
		for _, r := range rows {
			counts[r.WorkflowID] = r.Total
		}
	}

	items := make([]WorkflowSummary, 0, len(workflows))
	for _, wf := range workflows {
		items = append(items, WorkflowSummary{
			ID:          wf.ID,
			Name:        wf.Name,
			Description: wf.Description,
			IsActive:    wf.IsActive,
			StepCount:   counts[wf.ID],
			CreatedBy:   wf.CreatedBy,
			CreatedAt:   wf.CreatedAt,
			UpdatedAt:   wf.UpdatedAt,
		})
	}

	return &ListWorkflowsResponse{
		Items:    items,
		Total:    total,
		Page:     req.GetPage(),
		PageSize: req.GetPageSize(),
	}, nil
}

// FindWorkflow 在给定会话（可为事务）内按租户查询流程模板
func FindWorkflow(db *gorm.DB, tenantID, id string) (*Workflow, error) {
	return findOwnedWorkflow(db, tenantID, id)
}

// LoadGraph 加载流程的步骤（按 stepOrder、position 排序）与流转（按创建顺序）
func LoadGraph(db *gorm.DB, workflowID string) ([]WorkflowStep, []WorkflowStepTransition, error) {
	var steps []WorkflowStep
	if err := db.Where("workflow_id = ?", workflowID).
		Order("step_order ASC, position ASC").
		Find(&steps).Error; err != nil {
		return nil, nil, fmt.Errorf("查询工作流步骤失败: %w", err)
	}
	var transitions []WorkflowStepTransition
	if err := db.Where("workflow_id = ?", workflowID).
		Order("position ASC, created_at ASC").
		Find(&transitions).Error; err != nil {
		return nil, nil, fmt.Errorf("查询工作流流转失败: %w", err)
	}
	return steps, transitions, nil
}

func findOwnedWorkflow(db *gorm.DB, tenantID, id string) (*Workflow, error) {
	var wf Workflow
	if err := db.Where("id = ?", id).First(&wf).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrWorkflowNotFound
		}
		return nil, fmt.Errorf("查询工作流失败: %w", err)
	}
	if wf.TenantID != tenantID {
		return nil, HideTenantMismatch(ErrWorkflowNotFound)
	}
	return &wf, nil
}

func lockOwnedWorkflow(tx *gorm.DB, tenantID, id string) (*Workflow, error) {
	return findOwnedWorkflow(tx.Clauses(clause.Locking{Strength: "UPDATE"}), tenantID, id)
}

func ensureNotInUse(tx *gorm.DB, workflowID string) error {
	var count int64
	if err := tx.Model(&Task{}).Where("workflow_id = ?", workflowID).Limit(1).Count(&count).Error; err != nil {
		return fmt.Errorf("检查工作流引用失败: %w", err)
	}
	if count > 0 {
		return ErrWorkflowInUse
	}
	return nil
}

func deleteGraph(tx *gorm.DB, workflowID string) error {
	if err := tx.Where("workflow_id = ?", workflowID).Delete(&WorkflowStepTransition{}).Error; err != nil {
		return fmt.Errorf("删除工作流流转失败: %w", err)
	}
	if err := tx.Where("workflow_id = ?", workflowID).Delete(&WorkflowStep{}).Error; err != nil {
		return fmt.Errorf("删除工作流步骤失败: %w", err)
	}
	return nil
}

// insertGraph 按输入顺序写入步骤，再按 clientId 映射写入流转
func insertGraph(tx *gorm.DB, workflowID string, inputs []StepInput, transitionInputs []TransitionInput, now time.Time) ([]WorkflowStep, []WorkflowStepTransition, error) {
	steps := make([]WorkflowStep, 0, len(inputs))
	byClientID := make(map[string]string, len(inputs))
	nextOrder := 0
	for i, raw := range inputs {
		in := raw.normalized()
		order := nextOrder
		if in.StepOrder != nil {
			order = *in.StepOrder
		} else {
			nextOrder++
		}
		step := WorkflowStep{
			ID:            uuid.New().String(),
			WorkflowID:    workflowID,
			Name:          in.Name,
			Description:   in.Description,
			Type:          in.Type,
			StepOrder:     order,
			Position:      i,
			AssigneeType:  in.AssigneeType,
			AssigneeValue: in.AssigneeValue,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		byClientID[in.ClientID] = step.ID
		steps = append(steps, step)
	}
	if err := tx.Create(&steps).Error; err != nil {
		return nil, nil, fmt.Errorf("创建工作流步骤失败: %w", err)
	}

	transitions := make([]WorkflowStepTransition, 0, len(transitionInputs))
	for i, raw := range transitionInputs {
		in := raw.normalized()
		transitions = append(transitions, WorkflowStepTransition{
			ID:         uuid.New().String(),
			WorkflowID: workflowID,
			FromStepID: byClientID[in.From],
			ToStepID:   byClientID[in.To],
			Action:     in.Action,
			Position:   i,
			CreatedAt:  now,
		})
	}
	if len(transitions) > 0 {
		if err := tx.Create(&transitions).Error; err != nil {
			return nil, nil, fmt.Errorf("创建工作流流转失败: %w", err)
		}
	}

	sort.SliceStable(steps, func(i, j int) bool {
		if steps[i].StepOrder != steps[j].StepOrder {
			return steps[i].StepOrder < steps[j].StepOrder
		}
		return steps[i].Position < steps[j].Position
	})
	return steps, transitions, nil
}

func (s *WorkflowService) buildDetail(ctx context.Context, wf *Workflow, steps []WorkflowStep, transitions []WorkflowStepTransition) *WorkflowDetail {
	detail := &WorkflowDetail{
		ID:          wf.ID,
		TenantID:    wf.TenantID,
		Name:        wf.Name,
		Description: wf.Description,
		IsActive:    wf.IsActive,
		CreatedBy:   wf.CreatedBy,
		UpdatedBy:   wf.UpdatedBy,
		CreatedAt:   wf.CreatedAt,
		UpdatedAt:   wf.UpdatedAt,
		Steps:       make([]WorkflowStepView, 0, len(steps)),
		Transitions: make([]WorkflowTransitionView, 0, len(transitions)),
	}

	names := make(map[string]string, len(steps))
	for _, st := range steps {
		names[st.ID] = st.Name
		view := WorkflowStepView{
			ID:            st.ID,
			Name:          st.Name,
			Description:   st.Description,
			Type:          st.Type,
			StepOrder:     st.StepOrder,
			AssigneeType:  st.AssigneeType,
			AssigneeValue: st.AssigneeValue,
		}
		if st.AssigneeType == AssigneeFixed && st.AssigneeValue != "" {
			view.AssigneeName = s.assigneeName(ctx, wf.TenantID, st.AssigneeValue)
		}
		detail.Steps = append(detail.Steps, view)
	}
	for _, tr := range transitions {
		detail.Transitions = append(detail.Transitions, WorkflowTransitionView{
			ID:           tr.ID,
			FromStepID:   tr.FromStepID,
			FromStepName: names[tr.FromStepID],
			ToStepID:     tr.ToStepID,
			ToStepName:   names[tr.ToStepID],
			Action:       tr.Action,
		})
	}
	return detail
}

// assigneeName 解析固定处理人显示名，无法解析时回退为原始值
func (s *WorkflowService) assigneeName(ctx context.Context, tenantID, value string) string {
	if s.users == nil {
		return value
	}
	if name := s.users.DisplayName(ctx, tenantID, value); name != "" {
		return name
	}
	return value
}
