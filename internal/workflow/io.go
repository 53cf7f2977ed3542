package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"processhub/internal/tenant"

	"gopkg.in/yaml.v3"
)

// ExportFormat 导出格式
type ExportFormat string

const (
	FormatJSON ExportFormat = "json"
	FormatYAML ExportFormat = "yaml"
)

// ParseExportFormat 解析导出格式，默认 YAML
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatYAML, "yml":
		return FormatYAML, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("不支持的格式: %s", s)
}

const definitionDocumentVersion = "1"

// DefinitionDocument 流程定义的可移植表示，步骤以 id 互相引用
type DefinitionDocument struct {
	Version     string            `json:"version" yaml:"version"`
	ExportedAt  string            `json:"exportedAt,omitempty" yaml:"exportedAt,omitempty"`
	Name        string            `json:"name" yaml:"name"`
	Description string            `json:"description,omitempty" yaml:"description,omitempty"`
	Active      *bool             `json:"active,omitempty" yaml:"active,omitempty"`
	Steps       []StepInput       `json:"steps" yaml:"steps"`
	Transitions []TransitionInput `json:"transitions" yaml:"transitions"`
}

// ExportResult 导出结果
type ExportResult struct {
	Data        []byte
	Filename    string
	ContentType string
}

// NewDefinitionDocument 由详情生成定义文档，步骤 id 直接使用持久化的步骤ID
func NewDefinitionDocument(detail *WorkflowDetail) *DefinitionDocument {
	active := detail.IsActive
	doc := &DefinitionDocument{
		Version:     definitionDocumentVersion,
		ExportedAt:  time.Now().UTC().Format(time.RFC3339),
		Name:        detail.Name,
		Description: detail.Description,
		Active:      &active,
		Steps:       make([]StepInput, 0, len(detail.Steps)),
		Transitions: make([]TransitionInput, 0, len(detail.Transitions)),
	}
	for _, st := range detail.Steps {
		order := st.StepOrder
		doc.Steps = append(doc.Steps, StepInput{
			ClientID:      st.ID,
			Name:          st.Name,
			Description:   st.Description,
			Type:          st.Type,
			StepOrder:     &order,
			AssigneeType:  st.AssigneeType,
			AssigneeValue: st.AssigneeValue,
		})
	}
	for _, tr := range detail.Transitions {
		doc.Transitions = append(doc.Transitions, TransitionInput{
			From:   tr.FromStepID,
			To:     tr.ToStepID,
			Action: tr.Action,
		})
	}
	return doc
}

// Encode 按格式序列化
func (d *DefinitionDocument) Encode(format ExportFormat) ([]byte, error) {
	switch format {
	case FormatJSON:
		return json.MarshalIndent(d, "", "  ")
	case FormatYAML:
		return yaml.Marshal(d)
	}
	return nil, fmt.Errorf("不支持的格式: %s", format)
}

// DecodeDefinition 解析定义文档
func DecodeDefinition(data []byte, format ExportFormat) (*DefinitionDocument, error) {
	var doc DefinitionDocument
	var err error
	switch format {
	case FormatJSON:
		err = json.Unmarshal(data, &doc)
	case FormatYAML:
		err = yaml.Unmarshal(data, &doc)
	default:
		return nil, fmt.Errorf("不支持的格式: %s", format)
	}
	if err != nil {
		return nil, fmt.Errorf("解析工作流定义失败: %w", err)
	}
	if strings.TrimSpace(doc.Name) == "" {
		return nil, &DefinitionError{Errors: []ValidationError{{
			Field: "name", Message: "工作流名称不能为空", Kind: ErrInvalidWorkflowStructure,
		}}}
	}
	return &doc, nil
}

// CreateRequest 转换为创建请求
func (d *DefinitionDocument) CreateRequest() *CreateWorkflowRequest {
	return &CreateWorkflowRequest{
		Name:        d.Name,
		Description: d.Description,
		IsActive:    d.Active,
		Steps:       d.Steps,
		Transitions: d.Transitions,
	}
}

// Validate 离线校验文档（不访问数据库）
func (d *DefinitionDocument) Validate() error {
	return NewValidator().Check(d.Steps, d.Transitions)
}

// ExportWorkflow 导出流程模板
func (s *WorkflowService) ExportWorkflow(ctx context.Context, tc tenant.TenantContext, id string, format ExportFormat) (*ExportResult, error) {
	detail, err := s.GetWorkflow(ctx, tc, id)
	if err != nil {
		return nil, err
	}
	data, err := NewDefinitionDocument(detail).Encode(format)
	if err != nil {
		return nil, fmt.Errorf("导出工作流失败: %w", err)
	}

	contentType := "application/x-yaml"
	if format == FormatJSON {
		contentType = "application/json"
	}
	return &ExportResult{
		Data:        data,
		Filename:    fmt.Sprintf("workflow_%s.%s", detail.ID, format),
		ContentType: contentType,
	}, nil
}

// ImportWorkflow 导入流程模板，走与创建相同的校验与写入路径
func (s *WorkflowService) ImportWorkflow(ctx context.Context, tc tenant.TenantContext, data []byte, format ExportFormat) (*WorkflowDetail, error) {
	doc, err := DecodeDefinition(data, format)
	if err != nil {
		return nil, err
	}
	return s.CreateWorkflow(ctx, tc, doc.CreateRequest())
}
