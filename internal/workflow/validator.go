package workflow

import (
	"fmt"
	"strings"
)

// Validator 流程图校验器，纯函数，不访问数据库
type Validator struct{}

// NewValidator 创建校验器
func NewValidator() *Validator {
	return &Validator{}
}

// Validate 校验步骤与流转，返回全部字段错误（为空表示通过）
func (v *Validator) Validate(steps []StepInput, transitions []TransitionInput) []ValidationError {
	var errs []ValidationError
	add := func(kind error, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Kind: kind})
	}

	if len(steps) == 0 {
		add(ErrInvalidWorkflowStructure, "steps", "至少需要一个步骤")
		return errs
	}

	byClientID := make(map[string]StepInput, len(steps))
	startCount, endCount := 0, 0
	for i, raw := range steps {
		s := raw.normalized()
		field := fmt.Sprintf("steps[%d]", i)

		if s.ClientID == "" {
			add(ErrInvalidWorkflowStructure, field+".clientId", "步骤标识不能为空")
		} else if _, dup := byClientID[s.ClientID]; dup {
			add(ErrDuplicateStepReference, field+".clientId", "步骤标识重复: %s", s.ClientID)
		} else {
			byClientID[s.ClientID] = s
		}
		if s.Name == "" {
			add(ErrInvalidWorkflowStructure, field+".name", "步骤名称不能为空")
		}
		if !s.Type.IsValid() {
			add(ErrInvalidWorkflowStructure, field+".type", "不支持的步骤类型: %s", raw.Type)
		}
		if !s.AssigneeType.IsValid() {
			add(ErrInvalidWorkflowStructure, field+".assigneeType", "不支持的处理人类型: %s", raw.AssigneeType)
		}
		if s.AssigneeType == AssigneeFixed && s.Type != StepTypeEnd && s.AssigneeValue == "" {
			add(ErrInvalidWorkflowStructure, field+".assigneeValue", "固定处理人步骤必须指定处理人")
		}
		if s.StepOrder != nil && *s.StepOrder < 0 {
			add(ErrInvalidWorkflowStructure, field+".stepOrder", "步骤顺序不能为负数")
		}

		switch s.Type {
		case StepTypeStart:
			startCount++
		case StepTypeEnd:
			endCount++
		}
	}

	if startCount != 1 {
		add(ErrInvalidWorkflowStructure, "steps", "必须有且仅有一个开始步骤，当前为 %d 个", startCount)
	}
	if endCount == 0 {
		add(ErrInvalidWorkflowStructure, "steps", "至少需要一个结束步骤")
	}

	graphOK := true
	actionKeys := make(map[string]int, len(transitions))
	for i, raw := range transitions {
		t := raw.normalized()
		field := fmt.Sprintf("transitions[%d]", i)

		from, fromOK := byClientID[t.From]
		if !fromOK {
			add(ErrDanglingTransitionReference, field+".from", "流转起点步骤不存在: %s", t.From)
			graphOK = false
		}
		if _, ok := byClientID[t.To]; !ok {
			add(ErrDanglingTransitionReference, field+".to", "流转终点步骤不存在: %s", t.To)
			graphOK = false
		}
		if t.Action == "" {
			add(ErrInvalidWorkflowStructure, field+".action", "动作名称不能为空")
			continue
		}
		if fromOK && from.Type == StepTypeEnd {
			add(ErrInvalidWorkflowStructure, field+".from", "结束步骤不能有流出的流转: %s", t.From)
		}

		key := t.From + "\x00" + strings.ToLower(t.Action)
		if first, dup := actionKeys[key]; dup {
			add(ErrDuplicateTransitionAction, field+".action",
				"步骤 %s 的动作 %q 与 transitions[%d] 重复", t.From, t.Action, first)
			continue
		}
		actionKeys[key] = i
	}

	if graphOK && startCount == 1 && endCount > 0 && !endReachable(steps, transitions) {
		add(ErrInvalidWorkflowStructure, "transitions", "从开始步骤无法到达任何结束步骤")
	}
	return errs
}

// Check 校验并返回 *DefinitionError
func (v *Validator) Check(steps []StepInput, transitions []TransitionInput) error {
	if errs := v.Validate(steps, transitions); len(errs) > 0 {
		return &DefinitionError{Errors: errs}
	}
	return nil
}

// endReachable 从开始步骤广度优先搜索是否可达结束步骤
func endReachable(steps []StepInput, transitions []TransitionInput) bool {
	types := make(map[string]StepType, len(steps))
	var start string
	for _, raw := range steps {
		s := raw.normalized()
		types[s.ClientID] = s.Type
		if s.Type == StepTypeStart {
			start = s.ClientID
		}
	}

	edges := make(map[string][]string)
	for _, raw := range transitions {
		t := raw.normalized()
		edges[t.From] = append(edges[t.From], t.To)
	}

	visited := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if types[cur] == StepTypeEnd {
			return true
		}
		for _, next := range edges[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}
