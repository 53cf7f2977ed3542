package workflow

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func approvalSteps() []StepInput {
	return []StepInput{
		{ClientID: "s", Name: "提交", Type: StepTypeStart},
		{ClientID: "r", Name: "审核", Type: StepTypeReview, AssigneeType: AssigneeFixed, AssigneeValue: "u-reviewer"},
		{ClientID: "e", Name: "完成", Type: StepTypeEnd},
	}
}

func approvalTransitions() []TransitionInput {
	return []TransitionInput{
		{From: "s", To: "r", Action: "submit"},
		{From: "r", To: "e", Action: "approve"},
		{From: "r", To: "s", Action: "reject"},
	}
}

func kinds(errs []ValidationError) []error {
	out := make([]error, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Kind)
	}
	return out
}

func TestValidatorAcceptsValidGraph(t *testing.T) {
	v := NewValidator()
	assert.Empty(t, v.Validate(approvalSteps(), approvalTransitions()))
	assert.NoError(t, v.Check(approvalSteps(), approvalTransitions()))
}

func TestValidatorStartAndEndCardinality(t *testing.T) {
	v := NewValidator()

	t.Run("empty", func(t *testing.T) {
		errs := v.Validate(nil, nil)
		require.Len(t, errs, 1)
		assert.ErrorIs(t, errs[0].Kind, ErrInvalidWorkflowStructure)
	})

	t.Run("missing start", func(t *testing.T) {
		steps := approvalSteps()
		steps[0].Type = StepTypeUserTask
		err := v.Check(steps, approvalTransitions())
		assert.ErrorIs(t, err, ErrInvalidWorkflowStructure)
	})

	t.Run("two starts", func(t *testing.T) {
		steps := append(approvalSteps(), StepInput{ClientID: "s2", Name: "另一个开始", Type: StepTypeStart})
		err := v.Check(steps, approvalTransitions())
		assert.ErrorIs(t, err, ErrInvalidWorkflowStructure)
	})

	t.Run("no end", func(t *testing.T) {
		steps := approvalSteps()[:2]
		err := v.Check(steps, []TransitionInput{{From: "s", To: "r", Action: "submit"}})
		assert.ErrorIs(t, err, ErrInvalidWorkflowStructure)
	})
}

func TestValidatorReferences(t *testing.T) {
	v := NewValidator()

	t.Run("duplicate client id", func(t *testing.T) {
		steps := append(approvalSteps(), StepInput{ClientID: "r", Name: "复核", Type: StepTypeReview})
		err := v.Check(steps, approvalTransitions())
		assert.ErrorIs(t, err, ErrDuplicateStepReference)
	})

	t.Run("dangling transition", func(t *testing.T) {
		trs := append(approvalTransitions(), TransitionInput{From: "r", To: "ghost", Action: "escalate"})
		err := v.Check(approvalSteps(), trs)
		assert.ErrorIs(t, err, ErrDanglingTransitionReference)
		assert.NotErrorIs(t, err, ErrInvalidWorkflowStructure)
	})

	t.Run("duplicate action ignores case", func(t *testing.T) {
		trs := append(approvalTransitions(), TransitionInput{From: "r", To: "s", Action: "APPROVE"})
		err := v.Check(approvalSteps(), trs)
		assert.ErrorIs(t, err, ErrDuplicateTransitionAction)
	})

	t.Run("same action on different steps is fine", func(t *testing.T) {
		trs := append(approvalTransitions(), TransitionInput{From: "s", To: "e", Action: "approve"})
		assert.NoError(t, v.Check(approvalSteps(), trs))
	})
}

func TestValidatorStepFields(t *testing.T) {
	v := NewValidator()

	steps := approvalSteps()
	steps[1].AssigneeValue = ""
	steps[1].Type = "review" // 大小写不敏感
	errs := v.Validate(steps, approvalTransitions())
	require.Len(t, errs, 1)
	assert.Equal(t, "steps[1].assigneeValue", errs[0].Field)

	steps = approvalSteps()
	steps[1].Type = "APPROVAL"
	steps[2].Name = "  "
	errs = v.Validate(steps, approvalTransitions())
	require.Len(t, errs, 2)
	assert.Equal(t, "steps[1].type", errs[0].Field)
	assert.Equal(t, "steps[2].name", errs[1].Field)
}

func TestValidatorGraphShape(t *testing.T) {
	v := NewValidator()

	t.Run("end unreachable", func(t *testing.T) {
		trs := []TransitionInput{{From: "s", To: "r", Action: "submit"}, {From: "r", To: "s", Action: "reject"}}
		err := v.Check(approvalSteps(), trs)
		assert.ErrorIs(t, err, ErrInvalidWorkflowStructure)
	})

	t.Run("end has outgoing edge", func(t *testing.T) {
		trs := append(approvalTransitions(), TransitionInput{From: "e", To: "s", Action: "reopen"})
		err := v.Check(approvalSteps(), trs)
		assert.ErrorIs(t, err, ErrInvalidWorkflowStructure)
	})

	t.Run("blank action", func(t *testing.T) {
		trs := append(approvalTransitions(), TransitionInput{From: "s", To: "e", Action: " "})
		err := v.Check(approvalSteps(), trs)
		assert.ErrorIs(t, err, ErrInvalidWorkflowStructure)
	})
}

func TestDefinitionErrorCollectsKinds(t *testing.T) {
	steps := append(approvalSteps(), StepInput{ClientID: "s", Name: "重复", Type: StepTypeUserTask})
	trs := append(approvalTransitions(), TransitionInput{From: "s", To: "nowhere", Action: "go"})

	err := NewValidator().Check(steps, trs)
	require.Error(t, err)

	var defErr *DefinitionError
	require.True(t, errors.As(err, &defErr))
	assert.Equal(t, []error{ErrDuplicateStepReference, ErrDanglingTransitionReference}, defErr.Unwrap())
	assert.Len(t, defErr.Details(), 2)
	assert.Equal(t, kinds(defErr.Errors), defErr.Unwrap())
}
