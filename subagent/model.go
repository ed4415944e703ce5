package subagent

import (
	"github.com/randalmurphal/llmkit/model"
)

// TaskType is the kind of work a sub-agent performs. It decides which model
// tier the sub-agent runs on when its Definition names no model.
type TaskType string

const (
	// Reasoning-heavy work
	TaskInvestigate  TaskType = "investigate"
	TaskArchitecture TaskType = "architecture"
	TaskJudge        TaskType = "judge"

	// Standard work
	TaskImplement TaskType = "implement"
	TaskReview    TaskType = "review"
	TaskValidate  TaskType = "validate"
	TaskFix       TaskType = "fix"

	// Fast work
	TaskSearch    TaskType = "search"
	TaskTransform TaskType = "transform"
	TaskSummarize TaskType = "summarize"
)

// DefaultModelMap maps task types to default models.
var DefaultModelMap = map[TaskType]model.ModelName{
	TaskInvestigate:  model.ModelOpus,
	TaskArchitecture: model.ModelOpus,
	TaskJudge:        model.ModelOpus,
	TaskImplement:    model.ModelSonnet,
	TaskReview:       model.ModelSonnet,
	TaskValidate:     model.ModelSonnet,
	TaskFix:          model.ModelSonnet,
	TaskSearch:       model.ModelHaiku,
	TaskTransform:    model.ModelHaiku,
	TaskSummarize:    model.ModelHaiku,
}

// TierFor returns the model tier for a task type.
func TierFor(t TaskType) model.Tier {
	switch t {
	case TaskInvestigate, TaskArchitecture, TaskJudge:
		return model.TierThinking
	case TaskSearch, TaskTransform, TaskSummarize:
		return model.TierFast
	default:
		return model.TierDefault
	}
}

// NewSelector creates a model selector keyed by TaskType.
func NewSelector(opts ...model.SelectorOption) *model.Selector {
	allOpts := append([]model.SelectorOption{
		model.WithTierFunc(func(task any) model.Tier {
			if t, ok := task.(TaskType); ok {
				return TierFor(t)
			}
			return model.TierDefault
		}),
	}, opts...)

	return model.NewSelector(allOpts...)
}

// SelectModel picks the model for a task type.
func SelectModel(t TaskType) model.ModelName {
	if m, ok := DefaultModelMap[t]; ok {
		return m
	}
	switch TierFor(t) {
	case model.TierThinking:
		return model.ModelOpus
	case model.TierFast:
		return model.ModelHaiku
	default:
		return model.ModelSonnet
	}
}

// ModelFor returns the model a definition runs on: its explicit Model if
// set, otherwise the selection for its task type.
func ModelFor(def Definition) string {
	if def.Model != "" {
		return def.Model
	}
	return string(SelectModel(def.Task))
}
