package protocol

import (
	"context"

	"github.com/seentics/tracker/pkg/models"
)

// Condition gates a graph walk.
type Condition interface {
	Evaluate(ctx context.Context, execCtx models.ExecutionContext) (bool, error)
}

type ConditionFactory interface {
	NodeFactory
	Create(settings map[string]any) (Condition, error)
}

// Action performs one side effect for an action node.
type Action interface {
	Execute(ctx context.Context, execCtx models.ExecutionContext) error
}

type ActionFactory interface {
	NodeFactory
	Create(settings map[string]any) (Action, error)
}

// ConditionFunc adapts a function to a Condition.
type ConditionFunc func(ctx context.Context, execCtx models.ExecutionContext) (bool, error)

func (f ConditionFunc) Evaluate(ctx context.Context, execCtx models.ExecutionContext) (bool, error) {
	return f(ctx, execCtx)
}

// ActionFunc adapts a function to an Action.
type ActionFunc func(ctx context.Context, execCtx models.ExecutionContext) error

func (f ActionFunc) Execute(ctx context.Context, execCtx models.ExecutionContext) error {
	return f(ctx, execCtx)
}
