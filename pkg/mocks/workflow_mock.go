package mocks

import (
	"context"

	"github.com/seentics/tracker/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockRunner is a mock implementation of trigger.Runner interface.
type MockRunner struct {
	mock.Mock
}

func (m *MockRunner) Run(ctx context.Context, workflow *models.Workflow, trigger *models.Node) models.RunResult {
	args := m.Called(ctx, workflow, trigger)

	if result, ok := args.Get(0).(models.RunResult); ok {
		return result
	}

	return models.RunResult{WorkflowID: workflow.ID, TriggerID: trigger.ID}
}

// MockAction is a mock implementation of protocol.Action interface.
type MockAction struct {
	mock.Mock
}

func (m *MockAction) Execute(ctx context.Context, execCtx models.ExecutionContext) error {
	args := m.Called(ctx, execCtx)

	return args.Error(0)
}

// MockWorkflowSource is a mock implementation of catalog.Source interface.
type MockWorkflowSource struct {
	mock.Mock
}

func (m *MockWorkflowSource) ActiveWorkflowsURL(siteID string) string {
	args := m.Called(siteID)

	return args.String(0)
}

func (m *MockWorkflowSource) GetJSON(ctx context.Context, rawURL string, out any) error {
	args := m.Called(ctx, rawURL, out)

	return args.Error(0)
}
