// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"github.com/google/uuid"
	"github.com/seentics/tracker/pkg/models"
)

// CreateTestNode creates a test Node with default values that can be overridden.
// The default is a client-side "Show Notification" action.
func CreateTestNode(overrides ...func(*models.Node)) *models.Node {
	node := &models.Node{
		ID:       uuid.New().String(),
		Type:     models.NodeTypeAction,
		Title:    models.ActionShowNotification,
		Settings: map[string]any{"notificationMessage": "test"},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithTriggerNode configures the node as a trigger of the given kind.
func WithTriggerNode(title string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeTrigger
		n.Title = title
		n.Settings = nil
	}
}

// WithConditionNode configures the node as a condition of the given kind.
func WithConditionNode(title string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeCondition
		n.Title = title
		n.Settings = nil
	}
}

// WithActionNode configures the node as an action of the given kind.
func WithActionNode(title string) func(*models.Node) {
	return func(n *models.Node) {
		n.Type = models.NodeTypeAction
		n.Title = title
		n.Settings = nil
	}
}

// WithSettings sets the node settings.
func WithSettings(settings map[string]any) func(*models.Node) {
	return func(n *models.Node) {
		n.Settings = settings
	}
}

// WithFrequency sets the frequency policy of an action node.
func WithFrequency(policy models.FrequencyPolicy) func(*models.Node) {
	return func(n *models.Node) {
		if n.Settings == nil {
			n.Settings = map[string]any{}
		}

		n.Settings[models.FrequencySettingKey] = string(policy)
	}
}

// WithServerAction flags the node for server-side execution.
func WithServerAction() func(*models.Node) {
	return func(n *models.Node) {
		n.IsServerAction = true
	}
}

// WithID sets the node ID.
func WithID(id string) func(*models.Node) {
	return func(n *models.Node) {
		n.ID = id
	}
}

// CreateTestWorkflow creates an active workflow without nodes.
func CreateTestWorkflow() *models.Workflow {
	return &models.Workflow{
		ID:     uuid.New().String(),
		Name:   "Test Workflow",
		SiteID: "test-site",
		Status: models.WorkflowStatusActive,
		Nodes:  []*models.Node{},
		Edges:  []*models.Edge{},
	}
}

// CreateChainWorkflow creates an active workflow whose nodes are connected in
// the given order.
func CreateChainWorkflow(id string, nodes ...*models.Node) *models.Workflow {
	workflow := CreateTestWorkflow()
	workflow.ID = id

	AddChain(workflow, nodes...)

	return workflow
}

// AddChain appends nodes to the workflow, connected in the given order.
func AddChain(workflow *models.Workflow, nodes ...*models.Node) {
	workflow.Nodes = append(workflow.Nodes, nodes...)

	for i := 1; i < len(nodes); i++ {
		workflow.Edges = append(workflow.Edges, CreateTestEdge(nodes[i-1].ID, nodes[i].ID))
	}
}

// CreateTestEdge creates an edge between two nodes.
func CreateTestEdge(sourceNodeID, targetNodeID string) *models.Edge {
	return &models.Edge{
		ID:     uuid.New().String(),
		Source: sourceNodeID,
		Target: targetNodeID,
	}
}
