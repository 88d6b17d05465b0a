// Package models defines the workflow graph, telemetry and visitor models shared by the tracker.
package models

// WorkflowStatus represents the lifecycle state of a workflow as authored on the dashboard.
type WorkflowStatus string

const (
	WorkflowStatusActive   WorkflowStatus = "Active"   // Loaded by the tracker
	WorkflowStatusInactive WorkflowStatus = "Inactive" // Ignored
	WorkflowStatusDraft    WorkflowStatus = "Draft"    // Ignored
)

// PreviewSiteID is the site id that switches the catalog to the injected preview workflow.
const PreviewSiteID = "preview"

// Workflow is a directed graph of trigger, condition and action nodes.
// It is created on the dashboard and never mutated by the tracker.
type Workflow struct {
	ID     string         `json:"id"               validate:"required"`
	Name   string         `json:"name,omitempty"`
	SiteID string         `json:"siteId,omitempty"`
	Status WorkflowStatus `json:"status"`
	Nodes  []*Node        `json:"nodes"            validate:"dive"`
	Edges  []*Edge        `json:"edges"            validate:"dive"`
}

// IsActive reports whether the tracker should load the workflow.
func (w *Workflow) IsActive() bool {
	return w.Status == WorkflowStatusActive
}

// NodeByID returns the node with the given id.
func (w *Workflow) NodeByID(id string) (*Node, bool) {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node, true
		}
	}

	return nil, false
}

// NextNode follows the first edge leaving the given node.
func (w *Workflow) NextNode(sourceID string) (*Node, bool) {
	for _, edge := range w.Edges {
		if edge.Source == sourceID {
			return w.NodeByID(edge.Target)
		}
	}

	return nil, false
}

// TriggersByTitle returns every trigger node of the given kind.
func (w *Workflow) TriggersByTitle(title string) []*Node {
	var triggers []*Node

	for _, node := range w.Nodes {
		if node.IsTrigger() && node.Title == title {
			triggers = append(triggers, node)
		}
	}

	return triggers
}

// ActionNodes returns every action node in the graph.
func (w *Workflow) ActionNodes() []*Node {
	var actions []*Node

	for _, node := range w.Nodes {
		if node.IsAction() {
			actions = append(actions, node)
		}
	}

	return actions
}

// Edge connects two nodes. Only the first edge per source is followed.
type Edge struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"        validate:"required"`
	Target string `json:"target"        validate:"required"`
}

// WorkflowsResponse is the body of the active workflows endpoint.
type WorkflowsResponse struct {
	Workflows []*Workflow `json:"workflows"`
}
