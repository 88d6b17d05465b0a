package models

import "time"

// TelemetryType tags workflow events on the shared analytics pipeline.
const TelemetryType = "wf"

// WorkflowEventType names one step of a graph walk.
type WorkflowEventType string

const (
	EventWorkflowTrigger    WorkflowEventType = "workflow_trigger"
	EventConditionEvaluated WorkflowEventType = "condition_evaluated"
	EventActionStarted      WorkflowEventType = "action_started"
	EventActionCompleted    WorkflowEventType = "action_completed"
	EventActionFailed       WorkflowEventType = "action_failed"
	EventWorkflowStopped    WorkflowEventType = "workflow_stopped"
	EventWorkflowCompleted  WorkflowEventType = "workflow_completed"
)

const (
	ResultPassed = "passed"
	ResultFailed = "failed"

	StatusSuccess = "success"
	StatusError   = "error"

	ReasonConditionFailed = "condition_failed"
)

// MaxErrorLength bounds the error message carried by action_failed events.
const MaxErrorLength = 100

// TelemetryEvent is one workflow-channel record, shipped in batches.
type TelemetryEvent struct {
	Website    string            `json:"website"`
	Visitor    string            `json:"visitor"`
	Session    string            `json:"session"`
	Type       string            `json:"type"`
	WorkflowID string            `json:"workflowId"`
	NodeID     string            `json:"nodeId"`
	Event      WorkflowEventType `json:"event"`
	Timestamp  time.Time         `json:"timestamp"`
	RunID      string            `json:"runId,omitempty"`
	NodeTitle  string            `json:"nodeTitle,omitempty"`
	Result     string            `json:"result,omitempty"`
	Status     string            `json:"status,omitempty"`
	Error      string            `json:"error,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	TotalNodes int               `json:"totalNodes,omitempty"`
}

// TruncateError shortens an error message to MaxErrorLength runes.
func TruncateError(msg string) string {
	runes := []rune(msg)
	if len(runes) <= MaxErrorLength {
		return msg
	}

	return string(runes[:MaxErrorLength])
}

// Batch is the body of every batch endpoint.
type Batch[T any] struct {
	SiteID string `json:"siteId"`
	Events []T    `json:"events"`
}

// PageEventType names page-channel events.
const (
	PageEventPageview = "pageview"
	PageEventIdentify = "identify"
)

// PageEvent is one page-channel analytics record.
type PageEvent struct {
	WebsiteID   string         `json:"website_id"`
	VisitorID   string         `json:"visitor_id"`
	SessionID   string         `json:"session_id"`
	EventType   string         `json:"event_type"`
	Page        string         `json:"page"`
	Referrer    string         `json:"referrer,omitempty"`
	Title       string         `json:"title,omitempty"`
	UserID      string         `json:"user_id,omitempty"`
	Properties  map[string]any `json:"properties,omitempty"`
	Browser     string         `json:"browser"`
	Device      string         `json:"device"`
	OS          string         `json:"os"`
	ScreenWidth int            `json:"screen_width,omitempty"`
	IsReturning bool           `json:"is_returning"`
	Timestamp   time.Time      `json:"timestamp"`
}

// ServerActionRequest delegates an action node to the backend.
type ServerActionRequest struct {
	WorkflowID string `json:"workflowId"`
	NodeID     string `json:"nodeId"`
	SiteID     string `json:"siteId"`
	VisitorID  string `json:"visitorId"`
}
