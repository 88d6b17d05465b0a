package models

// Device classes reported by the identity provider.
const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"
	DeviceAny     = "Any"
)

// DeviceInfo is the user-agent classification of the current visitor.
type DeviceInfo struct {
	Browser string `json:"browser"`
	Device  string `json:"device"`
	OS      string `json:"os"`
}

// Identity is the visitor/session pair of the current page view.
type Identity struct {
	VisitorID   string `json:"visitorId"`
	SessionID   string `json:"sessionId"`
	IsReturning bool   `json:"isReturning"`
}

// PageContext is a snapshot of the page and visitor state that conditions and
// actions are evaluated against.
type PageContext struct {
	SiteID       string
	URL          string
	Path         string
	Referrer     string
	ScreenWidth  int
	TouchSupport bool
	Device       DeviceInfo
	Identity     Identity
}

// FrequencyPolicy governs how often an action node may execute for a visitor.
type FrequencyPolicy string

const (
	FrequencyEveryTrigger   FrequencyPolicy = "every_trigger"
	FrequencyOncePerSession FrequencyPolicy = "once_per_session"
	FrequencyOnceEver       FrequencyPolicy = "once_ever"
)

// FrequencySettingKey is the action setting holding the frequency policy.
const FrequencySettingKey = "frequency"

// RunOutcome is the terminal state of a graph walk.
type RunOutcome string

const (
	RunInert     RunOutcome = "inert"     // Triggered, nothing eligible to run
	RunCompleted RunOutcome = "completed" // At least one action completed
	RunExhausted RunOutcome = "exhausted" // Walk ended without a completed action
	RunStopped   RunOutcome = "stopped"   // A condition failed
	RunAbandoned RunOutcome = "abandoned" // Torn down mid-walk
)

// RunResult summarises one graph walk.
type RunResult struct {
	RunID           string
	WorkflowID      string
	TriggerID       string
	Outcome         RunOutcome
	ExecutedActions []string
	FailedActions   []string
}

// ExecutionContext is what a condition or action node sees while a walk is
// running.
type ExecutionContext struct {
	RunID      string
	WorkflowID string
	NodeID     string
	NodeTitle  string
	Page       PageContext
}
