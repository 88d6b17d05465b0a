package models

import (
	"encoding/json"
)

// NodeType is the discriminant of the three node kinds.
type NodeType string

const (
	NodeTypeTrigger   NodeType = "Trigger"
	NodeTypeCondition NodeType = "Condition"
	NodeTypeAction    NodeType = "Action"
)

// Built-in trigger titles.
const (
	TriggerPageView     = "Page View"
	TriggerTimeSpent    = "Time Spent"
	TriggerExitIntent   = "Exit Intent"
	TriggerElementClick = "Element Click"
	TriggerFunnel       = "Funnel"
)

// Built-in condition titles.
const (
	ConditionURLPath       = "URL Path"
	ConditionTrafficSource = "Traffic Source"
	ConditionVisitorType   = "New vs Returning"
	ConditionDeviceType    = "Device Type"
)

// Built-in action titles.
const (
	ActionShowModal        = "Show Modal"
	ActionShowBanner       = "Show Banner"
	ActionShowNotification = "Show Notification"
	ActionRedirectURL      = "Redirect URL"
	ActionTrackEvent       = "Track Event"
	ActionWebhook          = "Webhook"
)

// Node is a single step of a workflow graph. Behaviour dispatches on (Type, Title);
// the recognised Settings keys depend on that pair.
type Node struct {
	ID             string         `json:"id"                       validate:"required"`
	Type           NodeType       `json:"type"                     validate:"required,oneof=Trigger Condition Action"`
	Title          string         `json:"title"                    validate:"required"`
	Settings       map[string]any `json:"settings,omitempty"`
	IsServerAction bool           `json:"isServerAction,omitempty"`
}

func (n *Node) IsTrigger() bool {
	return n.Type == NodeTypeTrigger
}

func (n *Node) IsCondition() bool {
	return n.Type == NodeTypeCondition
}

func (n *Node) IsAction() bool {
	return n.Type == NodeTypeAction
}

// Setting returns a raw setting value.
func (n *Node) Setting(key string) (any, bool) {
	if n.Settings == nil {
		return nil, false
	}

	v, ok := n.Settings[key]

	return v, ok
}

// StringSetting returns a string setting or "" when absent or not a string.
func (n *Node) StringSetting(key string) string {
	v, _ := n.Setting(key)
	s, _ := v.(string)

	return s
}

type nodeData struct {
	Type           NodeType       `json:"type"`
	Title          string         `json:"title"`
	Settings       map[string]any `json:"settings,omitempty"`
	IsServerAction bool           `json:"isServerAction,omitempty"`
}

// UnmarshalJSON accepts the flat node form and the editor form where the
// node payload is nested under "data".
func (n *Node) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID   string    `json:"id"`
		Data *nodeData `json:"data"`
		nodeData
	}

	err := json.Unmarshal(b, &raw)
	if err != nil {
		return err
	}

	n.ID = raw.ID

	data := raw.nodeData
	if raw.Data != nil {
		data = *raw.Data
	}

	n.Type = data.Type
	n.Title = data.Title
	n.Settings = data.Settings
	n.IsServerAction = data.IsServerAction

	return nil
}
