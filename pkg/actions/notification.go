package actions

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
	"golang.org/x/net/html"
)

// Notification types and positions.
const (
	NotifyInfo    = "info"
	NotifySuccess = "success"
	NotifyWarning = "warning"
	NotifyError   = "error"

	PositionTopRight    = "top-right"
	PositionTopLeft     = "top-left"
	PositionBottomRight = "bottom-right"
	PositionBottomLeft  = "bottom-left"
	PositionTop         = "top"
	PositionBottom      = "bottom"
)

const (
	DefaultNotificationDuration = 5 * time.Second

	// NotificationExitDelay is how long the exit animation runs before removal.
	NotificationExitDelay = 300 * time.Millisecond
)

var notificationIcons = map[string]string{
	NotifyInfo:    "ℹ",
	NotifySuccess: "✓",
	NotifyWarning: "⚠",
	NotifyError:   "✕",
}

var notificationPositions = map[string]bool{
	PositionTopRight:    true,
	PositionTopLeft:     true,
	PositionBottomRight: true,
	PositionBottomLeft:  true,
	PositionTop:         true,
	PositionBottom:      true,
}

const notificationStyle = `.seentics-notification{position:fixed;z-index:2147483647;display:flex;gap:8px;padding:12px 16px;border-radius:6px;background:#fff;box-shadow:0 4px 12px rgba(0,0,0,.15);transition:opacity .3s}
.seentics-notification-top-right{top:16px;right:16px}.seentics-notification-top-left{top:16px;left:16px}
.seentics-notification-bottom-right{bottom:16px;right:16px}.seentics-notification-bottom-left{bottom:16px;left:16px}
.seentics-notification-top{top:16px;left:50%}.seentics-notification-bottom{bottom:16px;left:50%}
.seentics-notification-exit{opacity:0}`

type notificationSettings struct {
	Message         string `mapstructure:"notificationMessage"`
	Type            string `mapstructure:"notificationType"`
	Position        string `mapstructure:"notificationPosition"`
	Duration        *int   `mapstructure:"notificationDuration"` // milliseconds, 0 keeps it open
	ShowIcon        *bool  `mapstructure:"showIcon"`
	ShowCloseButton *bool  `mapstructure:"showCloseButton"`
	ClickToDismiss  bool   `mapstructure:"clickToDismiss"`
}

// NotificationFactory builds "Show Notification" actions.
type NotificationFactory struct {
	deps *Dependencies
}

func NewNotificationFactory(deps *Dependencies) protocol.ActionFactory {
	return &NotificationFactory{deps: deps}
}

func (f *NotificationFactory) ID() string {
	return models.ActionShowNotification
}

func (f *NotificationFactory) Description() string {
	return "Shows a toast that dismisses itself after a configurable duration."
}

func (f *NotificationFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"notificationMessage": map[string]any{"type": "string"},
			"notificationType": map[string]any{
				"type": "string",
				"enum": []any{NotifyInfo, NotifySuccess, NotifyWarning, NotifyError, ""},
			},
			"notificationPosition": map[string]any{"type": "string"},
			"notificationDuration": map[string]any{"type": []any{"integer", "string"}},
			"showIcon":             map[string]any{"type": "boolean"},
			"showCloseButton":      map[string]any{"type": "boolean"},
			"clickToDismiss":       map[string]any{"type": "boolean"},
		},
	}
}

// notification is the resolved configuration of one toast.
type notification struct {
	message         string
	kind            string
	position        string
	duration        time.Duration
	showIcon        bool
	showCloseButton bool
	clickToDismiss  bool
}

func (f *NotificationFactory) Create(settings map[string]any) (protocol.Action, error) {
	var s notificationSettings

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	n := notification{
		message:         s.Message,
		kind:            s.Type,
		position:        s.Position,
		duration:        DefaultNotificationDuration,
		showIcon:        true,
		showCloseButton: true,
		clickToDismiss:  s.ClickToDismiss,
	}

	if _, ok := notificationIcons[n.kind]; !ok {
		n.kind = NotifyInfo
	}

	if !notificationPositions[n.position] {
		n.position = PositionTopRight
	}

	if s.Duration != nil {
		n.duration = max(time.Duration(*s.Duration)*time.Millisecond, 0)
	}

	if s.ShowIcon != nil {
		n.showIcon = *s.ShowIcon
	}

	if s.ShowCloseButton != nil {
		n.showCloseButton = *s.ShowCloseButton
	}

	return protocol.ActionFunc(func(_ context.Context, _ models.ExecutionContext) error {
		return f.show(n)
	}), nil
}

func (f *NotificationFactory) show(n notification) error {
	doc := f.deps.Page.Document()

	if err := f.deps.Sandbox.InjectStyle("seentics-notification-style", notificationStyle); err != nil {
		return err
	}

	toast, err := doc.AppendElement(doc.Body(), "div", map[string]string{
		"class": fmt.Sprintf("%s %s-%s %s-%s", ClassNotification, ClassNotification, n.kind, ClassNotification, n.position),
		"role":  "status",
	}, "")
	if err != nil {
		return err
	}

	if n.showIcon {
		if _, err := doc.AppendElement(toast, "span", map[string]string{"class": ClassNotification + "-icon"}, notificationIcons[n.kind]); err != nil {
			return err
		}
	}

	if _, err := doc.AppendElement(toast, "span", map[string]string{"class": ClassNotification + "-message"}, n.message); err != nil {
		return err
	}

	var once sync.Once

	dismiss := func() {
		once.Do(func() {
			doc.SetAttr(toast, "class", classOf(toast)+" "+ClassNotifyExiting)
			f.deps.Timers.AfterFunc(NotificationExitDelay, func() { doc.Remove(toast) })
		})
	}

	if n.showCloseButton {
		button, err := doc.AppendElement(toast, "button", map[string]string{
			"class":      ClassNotifyClose,
			"aria-label": "Close",
		}, "×")
		if err != nil {
			return err
		}

		doc.OnClick(button, dismiss)
	}

	if n.clickToDismiss {
		doc.OnClick(toast, dismiss)
	}

	if n.duration > 0 {
		f.deps.Timers.AfterFunc(n.duration, dismiss)
	}

	return nil
}

func classOf(n *html.Node) string {
	for _, a := range n.Attr {
		if a.Key == "class" {
			return a.Val
		}
	}

	return ""
}
