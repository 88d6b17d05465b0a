// Package actions implements the built-in action kinds: on-page UI (modal,
// banner, notification), navigation, custom event tracking, webhooks and
// delegation of server-side actions.
package actions

import (
	"context"
	"log/slog"
	"strings"

	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/registry"
	"github.com/seentics/tracker/pkg/sandbox"
	"github.com/seentics/tracker/pkg/scheduler"
	"github.com/seentics/tracker/pkg/transport"
)

// Display modes of modal and banner actions.
const (
	DisplayModeStandard = "standard"
	DisplayModeCustom   = "custom"
)

// CSS classes of the injected containers.
const (
	ClassModalOverlay  = "seentics-modal-overlay"
	ClassModal         = "seentics-modal"
	ClassModalClose    = "seentics-modal-close"
	ClassCustomModal   = "seentics-custom-modal"
	ClassBanner        = "seentics-banner"
	ClassBannerClose   = "seentics-banner-close"
	ClassCustomBanner  = "seentics-custom-banner"
	ClassNotification  = "seentics-notification"
	ClassNotifyClose   = "seentics-notification-close"
	ClassNotifyExiting = "seentics-notification-exit"
)

// TrackFunc forwards a custom event to the page tracker.
type TrackFunc func(ctx context.Context, eventName string, properties map[string]any)

// Dependencies are the page facilities the actions act on.
type Dependencies struct {
	Page    *page.Page
	Sandbox *sandbox.Sandbox
	Timers  *scheduler.Timers
	Client  *transport.Client
	Track   TrackFunc
	Logger  *slog.Logger
}

// RegisterDefaults registers every built-in client-side action.
func RegisterDefaults(reg *registry.Registry, deps *Dependencies) {
	reg.RegisterAction(NewModalFactory(deps))
	reg.RegisterAction(NewBannerFactory(deps))
	reg.RegisterAction(NewNotificationFactory(deps))
	reg.RegisterAction(NewRedirectFactory(deps))
	reg.RegisterAction(NewTrackEventFactory(deps))
	reg.RegisterAction(NewWebhookFactory(deps))
}

// CloseAll removes every injected modal and banner.
func CloseAll(doc *page.Document) int {
	selector := strings.Join([]string{
		"." + ClassModalOverlay,
		"." + ClassCustomModal,
		"." + ClassBanner,
		"." + ClassCustomBanner,
	}, ", ")

	nodes, err := doc.QuerySelectorAll(selector)
	if err != nil {
		return 0
	}

	for _, n := range nodes {
		doc.Remove(n)
	}

	return len(nodes)
}

func (d *Dependencies) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default().With("module", "actions")
	}

	return d.Logger.With("module", "actions")
}
