package actions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Jeffail/gabs/v2"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/protocol"
	"github.com/seentics/tracker/pkg/transport"
)

var ErrInvalidWebhookURL = errors.New("webhook url must be an absolute http(s) url")

type webhookSettings struct {
	URL     string `mapstructure:"webhookUrl"`
	Method  string `mapstructure:"webhookMethod"`
	Headers any    `mapstructure:"webhookHeaders"`
	Data    any    `mapstructure:"webhookData"`
}

// WebhookFactory builds "Webhook" actions. The request is sent in the
// background and its outcome never reaches the walk.
type WebhookFactory struct {
	deps *Dependencies
}

func NewWebhookFactory(deps *Dependencies) protocol.ActionFactory {
	return &WebhookFactory{deps: deps}
}

func (f *WebhookFactory) ID() string {
	return models.ActionWebhook
}

func (f *WebhookFactory) Description() string {
	return "Calls an external URL with the workflow context and custom data."
}

func (f *WebhookFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []any{"webhookUrl"},
		"properties": map[string]any{
			"webhookUrl": map[string]any{"type": "string", "minLength": 1},
			"webhookMethod": map[string]any{
				"type": "string",
				"enum": []any{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, ""},
			},
			"webhookHeaders": map[string]any{"type": []any{"object", "string"}},
			"webhookData":    map[string]any{"type": []any{"object", "string"}},
		},
	}
}

func (f *WebhookFactory) Create(settings map[string]any) (protocol.Action, error) {
	var s webhookSettings

	if err := protocol.DecodeSettings(settings, &s); err != nil {
		return nil, err
	}

	target, err := url.Parse(s.URL)
	if err != nil || (target.Scheme != "http" && target.Scheme != "https") || target.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidWebhookURL, s.URL)
	}

	method := strings.ToUpper(s.Method)
	if method == "" {
		method = http.MethodPost
	}

	headers, err := toContainer(s.Headers)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook headers: %w", err)
	}

	data, err := toContainer(s.Data)
	if err != nil {
		return nil, fmt.Errorf("invalid webhook data: %w", err)
	}

	requestHeaders := map[string]string{"Content-Type": "application/json"}
	for key, value := range headers.ChildrenMap() {
		requestHeaders[key] = stringValue(value)
	}

	return protocol.ActionFunc(func(ctx context.Context, execCtx models.ExecutionContext) error {
		body := webhookPayload(execCtx, f.deps.Timers.Clock().Now().UTC().Format(timestampLayout), data)

		f.deps.Client.FireAndForget(ctx, method, s.URL, requestHeaders, body.Bytes())

		return nil
	}), nil
}

const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

// webhookPayload merges the workflow context with custom data. Custom keys win.
func webhookPayload(execCtx models.ExecutionContext, timestamp string, data *gabs.Container) *gabs.Container {
	payload := gabs.New()

	_, _ = payload.Set(execCtx.WorkflowID, "workflowId")
	_, _ = payload.Set(execCtx.NodeID, "nodeId")
	_, _ = payload.Set(execCtx.Page.SiteID, "siteId")
	_, _ = payload.Set(execCtx.Page.Identity.VisitorID, "visitorId")
	_, _ = payload.Set(execCtx.Page.Identity.SessionID, "sessionId")
	_, _ = payload.Set(execCtx.Page.URL, "pageUrl")
	_, _ = payload.Set(timestamp, "timestamp")

	for key, value := range data.ChildrenMap() {
		_, _ = payload.Set(value.Data(), key)
	}

	return payload
}

// toContainer accepts an object or its JSON encoding.
func toContainer(v any) (*gabs.Container, error) {
	switch value := v.(type) {
	case nil:
		return gabs.New(), nil
	case string:
		if strings.TrimSpace(value) == "" {
			return gabs.New(), nil
		}

		return gabs.ParseJSON([]byte(value))
	case map[string]any:
		return gabs.Wrap(value), nil
	default:
		return nil, fmt.Errorf("unsupported value of type %T", v)
	}
}

func stringValue(c *gabs.Container) string {
	if s, ok := c.Data().(string); ok {
		return s
	}

	return c.String()
}

// ServerAction delegates an action node flagged isServerAction to the backend.
type ServerAction struct {
	client *transport.Client
}

func NewServerAction(client *transport.Client) *ServerAction {
	return &ServerAction{client: client}
}

func (a *ServerAction) Execute(ctx context.Context, execCtx models.ExecutionContext) error {
	body := gabs.Wrap(models.ServerActionRequest{
		WorkflowID: execCtx.WorkflowID,
		NodeID:     execCtx.NodeID,
		SiteID:     execCtx.Page.SiteID,
		VisitorID:  execCtx.Page.Identity.VisitorID,
	})

	a.client.FireAndForget(ctx, http.MethodPost, a.client.URL(transport.PathServerAction),
		map[string]string{"Content-Type": "application/json"}, body.EncodeJSON())

	return nil
}
