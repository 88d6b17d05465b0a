// Package frequency decides how often an action node may run for a visitor.
//
// Reads and writes default differently on purpose: a node without a policy is
// checked as once_per_session but recorded as every_trigger, so it stays
// repeatable until a policy is configured.
package frequency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/storage"
)

const (
	sessionKeyFormat = "seentics_wf_session_%s_%s"
	everKeyFormat    = "seentics_wf_ever_%s_%s"
	timeSuffix       = "_time"
	executedMarker   = "true"
)

// Controller enforces frequency policies against the session and durable stores.
type Controller struct {
	session storage.Store
	durable storage.Store
	clock   clockwork.Clock
	logger  *slog.Logger
}

func NewController(session, durable storage.Store, clock clockwork.Clock, logger *slog.Logger) *Controller {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Controller{
		session: session,
		durable: durable,
		clock:   clock,
		logger:  logger.With("module", "frequency"),
	}
}

// SessionKey returns the session-scoped marker key of a node.
func SessionKey(workflowID, nodeID string) string {
	return fmt.Sprintf(sessionKeyFormat, workflowID, nodeID)
}

// EverKey returns the durable marker key of a node.
func EverKey(workflowID, nodeID string) string {
	return fmt.Sprintf(everKeyFormat, workflowID, nodeID)
}

// Policy returns the configured policy of a node, or "" when unset.
func Policy(node *models.Node) models.FrequencyPolicy {
	return models.FrequencyPolicy(node.StringSetting(models.FrequencySettingKey))
}

// CanExecute reports whether the node is eligible. Unset policies are read as
// once_per_session; storage errors count as eligible.
func (c *Controller) CanExecute(ctx context.Context, workflowID string, node *models.Node) bool {
	policy := Policy(node)
	if policy == "" {
		policy = models.FrequencyOncePerSession
	}

	switch policy {
	case models.FrequencyEveryTrigger:
		return true
	case models.FrequencyOncePerSession:
		return !c.marked(ctx, c.session, SessionKey(workflowID, node.ID))
	case models.FrequencyOnceEver:
		return !c.marked(ctx, c.durable, EverKey(workflowID, node.ID))
	default:
		return true
	}
}

// Record marks the node as executed under its policy. Unset policies are
// recorded as every_trigger, which keeps no marker. Errors are ignored.
func (c *Controller) Record(ctx context.Context, workflowID string, node *models.Node) {
	var (
		store storage.Store
		key   string
	)

	switch Policy(node) {
	case models.FrequencyOncePerSession:
		store, key = c.session, SessionKey(workflowID, node.ID)
	case models.FrequencyOnceEver:
		store, key = c.durable, EverKey(workflowID, node.ID)
	default:
		return
	}

	if store == nil {
		return
	}

	now := c.clock.Now().UTC().Format(time.RFC3339)

	for k, v := range map[string]string{key: executedMarker, key + timeSuffix: now} {
		if err := store.Set(ctx, k, v); err != nil {
			c.logger.DebugContext(ctx, "failed to record execution", "workflow_id", workflowID, "node_id", node.ID, "key", k, "error", err)
		}
	}
}

func (c *Controller) marked(ctx context.Context, store storage.Store, key string) bool {
	value, ok := storage.Lookup(ctx, store, key)

	return ok && value == executedMarker
}
