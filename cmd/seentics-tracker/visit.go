package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/seentics"
)

var (
	ErrInvalidViewport = errors.New("viewport must look like 1280x800")
	ErrInvalidFunnel   = errors.New("funnel step must look like funnel-id:event-type")
)

type funnelStep struct {
	FunnelID  string
	EventType string
}

// visit is the scripted behaviour of the simulated visitor. Steps run in field
// order: navigations, clicks, funnel steps, exit intent, then the dwell.
type visit struct {
	Navigate   []string
	Clicks     []string
	Funnels    []funnelStep
	ExitIntent bool
	Dwell      time.Duration
}

func parseViewport(value string) (int, error) {
	if value == "" {
		return 0, nil
	}

	width, _, _ := strings.Cut(strings.ToLower(value), "x")

	n, err := strconv.Atoi(width)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidViewport, value)
	}

	return n, nil
}

func parseFunnels(values []string) ([]funnelStep, error) {
	steps := make([]funnelStep, 0, len(values))

	for _, v := range values {
		id, eventType, ok := strings.Cut(v, ":")
		if !ok || id == "" || eventType == "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidFunnel, v)
		}

		steps = append(steps, funnelStep{FunnelID: id, EventType: eventType})
	}

	return steps, nil
}

// play runs the visit against the page. Missing click targets are reported
// and skipped.
func (v visit) play(ctx context.Context, client *seentics.Client, p *page.Page, clock clockwork.Clock, report func(format string, args ...any)) error {
	for _, path := range v.Navigate {
		if err := p.History().PushState(path); err != nil {
			return err
		}
	}

	for _, selector := range v.Clicks {
		if err := p.Click(selector); err != nil {
			report("click %s: %v", selector, err)
		}
	}

	for _, step := range v.Funnels {
		client.FunnelEvent(step.FunnelID, step.EventType)
	}

	if v.ExitIntent {
		p.MoveMouse(p.ScreenWidth()/2, 0)
	}

	if v.Dwell <= 0 {
		return nil
	}

	select {
	case <-clock.After(v.Dwell):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
