// Package metrics counts what the tracker would otherwise do silently:
// telemetry deliveries, dropped batches, walk outcomes and action results.
// Recording never changes wire behaviour.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/seentics/tracker/pkg/models"
)

// Channel names a telemetry stream.
type Channel string

const (
	ChannelPage     Channel = "page"
	ChannelWorkflow Channel = "workflow"
)

// Recorder receives tracker observations.
type Recorder interface {
	TelemetryDelivered(channel Channel, events int)
	TelemetryFailed(channel Channel, events int)
	WalkFinished(outcome models.RunOutcome)
	ActionFinished(title, status string, elapsed time.Duration)
}

// Noop discards every observation.
type Noop struct{}

func (Noop) TelemetryDelivered(Channel, int) {}
func (Noop) TelemetryFailed(Channel, int) {}
func (Noop) WalkFinished(models.RunOutcome) {}
func (Noop) ActionFinished(string, string, time.Duration) {}

// Prometheus records into prometheus collectors.
type Prometheus struct {
	Delivered      *prometheus.CounterVec
	Failed         *prometheus.CounterVec
	Walks          *prometheus.CounterVec
	Actions        *prometheus.CounterVec
	ActionDuration *prometheus.HistogramVec
}

// NewPrometheus creates the collectors and registers them with reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		Delivered: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seentics_telemetry_events_delivered_total",
				Help: "Telemetry events accepted by the backend",
			},
			[]string{"channel"},
		),
		Failed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seentics_telemetry_events_failed_total",
				Help: "Telemetry events whose delivery failed",
			},
			[]string{"channel"},
		),
		Walks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seentics_workflow_walks_total",
				Help: "Graph walks by outcome",
			},
			[]string{"outcome"},
		),
		Actions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "seentics_workflow_actions_total",
				Help: "Executed action nodes by title and status",
			},
			[]string{"title", "status"},
		),
		ActionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "seentics_workflow_action_duration_seconds",
				Help:    "Duration of action node executions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"title"},
		),
	}

	for _, c := range []prometheus.Collector{p.Delivered, p.Failed, p.Walks, p.Actions, p.ActionDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return p, nil
}

func (p *Prometheus) TelemetryDelivered(channel Channel, events int) {
	p.Delivered.WithLabelValues(string(channel)).Add(float64(events))
}

func (p *Prometheus) TelemetryFailed(channel Channel, events int) {
	p.Failed.WithLabelValues(string(channel)).Add(float64(events))
}

func (p *Prometheus) WalkFinished(outcome models.RunOutcome) {
	p.Walks.WithLabelValues(string(outcome)).Inc()
}

func (p *Prometheus) ActionFinished(title, status string, elapsed time.Duration) {
	p.Actions.WithLabelValues(title, status).Inc()
	p.ActionDuration.WithLabelValues(title).Observe(elapsed.Seconds())
}

// OrNoop returns r, or Noop when r is nil.
func OrNoop(r Recorder) Recorder {
	if r == nil {
		return Noop{}
	}

	return r
}
