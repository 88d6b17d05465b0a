package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/seentics/tracker/pkg/catalog"
	"github.com/seentics/tracker/pkg/cmd"
	"github.com/seentics/tracker/pkg/eventbus"
	"github.com/seentics/tracker/pkg/log"
	"github.com/seentics/tracker/pkg/metrics"
	"github.com/seentics/tracker/pkg/models"
	"github.com/seentics/tracker/pkg/otelhelper"
	"github.com/seentics/tracker/pkg/page"
	"github.com/seentics/tracker/pkg/seentics"
	"github.com/seentics/tracker/pkg/telemetry"
	cli "github.com/urfave/cli/v3"
)

func NewSimulateCommand() *cli.Command {
	return &cli.Command{
		Name:    "simulate",
		Aliases: []string{"sim"},
		Usage:   "Simulate one page visit and print the resulting document",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "site-id",
				Usage:    "Site whose workflows are loaded (\"preview\" uses --preview-file)",
				Required: true,
				Sources:  cli.EnvVars("SEENTICS_SITE_ID"),
			},
			&cli.StringFlag{
				Name:    "api-host",
				Usage:   "Analytics backend base URL",
				Value:   "https://api.seentics.com",
				Sources: cli.EnvVars("SEENTICS_API_HOST"),
			},
			&cli.StringFlag{
				Name:    "preview-file",
				Usage:   "Workflow file (JSON or YAML) run instead of the live catalog",
				Sources: cli.EnvVars("SEENTICS_PREVIEW_FILE"),
			},
			&cli.StringFlag{
				Name:  "url",
				Usage: "Page URL of the visit",
				Value: "https://example.com/",
			},
			&cli.StringFlag{
				Name:  "html-file",
				Usage: "Initial page markup",
			},
			&cli.StringFlag{
				Name:  "referrer",
				Usage: "Document referrer",
			},
			&cli.StringFlag{
				Name:  "user-agent",
				Usage: "Visitor user agent",
			},
			&cli.StringFlag{
				Name:  "viewport",
				Usage: "Viewport size, e.g. 390x844",
			},
			&cli.BoolFlag{
				Name:  "touch",
				Usage: "Visitor has a touch screen",
			},
			&cli.StringSliceFlag{
				Name:  "navigate",
				Usage: "Client-side route changes, in order",
			},
			&cli.StringSliceFlag{
				Name:  "click",
				Usage: "CSS selectors clicked, in order",
			},
			&cli.StringSliceFlag{
				Name:  "funnel",
				Usage: "Funnel steps as funnel-id:event-type",
			},
			&cli.BoolFlag{
				Name:  "exit-intent",
				Usage: "Move the pointer to the top edge",
			},
			&cli.DurationFlag{
				Name:  "dwell",
				Usage: "Time spent on the page before leaving",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL backing the visitor's durable storage",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Mirror telemetry to an event bus (none, gochannel, kafka)",
				Value:   cmd.EventBusNone,
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringSliceFlag{
				Name:    "kafka-brokers",
				Usage:   "Kafka broker addresses",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "kafka-consumer-group",
				Usage:   "Consume workflow telemetry back from Kafka under this consumer group",
				Sources: cli.EnvVars("KAFKA_CONSUMER_GROUP"),
			},
			&cli.StringFlag{
				Name:    "metrics-addr",
				Usage:   "Serve Prometheus metrics on this address during the visit",
				Sources: cli.EnvVars("METRICS_ADDR"),
			},
			&cli.BoolFlag{
				Name:    "otel",
				Usage:   "Export walk traces over OTLP/HTTP",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "debug",
				Usage:   "Show tracker diagnostics",
				Sources: cli.EnvVars("SEENTICS_DEBUG"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			return simulate(ctx, command)
		},
	}
}

func simulate(ctx context.Context, command *cli.Command) error {
	debug := command.Bool("debug")

	level := command.String("log-level")
	if debug {
		level = "debug"
	}

	log.Setup(level)

	logger := log.WithModule("seentics-tracker").With("site_id", command.String("site-id"))
	out := command.Root().Writer

	report := func(format string, args ...any) {
		_, _ = fmt.Fprintf(out, format+"\n", args...)
	}

	width, err := parseViewport(command.String("viewport"))
	if err != nil {
		return err
	}

	funnels, err := parseFunnels(command.StringSlice("funnel"))
	if err != nil {
		return err
	}

	opts := seentics.Options{
		SiteID:  command.String("site-id"),
		APIHost: command.String("api-host"),
		Debug:   debug,
		Logger:  slog.Default(),
		Clock:   clockwork.NewRealClock(),
	}

	if path := command.String("preview-file"); path != "" {
		opts.PreviewWorkflow, err = catalog.ReadPreview(path, catalog.NewValidator(cmd.NewRegistry(logger)))
		if err != nil {
			return fmt.Errorf("failed to read preview workflow: %w", err)
		}
	}

	opts.Page, err = newPage(command, width)
	if err != nil {
		return err
	}

	durable, closeStore, err := cmd.NewDurableStore(ctx, logger, command.String("redis-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := closeStore(); err != nil {
			logger.ErrorContext(ctx, "Failed to close durable store", "error", err)
		}
	}()

	opts.DurableStore = durable

	if addr := command.String("metrics-addr"); addr != "" {
		stop, err := serveMetrics(ctx, logger, addr, &opts)
		if err != nil {
			return err
		}

		defer stop()
	}

	if command.Bool("otel") {
		tp, err := otelhelper.NewTracerProvider(ctx, "seentics-tracker")
		if err != nil {
			return fmt.Errorf("failed to set up tracing: %w", err)
		}

		defer func() {
			if err := tp.Shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.ErrorContext(ctx, "Failed to flush traces", "error", err)
			}
		}()

		opts.Tracer = otelhelper.Tracer()
	}

	bus, err := cmd.NewEventBus(
		command.String("event-bus"),
		command.StringSlice("kafka-brokers"),
		command.String("kafka-consumer-group"),
		logger,
	)
	if err != nil {
		return err
	}

	var busBatches atomic.Int64

	if bus != nil {
		defer func() {
			if err := bus.Close(); err != nil {
				logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
			}
		}()

		opts.PageSinks = []telemetry.Sink[models.PageEvent]{bus.PageSink()}
		opts.WorkflowSinks = []telemetry.Sink[models.TelemetryEvent]{bus.WorkflowSink()}

		if bus.Subscriber != nil {
			err := eventbus.Consume(ctx, bus.Subscriber, eventbus.TopicWorkflowTelemetry, logger,
				func(_ context.Context, batch models.Batch[models.TelemetryEvent]) error {
					busBatches.Add(1)
					logger.DebugContext(ctx, "workflow telemetry on the bus", "events", len(batch.Events))

					return nil
				})
			if err != nil {
				return err
			}
		}
	}

	client, err := seentics.Init(ctx, opts)
	if err != nil {
		return err
	}

	err = client.Workflows().Init(ctx, opts.SiteID)
	if err != nil {
		_ = client.Cleanup(ctx)

		return err
	}

	report("loaded %d workflow(s)", len(client.Workflows().Workflows()))

	v := visit{
		Navigate:   command.StringSlice("navigate"),
		Clicks:     command.StringSlice("click"),
		Funnels:    funnels,
		ExitIntent: command.Bool("exit-intent"),
		Dwell:      command.Duration("dwell"),
	}

	playErr := v.play(ctx, client, opts.Page, opts.Clock, report)

	report("%s", opts.Page.Document().Render())

	for _, target := range opts.Page.Navigations() {
		report("navigation requested: %s", target)
	}

	opts.Page.Unload()
	client.Wait()

	if bus != nil && bus.Subscriber != nil {
		report("workflow batches on the bus: %d", busBatches.Load())
	}

	if playErr != nil && !errors.Is(playErr, context.Canceled) {
		return playErr
	}

	return nil
}

func newPage(command *cli.Command, width int) (*page.Page, error) {
	pageOpts := []page.Option{
		page.WithReferrer(command.String("referrer")),
		page.WithTouch(command.Bool("touch")),
	}

	if ua := command.String("user-agent"); ua != "" {
		pageOpts = append(pageOpts, page.WithUserAgent(ua))
	}

	if width > 0 {
		pageOpts = append(pageOpts, page.WithScreenWidth(width))
	}

	if path := command.String("html-file"); path != "" {
		source, err := readFile(path)
		if err != nil {
			return nil, err
		}

		pageOpts = append(pageOpts, page.WithHTML(source))
	}

	return page.New(command.String("url"), pageOpts...)
}

func serveMetrics(ctx context.Context, logger *slog.Logger, addr string, opts *seentics.Options) (func(), error) {
	reg := prometheus.NewRegistry()

	recorder, err := metrics.NewPrometheus(reg)
	if err != nil {
		return nil, err
	}

	opts.Recorder = recorder

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorContext(ctx, "Metrics server failed", "error", err)
		}
	}()

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		defer cancel()

		_ = server.Shutdown(shutdownCtx)
	}, nil
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	return strings.TrimSpace(string(data)), nil
}
