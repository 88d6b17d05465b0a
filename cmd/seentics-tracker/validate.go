package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/seentics/tracker/pkg/catalog"
	"github.com/seentics/tracker/pkg/cmd"
	"github.com/seentics/tracker/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var ErrMissingFile = errors.New("missing workflow file")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Aliases:   []string{"v"},
		Usage:     "Validate a preview workflow file (JSON or YAML)",
		ArgsUsage: "<file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			path := command.Args().First()
			if path == "" {
				return ErrMissingFile
			}

			logger := slog.With("module", "seentics-tracker", "action", "validate")

			validator := catalog.NewValidator(cmd.NewRegistry(logger))

			workflow, err := catalog.ReadPreview(path, validator)
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}

			out := command.Root().Writer

			for _, warning := range validator.SettingsWarnings(workflow) {
				_, _ = fmt.Fprintf(out, "warning: %v\n", warning)
			}

			_, _ = fmt.Fprintf(out, "workflow %s is valid (%d nodes, %d edges)\n", workflow.ID, len(workflow.Nodes), len(workflow.Edges))

			return nil
		},
	}
}
