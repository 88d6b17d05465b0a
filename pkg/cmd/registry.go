// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/seentics/tracker/pkg/actions"
	"github.com/seentics/tracker/pkg/conditions"
	"github.com/seentics/tracker/pkg/registry"
)

// NewRegistry returns a registry with every built-in condition and action
// kind. The actions are not bound to a page, so it serves validation only.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	conditions.RegisterDefaults(reg)
	actions.RegisterDefaults(reg, &actions.Dependencies{Logger: log})

	return reg
}
