// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dukex/flowexec/pkg/actions/condition"
	"github.com/dukex/flowexec/pkg/actions/httprequest"
	logaction "github.com/dukex/flowexec/pkg/actions/log"
	"github.com/dukex/flowexec/pkg/actions/transform"
	"github.com/dukex/flowexec/pkg/actions/trigger"
	"github.com/dukex/flowexec/pkg/registry"
)

const httpClientTimeout = 60 * time.Second

func registerNativeTriggers(reg *registry.Registry) {
	reg.MustRegister(trigger.Descriptors()...)
}

func registerNativeActions(reg *registry.Registry, log *slog.Logger) {
	reg.MustRegister(
		condition.NewDescriptor(),
		httprequest.NewDescriptor(&http.Client{Timeout: httpClientTimeout}, log),
		transform.NewDescriptor(log),
		logaction.NewDescriptor(log),
	)
}

// NewRegistry returns the registry with every built-in trigger and action.
func NewRegistry(log *slog.Logger) *registry.Registry {
	reg := registry.NewRegistry(log)

	registerNativeTriggers(reg)
	registerNativeActions(reg, log)

	return reg
}
