// Package telemetry reports command failures to Sentry when a DSN is configured.
package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// Config selects the Sentry project. An empty DSN disables reporting.
type Config struct {
	DSN         string
	Release     string
	Environment string

	beforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
}

// Reporter wraps the global Sentry hub. A nil or disabled Reporter is a no-op.
type Reporter struct {
	enabled bool
}

// Init configures Sentry. It returns a disabled Reporter when cfg.DSN is empty.
func Init(cfg Config) (*Reporter, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return &Reporter{}, nil
	}
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Release:          cfg.Release,
		Environment:      cfg.Environment,
		EnableTracing:    true,
		TracesSampleRate: 1.0,
		BeforeSend:       cfg.beforeSend,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: sentry init: %w", err)
	}
	return &Reporter{enabled: true}, nil
}

// Enabled reports whether events are sent anywhere.
func (r *Reporter) Enabled() bool { return r != nil && r.enabled }

// StartTransaction opens a transaction named after a command. The returned
// func finishes it and captures err when non-nil.
func (r *Reporter) StartTransaction(ctx context.Context, name string) (context.Context, func(err error)) {
	if !r.Enabled() {
		return ctx, func(error) {}
	}
	tx := sentry.StartTransaction(ctx, name)
	return tx.Context(), func(err error) {
		if err != nil {
			tx.SetTag("success", "false")
			tx.Status = sentry.SpanStatusInternalError
			sentry.CaptureException(err)
		} else {
			tx.SetTag("success", "true")
			tx.Status = sentry.SpanStatusOK
		}
		tx.Finish()
	}
}

// Capture sends err as an exception event.
func (r *Reporter) Capture(err error) {
	if !r.Enabled() || err == nil {
		return
	}
	sentry.CaptureException(err)
}

// Breadcrumb records a step that shows up on the next captured event.
func (r *Reporter) Breadcrumb(category, message string, data map[string]any) {
	if !r.Enabled() {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category: category,
		Message:  message,
		Level:    sentry.LevelInfo,
		Data:     data,
	})
}

// Flush waits up to timeout for queued events.
func (r *Reporter) Flush(timeout time.Duration) {
	if !r.Enabled() {
		return
	}
	sentry.Flush(timeout)
}
