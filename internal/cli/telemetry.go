package cli

import (
	"context"
	"errors"
	"runtime/debug"
	"time"

	"github.com/mark3labs/netbox2st2/internal/logging"
	"github.com/mark3labs/netbox2st2/internal/telemetry"
)

const flushTimeout = 2 * time.Second

// breadcrumbs records progress that shows up on a later error report.
// *telemetry.Reporter satisfies it.
type breadcrumbs interface {
	Breadcrumb(category, message string, data map[string]any)
}

// release names the build in error reports, such as netbox2st2@v1.2.0.
func release() string {
	version := "devel"
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		version = info.Main.Version
	}
	return "netbox2st2@" + version
}

// newReporter never fails: a bad DSN only disables reporting.
func newReporter(pack PackConfig, log logging.Logger) *telemetry.Reporter {
	reporter, err := telemetry.Init(pack.telemetry())
	if err != nil {
		log.Warn("error reporting disabled", "error", err)
		return nil
	}
	return reporter
}

// withTelemetry runs fn inside a Sentry transaction named after the command.
// Usage errors and failed actions are not reported.
func withTelemetry(ctx context.Context, pack PackConfig, name string, log logging.Logger, fn func(context.Context, *telemetry.Reporter) error) error {
	reporter := newReporter(pack, log)
	defer reporter.Flush(flushTimeout)

	ctx, finish := reporter.StartTransaction(ctx, name)
	err := fn(ctx, reporter)
	if errors.Is(err, ErrUsage) || errors.Is(err, ErrActionFailed) {
		finish(nil)
	} else {
		finish(err)
	}
	return err
}
