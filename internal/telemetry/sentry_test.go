package telemetry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit_DisabledWithoutDSN(t *testing.T) {
	r, err := Init(Config{DSN: "  "})
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	ctx := context.Background()
	got, finish := r.StartTransaction(ctx, "generate")
	assert.Equal(t, ctx, got)
	finish(errors.New("ignored"))
	r.Capture(errors.New("ignored"))
	r.Breadcrumb("x", "y", nil)
	r.Flush(time.Millisecond)
}

func TestNilReporter(t *testing.T) {
	var r *Reporter
	assert.False(t, r.Enabled())
	r.Capture(errors.New("ignored"))
}

func TestInit_InvalidDSN(t *testing.T) {
	_, err := Init(Config{DSN: "not a dsn"})
	require.Error(t, err)
}

func TestReporter_CapturesErrors(t *testing.T) {
	var (
		mu     sync.Mutex
		events []*sentry.Event
	)
	r, err := Init(Config{
		DSN: "https://public@example.com/1",
		beforeSend: func(e *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			mu.Lock()
			events = append(events, e)
			mu.Unlock()
			return nil
		},
	})
	require.NoError(t, err)
	require.True(t, r.Enabled())
	t.Cleanup(func() { _ = sentry.Init(sentry.ClientOptions{}) })

	r.Breadcrumb("generate", "fetched spec", map[string]any{"paths": 3})
	_, finish := r.StartTransaction(context.Background(), "generate")
	finish(errors.New("fetch failed"))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 1)
	require.NotEmpty(t, events[0].Exception)
	assert.Equal(t, "fetch failed", events[0].Exception[0].Value)
}
