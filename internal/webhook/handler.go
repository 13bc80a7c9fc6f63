// Package webhook receives NetBox webhooks and turns them into StackStorm
// triggers.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/mark3labs/netbox2st2/internal/logging"
	"github.com/segmentio/ksuid"
)

const (
	// Path is the route NetBox webhooks must be pointed at.
	Path = "/netbox/webhooks/"
	// SignatureHeader carries the hex HMAC-SHA512 of the request body.
	SignatureHeader = "X-Hook-Signature"

	maxBodyBytes = 10 << 20
)

// Dispatcher fires a StackStorm trigger. *st2.Client satisfies it.
type Dispatcher interface {
	DispatchTrigger(ctx context.Context, trigger string, payload any) error
}

// ErrorReporter receives a breadcrumb per accepted delivery and the dispatch
// failures. *telemetry.Reporter satisfies it.
type ErrorReporter interface {
	Breadcrumb(category, message string, data map[string]any)
	Capture(err error)
}

var triggers = map[string]string{
	"created": "netbox.webhook.object_created",
	"updated": "netbox.webhook.object_updated",
	"deleted": "netbox.webhook.object_deleted",
}

// TriggerFor maps a NetBox webhook event to its trigger reference.
func TriggerFor(event string) (string, bool) {
	t, ok := triggers[event]
	return t, ok
}

// Sign returns the signature NetBox sends for body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Handler validates and dispatches webhook deliveries.
type Handler struct {
	secret     string
	dispatcher Dispatcher
	reporter   ErrorReporter
	log        logging.Logger
}

// NewHandler builds a Handler. An empty secret disables signature checks.
func NewHandler(secret string, d Dispatcher, log logging.Logger) *Handler {
	return &Handler{secret: secret, dispatcher: d, log: logging.OrNop(log)}
}

// WithReporter sets where delivery breadcrumbs and dispatch failures go.
func (h *Handler) WithReporter(r ErrorReporter) *Handler {
	h.reporter = r
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	delivery := ksuid.New().String()
	log := h.log.With("delivery", delivery)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		log.Warn("could not read webhook body", "error", err)
		http.Error(w, "Nope", http.StatusBadRequest)
		return
	}

	if h.secret != "" {
		want := Sign(h.secret, body)
		if !hmac.Equal([]byte(r.Header.Get(SignatureHeader)), []byte(want)) {
			log.Warn("failed to verify request signature")
			http.Error(w, "Nope", http.StatusBadRequest)
			return
		}
		log.Info("request passed signature verification")
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("webhook body is not a JSON object", "error", err)
		http.Error(w, "Nope", http.StatusBadRequest)
		return
	}
	event, _ := payload["event"].(string)
	trigger, ok := TriggerFor(event)
	if !ok {
		log.Warn("unknown event request received, refusing to process", "event", event)
		http.Error(w, "Nope", http.StatusBadRequest)
		return
	}

	if h.reporter != nil {
		h.reporter.Breadcrumb("webhook", "dispatching "+trigger, map[string]any{
			"delivery": delivery,
			"model":    payload["model"],
		})
	}
	if err := h.dispatcher.DispatchTrigger(r.Context(), trigger, payload); err != nil {
		log.Error("dispatch failed", "trigger", trigger, "error", err)
		if h.reporter != nil && !errors.Is(err, context.Canceled) {
			h.reporter.Capture(err)
		}
		http.Error(w, "dispatch failed", http.StatusBadGateway)
		return
	}
	log.Info("dispatched trigger", "trigger", trigger, "model", payload["model"])
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, "Done")
}
