package spec

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/mark3labs/netbox2st2/internal/logging"
	"gopkg.in/yaml.v3"
	k8syaml "sigs.k8s.io/yaml"
)

// ErrorCode categorizes loader errors for clearer handling and messaging.
type ErrorCode string

const (
	InputError      ErrorCode = "InputError"
	NetworkError    ErrorCode = "NetworkError"
	ParseError      ErrorCode = "ParseError"
	ConversionError ErrorCode = "ConversionError"
)

// SpecError is a structured error with an optional location.
type SpecError struct {
	Code     ErrorCode
	Message  string
	Location string // file path or URL
	Cause    error
}

func (e *SpecError) Error() string { return e.Message }
func (e *SpecError) Unwrap() error { return e.Cause }

// DefaultSwaggerPath is where NetBox serves its API document.
const DefaultSwaggerPath = "/api/swagger.json"

// Settings configures loader behavior.
type Settings struct {
	// HTTPTimeout bounds each HTTP request.
	HTTPTimeout time.Duration
	// MaxRetries for transient HTTP failures (>=500, 429, or network errors).
	MaxRetries int
	// BackoffBase is the base delay for exponential backoff.
	BackoffBase time.Duration
	// InsecureSkipVerify disables TLS verification when fetching over https.
	InsecureSkipVerify bool
	// SavePath, when set, receives a copy of the raw document after a
	// successful HTTP fetch.
	SavePath string
	Logger   logging.Logger
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		HTTPTimeout: 30 * time.Second,
		MaxRetries:  3,
		BackoffBase: 200 * time.Millisecond,
	}
}

// Option mutates Settings.
type Option func(*Settings)

func WithHTTPTimeout(d time.Duration) Option  { return func(s *Settings) { s.HTTPTimeout = d } }
func WithMaxRetries(n int) Option             { return func(s *Settings) { s.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option  { return func(s *Settings) { s.BackoffBase = d } }
func WithInsecureSkipVerify(b bool) Option    { return func(s *Settings) { s.InsecureSkipVerify = b } }
func WithSavePath(path string) Option         { return func(s *Settings) { s.SavePath = path } }
func WithLogger(l logging.Logger) Option      { return func(s *Settings) { s.Logger = l } }

// SpecURL returns the swagger document URL of a NetBox instance.
func SpecURL(host string, https bool, port int) string {
	scheme := "http"
	if https {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s:%d%s", scheme, strings.TrimSpace(host), port, DefaultSwaggerPath)
}

// Load reads a Swagger 2.0 or OpenAPI 3 document and returns it as a Swagger
// 2.0 model. OpenAPI 3 documents are converted with openapi2conv.FromV3 so the
// classifier always sees paths and definitions.
//
// input may be a filesystem path or an http/https URL. Any other URL scheme,
// file:// included, is rejected.
func Load(ctx context.Context, input string, opts ...Option) (*openapi2.T, error) {
	if strings.TrimSpace(input) == "" {
		return nil, &SpecError{Code: InputError, Message: "spec: input is empty"}
	}

	settings := DefaultSettings()
	for _, opt := range opts {
		opt(&settings)
	}
	log := logging.OrNop(settings.Logger)

	var (
		raw      []byte
		location *url.URL
	)

	u, uerr := url.Parse(input)
	isURL := uerr == nil && u.Scheme != "" && u.Host != ""
	if isURL {
		scheme := strings.ToLower(u.Scheme)
		if scheme != "http" && scheme != "https" {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("spec: unsupported URL scheme %q (only http/https allowed)", scheme), Location: input}
		}
		log.Info("fetching API spec", "url", input)
		body, err := fetchWithRetry(ctx, input, settings)
		if err != nil {
			return nil, &SpecError{Code: NetworkError, Message: fmt.Sprintf("fetch %s: %v", input, err), Location: input, Cause: err}
		}
		if settings.SavePath != "" {
			if err := os.WriteFile(settings.SavePath, body, 0o644); err != nil {
				log.Warn("could not save API spec", "path", settings.SavePath, "error", err)
			} else {
				log.Debug("saved API spec", "path", settings.SavePath)
			}
		}
		raw = body
		location = u
	} else {
		abs, err := filepath.Abs(input)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("resolve path: %v", err), Location: input, Cause: err}
		}
		body, err := os.ReadFile(abs)
		if err != nil {
			return nil, &SpecError{Code: InputError, Message: fmt.Sprintf("read file %s: %v", abs, err), Location: abs, Cause: err}
		}
		raw = body
		location = &url.URL{Path: abs}
		input = abs
	}

	version, err := detectSpecVersion(raw)
	if err != nil {
		return nil, &SpecError{Code: ParseError, Message: err.Error(), Location: input, Cause: err}
	}

	switch version {
	case 2:
		doc, err := parseV2(raw)
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse swagger 2.0: %v", err), Location: input, Cause: err}
		}
		return doc, nil
	case 3:
		loader := newLoader(settings)
		doc3, err := loader.LoadFromDataWithPath(raw, location)
		if err != nil {
			return nil, &SpecError{Code: ParseError, Message: fmt.Sprintf("parse openapi 3: %v", err), Location: input, Cause: err}
		}
		if err := doc3.Validate(ctx); err != nil {
			// NetBox documents rarely validate cleanly; classification only
			// needs paths and schemas, so carry on.
			log.Warn("API spec failed validation, continuing", "error", err)
		}
		doc, err := openapi2conv.FromV3(doc3)
		if err != nil {
			return nil, &SpecError{Code: ConversionError, Message: fmt.Sprintf("convert v3→v2: %v", err), Location: input, Cause: err}
		}
		return doc, nil
	default:
		return nil, &SpecError{Code: ParseError, Message: "spec: unknown or unsupported OpenAPI/Swagger version", Location: input}
	}
}

func parseV2(raw []byte) (*openapi2.T, error) {
	data, err := k8syaml.YAMLToJSON(raw)
	if err != nil {
		return nil, err
	}
	var doc openapi2.T
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func newLoader(settings Settings) *openapi3.Loader {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	client := newHTTPClient(settings)
	loader.ReadFromURIFunc = func(l *openapi3.Loader, uri *url.URL) ([]byte, error) {
		switch strings.ToLower(uri.Scheme) {
		case "", "file":
			path := uri.Path
			if path == "" {
				path = uri.Opaque
			}
			return os.ReadFile(path)
		case "http", "https":
			req, err := http.NewRequest(http.MethodGet, uri.String(), nil)
			if err != nil {
				return nil, err
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return nil, fmt.Errorf("http %d: %s", resp.StatusCode, uri.String())
			}
			return io.ReadAll(resp.Body)
		default:
			return nil, fmt.Errorf("unsupported ref scheme: %s", uri.Scheme)
		}
	}
	return loader
}

// detectSpecVersion returns 3 for OpenAPI v3, 2 for Swagger v2, else error.
func detectSpecVersion(data []byte) (int, error) {
	var root map[string]any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return 0, fmt.Errorf("parse spec: %w", err)
	}
	if v, ok := root["openapi"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "3.") {
			return 3, nil
		}
	}
	if v, ok := root["swagger"]; ok {
		if s, _ := v.(string); strings.HasPrefix(strings.TrimSpace(s), "2.") {
			return 2, nil
		}
	}
	return 0, fmt.Errorf("spec: missing or unknown version (expected 'openapi: 3.x' or 'swagger: 2.0')")
}

func fetchWithRetry(ctx context.Context, rawURL string, settings Settings) ([]byte, error) {
	client := newHTTPClient(settings)
	var lastErr error
	backoff := settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	attempts := settings.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}
	for i := 0; i < attempts; i++ {
		body, retry, err := fetchOnce(ctx, client, rawURL)
		if err == nil {
			return body, nil
		}
		if !retry {
			return nil, err
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	if lastErr == nil {
		lastErr = errors.New("fetch failed")
	}
	return nil, lastErr
}

// fetchOnce performs a single GET. retry reports whether the failure is transient.
func fetchOnce(ctx context.Context, client *http.Client, rawURL string) (body []byte, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return nil, ctx.Err() == nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 300 {
		body, err := io.ReadAll(resp.Body)
		return body, false, err
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return nil, true, fmt.Errorf("transient http error %d", resp.StatusCode)
	}
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	return nil, false, fmt.Errorf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt)))
}

func newHTTPClient(settings Settings) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if settings.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed NetBox installs
	}
	return &http.Client{Timeout: settings.HTTPTimeout, Transport: transport}
}
