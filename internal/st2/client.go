// Package st2 talks to the StackStorm API: the key-value store and the
// generic webhook used to dispatch triggers.
package st2

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultBaseURL is the API root of a StackStorm install on the local host.
const DefaultBaseURL = "http://localhost/api"

// Config holds connection settings for the StackStorm API. APIKey takes
// precedence over AuthToken when both are set.
type Config struct {
	BaseURL            string
	APIKey             string
	AuthToken          string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

// Client is a minimal StackStorm API client.
type Client struct {
	baseURL   string
	apiKey    string
	authToken string
	http      *http.Client
}

// NewClient builds a client from cfg, filling defaults.
func NewClient(cfg Config) *Client {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // matches ssl_verify: false
	}
	return &Client{
		baseURL:   base,
		apiKey:    cfg.APIKey,
		authToken: cfg.AuthToken,
		http:      &http.Client{Timeout: timeout, Transport: transport},
	}
}

// KeyValuePair mirrors the StackStorm key-value store resource.
type KeyValuePair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
	TTL   int    `json:"ttl,omitempty"`
}

// APIError is returned for non-2xx responses.
type APIError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("st2: %s %s: http %d: %s", e.Method, e.URL, e.StatusCode, e.Body)
}

// PutKey creates or replaces a key in the key-value store.
func (c *Client) PutKey(ctx context.Context, kv KeyValuePair) error {
	if strings.TrimSpace(kv.Name) == "" {
		return fmt.Errorf("st2: key name is required")
	}
	return c.do(ctx, http.MethodPut, "/v1/keys/"+url.PathEscape(kv.Name), kv)
}

// DispatchTrigger fires trigger with payload through the st2 generic webhook.
func (c *Client) DispatchTrigger(ctx context.Context, trigger string, payload any) error {
	if strings.TrimSpace(trigger) == "" {
		return fmt.Errorf("st2: trigger is required")
	}
	body := struct {
		Trigger string `json:"trigger"`
		Payload any    `json:"payload"`
	}{Trigger: trigger, Payload: payload}
	return c.do(ctx, http.MethodPost, "/v1/webhooks/st2", body)
}

func (c *Client) do(ctx context.Context, method, path string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("st2: encode body: %w", err)
	}
	endpoint := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, method, endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	switch {
	case c.apiKey != "":
		req.Header.Set("St2-Api-Key", c.apiKey)
	case c.authToken != "":
		req.Header.Set("X-Auth-Token", c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("st2: %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &APIError{Method: method, URL: endpoint, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(excerpt))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
