// Package netbox issues the NetBox API requests behind every generated action.
package netbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/netbox2st2/internal/logging"
	genspec "github.com/mark3labs/netbox2st2/internal/spec"
)

// Config is the connection part of the pack configuration.
type Config struct {
	Hostname  string
	APIToken  string
	UseHTTPS  bool
	SSLVerify bool
	Timeout   time.Duration
}

// Client sends requests to /api on a NetBox instance.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     logging.Logger
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption { return func(c *Client) { c.http = hc } }

// WithLogger sets the logger for request tracing.
func WithLogger(l logging.Logger) ClientOption { return func(c *Client) { c.log = logging.OrNop(l) } }

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config, opts ...ClientOption) (*Client, error) {
	host := strings.TrimSpace(cfg.Hostname)
	if host == "" {
		return nil, fmt.Errorf("netbox: hostname is required")
	}
	scheme := "http://"
	if cfg.UseHTTPS {
		scheme = "https://"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if !cfg.SSLVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // ssl_verify: false in pack config
	}
	c := &Client{
		baseURL: scheme + strings.TrimRight(host, "/") + "/api",
		token:   cfg.APIToken,
		http:    &http.Client{Timeout: timeout, Transport: transport},
		log:     logging.NopLogger{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Response is the raw outcome of one request.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r.StatusCode >= 200 && r.StatusCode < 300 }

// Decode returns the body as JSON, the raw text when it is not JSON, or nil
// for an empty body.
func (r *Response) Decode() any {
	if len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	var v any
	if err := json.Unmarshal(r.Body, &v); err != nil {
		return string(r.Body)
	}
	return v
}

// MakeRequest sends one request. GET params become the query string, POST,
// PUT and PATCH params the JSON body; DELETE carries no body. id__in and tags
// lists are joined with commas, and nil params are dropped from writes.
func (c *Client) MakeRequest(ctx context.Context, endpointURI string, verb genspec.HttpMethod, params map[string]any) (*Response, error) {
	params = transformParams(params, c.log)
	if verb != genspec.GET {
		params = dropNil(params)
	}
	c.log.Debug("calling NetBox", "verb", verb, "endpoint_uri", endpointURI, "params", params)

	endpoint := c.baseURL + endpointURI
	var body io.Reader
	switch verb {
	case genspec.GET:
		if q := encodeQuery(params); q != "" {
			endpoint += "?" + q
		}
	case genspec.POST, genspec.PUT, genspec.PATCH:
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("netbox: encode body: %w", err)
		}
		body = bytes.NewReader(data)
	case genspec.DELETE:
	default:
		return nil, fmt.Errorf("netbox: unsupported http verb %q", verb)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(string(verb)), endpoint, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("netbox: %s %s: %w", strings.ToUpper(string(verb)), endpoint, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("netbox: read response: %w", err)
	}
	if verb == genspec.DELETE {
		c.log.Info("delete finished", "id", params["id"], "status_code", resp.StatusCode)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// transformParams returns a copy of params with list filters flattened.
func transformParams(params map[string]any, log logging.Logger) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = v
	}
	for _, key := range []string{"id__in", "tags"} {
		if joined, ok := joinList(out[key]); ok {
			out[key] = joined
			log.Debug("transformed list parameter", "name", key, "value", joined)
		}
	}
	return out
}

func joinList(v any) (string, bool) {
	switch list := v.(type) {
	case []any:
		if len(list) == 0 {
			return "", false
		}
		parts := make([]string, len(list))
		for i, item := range list {
			parts[i] = scalarString(item)
		}
		return strings.Join(parts, ","), true
	case []string:
		if len(list) == 0 {
			return "", false
		}
		return strings.Join(list, ","), true
	}
	return "", false
}

func dropNil(params map[string]any) map[string]any {
	for k, v := range params {
		if v == nil {
			delete(params, k)
		}
	}
	return params
}

func encodeQuery(params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	q := url.Values{}
	for _, k := range keys {
		switch v := params[k].(type) {
		case nil:
		case []any:
			for _, item := range v {
				q.Add(k, scalarString(item))
			}
		case []string:
			for _, item := range v {
				q.Add(k, item)
			}
		default:
			q.Add(k, scalarString(v))
		}
	}
	return q.Encode()
}

func scalarString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}
