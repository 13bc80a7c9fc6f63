package netbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/netbox2st2/internal/logging"
	genspec "github.com/mark3labs/netbox2st2/internal/spec"
	"github.com/mark3labs/netbox2st2/internal/st2"
)

// KeyStore persists GET results for later workflow steps.
type KeyStore interface {
	PutKey(ctx context.Context, kv st2.KeyValuePair) error
}

// Invocation is one execution of a generated action.
type Invocation struct {
	EndpointURI            string
	Verb                   genspec.HttpMethod
	GetDetailRouteEligible bool
	Params                 map[string]any

	SaveInKeyStore bool
	KeyName        string
	KeyTTL         int
}

// Result is what the action reports back to StackStorm.
type Result struct {
	Status     bool `json:"status"`
	StatusCode int  `json:"status_code,omitempty"`
	Raw        any  `json:"raw"`
}

const missingKeyNameMessage = "save_in_key_store_key_name MUST be used with save_in_key_store!"

// Runner executes invocations against NetBox.
type Runner struct {
	client *Client
	keys   KeyStore
	log    logging.Logger
}

// NewRunner wires a runner. keys may be nil when the key-value store is not
// configured; invocations asking for it then fail.
func NewRunner(client *Client, keys KeyStore, log logging.Logger) *Runner {
	return &Runner{client: client, keys: keys, log: logging.OrNop(log)}
}

// Run performs the request. HTTP failures are reported through Result, not
// retried; the error return is reserved for transport and key-store failures.
func (r *Runner) Run(ctx context.Context, inv Invocation) (*Result, error) {
	params := make(map[string]any, len(inv.Params))
	for k, v := range inv.Params {
		params[k] = v
	}
	uri := inv.EndpointURI

	if strings.Contains(uri, genspec.IDPlaceholder) {
		if !present(params["id"]) {
			return nil, fmt.Errorf("netbox: endpoint %s requires an id", uri)
		}
		uri = strings.ReplaceAll(uri, genspec.IDPlaceholder, scalarString(params["id"]))
	}

	if inv.Verb == genspec.GET && inv.GetDetailRouteEligible && present(params["id"]) {
		uri = fmt.Sprintf("%s%s/", uri, scalarString(params["id"]))
		delete(params, "id")
		r.log.Debug("endpoint_uri switched to detail route because id was passed", "endpoint_uri", uri)
	}

	resp, err := r.client.MakeRequest(ctx, uri, inv.Verb, params)
	if err != nil {
		return nil, err
	}
	res := &Result{Status: resp.OK(), StatusCode: resp.StatusCode}

	if !res.Status || inv.Verb != genspec.GET || !inv.SaveInKeyStore {
		res.Raw = resp.Decode()
		return res, nil
	}

	if strings.TrimSpace(inv.KeyName) == "" {
		res.Status = false
		res.Raw = missingKeyNameMessage
		return res, nil
	}
	if r.keys == nil {
		return nil, fmt.Errorf("netbox: save_in_key_store requested but no StackStorm API is configured")
	}
	value, err := json.Marshal(resp.Decode())
	if err != nil {
		return nil, fmt.Errorf("netbox: encode result for key store: %w", err)
	}
	if err := r.keys.PutKey(ctx, st2.KeyValuePair{Name: inv.KeyName, Value: string(value), TTL: inv.KeyTTL}); err != nil {
		return nil, fmt.Errorf("netbox: save result in key %q: %w", inv.KeyName, err)
	}
	res.Raw = "Result stored in st2 key " + inv.KeyName
	return res, nil
}

// present mirrors a truthiness check: nil, "", 0 and false are absent.
func present(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(x) != ""
	case float64:
		return x != 0
	case int:
		return x != 0
	case int64:
		return x != 0
	case bool:
		return x
	}
	return true
}
