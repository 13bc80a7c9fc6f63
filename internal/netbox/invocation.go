package netbox

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	genspec "github.com/mark3labs/netbox2st2/internal/spec"
)

// Reserved argument names declared by every generated action. They steer the
// runner and are never forwarded to NetBox.
const (
	ArgEndpointURI     = "endpoint_uri"
	ArgHTTPVerb        = "http_verb"
	ArgDetailEligible  = "get_detail_route_eligible"
	ArgSaveInKeyStore  = "save_in_key_store"
	ArgKeyStoreKeyName = "save_in_key_store_key_name"
	ArgKeyStoreTTL     = "save_in_key_store_ttl"
)

// Connection arguments carry the pack configuration that StackStorm renders
// from config_context. The command line applies them to the client config.
const (
	ArgHostname  = "netbox_hostname"
	ArgAPIToken  = "netbox_api_token"
	ArgUseHTTPS  = "netbox_use_https"
	ArgSSLVerify = "netbox_ssl_verify"
)

// ParseArgs reads StackStorm local-shell-script style arguments
// (--name=value or --name value) into a name/value map. Arguments that are not
// flags are rejected.
func ParseArgs(args []string) (map[string]string, error) {
	out := make(map[string]string, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") || len(arg) == 2 {
			return nil, fmt.Errorf("unexpected argument %q (expected --name=value)", arg)
		}
		arg = strings.TrimPrefix(arg, "--")
		if name, value, ok := strings.Cut(arg, "="); ok {
			out[name] = value
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "--") {
			out[arg] = args[i+1]
			i++
			continue
		}
		out[arg] = "true"
	}
	return out, nil
}

// NewInvocation separates the reserved arguments from the API parameters.
func NewInvocation(args map[string]string) (Invocation, error) {
	var inv Invocation
	uri := strings.TrimSpace(args[ArgEndpointURI])
	if uri == "" {
		return inv, fmt.Errorf("--%s is required", ArgEndpointURI)
	}
	verb, ok := genspec.ParseMethod(args[ArgHTTPVerb])
	if !ok {
		return inv, fmt.Errorf("--%s must be one of get, post, put, patch, delete (got %q)", ArgHTTPVerb, args[ArgHTTPVerb])
	}
	eligible, err := parseBool(args[ArgDetailEligible])
	if err != nil {
		return inv, fmt.Errorf("--%s: %w", ArgDetailEligible, err)
	}
	save, err := parseBool(args[ArgSaveInKeyStore])
	if err != nil {
		return inv, fmt.Errorf("--%s: %w", ArgSaveInKeyStore, err)
	}
	ttl := 0
	if s := strings.TrimSpace(args[ArgKeyStoreTTL]); s != "" && !isNone(s) {
		ttl, err = strconv.Atoi(s)
		if err != nil {
			return inv, fmt.Errorf("--%s: %w", ArgKeyStoreTTL, err)
		}
	}

	inv = Invocation{
		EndpointURI:            uri,
		Verb:                   verb,
		GetDetailRouteEligible: eligible,
		SaveInKeyStore:         save,
		KeyName:                strings.TrimSpace(args[ArgKeyStoreKeyName]),
		KeyTTL:                 ttl,
		Params:                 map[string]any{},
	}
	for name, value := range args {
		switch name {
		case ArgEndpointURI, ArgHTTPVerb, ArgDetailEligible, ArgSaveInKeyStore, ArgKeyStoreKeyName, ArgKeyStoreTTL,
			ArgHostname, ArgAPIToken, ArgUseHTTPS, ArgSSLVerify:
			continue
		}
		inv.Params[name] = decodeValue(value)
	}
	return inv, nil
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "false", "f", "0", "no", "n", "none", "null":
		return false, nil
	case "true", "t", "1", "yes", "y":
		return true, nil
	}
	return false, fmt.Errorf("invalid boolean value %q", s)
}

func isNone(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "null":
		return true
	}
	return false
}

// decodeValue turns a command-line value back into the type StackStorm
// rendered it from. Booleans and canonical numbers are typed, JSON lists and
// objects are decoded, anything else stays a string. "0012" keeps its leading
// zeros because it does not round-trip as a number.
func decodeValue(s string) any {
	trimmed := strings.TrimSpace(s)
	if isNone(trimmed) {
		return nil
	}
	switch trimmed {
	case "True", "true":
		return true
	case "False", "false":
		return false
	}
	if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil && strconv.FormatInt(n, 10) == trimmed {
		return n
	}
	if strings.Contains(trimmed, ".") {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil && strconv.FormatFloat(f, 'f', -1, 64) == trimmed {
			return f
		}
	}
	if strings.HasPrefix(trimmed, "[") || strings.HasPrefix(trimmed, "{") {
		var v any
		if err := json.Unmarshal([]byte(trimmed), &v); err == nil {
			return v
		}
	}
	return s
}
