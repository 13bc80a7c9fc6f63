package cli

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mark3labs/netbox2st2/internal/netbox"
	"github.com/mark3labs/netbox2st2/internal/st2"
	"github.com/mark3labs/netbox2st2/internal/telemetry"
	"github.com/mark3labs/netbox2st2/internal/webhook"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// ConfigEnvVar names the pack config file when --config is not given.
const ConfigEnvVar = "NETBOX2ST2_CONFIG"

// StackStorm exports these to local-shell-script actions.
const (
	st2ActionAPIURLEnv    = "ST2_ACTION_API_URL"
	st2ActionAuthTokenEnv = "ST2_ACTION_AUTH_TOKEN"
)

// PackConfig holds the settings shared by run, sensor and generate.
type PackConfig struct {
	Hostname  string
	APIToken  string
	UseHTTPS  bool
	SSLVerify bool
	Timeout   time.Duration

	ST2APIURL    string
	ST2APIKey    string
	ST2AuthToken string

	SensorAddress string
	SensorPort    int
	SensorSecret  string

	SentryDSN         string
	SentryEnvironment string
}

func defaultPackConfig() PackConfig {
	return PackConfig{
		SSLVerify:     true,
		Timeout:       60 * time.Second,
		SensorAddress: webhook.DefaultAddress,
		SensorPort:    webhook.DefaultPort,
	}
}

// generateKeys are accepted in a pack config file and consumed by generate.
var generateKeys = map[string]struct{}{
	"host": {}, "https": {}, "file": {}, "port": {}, "out": {}, "template": {},
	"savespec": {}, "includetags": {}, "excludetags": {}, "methods": {},
	"paths": {}, "runnertype": {}, "entrypoint": {}, "nowrapper": {},
	"dryrun": {}, "verbose": {},
}

// resolveConfigPath returns --config, falling back to NETBOX2ST2_CONFIG.
func resolveConfigPath(cmd *cobra.Command) (string, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return "", err
	}
	if p := strings.TrimSpace(path); p != "" {
		return p, nil
	}
	return strings.TrimSpace(os.Getenv(ConfigEnvVar)), nil
}

func readConfigFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newUsageError(fmt.Sprintf("read config file %q: %v", path, err))
	}
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, newUsageError(fmt.Sprintf("parse config file %q: %v", path, err))
	}
	return raw, nil
}

// loadPackConfig reads the pack settings from path. Generate keys are
// tolerated; any other unknown key is an error. An empty path yields defaults.
func loadPackConfig(path string) (PackConfig, error) {
	cfg := defaultPackConfig()
	if path == "" {
		return cfg, nil
	}
	raw, err := readConfigFile(path)
	if err != nil {
		return cfg, err
	}
	for key, value := range raw {
		handled, err := cfg.apply(key, value)
		if err != nil {
			return cfg, err
		}
		if handled {
			continue
		}
		if _, ok := generateKeys[normalizeKey(key)]; ok {
			continue
		}
		return cfg, newUsageError(fmt.Sprintf("config file %q: unknown field %q", path, key))
	}
	return cfg, nil
}

// apply sets one pack key. It reports false for keys it does not own.
func (c *PackConfig) apply(key string, value any) (bool, error) {
	var err error
	switch normalizeKey(key) {
	case "hostname":
		c.Hostname, err = valueAsString(value)
	case "apitoken":
		c.APIToken, err = valueAsString(value)
	case "usehttps":
		c.UseHTTPS, err = valueAsBool(value)
	case "sslverify":
		c.SSLVerify, err = valueAsBool(value)
	case "timeout":
		c.Timeout, err = valueAsDuration(value)
	case "st2apiurl":
		c.ST2APIURL, err = valueAsString(value)
	case "st2apikey":
		c.ST2APIKey, err = valueAsString(value)
	case "st2authtoken":
		c.ST2AuthToken, err = valueAsString(value)
	case "sensoraddress":
		c.SensorAddress, err = valueAsString(value)
	case "sensorport":
		c.SensorPort, err = valueAsInt(value)
	case "sensorsecret":
		c.SensorSecret, err = valueAsString(value)
	case "sentrydsn":
		c.SentryDSN, err = valueAsString(value)
	case "sentryenvironment":
		c.SentryEnvironment, err = valueAsString(value)
	default:
		return false, nil
	}
	if err != nil {
		return true, newUsageError(fmt.Sprintf("config field %q: %v", key, err))
	}
	return true, nil
}

// applyEnv fills StackStorm connection details from the action environment
// when the config file leaves them unset.
func (c *PackConfig) applyEnv(getenv func(string) string) {
	if c.ST2APIURL == "" {
		c.ST2APIURL = strings.TrimSpace(getenv(st2ActionAPIURLEnv))
	}
	if c.ST2APIKey == "" && c.ST2AuthToken == "" {
		c.ST2AuthToken = strings.TrimSpace(getenv(st2ActionAuthTokenEnv))
	}
}

// connectionArgs maps the connection arguments of a generated action to the
// pack keys they set.
var connectionArgs = map[string]string{
	netbox.ArgHostname:  "hostname",
	netbox.ArgAPIToken:  "api_token",
	netbox.ArgUseHTTPS:  "use_https",
	netbox.ArgSSLVerify: "ssl_verify",
}

// applyActionArgs moves connection arguments out of args and into c. Empty and
// None values keep whatever the config file set.
func (c *PackConfig) applyActionArgs(args map[string]string) error {
	for arg, key := range connectionArgs {
		value, ok := args[arg]
		if !ok {
			continue
		}
		delete(args, arg)
		v := strings.TrimSpace(value)
		if v == "" || strings.EqualFold(v, "none") {
			continue
		}
		if _, err := c.apply(key, v); err != nil {
			return newUsageError(fmt.Sprintf("run: --%s: %v", arg, err))
		}
	}
	return nil
}

func (c PackConfig) netbox() netbox.Config {
	return netbox.Config{
		Hostname:  c.Hostname,
		APIToken:  c.APIToken,
		UseHTTPS:  c.UseHTTPS,
		SSLVerify: c.SSLVerify,
		Timeout:   c.Timeout,
	}
}

func (c PackConfig) st2() st2.Config {
	return st2.Config{
		BaseURL:            c.ST2APIURL,
		APIKey:             c.ST2APIKey,
		AuthToken:          c.ST2AuthToken,
		Timeout:            c.Timeout,
		InsecureSkipVerify: !c.SSLVerify,
	}
}

func (c PackConfig) webhook() webhook.Config {
	return webhook.Config{Address: c.SensorAddress, Port: c.SensorPort, Secret: c.SensorSecret}
}

func (c PackConfig) telemetry() telemetry.Config {
	return telemetry.Config{DSN: c.SentryDSN, Release: release(), Environment: c.SentryEnvironment}
}

func normalizeKey(raw string) string {
	lowered := strings.ToLower(strings.TrimSpace(raw))
	lowered = strings.ReplaceAll(lowered, "-", "")
	lowered = strings.ReplaceAll(lowered, "_", "")
	return lowered
}

func valueAsString(v any) (string, error) {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val), nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("expected string, got %T", v)
	}
}

func valueAsStringSlice(v any) ([]string, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case string:
		if strings.TrimSpace(val) == "" {
			return nil, nil
		}
		return splitAndTrim(val), nil
	case []any:
		items := make([]string, 0, len(val))
		for idx, elem := range val {
			str, err := valueAsString(elem)
			if err != nil {
				return nil, fmt.Errorf("element %d: %w", idx, err)
			}
			if str != "" {
				items = append(items, str)
			}
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected string or list, got %T", v)
	}
}

func valueAsBool(v any) (bool, error) {
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "t", "1", "yes", "y":
			return true, nil
		case "false", "f", "0", "no", "n", "":
			return false, nil
		default:
			return false, fmt.Errorf("invalid boolean value %q", val)
		}
	case nil:
		return false, nil
	default:
		return false, fmt.Errorf("expected boolean, got %T", v)
	}
}

func valueAsInt(v any) (int, error) {
	switch val := v.(type) {
	case int:
		return val, nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		if err != nil {
			return 0, fmt.Errorf("invalid integer value %q", val)
		}
		return n, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected integer, got %T", v)
	}
}

// valueAsDuration accepts whole seconds or a Go duration string.
func valueAsDuration(v any) (time.Duration, error) {
	switch val := v.(type) {
	case int:
		return time.Duration(val) * time.Second, nil
	case float64:
		return time.Duration(val * float64(time.Second)), nil
	case string:
		s := strings.TrimSpace(val)
		if n, err := strconv.Atoi(s); err == nil {
			return time.Duration(n) * time.Second, nil
		}
		d, err := time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("invalid duration %q", val)
		}
		return d, nil
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("expected duration, got %T", v)
	}
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return cleaned
}
