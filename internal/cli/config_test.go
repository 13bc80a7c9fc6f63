package cli

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadPackConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "pack.yaml")
	content := `hostname: netbox:8080
api_token: tok
use_https: true
ssl_verify: "false"
timeout: 90s
st2_api_url: https://st2/api
st2_auth_token: abc
sensor_port: "6100"
sentry_dsn: ""
sentry_environment: staging
out: actions
include_tags: [dcim]
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := loadPackConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Hostname != "netbox:8080" || cfg.APIToken != "tok" || !cfg.UseHTTPS || cfg.SSLVerify {
		t.Errorf("netbox settings: %+v", cfg)
	}
	if cfg.Timeout != 90*time.Second || cfg.SensorPort != 6100 || cfg.SensorAddress != "0.0.0.0" {
		t.Errorf("parsed values: %+v", cfg)
	}
	if st := cfg.st2(); st.BaseURL != "https://st2/api" || st.AuthToken != "abc" || !st.InsecureSkipVerify {
		t.Errorf("st2 config: %+v", st)
	}
	if nb := cfg.netbox(); nb.Hostname != "netbox:8080" || nb.Timeout != 90*time.Second {
		t.Errorf("netbox config: %+v", nb)
	}
	if tc := cfg.telemetry(); tc.Environment != "staging" || !strings.HasPrefix(tc.Release, "netbox2st2@") {
		t.Errorf("telemetry config: %+v", tc)
	}
}

func TestLoadPackConfig_Errors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	cases := map[string]string{
		"unknown": "colour: blue\n",
		"bad bool": "use_https: maybe\n",
		"bad int":  "sensor_port: many\n",
		"bad time": "timeout: soon\n",
		"bad yaml": "hostname: [\n",
	}
	for name, content := range cases {
		path := filepath.Join(dir, name+".yaml")
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatalf("write: %v", err)
		}
		if _, err := loadPackConfig(path); !errors.Is(err, ErrUsage) {
			t.Errorf("%s: expected usage error, got %v", name, err)
		}
	}
	if _, err := loadPackConfig(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrUsage) {
		t.Errorf("missing file: expected usage error, got %v", err)
	}
}

func TestPackConfigApplyEnv(t *testing.T) {
	t.Parallel()
	env := map[string]string{
		st2ActionAPIURLEnv:    "http://st2.local/api",
		st2ActionAuthTokenEnv: "tok",
	}
	getenv := func(k string) string { return env[k] }

	cfg := defaultPackConfig()
	cfg.applyEnv(getenv)
	if cfg.ST2APIURL != "http://st2.local/api" || cfg.ST2AuthToken != "tok" {
		t.Errorf("env not applied: %+v", cfg)
	}

	cfg = defaultPackConfig()
	cfg.ST2APIURL = "https://configured/api"
	cfg.ST2APIKey = "key"
	cfg.applyEnv(getenv)
	if cfg.ST2APIURL != "https://configured/api" || cfg.ST2AuthToken != "" {
		t.Errorf("configured values must win: %+v", cfg)
	}
}
