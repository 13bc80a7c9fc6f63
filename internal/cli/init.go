package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

const defaultInitPath = "netbox2st2.yaml"

// InitConfig captures the options for the init command.
type InitConfig struct {
	OutputPath string
	Force      bool
	Verbose    bool
	Out        io.Writer
}

var initRunner = runInit

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold a sample netbox2st2 pack configuration file",
		Long:  "Scaffold a commented pack configuration file that documents every NetBox, StackStorm, sensor and generate option.",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := cmd.Flags().GetString("out")
			if err != nil {
				return err
			}
			force, err := cmd.Flags().GetBool("force")
			if err != nil {
				return err
			}
			verbose, err := cmd.Flags().GetBool("verbose")
			if err != nil {
				return err
			}
			cfg := &InitConfig{
				OutputPath: out,
				Force:      force,
				Verbose:    verbose,
				Out:        cmd.OutOrStdout(),
			}
			return initRunner(cmd.Context(), cfg)
		},
	}

	cmd.Flags().String("out", defaultInitPath, "Where to write the sample config file")
	cmd.Flags().Bool("force", false, "Overwrite the target file if it already exists")

	return cmd
}

func runInit(ctx context.Context, cfg *InitConfig) error {
	_ = ctx

	out := strings.TrimSpace(cfg.OutputPath)
	if out == "" {
		out = defaultInitPath
	}
	absPath, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("init: resolve output path: %w", err)
	}

	if st, err := os.Stat(absPath); err == nil && !cfg.Force {
		if st.Mode().IsRegular() {
			return newUsageError(fmt.Sprintf("init: %q already exists (use --force to overwrite)", absPath))
		}
	}

	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot create parent directory: %v", err))
	}

	content := strings.TrimSpace(samplePackConfigYAML) + "\n"

	// The file holds credentials once filled in.
	tmp := absPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o600); err != nil {
		return newUsageError(fmt.Sprintf("init: cannot write temp file: %v\nHint: choose a different --out or check directory permissions.", err))
	}
	if err := os.Rename(tmp, absPath); err != nil {
		_ = os.Remove(tmp)
		return newUsageError(fmt.Sprintf("init: cannot place file at %s: %v", absPath, err))
	}
	w := cfg.Out
	if w == nil {
		w = os.Stdout
	}
	fmt.Fprintf(w, "Wrote sample config to %s\n", absPath)
	return nil
}

// samplePackConfigYAML documents every key the pack config accepts.
const samplePackConfigYAML = `# netbox2st2 pack configuration (YAML)
# Pass it with --config or point NETBOX2ST2_CONFIG at it.
# Command-line flags override config values.

# --- NetBox connection (run) ---
# Hostname, optionally with a port, of the NetBox instance.
hostname: netbox.example.com
# API token sent as "Authorization: Token <api_token>".
api_token: ""
# use_https: false
# Verify TLS certificates.
# ssl_verify: true
# Request timeout, in seconds or as a duration such as 90s.
# timeout: 60

# --- StackStorm API (key-value store and trigger dispatch) ---
# Defaults to $ST2_ACTION_API_URL, then http://localhost/api.
# st2_api_url: https://stackstorm.example.com/api
# st2_api_key takes precedence over st2_auth_token. Without either,
# $ST2_ACTION_AUTH_TOKEN is used.
# st2_api_key: ""
# st2_auth_token: ""

# --- Webhook sensor ---
# sensor_address: 0.0.0.0
# sensor_port: 6000
# Secret configured on the NetBox webhook; enables X-Hook-Signature checks.
# sensor_secret: ""

# --- Error reporting ---
# sentry_dsn: ""
# sentry_environment: production

# --- generate ---
# NetBox host to download the spec from (defaults to hostname).
# host: netbox.example.com
# https: false
# port: 8000
# Read the spec from the path in host instead of downloading it.
# file: false
# out: actions
# template: ./action.yaml.tmpl
# save_spec: /tmp/netbox_swagger.json
# include_tags: [dcim, ipam]
# exclude_tags: [secrets]
# methods: [get, post]
# paths: ["^/dcim/"]
# runner_type: local-shell-script
# entry_point: run.sh
# no_wrapper: false
# dry_run: false
# verbose: false
`
