package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mark3labs/netbox2st2/internal/logging"
	"github.com/mark3labs/netbox2st2/internal/netbox"
	"github.com/mark3labs/netbox2st2/internal/st2"
	"github.com/mark3labs/netbox2st2/internal/telemetry"
	"github.com/spf13/cobra"
)

// RunConfig is one action execution as handed over by StackStorm.
type RunConfig struct {
	Args       map[string]string
	ConfigPath string
	Verbose    bool
	Pack       PackConfig
	Out        io.Writer
}

var actionRunner = runAction

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run --endpoint_uri=URI --http_verb=VERB [--name=value ...]",
		Short: "Execute one NetBox API request for a generated action",
		Long: "Execute one NetBox API request. Arguments use the StackStorm local-shell-script " +
			"form --name=value; every argument except the reserved ones is sent to NetBox. " +
			"The result is printed as JSON and the exit status is nonzero when the request failed. " +
			"Connection settings come from the pack config file, overridden by the netbox_hostname, " +
			"netbox_api_token, netbox_use_https and netbox_ssl_verify arguments.",
		Example: strings.TrimSpace(`  netbox2st2 -c netbox.yaml run --endpoint_uri=/dcim/devices/ --http_verb=get --name=sw1
  netbox2st2 run --endpoint_uri=/dcim/devices/ --http_verb=get --get_detail_route_eligible=true --id=5`),
		// Action parameters are arbitrary, so flags are parsed by hand.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			rest, global, err := splitGlobalArgs(args)
			if err != nil {
				return newUsageError(fmt.Sprintf("run: %v\n\n%s", err, cmd.UsageString()))
			}
			if global.help {
				return cmd.Help()
			}
			configPath := global.configPath
			if configPath == "" {
				configPath = strings.TrimSpace(os.Getenv(ConfigEnvVar))
			}
			params, err := netbox.ParseArgs(rest)
			if err != nil {
				return newUsageError(fmt.Sprintf("run: %v\n\n%s", err, cmd.UsageString()))
			}
			pack, err := loadPackConfig(configPath)
			if err != nil {
				return err
			}
			if err := pack.applyActionArgs(params); err != nil {
				return err
			}
			pack.applyEnv(os.Getenv)
			return actionRunner(cmd.Context(), &RunConfig{
				Args:       params,
				ConfigPath: configPath,
				Verbose:    global.verbose,
				Pack:       pack,
				Out:        cmd.OutOrStdout(),
			})
		},
	}
	return cmd
}

type globalArgs struct {
	configPath string
	verbose    bool
	help       bool
}

// splitGlobalArgs pulls the root flags out of a run argument list.
func splitGlobalArgs(args []string) ([]string, globalArgs, error) {
	var (
		g    globalArgs
		rest = make([]string, 0, len(args))
	)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		switch name {
		case "-c", "--config":
			if !hasValue {
				if i+1 >= len(args) {
					return nil, g, fmt.Errorf("flag needs an argument: %s", name)
				}
				i++
				value = args[i]
			}
			g.configPath = strings.TrimSpace(value)
		case "-v", "--verbose":
			v := true
			if hasValue {
				b, err := valueAsBool(value)
				if err != nil {
					return nil, g, fmt.Errorf("%s: %w", name, err)
				}
				v = b
			}
			g.verbose = v
		case "-h", "--help":
			g.help = true
		default:
			rest = append(rest, arg)
		}
	}
	return rest, g, nil
}

func runAction(ctx context.Context, cfg *RunConfig) error {
	log := logging.New(os.Stderr, cfg.Verbose)
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return withTelemetry(ctx, cfg.Pack, "netbox2st2.run", log, func(ctx context.Context, _ *telemetry.Reporter) error {
		inv, err := netbox.NewInvocation(cfg.Args)
		if err != nil {
			return newUsageError(fmt.Sprintf("run: %v", err))
		}
		client, err := netbox.NewClient(cfg.Pack.netbox(), netbox.WithLogger(log))
		if err != nil {
			return newUsageError(fmt.Sprintf("run: %v (set hostname in the pack config or pass --%s)", err, netbox.ArgHostname))
		}
		runner := netbox.NewRunner(client, st2.NewClient(cfg.Pack.st2()), log)

		res, err := runner.Run(ctx, inv)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			return err
		}
		if !res.Status {
			return fmt.Errorf("%w: %s %s returned HTTP %d", ErrActionFailed, strings.ToUpper(string(inv.Verb)), inv.EndpointURI, res.StatusCode)
		}
		return nil
	})
}
