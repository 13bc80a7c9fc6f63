package cli

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mark3labs/netbox2st2/internal/logging"
	"github.com/mark3labs/netbox2st2/internal/st2"
	"github.com/mark3labs/netbox2st2/internal/webhook"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// SensorConfig holds the resolved options of the sensor command.
type SensorConfig struct {
	ConfigPath string
	Verbose    bool
	Pack       PackConfig
}

var sensorRunner = runSensor

func newSensorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sensor",
		Short: "Receive NetBox webhooks and dispatch StackStorm triggers",
		Long: "Listen for NetBox webhooks on " + webhook.Path + " and dispatch " +
			"netbox.webhook.object_created, object_updated and object_deleted triggers. " +
			"When sensor_secret is set, the X-Hook-Signature header is verified.",
		Example: strings.TrimSpace(`  netbox2st2 -c netbox.yaml sensor
  netbox2st2 sensor --address 127.0.0.1 --port 6001 --secret s3cret`),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveSensorConfig(cmd)
			if err != nil {
				return err
			}
			return sensorRunner(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	flags.String("address", webhook.DefaultAddress, "Address to listen on")
	flags.Int("port", webhook.DefaultPort, "Port to listen on")
	flags.String("secret", "", "Shared secret NetBox signs webhooks with")

	return cmd
}

func resolveSensorConfig(cmd *cobra.Command) (*SensorConfig, error) {
	configPath, err := resolveConfigPath(cmd)
	if err != nil {
		return nil, err
	}
	pack, err := loadPackConfig(configPath)
	if err != nil {
		return nil, err
	}
	pack.applyEnv(os.Getenv)
	if err := applySensorFlagOverrides(cmd.Flags(), &pack); err != nil {
		return nil, err
	}
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	if pack.SensorPort < 1 || pack.SensorPort > 65535 {
		return nil, newUsageError("sensor: sensor_port is out of range")
	}
	return &SensorConfig{ConfigPath: configPath, Verbose: verbose, Pack: pack}, nil
}

func applySensorFlagOverrides(flags *pflag.FlagSet, pack *PackConfig) error {
	if flags.Changed("address") {
		value, err := flags.GetString("address")
		if err != nil {
			return err
		}
		pack.SensorAddress = strings.TrimSpace(value)
	}
	if flags.Changed("port") {
		value, err := flags.GetInt("port")
		if err != nil {
			return err
		}
		pack.SensorPort = value
	}
	if flags.Changed("secret") {
		value, err := flags.GetString("secret")
		if err != nil {
			return err
		}
		pack.SensorSecret = value
	}
	return nil
}

func runSensor(ctx context.Context, cfg *SensorConfig) error {
	log := logging.New(os.Stderr, cfg.Verbose)
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := newReporter(cfg.Pack, log)
	defer reporter.Flush(flushTimeout)

	if cfg.Pack.SensorSecret == "" {
		log.Warn("sensor_secret is empty, webhook signatures are not verified")
	}
	dispatcher := st2.NewClient(cfg.Pack.st2())
	handler := webhook.NewHandler(cfg.Pack.SensorSecret, dispatcher, log).WithReporter(reporter)
	srv := webhook.NewServer(cfg.Pack.webhook(), handler, log)
	if err := srv.ListenAndServe(ctx); err != nil {
		reporter.Capture(err)
		return err
	}
	return nil
}
