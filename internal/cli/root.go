package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the netbox2st2 CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// NewRootCmd constructs the root command so tests can exercise the CLI easily.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "netbox2st2",
		Short: "NetBox actions and webhooks for StackStorm",
		Long: "netbox2st2 generates StackStorm actions from NetBox's API spec, executes them, " +
			"and turns NetBox webhooks into StackStorm triggers.",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	// Convert Cobra flag errors (like unknown flags) into friendly usage errors
	// that also show the command's help text.
	flagErr := func(c *cobra.Command, err error) error {
		return newUsageError(fmt.Sprintf("%v\n\n%s", err, c.UsageString()))
	}
	cmd.SetFlagErrorFunc(flagErr)

	cmd.PersistentFlags().StringP("config", "c", "", "Pack config file (YAML or JSON); defaults to $"+ConfigEnvVar)
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging output")

	for _, sub := range []*cobra.Command{newGenerateCmd(), newRunCmd(), newSensorCmd(), newInitCmd()} {
		sub.SetFlagErrorFunc(flagErr)
		cmd.AddCommand(sub)
	}

	return cmd
}
