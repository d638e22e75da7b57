package main

import (
	"github.com/spf13/cobra"
)

type rootFlags struct {
	config   string
	logLevel string
	region   string
	profile  string
	prefix   string
	noColor  bool
}

func newRootCommand() *cobra.Command {
	cmd, _ := buildRootCommand()
	return cmd
}

func buildRootCommand() (*cobra.Command, *commandContext) {
	flags := &rootFlags{}
	ctx := newCommandContext(flags)

	rootCmd := &cobra.Command{
		Use:           "cwtail",
		Short:         "Follow CloudWatch Logs groups in the terminal",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "Configuration file path (default: $CWTAIL_CONFIG)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Diagnostic log level (debug, info, warn, error)")
	pf.StringVar(&flags.region, "region", "", "AWS region")
	pf.StringVar(&flags.profile, "profile", "", "AWS shared config profile")
	pf.StringVar(&flags.prefix, "prefix", "", "Only consider log groups starting with this prefix")
	pf.BoolVar(&flags.noColor, "no-color", false, "Disable colored output")

	rootCmd.AddCommand(newWatchCommand(ctx))
	rootCmd.AddCommand(newGroupsCommand(ctx))

	return rootCmd, ctx
}
