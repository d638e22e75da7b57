package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/SteelMorgan/cwtail/internal/cloudwatch"
	"github.com/SteelMorgan/cwtail/internal/config"
	"github.com/SteelMorgan/cwtail/internal/observability"
	"github.com/spf13/cobra"
)

type commandContext struct {
	flags  *rootFlags
	config *config.Config
}

func newCommandContext(flags *rootFlags) *commandContext {
	return &commandContext{flags: flags}
}

// setup loads configuration, applies command line overrides and starts the logger
func (c *commandContext) setup(cmd *cobra.Command) error {
	path := strings.TrimSpace(c.flags.config)
	if path == "" {
		path = os.Getenv("CWTAIL_CONFIG")
	}

	cfg, err := config.LoadFile(path)
	if err != nil {
		return err
	}

	pf := cmd.Flags()
	if pf.Changed("log-level") {
		cfg.Log.Level = c.flags.logLevel
	}
	if pf.Changed("region") {
		cfg.AWS.Region = c.flags.region
	}
	if pf.Changed("profile") {
		cfg.AWS.Profile = c.flags.profile
	}
	if pf.Changed("prefix") {
		cfg.Tail.GroupPrefix = c.flags.prefix
	}
	if pf.Changed("no-color") {
		cfg.Tail.NoColor = c.flags.noColor
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	observability.InitLogger(cfg.Log.Level, cfg.Log.File)
	c.config = cfg
	return nil
}

// applyFilter sets the group filter from the optional positional argument
func (c *commandContext) applyFilter(args []string) {
	if len(args) > 0 {
		c.config.Tail.Filter = args[0]
	}
}

func (c *commandContext) newCloudWatchClient(ctx context.Context) (*cloudwatch.Client, error) {
	return cloudwatch.New(ctx, cloudwatch.Config{
		Region:        c.config.AWS.Region,
		Profile:       c.config.AWS.Profile,
		Endpoint:      c.config.AWS.Endpoint,
		MaxEventPages: c.config.Tail.MaxEventPages,
	})
}
