package main

import (
	"fmt"

	"github.com/SteelMorgan/cwtail/internal/fetcher"
	"github.com/SteelMorgan/cwtail/internal/service"
	"github.com/SteelMorgan/cwtail/internal/sink"
	"github.com/spf13/cobra"
)

func newGroupsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "groups [filter]",
		Short: "List the log groups watch would follow",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx.applyFilter(args)

			client, err := ctx.newCloudWatchClient(cmd.Context())
			if err != nil {
				return err
			}
			return printGroups(cmd, ctx, client)
		},
	}
}

func printGroups(cmd *cobra.Command, ctx *commandContext, lister fetcher.EventFetcher) error {
	svc, err := service.NewTailerService(ctx.config, lister, sink.NewMulti())
	if err != nil {
		return err
	}

	groups, err := svc.BuildCatalog(cmd.Context())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	for _, g := range groups {
		fmt.Fprintln(out, g.Name)
	}
	return nil
}
