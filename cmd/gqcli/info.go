package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourcequery/engine/transport"
)

func infoCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Query A2S_INFO",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := context.Background()
			future, err := c.QueryInfo(ctx, opts.destination(transport.KindQuery))
			if err != nil {
				return err
			}
			info, err := future.Await(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("%s  map=%s  players=%d/%d  game=%s\n", info.Name, info.Map, info.Players, info.MaxPlayers, info.Game)
			return nil
		},
	}
}
