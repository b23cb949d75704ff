package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourcequery/engine/transport"
)

func playersCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "players",
		Short: "Query A2S_PLAYER",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := context.Background()
			future, err := c.QueryPlayers(ctx, opts.destination(transport.KindQuery))
			if err != nil {
				return err
			}
			players, err := future.Await(ctx)
			if err != nil {
				return err
			}
			for _, p := range players {
				fmt.Printf("%-3d %-32s score=%-6d duration=%.0fs\n", p.Index, p.Name, p.Score, p.Duration)
			}
			return nil
		},
	}
}
