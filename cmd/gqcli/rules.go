package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/sourcequery/engine/transport"
)

func rulesCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rules",
		Short: "Query A2S_RULES",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := context.Background()
			future, err := c.QueryRules(ctx, opts.destination(transport.KindQuery))
			if err != nil {
				return err
			}
			rules, err := future.Await(ctx)
			if err != nil {
				return err
			}
			names := make([]string, 0, len(rules))
			for name := range rules {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				fmt.Printf("%s = %s\n", name, rules[name])
			}
			return nil
		},
	}
}
