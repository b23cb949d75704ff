package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sourcequery/engine/transport"
)

func rconAuthCommand(opts *globalOptions) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "rcon-auth",
		Short: "Authenticate an RCON session",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx := context.Background()
			future, err := c.RconAuthenticate(ctx, opts.destination(transport.KindRCON), password)
			if err != nil {
				return err
			}
			ok, err := future.Await(ctx)
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("authenticated")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "RCON password")
	return cmd
}

func rconExecCommand(opts *globalOptions) *cobra.Command {
	var password, command string
	cmd := &cobra.Command{
		Use:   "rcon-exec",
		Short: "Authenticate and run one RCON command",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(opts)
			if err != nil {
				return err
			}
			defer c.Close()

			dest := opts.destination(transport.KindRCON)
			ctx := context.Background()

			authFuture, err := c.RconAuthenticate(ctx, dest, password)
			if err != nil {
				return err
			}
			// RconExecute requires the session to already be authenticated
			// (it checks synchronously at dispatch time), so the auth
			// handshake must be awaited before the command is dispatched —
			// unlike two independent queries, these two futures are not
			// fire-and-forget in parallel.
			if _, err := authFuture.Await(ctx); err != nil {
				return err
			}

			execFuture, err := c.RconExecute(ctx, dest, command)
			if err != nil {
				return err
			}
			output, err := execFuture.Await(ctx)
			if err != nil {
				return err
			}
			fmt.Print(output)
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "RCON password")
	cmd.Flags().StringVar(&command, "command", "", "command to execute")
	return cmd
}
