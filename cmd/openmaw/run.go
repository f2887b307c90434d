package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openmaw-ai/openmaw/pkg/server"
)

var runCmd = &cobra.Command{
	Use:   "run [text]",
	Short: "Match and execute a transcript in-process, without the daemon",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		text := strings.Join(args, " ")

		srv, err := server.New(ctx)
		if err != nil {
			return fmt.Errorf("initialize engine: %w", err)
		}
		defer srv.ShutdownFunc(ctx)

		match, ok := srv.Matcher.Match(ctx, text, srv.Loader.Enabled())
		if !ok {
			fmt.Fprintln(cmd.OutOrStdout(), "no plugin matched")
			return nil
		}

		exec, err := srv.Runner.Execute(ctx, match)
		if err != nil {
			return err
		}
		if exec.Stream != nil {
			for ev := range exec.Stream {
				if ev.Err != nil {
					return ev.Err
				}
				if ev.Done {
					fmt.Fprintln(cmd.OutOrStdout())
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), ev.Delta)
			}
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), exec.Result.Text)
		return nil
	},
}
