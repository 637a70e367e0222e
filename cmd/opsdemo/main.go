// Command opsdemo serves a small HTTP API whose shutdown is coordinated:
// readiness flips first, in-flight requests finish, pools close, and the
// process exits with a code that reflects how the drain went.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "opsdemo",
		Short:         "HTTP demo service with coordinated graceful shutdown",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}

	root.AddCommand(newServeCommand(), newVersionCommand())

	return root
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:           "serve",
		Short:         "Start the HTTP server (default)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the configured service version",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), cfg.ServiceName, cfg.Version)

			return err
		},
	}
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}

	svc, err := newService(cmd.Context(), cfg, nil)
	if err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), err)
		return err
	}

	return svc.run()
}
