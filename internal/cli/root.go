// Package cli implements the uberfixctl command line.
package cli

import (
	"fmt"
	"os"
	"slices"
	"time"

	"github.com/spf13/cobra"
)

type RootOptions struct {
	Format  string
	APIURL  string
	Token   string
	Timeout time.Duration
}

var ValidFormats = []string{"text", "json", "yaml"}

func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "uberfixctl",
		Short: "Inspect maintenance workflow stages and move requests between them",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", envOr("UBERFIX_API_URL", "http://localhost:8080"), "base URL of the uberfix API")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", os.Getenv("UBERFIX_API_TOKEN"), "bearer token for the API")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "API request timeout")

	cmd.AddCommand(NewStagesCommand(opts))
	cmd.AddCommand(NewProgressCommand(opts))
	cmd.AddCommand(NewNextCommand(opts))
	cmd.AddCommand(NewTransitionCommand(opts))

	return cmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
