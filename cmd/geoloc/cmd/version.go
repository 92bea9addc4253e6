package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-drift/geolocation/pkg/platform"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "geoloc %s\n", Version)
			fmt.Fprintf(out, "  built:            %s\n", BuildTime)
			fmt.Fprintf(out, "  bridge protocol:  %s\n", platform.ProtocolVersion)
			return nil
		},
	}
}
