// ABOUTME: Watch command: meter a remote level feed
// ABOUTME: Discovers a feed over mDNS when no address is given
package cli

import (
	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/vumeter/internal/app"
)

func (e *env) watchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [host:port]",
		Short: "Show the levels published by another vumeter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.load(cmd, nil)
			if err != nil {
				return err
			}
			mode, err := e.setupLog(cfg)
			if err != nil {
				return err
			}

			addr := ""
			if len(args) == 1 {
				addr = args[0]
			}
			return app.Watch(cmd.Context(), cfg, addr, app.Options{Mode: mode, Log: e.log})
		},
	}
}
