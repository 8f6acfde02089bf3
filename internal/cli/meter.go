// ABOUTME: Default command: meter the configured capture device
// ABOUTME: Also hosts the devices and version subcommands
package cli

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/Resonate-Protocol/vumeter/internal/app"
	"github.com/Resonate-Protocol/vumeter/internal/config"
	"github.com/Resonate-Protocol/vumeter/internal/version"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
)

func (e *env) runMeter(cmd *cobra.Command, args []string) error {
	cfg, err := e.load(cmd, meterFlags)
	if err != nil {
		return err
	}
	mode, err := e.setupLog(cfg)
	if err != nil {
		return err
	}

	e.log.Infof("Starting %s: backend %s, device %q", version.String(), cfg.Device.Backend, cfg.Device.Name)
	return app.Meter(cmd.Context(), cfg, app.Options{Mode: mode, Log: e.log})
}

func (e *env) devicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List capture devices of a backend",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := e.load(cmd, map[string]string{"backend": config.KeyBackend})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			devices, err := input.Devices(cfg.Device.Backend)
			if errors.Is(err, input.ErrNoEnumeration) {
				fmt.Fprintf(out, "%s only supports its default device\n", cfg.Device.Backend)
				return nil
			}
			if err != nil {
				return err
			}

			if len(devices) == 0 {
				fmt.Fprintf(out, "No %s capture devices found\n", cfg.Device.Backend)
				return nil
			}
			for _, d := range devices {
				marker := " "
				if d.Default {
					marker = "*"
				}
				fmt.Fprintf(out, "%s card %d, device %d: %s\n", marker, d.Card, d.Index, d.Name)
			}
			return nil
		},
	}
	cmd.Flags().StringP("backend", "b", "malgo", "Capture backend")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version and platform",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, version.String())
			fmt.Fprintln(out, "OS:", runtime.GOOS)
			fmt.Fprintln(out, "Architecture:", runtime.GOARCH)
			fmt.Fprintln(out, "Backends:", input.Backends())
		},
	}
}
