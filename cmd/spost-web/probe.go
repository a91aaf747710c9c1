package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd(opts *options) *cobra.Command {
	var wait bool
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Check whether the extension bridge answers on the page bus",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			a, err := wireApp(ctx, opts.cfg, opts.log)
			if err != nil {
				return err
			}
			defer a.Close()
			defer cancel()

			out := cmd.OutOrStdout()
			available := a.client.CheckAvailable(ctx)
			if _, err := fmt.Fprintf(out, "available: %t\n", available); err != nil {
				return err
			}
			if wait {
				if _, err := a.client.Prober().WaitForBridge(ctx, opts.cfg.Bridge.Capability, opts.cfg.Bridge.WaitTimeout); err != nil {
					return err
				}
				if _, err := fmt.Fprintf(out, "bridge: %s ready\n", opts.cfg.Bridge.Capability); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(out, "connected: %t\n", a.client.IsConnected(ctx))
			return err
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "also wait for the bridge capability to be injected")
	return cmd
}
