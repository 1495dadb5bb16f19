package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/persistorai/auditseal/client"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the organization's export policy",
	}
	cmd.AddCommand(configGetCmd())
	cmd.AddCommand(configSetCmd())
	cmd.AddCommand(configDisableCmd())
	return cmd
}

func configGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the export policy",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			cfg, err := apiClient.Config.Get(context.Background())
			if err != nil {
				fatal("get config", err)
			}
			output(cfg, fmt.Sprintf("%d %s", cfg.RetentionYears, cfg.RetentionMode))
		},
	}
}

func configSetCmd() *cobra.Command {
	var years int
	var mode string
	var worm, autoPayroll, autoExports bool
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Opt in or change the export policy",
		Long:  "Opt in or change the export policy. Only flags given on the command line are changed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req := &client.UpsertConfigRequest{}
			flags := cmd.Flags()
			if flags.Changed("retention-years") {
				req.RetentionYears = &years
			}
			if flags.Changed("retention-mode") {
				if mode != "governance" && mode != "compliance" {
					return errors.New("--retention-mode must be governance or compliance")
				}
				req.RetentionMode = &mode
			}
			if flags.Changed("worm") {
				req.WORMEnabled = &worm
			}
			if flags.Changed("auto-export-payroll") {
				req.AutoExportPayroll = &autoPayroll
			}
			if flags.Changed("auto-export-data-exports") {
				req.AutoExportDataExports = &autoExports
			}

			cfg, err := apiClient.Config.Set(context.Background(), req)
			if err != nil {
				fatal("set config", err)
			}
			output(cfg, cfg.ID)
			return nil
		},
	}
	cmd.Flags().IntVar(&years, "retention-years", 10, "Years packages are retained (1-30)")
	cmd.Flags().StringVar(&mode, "retention-mode", "compliance", "Object lock mode: governance|compliance")
	cmd.Flags().BoolVar(&worm, "worm", true, "Store packages write-once")
	cmd.Flags().BoolVar(&autoPayroll, "auto-export-payroll", false, "Seal every finished payroll job")
	cmd.Flags().BoolVar(&autoExports, "auto-export-data-exports", false, "Seal every finished data export")
	return cmd
}

func configDisableCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Stop sealing new packages",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if err := apiClient.Config.Disable(context.Background()); err != nil {
				fatal("disable config", err)
			}
			fmt.Println("disabled")
		},
	}
}
