package main

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

func newKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage package signing keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List signing keys",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			keys, err := apiClient.Keys.List(context.Background())
			if err != nil {
				fatal("list keys", err)
			}
			if flagFmt == "table" {
				rows := make([][]string, 0, len(keys))
				for _, k := range keys {
					rows = append(rows, []string{k.ID, strconv.Itoa(k.Version), strconv.FormatBool(k.IsActive), shortHash(k.Fingerprint), formatTime(k.ArchivedAt)})
				}
				formatTable([]string{"ID", "VERSION", "ACTIVE", "FINGERPRINT", "ARCHIVED"}, rows)
				return
			}
			output(keys, "")
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "active",
		Short: "Show the active signing key",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			key, err := apiClient.Keys.Active(context.Background())
			if err != nil {
				fatal("get active key", err)
			}
			output(key, key.Fingerprint)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "rotate",
		Short: "Replace the active signing key",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			key, err := apiClient.Keys.Rotate(context.Background())
			if err != nil {
				fatal("rotate key", err)
			}
			output(key, key.ID)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "archive <id>",
		Short: "Archive a rotated signing key",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			key, err := apiClient.Keys.Archive(context.Background(), args[0])
			if err != nil {
				fatal("archive key", err)
			}
			output(key, key.ID)
		},
	})

	return cmd
}
