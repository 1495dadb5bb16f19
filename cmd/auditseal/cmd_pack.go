package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/auditseal/client"
)

const dateLayout = "2006-01-02"

func newPackCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pack",
		Short: "Request and inspect audit packs",
	}
	cmd.AddCommand(packCreateCmd())
	cmd.AddCommand(packGetCmd())
	cmd.AddCommand(packListCmd())
	return cmd
}

func parseRange(start, end string) (*client.CreatePackRequest, error) {
	if start == "" || end == "" {
		return nil, errors.New("--start and --end are required")
	}
	s, err := time.Parse(dateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("--start: %w", err)
	}
	e, err := time.Parse(dateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("--end: %w", err)
	}
	if e.Before(s) {
		return nil, errors.New("--end is before --start")
	}
	return &client.CreatePackRequest{StartDate: s, EndDate: e}, nil
}

func packCreateCmd() *cobra.Command {
	var start, end string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Request an audit pack over a date range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req, err := parseRange(start, end)
			if err != nil {
				return err
			}
			pack, err := apiClient.Packs.Create(context.Background(), req)
			if err != nil {
				fatal("create pack", err)
			}
			output(pack, pack.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "First day (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "Last day (YYYY-MM-DD)")
	return cmd
}

func packGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a pack and its artifact",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			pack, artifact, err := apiClient.Packs.Get(context.Background(), args[0])
			if err != nil {
				fatal("get pack", err)
			}
			quiet := pack.Status
			if artifact != nil {
				quiet = artifact.PackageID
			}
			output(map[string]any{"pack": pack, "artifact": artifact}, quiet)
		},
	}
}

func packListCmd() *cobra.Command {
	var status string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audit packs",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			packs, _, err := apiClient.Packs.List(context.Background(), &client.PackListOptions{Status: status, Limit: limit, Offset: offset})
			if err != nil {
				fatal("list packs", err)
			}
			switch flagFmt {
			case "table":
				rows := make([][]string, 0, len(packs))
				for _, p := range packs {
					rows = append(rows, []string{p.ID, p.StartDate.Format(dateLayout), p.EndDate.Format(dateLayout), p.Status, p.ErrorCode})
				}
				formatTable([]string{"ID", "START", "END", "STATUS", "ERROR"}, rows)
			case "quiet":
				for _, p := range packs {
					fmt.Println(p.ID)
				}
			default:
				output(packs, strconv.Itoa(len(packs)))
			}
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset")
	return cmd
}
