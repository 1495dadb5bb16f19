package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/auditseal/client"
)

func newPackageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "package",
		Aliases: []string{"pkg"},
		Short:   "Build, inspect and verify export packages",
	}
	cmd.AddCommand(packageBuildCmd())
	cmd.AddCommand(packageGetCmd())
	cmd.AddCommand(packageListCmd())
	cmd.AddCommand(packageFilesCmd())
	cmd.AddCommand(packageProofCmd())
	cmd.AddCommand(packageVerifyCmd())
	cmd.AddCommand(packageVerificationsCmd())
	return cmd
}

// sourceFromFlags picks the single source named on the command line.
func sourceFromFlags(dataExport, payrollJob string) (client.Source, error) {
	switch {
	case dataExport != "" && payrollJob != "":
		return client.Source{}, errors.New("--data-export and --payroll-job are mutually exclusive")
	case dataExport != "":
		return client.Source{Kind: client.SourceDataExport, ID: dataExport}, nil
	case payrollJob != "":
		return client.Source{Kind: client.SourcePayrollJob, ID: payrollJob}, nil
	default:
		return client.Source{}, errors.New("one of --data-export or --payroll-job is required")
	}
}

func packageTerminal(status string) bool {
	return status == "completed" || status == "failed"
}

// waitForPackage polls until the package reaches a terminal state.
func waitForPackage(ctx context.Context, id string, interval time.Duration) (*client.Package, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		pkg, err := apiClient.Packages.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if packageTerminal(pkg.Status) {
			return pkg, nil
		}
		select {
		case <-ctx.Done():
			return pkg, fmt.Errorf("package %s still %s: %w", id, pkg.Status, ctx.Err())
		case <-ticker.C:
		}
	}
}

func packageBuildCmd() *cobra.Command {
	var dataExport, payrollJob string
	var wait bool
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "build",
		Short: "Seal a data export or payroll job into a package",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := sourceFromFlags(dataExport, payrollJob)
			if err != nil {
				return err
			}
			pkg, err := apiClient.Packages.Create(context.Background(), src)
			if err != nil {
				fatal("create package", err)
			}
			if wait {
				ctx, cancel := context.WithTimeout(context.Background(), timeout)
				defer cancel()
				if pkg, err = waitForPackage(ctx, pkg.ID, time.Second); err != nil {
					fatal("wait for package", err)
				}
			}
			output(pkg, pkg.ID)
			if pkg.Status == "failed" {
				return fmt.Errorf("package failed: %s", pkg.ErrorMessage)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dataExport, "data-export", "", "Data export ID to seal")
	cmd.Flags().StringVar(&payrollJob, "payroll-job", "", "Payroll job ID to seal")
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait until the package is completed or failed")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Maximum time to wait")
	return cmd
}

func packageGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Get a package by ID",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			pkg, err := apiClient.Packages.Get(context.Background(), args[0])
			if err != nil {
				fatal("get package", err)
			}
			output(pkg, pkg.ID)
		},
	}
}

func packageListCmd() *cobra.Command {
	var status string
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List packages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 0 || offset < 0 {
				return errors.New("--limit and --offset must be non-negative")
			}
			pkgs, _, err := apiClient.Packages.List(context.Background(), &client.PackageListOptions{Status: status, Limit: limit, Offset: offset})
			if err != nil {
				fatal("list packages", err)
			}
			switch flagFmt {
			case "table":
				rows := make([][]string, 0, len(pkgs))
				for _, p := range pkgs {
					rows = append(rows, []string{p.ID, p.Source.Kind, p.Status, strconv.Itoa(p.FileCount), shortHash(p.MerkleRoot), formatTime(p.CompletedAt)})
				}
				formatTable([]string{"ID", "SOURCE", "STATUS", "FILES", "ROOT", "COMPLETED"}, rows)
			case "quiet":
				for _, p := range pkgs {
					fmt.Println(p.ID)
				}
			default:
				output(pkgs, "")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "Filter by status")
	cmd.Flags().IntVar(&limit, "limit", 0, "Max results")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset")
	return cmd
}

func packageFilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "files <id>",
		Short: "List the files sealed in a package",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			files, err := apiClient.Packages.Files(context.Background(), args[0])
			if err != nil {
				fatal("list files", err)
			}
			if flagFmt == "table" {
				rows := make([][]string, 0, len(files))
				for _, f := range files {
					rows = append(rows, []string{strconv.Itoa(f.MerkleIndex), f.FilePath, strconv.FormatInt(f.SizeBytes, 10), f.SHA256Hash})
				}
				formatTable([]string{"INDEX", "PATH", "BYTES", "SHA256"}, rows)
				return
			}
			output(files, "")
		},
	}
}

func packageProofCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "proof <id> <index>",
		Short: "Print the Merkle inclusion proof of one file",
		Long:  "Print the Merkle inclusion proof of one file. Save it and check it later with verify-proof.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil || index < 0 {
				return fmt.Errorf("index must be a non-negative integer, got %q", args[1])
			}
			proof, err := apiClient.Packages.Proof(context.Background(), args[0], index)
			if err != nil {
				fatal("get proof", err)
			}
			output(proof, proof.Leaf)
			return nil
		},
	}
}

// readDirFiles loads every regular file under dir keyed by its slash-separated
// path relative to dir.
func readDirFiles(dir string) (map[string][]byte, error) {
	files := map[string][]byte{}
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		files[filepath.ToSlash(rel)] = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no files under %s", dir)
	}
	return files, nil
}

func printReport(r *client.VerificationReport) {
	switch flagFmt {
	case "quiet":
		formatQuiet(strconv.FormatBool(r.IsValid))
	case "table":
		rows := make([][]string, 0, len(r.ChecksPerformed))
		for _, check := range r.ChecksPerformed {
			result, detail := "pass", ""
			for _, e := range r.ErrorDetails {
				if e.Check == check {
					result, detail = "FAIL", e.Message
				}
			}
			rows = append(rows, []string{check, result, detail})
		}
		formatTable([]string{"CHECK", "RESULT", "DETAIL"}, rows)
		for _, m := range r.FileMismatches {
			fmt.Printf("mismatch: %s expected %s actual %s\n", m.FilePath, shortHash(m.Expected), shortHash(m.Actual))
		}
	default:
		formatJSON(r)
	}
}

func packageVerifyCmd() *cobra.Command {
	var dir string
	var recordedOnly bool
	cmd := &cobra.Command{
		Use:   "verify <id>",
		Short: "Re-verify a sealed package",
		Long: `Re-verify a sealed package on the server. By default the stored archive is
re-hashed. With --dir the files under DIR are uploaded and checked instead;
with --recorded-only only the recorded digests, signature and timestamp are checked.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dir != "" && recordedOnly {
				return errors.New("--dir and --recorded-only are mutually exclusive")
			}

			ctx := context.Background()
			var report *client.VerificationReport
			var err error
			if dir != "" {
				files, rerr := readDirFiles(dir)
				if rerr != nil {
					return rerr
				}
				report, err = apiClient.Packages.VerifyFiles(ctx, args[0], files)
			} else {
				report, err = apiClient.Packages.Verify(ctx, args[0], !recordedOnly)
			}
			if err != nil {
				fatal("verify package", err)
			}

			printReport(report)
			if !report.IsValid {
				return fmt.Errorf("package %s failed: %s", args[0], strings.Join(report.ChecksFailed, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Directory of files to check against the manifest")
	cmd.Flags().BoolVar(&recordedOnly, "recorded-only", false, "Skip re-hashing file bytes")
	return cmd
}

func packageVerificationsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "verifications <id>",
		Short: "Show the verification history of a package",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			logs, err := apiClient.Packages.Verifications(context.Background(), args[0], limit)
			if err != nil {
				fatal("list verifications", err)
			}
			if flagFmt == "table" {
				rows := make([][]string, 0, len(logs))
				for _, l := range logs {
					at := l.VerifiedAt
					rows = append(rows, []string{formatTime(&at), strconv.FormatBool(l.IsValid), l.Source, l.VerifiedBy, strings.Join(l.ChecksFailed, ",")})
				}
				formatTable([]string{"VERIFIED_AT", "VALID", "SOURCE", "BY", "FAILED"}, rows)
				return
			}
			output(logs, "")
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Max results")
	return cmd
}
