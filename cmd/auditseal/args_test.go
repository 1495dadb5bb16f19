package main

import (
	"strings"
	"testing"

	"github.com/spf13/cobra"
)

// executeArgs runs the given root command with args and returns any error.
// It suppresses cobra's usage/error output so test output stays clean.
func executeArgs(t *testing.T, root *cobra.Command, args ...string) error {
	t.Helper()
	root.SetOut(&strings.Builder{})
	root.SetErr(&strings.Builder{})
	root.SetArgs(args)
	_, err := root.ExecuteC()
	return err
}

// newTestRoot builds the real command tree with client setup stubbed out.
// Every case below must fail before the nil API client is touched.
func newTestRoot(t *testing.T) *cobra.Command {
	t.Helper()
	resetFlags(t)
	root := newRootCmd()
	root.PersistentPreRun = func(*cobra.Command, []string) {}
	return root
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"build without source", []string{"package", "build"}, "one of --data-export or --payroll-job"},
		{"build with two sources", []string{"package", "build", "--data-export", "a", "--payroll-job", "b"}, "mutually exclusive"},
		{"get without id", []string{"package", "get"}, "accepts 1 arg"},
		{"proof with bad index", []string{"package", "proof", "p1", "x"}, "non-negative integer"},
		{"proof with negative index", []string{"package", "proof", "p1", "--", "-1"}, "non-negative integer"},
		{"proof without index", []string{"package", "proof", "p1"}, "accepts 2 arg"},
		{"verify with conflicting modes", []string{"package", "verify", "p1", "--dir", ".", "--recorded-only"}, "mutually exclusive"},
		{"list with negative limit", []string{"package", "list", "--limit", "-1"}, "non-negative"},
		{"pack without range", []string{"pack", "create"}, "--start and --end are required"},
		{"pack with bad date", []string{"pack", "create", "--start", "2026-13-01", "--end", "2026-12-31"}, "--start"},
		{"pack reversed", []string{"pack", "create", "--start", "2026-03-31", "--end", "2026-03-01"}, "before --start"},
		{"archive without id", []string{"keys", "archive"}, "accepts 1 arg"},
		{"config bad mode", []string{"config", "set", "--retention-mode", "forever"}, "governance or compliance"},
		{"verify-archive without file", []string{"verify-archive"}, "accepts 1 arg"},
		{"verify-archive missing file", []string{"verify-archive", "/nonexistent/pkg.zip"}, "no such file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := executeArgs(t, newTestRoot(t), tt.args...)
			if err == nil {
				t.Fatalf("expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestParseRange(t *testing.T) {
	req, err := parseRange("2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("parseRange: %v", err)
	}
	if req.StartDate.Format(dateLayout) != "2026-03-01" || req.EndDate.Day() != 31 {
		t.Errorf("range = %v..%v", req.StartDate, req.EndDate)
	}

	// A single day is a valid range.
	if _, err := parseRange("2026-03-01", "2026-03-01"); err != nil {
		t.Errorf("single day: %v", err)
	}
}

func TestSourceFromFlags(t *testing.T) {
	src, err := sourceFromFlags("", "job-1")
	if err != nil || src.Kind != "payroll_job" || src.ID != "job-1" {
		t.Errorf("src = %+v, err = %v", src, err)
	}
}

func TestOfflineCommandsSkipClient(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"init", "doctor", "verify-archive", "verify-proof"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if cmd.PersistentPreRun == nil {
			t.Errorf("%s would build an API client", name)
		}
	}
}
