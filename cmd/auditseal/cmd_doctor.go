package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/persistorai/auditseal/client"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose configuration and connectivity",
		Long:  "Run diagnostic checks against config, server, auth and the export policy",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDoctor()
		},
	}
}

type checkResult struct {
	Name   string
	Passed bool
	Detail string
	Hint   string
}

func runDoctor() error {
	fmt.Println("\nauditseal doctor")
	fmt.Println("================")

	var results []checkResult

	cfgPath, _, cfgErr := loadConfigFile()
	if cfgErr != nil {
		results = append(results, checkResult{
			Name: "Config file", Passed: false,
			Detail: cfgPath,
			Hint:   "Run: auditseal init",
		})
	} else {
		results = append(results, checkResult{
			Name: "Config file", Passed: true,
			Detail: fmt.Sprintf("found (%s)", cfgPath),
		})
	}

	// Same priority as every other command.
	resolveConfig()

	if flagKey == "" {
		results = append(results, checkResult{
			Name: "API key", Passed: false,
			Hint: "Set --api-key, AUDITSEAL_API_KEY, or run auditseal init",
		})
	} else {
		results = append(results, checkResult{Name: "API key", Passed: true, Detail: "configured"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := client.New(flagURL, client.WithAPIKey(flagKey), client.WithTimeout(5*time.Second))

	health, err := c.Health(ctx)
	if err != nil {
		results = append(results, checkResult{
			Name: "Server reachable", Passed: false,
			Detail: flagURL,
			Hint:   fmt.Sprintf("Is auditseal-server running?\n   Error: %v", err),
		})
	} else {
		results = append(results, checkResult{
			Name: "Server reachable", Passed: true,
			Detail: fmt.Sprintf("v%s, schema %d, database %s", health.Version, health.SchemaVersion, health.Database),
		})
	}

	if err == nil && flagKey != "" {
		results = append(results, doctorCheckAuth(ctx, c)...)
	}

	fmt.Println()
	allPassed := true
	for _, r := range results {
		mark := "✅"
		if !r.Passed {
			mark = "❌"
			allPassed = false
		}
		if r.Detail != "" {
			fmt.Printf("%s %s: %s\n", mark, r.Name, r.Detail)
		} else {
			fmt.Printf("%s %s\n", mark, r.Name)
		}
		if !r.Passed && r.Hint != "" {
			fmt.Printf("   Hint: %s\n", r.Hint)
		}
	}

	fmt.Println()
	if !allPassed {
		fmt.Println("❌ Some checks failed.")
		return fmt.Errorf("doctor found issues")
	}
	fmt.Println("✅ All checks passed!")
	return nil
}

// doctorCheckAuth verifies the key and reports the org's export policy.
func doctorCheckAuth(ctx context.Context, c *client.Client) []checkResult {
	cfg, err := c.Config.Get(ctx)
	switch {
	case client.IsNotFound(err):
		return []checkResult{
			{Name: "Authentication", Passed: true, Detail: "valid"},
			{Name: "Export policy", Passed: false, Hint: "Run: auditseal config set"},
		}
	case err != nil:
		var detail string
		if apiErr, ok := err.(*client.APIError); ok && apiErr.StatusCode == http.StatusUnauthorized {
			detail = "rejected"
		}
		return []checkResult{{Name: "Authentication", Passed: false, Detail: detail, Hint: fmt.Sprintf("Check your API key. Error: %v", err)}}
	}

	results := []checkResult{{Name: "Authentication", Passed: true, Detail: "valid"}}
	if !cfg.IsEnabled {
		results = append(results, checkResult{Name: "Export policy", Passed: false, Detail: "disabled", Hint: "Run: auditseal config set"})
	} else {
		results = append(results, checkResult{
			Name: "Export policy", Passed: true,
			Detail: fmt.Sprintf("%d years, %s, object lock supported: %v", cfg.RetentionYears, cfg.RetentionMode, cfg.ObjectLockSupported),
		})
	}
	return results
}
