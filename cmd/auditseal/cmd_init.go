package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/auditseal/client"
)

func newInitCmd() *cobra.Command {
	var (
		initURL    string
		initAPIKey string
		initActor  string
		profile    string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Set up auditseal CLI configuration",
		Long:  "Interactive setup wizard that creates ~/.auditseal/config.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			nonInteractive := initURL != "" || initAPIKey != ""
			return runInit(initURL, initAPIKey, initActor, profile, nonInteractive)
		},
	}

	cmd.Flags().StringVar(&initURL, "server", "", "Server URL (non-interactive mode)")
	cmd.Flags().StringVar(&initAPIKey, "key", "", "API key (non-interactive mode)")
	cmd.Flags().StringVar(&initActor, "as", "", "Actor recorded on your requests")
	cmd.Flags().StringVar(&profile, "profile", "default", "Profile name")
	return cmd
}

func runInit(url, apiKey, actor, profile string, nonInteractive bool) error {
	if !nonInteractive {
		fmt.Println("\n  auditseal setup")
		fmt.Println("  ───────────────")
		fmt.Println()

		reader := bufio.NewReader(os.Stdin)

		fmt.Printf("  Server URL [%s]: ", defaultURL)
		line, _ := reader.ReadString('\n')
		if line = strings.TrimSpace(line); line != "" {
			url = line
		}

		fmt.Print("  API Key: ")
		keyLine, _ := reader.ReadString('\n')
		apiKey = strings.TrimSpace(keyLine)

		fmt.Print("  Your name or email (recorded on packages): ")
		actorLine, _ := reader.ReadString('\n')
		actor = strings.TrimSpace(actorLine)
	}

	if url == "" {
		url = defaultURL
	}

	if apiKey == "" {
		return fmt.Errorf("API key is required")
	}

	if !nonInteractive {
		fmt.Print("\n  Testing connection... ")
	}

	ver, err := testConnection(url, apiKey)
	if err != nil {
		if !nonInteractive {
			fmt.Println("✗")
		}
		return fmt.Errorf("connection failed: %w", err)
	}

	if !nonInteractive {
		fmt.Printf("✓ Connected (v%s)\n", ver)
	}

	cfgPath, err := writeConfig(profile, configProfile{URL: url, APIKey: apiKey, Actor: actor})
	if err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	if nonInteractive {
		fmt.Printf("Config saved to %s\n", cfgPath)
	} else {
		fmt.Printf("\n  ✓ Config saved to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("  Next steps:")
		fmt.Println("    auditseal doctor        # Full diagnostic check")
		fmt.Println("    auditseal config get    # Show the export policy")
		fmt.Println("    auditseal --help        # See all commands")
		fmt.Println()
	}

	return nil
}

// testConnection checks the server answers and the key authenticates.
func testConnection(url, apiKey string) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c := client.New(url, client.WithAPIKey(apiKey))
	health, err := c.Health(ctx)
	if err != nil {
		return "", err
	}
	if _, err := c.Keys.List(ctx); err != nil {
		return "", err
	}

	if health.Version == "" {
		return "unknown", nil
	}
	return health.Version, nil
}

// writeConfig stores p under name and makes it the active profile, keeping
// any other profiles already in the file.
func writeConfig(name string, p configProfile) (string, error) {
	cfgPath, existing, err := loadConfigFile()
	if cfgPath == "" {
		return "", err
	}

	cfg := configFile{Profiles: map[string]configProfile{}}
	if existing != nil && existing.Profiles != nil {
		cfg.Profiles = existing.Profiles
	}
	cfg.Profiles[name] = p
	cfg.ActiveProfile = name

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0o700); err != nil {
		return "", err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return "", err
	}

	return cfgPath, nil
}
