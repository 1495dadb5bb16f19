package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/auditseal/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.3.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3040"

var (
	apiClient *client.Client
	flagURL   string
	flagKey   string
	flagActor string
	flagFmt   string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("auditseal version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("auditseal version %s-dev", version)
}

type configFile struct {
	Profiles      map[string]configProfile `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

type configProfile struct {
	URL    string `yaml:"url"`
	APIKey string `yaml:"api_key"`
	Actor  string `yaml:"actor,omitempty"`
}

// skipClient marks commands that run without a server.
func skipClient(cmd *cobra.Command) *cobra.Command {
	cmd.PersistentPreRun = func(*cobra.Command, []string) {}
	return cmd
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "auditseal",
		Short:   "auditseal CLI: sealed, verifiable audit export packages",
		Version: versionString(),
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			resolveConfig()
			opts := []client.Option{}
			if flagKey != "" {
				opts = append(opts, client.WithAPIKey(flagKey))
			}
			if flagActor != "" {
				opts = append(opts, client.WithActor(flagActor))
			}
			apiClient = client.New(flagURL, opts...)
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&flagURL, "url", defaultURL, "auditseal server URL (env: AUDITSEAL_URL)")
	rootCmd.PersistentFlags().StringVar(&flagKey, "api-key", "", "API key (env: AUDITSEAL_API_KEY)")
	rootCmd.PersistentFlags().StringVar(&flagActor, "actor", "", "Identity recorded on packages and verifications (env: AUDITSEAL_ACTOR)")
	rootCmd.PersistentFlags().StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")

	rootCmd.AddCommand(skipClient(newInitCmd()))
	rootCmd.AddCommand(skipClient(newDoctorCmd()))
	rootCmd.AddCommand(skipClient(newVerifyArchiveCmd()))
	rootCmd.AddCommand(skipClient(newVerifyProofCmd()))
	rootCmd.AddCommand(newPackageCmd())
	rootCmd.AddCommand(newPackCmd())
	rootCmd.AddCommand(newKeysCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func configPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".auditseal", "config.yaml"), nil
}

func loadConfigFile() (string, *configFile, error) {
	cfgPath, err := configPath()
	if err != nil {
		return "", nil, err
	}
	data, err := os.ReadFile(cfgPath)
	if err != nil {
		return cfgPath, nil, err
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfgPath, nil, err
	}
	return cfgPath, &cfg, nil
}

func (c *configFile) active() (configProfile, bool) {
	if c == nil || c.Profiles == nil {
		return configProfile{}, false
	}
	name := c.ActiveProfile
	if name == "" {
		name = "default"
	}
	p, ok := c.Profiles[name]
	return p, ok
}

func resolveConfig() {
	// Flag takes precedence, then env, then config file.
	if flagURL == defaultURL {
		if v := os.Getenv("AUDITSEAL_URL"); v != "" {
			flagURL = v
		}
	}
	if flagKey == "" {
		flagKey = os.Getenv("AUDITSEAL_API_KEY")
	}
	if flagActor == "" {
		flagActor = os.Getenv("AUDITSEAL_ACTOR")
	}

	_, cfg, err := loadConfigFile()
	if err != nil {
		return
	}
	p, ok := cfg.active()
	if !ok {
		return
	}
	if flagURL == defaultURL && p.URL != "" {
		flagURL = p.URL
	}
	if flagKey == "" {
		flagKey = p.APIKey
	}
	if flagActor == "" {
		flagActor = p.Actor
	}
}

func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	os.Exit(1)
}
