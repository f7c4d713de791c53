// Command whomectl is the operator CLI for the WhoMe service: schema
// migrations, catalog seeding, identity listing and storage checks.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/your-org/whome/internal/config"
	"github.com/your-org/whome/internal/observability"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "whomectl",
	Short: "Operate a WhoMe installation",
	Long: `whomectl manages the database schema, seeds the default coffee shop
catalog, lists registered identities and checks the blob store of a WhoMe
installation. It reads the same config file and WHOME_* variables as the API.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to config file (empty for env only)")
}

func initConfig() {
	// .env is optional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}
}

// loadConfig reads the config and sets up logging to stderr.
func loadConfig() (*config.Config, error) {
	path := configPath
	if path != "" {
		if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			path = ""
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(observability.NewLogger(os.Stderr, cfg.Logging.Level, "text"))
	return cfg, nil
}

func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
