// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the matconv CLI, which converts
// MATLAB measurement recordings into compressed NumPy archives with
// JSON sidecar manifests.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/matconv/internal/catalog"
	"github.com/pdiddy/matconv/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

// rootCmd is the base command for the matconv CLI.
var rootCmd = &cobra.Command{
	Use:   "matconv",
	Short: "Convert MATLAB measurement files into NumPy dataset archives",
	Long: `matconv converts MATLAB .mat recordings into compressed .npz archives
plus JSON manifests recording each array's shape and dtype. Nested MATLAB
structs and cells are flattened into underscore-joined array names.

Use convert for a single file, batch for a whole directory of recordings,
inspect to look inside a .mat or .npz file, and catalog to query past
conversions.`,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./matconv.yaml or ~/.config/matconv/config.yaml)")
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("matconv")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "matconv"))
		}
	}

	viper.SetEnvPrefix("MATCONV")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

// flagOrConfig resolves a string setting: an explicitly set flag wins,
// then the config file / environment, then the flag's default.
func flagOrConfig(cmd *cobra.Command, flag, key string) string {
	if !cmd.Flags().Changed(flag) && viper.IsSet(key) {
		return viper.GetString(key)
	}
	v, _ := cmd.Flags().GetString(flag)
	return v
}

// openCatalog opens the configured conversion catalog, or returns nil
// when the catalog is disabled (empty path).
func openCatalog(cfg types.CatalogConfig) (*catalog.Store, error) {
	if cfg.Path == "" {
		return nil, nil
	}
	return catalog.Open(cfg.Path)
}

// catalogConfig resolves the catalog settings for a command.
func catalogConfig(cmd *cobra.Command) types.CatalogConfig {
	return types.CatalogConfig{Path: flagOrConfig(cmd, "catalog", "catalog.path")}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
