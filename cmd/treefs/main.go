package main

import (
	"os"

	"github.com/brettbedarf/treefs/config"
	"github.com/brettbedarf/treefs/internal/util"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    int
)

var rootCmd = &cobra.Command{
	Use:   "treefs",
	Short: "Block-backed hierarchical FUSE filesystem",
	Long: `treefs serves an in-memory directory tree over FUSE and persists every
node to a block store: a memory volume, a disk image, a badger database or an
S3 bucket.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a YAML or JSON config file")
	rootCmd.PersistentFlags().IntVarP(&verbose, "verbose", "v", config.InfoVerbose,
		"Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	rootCmd.AddCommand(mkfsCmd, mountCmd)
}

// loadConfig merges the config file, if any, with CLI flags and initializes
// the logger
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewDefaultConfig()
	if configPath != "" {
		override, err := config.LoadConfigOverrideFile(configPath)
		if err != nil {
			return nil, err
		}
		cfg.Merge(override)
	}
	if cmd.Flags().Changed("verbose") || configPath == "" {
		cfg.Merge(&config.ConfigOverride{LogLvl: &verbose})
	}
	util.InitializeLogger(cfg.LogLvl)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
