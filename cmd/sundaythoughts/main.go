// Command sundaythoughts serves the Sunday Thoughts site and manages its
// readers and articles.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	st "github.com/Really-Nice-Guy/ST-May01"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	verbose bool
	logger  = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:           "sundaythoughts",
	Short:         "Sunday Thoughts - a gated collection of articles",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config := zap.NewProductionConfig()
		if verbose {
			config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = config.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	// Serving is the default.
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "sundaythoughts %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.AddCommand(serveCmd, usersCmd, articlesCmd, versionCmd)
}

// openStore opens the content database named by the environment.
func openStore() (*st.Store, st.SiteConfig, error) {
	cfg, err := st.LoadConfig()
	if err != nil {
		return nil, st.SiteConfig{}, err
	}
	store, err := st.OpenStore(cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, st.SiteConfig{}, fmt.Errorf("open database: %w", err)
	}
	return store, cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
