package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/haivivi/voicecollect/cmd/voicecollect/internal/config"
)

var (
	// Global flags
	verbose bool

	globalConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "voicecollect",
	Short: "Collect pronunciation recordings for a voice dataset",
	Long: `voicecollect - record how people pronounce words and phrases.

The collector describes who they are and which phrase they record, listens
to a reference sample, records their own take and uploads it to object
storage under dataset/{organization}/{category}/{phrase}/.

Configuration is stored in the OS config directory:
  macOS:   ~/Library/Application Support/voicecollect/
  Linux:   ~/.config/voicecollect/
  Windows: %AppData%/voicecollect/

Examples:
  # Create a context and configure storage
  voicecollect config add-context dev
  voicecollect config use-context dev
  voicecollect config set dev storage bucket my-voices
  voicecollect config set dev storage region us-east-1
  voicecollect config set dev assets sample_dir ./samples

  # Record
  voicecollect record --category female --phrase hello

  # Try it without uploading
  voicecollect record --dry-run ./out --samples ./samples`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// configLoadErr stores the error from config.Load() for deferred reporting.
var configLoadErr error

func initConfig() {
	cfg, err := config.Load()
	globalConfig, configLoadErr = cfg, err
}

// GetConfig returns the global configuration.
func GetConfig() (*config.Config, error) {
	if globalConfig == nil {
		if configLoadErr != nil {
			return nil, fmt.Errorf("config not available: %w", configLoadErr)
		}
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("config not available: %w", err)
		}
		globalConfig = cfg
	}
	return globalConfig, nil
}

// IsVerbose returns whether verbose mode is enabled.
func IsVerbose() bool {
	return verbose
}

// setupLogging installs the default slog handler. Component logs stay quiet
// below warnings so they do not interleave with the interactive prompts.
func setupLogging() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(h))
}
