package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/audiolibrelab/vidcapture/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	profile      string
	backendName  string
	verboseLevel int
)

var rootCmd = &cobra.Command{
	Use:   "vidcapture",
	Short: "Record H.264 video from the Raspberry Pi camera",
	Long: `vidcapture drives the VideoCore camera and hardware H.264 encoder
through MMAL and writes the encoded elementary stream to a file.

Without VideoCore libraries it falls back to a simulated camera, which
is useful to try the pipeline on any machine.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Configure slog based on verbose level
		setupLogging(verboseLevel)

		// config init writes the file, it must not require one
		if cmd == configInitCmd {
			return nil
		}

		// Only an explicitly given config file has to exist
		required := cfgFile != ""
		if cfgFile == "" {
			cfgFile = config.DefaultPath()
		}

		var err error
		cfg, err = config.LoadWithProfile(cfgFile, profile, required)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		if backendName != "" {
			cfg.Backend = backendName
		}
		return cfg.Validate()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/vidcapture.yaml)")
	rootCmd.PersistentFlags().StringVar(&profile, "profile", "", "configuration profile to use (overrides active_profile from file)")
	rootCmd.PersistentFlags().StringVar(&backendName, "backend", "", "video backend: auto, mmal or sim (overrides config)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug, 2=VideoCore logging")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(backendsCmd)
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	// Configure text handler for clean terminal output
	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}
	handler := slog.NewTextHandler(os.Stderr, opts)
	slog.SetDefault(slog.New(handler))

	// Level 2 also turns on the userland library logging
	if level >= 2 {
		os.Setenv("VC_LOGLEVEL", "mmal:trace")
	}
}
