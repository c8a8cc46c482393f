package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/audiolibrelab/vidcapture/internal/backend"
	"github.com/audiolibrelab/vidcapture/internal/metrics"
	"github.com/audiolibrelab/vidcapture/internal/server"
	"github.com/audiolibrelab/vidcapture/internal/video"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record an H.264 stream from the camera",
	Long: `Record the camera's video output through the hardware H.264 encoder
into a raw elementary stream file.

Recording stops after video.max_seconds, when the encoder ends the
stream, or on Ctrl+C. The file name defaults to <unix-seconds>.h264.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := applyRecordFlags(cmd); err != nil {
			return err
		}

		drv, err := backend.New(cfg)
		if err != nil {
			return fmt.Errorf("failed to select backend: %w", err)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		slog.Info("Record command started",
			"backend", drv.Name(),
			"width", cfg.Video.Width,
			"height", cfg.Video.Height,
			"bit_rate", cfg.Video.BitRate,
			"frame_rate", cfg.Video.FrameRate,
			"max_seconds", cfg.Video.MaxSeconds)

		m := metrics.New()
		rec := video.NewRecorder(cfg, drv, video.WithMetrics(m))
		if cfg.Metrics.Listen != "" {
			srv := server.New(cfg, rec, m)
			if err := srv.Start(cfg.Metrics.Listen); err != nil {
				return err
			}
			defer func() {
				if err := srv.Close(2 * time.Second); err != nil {
					slog.Warn("Failed to stop monitoring server", "error", err)
				}
			}()
		}

		res, err := rec.Run(ctx)
		if err != nil {
			var verr *video.Error
			if errors.As(err, &verr) {
				slog.Error("Recording failed", "kind", verr.Kind, "status", verr.Status, "error", err)
			}
			return err
		}

		fmt.Printf("Recorded %s: %d bytes in %d records (%s)\n",
			res.OutputFilePath, res.BytesWritten, res.Records, res.Duration.Round(time.Millisecond))
		return nil
	},
}

// applyRecordFlags overrides the loaded config with the flags that were set.
func applyRecordFlags(cmd *cobra.Command) error {
	flags := cmd.Flags()
	if flags.Changed("width") {
		cfg.Video.Width, _ = flags.GetUint32("width")
	}
	if flags.Changed("height") {
		cfg.Video.Height, _ = flags.GetUint32("height")
	}
	if flags.Changed("bit-rate") {
		cfg.Video.BitRate, _ = flags.GetUint32("bit-rate")
	}
	if flags.Changed("frame-rate") {
		cfg.Video.FrameRate, _ = flags.GetInt32("frame-rate")
	}
	if flags.Changed("max-seconds") {
		cfg.Video.MaxSeconds, _ = flags.GetUint64("max-seconds")
	}
	if flags.Changed("output") {
		// An explicit path is used as given, not placed under output.directory.
		cfg.Output.FilePath, _ = flags.GetString("output")
		cfg.Output.Directory = ""
	}
	if flags.Changed("metrics-listen") {
		cfg.Metrics.Listen, _ = flags.GetString("metrics-listen")
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid recording settings: %w", err)
	}
	return nil
}

func addRecordFlags(cmd *cobra.Command) {
	cmd.Flags().Uint32("width", 0, "frame width in pixels (overrides config)")
	cmd.Flags().Uint32("height", 0, "frame height in pixels (overrides config)")
	cmd.Flags().Uint32("bit-rate", 0, "encoder bit rate in bits/s (overrides config)")
	cmd.Flags().Int32("frame-rate", 0, "frames per second (overrides config)")
	cmd.Flags().Uint64("max-seconds", 0, "recording duration cap, 0 for none (overrides config)")
	cmd.Flags().StringP("output", "o", "", "output file path, used as given (overrides output.file_path and output.directory)")
	cmd.Flags().String("metrics-listen", "", "address serving /status and Prometheus /metrics while recording")
}

func init() {
	addRecordFlags(recordCmd)
}
