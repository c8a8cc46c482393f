package cmd

import (
	"fmt"
	"runtime"

	"github.com/audiolibrelab/vidcapture/internal/backend"

	"github.com/spf13/cobra"
)

var backendsCmd = &cobra.Command{
	Use:   "backends",
	Short: "List available video backends",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Video backends (%s/%s), configured: %s\n", runtime.GOOS, runtime.GOARCH, cfg.Backend)
		for _, b := range backend.Available() {
			state := "available"
			if !b.Available {
				state = "unavailable: " + b.Reason
			}
			fmt.Printf("  %-5s %s (%s)\n", b.Type, b.Description, state)
		}
		return nil
	},
}
