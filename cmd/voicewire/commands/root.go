package commands

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "voicewire",
	Short: "Real-time voice session orchestrator",
	Long: `voicewire - bridges voice conversations between clients and the
STT, LLM, and TTS backing services.

Two deployment modes:
  serve        wait for inbound client connections on /v1/realtime
  autoconnect  dial a configured set of remote devices and keep each
               connection supervised independently

Examples:
  voicewire serve --listen :8089 --llm-url http://localhost:8000/v1
  voicewire devices example-config devices.yaml
  voicewire autoconnect --devices devices.yaml
  voicewire status --server http://localhost:8089`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
