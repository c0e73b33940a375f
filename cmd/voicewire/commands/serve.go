package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/voicewire/voicewire/pkg/server"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the orchestrator for inbound client connections",
	Long: `Serve the realtime WebSocket endpoint and the operational surface:

  GET /v1/realtime  realtime session endpoint (subprotocol "realtime")
  GET /v1/health    aggregate readiness of STT, LLM, and TTS`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := server.New(buildServices(),
			server.WithLogger(slog.Default()),
			server.WithRecordingsDir(recordingsDir),
		)
		return runHTTP(cmd.Context(), serveListen, srv.Handler())
	},
}

// runHTTP serves handler until the context or an interrupt stops it.
func runHTTP(ctx context.Context, listen string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpSrv := &http.Server{Addr: listen, Handler: handler}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("listening", "addr", listen)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", ":8089", "listen address")
	addServiceFlags(serveCmd)
	rootCmd.AddCommand(serveCmd)
}
