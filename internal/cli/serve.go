package cli

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"chat-client/internal/handlers"
)

var (
	flagServeAddr string
	flagServeRoom int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the session headless behind a local HTTP control API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagServeAddr, "addr", "", "listen address (env CONTROL_ADDR)")
	serveCmd.Flags().IntVar(&flagServeRoom, "room", 0, "chatroom to activate on start")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	addr := cfg.ControlAddr
	if flagServeAddr != "" {
		addr = flagServeAddr
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if flagServeRoom != 0 {
		if err := a.engine.Activate(ctx, flagServeRoom); err != nil {
			return err
		}
	}

	if cfg.AppEnv != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	handler := handlers.NewControlHandler(a.engine, a.directory, a.identity)
	router := handlers.NewRouter(handler, serviceName, cfg.AppEnv == "development")

	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("[control] listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	log.Info().Msg("[control] shutting down")
	return srv.Shutdown(shutdownCtx)
}
