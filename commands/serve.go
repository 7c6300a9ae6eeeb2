package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"supply-chain-risk/handlers"
	"supply-chain-risk/inference"
)

// NewServeCmd starts the prediction server.
func NewServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the delay prediction server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd)
		},
	}
}

func runServe(cmd *cobra.Command) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.close()

	ctx := cmd.Context()
	infer, err := inference.Load(ctx, e.db, e.cfg.Model.Path, e.cfg.Server.TopCategories, e.logger)
	if err != nil {
		return fmt.Errorf("starting inference: %w", err)
	}

	gin.SetMode(gin.ReleaseMode)
	h := handlers.New(infer)
	h.SetLogger(e.logger)

	srv := &http.Server{
		Addr:         e.cfg.Server.Addr,
		Handler:      h.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		e.logger.Info("prediction server listening", "addr", srv.Addr, "model_loaded", infer.Ready())
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		e.logger.Info("shutting down", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
