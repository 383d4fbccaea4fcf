package cmd

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"docshare/internal/document/repository"
	"docshare/internal/document/service"
	userrepo "docshare/internal/user/repository"
	"docshare/pkg/logger"
	"docshare/router"
	"docshare/socket"

	"github.com/spf13/cobra"
)

func NewServeCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, opts)
		},
	}
}

func serve(ctx context.Context, opts *RootOptions) error {
	cfg := opts.Config

	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := socket.NewHub()
	go hub.Run(hubCtx)

	docService := service.NewDocumentService(
		userrepo.NewUserRepository(db),
		repository.NewDocumentRepository(db),
		hub,
	)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router.Setup(cfg, docService, hub),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Sugar.Infof("Go Backend listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Sugar.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = server.Shutdown(shutdownCtx)

	// Shutdown does not track hijacked websocket connections; the hub closes them.
	stopHub()
	select {
	case <-hub.Done():
	case <-shutdownCtx.Done():
	}
	if err != nil {
		return err
	}
	logger.Sugar.Info("Server exited")
	return nil
}
