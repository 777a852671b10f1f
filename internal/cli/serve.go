package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"intratool/internal/server"
	"intratool/internal/websocket"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Warm up every module file, then serve the HTTP API and the /ws event
socket until interrupted. Scheduled backups run while serving.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(rootOpts)
			if err != nil {
				return err
			}
			defer func() { _ = rt.Close() }()
			if addr != "" {
				rt.cfg.Server.Addr = addr
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rt)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}

func runServe(ctx context.Context, rt *runtime) error {
	log := rt.log
	hub := websocket.NewHub(log)
	rt.storage.Subscribe(hub.StorageListener())

	if err := rt.storage.Warmup(ctx); err != nil {
		return err
	}
	for _, st := range rt.storage.Status() {
		if !st.Healthy() {
			log.Warn("module migration failed", zap.String("module", st.Module), zap.String("error", st.MigrationError))
		}
	}

	if rt.cfg.Backup.At != "" {
		if err := rt.backup.Schedule(ctx, rt.cfg.Backup.At); err != nil {
			return err
		}
	}

	app := &server.App{
		Log:     log,
		Storage: rt.storage,
		Exec:    rt.exec,
		Store:   rt.store,
		Backup:  rt.backup,
		Hub:     hub,
	}
	srv := &http.Server{
		Addr:              rt.cfg.Server.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		log.Info("listening", zap.String("addr", srv.Addr), zap.String("data_dir", rt.cfg.DataDir))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return group.Wait()
}
