package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	apihttp "docqa/internal/api/http"
	"docqa/internal/ingest"
)

func serveCMD(flags *globalFlags) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			if addr != "" {
				cfg.Server.Addr = addr
			}
			log, closeLog, err := newLogger(cfg.Log, os.Stderr)
			if err != nil {
				return err
			}
			defer closeLog()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer a.Close()
			a.runJanitor(ctx)

			if cfg.Watcher.Enabled {
				if err := os.MkdirAll(cfg.Watcher.Inbox, 0o755); err != nil {
					return fmt.Errorf("create inbox: %w", err)
				}
				w := ingest.NewWatcher(cfg.Watcher.Inbox, uploader(a), a.extract,
					ingest.WithDebounce(time.Duration(cfg.Watcher.DebounceMs)*time.Millisecond),
					ingest.WithLogger(log))
				go func() {
					if err := w.Watch(ctx); err != nil {
						log.Error("inbox watcher stopped", "err", err)
					}
				}()
			}

			srv := &http.Server{
				Addr: cfg.Server.Addr,
				Handler: apihttp.NewRouter(a.svc, a.metrics, apihttp.Config{
					Origins:        cfg.Server.CORSOrigins,
					Timeout:        time.Duration(cfg.Server.RequestTimeoutSecs) * time.Second,
					MaxUploadBytes: int64(cfg.Server.MaxUploadMB) << 20,
				}, log),
				ReadHeaderTimeout: 10 * time.Second,
			}
			errc := make(chan error, 1)
			go func() {
				log.Info("listening", "addr", cfg.Server.Addr)
				errc <- srv.ListenAndServe()
			}()

			select {
			case err := <-errc:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return serve
}

func uploader(a *app) ingest.Uploader {
	return ingest.UploaderFunc(func(ctx context.Context, filename string, data []byte) (string, error) {
		res, err := a.svc.Upload(ctx, filename, data)
		return res.DocumentID, err
	})
}
