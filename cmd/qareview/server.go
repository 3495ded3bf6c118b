package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/qareview/internal/api"
	"github.com/kalambet/qareview/internal/config"
	"github.com/kalambet/qareview/internal/dataset"
	"github.com/kalambet/qareview/internal/publish"
	"github.com/kalambet/qareview/internal/review"
	"github.com/kalambet/qareview/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the review API (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		addr, _ := cmd.Flags().GetString("addr")
		return runServer(withMCP, addr)
	},
}

func init() {
	serveCmd.Flags().Bool("mcp", false, "also serve MCP tools over stdio")
	serveCmd.Flags().String("addr", "127.0.0.1", "listen address (port comes from server.port)")
}

func runServer(withMCP bool, host string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	slog.Info("qareview starting", "version", version, "backend", cfg.Storage.Backend)

	src, err := datasetSource(cfg)
	if err != nil {
		return err
	}
	items, err := dataset.Load(src)
	if err != nil {
		return fmt.Errorf("loading dataset: %w", err)
	}
	slog.Info("dataset loaded", "file", src.Path(), "partition", src.Partition(), "items", len(items))

	store, err := openBackend(cfg, src)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Warn("closing storage", "error", err)
		}
	}()

	if cfg.Server.APIToken == "" {
		slog.Warn("QAREVIEW_API_TOKEN is not set, API authentication is disabled")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sessions := review.NewRegistry(store, items, reviewOptions(cfg))

	addr := net.JoinHostPort(host, fmt.Sprintf("%d", cfg.Server.Port))
	srv := &http.Server{
		Addr: addr,
		Handler: api.NewAppHandler(api.AppDeps{
			Sessions: sessions,
			Profiles: store,
			Token:    cfg.Server.APIToken,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("qareview listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Publish.Enabled {
		w, err := newPublishWorker(ctx, cfg, store)
		if err != nil {
			stop()
			g.Wait()
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
		slog.Info("publishing enabled", "bucket", cfg.Publish.Bucket, "prefix", cfg.Publish.Prefix)
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Sessions: sessions, Version: version})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func newPublishWorker(ctx context.Context, cfg config.Config, store backend) (*publish.Worker, error) {
	db, ok := store.(*storage.Store)
	if !ok {
		return nil, errors.New("publishing requires the sqlite backend")
	}
	bucket, err := publish.NewS3(ctx, publish.Config{
		Endpoint:  cfg.Publish.Endpoint,
		Bucket:    cfg.Publish.Bucket,
		Region:    cfg.Publish.Region,
		Prefix:    cfg.Publish.Prefix,
		AccessKey: cfg.Publish.AccessKey,
		SecretKey: cfg.Publish.SecretKey,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring publish bucket: %w", err)
	}
	return publish.NewWorker(db, db, bucket, 0), nil
}
