package cli

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/memlayer/memlayer/internal/config"
	"github.com/memlayer/memlayer/internal/embedding"
	"github.com/memlayer/memlayer/internal/engine"
	"github.com/memlayer/memlayer/internal/observability"
	"github.com/memlayer/memlayer/internal/server"
	"github.com/memlayer/memlayer/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

// openStore builds the configured store backend.
func openStore(ctx context.Context, cfg config.Config) (store.Store, error) {
	switch cfg.Database.Driver {
	case "postgres":
		if cfg.Database.URL == "" {
			return nil, fmt.Errorf("database.url is required for the postgres driver")
		}
		return store.NewPostgres(ctx, cfg.Database.URL, cfg.Embedding.Dimensions)
	default:
		path := cfg.Database.Path
		if path == "" {
			var err error
			path, err = store.DefaultDBPath()
			if err != nil {
				return nil, fmt.Errorf("resolve db path: %w", err)
			}
		}
		return store.Open(path)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	observability.Setup(cfg.Logging)

	st, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	emb, err := embedding.New(cfg.Embedding)
	if err != nil {
		return fmt.Errorf("configure embedder: %w", err)
	}
	if cfg.Embedding.Provider == "ollama" && !embedding.ProbeOllama(cfg.Embedding.OllamaURL, cfg.Embedding.Model) {
		slog.Warn("ollama unreachable, ingest will store memories without vectors",
			"url", cfg.Embedding.OllamaURL, "model", cfg.Embedding.Model)
	}

	eng, err := engine.New(st, emb, cfg)
	if err != nil {
		return fmt.Errorf("configure engine: %w", err)
	}

	srv := server.New(st, eng, VersionString())
	addr := cfg.ListenAddr()

	httpServer := &http.Server{
		Addr:    addr,
		Handler: srv,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("memlayer serving", "addr", addr,
			"driver", cfg.Database.Driver, "embedder", emb.Model(),
			"dimensions", cfg.Embedding.Dimensions)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "err", err)
			os.Exit(1)
		}
	}()

	<-done
	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return httpServer.Shutdown(ctx)
}
