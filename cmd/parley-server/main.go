// Package main provides the Parley chat server.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/raphaelgruber/parley-go/internal/auth"
	"github.com/raphaelgruber/parley-go/internal/chat"
	"github.com/raphaelgruber/parley-go/internal/config"
	"github.com/raphaelgruber/parley-go/internal/db"
	"github.com/raphaelgruber/parley-go/internal/llm"
	"github.com/raphaelgruber/parley-go/internal/metrics"
	"github.com/raphaelgruber/parley-go/internal/search"
	"github.com/raphaelgruber/parley-go/internal/server"
	"github.com/raphaelgruber/parley-go/internal/trace"
)

// tokenTTL bounds how long an issued bearer token stays valid.
const tokenTTL = 30 * 24 * time.Hour

func main() {
	wipeDB := flag.Bool("wipe", false, "wipe all data from database on startup (testing only)")
	issueToken := flag.String("issue-token", "", "print a bearer token for the given username and exit")
	flag.Parse()

	cfg := config.Load()

	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	if cfg.JWTSecret == "" {
		logger.Error("PARLEY_JWT_SECRET must be set")
		os.Exit(1)
	}
	tokens := auth.NewManager(cfg.JWTSecret, tokenTTL)

	if *issueToken != "" {
		token, err := tokens.Issue(*issueToken)
		if err != nil {
			logger.Error("failed to issue token", "error", err)
			os.Exit(1)
		}
		os.Stdout.WriteString(token + "\n")
		return
	}

	logger.Info("starting parley-server", "port", cfg.ListenPort)

	mc := metrics.NewCollector()

	connectCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	store, err := db.NewClient(connectCtx, db.Config{
		URL:       cfg.SurrealDBURL,
		Namespace: cfg.SurrealDBNamespace,
		Database:  cfg.SurrealDBDatabase,
		Username:  cfg.SurrealDBUser,
		Password:  cfg.SurrealDBPass,
		AuthLevel: cfg.SurrealDBAuthLevel,
	}, logger, mc)
	cancel()
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(context.Background()); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}()

	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = store.InitSchema(initCtx)
	cancel()
	if err != nil {
		logger.Error("failed to initialize schema", "error", err)
		os.Exit(1)
	}

	if *wipeDB || os.Getenv("PARLEY_WIPE_DB") == "true" {
		wipeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := store.WipeData(wipeCtx)
		cancel()
		if err != nil {
			logger.Error("failed to wipe database", "error", err)
			os.Exit(1)
		}
	}

	completer, err := llm.NewClient(cfg, mc)
	if err != nil {
		logger.Error("failed to create llm client", "error", err)
		os.Exit(1)
	}

	searcher := search.New(cfg.TavilyAPIKey, cfg.SearchTimeout, mc)
	if !searcher.Configured() {
		logger.Warn("no search API key configured, internet mode will be unavailable")
	}

	var tracer chat.Tracer
	if lf := trace.New(cfg.LangfuseHost, cfg.LangfusePublicKey, cfg.LangfuseSecretKey, logger); lf != nil {
		tracer = lf
		logger.Info("tracing enabled", "host", cfg.LangfuseHost)
	}

	engine := chat.NewEngine(store, completer, searcher, tracer, logger, chat.Options{
		Window:        cfg.HistoryWindow,
		MaxIterations: cfg.AgentMaxIterations,
	})

	srv := server.New(engine, store, completer, searcher, store, tokens, mc, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx, ":"+cfg.ListenPort); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}
