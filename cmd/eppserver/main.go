// Command eppserver wires the admission pipeline (C1-C9) behind the HTTP
// submission adapter of spec §6, reading its configuration via pkg/eppconfig.
// It is the external HTTP adapter spec §1 names as a collaborator of the
// core, not the core itself.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/redis/go-redis/v9"

	"github.com/elliptic1/external-prompt-protocol/pkg/eppconfig"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppexec"
	"github.com/elliptic1/external-prompt-protocol/pkg/epphttp"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppinbox"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppkey"
	"github.com/elliptic1/external-prompt-protocol/pkg/epplimiter"
	"github.com/elliptic1/external-prompt-protocol/pkg/eppnonce"
	"github.com/elliptic1/external-prompt-protocol/pkg/epptrust"
)

func main() {
	os.Exit(run())
}

func run() int {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	configPath := "epp.yaml"
	if v := os.Getenv("EPP_CONFIG_PATH"); v != "" {
		configPath = v
	}

	cfg, err := eppconfig.Load(configPath)
	if err != nil {
		logger.Error("load config", "error", err)
		return 1
	}

	pubKeyData, err := os.ReadFile(cfg.PublicKeyPath)
	if err != nil {
		logger.Error("read public key; run eppkeygen first", "error", err, "path", cfg.PublicKeyPath)
		return 1
	}
	recipientPub, err := eppkey.PublicKeyFromHex(trimNewline(pubKeyData))
	if err != nil {
		logger.Error("parse public key", "error", err)
		return 1
	}

	trust, err := buildTrustRegistry(cfg)
	if err != nil {
		logger.Error("build trust registry", "error", err)
		return 1
	}

	nonces, err := buildNonceRegistry(cfg)
	if err != nil {
		logger.Error("build nonce registry", "error", err)
		return 1
	}

	limiter, err := buildRateLimiter(cfg)
	if err != nil {
		logger.Error("build rate limiter", "error", err)
		return 1
	}

	executor, err := buildExecutor(cfg, logger)
	if err != nil {
		logger.Error("build executor", "error", err)
		return 1
	}

	inbox := eppinbox.NewInbox(recipientPub.Hex(), trust, nonces, limiter, executor)
	server := epphttp.NewServer(inbox, recipientPub.Hex(), logger)
	httpServer := epphttp.NewHTTPServer(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), server)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("epp inbox listening", "addr", httpServer.Addr, "recipient_key", recipientPub.Hex())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", "error", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown", "error", err)
		return 1
	}
	return 0
}

func trimNewline(b []byte) string {
	s := string(b)
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}

func buildTrustRegistry(cfg *eppconfig.Config) (*epptrust.Registry, error) {
	switch cfg.TrustRegistry.Backend {
	case "postgres":
		db, err := sql.Open("postgres", cfg.TrustRegistry.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		store := epptrust.NewPostgresStore(db)
		if err := store.Init(context.Background()); err != nil {
			return nil, fmt.Errorf("init postgres trust schema: %w", err)
		}
		return epptrust.NewRegistry(store)
	default:
		return epptrust.NewRegistry(epptrust.NewFileStore(cfg.TrustRegistryPath))
	}
}

func buildNonceRegistry(cfg *eppconfig.Config) (*eppnonce.Registry, error) {
	interval := time.Duration(cfg.NonceRegistry.CleanupSeconds) * time.Second
	switch cfg.NonceRegistry.Backend {
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.NonceRegistry.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		store, err := eppnonce.NewSQLiteStore(db)
		if err != nil {
			return nil, fmt.Errorf("init sqlite nonce store: %w", err)
		}
		return eppnonce.NewRegistry(store, interval), nil
	default:
		return eppnonce.NewRegistry(eppnonce.NewInMemoryStore(), interval), nil
	}
}

func buildRateLimiter(cfg *eppconfig.Config) (epplimiter.Limiter, error) {
	switch cfg.RateLimiter.Backend {
	case "redis":
		opts, err := redis.ParseURL(cfg.RateLimiter.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return epplimiter.NewRedisLimiter(redis.NewClient(opts)), nil
	default:
		return epplimiter.NewInMemoryLimiter(), nil
	}
}

func buildExecutor(cfg *eppconfig.Config, logger *slog.Logger) (eppexec.Executor, error) {
	switch cfg.Executor.Type {
	case "file_queue":
		return eppexec.NewFileQueueExecutor(cfg.Executor.QueueDir)
	case "logger":
		return eppexec.NewLoggerExecutor(logger), nil
	default:
		return eppexec.NoopExecutor{}, nil
	}
}
