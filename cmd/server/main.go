package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"deltagate/internal/consent"
	"deltagate/internal/dataset"
	"deltagate/internal/inference"
	"deltagate/internal/ledger"
	"deltagate/internal/platform/config"
	"deltagate/internal/platform/httpserver"
	"deltagate/internal/platform/logger"
	platformredis "deltagate/internal/platform/redis"
	"deltagate/internal/platform/token"
	"deltagate/internal/registry"
	"deltagate/internal/training"
	httptransport "deltagate/internal/transport/http"
	"deltagate/internal/whylog"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	ctx := context.Background()

	signer, err := ledger.NewSigner()
	if err != nil {
		log.Error("signing key generation failed", "error", err)
		os.Exit(1)
	}

	ledgerStore, closeStore, err := buildLedgerStore(ctx, cfg.Ledger)
	if err != nil {
		log.Error("ledger store unavailable", "error", err)
		os.Exit(1)
	}
	if _, ok := ledgerStore.(*ledger.MemoryStore); ok {
		log.Warn("audit ledger running in memory, events will not survive restarts")
	}
	led := ledger.New(ledgerStore, signer, ledger.Config{SegmentSize: cfg.Ledger.SegmentSize}, log)

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	var cache *consent.Cache
	if redisClient != nil {
		cache = consent.NewCache(redisClient.Client)
		defer redisClient.Close()
	}

	oracle := consent.NewMemoryOracle()
	checker := consent.NewChecker(oracle, cache, cfg.Consent.LookupTimeout, log)

	models := registry.New()
	datasetStore := dataset.NewMemoryStore()
	datasets := dataset.NewService(datasetStore, led, log)

	var artifacts training.Artifacts
	if cfg.DataRoot != "" {
		artifacts = training.NewFSArtifacts(cfg.DataRoot)
	}
	trainer := training.NewService(datasetStore, models, led, artifacts, signer.PublicKeyHex(), log)

	infer := inference.NewService(checker, models,
		[]inference.Engine{inference.StubTabularEngine{}, inference.StubTextEngine{}},
		inference.NewPool(cfg.Pool.Workers), led, whylog.DefaultPolicy(), log)

	tokens := token.NewService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)
	handler := httptransport.NewHandler(datasets, trainer, infer, tokens, log)

	srv := httpserver.New(cfg.Server.Addr, handler.Router())

	log.Info("starting deltagate", "addr", cfg.Server.Addr, "signing_key", signer.PublicKeyHex())

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}

	// Seal whatever the open segment holds so the audit trail ends signed.
	if seg, err := led.Flush(shutdownCtx); err != nil {
		log.Error("final ledger seal failed", "error", err)
	} else if seg != nil {
		log.Info("final ledger segment sealed", "segment", seg.Index, "count", seg.Count)
	}
	if closeStore != nil {
		if err := closeStore(); err != nil {
			log.Error("ledger store close failed", "error", err)
		}
	}
}

func buildLedgerStore(ctx context.Context, cfg config.Ledger) (ledger.Store, func() error, error) {
	if cfg.PostgresDSN != "" {
		store, err := ledger.OpenPostgresStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		if err := store.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
	if cfg.Dir != "" {
		store, err := ledger.NewFileStore(cfg.Dir)
		if err != nil {
			return nil, nil, err
		}
		return store, store.Close, nil
	}
	return ledger.NewMemoryStore(), nil, nil
}
