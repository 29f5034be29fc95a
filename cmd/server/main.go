// cmd/server/main.go

// 帳本服務進入點：建立帳戶、存款與轉帳的 RESTful API。
// 此檔案負責組裝各模組（config, logger, storage, bank, server），
// 依設定選擇 Postgres 或 JSON 快照儲存，並可選擇啟用 Redis 重送快取與 NATS 事件發布。
// 收到 SIGINT/SIGTERM 時優雅關閉：停止接收請求、等待進行中的請求、關閉儲存層。

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/bank"
	"ledger/internal/config"
	"ledger/internal/events"
	"ledger/internal/idempotency"
	"ledger/internal/logger"
	"ledger/internal/server"
	"ledger/internal/storage"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, "couldn't load config:", err)
		os.Exit(2)
	}
	if err := logger.Initialize(cfg.LogLevel); err != nil {
		fmt.Fprintln(os.Stderr, "couldn't initialize logger:", err)
		os.Exit(2)
	}
	defer logger.Log.Sync() //nolint:errcheck

	if cfg.InsecureTokenSecret() {
		logger.Log.Warn("TOKEN_SECRET is unset or uses the development default; bearer tokens can be forged")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		logger.Log.Fatal("server stopped with error", logger.Error(err))
	}
	logger.Log.Info("server stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Log.Warn("close failed", logger.Error(err))
			}
		}
	}()

	store, err := openStore(ctx, cfg, &closers)
	if err != nil {
		return err
	}

	bankOpts := []bank.Option{bank.WithLogger(logger.Log)}
	if cfg.NATSURL != "" {
		nc, err := events.Connect(cfg.NATSURL)
		if err != nil {
			return err
		}
		closers = append(closers, closerFunc(func() error { return nc.Drain() }))
		bankOpts = append(bankOpts, bank.WithPublisher(events.NewPublisher(nc, cfg.EventSubject)))
		logger.Log.Info("publishing ledger events", logger.String("subject", cfg.EventSubject))
	}
	b := bank.NewBank(store, bankOpts...)

	var srvOpts []server.Option
	if cfg.RedisURL != "" {
		rc, err := idempotency.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return err
		}
		closers = append(closers, rc)
		srvOpts = append(srvOpts, server.WithIdempotency(idempotency.NewRedisStore(rc), cfg.IdempotencyTTL))
		logger.Log.Info("idempotency keys enabled", logger.Duration("ttl", cfg.IdempotencyTTL))
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.NewServer(b, cfg.TokenSecret, srvOpts...).Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Log.Info("ledger server running", logger.String("address", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// openStore 有 DATABASE_URI 時使用 Postgres 並套用 migrations，否則使用 JSON 快照。
func openStore(ctx context.Context, cfg *config.Config, closers *[]io.Closer) (bank.Store, error) {
	if cfg.DatabaseURL == "" {
		mem, err := storage.NewMemory(cfg.SnapshotPath)
		if err != nil {
			return nil, err
		}
		*closers = append(*closers, mem)
		logger.Log.Info("using JSON snapshot store", logger.String("path", cfg.SnapshotPath))
		return mem, nil
	}

	pool, err := storage.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	*closers = append(*closers, closerFunc(func() error { pool.Close(); return nil }))
	pg := storage.NewPostgres(pool)
	if err := pg.Migrate(); err != nil {
		return nil, err
	}
	logger.Log.Info("using postgres store")
	return pg, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
