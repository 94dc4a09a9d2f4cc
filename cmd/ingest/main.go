package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ecom-agent/config"
	"ecom-agent/internal/ingest"
	"ecom-agent/internal/redisclient"
	"ecom-agent/internal/util"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

// maxLoggedRejects bounds the per-table rejected row log lines
const maxLoggedRejects = 10

func main() {
	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()

	dir := cfg.Ingest.DataDir
	if len(os.Args) > 1 {
		dir = os.Args[1]
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sqlx.Connect(cfg.Database.Driver, cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	logger.Info("Ingesting data",
		zap.String("dir", dir),
		zap.String("driver", cfg.Database.Driver),
	)

	reports, err := ingest.NewIngester(db).Run(ctx, dir)
	if err != nil {
		logger.Fatal("Ingestion failed", zap.Error(err))
	}

	for _, r := range reports {
		logger.Info("Table loaded",
			zap.String("table", r.Table),
			zap.String("source", r.Source),
			zap.Int("loaded", r.Loaded),
			zap.Int("rejected", len(r.Rejected)),
		)
		for i, rej := range r.Rejected {
			if i == maxLoggedRejects {
				logger.Warn("More rows rejected", zap.String("table", r.Table), zap.Int("remaining", len(r.Rejected)-i))
				break
			}
			logger.Warn("Row rejected", zap.String("table", r.Table), zap.Int("line", rej.Line), zap.Error(rej.Err))
		}
	}

	// cached answers describe the previous data
	if cfg.Redis.Enabled {
		cache, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB,
			time.Duration(cfg.Redis.CacheTTLSeconds)*time.Second)
		if err != nil {
			logger.Error("Failed to connect to Redis, cached results not cleared", zap.Error(err))
			return
		}
		defer cache.Close()

		removed, err := cache.Invalidate(ctx)
		if err != nil {
			logger.Error("Failed to clear cached results", zap.Error(err))
			return
		}
		logger.Info("Cached results cleared", zap.Int("keys", removed))
	}
}
