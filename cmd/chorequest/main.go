package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mknutsen/chorequest/internal/cache"
	"github.com/mknutsen/chorequest/internal/logging"
	"github.com/mknutsen/chorequest/internal/notify"
	"github.com/mknutsen/chorequest/internal/remote/drive"
	"github.com/mknutsen/chorequest/internal/remote/rpc"
	"github.com/mknutsen/chorequest/internal/repository"
	"github.com/mknutsen/chorequest/internal/server"
	"github.com/mknutsen/chorequest/internal/session"
	syncpkg "github.com/mknutsen/chorequest/internal/sync"
)

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	logger := logging.Setup(os.Getenv("CHOREQUEST_LOG_LEVEL"), os.Getenv("CHOREQUEST_LOG_FORMAT"))

	port := envOr("CHOREQUEST_PORT", "8080")
	dataDir := envOr("CHOREQUEST_DATA_DIR", ".")
	dbPath := envOr("CHOREQUEST_DB_PATH", filepath.Join(dataDir, "chorequest.db"))
	sessionPath := envOr("CHOREQUEST_SESSION_PATH", filepath.Join(dataDir, "session.bin"))
	sessionSecret := os.Getenv("CHOREQUEST_SESSION_SECRET")
	if sessionSecret == "" {
		logger.Error("CHOREQUEST_SESSION_SECRET is required")
		os.Exit(1)
	}

	db, err := cache.Open(dbPath)
	if err != nil {
		logger.Error("failed to open cache", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	rpcClient := rpc.NewClient(rpc.Config{
		BaseURL: envOr("CHOREQUEST_RPC_URL", "https://api.chorequest.app/rpc"),
		Timeout: 30 * time.Second,
	}, logger)

	driveClient := drive.NewClient(drive.Config{
		Endpoint: os.Getenv("CHOREQUEST_DRIVE_ENDPOINT"),
		Bucket:   envOr("CHOREQUEST_DRIVE_BUCKET", "chorequest-families"),
		Region:   envOr("CHOREQUEST_DRIVE_REGION", "us-east-1"),
	}, logger)

	sessions := session.NewStore(sessionPath, sessionSecret)
	tokens := session.NewTokenManager(sessions, rpcClient, logger)

	hub := notify.NewHub(logger)
	chores := cache.NewChoreStore(db, hub)
	templates := cache.NewTemplateStore(db, hub)
	rewards := cache.NewRewardStore(db, hub)
	redemptions := cache.NewRedemptionStore(db, hub)
	users := cache.NewUserStore(db, hub)
	logs := cache.NewActivityStore(db, hub)

	orchestrator := syncpkg.New(syncpkg.Config{}, sessions, tokens, driveClient, rpcClient, syncpkg.Stores{
		Chores:      chores,
		Templates:   templates,
		Rewards:     rewards,
		Redemptions: redemptions,
		Users:       users,
		Logs:        logs,
	}, logger)

	backend := &repository.Backend{
		Sessions:    sessions,
		Tokens:      tokens,
		Drive:       driveClient,
		RPC:         rpcClient,
		Logger:      logger,
		RequestSync: orchestrator.RequestSync,
	}

	activityRepo := repository.NewActivityRepo(backend, logs)
	choreRepo := repository.NewChoreRepo(backend, chores, templates, activityRepo)
	rewardRepo := repository.NewRewardRepo(backend, rewards)
	redemptionRepo := repository.NewRedemptionRepo(backend, redemptions, activityRepo)
	userRepo := repository.NewUserRepo(backend, users, activityRepo)
	wiper := repository.NewWiper(backend, chores, templates, rewards, redemptions, users, logs)

	orchestrator.Start(context.Background())
	defer orchestrator.Stop()

	// Hourly maintenance: flag overdue chores and drop stale local
	// activity entries. Remote history is untouched.
	maintCtx, maintCancel := context.WithCancel(context.Background())
	defer maintCancel()
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := choreRepo.MarkOverdue(maintCtx); err != nil {
					logger.Warn("overdue sweep failed", "error", err)
				}
				if n, err := activityRepo.Prune(time.Now().AddDate(0, -3, 0)); err != nil {
					logger.Warn("activity prune failed", "error", err)
				} else if n > 0 {
					logger.Info("pruned old activity entries", "count", n)
				}
			case <-maintCtx.Done():
				return
			}
		}
	}()

	srv := server.New(choreRepo, rewardRepo, redemptionRepo, userRepo, activityRepo, wiper, sessions, orchestrator, hub, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("chorequest running", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
