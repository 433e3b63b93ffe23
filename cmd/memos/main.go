package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gaa1973/memo-platform/internal/backup"
	"github.com/gaa1973/memo-platform/internal/config"
	"github.com/gaa1973/memo-platform/internal/database"
	"github.com/gaa1973/memo-platform/internal/logging"
	"github.com/gaa1973/memo-platform/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogPretty)

	// memos backup | memos backups | memos restore <key>
	if len(os.Args) > 1 {
		os.Exit(runBackupCommand(cfg, logger, os.Args[1:]))
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err, "path", cfg.DBPath)
		os.Exit(1)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	backups := backup.NewManager(backupConfig(cfg), db, logger.With("component", "backup"))
	backups.Start(context.Background())

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.Cleanup(cleanupCtx)
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		logger.Info("memos server starting", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cleanupCancel()
	backups.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

func backupConfig(cfg config.Config) backup.Config {
	return backup.Config{
		Endpoint:   cfg.BackupEndpoint,
		Bucket:     cfg.BackupBucket,
		Region:     cfg.BackupRegion,
		AccessKey:  cfg.BackupAccessKey,
		SecretKey:  cfg.BackupSecretKey,
		Passphrase: cfg.BackupPassphrase,
		Interval:   cfg.BackupInterval,
		Retention:  cfg.BackupRetention,
	}
}

func runBackupCommand(cfg config.Config, logger *slog.Logger, args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch args[0] {
	case "backup":
		db, err := database.Open(cfg.DBPath)
		if err != nil {
			logger.Error("failed to open database", "error", err)
			return 1
		}
		defer db.Close()

		snap, err := backup.NewManager(backupConfig(cfg), db, logger).Run(ctx)
		if err != nil {
			logger.Error("backup failed", "error", err)
			return 1
		}
		fmt.Println(snap.Key)
	case "backups":
		snaps, err := backup.NewManager(backupConfig(cfg), nil, logger).List(ctx)
		if err != nil {
			logger.Error("list backups", "error", err)
			return 1
		}
		for _, s := range snaps {
			fmt.Printf("%s\t%d\t%s\n", s.CreatedAt.Format(time.RFC3339), s.Size, s.Key)
		}
	case "restore":
		if len(args) != 2 {
			fmt.Fprintln(os.Stderr, "usage: memos restore <key>")
			return 2
		}
		if err := backup.NewManager(backupConfig(cfg), nil, logger).Restore(ctx, args[1], cfg.DBPath); err != nil {
			logger.Error("restore failed", "error", err)
			return 1
		}
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (want backup, backups or restore)\n", args[0])
		return 2
	}
	return 0
}
