package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/shaun/gitrelay/internal/api"
	"github.com/shaun/gitrelay/internal/auth"
	"github.com/shaun/gitrelay/internal/config"
	"github.com/shaun/gitrelay/internal/content"
	"github.com/shaun/gitrelay/internal/github"
	"github.com/shaun/gitrelay/internal/logging"
)

func main() {
	_ = godotenv.Load(".env")
	log := logging.New()

	cfg, err := config.Load()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gh, err := github.NewClient(ctx, cfg.GitHubToken, cfg.GitHubAPIURL)
	if err != nil {
		log.Error("github client init failed", "error", err)
		os.Exit(1)
	}
	svc := content.NewService(gh, content.Options{
		DefaultBranch:         cfg.DefaultBranch,
		CommitPrefix:          cfg.CommitPrefix,
		CleanupOrphanBranches: cfg.CleanupOrphanBranches,
		Logger:                log,
	})
	router := api.NewRouter(api.NewHandler(svc, log), auth.Keys(cfg.AdminKeys), log)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	}()

	log.Info("gitrelay listening", "addr", srv.Addr, "admins", len(cfg.AdminKeys), "default_branch", cfg.DefaultBranch)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server failed", "error", err)
		os.Exit(1)
	}
}
