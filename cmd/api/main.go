package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lightauth.org/internal/access"
	"lightauth.org/internal/audit"
	"lightauth.org/internal/config"
	"lightauth.org/internal/httpapi"
	"lightauth.org/internal/obs"
)

var (
	version = "0.3.1"
	commit  = "dev"
)

func main() {
	cfg := config.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store access.Store
		probe httpapi.ReadyProbe
	)
	if cfg.DatabaseURL != "" {
		pg, err := access.OpenPG(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pg.Close()
		store = pg
		probe = httpapi.ReadyProbe{DB: pg.DB()}
	} else {
		log.Println("LIGHTAUTH_PG_DSN not set, using in-memory store")
		store = access.NewInMemory()
	}

	recorder := audit.NewRecorder(store)
	svc, err := access.NewService(store, access.WithRecorder(recorder))
	if err != nil {
		log.Fatalf("init service: %v", err)
	}

	api := httpapi.New(probe, version, svc, cfg.AdminToken)
	api.SetSessionTTL(cfg.SessionTTL)
	api.SetLimits(cfg.MaxBodyBytes, cfg.RateBurst, cfg.RatePerSec)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting lightauth-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
