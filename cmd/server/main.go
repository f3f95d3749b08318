package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"taskplanner/internal/config"
	"taskplanner/internal/db"
	"taskplanner/internal/middleware"
	"taskplanner/internal/realtime"
	"taskplanner/internal/router"
	"taskplanner/internal/service"
)

func main() {
	cfg := config.Load()

	database, err := db.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()

	if err := db.RunMigrations(database, db.MigrationSource(cfg.MigrationsDir)); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := realtime.NewHub(realtime.Options{
		PongTimeout: cfg.WSPongTimeout,
		CheckOrigin: middleware.OriginAllowed(cfg.CORSOrigins),
	})
	go hub.Run(ctx)

	services := service.NewServices(database, hub, cfg.JWTSecret, cfg.TokenTTL)

	scheduler := service.NewSchedulerService(time.Local)
	if _, err := scheduler.ScheduleHeartbeat(hub, cfg.WSPingInterval); err != nil {
		log.Fatalf("schedule heartbeat: %v", err)
	}
	if _, err := scheduler.ScheduleAPIKeyPurge(services.APIKeys, cfg.APIKeyPurgeSpec); err != nil {
		log.Fatalf("schedule api key purge: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.Build(services, hub, cfg.CORSOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("backend listening on :%s", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
}
