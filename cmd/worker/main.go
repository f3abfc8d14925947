// Worker is the expiry janitor: on a fixed interval it deactivates sessions
// past their expiry and deletes expired action tokens. Neither sweep is a
// correctness dependency, every reader filters on expiry itself, so the
// worker can lag or restart without observable effect.
//
// Requires DATABASE_URL. Set METRICS_ADDR to serve Prometheus metrics.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	actionrepo "credential-control-plane/internal/actiontoken/repository"
	"credential-control-plane/internal/config"
	"credential-control-plane/internal/db"
	"credential-control-plane/internal/obs"
	sessionrepo "credential-control-plane/internal/session/repository"
)

// sweepTimeout bounds a single sweep; an overdue one is cancelled and
// retried whole on the next tick.
const sweepTimeout = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("worker: DATABASE_URL is required")
	}

	database, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("worker: opening database: %v", err)
	}
	defer database.Close()

	obs.Init()
	if cfg.MetricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", obs.Handler())
			log.Printf("worker: serving metrics on %s", cfg.MetricsAddr)
			if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
				log.Printf("worker: metrics server: %v", err)
			}
		}()
	}

	sessions := sessionrepo.NewPostgresRepository(database)
	tokens := actionrepo.NewPostgresRepository(database)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("worker: shutting down...")
		cancel()
	}()

	interval := cfg.SweepInterval()
	log.Printf("worker: sweeping every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sweep(ctx, sessions, tokens)
	for {
		select {
		case <-ctx.Done():
			log.Println("worker: stopped")
			return
		case <-ticker.C:
			sweep(ctx, sessions, tokens)
		}
	}
}

func sweep(ctx context.Context, sessions *sessionrepo.PostgresRepository, tokens *actionrepo.PostgresRepository) {
	sweepCtx, cancel := context.WithTimeout(ctx, sweepTimeout)
	defer cancel()
	now := time.Now().UTC()

	deactivated, err := sessions.DeactivateExpired(sweepCtx, now)
	if err != nil {
		log.Printf("worker: deactivating expired sessions: %v", err)
	} else {
		obs.RecordSweep("sessions", deactivated)
		if deactivated > 0 {
			log.Printf("worker: deactivated %d expired sessions", deactivated)
		}
	}

	deleted, err := tokens.DeleteExpired(sweepCtx, now)
	if err != nil {
		log.Printf("worker: deleting expired action tokens: %v", err)
	} else {
		obs.RecordSweep("action_tokens", deleted)
		if deleted > 0 {
			log.Printf("worker: deleted %d expired action tokens", deleted)
		}
	}

	active, err := sessions.CountActive(sweepCtx, now)
	if err != nil {
		log.Printf("worker: counting active sessions: %v", err)
	} else {
		obs.SetActiveSessions(active)
	}
}
