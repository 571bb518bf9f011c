package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stairway/internal/api"
	"stairway/internal/pipeline"
	"stairway/pkg/config"
	"stairway/pkg/db"
	"stairway/pkg/graph"
	"stairway/pkg/logger"
	"stairway/pkg/middleware"
	"stairway/pkg/tenants"
	"stairway/pkg/vault"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)
	rdb := db.MustRedis(cfg, log)

	var prov tenants.Provider
	var secrets vault.Store
	cipher := vault.NewCipher(cfg.SecretKey)
	if pool != nil {
		prov = tenants.NewPostgresProvider(pool, log)
		_ = tenants.EnsureSchema(context.Background(), pool)
		_ = tenants.SeedFromEnv(context.Background(), pool, os.Getenv("TENANT_SEED_JSON"))
		_ = vault.EnsureSchema(context.Background(), pool)
		secrets = vault.NewPostgresStore(pool, cipher, cfg.SecretValidity, log)
	} else {
		prov = tenants.NewMemoryProviderFromEnv(log)
		secrets = vault.NewMemoryStore(cipher, cfg.SecretValidity)
	}

	placements := pipeline.DefaultPlacements()
	if path := os.Getenv("PLACEMENT_CATALOG_FILE"); path != "" {
		loaded, err := pipeline.LoadPlacements(path)
		if err != nil {
			log.Fatalw("load placements", "path", path, "err", err)
		}
		placements = loaded
	}

	client := graph.NewClient(cfg.GraphBaseURL, cfg.GraphVersion)
	svc := pipeline.NewService(cfg, log, client, secrets, rdb, placements)
	runs := api.NewRegistry()

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))
	r.Use(middleware.WithTenant(prov))
	r.Use(middleware.JWTAuth(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	api.VaultRoutes(r, secrets, cfg.VaultWriteScopes, log)
	api.PipelineRoutes(r, svc, runs, log)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.AdsAddr, Handler: r}
	go func() {
		log.Infow("ads-service listening", "addr", cfg.AdsAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("ListenAndServe", "err", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	fmt.Println("ads-service stopped")
}
