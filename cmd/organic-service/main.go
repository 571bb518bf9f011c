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
	"stairway/internal/organic"
	"stairway/pkg/config"
	"stairway/pkg/db"
	"stairway/pkg/graph"
	"stairway/pkg/logger"
	"stairway/pkg/middleware"
	"stairway/pkg/storage"
	"stairway/pkg/tenants"
	"stairway/pkg/vault"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.Env)

	pool := db.MustConnect(cfg, log)

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

	mediaBase := cfg.PublicBaseURL
	if mediaBase == "" {
		mediaBase = "http://localhost" + cfg.OrganicAddr + "/media"
	}
	store := storage.NewMemory(mediaBase)

	client := graph.NewClient(cfg.GraphBaseURL, cfg.GraphVersion)
	svc := organic.NewService(cfg, log, client, secrets)

	r := chi.NewRouter()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recover(log))
	r.Use(middleware.Tracing(cfg))
	r.Use(middleware.WithTenant(prov))
	r.Use(middleware.JWTAuth(cfg))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.Write([]byte("ok")) })
	api.VaultRoutes(r, secrets, cfg.VaultWriteScopes, log)
	api.OrganicRoutes(r, svc, store, log)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	srv := &http.Server{Addr: cfg.OrganicAddr, Handler: r}
	go func() {
		log.Infow("organic-service listening", "addr", cfg.OrganicAddr)
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
	fmt.Println("organic-service stopped")
}
