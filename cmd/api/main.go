package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	rdb "github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health/grpc_health_v1"

	"authgrid.org/internal/audit"
	"authgrid.org/internal/auth"
	"authgrid.org/internal/cache"
	"authgrid.org/internal/config"
	"authgrid.org/internal/events"
	"authgrid.org/internal/health"
	"authgrid.org/internal/httpapi"
	"authgrid.org/internal/obs"
	"authgrid.org/internal/rate"
	"authgrid.org/internal/registry"
	"authgrid.org/internal/store/pg"
)

var version = "0.4.1"

func main() {
	_ = godotenv.Load()
	obs.Init()

	cfg, err := config.Load(os.Getenv("AUTHGRID_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	store, err := pg.Open(cfg.Storage.DSN)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()
	db := store.DB()
	db.SetMaxOpenConns(cfg.Storage.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Storage.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	cacheClient, err := cache.New(cache.Config{
		Driver:     cfg.Cache.Driver,
		Addr:       cfg.Cache.Redis.Addr,
		Password:   cfg.Cache.Redis.Password,
		DB:         cfg.Cache.Redis.DB,
		Prefix:     cfg.Cache.Redis.Prefix,
		DefaultTTL: cfg.CacheDefaultTTL(),
	})
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer cacheClient.Close()

	authStore := auth.NewPGStore(db)
	auditor := audit.NewRecorder(store.Audit())

	validator, err := auth.NewValidator(cfg.Auth.Secret, authStore.Revocations(), authStore.Identities(),
		auth.WithIssuer(cfg.Auth.Issuer),
		auth.WithCache(cacheClient, cfg.IdentityTTL()),
		auth.WithDegradedFallback(cfg.Auth.AllowDegraded),
	)
	if err != nil {
		log.Fatalf("validator: %v", err)
	}

	roles, err := auth.NewRoleService(authStore.Roles(), authStore.Identities(),
		auth.WithInvalidation(validator.Invalidate))
	if err != nil {
		log.Fatalf("role service: %v", err)
	}

	reg, err := registry.New(store.Registry(),
		registry.WithAuditor(auditor))
	if err != nil {
		log.Fatalf("registry: %v", err)
	}

	stream := events.New()
	prober := health.NewProber(cfg.HealthTimeout())
	monitor := health.NewMonitor(store.Registry(), prober, cfg.HealthInterval(),
		health.WithStream(stream),
		health.WithParallelism(cfg.Health.Concurrency))

	var limiter rate.Limiter
	if cfg.Rate.Enabled {
		if cfg.Rate.Driver == "redis" {
			limiter = rate.NewRedisLimiter(rdb.NewClient(&rdb.Options{
				Addr:     cfg.Cache.Redis.Addr,
				Password: cfg.Cache.Redis.Password,
				DB:       cfg.Cache.Redis.DB,
			}), "authgrid:rl:", cfg.Rate.Limit, cfg.RateWindow())
		} else {
			limiter = rate.NewMemoryLimiter(cfg.Rate.Limit, cfg.RateWindow())
		}
	}

	api := httpapi.New(httpapi.Deps{
		Ready:       httpapi.ReadyProbe{DB: db},
		Version:     version,
		Validator:   validator,
		Roles:       roles,
		Registry:    reg,
		Monitor:     monitor,
		Stream:      stream,
		Auditor:     auditor,
		Limiter:     limiter,
		StaleAfter:  cfg.StaleAfter(),
		IPBurst:     cfg.Rate.IPBurst,
		IPPerSecond: cfg.Rate.IPPerSecond,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// background workers
	go monitor.Run(rootCtx)
	go purgeRevocations(rootCtx, validator, cfg.PurgeInterval())

	var grpcSrv *grpc.Server
	if cfg.Server.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			log.Fatalf("grpc listen: %v", err)
		}
		grpcSrv = grpc.NewServer()
		grpchealth.RegisterHealthServer(grpcSrv, httpapi.NewGRPCServer(httpapi.ReadyProbe{DB: db}))
		go func() {
			log.Printf("Starting authgrid-sso gRPC on %s", cfg.Server.GRPCAddr)
			if err := grpcSrv.Serve(lis); err != nil {
				log.Fatalf("grpc serve: %v", err)
			}
		}()
	}

	log.Printf("Starting authgrid-sso %s on %s", version, srv.Addr)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()
	obs.SetReady(true)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)
	cancel()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	_ = srv.Shutdown(ctx)
	if grpcSrv != nil {
		grpcSrv.GracefulStop()
	}
	log.Println("Stopped")
}

// purgeRevocations drops revocation records for tokens that already expired
// on their own.
func purgeRevocations(ctx context.Context, validator *auth.Validator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := validator.PurgeRevocations(ctx); err != nil {
				obs.Event("error", "revocation purge failed", map[string]any{"error": err.Error()})
			} else if n > 0 {
				obs.Event("info", "revocations purged", map[string]any{"count": n})
			}
		}
	}
}
