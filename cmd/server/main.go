package main

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	ammhandler "greenchain/internal/amm/handler"
	"greenchain/internal/amm/poolregistry"
	"greenchain/internal/coordinator"
	coordinatorhandler "greenchain/internal/coordinator/handler"
	coordinatormetrics "greenchain/internal/coordinator/metrics"
	"greenchain/internal/events"
	jwttoken "greenchain/internal/jwt_token"
	"greenchain/internal/ledger/ledgertest"
	lifecyclehandler "greenchain/internal/lifecycle/handler"
	lifecyclemetrics "greenchain/internal/lifecycle/metrics"
	lifecyclesvc "greenchain/internal/lifecycle/service"
	lifecyclestore "greenchain/internal/lifecycle/store"
	"greenchain/internal/platform/config"
	"greenchain/internal/platform/httpserver"
	"greenchain/internal/platform/logger"
	"greenchain/internal/platform/metrics"
	platformredis "greenchain/internal/platform/redis"
	rolescache "greenchain/internal/roles/cache"
	roleshandler "greenchain/internal/roles/handler"
	rolesvc "greenchain/internal/roles/service"
	httptransport "greenchain/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps the
// server lifecycle small. Business logic lives in internal services packages.
func main() {
	cfg, err := config.FromEnv()
	log := logger.New()
	if err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The ledger bundle is served by the in-process simulation until a chain
	// RPC binding lands. Every service above it only sees the client
	// interfaces, so swapping the backend is a wiring change here.
	sim := ledgertest.New(cfg.FungibleTokenAddr)
	clients := sim.Clients()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	authorityOpts := []rolesvc.Option{rolesvc.WithLogger(log)}
	if redisClient != nil {
		defer redisClient.Close()
		authorityOpts = append(authorityOpts, rolesvc.WithCache(rolescache.NewRedis(redisClient.Client)))
		log.Info("capability cache backed by redis")
	}
	authority := rolesvc.NewAuthority(clients.Certificates, clients.Fungible, authorityOpts...)

	var mirror lifecyclestore.Store = lifecyclestore.NewInMemory()
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("open postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		pg := lifecyclestore.NewPostgres(db)
		if err := pg.EnsureSchema(ctx); err != nil {
			log.Error("ensure postgres schema", "error", err)
			os.Exit(1)
		}
		mirror = pg
		log.Info("lifecycle mirror backed by postgres")
	}

	registry := lifecyclesvc.NewRegistry(mirror, authority, clients.Certificates,
		lifecyclesvc.WithLogger(log),
		lifecyclesvc.WithMetrics(lifecyclemetrics.New()),
	)
	pools := poolregistry.New(clients.Factory, clients.Pools, poolregistry.WithLogger(log))
	if err := pools.Refresh(ctx); err != nil {
		log.Warn("initial pool refresh failed", "error", err)
	}

	coordinatorOpts := []coordinator.Option{
		coordinator.WithLogger(log),
		coordinator.WithMetrics(coordinatormetrics.New()),
	}

	var publisher *events.Publisher
	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err = events.NewPublisher(cfg.Kafka.Brokers, events.WithPublisherLogger(log))
		if err != nil {
			log.Error("kafka producer setup failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()
		coordinatorOpts = append(coordinatorOpts, coordinator.WithEvents(publisher))
	}

	coord := coordinator.New(clients, registry, authority, pools, coordinatorOpts...)

	if len(cfg.Kafka.Brokers) > 0 {
		consumer, err := events.NewPoolConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup,
			pools, events.WithConsumerLogger(log))
		if err != nil {
			log.Error("kafka consumer setup failed", "error", err)
			os.Exit(1)
		}
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("pool consumer stopped", "error", err)
			}
		}()
	}

	jwtService := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	validator := jwttoken.NewJWTServiceAdapter(jwtService)
	httpMetrics := metrics.New()

	router := httptransport.NewRouter(
		lifecyclehandler.New(coord, registry, log, httpMetrics, validator),
		roleshandler.New(coord, authority, log, httpMetrics, validator),
		ammhandler.New(coord, pools, log, httpMetrics, validator),
		coordinatorhandler.New(coord, log, httpMetrics, validator),
	)

	srv := httpserver.New(cfg.Addr, router)
	log.Info("starting greenchain coordinator", "addr", cfg.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
