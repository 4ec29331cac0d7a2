package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"tracechain/internal/balance"
	balancestore "tracechain/internal/balance/store"
	catalog "tracechain/internal/catalog/service"
	catalogstore "tracechain/internal/catalog/store"
	identity "tracechain/internal/identity/service"
	idstore "tracechain/internal/identity/store"
	"tracechain/internal/platform/config"
	"tracechain/internal/platform/kafka"
	"tracechain/internal/platform/metrics"
	"tracechain/internal/platform/postgres"
	"tracechain/internal/platform/redis"
	ratelimit "tracechain/internal/ratelimit/middleware"
	ratelimitstore "tracechain/internal/ratelimit/store"
	transfer "tracechain/internal/transfer/service"
	transferstore "tracechain/internal/transfer/store"
	"tracechain/pkg/domain"
	audit "tracechain/pkg/platform/audit"
	auditkafka "tracechain/pkg/platform/audit/store/kafka"
	auditmemory "tracechain/pkg/platform/audit/store/memory"
	auditpostgres "tracechain/pkg/platform/audit/store/postgres"
	"tracechain/pkg/platform/audit/publisher"
	"tracechain/pkg/platform/tx"
)

// services is everything the HTTP layer needs, plus the resources to release
// on shutdown.
type services struct {
	identity  *identity.Service
	catalog   *catalog.Service
	ledger    *balance.Ledger
	transfers *transfer.Engine
	events    *publisher.Publisher
	limiter   ratelimit.Limiter

	db    *sql.DB
	redis *redis.Client
	kafka *kgo.Client
}

// stores groups the backend chosen by configuration.
type stores struct {
	participants identity.ParticipantStore
	tokens       catalog.TokenStore
	balances     balance.Store
	transfers    transfer.TransferStore
	// events answers audit queries; it is the first sink of the fanout.
	events audit.Store
	runner tx.Runner
}

func memoryStores() stores {
	return stores{
		participants: idstore.NewInMemory(),
		tokens:       catalogstore.NewInMemory(),
		balances:     balancestore.NewInMemory(),
		transfers:    transferstore.NewInMemory(),
		events:       auditmemory.NewInMemoryStore(),
		runner:       tx.Passthrough{},
	}
}

func postgresStores(db *sql.DB) stores {
	return stores{
		participants: idstore.NewPostgres(db),
		tokens:       catalogstore.NewPostgres(db),
		balances:     balancestore.NewPostgres(db),
		transfers:    transferstore.NewPostgres(db),
		events:       auditpostgres.New(db),
		runner:       tx.NewSQLRunner(db),
	}
}

// buildServices opens the configured backends and wires the ledger services.
// On error every resource opened so far is closed.
func buildServices(ctx context.Context, cfg config.Server, m *metrics.Metrics, logger *slog.Logger) (_ *services, err error) {
	svc := &services{}
	defer func() {
		if err != nil {
			svc.close()
		}
	}()

	st := memoryStores()
	if cfg.Database.Enabled() {
		if svc.db, err = postgres.Open(ctx, cfg.Database); err != nil {
			return nil, err
		}
		if err = postgres.Migrate(ctx, svc.db); err != nil {
			return nil, err
		}
		st = postgresStores(svc.db)
		logger.InfoContext(ctx, "using postgres stores")
	} else {
		logger.InfoContext(ctx, "using in-memory stores")
	}

	if svc.redis, err = redis.New(ctx, cfg.Redis); err != nil {
		return nil, err
	}
	if svc.redis != nil {
		st.tokens = catalogstore.NewRedisCache(st.tokens, svc.redis.Client, cfg.Redis.TokenTTL,
			catalogstore.WithCacheLogger(logger))
		logger.InfoContext(ctx, "token cache enabled", "ttl", cfg.Redis.TokenTTL)
	}

	svc.limiter = ratelimitstore.NewInMemory()
	if svc.redis != nil {
		svc.limiter = ratelimitstore.NewRedis(svc.redis.Client)
	}
	if cfg.RateLimit.Enabled() {
		logger.InfoContext(ctx, "rate limiting enabled",
			"requests", cfg.RateLimit.Requests, "window", cfg.RateLimit.Window)
	}

	sinks := audit.Fanout{st.events}
	if svc.kafka, err = kafka.NewClient(ctx, cfg.Kafka, logger); err != nil {
		return nil, err
	}
	if svc.kafka != nil {
		sinks = append(sinks, auditkafka.New(svc.kafka, cfg.Kafka.AuditTopic))
	}
	svc.events = publisher.NewPublisher(sinks,
		publisher.WithAsyncBuffer(cfg.AuditBuffer),
		publisher.WithLogger(logger),
	)

	adminAddress, err := domain.ParseAddress(cfg.AdminAddress)
	if err != nil {
		return nil, fmt.Errorf("admin address: %w", err)
	}
	svc.identity = identity.New(st.participants, adminAddress,
		identity.WithLogger(logger),
		identity.WithAuditPublisher(svc.events),
		identity.WithMetrics(m),
	)
	if _, err = svc.identity.SeedAdmin(ctx); err != nil {
		return nil, fmt.Errorf("seed admin: %w", err)
	}

	svc.ledger = balance.NewLedger(st.balances)
	svc.catalog = catalog.New(st.tokens, svc.identity, svc.ledger,
		catalog.WithLogger(logger),
		catalog.WithAuditPublisher(svc.events),
		catalog.WithMetrics(m),
		catalog.WithTxRunner(st.runner),
	)
	svc.transfers = transfer.New(st.transfers, svc.identity, svc.catalog, svc.ledger,
		transfer.WithLogger(logger),
		transfer.WithAuditPublisher(svc.events),
		transfer.WithMetrics(m),
		transfer.WithTxRunner(st.runner),
	)
	return svc, nil
}

// close drains pending audit events before closing the sinks they write to.
func (s *services) close() {
	if s.events != nil {
		s.events.Close()
	}
	if s.kafka != nil {
		s.kafka.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
}

// ready reports whether every configured backend answers.
func (s *services) ready(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.PingContext(ctx); err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
	}
	if s.redis != nil {
		if err := s.redis.Health(ctx); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
	}
	if s.kafka != nil {
		if err := s.kafka.Ping(ctx); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}
	return nil
}
