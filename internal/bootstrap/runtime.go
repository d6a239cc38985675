// Package bootstrap assembles the progression engine from configuration for the
// service binaries.
package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/progression/internal/config"
	"example.com/progression/internal/domain"
	"example.com/progression/internal/outbox"
	"example.com/progression/internal/persistence/memory"
	"example.com/progression/internal/persistence/postgres"
	"example.com/progression/internal/persistence/redislock"
	"example.com/progression/internal/policy"
	"example.com/progression/internal/progression"
)

// Runtime is a wired engine plus the resources it holds open.
type Runtime struct {
	Engine *progression.Engine
	// Pool is nil for the memory backend.
	Pool *pgxpool.Pool
	// Publisher is nil when no Kafka brokers are configured.
	Publisher *outbox.Publisher

	closers []func()
}

// Build validates cfg and wires the engine. Close releases everything Build opened,
// also on error paths.
func Build(ctx context.Context, cfg config.Config, logger *log.Logger) (rt *Runtime, err error) {
	if logger == nil {
		logger = log.New(log.Writer(), "[progression] ", log.LstdFlags|log.Lshortfile)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	pol, err := policy.LoadFile(cfg.PolicyFile)
	if err != nil {
		return nil, err
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	rt = &Runtime{}
	defer func() {
		if err != nil {
			rt.Close()
			rt = nil
		}
	}()

	stores, err := rt.openStores(ctx, cfg)
	if err != nil {
		return rt, err
	}

	opts := []progression.Option{progression.WithLogger(logger), progression.WithLocation(loc)}
	if cfg.RedisAddr != "" {
		client := redislock.NewClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		rt.closers = append(rt.closers, func() { _ = client.Close() })
		locker := redislock.New(client, redislock.WithTTL(cfg.LockTTL))
		if err := locker.Ping(ctx); err != nil {
			return rt, fmt.Errorf("connect to redis: %w", err)
		}
		opts = append(opts, progression.WithLocker(locker))
	}
	if len(cfg.KafkaBrokers) > 0 {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		rt.closers = append(rt.closers, func() { _ = producer.Close() })

		var pubOpts []outbox.PublisherOption
		if rt.Pool != nil {
			pubOpts = append(pubOpts, outbox.WithDeadLetters(outbox.NewDeadLetterStore(rt.Pool)))
		}
		rt.Publisher = outbox.NewPublisher(producer, outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL), cfg.ProgressionTopic, pubOpts...)
		opts = append(opts, progression.WithPublisher(rt.Publisher))
	}

	rt.Engine = progression.New(stores, pol, opts...)
	return rt, nil
}

func (rt *Runtime) openStores(ctx context.Context, cfg config.Config) (progression.Stores, error) {
	if cfg.StoreBackend == config.BackendMemory {
		store := memory.NewStore()
		return storesFor(store, store), nil
	}

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		return progression.Stores{}, fmt.Errorf("connect to postgres: %w", err)
	}
	rt.Pool = pool
	rt.closers = append(rt.closers, pool.Close)

	store := postgres.NewStore(pool)
	if err := store.Ping(ctx); err != nil {
		return progression.Stores{}, fmt.Errorf("ping postgres: %w", err)
	}
	if err := store.SeedCatalog(ctx, domain.SeedAchievements(), domain.SeedChallenges()); err != nil {
		return progression.Stores{}, fmt.Errorf("seed catalog: %w", err)
	}
	return storesFor(store, store), nil
}

type fullStore interface {
	domain.ProfileStore
	domain.AchievementStore
	domain.ActivityStore
	domain.GoalStore
	domain.ChallengeStore
}

func storesFor(store fullStore, ledger domain.IngestionLedger) progression.Stores {
	return progression.Stores{
		Profiles:     store,
		Achievements: store,
		Activities:   store,
		Goals:        store,
		Challenges:   store,
		Ledger:       ledger,
	}
}

// Close releases resources in reverse order of acquisition.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}
