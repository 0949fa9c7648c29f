package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"popsies-quiz-service/internal/app"
	"popsies-quiz-service/internal/config"
	"popsies-quiz-service/internal/domain"
	"popsies-quiz-service/internal/infra/memory"
	"popsies-quiz-service/internal/infra/postgres"
	infraredis "popsies-quiz-service/internal/infra/redis"
	"popsies-quiz-service/internal/logging"
)

// deps holds everything a command needs, built once from config.
type deps struct {
	logger  *zap.Logger
	service *app.SessionService
	closers []func() error
}

func (d *deps) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn("close dependency", zap.Error(err))
		}
	}
	_ = d.logger.Sync()
}

func buildDeps(ctx context.Context, cfg config.Config) (_ *deps, err error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return nil, err
	}
	d := &deps{logger: logger}
	defer func() {
		if err != nil {
			d.Close()
		}
	}()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		d.closers = append(d.closers, redisClient.Close)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if cfg.Postgres.URL != "" {
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		d.closers = append(d.closers, func() error { pool.Close(); return nil })
		loader = postgres.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var catalog app.Catalog
	if redisClient != nil {
		catalog = infraredis.NewCatalog(redisClient, loader, quizTTL)
	} else {
		catalog = memory.NewCatalog(loader, quizTTL)
	}

	var store app.SessionStore
	switch cfg.Store.Backend {
	case config.BackendRedis:
		store = infraredis.NewSessionStore(redisClient, config.TTLDuration(cfg.Redis.TTL, 24*time.Hour))
	case config.BackendPostgres:
		db := openBun(cfg.Postgres.URL)
		d.closers = append(d.closers, db.Close)
		store = postgres.NewSessionStore(db)
	default:
		store = memory.NewSessionStore()
	}

	publishers := app.Publishers{logging.EventLogger{Logger: logger.Named("events")}}
	if redisClient != nil {
		publishers = append(publishers, infraredis.NewPublisher(redisClient))
	}

	codes, err := domain.NewCodeAllocator(cfg.Session.CodeLength, cfg.Session.CodeAttempts)
	if err != nil {
		return nil, fmt.Errorf("seed code allocator: %w", err)
	}
	opts := []app.Option{
		app.WithLogger(logger),
		app.WithPublisher(publishers),
		app.WithCodeAllocator(codes),
	}
	if cfg.Session.MinParticipants > 0 {
		opts = append(opts, app.WithMinParticipants(cfg.Session.MinParticipants))
	}
	if cfg.Session.SaveRetries > 0 {
		opts = append(opts, app.WithSaveRetries(cfg.Session.SaveRetries, 10*time.Millisecond))
	}
	d.service = app.NewSessionService(store, catalog, opts...)

	logger.Info("dependencies ready",
		zap.String("store", cfg.Store.Backend),
		zap.Bool("redis", redisClient != nil),
		zap.Bool("postgres", cfg.Postgres.URL != ""))
	return d, nil
}

func openBun(dsn string) *bun.DB {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

var errNoPostgres = errors.New("postgres url not configured")

// sampleQuizzes is the catalog used when no Postgres is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Options: []domain.Option{
						{ID: "o1", Text: "3", Correct: false},
						{ID: "o2", Text: "4", Correct: true},
						{ID: "o3", Text: "5", Correct: false},
					},
					Points: 100,
				},
				{
					ID:     "q2",
					Prompt: "Which planet is known as the red planet?",
					Options: []domain.Option{
						{ID: "o1", Text: "Venus", Correct: false},
						{ID: "o2", Text: "Mars", Correct: true},
					},
					Points: 100,
				},
				{
					ID:     "q3",
					Prompt: "How many sides does a hexagon have?",
					Options: []domain.Option{
						{ID: "o1", Text: "6", Correct: true},
						{ID: "o2", Text: "8", Correct: false},
					},
					Points: 100,
				},
			},
		},
	}
}
