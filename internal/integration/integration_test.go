package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"popsies-quiz-service/internal/app"
	"popsies-quiz-service/internal/domain"
	"popsies-quiz-service/internal/infra/memory"
	"popsies-quiz-service/internal/infra/postgres"
	pgmigrations "popsies-quiz-service/internal/infra/postgres/migrations"
	infraredis "popsies-quiz-service/internal/infra/redis"
)

// Postgres keeps microseconds, so the clock is truncated to make round trips exact.
var clockStart = time.Date(2024, 11, 22, 9, 0, 0, 0, time.UTC)

func TestPostgresSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	db := openBun(t, ctx, pgURL)
	pool := openPool(t, ctx, pgURL)

	loader := postgres.NewQuizLoader(pool)
	require.NoError(t, loader.SaveQuiz(ctx, sampleQuiz()))
	store := postgres.NewSessionStore(db)
	service := app.NewSessionService(store, memory.NewCatalog(loader, time.Minute),
		app.WithClock(tickingClock()))

	session, err := service.CreateSession(ctx, app.CreateSessionRequest{QuizID: "quiz-1", HostID: "host", MaxParticipants: 2})
	require.NoError(t, err)
	alice, err := service.JoinSession(ctx, session.Code, "acct-a", "Alice")
	require.NoError(t, err)
	_, err = service.JoinSession(ctx, session.Code, "acct-b", "Bob")
	require.NoError(t, err)
	_, err = service.JoinSession(ctx, session.Code, "acct-c", "Carol")
	require.ErrorIs(t, err, domain.ErrRosterFull)

	_, err = service.StartSession(ctx, session.ID)
	require.NoError(t, err)
	submit := app.SubmitAnswerRequest{SessionID: session.ID, ParticipantID: alice.Participant.ID, QuestionID: "q1", OptionID: "o2"}
	result, err := service.SubmitAnswer(ctx, submit)
	require.NoError(t, err)
	require.Equal(t, 100, result.TotalScore)
	_, err = service.SubmitAnswer(ctx, submit)
	require.ErrorIs(t, err, domain.ErrDuplicateAnswer)

	outcome, err := service.CompleteSession(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, alice.Participant.ID, outcome.Leaderboard.Entries[0].ParticipantID)

	loaded, err := store.Load(ctx, session.ID)
	require.NoError(t, err)
	require.Equal(t, outcome.Session, loaded)

	inUse, err := store.CodeInUse(ctx, session.Code)
	require.NoError(t, err)
	require.False(t, inUse)
}

func TestPostgresConcurrentJoinsRespectCapacity(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	db := openBun(t, ctx, pgURL)
	catalog := memory.NewCatalog(memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), time.Minute)

	// two services over one database stand in for two instances
	services := []*app.SessionService{
		app.NewSessionService(postgres.NewSessionStore(db), catalog, app.WithSaveRetries(50, 2*time.Millisecond)),
		app.NewSessionService(postgres.NewSessionStore(db), catalog, app.WithSaveRetries(50, 2*time.Millisecond)),
	}

	session, err := services[0].CreateSession(ctx, app.CreateSessionRequest{QuizID: "quiz-1", HostID: "host", MaxParticipants: 3})
	require.NoError(t, err)

	joined, full := joinConcurrently(t, services, session.Code, 10)
	require.Equal(t, 3, joined)
	require.Equal(t, 7, full)

	stored, err := services[1].GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored.Participants, 3)
}

func TestPostgresConcurrentDuplicateAnswersAcrossInstances(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	db := openBun(t, ctx, pgURL)
	catalog := memory.NewCatalog(memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": sampleQuiz()}), time.Minute)

	services := []*app.SessionService{
		app.NewSessionService(postgres.NewSessionStore(db), catalog, app.WithSaveRetries(50, 2*time.Millisecond)),
		app.NewSessionService(postgres.NewSessionStore(db), catalog, app.WithSaveRetries(50, 2*time.Millisecond)),
	}
	session, alice := startedSessionWithPlayer(t, services[0])

	accepted, duplicates := submitConcurrently(t, services, app.SubmitAnswerRequest{
		SessionID: session.ID, ParticipantID: alice.ID, QuestionID: "q1", OptionID: "o2",
	}, 12)
	require.Equal(t, 1, accepted)
	require.Equal(t, 11, duplicates)

	stored, err := services[1].GetSession(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, stored.Answers, 1)
	player, _ := stored.Participant(alice.ID)
	require.Equal(t, 100, player.TotalScore)
	require.Equal(t, 1, player.CorrectAnswers)
}

func TestRedisStackEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL := startPostgres(t, ctx)
	openBun(t, ctx, pgURL)
	pool := openPool(t, ctx, pgURL)
	loader := postgres.NewQuizLoader(pool)
	require.NoError(t, loader.SaveQuiz(ctx, sampleQuiz()))

	client := redisClientFromURL(t, startRedis(t, ctx))
	store := infraredis.NewSessionStore(client, 5*time.Minute)

	service := app.NewSessionService(store, infraredis.NewCatalog(client, loader, 5*time.Minute),
		app.WithPublisher(infraredis.NewPublisher(client)),
		app.WithClock(tickingClock()))

	session, err := service.CreateSession(ctx, app.CreateSessionRequest{QuizID: "quiz-1", HostID: "host", MaxParticipants: 4})
	require.NoError(t, err)
	joined, err := service.JoinSession(ctx, strings.ToLower(session.Code), "acct-a", "Alice")
	require.NoError(t, err)
	_, err = service.StartSession(ctx, session.ID)
	require.NoError(t, err)

	result, err := service.SubmitAnswer(ctx, app.SubmitAnswerRequest{
		SessionID: session.ID, ParticipantID: joined.Participant.ID, QuestionID: "q2", OptionID: "o1",
	})
	require.NoError(t, err)
	require.False(t, result.Answer.IsCorrect)
	require.Equal(t, 0, result.TotalScore)

	loaded, err := store.Load(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, loaded.Answers, 1)
	require.EqualValues(t, 4, loaded.Version)
}

func tickingClock() func() time.Time {
	var mu sync.Mutex
	now := clockStart
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(time.Second)
		return now
	}
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	t.Cleanup(func() { _ = db.Close() })

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)
	return db
}

func openPool(t *testing.T, ctx context.Context, dsn string) *pgxpool.Pool {
	t.Helper()
	pool, err := pgxpool.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func startPostgres(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quiz", "POSTGRES_PASSWORD": "quizpass", "POSTGRES_DB": "quizdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	container := startContainer(t, ctx, req)
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://quiz:quizpass@%s:%s/quizdb?sslmode=disable", host, port.Port())
}

func startRedis(t *testing.T, ctx context.Context) string {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container := startContainer(t, ctx, req)
	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("redis://%s:%s", host, port.Port())
}

func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest) tc.Container {
	t.Helper()
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })
	return container
}

func redisClientFromURL(t *testing.T, url string) *goredis.Client {
	t.Helper()
	opts, err := goredis.ParseURL(url)
	require.NoError(t, err)
	client := goredis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
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
				Prompt: "What is 3 * 3?",
				Options: []domain.Option{
					{ID: "o1", Text: "6", Correct: false},
					{ID: "o2", Text: "9", Correct: true},
				},
				Points: 10,
			},
			{
				ID:      "q3",
				Prompt:  "Pick the vowel",
				Options: []domain.Option{{ID: "o1", Text: "a", Correct: true}, {ID: "o2", Text: "b"}},
			},
		},
	}
}

func requireDocker(t *testing.T) {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test")
	}
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
