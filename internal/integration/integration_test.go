package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"quest-session-service/internal/app"
	"quest-session-service/internal/domain"
	"quest-session-service/internal/infra/postgres"
	pgmigrations "quest-session-service/internal/infra/postgres/migrations"
	infraredis "quest-session-service/internal/infra/redis"
	"quest-session-service/internal/transport/http"
)

func TestQuestEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	hub := http.NewNotifierHub()
	queue := app.NewAnalyticsQueue(
		infraredis.NewQueueStore(redisClient),
		postgres.NewAnalyticsSink(pool),
		hub, 10*time.Millisecond, time.Second)
	defer queue.Close(ctx)

	service := app.NewSessionService(
		infraredis.NewActiveSessionStore(redisClient, 5*time.Minute),
		postgres.NewSessionWriter(pool),
		app.NewDifficultyController(postgres.NewDifficultyStore(pool)),
		app.NewQuestionSupply(postgres.NewQuestionSource(pool)),
		queue,
	)

	result, err := service.Start(ctx, "u1", "counting", nil)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	question := result.Question
	var summary *app.QuestSummary
	for i := 0; i < 10; i++ {
		outcome, err := service.SubmitAnswer(ctx, result.SessionID, question.ID, question.CorrectAnswer)
		if err != nil {
			t.Fatalf("submit %d: %v", i+1, err)
		}
		if outcome.Summary != nil {
			summary = outcome.Summary
			break
		}
		question = *outcome.Next
	}
	if summary == nil || summary.Status != domain.SessionCompleted {
		t.Fatalf("expected completed quest, got %+v", summary)
	}

	var status string
	var finalScore, answered int
	err = pool.QueryRow(ctx,
		`SELECT status, final_score, questions_answered FROM sessions WHERE id = $1`,
		result.SessionID).Scan(&status, &finalScore, &answered)
	if err != nil {
		t.Fatalf("read session row: %v", err)
	}
	if status != domain.SessionCompleted || finalScore != summary.FinalScore || answered != 10 {
		t.Fatalf("persisted row mismatch: status=%s score=%d answered=%d", status, finalScore, answered)
	}

	var level int
	err = pool.QueryRow(ctx,
		`SELECT level FROM difficulty_states WHERE user_id = $1 AND topic_id = $2`,
		"u1", "counting").Scan(&level)
	if err != nil {
		t.Fatalf("read difficulty row: %v", err)
	}
	if level != domain.MaxLevel {
		t.Fatalf("10 straight correct answers should persist the level cap, got %d", level)
	}

	// 10 progress events plus the completion event reach the sink.
	waitFor(t, func() bool {
		var count int
		if err := pool.QueryRow(ctx, `SELECT count(*) FROM analytics_events`).Scan(&count); err != nil {
			return false
		}
		return count == 11
	})
}

func TestLearningPathEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, `
		INSERT INTO topic_completions (user_id, topic_id, content_completed, quest_completed)
		VALUES ('u1', 'counting', TRUE, TRUE)`); err != nil {
		t.Fatalf("seed completion: %v", err)
	}

	catalog := postgres.NewCatalog(pool)
	resolver := app.NewPathResolver(catalog, catalog, postgres.NewPathStore(pool), time.Minute)

	result, err := resolver.Generate(ctx, "u1", "K2")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	statuses := make(map[string]string, len(result.Nodes))
	for _, n := range result.Nodes {
		statuses[n.TopicID] = n.Status
	}
	if statuses["counting"] != domain.NodeCompleted {
		t.Fatalf("expected counting completed, got %s", statuses["counting"])
	}
	if statuses["addition"] != domain.NodeAvailable {
		t.Fatalf("expected addition unlocked by counting, got %s", statuses["addition"])
	}
	if statuses["subtraction"] != domain.NodeLocked {
		t.Fatalf("expected subtraction locked behind addition, got %s", statuses["subtraction"])
	}

	var version int
	if err := pool.QueryRow(ctx,
		`SELECT version FROM learning_paths WHERE user_id = 'u1'`).Scan(&version); err != nil {
		t.Fatalf("read path row: %v", err)
	}
	if version != 1 {
		t.Fatalf("expected version 1 on first save, got %d", version)
	}

	resolver.Invalidate("u1")
	if _, err := resolver.Generate(ctx, "u1", "K2"); err != nil {
		t.Fatalf("regenerate: %v", err)
	}
	if err := pool.QueryRow(ctx,
		`SELECT version FROM learning_paths WHERE user_id = 'u1'`).Scan(&version); err != nil {
		t.Fatalf("reread path row: %v", err)
	}
	if version != 2 {
		t.Fatalf("expected version bump on upsert, got %d", version)
	}
}

func TestRateLimitFunction(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	migrateAndSeed(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	limiter := postgres.NewRateLimiter(pool)

	result, err := limiter.Check(ctx, "kid@example.com")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if !result.Allowed || result.AttemptsRemaining != 5 {
		t.Fatalf("fresh email should be allowed with 5 attempts, got %+v", result)
	}

	for i := 0; i < 5; i++ {
		if _, err := pool.Exec(ctx,
			`INSERT INTO login_attempts (email) VALUES ('kid@example.com')`); err != nil {
			t.Fatalf("seed attempt: %v", err)
		}
	}

	result, err = limiter.Check(ctx, "kid@example.com")
	if err != nil {
		t.Fatalf("check after attempts: %v", err)
	}
	if result.Allowed || result.WaitSeconds != 900 {
		t.Fatalf("expected lockout after 5 attempts, got %+v", result)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "quest", "POSTGRES_PASSWORD": "questpass", "POSTGRES_DB": "questdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://quest:questpass@%s:%s/questdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func migrateAndSeed(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	topics := []struct {
		id, title, grade string
		order            int
		prereqs          string
	}{
		{"counting", "Counting to 20", "K1", 1, `[]`},
		{"addition", "Simple Addition", "K2", 1, `["counting"]`},
		{"subtraction", "Simple Subtraction", "K2", 2, `["addition"]`},
	}
	for _, topic := range topics {
		if _, err := db.ExecContext(ctx, `
			INSERT INTO topics (id, title, grade, order_index, prerequisites)
			VALUES (?, ?, ?, ?, ?::jsonb)`,
			topic.id, topic.title, topic.grade, topic.order, topic.prereqs); err != nil {
			t.Fatalf("insert topic %s: %v", topic.id, err)
		}
	}

	for level := 1; level <= 3; level++ {
		for _, suffix := range []string{"a", "b", "c"} {
			id := fmt.Sprintf("q%d%s", level, suffix)
			if _, err := db.ExecContext(ctx, `
				INSERT INTO questions (id, topic_id, difficulty_level, points, text, options, correct_answer)
				VALUES (?, 'counting', ?, ?, 'How many apples?', '["right","wrong"]'::jsonb, 'right')`,
				id, level, level*10); err != nil {
				t.Fatalf("insert question %s: %v", id, err)
			}
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}
