package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quest-session-service/internal/app"
	"quest-session-service/internal/config"
	"quest-session-service/internal/domain"
	"quest-session-service/internal/infra/memory"
	pginfra "quest-session-service/internal/infra/postgres"
	"quest-session-service/internal/infra/rabbitmq"
	redisinfra "quest-session-service/internal/infra/redis"
	transport "quest-session-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the quest session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 30*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Content and progress stores: Postgres when configured, in-memory samples
	// for local demo runs.
	var (
		questions   app.QuestionSource   = memory.NewStaticQuestionSource(sampleQuestions())
		writer      app.SessionWriter    = memory.NewSessionWriter()
		difficulty  app.DifficultyStore  = memory.NewDifficultyStore()
		catalog     app.TopicCatalog     = memory.NewStaticCatalog(sampleTopics())
		completions app.CompletionStore  = memory.NewCompletionStore()
		pathStore   app.PathStore        = memory.NewPathStore()
		rateLimit   transport.RateLimitChecker
	)
	if pool != nil {
		questions = pginfra.NewQuestionSource(pool)
		writer = pginfra.NewSessionWriter(pool)
		difficulty = pginfra.NewDifficultyStore(pool)
		pgCatalog := pginfra.NewCatalog(pool)
		catalog = pgCatalog
		completions = pgCatalog
		pathStore = pginfra.NewPathStore(pool)
		rateLimit = pginfra.NewRateLimiter(pool)
	} else if redisClient != nil {
		difficulty = redisinfra.NewDifficultyStore(redisClient)
	}

	var active app.ActiveSessionStore = memory.NewActiveSessionStore()
	if redisClient != nil {
		active = redisinfra.NewActiveSessionStore(redisClient, redisTTL)
	}

	var queueStore app.QueueStore = memory.NewQueueStore()
	if redisClient != nil {
		queueStore = redisinfra.NewQueueStore(redisClient)
	}

	var sink app.DeliverySink = memory.NewAnalyticsSink()
	if cfg.RabbitMQ.URL != "" {
		queueName := cfg.RabbitMQ.Queue
		if queueName == "" {
			queueName = "quest.analytics"
		}
		amqpSink, err := rabbitmq.NewSink(cfg.RabbitMQ.URL, queueName)
		if err != nil {
			return err
		}
		defer amqpSink.Close()
		sink = amqpSink
	} else if pool != nil {
		sink = pginfra.NewAnalyticsSink(pool)
	}

	hub := transport.NewNotifierHub()
	retryDelay := config.TTLDuration(cfg.Analytics.RetryDelay, time.Second)
	deliverTimeout := config.TTLDuration(cfg.Analytics.DeliverTimeout, 10*time.Second)
	queue := app.NewAnalyticsQueue(queueStore, sink, hub, retryDelay, deliverTimeout)

	pathTTL := config.TTLDuration(cfg.Path.TTL, app.DefaultPathTTL)
	resolver := app.NewPathResolver(catalog, completions, pathStore, pathTTL)

	service := app.NewSessionService(
		active,
		writer,
		app.NewDifficultyController(difficulty),
		app.NewQuestionSupply(questions),
		queue,
	)

	wsHandler := transport.NewWSHandler(service, hub)
	pathHandler := transport.NewPathHandler(resolver, rateLimit)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/path", pathHandler.ServePath)
	mux.HandleFunc("/ratelimit", pathHandler.ServeRateLimit)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting quest session service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// Flush pending analytics before the process exits.
	if err := queue.Close(shutdownCtx); err != nil {
		log.Printf("analytics queue flush failed: %v", err)
	}
	return server.Shutdown(shutdownCtx)
}

// sampleTopics provides a small K1/K2 catalog for demo runs without Postgres.
func sampleTopics() []domain.Topic {
	return []domain.Topic{
		{ID: "counting", Title: "Counting to 10", Grade: "K1", OrderIndex: 1},
		{ID: "shapes", Title: "Shapes Around Us", Grade: "K1", OrderIndex: 2},
		{ID: "addition", Title: "Addition Basics", Grade: "K2", OrderIndex: 1, Prerequisites: []string{"counting"}},
		{ID: "subtraction", Title: "Subtraction Basics", Grade: "K2", OrderIndex: 2, Prerequisites: []string{"addition"}},
	}
}

// sampleQuestions provides demo question pools per topic and difficulty.
func sampleQuestions() map[string][]domain.Question {
	return map[string][]domain.Question{
		"counting": {
			{ID: "c1", TopicID: "counting", DifficultyLevel: 1, Points: 10, Text: "How many apples? (3 shown)", Options: []string{"2", "3", "4"}, CorrectAnswer: "3"},
			{ID: "c2", TopicID: "counting", DifficultyLevel: 1, Points: 10, Text: "Count the stars. (5 shown)", Options: []string{"4", "5", "6"}, CorrectAnswer: "5"},
			{ID: "c3", TopicID: "counting", DifficultyLevel: 2, Points: 15, Text: "What comes after 7?", Options: []string{"6", "8", "9"}, CorrectAnswer: "8"},
			{ID: "c4", TopicID: "counting", DifficultyLevel: 3, Points: 20, Text: "Count by twos: 2, 4, ...?", Options: []string{"5", "6", "8"}, CorrectAnswer: "6"},
		},
		"addition": {
			{ID: "a1", TopicID: "addition", DifficultyLevel: 1, Points: 10, Text: "2 + 2 = ?", Options: []string{"3", "4", "5"}, CorrectAnswer: "4"},
			{ID: "a2", TopicID: "addition", DifficultyLevel: 2, Points: 15, Text: "6 + 7 = ?", Options: []string{"12", "13", "14"}, CorrectAnswer: "13"},
			{ID: "a3", TopicID: "addition", DifficultyLevel: 3, Points: 20, Text: "18 + 25 = ?", Options: []string{"42", "43", "44"}, CorrectAnswer: "43"},
		},
	}
}
