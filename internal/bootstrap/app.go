package bootstrap

import (
	"context"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"anonchat/internal/answer"
	"anonchat/internal/app"
	"anonchat/internal/cache"
	"anonchat/internal/config"
	"anonchat/internal/notify"
	"anonchat/internal/observability"
	"anonchat/internal/platform/database"
	rabbitmqClient "anonchat/internal/platform/rabbitmq"
	redisClient "anonchat/internal/platform/redis"
	"anonchat/internal/render"
	"anonchat/internal/repository"
	"anonchat/internal/store"
	firestoreStore "anonchat/internal/store/firestore"
	"anonchat/internal/store/memory"
	"anonchat/internal/store/sqlstore"
	"anonchat/internal/worker"
)

type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  store.Store
	Chat   *app.ChatService

	DB            *gorm.DB
	Redis         *redis.Client
	MQConn        *amqp.Connection
	MessageWorker *worker.MessagePersistWorker
	Firestore     *firestoreStore.Store

	stopNotify func()
	StartedAt  time.Time
}

func New(ctx context.Context) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	logger := observability.NewLogger(cfg.App.Env, cfg.App.LogLevel).
		With().Str("app", cfg.App.Name).Logger()
	return NewWithConfig(ctx, cfg, logger)
}

// NewWithConfig wires the store backend selected by store.driver and the
// chat service on top of it. Partially built resources are released on
// failure.
func NewWithConfig(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		StartedAt: time.Now(),
	}

	var err error
	switch cfg.Store.Driver {
	case config.StoreMemory:
		logger.Warn().Msg("using in-memory message store, messages are lost on restart")
		a.Store = memory.New(observability.Component(logger, "store"))
	case config.StoreSQL:
		err = a.buildSQLStore(ctx)
	case config.StoreFirestore:
		err = a.buildFirestoreStore(ctx)
	default:
		err = fmt.Errorf("%w: unknown store driver %q", config.ErrInvalidConfig, cfg.Store.Driver)
	}
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	renderer := render.New(
		render.WithLocation(loc),
		render.WithLogger(observability.Component(logger, "render")),
	)
	asker := answer.NewClient(answer.Config{
		URL:     cfg.Answer.URL,
		APIKey:  cfg.Answer.APIKey,
		UserID:  cfg.Answer.UserID,
		Model:   cfg.Answer.Model,
		Timeout: cfg.AnswerTimeout(),
	})
	if cfg.Answer.URL == "" || cfg.Answer.APIKey == "" {
		logger.Warn().Msg("answer service not configured, bot commands will report AI unavailable")
	}
	a.Chat = app.NewChatService(a.Store, asker, renderer, app.Config{
		MaxLength:     cfg.Chat.MaxLength,
		CommandPrefix: cfg.Chat.CommandPrefix,
		MaxInFlight:   int64(cfg.Answer.MaxInFlight),
	}, observability.Component(logger, "chat"))

	return a, nil
}

func (a *App) buildSQLStore(ctx context.Context) error {
	cfg := a.Config
	db, err := database.New(ctx, cfg.Database.Driver, cfg.DatabaseDSN())
	if err != nil {
		return err
	}
	a.DB = db
	repo := repository.NewMessageRepository(db)
	storeLog := observability.Component(a.Logger, "store")

	var opts []sqlstore.Option
	var notifier *notify.Notifier
	if cfg.Redis.Enabled {
		client, err := redisClient.New(ctx, redisClient.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			return err
		}
		a.Redis = client
		opts = append(opts, sqlstore.WithCache(cache.NewSnapshotCache(
			client,
			cfg.App.Name,
			time.Duration(cfg.Redis.SnapshotTTLSeconds)*time.Second,
			time.Duration(cfg.Redis.DirtyTTLSeconds)*time.Second,
		)))
		notifier = notify.New(client, cfg.Redis.NotifyChannel, observability.Component(a.Logger, "notify"))
		opts = append(opts, sqlstore.WithNotifier(notifier))
	}

	if cfg.RabbitMQ.Enabled {
		conn, err := rabbitmqClient.New(ctx, cfg.RabbitMQ.URL, cfg.App.Name)
		if err != nil {
			return err
		}
		a.MQConn = conn
		opts = append(opts, sqlstore.WithPublisher(rabbitmqClient.NewMessagePublisher(conn, cfg.RabbitMQ.MessagePersistQueue)))
	}

	sqlStore := sqlstore.New(repo, storeLog, opts...)
	a.Store = sqlStore

	if notifier != nil {
		stop, err := notifier.Listen(ctx, sqlStore.Broadcast)
		if err != nil {
			return err
		}
		a.stopNotify = stop
	}

	if a.MQConn != nil {
		a.MessageWorker = worker.NewMessagePersistWorker(
			a.MQConn,
			repo,
			cfg.RabbitMQ.MessagePersistQueue,
			sqlStore.Changed,
			observability.Component(a.Logger, "worker"),
		)
		if err := a.MessageWorker.Start(ctx); err != nil {
			return fmt.Errorf("start message worker failed: %w", err)
		}
	}
	return nil
}

func (a *App) buildFirestoreStore(ctx context.Context) error {
	cfg := a.Config.Firestore
	fs, err := firestoreStore.NewStore(ctx, cfg.ProjectID, cfg.Collection, cfg.CredentialsFile,
		observability.Component(a.Logger, "store"))
	if err != nil {
		return err
	}
	a.Firestore = fs
	a.Store = fs
	return nil
}

// HealthChecks lists a probe per configured dependency.
func (a *App) HealthChecks() map[string]func(ctx context.Context) error {
	checks := make(map[string]func(ctx context.Context) error)
	if a.DB != nil {
		checks["database"] = func(ctx context.Context) error { return database.Ping(ctx, a.DB) }
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	if a.MQConn != nil {
		checks["rabbitmq"] = func(context.Context) error { return rabbitmqClient.Ping(a.MQConn) }
	}
	if a.Firestore != nil {
		checks["firestore"] = a.Firestore.Ping
	}
	return checks
}

// Close shuts down in dependency order: answer requests, subscriptions and
// listeners first, then the queue consumer and finally the connections.
func (a *App) Close() error {
	var closeErr error
	if a.Chat != nil {
		a.Chat.Close()
	}
	if a.stopNotify != nil {
		a.stopNotify()
	}
	if a.MessageWorker != nil {
		a.MessageWorker.Close()
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			closeErr = err
		}
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			closeErr = err
		}
	}
	if a.MQConn != nil {
		if err := a.MQConn.Close(); err != nil {
			closeErr = err
		}
	}
	if a.DB != nil {
		if err := database.Close(a.DB); err != nil {
			closeErr = err
		}
	}
	return closeErr
}
