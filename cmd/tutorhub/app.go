package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tutorhub/tutor-hub/config"
	"github.com/tutorhub/tutor-hub/internal/application/alerting"
	"github.com/tutorhub/tutor-hub/internal/application/command"
	"github.com/tutorhub/tutor-hub/internal/application/engagement"
	"github.com/tutorhub/tutor-hub/internal/application/eventhandler"
	"github.com/tutorhub/tutor-hub/internal/application/query"
	"github.com/tutorhub/tutor-hub/internal/application/routing"
	"github.com/tutorhub/tutor-hub/internal/application/tutor"
	"github.com/tutorhub/tutor-hub/internal/domain/alert"
	"github.com/tutorhub/tutor-hub/internal/domain/notification"
	"github.com/tutorhub/tutor-hub/internal/domain/profile"
	"github.com/tutorhub/tutor-hub/internal/domain/session"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/llm"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/messaging"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/memory"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/postgres"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/persistence/redis"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/scheduler"
	"github.com/tutorhub/tutor-hub/internal/infrastructure/scheduler/jobs"
	apihttp "github.com/tutorhub/tutor-hub/internal/interface/http"
	"github.com/tutorhub/tutor-hub/internal/interface/http/handlers"
	"github.com/tutorhub/tutor-hub/pkg/logger"
	"github.com/tutorhub/tutor-hub/pkg/retry"
)

// app - собранный граф зависимостей. Создаётся один раз на процесс.
type app struct {
	cfg  *config.Config
	log  *logger.Logger
	slog *slog.Logger

	db    *postgres.Connection // nil при хранилище в памяти
	cache *redis.Cache         // nil без Redis

	profiles      profile.Repository
	teachers      profile.TeacherRepository
	sessions      session.Repository
	alerts        alert.Repository
	notifications notification.Repository

	bus       *messaging.EventBus
	provider  llm.Provider
	classes   *routing.ClassificationCache
	router    *routing.Router
	registry  *tutor.Registry
	ledger    *engagement.Ledger
	engine    *alerting.Engine
	scheduler *scheduler.Scheduler

	closers []func()
}

// newApp подключает хранилища и собирает сервисы.
// При ошибке уже открытые ресурсы закрываются.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger, slogger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, log: log, slog: slogger}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	// ─────────────────────────────────────────────────────────────────────────
	// 1. ХРАНИЛИЩЕ
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openStorage(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. REDIS (опционально)
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.openRedis(ctx); err != nil {
		return nil, err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busCfg := messaging.DefaultConfig()
	busCfg.Async = true
	busCfg.Logger = slogger
	if a.cache != nil && cfg.Redis.ForwardEvents {
		busCfg.Forwarder = redis.NewEventForwarder(a.cache)
		slogger.Info("forwarding domain events to redis")
	}
	a.bus = messaging.New(busCfg)
	a.closers = append(a.closers, func() { _ = a.bus.Close() })

	// ─────────────────────────────────────────────────────────────────────────
	// 4. МОДЕЛЬ И РОУТИНГ
	// ─────────────────────────────────────────────────────────────────────────
	a.provider, err = llm.NewProvider(ctx, llm.ConfigFrom(cfg.LLM), slogger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model provider: %w", err)
	}
	slogger.Info("model provider ready", "provider", cfg.LLM.Provider, "model", a.provider.ModelID())

	a.router, err = a.buildRouter(a.provider)
	if err != nil {
		return nil, err
	}

	a.registry, err = tutor.NewRegistry(cfg.Catalog, a.provider, tutor.RegistryOptions{
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build tutor registry: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. ВОВЛЕЧЁННОСТЬ И АЛЕРТЫ
	// ─────────────────────────────────────────────────────────────────────────
	a.ledger = engagement.NewLedger(a.profiles, a.bus, log)
	a.engine = alerting.NewEngine(a.profiles, a.sessions, a.alerts, a.bus, cfg.Features, alerting.Config{
		Window:               cfg.Tutor.AlertWindow,
		LowActivityThreshold: cfg.Tutor.LowActivityThreshold,
		SupportThreshold:     cfg.Tutor.SupportThreshold,
		ActivityWindow:       cfg.Tutor.ActivityWindow,
	}, log)

	levelUp := eventhandler.NewOnLevelUpHandler(a.notifications, a.bus, slogger, eventhandler.LevelUpConfig{
		Location: cfg.App.Location,
	})
	if err := levelUp.Register(a.bus); err != nil {
		return nil, fmt.Errorf("failed to subscribe level-up handler: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПЛАНИРОВЩИК
	// ─────────────────────────────────────────────────────────────────────────
	if err := a.buildScheduler(); err != nil {
		return nil, err
	}

	return a, nil
}

// openStorage выбирает PostgreSQL или хранилище в памяти.
func (a *app) openStorage(ctx context.Context) error {
	if !a.cfg.UsesPostgres() {
		a.slog.Warn("DATABASE_URL is empty, using in-memory storage")
		store := memory.New()
		a.profiles = store.Profiles
		a.teachers = store.Teachers
		a.sessions = store.Sessions
		a.alerts = store.Alerts
		a.notifications = store.Notifications
		return nil
	}

	conn, err := connectDatabase(ctx, a.cfg, a.slog)
	if err != nil {
		return err
	}
	a.db = conn
	a.closers = append(a.closers, conn.Close)

	if a.cfg.Database.AutoMigrate {
		a.slog.Info("running database migrations...")
		if err := postgres.NewMigrator(conn).Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	a.profiles = postgres.NewProfileRepository(conn)
	a.teachers = postgres.NewTeacherRepository(conn)
	a.sessions = postgres.NewSessionRepository(conn)
	a.alerts = postgres.NewAlertRepository(conn)
	a.notifications = postgres.NewNotificationRepository(conn)
	return nil
}

// connectDatabase открывает пул с повторами: база может подниматься
// одновременно с сервисом.
func connectDatabase(ctx context.Context, cfg *config.Config, log *slog.Logger) (*postgres.Connection, error) {
	log.Info("connecting to PostgreSQL...")
	onRetry := func(attempt int, err error, delay time.Duration) {
		log.Warn("database not ready", "attempt", attempt, "retry_in", delay.String(), "error", err)
	}
	conn, err := retry.DoWithData(ctx, func(ctx context.Context) (*postgres.Connection, error) {
		// Неверный DATABASE_URL повторять бессмысленно.
		if _, err := postgres.PoolConfig(cfg.Database); err != nil {
			return nil, retry.Permanent(err)
		}
		return postgres.NewConnection(ctx, cfg.Database)
	}, retry.StartupOptions(max(cfg.Database.ConnectRetries, 1), onRetry)...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	log.Info("connected to PostgreSQL")
	return conn, nil
}

// openRedis подключает Redis. Вне production недоступный Redis не мешает старту.
func (a *app) openRedis(ctx context.Context) error {
	if a.cfg.Redis.Disabled {
		a.slog.Info("redis disabled")
		return nil
	}

	cache, err := redis.NewCache(ctx, a.cfg.Redis)
	if err != nil {
		if a.cfg.IsProduction() {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.slog.Warn("redis unavailable, continuing without it", "error", err)
		return nil
	}
	a.cache = cache
	a.closers = append(a.closers, func() { _ = cache.Close() })
	a.profiles = redis.NewProfileCache(a.profiles, cache, a.cfg.Redis.ProfileCacheTTL, a.slog)
	a.slog.Info("connected to redis")
	return nil
}

// buildRouter включает модельную классификацию с кэшем.
func (a *app) buildRouter(provider llm.Provider) (*routing.Router, error) {
	classes, err := routing.NewClassificationCache(a.cfg.LLM.ClassifierCacheTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to create classification cache: %w", err)
	}
	a.classes = classes
	a.closers = append(a.closers, classes.Close)

	classifier := routing.NewModelClassifier(provider, a.cfg.Catalog.SubjectNames(), a.cfg.LLM.ClassifierTimeout, classes)
	return routing.NewRouter(a.cfg.Catalog,
		routing.WithClassifier(classifier),
		routing.WithFeatureGate(a.cfg.Features),
		routing.WithHistoryLimit(a.cfg.Tutor.HistoryLimit),
		routing.WithLogger(a.log),
	), nil
}

// buildScheduler регистрирует фоновые задачи. Задачи регистрируются всегда,
// чтобы их можно было запустить вручную; цикл запускает только Start.
func (a *app) buildScheduler() error {
	a.scheduler = scheduler.New(scheduler.Config{
		Logger:            a.slog,
		Timezone:          a.cfg.App.Location,
		MaxConcurrentJobs: a.cfg.Scheduler.MaxConcurrentJobs,
		JobTimeout:        a.cfg.Scheduler.JobTimeout,
	})

	var lock jobs.DayLocker
	if a.cache != nil && a.cfg.Scheduler.UseDayLock {
		lock = redis.NewDayLock(a.cache, 0)
	}

	daily := jobs.NewDailyPracticeJob(a.sessions, a.notifications, a.bus, lock, a.cfg.Features, jobs.DailyPracticeConfig{
		Location:        a.cfg.App.Location,
		ActiveDays:      a.cfg.Tutor.ActiveDays,
		FallbackSubject: a.cfg.Tutor.FallbackSubject,
		Feature:         config.FeatureDailyPractice,
	}, a.slog)
	cron, err := scheduler.ParseCronExpression(a.cfg.Scheduler.DailyPracticeCron)
	if err != nil {
		return fmt.Errorf("invalid TUTOR_DAILY_PRACTICE_CRON: %w", err)
	}
	if err := a.scheduler.Register(daily, cron); err != nil {
		return err
	}

	sweep := jobs.NewInactivitySweepJob(a.engine, a.slog)
	if err := a.scheduler.Register(sweep, scheduler.NewIntervalSchedule(a.cfg.Scheduler.InactivitySweepInterval)); err != nil {
		return err
	}

	a.scheduler.OnJobComplete(func(r scheduler.JobResult) {
		if r.Error != nil && !errors.Is(r.Error, context.Canceled) {
			a.slog.Error("job failed", "job", r.JobName, "error", r.Error)
		}
	})
	return nil
}

// httpServer собирает обработчики API.
func (a *app) httpServer() *apihttp.Server {
	cfg := a.cfg
	return apihttp.NewServer(apihttp.ConfigFrom(cfg), apihttp.Dependencies{
		StartSession: command.NewStartSessionHandler(a.sessions, a.profiles, a.bus, a.log),
		SendMessage: command.NewSendMessageHandler(a.sessions, a.profiles, a.router, a.registry, a.ledger, a.engine, a.bus,
			command.SendMessageHandlerConfig{XPPerMessage: cfg.Tutor.XPPerMessage}, a.log),
		UpdateProfile: command.NewUpdateProfileHandler(a.profiles, a.teachers, a.log),
		MarkRead:      command.NewMarkReadHandler(a.alerts, a.notifications),
		Practice: command.NewGeneratePracticeHandler(a.provider, cfg.Catalog, cfg.Features, command.GeneratePracticeConfig{
			MinQuestions: cfg.Tutor.PracticeMinQuestions,
			MaxQuestions: cfg.Tutor.PracticeMaxQuestions,
		}, a.log),
		Admin: command.NewAdminHandler(a.ledger, a.scheduler, a.log),

		Chat:    query.NewChatHandler(a.sessions),
		Welcome: query.NewWelcomeHandler(a.sessions, a.profiles, cfg.Catalog),
		Profile: query.NewProfileHandler(a.profiles, a.sessions),
		Inbox:   query.NewInboxHandler(a.alerts, a.notifications),

		Logger:        a.log,
		HealthChecker: a.healthChecker(),
	})
}

// healthChecker: база критична, Redis и модель только понижают статус.
func (a *app) healthChecker() handlers.HealthChecker {
	hc := handlers.NewCompositeHealthChecker(a.cfg.App.Version)
	if a.db != nil {
		hc.AddCheck("database", handlers.NewPingCheck(a.db))
	}
	if a.cache != nil {
		hc.AddOptionalCheck("redis", handlers.NewPingCheck(a.cache))
	}
	if b, ok := a.provider.(handlers.Breaker); ok {
		hc.AddOptionalCheck("model", handlers.NewBreakerCheck(b))
	}
	return hc
}

// Close освобождает ресурсы в обратном порядке.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
