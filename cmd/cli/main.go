package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jakechorley/shelter-shifts/cmd/cli/commands"
	"github.com/jakechorley/shelter-shifts/internal/config"
	"github.com/jakechorley/shelter-shifts/pkg/auth"
	"github.com/jakechorley/shelter-shifts/pkg/cache"
	"github.com/jakechorley/shelter-shifts/pkg/clients/gmailclient"
	"github.com/jakechorley/shelter-shifts/pkg/clients/sheetsclient"
	"github.com/jakechorley/shelter-shifts/pkg/core/calendar"
	"github.com/jakechorley/shelter-shifts/pkg/core/notify"
	"github.com/jakechorley/shelter-shifts/pkg/core/services"
	"github.com/jakechorley/shelter-shifts/pkg/db"
	"github.com/jakechorley/shelter-shifts/pkg/db/memory"
	"github.com/jakechorley/shelter-shifts/pkg/events"
	"github.com/jakechorley/shelter-shifts/pkg/metrics"
	"github.com/jakechorley/shelter-shifts/pkg/postgres"
	"github.com/jakechorley/shelter-shifts/pkg/utils/logging"
)

var (
	env     string
	verbose bool
	app     = &commands.AppContext{}
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "shelter",
		Short: "Shelter shifts - volunteer shift scheduling",
		Long:  `A CLI and HTTP API for volunteers to sign up to shelter shifts and for admins to manage them.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initApp(cmd.Name() == "serve")
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			app.Close()
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&env, "env", "e", "", "Environment (required: test, prod, etc.)")
	rootCmd.PersistentFlags().StringVarP(&app.UserEmail, "user", "u", "", "E-mail of the user to act as")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Debug logging on the console")
	rootCmd.MarkPersistentFlagRequired("env")

	rootCmd.AddCommand(commands.ServeCmd(app))
	rootCmd.AddCommand(commands.MigrateCmd(app))
	rootCmd.AddCommand(commands.CalendarCmd(app))
	rootCmd.AddCommand(commands.ToggleCmd(app))
	rootCmd.AddCommand(commands.AssignCmd(app))
	rootCmd.AddCommand(commands.UnassignCmd(app))
	rootCmd.AddCommand(commands.HistoryCmd(app))
	rootCmd.AddCommand(commands.UsersCmd(app))
	rootCmd.AddCommand(commands.ResetTestDataCmd(app))
	rootCmd.AddCommand(commands.InteractiveCmd(app))

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// initApp sets up logger, config, store, clients and services
func initApp(server bool) error {
	var err error
	app.Ctx = context.Background()

	app.Logger, err = logging.InitLogger(env, logging.Options{Server: server, Verbose: verbose})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	app.OnClose(func() { _ = app.Logger.Sync() })

	app.Logger.Info("Starting application", zap.String("environment", env))

	app.Logger.Info("Loading configuration")
	app.Cfg, err = config.Load(env)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	app.Logger.Debug("Configuration loaded successfully")

	store, err := openStore()
	if err != nil {
		return err
	}

	app.Cache, err = openCache()
	if err != nil {
		return err
	}
	app.Database = cache.NewStore(store, app.Cache, app.Cfg.CacheTTL, app.Logger)

	loc, err := app.Cfg.Location()
	if err != nil {
		return err
	}
	app.Calendar, err = calendar.New(app.Cfg.CapacityThreshold, app.Cfg.CalendarOverrides(), loc, app.Logger)
	if err != nil {
		return fmt.Errorf("failed to build calendar: %w", err)
	}

	app.Notifier = notify.NewRegistry(app.Cfg.NotificationDuration)
	app.OnClose(app.Notifier.Close)

	app.Publisher, err = openPublisher()
	if err != nil {
		return err
	}

	if err := initGoogleClients(); err != nil {
		return err
	}

	app.Metrics = metrics.New()
	app.Auth = auth.NewProvider(app.Database, app.Cache, app.Cfg.JWTSecret, app.Cfg.SessionTTL, app.Logger)
	app.Users = services.NewUserService(app.Database, app.Cfg.DefaultCountryCode, app.Logger)
	app.Assignments = services.NewAssignmentService(app.Database, app.Calendar, app.Notifier, app.Publisher, app.Logger)
	app.Assignments.Metrics = app.Metrics
	if app.GmailClient != nil {
		app.Assignments.Mailer = app.GmailClient
	}

	app.Logger.Info("Application initialized")
	return nil
}

func openStore() (db.Database, error) {
	if app.Cfg.DatabaseURL == "" {
		app.Logger.Warn("DATABASE_URL not set, using the in-memory store")
		return memory.NewDB(), nil
	}

	app.Logger.Info("Connecting to database")
	pg, err := postgres.NewDB(app.Ctx, app.Cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	app.Postgres = pg
	app.OnClose(pg.Close)
	app.Logger.Info("Database connected")
	return pg, nil
}

func openCache() (cache.Cache, error) {
	if app.Cfg.RedisAddr == "" {
		app.Logger.Debug("REDIS_ADDR not set, using the in-process cache")
		return cache.NewMemory(), nil
	}

	app.Logger.Info("Connecting to Redis", zap.String("addr", app.Cfg.RedisAddr))
	client, err := cache.NewRedisClient(app.Ctx, app.Cfg.RedisAddr, app.Cfg.RedisPassword)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	app.OnClose(func() { _ = client.Close() })

	cb := config.NewCircuitBreaker(config.BreakerRedis, app.Logger)
	return cache.NewRedis(client, cb, "shelter:"+env+":"), nil
}

func openPublisher() (events.Publisher, error) {
	if app.Cfg.AMQPURL == "" {
		app.Logger.Debug("AMQP_URL not set, assignment events are only logged")
		return events.LogPublisher{Logger: app.Logger}, nil
	}

	app.Logger.Info("Connecting to RabbitMQ", zap.String("queue", app.Cfg.AMQPQueue))
	cb := config.NewCircuitBreaker(config.BreakerRabbitMQ, app.Logger)
	publisher, err := events.NewRabbitMQ(app.Cfg.AMQPURL, app.Cfg.AMQPQueue, cb)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}
	app.OnClose(func() { _ = publisher.Close() })
	return publisher, nil
}

// initGoogleClients builds the Sheets and Gmail clients when a service
// account is configured
func initGoogleClients() error {
	if app.Cfg.GoogleCredentialsFile == "" {
		app.Logger.Debug("GOOGLE_CREDENTIALS_FILE not set, export and e-mail are disabled")
		return nil
	}

	var err error
	app.Logger.Info("Initializing sheets client")
	app.SheetsClient, err = sheetsclient.NewClient(app.Ctx, app.Cfg.GoogleCredentialsFile)
	if err != nil {
		return fmt.Errorf("failed to create sheets client: %w", err)
	}

	if app.Cfg.MailSender != "" {
		app.Logger.Info("Initializing gmail client", zap.String("sender", app.Cfg.MailSender))
		app.GmailClient, err = gmailclient.NewClient(app.Ctx, app.Cfg.GoogleCredentialsFile, app.Cfg.MailSender)
		if err != nil {
			return fmt.Errorf("failed to create gmail client: %w", err)
		}
	}
	return nil
}
