package main

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/susu3304/gastobot/internal/api"
	"github.com/susu3304/gastobot/internal/bot"
	"github.com/susu3304/gastobot/internal/commands"
	"github.com/susu3304/gastobot/internal/config"
	"github.com/susu3304/gastobot/internal/db"
	"github.com/susu3304/gastobot/internal/dialog"
	"github.com/susu3304/gastobot/internal/inflight"
	"github.com/susu3304/gastobot/internal/intake"
	"github.com/susu3304/gastobot/internal/metrics"
	"github.com/susu3304/gastobot/internal/notify"
	"github.com/susu3304/gastobot/internal/recurring"
	"github.com/susu3304/gastobot/internal/transport"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Discord bot, the recurring review scheduler and the web API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		if err := cfg.RequireBot(); err != nil {
			return err
		}
		return serve(cmd.Context(), cfg, logger)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL, cfg.Location())
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	tax, err := loadTaxonomy(cfg.TaxonomyPath)
	if err != nil {
		return fmt.Errorf("failed to load taxonomy: %w", err)
	}

	reg := prometheus.NewRegistry()
	if err := metrics.Register(reg); err != nil {
		return err
	}
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	alerts := notify.Multi{notify.NewLog(logger.Named("alert"))}
	if cfg.AlertWebhookURL != "" {
		alerts = append(alerts, notify.NewWebhook(cfg.AlertWebhookURL))
	}

	guard, err := newGuard(ctx, cfg, logger)
	if err != nil {
		return err
	}

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		return err
	}
	messenger := transport.NewRetrying(bot.NewMessenger(session), transport.Config{
		MaxAttempts: cfg.RetryMaxAttempts,
		BaseDelay:   cfg.RetryBaseDelay,
		MaxDelay:    cfg.RetryMaxDelay,
	}, alerts, logger.Named("transport"))

	dialogs := dialog.NewService(dialog.NewMachine(tax), messenger, logger.Named("dialog"))
	reviews := recurring.NewService(database, messenger, logger.Named("recurring"))
	processor := intake.NewProcessor(dialogs, database, database, guard, alerts, logger.Named("intake"))
	queue := intake.NewQueue(ctx, database, processor, cfg, logger.Named("intake"))

	handler := commands.NewHandler(commands.Deps{
		Taxonomy:  tax,
		Operators: cfg,
		Ledger:    database,
		Dialogs:   dialogs,
		Reviews:   reviews,
		Templates: database,
		Intake:    queue,
		Location:  cfg.Location(),
		Logger:    logger.Named("commands"),
	})

	discordBot := bot.New(session, bot.Deps{
		Config:    cfg,
		Dialogs:   dialogs,
		Recurring: reviews,
		Commands:  handler,
		Messenger: messenger,
		Templates: database,
		Logger:    logger.Named("bot"),
	})

	apiServer := api.New(api.Deps{
		Config:   cfg,
		Store:    database,
		Dialogs:  dialogs,
		Reviews:  reviews,
		Intake:   queue,
		Taxonomy: tax,
		Gatherer: reg,
		Logger:   logger.Named("api"),
	})

	// Start Discord bot
	if err := discordBot.Start(); err != nil {
		return err
	}
	defer discordBot.Stop()

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("API server error", zap.Error(err))
		}
	}()

	if n, err := queue.ResumePending(ctx); err != nil {
		logger.Error("failed to resume pending transactions", zap.Error(err))
	} else if n > 0 {
		logger.Info("resumed pending transactions", zap.Int("count", n))
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("API shutdown", zap.Error(err))
	}
	handler.Wait()
	queue.Wait()
	return nil
}

// newGuard shares in-flight markers through Redis when REDIS_URL is set.
func newGuard(ctx context.Context, cfg *config.Config, logger *zap.Logger) (inflight.Guard, error) {
	if cfg.RedisURL == "" {
		logger.Info("REDIS_URL not set, using in-process in-flight guard")
		return inflight.NewLocal(), nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return inflight.NewRedis(client, "gastobot:inflight:"), nil
}
