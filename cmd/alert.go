package cmd

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/alerts"
	"github.com/spigell/tender-monitor/internal/secrets"
)

var alertCmd = &cobra.Command{
	Use:   "alert",
	Short: "Push filtered tenders that were not alerted yet to a Redis list",
	Run: func(_ *cobra.Command, _ []string) {
		alert()
	},
}

func init() {
	rootCmd.AddCommand(alertCmd)
}

func alert() {
	ctx := context.Background()
	logger, config := setup()

	rc := &RedisConfig{}
	if config.Alerts != nil && config.Alerts.Redis != nil {
		rc = config.Alerts.Redis
	}

	password, err := secrets.Load(secrets.Source{
		Name:     "redis password",
		File:     rc.PasswordFile,
		Env:      "REDIS_PASSWORD",
		Optional: true,
	})
	if err != nil {
		logger.Fatal("loading redis password", zap.Error(err))
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rc.Addr,
		Password: password,
		DB:       rc.DB,
	})
	defer client.Close()

	if err := client.Ping(ctx).Err(); err != nil {
		logger.Fatal("connecting to redis", zap.String("addr", rc.Addr), zap.Error(err))
	}

	store := openStore(config, logger)
	defer store.Close()

	dispatcher, err := alerts.NewDispatcher(store, client, rc.List, logger.Named("alerts"))
	if err != nil {
		logger.Fatal("preparing alerts", zap.Error(err))
	}

	if _, err := dispatcher.Dispatch(ctx); err != nil {
		logger.Fatal("dispatching alerts", zap.Error(err))
	}
}
