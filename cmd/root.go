package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/logger"
	"github.com/spigell/tender-monitor/internal/nlp"
	"github.com/spigell/tender-monitor/internal/scoring"
	"github.com/spigell/tender-monitor/internal/storage"
)

const (
	app = "tender-monitor"
)

type Config struct {
	Storage *StorageConfig `mapstructure:"storage"`
	Scoring *ScoringConfig `mapstructure:"scoring"`
	NLP     nlp.Config     `mapstructure:"nlp"`
	AI      *AIConfig      `mapstructure:"ai"`
	Alerts  *AlertsConfig  `mapstructure:"alerts"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

type ScoringConfig struct {
	KeywordsFile   string `mapstructure:"keywords-file"`
	VocabularyFile string `mapstructure:"vocabulary-file"`
	Threshold      int    `mapstructure:"threshold"`
	OnlyUnscored   bool   `mapstructure:"only-unscored"`
	Workers        int    `mapstructure:"workers"`
}

type AIConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Gemini  *GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxRetries   int    `mapstructure:"max-retries"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type AlertsConfig struct {
	Redis *RedisConfig `mapstructure:"redis"`
}

type RedisConfig struct {
	Addr         string `mapstructure:"addr"`
	PasswordFile string `mapstructure:"password-file"`
	DB           int    `mapstructure:"db"`
	List         string `mapstructure:"list"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "tender-monitor scores public procurement notices for railway depot equipment",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("storage.path", "TENDER_MONITOR_DB"); err != nil {
		log.Fatalf("binding TENDER_MONITOR_DB environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "GEMINI_API_KEY_FILE"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY_FILE environment variable: %v", err)
	}

	viper.SetDefault("storage.driver", storage.DriverSQLite)
	viper.SetDefault("storage.path", "tenders.db")
	viper.SetDefault("scoring.keywords-file", "config/keywords_multilingual.csv")
	viper.SetDefault("scoring.threshold", scoring.DefaultThreshold)
	viper.SetDefault("scoring.workers", 1)
	viper.SetDefault("alerts.redis.addr", "localhost:6379")

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is tender-monitor.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func initConfig() {
	// The version command works without a config.
	if versionCmd.CalledAs() != "" {
		return
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
	}

	if err := viper.ReadInConfig(); err != nil {
		// Defaults are enough when no config file exists and none was requested.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return
		}
		log.Fatal(err)
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if config.Storage == nil {
		config.Storage = &StorageConfig{}
	}
	if config.Scoring == nil {
		config.Scoring = &ScoringConfig{}
	}

	return config, nil
}

// setup builds the logger and reads the config shared by every command.
func setup() (*zap.Logger, *Config) {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	return logger, config
}

func openStore(config *Config, logger *zap.Logger) storage.Store {
	store, err := storage.Open(config.Storage.Driver, config.Storage.Path)
	if err != nil {
		logger.Fatal("opening storage",
			zap.String("driver", config.Storage.Driver),
			zap.String("path", config.Storage.Path),
			zap.Error(err),
		)
	}

	logger.Debug("storage opened",
		zap.String("driver", config.Storage.Driver),
		zap.String("path", config.Storage.Path),
	)
	return store
}
