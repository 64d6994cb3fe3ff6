package cmd

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/keywords"
	"github.com/spigell/tender-monitor/internal/nlp"
	"github.com/spigell/tender-monitor/internal/scoring"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score raw tenders and persist the relevant ones",
	Run: func(cmd *cobra.Command, _ []string) {
		score(cmd)
	},
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	scoreCmd.Flags().Bool("only-unscored", false, "score only tenders without a filtered result")
	scoreCmd.Flags().Bool("explain", false, "log the signal breakdown of every tender")
	scoreCmd.Flags().IntP("threshold", "t", 0, "minimum score to persist (default from config)")
	scoreCmd.Flags().IntP("workers", "w", 0, "number of scoring workers (default from config)")
	scoreCmd.Flags().StringP("keywords-file", "k", "", "keyword CSV with lang and keyword columns")

	viper.BindPFlag("scoring.only-unscored", scoreCmd.Flags().Lookup("only-unscored"))
	viper.BindPFlag("scoring.keywords-file", scoreCmd.Flags().Lookup("keywords-file"))
}

func score(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger, config := setup()

	cfg := config.Scoring
	if cmd.Flags().Changed("threshold") {
		cfg.Threshold, _ = cmd.Flags().GetInt("threshold")
	}
	if w, _ := cmd.Flags().GetInt("workers"); w > 0 {
		cfg.Workers = w
	}
	explain, _ := cmd.Flags().GetBool("explain")

	vocab, err := keywords.LoadVocabulary(cfg.VocabularyFile)
	if err != nil {
		logger.Fatal("loading vocabulary", zap.Error(err))
	}
	logger.Debug("vocabulary loaded",
		zap.String("path", cfg.VocabularyFile),
		zap.Int("markets", vocab.Markets()),
	)

	logger.Info("starting the tender-monitor scoring", zap.String("version", version))

	store := openStore(config, logger)
	defer store.Close()

	tokenizer := nlp.New(config.NLP, logger.Named("nlp"))
	cache := keywords.NewCache()

	orchestrator, err := scoring.New(&scoring.Config{
		KeywordsPath: cfg.KeywordsFile,
		Threshold:    &cfg.Threshold,
		Workers:      cfg.Workers,
		OnlyUnscored: cfg.OnlyUnscored,
		Explain:      explain,
	}, &scoring.Deps{
		Source:       store,
		Sink:         store,
		Scorer:       scoring.NewScorer(tokenizer, vocab, nil),
		LoadKeywords: cache.Get,
		NewRunID:     uuid.NewString,
		Logger:       logger.Named("scoring"),
	})
	if err != nil {
		logger.Fatal("preparing scoring", zap.Error(err))
	}

	persisted, err := orchestrator.Run(ctx)
	if err != nil {
		logger.Fatal("scoring failed", zap.Error(err))
	}

	if persisted == 0 {
		logger.Info("exiting", zap.String("reason", "no tenders above the threshold"))
		return
	}

	logger.Info("scoring finished", zap.Int("persisted", persisted))
}
