package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/tender"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest FILE",
	Short: "Store raw tenders from a JSON array of upstream records",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ingest(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(ingestCmd)

	ingestCmd.Flags().StringP("source", "s", "", "source name for records without one (TED, EMAIL_ALERT...)")
	ingestCmd.Flags().String("base-url", "", "base url to resolve relative tender links")
}

func ingest(cmd *cobra.Command, path string) {
	ctx := context.Background()
	logger, config := setup()

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Fatal("reading input file", zap.String("path", path), zap.Error(err))
	}

	var items []map[string]any
	if err := json.Unmarshal(data, &items); err != nil {
		logger.Fatal("parsing input file", zap.String("path", path), zap.Error(err))
	}

	decoded, err := tender.Decode(items)
	if err != nil {
		logger.Fatal("decoding tenders", zap.Error(err))
	}

	source, _ := cmd.Flags().GetString("source")
	baseURL, _ := cmd.Flags().GetString("base-url")

	records := make([]*tender.Record, 0, len(decoded))
	for i, rec := range decoded {
		if err := tender.Normalize(rec, source, baseURL); err != nil {
			level := logger.Warn
			if errors.Is(err, tender.ErrMissingURL) {
				level = logger.Debug
			}
			level("skipping tender", zap.Int("index", i), zap.String("title", rec.Title), zap.Error(err))
			continue
		}
		records = append(records, rec)
	}

	store := openStore(config, logger)
	defer store.Close()

	inserted, err := store.InsertRaw(ctx, records)
	if err != nil {
		logger.Fatal("storing raw tenders", zap.Error(err))
	}

	logger.Info("ingest step",
		zap.String("path", path),
		zap.Int("initial", len(items)),
		zap.Int("valid", len(records)),
		zap.Int("inserted", inserted),
		zap.Int("duplicates", len(records)-inserted),
	)
}
