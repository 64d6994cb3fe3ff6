package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/ai"
	"github.com/spigell/tender-monitor/internal/ai/gemini"
	"github.com/spigell/tender-monitor/internal/secrets"
	"github.com/spigell/tender-monitor/internal/storage"
	"github.com/spigell/tender-monitor/internal/tender"
)

const (
	PromptReviewAll       = "Annotate all tenders with AI"
	PromptChooseTender    = "Choose a tender"
	PromptReportByCountry = "Report by country"
	PromptTendersToFile   = "Dump tenders to file"
	PromptExit            = "Exit"
	PromptBack            = "back"
)

var errExit = errors.New("exit requested")

var reviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Review filtered tenders and annotate them",
	Run: func(cmd *cobra.Command, _ []string) {
		review(cmd)
	},
}

func init() {
	rootCmd.AddCommand(reviewCmd)

	reviewCmd.Flags().BoolP("auto", "y", false, "annotate every tender without notes with AI and exit")
}

// reviewSession holds the filtered results and their raw tenders.
type reviewSession struct {
	store    storage.Store
	reviewer ai.Reviewer
	logger   *zap.Logger
	results  *tender.Results
	records  *tender.Records
}

func review(cmd *cobra.Command) {
	ctx := context.Background()
	logger, config := setup()

	store := openStore(config, logger)
	defer store.Close()

	results, err := store.Filtered(ctx)
	if err != nil {
		logger.Fatal("getting filtered tenders", zap.Error(err))
	}

	if results.Len() == 0 {
		logger.Info("exiting", zap.String("reason", "no filtered tenders found"))
		return
	}

	records := &tender.Records{}
	for _, id := range results.RawIDs() {
		rec, err := store.Get(ctx, id)
		if err != nil {
			logger.Fatal("getting raw tender", zap.Int64("raw_id", id), zap.Error(err))
		}
		records.Items = append(records.Items, rec)
	}

	session := &reviewSession{store: store, logger: logger, results: results, records: records}

	if config.AI != nil && config.AI.Enabled {
		reviewer, err := newAIReviewer(ctx, config.AI, logger)
		if err != nil {
			logger.Warn("skipping AI review", zap.Error(err))
		} else {
			session.reviewer = reviewer
		}
	}

	if auto, _ := cmd.Flags().GetBool("auto"); auto {
		if session.reviewer == nil {
			logger.Fatal("ai review is not available", zap.String("hint", "set ai.enabled and ai.gemini.api-key-file"))
		}
		if err := session.annotateAll(ctx, false); err != nil {
			logger.Fatal("annotating tenders", zap.Error(err))
		}
		return
	}

	items := []string{PromptChooseTender, PromptReportByCountry, PromptTendersToFile, PromptExit}
	if session.reviewer != nil {
		items = append([]string{PromptReviewAll}, items...)
	}

	prompt := promptui.Select{
		Label: "What next?",
		Items: items,
	}

	for {
		logger.Info("current list of filtered tenders", zap.Int("count", results.Len()))

		_, action, err := prompt.Run()
		if err != nil {
			logger.Fatal("exiting", zap.Error(err))
		}

		if err := session.handleAction(ctx, action); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Fatal("exiting", zap.Error(err))
		}
	}
}

func (s *reviewSession) handleAction(ctx context.Context, action string) error {
	switch action {
	case PromptReviewAll:
		return s.annotateAll(ctx, true)
	case PromptChooseTender:
		return s.chooseTender(ctx)
	case PromptReportByCountry:
		pretty, err := json.MarshalIndent(s.records.ReportByCountry(), "", "  ")
		if err != nil {
			return fmt.Errorf("encoding country report: %w", err)
		}
		s.logger.Info(string(pretty), zap.Int("tenders count", s.records.Len()))
		return nil
	case PromptTendersToFile:
		filename, err := s.records.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump results to file: %w", err)
		}
		s.logger.Info("dumping result to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		s.logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

func (s *reviewSession) chooseTender(ctx context.Context) error {
	for {
		items := make([]string, 0, s.results.Len()+1)
		for _, res := range s.results.Items {
			items = append(items, res.Label(s.records.FindByID(res.RawID)))
		}

		tenderPrompt := promptui.Select{
			Label: "Choose a tender and press ENTER",
			Items: append(items, PromptBack),
			Size:  10,
		}

		_, selected, err := tenderPrompt.Run()
		if err != nil {
			return err
		}

		if selected == PromptBack {
			return nil
		}

		id, err := strconv.ParseInt(strings.Split(selected, " ")[0], 10, 64)
		if err != nil {
			return fmt.Errorf("parsing selected tender %q: %w", selected, err)
		}

		res := s.results.FindByID(id)
		if res == nil {
			return fmt.Errorf("there is no such filtered tender id %d", id)
		}
		rec := s.records.FindByID(res.RawID)

		details, err := json.MarshalIndent(map[string]any{"result": res, "tender": rec}, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding tender %d: %w", res.ID, err)
		}
		s.logger.Info(string(details), zap.Int64("filtered_id", res.ID))

		if s.reviewer == nil {
			continue
		}

		if err := s.annotate(ctx, res, rec); err != nil {
			s.logger.Warn("ai review failed", zap.Int64("filtered_id", res.ID), zap.Error(err))
		}
	}
}

// annotateAll reviews every result. Results with notes are kept unless
// overwrite is set.
func (s *reviewSession) annotateAll(ctx context.Context, overwrite bool) error {
	annotated := 0
	for _, res := range s.results.Items {
		if !overwrite && strings.TrimSpace(res.Notes) != "" {
			continue
		}

		if err := s.annotate(ctx, res, s.records.FindByID(res.RawID)); err != nil {
			return err
		}
		annotated++
	}

	s.logger.Info("tenders annotated", zap.Int("count", annotated))
	return nil
}

func (s *reviewSession) annotate(ctx context.Context, res *tender.FilteredResult, rec *tender.Record) error {
	assessment, err := s.reviewer.Review(ctx, rec, res)
	if err != nil {
		return fmt.Errorf("reviewing tender %d: %w", res.ID, err)
	}

	notes := assessment.Notes()
	if err := s.store.UpdateNotes(ctx, res.ID, notes); err != nil {
		return fmt.Errorf("saving notes for %d: %w", res.ID, err)
	}
	res.Notes = notes

	s.logger.Info("tender annotated",
		zap.Int64("filtered_id", res.ID),
		zap.Bool("relevant", assessment.Relevant),
		zap.Float64("confidence", assessment.Confidence),
		zap.String("notes", notes),
	)
	return nil
}

func newAIReviewer(ctx context.Context, cfg *AIConfig, logger *zap.Logger) (ai.Reviewer, error) {
	if cfg.Gemini == nil {
		return nil, errors.New("gemini configuration is required when ai review is enabled")
	}

	apiKey, err := secrets.Load(secrets.Source{
		Name: "gemini api key",
		File: cfg.Gemini.APIKeyFile,
		Env:  "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file, GEMINI_API_KEY_FILE or GEMINI_API_KEY)", err)
	}

	genLogger := logger.Named("gemini").With(zap.Int("ai_retry_attempts", cfg.Gemini.MaxRetries))

	generator, err := gemini.NewGenerator(ctx, apiKey, cfg.Gemini.Model, cfg.Gemini.MaxRetries, genLogger)
	if err != nil {
		return nil, err
	}

	return gemini.NewReviewer(generator, logger.Named("review"), cfg.Gemini.MaxLogLength), nil
}
