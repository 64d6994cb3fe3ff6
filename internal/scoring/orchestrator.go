package scoring

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/keywords"
	"github.com/spigell/tender-monitor/internal/logger"
	"github.com/spigell/tender-monitor/internal/storage"
	"github.com/spigell/tender-monitor/internal/tender"
)

// DefaultThreshold is the minimum score a record needs to be persisted.
const DefaultThreshold = 60

// Config controls a single scoring pass. A nil Threshold means
// DefaultThreshold; zero keeps every record.
type Config struct {
	KeywordsPath string
	Threshold    *int
	Workers      int
	OnlyUnscored bool
	Explain      bool
}

// Deps aggregates the collaborators of a scoring pass.
type Deps struct {
	Source       storage.RecordSource
	Sink         storage.ResultSink
	Scorer       *Scorer
	LoadKeywords func(path string) (*keywords.Set, error)
	NewRunID     func() string
	Logger       *zap.Logger
}

// Step describes the outcome of a scoring pass.
type Step struct {
	Initial int
	Dropped int
	Left    int
}

// Orchestrator runs scoring passes over a record source.
type Orchestrator struct {
	cfg       Config
	deps      Deps
	threshold int
}

func New(cfg *Config, deps *Deps) (*Orchestrator, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	if deps == nil || deps.Source == nil || deps.Sink == nil {
		return nil, errors.New("record source and result sink are required")
	}

	o := &Orchestrator{cfg: *cfg, deps: *deps, threshold: DefaultThreshold}
	if cfg.Threshold != nil {
		o.threshold = *cfg.Threshold
	}
	if o.cfg.Workers <= 0 {
		o.cfg.Workers = 1
	}
	if o.deps.Scorer == nil {
		o.deps.Scorer = NewScorer(nil, nil, nil)
	}
	if o.deps.LoadKeywords == nil {
		o.deps.LoadKeywords = keywords.Load
	}
	if o.deps.NewRunID == nil {
		o.deps.NewRunID = func() string { return "" }
	}
	o.deps.Logger = logger.WithFields(o.deps.Logger)

	return o, nil
}

// Run scores every record once and persists the ones at or above the
// threshold in a single batch. It returns the number of persisted results.
// Nothing is persisted when loading keywords, reading records, scoring or
// the final write fails, or when ctx is canceled before the write.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	set, err := o.deps.LoadKeywords(o.cfg.KeywordsPath)
	if err != nil {
		return 0, fmt.Errorf("loading keywords: %w", err)
	}

	runID := o.deps.NewRunID()
	log := o.deps.Logger.With(logger.RunFields(runID, o.threshold)...)

	log.Info("keywords loaded",
		zap.String("path", o.cfg.KeywordsPath),
		zap.Strings("languages", set.Languages()),
		zap.Int("count", set.Len()),
	)

	records, err := o.records(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading records: %w", err)
	}

	scored, err := o.scoreAll(ctx, records.Items, set, log)
	if err != nil {
		return 0, err
	}

	staged := make([]*tender.FilteredResult, 0)
	for i, rec := range records.Items {
		res := scored[i]
		if res.Score < o.threshold {
			continue
		}
		staged = append(staged, &tender.FilteredResult{
			RawID:           rec.ID,
			RunID:           runID,
			Score:           res.Score,
			MatchedKeywords: res.Matched,
		})
	}

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if len(staged) > 0 {
		if err := o.deps.Sink.InsertFiltered(ctx, staged); err != nil {
			return 0, fmt.Errorf("persisting filtered results: %w", err)
		}
	}

	step := Step{Initial: records.Len(), Dropped: records.Len() - len(staged), Left: len(staged)}
	log.Info("scoring step",
		zap.Bool("only_unscored", o.cfg.OnlyUnscored),
		zap.Int("initial", step.Initial),
		zap.Int("dropped", step.Dropped),
		zap.Int("left", step.Left),
	)

	return len(staged), nil
}

func (o *Orchestrator) records(ctx context.Context) (*tender.Records, error) {
	if o.cfg.OnlyUnscored {
		return o.deps.Source.Unscored(ctx)
	}
	return o.deps.Source.All(ctx)
}

// scoreAll scores records by index so the output order never depends on the
// number of workers. ctx is checked before every record.
func (o *Orchestrator) scoreAll(ctx context.Context, records []*tender.Record, set *keywords.Set, log *zap.Logger) ([]Result, error) {
	results := make([]Result, len(records))

	score := func(i int) {
		rec := records[i]
		res := o.deps.Scorer.Score(rec, set)
		results[i] = res
		o.logResult(log, rec, res)
	}

	if o.cfg.Workers == 1 || len(records) < 2 {
		for i := range records {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			score(i)
		}
		return results, nil
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.cfg.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				score(i)
			}
		}()
	}

	var err error
feed:
	for i := range records {
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err != nil {
		return nil, err
	}
	return results, nil
}

func (o *Orchestrator) logResult(log *zap.Logger, rec *tender.Record, res Result) {
	if o.cfg.Explain {
		log.Info("record scored", append(logger.RecordFields(rec.ID, rec.Country, res.Language),
			zap.Int("score", res.Score),
			zap.Strings("matched_keywords", res.Matched),
			zap.Float64("keyword", res.Signals.Keyword),
			zap.Float64("rail_context", res.Signals.Rail),
			zap.Float64("market", res.Signals.Market),
			zap.Float64("deadline", res.Signals.Deadline),
			zap.Float64("budget", res.Signals.Budget),
		)...)
		return
	}

	log.Debug("record scored", append(logger.RecordFields(rec.ID, rec.Country, res.Language),
		zap.Int("score", res.Score),
		zap.Int("matched", len(res.Matched)),
	)...)
}
