// Package alerts pushes filtered tenders to downstream channels.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spigell/tender-monitor/internal/logger"
	"github.com/spigell/tender-monitor/internal/storage"
	"github.com/spigell/tender-monitor/internal/tender"
)

const (
	// ChannelRedis is recorded in alerts_sent for Redis deliveries.
	ChannelRedis = "redis"
	// DefaultList is the Redis list alerts are appended to.
	DefaultList = "tender-monitor:alerts"
)

// Pusher appends values to a Redis list. *redis.Client satisfies it.
type Pusher interface {
	RPush(ctx context.Context, key string, values ...any) *redis.IntCmd
}

// Store is the part of the storage used for alerting.
type Store interface {
	Get(ctx context.Context, id int64) (*tender.Record, error)
	Unalerted(ctx context.Context, channel string) (*tender.Results, error)
	MarkAlerted(ctx context.Context, filteredID int64, channel string) error
}

var _ Store = (storage.Store)(nil)

// Payload is the JSON document pushed for a single filtered tender.
type Payload struct {
	FilteredID      int64     `json:"filtered_id"`
	RawID           int64     `json:"raw_id"`
	RunID           string    `json:"run_id,omitempty"`
	Score           int       `json:"relevance_score"`
	MatchedKeywords []string  `json:"matched_keywords"`
	Notes           string    `json:"notes,omitempty"`
	Title           string    `json:"title"`
	URL             string    `json:"url"`
	Country         string    `json:"country,omitempty"`
	Source          string    `json:"source,omitempty"`
	Deadline        any       `json:"deadline_date,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

func NewPayload(res *tender.FilteredResult, rec *tender.Record) Payload {
	p := Payload{
		FilteredID:      res.ID,
		RawID:           res.RawID,
		RunID:           res.RunID,
		Score:           res.Score,
		MatchedKeywords: res.MatchedKeywords,
		Notes:           res.Notes,
		CreatedAt:       res.CreatedAt,
	}
	if p.MatchedKeywords == nil {
		p.MatchedKeywords = []string{}
	}
	if rec != nil {
		p.Title = rec.Title
		p.URL = rec.URL
		p.Country = rec.Country
		p.Source = rec.Source
		p.Deadline = rec.Deadline
	}
	return p
}

// Dispatcher delivers pending alerts to a Redis list.
type Dispatcher struct {
	store  Store
	pusher Pusher
	list   string
	logger *zap.Logger
}

func NewDispatcher(store Store, pusher Pusher, list string, log *zap.Logger) (*Dispatcher, error) {
	if store == nil || pusher == nil {
		return nil, errors.New("store and pusher are required")
	}
	if list = strings.TrimSpace(list); list == "" {
		list = DefaultList
	}
	return &Dispatcher{store: store, pusher: pusher, list: list, logger: logger.WithFields(log)}, nil
}

// Dispatch pushes every result not yet alerted on the redis channel and
// marks it as sent. A result is marked only after its push succeeded, so a
// failed run is retried on the next call. It returns the number delivered.
func (d *Dispatcher) Dispatch(ctx context.Context) (int, error) {
	pending, err := d.store.Unalerted(ctx, ChannelRedis)
	if err != nil {
		return 0, fmt.Errorf("listing pending alerts: %w", err)
	}

	sent := 0
	for _, res := range pending.Items {
		if err := ctx.Err(); err != nil {
			return sent, err
		}

		rec, err := d.store.Get(ctx, res.RawID)
		if err != nil {
			return sent, fmt.Errorf("loading tender %d: %w", res.RawID, err)
		}

		body, err := json.Marshal(NewPayload(res, rec))
		if err != nil {
			return sent, fmt.Errorf("encoding alert %d: %w", res.ID, err)
		}

		if err := d.pusher.RPush(ctx, d.list, body).Err(); err != nil {
			return sent, fmt.Errorf("pushing alert %d: %w", res.ID, err)
		}

		if err := d.store.MarkAlerted(ctx, res.ID, ChannelRedis); err != nil {
			return sent, fmt.Errorf("marking alert %d: %w", res.ID, err)
		}

		sent++
		d.logger.Debug("alert sent",
			append(logger.RecordFields(rec.ID, rec.Country, rec.Language),
				zap.Int64("filtered_id", res.ID),
				zap.Int("score", res.Score),
				zap.String("list", d.list),
			)...)
	}

	d.logger.Info("alerts dispatched",
		zap.String("list", d.list),
		zap.Int("pending", pending.Len()),
		zap.Int64s("raw_ids", pending.RawIDs()),
		zap.Int("sent", sent),
	)

	return sent, nil
}
