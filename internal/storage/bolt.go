package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/spigell/tender-monitor/internal/tender"
)

// Bucket keys
var (
	bucketRaw        = []byte("tenders_raw")
	bucketRawKeys    = []byte("tenders_raw_keys")
	bucketFiltered   = []byte("tenders_filtered")
	bucketFilteredBy = []byte("tenders_filtered_by_raw")
	bucketAlerts     = []byte("alerts_sent")
)

// Bolt stores tenders as JSON values in a bbolt file. Every write runs in a
// single db.Update, so a failed batch leaves no partial state behind.
type Bolt struct {
	db  *bolt.DB
	now func() time.Time
}

type alertJSON struct {
	FilteredID int64     `json:"filtered_id"`
	Channel    string    `json:"channel"`
	SentAt     time.Time `json:"sent_at"`
}

// NewBolt opens (or creates) a bbolt database at path.
func NewBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bbolt open: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRaw, bucketRawKeys, bucketFiltered, bucketFilteredBy, bucketAlerts} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bbolt init buckets: %w", err)
	}

	return &Bolt{db: db, now: time.Now}, nil
}

// Close closes the underlying bbolt database.
func (s *Bolt) Close() error {
	return s.db.Close()
}

func itob(v int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(v))
	return b
}

func btoi(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

func dedupKeys(rec *tender.Record) [][]byte {
	keys := make([][]byte, 0, 2)
	if rec.ExternalID != "" {
		keys = append(keys, []byte(rec.Source+"\x00ext\x00"+rec.ExternalID))
	}
	if rec.URL != "" {
		keys = append(keys, []byte(rec.Source+"\x00url\x00"+rec.URL))
	}
	return keys
}

func (s *Bolt) InsertRaw(ctx context.Context, records []*tender.Record) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	type staged struct {
		rec     *tender.Record
		id      int64
		fetched time.Time
	}
	var done []staged

	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRaw)
		index := tx.Bucket(bucketRawKeys)

		for _, rec := range records {
			keys := dedupKeys(rec)
			duplicate := false
			for _, k := range keys {
				if index.Get(k) != nil {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}

			seq, err := raw.NextSequence()
			if err != nil {
				return err
			}
			id := int64(seq)

			fetched := rec.FetchedAt
			if fetched.IsZero() {
				fetched = s.now().UTC()
			}

			stored := *rec
			stored.ID = id
			stored.FetchedAt = fetched
			stored.Budget = budgetValue(rec.Budget)
			stored.Deadline = deadlineValue(rec.Deadline)

			data, err := json.Marshal(&stored)
			if err != nil {
				return fmt.Errorf("marshal raw %q: %w", rec.URL, err)
			}
			if err := raw.Put(itob(id), data); err != nil {
				return err
			}
			for _, k := range keys {
				if err := index.Put(k, itob(id)); err != nil {
					return err
				}
			}

			done = append(done, staged{rec: rec, id: id, fetched: fetched})
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	for _, st := range done {
		st.rec.ID = st.id
		st.rec.FetchedAt = st.fetched
	}

	return len(done), nil
}

func (s *Bolt) All(ctx context.Context) (*tender.Records, error) {
	return s.records(ctx, func(*bolt.Tx, []byte) bool { return true })
}

func (s *Bolt) Unscored(ctx context.Context) (*tender.Records, error) {
	return s.records(ctx, func(tx *bolt.Tx, key []byte) bool {
		return tx.Bucket(bucketFilteredBy).Bucket(key) == nil
	})
}

func (s *Bolt) records(ctx context.Context, keep func(*bolt.Tx, []byte) bool) (*tender.Records, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := &tender.Records{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketRaw).ForEach(func(k, v []byte) error {
			if !keep(tx, k) {
				return nil
			}
			rec, err := decodeRecord(v)
			if err != nil {
				return err
			}
			records.Items = append(records.Items, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return records, nil
}

func decodeRecord(data []byte) (*tender.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var rec tender.Record
	if err := dec.Decode(&rec); err != nil {
		return nil, fmt.Errorf("decode raw tender: %w", err)
	}
	if n, ok := rec.Budget.(json.Number); ok {
		rec.Budget = numberValue(n)
	}
	return &rec, nil
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}

func (s *Bolt) Get(ctx context.Context, id int64) (*tender.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec *tender.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketRaw).Get(itob(id))
		if v == nil {
			return fmt.Errorf("raw tender %d: %w", id, ErrNotFound)
		}
		var err error
		rec, err = decodeRecord(v)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Bolt) InsertFiltered(ctx context.Context, results []*tender.FilteredResult) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	ids := make([]int64, len(results))
	created := s.now().UTC()

	err := s.db.Update(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketRaw)
		filtered := tx.Bucket(bucketFiltered)
		byRaw := tx.Bucket(bucketFilteredBy)

		for i, res := range results {
			if raw.Get(itob(res.RawID)) == nil {
				return fmt.Errorf("insert filtered for raw %d: %w", res.RawID, ErrNotFound)
			}

			seq, err := filtered.NextSequence()
			if err != nil {
				return err
			}
			ids[i] = int64(seq)

			stored := *res
			stored.ID = ids[i]
			stored.CreatedAt = created

			data, err := json.Marshal(&stored)
			if err != nil {
				return fmt.Errorf("marshal filtered for raw %d: %w", res.RawID, err)
			}
			if err := filtered.Put(itob(ids[i]), data); err != nil {
				return err
			}

			perRaw, err := byRaw.CreateBucketIfNotExists(itob(res.RawID))
			if err != nil {
				return err
			}
			if err := perRaw.Put(itob(ids[i]), nil); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i, res := range results {
		res.ID = ids[i]
		res.CreatedAt = created
	}
	return nil
}

func (s *Bolt) Filtered(ctx context.Context) (*tender.Results, error) {
	return s.results(ctx, func(*bolt.Tx, []byte) bool { return true })
}

func (s *Bolt) Unalerted(ctx context.Context, channel string) (*tender.Results, error) {
	return s.results(ctx, func(tx *bolt.Tx, key []byte) bool {
		return tx.Bucket(bucketAlerts).Get(alertKey(btoi(key), channel)) == nil
	})
}

func (s *Bolt) results(ctx context.Context, keep func(*bolt.Tx, []byte) bool) (*tender.Results, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	results := &tender.Results{}
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiltered).ForEach(func(k, v []byte) error {
			if !keep(tx, k) {
				return nil
			}
			var res tender.FilteredResult
			if err := json.Unmarshal(v, &res); err != nil {
				return fmt.Errorf("decode filtered tender: %w", err)
			}
			if len(res.MatchedKeywords) == 0 {
				res.MatchedKeywords = nil
			}
			results.Items = append(results.Items, &res)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return results, nil
}

func (s *Bolt) UpdateNotes(ctx context.Context, filteredID int64, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiltered)
		v := b.Get(itob(filteredID))
		if v == nil {
			return fmt.Errorf("filtered tender %d: %w", filteredID, ErrNotFound)
		}

		var res tender.FilteredResult
		if err := json.Unmarshal(v, &res); err != nil {
			return fmt.Errorf("decode filtered tender: %w", err)
		}
		res.Notes = notes

		data, err := json.Marshal(&res)
		if err != nil {
			return err
		}
		return b.Put(itob(filteredID), data)
	})
}

func alertKey(filteredID int64, channel string) []byte {
	return append(itob(filteredID), []byte(channel)...)
}

func (s *Bolt) MarkAlerted(ctx context.Context, filteredID int64, channel string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketFiltered).Get(itob(filteredID)) == nil {
			return fmt.Errorf("filtered tender %d: %w", filteredID, ErrNotFound)
		}

		data, err := json.Marshal(alertJSON{FilteredID: filteredID, Channel: channel, SentAt: s.now().UTC()})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketAlerts).Put(alertKey(filteredID, channel), data)
	})
}
