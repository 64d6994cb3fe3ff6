package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/multierr"

	"github.com/spigell/tender-monitor/internal/tender"
)

const rawColumns = `id, source, external_id, title, description, url, country, language,
	cpv_codes, budget_amount, deadline_date, published_at, fetched_at`

const filteredColumns = `id, raw_id, run_id, relevance_score, matched_keywords, notes, created_at`

// SQLite stores tenders in a single SQLite database file.
type SQLite struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLite opens (or creates) the database at path and applies the schema.
func NewSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLite{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}

	return store, nil
}

func (s *SQLite) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS tenders_raw (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			source TEXT NOT NULL,
			external_id TEXT,
			title TEXT NOT NULL,
			description TEXT,
			url TEXT NOT NULL,
			country TEXT,
			language TEXT,
			cpv_codes TEXT,
			budget_amount NUMERIC,
			deadline_date TEXT,
			published_at DATETIME,
			fetched_at DATETIME NOT NULL,
			UNIQUE (source, external_id)
		);

		CREATE TABLE IF NOT EXISTS tenders_filtered (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			raw_id INTEGER NOT NULL REFERENCES tenders_raw(id),
			run_id TEXT,
			relevance_score INTEGER NOT NULL,
			matched_keywords TEXT,
			notes TEXT,
			created_at DATETIME NOT NULL
		);

		CREATE TABLE IF NOT EXISTS alerts_sent (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filtered_id INTEGER NOT NULL REFERENCES tenders_filtered(id),
			channel TEXT NOT NULL,
			sent_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_raw_url ON tenders_raw(source, url);
		CREATE INDEX IF NOT EXISTS idx_filtered_raw ON tenders_filtered(raw_id);
		CREATE INDEX IF NOT EXISTS idx_alerts_filtered ON alerts_sent(filtered_id, channel);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) InsertRaw(ctx context.Context, records []*tender.Record) (inserted int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	for _, rec := range records {
		var exists int
		err = tx.QueryRowContext(ctx, `
			SELECT 1 FROM tenders_raw
			WHERE source = ? AND (external_id = ? OR url = ?)
			LIMIT 1
		`, rec.Source, rec.ExternalID, rec.URL).Scan(&exists)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return 0, fmt.Errorf("dedup lookup: %w", err)
		}

		fetched := rec.FetchedAt
		if fetched.IsZero() {
			fetched = s.now().UTC()
		}

		res, execErr := tx.ExecContext(ctx, `
			INSERT INTO tenders_raw (source, external_id, title, description, url, country, language,
				cpv_codes, budget_amount, deadline_date, published_at, fetched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, rec.Source, nullString(rec.ExternalID), rec.Title, rec.Description, rec.URL,
			nullString(rec.Country), nullString(rec.Language), nullString(rec.CPVCodes),
			budgetValue(rec.Budget), deadlineValue(rec.Deadline), nullTime(rec.PublishedAt), fetched)
		if execErr != nil {
			err = fmt.Errorf("insert raw %q: %w", rec.URL, execErr)
			return 0, err
		}

		id, idErr := res.LastInsertId()
		if idErr != nil {
			err = idErr
			return 0, err
		}
		rec.ID = id
		rec.FetchedAt = fetched
		inserted++
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	return inserted, nil
}

func (s *SQLite) All(ctx context.Context) (*tender.Records, error) {
	return s.queryRecords(ctx, `SELECT `+rawColumns+` FROM tenders_raw ORDER BY id`)
}

func (s *SQLite) Unscored(ctx context.Context) (*tender.Records, error) {
	return s.queryRecords(ctx, `
		SELECT `+rawColumns+` FROM tenders_raw r
		WHERE NOT EXISTS (SELECT 1 FROM tenders_filtered f WHERE f.raw_id = r.id)
		ORDER BY id
	`)
}

func (s *SQLite) Get(ctx context.Context, id int64) (*tender.Record, error) {
	records, err := s.queryRecords(ctx, `SELECT `+rawColumns+` FROM tenders_raw WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if records.Len() == 0 {
		return nil, fmt.Errorf("raw tender %d: %w", id, ErrNotFound)
	}
	return records.Items[0], nil
}

func (s *SQLite) queryRecords(ctx context.Context, query string, args ...any) (*tender.Records, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query raw tenders: %w", err)
	}
	defer rows.Close()

	records := &tender.Records{}
	for rows.Next() {
		var (
			rec                                              tender.Record
			externalID, description, country, lang, cpv, ddl sql.NullString
			budget                                           any
			published                                        sql.NullTime
		)

		if err := rows.Scan(&rec.ID, &rec.Source, &externalID, &rec.Title, &description, &rec.URL,
			&country, &lang, &cpv, &budget, &ddl, &published, &rec.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan raw tender: %w", err)
		}

		rec.ExternalID = externalID.String
		rec.Description = description.String
		rec.Country = country.String
		rec.Language = lang.String
		rec.CPVCodes = cpv.String
		rec.Budget = budgetValue(budget)
		if ddl.Valid {
			rec.Deadline = ddl.String
		}
		if published.Valid {
			t := published.Time
			rec.PublishedAt = &t
		}

		records.Items = append(records.Items, &rec)
	}

	return records, rows.Err()
}

func (s *SQLite) InsertFiltered(ctx context.Context, results []*tender.FilteredResult) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tenders_filtered (raw_id, run_id, relevance_score, matched_keywords, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	ids := make([]int64, len(results))
	created := s.now().UTC()
	for i, res := range results {
		r, execErr := stmt.ExecContext(ctx, res.RawID, nullString(res.RunID), res.Score,
			res.KeywordsString(), nullString(res.Notes), created)
		if execErr != nil {
			err = fmt.Errorf("insert filtered for raw %d: %w", res.RawID, execErr)
			return err
		}
		if ids[i], err = r.LastInsertId(); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	for i, res := range results {
		res.ID = ids[i]
		res.CreatedAt = created
	}

	return nil
}

func (s *SQLite) Filtered(ctx context.Context) (*tender.Results, error) {
	return s.queryResults(ctx, `SELECT `+filteredColumns+` FROM tenders_filtered ORDER BY id`)
}

func (s *SQLite) Unalerted(ctx context.Context, channel string) (*tender.Results, error) {
	return s.queryResults(ctx, `
		SELECT `+filteredColumns+` FROM tenders_filtered f
		WHERE NOT EXISTS (
			SELECT 1 FROM alerts_sent a WHERE a.filtered_id = f.id AND a.channel = ?
		)
		ORDER BY id
	`, channel)
}

func (s *SQLite) queryResults(ctx context.Context, query string, args ...any) (*tender.Results, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query filtered tenders: %w", err)
	}
	defer rows.Close()

	results := &tender.Results{}
	for rows.Next() {
		var (
			res                   tender.FilteredResult
			runID, matched, notes sql.NullString
		)
		if err := rows.Scan(&res.ID, &res.RawID, &runID, &res.Score, &matched, &notes, &res.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan filtered tender: %w", err)
		}
		res.RunID = runID.String
		res.MatchedKeywords = tender.SplitKeywords(matched.String)
		res.Notes = notes.String

		results.Items = append(results.Items, &res)
	}

	return results, rows.Err()
}

func (s *SQLite) UpdateNotes(ctx context.Context, filteredID int64, notes string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tenders_filtered SET notes = ? WHERE id = ?`, nullString(notes), filteredID)
	if err != nil {
		return fmt.Errorf("update notes: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("filtered tender %d: %w", filteredID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) MarkAlerted(ctx context.Context, filteredID int64, channel string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts_sent (filtered_id, channel, sent_at) VALUES (?, ?, ?)
	`, filteredID, channel, s.now().UTC())
	if err != nil {
		return fmt.Errorf("mark alerted: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil || t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
