package tender

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Record is a normalized raw tender as stored in tenders_raw.
type Record struct {
	ID          int64      `json:"id,omitempty" mapstructure:"id"`
	Source      string     `json:"source,omitempty" mapstructure:"source"`
	ExternalID  string     `json:"external_id,omitempty" mapstructure:"external_id"`
	Title       string     `json:"title,omitempty" mapstructure:"title"`
	Description string     `json:"description,omitempty" mapstructure:"description"`
	URL         string     `json:"url,omitempty" mapstructure:"url"`
	Country     string     `json:"country,omitempty" mapstructure:"country"`
	Language    string     `json:"language,omitempty" mapstructure:"language"`
	CPVCodes    string     `json:"cpv_codes,omitempty" mapstructure:"cpv_codes"`
	Budget      any        `json:"budget_amount,omitempty" mapstructure:"budget_amount"`
	Deadline    any        `json:"deadline_date,omitempty" mapstructure:"deadline_date"`
	PublishedAt *time.Time `json:"published_at,omitempty" mapstructure:"-"`
	FetchedAt   time.Time  `json:"fetched_at,omitempty" mapstructure:"-"`
}

// Records is an ordered list of raw tenders.
type Records struct {
	Items []*Record
}

func (r *Records) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Items)
}

func (r *Records) FindByID(id int64) *Record {
	for _, rec := range r.Items {
		if rec.ID == id {
			return rec
		}
	}
	return nil
}

// Text returns title and description joined by a single space.
func (rec *Record) Text() string {
	return rec.Title + " " + rec.Description
}

func (r *Records) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "tenders_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return "", err
	}
	return file.Name(), nil
}

// ReportByCountry groups short record descriptions by country code.
func (r *Records) ReportByCountry() map[string][]map[string]string {
	report := make(map[string][]map[string]string)
	for _, rec := range r.Items {
		key := strings.TrimSpace(rec.Country)
		if key == "" {
			key = "unknown"
		}
		report[key] = append(report[key], map[string]string{
			"id":       strconv.FormatInt(rec.ID, 10),
			"title":    rec.Title,
			"url":      rec.URL,
			"source":   rec.Source,
			"deadline": fmt.Sprintf("%v", valueOrEmpty(rec.Deadline)),
			"budget":   fmt.Sprintf("%v", valueOrEmpty(rec.Budget)),
		})
	}
	return report
}

func valueOrEmpty(v any) any {
	if v == nil {
		return ""
	}
	return v
}
