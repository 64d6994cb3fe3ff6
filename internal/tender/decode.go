package tender

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// ErrMissingURL is returned by Normalize for records without a link.
var ErrMissingURL = errors.New("tender url is required")

// Short keys used by alert mails and portal scrapers.
var aliases = map[string]string{
	"budget":   "budget_amount",
	"deadline": "deadline_date",
	"cpv":      "cpv_codes",
	"link":     "url",
}

// Decode turns loosely typed upstream items into records.
func Decode(items []map[string]any) ([]*Record, error) {
	records := make([]*Record, 0, len(items))
	for i, item := range items {
		rec := &Record{}

		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			Result:           rec,
		})
		if err != nil {
			return nil, fmt.Errorf("creating decoder: %w", err)
		}

		if err := decoder.Decode(prepare(item)); err != nil {
			return nil, fmt.Errorf("decoding item %d: %w", i, err)
		}

		if raw, ok := item["published_at"]; ok {
			published, err := parseTime(raw)
			if err != nil {
				return nil, fmt.Errorf("decoding item %d: published_at: %w", i, err)
			}
			rec.PublishedAt = published
		}

		rec.ID = 0
		records = append(records, rec)
	}

	return records, nil
}

func prepare(item map[string]any) map[string]any {
	out := make(map[string]any, len(item))
	for k, v := range item {
		key := strings.ToLower(strings.TrimSpace(k))
		if canonical, ok := aliases[key]; ok {
			if _, exists := item[canonical]; exists {
				continue
			}
			key = canonical
		}
		if key == "cpv_codes" {
			v = joinList(v)
		}
		out[key] = v
	}
	return out
}

func joinList(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}
	parts := make([]string, 0, len(list))
	for _, item := range list {
		s := strings.TrimSpace(fmt.Sprintf("%v", item))
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ",")
}

func parseTime(v any) (*time.Time, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case time.Time:
		return &val, nil
	case string:
		val = strings.TrimSpace(val)
		if val == "" {
			return nil, nil
		}
		t, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return nil, err
		}
		return &t, nil
	default:
		return nil, fmt.Errorf("unsupported time value %T", v)
	}
}

// Normalize cleans up a decoded record in place. source fills an empty
// Source, base resolves relative URLs. A missing external id is derived
// from the URL.
func Normalize(rec *Record, source, base string) error {
	rec.Source = strings.TrimSpace(rec.Source)
	if rec.Source == "" {
		rec.Source = strings.TrimSpace(source)
	}
	rec.Title = strings.TrimSpace(rec.Title)
	rec.Description = strings.TrimSpace(rec.Description)
	rec.Country = strings.ToUpper(strings.TrimSpace(rec.Country))
	rec.Language = strings.ToLower(strings.TrimSpace(rec.Language))
	rec.CPVCodes = strings.TrimSpace(rec.CPVCodes)
	rec.Budget = trimValue(rec.Budget)
	rec.Deadline = trimValue(rec.Deadline)

	link, err := resolveURL(strings.TrimSpace(rec.URL), strings.TrimSpace(base))
	if err != nil {
		return err
	}
	if link == "" {
		return ErrMissingURL
	}
	rec.URL = link

	rec.ExternalID = strings.TrimSpace(rec.ExternalID)
	if rec.ExternalID == "" {
		rec.ExternalID = HashURL(rec.URL)
	}

	return nil
}

// HashURL returns the hex sha256 of the url.
func HashURL(link string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(link)))
}

func resolveURL(link, base string) (string, error) {
	if link == "" || base == "" {
		return link, nil
	}

	ref, err := url.Parse(link)
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", link, err)
	}
	if ref.IsAbs() {
		return link, nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", base, err)
	}

	return baseURL.ResolveReference(ref).String(), nil
}

func trimValue(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return s
}
