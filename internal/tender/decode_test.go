package tender

import (
	"errors"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestDecodeMapsUpstreamKeys(t *testing.T) {
	items := []map[string]any{
		{
			"id":            float64(99),
			"source":        "TED",
			"external_id":   float64(12345),
			"title":         "Underfloor wheel lathe",
			"link":          "https://ted.example/notice/1",
			"Country":       "de",
			"language":      "EN",
			"cpv":           []any{"42620000", " ", "43000000"},
			"budget":        "1000000",
			"deadline_date": "2030-01-31",
			"deadline":      "ignored because canonical key wins",
			"published_at":  "2025-06-01T10:00:00Z",
		},
		{
			"title":         "Office chairs",
			"url":           "/t/2",
			"budget_amount": float64(20000),
		},
	}

	records, err := Decode(items)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}

	first := records[0]
	if first.ID != 0 {
		t.Fatalf("expected upstream id to be dropped, got %d", first.ID)
	}
	if first.ExternalID != "12345" {
		t.Fatalf("unexpected external id: %q", first.ExternalID)
	}
	if first.URL != "https://ted.example/notice/1" {
		t.Fatalf("unexpected url: %q", first.URL)
	}
	if first.CPVCodes != "42620000,43000000" {
		t.Fatalf("unexpected cpv codes: %q", first.CPVCodes)
	}
	if first.Budget != "1000000" {
		t.Fatalf("unexpected budget: %#v", first.Budget)
	}
	if first.Deadline != "2030-01-31" {
		t.Fatalf("unexpected deadline: %#v", first.Deadline)
	}
	want := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	if first.PublishedAt == nil || !first.PublishedAt.Equal(want) {
		t.Fatalf("unexpected published_at: %v", first.PublishedAt)
	}

	if records[1].Budget != float64(20000) {
		t.Fatalf("unexpected budget: %#v", records[1].Budget)
	}
}

func TestDecodeRejectsBadTimes(t *testing.T) {
	_, err := Decode([]map[string]any{{"title": "x", "published_at": "yesterday"}})
	if err == nil {
		t.Fatal("expected error for malformed published_at")
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		rec     Record
		source  string
		base    string
		want    Record
		wantErr error
	}{
		{
			name: "trims and fills defaults",
			rec: Record{
				Title:    "  Wheelset lathe ",
				URL:      " https://example/ted/1 ",
				Country:  " de ",
				Language: " EN ",
				Budget:   " 100 ",
				Deadline: "  ",
			},
			source: "EMAIL_ALERT",
			want: Record{
				Source:     "EMAIL_ALERT",
				Title:      "Wheelset lathe",
				URL:        "https://example/ted/1",
				ExternalID: HashURL("https://example/ted/1"),
				Country:    "DE",
				Language:   "en",
				Budget:     "100",
			},
		},
		{
			name:   "relative url resolved against base",
			rec:    Record{Source: "PORTAL", ExternalID: "123", Title: "Bogie", URL: "/t/123", Budget: float64(5)},
			source: "LOGIN_PORTAL",
			base:   "https://tenders.example.com/search",
			want: Record{
				Source:     "PORTAL",
				ExternalID: "123",
				Title:      "Bogie",
				URL:        "https://tenders.example.com/t/123",
				Budget:     float64(5),
			},
		},
		{
			name:    "missing url",
			rec:     Record{Title: "No link"},
			wantErr: ErrMissingURL,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			rec := tt.rec
			err := Normalize(&rec, tt.source, tt.base)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !reflect.DeepEqual(rec, tt.want) {
				t.Fatalf("expected %+v, got %+v", tt.want, rec)
			}
		})
	}
}

func TestHashURL(t *testing.T) {
	const want = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"
	if got := HashURL(""); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
	if HashURL("https://a") == HashURL("https://b") {
		t.Fatal("expected different hashes")
	}
}

func TestKeywordsRoundTripStoredForm(t *testing.T) {
	res := &FilteredResult{MatchedKeywords: []string{"underfloor wheel lathe", "Radsatzdrehmaschine"}}
	if got := res.KeywordsString(); got != "underfloor wheel lathe, Radsatzdrehmaschine" {
		t.Fatalf("unexpected stored form: %q", got)
	}
	if got := SplitKeywords(res.KeywordsString()); !reflect.DeepEqual(got, res.MatchedKeywords) {
		t.Fatalf("unexpected split: %v", got)
	}
	if got := SplitKeywords(""); got != nil {
		t.Fatalf("expected nil for empty stored form, got %v", got)
	}
}

func TestRecordsReportAndDump(t *testing.T) {
	records := &Records{Items: []*Record{
		{ID: 1, Title: "Lathe", Country: "DE", Budget: 100},
		{ID: 2, Title: "Bogie", Country: "DE"},
		{ID: 3, Title: "Chairs"},
	}}

	report := records.ReportByCountry()
	if len(report["DE"]) != 2 || len(report["unknown"]) != 1 {
		t.Fatalf("unexpected report: %v", report)
	}
	if report["DE"][0]["budget"] != "100" || report["DE"][1]["budget"] != "" {
		t.Fatalf("unexpected budget values: %v", report["DE"])
	}

	if records.FindByID(2).Title != "Bogie" || records.FindByID(42) != nil {
		t.Fatal("unexpected FindByID result")
	}

	name, err := records.DumpToTmpFile()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer os.Remove(name)

	info, err := os.Stat(name)
	if err != nil || info.Size() == 0 {
		t.Fatalf("expected non-empty dump file, got %v, %v", info, err)
	}
}
