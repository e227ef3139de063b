package manifest

import (
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"postcraft/internal/caption"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/publisher"
)

func records(n int, failAt ...int) []Record {
	failed := map[int]bool{}
	for _, i := range failAt {
		failed[i] = true
	}
	out := make([]Record, n)
	for i := 0; i < n; i++ {
		out[i].Item = caption.Item{ID: string(rune('a' + i)), Position: i}
		if failed[i] {
			out[i].Publish = publisher.Result{ItemID: out[i].Item.ID, Err: errors.New(errors.CodePublish, "boom")}
			continue
		}
		out[i].Publish = publisher.Result{ItemID: out[i].Item.ID, URL: "https://cdn.test/" + out[i].Item.ID + ".jpg"}
	}
	return out
}

func TestExportFiltersFailures(t *testing.T) {
	rows, err := New(Defaults{}).Export(records(5, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 4 {
		t.Fatalf("expected 4 rows, got %d", len(rows))
	}
	for _, r := range rows {
		if r.ImageURL == "https://cdn.test/c.jpg" {
			t.Error("failed item must not be exported")
		}
		if r.IncludeLink != "No" || r.PostType != "Feed" {
			t.Errorf("unexpected defaults %+v", r)
		}
		if r.Caption != "" || r.PostDateTime != "" || r.VideoURL != "" || r.Title != "" {
			t.Errorf("expected empty manual columns, got %+v", r)
		}
	}
}

func TestExportOrdersByPosition(t *testing.T) {
	recs := records(3)
	recs[0], recs[2] = recs[2], recs[0]
	rows, err := New(Defaults{}).Export(recs)
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].ImageURL != "https://cdn.test/a.jpg" || rows[2].ImageURL != "https://cdn.test/c.jpg" {
		t.Errorf("rows not in position order: %+v", rows)
	}
}

func TestExportEmpty(t *testing.T) {
	tests := []struct {
		name string
		recs []Record
	}{
		{"no records", nil},
		{"all failed", records(2, 0, 1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Defaults{}).Export(tt.recs)
			if !errors.IsCode(err, errors.CodeManifestEmpty) {
				t.Errorf("expected MANIFEST_EMPTY, got %v", err)
			}
		})
	}
}

func TestCSV(t *testing.T) {
	ex := New(Defaults{Link: "https://example.com/a,b", FirstComment: "Say \"hi\""})
	out, err := ex.CSV(records(2))
	if err != nil {
		t.Fatal(err)
	}

	lines := strings.Split(strings.TrimRight(string(out), "\n"), "\n")
	if lines[0] != strings.Join(Header, ",") {
		t.Errorf("unexpected header %q", lines[0])
	}

	parsed, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid csv: %v", err)
	}
	if len(parsed) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(parsed))
	}
	row := parsed[1]
	if len(row) != len(Header) {
		t.Fatalf("expected %d columns, got %d", len(Header), len(row))
	}
	if row[2] != "https://cdn.test/a.jpg" || row[3] != "https://example.com/a,b" || row[4] != `Say "hi"` {
		t.Errorf("unexpected row %q", row)
	}
	if row[5] != "No" || row[7] != "Feed" {
		t.Errorf("unexpected defaults %q", row)
	}
}

func TestFileName(t *testing.T) {
	got := FileName(time.Date(2024, 1, 2, 23, 0, 0, 0, time.UTC))
	if got != "content_studio_export_2024-01-02.csv" {
		t.Errorf("unexpected name %q", got)
	}
}
