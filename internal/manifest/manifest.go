// Package manifest maps published items into the Content Studio bulk
// import CSV.
package manifest

import (
	"bytes"
	"encoding/csv"
	"io"
	"sort"
	"time"

	"postcraft/internal/caption"
	"postcraft/internal/pkg/errors"
	"postcraft/internal/publisher"
)

// Header is the fixed column order expected by the scheduler.
var Header = []string{
	"Post date and time",
	"Post caption",
	"Image URLs",
	"Link",
	"First Comment",
	"Include Link in Caption",
	"Video URL",
	"Post Type",
	"Title",
}

// Defaults fills the columns that are constant across a batch.
type Defaults struct {
	IncludeLink  string
	PostType     string
	Link         string
	FirstComment string
}

// Record pairs an item with its publish outcome.
type Record struct {
	Item    caption.Item
	Publish publisher.Result
}

// Row is one exported line. Date, caption and title are filled in by a
// human downstream and stay empty here.
type Row struct {
	PostDateTime string `json:"post_date_time"`
	Caption      string `json:"caption"`
	ImageURL     string `json:"image_url"`
	Link         string `json:"link"`
	FirstComment string `json:"first_comment"`
	IncludeLink  string `json:"include_link"`
	VideoURL     string `json:"video_url"`
	PostType     string `json:"post_type"`
	Title        string `json:"title"`
}

// Values returns the row in Header order.
func (r Row) Values() []string {
	return []string{
		r.PostDateTime,
		r.Caption,
		r.ImageURL,
		r.Link,
		r.FirstComment,
		r.IncludeLink,
		r.VideoURL,
		r.PostType,
		r.Title,
	}
}

type Exporter struct {
	defaults Defaults
}

func New(d Defaults) *Exporter {
	if d.IncludeLink == "" {
		d.IncludeLink = "No"
	}
	if d.PostType == "" {
		d.PostType = "Feed"
	}
	return &Exporter{defaults: d}
}

// Export keeps only records with a published URL, ordered by position.
// It fails with MANIFEST_EMPTY rather than returning a header-only file.
func (e *Exporter) Export(records []Record) ([]Row, error) {
	ok := make([]Record, 0, len(records))
	for _, r := range records {
		if r.Publish.URL != "" {
			ok = append(ok, r)
		}
	}
	if len(ok) == 0 {
		err := errors.New(errors.CodeManifestEmpty, "no published items to export")
		err.Op = "manifest.export"
		return nil, err.WithField("records", len(records))
	}

	sort.SliceStable(ok, func(i, j int) bool { return ok[i].Item.Position < ok[j].Item.Position })

	rows := make([]Row, len(ok))
	for i, r := range ok {
		rows[i] = Row{
			ImageURL:     r.Publish.URL,
			Link:         e.defaults.Link,
			FirstComment: e.defaults.FirstComment,
			IncludeLink:  e.defaults.IncludeLink,
			PostType:     e.defaults.PostType,
		}
	}
	return rows, nil
}

// CSV is Export followed by WriteCSV.
func (e *Exporter) CSV(records []Record) ([]byte, error) {
	rows, err := e.Export(records)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := WriteCSV(&buf, rows); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteCSV writes the header and rows with standard CSV quoting.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return errors.Wrap(err, "manifest.write", "write header")
	}
	for _, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return errors.Wrap(err, "manifest.write", "write row")
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return errors.Wrap(err, "manifest.write", "flush")
	}
	return nil
}

// FileName is the suggested download name for a manifest exported at t.
func FileName(t time.Time) string {
	return "content_studio_export_" + t.UTC().Format("2006-01-02") + ".csv"
}
