package export

import (
	"strconv"
	"time"

	"github.com/sykell/url-scraper/internal/db"
)

// Columns is the header shared by every export format
var Columns = []string{"url", "status", "word_count", "char_count", "scraped_at", "error_message"}

// Row is one result line of an export. Counts are nil for rows without
// content.
type Row struct {
	URL          string
	Status       string
	WordCount    *int
	CharCount    *int
	ScrapedAt    *time.Time
	ErrorMessage string
}

// Rows converts stored results, already in input order, to export rows
func Rows(results []db.ScrapeResult) []Row {
	rows := make([]Row, 0, len(results))
	for _, r := range results {
		row := Row{
			URL:       r.URL,
			Status:    string(r.Status),
			WordCount: r.WordCount,
			CharCount: r.CharCount,
			ScrapedAt: r.ScrapedAt,
		}
		if r.ErrorMessage != nil {
			row.ErrorMessage = *r.ErrorMessage
		}
		rows = append(rows, row)
	}
	return rows
}

// Strings renders the row as text cells in Columns order
func (r Row) Strings() []string {
	return []string{
		r.URL,
		r.Status,
		formatInt(r.WordCount),
		formatInt(r.CharCount),
		formatTime(r.ScrapedAt),
		r.ErrorMessage,
	}
}

// Cells is like Strings but keeps counts numeric for spreadsheets
func (r Row) Cells() []interface{} {
	cells := make([]interface{}, len(Columns))
	for i, s := range r.Strings() {
		cells[i] = s
	}
	if r.WordCount != nil {
		cells[2] = *r.WordCount
	}
	if r.CharCount != nil {
		cells[3] = *r.CharCount
	}
	return cells
}

func formatInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
