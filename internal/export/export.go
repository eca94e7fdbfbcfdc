// Package export renders a session's results as CSV, Excel or PDF.
package export

import (
	"context"
	"fmt"
	"strings"

	"github.com/sykell/url-scraper/internal/apperr"
	"github.com/sykell/url-scraper/internal/db"
)

type Format string

const (
	FormatCSV   Format = "csv"
	FormatExcel Format = "excel"
	FormatPDF   Format = "pdf"
)

// ParseFormat accepts csv, excel (or xlsx) and pdf, case-insensitively
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "csv":
		return FormatCSV, nil
	case "excel", "xlsx":
		return FormatExcel, nil
	case "pdf":
		return FormatPDF, nil
	default:
		return "", apperr.Invalid("unsupported export format %q", s)
	}
}

// SessionSource loads a session and its results in input order
type SessionSource interface {
	Get(ctx context.Context, id uint) (*db.Session, []db.ScrapeResult, error)
}

// Document is a rendered export ready to be sent to a client
type Document struct {
	Filename    string
	ContentType string
	Body        []byte
}

type writeFunc func(session *db.Session, rows []Row) ([]byte, error)

type formatEntry struct {
	ext         string
	contentType string
	write       writeFunc
}

// Renderer turns stored sessions into documents
type Renderer struct {
	source  SessionSource
	formats map[Format]formatEntry
}

// Option configures a Renderer
type Option func(*pdfOptions)

// WithPDFCompression toggles stream compression in PDF output. It is on by
// default.
func WithPDFCompression(on bool) Option {
	return func(o *pdfOptions) { o.compress = on }
}

// NewRenderer creates a renderer reading from source
func NewRenderer(source SessionSource, opts ...Option) *Renderer {
	pdfOpts := pdfOptions{compress: true}
	for _, opt := range opts {
		opt(&pdfOpts)
	}

	return &Renderer{
		source: source,
		formats: map[Format]formatEntry{
			FormatCSV: {
				ext:         "csv",
				contentType: "text/csv; charset=utf-8",
				write:       writeCSV,
			},
			FormatExcel: {
				ext:         "xlsx",
				contentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
				write:       writeExcel,
			},
			FormatPDF: {
				ext:         "pdf",
				contentType: "application/pdf",
				write:       pdfOpts.write,
			},
		},
	}
}

// Render produces the export of a session. Unknown formats fail before the
// session is read.
func (r *Renderer) Render(ctx context.Context, sessionID uint, format string) (*Document, error) {
	f, err := ParseFormat(format)
	if err != nil {
		return nil, err
	}
	entry := r.formats[f]

	session, results, err := r.source.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	body, err := entry.write(session, Rows(results))
	if err != nil {
		return nil, fmt.Errorf("render %s export of session %d: %w", f, sessionID, err)
	}

	return &Document{
		Filename:    fmt.Sprintf("session_%d.%s", sessionID, entry.ext),
		ContentType: entry.contentType,
		Body:        body,
	}, nil
}
