package export

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"

	"github.com/sykell/url-scraper/internal/db"
)

const excelSheet = "Results"

func writeCSV(_ *db.Session, rows []Row) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(Columns); err != nil {
		return nil, err
	}
	for _, row := range rows {
		if err := w.Write(row.Strings()); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeExcel(_ *db.Session, rows []Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", excelSheet); err != nil {
		return nil, err
	}

	header := make([]interface{}, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := f.SetSheetRow(excelSheet, "A1", &header); err != nil {
		return nil, err
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		cells := row.Cells()
		if err := f.SetSheetRow(excelSheet, cell, &cells); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(excelSheet, "A", "A", 60); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(excelSheet, "E", "F", 28); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type pdfOptions struct {
	compress bool
}

// column widths in mm on landscape A4 with 10mm margins
var pdfWidths = []float64{90, 20, 22, 22, 40, 83}

const (
	pdfRowHeight  = 7
	pdfLineHeight = 4.5
)

func (o pdfOptions) write(session *db.Session, rows []Row) ([]byte, error) {
	pdf := fpdf.New("L", "mm", "A4", "")
	pdf.SetCompression(o.compress)
	pdf.SetMargins(10, 10, 10)
	pdf.SetAutoPageBreak(true, 12)
	pdf.SetTitle(session.Name, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetHeaderFunc(func() {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, tr(fmt.Sprintf("Session %d: %s", session.ID, session.Name)), "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(230, 230, 230)
		for i, c := range Columns {
			pdf.CellFormat(pdfWidths[i], pdfRowHeight, c, "1", 0, "L", true, 0, "")
		}
		pdf.Ln(-1)
	})

	pdf.AddPage()
	pdf.SetFont("Helvetica", "", 8)
	for _, row := range rows {
		writePDFRow(pdf, tr, row.Strings())
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writePDFRow draws one table row. Long values wrap inside their cell so
// every value is printed in full.
func writePDFRow(pdf *fpdf.Fpdf, tr func(string) string, values []string) {
	cells := make([][]string, len(values))
	lines := 1
	for i, v := range values {
		cells[i] = wrap(pdf, tr(v), pdfWidths[i]-2)
		if len(cells[i]) > lines {
			lines = len(cells[i])
		}
	}
	height := float64(lines) * pdfLineHeight
	if height < pdfRowHeight {
		height = pdfRowHeight
	}

	_, pageHeight := pdf.GetPageSize()
	_, breakMargin := pdf.GetAutoPageBreak()
	if pdf.GetY()+height > pageHeight-breakMargin {
		pdf.AddPage()
	}

	left, y := pdf.GetX(), pdf.GetY()
	x := left
	for i, cell := range cells {
		pdf.Rect(x, y, pdfWidths[i], height, "D")
		for n, line := range cell {
			pdf.SetXY(x, y+float64(n)*pdfLineHeight)
			pdf.CellFormat(pdfWidths[i], pdfLineHeight, line, "", 0, "L", false, 0, "")
		}
		x += pdfWidths[i]
	}
	pdf.SetXY(left, y+height)
}

// wrap splits s into lines no wider than w. s is already in the font's
// single-byte encoding, so it is split by byte.
func wrap(pdf *fpdf.Fpdf, s string, w float64) []string {
	if s == "" {
		return []string{""}
	}

	var lines []string
	for len(s) > 0 {
		end := len(s)
		for end > 1 && pdf.GetStringWidth(s[:end]) > w {
			end--
		}
		// Prefer breaking after a space when the line has one.
		if end < len(s) {
			if sp := strings.LastIndexByte(s[:end], ' '); sp > 0 {
				end = sp + 1
			}
		}
		lines = append(lines, s[:end])
		s = s[end:]
	}
	return lines
}
