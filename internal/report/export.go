package report

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// Format is an output encoding of a report.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
	FormatJSON Format = "json"
)

// SupportedFormats lists all available output formats.
var SupportedFormats = []Format{FormatCSV, FormatXLSX, FormatPDF, FormatJSON}

// ParseFormat parses a format name. Empty means CSV.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatCSV, nil
	case FormatCSV, FormatXLSX, FormatPDF, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unsupported format: %s (supported: %v)", s, SupportedFormats)
	}
}

// ContentType returns the MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatPDF:
		return "application/pdf"
	case FormatJSON:
		return "application/json"
	default:
		return "text/csv"
	}
}

// FileName returns the download name of a report in this format.
func (f Format) FileName(reportID string) string {
	return reportID + "." + string(f)
}

// Document is a finished report ready to encode.
type Document struct {
	ReportID         string    `json:"report_id"`
	ReferenceInstant time.Time `json:"reference_instant"`
	Rows             []Row     `json:"rows"`
}

// Encode renders doc in the given format.
func Encode(doc Document, f Format) ([]byte, error) {
	switch f {
	case FormatCSV:
		var buf bytes.Buffer
		if err := WriteCSV(&buf, doc.Rows); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case FormatXLSX:
		return BuildXLSX(doc)
	case FormatPDF:
		return BuildPDF(doc)
	case FormatJSON:
		return json.MarshalIndent(doc, "", "  ")
	default:
		return nil, fmt.Errorf("unsupported format: %s", f)
	}
}

// WriteCSV writes the header and one line per row. Only the seven report
// columns are written; partial-failure markers are not part of the CSV.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.Record()); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// BuildXLSX renders the report as a workbook with a summary sheet and a
// stores sheet.
func BuildXLSX(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	storesSheet := "stores"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(storesSheet); err != nil {
		return nil, err
	}

	partial := 0
	for _, r := range doc.Rows {
		if r.PartialFailure != "" {
			partial++
		}
	}

	_ = f.SetCellValue(summarySheet, "A1", "Store Uptime Report")
	_ = f.SetCellValue(summarySheet, "A3", "Report ID")
	_ = f.SetCellValue(summarySheet, "B3", doc.ReportID)
	_ = f.SetCellValue(summarySheet, "A4", "Reference instant (UTC)")
	_ = f.SetCellValue(summarySheet, "B4", doc.ReferenceInstant.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A5", "Stores")
	_ = f.SetCellValue(summarySheet, "B5", len(doc.Rows))
	_ = f.SetCellValue(summarySheet, "A6", "Stores with partial failure")
	_ = f.SetCellValue(summarySheet, "B6", partial)
	_ = f.SetCellValue(summarySheet, "A8", "Hour and day values are minutes, week values are hours.")

	header := append(append([]string{}, Columns...), "partial_failure")
	for i, name := range header {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		_ = f.SetCellValue(storesSheet, cell, name)
	}
	for i, r := range doc.Rows {
		values := []any{
			r.StoreID,
			r.UptimeLastHour, r.UptimeLastDay, r.UptimeLastWeek,
			r.DowntimeLastHour, r.DowntimeLastDay, r.DowntimeLastWeek,
			r.PartialFailure,
		}
		for j, v := range values {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return nil, err
			}
			_ = f.SetCellValue(storesSheet, cell, v)
		}
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildPDF renders the report as a landscape table.
func BuildPDF(doc Document) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Store Uptime Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Report: %s", doc.ReportID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Reference instant: %s", doc.ReferenceInstant.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Stores: %d", len(doc.Rows)))
	pdf.Ln(5)
	pdf.Cell(0, 6, "Hour and day values are minutes, week values are hours.")
	pdf.Ln(8)

	widths := []float64{62, 26, 26, 26, 28, 28, 28, 53}
	titles := []string{"Store", "Up 1h", "Up 1d", "Up 1w", "Down 1h", "Down 1d", "Down 1w", "Note"}

	pdf.SetFont("Arial", "B", 9)
	for i, title := range titles {
		pdf.CellFormat(widths[i], 6, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 8)
	for _, r := range doc.Rows {
		values := []string{
			fmt.Sprint(r.UptimeLastHour), fmt.Sprint(r.UptimeLastDay), fmt.Sprint(r.UptimeLastWeek),
			fmt.Sprint(r.DowntimeLastHour), fmt.Sprint(r.DowntimeLastDay), fmt.Sprint(r.DowntimeLastWeek),
		}
		pdf.CellFormat(widths[0], 6, truncate(r.StoreID, 40), "1", 0, "L", false, 0, "")
		for i, v := range values {
			pdf.CellFormat(widths[i+1], 6, v, "1", 0, "R", false, 0, "")
		}
		note := ""
		if r.PartialFailure != "" {
			note = truncate(r.PartialFailure, 34)
		}
		pdf.CellFormat(widths[7], 6, note, "1", 0, "L", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
