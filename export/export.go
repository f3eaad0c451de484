// Package export serializes stored analyses for download.
package export

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/rankpro/backend/analyzer"
)

// Format is an export file format
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
	FormatXLSX Format = "xlsx"
)

// ErrUnsupportedFormat is returned by ParseFormat for unknown formats
var ErrUnsupportedFormat = errors.New("unsupported export format")

// ParseFormat accepts csv, json and xlsx in any case
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatXLSX:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
}

// ContentType returns the MIME type of the format
func (f Format) ContentType() string {
	switch f {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/json; charset=utf-8"
	}
}

// Filename returns the attachment name for an export taken at t
func (f Format) Filename(t time.Time) string {
	return fmt.Sprintf("analyses-%s.%s", t.UTC().Format("20060102-150405"), f)
}

// column is one exported field
type column struct {
	name  string
	value func(r *analyzer.AnalysisRecord) interface{}
}

const topKeywordCount = 5

var columns = []column{
	{"id", func(r *analyzer.AnalysisRecord) interface{} { return r.ID }},
	{"createdAt", func(r *analyzer.AnalysisRecord) interface{} { return r.CreatedAt.UTC().Format(time.RFC3339) }},
	{"url", func(r *analyzer.AnalysisRecord) interface{} { return r.URL }},
	{"status", func(r *analyzer.AnalysisRecord) interface{} { return r.Status }},
	{"responseTimeMs", func(r *analyzer.AnalysisRecord) interface{} { return r.ResponseTimeMs }},
	{"totalBytes", func(r *analyzer.AnalysisRecord) interface{} { return r.TotalBytes }},
	{"title", func(r *analyzer.AnalysisRecord) interface{} { return deref(r.Title) }},
	{"metaDescription", func(r *analyzer.AnalysisRecord) interface{} { return deref(r.MetaDescription) }},
	{"overallScore", func(r *analyzer.AnalysisRecord) interface{} { return r.Overall }},
	{"seoScore", func(r *analyzer.AnalysisRecord) interface{} { return r.SEO }},
	{"brandScore", func(r *analyzer.AnalysisRecord) interface{} { return r.Brand }},
	{"socialScore", func(r *analyzer.AnalysisRecord) interface{} { return r.Social }},
	{"performanceScore", func(r *analyzer.AnalysisRecord) interface{} { return r.Performance }},
	{"wordCount", func(r *analyzer.AnalysisRecord) interface{} { return r.WordCount }},
	{"h1Count", func(r *analyzer.AnalysisRecord) interface{} { return r.H1Count }},
	{"imagesTotal", func(r *analyzer.AnalysisRecord) interface{} { return r.ImagesTotal }},
	{"imagesWithAlt", func(r *analyzer.AnalysisRecord) interface{} { return r.ImagesWithAlt }},
	{"outboundLinks", func(r *analyzer.AnalysisRecord) interface{} { return r.OutboundLinks }},
	{"missingMetaDescriptions", func(r *analyzer.AnalysisRecord) interface{} { return r.Issues.MissingMetaDescriptions }},
	{"slowLoadingPages", func(r *analyzer.AnalysisRecord) interface{} { return r.Issues.SlowLoadingPages }},
	{"missingAltTags", func(r *analyzer.AnalysisRecord) interface{} { return r.Issues.MissingAltTags }},
	{"organicTraffic", func(r *analyzer.AnalysisRecord) interface{} { return r.KPIs.OrganicTraffic }},
	{"keywordRankings", func(r *analyzer.AnalysisRecord) interface{} { return r.KPIs.KeywordRankings }},
	{"backlinks", func(r *analyzer.AnalysisRecord) interface{} { return r.KPIs.Backlinks }},
	{"topKeywords", func(r *analyzer.AnalysisRecord) interface{} { return topKeywords(r.Keywords) }},
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func topKeywords(keywords []analyzer.Keyword) string {
	n := min(len(keywords), topKeywordCount)
	terms := make([]string, 0, n)
	for _, k := range keywords[:n] {
		terms = append(terms, k.Keyword)
	}
	return strings.Join(terms, ";")
}

func formatValue(v interface{}) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	default:
		return fmt.Sprint(val)
	}
}

// Write serializes records to w in the given format
func Write(w io.Writer, format Format, records []*analyzer.AnalysisRecord) error {
	switch format {
	case FormatCSV:
		return writeCSV(w, records)
	case FormatJSON:
		return writeJSON(w, records)
	case FormatXLSX:
		return writeXLSX(w, records)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func writeCSV(w io.Writer, records []*analyzer.AnalysisRecord) error {
	writer := csv.NewWriter(w)

	header := make([]string, len(columns))
	for i, col := range columns {
		header[i] = col.name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	row := make([]string, len(columns))
	for _, r := range records {
		for i, col := range columns {
			row[i] = formatValue(col.value(r))
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

func writeJSON(w io.Writer, records []*analyzer.AnalysisRecord) error {
	if records == nil {
		records = []*analyzer.AnalysisRecord{}
	}
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(records)
}

const sheetName = "Analyses"

func writeXLSX(w io.Writer, records []*analyzer.AnalysisRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(0)

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"1E88E5"}},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheetName, cell, col.name)
		f.SetCellStyle(sheetName, cell, cell, headerStyle)

		colName, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheetName, colName, colName, float64(max(15, min(len(col.name)+5, 50))))
	}

	for rowIdx, r := range records {
		for i, col := range columns {
			cell, _ := excelize.CoordinatesToCellName(i+1, rowIdx+2)
			if err := f.SetCellValue(sheetName, cell, col.value(r)); err != nil {
				return fmt.Errorf("failed to write cell %s: %w", cell, err)
			}
		}
	}

	lastCol, _ := excelize.ColumnNumberToName(len(columns))
	f.AutoFilter(sheetName, fmt.Sprintf("A1:%s%d", lastCol, len(records)+1), nil)

	f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}
