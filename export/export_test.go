package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rankpro/backend/analyzer"
)

func sampleRecords() []*analyzer.AnalysisRecord {
	title := "Example, \"quoted\" title"
	return []*analyzer.AnalysisRecord{
		{
			ID:        "rec-2",
			CreatedAt: time.Date(2024, 5, 2, 10, 0, 0, 0, time.UTC),
			URL:       "https://example.com",
			FetchMeta: analyzer.FetchMeta{Status: 200, ResponseTimeMs: 150, TotalBytes: 1200},
			Signals:   analyzer.Signals{Title: &title, WordCount: 50, H1Count: 1},
			Scores:    analyzer.Scores{Overall: 58, SEO: 40, Brand: 50, Social: 50, Performance: 90},
			Keywords: []analyzer.Keyword{
				{Keyword: "example"}, {Keyword: "domain"}, {Keyword: "use"},
				{Keyword: "illustrative"}, {Keyword: "documents"}, {Keyword: "sixth"},
			},
			Issues: analyzer.Issues{MissingMetaDescriptions: 1},
			KPIs:   analyzer.KPIs{SEOScore: 40, OrganicTraffic: 20, KeywordRankings: 6},
		},
		{
			ID:        "rec-1",
			CreatedAt: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC),
			URL:       "https://other.test",
		},
	}
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": FormatCSV, "JSON": FormatJSON, " xlsx ": FormatXLSX} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	_, err := ParseFormat("pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestFormatMetadata(t *testing.T) {
	at := time.Date(2024, 5, 2, 10, 30, 0, 0, time.UTC)
	assert.Equal(t, "analyses-20240502-103000.csv", FormatCSV.Filename(at))
	assert.Equal(t, "text/csv; charset=utf-8", FormatCSV.ContentType())
	assert.Contains(t, FormatXLSX.ContentType(), "spreadsheetml")
	assert.Contains(t, FormatJSON.ContentType(), "application/json")
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, sampleRecords()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	header := rows[0]
	assert.Equal(t, "id", header[0])
	assert.Len(t, header, len(columns))

	index := func(name string) int {
		for i, h := range header {
			if h == name {
				return i
			}
		}
		t.Fatalf("missing column %s", name)
		return -1
	}

	first := rows[1]
	assert.Equal(t, "rec-2", first[index("id")])
	assert.Equal(t, "2024-05-02T10:00:00Z", first[index("createdAt")])
	assert.Equal(t, "Example, \"quoted\" title", first[index("title")])
	assert.Equal(t, "58", first[index("overallScore")])
	assert.Equal(t, "150", first[index("responseTimeMs")])
	assert.Equal(t, "example;domain;use;illustrative;documents", first[index("topKeywords")])

	second := rows[2]
	assert.Equal(t, "", second[index("title")])
	assert.Equal(t, "", second[index("topKeywords")])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatCSV, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatJSON, sampleRecords()))

	var decoded []map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "rec-2", decoded[0]["id"])
	assert.Equal(t, float64(58), decoded[0]["overallScore"])
	assert.Nil(t, decoded[1]["title"])

	buf.Reset()
	require.NoError(t, Write(&buf, FormatJSON, nil))
	assert.JSONEq(t, `[]`, buf.String())
}

func TestWriteXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, FormatXLSX, sampleRecords()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Analyses"}, f.GetSheetList())

	rows, err := f.GetRows("Analyses")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "id", rows[0][0])
	assert.Equal(t, "rec-2", rows[1][0])
	assert.Equal(t, "https://other.test", rows[2][2])

	overall, err := f.GetCellValue("Analyses", "I2")
	require.NoError(t, err)
	assert.Equal(t, "58", overall)
}

func TestWriteUnsupported(t *testing.T) {
	var buf bytes.Buffer
	err := Write(&buf, Format("pdf"), sampleRecords())
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Zero(t, buf.Len())
}
