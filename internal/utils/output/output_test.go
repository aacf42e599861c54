package output

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/law-makers/cvpress/internal/engine/extract"
	"github.com/law-makers/cvpress/pkg/models"
)

var records = []extract.Record{
	{ID: 1, Content: "Go Developer, Acme"},
	{ID: 2, Content: "Line one\nline \"two\""},
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, records, false))

	var resp models.ScrapeResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, 2, resp.TotalJobs)
	assert.Equal(t, "Go Developer, Acme", resp.Jobs[0].Content)
}

func TestWriteJSONEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, nil, false))
	assert.Contains(t, buf.String(), `"jobs":[]`)
}

func TestWriteCSVQuotesContent(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"id", "content"}, rows[0])
	assert.Equal(t, []string{"2", "Line one\nline \"two\""}, rows[2])
}

func TestWriteMarkdown(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMarkdown(&buf, "Jobs", records[:1]))
	assert.Equal(t, "# Jobs (1)\n\n## 1\n\nGo Developer, Acme\n", buf.String())
}

func TestSaveByExtension(t *testing.T) {
	dir := t.TempDir()
	for name, want := range map[string]string{
		"out/jobs.csv":  "id,content",
		"jobs.md":       "# Jobs (2)",
		"jobs.json":     `"totalJobs": 2`,
		"jobs.anything": `"success": true`,
	} {
		path := filepath.Join(dir, name)
		require.NoError(t, Save(path, records), name)
		data, err := os.ReadFile(path)
		require.NoError(t, err)
		assert.Contains(t, string(data), want, name)
	}
}
