package ci

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonpool "github.com/parallaxworks/parallax/pkg/json"
)

func sampleReport() *Report {
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &Report{
		Pipeline:    "connector-selection",
		GitBranch:   "feature/source-amazon-ads",
		GitRevision: "0123456789abcdef0123456789abcdef01234567",
		StartedAt:   started,
		EndedAt:     started.Add(90 * time.Second),
		Success:     true,
		Connectors: []ConnectorResult{
			{TechnicalName: "source-amazon-ads", Version: "3.4.1", Success: true, DurationSeconds: 88.2},
		},
	}
}

func TestReportObjectKeys(t *testing.T) {
	report := sampleReport()

	assert.Equal(t,
		"reports/feature/source-amazon-ads/0123456789abcdef0123456789abcdef01234567.json.gz",
		report.ObjectKey("reports"))
	assert.Equal(t,
		"reports/feature/source-amazon-ads/latest.json.gz",
		report.LatestKey("reports"))
}

func TestReportBytesGzippedJSON(t *testing.T) {
	payload, err := sampleReport().Bytes()
	require.NoError(t, err)

	reader, err := gzip.NewReader(bytes.NewReader(payload))
	require.NoError(t, err)
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	require.NoError(t, err)

	var decoded Report
	require.NoError(t, jsonpool.Unmarshal(raw, &decoded))
	assert.Equal(t, "connector-selection", decoded.Pipeline)
	assert.Equal(t, "feature/source-amazon-ads", decoded.GitBranch)
	assert.True(t, decoded.Success)
	require.Len(t, decoded.Connectors, 1)
	assert.Equal(t, "source-amazon-ads", decoded.Connectors[0].TechnicalName)
}
