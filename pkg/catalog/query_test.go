package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adsDocument() map[string]interface{} {
	return map[string]interface{}{
		"data": map[string]interface{}{
			"name":           "Amazon Ads",
			"supportLevel":   "certified",
			"dockerImageTag": "3.4.1",
			"ab_internal": map[string]interface{}{
				"ql": 400,
			},
		},
	}
}

func TestCompileQueryInvalidExpression(t *testing.T) {
	_, err := CompileQuery(`data.supportLevel ==`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metadata query")
}

func TestQueryMatch(t *testing.T) {
	tests := []struct {
		name    string
		source  string
		matched bool
	}{
		{"equality match", `data.supportLevel == "certified"`, true},
		{"equality miss", `data.supportLevel == "community"`, false},
		{"nested numeric comparison", `data.ab_internal.ql >= 300`, true},
		{"conjunction", `data.supportLevel == "certified" && data.name == "Amazon Ads"`, true},
		{"missing key equality", `data.missing == "x"`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, err := CompileQuery(tt.source)
			require.NoError(t, err)
			assert.Equal(t, tt.source, query.Source())

			matched, err := query.Match(adsDocument())
			require.NoError(t, err)
			assert.Equal(t, tt.matched, matched)
		})
	}
}

func TestEvaluateQuery(t *testing.T) {
	matched, err := EvaluateQuery(`data.supportLevel == "certified"`, adsDocument())
	require.NoError(t, err)
	assert.True(t, matched)
}

func TestConnectorMatchesQuery(t *testing.T) {
	connector := &Connector{
		TechnicalName: "source-amazon-ads",
		Metadata:      adsDocument(),
	}

	query, err := CompileQuery(`data.supportLevel == "certified"`)
	require.NoError(t, err)

	matched, err := connector.MatchesQuery(query)
	require.NoError(t, err)
	assert.True(t, matched)
}
