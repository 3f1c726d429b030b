package selection

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parallaxworks/parallax/pkg/catalog"
)

func fakeConnector(name string, language catalog.Language, level catalog.SupportLevel, entries ...string) *catalog.Connector {
	return &catalog.Connector{
		TechnicalName: name,
		RelativePath:  "connectors/" + name,
		Language:      language,
		SupportLevel:  level,
		Metadata: map[string]interface{}{
			"data": map[string]interface{}{
				"name":         name,
				"supportLevel": string(level),
			},
		},
		ChangelogEntryFiles: entries,
	}
}

// testCatalog holds three connectors covering both languages and both
// support levels used across the tests.
func testCatalog() *catalog.Catalog {
	return catalog.New("/repo",
		fakeConnector("source-amazon-ads", catalog.LanguagePython, catalog.SupportLevelCertified),
		fakeConnector("source-faker", catalog.LanguageGo, catalog.SupportLevelCommunity,
			"connectors/source-faker/changelog_entries/1234.toml"),
		fakeConnector("destination-warehouse", catalog.LanguagePython, catalog.SupportLevelCommunity),
	)
}

func names(results []Selected) []string {
	selected := make([]string, len(results))
	for i, result := range results {
		selected[i] = result.Connector.TechnicalName
	}
	return selected
}

func TestSelectZeroCriteriaSelectsNothing(t *testing.T) {
	results, err := Select(Criteria{}, testCatalog(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSelectSingleCriterion(t *testing.T) {
	cat := testCatalog()

	tests := []struct {
		name     string
		criteria Criteria
		expected []string
	}{
		{
			"by name",
			Criteria{Names: []string{"source-faker"}},
			[]string{"source-faker"},
		},
		{
			"by support level",
			Criteria{SupportLevels: []string{"community"}},
			[]string{"destination-warehouse", "source-faker"},
		},
		{
			"by language",
			Criteria{Languages: []string{"python"}},
			[]string{"destination-warehouse", "source-amazon-ads"},
		},
		{
			"by changelog entries",
			Criteria{WithChangelogEntries: true},
			[]string{"source-faker"},
		},
		{
			"by metadata query",
			Criteria{MetadataQuery: `data.supportLevel == "certified"`},
			[]string{"source-amazon-ads"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results, err := Select(tt.criteria, cat, nil, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, names(results))
		})
	}
}

func TestSelectIntersectsSuppliedCriteria(t *testing.T) {
	cat := testCatalog()

	results, err := Select(Criteria{
		SupportLevels: []string{"community"},
		Languages:     []string{"python"},
	}, cat, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"destination-warehouse"}, names(results))
}

func TestSelectDropsEmptyCandidateSubsets(t *testing.T) {
	// A supplied criterion that matches nothing imposes no constraint;
	// the remaining criteria decide alone.
	results, err := Select(Criteria{
		Names:     []string{"source-does-not-exist"},
		Languages: []string{"go"},
	}, testCatalog(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"source-faker"}, names(results))
}

func TestSelectModified(t *testing.T) {
	cat := testCatalog()
	files := []string{
		"connectors/source-faker/source.go",
		"connectors/source-faker/metadata.yaml",
		"docs/README.md",
	}

	results, err := Select(Criteria{Modified: true}, cat, files, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"source-faker"}, names(results))

	assert.Equal(t, []string{
		"connectors/source-faker/metadata.yaml",
		"connectors/source-faker/source.go",
	}, results[0].ModifiedFiles)
	assert.True(t, results[0].HasMetadataChange)
}

func TestSelectModifiedIgnoresFilesOutsidePath(t *testing.T) {
	results, err := Select(Criteria{Modified: true}, testCatalog(), []string{
		"docs/integrations/source-faker.md",
		"tools/ci/settings.yaml",
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSelectMetadataChangesOnlyImpliesModified(t *testing.T) {
	cat := testCatalog()
	files := []string{
		"connectors/source-faker/metadata.yaml",
		"connectors/source-amazon-ads/source.py",
	}

	implicit, err := Select(Criteria{MetadataChangesOnly: true}, cat, files, nil)
	require.NoError(t, err)

	explicit, err := Select(Criteria{Modified: true, MetadataChangesOnly: true}, cat, files, nil)
	require.NoError(t, err)

	assert.Equal(t, names(explicit), names(implicit))
	require.Equal(t, []string{"source-faker"}, names(implicit))
	assert.True(t, implicit[0].HasMetadataChange)
}

func TestSelectMetadataChangesOnlyFiltersOutCodeOnlyChanges(t *testing.T) {
	results, err := Select(Criteria{MetadataChangesOnly: true}, testCatalog(), []string{
		"connectors/source-amazon-ads/source.py",
	}, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSelectInvalidMetadataQuery(t *testing.T) {
	_, err := Select(Criteria{MetadataQuery: `data.supportLevel ==`}, testCatalog(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metadata query")
}

func TestCriteriaSupplied(t *testing.T) {
	assert.False(t, Criteria{}.Supplied())
	assert.True(t, Criteria{Modified: true}.Supplied())
	assert.True(t, Criteria{Names: []string{"x"}}.Supplied())
	assert.True(t, Criteria{MetadataQuery: "true"}.Supplied())
}

func TestPathContains(t *testing.T) {
	assert.True(t, PathContains("connectors/source-a", "connectors/source-a/setup.py"))
	assert.True(t, PathContains("connectors/source-a", "connectors/source-a"))
	assert.False(t, PathContains("connectors/source-a", "connectors/source-ab/setup.py"))
	assert.False(t, PathContains("connectors/source-a", "docs/source-a.md"))
}
