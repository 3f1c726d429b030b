package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConnector lays one connector directory down under root.
func writeConnector(t *testing.T, root, name, metadata string, extraFiles ...string) {
	t.Helper()

	dir := filepath.Join(root, "connectors", name)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "metadata.yaml"), []byte(metadata), 0644))

	for _, file := range extraFiles {
		full := filepath.Join(dir, file)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0755))
		require.NoError(t, os.WriteFile(full, []byte("x"), 0644))
	}
}

const adsMetadata = `data:
  name: Amazon Ads
  dockerImageTag: 3.4.1
  supportLevel: certified
  tags:
    - language:python
metadataSpecVersion: "1.0"
`

const fakerMetadata = `data:
  name: Faker
  dockerImageTag: 0.2.0
  supportLevel: community
  tags:
    - language:go
metadataSpecVersion: "1.0"
`

func TestLoad(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "source-amazon-ads", adsMetadata)
	writeConnector(t, root, "source-faker", fakerMetadata)

	cat, err := Load(root)
	require.NoError(t, err)
	require.Equal(t, 2, cat.Len())
	assert.Equal(t, root, cat.Root())
	assert.Equal(t, []string{"source-amazon-ads", "source-faker"}, cat.Names())

	ads, ok := cat.Get("source-amazon-ads")
	require.True(t, ok)
	assert.Equal(t, "source-amazon-ads", ads.TechnicalName)
	assert.Equal(t, "connectors/source-amazon-ads", ads.RelativePath)
	assert.Equal(t, "connectors/source-amazon-ads/metadata.yaml", ads.MetadataFilePath())
	assert.Equal(t, "3.4.1", ads.Version)
	assert.Equal(t, SupportLevelCertified, ads.SupportLevel)
	assert.Equal(t, LanguagePython, ads.Language)
	assert.False(t, ads.HasChangelogEntries())

	all := cat.All()
	require.Len(t, all, 2)
	assert.Equal(t, "source-amazon-ads", all[0].TechnicalName)
	assert.Equal(t, "source-faker", all[1].TechnicalName)

	_, ok = cat.Get("source-unknown")
	assert.False(t, ok)
}

func TestLoadLanguageHeuristics(t *testing.T) {
	noTag := `data:
  dockerImageTag: 1.0.0
  supportLevel: community
`

	tests := []struct {
		name     string
		files    []string
		expected Language
	}{
		{"manifest-only", []string{"manifest.yaml"}, LanguageManifestOnly},
		{"python-setup", []string{"setup.py"}, LanguagePython},
		{"python-pyproject", []string{"pyproject.toml"}, LanguagePython},
		{"java", []string{"build.gradle"}, LanguageJava},
		{"go", []string{"go.mod"}, LanguageGo},
		{"unknown", nil, LanguageUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			writeConnector(t, root, "source-test", noTag, tt.files...)

			cat, err := Load(root)
			require.NoError(t, err)

			connector, ok := cat.Get("source-test")
			require.True(t, ok)
			assert.Equal(t, tt.expected, connector.Language)
		})
	}
}

func TestLoadExplicitTagWinsOverFiles(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "source-test", `data:
  dockerImageTag: 1.0.0
  tags:
    - language:low-code
`, "setup.py")

	cat, err := Load(root)
	require.NoError(t, err)

	connector, _ := cat.Get("source-test")
	assert.Equal(t, LanguageLowCode, connector.Language)
}

func TestLoadChangelogEntries(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "source-amazon-ads", adsMetadata,
		"changelog_entries/5678.toml",
		"changelog_entries/1234.toml",
	)

	cat, err := Load(root)
	require.NoError(t, err)

	ads, _ := cat.Get("source-amazon-ads")
	require.True(t, ads.HasChangelogEntries())
	assert.Equal(t, []string{
		"connectors/source-amazon-ads/changelog_entries/1234.toml",
		"connectors/source-amazon-ads/changelog_entries/5678.toml",
	}, ads.ChangelogEntryFiles)
}

func TestLoadUnparseableMetadata(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "source-broken", "data: [unclosed")

	_, err := Load(root)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connectors/source-broken/metadata.yaml")
}

func TestLoadMissingRoot(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not accessible")
}

func TestLoadIgnoresDirectoriesWithoutMetadata(t *testing.T) {
	root := t.TempDir()
	writeConnector(t, root, "source-amazon-ads", adsMetadata)
	require.NoError(t, os.MkdirAll(filepath.Join(root, "connectors", "not-a-connector"), 0755))

	cat, err := Load(root)
	require.NoError(t, err)
	assert.Equal(t, 1, cat.Len())
}

func TestLoadEmptyTree(t *testing.T) {
	cat, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())
	assert.Empty(t, cat.All())
}
