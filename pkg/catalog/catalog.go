// Package catalog loads and holds the registry of connector packages in
// a monorepo.
//
// A connector is any directory under the connectors tree that carries a
// metadata.yaml. The catalog is loaded once per process and is immutable
// afterwards; selection and version-bump tooling work against it without
// touching the filesystem again.
package catalog

import (
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/parallaxworks/parallax/pkg/errors"
)

// MetadataFileName is the file that marks a directory as a connector.
const MetadataFileName = "metadata.yaml"

// changelogEntriesDir holds pending changelog entry files inside a
// connector directory.
const changelogEntriesDir = "changelog_entries"

// defaultGlob locates every connector metadata file under the repo root.
const defaultGlob = "connectors/**/" + MetadataFileName

// Language identifies how a connector is built.
type Language string

const (
	LanguageJava         Language = "java"
	LanguageLowCode      Language = "low-code"
	LanguagePython       Language = "python"
	LanguageManifestOnly Language = "manifest-only"
	LanguageGo           Language = "go"
	LanguageUnknown      Language = "unknown"
)

// SupportLevel is the certification tier of a connector.
type SupportLevel string

const (
	SupportLevelCertified SupportLevel = "certified"
	SupportLevelCommunity SupportLevel = "community"
	SupportLevelArchived  SupportLevel = "archived"
)

// Connector is one integration package in the monorepo. All paths are
// repo-relative and slash-separated, matching git diff output. Records
// are immutable after load.
type Connector struct {
	// TechnicalName is the connector directory name, e.g.
	// "source-amazon-ads". Unique within a catalog.
	TechnicalName string
	// RelativePath is the connector directory relative to the repo root.
	RelativePath string
	Language     Language
	SupportLevel SupportLevel
	// Version is the dockerImageTag from metadata.
	Version string
	// Metadata is the parsed metadata.yaml document. Queries evaluate
	// against it, so the raw key/value structure is preserved.
	Metadata map[string]interface{}
	// ChangelogEntryFiles lists pending changelog entry files under the
	// connector's changelog_entries directory, sorted.
	ChangelogEntryFiles []string
}

// MetadataFilePath returns the repo-relative path of the connector's
// metadata file.
func (c *Connector) MetadataFilePath() string {
	return path.Join(c.RelativePath, MetadataFileName)
}

// HasChangelogEntries reports whether any changelog entry files are
// pending for this connector.
func (c *Connector) HasChangelogEntries() bool {
	return len(c.ChangelogEntryFiles) > 0
}

// Catalog is the full set of known connectors, loaded once per process.
type Catalog struct {
	root       string
	connectors map[string]*Connector
}

// New builds a catalog from already-loaded connector records.
func New(root string, connectors ...*Connector) *Catalog {
	catalog := &Catalog{
		root:       root,
		connectors: make(map[string]*Connector, len(connectors)),
	}
	for _, connector := range connectors {
		catalog.connectors[connector.TechnicalName] = connector
	}
	return catalog
}

// Load discovers every connector under root's connectors directory and
// parses its metadata. Unparseable metadata fails the load, naming the
// file.
func Load(root string) (*Catalog, error) {
	return LoadGlob(root, defaultGlob)
}

// LoadGlob is Load with an explicit metadata glob, for monorepos that
// keep connectors somewhere other than connectors/.
func LoadGlob(root, glob string) (*Catalog, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("repository root %s is not accessible", root))
	}
	if !info.IsDir() {
		return nil, errors.Newf(errors.ErrorTypeConfig, "repository root %s is not a directory", root)
	}

	matches, err := doublestar.Glob(os.DirFS(root), glob)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("invalid connector glob %q", glob))
	}

	catalog := &Catalog{
		root:       root,
		connectors: make(map[string]*Connector, len(matches)),
	}

	for _, match := range matches {
		connector, err := loadConnector(root, path.Dir(match))
		if err != nil {
			return nil, err
		}
		catalog.connectors[connector.TechnicalName] = connector
	}

	return catalog, nil
}

// loadConnector builds one connector record from its directory.
func loadConnector(root, dir string) (*Connector, error) {
	metadataPath := path.Join(dir, MetadataFileName)

	raw, err := os.ReadFile(path.Join(root, metadataPath))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("failed to read %s", metadataPath))
	}

	var metadata map[string]interface{}
	if err := yaml.Unmarshal(raw, &metadata); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("failed to parse %s", metadataPath))
	}

	connector := &Connector{
		TechnicalName: path.Base(dir),
		RelativePath:  dir,
		Metadata:      metadata,
	}

	data, _ := metadata["data"].(map[string]interface{})
	if version, ok := data["dockerImageTag"].(string); ok {
		connector.Version = version
	}
	if level, ok := data["supportLevel"].(string); ok {
		connector.SupportLevel = SupportLevel(level)
	}

	connector.Language = detectLanguage(root, dir, data)

	entries, err := collectChangelogEntries(root, dir)
	if err != nil {
		return nil, err
	}
	connector.ChangelogEntryFiles = entries

	return connector, nil
}

// detectLanguage resolves a connector's language: an explicit
// language tag in metadata wins, otherwise the buildable files in the
// connector directory decide.
func detectLanguage(root, dir string, data map[string]interface{}) Language {
	if tags, ok := data["tags"].([]interface{}); ok {
		for _, tag := range tags {
			name, ok := tag.(string)
			if !ok {
				continue
			}
			if strings.HasPrefix(name, "language:") {
				return Language(strings.TrimPrefix(name, "language:"))
			}
		}
	}

	exists := func(file string) bool {
		_, err := os.Stat(path.Join(root, dir, file))
		return err == nil
	}

	switch {
	case exists("manifest.yaml"):
		return LanguageManifestOnly
	case exists("setup.py"), exists("pyproject.toml"):
		return LanguagePython
	case exists("build.gradle"):
		return LanguageJava
	case exists("go.mod"):
		return LanguageGo
	}

	return LanguageUnknown
}

// collectChangelogEntries lists the connector's pending changelog entry
// files as sorted repo-relative paths.
func collectChangelogEntries(root, dir string) ([]string, error) {
	entriesDir := path.Join(dir, changelogEntriesDir)

	items, err := os.ReadDir(path.Join(root, entriesDir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("failed to list %s", entriesDir))
	}

	var entries []string
	for _, item := range items {
		if item.IsDir() {
			continue
		}
		entries = append(entries, path.Join(entriesDir, item.Name()))
	}
	sort.Strings(entries)

	return entries, nil
}

// Root returns the repository root the catalog was loaded from.
func (c *Catalog) Root() string {
	return c.root
}

// Get returns the connector with the given technical name.
func (c *Catalog) Get(name string) (*Connector, bool) {
	connector, ok := c.connectors[name]
	return connector, ok
}

// All returns every connector, sorted by technical name.
func (c *Catalog) All() []*Connector {
	all := make([]*Connector, 0, len(c.connectors))
	for _, connector := range c.connectors {
		all = append(all, connector)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].TechnicalName < all[j].TechnicalName
	})
	return all
}

// Names returns every technical name, sorted.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.connectors))
	for name := range c.connectors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of connectors in the catalog.
func (c *Catalog) Len() int {
	return len(c.connectors)
}
