// Package changelog implements connector version bumping: semantic
// version math, pending changelog entry files, and the in-place
// rewrite of metadata and changelog documents.
package changelog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/pkg/catalog"
	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/logger"
)

// Bump types, ordered patch < minor < major.
const (
	BumpPatch = "patch"
	BumpMinor = "minor"
	BumpMajor = "major"
)

// bumpRank orders bump types for HighestBump.
var bumpRank = map[string]int{BumpPatch: 0, BumpMinor: 1, BumpMajor: 2}

// ValidBumpType reports whether bumpType is one of patch, minor, major.
func ValidBumpType(bumpType string) bool {
	_, ok := bumpRank[bumpType]
	return ok
}

// Bump computes the next version for a bump type.
func Bump(version, bumpType string) (string, error) {
	current, err := semver.NewVersion(version)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("invalid semantic version %q", version))
	}

	var next semver.Version
	switch bumpType {
	case BumpPatch:
		next = current.IncPatch()
	case BumpMinor:
		next = current.IncMinor()
	case BumpMajor:
		next = current.IncMajor()
	default:
		return "", errors.Newf(errors.ErrorTypeUsage,
			"unknown bump type %q (expected patch, minor or major)", bumpType)
	}

	return next.String(), nil
}

// Entry is one pending changelog entry file, TOML-encoded under the
// connector's changelog_entries directory.
type Entry struct {
	Title    string `toml:"title"`
	PRNumber int    `toml:"pr_number"`
	Type     string `toml:"type"`
}

// CollectEntries parses every pending changelog entry file of a
// connector. Malformed TOML fails the collection, naming the file.
func CollectEntries(root string, connector *catalog.Connector) ([]Entry, error) {
	entries := make([]Entry, 0, len(connector.ChangelogEntryFiles))

	for _, file := range connector.ChangelogEntryFiles {
		raw, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(file)))
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData,
				fmt.Sprintf("failed to read changelog entry %s", file))
		}

		var entry Entry
		if err := toml.Unmarshal(raw, &entry); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeData,
				fmt.Sprintf("failed to parse changelog entry %s", file))
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// HighestBump returns the largest bump type among the entries,
// defaulting to patch.
func HighestBump(entries []Entry) string {
	highest := BumpPatch
	for _, entry := range entries {
		if bumpRank[entry.Type] > bumpRank[highest] {
			highest = entry.Type
		}
	}
	return highest
}

// BumpMetadata replaces the dockerImageTag value in raw metadata text,
// leaving every other byte of the file untouched.
func BumpMetadata(metadata, current, next string) (string, error) {
	target := "dockerImageTag: " + current
	if !strings.Contains(metadata, target) {
		return "", errors.Newf(errors.ErrorTypeData,
			"dockerImageTag %s not found in metadata", current)
	}
	return strings.Replace(metadata, target, "dockerImageTag: "+next, 1), nil
}

// InsertRow adds a changelog row directly under the first markdown
// table header in doc, keeping newest entries first.
func InsertRow(doc, row string) (string, error) {
	lines := strings.Split(doc, "\n")
	for i := 0; i < len(lines)-1; i++ {
		if isTableRow(lines[i]) && isTableSeparator(lines[i+1]) {
			updated := make([]string, 0, len(lines)+1)
			updated = append(updated, lines[:i+2]...)
			updated = append(updated, row)
			updated = append(updated, lines[i+2:]...)
			return strings.Join(updated, "\n"), nil
		}
	}
	return "", errors.New(errors.ErrorTypeData, "no changelog table found in document")
}

func isTableRow(line string) bool {
	return strings.HasPrefix(strings.TrimSpace(line), "|")
}

func isTableSeparator(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "|") || !strings.Contains(trimmed, "-") {
		return false
	}
	for _, r := range trimmed {
		if !strings.ContainsRune("|-: ", r) {
			return false
		}
	}
	return true
}

// Result describes one applied version bump.
type Result struct {
	TechnicalName string
	OldVersion    string
	NewVersion    string
	// DocUpdated is false when the connector carries no CHANGELOG.md;
	// the bump still applies to metadata.
	DocUpdated bool
}

// ApplyBump bumps a connector's version: the metadata dockerImageTag is
// rewritten in place and a dated row lands in the connector's
// CHANGELOG.md when one exists.
func ApplyBump(root string, connector *catalog.Connector, bumpType string, prNumber int, comment string) (*Result, error) {
	if comment == "" {
		return nil, errors.New(errors.ErrorTypeUsage, "changelog comment is required")
	}
	if prNumber <= 0 {
		return nil, errors.New(errors.ErrorTypeUsage, "pull request number must be positive")
	}
	if connector.Version == "" {
		return nil, errors.Newf(errors.ErrorTypeData,
			"connector %s has no current version in metadata", connector.TechnicalName)
	}

	newVersion, err := Bump(connector.Version, bumpType)
	if err != nil {
		return nil, err
	}

	if err := bumpMetadataFile(root, connector, newVersion); err != nil {
		return nil, err
	}

	docUpdated, err := addChangelogRow(root, connector, newVersion, prNumber, comment)
	if err != nil {
		return nil, err
	}

	result := &Result{
		TechnicalName: connector.TechnicalName,
		OldVersion:    connector.Version,
		NewVersion:    newVersion,
		DocUpdated:    docUpdated,
	}
	logBump(result, bumpType)

	return result, nil
}

// ApplyFromEntryFiles bumps a connector using its pending changelog
// entry files: the largest entry type decides the bump and every entry
// becomes a changelog row.
func ApplyFromEntryFiles(root string, connector *catalog.Connector) (*Result, error) {
	entries, err := CollectEntries(root, connector)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, errors.Newf(errors.ErrorTypeUsage,
			"connector %s has no changelog entry files", connector.TechnicalName)
	}
	if connector.Version == "" {
		return nil, errors.Newf(errors.ErrorTypeData,
			"connector %s has no current version in metadata", connector.TechnicalName)
	}

	newVersion, err := Bump(connector.Version, HighestBump(entries))
	if err != nil {
		return nil, err
	}

	if err := bumpMetadataFile(root, connector, newVersion); err != nil {
		return nil, err
	}

	docUpdated := false
	for _, entry := range entries {
		updated, err := addChangelogRow(root, connector, newVersion, entry.PRNumber, entry.Title)
		if err != nil {
			return nil, err
		}
		docUpdated = docUpdated || updated
	}

	result := &Result{
		TechnicalName: connector.TechnicalName,
		OldVersion:    connector.Version,
		NewVersion:    newVersion,
		DocUpdated:    docUpdated,
	}
	logBump(result, HighestBump(entries))

	return result, nil
}

// bumpMetadataFile rewrites the dockerImageTag line of the connector's
// metadata.yaml.
func bumpMetadataFile(root string, connector *catalog.Connector, newVersion string) error {
	metadataPath := filepath.Join(root, filepath.FromSlash(connector.MetadataFilePath()))

	raw, err := os.ReadFile(metadataPath)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("failed to read %s", connector.MetadataFilePath()))
	}

	updated, err := BumpMetadata(string(raw), connector.Version, newVersion)
	if err != nil {
		return err
	}

	if err := os.WriteFile(metadataPath, []byte(updated), 0644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("failed to write %s", connector.MetadataFilePath()))
	}

	return nil
}

// addChangelogRow inserts a dated row into the connector's CHANGELOG.md
// table. A connector without that document is skipped, not failed.
func addChangelogRow(root string, connector *catalog.Connector, version string, prNumber int, comment string) (bool, error) {
	docPath := filepath.Join(root, filepath.FromSlash(connector.RelativePath), "CHANGELOG.md")

	raw, err := os.ReadFile(docPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("failed to read changelog for %s", connector.TechnicalName))
	}

	row := fmt.Sprintf("| %s | %s | %d | %s |",
		version, time.Now().Format("2006-01-02"), prNumber, comment)
	updated, err := InsertRow(string(raw), row)
	if err != nil {
		return false, err
	}

	if err := os.WriteFile(docPath, []byte(updated), 0644); err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeData,
			fmt.Sprintf("failed to write changelog for %s", connector.TechnicalName))
	}

	return true, nil
}

func logBump(result *Result, bumpType string) {
	logger.Info("connector version bumped",
		zap.String("connector", result.TechnicalName),
		zap.String("bump_type", bumpType),
		zap.String("old_version", result.OldVersion),
		zap.String("new_version", result.NewVersion),
		zap.Bool("doc_updated", result.DocUpdated))
}
