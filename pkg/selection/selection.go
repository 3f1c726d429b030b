// Package selection computes which connectors in a catalog a CI run
// should operate on.
//
// Criteria are ANDed: every supplied criterion produces a candidate
// subset, empty subsets are discarded, and the result is the
// intersection of the rest. Supplying no criteria selects nothing; the
// tool never falls back to "all connectors".
package selection

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/pkg/catalog"
	"github.com/parallaxworks/parallax/pkg/logger"
)

// Criteria is the ANDed set of optional connector filters.
type Criteria struct {
	// Names selects connectors by technical name. Unknown names match
	// nothing.
	Names []string
	// SupportLevels selects by certification tier.
	SupportLevels []string
	// Languages selects by connector language.
	Languages []string
	// Modified selects connectors with changed files under their path.
	Modified bool
	// MetadataChangesOnly restricts the result to connectors whose
	// metadata file changed. Implies Modified.
	MetadataChangesOnly bool
	// WithChangelogEntries selects connectors with pending changelog
	// entry files.
	WithChangelogEntries bool
	// MetadataQuery selects connectors whose metadata satisfies the
	// expression.
	MetadataQuery string
}

// Supplied reports whether any criterion was provided at all.
func (c Criteria) Supplied() bool {
	return len(c.Names) > 0 ||
		len(c.SupportLevels) > 0 ||
		len(c.Languages) > 0 ||
		c.Modified ||
		c.MetadataChangesOnly ||
		c.WithChangelogEntries ||
		c.MetadataQuery != ""
}

// Selected pairs a connector with the changed files that fall under its
// path.
type Selected struct {
	Connector     *catalog.Connector
	ModifiedFiles []string
	// HasMetadataChange is true when the connector's metadata file is
	// among its modified files.
	HasMetadataChange bool
}

// Select applies the criteria to the catalog and returns the matching
// connectors paired with their modified files, sorted by technical
// name. The deps resolver may be nil; when supplied it extends the
// modified criterion to dependents of modified connectors.
func Select(criteria Criteria, cat *catalog.Catalog, modifiedFiles []string, deps DependencyResolver) ([]Selected, error) {
	modified := criteria.Modified
	if criteria.MetadataChangesOnly && !modified {
		logger.Info("metadata-changes-only implies the modified criterion")
		modified = true
	}

	var subsets []connectorSet

	if len(criteria.Names) > 0 {
		subsets = append(subsets, byName(cat, criteria.Names))
	}
	if len(criteria.SupportLevels) > 0 {
		subsets = append(subsets, bySupportLevel(cat, criteria.SupportLevels))
	}
	if len(criteria.Languages) > 0 {
		subsets = append(subsets, byLanguage(cat, criteria.Languages))
	}
	if criteria.MetadataQuery != "" {
		subset, err := byQuery(cat, criteria.MetadataQuery)
		if err != nil {
			return nil, err
		}
		subsets = append(subsets, subset)
	}
	if modified {
		subsets = append(subsets, ConnectorsForFiles(modifiedFiles, cat, deps))
	}
	if criteria.WithChangelogEntries {
		subsets = append(subsets, byChangelogEntries(cat))
	}

	selected := intersect(nonEmpty(subsets))

	results := make([]Selected, 0, len(selected))
	for _, connector := range selected {
		files := filesUnder(connector, modifiedFiles)
		result := Selected{
			Connector:         connector,
			ModifiedFiles:     files,
			HasMetadataChange: containsString(files, connector.MetadataFilePath()),
		}
		if criteria.MetadataChangesOnly && !result.HasMetadataChange {
			continue
		}
		results = append(results, result)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Connector.TechnicalName < results[j].Connector.TechnicalName
	})

	logSelection(results)

	return results, nil
}

// connectorSet is a candidate subset keyed by technical name.
type connectorSet map[string]*catalog.Connector

func byName(cat *catalog.Catalog, names []string) connectorSet {
	subset := connectorSet{}
	for _, name := range names {
		if connector, ok := cat.Get(name); ok {
			subset[connector.TechnicalName] = connector
		}
	}
	return subset
}

func bySupportLevel(cat *catalog.Catalog, levels []string) connectorSet {
	subset := connectorSet{}
	for _, connector := range cat.All() {
		for _, level := range levels {
			if string(connector.SupportLevel) == level {
				subset[connector.TechnicalName] = connector
			}
		}
	}
	return subset
}

func byLanguage(cat *catalog.Catalog, languages []string) connectorSet {
	subset := connectorSet{}
	for _, connector := range cat.All() {
		for _, language := range languages {
			if string(connector.Language) == language {
				subset[connector.TechnicalName] = connector
			}
		}
	}
	return subset
}

func byQuery(cat *catalog.Catalog, source string) (connectorSet, error) {
	query, err := catalog.CompileQuery(source)
	if err != nil {
		return nil, err
	}

	subset := connectorSet{}
	for _, connector := range cat.All() {
		matched, err := connector.MatchesQuery(query)
		if err != nil {
			return nil, err
		}
		if matched {
			subset[connector.TechnicalName] = connector
		}
	}
	return subset, nil
}

func byChangelogEntries(cat *catalog.Catalog) connectorSet {
	subset := connectorSet{}
	for _, connector := range cat.All() {
		if connector.HasChangelogEntries() {
			subset[connector.TechnicalName] = connector
		}
	}
	return subset
}

// nonEmpty drops candidate subsets that matched nothing; they impose no
// constraint on the intersection.
func nonEmpty(subsets []connectorSet) []connectorSet {
	kept := subsets[:0]
	for _, subset := range subsets {
		if len(subset) > 0 {
			kept = append(kept, subset)
		}
	}
	return kept
}

// intersect returns the connectors present in every subset. No subsets
// means no selection.
func intersect(subsets []connectorSet) []*catalog.Connector {
	if len(subsets) == 0 {
		return nil
	}

	var result []*catalog.Connector
	for name, connector := range subsets[0] {
		inAll := true
		for _, other := range subsets[1:] {
			if _, ok := other[name]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			result = append(result, connector)
		}
	}
	return result
}

// filesUnder returns the changed files that live under the connector's
// directory.
func filesUnder(connector *catalog.Connector, files []string) []string {
	var under []string
	for _, file := range files {
		if PathContains(connector.RelativePath, file) {
			under = append(under, file)
		}
	}
	sort.Strings(under)
	return under
}

// PathContains reports whether file sits inside dir. Both paths are
// repo-relative and slash-separated; "a/b" contains "a/b/x.py" but not
// "a/bc/x.py".
func PathContains(dir, file string) bool {
	return file == dir || strings.HasPrefix(file, dir+"/")
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}

func logSelection(results []Selected) {
	if len(results) == 0 {
		logger.Info("no connectors selected")
		return
	}

	names := make([]string, len(results))
	for i, result := range results {
		names[i] = result.Connector.TechnicalName
	}
	logger.Info("connectors selected",
		zap.Int("count", len(names)),
		zap.Strings("connectors", names))
}
