package selection

import (
	"github.com/parallaxworks/parallax/pkg/catalog"
)

// DependencyResolver reports which connectors depend on a given
// connector. The dependency graph itself lives outside this package;
// CI runs that want dependency scanning supply an implementation.
type DependencyResolver interface {
	// Dependents returns the technical names of connectors that depend,
	// directly or transitively, on the named connector.
	Dependents(name string) []string
}

// ConnectorsForFiles maps changed file paths to the connectors whose
// directory trees contain them. A nil resolver disables dependency
// scanning; with one, connectors depending on a modified connector are
// included as well.
func ConnectorsForFiles(files []string, cat *catalog.Catalog, deps DependencyResolver) map[string]*catalog.Connector {
	matched := map[string]*catalog.Connector{}

	for _, connector := range cat.All() {
		for _, file := range files {
			if PathContains(connector.RelativePath, file) {
				matched[connector.TechnicalName] = connector
				break
			}
		}
	}

	if deps == nil {
		return matched
	}

	// The resolver reports transitive dependents itself, so one pass
	// over the directly modified connectors is enough.
	direct := make([]string, 0, len(matched))
	for name := range matched {
		direct = append(direct, name)
	}
	for _, name := range direct {
		for _, dependent := range deps.Dependents(name) {
			if connector, ok := cat.Get(dependent); ok {
				matched[connector.TechnicalName] = connector
			}
		}
	}

	return matched
}

// ModifiedFilesFor returns the subset of changed files under the
// connector's directory, sorted.
func ModifiedFilesFor(connector *catalog.Connector, files []string) []string {
	return filesUnder(connector, files)
}
