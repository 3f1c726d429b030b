package catalog

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/parallaxworks/parallax/pkg/errors"
)

// Query is a compiled metadata expression. Queries address the raw
// metadata document, so `data.supportLevel == "certified"` selects on
// the supportLevel key of the metadata's data section.
type Query struct {
	source  string
	program *vm.Program
}

// CompileQuery compiles a metadata query expression. A query that does
// not compile is a usage error.
func CompileQuery(source string) (*Query, error) {
	program, err := expr.Compile(source,
		expr.Env(map[string]interface{}{}),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
	)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeUsage,
			fmt.Sprintf("invalid metadata query %q", source))
	}

	return &Query{source: source, program: program}, nil
}

// Source returns the original query expression.
func (q *Query) Source() string {
	return q.source
}

// Match evaluates the query against one connector's metadata document.
func (q *Query) Match(metadata map[string]interface{}) (bool, error) {
	result, err := expr.Run(q.program, metadata)
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorTypeUsage,
			fmt.Sprintf("metadata query %q failed to evaluate", q.source))
	}

	matched, ok := result.(bool)
	if !ok {
		return false, errors.Newf(errors.ErrorTypeUsage,
			"metadata query %q did not evaluate to a boolean", q.source)
	}

	return matched, nil
}

// EvaluateQuery compiles and evaluates a query in one step.
func EvaluateQuery(source string, metadata map[string]interface{}) (bool, error) {
	query, err := CompileQuery(source)
	if err != nil {
		return false, err
	}
	return query.Match(metadata)
}

// MatchesQuery reports whether the connector's metadata satisfies the
// compiled query.
func (c *Connector) MatchesQuery(query *Query) (bool, error) {
	return query.Match(c.Metadata)
}
