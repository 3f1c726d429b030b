// Package parallax is a toolkit for operating a monorepo of data
// connectors and moving records between them.
//
// It has two halves that share one runtime:
//
// The catalog half manages the connector monorepo. A catalog is loaded
// from metadata.yaml files, CI runs select connectors by ANDed criteria
// (names, support level, language, modified files against a git base,
// metadata queries, pending changelog entries), and version bumps
// rewrite connector metadata and changelog documents in place.
//
// The sync half moves data. Source connectors stream records over
// channels into destination connectors through a batching pipeline,
// with pooled records, structured errors, and per-run metrics.
//
// # Quick Start
//
// Select the connectors a pull request touched:
//
//	parallax connectors select --modified --support-level certified
//
// Bump a connector after a change:
//
//	parallax connectors bump-version source-amazon-ads patch 1234 "Add campaign stream"
//
// Run a sync:
//
//	parallax sync --source amazon-ads --destination jsonl --config sync.yaml
//
// # Key Packages
//
//	pkg/catalog      - Connector metadata registry for the monorepo
//	pkg/selection    - Criteria-based connector selection for CI
//	pkg/changelog    - Semantic version bumps and changelog rewrites
//	pkg/vcs          - Git queries (changed files, branch, revision)
//	pkg/ci           - CI environment policy and run-report uploads
//	pkg/platform     - REST client for the hosted control plane
//	pkg/connector    - Connector framework for sources and destinations
//	pkg/pool         - Object pooling for records and buffers
//	pkg/config       - Unified configuration management
//	pkg/errors       - Structured error handling
//	pkg/logger       - Structured logging
//	pkg/metrics      - Prometheus metrics collection
//
// # Configuration
//
// Connectors share one configuration shape:
//
//	type BaseConfig struct {
//	    Performance   PerformanceConfig   // Batch sizes, workers
//	    Timeouts      TimeoutConfig       // Connection, request timeouts
//	    Reliability   ReliabilityConfig   // Retries, circuit breakers
//	    Security      SecurityConfig      // Auth, TLS, credentials
//	    Observability ObservabilityConfig // Metrics, logging, tracing
//	    Advanced      AdvancedConfig      // Compression, debug
//	}
//
// Environment variables are supported with ${VAR_NAME} syntax. CLI
// settings resolve from parallax.yaml and PARALLAX_* environment
// variables.
package parallax
