// Package connector defines the pieces a Parallax pipeline is assembled
// from: sources that stream records out of an upstream system and
// destinations that persist them.
//
// Sub-packages:
//
//   - core holds the Source and Destination interfaces plus the stream
//     types (RecordStream, BatchStream) that carry pooled records between
//     them.
//
//   - base supplies BaseConnector, which layers retries, an optional
//     circuit breaker, rate limiting, health checks and progress metrics
//     under every concrete connector.
//
//   - registry maps connector names to factories so pipelines can be
//     wired from configuration alone. Connectors register themselves in
//     an init function; importing the package is enough.
//
//   - sources/amazonads streams Sponsored Products entities (campaigns,
//     ad groups, keywords, targets and their derived recommendation
//     streams) from the Amazon Ads API with OAuth2 token refresh and
//     cursor pagination.
//
//   - destinations/jsonl writes newline-delimited JSON with optional
//     gzip, zstd or lz4 compression and per-stream file splitting.
//
// Every connector is configured through config.BaseConfig. The shared
// sections (performance, timeouts, reliability, security, observability,
// advanced) are interpreted by BaseConnector; connector specific settings
// such as file paths or API credentials travel in Security.Credentials.
//
// A minimal consumer looks like:
//
//	cfg := config.NewBaseConfig("my-sync", "amazon-ads")
//	cfg.Security.Credentials = map[string]string{
//		"client_id":     "...",
//		"client_secret": "...",
//		"refresh_token": "...",
//		"profile_id":    "...",
//	}
//
//	source, err := registry.CreateSource("amazon-ads", cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := source.Initialize(ctx, cfg); err != nil {
//		log.Fatal(err)
//	}
//	stream, err := source.Read(ctx)
//
// Records arrive on stream.Records with ownership attached: whoever
// drains the channel releases the records back to the pool.
package connector
