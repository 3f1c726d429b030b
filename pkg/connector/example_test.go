// Examples for the connector framework: configuration, registry lookup,
// and record handling.
package connector_test

import (
	"fmt"
	"strconv"

	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/connector/registry"
	"github.com/parallaxworks/parallax/pkg/pool"

	// Blank imports register the built-in connectors.
	_ "github.com/parallaxworks/parallax/pkg/connector/destinations/jsonl"
	_ "github.com/parallaxworks/parallax/pkg/connector/sources/amazonads"
)

// Example builds both ends of a pipeline from the registry. Construction is
// cheap; credentials are not touched until Initialize.
func Example() {
	srcCfg := config.NewBaseConfig("ads", "amazon-ads")
	srcCfg.Security.Credentials["client_id"] = "${AMAZON_ADS_CLIENT_ID}"

	source, err := registry.CreateSource("amazon-ads", srcCfg)
	if err != nil {
		fmt.Println("create source:", err)
		return
	}

	dstCfg := config.NewBaseConfig("out", "jsonl")
	dstCfg.Security.Credentials["path"] = "out/records.jsonl"

	dest, err := registry.CreateDestination("jsonl", dstCfg)
	if err != nil {
		fmt.Println("create destination:", err)
		return
	}

	// Identity methods live on the core.Connector facet of each connector.
	src := source.(core.Connector)
	dst := dest.(core.Connector)
	fmt.Printf("%s %s v%s\n", src.Type(), src.Name(), src.Version())
	fmt.Printf("%s %s v%s\n", dst.Type(), dst.Name(), dst.Version())

	// Output:
	// source amazon-ads v1.0.0
	// destination jsonl v1.0.0
}

// ExampleNewBaseConfig shows the defaults NewBaseConfig applies and the
// fields callers usually override.
func ExampleNewBaseConfig() {
	cfg := config.NewBaseConfig("ads_sync", "amazon-ads")

	// Throughput knobs.
	cfg.Performance.Workers = 8
	cfg.Performance.BatchSize = 10000

	// Failure handling. The circuit breaker is on by default.
	cfg.Reliability.RetryAttempts = 5
	cfg.Reliability.RetryMultiplier = 2.0

	// ${VAR} references are resolved from the environment by config.Load.
	cfg.Security.Credentials["client_id"] = "${AMAZON_ADS_CLIENT_ID}"
	cfg.Security.Credentials["profile_id"] = "123456789"

	fmt.Println(cfg.Name, cfg.Type)
	fmt.Println("workers:", cfg.Performance.Workers)
	fmt.Println("retries:", cfg.Reliability.RetryAttempts)
	fmt.Println("valid:", cfg.Validate() == nil)

	// Output:
	// ads_sync amazon-ads
	// workers: 8
	// retries: 5
	// valid: true
}

// Example_jsonlDestination configures compressed JSONL output. Connector
// specific settings travel in Security.Credentials.
func Example_jsonlDestination() {
	cfg := config.NewBaseConfig("jsonl", "jsonl")
	cfg.Security.Credentials["path"] = "out/records.jsonl"
	cfg.Security.Credentials["file_per_stream"] = "true"

	cfg.Advanced.EnableCompression = true
	cfg.Advanced.CompressionAlgorithm = "zstd"

	fmt.Println(cfg.Security.Credentials["path"])
	fmt.Println(cfg.Advanced.CompressionAlgorithm, "level", cfg.Advanced.CompressionLevel)

	// Output:
	// out/records.jsonl
	// zstd level 6
}

// Example_recordTransform converts string metrics coming off the wire into
// numeric fields before they reach a destination.
func Example_recordTransform() {
	raw := []*pool.Record{
		pool.NewRecord("campaigns", map[string]interface{}{
			"name":   "brand_video",
			"clicks": "1284",
		}),
		pool.NewRecord("campaigns", map[string]interface{}{
			"name":   "sponsored_display",
			"clicks": "97",
		}),
	}

	parseClicks := func(r *pool.Record) {
		s, ok := r.Data["clicks"].(string)
		if !ok {
			return
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return
		}
		r.SetData("clicks", n)
	}

	for _, r := range raw {
		parseClicks(r)
		fmt.Printf("%s: %d clicks (%T)\n", r.Data["name"], r.Data["clicks"], r.Data["clicks"])
		r.Release()
	}

	// Output:
	// brand_video: 1284 clicks (int)
	// sponsored_display: 97 clicks (int)
}

// Example_registryList lists the connectors the blank imports registered.
func Example_registryList() {
	fmt.Println("sources:", registry.ListSources())
	fmt.Println("destinations:", registry.ListDestinations())

	// Output:
	// sources: [amazon-ads]
	// destinations: [jsonl]
}
