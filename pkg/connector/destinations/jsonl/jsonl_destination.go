// Package jsonl implements a file destination that writes records as
// line-delimited JSON or as a single JSON array.
//
// In file-per-stream mode the output path is treated as a directory and
// each stream lands in its own file, which is how connector acceptance
// runs keep per-stream artifacts apart. Output can be compressed with
// any algorithm the compression package supports.
package jsonl

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/pkg/compression"
	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/base"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/errors"
	jsonpool "github.com/parallaxworks/parallax/pkg/json"
	"github.com/parallaxworks/parallax/pkg/pool"
)

// defaultStream names the sink used for records that carry no stream ID
// in file-per-stream mode.
const defaultStream = "records"

// fileSink is one open output file with its full write chain. Records
// flow encoder -> counter -> compressor -> buffer -> file; the chain is
// torn down in the same order on close.
type fileSink struct {
	path    string
	file    *os.File
	buffer  *bufio.Writer
	comp    io.WriteCloser
	encoder *jsonpool.StreamingEncoder
	records int64
}

// flush pushes compressed bytes already emitted down to the file. It
// does not finalize the compression stream; only close does that.
func (s *fileSink) flush() error {
	return s.buffer.Flush()
}

// close finalizes the sink: the encoder writes any trailing array
// bracket, the compression stream emits its trailer, and the buffer is
// drained before the file handle is released.
func (s *fileSink) close() error {
	var firstErr error

	if err := s.encoder.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.comp.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.buffer.Flush(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// countingWriter counts the JSON bytes produced before compression.
type countingWriter struct {
	w io.Writer
	n *int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	atomic.AddInt64(cw.n, int64(n))
	return n, err
}

// JSONLDestination writes records to local JSON files
type JSONLDestination struct {
	*base.BaseConnector

	config *config.BaseConfig
	schema *core.Schema

	outputPath    string
	filePerStream bool
	isArray       bool
	createDirs    bool
	pretty        bool
	indent        string
	bufferSize    int

	algorithm  compression.Algorithm
	compressor compression.Compressor

	mu    sync.Mutex
	sinks map[string]*fileSink

	recordsWritten int64
	bytesWritten   int64
}

// NewJSONLDestination creates a new JSONL file destination connector
func NewJSONLDestination(name string, cfg *config.BaseConfig) (core.Destination, error) {
	d := &JSONLDestination{
		BaseConnector: base.NewBaseConnector(name, core.ConnectorTypeDestination, "1.0.0"),
		bufferSize:    64 * 1024,
		indent:        "  ",
		createDirs:    true,
		algorithm:     compression.None,
		sinks:         make(map[string]*fileSink),
	}

	return d, nil
}

// Initialize sets up the JSONL destination
func (d *JSONLDestination) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := d.BaseConnector.Initialize(ctx, cfg); err != nil {
		return err
	}
	d.config = cfg

	if err := d.extractConfig(cfg); err != nil {
		return err
	}

	comp, err := compression.NewCompressor(&compression.Config{
		Algorithm: d.algorithm,
		Level:     compressionLevel(cfg.Advanced.CompressionLevel),
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression configuration")
	}
	d.compressor = comp

	// Single-file mode opens its sink up front so path problems surface
	// before the sync starts moving records.
	if !d.filePerStream {
		if _, err := d.sinkFor(""); err != nil {
			return err
		}
	} else if d.createDirs {
		if err := os.MkdirAll(d.outputPath, 0755); err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig,
				fmt.Sprintf("failed to create output directory %s", d.outputPath))
		}
	}

	d.SetHealthCheck(d.Health)
	d.UpdateHealth(true, map[string]interface{}{"output_path": d.outputPath})

	d.GetLogger().Info("JSONL destination initialized",
		zap.String("output_path", d.outputPath),
		zap.Bool("file_per_stream", d.filePerStream),
		zap.String("format", formatName(d.isArray)),
		zap.String("compression", string(d.algorithm)))

	return nil
}

// extractConfig reads destination settings from the credentials map and
// the advanced section.
func (d *JSONLDestination) extractConfig(cfg *config.BaseConfig) error {
	path := cfg.Security.Credentials["path"]
	if path == "" {
		path = cfg.Security.Credentials["output_path"]
	}
	if path == "" {
		return errors.New(errors.ErrorTypeConfig, "path is required")
	}
	d.outputPath = path

	switch format := cfg.Security.Credentials["format"]; format {
	case "", "lines", "jsonl":
		d.isArray = false
	case "array":
		d.isArray = true
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unsupported format %q (expected lines or array)", format)
	}

	d.filePerStream = cfg.Security.Credentials["file_per_stream"] == "true"
	d.pretty = cfg.Security.Credentials["pretty"] == "true"
	if indent := cfg.Security.Credentials["indent"]; indent != "" {
		d.indent = indent
	}
	if cfg.Security.Credentials["create_dirs"] == "false" {
		d.createDirs = false
	}

	if cfg.Performance.BufferSize > 0 {
		d.bufferSize = cfg.Performance.BufferSize
	}

	if cfg.Advanced.EnableCompression {
		algo, err := compression.ParseAlgorithm(cfg.Advanced.CompressionAlgorithm)
		if err != nil {
			return errors.Wrap(err, errors.ErrorTypeConfig, "invalid compression_algorithm")
		}
		if algo == compression.None {
			algo = compression.Gzip
		}
		d.algorithm = algo
	}

	return nil
}

// CreateSchema records the schema; files carry no header so this only
// informs logging and metrics.
func (d *JSONLDestination) CreateSchema(ctx context.Context, schema *core.Schema) error {
	d.schema = schema

	d.GetLogger().Info("schema created",
		zap.String("schema_name", schema.Name),
		zap.Int("field_count", len(schema.Fields)))

	return nil
}

// Write writes a stream of records
func (d *JSONLDestination) Write(ctx context.Context, stream *core.RecordStream) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeConfig, "connector not initialized")
	}

	recordCount := 0
	errs := stream.Errors

	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				// Drain a pending failure before declaring completion;
				// the source may have closed both channels already.
				if err := drainError(errs); err != nil {
					return errors.Wrap(err, errors.ErrorTypeData, "error in record stream")
				}
				if err := d.flushAll(); err != nil {
					return err
				}
				d.GetLogger().Info("write stream completed",
					zap.Int("records_written", recordCount))
				return nil
			}

			if err := d.RateLimit(ctx); err != nil {
				record.Release()
				return err
			}

			if err := d.ExecuteWithCircuitBreaker(func() error {
				return d.writeRecord(record)
			}); err != nil {
				if handleErr := d.HandleError(ctx, err, record); handleErr != nil {
					record.Release()
					return handleErr
				}
				record.Release()
				continue
			}

			recordCount++
			atomic.AddInt64(&d.recordsWritten, 1)
			d.ReportProgress(atomic.LoadInt64(&d.recordsWritten), -1)
			record.Release()

		case err, ok := <-errs:
			if !ok {
				// Source closed its error channel; stop selecting on it
				// so the zero value is not mistaken for completion.
				errs = nil
				continue
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "error in record stream")
			}

		case <-ctx.Done():
			d.flushAll()
			return ctx.Err()
		}
	}
}

// WriteBatch writes batches of records
func (d *JSONLDestination) WriteBatch(ctx context.Context, stream *core.BatchStream) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeConfig, "connector not initialized")
	}

	recordCount := 0
	batchCount := 0
	errs := stream.Errors

	for {
		select {
		case batch, ok := <-stream.Batches:
			if !ok {
				if err := drainError(errs); err != nil {
					return errors.Wrap(err, errors.ErrorTypeData, "error in batch stream")
				}
				if err := d.flushAll(); err != nil {
					return err
				}
				d.GetLogger().Info("write batch stream completed",
					zap.Int("batches_processed", batchCount),
					zap.Int("total_records", recordCount))
				return nil
			}

			if err := d.RateLimit(ctx); err != nil {
				releaseBatch(batch)
				return err
			}

			if err := d.ExecuteWithCircuitBreaker(func() error {
				return d.writeBatch(ctx, batch)
			}); err != nil {
				if handleErr := d.HandleError(ctx, err, nil); handleErr != nil {
					releaseBatch(batch)
					return handleErr
				}
				releaseBatch(batch)
				continue
			}

			batchCount++
			recordCount += len(batch)
			atomic.AddInt64(&d.recordsWritten, int64(len(batch)))

			if err := d.flushAll(); err != nil {
				releaseBatch(batch)
				return err
			}

			d.ReportProgress(atomic.LoadInt64(&d.recordsWritten), -1)
			d.RecordCounter("batches_written", 1)
			releaseBatch(batch)

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			if err != nil {
				return errors.Wrap(err, errors.ErrorTypeData, "error in batch stream")
			}

		case <-ctx.Done():
			d.flushAll()
			return ctx.Err()
		}
	}
}

// writeRecord encodes a single record payload into its stream's sink.
func (d *JSONLDestination) writeRecord(record *pool.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	sink, err := d.sinkLocked(record.GetStreamID())
	if err != nil {
		return err
	}

	if err := sink.encoder.Encode(record.Data); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record")
	}
	sink.records++

	return nil
}

// writeBatch encodes a batch of records under a single lock.
func (d *JSONLDestination) writeBatch(ctx context.Context, batch []*pool.Record) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, record := range batch {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sink, err := d.sinkLocked(record.GetStreamID())
		if err != nil {
			return err
		}
		if err := sink.encoder.Encode(record.Data); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to encode record")
		}
		sink.records++
	}

	return nil
}

// sinkFor returns the sink for a stream, creating it on first use.
func (d *JSONLDestination) sinkFor(stream string) (*fileSink, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sinkLocked(stream)
}

func (d *JSONLDestination) sinkLocked(stream string) (*fileSink, error) {
	key := ""
	if d.filePerStream {
		key = stream
		if key == "" {
			key = defaultStream
		}
	}

	if sink, ok := d.sinks[key]; ok {
		return sink, nil
	}

	sink, err := d.openSink(d.sinkPath(key))
	if err != nil {
		return nil, err
	}
	d.sinks[key] = sink

	d.GetLogger().Debug("opened output file",
		zap.String("stream", key),
		zap.String("path", sink.path))

	return sink, nil
}

// sinkPath resolves the output file for a stream. In single-file mode
// the configured path is used as-is; in file-per-stream mode files are
// named after the stream under the output directory. Compressed output
// gets the algorithm's extension unless the path already carries it.
func (d *JSONLDestination) sinkPath(stream string) string {
	path := d.outputPath
	if d.filePerStream {
		path = filepath.Join(d.outputPath, stream+"."+formatExtension(d.isArray))
	}

	if ext := d.algorithm.Extension(); ext != "" && filepath.Ext(path) != ext {
		path += ext
	}

	return path
}

// openSink builds the write chain for one output file.
func (d *JSONLDestination) openSink(path string) (*fileSink, error) {
	if d.createDirs {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig,
				fmt.Sprintf("failed to create output directory for %s", path))
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig,
			fmt.Sprintf("failed to create output file %s", path))
	}

	buffer := bufio.NewWriterSize(file, d.bufferSize)

	comp, err := d.compressor.NewStreamWriter(buffer)
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to start compression stream")
	}

	encoder := jsonpool.NewStreamingEncoder(&countingWriter{w: comp, n: &d.bytesWritten}, d.isArray)
	if d.pretty && d.isArray {
		encoder.SetPretty(true, d.indent)
	}

	return &fileSink{
		path:    path,
		file:    file,
		buffer:  buffer,
		comp:    comp,
		encoder: encoder,
	}, nil
}

// flushAll flushes every open sink's file buffer.
func (d *JSONLDestination) flushAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, sink := range d.sinks {
		if err := sink.flush(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeInternal,
				fmt.Sprintf("failed to flush %s", sink.path))
		}
	}
	return nil
}

// Close finalizes all sinks and shuts down the destination
func (d *JSONLDestination) Close(ctx context.Context) error {
	d.mu.Lock()
	var firstErr error
	for _, sink := range d.sinks {
		if err := sink.close(); err != nil && firstErr == nil {
			firstErr = errors.Wrap(err, errors.ErrorTypeInternal,
				fmt.Sprintf("failed to close %s", sink.path))
		}
	}
	d.sinks = make(map[string]*fileSink)
	d.mu.Unlock()

	d.GetLogger().Info("JSONL destination closed",
		zap.Int64("total_records_written", atomic.LoadInt64(&d.recordsWritten)),
		zap.Int64("total_bytes_written", atomic.LoadInt64(&d.bytesWritten)))

	if err := d.BaseConnector.Close(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}

// SupportsBatch returns true since file output handles batches natively
func (d *JSONLDestination) SupportsBatch() bool {
	return true
}

// SupportsStreaming returns true since records are written as they arrive
func (d *JSONLDestination) SupportsStreaming() bool {
	return true
}

// Health checks the health of the JSONL destination
func (d *JSONLDestination) Health(ctx context.Context) error {
	if d.config == nil {
		return errors.New(errors.ErrorTypeHealth, "connector not initialized")
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, sink := range d.sinks {
		if sink.file == nil {
			return errors.Newf(errors.ErrorTypeHealth, "output file %s not open", sink.path)
		}
	}
	return nil
}

// Metrics returns destination metrics
func (d *JSONLDestination) Metrics() map[string]interface{} {
	d.mu.Lock()
	files := make(map[string]int64, len(d.sinks))
	for _, sink := range d.sinks {
		files[sink.path] = sink.records
	}
	openFiles := len(d.sinks)
	d.mu.Unlock()

	return map[string]interface{}{
		"type":            "jsonl",
		"records_written": atomic.LoadInt64(&d.recordsWritten),
		"bytes_written":   atomic.LoadInt64(&d.bytesWritten),
		"open_files":      openFiles,
		"files":           files,
		"compression":     string(d.algorithm),
	}
}

func releaseBatch(batch []*pool.Record) {
	for _, record := range batch {
		record.Release()
	}
}

// drainError pops one buffered stream error without blocking.
func drainError(errs <-chan error) error {
	if errs == nil {
		return nil
	}
	select {
	case err, ok := <-errs:
		if ok {
			return err
		}
	default:
	}
	return nil
}

func formatName(isArray bool) string {
	if isArray {
		return "array"
	}
	return "lines"
}

func formatExtension(isArray bool) string {
	if isArray {
		return "json"
	}
	return "jsonl"
}

// compressionLevel maps the numeric config level onto the compression
// package's named levels.
func compressionLevel(level int) compression.Level {
	switch level {
	case 1:
		return compression.Fastest
	case 2:
		return compression.Better
	case 3:
		return compression.Best
	default:
		return compression.Default
	}
}
