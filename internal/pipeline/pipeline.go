// Package pipeline drives one sync run: a source streaming into a
// destination with optional in-flight transforms.
//
// A run wires four stages over channels:
//   - the source reader draining the connector's record stream,
//   - a pool of transform workers applying transforms in order,
//   - a batch collector grouping records with a flush interval,
//   - the destination writer feeding the connector's batch stream.
//
// The first failing stage aborts the run; Run returns that error after
// every stage has wound down. Records travel as *pool.Record with
// ownership passing downstream, so only the failing stage releases the
// records it still holds.
package pipeline

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/parallaxworks/parallax/pkg/config"
	"github.com/parallaxworks/parallax/pkg/connector/core"
	"github.com/parallaxworks/parallax/pkg/errors"
	"github.com/parallaxworks/parallax/pkg/metrics"
	"github.com/parallaxworks/parallax/pkg/observability"
	"github.com/parallaxworks/parallax/pkg/pool"
)

// Transform modifies records in flight. Returning a nil record drops
// the record. Transforms run sequentially in the order they were added.
type Transform func(ctx context.Context, record *pool.Record) (*pool.Record, error)

// Config controls batching and parallelism for one run.
type Config struct {
	// SourceName and DestinationName label logs, metrics, and spans.
	SourceName      string
	DestinationName string

	// BatchSize is the number of records per destination batch.
	BatchSize int
	// WorkerCount is the number of parallel transform workers.
	WorkerCount int
	// FlushInterval bounds how long a partial batch may wait.
	FlushInterval time.Duration
}

// DefaultConfig returns settings suited to API-bound syncs.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:     5000,
		WorkerCount:   4,
		FlushInterval: 10 * time.Second,
	}
}

// ConfigFromBase derives pipeline settings from a connector config.
func ConfigFromBase(cfg *config.BaseConfig) *Config {
	out := DefaultConfig()
	if cfg == nil {
		return out
	}
	if cfg.Performance.BatchSize > 0 {
		out.BatchSize = cfg.Performance.BatchSize
	}
	if cfg.Performance.Workers > 0 {
		out.WorkerCount = cfg.Performance.Workers
	}
	if cfg.Performance.FlushInterval > 0 {
		out.FlushInterval = cfg.Performance.FlushInterval
	}
	return out
}

// Pipeline streams records from one source into one destination.
type Pipeline struct {
	source      core.Source
	destination core.Destination
	transforms  []Transform
	config      *Config
	logger      *zap.Logger

	recordsProcessed int64
	recordsDropped   int64
	recordsFailed    int64
	startTime        time.Time

	cancel   context.CancelFunc
	firstErr error
	mu       sync.Mutex
	wg       sync.WaitGroup
}

// New creates a pipeline over an initialized source and destination.
// The pipeline does not manage connector lifecycles; the caller
// initializes and closes both ends.
func New(source core.Source, destination core.Destination, cfg *Config, logger *zap.Logger) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Pipeline{
		source:      source,
		destination: destination,
		config:      cfg,
		logger: logger.With(
			zap.String("source", cfg.SourceName),
			zap.String("destination", cfg.DestinationName)),
	}
}

// AddTransform appends a transform. Transforms apply in insertion order
// on every record before it reaches the destination.
func (p *Pipeline) AddTransform(transform Transform) {
	p.transforms = append(p.transforms, transform)
}

// Run executes the sync and blocks until the source is drained or a
// stage fails. The returned error is the first failure observed.
func (p *Pipeline) Run(ctx context.Context) error {
	ctx, span := observability.NewSpan(ctx, "pipeline.run")
	span.SetAttribute("source", p.config.SourceName)
	span.SetAttribute("destination", p.config.DestinationName)
	span.SetAttribute("batch_size", p.config.BatchSize)
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.cancel = cancel
	p.startTime = time.Now()

	p.logger.Info("starting sync",
		zap.Int("batch_size", p.config.BatchSize),
		zap.Int("worker_count", p.config.WorkerCount),
		zap.Int("transforms", len(p.transforms)))

	schema, err := p.source.Discover(runCtx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, errors.ErrorTypeData, "schema discovery failed")
	}
	if err := p.destination.CreateSchema(runCtx, schema); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return errors.Wrap(err, errors.ErrorTypeData, "failed to prepare destination schema")
	}

	recordChan := make(chan *pool.Record, p.config.BatchSize*2)
	transformedChan := make(chan *pool.Record, p.config.BatchSize*2)
	batchChan := make(chan []*pool.Record, 10)

	p.wg.Add(1)
	go p.readSource(runCtx, recordChan)

	transformWg := &sync.WaitGroup{}
	for i := 0; i < p.config.WorkerCount; i++ {
		transformWg.Add(1)
		go func(id int) {
			defer transformWg.Done()
			p.transformWorker(runCtx, id, recordChan, transformedChan)
		}(i)
	}
	go func() {
		transformWg.Wait()
		close(transformedChan)
	}()

	p.wg.Add(1)
	go p.collectBatches(runCtx, transformedChan, batchChan)

	p.wg.Add(1)
	go p.writeDestination(runCtx, batchChan)

	p.wg.Wait()

	duration := time.Since(p.startTime)
	processed, dropped, failed := p.counts()
	throughput := 0.0
	if duration > 0 {
		throughput = float64(processed) / duration.Seconds()
	}
	metrics.Throughput.WithLabelValues(p.config.SourceName, p.config.DestinationName).Set(throughput)

	span.SetAttribute("records_processed", processed)
	span.SetAttribute("records_dropped", dropped)
	span.SetAttribute("records_failed", failed)

	p.logResourceUsage()

	if err := p.err(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		p.logger.Error("sync failed",
			zap.Int64("records_processed", processed),
			zap.Duration("duration", duration),
			zap.Error(err))
		return err
	}

	span.SetStatus(codes.Ok, "")
	p.logger.Info("sync completed",
		zap.Int64("records_processed", processed),
		zap.Int64("records_dropped", dropped),
		zap.Int64("records_failed", failed),
		zap.Duration("duration", duration),
		zap.Float64("throughput_rps", throughput))

	return nil
}

// Metrics returns a snapshot of run counters.
func (p *Pipeline) Metrics() map[string]interface{} {
	processed, dropped, failed := p.counts()

	duration := time.Duration(0)
	if !p.startTime.IsZero() {
		duration = time.Since(p.startTime)
	}
	throughput := 0.0
	if duration > 0 {
		throughput = float64(processed) / duration.Seconds()
	}

	return map[string]interface{}{
		"records_processed": processed,
		"records_dropped":   dropped,
		"records_failed":    failed,
		"duration":          duration.String(),
		"throughput_rps":    throughput,
		"batch_size":        p.config.BatchSize,
		"worker_count":      p.config.WorkerCount,
		"transform_count":   len(p.transforms),
	}
}

// readSource drains the source's record stream into the transform
// stage.
func (p *Pipeline) readSource(ctx context.Context, out chan<- *pool.Record) {
	defer p.wg.Done()
	defer close(out)

	stream, err := p.source.Read(ctx)
	if err != nil {
		p.fail(errors.Wrap(err, errors.ErrorTypeConnection, "failed to start source read"))
		return
	}

	errs := stream.Errors
	for {
		select {
		case record, ok := <-stream.Records:
			if !ok {
				// Drain a pending failure before declaring the stream
				// complete; the source may close both channels together.
				if err := drainError(errs); err != nil {
					p.fail(errors.Wrap(err, errors.ErrorTypeConnection, "source failed"))
				}
				return
			}

			select {
			case out <- record:
			case <-ctx.Done():
				record.Release()
				return
			}

		case err, ok := <-errs:
			if !ok {
				// Source closed its error channel; stop selecting on it
				// so the zero value is not mistaken for a failure.
				errs = nil
				continue
			}
			if err != nil {
				p.fail(errors.Wrap(err, errors.ErrorTypeConnection, "source failed"))
				return
			}

		case <-ctx.Done():
			return
		}
	}
}

// transformWorker applies the transform chain to records. A transform
// error fails the run; a nil result drops the record.
func (p *Pipeline) transformWorker(ctx context.Context, id int, in <-chan *pool.Record, out chan<- *pool.Record) {
	logger := p.logger.With(zap.Int("worker", id))

	for {
		select {
		case record, ok := <-in:
			if !ok {
				return
			}

			transformed := record
			if len(p.transforms) > 0 {
				start := time.Now()
				for _, transform := range p.transforms {
					result, err := transform(ctx, transformed)
					if err != nil {
						p.mu.Lock()
						p.recordsFailed++
						p.mu.Unlock()
						transformed.Release()
						p.fail(errors.Wrap(err, errors.ErrorTypeData, "transform failed"))
						return
					}
					if result == nil {
						p.mu.Lock()
						p.recordsDropped++
						p.mu.Unlock()
						transformed.Release()
						transformed = nil
						break
					}
					transformed = result
				}
				if transformed != nil {
					metrics.ProcessingLatency.WithLabelValues(
						"transform", p.config.SourceName, p.config.DestinationName).
						Observe(float64(time.Since(start).Nanoseconds()))
				}
			}
			if transformed == nil {
				continue
			}

			select {
			case out <- transformed:
			case <-ctx.Done():
				transformed.Release()
				return
			}

		case <-ctx.Done():
			logger.Debug("transform worker cancelled")
			return
		}
	}
}

// collectBatches groups records into destination batches, flushing on
// size or after the flush interval so records never sit indefinitely.
func (p *Pipeline) collectBatches(ctx context.Context, in <-chan *pool.Record, out chan<- []*pool.Record) {
	defer p.wg.Done()
	defer close(out)

	batch := pool.GetBatchSlice(p.config.BatchSize)
	ticker := time.NewTicker(p.config.FlushInterval)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		select {
		case out <- batch:
			// Ownership of a sent batch moves to the writer.
			batch = pool.GetBatchSlice(p.config.BatchSize)
		case <-ctx.Done():
		}
	}

	for {
		select {
		case record, ok := <-in:
			if !ok {
				flush()
				return
			}

			batch = append(batch, record)
			if len(batch) >= p.config.BatchSize {
				flush()
			}

		case <-ticker.C:
			flush()

		case <-ctx.Done():
			flush()
			return
		}
	}
}

// writeDestination forwards batches into the destination's batch
// stream and surfaces writer failures.
func (p *Pipeline) writeDestination(ctx context.Context, in <-chan []*pool.Record) {
	defer p.wg.Done()

	destBatches := make(chan []*pool.Record, 10)
	destErrors := make(chan error, 1)

	stream := &core.BatchStream{
		Batches: destBatches,
		Errors:  destErrors,
	}

	writeDone := make(chan struct{})
	go func() {
		defer close(writeDone)
		if err := p.destination.WriteBatch(ctx, stream); err != nil {
			p.fail(errors.Wrap(err, errors.ErrorTypeData, "destination write failed"))
		}
	}()

	for {
		select {
		case batch, ok := <-in:
			if !ok {
				close(destBatches)
				<-writeDone
				return
			}

			select {
			case destBatches <- batch:
				p.mu.Lock()
				p.recordsProcessed += int64(len(batch))
				p.mu.Unlock()
				metrics.RecordsProcessed.WithLabelValues(
					p.config.SourceName, p.config.DestinationName, "success").
					Add(float64(len(batch)))

			case <-ctx.Done():
				close(destBatches)
				<-writeDone
				return
			}

		case <-ctx.Done():
			close(destBatches)
			<-writeDone
			return
		}
	}
}

// fail records the first failure and aborts the run.
func (p *Pipeline) fail(err error) {
	if err == nil {
		return
	}
	p.mu.Lock()
	if p.firstErr == nil {
		p.firstErr = err
	}
	p.mu.Unlock()
	p.cancel()
}

func (p *Pipeline) err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.firstErr
}

func (p *Pipeline) counts() (processed, dropped, failed int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.recordsProcessed, p.recordsDropped, p.recordsFailed
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

// logResourceUsage logs a process resource snapshot after the run.
func (p *Pipeline) logResourceUsage() {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return
	}

	fields := make([]zap.Field, 0, 3)
	if memInfo, err := proc.MemoryInfo(); err == nil && memInfo != nil {
		fields = append(fields, zap.Uint64("rss_bytes", memInfo.RSS))
	}
	if cpuPercent, err := proc.CPUPercent(); err == nil {
		fields = append(fields, zap.Float64("cpu_percent", cpuPercent))
	}
	if threads, err := proc.NumThreads(); err == nil {
		fields = append(fields, zap.Int32("threads", threads))
	}
	if len(fields) > 0 {
		p.logger.Info("resource usage after sync", fields...)
	}
}

// FieldMapperTransform renames record fields according to mapping;
// unmapped fields pass through unchanged.
func FieldMapperTransform(mapping map[string]string) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if record.Data == nil {
			return record, nil
		}

		newData := pool.GetMap()
		for oldField, newField := range mapping {
			if value, ok := record.Data[oldField]; ok {
				newData[newField] = value
			}
		}
		for field, value := range record.Data {
			if _, mapped := mapping[field]; !mapped {
				newData[field] = value
			}
		}

		record.Data = newData
		return record, nil
	}
}

// FilterTransform drops records the predicate rejects.
func FilterTransform(predicate func(*pool.Record) bool) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if predicate(record) {
			return record, nil
		}
		return nil, nil
	}
}

// TypeConverterTransform converts one field's value with the given
// converter. Absent fields pass through untouched.
func TypeConverterTransform(field string, converter func(interface{}) (interface{}, error)) Transform {
	return func(ctx context.Context, record *pool.Record) (*pool.Record, error) {
		if record.Data == nil {
			return record, nil
		}

		if value, ok := record.Data[field]; ok {
			converted, err := converter(value)
			if err != nil {
				return nil, errors.Wrap(err, errors.ErrorTypeData,
					fmt.Sprintf("failed to convert field %s", field))
			}
			record.Data[field] = converted
		}

		return record, nil
	}
}
