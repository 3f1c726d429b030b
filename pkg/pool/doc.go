// Package pool keeps the record path allocation-flat. It provides a
// generic, reset-aware wrapper over sync.Pool and the shared Record
// type every connector and the pipeline exchange.
//
// Records are borrowed and returned rather than allocated:
//
//	record := pool.GetRecord()
//	defer record.Release()
//
//	record.SetData("campaignId", 1234)
//	record.Metadata.Source = "source-amazon-ads"
//
// A custom pool needs an allocator and, usually, a reset hook that
// runs on every Put:
//
//	scratch := pool.New(
//		func() *bytes.Buffer { return &bytes.Buffer{} },
//		func(b *bytes.Buffer) { b.Reset() },
//	)
//
// Pre-built pools cover the common cases: RecordPool for records,
// MapPool for the map payloads behind Data and Custom, and
// BatchSlicePool for the slices batches travel in. Stats on any pool
// reports hit rates for leak hunting.
//
// Objects must not be used after they are released, and a pooled
// object should stay on the goroutine that borrowed it.
package pool
