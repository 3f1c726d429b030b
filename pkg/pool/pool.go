// Package pool owns the pooled Record type that flows between
// sources and destinations, plus the typed object pools behind it.
// Everything here exists to keep steady-state syncs allocation-flat.
package pool

import (
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Pool wraps sync.Pool with typed accessors, an optional reset hook,
// and hit accounting. Safe for concurrent use.
type Pool[T any] struct {
	inner sync.Pool
	reset func(T)

	allocs int64
	gets   int64
	inUse  int64
}

// New builds a typed pool. newFn allocates when the pool is empty;
// reset, if non-nil, runs on every Put before the object is stored.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{reset: reset}
	p.inner.New = func() interface{} {
		atomic.AddInt64(&p.allocs, 1)
		return newFn()
	}
	return p
}

// Get returns a pooled object, allocating if the pool is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.gets, 1)
	atomic.AddInt64(&p.inUse, 1)
	return p.inner.Get().(T)
}

// Put stores obj for reuse after running the reset hook.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.inUse, -1)
	p.inner.Put(obj)
}

// Stats is a point-in-time snapshot of pool counters.
type Stats struct {
	Allocated int64 // objects built by the allocator
	InUse     int64 // objects currently checked out
	Hits      int64 // gets served from the pool
	Misses    int64 // gets that had to allocate
}

// Stats returns the pool counters. Hits and misses partition the
// total number of gets.
func (p *Pool[T]) Stats() Stats {
	gets := atomic.LoadInt64(&p.gets)
	allocs := atomic.LoadInt64(&p.allocs)
	return Stats{
		Allocated: allocs,
		InUse:     atomic.LoadInt64(&p.inUse),
		Hits:      gets - allocs,
		Misses:    allocs,
	}
}

// RecordMetadata carries provenance for a record. All fields are
// optional.
type RecordMetadata struct {
	// Source names the connector that produced the record.
	Source string `json:"source,omitempty"`
	// StreamID names the stream within a multi-stream source.
	StreamID string `json:"stream_id,omitempty"`
	// Offset is the record's position in its stream.
	Offset int64 `json:"offset,omitempty"`
	// Timestamp is when the record was captured.
	Timestamp time.Time `json:"timestamp"`
	// Custom holds connector-specific fields.
	Custom map[string]interface{} `json:"custom,omitempty"`
}

// Record is the unit of data moved between sources and destinations.
// Records come from GetRecord and go back through Release rather than
// being allocated directly.
type Record struct {
	ID       string                 `json:"id"`
	Data     map[string]interface{} `json:"data"`
	Metadata RecordMetadata         `json:"metadata"`
	Schema   interface{}            `json:"schema,omitempty"`
	// RawData holds original bytes when a connector needs them; it
	// is never serialized.
	RawData []byte `json:"-"`
}

// Shared pools for the record path.
var (
	// RecordPool recycles Record objects.
	RecordPool = New(
		func() *Record {
			return &Record{Data: make(map[string]interface{}, 16)}
		},
		resetRecord,
	)

	// MapPool recycles the maps behind Data and Custom.
	MapPool = New(
		func() map[string]interface{} {
			return make(map[string]interface{}, 16)
		},
		clearMap,
	)

	// BatchSlicePool recycles the slices the pipeline moves record
	// batches in.
	BatchSlicePool = New(
		func() []*Record { return make([]*Record, 0, 1000) },
		func(batch []*Record) {
			for i := range batch {
				batch[i] = nil
			}
		},
	)

	idBufs = New(
		func() []byte { return make([]byte, 0, 64) },
		nil,
	)
)

func resetRecord(r *Record) {
	r.ID = ""
	r.Schema = nil
	r.RawData = nil
	clearMap(r.Data)
	clearMap(r.Metadata.Custom)
	r.Metadata = RecordMetadata{}
}

func clearMap(m map[string]interface{}) {
	for k := range m {
		delete(m, k)
	}
}

// GetRecord returns a record with a fresh timestamp and initialized
// maps. Pair it with Release or PutRecord.
func GetRecord() *Record {
	r := RecordPool.Get()
	r.Metadata.Timestamp = time.Now()
	if r.Data == nil {
		r.Data = GetMap()
	}
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = GetMap()
	}
	return r
}

// PutRecord returns a record and its custom metadata map for reuse.
// Safe on nil.
func PutRecord(record *Record) {
	if record == nil {
		return
	}
	if record.Metadata.Custom != nil {
		PutMap(record.Metadata.Custom)
		record.Metadata.Custom = nil
	}
	RecordPool.Put(record)
}

// GetMap returns a pooled map for record payloads.
func GetMap() map[string]interface{} {
	return MapPool.Get()
}

// PutMap returns a map for reuse. Safe on nil.
func PutMap(m map[string]interface{}) {
	if m != nil {
		MapPool.Put(m)
	}
}

// GetBatchSlice returns an empty record slice with at least the
// requested capacity.
func GetBatchSlice(capacity int) []*Record {
	batch := BatchSlicePool.Get()
	if cap(batch) < capacity {
		return make([]*Record, 0, capacity)
	}
	return batch[:0]
}

// PutBatchSlice returns a batch slice for reuse, clearing record
// references so they can be collected. Safe on nil.
func PutBatchSlice(batch []*Record) {
	if batch != nil {
		BatchSlicePool.Put(batch)
	}
}

// NewRecord builds a record around an existing data map. The map is
// used directly and will be cleared when the record is released.
func NewRecord(source string, data map[string]interface{}) *Record {
	r := GetRecord()
	r.ID = GenerateID("rec")
	r.Data = data
	r.Metadata.Source = source
	return r
}

// NewRecordFromPool builds a record whose recycled data map is ready
// to fill incrementally.
func NewRecordFromPool(source string) *Record {
	r := GetRecord()
	r.ID = GenerateID("rec")
	r.Metadata.Source = source
	return r
}

var idCounter uint64

// GenerateID returns "prefix-N" with a process-unique N. Safe for
// concurrent use.
func GenerateID(prefix string) string {
	n := atomic.AddUint64(&idCounter, 1)

	buf := idBufs.Get()
	buf = append(buf, prefix...)
	buf = append(buf, '-')
	buf = strconv.AppendUint(buf, n, 10)

	id := string(buf)
	idBufs.Put(buf[:0])
	return id
}

// SetData sets one payload field, initializing the map if needed.
func (r *Record) SetData(key string, value interface{}) {
	if r.Data == nil {
		r.Data = GetMap()
	}
	r.Data[key] = value
}

// GetData reads one payload field.
func (r *Record) GetData(key string) (interface{}, bool) {
	val, ok := r.Data[key]
	return val, ok
}

// SetMetadata sets one custom metadata field, initializing the map
// if needed.
func (r *Record) SetMetadata(key string, value interface{}) {
	if r.Metadata.Custom == nil {
		r.Metadata.Custom = GetMap()
	}
	r.Metadata.Custom[key] = value
}

// GetMetadata reads one custom metadata field.
func (r *Record) GetMetadata(key string) (interface{}, bool) {
	val, ok := r.Metadata.Custom[key]
	return val, ok
}

// Release returns the record to the pool. Typical use is defer
// Release right after obtaining the record.
func (r *Record) Release() {
	PutRecord(r)
}

// SetTimestamp sets the capture timestamp.
func (r *Record) SetTimestamp(t time.Time) { r.Metadata.Timestamp = t }

// GetTimestamp returns the capture timestamp.
func (r *Record) GetTimestamp() time.Time { return r.Metadata.Timestamp }

// SetStreamID names the stream the record belongs to.
func (r *Record) SetStreamID(streamID string) { r.Metadata.StreamID = streamID }

// GetStreamID returns the record's stream.
func (r *Record) GetStreamID() string { return r.Metadata.StreamID }

// SetOffset records the position within the stream.
func (r *Record) SetOffset(offset int64) { r.Metadata.Offset = offset }

// GetOffset returns the position within the stream.
func (r *Record) GetOffset() int64 { return r.Metadata.Offset }
