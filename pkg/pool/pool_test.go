package pool

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolGetPut(t *testing.T) {
	type scratch struct {
		data []byte
	}

	p := New(
		func() *scratch { return &scratch{data: make([]byte, 0, 8)} },
		func(s *scratch) { s.data = s.data[:0] },
	)

	obj := p.Get()
	obj.data = append(obj.data, 'x')
	p.Put(obj)

	again := p.Get()
	assert.Empty(t, again.data, "reset should clear the object")
	p.Put(again)

	st := p.Stats()
	assert.GreaterOrEqual(t, st.Allocated, int64(1))
	assert.Equal(t, int64(0), st.InUse, "everything returned")
	assert.Equal(t, int64(2), st.Hits+st.Misses, "one per Get")
	assert.Equal(t, st.Allocated, st.Misses, "each allocation is a miss")
}

func TestGetRecordInitialized(t *testing.T) {
	record := GetRecord()
	defer record.Release()

	assert.False(t, record.Metadata.Timestamp.IsZero(), "timestamp should be set")
	assert.NotNil(t, record.Metadata.Custom, "custom metadata map should be initialized")
	assert.Empty(t, record.Data)
}

func TestRecordReleaseClearsState(t *testing.T) {
	record := GetRecord()
	record.ID = "rec-test"
	record.SetData("campaignId", int64(42))
	record.SetMetadata("stream", "campaigns")
	record.SetStreamID("campaigns")
	record.SetOffset(7)
	record.RawData = []byte(`{"campaignId":42}`)
	record.Release()

	fresh := GetRecord()
	defer fresh.Release()

	assert.Empty(t, fresh.ID)
	assert.Empty(t, fresh.Data)
	assert.Empty(t, fresh.Metadata.StreamID)
	assert.Zero(t, fresh.Metadata.Offset)
	assert.Nil(t, fresh.RawData)
	_, ok := fresh.GetMetadata("stream")
	assert.False(t, ok)
}

func TestRecordDataAccess(t *testing.T) {
	record := GetRecord()
	defer record.Release()

	record.SetData("keywordId", int64(99))

	val, ok := record.GetData("keywordId")
	require.True(t, ok)
	assert.Equal(t, int64(99), val)

	_, ok = record.GetData("missing")
	assert.False(t, ok)
}

func TestNewRecord(t *testing.T) {
	data := map[string]interface{}{"adId": int64(123)}
	record := NewRecord("source-amazon-ads", data)
	defer record.Release()

	assert.True(t, strings.HasPrefix(record.ID, "rec-"))
	assert.Equal(t, "source-amazon-ads", record.Metadata.Source)
	assert.Equal(t, data["adId"], record.Data["adId"])
}

func TestNewRecordFromPool(t *testing.T) {
	record := NewRecordFromPool("source-csv")
	defer record.Release()

	require.NotNil(t, record.Data, "data map ready to fill")
	record.SetData("row", 1)
	assert.Equal(t, "source-csv", record.Metadata.Source)
	assert.NotEmpty(t, record.ID)
}

func TestPutNilSafe(t *testing.T) {
	assert.NotPanics(t, func() { PutRecord(nil) })
	assert.NotPanics(t, func() { PutMap(nil) })
	assert.NotPanics(t, func() { PutBatchSlice(nil) })
}

func TestGenerateIDUnique(t *testing.T) {
	const n = 1000
	var mu sync.Mutex
	seen := make(map[string]bool, n)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/8; j++ {
				id := GenerateID("job")
				mu.Lock()
				assert.False(t, seen[id], "duplicate id %s", id)
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, n)
}

func TestGetBatchSlice(t *testing.T) {
	batch := GetBatchSlice(10)
	assert.Empty(t, batch)
	assert.GreaterOrEqual(t, cap(batch), 10)
	PutBatchSlice(batch)

	big := GetBatchSlice(5000)
	assert.GreaterOrEqual(t, cap(big), 5000)
	PutBatchSlice(big)
}

func BenchmarkRecordPool(b *testing.B) {
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			record := GetRecord()
			record.SetData("campaignId", int64(1))
			record.Release()
		}
	})
}

func BenchmarkGenerateID(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_ = GenerateID("rec")
	}
}
