package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecords(n int) []byte {
	var buf bytes.Buffer
	for i := 0; i < n; i++ {
		fmt.Fprintf(&buf,
			`{"campaignId":"%d","name":"Campaign %d","state":"ENABLED","budget":{"budgetType":"DAILY","budget":25.5}}`+"\n",
			1000+i, i)
	}
	return buf.Bytes()
}

func TestRoundTripAllAlgorithms(t *testing.T) {
	original := sampleRecords(200)

	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(algo), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: algo, Level: Default})
			require.NoError(t, err)

			compressed, err := comp.Compress(original)
			require.NoError(t, err)

			decompressed, err := comp.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, original, decompressed)

			var compressedBuf bytes.Buffer
			require.NoError(t, comp.CompressStream(&compressedBuf, bytes.NewReader(original)))

			var decompressedBuf bytes.Buffer
			require.NoError(t, comp.DecompressStream(&decompressedBuf, &compressedBuf))
			assert.Equal(t, original, decompressedBuf.Bytes())
		})
	}
}

func TestStreamWriterRoundTrip(t *testing.T) {
	original := sampleRecords(200)

	for _, algo := range []Algorithm{None, Gzip, Snappy, LZ4, Zstd, S2} {
		t.Run(string(algo), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: algo, Level: Default})
			require.NoError(t, err)

			var compressed bytes.Buffer
			w, err := comp.NewStreamWriter(&compressed)
			require.NoError(t, err)

			// Write in uneven chunks; the stream must only be complete after Close.
			half := len(original) / 2
			_, err = w.Write(original[:half])
			require.NoError(t, err)
			_, err = w.Write(original[half:])
			require.NoError(t, err)
			require.NoError(t, w.Close())

			var decompressed bytes.Buffer
			require.NoError(t, comp.DecompressStream(&decompressed, &compressed))
			assert.Equal(t, original, decompressed.Bytes())
		})
	}
}

func TestGzipOutputReadableByStdlib(t *testing.T) {
	// Run reports land in GCS as .json.gz; standard tools must read them.
	original := sampleRecords(50)

	comp, err := NewCompressor(&Config{Algorithm: Gzip, Level: Default})
	require.NoError(t, err)

	compressed, err := comp.Compress(original)
	require.NoError(t, err)

	r, err := gzip.NewReader(bytes.NewReader(compressed))
	require.NoError(t, err)
	defer r.Close()

	decoded, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, original, decoded)
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		input   string
		want    Algorithm
		wantErr bool
	}{
		{"", None, false},
		{"none", None, false},
		{"gzip", Gzip, false},
		{"GZIP", Gzip, false},
		{" zstd ", Zstd, false},
		{"zstandard", Zstd, false},
		{"lz4", LZ4, false},
		{"snappy", Snappy, false},
		{"s2", S2, false},
		{"brotli", None, true},
	}

	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.input)
		if tt.wantErr {
			assert.Error(t, err, "input %q", tt.input)
			continue
		}
		assert.NoError(t, err, "input %q", tt.input)
		assert.Equal(t, tt.want, got, "input %q", tt.input)
	}
}

func TestExtension(t *testing.T) {
	assert.Equal(t, "", None.Extension())
	assert.Equal(t, ".gz", Gzip.Extension())
	assert.Equal(t, ".zst", Zstd.Extension())
	assert.Equal(t, ".lz4", LZ4.Extension())
	assert.Equal(t, ".snappy", Snappy.Extension())
	assert.Equal(t, ".s2", S2.Extension())
}

func TestCompressionLevels(t *testing.T) {
	testData := bytes.Repeat(sampleRecords(10), 20)

	for _, level := range []Level{Fastest, Default, Better, Best} {
		t.Run(level.String(), func(t *testing.T) {
			comp, err := NewCompressor(&Config{Algorithm: Zstd, Level: level})
			require.NoError(t, err)

			compressed, err := comp.Compress(testData)
			require.NoError(t, err)
			assert.Less(t, len(compressed), len(testData))

			decompressed, err := comp.Decompress(compressed)
			require.NoError(t, err)
			assert.Equal(t, testData, decompressed)
		})
	}
}

func TestNewCompressorUnsupported(t *testing.T) {
	_, err := NewCompressor(&Config{Algorithm: Algorithm("brotli")})
	assert.Error(t, err)
}

func TestCompressorPoolReuse(t *testing.T) {
	pool := NewCompressorPool(&Config{Algorithm: Gzip, Level: Default})
	original := sampleRecords(30)

	for i := 0; i < 5; i++ {
		compressed, err := pool.Compress(original)
		require.NoError(t, err)

		decompressed, err := pool.Decompress(compressed)
		require.NoError(t, err)
		assert.Equal(t, original, decompressed)
	}
}

// Helper method for Level
func (l Level) String() string {
	switch l {
	case Fastest:
		return "Fastest"
	case Default:
		return "Default"
	case Better:
		return "Better"
	case Best:
		return "Best"
	default:
		return "Unknown"
	}
}
