// Package compression compresses Parallax output files and run
// reports. Six algorithms sit behind one Compressor interface, with
// block helpers for in-memory payloads and stream writers for files.
//
// Gzip is the default because .gz output stays readable by standard
// tooling. Snappy, S2, and LZ4 trade ratio for speed; Zstd has the
// best ratio at comparable speed.
//
//	comp, err := compression.NewCompressor(&compression.Config{
//	    Algorithm: compression.Gzip,
//	    Level:     compression.Default,
//	})
//	compressed, err := comp.Compress(data)
package compression

import (
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/snappy"
	"github.com/klauspost/compress/zstd"
	stringpool "github.com/parallaxworks/parallax/pkg/strings"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names a compression algorithm.
type Algorithm string

// Supported algorithms.
const (
	None   Algorithm = "none"
	Gzip   Algorithm = "gzip"
	Snappy Algorithm = "snappy"
	LZ4    Algorithm = "lz4"
	Zstd   Algorithm = "zstd"
	S2     Algorithm = "s2"
)

// ParseAlgorithm maps a configuration string to an Algorithm. An
// empty string maps to None.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(stringpool.TrimSpace(s)) {
	case "", "none":
		return None, nil
	case "gzip":
		return Gzip, nil
	case "snappy":
		return Snappy, nil
	case "lz4":
		return LZ4, nil
	case "zstd", "zstandard":
		return Zstd, nil
	case "s2":
		return S2, nil
	default:
		return None, fmt.Errorf("unsupported compression algorithm: %s", s)
	}
}

// Extension returns the conventional file suffix for the algorithm,
// including the leading dot. None returns an empty string.
func (a Algorithm) Extension() string {
	switch a {
	case Gzip:
		return ".gz"
	case Snappy:
		return ".snappy"
	case LZ4:
		return ".lz4"
	case Zstd:
		return ".zst"
	case S2:
		return ".s2"
	default:
		return ""
	}
}

// Level trades compression speed against ratio. Each algorithm maps
// the four levels onto its own scale.
type Level int

// Compression levels from fastest to densest.
const (
	Fastest Level = 1
	Default Level = 5
	Better  Level = 7
	Best    Level = 9
)

// Compressor compresses and decompresses byte payloads and streams.
// Implementations are safe for concurrent use.
type Compressor interface {
	// Compress returns the compressed form of data.
	Compress(data []byte) ([]byte, error)

	// Decompress returns the original form of compressed data.
	Decompress(data []byte) ([]byte, error)

	// CompressStream compresses src into dst until EOF.
	CompressStream(dst io.Writer, src io.Reader) error

	// DecompressStream decompresses src into dst until EOF.
	DecompressStream(dst io.Writer, src io.Reader) error

	// NewStreamWriter returns a writer that compresses everything
	// written to it into dst. The stream is not complete until Close
	// is called; Close does not close dst.
	NewStreamWriter(dst io.Writer) (io.WriteCloser, error)

	// Algorithm returns the configured algorithm.
	Algorithm() Algorithm

	// Level returns the configured level.
	Level() Level
}

// Config selects an algorithm and level.
type Config struct {
	Algorithm Algorithm
	Level     Level
}

// DefaultConfig returns gzip at the balanced level.
func DefaultConfig() *Config {
	return &Config{
		Algorithm: Gzip,
		Level:     Default,
	}
}

// NewCompressor builds a compressor for the configured algorithm. A
// nil config gets DefaultConfig.
func NewCompressor(config *Config) (Compressor, error) {
	if config == nil {
		config = DefaultConfig()
	}

	var eng engine
	switch config.Algorithm {
	case None:
		eng = passthrough{}
	case Gzip:
		eng = newGzipEngine(config.Level)
	case Snappy:
		eng = snappyEngine{}
	case LZ4:
		eng = lz4Engine{level: lz4Level(config.Level)}
	case Zstd:
		eng = newZstdEngine(config.Level)
	case S2:
		eng = s2Engine{}
	default:
		return nil, fmt.Errorf("unsupported compression algorithm: %s", config.Algorithm)
	}

	return &codec{alg: config.Algorithm, lvl: config.Level, eng: eng}, nil
}

// engine is the per-algorithm core: block codecs plus framed stream
// constructors. Engines are safe for concurrent use.
type engine interface {
	encode(data []byte) ([]byte, error)
	decode(data []byte) ([]byte, error)
	writer(dst io.Writer) (io.WriteCloser, error)
	reader(src io.Reader) (io.Reader, error)
}

// codec implements Compressor over an engine.
type codec struct {
	alg Algorithm
	lvl Level
	eng engine
}

func (c *codec) Compress(data []byte) ([]byte, error)   { return c.eng.encode(data) }
func (c *codec) Decompress(data []byte) ([]byte, error) { return c.eng.decode(data) }

func (c *codec) CompressStream(dst io.Writer, src io.Reader) error {
	w, err := c.eng.writer(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, src); err != nil {
		return err
	}
	return w.Close()
}

func (c *codec) DecompressStream(dst io.Writer, src io.Reader) error {
	r, err := c.eng.reader(src)
	if err != nil {
		return err
	}
	// Zstd readers hold goroutines until closed.
	if closer, ok := r.(io.Closer); ok {
		defer closer.Close()
	}
	_, err = io.Copy(dst, r)
	return err
}

func (c *codec) NewStreamWriter(dst io.Writer) (io.WriteCloser, error) {
	return c.eng.writer(dst)
}

func (c *codec) Algorithm() Algorithm { return c.alg }
func (c *codec) Level() Level         { return c.lvl }

// CompressorPool shares one compressor across goroutines. The
// implementations are already safe for concurrent use and keep their
// own writer and reader pools, so a single instance serves everyone
// and reuse concentrates in one place.
type CompressorPool struct {
	comp Compressor
	err  error
}

// NewCompressorPool builds the shared compressor for config.
func NewCompressorPool(config *Config) *CompressorPool {
	comp, err := NewCompressor(config)
	return &CompressorPool{comp: comp, err: err}
}

// Compress compresses data with the shared compressor.
func (cp *CompressorPool) Compress(data []byte) ([]byte, error) {
	if cp.err != nil {
		return nil, cp.err
	}
	return cp.comp.Compress(data)
}

// Decompress decompresses data with the shared compressor.
func (cp *CompressorPool) Decompress(data []byte) ([]byte, error) {
	if cp.err != nil {
		return nil, cp.err
	}
	return cp.comp.Decompress(data)
}

// copyOut copies pooled builder contents into a caller-owned slice.
func copyOut(buf *stringpool.Builder) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}

// passthrough copies bytes unchanged for Algorithm None.
type passthrough struct{}

func (passthrough) encode(data []byte) ([]byte, error) { return data, nil }
func (passthrough) decode(data []byte) ([]byte, error) { return data, nil }

func (passthrough) writer(dst io.Writer) (io.WriteCloser, error) {
	return nopWriteCloser{dst}, nil
}

func (passthrough) reader(src io.Reader) (io.Reader, error) {
	// Hide any Closer on src; the stream helpers close what reader
	// returns, and src belongs to the caller.
	return io.NopCloser(src), nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }

// gzipEngine pools writers and readers, which are expensive to build.
// Stream writers handed to callers are fresh instances, since their
// lifetime is out of the engine's hands.
type gzipEngine struct {
	level   int
	writers sync.Pool
	readers sync.Pool
}

func newGzipEngine(lvl Level) *gzipEngine {
	return &gzipEngine{level: gzipLevel(lvl)}
}

func (e *gzipEngine) encode(data []byte) ([]byte, error) {
	buf := stringpool.GetBuilder(stringpool.Medium)
	defer stringpool.PutBuilder(buf, stringpool.Medium)

	w := e.getWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	e.writers.Put(w)

	return copyOut(buf), nil
}

func (e *gzipEngine) decode(data []byte) ([]byte, error) {
	r, err := e.getReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	buf := stringpool.GetBuilder(stringpool.Medium)
	defer stringpool.PutBuilder(buf, stringpool.Medium)

	if _, err := io.Copy(buf, r); err != nil {
		return nil, err
	}
	e.readers.Put(r)

	return copyOut(buf), nil
}

func (e *gzipEngine) writer(dst io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(dst, e.level)
}

func (e *gzipEngine) reader(src io.Reader) (io.Reader, error) {
	return gzip.NewReader(src)
}

func (e *gzipEngine) getWriter(dst io.Writer) *gzip.Writer {
	if w, ok := e.writers.Get().(*gzip.Writer); ok {
		w.Reset(dst)
		return w
	}
	w, _ := gzip.NewWriterLevel(dst, e.level)
	return w
}

func (e *gzipEngine) getReader(src io.Reader) (*gzip.Reader, error) {
	r, ok := e.readers.Get().(*gzip.Reader)
	if !ok {
		r = new(gzip.Reader)
	}
	if err := r.Reset(src); err != nil {
		return nil, err
	}
	return r, nil
}

// snappyEngine uses the block format for payloads and the framed
// format for streams, matching what external snappy tools expect.
type snappyEngine struct{}

func (snappyEngine) encode(data []byte) ([]byte, error) { return snappy.Encode(nil, data), nil }
func (snappyEngine) decode(data []byte) ([]byte, error) { return snappy.Decode(nil, data) }

func (snappyEngine) writer(dst io.Writer) (io.WriteCloser, error) {
	return snappy.NewBufferedWriter(dst), nil
}

func (snappyEngine) reader(src io.Reader) (io.Reader, error) {
	return snappy.NewReader(src), nil
}

// s2Engine is snappy-compatible framing with better compression.
type s2Engine struct{}

func (s2Engine) encode(data []byte) ([]byte, error) { return s2.Encode(nil, data), nil }
func (s2Engine) decode(data []byte) ([]byte, error) { return s2.Decode(nil, data) }

func (s2Engine) writer(dst io.Writer) (io.WriteCloser, error) {
	return s2.NewWriter(dst), nil
}

func (s2Engine) reader(src io.Reader) (io.Reader, error) {
	return s2.NewReader(src), nil
}

type lz4Engine struct {
	level lz4.CompressionLevel
}

func (e lz4Engine) encode(data []byte) ([]byte, error) {
	buf := stringpool.GetBuilder(stringpool.Medium)
	defer stringpool.PutBuilder(buf, stringpool.Medium)

	w, err := e.newWriter(buf)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	return copyOut(buf), nil
}

func (e lz4Engine) decode(data []byte) ([]byte, error) {
	buf := stringpool.GetBuilder(stringpool.Medium)
	defer stringpool.PutBuilder(buf, stringpool.Medium)

	if _, err := io.Copy(buf, lz4.NewReader(bytes.NewReader(data))); err != nil {
		return nil, err
	}

	return copyOut(buf), nil
}

func (e lz4Engine) writer(dst io.Writer) (io.WriteCloser, error) {
	return e.newWriter(dst)
}

func (e lz4Engine) reader(src io.Reader) (io.Reader, error) {
	return lz4.NewReader(src), nil
}

func (e lz4Engine) newWriter(dst io.Writer) (*lz4.Writer, error) {
	w := lz4.NewWriter(dst)
	if err := w.Apply(lz4.CompressionLevelOption(e.level)); err != nil {
		return nil, err
	}
	return w, nil
}

// zstdEngine pools encoders and decoders; both spin up worker state
// that is wasteful to rebuild per call.
type zstdEngine struct {
	level    zstd.EncoderLevel
	encoders sync.Pool
	decoders sync.Pool
}

func newZstdEngine(lvl Level) *zstdEngine {
	return &zstdEngine{level: zstdLevel(lvl)}
}

func (e *zstdEngine) encode(data []byte) ([]byte, error) {
	enc, err := e.getEncoder()
	if err != nil {
		return nil, err
	}
	out := enc.EncodeAll(data, nil)
	e.encoders.Put(enc)
	return out, nil
}

func (e *zstdEngine) decode(data []byte) ([]byte, error) {
	dec, err := e.getDecoder()
	if err != nil {
		return nil, err
	}
	out, err := dec.DecodeAll(data, nil)
	e.decoders.Put(dec)
	return out, err
}

func (e *zstdEngine) writer(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(e.level))
}

func (e *zstdEngine) reader(src io.Reader) (io.Reader, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}
	return dec.IOReadCloser(), nil
}

func (e *zstdEngine) getEncoder() (*zstd.Encoder, error) {
	if enc, ok := e.encoders.Get().(*zstd.Encoder); ok {
		return enc, nil
	}
	return zstd.NewWriter(nil, zstd.WithEncoderLevel(e.level))
}

func (e *zstdEngine) getDecoder() (*zstd.Decoder, error) {
	if dec, ok := e.decoders.Get().(*zstd.Decoder); ok {
		return dec, nil
	}
	return zstd.NewReader(nil)
}

func gzipLevel(l Level) int {
	switch l {
	case Fastest:
		return gzip.BestSpeed
	case Best:
		return gzip.BestCompression
	default:
		return gzip.DefaultCompression
	}
}

func lz4Level(l Level) lz4.CompressionLevel {
	switch l {
	case Fastest:
		return lz4.Fast
	case Best:
		return lz4.Level9
	default:
		return lz4.Level5
	}
}

func zstdLevel(l Level) zstd.EncoderLevel {
	switch l {
	case Fastest:
		return zstd.SpeedFastest
	case Better:
		return zstd.SpeedBetterCompression
	case Best:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
