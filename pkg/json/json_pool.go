// Package json wraps goccy/go-json with pooled buffers and streaming
// helpers for record serialization.
package json

import (
	"bytes"
	"io"
	"sync"

	gojson "github.com/goccy/go-json"

	"github.com/parallaxworks/parallax/pkg/pool"
)

const (
	bufSize      = 4 << 10
	maxPooledBuf = 1 << 20
)

var bufPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, bufSize))
	},
}

// GetBuffer returns an empty pooled buffer.
func GetBuffer() *bytes.Buffer {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

// PutBuffer returns a buffer to the pool. Buffers that grew past 1MiB
// are dropped.
func PutBuffer(buf *bytes.Buffer) {
	if buf.Cap() > maxPooledBuf {
		return
	}
	bufPool.Put(buf)
}

// Marshal is a drop-in replacement for encoding/json.Marshal.
func Marshal(v interface{}) ([]byte, error) {
	return gojson.Marshal(v)
}

// Unmarshal is a drop-in replacement for encoding/json.Unmarshal.
func Unmarshal(data []byte, v interface{}) error {
	return gojson.Unmarshal(data, v)
}

// NewEncoder returns an encoder configured for API payloads: HTML
// escaping off, so URLs in record data survive round trips intact.
func NewEncoder(w io.Writer) *gojson.Encoder {
	enc := gojson.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc
}

// MarshalToWriter encodes v directly to w. The output ends with a
// newline.
func MarshalToWriter(w io.Writer, v interface{}) error {
	return NewEncoder(w).Encode(v)
}

// StreamingEncoder writes values one at a time, either as
// line-delimited JSON or as a single JSON array.
type StreamingEncoder struct {
	w       io.Writer
	enc     *gojson.Encoder
	array   bool
	pretty  bool
	started bool
}

// NewStreamingEncoder starts a stream on w. With isArray the output is
// wrapped in brackets and comma-separated; otherwise each value lands
// on its own line.
func NewStreamingEncoder(w io.Writer, isArray bool) *StreamingEncoder {
	se := &StreamingEncoder{
		w:     w,
		enc:   NewEncoder(w),
		array: isArray,
	}
	if isArray {
		w.Write([]byte{'['})
	}
	return se
}

// SetPretty enables indented output.
func (se *StreamingEncoder) SetPretty(pretty bool, indent string) {
	se.pretty = pretty
	if pretty {
		se.enc.SetIndent("", indent)
	}
}

// Encode writes one value to the stream.
func (se *StreamingEncoder) Encode(v interface{}) error {
	if se.array && se.started {
		sep := []byte{','}
		if se.pretty {
			sep = []byte{',', '\n'}
		}
		if _, err := se.w.Write(sep); err != nil {
			return err
		}
	}
	se.started = true

	// Encode appends a newline after every value. That is the framing
	// in line mode and harmless whitespace inside an array.
	return se.enc.Encode(v)
}

// Close terminates the stream. Only array output needs it, but calling
// it unconditionally is safe.
func (se *StreamingEncoder) Close() error {
	if !se.array {
		return nil
	}
	tail := []byte{']'}
	if se.pretty {
		tail = []byte{'\n', ']'}
	}
	_, err := se.w.Write(tail)
	return err
}

// MarshalRecordsLines renders record payloads as line-delimited JSON.
func MarshalRecordsLines(records []*pool.Record) ([]byte, error) {
	buf := GetBuffer()
	defer PutBuffer(buf)

	enc := NewEncoder(buf)
	for _, record := range records {
		if err := enc.Encode(record.Data); err != nil {
			return nil, err
		}
	}
	return copyOut(buf), nil
}

// MarshalRecordsArray renders record payloads as one JSON array.
func MarshalRecordsArray(records []*pool.Record) ([]byte, error) {
	if len(records) == 0 {
		return []byte("[]"), nil
	}

	buf := GetBuffer()
	defer PutBuffer(buf)

	buf.WriteByte('[')
	for i, record := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		data, err := gojson.Marshal(record.Data)
		if err != nil {
			return nil, err
		}
		buf.Write(data)
	}
	buf.WriteByte(']')

	return copyOut(buf), nil
}

// copyOut detaches the bytes from a pooled buffer before the buffer
// is reused.
func copyOut(buf *bytes.Buffer) []byte {
	out := make([]byte, buf.Len())
	copy(out, buf.Bytes())
	return out
}
