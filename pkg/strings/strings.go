// Package strings has the pooled string helpers used on Parallax hot
// paths: zero-copy conversions, reusable builders in three size
// classes, and allocation-light URL assembly for API endpoints.
package strings

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"unsafe"
)

// BytesToString returns a string view of b without copying. The
// string shares b's memory; the caller must not modify b afterwards.
func BytesToString(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(unsafe.SliceData(b), len(b))
}

// StringToBytes returns a byte view of s without copying. The slice
// shares s's memory and must be treated as read-only.
func StringToBytes(s string) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Clone returns a copy of s that owns its own memory. Call it before
// the pooled builder backing s is reused.
func Clone(s string) string {
	return strings.Clone(s)
}

// Builder accumulates bytes for string assembly. Unlike
// strings.Builder it exposes its buffer and can go back to a pool.
type Builder struct {
	buf []byte
}

// NewBuilder returns a builder with the given initial capacity.
func NewBuilder(capacity int) *Builder {
	return &Builder{buf: make([]byte, 0, capacity)}
}

// WriteString appends s.
func (b *Builder) WriteString(s string) {
	b.buf = append(b.buf, s...)
}

// WriteBytes appends data.
func (b *Builder) WriteBytes(data []byte) {
	b.buf = append(b.buf, data...)
}

// WriteByte appends one byte.
func (b *Builder) WriteByte(c byte) {
	b.buf = append(b.buf, c)
}

// Write implements io.Writer.
func (b *Builder) Write(p []byte) (int, error) {
	b.buf = append(b.buf, p...)
	return len(p), nil
}

// String returns the accumulated bytes as a zero-copy string. The
// result is invalidated by further writes, Reset, or returning the
// builder to a pool; Clone it to keep it.
func (b *Builder) String() string {
	return BytesToString(b.buf)
}

// Bytes returns the accumulated bytes. Same aliasing rules as String.
func (b *Builder) Bytes() []byte {
	return b.buf
}

// Len returns the number of accumulated bytes.
func (b *Builder) Len() int {
	return len(b.buf)
}

// Reset empties the builder, keeping its capacity.
func (b *Builder) Reset() {
	b.buf = b.buf[:0]
}

// BuilderSize selects one of the builder pools.
type BuilderSize int

// Pool size classes. Small covers identifiers and URLs, Medium
// covers API responses and report rows, Large covers bulk payloads.
const (
	Small BuilderSize = iota
	Medium
	Large
)

var builderPools [Large + 1]sync.Pool

func (s BuilderSize) normalize() BuilderSize {
	if s < Small || s > Large {
		return Small
	}
	return s
}

func (s BuilderSize) capacity() int {
	switch s {
	case Large:
		return 64 << 10
	case Medium:
		return 16 << 10
	default:
		return 1 << 10
	}
}

// sizeFor picks the pool class for an estimated output length.
func sizeFor(estimated int) BuilderSize {
	switch {
	case estimated > 16<<10:
		return Large
	case estimated > 1<<10:
		return Medium
	default:
		return Small
	}
}

// GetBuilder fetches an empty builder from the pool for the given
// size class.
func GetBuilder(size BuilderSize) *Builder {
	size = size.normalize()
	if b, ok := builderPools[size].Get().(*Builder); ok {
		b.Reset()
		return b
	}
	return NewBuilder(size.capacity())
}

// PutBuilder returns a builder to its pool. The builder and any
// strings still aliasing its buffer must not be used afterwards.
func PutBuilder(builder *Builder, size BuilderSize) {
	if builder == nil {
		return
	}
	builder.Reset()
	builderPools[size.normalize()].Put(builder)
}

// Concat joins parts with no delimiter through a pooled builder.
func Concat(parts ...string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}

	total := 0
	for _, s := range parts {
		total += len(s)
	}

	size := sizeFor(total)
	b := GetBuilder(size)
	defer PutBuilder(b, size)

	for _, s := range parts {
		b.WriteString(s)
	}
	return Clone(b.String())
}

// Sprintf formats through a pooled builder instead of allocating a
// fresh buffer per call. With no args the format is returned as is.
func Sprintf(format string, args ...interface{}) string {
	if len(args) == 0 {
		return format
	}

	size := sizeFor(len(format) + 16*len(args))
	b := GetBuilder(size)
	defer PutBuilder(b, size)

	fmt.Fprintf(b, format, args...)
	return Clone(b.String())
}

// JoinPooled joins parts with delimiter through a pooled builder.
func JoinPooled(parts []string, delimiter string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}

	total := (len(parts) - 1) * len(delimiter)
	for _, s := range parts {
		total += len(s)
	}

	size := sizeFor(total)
	b := GetBuilder(size)
	defer PutBuilder(b, size)

	b.WriteString(parts[0])
	for _, s := range parts[1:] {
		b.WriteString(delimiter)
		b.WriteString(s)
	}
	return Clone(b.String())
}

// BuildWith runs fn against a pooled builder of the given size and
// returns an owned copy of the result.
func BuildWith(size BuilderSize, fn func(*Builder)) string {
	b := GetBuilder(size)
	defer PutBuilder(b, size)

	fn(b)
	return Clone(b.String())
}

// BuildString is BuildWith with the Small pool.
func BuildString(fn func(*Builder)) string {
	return BuildWith(Small, fn)
}

// TrimSpace trims ASCII whitespace from both ends. API identifiers
// and header values never carry unicode spaces, so the standard
// library's unicode tables are skipped.
func TrimSpace(s string) string {
	for len(s) > 0 && asciiSpace(s[0]) {
		s = s[1:]
	}
	for len(s) > 0 && asciiSpace(s[len(s)-1]) {
		s = s[:len(s)-1]
	}
	return s
}

func asciiSpace(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}

// Split splits s on delimiter. The parts are views into s, not
// copies. An empty delimiter returns s whole.
func Split(s, delimiter string) []string {
	if delimiter == "" {
		return []string{s}
	}

	parts := make([]string, 0, strings.Count(s, delimiter)+1)
	for {
		idx := strings.Index(s, delimiter)
		if idx < 0 {
			return append(parts, s)
		}
		parts = append(parts, s[:idx])
		s = s[idx+len(delimiter):]
	}
}

// ValueToString renders scalar values without going through fmt in
// the common cases.
func ValueToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case []byte:
		return BytesToString(v)
	default:
		return Sprintf("%v", value)
	}
}

// URLBuilder assembles request URLs on top of a pooled builder.
// Close returns the builder to its pool.
type URLBuilder struct {
	b         *Builder
	size      BuilderSize
	hasParams bool
}

// NewURLBuilder starts a URL from baseURL.
func NewURLBuilder(baseURL string) *URLBuilder {
	size := sizeFor(len(baseURL))
	b := GetBuilder(size)
	b.WriteString(baseURL)

	return &URLBuilder{
		b:         b,
		size:      size,
		hasParams: strings.Contains(baseURL, "?"),
	}
}

// AddPath appends escaped path segments, skipping empty ones.
func (ub *URLBuilder) AddPath(segments ...string) *URLBuilder {
	for _, seg := range segments {
		if seg == "" {
			continue
		}
		ub.b.WriteByte('/')
		ub.b.WriteString(escape(seg, pathSafe, false))
	}
	return ub
}

// AddParam appends an escaped query parameter.
func (ub *URLBuilder) AddParam(key, value string) *URLBuilder {
	if ub.hasParams {
		ub.b.WriteByte('&')
	} else {
		ub.b.WriteByte('?')
		ub.hasParams = true
	}

	ub.b.WriteString(escape(key, querySafe, true))
	ub.b.WriteByte('=')
	ub.b.WriteString(escape(value, querySafe, true))
	return ub
}

// AddParamInt appends an integer query parameter.
func (ub *URLBuilder) AddParamInt(key string, value int) *URLBuilder {
	return ub.AddParam(key, strconv.Itoa(value))
}

// AddParamBool appends a boolean query parameter.
func (ub *URLBuilder) AddParamBool(key string, value bool) *URLBuilder {
	return ub.AddParam(key, strconv.FormatBool(value))
}

// String returns an owned copy of the URL built so far.
func (ub *URLBuilder) String() string {
	return Clone(ub.b.String())
}

// Close releases the underlying builder. The URLBuilder must not be
// used afterwards.
func (ub *URLBuilder) Close() {
	if ub.b != nil {
		PutBuilder(ub.b, ub.size)
		ub.b = nil
	}
}

const upperhex = "0123456789ABCDEF"

// escape percent-encodes the bytes safe reports false for. In query
// mode a space becomes '+' per form encoding.
func escape(s string, safe func(byte) bool, query bool) string {
	clean := true
	for i := 0; i < len(s); i++ {
		if !safe(s[i]) {
			clean = false
			break
		}
	}
	if clean {
		return s
	}

	b := GetBuilder(Small)
	defer PutBuilder(b, Small)

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case safe(c):
			b.WriteByte(c)
		case query && c == ' ':
			b.WriteByte('+')
		default:
			b.WriteByte('%')
			b.WriteByte(upperhex[c>>4])
			b.WriteByte(upperhex[c&0xF])
		}
	}
	return Clone(b.String())
}

// querySafe reports bytes that need no escaping in a query string.
func querySafe(c byte) bool {
	return alnum(c) || c == '-' || c == '_' || c == '.' || c == '~'
}

// pathSafe reports bytes that need no escaping in a path segment.
func pathSafe(c byte) bool {
	if querySafe(c) {
		return true
	}
	switch c {
	case '/', ':', '@', '!', '$', '&', '\'', '(', ')', '*', '+', ',', ';', '=':
		return true
	}
	return false
}

func alnum(c byte) bool {
	return (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9')
}
