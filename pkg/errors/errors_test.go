package errors

import (
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	err := New(ErrorTypeUsage, "unknown connector name")

	assert.Equal(t, ErrorTypeUsage, err.Type)
	assert.Equal(t, "usage: unknown connector name", err.Error())
	assert.NotEmpty(t, err.Stack, "New should capture a stack")
	assert.Nil(t, err.Cause)
}

func TestNewf(t *testing.T) {
	err := Newf(ErrorTypeNotFound, "connector %q not in registry", "source-amazon-ads")
	assert.Equal(t, `not_found: connector "source-amazon-ads" not in registry`, err.Error())
}

func TestWrap(t *testing.T) {
	base := io.ErrUnexpectedEOF
	err := Wrap(base, ErrorTypeConnection, "reading campaign page")

	require.NotNil(t, err)
	assert.Equal(t, ErrorTypeConnection, err.Type)
	assert.Equal(t, "connection: reading campaign page: unexpected EOF", err.Error())
	assert.ErrorIs(t, err, base)
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrorTypeInternal, "should be nil"))
}

func TestWrapPreservesStack(t *testing.T) {
	inner := New(ErrorTypeData, "bad record")
	outer := Wrap(inner, ErrorTypeInternal, "stream failed")

	assert.Equal(t, inner.Stack, outer.Stack, "wrapping should keep the original stack")
	assert.ErrorIs(t, outer, inner)
}

func TestIsType(t *testing.T) {
	err := New(ErrorTypeConfig, "missing GCP_GSM_CREDENTIALS")

	assert.True(t, IsType(err, ErrorTypeConfig))
	assert.False(t, IsType(err, ErrorTypeInternal))

	wrapped := Wrap(err, ErrorTypeUsage, "environment check failed")
	assert.True(t, IsType(wrapped, ErrorTypeUsage))
	assert.False(t, IsType(wrapped, ErrorTypeConfig), "IsType reports the outermost type")

	assert.False(t, IsType(fmt.Errorf("plain"), ErrorTypeInternal))
	assert.False(t, IsType(nil, ErrorTypeInternal))
}

func TestIsUsage(t *testing.T) {
	assert.True(t, IsUsage(New(ErrorTypeUsage, "--use-remote-secrets without credentials")))
	assert.False(t, IsUsage(New(ErrorTypeInternal, "boom")))
}

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		errType   ErrorType
		retryable bool
	}{
		{ErrorTypeRateLimit, true},
		{ErrorTypeTimeout, true},
		{ErrorTypeConnection, true},
		{ErrorTypeInternal, false},
		{ErrorTypeValidation, false},
		{ErrorTypeUsage, false},
		{ErrorTypeNotFound, false},
	}

	for _, tc := range cases {
		err := New(tc.errType, "test")
		assert.Equal(t, tc.retryable, IsRetryable(err), "type %s", tc.errType)
	}

	assert.False(t, IsRetryable(io.EOF))
	assert.False(t, IsRetryable(nil))
}

func TestWithDetail(t *testing.T) {
	err := New(ErrorTypeValidation, "invalid support level").
		WithDetail("value", "gold").
		WithDetail("allowed", []string{"certified", "community", "archived"})

	assert.Equal(t, "gold", err.Details["value"])
	assert.Len(t, err.Details, 2)
}

func TestUnwrapChain(t *testing.T) {
	base := New(ErrorTypeConnection, "dial tcp: refused")
	mid := Wrap(base, ErrorTypeData, "listing ad groups")
	top := Wrap(mid, ErrorTypeInternal, "sync failed")

	assert.Equal(t, "internal: sync failed: data: listing ad groups: connection: dial tcp: refused", top.Error())
	assert.ErrorIs(t, top, base)
}
