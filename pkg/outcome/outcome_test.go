package outcome

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	errDiskFull = errors.New("no space left on device")
	errReset    = errors.New("connection reset by peer")
)

func TestError_IsMatchesKindAndCause(t *testing.T) {
	err := New(KindLocalIO, "/tmp/1465_2016.zip", errDiskFull)

	assert.ErrorIs(t, err, ErrLocalIO)
	assert.ErrorIs(t, err, errDiskFull)
	assert.NotErrorIs(t, err, ErrTransport)
	assert.Contains(t, err.Error(), "/tmp/1465_2016.zip")
	assert.Contains(t, err.Error(), "no space left on device")
}

func TestError_WrappedStillClassified(t *testing.T) {
	err := fmt.Errorf("unit 1465/2016: %w", New(KindRemoteAbsent, "https://example/x.zip", nil))

	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindRemoteAbsent, kind)
	assert.ErrorIs(t, err, ErrRemoteAbsent)
	assert.Equal(t, "remote_absent", Label(err))
}

func TestIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "local io", err: New(KindLocalIO, "x", errDiskFull), want: true},
		{name: "remote absent", err: New(KindRemoteAbsent, "x", nil), want: false},
		{name: "transport", err: New(KindTransport, "x", errReset), want: false},
		{name: "archive corrupt", err: New(KindArchiveCorrupt, "x", nil), want: false},
		{name: "layer not found", err: New(KindLayerNotFound, "x", nil), want: false},
		{name: "import failed", err: New(KindImportFailed, "x", nil), want: false},
		{name: "spatial op", err: New(KindSpatialOp, "x", nil), want: false},
		{name: "canceled", err: context.Canceled, want: true},
		{name: "classified timeout is not fatal", err: New(KindTransport, "x", context.DeadlineExceeded), want: false},
		{name: "unclassified", err: errReset, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFatal(tt.err))
		})
	}
}

func TestKind_SentinelUnknown(t *testing.T) {
	assert.ErrorIs(t, Kind("bogus").Sentinel(), ErrUnknownKind)
}

type failingWriter struct{}

func (failingWriter) Write(_ []byte) (int, error) { return 0, errDiskFull }

type failingReader struct{}

func (failingReader) Read(_ []byte) (int, error) { return 0, errReset }

func TestCopy_ClassifiesSide(t *testing.T) {
	var buf bytes.Buffer

	n, err := Copy(&buf, strings.NewReader("abc"), KindTransport, "op")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	_, err = Copy(failingWriter{}, strings.NewReader("abc"), KindTransport, "op")
	assert.ErrorIs(t, err, ErrLocalIO)

	_, err = Copy(&buf, failingReader{}, KindTransport, "op")
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, errReset)
}
