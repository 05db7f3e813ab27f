package vectorize

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashBackendRecordWidth(t *testing.T) {
	b := NewHashBackend()

	var buf bytes.Buffer
	require.NoError(t, b.ProcessChunk([]string{"a", "b", "c"}, &buf))

	assert.Equal(t, 3*RecordWidth, buf.Len())
}

func TestHashBackendDeterministic(t *testing.T) {
	b := NewHashBackend()

	var buf1, buf2 bytes.Buffer
	chunk := []string{`{"text":"hello"}`, `{"text":"world"}`}

	require.NoError(t, b.ProcessChunk(chunk, &buf1))
	require.NoError(t, b.ProcessChunk(chunk, &buf2))

	assert.Equal(t, buf1.Bytes(), buf2.Bytes())
}

func TestHashBackendDistinguishesInputs(t *testing.T) {
	b := NewHashBackend()

	var buf1, buf2 bytes.Buffer
	require.NoError(t, b.ProcessChunk([]string{"hello"}, &buf1))
	require.NoError(t, b.ProcessChunk([]string{"goodbye"}, &buf2))

	assert.NotEqual(t, buf1.Bytes(), buf2.Bytes())
}
