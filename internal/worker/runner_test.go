package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorq/taskqueue/internal/task"
)

func TestSafeJoin(t *testing.T) {
	root := "/data/vectorize"

	tests := []struct {
		name    string
		rel     string
		want    string
		wantErr bool
	}{
		{name: "simple relative path", rel: "input.jsonl", want: "/data/vectorize/input.jsonl"},
		{name: "nested relative path", rel: "batch/input.jsonl", want: "/data/vectorize/batch/input.jsonl"},
		{name: "root itself", rel: ".", want: "/data/vectorize"},
		{name: "parent traversal rejected", rel: "../secrets.jsonl", wantErr: true},
		{name: "deep parent traversal rejected", rel: "batch/../../secrets.jsonl", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := safeJoin(root, tt.rel)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, task.ErrInvalidPath)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountLines(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		want    int64
	}{
		{name: "empty file", content: "", want: 0},
		{name: "trailing newline", content: "a\nb\nc\n", want: 3},
		{name: "no trailing newline", content: "a\nb\nc", want: 3},
		{name: "single line no newline", content: "only", want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.name+".jsonl")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))

			got, err := countLines(path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCountLinesMissingFile(t *testing.T) {
	got, err := countLines(filepath.Join(t.TempDir(), "missing.jsonl"))
	require.NoError(t, err)
	assert.Equal(t, int64(0), got)
}

func TestRateTracker(t *testing.T) {
	tr := newRateTracker(3)

	rate, avg := tr.record(100, 1*time.Second)
	assert.InDelta(t, 100.0, rate, 0.001)
	assert.InDelta(t, 100.0, avg, 0.001)

	rate, avg = tr.record(200, 1*time.Second)
	assert.InDelta(t, 200.0, rate, 0.001)
	assert.InDelta(t, 150.0, avg, 0.001)

	rate, avg = tr.record(300, 1*time.Second)
	assert.InDelta(t, 300.0, rate, 0.001)
	assert.InDelta(t, 200.0, avg, 0.001)

	// Window is 3: this fourth sample evicts the first (100 items/1s).
	rate, avg = tr.record(100, 1*time.Second)
	assert.InDelta(t, 100.0, rate, 0.001)
	assert.InDelta(t, 200.0, avg, 0.001)
}

func TestRunnerChunkSizeDefault(t *testing.T) {
	r := &Runner{cfg: Config{}}
	assert.Equal(t, 100, r.chunkSize())

	r = &Runner{cfg: Config{ChunkSize: 50}}
	assert.Equal(t, 50, r.chunkSize())
}
