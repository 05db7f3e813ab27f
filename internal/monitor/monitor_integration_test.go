//go:build integration
// +build integration

package monitor

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vectorq/taskqueue/internal/coordination"
	"github.com/vectorq/taskqueue/internal/task"
)

func etcdEndpoint() string {
	if addr := os.Getenv("TEST_ETCD_ENDPOINT"); addr != "" {
		return addr
	}
	return "localhost:2379"
}

func newTestClient(t *testing.T) *coordination.Client {
	t.Helper()
	client, err := coordination.New(coordination.Config{
		Endpoints:   []string{etcdEndpoint()},
		DialTimeout: 5 * time.Second,
		Service:     "monitor-test-" + t.Name(),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx := context.Background()
		kvs, err := client.ListByCreateOrder(ctx, client.Prefix())
		if err == nil {
			for _, kv := range kvs {
				_ = client.Delete(ctx, kv.Key)
			}
		}
		client.Close()
	})
	return client
}

// putRunning writes a running task directly (bypassing the worker-side
// transition methods), the way an orphan left behind by a dead worker
// would actually look on disk: a running status with no claim key.
func putRunning(t *testing.T, client *coordination.Client, id string) {
	t.Helper()
	st := task.NewPendingState(task.Init{InputFile: "in.jsonl", OutputFile: "out.vec"})
	st.Status = task.StatusRunning
	data, err := json.Marshal(st)
	require.NoError(t, err)
	require.NoError(t, client.Put(context.Background(), client.TaskKey(id), string(data), nil))
}

// TestPauseIfOrphan_RepatriatesWithoutClaim covers spec §4.5's orphan
// recovery: a running task whose claim has evaporated (lease expired,
// worker died) must be value-CAS'd back to resuming.
func TestPauseIfOrphan_RepatriatesWithoutClaim(t *testing.T) {
	client := newTestClient(t)
	putRunning(t, client, "orphan")

	m := New(client)
	require.NoError(t, m.pauseIfOrphan(context.Background(), "orphan"))

	raw, ok, err := client.Get(context.Background(), client.TaskKey("orphan"))
	require.NoError(t, err)
	require.True(t, ok)

	var st task.State
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	assert.Equal(t, task.StatusResuming, st.Status)
}

// TestPauseIfOrphan_NoopWithLiveClaim is the guard's other branch: a
// running task whose claim key still exists must be left untouched,
// because a worker is still actively holding it.
func TestPauseIfOrphan_NoopWithLiveClaim(t *testing.T) {
	client := newTestClient(t)
	putRunning(t, client, "alive")
	require.NoError(t, client.Put(context.Background(), client.ClaimKey("alive"), "some-worker", nil))

	m := New(client)
	require.NoError(t, m.pauseIfOrphan(context.Background(), "alive"))

	raw, ok, err := client.Get(context.Background(), client.TaskKey("alive"))
	require.NoError(t, err)
	require.True(t, ok)

	var st task.State
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	assert.Equal(t, task.StatusRunning, st.Status, "a live claim must prevent repatriation")
}

// TestPauseIfOrphan_NoopWhenNotRunning covers tasks that are pending,
// paused, or otherwise not currently running: the guard must no-op rather
// than erroring or touching status.
func TestPauseIfOrphan_NoopWhenNotRunning(t *testing.T) {
	client := newTestClient(t)
	controller := task.NewController(client)
	require.NoError(t, controller.Create(context.Background(), "pending-task", task.Init{
		InputFile: "in.jsonl", OutputFile: "out.vec",
	}))

	m := New(client)
	require.NoError(t, m.pauseIfOrphan(context.Background(), "pending-task"))

	raw, ok, err := client.Get(context.Background(), client.TaskKey("pending-task"))
	require.NoError(t, err)
	require.True(t, ok)

	var st task.State
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	assert.Equal(t, task.StatusPending, st.Status)
}

// TestScan_EnqueuesRunnableAndRepatriatesOrphans covers the monitor's
// startup sweep: pending/resuming tasks get a queue marker, and a running
// task with no claim is repatriated to resuming in the same pass.
func TestScan_EnqueuesRunnableAndRepatriatesOrphans(t *testing.T) {
	client := newTestClient(t)
	controller := task.NewController(client)
	require.NoError(t, controller.Create(context.Background(), "scan-pending", task.Init{
		InputFile: "in.jsonl", OutputFile: "out.vec",
	}))
	putRunning(t, client, "scan-orphan")

	m := New(client)
	require.NoError(t, m.scan(context.Background()))

	_, queued, err := client.Get(context.Background(), client.QueueKey("scan-pending"))
	require.NoError(t, err)
	assert.True(t, queued, "a pending task must be enqueued by scan")

	raw, ok, err := client.Get(context.Background(), client.TaskKey("scan-orphan"))
	require.NoError(t, err)
	require.True(t, ok)
	var st task.State
	require.NoError(t, json.Unmarshal([]byte(raw), &st))
	assert.Equal(t, task.StatusResuming, st.Status, "a running task with no claim must be repatriated during scan")
}
