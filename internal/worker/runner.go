// Package worker implements the resumable batch execution loop described
// in spec §4.6: the dispatcher that pulls one task at a time, runs its
// chunked vectorization loop against input/output files, and survives
// interruption by anchoring resume on the durable output file size.
package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/vectorq/taskqueue/internal/logger"
	"github.com/vectorq/taskqueue/internal/metrics"
	"github.com/vectorq/taskqueue/internal/queue"
	"github.com/vectorq/taskqueue/internal/task"
	"github.com/vectorq/taskqueue/internal/vectorize"
)

// rateWindow is how many recent chunks feed avg_rate's sliding mean,
// matching spec §4.6 ("sliding-window mean over the last ten chunks").
const rateWindow = 10

// Config configures one Runner instance. Every mutable process-wide
// singleton the original source relied on (coordination client, directory
// root, chunk size, identity) is threaded through here explicitly instead,
// per the spec's redesign note in §9.
type Config struct {
	RootDir   string
	ChunkSize int
	Identity  string
	Backend   vectorize.Backend
}

// Runner drives a single sequential next_task -> dispatch -> chunk-loop
// cycle. Spec §5 calls this single-threaded: one Runner processes one task
// at a time, cooperatively checkpointing at chunk boundaries. A worker
// process that wants concurrency runs several Runners, each in its own
// goroutine (see Group).
type Runner struct {
	queue  *queue.Queue
	cfg    Config
}

// NewRunner builds a Runner pulling tasks from q.
func NewRunner(q *queue.Queue, cfg Config) *Runner {
	if cfg.Backend == nil {
		cfg.Backend = vectorize.NewHashBackend()
	}
	return &Runner{queue: q, cfg: cfg}
}

// Run loops forever: next_task(), dispatch on status, repeat. Returns when
// ctx is canceled or NextTask returns a non-context error.
func (r *Runner) Run(ctx context.Context) error {
	for {
		handle, err := r.queue.NextTask(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return fmt.Errorf("worker: next task: %w", err)
		}

		r.dispatch(ctx, handle)
	}
}

// dispatch runs one task to completion (or interruption/timeout/error),
// recovering panics into a finish_error the way a caught, stringified
// exception with stack context would in the original source.
func (r *Runner) dispatch(ctx context.Context, handle *task.Handle) {
	status := handle.Status()

	var err error
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v\n%s", rec, debug.Stack())
			}
		}()

		switch status {
		case task.StatusPending:
			err = r.startFresh(ctx, handle)
		case task.StatusResuming:
			err = r.startResumed(ctx, handle)
		default:
			logger.Warn().Str("task_id", handle.ID()).Str("status", string(status)).
				Msg("worker: dequeued task in unexpected status, skipping (raced monitor)")
		}
	}()

	r.handleOutcome(ctx, handle, err)
}

func (r *Runner) handleOutcome(ctx context.Context, handle *task.Handle, err error) {
	if err == nil {
		return
	}

	var interrupted *task.InterruptedError
	var timeout *task.TimeoutError
	switch {
	case errors.As(err, &interrupted):
		logger.Info().Str("task_id", handle.ID()).Str("reason", interrupted.Reason).
			Msg("worker: task interrupted, state already updated")
	case errors.As(err, &timeout):
		logger.Warn().Str("task_id", handle.ID()).
			Msg("worker: lease expired mid-task, abandoning without touching state")
	default:
		logger.Error().Err(err).Str("task_id", handle.ID()).Msg("worker: task failed")
		if ferr := handle.FinishError(ctx, err.Error()); ferr != nil {
			logger.Error().Err(ferr).Str("task_id", handle.ID()).Msg("worker: failed to record task failure")
		}
	}
}

// startFresh implements spec §4.6's start_fresh: transition to running,
// open input/output, count total input items if progress is absent, then
// run the chunk loop from the beginning.
func (r *Runner) startFresh(ctx context.Context, handle *task.Handle) error {
	if err := handle.Start(ctx); err != nil {
		return err
	}

	inputPath, outputPath, err := r.resolvePaths(handle)
	if err != nil {
		return err
	}

	total := int64(0)
	if p := handle.Progress(); p != nil && p.Total > 0 {
		total = p.Total
	} else {
		total, err = countLines(inputPath)
		if err != nil {
			return fmt.Errorf("count input lines: %w", err)
		}
	}

	return r.runChunkLoop(ctx, handle, inputPath, outputPath, 0, 0, total)
}

// startResumed implements spec §4.6's start_resumed: transition
// resuming -> running, derive durable progress from the output file's
// size (the resume anchor, spec §3 invariant 5), truncate any partial
// trailing record, and run the chunk loop skipping the already-durable
// input lines.
func (r *Runner) startResumed(ctx context.Context, handle *task.Handle) error {
	if handle.Status() == task.StatusResuming {
		if err := handle.Resume(ctx); err != nil {
			return err
		}
	}

	inputPath, outputPath, err := r.resolvePaths(handle)
	if err != nil {
		return err
	}

	info, err := os.Stat(outputPath)
	var size int64
	if err == nil {
		size = info.Size()
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("stat output: %w", err)
	}

	count := size / vectorize.RecordWidth
	truncateTo := count * vectorize.RecordWidth

	if err := os.Truncate(outputPath, truncateTo); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("truncate output to resume boundary: %w", err)
	}

	total := int64(0)
	if p := handle.Progress(); p != nil && p.Total > 0 {
		total = p.Total
	} else {
		total, err = countLines(inputPath)
		if err != nil {
			return fmt.Errorf("count input lines: %w", err)
		}
	}

	if err := handle.SetProgress(ctx, task.Progress{Count: count, Total: total}); err != nil {
		return err
	}

	return r.runChunkLoop(ctx, handle, inputPath, outputPath, count, count, total)
}

// resolvePaths joins the task's init paths to the worker's root directory
// and rejects anything that would escape it, per spec §4.6's path safety
// requirement.
func (r *Runner) resolvePaths(handle *task.Handle) (inputPath, outputPath string, err error) {
	init := handle.Init()
	inputPath, err = safeJoin(r.cfg.RootDir, init.InputFile)
	if err != nil {
		return "", "", err
	}
	outputPath, err = safeJoin(r.cfg.RootDir, init.OutputFile)
	if err != nil {
		return "", "", err
	}
	return inputPath, outputPath, nil
}

func safeJoin(root, rel string) (string, error) {
	root = filepath.Clean(root)
	joined := filepath.Clean(filepath.Join(root, rel))

	if joined != root && !strings.HasPrefix(joined, root+string(os.PathSeparator)) {
		return "", fmt.Errorf("%w: %q escapes root %q", task.ErrInvalidPath, rel, root)
	}
	return joined, nil
}

// runChunkLoop implements spec §4.6's chunk loop: read input sequentially,
// skip the first `skip` lines, accumulate items, process and persist
// progress every chunkSize items, then flush/fsync and finish after the
// final (possibly short) chunk.
func (r *Runner) runChunkLoop(ctx context.Context, handle *task.Handle, inputPath, outputPath string, skip, count, total int64) error {
	in, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	defer out.Close()

	bw := bufio.NewWriter(out)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var skipped int64
	for skipped < skip && scanner.Scan() {
		skipped++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("skip input lines: %w", err)
	}

	tracker := newRateTracker(rateWindow)

	chunk := make([]string, 0, r.chunkSize())
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}

		if err := handle.Alive(ctx); err != nil {
			return err
		}

		start := time.Now()
		if err := r.cfg.Backend.ProcessChunk(chunk, bw); err != nil {
			return fmt.Errorf("process chunk: %w", err)
		}
		duration := time.Since(start)
		metrics.RecordChunk(len(chunk), duration.Seconds())

		count += int64(len(chunk))
		rate, avgRate := tracker.record(len(chunk), duration)

		if err := handle.SetProgress(ctx, task.Progress{
			Count:   count,
			Total:   total,
			Rate:    &rate,
			AvgRate: &avgRate,
		}); err != nil {
			return err
		}

		chunk = chunk[:0]
		return nil
	}

	for scanner.Scan() {
		chunk = append(chunk, scanner.Text())
		if len(chunk) == r.chunkSize() {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	if err := flush(); err != nil {
		return err
	}

	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	if err := out.Sync(); err != nil {
		return fmt.Errorf("sync output: %w", err)
	}

	return handle.Finish(ctx, count)
}

func (r *Runner) chunkSize() int {
	if r.cfg.ChunkSize <= 0 {
		return 100
	}
	return r.cfg.ChunkSize
}

// countLines counts the newline-delimited records in path without loading
// the whole file into memory at once.
func countLines(path string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	var count int64
	buf := make([]byte, 64*1024)
	var lastByte byte = '\n'
	for {
		n, err := f.Read(buf)
		if n > 0 {
			for _, b := range buf[:n] {
				if b == '\n' {
					count++
				}
			}
			lastByte = buf[n-1]
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, err
		}
	}
	if lastByte != '\n' {
		count++
	}
	return count, nil
}

// rateTracker maintains the sliding window spec §4.6 requires for
// avg_rate: the mean rate over the last N chunks, computed as
// sum(items)/sum(durations) rather than a mean of per-chunk rates (so a
// couple of slow chunks don't get equal weight to many fast ones).
type rateTracker struct {
	window    int
	items     []int
	durations []time.Duration
}

func newRateTracker(window int) *rateTracker {
	return &rateTracker{window: window}
}

func (t *rateTracker) record(items int, d time.Duration) (rate, avgRate float64) {
	t.items = append(t.items, items)
	t.durations = append(t.durations, d)
	if len(t.items) > t.window {
		t.items = t.items[1:]
		t.durations = t.durations[1:]
	}

	rate = float64(items) / d.Seconds()

	var sumItems int
	var sumDur time.Duration
	for i := range t.items {
		sumItems += t.items[i]
		sumDur += t.durations[i]
	}
	if sumDur > 0 {
		avgRate = float64(sumItems) / sumDur.Seconds()
	}
	return rate, avgRate
}
