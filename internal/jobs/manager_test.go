package jobs

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pdf-print-relay/internal/printer"
)

// stubDispatcher は印刷せずに結果を返します。block が閉じられるまで応答を保留できます。
type stubDispatcher struct {
	err    error
	block  chan struct{}
	active atomic.Int32
	peak   atomic.Int32

	mu    sync.Mutex
	paths []string
}

func (d *stubDispatcher) Print(ctx context.Context, path string) <-chan printer.Outcome {
	done := make(chan printer.Outcome, 1)
	go func() {
		defer close(done)
		n := d.active.Add(1)
		for {
			peak := d.peak.Load()
			if n <= peak || d.peak.CompareAndSwap(peak, n) {
				break
			}
		}
		d.mu.Lock()
		d.paths = append(d.paths, path)
		d.mu.Unlock()

		if d.block != nil {
			select {
			case <-d.block:
			case <-ctx.Done():
				d.active.Add(-1)
				done <- printer.Outcome{Command: "stub", Err: ctx.Err()}
				return
			}
		}
		time.Sleep(5 * time.Millisecond)
		d.active.Add(-1)
		done <- printer.Outcome{Command: "stub", Err: d.err}
	}()
	return done
}

func newTestManager(t *testing.T, d printer.Dispatcher, workers int) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore(time.Minute)
	m, err := NewManager(store, d, ManagerOptions{Workers: workers, QueueSize: 8, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return m, store
}

func receive(t *testing.T, ch <-chan printer.Outcome) printer.Outcome {
	t.Helper()
	select {
	case outcome := <-ch:
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for outcome")
		return printer.Outcome{}
	}
}

func TestManagerSuccessRecordsHistory(t *testing.T) {
	m, store := newTestManager(t, &stubDispatcher{}, 1)
	m.StartWorkers()
	defer m.Shutdown(context.Background())

	ch, err := m.Enqueue(context.Background(), &TaskPayload{JobID: "job-1", Path: "/tmp/a.pdf", Size: 10, Pages: 2, Rotated: 1})
	require.NoError(t, err)
	outcome := receive(t, ch)
	assert.True(t, outcome.OK())

	record, err := store.Get(context.Background(), "job-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusSucceeded, record.Status)
	assert.Equal(t, "stub", record.Command)
	assert.Equal(t, 2, record.Pages)
	assert.Equal(t, 1, record.Rotated)
}

func TestManagerFailureRecordsError(t *testing.T) {
	m, _ := newTestManager(t, &stubDispatcher{err: errors.New("exit status 1")}, 1)
	m.StartWorkers()
	defer m.Shutdown(context.Background())

	ch, err := m.Enqueue(context.Background(), &TaskPayload{JobID: "job-2", Path: "/tmp/b.pdf"})
	require.NoError(t, err)
	outcome := receive(t, ch)
	assert.False(t, outcome.OK())

	record, err := m.GetRecord(context.Background(), "job-2")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, StatusFailed, record.Status)
	require.NotNil(t, record.Error)
	assert.Equal(t, "PRINT_FAILED", record.Error.Code)
}

func TestManagerLogsFinalRecord(t *testing.T) {
	var buf bytes.Buffer
	store := NewMemoryStore(time.Minute)
	m, err := NewManager(store, &stubDispatcher{}, ManagerOptions{Workers: 1, QueueSize: 1, Logger: zerolog.New(&buf)})
	require.NoError(t, err)
	m.StartWorkers()
	defer m.Shutdown(context.Background())

	ch, err := m.Enqueue(context.Background(), &TaskPayload{JobID: "job-log", Path: "/tmp/log.pdf", Size: 2048, Pages: 3, Rotated: 2})
	require.NoError(t, err)
	require.True(t, receive(t, ch).OK())

	out := buf.String()
	assert.Contains(t, out, `"message":"print job finished"`)
	assert.Contains(t, out, `"job_id":"job-log"`)
	assert.Contains(t, out, `"status":"done"`)
	assert.Contains(t, out, `"size":2048`)
	assert.Contains(t, out, `"rotated":2`)
	assert.Contains(t, out, `"expires_at"`)
}

func TestManagerLogsFailedRecord(t *testing.T) {
	var buf bytes.Buffer
	m, err := NewManager(NewMemoryStore(time.Minute), &stubDispatcher{err: errors.New("exit status 2")},
		ManagerOptions{Workers: 1, QueueSize: 1, Logger: zerolog.New(&buf)})
	require.NoError(t, err)
	m.StartWorkers()
	defer m.Shutdown(context.Background())

	ch, err := m.Enqueue(context.Background(), &TaskPayload{JobID: "job-bad", Path: "/tmp/bad.pdf"})
	require.NoError(t, err)
	require.False(t, receive(t, ch).OK())

	out := buf.String()
	assert.Contains(t, out, `"message":"print job failed"`)
	assert.Contains(t, out, `"status":"error"`)
	assert.Contains(t, out, `"error":"exit status 2"`)
}

func TestManagerSerializesWithSingleWorker(t *testing.T) {
	d := &stubDispatcher{}
	m, _ := newTestManager(t, d, 1)
	m.StartWorkers()
	defer m.Shutdown(context.Background())

	var chans []<-chan printer.Outcome
	for i, id := range []string{"a", "b", "c", "d"} {
		ch, err := m.Enqueue(context.Background(), &TaskPayload{JobID: id, Path: "/tmp/" + id + ".pdf", Size: int64(i)})
		require.NoError(t, err)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		assert.True(t, receive(t, ch).OK())
	}

	assert.Equal(t, int32(1), d.peak.Load())
	assert.Equal(t, []string{"/tmp/a.pdf", "/tmp/b.pdf", "/tmp/c.pdf", "/tmp/d.pdf"}, d.paths)
}

func TestManagerEnqueueValidation(t *testing.T) {
	m, _ := newTestManager(t, &stubDispatcher{}, 1)
	defer m.Shutdown(context.Background())

	_, err := m.Enqueue(context.Background(), nil)
	assert.Error(t, err)
	_, err = m.Enqueue(context.Background(), &TaskPayload{Path: "/tmp/x.pdf"})
	assert.Error(t, err)
	_, err = m.Enqueue(context.Background(), &TaskPayload{JobID: "x"})
	assert.Error(t, err)
}

func TestManagerShutdownFailsPendingJobs(t *testing.T) {
	d := &stubDispatcher{block: make(chan struct{})}
	m, _ := newTestManager(t, d, 1)
	m.StartWorkers()

	running, err := m.Enqueue(context.Background(), &TaskPayload{JobID: "running", Path: "/tmp/r.pdf"})
	require.NoError(t, err)
	queued, err := m.Enqueue(context.Background(), &TaskPayload{JobID: "queued", Path: "/tmp/q.pdf"})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return d.active.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Shutdown(ctx))

	assert.False(t, receive(t, running).OK())
	queuedOutcome := receive(t, queued)
	assert.ErrorIs(t, queuedOutcome.Err, ErrManagerClosed)

	_, err = m.Enqueue(context.Background(), &TaskPayload{JobID: "late", Path: "/tmp/l.pdf"})
	assert.ErrorIs(t, err, ErrManagerClosed)
}

func TestManagerShutdownWithoutWorkersDrainsQueue(t *testing.T) {
	m, _ := newTestManager(t, &stubDispatcher{}, 1)

	ch, err := m.Enqueue(context.Background(), &TaskPayload{JobID: "never-started", Path: "/tmp/n.pdf"})
	require.NoError(t, err)

	require.NoError(t, m.Shutdown(context.Background()))
	assert.ErrorIs(t, receive(t, ch).Err, ErrManagerClosed)
}

func TestNewManagerRequiresDependencies(t *testing.T) {
	_, err := NewManager(nil, &stubDispatcher{}, ManagerOptions{})
	assert.Error(t, err)
	_, err = NewManager(NewMemoryStore(0), nil, ManagerOptions{})
	assert.Error(t, err)
}
