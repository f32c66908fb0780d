// Package jobs はプリンターへの印刷ジョブを直列化するキューと、その履歴管理を提供します。
package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yourusername/pdf-print-relay/internal/printer"
)

// ErrManagerClosed はシャットダウン後に投入されたジョブに返されます。
var ErrManagerClosed = errors.New("print queue is closed")

// TaskPayload は印刷ジョブの入力です。
type TaskPayload struct {
	JobID   string
	Path    string
	Size    int64
	Pages   int
	Rotated int
}

type task struct {
	payload TaskPayload
	done    chan printer.Outcome
}

func (t *task) finish(outcome printer.Outcome) {
	t.done <- outcome
	close(t.done)
}

// ManagerOptions は Manager の設定です。
type ManagerOptions struct {
	// Workers はプリンターへ同時に送るジョブ数です。1 なら完全に直列になります。
	Workers   int
	QueueSize int
	Logger    zerolog.Logger
}

// Manager はジョブの投入と状態管理を担います。
type Manager struct {
	store      Store
	dispatcher printer.Dispatcher
	logger     zerolog.Logger
	workers    int
	tasks      chan *task

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.RWMutex
	closed    bool
	startOnce sync.Once
	wg        sync.WaitGroup
}

// NewManager は Manager を初期化します。
func NewManager(store Store, dispatcher printer.Dispatcher, opts ManagerOptions) (*Manager, error) {
	if store == nil {
		return nil, errors.New("store is nil")
	}
	if dispatcher == nil {
		return nil, errors.New("dispatcher is nil")
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := opts.QueueSize
	if queueSize < 0 {
		queueSize = 0
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:      store,
		dispatcher: dispatcher,
		logger:     opts.Logger,
		workers:    workers,
		tasks:      make(chan *task, queueSize),
		ctx:        ctx,
		cancel:     cancel,
	}, nil
}

// StartWorkers はワーカーをバックグラウンドで起動します。複数回呼んでも起動は1度だけです。
func (m *Manager) StartWorkers() {
	m.startOnce.Do(func() {
		for i := 0; i < m.workers; i++ {
			m.wg.Add(1)
			go m.worker(i)
		}
	})
}

// Shutdown は新規投入を止め、実行中の印刷プロセスを中断します。
// 待機中のジョブは ErrManagerClosed で失敗として完了させます。
func (m *Manager) Shutdown(ctx context.Context) error {
	m.cancel()

	m.mu.Lock()
	if !m.closed {
		m.closed = true
		close(m.tasks)
	}
	m.mu.Unlock()

	// 未起動でもキューに残ったジョブを完了させるために起動する
	m.StartWorkers()

	stopped := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue はジョブをキューに投入し、結果を1度だけ受け取れるチャネルを返します。
func (m *Manager) Enqueue(ctx context.Context, payload *TaskPayload) (<-chan printer.Outcome, error) {
	if payload == nil {
		return nil, fmt.Errorf("payload is nil")
	}
	if payload.JobID == "" {
		return nil, fmt.Errorf("payload.JobID is required")
	}
	if payload.Path == "" {
		return nil, fmt.Errorf("payload.Path is required")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrManagerClosed
	}

	if err := m.store.Upsert(ctx, &Record{
		JobID:   payload.JobID,
		Status:  StatusQueued,
		Size:    payload.Size,
		Pages:   payload.Pages,
		Rotated: payload.Rotated,
	}); err != nil {
		m.logger.Warn().Err(err).Str("job_id", payload.JobID).Msg("failed to record queued job")
	}

	t := &task{payload: *payload, done: make(chan printer.Outcome, 1)}
	select {
	case m.tasks <- t:
		return t.done, nil
	case <-m.ctx.Done():
		return nil, ErrManagerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetRecord はジョブ情報を取得します。
func (m *Manager) GetRecord(ctx context.Context, jobID string) (*Record, error) {
	return m.store.Get(ctx, jobID)
}

func (m *Manager) handleTask(t *task) {
	p := t.payload
	log := m.logger.With().Str("job_id", p.JobID).Logger()

	if err := m.ctx.Err(); err != nil {
		outcome := printer.Outcome{Err: fmt.Errorf("%w: %w", printer.ErrPrintFailed, ErrManagerClosed)}
		m.recordFailure(p.JobID, outcome)
		t.finish(outcome)
		return
	}

	if err := m.store.MarkRunning(m.ctx, p.JobID); err != nil {
		log.Warn().Err(err).Msg("failed to update job status")
	}

	outcome, ok := <-m.dispatcher.Print(m.ctx, p.Path)
	if !ok {
		outcome = printer.Outcome{Err: fmt.Errorf("%w: dispatcher returned no outcome", printer.ErrPrintFailed)}
	}

	if outcome.OK() {
		if err := m.store.MarkDone(context.WithoutCancel(m.ctx), p.JobID, outcome.Command, outcome.Duration); err != nil {
			log.Warn().Err(err).Msg("failed to update job status")
		}
		m.logRecord(log.Info(), p, outcome).Msg("print job finished")
	} else {
		m.recordFailure(p.JobID, outcome)
		m.logRecord(log.Error(), p, outcome).
			Err(outcome.Err).
			Str("output", outcome.Output).
			Msg("print job failed")
	}

	t.finish(outcome)
}

// logRecord は履歴に残った最終状態をイベントに積みます。
// 履歴を読めない場合は Outcome と投入時の値で代用します。
func (m *Manager) logRecord(event *zerolog.Event, p TaskPayload, outcome printer.Outcome) *zerolog.Event {
	if event == nil {
		return nil
	}
	record, err := m.GetRecord(context.WithoutCancel(m.ctx), p.JobID)
	if err != nil || record == nil {
		return event.
			Str("command", outcome.Command).
			Dur("duration", outcome.Duration).
			Int("pages", p.Pages).
			Int("rotated", p.Rotated)
	}
	return event.
		Str("status", string(record.Status)).
		Str("command", record.Command).
		Int64("duration_ms", record.DurationMS).
		Int64("size", record.Size).
		Int("pages", record.Pages).
		Int("rotated", record.Rotated).
		Time("queued_at", record.CreatedAt).
		Time("expires_at", record.ExpiresAt)
}

func (m *Manager) recordFailure(jobID string, outcome printer.Outcome) {
	errInfo := &ErrorInfo{Code: "PRINT_FAILED", Message: outcome.Err.Error()}
	if err := m.store.MarkFailed(context.WithoutCancel(m.ctx), jobID, errInfo, outcome.Command, outcome.Duration); err != nil {
		m.logger.Warn().Err(err).Str("job_id", jobID).Msg("failed to update job status")
	}
}

