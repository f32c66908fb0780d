package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore はプロセス内にジョブ履歴を保持します。Redis を使わない既定の保存先です。
type MemoryStore struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	records map[string]Record
}

// NewMemoryStore は MemoryStore を作成します。ttl が 0 の場合は失効しません。
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		records: make(map[string]Record),
	}
}

func (s *MemoryStore) Get(ctx context.Context, jobID string) (*Record, error) {
	if jobID == "" {
		return nil, fmt.Errorf("jobID is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked()
	record, ok := s.records[jobID]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

func (s *MemoryStore) Upsert(ctx context.Context, record *Record) error {
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stamp(record, s.now(), s.ttl)
	s.records[record.JobID] = *record
	s.pruneLocked()
	return nil
}

func (s *MemoryStore) MarkRunning(ctx context.Context, jobID string) error {
	return s.update(jobID, markRunning)
}

func (s *MemoryStore) MarkDone(ctx context.Context, jobID, command string, duration time.Duration) error {
	return s.update(jobID, markDone(command, duration))
}

func (s *MemoryStore) MarkFailed(ctx context.Context, jobID string, errInfo *ErrorInfo, command string, duration time.Duration) error {
	return s.update(jobID, markFailed(errInfo, command, duration))
}

func (s *MemoryStore) update(jobID string, mutate func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	record, ok := s.records[jobID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	mutate(&record)
	record.UpdatedAt = s.now()
	s.records[jobID] = record
	return nil
}

func (s *MemoryStore) pruneLocked() {
	if s.ttl <= 0 {
		return
	}
	now := s.now()
	for id, record := range s.records {
		if !record.ExpiresAt.IsZero() && !now.Before(record.ExpiresAt) {
			delete(s.records, id)
		}
	}
}
