package jobs

import (
	"errors"
	"time"
)

// Status はジョブの実行状態を表します。
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "done"
	StatusFailed    Status = "error"
)

// ErrJobNotFound は指定したジョブが履歴に存在しない場合に返されます。
var ErrJobNotFound = errors.New("job not found")

// ErrorInfo はジョブ失敗時のエラー情報を保持します。
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Record は印刷ジョブの現在状態を表します。文書の中身は保持しません。
type Record struct {
	JobID      string     `json:"jobId"`
	Status     Status     `json:"status"`
	Size       int64      `json:"size"`
	Pages      int        `json:"pages"`
	Rotated    int        `json:"rotated"`
	Command    string     `json:"command,omitempty"`
	DurationMS int64      `json:"durationMs,omitempty"`
	Error      *ErrorInfo `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
}

func markRunning(record *Record) {
	record.Status = StatusRunning
}

func markDone(command string, duration time.Duration) func(*Record) {
	return func(record *Record) {
		record.Status = StatusSucceeded
		record.Command = command
		record.DurationMS = duration.Milliseconds()
		record.Error = nil
	}
}

func markFailed(errInfo *ErrorInfo, command string, duration time.Duration) func(*Record) {
	return func(record *Record) {
		record.Status = StatusFailed
		record.Command = command
		record.DurationMS = duration.Milliseconds()
		if errInfo != nil {
			record.Error = errInfo
		}
	}
}

// stamp は作成・更新・失効時刻を埋めます。
func stamp(record *Record, now time.Time, ttl time.Duration) {
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now
	if record.ExpiresAt.IsZero() && ttl > 0 {
		record.ExpiresAt = record.CreatedAt.Add(ttl)
	}
}
