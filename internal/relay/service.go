// Package relay は PDF を受け取り、向きを正規化してプリンターへ送る一連の処理を提供します。
package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/yourusername/pdf-print-relay/internal/jobs"
	"github.com/yourusername/pdf-print-relay/internal/pdf"
	"github.com/yourusername/pdf-print-relay/internal/printer"
	"github.com/yourusername/pdf-print-relay/internal/storage"
)

// Normalizer はページ向きの正規化を行います。
type Normalizer interface {
	Normalize(data []byte) ([]byte, *pdf.Report, error)
}

// Scheduler は印刷ジョブを投入し、結果を受け取るチャネルを返します。
type Scheduler interface {
	Enqueue(ctx context.Context, payload *jobs.TaskPayload) (<-chan printer.Outcome, error)
}

// PrintRequest は受信済みの本文とメタデータです。
type PrintRequest struct {
	Data       []byte
	RequestID  string
	ReceivedAt time.Time
}

// PrintResult は印刷成功時の概要です。
type PrintResult struct {
	JobID    string
	Pages    int
	Rotated  int
	Command  string
	Duration time.Duration
}

// Service は 検証 → 正規化 → 印刷 → 後片付け を1リクエストずつ実行します。
type Service struct {
	spool      *storage.Spool
	normalizer Normalizer
	scheduler  Scheduler
	logger     zerolog.Logger
}

// NewService は Service を作成します。
func NewService(spool *storage.Spool, normalizer Normalizer, scheduler Scheduler, logger zerolog.Logger) (*Service, error) {
	if spool == nil {
		return nil, errors.New("spool is nil")
	}
	if normalizer == nil {
		return nil, errors.New("normalizer is nil")
	}
	if scheduler == nil {
		return nil, errors.New("scheduler is nil")
	}
	return &Service{
		spool:      spool,
		normalizer: normalizer,
		scheduler:  scheduler,
		logger:     logger,
	}, nil
}

// Print は PDF を正規化して印刷します。
// スプールファイルは印刷の成否が確定した後、どの経路でも1度だけ削除されます。
func (s *Service) Print(ctx context.Context, req PrintRequest) (*PrintResult, error) {
	if len(req.Data) == 0 {
		return nil, newError(CodeEmptyPayload, MsgEmptyPayload, nil)
	}

	log := s.logger.With().Str("request_id", req.RequestID).Int("size", len(req.Data)).Logger()

	// 正規化前のスナップショット
	file, err := s.spool.Write(ctx, req.Data)
	if err != nil {
		return nil, newError(CodeIO, MsgProcessingError, err)
	}
	log = log.With().Str("job_id", file.ID).Logger()
	defer func() {
		if rmErr := file.Remove(); rmErr != nil {
			log.Warn().Err(rmErr).Str("path", file.Path).Msg("failed to remove spool file")
		}
	}()

	normalized, report, err := s.normalizer.Normalize(req.Data)
	if err != nil {
		log.Warn().Err(err).Msg("failed to normalize document")
		return nil, newError(CodeMalformedDocument, MsgProcessingError, err)
	}
	if err := file.Overwrite(normalized); err != nil {
		return nil, newError(CodeIO, MsgProcessingError, err)
	}
	log.Debug().Int("pages", report.Pages).Int("rotated", report.Rotated).Msg("document normalized")

	done, err := s.scheduler.Enqueue(ctx, &jobs.TaskPayload{
		JobID:   file.ID,
		Path:    file.Path,
		Size:    int64(len(req.Data)),
		Pages:   report.Pages,
		Rotated: report.Rotated,
	})
	if err != nil {
		return nil, newError(CodePrintFailed, MsgPrintError, err)
	}

	outcome, ok := <-done
	if !ok {
		return nil, newError(CodePrintFailed, MsgPrintError, fmt.Errorf("%w: no outcome", printer.ErrPrintFailed))
	}
	if !outcome.OK() {
		return nil, newError(CodePrintFailed, MsgPrintError, outcome.Err)
	}

	return &PrintResult{
		JobID:    file.ID,
		Pages:    report.Pages,
		Rotated:  report.Rotated,
		Command:  outcome.Command,
		Duration: outcome.Duration,
	}, nil
}
