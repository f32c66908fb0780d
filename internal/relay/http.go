package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// PrintService は受信したPDFを印刷まで運ぶサービスが実装します。
type PrintService interface {
	Print(ctx context.Context, req PrintRequest) (*PrintResult, error)
}

// HandlerOptions は受信時の制限です。
type HandlerOptions struct {
	// MaxBodyBytes が 0 の場合は無制限です。
	MaxBodyBytes int64
}

// PrintHandler は POST /imprimir-pdf のハンドラーを返します。
func PrintHandler(svc PrintService, opts HandlerOptions) gin.HandlerFunc {
	return func(c *gin.Context) {
		receivedAt := time.Now()

		body := c.Request.Body
		if opts.MaxBodyBytes > 0 {
			body = http.MaxBytesReader(c.Writer, body, opts.MaxBodyBytes)
		}
		data, err := io.ReadAll(body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				respondWithError(c, newError(CodeLimitExceeded, MsgTooLarge, err))
				return
			}
			respondWithError(c, newError(CodeIO, MsgProcessingError, err))
			return
		}

		result, err := svc.Print(c.Request.Context(), PrintRequest{
			Data:       data,
			RequestID:  c.GetString(requestIDKey),
			ReceivedAt: receivedAt,
		})
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.Header("X-Job-Id", result.JobID)
		c.String(http.StatusOK, MsgPrinted)
	}
}

func notFoundHandler(c *gin.Context) {
	respondWithError(c, newError(CodeRouteNotFound, MsgRouteNotFound, nil))
}

func respondWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	var apiErr *Error
	if errors.As(err, &apiErr) {
		c.String(apiErr.Status(), apiErr.Message)
		return
	}
	c.String(http.StatusInternalServerError, MsgProcessingError)
}
