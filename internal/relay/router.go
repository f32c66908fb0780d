package relay

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
)

// PrintPath は印刷受付のエンドポイントです。
const PrintPath = "/imprimir-pdf"

const (
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-Id"
)

// RouterOptions は NewRouter の設定です。
type RouterOptions struct {
	Logger       zerolog.Logger
	MaxBodyBytes int64
}

// NewRouter は印刷受付用の gin エンジンを構築します。
// POST /imprimir-pdf 以外はすべて 404、OPTIONS はどのパスでも 204 を返します。
// クエリ文字列付きの URL も 404 です。
func NewRouter(svc PrintService, opts RouterOptions) *gin.Engine {
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.HandleMethodNotAllowed = false

	router.Use(
		RequestID(),
		RequestLogger(opts.Logger),
		Recovery(opts.Logger),
		CORS(),
	)

	router.POST(PrintPath, exactPath(), PrintHandler(svc, HandlerOptions{MaxBodyBytes: opts.MaxBodyBytes}))
	router.NoRoute(notFoundHandler)

	return router
}

// exactPath はクエリ文字列付きの URL を未定義ルートとして扱います。
func exactPath() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.RawQuery != "" || c.Request.URL.ForceQuery {
			notFoundHandler(c)
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestID はリクエストIDを払い出し、コンテキストとレスポンスヘッダーに設定します。
// クライアントが X-Request-Id を送ってきた場合はそれを引き継ぎます。
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" || len(id) > 64 {
			id = xid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// RequestLogger はリクエストごとにアクセスログを出力します。
func RequestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= http.StatusInternalServerError:
			event = logger.Error()
		case status >= http.StatusBadRequest:
			event = logger.Warn()
		default:
			event = logger.Info()
		}

		event = event.
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Int64("content_length", c.Request.ContentLength)
		if jobID := c.Writer.Header().Get("X-Job-Id"); jobID != "" {
			event = event.Str("job_id", jobID)
		}
		if len(c.Errors) > 0 {
			event = event.Strs("errors", c.Errors.Errors())
		}
		event.Msg("http request")
	}
}

// Recovery は panic を回収して 500 を返します。
func Recovery(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error().
					Str("request_id", c.GetString(requestIDKey)).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Interface("panic", rec).
					Msg("panic recovered")
				if !c.Writer.Written() {
					c.String(http.StatusInternalServerError, MsgProcessingError)
				}
				c.Abort()
			}
		}()
		c.Next()
	}
}

// CORS は全レスポンスに同じ CORS ヘッダーを付け、プリフライトには 204 で応答します。
func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", "POST, OPTIONS")
		h.Set("Access-Control-Allow-Headers", "Content-Type")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
