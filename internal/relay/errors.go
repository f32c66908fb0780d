package relay

import (
	"fmt"
	"net/http"
)

// エラーコード
const (
	CodeEmptyPayload      = "EMPTY_PAYLOAD"
	CodeMalformedDocument = "MALFORMED_DOCUMENT"
	CodePrintFailed       = "PRINT_FAILED"
	CodeIO                = "IO_ERROR"
	CodeLimitExceeded     = "LIMIT_EXCEEDED"
	CodeRouteNotFound     = "ROUTE_NOT_FOUND"
)

// 既存クライアントが表示しているレスポンス本文
const (
	MsgPrinted         = "PDF impreso correctamente"
	MsgEmptyPayload    = "No PDF enviado"
	MsgProcessingError = "Error procesando el PDF"
	MsgPrintError      = "Error imprimiendo PDF"
	MsgRouteNotFound   = "Ruta no encontrada"
	MsgTooLarge        = "PDF demasiado grande"
)

// Error はリクエスト単位で完結するエラーです。Message はそのままレスポンス本文になります。
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	}
	return e.Code
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Status は対応する HTTP ステータスを返します。
func (e *Error) Status() int {
	switch e.Code {
	case CodeEmptyPayload:
		return http.StatusBadRequest
	case CodeLimitExceeded:
		return http.StatusRequestEntityTooLarge
	case CodeRouteNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func newError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}
