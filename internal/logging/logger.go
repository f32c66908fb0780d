// Package logging はアプリケーション共通の構造化ロガーを提供します。
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	mu     sync.RWMutex
	logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
)

// Options はロガー初期化時の設定です。
type Options struct {
	Level      string
	File       string // 空なら標準出力のみ
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// Init はパッケージロガーを初期化します。File が指定された場合は lumberjack でローテーションします。
// レベルは zerolog のグローバルレベルとして設定します。
func Init(opts Options) {
	var out io.Writer = os.Stdout
	if opts.File != "" {
		out = zerolog.MultiLevelWriter(os.Stdout, &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		})
	}

	l := zerolog.New(out).With().Timestamp().Logger()

	mu.Lock()
	logger = l
	mu.Unlock()
	zerolog.SetGlobalLevel(parseLevel(opts.Level))
}

// SetLogLevel は実行中にログレベルを切り替えます。不正な値は info として扱います。
// Logger() から派生したロガーにも反映されます。
func SetLogLevel(level string) {
	lvl := parseLevel(level)
	mu.Lock()
	logger = logger.Level(lvl)
	mu.Unlock()
	zerolog.SetGlobalLevel(lvl)
}

// SetLoggerForTest はテスト用に出力先を差し替えます。
func SetLoggerForTest(l zerolog.Logger) {
	mu.Lock()
	logger = l
	mu.Unlock()
}

// Logger は現在のロガーのコピーを返します。
func Logger() zerolog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Debug(msg string, kv ...any) { log(zerolog.DebugLevel, msg, kv) }
func Info(msg string, kv ...any)  { log(zerolog.InfoLevel, msg, kv) }
func Warn(msg string, kv ...any)  { log(zerolog.WarnLevel, msg, kv) }
func Error(msg string, kv ...any) { log(zerolog.ErrorLevel, msg, kv) }

func log(level zerolog.Level, msg string, kv []any) {
	l := Logger()
	event := l.WithLevel(level)
	if event == nil {
		return
	}
	WithFields(event, kv...).Msg(msg)
}

// WithFields は key, value の交互リストをイベントに積みます。
// error 値は "error" フィールドとして扱い、キーが文字列でない組は捨てます。
func WithFields(event *zerolog.Event, kv ...any) *zerolog.Event {
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		if err, isErr := kv[i+1].(error); isErr {
			event = event.AnErr(key, err)
			continue
		}
		event = event.Interface(key, kv[i+1])
	}
	return event
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
