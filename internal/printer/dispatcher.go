// Package printer は外部コマンドによる印刷の起動を提供します。
package printer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const waitDelay = 2 * time.Second

// ErrPrintFailed は印刷プロセスの起動失敗、または非ゼロ終了を表します。
var ErrPrintFailed = errors.New("print invocation failed")

// Outcome は1回の印刷試行の結果です。Err が nil なら成功です。
type Outcome struct {
	Command  string
	Output   string
	Duration time.Duration
	Err      error
}

// OK は印刷が成功したかどうかを返します。
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Dispatcher はファイルを印刷に回し、結果を一度だけ送るチャネルを返します。
type Dispatcher interface {
	Print(ctx context.Context, path string) <-chan Outcome
}

// Options は ExecDispatcher の設定です。
type Options struct {
	// UtilityPath は専用印刷ユーティリティのパスです。存在しない場合は OS 標準の印刷に切り替えます。
	UtilityPath string
	// Timeout が 0 の場合はプロセス終了まで待ち続けます。
	Timeout time.Duration
	// GOOS はフォールバックコマンドの選択に使います。空なら runtime.GOOS です。
	GOOS string
}

// ExecDispatcher は外部プロセスで印刷します。再試行はしません。
type ExecDispatcher struct {
	utilityPath string
	timeout     time.Duration
	goos        string
}

// NewExecDispatcher は ExecDispatcher を作成します。
func NewExecDispatcher(opts Options) *ExecDispatcher {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	return &ExecDispatcher{
		utilityPath: opts.UtilityPath,
		timeout:     opts.Timeout,
		goos:        goos,
	}
}

// UtilityAvailable は専用ユーティリティが配置済みかどうかを返します。
func (d *ExecDispatcher) UtilityAvailable() bool {
	if d.utilityPath == "" {
		return false
	}
	info, err := os.Stat(d.utilityPath)
	return err == nil && info.Mode().IsRegular()
}

// Command は path を印刷するために起動するコマンドと引数を返します。
func (d *ExecDispatcher) Command(path string) (string, []string) {
	if d.UtilityAvailable() {
		return d.utilityPath, []string{path}
	}
	return fallbackCommand(d.goos, path)
}

// Print は印刷プロセスを起動し、終了時に Outcome を1件送ってチャネルを閉じます。
func (d *ExecDispatcher) Print(ctx context.Context, path string) <-chan Outcome {
	done := make(chan Outcome, 1)
	go func() {
		defer close(done)
		done <- d.run(ctx, path)
	}()
	return done
}

func (d *ExecDispatcher) run(ctx context.Context, path string) Outcome {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	name, args := d.Command(path)
	cmd := exec.CommandContext(ctx, name, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	// ユーティリティが子プロセスを残してもパイプ待ちで止まらないようにする
	cmd.WaitDelay = waitDelay

	start := time.Now()
	err := cmd.Run()
	outcome := Outcome{
		Command:  name,
		Output:   strings.TrimSpace(output.String()),
		Duration: time.Since(start),
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = fmt.Errorf("%v (%w)", err, ctxErr)
		}
		outcome.Err = fmt.Errorf("%w: %s: %w", ErrPrintFailed, name, err)
	}
	return outcome
}

// fallbackCommand は既定プリンターへ直接送る OS 標準のコマンドです。
func fallbackCommand(goos, path string) (string, []string) {
	switch goos {
	case "windows":
		// start の第1引数はウィンドウタイトルなので空文字を渡す
		return "cmd", []string{"/C", "start", "/min", "", "/print", path}
	default:
		return "lp", []string{path}
	}
}
