// Package storage は印刷待ちPDFの一時保存（スプール）を提供します。
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const spoolExt = ".pdf"

// Spool はリクエストごとに一意なファイルを払い出す一時ディレクトリです。
// 固定パスを共有しないため、同時リクエスト間で内容が混ざることはありません。
type Spool struct {
	dir string
	now func() time.Time
}

// NewSpool はディレクトリを作成して Spool を返します。
func NewSpool(dir string) (*Spool, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("spool dir is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("スプールディレクトリの作成に失敗しました: %w", err)
	}
	return &Spool{dir: dir, now: time.Now}, nil
}

// Dir はスプールディレクトリのパスを返します。
func (s *Spool) Dir() string {
	return s.dir
}

// Write は新しいスロットを作成して data を書き込みます。
func (s *Spool) Write(ctx context.Context, data []byte) (*SpoolFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	path := filepath.Join(s.dir, id+spoolExt)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("一時ファイルの作成に失敗しました: %w", err)
	}

	sf := &SpoolFile{ID: id, Path: path}
	if _, err := file.Write(data); err != nil {
		file.Close()
		_ = sf.Remove()
		return nil, fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = sf.Remove()
		return nil, fmt.Errorf("一時ファイルへの書き込みに失敗しました: %w", err)
	}
	return sf, nil
}

// Sweep は olderThan より古いスロットを削除し、削除件数を返します。
// 前回プロセスが異常終了して残したファイルの掃除に使います。
func (s *Spool) Sweep(olderThan time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}

	cutoff := s.now().Add(-olderThan)
	removed := 0
	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != spoolExt {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, entry.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// SpoolFile は1リクエスト分のスロットです。
type SpoolFile struct {
	ID   string
	Path string

	removeOnce sync.Once
	removeErr  error
}

// Overwrite はスロットの内容を data で置き換えます。
func (f *SpoolFile) Overwrite(data []byte) error {
	if err := os.WriteFile(f.Path, data, 0o600); err != nil {
		return fmt.Errorf("一時ファイルの更新に失敗しました: %w", err)
	}
	return nil
}

// Remove はスロットを削除します。存在しない場合はエラーにしません。
// 何度呼んでも削除を試みるのは最初の1回だけです。
func (f *SpoolFile) Remove() error {
	if f == nil {
		return nil
	}
	f.removeOnce.Do(func() {
		err := os.Remove(f.Path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			f.removeErr = fmt.Errorf("一時ファイルの削除に失敗しました: %w", err)
		}
	})
	return f.removeErr
}
