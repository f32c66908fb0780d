// Package pdf は印刷前のPDFページ向き正規化を提供します。
//
// 扱うのはページの /Rotate メタデータのみで、ページ内容のサイズ変更や切り抜きは行いません。
package pdf

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// LandscapeRotationOffset は横長ページに加算する回転角です。
// 縦向き既定のプリンターで横長ページが正立して印刷される向きに合わせています。
const LandscapeRotationOffset = 270

// ErrMalformedDocument は入力がPDFとして解釈できない場合に返されます。
var ErrMalformedDocument = errors.New("malformed PDF document")

var disableConfigDir sync.Once

// Page はページの寸法と現在の回転角を表します。
// Width/Height は MediaBox の値で、回転前の座標系です。
type Page struct {
	Number   int     `json:"number"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`
	Rotation int     `json:"rotation"`
}

// Landscape は回転前の座標系で横長かどうかを返します。
func (p Page) Landscape() bool {
	return p.Width > p.Height
}

// NormalizedRotation は正規化後にページへ設定すべき回転角を返します。
// 判定は寸法のみに基づき、現在の回転角は加算の起点としてだけ使います。
func NormalizedRotation(p Page) int {
	if !p.Landscape() {
		return p.Rotation
	}
	return (p.Rotation + LandscapeRotationOffset) % 360
}

// Report は正規化の結果概要です。
type Report struct {
	Pages   int `json:"pages"`
	Rotated int `json:"rotated"`
}

// Document は1回の正規化の間だけ保持されるPDFの構造モデルです。
type Document struct {
	ctx   *model.Context
	pages []Page
	dicts []types.Dict
}

// Pages はページ情報のコピーを返します。
func (d *Document) Pages() []Page {
	return append([]Page(nil), d.pages...)
}

// SetRotation は 1 始まりのページ番号に回転角を設定します。
func (d *Document) SetRotation(number, angle int) error {
	if number < 1 || number > len(d.pages) {
		return fmt.Errorf("page %d out of range (1..%d)", number, len(d.pages))
	}
	canonical, err := canonicalRotation(angle)
	if err != nil {
		return err
	}
	d.dicts[number-1]["Rotate"] = types.Integer(canonical)
	d.pages[number-1].Rotation = canonical
	return nil
}

// Bytes は現在の状態を PDF として書き出します。
func (d *Document) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := pdfapi.WriteContext(d.ctx, &buf); err != nil {
		return nil, malformed(fmt.Errorf("failed to serialize document: %w", err))
	}
	return buf.Bytes(), nil
}

// Normalizer はPDFのページ向きを印刷用に揃えます。I/O は行いません。
type Normalizer struct{}

// NewNormalizer は Normalizer を作成します。
// pdfcpu がユーザー設定ディレクトリを作らないよう、初回に無効化します。
func NewNormalizer() *Normalizer {
	disableConfigDir.Do(pdfapi.DisableConfigDir)
	return &Normalizer{}
}

// Parse はバイト列を Document に変換します。
func (n *Normalizer) Parse(data []byte) (*Document, error) {
	if len(data) == 0 {
		return nil, malformed(errors.New("empty input"))
	}
	if mt := mimetype.Detect(data); !mt.Is("application/pdf") {
		return nil, malformed(fmt.Errorf("unexpected content type %s", mt.String()))
	}

	conf := model.NewDefaultConfiguration()
	// 最適化はしない。ページの /Rotate 以外は入力のまま保つ
	ctx, err := pdfapi.ReadContext(bytes.NewReader(data), conf)
	if err != nil {
		return nil, malformed(err)
	}
	if err := pdfapi.ValidateContext(ctx); err != nil {
		return nil, malformed(err)
	}
	if err := ctx.EnsurePageCount(); err != nil {
		return nil, malformed(err)
	}
	if ctx.PageCount == 0 {
		return nil, malformed(errors.New("document has no pages"))
	}

	doc := &Document{
		ctx:   ctx,
		pages: make([]Page, 0, ctx.PageCount),
		dicts: make([]types.Dict, 0, ctx.PageCount),
	}
	for i := 1; i <= ctx.PageCount; i++ {
		pageDict, _, inh, err := ctx.PageDict(i, false)
		if err != nil {
			return nil, malformed(fmt.Errorf("page %d: %w", i, err))
		}
		if pageDict == nil || inh == nil || inh.MediaBox == nil {
			return nil, malformed(fmt.Errorf("page %d: missing MediaBox", i))
		}

		width, height := inh.MediaBox.Width(), inh.MediaBox.Height()
		if width <= 0 || height <= 0 {
			return nil, malformed(fmt.Errorf("page %d: invalid size %.2fx%.2f", i, width, height))
		}
		rotation, err := canonicalRotation(inh.Rotate)
		if err != nil {
			return nil, malformed(fmt.Errorf("page %d: %w", i, err))
		}

		doc.pages = append(doc.pages, Page{
			Number:   i,
			Width:    width,
			Height:   height,
			Rotation: rotation,
		})
		doc.dicts = append(doc.dicts, pageDict)
	}

	return doc, nil
}

// Normalize は横長ページに LandscapeRotationOffset を加算した PDF を返します。
// 縦長・正方形のページは変更しません。
func (n *Normalizer) Normalize(data []byte) ([]byte, *Report, error) {
	doc, err := n.Parse(data)
	if err != nil {
		return nil, nil, err
	}

	report := &Report{Pages: len(doc.pages)}
	for _, page := range doc.Pages() {
		if !page.Landscape() {
			continue
		}
		if err := doc.SetRotation(page.Number, NormalizedRotation(page)); err != nil {
			return nil, nil, malformed(err)
		}
		report.Rotated++
	}

	out, err := doc.Bytes()
	if err != nil {
		return nil, nil, err
	}
	return out, report, nil
}

// Pages は変更を加えずにページ情報を読み取ります。
func (n *Normalizer) Pages(data []byte) ([]Page, error) {
	doc, err := n.Parse(data)
	if err != nil {
		return nil, err
	}
	return doc.Pages(), nil
}

func canonicalRotation(angle int) (int, error) {
	r := angle % 360
	if r < 0 {
		r += 360
	}
	if r%90 != 0 {
		return 0, fmt.Errorf("rotation %d is not a multiple of 90", angle)
	}
	return r, nil
}

func malformed(err error) error {
	return fmt.Errorf("%w: %v", ErrMalformedDocument, err)
}
