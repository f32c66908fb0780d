// Package pdftest はテスト用の最小PDFを組み立てます。
package pdftest

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Page は生成するページの MediaBox と /Rotate です。
type Page struct {
	Width    float64
	Height   float64
	Rotation int
}

// Letter サイズの縦・横。
var (
	Portrait  = Page{Width: 612, Height: 792}
	Landscape = Page{Width: 792, Height: 612}
)

const content = "0 0 m 10 10 l S"

// Build は pages を順に並べた、xref オフセットが正しい PDF を返します。
//
// オブジェクト番号は固定です。ページ i (0 始まり) は 3+2i、その内容ストリームは 4+2i、
// ページごとの同一内容のフォントは 3+2n+i、全ページで共有する ExtGState は 3+3n です。
func Build(pages ...Page) []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")

	var offsets []int
	addObj := func(num int, body string) {
		offsets = append(offsets, buf.Len())
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", num, body)
	}

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 3+2*i)
	}

	n := len(pages)
	sharedState := 3 + 3*n

	addObj(1, "<< /Type /Catalog /Pages 2 0 R >>")
	addObj(2, fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d >>", strings.Join(kids, " "), n))
	for i, p := range pages {
		num := 3 + 2*i
		addObj(num, fmt.Sprintf(
			"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 %s %s] /Rotate %d "+
				"/Resources << /Font << /F1 %d 0 R >> /ExtGState << /GS1 %d 0 R >> >> /Contents %d 0 R >>",
			formatNumber(p.Width), formatNumber(p.Height), p.Rotation, FontObject(n, i), sharedState, num+1,
		))
		addObj(num+1, fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(content), content))
	}
	for i := range pages {
		addObj(FontObject(n, i), "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")
	}
	addObj(sharedState, "<< /Type /ExtGState /CA 1 >>")

	size := len(offsets) + 1
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n", size)
	buf.WriteString("0000000000 65535 f \n")
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", size, xref)

	return buf.Bytes()
}

// FontObject は n ページの文書でページ i が参照するフォントのオブジェクト番号です。
func FontObject(n, i int) int {
	return 3 + 2*n + i
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
