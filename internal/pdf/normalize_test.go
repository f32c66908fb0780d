package pdf

import (
	"bytes"
	"errors"
	"testing"

	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/pdf-print-relay/internal/pdf/pdftest"
)

func TestNormalizedRotation(t *testing.T) {
	cases := []struct {
		name string
		page Page
		want int
	}{
		{"landscape 0", Page{Width: 792, Height: 612, Rotation: 0}, 270},
		{"landscape 90", Page{Width: 792, Height: 612, Rotation: 90}, 0},
		{"landscape 180", Page{Width: 792, Height: 612, Rotation: 180}, 90},
		{"landscape 270", Page{Width: 792, Height: 612, Rotation: 270}, 180},
		{"portrait 0", Page{Width: 612, Height: 792, Rotation: 0}, 0},
		{"portrait 90", Page{Width: 612, Height: 792, Rotation: 90}, 90},
		{"square", Page{Width: 500, Height: 500, Rotation: 180}, 180},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizedRotation(tc.page))
		})
	}
}

func TestNormalizeLandscapePage(t *testing.T) {
	n := NewNormalizer()
	input := pdftest.Build(pdftest.Page{Width: 792, Height: 612, Rotation: 0})

	out, report, err := n.Normalize(input)
	require.NoError(t, err)
	assert.Equal(t, &Report{Pages: 1, Rotated: 1}, report)

	pages, err := n.Pages(out)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 270, pages[0].Rotation)
	assert.InDelta(t, 792, pages[0].Width, 0.001)
	assert.InDelta(t, 612, pages[0].Height, 0.001)
}

func TestNormalizePortraitPageUnchanged(t *testing.T) {
	n := NewNormalizer()
	input := pdftest.Build(pdftest.Page{Width: 612, Height: 792, Rotation: 90})

	out, report, err := n.Normalize(input)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Rotated)

	pages, err := n.Pages(out)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 90, pages[0].Rotation)
}

func TestNormalizeMixedPages(t *testing.T) {
	n := NewNormalizer()
	source := []pdftest.Page{
		{Width: 612, Height: 792, Rotation: 0},
		{Width: 792, Height: 612, Rotation: 0},
		{Width: 842, Height: 595, Rotation: 90},
		{Width: 595, Height: 842, Rotation: 270},
		{Width: 792, Height: 612, Rotation: 180},
	}

	out, report, err := n.Normalize(pdftest.Build(source...))
	require.NoError(t, err)
	assert.Equal(t, 5, report.Pages)
	assert.Equal(t, 3, report.Rotated)

	pages, err := n.Pages(out)
	require.NoError(t, err)
	require.Len(t, pages, len(source))
	for i, src := range source {
		want := src.Rotation
		if src.Width > src.Height {
			want = (src.Rotation + 270) % 360
		}
		assert.Equal(t, want, pages[i].Rotation, "page %d", i+1)
		assert.Equal(t, i+1, pages[i].Number)
	}
}

func TestNormalizeDecisionDependsOnlyOnGeometry(t *testing.T) {
	n := NewNormalizer()
	input := pdftest.Build(pdftest.Landscape, pdftest.Portrait)

	first, firstReport, err := n.Normalize(input)
	require.NoError(t, err)
	second, secondReport, err := n.Normalize(first)
	require.NoError(t, err)

	assert.Equal(t, firstReport.Rotated, secondReport.Rotated)

	pages, err := n.Pages(second)
	require.NoError(t, err)
	assert.True(t, pages[0].Landscape())
	assert.Equal(t, 180, pages[0].Rotation)
	assert.Equal(t, 0, pages[1].Rotation)
}

func TestNormalizeDoesNotMutateInput(t *testing.T) {
	n := NewNormalizer()
	input := pdftest.Build(pdftest.Landscape)
	snapshot := append([]byte(nil), input...)

	_, _, err := n.Normalize(input)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(snapshot, input))
}

// pageRefs はページごとに Contents, /F1 フォント, /GS1 の参照先オブジェクト番号を返します。
func pageRefs(t *testing.T, data []byte) (refs [][3]int, inUse map[int]bool) {
	t.Helper()
	ctx, err := pdfapi.ReadContext(bytes.NewReader(data), model.NewDefaultConfiguration())
	require.NoError(t, err)
	require.NoError(t, ctx.EnsurePageCount())

	for i := 1; i <= ctx.PageCount; i++ {
		dict, _, _, err := ctx.PageDict(i, false)
		require.NoError(t, err)
		contents := dict.IndirectRefEntry("Contents")
		resources := dict.DictEntry("Resources")
		font := resources.DictEntry("Font").IndirectRefEntry("F1")
		state := resources.DictEntry("ExtGState").IndirectRefEntry("GS1")
		require.NotNil(t, contents, "page %d contents", i)
		require.NotNil(t, font, "page %d font", i)
		require.NotNil(t, state, "page %d ExtGState", i)
		refs = append(refs, [3]int{contents.ObjectNumber.Value(), font.ObjectNumber.Value(), state.ObjectNumber.Value()})
	}

	inUse = map[int]bool{}
	for nr, entry := range ctx.XRefTable.Table {
		if entry != nil && !entry.Free {
			inUse[nr] = true
		}
	}
	return refs, inUse
}

func TestNormalizeKeepsNonPageObjects(t *testing.T) {
	n := NewNormalizer()
	// 同一内容のフォントと内容ストリームがページごとに別オブジェクトとして存在する
	input := pdftest.Build(pdftest.Landscape, pdftest.Portrait, pdftest.Landscape)

	out, report, err := n.Normalize(input)
	require.NoError(t, err)
	require.Equal(t, 2, report.Rotated)

	before, beforeObjects := pageRefs(t, input)
	after, afterObjects := pageRefs(t, out)

	assert.Equal(t, before, after)
	for i := range after {
		assert.Equal(t, pdftest.FontObject(3, i), after[i][1])
	}
	assert.NotEqual(t, after[0][1], after[1][1], "duplicate fonts must not be merged")
	assert.NotEqual(t, after[0][0], after[1][0], "duplicate content streams must not be merged")
	assert.Equal(t, after[0][2], after[2][2])

	for nr := range beforeObjects {
		assert.True(t, afterObjects[nr], "object %d dropped", nr)
	}
}

func TestNormalizeMalformed(t *testing.T) {
	n := NewNormalizer()
	cases := map[string][]byte{
		"empty":       nil,
		"plain text":  []byte("hello, printer"),
		"broken pdf":  []byte("%PDF-1.4\nthis is not a pdf body\n%%EOF\n"),
		"png header":  {0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'},
		"zero pages":  pdftest.Build(),
		"zero height": pdftest.Build(pdftest.Page{Width: 612, Height: 0}),
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := n.Normalize(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedDocument), "got %v", err)
		})
	}
}

func TestDocumentSetRotation(t *testing.T) {
	n := NewNormalizer()
	doc, err := n.Parse(pdftest.Build(pdftest.Portrait))
	require.NoError(t, err)

	require.NoError(t, doc.SetRotation(1, -90))
	assert.Equal(t, 270, doc.Pages()[0].Rotation)

	assert.Error(t, doc.SetRotation(2, 90))
	assert.Error(t, doc.SetRotation(1, 45))

	out, err := doc.Bytes()
	require.NoError(t, err)
	pages, err := n.Pages(out)
	require.NoError(t, err)
	assert.Equal(t, 270, pages[0].Rotation)
}

func TestCanonicalRotation(t *testing.T) {
	for in, want := range map[int]int{0: 0, 90: 90, 360: 0, 450: 90, -90: 270, -180: 180} {
		got, err := canonicalRotation(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, "input %d", in)
	}
	_, err := canonicalRotation(30)
	assert.Error(t, err)
}
