package diff

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mothershiphq/mothership/pkg/types"
)

func genLines(n int, prefix string) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = prefix + strings.Repeat("x", 5)
	}
	return strings.Join(lines, "\n")
}

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		name     string
		original string
		updated  string
	}{
		{"empty to empty", "", ""},
		{"empty to content", "", "hello\n"},
		{"single line change in large file", genLines(10000, "line"), replaceLine(genLines(10000, "line"), 4242, "changed line")},
		{"delete trailing lines", "a\nb\nc\nd\ne\nf\ng\nh\ni\nj\nk\n", "a\nb\nc\n"},
		{"small tweak", "x=1\n", "x=2\n"},
		{"full rewrite", genLines(20, "old"), genLines(20, "new")},
		{"append lines", genLines(15, "l"), genLines(15, "l") + "\nextra1\nextra2"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Compute(tc.original, tc.updated)
			got, err := Apply(tc.original, d)
			require.NoError(t, err)
			assert.Equal(t, tc.updated, got)
		})
	}
}

func replaceLine(content string, lineNum int, newLine string) string {
	lines := strings.Split(content, "\n")
	lines[lineNum] = newLine
	return strings.Join(lines, "\n")
}

func TestComputeEmptyNewFile(t *testing.T) {
	d := Compute("", "")
	assert.Equal(t, types.DiffFullContent, d.Kind)
	assert.Equal(t, "", d.Content)
}

func TestComputeSmallChangeUsesLineDiff(t *testing.T) {
	orig := genLines(10000, "line")
	updated := replaceLine(orig, 4242, "changed")

	d := Compute(orig, updated)
	require.Equal(t, types.DiffLine, d.Kind)

	payload, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Less(t, len(payload), 2048, "line diff payload should be much smaller than full content")
}

func TestComputeSmallFileAlwaysFull(t *testing.T) {
	d := Compute("a\nb\n", "a\nb\nc\n")
	assert.Equal(t, types.DiffFullContent, d.Kind)
}

func TestComputeHeavyChurnFallsBackToFull(t *testing.T) {
	orig := genLines(50, "a")
	updated := genLines(50, "completely-different-content-here")
	d := Compute(orig, updated)
	assert.Equal(t, types.DiffFullContent, d.Kind)
}

func TestApplyMismatchedDiff(t *testing.T) {
	d := types.FileDiff{Kind: types.DiffLine, Ops: []types.LineOp{{Kind: types.OpKeep, N: 5}}}
	_, err := Apply("a\nb\n", d)
	assert.ErrorIs(t, err, ErrMismatchedDiff)
}

func TestApplyDeleted(t *testing.T) {
	out, err := Apply("anything", types.FileDiff{Kind: types.DiffDeleted})
	require.NoError(t, err)
	assert.Equal(t, "", out)
}

func TestApplyBinaryNotImplemented(t *testing.T) {
	_, err := Apply("x", types.FileDiff{Kind: types.DiffBinary})
	assert.ErrorIs(t, err, ErrBinaryNotImplemented)
}
