package artifact

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	w, err := NewWriter(dir, "deck", zerolog.Nop())
	require.NoError(t, err)
	return w, dir
}

func TestCleanMarkup(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		want   string
	}{
		{
			name:   "fenced latex block",
			markup: "```latex\n\\begin{frame}\n\\end{frame}\n```",
			want:   "\\begin{frame}\n\\end{frame}\n",
		},
		{
			name:   "bare fences",
			markup: "```\n\\begin{frame}\\end{frame}\n```",
			want:   "\\begin{frame}\\end{frame}\n",
		},
		{
			name:   "no fences",
			markup: "\\begin{frame}\\end{frame}",
			want:   "\\begin{frame}\\end{frame}\n",
		},
		{
			name:   "surrounding whitespace",
			markup: "\n\n  \\begin{frame}\\end{frame}  \n\n",
			want:   "\\begin{frame}\\end{frame}\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanMarkup(tt.markup))
		})
	}
}

func TestWriteIsIdempotent(t *testing.T) {
	w, dir := newTestWriter(t)

	markup := "```latex\n\\begin{frame}\\frametitle{One}\\end{frame}\n```"
	require.NoError(t, w.Write(3, markup))

	path := filepath.Join(dir, "deck_page_3.tex")
	first, err := os.ReadFile(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(3, markup))
	second, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.Equal(t, first, second, "rewriting the same page must be byte-identical")
}

func TestWriteOverwritesExistingArtifact(t *testing.T) {
	w, dir := newTestWriter(t)

	require.NoError(t, w.Write(0, "old content"))
	require.NoError(t, w.Write(0, "new content"))

	data, err := os.ReadFile(filepath.Join(dir, "deck_page_0.tex"))
	require.NoError(t, err)
	assert.Equal(t, "new content\n", string(data))
}

func TestWriteLeavesNoTempFiles(t *testing.T) {
	w, dir := newTestWriter(t)
	require.NoError(t, w.Write(0, "content"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, strings.HasPrefix(entry.Name(), ".artifact-"),
			"temp file %s left behind", entry.Name())
	}
}

func TestHighestIndex(t *testing.T) {
	w, dir := newTestWriter(t)

	got, err := w.HighestIndex()
	require.NoError(t, err)
	assert.Equal(t, -1, got, "empty store")

	for _, idx := range []int{2, 0, 7, 1} {
		require.NoError(t, w.Write(idx, "body"))
	}

	// Unrelated files must not confuse detection.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	got, err = w.HighestIndex()
	require.NoError(t, err)
	assert.Equal(t, 7, got)
}

func TestHighestIndexMissingDirectory(t *testing.T) {
	got, err := HighestIndex(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Equal(t, -1, got)
}

func TestParsePageIndexRoundTrip(t *testing.T) {
	for _, idx := range []int{0, 1, 9, 10, 123} {
		name := FileName("deck", idx)
		got, ok := ParsePageIndex(name)
		require.True(t, ok, "parse %s", name)
		assert.Equal(t, idx, got)
	}

	for _, name := range []string{"deck.tex", "deck_page_.tex", "deck_page_3.txt", "readme.md"} {
		_, ok := ParsePageIndex(name)
		assert.False(t, ok, "%s should not parse", name)
	}
}
