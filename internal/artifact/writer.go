package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deckforge/deckforge/internal/domain"
)

// Writer persists generated markup to page-indexed files in one artifact
// directory. It implements domain.ArtifactStore.
type Writer struct {
	dir    string
	stem   string
	logger zerolog.Logger
}

// NewWriter creates the artifact directory if needed and returns a writer
// that names files {stem}_page_<N>.tex.
func NewWriter(dir, stem string, logger zerolog.Logger) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, domain.IOError(fmt.Sprintf("failed to create artifact directory %s", dir), err)
	}
	return &Writer{
		dir:    dir,
		stem:   stem,
		logger: logger.With().Str("component", "artifact").Logger(),
	}, nil
}

// Write cleans the generated markup and persists it for the page. The write
// goes through a temp file and a rename, so a partial write is never
// observable as a final artifact. Rewriting a page index overwrites it.
func (w *Writer) Write(pageIndex int, markup string) error {
	cleaned := CleanMarkup(markup)
	finalPath := filepath.Join(w.dir, FileName(w.stem, pageIndex))

	tmp, err := os.CreateTemp(w.dir, ".artifact-*")
	if err != nil {
		return domain.IOError(fmt.Sprintf("failed to create temp file for page %d", pageIndex), err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.WriteString(cleaned); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return domain.IOError(fmt.Sprintf("failed to write artifact for page %d", pageIndex), err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return domain.IOError(fmt.Sprintf("failed to close artifact for page %d", pageIndex), err)
	}

	if err := os.Rename(tmpName, finalPath); err != nil {
		os.Remove(tmpName)
		return domain.IOError(fmt.Sprintf("failed to finalize artifact for page %d", pageIndex), err)
	}

	w.logger.Debug().Int("page", pageIndex).Str("path", finalPath).Msg("wrote artifact")
	return nil
}

// HighestIndex returns the highest page index present in the artifact
// directory, or -1 when no artifacts exist yet.
func (w *Writer) HighestIndex() (int, error) {
	return HighestIndex(w.dir)
}

// HighestIndex scans a directory for artifact files and returns the highest
// embedded page index, or -1 for an empty or missing directory.
func HighestIndex(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return -1, nil
		}
		return -1, domain.IOError(fmt.Sprintf("failed to scan artifact directory %s", dir), err)
	}

	highest := -1
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if n, ok := ParsePageIndex(entry.Name()); ok && n > highest {
			highest = n
		}
	}
	return highest, nil
}

// CleanMarkup strips transport-layer formatting the generator may wrap the
// markup in (fenced-code delimiters) and normalizes trailing whitespace to a
// single newline.
func CleanMarkup(markup string) string {
	cleaned := strings.ReplaceAll(markup, "```latex", "")
	cleaned = strings.ReplaceAll(cleaned, "```", "")
	return strings.TrimSpace(cleaned) + "\n"
}
