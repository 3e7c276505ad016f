package artifact

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/deckforge/deckforge/internal/domain"
)

// Preamble and Postamble wrap the assembled document.
const (
	Preamble = `\documentclass{beamer}
\usepackage{textpos}
\usepackage{graphicx}
\begin{document}
`
	Postamble = `\end{document}
`
)

// SequenceAssembler discovers per-page artifacts, orders them by their
// embedded page index and concatenates them into the final document. It
// implements domain.Assembler.
type SequenceAssembler struct {
	dir    string
	logger zerolog.Logger
}

// NewSequenceAssembler creates an assembler over one artifact directory.
func NewSequenceAssembler(dir string, logger zerolog.Logger) *SequenceAssembler {
	return &SequenceAssembler{
		dir:    dir,
		logger: logger.With().Str("component", "assembler").Logger(),
	}
}

// Assemble writes the final document to outputPath: fixed preamble, every
// artifact body in ascending page-index order each followed by a newline,
// fixed postamble. The output is rebuilt from scratch on every call.
//
// Files without the artifact extension are excluded. A file that has the
// extension but no parseable page index is ambiguous and fails the whole
// assembly, since skipping it would corrupt ordering invisibly. Zero
// artifacts is a valid degenerate case and yields an empty body.
func (a *SequenceAssembler) Assemble(outputPath string) error {
	indexed, err := a.discover()
	if err != nil {
		return err
	}

	sort.Slice(indexed, func(i, j int) bool { return indexed[i].index < indexed[j].index })

	var out strings.Builder
	out.WriteString(Preamble)
	for _, entry := range indexed {
		body, err := os.ReadFile(entry.path)
		if err != nil {
			return domain.IOError(fmt.Sprintf("failed to read artifact for page %d", entry.index), err)
		}
		out.Write(body)
		out.WriteString("\n")
	}
	out.WriteString(Postamble)

	if err := os.WriteFile(outputPath, []byte(out.String()), 0o644); err != nil {
		return domain.IOError(fmt.Sprintf("failed to write assembled document %s", outputPath), err)
	}

	a.logger.Info().Int("artifacts", len(indexed)).Str("output", outputPath).Msg("assembled final document")
	return nil
}

type indexedArtifact struct {
	index int
	path  string
}

func (a *SequenceAssembler) discover() ([]indexedArtifact, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, domain.IOError(fmt.Sprintf("failed to list artifact directory %s", a.dir), err)
	}

	var indexed []indexedArtifact
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if filepath.Ext(name) != Extension {
			continue
		}
		n, ok := ParsePageIndex(name)
		if !ok {
			return nil, domain.AssemblyError(
				fmt.Sprintf("artifact file %s has no parseable page number", name), nil)
		}
		indexed = append(indexed, indexedArtifact{index: n, path: filepath.Join(a.dir, name)})
	}
	return indexed, nil
}
