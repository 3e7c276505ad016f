package config

import (
	"path/filepath"
	"strings"
)

// Layout holds the output paths derived from the source document name. All
// directories live under one root and share the document's file name stem.
type Layout struct {
	Stem         string
	ImagesDir    string // extracted embedded assets
	RenderDir    string // per-page renders for the generation step
	ArtifactsDir string // per-page generated markup
	PagesDir     string // standalone full-page exports (render command)
	FinalPath    string // assembled final document
}

// NewLayout derives the output layout from the source document path. An
// empty root defaults to the document's own directory.
func NewLayout(pdfPath, root string) Layout {
	if root == "" {
		root = filepath.Dir(pdfPath)
	}
	stem := strings.TrimSuffix(filepath.Base(pdfPath), filepath.Ext(pdfPath))

	return Layout{
		Stem:         stem,
		ImagesDir:    filepath.Join(root, stem+"_images"),
		RenderDir:    filepath.Join(root, stem+"_temp"),
		ArtifactsDir: filepath.Join(root, stem+"_artifacts"),
		PagesDir:     filepath.Join(root, stem+"_pages"),
		FinalPath:    filepath.Join(root, stem+"_full.tex"),
	}
}
