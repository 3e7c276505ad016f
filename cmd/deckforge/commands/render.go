package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/deckforge/deckforge/internal/config"
	"github.com/deckforge/deckforge/internal/domain"
	"github.com/deckforge/deckforge/internal/render"
)

var renderDPI float64

var renderCmd = &cobra.Command{
	Use:   "render <pdf-file>",
	Short: "Export every page of a PDF as numbered PNG images",
	Long: `Render rasterizes each page of the PDF at the chosen resolution and writes
zero-padded numbered PNGs (01.png, 02.png, ...) into {name}_pages/ next to
the source file, so the images sort correctly in a file listing.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().Float64Var(&renderDPI, "dpi", 400, "output image resolution")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]

	info, err := os.Stat(pdfPath)
	if err != nil || info.IsDir() || strings.ToLower(filepath.Ext(pdfPath)) != ".pdf" {
		return domain.SourceDocumentError(fmt.Sprintf("%s is not a valid PDF file", pdfPath), err)
	}

	layout := config.NewLayout(pdfPath, "")

	fmt.Printf("Rendering %s at %g DPI into %s\n", pdfPath, renderDPI, layout.PagesDir)

	count, err := render.RenderAllPages(cmd.Context(), pdfPath, layout.PagesDir, renderDPI)
	if err != nil {
		return err
	}

	fmt.Printf("Wrote %d pages\n", count)
	return nil
}
