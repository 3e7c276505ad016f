package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/deckforge/deckforge/internal/artifact"
	"github.com/deckforge/deckforge/internal/config"
	"github.com/deckforge/deckforge/internal/domain"
	"github.com/deckforge/deckforge/internal/extract"
	"github.com/deckforge/deckforge/internal/llm"
	"github.com/deckforge/deckforge/internal/pipeline"
	"github.com/deckforge/deckforge/internal/render"
)

var (
	convertDPI         float64
	convertStart       int
	convertConcurrency int
	convertModel       string
	convertOutputRoot  string
)

var convertCmd = &cobra.Command{
	Use:   "convert <pdf-file>",
	Short: "Convert a PDF slide deck into a Beamer document",
	Long: `Convert extracts every page of the PDF, renders each page, generates a
Beamer frame for it through the configured model, and assembles the frames
into {name}_full.tex. Already-completed pages are skipped, so an interrupted
run can simply be started again.`,
	Args: cobra.ExactArgs(1),
	RunE: runConvert,
}

func init() {
	convertCmd.Flags().Float64Var(&convertDPI, "dpi", 0, "render resolution (default 300)")
	convertCmd.Flags().IntVar(&convertStart, "start", -1, "first page index to process (-1 = resume automatically)")
	convertCmd.Flags().IntVar(&convertConcurrency, "concurrency", 0, "concurrent page workers (default 2)")
	convertCmd.Flags().StringVar(&convertModel, "model", "", "generation model override")
	convertCmd.Flags().StringVar(&convertOutputRoot, "output-root", "", "output directory (default: directory of the PDF)")
	rootCmd.AddCommand(convertCmd)
}

func runConvert(cmd *cobra.Command, args []string) error {
	pdfPath := args[0]

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if convertDPI != 0 {
		cfg.Render.DPI = convertDPI
	}
	if convertStart >= 0 {
		cfg.Resume.StartIndex = convertStart
	}
	if convertConcurrency > 0 {
		cfg.Generate.Concurrency = convertConcurrency
	}
	if convertModel != "" {
		cfg.Generate.Model = convertModel
	}
	if convertOutputRoot != "" {
		cfg.Output.Root = convertOutputRoot
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	logger := newLogger()
	layout := config.NewLayout(pdfPath, cfg.Output.Root)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nReceived interrupt, finishing in-flight pages...")
		cancel()
	}()

	extractor, err := extract.Open(pdfPath, layout.ImagesDir, logger)
	if err != nil {
		return err
	}
	defer extractor.Close()

	rasterizer, err := render.NewRasterizer(pdfPath, layout.RenderDir, cfg.Render.DPI, cfg.Render.Format, logger)
	if err != nil {
		return err
	}

	writer, err := artifact.NewWriter(layout.ArtifactsDir, layout.Stem, logger)
	if err != nil {
		return err
	}

	generator := llm.NewClient(cfg.Generate.APIKey, cfg.Generate.Model, logger,
		llm.WithTimeout(cfg.Generate.Timeout.Std()),
		llm.WithRetryConfig(&llm.RetryConfig{
			MaxRetries:     cfg.Generate.MaxRetries,
			InitialBackoff: llm.DefaultRetryConfig().InitialBackoff,
			MaxBackoff:     llm.DefaultRetryConfig().MaxBackoff,
		}))

	driver := pipeline.NewDriver(
		pipeline.Deps{
			Extractor:  extractor,
			Rasterizer: rasterizer,
			Generator:  generator,
			Store:      writer,
			Assembler:  artifact.NewSequenceAssembler(layout.ArtifactsDir, logger),
		},
		pipeline.Options{
			StartIndex:  cfg.Resume.StartIndex,
			Concurrency: cfg.Generate.Concurrency,
			OutputPath:  layout.FinalPath,
		},
		logger,
	)

	start, err := driver.ResolveStartIndex()
	if err != nil {
		return err
	}
	remaining := extractor.PageCount() - start
	if remaining < 0 {
		remaining = 0
	}

	fmt.Printf("Converting %s (%d pages, starting at page index %d)\n", pdfPath, extractor.PageCount(), start)

	eventCh := make(chan domain.Event, 100)
	reportCh := make(chan *domain.RunReport, 1)
	errCh := make(chan error, 1)

	go func() {
		report, err := driver.Run(ctx, eventCh)
		close(eventCh)
		reportCh <- report
		errCh <- err
	}()

	bar := progressbar.NewOptions(remaining,
		progressbar.OptionSetDescription("generating pages"),
		progressbar.OptionSetWidth(50),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
	)

	for event := range eventCh {
		switch event.Type {
		case domain.EventPageDone, domain.EventPageFailed:
			_ = bar.Add(1)
		}
	}
	_ = bar.Finish()
	fmt.Fprintln(os.Stderr)

	report := <-reportCh
	runErr := <-errCh

	if report != nil {
		printSummary(report)
	}
	if runErr != nil {
		if errors.Is(runErr, context.Canceled) {
			fmt.Println("Run interrupted, re-run the same command to resume")
			return nil
		}
		return runErr
	}
	return nil
}

func printSummary(report *domain.RunReport) {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	if noColor {
		color.NoColor = true
	}

	fmt.Println("Run summary")
	green.Printf("  succeeded: %d\n", report.Succeeded)
	if report.Failed > 0 {
		red.Printf("  failed:    %d (pages %v)\n", report.Failed, report.FailedPages)
		fmt.Println("  re-run with --start <page> to retry a failed page")
	}
	if report.OutputPath != "" {
		fmt.Printf("  output:    %s\n", report.OutputPath)
	}
	fmt.Printf("  duration:  %s\n", report.Duration.Round(time.Second))
}
