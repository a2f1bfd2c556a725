// Package pdf converts statement PDFs into page images and reads
// document metadata. Rendering shells out to pdftoppm (poppler-utils);
// page counting uses pdfcpu as a cross-check against pdfinfo.
package pdf

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
)

// Rasterizer renders PDF pages to PNG images at a configured DPI.
type Rasterizer struct {
	dpi        int
	maxWorkers int
	logger     *slog.Logger
}

// Metadata describes a PDF without rendering it.
type Metadata struct {
	PageCount    int
	Title        string
	Author       string
	Creator      string
	Producer     string
	CreationDate string
	ModDate      string
}

// NewRasterizer creates a rasterizer. dpi <= 0 defaults to 300;
// maxWorkers <= 0 defaults to NumCPU.
func NewRasterizer(dpi, maxWorkers int, logger *slog.Logger) *Rasterizer {
	if dpi <= 0 {
		dpi = 300
	}
	if maxWorkers <= 0 {
		maxWorkers = runtime.NumCPU()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Rasterizer{dpi: dpi, maxWorkers: maxWorkers, logger: logger}
}

// PageCount returns the number of pages via pdfcpu.
func (r *Rasterizer) PageCount(pdfPath string) (int, error) {
	f, err := os.Open(pdfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to open PDF: %w", err)
	}
	defer f.Close()

	count, err := api.PageCount(f, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to get page count: %w", err)
	}
	return count, nil
}

// Metadata reads document info via pdfinfo (poppler-utils). The page
// count is cross-checked against pdfcpu; pdfcpu wins on disagreement.
func (r *Rasterizer) Metadata(ctx context.Context, pdfPath string) (*Metadata, error) {
	out, err := exec.CommandContext(ctx, "pdfinfo", pdfPath).Output()
	if err != nil {
		return nil, fmt.Errorf("pdfinfo failed: %w", err)
	}

	meta := &Metadata{}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, found := strings.Cut(line, ":")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		switch key {
		case "Pages":
			meta.PageCount, _ = strconv.Atoi(value)
		case "Title":
			meta.Title = value
		case "Author":
			meta.Author = value
		case "Creator":
			meta.Creator = value
		case "Producer":
			meta.Producer = value
		case "CreationDate":
			meta.CreationDate = value
		case "ModDate":
			meta.ModDate = value
		}
	}

	if count, err := r.PageCount(pdfPath); err == nil && count != meta.PageCount {
		r.logger.Warn("page count mismatch between pdfinfo and pdfcpu",
			"pdfinfo", meta.PageCount, "pdfcpu", count)
		meta.PageCount = count
	}

	return meta, nil
}

// Rasterize renders every page of the PDF into outDir as
// page_0001.png, page_0002.png, ... and returns the ordered paths.
// Rendering is atomic: any page failure fails the whole call and no
// paths are returned.
func (r *Rasterizer) Rasterize(ctx context.Context, pdfPath, outDir string) ([]string, error) {
	pageCount, err := r.PageCount(pdfPath)
	if err != nil {
		return nil, err
	}
	if pageCount == 0 {
		return nil, fmt.Errorf("PDF has no pages")
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	type result struct {
		pageNum int
		err     error
	}

	results := make(chan result, pageCount)
	sem := make(chan struct{}, r.maxWorkers)

	for page := 1; page <= pageCount; page++ {
		sem <- struct{}{} // acquire
		go func(pageNum int) {
			defer func() { <-sem }() // release
			err := r.renderPage(ctx, pdfPath, outDir, pageNum)
			results <- result{pageNum: pageNum, err: err}
		}(page)
	}

	var firstErr error
	for i := 0; i < pageCount; i++ {
		res := <-results
		if res.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to render page %d: %w", res.pageNum, res.err)
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}

	paths := make([]string, pageCount)
	for i := range paths {
		paths[i] = filepath.Join(outDir, fmt.Sprintf("page_%04d.png", i+1))
	}
	r.logger.Debug("rasterized PDF", "pdf", filepath.Base(pdfPath), "pages", pageCount, "dpi", r.dpi)
	return paths, nil
}

// RasterizeFirst renders only the first page into outDir and returns
// its path. Used for document classification, which only looks at the
// opening page.
func (r *Rasterizer) RasterizeFirst(ctx context.Context, pdfPath, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	if err := r.renderPage(ctx, pdfPath, outDir, 1); err != nil {
		return "", fmt.Errorf("failed to render page 1: %w", err)
	}
	return filepath.Join(outDir, "page_0001.png"), nil
}

// Cleanup removes rendered page images and their directory if empty.
func (r *Rasterizer) Cleanup(paths []string) {
	var dir string
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("failed to remove temp image", "path", p, "error", err)
		}
		dir = filepath.Dir(p)
	}
	if dir != "" {
		// Best effort; fails if other files remain.
		os.Remove(dir)
	}
}

// renderPage renders a single page using pdftoppm.
func (r *Rasterizer) renderPage(ctx context.Context, pdfPath, outDir string, pageNum int) error {
	tmpDir, err := os.MkdirTemp("", "bankparse-page-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	outputPrefix := filepath.Join(tmpDir, "page")

	// -png: output PNG format
	// -f/-l N: single-page window
	// -r: resolution in DPI
	// -singlefile: don't add page number suffix
	pageStr := strconv.Itoa(pageNum)
	cmd := exec.CommandContext(ctx, "pdftoppm",
		"-png",
		"-f", pageStr,
		"-l", pageStr,
		"-r", strconv.Itoa(r.dpi),
		"-singlefile",
		pdfPath,
		outputPrefix,
	)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pdftoppm failed: %w (output: %s)", err, string(output))
	}

	srcPath := outputPrefix + ".png"
	data, err := os.ReadFile(srcPath)
	if err != nil {
		return fmt.Errorf("pdftoppm did not create expected output: %w", err)
	}

	dstPath := filepath.Join(outDir, fmt.Sprintf("page_%04d.png", pageNum))
	if err := os.WriteFile(dstPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write page image: %w", err)
	}

	return nil
}
