// Package jobs runs statement processing in a bounded background
// worker pool. All workers pull from a single shared queue; natural
// load balancing via Go channel semantics.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/pipeline"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/storage"
	"github.com/MeherajUlMahmmud/bank-statement-parser/internal/store"
)

// Submit validation errors. The HTTP layer maps these to 400s.
var (
	ErrEmptyFile    = errors.New("file is empty")
	ErrFileTooLarge = errors.New("file exceeds maximum upload size")
	ErrBadExtension = errors.New("unsupported file type")
	ErrQueueFull    = errors.New("processing queue is full")
)

// Processor runs the extraction pipeline over one PDF.
// Satisfied by *pipeline.Pipeline; tests substitute fakes.
type Processor interface {
	Process(ctx context.Context, pdfPath string) *pipeline.Result
	Classify(ctx context.Context, imagePath string) pipeline.Classification
}

var _ Processor = (*pipeline.Pipeline)(nil)

// FirstPageRenderer renders a PDF's opening page for classification.
// Satisfied by *pdf.Rasterizer.
type FirstPageRenderer interface {
	RasterizeFirst(ctx context.Context, pdfPath, outDir string) (string, error)
	Cleanup(paths []string)
}

// Config configures a job controller.
type Config struct {
	Workers           int
	QueueSize         int
	MaxUploadSize     int64
	AllowedExtensions []string
	// StaleAfter is the age beyond which a processing row left by a
	// previous run is swept to failed at startup.
	StaleAfter time.Duration
}

// Controller accepts uploads, persists them, and processes them on a
// fixed pool of workers.
type Controller struct {
	store    *store.Store
	blobs    *storage.BlobStore
	proc     Processor
	renderer FirstPageRenderer // nil skips classification
	logger   *slog.Logger

	workers       int
	maxUploadSize int64
	allowedExts   map[string]bool
	staleAfter    time.Duration

	queue    chan string
	inFlight atomic.Int32
}

// NewController creates a controller. Zero config fields get defaults:
// 4 workers, queue of 100, 50MB max upload, .pdf only, 30m stale age.
func NewController(
	st *store.Store,
	blobs *storage.BlobStore,
	proc Processor,
	renderer FirstPageRenderer,
	cfg Config,
	logger *slog.Logger,
) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 100
	}
	maxSize := cfg.MaxUploadSize
	if maxSize <= 0 {
		maxSize = 50 * 1024 * 1024
	}
	exts := cfg.AllowedExtensions
	if len(exts) == 0 {
		exts = []string{".pdf"}
	}
	staleAfter := cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 30 * time.Minute
	}
	allowed := make(map[string]bool, len(exts))
	for _, ext := range exts {
		allowed[strings.ToLower(ext)] = true
	}
	return &Controller{
		store:         st,
		blobs:         blobs,
		proc:          proc,
		renderer:      renderer,
		logger:        logger.With("component", "jobs"),
		workers:       workers,
		maxUploadSize: maxSize,
		allowedExts:   allowed,
		staleAfter:    staleAfter,
		queue:         make(chan string, queueSize),
	}
}

// Start sweeps processing rows stranded by a previous run, re-queues
// pending ones, launches the workers, and blocks until ctx is
// cancelled.
func (c *Controller) Start(ctx context.Context) {
	if n, err := c.store.SweepStale(ctx, c.staleAfter); err != nil {
		c.logger.Warn("failed to sweep stale statements", "error", err)
	} else if n > 0 {
		c.logger.Info("swept stale statements", "count", n)
	}
	c.requeuePending(ctx)

	for i := 0; i < c.workers; i++ {
		go c.worker(ctx, i)
	}
	c.logger.Info("job controller started", "workers", c.workers)

	<-ctx.Done()
	c.logger.Info("job controller stopping")
}

// requeuePending puts pending rows from a previous run back on the
// queue. Rows that do not fit stay pending for the next restart.
func (c *Controller) requeuePending(ctx context.Context) {
	ids, err := c.store.PendingIDs(ctx)
	if err != nil {
		c.logger.Warn("failed to list pending statements", "error", err)
		return
	}
	requeued := 0
	for _, id := range ids {
		select {
		case c.queue <- id:
			requeued++
		default:
			c.logger.Warn("queue full while re-queueing pending statements",
				"remaining", len(ids)-requeued)
			return
		}
	}
	if requeued > 0 {
		c.logger.Info("re-queued pending statements", "count", requeued)
	}
}

// worker processes statement IDs from the shared queue.
func (c *Controller) worker(ctx context.Context, workerID int) {
	log := c.logger.With("worker_id", workerID)
	for {
		select {
		case <-ctx.Done():
			return
		case statementID := <-c.queue:
			log.Debug("worker picked up statement", "statement_id", statementID)
			c.inFlight.Add(1)
			c.run(ctx, statementID)
			c.inFlight.Add(-1)
		}
	}
}

// SubmitResult describes an accepted (or deduplicated) upload.
type SubmitResult struct {
	Statement *store.Statement
	Duplicate bool
}

// Submit validates and stores an upload, creates the statement row,
// and queues it for processing. A re-upload of already-seen content
// returns the existing statement with Duplicate set.
func (c *Controller) Submit(ctx context.Context, filename string, content []byte) (*SubmitResult, error) {
	if len(content) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(content)) > c.maxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrFileTooLarge, len(content), c.maxUploadSize)
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if !c.allowedExts[ext] {
		return nil, fmt.Errorf("%w: %q", ErrBadExtension, ext)
	}

	hash := storage.HashBytes(content)
	existing, err := c.store.FindByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicates: %w", err)
	}
	if existing != nil {
		c.logger.Info("duplicate upload", "filename", filename, "statement_id", existing.ID)
		return &SubmitResult{Statement: existing, Duplicate: true}, nil
	}

	put, err := c.blobs.Put(content, filename, storage.PutOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	st := &store.Statement{
		Filename: filepath.Base(filename),
		FilePath: put.Path,
		FileHash: hash,
		FileSize: put.Size,
	}
	if err := c.store.CreateStatement(ctx, st); err != nil {
		c.blobs.Delete(put.Path)
		return nil, fmt.Errorf("failed to create statement: %w", err)
	}

	select {
	case c.queue <- st.ID:
	default:
		c.store.MarkFailed(ctx, st.ID, "processing queue full")
		return nil, ErrQueueFull
	}

	c.logger.Info("statement queued", "statement_id", st.ID, "filename", st.Filename)
	return &SubmitResult{Statement: st}, nil
}

// MaxUploadSize returns the largest accepted upload in bytes.
func (c *Controller) MaxUploadSize() int64 {
	return c.maxUploadSize
}

// QueueDepth returns the number of statements waiting for a worker.
func (c *Controller) QueueDepth() int {
	return len(c.queue)
}

// InFlight returns the number of statements being processed right now.
func (c *Controller) InFlight() int {
	return int(c.inFlight.Load())
}

// run processes one statement end to end.
func (c *Controller) run(ctx context.Context, id string) {
	log := c.logger.With("statement_id", id)

	st, err := c.store.Get(ctx, id)
	if err != nil {
		log.Error("failed to load statement", "error", err)
		return
	}
	if err := c.store.MarkProcessing(ctx, id); err != nil {
		log.Warn("statement not in pending state, skipping", "error", err)
		return
	}

	cls := c.classify(ctx, id, st.FilePath)
	res := c.proc.Process(ctx, st.FilePath)
	c.recordLogs(ctx, id, res.Logs)

	if !res.Success {
		log.Error("processing failed", "stage", res.FailedStage, "error", res.Error)
		if err := c.store.MarkFailed(ctx, id, res.Error); err != nil {
			log.Error("failed to mark statement failed", "error", err)
		}
		return
	}

	if err := c.store.SaveResult(ctx, id, buildResult(res, cls)); err != nil {
		log.Error("failed to save result", "error", err)
		c.store.MarkFailed(ctx, id, fmt.Sprintf("failed to save result: %v", err))
		return
	}
	log.Info("statement processed",
		"pages", res.PageCount,
		"confidence", res.OverallConfidence,
		"duration", res.Duration)
}

// classify renders the first page and labels the document. Best
// effort: any failure leaves the type empty and the store falls back
// to the default.
func (c *Controller) classify(ctx context.Context, id, pdfPath string) pipeline.Classification {
	if c.renderer == nil {
		return pipeline.Classification{}
	}
	start := time.Now()

	dir := filepath.Join(os.TempDir(), fmt.Sprintf("bankparse-classify-%d", time.Now().UnixNano()))
	page, err := c.renderer.RasterizeFirst(ctx, pdfPath, dir)
	if err != nil {
		c.logger.Warn("first page render failed, skipping classification",
			"statement_id", id, "error", err)
		return pipeline.Classification{}
	}
	defer c.renderer.Cleanup([]string{page})

	cls := c.proc.Classify(ctx, page)
	c.appendLog(ctx, id, pipeline.StageLog{
		Step:     pipeline.StageClassify,
		Status:   "completed",
		Duration: time.Since(start),
		Metadata: map[string]any{
			"document_type": cls.DocumentType,
			"confidence":    cls.Confidence,
		},
	})
	return cls
}

func (c *Controller) recordLogs(ctx context.Context, id string, logs []pipeline.StageLog) {
	for _, sl := range logs {
		c.appendLog(ctx, id, sl)
	}
}

func (c *Controller) appendLog(ctx context.Context, id string, sl pipeline.StageLog) {
	entry := &store.ProcessingLog{
		StatementID: id,
		Step:        sl.Step,
		Status:      sl.Status,
		Metadata:    store.JSONMap(sl.Metadata),
	}
	if sl.Message != "" {
		entry.Message = &sl.Message
	}
	secs := sl.Duration.Seconds()
	entry.DurationSeconds = &secs

	if err := c.store.AppendLog(ctx, entry); err != nil {
		c.logger.Warn("failed to append processing log",
			"statement_id", id, "step", sl.Step, "error", err)
	}
}
