// Package indexer provides the image indexing pipeline: enumerate, batch,
// embed, and commit image embeddings to the vector store.
package indexer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/miru/internal/catalog"
	"github.com/hyperjump/miru/internal/embedding"
	"github.com/hyperjump/miru/internal/imaging"
	"github.com/hyperjump/miru/internal/models"
	"github.com/hyperjump/miru/internal/vectorstore"
)

// DefaultBatchSize bounds peak memory and inference load per embedding call.
const DefaultBatchSize = 16

const (
	// ModeRebuild drops and recreates the collection, restarting IDs from zero.
	ModeRebuild = "rebuild"
	// ModeAppend indexes new and changed files, keeping existing IDs stable.
	ModeAppend = "append"
)

// Indexer transforms a directory of image files into vector records.
// It holds no state between runs; re-running a failed run is the recovery
// mechanism, safe because upserts are idempotent by ID.
type Indexer struct {
	store     vectorstore.Store
	embedder  embedding.Embedder
	catalog   *catalog.Catalog
	imageDir  string
	batchSize int
	logger    *zap.Logger
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithBatchSize overrides the embedding batch size.
func WithBatchSize(n int) Option {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// WithLogger sets a logger for progress and warning output.
func WithLogger(l *zap.Logger) Option {
	return func(idx *Indexer) { idx.logger = l }
}

// New creates an indexer over imageDir with the given dependencies.
func New(store vectorstore.Store, embedder embedding.Embedder, cat *catalog.Catalog, imageDir string, opts ...Option) *Indexer {
	idx := &Indexer{
		store:     store,
		embedder:  embedder,
		catalog:   cat,
		imageDir:  imageDir,
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// RunOptions selects the indexing mode.
type RunOptions struct {
	// Rebuild drops and recreates the collection before indexing. Not safe to
	// run concurrently with queries or another indexing run.
	Rebuild bool
}

// Report summarizes one indexing run. Corrupt counts files that failed to
// decode (skipped, non-fatal); Unchanged counts files skipped by append-mode
// change detection.
type Report struct {
	RunID     string `json:"run_id"`
	Mode      string `json:"mode"`
	Total     int    `json:"total"`
	Indexed   int    `json:"indexed"`
	Corrupt   int    `json:"corrupt"`
	Unchanged int    `json:"unchanged"`
}

type stagedFile struct {
	filename string
	path     string
	mtime    int64
	size     int64
}

// Run executes one indexing run and returns its report. A provider or store
// outage aborts the run with an error naming the failed batch's file range;
// batches committed before the failure remain valid.
func (idx *Indexer) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	report := &Report{
		RunID: uuid.New().String(),
		Mode:  ModeAppend,
	}
	if opts.Rebuild {
		report.Mode = ModeRebuild
	}
	started := time.Now()

	if opts.Rebuild {
		if err := idx.store.Recreate(ctx); err != nil {
			return report, fmt.Errorf("recreate collection: %w", err)
		}
		if err := idx.catalog.Reset(ctx); err != nil {
			return report, fmt.Errorf("reset catalog: %w", err)
		}
	} else {
		if err := idx.store.Ensure(ctx); err != nil {
			return report, fmt.Errorf("ensure collection: %w", err)
		}
	}

	files, err := imaging.ListImages(idx.imageDir)
	if err != nil {
		return report, err
	}
	report.Total = len(files)
	idx.logger.Info("indexing run started",
		zap.String("run_id", report.RunID),
		zap.String("mode", report.Mode),
		zap.Int("files", len(files)),
	)

	pending, unchanged, err := idx.stageFiles(ctx, files, opts.Rebuild)
	if err != nil {
		return report, err
	}
	report.Unchanged = unchanged

	for start := 0; start < len(pending); start += idx.batchSize {
		end := start + idx.batchSize
		if end > len(pending) {
			end = len(pending)
		}
		batch := pending[start:end]
		indexed, corrupt, err := idx.processBatch(ctx, batch)
		report.Indexed += indexed
		report.Corrupt += corrupt
		if err != nil {
			return report, fmt.Errorf("batch %s..%s failed: %w",
				batch[0].filename, batch[len(batch)-1].filename, err)
		}
	}

	idx.verifyCount(ctx, report)
	idx.saveRun(ctx, report, started)

	idx.logger.Info("indexing run finished",
		zap.String("run_id", report.RunID),
		zap.Int("indexed", report.Indexed),
		zap.Int("corrupt", report.Corrupt),
		zap.Int("unchanged", report.Unchanged),
	)
	return report, nil
}

// stageFiles stats each file and, in append mode, drops files the catalog
// already has with the same mtime and size.
func (idx *Indexer) stageFiles(ctx context.Context, files []string, rebuild bool) ([]stagedFile, int, error) {
	pending := make([]stagedFile, 0, len(files))
	unchanged := 0
	for _, filename := range files {
		path := filepath.Join(idx.imageDir, filename)
		info, err := os.Stat(path)
		if err != nil {
			idx.logger.Warn("skipping unreadable file", zap.String("file", filename), zap.Error(err))
			continue
		}
		staged := stagedFile{
			filename: filename,
			path:     path,
			mtime:    info.ModTime().UnixNano(),
			size:     info.Size(),
		}
		if !rebuild {
			need, err := idx.catalog.NeedsIndexing(ctx, filename, staged.mtime, staged.size)
			if err != nil {
				return nil, 0, err
			}
			if !need {
				unchanged++
				continue
			}
		}
		pending = append(pending, staged)
	}
	return pending, unchanged, nil
}

// processBatch validates, embeds, and commits one batch. A file that fails to
// decode is skipped and counted; an embedding or store failure is fatal for
// the batch and surfaces to the caller.
func (idx *Indexer) processBatch(ctx context.Context, batch []stagedFile) (indexed, corrupt int, err error) {
	survivors := make([]stagedFile, 0, len(batch))
	for _, f := range batch {
		if _, err := imaging.Decode(f.path); err != nil {
			idx.logger.Warn("skipping invalid image", zap.String("file", f.filename), zap.Error(err))
			corrupt++
			continue
		}
		survivors = append(survivors, f)
	}
	if len(survivors) == 0 {
		return 0, corrupt, nil
	}

	paths := make([]string, len(survivors))
	for i, f := range survivors {
		paths[i] = f.path
	}
	vectors, err := idx.embedder.EmbedImageBatch(ctx, paths)
	if err != nil {
		return 0, corrupt, fmt.Errorf("embed batch: %w", err)
	}

	records := make([]*models.VectorRecord, len(survivors))
	for i, f := range survivors {
		id, err := idx.catalog.AllocateID(ctx, f.filename)
		if err != nil {
			return 0, corrupt, err
		}
		records[i] = &models.VectorRecord{
			ID:      id,
			Vector:  vectors[i],
			Payload: map[string]any{models.PayloadKeyFilename: f.filename},
		}
	}

	if err := idx.store.Upsert(ctx, records); err != nil {
		return 0, corrupt, fmt.Errorf("upsert batch: %w", err)
	}
	for _, f := range survivors {
		if err := idx.catalog.Mark(ctx, f.filename, f.mtime, f.size); err != nil {
			idx.logger.Warn("catalog mark failed", zap.String("file", f.filename), zap.Error(err))
		}
	}
	return len(survivors), corrupt, nil
}

// IndexFile indexes a single image file in append mode. Used by the directory
// watcher. Unsupported extensions and unchanged files are skipped silently.
func (idx *Indexer) IndexFile(ctx context.Context, path string) error {
	if !imaging.IsSupported(path) {
		return nil
	}
	if err := idx.store.Ensure(ctx); err != nil {
		return err
	}
	filename := filepath.Base(path)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat file: %w", err)
	}
	mtime, size := info.ModTime().UnixNano(), info.Size()
	need, err := idx.catalog.NeedsIndexing(ctx, filename, mtime, size)
	if err != nil {
		return err
	}
	if !need {
		return nil
	}
	if _, err := imaging.Decode(path); err != nil {
		return err
	}
	vector, err := idx.embedder.EmbedImage(ctx, path)
	if err != nil {
		return fmt.Errorf("embed image: %w", err)
	}
	id, err := idx.catalog.AllocateID(ctx, filename)
	if err != nil {
		return err
	}
	rec := &models.VectorRecord{
		ID:      id,
		Vector:  vector,
		Payload: map[string]any{models.PayloadKeyFilename: filename},
	}
	if err := idx.store.Upsert(ctx, []*models.VectorRecord{rec}); err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	if err := idx.catalog.Mark(ctx, filename, mtime, size); err != nil {
		idx.logger.Warn("catalog mark failed", zap.String("file", filename), zap.Error(err))
	}
	idx.logger.Debug("indexed file", zap.String("file", filename), zap.Uint64("id", id))
	return nil
}

// verifyCount compares the store's exact record count with the catalog after
// a run and logs a warning on drift.
func (idx *Indexer) verifyCount(ctx context.Context, report *Report) {
	stored, err := idx.store.Count(ctx)
	if err != nil {
		idx.logger.Warn("count verification failed", zap.Error(err))
		return
	}
	cataloged, err := idx.catalog.Count(ctx)
	if err != nil {
		idx.logger.Warn("count verification failed", zap.Error(err))
		return
	}
	if stored != uint64(cataloged) {
		idx.logger.Warn("record count drift",
			zap.Uint64("store", stored),
			zap.Int64("catalog", cataloged),
		)
		return
	}
	idx.logger.Info("collection verified", zap.Uint64("records", stored))
}

func (idx *Indexer) saveRun(ctx context.Context, report *Report, started time.Time) {
	run := &catalog.Run{
		ID:         report.RunID,
		Mode:       report.Mode,
		StartedAt:  started,
		FinishedAt: time.Now(),
		Total:      report.Total,
		Indexed:    report.Indexed,
		Skipped:    report.Corrupt + report.Unchanged,
	}
	if err := idx.catalog.SaveRun(ctx, run); err != nil {
		idx.logger.Warn("save run report failed", zap.Error(err))
	}
}
