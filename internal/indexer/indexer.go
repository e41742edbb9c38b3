// Package indexer orchestrates the indexing pipeline: walk the tree,
// split files into chunks, vectorize (dense and, for hybrid
// collections, sparse), and upsert into the vector store, with
// incremental re-indexing driven by the file synchronizer.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/semindex-mcp/internal/embedder"
	"github.com/dshills/semindex-mcp/internal/filesync"
	"github.com/dshills/semindex-mcp/internal/hasher"
	"github.com/dshills/semindex-mcp/internal/registry"
	"github.com/dshills/semindex-mcp/internal/splitter"
	"github.com/dshills/semindex-mcp/internal/vectorstore"
	"github.com/dshills/semindex-mcp/pkg/types"
)

// Pipeline defaults.
const (
	DefaultBatchSize     = 64
	perChunkRetryDelay   = 100 * time.Millisecond
	progressScanWeight   = 10 // percent of the bar spent scanning
)

// ErrIndexingInProgress is returned when another index run holds the
// collection's write lock.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// Progress is one progress report from a pipeline run.
type Progress struct {
	Phase       string
	Percentage  float64
	CurrentFile string
}

// ProgressFunc receives progress reports. May be nil.
type ProgressFunc func(Progress)

// Progress phases.
const (
	PhasePreparing = "preparing"
	PhaseScanning  = "scanning"
	PhaseIndexing  = "indexing files"
	PhaseCompleted = "completed"
	PhaseNoChanges = "no changes"
)

// Config configures an Indexer.
type Config struct {
	SnapshotDir    string   // file snapshot directory
	ContextName    string   // optional name folded into collection names
	IgnorePatterns []string // walker ignore globs; replace the defaults when set
	BatchSize      int      // chunks per embedding batch
	Hybrid         bool     // create hybrid (dense+sparse) collections
	ChunkSize      int
	ChunkOverlap   int
}

// IndexStats summarizes a full index run.
type IndexStats struct {
	Files      int
	Chunks     int
	Completion registry.Completion
}

// Indexer coordinates splitter, embedder, vector store, registry, and
// synchronizer. One Indexer serves many codebases; per-collection
// locks serialize writers.
type Indexer struct {
	store    vectorstore.VectorStore
	embedder embedder.Embedder
	registry *registry.Registry
	split    splitter.Splitter
	config   Config

	locks *lockMap

	mu         sync.Mutex
	syncs      map[string]*filesync.Synchronizer
	progressMu sync.Mutex // serializes reports from concurrent splits

	log *logrus.Entry
}

// New creates an Indexer.
func New(store vectorstore.VectorStore, emb embedder.Embedder, reg *registry.Registry, config Config) *Indexer {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	return &Indexer{
		store:    store,
		embedder: emb,
		registry: reg,
		split:    splitter.NewCodeSplitter(config.ChunkSize, config.ChunkOverlap),
		config:   config,
		locks:    newLockMap(),
		syncs:    make(map[string]*filesync.Synchronizer),
		log:      logrus.WithField("component", "indexer"),
	}
}

// CollectionName derives the deterministic collection name for a
// codebase root: the same root (and context name) always maps to the
// same collection across runs.
func (idx *Indexer) CollectionName(root string) string {
	key := root
	if idx.config.ContextName != "" {
		key = idx.config.ContextName + ":" + root
	}
	return "code_chunks_" + hasher.Hash(key)
}

// Index performs a full index of root. With force, the existing
// collection and snapshot are dropped first.
func (idx *Indexer) Index(ctx context.Context, root string, force bool, report ProgressFunc) (*IndexStats, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	name := idx.CollectionName(root)

	lock := idx.locks.get(name)
	if !lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer lock.Release()

	idx.registry.SetIndexing(root, 0)
	emit(report, Progress{Phase: PhasePreparing, Percentage: 0})

	stats, err := idx.fullIndex(ctx, root, name, force, report)
	if err != nil {
		idx.registry.SetFailed(root, err.Error())
		return nil, err
	}

	idx.registry.SetIndexed(root, registry.IndexedStats{
		Files:      stats.Files,
		Chunks:     stats.Chunks,
		Completion: stats.Completion,
	})
	emit(report, Progress{Phase: PhaseCompleted, Percentage: 100})
	return stats, nil
}

func (idx *Indexer) fullIndex(ctx context.Context, root, name string, force bool, report ProgressFunc) (*IndexStats, error) {
	if force {
		if err := idx.store.DropCollection(ctx, name); err != nil {
			return nil, err
		}
		if err := filesync.DeleteSnapshot(idx.config.SnapshotDir, root); err != nil {
			idx.log.WithError(err).Warn("failed to delete snapshot")
		}
		idx.forgetSynchronizer(root)
	}

	if ok, err := idx.store.CheckCollectionLimit(ctx); err != nil {
		return nil, err
	} else if !ok {
		return nil, types.ErrCollectionLimit
	}

	if err := idx.ensureCollection(ctx, name); err != nil {
		return nil, err
	}

	emit(report, Progress{Phase: PhaseScanning, Percentage: 2})
	files, err := filesync.NewWalker(idx.config.IgnorePatterns).Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", root, err)
	}
	emit(report, Progress{Phase: PhaseScanning, Percentage: progressScanWeight})

	// Split every file up front: hybrid training must see the whole
	// corpus before any insert is issued. Files split concurrently;
	// perFile keeps walk order so chunk batches stay deterministic.
	perFile := make([][]types.Chunk, len(files))
	var processed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.NumCPU())
	for i, rel := range files {
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			fileChunks, err := idx.splitFile(root, rel)
			if err != nil {
				idx.log.WithError(err).WithField("file", rel).Warn("skipping unreadable file")
				return nil
			}
			perFile[i] = fileChunks

			done := processed.Add(1)
			pct := float64(progressScanWeight) + float64(done)/float64(len(files))*30
			idx.registry.SetIndexing(root, pct)
			idx.progressMu.Lock()
			emit(report, Progress{Phase: PhaseIndexing, Percentage: pct, CurrentFile: rel})
			idx.progressMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var chunks []types.Chunk
	indexedFiles := 0
	for _, fileChunks := range perFile {
		if len(fileChunks) == 0 {
			continue
		}
		chunks = append(chunks, fileChunks...)
		indexedFiles++
	}

	if idx.config.Hybrid && len(chunks) > 0 {
		corpus := make([]string, len(chunks))
		for i, c := range chunks {
			corpus[i] = c.Content
		}
		if err := idx.store.TrainBM25(ctx, name, corpus); err != nil {
			return nil, fmt.Errorf("failed to train bm25 model: %w", err)
		}
	}

	committed, failedBatches, err := idx.upsertChunks(ctx, root, name, chunks, 40, report)
	if err != nil {
		return nil, err
	}

	// Advance the snapshot baseline so the next incremental run only
	// sees changes made after this index.
	syncer, err := idx.synchronizer(root)
	if err == nil {
		if _, err := syncer.CheckForChanges(); err != nil {
			idx.log.WithError(err).Warn("failed to refresh snapshot baseline")
		}
	}

	completion := registry.CompletionCompleted
	if failedBatches > 0 {
		completion = registry.CompletionLimitReached
	}
	return &IndexStats{Files: indexedFiles, Chunks: committed, Completion: completion}, nil
}

// ReindexByChange synchronizes the collection with filesystem changes
// since the last run: deletes for removed and modified paths complete
// before any insert begins.
func (idx *Indexer) ReindexByChange(ctx context.Context, root string, report ProgressFunc) (*types.ChangeStats, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	name := idx.CollectionName(root)

	lock := idx.locks.get(name)
	if !lock.TryAcquire() {
		return nil, ErrIndexingInProgress
	}
	defer lock.Release()

	emit(report, Progress{Phase: PhasePreparing, Percentage: 0})

	syncer, err := idx.synchronizer(root)
	if err != nil {
		return nil, err
	}
	changes, err := syncer.CheckForChanges()
	if err != nil {
		return nil, err
	}

	stats := &types.ChangeStats{
		Added:    len(changes.Added),
		Modified: len(changes.Modified),
		Removed:  len(changes.Removed),
	}
	if !stats.HasChanges() {
		emit(report, Progress{Phase: PhaseNoChanges, Percentage: 100})
		return stats, nil
	}

	idx.registry.SetIndexing(root, 0)

	// Deletes first: removed and modified paths leave the collection
	// before replacement chunks arrive.
	stale := append(append([]string{}, changes.Removed...), changes.Modified...)
	for _, rel := range stale {
		if err := idx.deleteByPath(ctx, name, rel); err != nil {
			idx.registry.SetFailed(root, err.Error())
			return nil, err
		}
	}

	var chunks []types.Chunk
	for _, rel := range append(append([]string{}, changes.Added...), changes.Modified...) {
		fileChunks, err := idx.splitFile(root, rel)
		if err != nil {
			idx.log.WithError(err).WithField("file", rel).Warn("skipping unreadable file")
			continue
		}
		chunks = append(chunks, fileChunks...)
	}

	if idx.config.Hybrid && len(chunks) > 0 {
		// Retrain over the full post-change corpus before any sparse
		// vectors for the new chunks are generated.
		corpus, err := idx.fullCorpus(ctx, name, chunks)
		if err != nil {
			idx.registry.SetFailed(root, err.Error())
			return nil, err
		}
		if err := idx.store.TrainBM25(ctx, name, corpus); err != nil {
			idx.registry.SetFailed(root, err.Error())
			return nil, err
		}
	}

	if _, _, err := idx.upsertChunks(ctx, root, name, chunks, 20, report); err != nil {
		idx.registry.SetFailed(root, err.Error())
		return nil, err
	}

	info, err := idx.store.CollectionInfo(ctx, name)
	if err == nil {
		idx.registry.SetIndexed(root, registry.IndexedStats{
			Files:      len(changes.Added) + len(changes.Modified),
			Chunks:     info.DocumentCount,
			Completion: registry.CompletionCompleted,
		})
	}
	emit(report, Progress{Phase: PhaseCompleted, Percentage: 100})
	return stats, nil
}

// ClearIndex drops the collection, snapshot, and registry entry for a
// codebase.
func (idx *Indexer) ClearIndex(ctx context.Context, root string) error {
	root, err := filepath.Abs(root)
	if err != nil {
		return err
	}
	name := idx.CollectionName(root)

	lock := idx.locks.get(name)
	if !lock.TryAcquire() {
		return ErrIndexingInProgress
	}
	defer lock.Release()

	if err := idx.store.DropCollection(ctx, name); err != nil {
		return err
	}
	if err := filesync.DeleteSnapshot(idx.config.SnapshotDir, root); err != nil {
		idx.log.WithError(err).Warn("failed to delete snapshot")
	}
	idx.forgetSynchronizer(root)
	idx.registry.Clear(root)
	return nil
}

// ensureCollection creates the collection when missing.
func (idx *Indexer) ensureCollection(ctx context.Context, name string) error {
	has, err := idx.store.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if idx.config.Hybrid {
		return idx.store.CreateHybridCollection(ctx, name, idx.embedder.Dimension())
	}
	return idx.store.CreateCollection(ctx, name, idx.embedder.Dimension())
}

// splitFile reads and chunks one file.
func (idx *Indexer) splitFile(root, rel string) ([]types.Chunk, error) {
	data, err := os.ReadFile(filepath.Join(root, rel))
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(rel)
	chunks := idx.split.Split(string(data), ext)
	return splitter.Finalize(chunks, rel, ext, root), nil
}

// deleteByPath removes every chunk stored for a relative path.
func (idx *Indexer) deleteByPath(ctx context.Context, name, rel string) error {
	rows, err := idx.store.Query(ctx, name, fmt.Sprintf("relativePath == '%s'", escapeLiteral(rel)), []string{"id"}, 0)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok {
			ids = append(ids, id)
		}
	}
	return idx.store.Delete(ctx, name, ids)
}

// fullCorpus returns existing stored contents plus incoming chunks.
func (idx *Indexer) fullCorpus(ctx context.Context, name string, incoming []types.Chunk) ([]string, error) {
	rows, err := idx.store.Query(ctx, name, "", []string{"content"}, 0)
	if err != nil {
		return nil, err
	}
	corpus := make([]string, 0, len(rows)+len(incoming))
	for _, row := range rows {
		if content, ok := row["content"].(string); ok {
			corpus = append(corpus, content)
		}
	}
	for _, c := range incoming {
		corpus = append(corpus, c.Content)
	}
	return corpus, nil
}

// upsertChunks embeds and inserts chunks in bounded batches,
// reporting progress across [basePct, 100). Returns committed chunk
// count and the number of batches dropped after embedding failures.
func (idx *Indexer) upsertChunks(ctx context.Context, root, name string, chunks []types.Chunk, basePct float64, report ProgressFunc) (int, int, error) {
	if len(chunks) == 0 {
		return 0, 0, nil
	}

	batchSize := idx.config.BatchSize
	committed := 0
	failedBatches := 0

	for start := 0; start < len(chunks); start += batchSize {
		select {
		case <-ctx.Done():
			return committed, failedBatches, ctx.Err()
		default:
		}

		end := start + batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		vectors, err := idx.embedBatch(ctx, batch)
		if err != nil {
			// Partial failure: record and keep going with the rest.
			idx.log.WithError(err).WithField("batch", start/batchSize).Warn("embedding batch failed, skipping")
			failedBatches++
			continue
		}

		if idx.config.Hybrid {
			err = idx.store.InsertHybrid(ctx, name, batch, vectors)
		} else {
			err = idx.store.Insert(ctx, name, batch, vectors)
		}
		if err != nil {
			return committed, failedBatches, fmt.Errorf("failed to upsert batch: %w", err)
		}
		committed += len(batch)

		pct := basePct + float64(end)/float64(len(chunks))*(100-basePct-1)
		idx.registry.SetIndexing(root, pct)
		emit(report, Progress{Phase: PhaseIndexing, Percentage: pct, CurrentFile: batch[len(batch)-1].RelativePath})
	}

	if committed == 0 && failedBatches > 0 {
		return 0, failedBatches, fmt.Errorf("%w: all embedding batches failed", embedder.ErrProviderFailed)
	}
	return committed, failedBatches, nil
}

// embedBatch embeds one batch, falling back to per-chunk calls with a
// small inter-call delay when the batch call fails.
func (idx *Indexer) embedBatch(ctx context.Context, batch []types.Chunk) ([][]float32, error) {
	texts := make([]string, len(batch))
	for i, c := range batch {
		texts[i] = c.Content
	}

	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err == nil {
		vectors := make([][]float32, len(embeddings))
		for i := range embeddings {
			vectors[i] = embeddings[i].Vector
		}
		return vectors, nil
	}
	idx.log.WithError(err).Debug("batch embedding failed, retrying per chunk")

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(perChunkRetryDelay):
		}
		emb, err := idx.embedder.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = emb.Vector
	}
	return vectors, nil
}

// synchronizer returns the cached synchronizer for root, creating
// and initializing one on first use.
func (idx *Indexer) synchronizer(root string) (*filesync.Synchronizer, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if s, ok := idx.syncs[root]; ok {
		return s, nil
	}
	s := filesync.NewSynchronizer(root, idx.config.SnapshotDir, idx.config.IgnorePatterns)
	if err := s.Initialize(); err != nil {
		return nil, err
	}
	idx.syncs[root] = s
	return s, nil
}

func (idx *Indexer) forgetSynchronizer(root string) {
	idx.mu.Lock()
	delete(idx.syncs, root)
	idx.mu.Unlock()
}

func emit(report ProgressFunc, p Progress) {
	if report != nil {
		report(p)
	}
}

func escapeLiteral(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '\'' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
