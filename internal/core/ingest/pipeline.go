// Package ingest runs the staged document ingestion pipeline: extract,
// chunk, embed, store, finalize.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/supportpilot/supportpilot/internal/core"
	"github.com/supportpilot/supportpilot/internal/core/chunker"
	"github.com/supportpilot/supportpilot/internal/core/crawler"
	"github.com/supportpilot/supportpilot/internal/core/extractor"
	"github.com/supportpilot/supportpilot/internal/core/retry"
	"github.com/supportpilot/supportpilot/internal/core/textutil"
	"github.com/supportpilot/supportpilot/internal/models"
)

const (
	minContentChars = 10
	maxContentChars = 500_000
)

// ErrDocumentCreate marks a failure before the pipeline started; the
// caller gets no document row to inspect.
var ErrDocumentCreate = errors.New("document create failed")

// Source is one ingestion input. Type selects which fields are read.
// DocumentID is optional; a fresh id is generated when it is empty.
type Source struct {
	Type       models.SourceType
	Title      string
	DocumentID string

	// File uploads.
	FileName string
	FileData []byte

	// Pasted text.
	Text string

	// Crawls.
	URL                    string
	AllowedPathPrefixes    []string
	DisallowedPathPrefixes []string

	// FAQ entries.
	FAQQuestion string
	FAQAnswer   string
}

// Outcome summarizes a completed ingestion.
type Outcome struct {
	DocumentID string
	ChunkCount int
	Retries    models.RetryCounts
}

// Pipeline wires the ingestion stages to their providers. The object store
// is optional; when present, raw uploads are archived best effort.
type Pipeline struct {
	store     core.Store
	embedder  core.EmbeddingProvider
	splitter  *chunker.Splitter
	extractor *extractor.Extractor
	crawler   *crawler.Crawler
	objects   core.ObjectStore

	userAgent string
	maxPages  int
}

func NewPipeline(store core.Store, embedder core.EmbeddingProvider, objects core.ObjectStore, userAgent string, maxPages int) *Pipeline {
	if userAgent == "" {
		userAgent = crawler.DefaultUserAgent
	}
	if maxPages <= 0 {
		maxPages = crawler.DefaultMaxPages
	}
	return &Pipeline{
		store:     store,
		embedder:  embedder,
		splitter:  chunker.New(),
		extractor: extractor.New(),
		crawler:   crawler.New(),
		objects:   objects,
		userAgent: userAgent,
		maxPages:  maxPages,
	}
}

var stageSnapshots = map[models.IngestionStage]struct {
	percent int
	message string
}{
	models.StageQueued:     {0, "Queued for ingestion"},
	models.StageExtracting: {15, "Extracting source content"},
	models.StageChunking:   {35, "Chunking document content"},
	models.StageEmbedding:  {55, "Generating embeddings"},
	models.StageStoring:    {78, "Persisting vector chunks"},
	models.StageFinalizing: {92, "Finalizing document"},
	models.StageCompleted:  {100, "Ingestion completed"},
}

// Run validates src, creates the document row, and drives it through the
// stages to a terminal status. The returned error is nil only when the
// document reached "ready".
func (p *Pipeline) Run(ctx context.Context, orgID string, src Source) (*Outcome, error) {
	if err := validateSource(src); err != nil {
		return nil, err
	}
	if p.embedder == nil {
		return nil, fmt.Errorf("ingestion requires an embedding provider")
	}

	docID := src.DocumentID
	if docID == "" {
		docID = uuid.NewString()
	}
	r := &run{
		p:     p,
		orgID: orgID,
		docID: docID,
		src:   src,
	}
	r.meta = models.DocumentMetadata{
		Ingestion: models.IngestionProgress{
			Stage:     models.StageQueued,
			Message:   stageSnapshots[models.StageQueued].message,
			UpdatedAt: time.Now().UTC(),
			Retries:   models.RetryCounts{Extraction: 1, Embedding: 1, StoreChunks: 1},
		},
		Source: sourceMeta(src),
	}

	doc := &models.Document{
		ID:         r.docID,
		OrgID:      orgID,
		Title:      src.Title,
		SourceType: src.Type,
		Status:     models.DocumentStatusProcessing,
		Metadata:   r.meta,
	}
	if err := p.store.CreateDocument(ctx, doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDocumentCreate, err)
	}

	outcome, err := r.execute(ctx)
	if err != nil {
		r.finishFailed(ctx, err)
		return nil, err
	}
	return outcome, nil
}

// run carries the mutable state of one pipeline execution. r.meta is the
// in-memory snapshot of record; persisted copies trail it best effort.
type run struct {
	p     *Pipeline
	orgID string
	docID string
	src   Source
	meta  models.DocumentMetadata
}

func (r *run) execute(ctx context.Context) (*Outcome, error) {
	if err := r.assertNotCancelled(ctx); err != nil {
		return nil, err
	}

	// Extract.
	r.setStage(ctx, models.StageExtracting, nil)
	content, err := r.extract(ctx)
	if err != nil {
		return nil, err
	}

	content = textutil.Clean(content)
	if len(content) < minContentChars {
		return nil, errors.New("No usable content could be extracted from this source")
	}
	if len(content) > maxContentChars {
		content = content[:maxContentChars]
		r.meta.ContentTruncated = true
	}
	r.meta.ContentCharacters = len(content)

	if err := r.assertNotCancelled(ctx); err != nil {
		return nil, err
	}

	// Chunk.
	r.setStage(ctx, models.StageChunking, nil)
	chunkMeta := models.ChunkMetadata{
		SourceURL:   r.src.URL,
		FileName:    r.src.FileName,
		FAQQuestion: r.src.FAQQuestion,
	}
	chunks := r.p.splitter.Split(content, r.src.Type, chunkMeta)
	if len(chunks) == 0 {
		return nil, errors.New("No chunks were generated for this document")
	}
	r.meta.GeneratedChunkCount = len(chunks)

	if err := r.assertNotCancelled(ctx); err != nil {
		return nil, err
	}

	// Embed.
	r.setStage(ctx, models.StageEmbedding, nil)
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	vectors, err := retry.Do(ctx, func(attempt int) ([][]float32, error) {
		r.meta.Ingestion.Retries.Embedding = attempt
		return r.p.embedder.EmbedTexts(ctx, texts, r.stopCheck)
	}, retry.Options{ShouldRetry: retryTransient})
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(chunks) {
		return nil, errors.New("Embedding count does not match chunk count")
	}

	if err := r.assertNotCancelled(ctx); err != nil {
		return nil, err
	}

	// Store.
	r.setStage(ctx, models.StageStoring, nil)
	rows := make([]models.DocumentChunk, len(chunks))
	for i, c := range chunks {
		rows[i] = models.DocumentChunk{
			ID:         uuid.NewString(),
			DocumentID: r.docID,
			OrgID:      r.orgID,
			Content:    c.Content,
			TokenCount: c.TokenCount,
			Embedding:  vectors[i],
			Metadata:   c.Metadata,
		}
	}
	if _, err := retry.Do(ctx, func(attempt int) (struct{}, error) {
		r.meta.Ingestion.Retries.StoreChunks = attempt
		return struct{}{}, r.p.store.InsertChunks(ctx, rows)
	}, retry.Options{ShouldRetry: retryTransient}); err != nil {
		return nil, err
	}

	// Finalize.
	r.setStage(ctx, models.StageFinalizing, nil)

	now := time.Now().UTC()
	r.meta.CompletedAt = &now
	snapshot := stageSnapshots[models.StageCompleted]
	r.meta.Ingestion.Stage = models.StageCompleted
	r.meta.Ingestion.ProgressPercent = snapshot.percent
	r.meta.Ingestion.Message = snapshot.message
	r.meta.Ingestion.UpdatedAt = now

	status := models.DocumentStatusReady
	count := len(rows)
	if err := r.p.store.UpdateDocument(ctx, r.orgID, r.docID, core.DocumentUpdate{
		Status:     &status,
		Content:    &content,
		ChunkCount: &count,
		Metadata:   r.meta,
	}); err != nil {
		return nil, fmt.Errorf("finalize document: %w", err)
	}

	return &Outcome{
		DocumentID: r.docID,
		ChunkCount: count,
		Retries:    r.meta.Ingestion.Retries,
	}, nil
}

func (r *run) extract(ctx context.Context) (string, error) {
	switch r.src.Type {
	case models.SourceText:
		return r.src.Text, nil

	case models.SourceFAQ:
		return "Question: " + r.src.FAQQuestion + "\nAnswer: " + r.src.FAQAnswer, nil

	case models.SourceURL:
		result, err := r.p.crawler.Crawl(ctx, r.src.URL, crawler.Options{
			MaxPages:               r.p.maxPages,
			UserAgent:              r.p.userAgent,
			AllowedPathPrefixes:    r.src.AllowedPathPrefixes,
			DisallowedPathPrefixes: r.src.DisallowedPathPrefixes,
			ShouldStop:             r.stopCheck,
		})
		if err != nil {
			return "", err
		}
		r.meta.Crawl = &models.CrawlSummary{
			SourceURL:              r.src.URL,
			AllowedPathPrefixes:    r.src.AllowedPathPrefixes,
			DisallowedPathPrefixes: r.src.DisallowedPathPrefixes,
			PagesCrawled:           result.PagesCrawled,
			PagesWithContent:       result.PagesWithContent,
			VisitedURLs:            result.VisitedURLs,
			Skipped:                result.Skipped,
			CrawlDelayMs:           int(result.CrawlDelay.Milliseconds()),
			Truncated:              result.Truncated,
			TotalCharacters:        result.TotalCharacters,
		}
		return result.Content, nil

	default: // file uploads
		r.archiveUpload(ctx)
		return retry.Do(ctx, func(attempt int) (string, error) {
			r.meta.Ingestion.Retries.Extraction = attempt
			return r.p.extractor.Extract(r.src.FileName, r.src.FileData)
		}, retry.Options{ShouldRetry: retryTransient})
	}
}

// archiveUpload copies the raw upload to object storage. Failures are
// logged and ignored; the archive is a convenience, not a dependency.
func (r *run) archiveUpload(ctx context.Context) {
	if r.p.objects == nil || len(r.src.FileData) == 0 {
		return
	}
	key := fmt.Sprintf("uploads/%s/%s/%s", r.orgID, r.docID, r.src.FileName)
	url, err := r.p.objects.Upload(ctx, key, r.src.FileData, "application/octet-stream")
	if err != nil {
		log.Printf("ingest: raw upload archive failed for %s: %v", r.docID, err)
		return
	}
	if r.meta.Source != nil {
		r.meta.Source.StorageURL = url
	}
}

// setStage advances the in-memory snapshot and persists it best effort. A
// failed progress write never fails the run.
func (r *run) setStage(ctx context.Context, stage models.IngestionStage, status *string) {
	snapshot := stageSnapshots[stage]
	r.meta.Ingestion.Stage = stage
	r.meta.Ingestion.ProgressPercent = snapshot.percent
	r.meta.Ingestion.Message = snapshot.message
	r.meta.Ingestion.UpdatedAt = time.Now().UTC()

	if err := r.p.store.UpdateDocument(ctx, r.orgID, r.docID, core.DocumentUpdate{
		Status:   status,
		Metadata: r.meta,
	}); err != nil {
		log.Printf("ingest: progress write failed for %s at %s: %v", r.docID, stage, err)
	}
}

// stopCheck re-reads the persisted cancel flag. When the read fails the
// in-memory snapshot answers instead, so a flaky database cannot stall a
// run waiting on cancellation state.
func (r *run) stopCheck(ctx context.Context) (bool, error) {
	doc, err := r.p.store.GetDocument(ctx, r.orgID, r.docID)
	if err != nil || doc == nil {
		log.Printf("ingest: cancel check read failed for %s: %v", r.docID, err)
		return r.meta.Ingestion.CancelRequested, nil
	}
	if doc.Metadata.Ingestion.CancelRequested {
		r.meta.Ingestion.CancelRequested = true
		if doc.Metadata.CancelRequestedAt != nil {
			r.meta.CancelRequestedAt = doc.Metadata.CancelRequestedAt
		}
	}
	return r.meta.Ingestion.CancelRequested, nil
}

func (r *run) assertNotCancelled(ctx context.Context) error {
	stop, err := r.stopCheck(ctx)
	if err != nil {
		return err
	}
	if stop {
		return retry.NewCancelled()
	}
	return ctx.Err()
}

// finishFailed persists the terminal failed or cancelled snapshot.
func (r *run) finishFailed(ctx context.Context, cause error) {
	now := time.Now().UTC()
	cancelled := retry.IsCancellation(cause)

	if cancelled {
		r.meta.Ingestion.Stage = models.StageCancelled
		r.meta.Cancelled = true
	} else {
		r.meta.Ingestion.Stage = models.StageFailed
		r.meta.FailedAt = &now
	}
	r.meta.Ingestion.ProgressPercent = 100
	r.meta.Ingestion.Message = cause.Error()
	r.meta.Ingestion.UpdatedAt = now
	r.meta.Error = cause.Error()

	status := models.DocumentStatusError
	if err := r.p.store.UpdateDocument(ctx, r.orgID, r.docID, core.DocumentUpdate{
		Status:   &status,
		Metadata: r.meta,
	}); err != nil {
		log.Printf("ingest: terminal status write failed for %s: %v", r.docID, err)
	}
}

// retryTransient retries infrastructure failures only; validation problems
// and cancellations surface immediately.
func retryTransient(err error, _ int) bool {
	return retry.IsRetryable(err) && !retry.IsValidationMessage(err)
}

// sourceMeta records what was submitted, before extraction touches it.
func sourceMeta(src Source) *models.SourceMeta {
	switch src.Type {
	case models.SourceText:
		return nil
	case models.SourceURL:
		return &models.SourceMeta{SourceURL: src.URL}
	case models.SourceFAQ:
		return &models.SourceMeta{FAQQuestion: src.FAQQuestion}
	default:
		return &models.SourceMeta{
			FileName: src.FileName,
			FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(src.FileName)), "."),
			FileSize: len(src.FileData),
		}
	}
}

func validateSource(src Source) error {
	if !models.ValidSourceType(src.Type) {
		return fmt.Errorf("unsupported source type: %s", src.Type)
	}
	if strings.TrimSpace(src.Title) == "" {
		return errors.New("a document title is required")
	}
	switch src.Type {
	case models.SourceText:
		if strings.TrimSpace(src.Text) == "" {
			return errors.New("text content is required")
		}
	case models.SourceURL:
		if !strings.HasPrefix(src.URL, "http://") && !strings.HasPrefix(src.URL, "https://") {
			return errors.New("a valid URL is required for crawling")
		}
	case models.SourceFAQ:
		if strings.TrimSpace(src.FAQQuestion) == "" || strings.TrimSpace(src.FAQAnswer) == "" {
			return errors.New("an FAQ question and answer are required")
		}
	default:
		if src.FileName == "" || len(src.FileData) == 0 {
			return errors.New("a file upload is required")
		}
	}
	return nil
}
