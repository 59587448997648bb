package watcher

import (
	"context"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/oshigiri/kensaku/internal/extract"
	"github.com/oshigiri/kensaku/internal/ingest"
	"github.com/oshigiri/kensaku/internal/models"
	"github.com/oshigiri/kensaku/internal/storage"
)

// Ingestor bridges filesystem events to the ingestion pipeline. Each watched
// file becomes a document whose metadata records its source path; a removed
// file soft-deletes every live document ingested from that path.
type Ingestor struct {
	pipeline  *ingest.Pipeline
	storage   storage.Storage
	extractor *extract.Extractor
	logger    *zap.Logger
}

// NewIngestor creates a filesystem-to-pipeline bridge.
func NewIngestor(p *ingest.Pipeline, st storage.Storage, logger *zap.Logger) *Ingestor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ingestor{
		pipeline:  p,
		storage:   st,
		extractor: extract.NewExtractor(),
		logger:    logger,
	}
}

// OnChange extracts the file's text and ingests it. Content-digest dedupe in
// the pipeline makes redundant change events harmless.
func (in *Ingestor) OnChange(path string) {
	text, err := in.extractor.Extract(path)
	if err != nil {
		in.logger.Warn("extract failed", zap.String("path", path), zap.Error(err))
		return
	}
	receipt, err := in.pipeline.Ingest(context.Background(), &models.IngestInput{
		Title:       filepath.Base(path),
		Content:     []byte(text),
		ContentType: in.extractor.ContentType(path),
		Metadata:    map[string]interface{}{"source_path": path},
	})
	if err != nil {
		if models.IsValidation(err) {
			in.logger.Debug("file skipped", zap.String("path", path), zap.Error(err))
			return
		}
		in.logger.Warn("ingest failed", zap.String("path", path), zap.Error(err))
		return
	}
	if receipt.Deduplicated {
		in.logger.Debug("file unchanged", zap.String("path", path), zap.String("document_id", receipt.DocumentID))
		return
	}
	// A changed file gets a new digest and a new document; retire the
	// previous versions ingested from the same path.
	in.retireOthers(path, receipt.DocumentID)
	in.logger.Info("file ingested",
		zap.String("path", path),
		zap.String("document_id", receipt.DocumentID),
		zap.Int("chunks", receipt.ChunkCount))
}

// OnRemove soft-deletes every live document ingested from path.
func (in *Ingestor) OnRemove(path string) {
	in.retireOthers(path, "")
}

func (in *Ingestor) retireOthers(path, keepDocumentID string) {
	ctx := context.Background()
	docs, err := in.storage.ListDocumentsBySource(ctx, path)
	if err != nil {
		in.logger.Warn("source lookup failed", zap.String("path", path), zap.Error(err))
		return
	}
	for _, doc := range docs {
		if doc.ID == keepDocumentID {
			continue
		}
		if err := in.pipeline.Delete(ctx, doc.ID); err != nil {
			in.logger.Warn("retire failed", zap.String("document_id", doc.ID), zap.Error(err))
			continue
		}
		in.logger.Info("document retired", zap.String("path", path), zap.String("document_id", doc.ID))
	}
}
