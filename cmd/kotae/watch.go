package main

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"go.uber.org/zap"
)

// ingestHandler keeps the catalog in step with watched directories.
type ingestHandler struct {
	indexer *indexer.Indexer
	logger  *zap.Logger
}

func (h *ingestHandler) FileChanged(ctx context.Context, path string) {
	res, err := h.indexer.IngestFile(ctx, path, false)
	switch {
	case errors.Is(err, models.ErrEmptyDocument):
		h.logger.Debug("watch: no text", zap.String("path", path))
	case err != nil:
		h.logger.Warn("watch: ingest failed", zap.String("path", path), zap.Error(err))
	case res.Status == indexer.StatusUnchanged:
		h.logger.Debug("watch: unchanged", zap.String("path", path))
	default:
		h.logger.Info("watch: ingested", zap.String("path", path), zap.String("id", res.ID), zap.Int("chunks", res.ChunkCount))
	}
}

func (h *ingestHandler) FileRemoved(ctx context.Context, path string) {
	id := fileid.DocumentID(path)
	if err := h.indexer.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrDocumentNotFound) {
		h.logger.Warn("watch: delete failed", zap.String("path", path), zap.String("id", id), zap.Error(err))
	}
}
