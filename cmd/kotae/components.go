package main

import (
	"context"
	"fmt"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/gate"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/llm"
	"github.com/hyperjump/kotae/internal/prompt"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/tokenizer"
	"github.com/hyperjump/kotae/internal/vectorstore"
	"go.uber.org/zap"
)

// Components holds initialized services.
type Components struct {
	Storage  storage.Storage
	Store    *vectorstore.Store
	Embedder embedding.Embedder
	Indexer  *indexer.Indexer
	Pipeline *rag.Pipeline
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	dsn := cfg.Storage.DatabasePath
	if cfg.Storage.Driver == storage.DriverPostgres {
		dsn = cfg.Storage.PostgresDSN
	}
	st, err := storage.New(ctx, cfg.Storage.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	c.Storage = st

	embedder, err := newEmbedder(&cfg.Embedding)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedding.NewCachedEmbedder(embedder, cfg.Embedding.CacheSize)

	c.Store = vectorstore.New(cfg.Storage.IndexDir,
		vectorstore.WithKind(vectorstore.Kind(cfg.Storage.IndexKind)),
		vectorstore.WithLogger(logger),
	)
	if err := c.Store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load vector store: %w", err)
	}
	logger.Info("vector store loaded",
		zap.String("dir", cfg.Storage.IndexDir),
		zap.String("kind", cfg.Storage.IndexKind),
		zap.Bool("faiss_available", vectorstore.IsFAISSAvailable()),
		zap.Int("documents", len(c.Store.Documents())),
	)

	tok := tokenizer.NewTiktoken(cfg.Tokenizer.Encoding, cfg.Tokenizer.Model)
	extractOpts := []extract.Option{extract.WithLogger(logger)}
	if cfg.Extract.CropPDF {
		extractOpts = append(extractOpts, extract.WithPDFCrop(cfg.Extract.CropTop, cfg.Extract.CropBottom))
	}
	c.Indexer = indexer.NewIndexer(
		st,
		c.Store,
		c.Embedder,
		indexer.NewChunker(tok, cfg.Chunking.ChunkSize, cfg.Chunking.Overlap),
		extract.NewExtractor(extractOpts...),
		indexer.WithLogger(logger),
		indexer.WithPassagePrefix(cfg.Embedding.PassagePrefix),
	)
	if err := c.Indexer.SyncStore(ctx); err != nil {
		return nil, fmt.Errorf("failed to sync vector store with catalog: %w", err)
	}

	gen, err := newGenerator(&cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	retriever := rag.NewRetriever(c.Store, c.Embedder, tok,
		rag.WithQueryPrefix(cfg.Embedding.QueryPrefix),
		rag.WithMaxTokensPerChunk(cfg.Retrieval.MaxTokensPerChunk),
		rag.WithRetrieverLogger(logger),
	)
	g := gate.New(
		gate.WithMinSharedWords(cfg.Gate.MinSharedWords),
		gate.WithNovelRatio(cfg.Gate.NovelRatio),
		gate.WithHedges(cfg.Gate.Hedges),
	)
	prompts := prompt.NewBuilder(prompt.Language(cfg.Prompt.Language), cfg.Prompt.Refusal, cfg.Prompt.MinContextChars)
	supervisor := rag.NewSupervisor(gen,
		rag.WithPunctuationLimit(cfg.Generation.PunctWindow, cfg.Generation.PunctRatio),
		rag.WithSupervisorLogger(logger),
	)
	c.Pipeline = rag.NewPipeline(retriever, g, prompts, supervisor,
		rag.WithParams(llm.Params{
			MaxTokens:     cfg.Generation.MaxTokens,
			Temperature:   cfg.Generation.Temperature,
			RepeatPenalty: cfg.Generation.RepeatPenalty,
			NoRepeatNgram: cfg.Generation.NoRepeatNgram,
		}),
		rag.WithTopK(cfg.Retrieval.TopK),
		rag.WithHistory(st),
		rag.WithLogger(logger),
	)

	ok = true
	return c, nil
}

func newEmbedder(cfg *config.EmbeddingConfig) (embedding.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return embedding.NewOllamaEmbedder(cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case "openai":
		return embedding.NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.Dimensions), nil
	case "onnx":
		return embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:  cfg.ModelPath,
			VocabPath:  cfg.VocabPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
			Lowercase:  true,
		})
	case "mock":
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

func newGenerator(cfg *config.LLMConfig, logger *zap.Logger) (llm.Generator, error) {
	switch cfg.Provider {
	case "ollama":
		return llm.NewOllamaGenerator(cfg.BaseURL, cfg.Model, llm.WithOllamaLogger(logger)), nil
	case "openai":
		return llm.NewOpenAIGenerator(cfg.APIKey, cfg.BaseURL, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}
}
