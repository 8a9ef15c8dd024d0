package config

// DefaultRefusal is the fixed answer used whenever grounding is insufficient.
const DefaultRefusal = "Tôi không có thông tin về câu hỏi này."

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/kotae/data/db/catalog.db"
	}
	if cfg.Storage.IndexDir == "" {
		cfg.Storage.IndexDir = "/usr/local/var/kotae/data/indices"
	}
	if cfg.Storage.IndexKind == "" {
		cfg.Storage.IndexKind = "flat"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "ollama"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "openai":
			cfg.Embedding.Model = "text-embedding-3-small"
		default:
			cfg.Embedding.Model = "bge-m3"
		}
	}
	if cfg.Embedding.BaseURL == "" && cfg.Embedding.Provider == "ollama" {
		cfg.Embedding.BaseURL = "http://localhost:11434"
	}
	if cfg.Embedding.Dimensions == 0 && (cfg.Embedding.Provider == "onnx" || cfg.Embedding.Provider == "mock") {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Tokenizer.Encoding == "" && cfg.Tokenizer.Model == "" {
		cfg.Tokenizer.Encoding = "cl100k_base"
	}
	if cfg.Chunking.ChunkSize == 0 {
		cfg.Chunking.ChunkSize = 512
	}
	if cfg.Chunking.Overlap == 0 {
		cfg.Chunking.Overlap = 50
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 3
	}
	if cfg.Retrieval.MaxTokensPerChunk == 0 {
		cfg.Retrieval.MaxTokensPerChunk = 512
	}
	if cfg.Gate.MinSharedWords == 0 {
		cfg.Gate.MinSharedWords = 2
	}
	if cfg.Gate.NovelRatio == 0 {
		cfg.Gate.NovelRatio = 0.3
	}
	if cfg.Generation.MaxTokens == 0 {
		cfg.Generation.MaxTokens = 256
	}
	if cfg.Generation.RepeatPenalty == 0 {
		cfg.Generation.RepeatPenalty = 1.2
	}
	if cfg.Generation.NoRepeatNgram == 0 {
		cfg.Generation.NoRepeatNgram = 3
	}
	if cfg.Generation.PunctWindow == 0 {
		cfg.Generation.PunctWindow = 50
	}
	if cfg.Generation.PunctRatio == 0 {
		cfg.Generation.PunctRatio = 0.3
	}
	if cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "ollama"
	}
	if cfg.LLM.BaseURL == "" && cfg.LLM.Provider == "ollama" {
		cfg.LLM.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "qwen2.5:1.5b-instruct"
	}
	if cfg.Prompt.Language == "" {
		cfg.Prompt.Language = "vi"
	}
	if cfg.Prompt.Refusal == "" && cfg.Prompt.Language == "vi" {
		cfg.Prompt.Refusal = DefaultRefusal
	}
	if cfg.Prompt.MinContextChars == 0 {
		cfg.Prompt.MinContextChars = 50
	}
	if cfg.Extract.CropPDF && cfg.Extract.CropTop == 0 && cfg.Extract.CropBottom == 0 {
		cfg.Extract.CropTop = 50
		cfg.Extract.CropBottom = 50
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".xlsx", ".ods", ".odt", ".rtf", ".pptx", ".odp"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
