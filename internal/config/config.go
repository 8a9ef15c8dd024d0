// Package config provides configuration loading and structs for the kotae server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Tokenizer  TokenizerConfig  `yaml:"tokenizer"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Gate       GateConfig       `yaml:"gate"`
	Generation GenerationConfig `yaml:"generation"`
	LLM        LLMConfig        `yaml:"llm"`
	Prompt     PromptConfig     `yaml:"prompt"`
	Watch      WatchConfig      `yaml:"watch"`
	Extract    ExtractConfig    `yaml:"extract"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=1,lte=65535"`
	// MaxUploadMB bounds multipart uploads.
	MaxUploadMB int `yaml:"max_upload_mb" validate:"gte=1"`
}

// StorageConfig holds the catalog backend and the vector index directory.
type StorageConfig struct {
	Driver       string `yaml:"driver" validate:"oneof=sqlite postgres"`
	DatabasePath string `yaml:"database_path"`
	PostgresDSN  string `yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	IndexDir     string `yaml:"index_dir" validate:"required"`
	IndexKind    string `yaml:"index_kind" validate:"oneof=flat faiss"`
}

// EmbeddingConfig selects and configures the embedding service.
type EmbeddingConfig struct {
	Provider      string `yaml:"provider" validate:"oneof=ollama openai onnx mock"`
	Model         string `yaml:"model"`
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	Dimensions    int    `yaml:"dimensions" validate:"gte=0"`
	ModelPath     string `yaml:"model_path" validate:"required_if=Provider onnx"`
	VocabPath     string `yaml:"vocab_path"`
	MaxTokens     int    `yaml:"max_tokens"`
	CacheSize     int    `yaml:"cache_size"`
	QueryPrefix   string `yaml:"query_prefix"`
	PassagePrefix string `yaml:"passage_prefix"`
}

// TokenizerConfig selects the tiktoken encoding used for chunking and truncation.
type TokenizerConfig struct {
	Encoding string `yaml:"encoding"`
	Model    string `yaml:"model"`
}

// ChunkingConfig holds chunk sizes in tokens.
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size" validate:"gte=1"`
	Overlap   int `yaml:"overlap" validate:"gte=0,ltfield=ChunkSize"`
}

// RetrievalConfig holds retrieval settings.
type RetrievalConfig struct {
	TopK              int `yaml:"top_k" validate:"gte=1"`
	MaxTokensPerChunk int `yaml:"max_tokens_per_chunk" validate:"gte=1"`
}

// GateConfig holds relevance and hallucination thresholds.
type GateConfig struct {
	MinSharedWords int      `yaml:"min_shared_words" validate:"gte=1"`
	NovelRatio     float64  `yaml:"novel_ratio" validate:"gt=0,lte=1"`
	Hedges         []string `yaml:"hedges"`
}

// GenerationConfig holds decoding parameters and repetition thresholds.
type GenerationConfig struct {
	MaxTokens     int     `yaml:"max_tokens" validate:"gte=1"`
	Temperature   float32 `yaml:"temperature" validate:"gte=0"`
	RepeatPenalty float32 `yaml:"repeat_penalty" validate:"gte=0"`
	NoRepeatNgram int     `yaml:"no_repeat_ngram" validate:"gte=0"`
	PunctWindow   int     `yaml:"punct_window" validate:"gte=1"`
	PunctRatio    float64 `yaml:"punct_ratio" validate:"gt=0,lte=1"`
}

// LLMConfig selects the generation backend.
type LLMConfig struct {
	Provider string `yaml:"provider" validate:"oneof=ollama openai"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model" validate:"required"`
	APIKey   string `yaml:"api_key"`
}

// PromptConfig holds the answer language and refusal sentence.
type PromptConfig struct {
	Language        string `yaml:"language" validate:"oneof=vi en"`
	Refusal         string `yaml:"refusal"`
	MinContextChars int    `yaml:"min_context_chars" validate:"gte=0"`
}

// WatchConfig holds directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// ExtractConfig controls text extraction.
type ExtractConfig struct {
	// CropPDF trims header and footer bands before reading PDF text.
	CropPDF bool `yaml:"crop_pdf"`
	// CropTop and CropBottom are band heights in points.
	CropTop    float64 `yaml:"crop_top" validate:"gte=0"`
	CropBottom float64 `yaml:"crop_bottom" validate:"gte=0"`
}

// Load reads and parses the config file at path, loads .env files, applies
// environment overrides and defaults, expands paths and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	configDir := filepath.Dir(path)
	loadDotEnv(configDir)
	applyEnv(&cfg)
	ApplyDefaults(&cfg)

	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Storage.IndexDir = expandPath(cfg.Storage.IndexDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Embedding.VocabPath != "" {
		cfg.Embedding.VocabPath = expandPath(cfg.Embedding.VocabPath, configDir)
	}
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

var validate = validator.New()

// Validate checks field constraints and reports every failing field.
func Validate(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed on '%s'", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// loadDotEnv reads .env from the config directory and the working directory.
// Variables already set in the environment win.
func loadDotEnv(configDir string) {
	for _, p := range []string{filepath.Join(configDir, ".env"), ".env"} {
		if _, err := os.Stat(p); err == nil {
			_ = godotenv.Load(p)
		}
	}
}

// applyEnv lets secrets live outside the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("KOTAE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Embedding.APIKey == "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("KOTAE_POSTGRES_DSN"); v != "" {
		cfg.Storage.PostgresDSN = v
	}
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
