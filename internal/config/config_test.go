package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "127.0.0.1"
  port: 9000
storage:
  database_path: "./catalog.db"
  index_dir: "./indices"
llm:
  model: "qwen2.5:3b"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("unexpected server config: %+v", cfg.Server)
	}
	if cfg.Storage.IndexDir != filepath.Join(filepath.Dir(path), "indices") {
		t.Errorf("index_dir = %s", cfg.Storage.IndexDir)
	}
	if cfg.LLM.Model != "qwen2.5:3b" || cfg.LLM.Provider != "ollama" {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Debug {
		t.Error("debug should default to false when unset")
	}
}

func TestLoad_expandPathDotSlashRelativeToConfigDir(t *testing.T) {
	path := writeConfig(t, `
storage:
  database_path: "./data/db/catalog.db"
watch:
  directories: ["./dev/sample"]
`)
	dir := filepath.Dir(path)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	wantDB := filepath.Join(dir, "data", "db", "catalog.db")
	if cfg.Storage.DatabasePath != wantDB {
		t.Errorf("database_path = %s, want %s", cfg.Storage.DatabasePath, wantDB)
	}
	if len(cfg.Watch.Directories) != 1 || cfg.Watch.Directories[0] != filepath.Join(dir, "dev", "sample") {
		t.Errorf("watch directories = %v", cfg.Watch.Directories)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("KOTAE_LLM_API_KEY", "from-env")
	t.Setenv("KOTAE_POSTGRES_DSN", "postgres://kotae@db/kotae")
	t.Setenv("OPENAI_API_KEY", "")
	path := writeConfig(t, `
storage:
  driver: postgres
llm:
  provider: openai
  api_key: from-file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LLM.APIKey != "from-env" {
		t.Errorf("api key = %q", cfg.LLM.APIKey)
	}
	if cfg.Storage.PostgresDSN != "postgres://kotae@db/kotae" {
		t.Errorf("dsn = %q", cfg.Storage.PostgresDSN)
	}
}

func TestLoad_DotEnvNextToConfig(t *testing.T) {
	t.Setenv("KOTAE_POSTGRES_DSN", "")
	os.Unsetenv("KOTAE_POSTGRES_DSN")
	path := writeConfig(t, "storage:\n  driver: postgres\n")
	env := filepath.Join(filepath.Dir(path), ".env")
	if err := os.WriteFile(env, []byte("KOTAE_POSTGRES_DSN=postgres://dotenv/kotae\n"), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.PostgresDSN != "postgres://dotenv/kotae" {
		t.Errorf("dsn = %q", cfg.Storage.PostgresDSN)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("KOTAE_POSTGRES_DSN", "")
	tests := []struct {
		name    string
		content string
		field   string
	}{
		{"bad driver", "storage:\n  driver: mongo\n", "Driver"},
		{"postgres without dsn", "storage:\n  driver: postgres\n", "PostgresDSN"},
		{"overlap not below chunk size", "chunking:\n  chunk_size: 40\n  overlap: 60\n", "Overlap"},
		{"unknown language", "prompt:\n  language: fr\n", "Language"},
		{"onnx without model", "embedding:\n  provider: onnx\n", "ModelPath"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.field) {
				t.Errorf("error %q should mention %s", err, tt.field)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if cfg.Server.Host != "localhost" || cfg.Server.Port != 8080 {
		t.Errorf("server defaults: %+v", cfg.Server)
	}
	if cfg.Chunking.ChunkSize != 512 || cfg.Chunking.Overlap != 50 {
		t.Errorf("chunking defaults: %+v", cfg.Chunking)
	}
	if cfg.Retrieval.TopK != 3 || cfg.Retrieval.MaxTokensPerChunk != 512 {
		t.Errorf("retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Gate.MinSharedWords != 2 || cfg.Gate.NovelRatio != 0.3 {
		t.Errorf("gate defaults: %+v", cfg.Gate)
	}
	g := cfg.Generation
	if g.MaxTokens != 256 || g.Temperature != 0 || g.RepeatPenalty != 1.2 || g.NoRepeatNgram != 3 {
		t.Errorf("generation defaults: %+v", g)
	}
	if cfg.Prompt.Refusal != DefaultRefusal || cfg.Prompt.MinContextChars != 50 {
		t.Errorf("prompt defaults: %+v", cfg.Prompt)
	}
	if cfg.Tokenizer.Encoding != "cl100k_base" {
		t.Errorf("tokenizer encoding: %s", cfg.Tokenizer.Encoding)
	}
	if len(cfg.Watch.Extensions) == 0 || cfg.Watch.Extensions[0] != ".txt" {
		t.Errorf("watch extensions: got %v", cfg.Watch.Extensions)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestApplyDefaults_WatchRecursiveWhenDirectoriesSet(t *testing.T) {
	cfg := &Config{Watch: WatchConfig{Directories: []string{"/tmp/docs"}}}
	ApplyDefaults(cfg)
	if cfg.Watch.Recursive == nil || !*cfg.Watch.Recursive {
		t.Error("recursive should default to true when directories are set")
	}
}

func TestWatchConfig_RecursiveOrDefault(t *testing.T) {
	f := false
	tr := true
	tests := []struct {
		name string
		in   *bool
		want bool
	}{
		{"nil_returns_true", nil, true},
		{"true_returns_true", &tr, true},
		{"false_returns_false", &f, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &WatchConfig{Recursive: tt.in}
			if got := w.RecursiveOrDefault(); got != tt.want {
				t.Errorf("RecursiveOrDefault() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := &Config{
		Server:  ServerConfig{Host: "localhost", Port: 9090},
		Storage: StorageConfig{DatabasePath: "/tmp/db", IndexDir: "/tmp/idx"},
	}
	if err := Save(path, cfg); err != nil {
		t.Fatal(err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Server.Port != 9090 || loaded.Storage.IndexDir != "/tmp/idx" {
		t.Errorf("loaded: %+v", loaded.Storage)
	}
}
