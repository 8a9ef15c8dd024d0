// Package main is the kotae CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kotae server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	args := os.Args[2:]
	switch command {
	case "server":
		runServer(args)
	case "ask":
		runAsk(args)
	case "ingest":
		runIngest(args)
	case "delete":
		runDelete(args)
	case "documents":
		runDocuments(args)
	case "status":
		runStatus(args)
	case "chat":
		runChat(args)
	case "watch":
		runWatch(args)
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer(args []string) {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (retrieval, gating, directory changes)")
	_ = fs.Parse(args)

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchSvc := watcher.New(
		cfg.Watch.Directories,
		&ingestHandler{indexer: components.Indexer, logger: logger},
		watcher.WithExtensions(cfg.Watch.Extensions),
		watcher.WithRecursive(cfg.Watch.RecursiveOrDefault()),
		watcher.WithLogger(logger),
	)
	if err := watchSvc.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer watchSvc.Stop()
	go func() {
		n := watchSvc.SyncExistingFiles()
		logger.Info("initial sync finished", zap.Int("files", n))
	}()

	srv := server.NewServer(
		components.Pipeline,
		components.Indexer,
		components.Storage,
		components.Store,
		cfg,
		server.WithLogger(logger),
		server.WithWatch(watchSvc, resolvedConfigPath),
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("server shutdown failed", zap.Error(err))
	}
}

// argsReorder moves any flags (and their values) that appear after the
// positional arguments to the front of the slice so that flag.Parse() sees
// them. Go's flag package stops at the first non-flag argument, so
// "kotae ask \"câu hỏi\" -top-k 5" would otherwise leave -top-k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// buildQuery joins all positional args with spaces so multi-word questions
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

func printUsage() {
	fmt.Println(`kotae - Grounded question answering over your documents

Usage:
  kotae server [flags]                 Start the HTTP server
  kotae ask [flags] <question>         Ask a question
  kotae ingest [flags] <file|dir>      Ingest a file or every supported file in a directory
  kotae ingest --text <text> --id <id> Ingest raw text
  kotae delete [flags] <id>            Delete a document
  kotae documents [flags]              List ingested documents
  kotae status [flags]                 Show catalog/index status
  kotae chat [flags]                   Interactive chat (needs a running server)
  kotae watch <add|remove|list>        Manage watched directories (needs a running server)
  kotae version                        Show version
  kotae help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open
                     the catalog directly when no server is running.
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ask Flags:
  --doc string       Restrict retrieval to one document
  --top-k int        Number of chunks to retrieve (default from config)
  --session string   Continue a chat session
  --stream           Print the answer as it is generated (server mode only)
  --sources          Print the retrieved chunks after the answer

Ingest Flags:
  --force            Re-ingest documents that are already indexed
  --text string      Ingest this text instead of a file
  --id string        Document ID for --text
  --title string     Document title for --text

Documents Flags:
  --offset int       Skip this many documents
  --limit int        Page size (default: 50)

Examples:
  kotae server
  kotae ingest ~/docs/noi_quy.pdf
  kotae ingest --force ~/docs
  kotae ask "Nhân viên được nghỉ phép bao nhiêu ngày?"
  kotae ask --doc noi_quy --stream nghỉ phép bao nhiêu ngày
  kotae ask --server "" --output json "câu hỏi"
  kotae chat --doc noi_quy
  kotae watch add ~/docs
  kotae status --output json`)
}
