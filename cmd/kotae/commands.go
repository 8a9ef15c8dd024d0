package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/client"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/tui"
	"github.com/hyperjump/kotae/pkg/utils"
	"go.uber.org/zap"
)

// commonFlags are shared by commands that can run against a server or directly.
type commonFlags struct {
	configPath *string
	serverURL  *string
	output     *string
}

func addCommonFlags(fs *flag.FlagSet) *commonFlags {
	return &commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path (direct mode)"),
		serverURL:  fs.String("server", defaultServerURL, `server URL (use "" to open the catalog directly)`),
		output:     fs.String("output", "text", "output format: text or json"),
	}
}

func (f *commonFlags) format() cli.OutputFormat {
	format, err := cli.ParseFormat(*f.output)
	if err != nil {
		fatalf("%v", err)
	}
	return format
}

func (f *commonFlags) client() *client.Client {
	return client.New(*f.serverURL, nil)
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// openDirect loads the config and opens every component in-process. The
// returned func releases them.
func openDirect(ctx context.Context, configPath string) (*Components, *config.Config, func()) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fatalf("Failed to load config: %v", err)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	components, err := initializeComponents(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		fatalf("Failed to initialize: %v", err)
	}
	return components, cfg, func() {
		components.Close()
		_ = logger.Sync()
	}
}

func interruptContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runAsk(args []string) {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	common := addCommonFlags(fs)
	doc := fs.String("doc", "", "restrict retrieval to this document id")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = configured default)")
	session := fs.String("session", "", "chat session id to continue")
	stream := fs.Bool("stream", false, "print the answer while it is generated")
	sources := fs.Bool("sources", false, "print retrieved chunks after the answer")
	_ = fs.Parse(argsReorder(args))

	question := buildQuery(fs.Args())
	if question == "" {
		fmt.Println("Usage: kotae ask [flags] <question>")
		os.Exit(1)
	}
	format := common.format()
	req := &models.AskRequest{Query: question, DocumentID: *doc, TopK: *topK, SessionID: *session}

	ctx, cancel := interruptContext()
	defer cancel()

	printDelta := func(d string) error {
		_, err := io.WriteString(os.Stdout, d)
		return err
	}
	streaming := *stream && format == cli.OutputText

	if *common.serverURL != "" {
		c := common.client()
		if streaming {
			sid, err := c.AskStream(ctx, req, printDelta)
			fmt.Println()
			if err != nil {
				fatalf("Ask failed: %v", err)
			}
			fmt.Fprintf(os.Stderr, "session: %s\n", sid)
			return
		}
		ans, err := c.Ask(ctx, req)
		if err != nil {
			fatalf("Ask failed: %v", err)
		}
		if err := cli.WriteAnswer(os.Stdout, ans, format, *sources); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}

	components, _, closeAll := openDirect(ctx, *common.configPath)
	defer closeAll()
	if streaming {
		ans, err := components.Pipeline.AnswerStream(ctx, req, printDelta)
		fmt.Println()
		if err != nil {
			fatalf("Ask failed: %v", err)
		}
		if *sources && len(ans.Sources) > 0 {
			fmt.Printf("\n--- Sources (%d, %dms) ---\n", len(ans.Sources), ans.QueryTime)
			cli.WriteSources(os.Stdout, ans.Sources)
		}
		return
	}
	ans, err := components.Pipeline.Answer(ctx, req)
	if err != nil {
		fatalf("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format, *sources); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runIngest(args []string) {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	common := addCommonFlags(fs)
	force := fs.Bool("force", false, "re-ingest documents that are already indexed")
	text := fs.String("text", "", "ingest this text instead of a file")
	id := fs.String("id", "", "document id for --text")
	title := fs.String("title", "", "document title for --text")
	_ = fs.Parse(argsReorder(args))
	format := common.format()

	ctx, cancel := interruptContext()
	defer cancel()

	if *text != "" {
		input := &models.DocumentInput{ID: *id, Title: *title, Content: *text, Force: *force}
		var (
			res *models.IngestResult
			err error
		)
		if *common.serverURL != "" {
			res, err = common.client().Ingest(ctx, input)
		} else {
			components, _, closeAll := openDirect(ctx, *common.configPath)
			defer closeAll()
			res, err = components.Indexer.IngestText(ctx, input)
		}
		// An already ingested document still reports its result.
		if err != nil && res == nil {
			fatalf("Ingest failed: %v", err)
		}
		if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
			fatalf("Output failed: %v", err)
		}
		return
	}

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ingest [flags] <file-or-directory>")
		os.Exit(1)
	}
	path := fs.Arg(0)
	info, err := os.Stat(path)
	if err != nil {
		fatalf("Failed to stat path: %v", err)
	}

	if *common.serverURL != "" {
		c := common.client()
		if !info.IsDir() {
			res, err := c.Upload(ctx, path, *force)
			if err != nil && res == nil {
				fatalf("Ingest failed: %v", err)
			}
			if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
				fatalf("Output failed: %v", err)
			}
			return
		}
		n, err := uploadDirectory(ctx, c, path, *force, os.Stdout, format)
		if err != nil {
			fatalf("Ingesting directory failed: %v", err)
		}
		if format == cli.OutputText {
			fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		}
		return
	}

	components, cfg, closeAll := openDirect(ctx, *common.configPath)
	defer closeAll()
	if info.IsDir() {
		n, err := components.Indexer.IngestDirectory(ctx, path, cfg.Watch.Extensions, *force)
		if err != nil {
			fatalf("Ingesting directory failed: %v", err)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	res, err := components.Indexer.IngestFile(ctx, path, *force)
	if err != nil {
		fatalf("Ingest failed: %v", err)
	}
	if err := cli.WriteIngestResult(os.Stdout, res, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

// uploader is the part of the API client used to send files.
type uploader interface {
	Upload(ctx context.Context, path string, force bool) (*models.IngestResult, error)
}

// uploadDirectory sends every supported file under dir to the server and
// writes one result line per file. Documents the server already has are
// reported but not counted.
func uploadDirectory(ctx context.Context, up uploader, dir string, force bool, w io.Writer, format cli.OutputFormat) (int, error) {
	n := 0
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !extract.Supported(filepath.Ext(path)) {
			return nil
		}
		res, err := up.Upload(ctx, path, force)
		if errors.Is(err, models.ErrEmptyDocument) {
			return nil
		}
		if err != nil && res == nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		if res.Status == indexer.StatusIngested {
			n++
		}
		return cli.WriteIngestResult(w, res, format)
	})
	return n, err
}

func runDelete(args []string) {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(argsReorder(args))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)

	ctx, cancel := interruptContext()
	defer cancel()

	var err error
	if *common.serverURL != "" {
		err = common.client().Delete(ctx, docID)
	} else {
		components, _, closeAll := openDirect(ctx, *common.configPath)
		defer closeAll()
		err = components.Indexer.Delete(ctx, docID)
	}
	if err != nil {
		fatalf("Deletion failed: %v", err)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runDocuments(args []string) {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	common := addCommonFlags(fs)
	offset := fs.Int("offset", 0, "skip this many documents")
	limit := fs.Int("limit", 50, "page size")
	_ = fs.Parse(args)
	format := common.format()

	ctx, cancel := interruptContext()
	defer cancel()

	var list *models.DocumentList
	if *common.serverURL != "" {
		var err error
		if list, err = common.client().Documents(ctx, *offset, *limit); err != nil {
			fatalf("List failed: %v", err)
		}
	} else {
		components, _, closeAll := openDirect(ctx, *common.configPath)
		defer closeAll()
		docs, err := components.Storage.ListDocuments(ctx, *offset, *limit)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		total, err := components.Storage.CountDocuments(ctx)
		if err != nil {
			fatalf("Count failed: %v", err)
		}
		for _, d := range docs {
			d.Content = ""
		}
		list = &models.DocumentList{Documents: docs, Total: total, Offset: *offset, Limit: *limit}
	}
	if err := cli.WriteDocuments(os.Stdout, list, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := addCommonFlags(fs)
	_ = fs.Parse(args)
	format := common.format()

	ctx, cancel := interruptContext()
	defer cancel()

	var (
		status *models.Status
		err    error
	)
	if *common.serverURL != "" {
		status, err = common.client().Status(ctx)
	} else {
		components, cfg, closeAll := openDirect(ctx, *common.configPath)
		defer closeAll()
		status, err = server.BuildStatus(ctx, components.Storage, components.Store, cfg)
	}
	if err != nil {
		fatalf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fatalf("Output failed: %v", err)
	}
}

func runChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	doc := fs.String("doc", "", "restrict every question to this document id")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (0 = server default)")
	session := fs.String("session", "", "chat session id to continue")
	logPath := fs.String("log", filepath.Join(os.TempDir(), "kotae-chat.log"), "log file")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(args)

	logger, err := utils.NewFileLogger(*logPath, *debug)
	if err != nil {
		fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	c := client.New(*serverURL, nil)
	ctx, cancel := interruptContext()
	defer cancel()
	if _, err := c.Status(ctx); err != nil {
		fatalf("Server not reachable at %s: %v", *serverURL, err)
	}

	title := "kotae · " + *serverURL
	model := tui.New(c, title, tui.WithScope(*doc), tui.WithTopK(*topK), tui.WithSession(*session))
	logger.Info("chat started", zap.String("server", *serverURL), zap.String("document", *doc))
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		logger.Error("chat ended with error", zap.Error(err))
		fatalf("Chat failed: %v", err)
	}
	logger.Info("chat ended")
}

func runWatch(args []string) {
	if len(args) < 1 {
		fmt.Println("Usage: kotae watch <add|remove|list> [path]")
		fmt.Println("  kotae watch add <path>     Add directory to watch")
		fmt.Println("  kotae watch remove <path>  Remove directory from watch")
		fmt.Println("  kotae watch list           List watched directories")
		os.Exit(1)
	}
	sub := args[0]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "do not ingest files already in the directory (add)")
	_ = fs.Parse(argsReorder(args[1:]))

	c := client.New(*serverURL, nil)
	ctx, cancel := interruptContext()
	defer cancel()

	switch sub {
	case "add", "remove":
		if fs.NArg() < 1 {
			fmt.Printf("Usage: kotae watch %s <path>\n", sub)
			os.Exit(1)
		}
		path, err := filepath.Abs(fs.Arg(0))
		if err != nil {
			fatalf("Invalid path: %v", err)
		}
		if sub == "add" {
			if err := c.AddWatchDirectory(ctx, path, !*noSync); err != nil {
				fatalf("Add failed: %v", err)
			}
			fmt.Printf("Added: %s\n", path)
			return
		}
		if err := c.RemoveWatchDirectory(ctx, path); err != nil {
			fatalf("Remove failed: %v", err)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		dirs, err := c.WatchDirectories(ctx)
		if err != nil {
			fatalf("List failed: %v", err)
		}
		for _, d := range dirs {
			fmt.Println(d)
		}
	default:
		fatalf("Unknown watch subcommand: %s", sub)
	}
}
