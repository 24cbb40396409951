package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/bill-amounts/internal/amount"
	"github.com/zombor/bill-amounts/internal/extraction"
	"github.com/zombor/bill-amounts/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	// A missing .env file is normal outside development
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	fs := ff.NewFlagSet("bill-amounts")
	var (
		port              = fs.IntLong("port", 8080, "HTTP server port")
		dbPath            = fs.StringLong("db", "bill-amounts.db", "History database file path")
		storagePath       = fs.StringLong("storage", "./bills", "Directory for uploaded bill images")
		history           = fs.BoolLong("history", "Record complete extractions and uploaded images")
		geminiKey         = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel       = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		primaryEndpoint   = fs.StringLong("primary-endpoint", "", "Gemini API endpoint override")
		secondaryEndpoint = fs.StringLong("secondary-endpoint", "http://localhost:11434", "Ollama API base URL (empty disables the secondary backend)")
		ollamaModel       = fs.StringLong("ollama-model", "llama3.1", "Ollama model name")
		backendTimeout    = fs.DurationLong("backend-timeout", amount.DefaultBackendTimeout, "Timeout for each classification backend call")
		ocrTimeout        = fs.DurationLong("ocr-timeout", amount.DefaultOCRTimeout, "Timeout for OCR of one image")
		tessdata          = fs.StringLong("tessdata", "", "Tesseract tessdata directory (default TESSDATA_PREFIX)")
		ocrLang           = fs.StringLong("ocr-lang", "eng", "Tesseract language")
		authUser          = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass          = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		logLevel          = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		showVersion       = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_AMOUNTS"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid log level %q\n", *logLevel)
		os.Exit(1)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Primary backend: Gemini, when a key is available
	var primary amount.Classifier
	apiKey := *geminiKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey != "" {
		slog.Info("Initializing Gemini backend...", "model", *geminiModel)
		gemini, err := scanning.NewGemini(apiKey, *geminiModel, *primaryEndpoint)
		if err != nil {
			slog.Error("Failed to initialize Gemini", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		primary = amount.NewBackendClassifier(gemini)
	} else {
		slog.Warn("No Gemini API key configured, primary classification uses rules")
	}

	// Secondary backend: Ollama, unless disabled
	var secondary amount.Classifier
	if *secondaryEndpoint != "" {
		slog.Info("Initializing Ollama backend...", "url", *secondaryEndpoint, "model", *ollamaModel)
		ollama, err := scanning.NewOllama(*secondaryEndpoint, *ollamaModel)
		if err != nil {
			slog.Error("Failed to initialize Ollama", "error", err)
			os.Exit(1)
		}
		defer ollama.Close()
		secondary = amount.NewBackendClassifier(ollama)
	} else {
		slog.Warn("No secondary endpoint configured, secondary classification uses rules")
	}

	ensemble := amount.NewEnsemble(amount.EnsembleConfig{
		Primary:   primary,
		Secondary: secondary,
		Timeout:   *backendTimeout,
	})
	pipeline := amount.NewPipeline(scanning.NewTesseract(*tessdata, *ocrLang), ensemble, *ocrTimeout)

	// History is optional; the pipeline itself keeps no state
	var (
		db    extraction.DB
		store extraction.Storage
	)
	if *history {
		slog.Info("Initializing history database...", "path", *dbPath)
		boltDB, err := extraction.NewBoltDB(*dbPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
		defer boltDB.Close()
		db = boltDB

		slog.Info("Initializing storage...", "path", *storagePath)
		store, err = extraction.NewLocalStorage(*storagePath)
		if err != nil {
			slog.Error("Failed to initialize storage", "error", err)
			os.Exit(1)
		}
	}

	service := extraction.NewService(pipeline, db, store)
	server := extraction.NewServer(service, extraction.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	})

	addr := fmt.Sprintf(":%d", *port)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	primaryName, secondaryName := service.Backends()
	slog.Info("Server started",
		"address", fmt.Sprintf("http://localhost%s", addr),
		"version", version,
		"primary", primaryName,
		"secondary", secondaryName,
		"history", *history,
	)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown error", "error", err)
	}
}
