package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/jwhan/csvlingo/internal/csvio"
	"github.com/jwhan/csvlingo/internal/domain"
	"github.com/jwhan/csvlingo/internal/provider"
	"github.com/jwhan/csvlingo/internal/translate"
)

const requestDelay = 500 * time.Millisecond

func main() {
	var (
		inPath      string
		outPath     string
		sourceLang  string
		targetLang  string
		columnsCSV  string
		batchSize   int
		concurrency int
	)

	flag.StringVar(&inPath, "in", "", "input CSV path")
	flag.StringVar(&outPath, "out", "", "output CSV path (default: <in>.translated.csv)")
	flag.StringVar(&sourceLang, "source", "", "source language (e.g. en, auto)")
	flag.StringVar(&targetLang, "target", "", "target language (e.g. ko)")
	flag.StringVar(&columnsCSV, "columns", "", "comma-separated column names or zero-based indexes to translate")
	flag.IntVar(&batchSize, "batch-size", 25, "rows per batch")
	flag.IntVar(&concurrency, "concurrency", 4, "concurrent cells per batch")
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	if inPath == "" || sourceLang == "" || targetLang == "" || columnsCSV == "" {
		flag.Usage()
		os.Exit(2)
	}
	if outPath == "" {
		outPath = strings.TrimSuffix(inPath, ".csv") + ".translated.csv"
	}

	in, err := os.Open(inPath)
	if err != nil {
		logger.Fatal("Failed to open input", zap.Error(err))
	}
	table, err := csvio.Parse(in)
	in.Close()
	if err != nil {
		logger.Fatal("Failed to parse CSV", zap.Error(err))
	}

	mappings, err := resolveColumns(table.Headers, columnsCSV, targetLang)
	if err != nil {
		logger.Fatal("Bad -columns value", zap.Error(err))
	}

	cfg := &domain.TranslationConfig{
		SourceLanguage: sourceLang,
		ColumnMappings: mappings,
		BatchSize:      batchSize,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := provider.NewManager(ctx, provider.ManagerConfig{
		GeminiAPIKey:   strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiModel:    os.Getenv("GEMINI_MODEL"),
		OpenAIAPIKey:   strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
		OpenAIModel:    os.Getenv("OPENAI_MODEL"),
		EnableFallback: true,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to initialize translation providers", zap.Error(err))
	}

	cellTranslator := translate.NewCellTranslator(providers, nil, translate.CellTranslatorOptions{}, logger)
	executor := translate.NewBatchExecutor(cellTranslator, concurrency, logger)
	orchestrator := translate.NewOrchestrator(executor, translate.Options{
		InterBatchDelay: requestDelay,
	}, logger)

	var final *translate.Event
	for e := range orchestrator.Run(ctx, table, cfg) {
		switch e.Type {
		case translate.EventProgress:
			fmt.Printf("[%d/%d] %s\n", e.ProcessedRows, e.TotalRows, e.Message)
		case translate.EventError:
			logger.Fatal("Run failed", zap.String("reason", e.Message))
		case translate.EventComplete:
			final = &e
		}
	}
	if final == nil || final.Result == nil {
		logger.Fatal("Run produced no result")
	}

	out, err := os.Create(outPath)
	if err != nil {
		logger.Fatal("Failed to create output", zap.Error(err))
	}
	defer out.Close()

	if err := csvio.Write(out, final.Result); err != nil {
		logger.Fatal("Failed to write output CSV", zap.Error(err))
	}

	fmt.Printf("Done: %d rows (%d kept original) -> %s\n",
		final.TotalRows, final.FailedRows, outPath)
}

// resolveColumns accepts header names or zero-based indexes.
func resolveColumns(headers []string, columnsCSV, targetLang string) ([]domain.ColumnMapping, error) {
	index := make(map[string]int, len(headers))
	for i, h := range headers {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	var mappings []domain.ColumnMapping
	for _, raw := range strings.Split(columnsCSV, ",") {
		token := strings.TrimSpace(raw)
		if token == "" {
			continue
		}

		col := -1
		if n, err := strconv.Atoi(token); err == nil {
			col = n
		} else if i, ok := index[strings.ToLower(token)]; ok {
			col = i
		}
		if col < 0 || col >= len(headers) {
			return nil, fmt.Errorf("unknown column %q", token)
		}

		mappings = append(mappings, domain.ColumnMapping{
			ColumnIndex:     col,
			ColumnName:      headers[col],
			ShouldTranslate: true,
			TargetLanguage:  targetLang,
		})
	}

	if len(mappings) == 0 {
		return nil, fmt.Errorf("no columns selected")
	}
	return mappings, nil
}
