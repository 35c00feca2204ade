// Command ingest loads foods from CSV and nutrition documents from disk or S3
// into the knowledge base.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/config"
	"github.com/pageza/mealsense/backend/internal/container"
	"github.com/pageza/mealsense/backend/internal/logger"
	"github.com/pageza/mealsense/backend/internal/service"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "ingest: %v\n", err)
		os.Exit(1)
	}
}

type summary struct {
	FoodsImported    int
	FoodsSkipped     int
	NutritionIndexed int
	Documents        int
	DocumentsIndexed int
	IndexedChunks    int
}

func run(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a config file")
	foodsPath := fs.String("foods", "", "CSV file of foods to import")
	docsPath := fs.String("docs", "", "document file, directory or s3://bucket/prefix")
	chunkSize := fs.Int("chunk-size", 0, "override rag.chunk_size for this run")
	chunkOverlap := fs.Int("chunk-overlap", -1, "override rag.chunk_overlap for this run")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *foodsPath == "" && *docsPath == "" {
		return fmt.Errorf("nothing to do: pass -foods and/or -docs")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	log, err := logger.New(logger.Config{Level: cfg.Log.Level, Format: cfg.Log.Format, Development: cfg.IsDevelopment()})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	c, err := container.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer c.Close()

	var sum summary
	if *foodsPath != "" {
		if err := importFoods(ctx, c, *foodsPath, &sum); err != nil {
			return err
		}
	}

	if *docsPath != "" {
		var opts []service.SplitOption
		if *chunkSize > 0 {
			opts = append(opts, service.WithChunkSize(*chunkSize))
		}
		if *chunkOverlap >= 0 {
			opts = append(opts, service.WithChunkOverlap(*chunkOverlap))
		}
		source, err := documentSource(ctx, cfg, *docsPath, log)
		if err != nil {
			return err
		}
		docs, err := source.Documents(ctx)
		if err != nil {
			return fmt.Errorf("failed to read documents: %w", err)
		}
		sum.Documents = len(docs)
		sum.DocumentsIndexed = c.Documents.AddDocuments(ctx, docs, opts...)
	}
	sum.IndexedChunks = c.Documents.Len()

	fmt.Fprintf(out, "foods imported: %d (skipped %d)\n", sum.FoodsImported, sum.FoodsSkipped)
	fmt.Fprintf(out, "nutrition documents indexed: %d\n", sum.NutritionIndexed)
	fmt.Fprintf(out, "documents indexed: %d of %d\n", sum.DocumentsIndexed, sum.Documents)
	fmt.Fprintf(out, "chunks in index: %d\n", sum.IndexedChunks)
	return nil
}

// importFoods upserts the CSV rows and indexes one nutrition document per imported food
func importFoods(ctx context.Context, c *container.Container, path string, sum *summary) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open foods file: %w", err)
	}
	defer f.Close()

	res, err := c.Foods.ImportCSV(ctx, f)
	if err != nil {
		return err
	}
	sum.FoodsImported = res.Imported
	sum.FoodsSkipped = res.Skipped
	for _, food := range res.Foods {
		if c.Documents.AddNutritionDocument(ctx, food) {
			sum.NutritionIndexed++
		}
	}
	return nil
}

func documentSource(ctx context.Context, cfg *config.Config, path string, log *zap.Logger) (service.DocumentSource, error) {
	if !strings.HasPrefix(path, "s3://") {
		return service.FileSource{Path: path, Logger: log}, nil
	}
	bucket, prefix, err := service.ParseS3URI(path)
	if err != nil {
		return nil, err
	}
	storage := cfg.Storage
	storage.Bucket = bucket
	s3cfg, err := config.NewS3Config(ctx, storage)
	if err != nil {
		return nil, err
	}
	return service.S3Source{Client: s3cfg.Client, Bucket: s3cfg.BucketName, Prefix: prefix, Logger: log}, nil
}
