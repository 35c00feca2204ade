package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/model"
)

// DocumentSource yields documents for ingestion
type DocumentSource interface {
	Documents(ctx context.Context) ([]model.Document, error)
}

// S3API is the part of the S3 client used to read documents
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

var documentExtensions = map[string]bool{".txt": true, ".md": true, ".json": true}

// decodeDocuments reads a JSON list of documents or a single document from .json
// files, and treats anything else as one plain-text article titled by its name
func decodeDocuments(name string, data []byte) ([]model.Document, error) {
	ext := strings.ToLower(path.Ext(name))
	if ext == ".json" {
		var docs []model.Document
		if err := json.Unmarshal(data, &docs); err == nil {
			return docs, nil
		}
		var doc model.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, apperrors.NewMalformedDataError(name, err)
		}
		return []model.Document{doc}, nil
	}

	content := strings.TrimSpace(string(data))
	if content == "" {
		return nil, nil
	}
	title := strings.TrimSuffix(path.Base(name), path.Ext(name))
	return []model.Document{{
		Content: content,
		Metadata: model.Metadata{
			model.MetaType:  DocTypeArticle,
			model.MetaTitle: title,
		},
	}}, nil
}

// FileSource reads documents from a file or a directory tree
type FileSource struct {
	Path   string
	Logger *zap.Logger
}

// Documents implements DocumentSource
func (s FileSource) Documents(ctx context.Context) ([]model.Document, error) {
	info, err := os.Stat(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open document path: %w", err)
	}
	if !info.IsDir() {
		data, err := os.ReadFile(s.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read document: %w", err)
		}
		return decodeDocuments(s.Path, data)
	}

	var docs []model.Document
	err = filepath.WalkDir(s.Path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !documentExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}
		parsed, err := decodeDocuments(p, data)
		if err != nil {
			s.logger().Warn("Skipping unreadable document file", zap.String("path", p), zap.Error(err))
			return nil
		}
		docs = append(docs, parsed...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return docs, nil
}

func (s FileSource) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

// S3Source reads every document object under a bucket prefix
type S3Source struct {
	Client S3API
	Bucket string
	Prefix string
	Logger *zap.Logger
}

// ParseS3URI splits s3://bucket/prefix
func ParseS3URI(uri string) (bucket, prefix string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok {
		return "", "", apperrors.NewBadRequestError(fmt.Sprintf("not an s3 uri: %s", uri))
	}
	bucket, prefix, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", apperrors.NewBadRequestError(fmt.Sprintf("missing bucket in %s", uri))
	}
	return bucket, prefix, nil
}

// Documents implements DocumentSource
func (s S3Source) Documents(ctx context.Context) ([]model.Document, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	var docs []model.Document
	pager := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(s.Prefix),
	})
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, apperrors.NewExternalServiceError("s3", err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if !documentExtensions[strings.ToLower(path.Ext(key))] {
				continue
			}
			data, err := s.read(ctx, key)
			if err != nil {
				log.Warn("Skipping S3 object", zap.String("key", key), zap.Error(err))
				continue
			}
			parsed, err := decodeDocuments(key, data)
			if err != nil {
				log.Warn("Skipping unreadable S3 document", zap.String("key", key), zap.Error(err))
				continue
			}
			docs = append(docs, parsed...)
		}
	}
	log.Info("Read documents from S3",
		zap.String("bucket", s.Bucket),
		zap.String("prefix", s.Prefix),
		zap.Int("documents", len(docs)))
	return docs, nil
}

func (s S3Source) read(ctx context.Context, key string) ([]byte, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()
	return io.ReadAll(out.Body)
}
