package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pageza/mealsense/backend/internal/apperrors"
	"github.com/pageza/mealsense/backend/internal/model"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestFileSource_Documents(t *testing.T) {
	ctx := context.Background()

	t.Run("should read a directory tree", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "guide.txt"), "Eat more vegetables.\n")
		writeFile(t, filepath.Join(dir, "nested", "notes.md"), "# Fiber\nWhole grains help.")
		writeFile(t, filepath.Join(dir, "nested", "recipes.json"),
			`[{"content":"Boil the noodles.","metadata":{"type":"recipe","title":"Japchae"}},
			  {"content":"Steam the rice.","metadata":{"type":"recipe","title":"Rice"}}]`)
		writeFile(t, filepath.Join(dir, "image.png"), "binary")
		writeFile(t, filepath.Join(dir, "empty.txt"), "   ")

		docs, err := FileSource{Path: dir}.Documents(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 4)

		titles := make([]string, 0, len(docs))
		for _, d := range docs {
			titles = append(titles, d.Metadata[model.MetaTitle])
		}
		assert.ElementsMatch(t, []string{"guide", "notes", "Japchae", "Rice"}, titles)
	})

	t.Run("should read a single json document", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "one.json")
		writeFile(t, path, `{"content":"Kimchi is fermented.","metadata":{"type":"article"}}`)

		docs, err := FileSource{Path: path}.Documents(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Kimchi is fermented.", docs[0].Content)
	})

	t.Run("should skip malformed files in a directory", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, filepath.Join(dir, "bad.json"), `{"content":`)
		writeFile(t, filepath.Join(dir, "good.txt"), "Drink water.")

		docs, err := FileSource{Path: dir}.Documents(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "Drink water.", docs[0].Content)
	})

	t.Run("should reject a malformed single file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.json")
		writeFile(t, path, `not json`)

		_, err := FileSource{Path: path}.Documents(ctx)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeMalformedData))
	})

	t.Run("should fail on a missing path", func(t *testing.T) {
		_, err := FileSource{Path: filepath.Join(t.TempDir(), "missing")}.Documents(ctx)
		assert.Error(t, err)
	})
}

func TestParseS3URI(t *testing.T) {
	cases := []struct {
		uri    string
		bucket string
		prefix string
		ok     bool
	}{
		{"s3://docs/nutrition/", "docs", "nutrition/", true},
		{"s3://docs", "docs", "", true},
		{"s3:///prefix", "", "", false},
		{"/local/path", "", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.uri, func(t *testing.T) {
			bucket, prefix, err := ParseS3URI(tc.uri)
			if !tc.ok {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeBadRequest))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.bucket, bucket)
			assert.Equal(t, tc.prefix, prefix)
		})
	}
}

// fakeS3 serves objects from memory, one key per listing page
type fakeS3 struct {
	objects map[string]string
	keys    []string
	listErr error
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range f.keys {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	var matched []string
	for _, k := range f.keys[start:] {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			matched = append(matched, k)
		}
	}
	out := &s3.ListObjectsV2Output{}
	if len(matched) == 0 {
		return out, nil
	}
	out.Contents = []types.Object{{Key: aws.String(matched[0])}}
	if len(matched) > 1 {
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(matched[1])
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(body))}, nil
}

func TestS3Source_Documents(t *testing.T) {
	ctx := context.Background()

	t.Run("should page through objects under the prefix", func(t *testing.T) {
		client := &fakeS3{
			keys: []string{"docs/a.txt", "docs/b.json", "docs/c.png", "docs/gone.md", "other/x.txt"},
			objects: map[string]string{
				"docs/a.txt":  "Sodium guidance.",
				"docs/b.json": `[{"content":"Protein guidance.","metadata":{"title":"protein"}}]`,
				"docs/c.png":  "binary",
				"other/x.txt": "Not included.",
			},
		}

		docs, err := S3Source{Client: client, Bucket: "kb", Prefix: "docs/"}.Documents(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "Sodium guidance.", docs[0].Content)
		assert.Equal(t, "a", docs[0].Metadata[model.MetaTitle])
		assert.Equal(t, "Protein guidance.", docs[1].Content)
	})

	t.Run("should report listing failures", func(t *testing.T) {
		client := &fakeS3{listErr: errors.New("access denied")}
		_, err := S3Source{Client: client, Bucket: "kb"}.Documents(ctx)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeExternalServiceError))
	})
}
