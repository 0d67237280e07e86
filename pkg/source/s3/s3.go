// Package s3 reads documents from an S3 compatible bucket.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/polisight/backend/pkg/source"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Source fetches documents stored as objects under a key prefix. A document
// id is resolved to the first existing object <prefix><id><ext> for the
// configured extensions.
type Source struct {
	bucket     string
	prefix     string
	extensions []string
	client     *s3.Client
}

// NewSourceParams defines the configuration parameters for creating a new
// Source.
//
// Endpoint allows overriding the S3 endpoint (useful for S3-compatible
// storage like MinIO). Extensions defaults to .json, .txt, .html and .docx.
type NewSourceParams struct {
	Bucket     string
	Prefix     string
	Extensions []string
	Endpoint   string
	Region     string
	AccessKey  string
	SecretKey  string
}

// NewSource creates a Source with static credentials.
//
// Example:
//
//	src, err := s3.NewSource(ctx, s3.NewSourceParams{
//		Bucket:    "documents",
//		Prefix:    "ingest/",
//		Endpoint:  "http://localhost:9000",
//		Region:    "us-east-1",
//		AccessKey: os.Getenv("AWS_ACCESS_KEY"),
//		SecretKey: os.Getenv("AWS_SECRET_KEY"),
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	doc, err := src.Fetch(ctx, "doc1")
func NewSource(ctx context.Context, params NewSourceParams) (*Source, error) {
	cfg, err := config.LoadDefaultConfig(
		ctx,
		config.WithRegion(params.Region),
		config.WithBaseEndpoint(params.Endpoint),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			params.AccessKey,
			params.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})
	return NewSourceWithClient(client, params), nil
}

// NewSourceWithClient creates a Source using an existing s3.Client.
func NewSourceWithClient(client *s3.Client, params NewSourceParams) *Source {
	extensions := params.Extensions
	if len(extensions) == 0 {
		extensions = []string{".json", ".txt", ".html", ".docx"}
	}
	return &Source{
		bucket:     params.Bucket,
		prefix:     params.Prefix,
		extensions: extensions,
		client:     client,
	}
}

func (s *Source) Fetch(ctx context.Context, id string) (source.Document, error) {
	if strings.Contains(id, "..") {
		return source.Document{}, fmt.Errorf("invalid document id %q", id)
	}

	for _, ext := range s.extensions {
		key := s.prefix + id + ext
		content, err := s.get(ctx, key)
		if errors.Is(err, source.ErrNotFound) {
			continue
		}
		if err != nil {
			return source.Document{}, err
		}

		doc, err := source.Decode(id, path.Base(key), content)
		if err != nil {
			return source.Document{}, err
		}
		if doc.SourceType == "" || doc.SourceType == "text" {
			doc.SourceType = "s3"
		}
		return doc, nil
	}
	return source.Document{}, fmt.Errorf("%w: %s", source.ErrNotFound, id)
}

func (s *Source) get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, source.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get %s from S3: %w", key, err)
	}
	defer out.Body.Close()

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, out.Body); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}
	return buf.Bytes(), nil
}
