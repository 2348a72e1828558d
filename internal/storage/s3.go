package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/rs/zerolog/log"
)

// s3API is the subset of *s3.Client used by S3Store.
type s3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// S3Store maps directories to key prefixes in one bucket. Directories are
// marked with a zero-byte "<dir>/" object.
type S3Store struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Store returns a store rooted at prefix inside bucket. prefix may be empty.
func NewS3Store(client *s3.Client, bucket, prefix string) *S3Store {
	return newS3Store(client, bucket, prefix)
}

func newS3Store(client s3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

func (s *S3Store) dirKey(dir string) string {
	return path.Join(s.prefix, dir) + "/"
}

func (s *S3Store) fileKey(dir, name string) string {
	return path.Join(s.prefix, dir, name)
}

// DirectoryExists implements Store.
func (s *S3Store) DirectoryExists(ctx context.Context, dir string) (bool, error) {
	out, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  &s.bucket,
		Prefix:  aws.String(s.dirKey(dir)),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, fmt.Errorf("S3 ListObjectsV2: %w", err)
	}
	return aws.ToInt32(out.KeyCount) > 0 || len(out.Contents) > 0, nil
}

// CreateDirectory implements Store.
func (s *S3Store) CreateDirectory(ctx context.Context, dir string) error {
	key := s.dirKey(dir)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(nil),
	})
	if err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Msg("Created S3 directory marker")
	return nil
}

// AppendTextFile implements Store. S3 has no append, so the object is read,
// extended and rewritten; concurrent writers to the same file can lose data.
func (s *S3Store) AppendTextFile(ctx context.Context, dir, name, text string) error {
	existing, err := s.ReadFile(ctx, dir, name)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}
	return s.UploadFile(ctx, dir, name, append(existing, text...), "text/plain; charset=utf-8")
}

// UploadFile implements Store.
func (s *S3Store) UploadFile(ctx context.Context, dir, name string, data []byte, contentType string) error {
	key := s.fileKey(dir, name)
	input := &s3.PutObjectInput{
		Bucket: &s.bucket,
		Key:    &key,
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = &contentType
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return fmt.Errorf("S3 PutObject %s: %w", key, err)
	}
	log.Debug().Str("bucket", s.bucket).Str("key", key).Int("bytes", len(data)).Msg("Uploaded to S3")
	return nil
}

// ReadFile implements Store.
func (s *S3Store) ReadFile(ctx context.Context, dir, name string) ([]byte, error) {
	key := s.fileKey(dir, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: &s.bucket, Key: &key})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("S3 GetObject %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read S3 object %s: %w", key, err)
	}
	return data, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NotFound":
			return true
		}
	}
	return false
}
