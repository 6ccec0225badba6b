// Package drive reads and writes the family's collection documents on
// S3-compatible storage. The drive is the remote source of truth; every
// document is a JSON file named inside the family's folder.
//
// Access is opportunistic: all failures come back as errors the caller
// is expected to catch and convert into an RPC fallback, never a crash.
package drive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/mknutsen/chorequest/internal/errs"
	"github.com/mknutsen/chorequest/internal/model"
)

// s3API is the subset of the S3 client the drive uses, as an interface
// for testability.
type s3API interface {
	ListObjectsV2(ctx context.Context, input *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Config holds storage endpoint configuration. Credentials are not part
// of the config: they are scoped per session and passed per call.
type Config struct {
	Endpoint string
	Bucket   string
	Region   string
}

// Client is the remote storage client for the family drive.
type Client struct {
	cfg    Config
	logger *slog.Logger

	// newAPI builds an S3 client for the given scoped credentials.
	// Replaced in tests.
	newAPI func(model.DriveCredentials) s3API
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	c := &Client{cfg: cfg, logger: logger}
	c.newAPI = func(creds model.DriveCredentials) s3API {
		opts := s3.Options{
			Region:       cfg.Region,
			Credentials:  credentials.NewStaticCredentialsProvider(creds.AccessKeyID, creds.SecretAccessKey, creds.SessionToken),
			UsePathStyle: true,
		}
		if cfg.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		return s3.New(opts)
	}
	return c
}

// FindDocument looks up a document by name inside a folder and returns
// its key. Returns ("", nil) when the document does not exist yet.
func (c *Client) FindDocument(ctx context.Context, creds model.DriveCredentials, folder, name string) (string, error) {
	key := documentKey(folder, name)
	api := c.newAPI(creds)

	out, err := api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(c.cfg.Bucket),
		Prefix:  aws.String(key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return "", fmt.Errorf("find document %s: %w", name, err)
	}

	for _, obj := range out.Contents {
		if aws.ToString(obj.Key) == key {
			return key, nil
		}
	}
	return "", nil
}

// ReadDocument fetches a document's content by key. A missing key maps
// to errs.ErrNotFound so callers can treat it as an empty collection.
func (c *Client) ReadDocument(ctx context.Context, creds model.DriveCredentials, key string) ([]byte, error) {
	api := c.newAPI(creds)

	out, err := api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, errs.ErrNotFound
		}
		return nil, fmt.Errorf("read document %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read document body %s: %w", key, err)
	}
	return data, nil
}

// ReadNamed fetches a document by folder and name in one step. A
// document that does not exist yet yields errs.ErrNotFound.
func (c *Client) ReadNamed(ctx context.Context, creds model.DriveCredentials, folder, name string) ([]byte, error) {
	key, err := c.FindDocument(ctx, creds, folder, name)
	if err != nil {
		return nil, err
	}
	if key == "" {
		return nil, errs.ErrNotFound
	}
	return c.ReadDocument(ctx, creds, key)
}

// WriteDocument stores content under folder/name, replacing any previous
// version of the document.
func (c *Client) WriteDocument(ctx context.Context, creds model.DriveCredentials, folder, name string, content []byte) error {
	key := documentKey(folder, name)
	api := c.newAPI(creds)

	_, err := api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(content),
		ContentLength: aws.Int64(int64(len(content))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("write document %s: %w", key, err)
	}
	return nil
}

func documentKey(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}
