// Package storage wraps an S3-compatible object store (Cloudflare R2) behind
// the asset-store contract used by the generation pipeline: put bytes, a
// remote URL or a data URI into a folder and get back a public URL.
package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/gemkit/server/internal/shared/config"
	apperrors "github.com/gemkit/server/internal/shared/errors"
)

// contentTypeExtensions maps content types to object key extensions.
// Unknown content types map to an empty extension.
var contentTypeExtensions = map[string]string{
	"image/png":     ".png",
	"image/jpeg":    ".jpg",
	"image/webp":    ".webp",
	"image/gif":     ".gif",
	"image/svg+xml": ".svg",
	"image/avif":    ".avif",
}

// ExtensionForContentType returns the object key extension for a content
// type, or an empty string when the content type is unrecognized.
func ExtensionForContentType(contentType string) string {
	return contentTypeExtensions[strings.ToLower(strings.TrimSpace(contentType))]
}

// Client wraps the S3 client for asset storage operations.
type Client struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	httpClient *http.Client
	bucket     string
	publicBase string
}

// New creates a new storage client. All configuration fields are required.
func New(cfg *config.StorageConfig) (*Client, error) {
	if cfg.Endpoint == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" ||
		cfg.Bucket == "" || cfg.PublicBaseURL == "" {
		return nil, apperrors.Config("incomplete storage configuration")
	}

	creds := credentials.NewStaticCredentialsProvider(
		cfg.AccessKeyID,
		cfg.SecretAccessKey,
		"",
	)

	// R2 uses "auto" but the SDK needs a non-empty region
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithCredentialsProvider(creds),
		awsconfig.WithRegion(region),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true // R2 requires path-style URLs
	})

	return &Client{
		client:     client,
		presigner:  s3.NewPresignClient(client),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(cfg.PublicBaseURL, "/"),
	}, nil
}

// PublicURL returns the public URL for an object key.
func (c *Client) PublicURL(key string) string {
	return c.publicBase + "/" + key
}

// IsPublicURL reports whether s already points at this store's public prefix.
func (c *Client) IsPublicURL(s string) bool {
	return strings.HasPrefix(s, c.publicBase+"/")
}

// ObjectKey builds a fresh object key: {folder}/{unix-ms}-{random}{ext}.
func ObjectKey(folder, contentType string) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("%s/%d-%s%s",
		strings.Trim(folder, "/"),
		time.Now().UnixMilli(),
		hex.EncodeToString(suffix),
		ExtensionForContentType(contentType),
	)
}

// PutBytes uploads raw bytes into folder and returns the public URL.
func (c *Client) PutBytes(ctx context.Context, data []byte, folder, contentType string) (string, error) {
	return c.putObject(ctx, bytes.NewReader(data), int64(len(data)), folder, contentType)
}

// PutStream uploads a stream of known size into folder and returns the
// public URL.
func (c *Client) PutStream(ctx context.Context, r io.Reader, size int64, folder, contentType string) (string, error) {
	return c.putObject(ctx, r, size, folder, contentType)
}

// PutURL resolves a URL-ish source and uploads it into folder:
//   - a URL under this store's public prefix is returned unchanged,
//   - a data: URI is decoded and uploaded,
//   - any other http(s) URL is fetched first.
func (c *Client) PutURL(ctx context.Context, src, folder, contentType string) (string, error) {
	switch {
	case c.IsPublicURL(src):
		// Already ours, uploading again would only duplicate the object.
		return src, nil

	case strings.HasPrefix(src, "data:"):
		data, dataType, err := DecodeDataURI(src)
		if err != nil {
			return "", err
		}
		if contentType == "" {
			contentType = dataType
		}
		return c.PutBytes(ctx, data, folder, contentType)

	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		data, fetchedType, err := c.fetch(ctx, src)
		if err != nil {
			return "", err
		}
		if contentType == "" {
			contentType = fetchedType
		}
		return c.PutBytes(ctx, data, folder, contentType)

	default:
		return "", apperrors.Validation(fmt.Sprintf("unsupported source %q", truncate(src, 64)))
	}
}

// fetch downloads a remote image, failing on any non-2xx status.
func (c *Client) fetch(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", apperrors.Fetch("build fetch request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", apperrors.Fetch(fmt.Sprintf("fetch %s", url), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", apperrors.Fetch(fmt.Sprintf("fetch %s: status %d", url, resp.StatusCode), nil)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", apperrors.Fetch(fmt.Sprintf("read %s", url), err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// putObject performs the actual S3 put and returns the public URL.
// Failures propagate to the caller; there is no retry.
func (c *Client) putObject(ctx context.Context, body io.Reader, size int64, folder, contentType string) (string, error) {
	key := ObjectKey(folder, contentType)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return "", apperrors.Upload(fmt.Sprintf("put object %s", key), err)
	}

	return c.PublicURL(key), nil
}

// Delete removes an object by key.
func (c *Client) Delete(ctx context.Context, key string) error {
	input := &s3.DeleteObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	if _, err := c.client.DeleteObject(ctx, input); err != nil {
		return apperrors.Delete(fmt.Sprintf("delete object %s", key), err)
	}

	return nil
}

// PresignedURL represents a presigned URL response.
type PresignedURL struct {
	URL       string
	Method    string
	ExpiresAt time.Time
}

// PresignUpload generates a presigned URL for uploading an object directly.
func (c *Client) PresignUpload(ctx context.Context, key string, size int64, expiry time.Duration) (*PresignedURL, error) {
	input := &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		ContentLength: aws.Int64(size),
	}

	req, err := c.presigner.PresignPutObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

// PresignDownload generates a presigned URL for downloading an object.
func (c *Client) PresignDownload(ctx context.Context, key string, expiry time.Duration) (*PresignedURL, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}

	req, err := c.presigner.PresignGetObject(ctx, input, func(opts *s3.PresignOptions) {
		opts.Expires = expiry
	})
	if err != nil {
		return nil, fmt.Errorf("presign get: %w", err)
	}

	return &PresignedURL{
		URL:       req.URL,
		Method:    req.Method,
		ExpiresAt: time.Now().Add(expiry),
	}, nil
}

// DecodeDataURI decodes a base64 data: URI into its payload and content type.
func DecodeDataURI(uri string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return nil, "", apperrors.Validation("not a data URI")
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", apperrors.Validation("malformed data URI")
	}

	contentType, _, _ := strings.Cut(meta, ";")
	if !strings.Contains(meta, "base64") {
		return nil, "", apperrors.Validation("data URI is not base64 encoded")
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", apperrors.Validation("invalid base64 payload in data URI")
	}

	return data, contentType, nil
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
