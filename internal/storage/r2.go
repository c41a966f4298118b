package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/xiaoshiliu/mediaservice/internal/config"
)

// ObjectPutter is the part of *minio.Client the R2 backend needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// bucketChecker is implemented by clients that can report bucket reachability.
type bucketChecker interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
}

// R2Storage uploads objects to Cloudflare R2 through its S3-compatible API.
// It works with any S3-compatible provider given an explicit endpoint.
type R2Storage struct {
	cfg      config.R2Config
	endpoint string
	client   ObjectPutter
	now      func() time.Time
}

// NewR2 creates an R2 backend. When cfg is incomplete no client is built and
// every upload fails with ErrConfiguration.
func NewR2(cfg config.R2Config) (*R2Storage, error) {
	s := newR2(cfg, nil)
	if !s.configured() {
		return s, nil
	}

	u, err := url.Parse(s.endpoint)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("parse r2 endpoint %q: invalid URL", s.endpoint)
	}
	// The S3 client addresses the bucket from the host root, so a path would
	// make it disagree with PublicURL.
	if u.Path != "" || u.RawQuery != "" {
		return nil, fmt.Errorf("parse r2 endpoint %q: must not contain a path or query", s.endpoint)
	}
	client, err := minio.New(u.Host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       u.Scheme != "http",
		Region:       s.cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("create r2 client: %w", err)
	}
	s.client = client
	return s, nil
}

// NewR2WithClient creates an R2 backend around an existing client.
func NewR2WithClient(cfg config.R2Config, client ObjectPutter) *R2Storage {
	return newR2(cfg, client)
}

func newR2(cfg config.R2Config, client ObjectPutter) *R2Storage {
	if cfg.Region == "" {
		cfg.Region = "auto"
	}
	endpoint := cfg.Endpoint
	if endpoint == "" && cfg.AccountID != "" {
		endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
	}
	return &R2Storage{
		cfg:      cfg,
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   client,
		now:      time.Now,
	}
}

func (s *R2Storage) configured() bool {
	return s.cfg.AccountID != "" && s.cfg.AccessKeyID != "" &&
		s.cfg.SecretAccessKey != "" && s.cfg.BucketName != ""
}

func (s *R2Storage) Upload(ctx context.Context, req Request) Result {
	if !s.configured() || s.client == nil {
		slog.Error("r2 not configured")
		return Failed(fmt.Errorf("%w: R2 account, access key, secret key and bucket are required", ErrConfiguration))
	}

	key := ObjectKey(req, s.now())
	slog.Info("uploading to r2", "key", key, "size", len(req.Content))

	_, err := s.client.PutObject(ctx, s.cfg.BucketName, key, bytes.NewReader(req.Content), int64(len(req.Content)), minio.PutObjectOptions{
		ContentType: req.MimeType,
	})
	if err != nil {
		slog.Error("r2 upload failed", "key", key, "error", err)
		return Failed(fmt.Errorf("%w: put object %q: %w", ErrTransport, key, err))
	}

	u := s.PublicURL(key)
	slog.Info("r2 upload succeeded", "url", u)
	return Succeeded(u)
}

// PublicURL returns the browser-accessible URL for key: the configured public
// URL prefix when set, else the path-style endpoint URL.
func (s *R2Storage) PublicURL(key string) string {
	if s.cfg.PublicURL != "" {
		return strings.TrimRight(s.cfg.PublicURL, "/") + "/" + key
	}
	return s.endpoint + "/" + s.cfg.BucketName + "/" + key
}

// Ping checks that the bucket is reachable.
func (s *R2Storage) Ping(ctx context.Context) error {
	if !s.configured() {
		return fmt.Errorf("%w: r2", ErrConfiguration)
	}
	bc, ok := s.client.(bucketChecker)
	if !ok {
		return nil
	}
	exists, err := bc.BucketExists(ctx, s.cfg.BucketName)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.cfg.BucketName, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.cfg.BucketName)
	}
	return nil
}

// ObjectKey builds "{category}s/{unixMillis}_{contentHash}{ext}".
func ObjectKey(req Request, now time.Time) string {
	return req.Category.String() + "s/" + UniqueName(req.Content, req.Filename, now)
}
