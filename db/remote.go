package db

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Config holds the credentials used for s3:// dump locations. Empty
// fields fall back to the AWS default credential chain.
type S3Config struct {
	AccessKey string
	SecretKey string
	Region    string
	Endpoint  string // S3-compatible endpoint, addressed path-style
}

type locationKind int

const (
	locationFile locationKind = iota
	locationHTTP
	locationS3
)

// location is a parsed dump URL: a local path (bare or file://), an
// http(s) URL, or an s3://bucket/key object.
type location struct {
	kind   locationKind
	path   string // local path, or the full URL for http(s)
	bucket string
	key    string
}

func parseLocation(raw string) (location, error) {
	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return location{kind: locationFile, path: raw}, nil
	}

	switch strings.ToLower(scheme) {
	case "file":
		if rest == "" {
			return location{}, fmt.Errorf("empty file URL: %s", raw)
		}
		return location{kind: locationFile, path: rest}, nil
	case "http", "https":
		return location{kind: locationHTTP, path: raw}, nil
	case "s3":
		u, err := url.Parse("s3://" + rest)
		if err != nil {
			return location{}, fmt.Errorf("invalid S3 URL %s: %w", raw, err)
		}
		key := strings.TrimPrefix(u.Path, "/")
		if u.Host == "" || key == "" {
			return location{}, fmt.Errorf("S3 URL needs a bucket and a key: %s", raw)
		}
		return location{kind: locationS3, bucket: u.Host, key: key}, nil
	default:
		return location{}, fmt.Errorf("unsupported URL scheme %q", scheme)
	}
}

// dumpSink receives an encoded dump. Nothing becomes visible at the
// destination until Commit; Abort discards what was written.
type dumpSink interface {
	io.Writer
	Commit() error
	Abort()
}

func (l location) open(ctx context.Context, cfg S3Config) (io.ReadCloser, error) {
	switch l.kind {
	case locationHTTP:
		return fetchHTTP(ctx, l.path)
	case locationS3:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		out, err := client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(l.bucket),
			Key:    aws.String(l.key),
		})
		if err != nil {
			return nil, fmt.Errorf("get s3://%s/%s: %w", l.bucket, l.key, err)
		}
		return out.Body, nil
	default:
		return os.Open(l.path)
	}
}

func (l location) create(ctx context.Context, cfg S3Config) (dumpSink, error) {
	switch l.kind {
	case locationHTTP:
		return nil, fmt.Errorf("http locations are read-only")
	case locationS3:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return &objectSink{ctx: ctx, client: client, bucket: l.bucket, key: l.key}, nil
	default:
		return newFileSink(l.path)
	}
}

// fileSink writes next to the target and renames into place on Commit, so
// a failed dump never leaves a truncated file behind.
type fileSink struct {
	*os.File
	target string
}

func newFileSink(target string) (*fileSink, error) {
	f, err := os.CreateTemp(filepath.Dir(target), "."+filepath.Base(target)+".*")
	if err != nil {
		return nil, err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, err
	}
	return &fileSink{File: f, target: target}, nil
}

func (s *fileSink) Commit() error {
	if err := s.File.Sync(); err != nil {
		s.Abort()
		return err
	}
	if err := s.File.Close(); err != nil {
		os.Remove(s.File.Name())
		return err
	}
	return os.Rename(s.File.Name(), s.target)
}

func (s *fileSink) Abort() {
	s.File.Close()
	os.Remove(s.File.Name())
}

// objectSink buffers the dump in memory and uploads it in one PutObject.
type objectSink struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
}

func (s *objectSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *objectSink) Commit() error {
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(s.buf.Bytes()),
		ContentLength: aws.Int64(int64(s.buf.Len())),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

func (s *objectSink) Abort() {
	s.buf.Reset()
}

var httpClient = &http.Client{Timeout: 5 * time.Minute}

func fetchHTTP(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: %s", rawURL, resp.Status)
	}
	return resp.Body, nil
}

func newS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	var loadOpts []func(*config.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}
