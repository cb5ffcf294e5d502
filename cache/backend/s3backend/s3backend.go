// Package s3backend is a backend.Adapter that fetches attributes,
// byte ranges, and directory listings from an S3-compatible bucket
// using a minio-go/v7 *minio.Core client, treating the bucket as an
// authoritative backend and its "/"-delimited object keys as a
// directory tree.
package s3backend

import (
	"context"
	"fmt"
	"io"
	"log"
	"path"
	"strings"

	"github.com/akarasulu/cachefs/cache"
	"github.com/akarasulu/cachefs/cache/backend"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachefs_s3_backend_hits",
		Help: "The total number of successful S3 backend requests",
	})
	requestMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cachefs_s3_backend_misses",
		Help: "The total number of S3 backend requests answered NoSuchKey",
	})
)

// Config names an S3-compatible bucket to serve as an authoritative
// backend and the credentials used to reach it.
type Config struct {
	Endpoint        string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	DisableSSL      bool
	IAMRoleEndpoint string
}

// Adapter is a backend.Adapter backed by an S3-compatible bucket.
type Adapter struct {
	mcore  *minio.Core
	bucket string
	prefix string
	logger cache.Logger
}

// New constructs an Adapter from cfg. If AccessKeyID/SecretAccessKey
// are both set, static credentials are used; otherwise IAM credentials
// are assumed.
func New(cfg Config, logger cache.Logger) (*Adapter, error) {
	var mcore *minio.Core
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts := &minio.Options{
			Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
			Secure: !cfg.DisableSSL,
			Region: cfg.Region,
		}
		mcore, err = minio.NewCore(cfg.Endpoint, opts)
		if err != nil {
			return nil, fmt.Errorf("s3backend: new core: %w", err)
		}
	} else {
		opts := &minio.Options{
			Creds:  credentials.NewIAM(cfg.IAMRoleEndpoint),
			Region: cfg.Region,
			Secure: !cfg.DisableSSL,
		}
		mc, err := minio.New(cfg.Endpoint, opts)
		if err != nil {
			return nil, fmt.Errorf("s3backend: new client: %w", err)
		}
		mcore = &minio.Core{Client: mc}
	}

	if logger == nil {
		logger = log.Default()
	}

	return &Adapter{mcore: mcore, bucket: cfg.Bucket, prefix: cfg.Prefix, logger: logger}, nil
}

func (a *Adapter) objectKey(p string) string {
	key := strings.TrimPrefix(p, "/")
	if a.prefix == "" {
		return key
	}
	return path.Join(a.prefix, key)
}

func (a *Adapter) logResponse(method, key string, err error) {
	status := "OK"
	if err != nil {
		status = err.Error()
	}
	a.logger.Printf("S3 %s %s %s %s", method, a.bucket, key, status)
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Stat issues a StatObject request.
func (a *Adapter) Stat(ctx context.Context, p string) (backend.Stat, error) {
	key := a.objectKey(p)
	info, err := a.mcore.StatObject(ctx, a.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			requestMisses.Inc()
			a.logResponse("STAT", key, err)
			return backend.Stat{}, backend.ErrNotExist
		}
		a.logResponse("STAT", key, err)
		return backend.Stat{}, fmt.Errorf("s3backend: stat %s: %w", p, err)
	}
	requestHits.Inc()
	a.logResponse("STAT", key, nil)

	return backend.Stat{
		Size:  info.Size,
		Mtime: info.LastModified.Unix(),
		Ctime: info.LastModified.Unix(),
		Mode:  0644,
	}, nil
}

// ReadRange issues a ranged GetObject request covering
// [offset, offset+size).
func (a *Adapter) ReadRange(ctx context.Context, p string, offset, size int64) (io.ReadCloser, error) {
	key := a.objectKey(p)

	opts := minio.GetObjectOptions{}
	if err := opts.SetRange(offset, offset+size-1); err != nil {
		return nil, fmt.Errorf("s3backend: set range: %w", err)
	}

	object, _, _, err := a.mcore.GetObject(ctx, a.bucket, key, opts)
	if err != nil {
		if isNoSuchKey(err) {
			requestMisses.Inc()
			a.logResponse("DOWNLOAD", key, err)
			return nil, backend.ErrNotExist
		}
		a.logResponse("DOWNLOAD", key, err)
		return nil, fmt.Errorf("s3backend: read %s: %w", p, err)
	}
	requestHits.Inc()
	a.logResponse("DOWNLOAD", key, nil)
	return object, nil
}

// Readdir lists objects sharing p as a "/"-delimited prefix, using
// the same delimiter-based listing minio-go exposes for simulating
// directories in a flat object store.
func (a *Adapter) Readdir(ctx context.Context, p string) ([]backend.DirEntry, error) {
	prefix := a.objectKey(p)
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: false}
	var entries []backend.DirEntry
	for obj := range a.mcore.Client.ListObjects(ctx, a.bucket, opts) {
		if obj.Err != nil {
			a.logResponse("READDIR", prefix, obj.Err)
			return nil, fmt.Errorf("s3backend: readdir %s: %w", p, obj.Err)
		}

		isDir := strings.HasSuffix(obj.Key, "/")
		name := strings.TrimSuffix(strings.TrimPrefix(obj.Key, prefix), "/")
		if name == "" {
			continue
		}
		entries = append(entries, backend.DirEntry{Name: name, IsDir: isDir})
	}

	if len(entries) == 0 {
		requestMisses.Inc()
		return nil, backend.ErrNotExist
	}
	requestHits.Inc()
	a.logResponse("READDIR", prefix, nil)
	return entries, nil
}
