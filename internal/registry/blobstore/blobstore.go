// Package blobstore implements the registry's archive/readme/doc
// object storage behind one interface, backed either by S3 or by a
// local filesystem directory (§6 "Blob object names", environment
// variables S3_* / FS_STORAGE_ROOT).
package blobstore

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/wisp-pm/wisp/internal/errors"
)

// Store puts and gets objects keyed by their blob object name (§6).
type Store interface {
	Put(ctx context.Context, key string, r io.Reader) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Has(ctx context.Context, key string) (bool, error)

	// SignedURL returns a time-limited direct-download URL for key, or
	// ("", false) when the backend has none (callers then stream
	// through Get instead).
	SignedURL(key string) (string, bool)
}

// FSStorageRootEnv is the environment variable naming the filesystem
// backend's root directory.
const FSStorageRootEnv = "FS_STORAGE_ROOT"

// S3 environment variables (§6).
const (
	S3BucketEnv   = "S3_BUCKET"
	S3RegionEnv   = "S3_REGION"
	S3EndpointEnv = "S3_ENDPOINT"
)

// FSStore stores blobs as files under a root directory. Used when
// FS_STORAGE_ROOT is set instead of the S3_* variables.
type FSStore struct {
	root string
}

func NewFSStore(root string) (*FSStore, error) {
	const op = errors.Op("blobstore.NewFSStore")
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.E(op, err)
	}
	return &FSStore{root: root}, nil
}

func (s *FSStore) path(key string) string { return filepath.Join(s.root, filepath.FromSlash(key)) }

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader) error {
	const op = errors.Op("blobstore.FSStore.Put")
	dest := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return errors.E(op, err)
	}
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.E(op, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(tmp)
		return errors.E(op, errors.Publish, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return errors.E(op, err)
	}
	return os.Rename(tmp, dest)
}

func (s *FSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	const op = errors.Op("blobstore.FSStore.Get")
	f, err := os.Open(s.path(key))
	if err != nil {
		return nil, errors.E(op, err)
	}
	return f, nil
}

func (s *FSStore) Has(ctx context.Context, key string) (bool, error) {
	_, err := os.Stat(s.path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (s *FSStore) SignedURL(key string) (string, bool) { return "", false }

// S3Store stores blobs as objects in an S3-compatible bucket.
type S3Store struct {
	client *s3.S3
	bucket string
}

func NewS3Store(bucket, region, endpoint string) (*S3Store, error) {
	const op = errors.Op("blobstore.NewS3Store")
	cfg := aws.NewConfig().WithRegion(region)
	if endpoint != "" {
		cfg = cfg.WithEndpoint(endpoint).WithS3ForcePathStyle(true)
	}
	sess, err := session.NewSession(cfg)
	if err != nil {
		return nil, errors.E(op, err)
	}
	return &S3Store{client: s3.New(sess), bucket: bucket}, nil
}

func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	const op = errors.Op("blobstore.S3Store.Put")
	data, err := io.ReadAll(r)
	if err != nil {
		return errors.E(op, err)
	}
	_, err = s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return errors.E(op, errors.Publish, err)
	}
	return nil
}

func (s *S3Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	const op = errors.Op("blobstore.S3Store.Get")
	out, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, errors.E(op, err)
	}
	return out.Body, nil
}

func (s *S3Store) Has(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, nil
	}
	return true, nil
}

func (s *S3Store) SignedURL(key string) (string, bool) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(15 * time.Minute)
	if err != nil {
		return "", false
	}
	return url, true
}

// ArchiveKey, ReadmeKey and DocKey compute the blob object names of §6.
func ArchiveKey(nameEscaped, versionEscaped string) string {
	return nameEscaped + "+" + versionEscaped + ".tar.gz"
}

func ReadmeKey(nameEscaped, versionEscaped string) string {
	return nameEscaped + "+" + versionEscaped + "+readme.gz"
}

func DocKey(hash string) string {
	return "doc/" + hash + ".gz"
}

// FromEnv selects a backend based on the S3_* / FS_STORAGE_ROOT
// environment variables (§6), preferring S3 when S3_BUCKET is set.
func FromEnv() (Store, error) {
	if bucket := os.Getenv(S3BucketEnv); bucket != "" {
		return NewS3Store(bucket, os.Getenv(S3RegionEnv), os.Getenv(S3EndpointEnv))
	}
	root := os.Getenv(FSStorageRootEnv)
	if root == "" {
		root = "blobs"
	}
	return NewFSStore(root)
}
