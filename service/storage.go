package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	gstorage "cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"google.golang.org/api/iterator"
)

// Storage is the output object store. Keys are hierarchical strings
// (e.g. wofs/2021/wofs_2021_097_071.tif). Puts are all-or-nothing: a
// failed upload never leaves a partial object at its final key.
type Storage interface {
	// Put persists the content of r under key, overwriting.
	Put(ctx context.Context, key string, r io.Reader) error
	// Get returns a reader on the object. Raises ErrFileNotFound.
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	// List returns the keys starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	// Delete removes the object. Raises ErrFileNotFound.
	Delete(ctx context.Context, key string) error
	// DatasetURI returns a URI for key that the raster library can open
	// directly (gs://..., /vsis3/..., local path).
	DatasetURI(key string) string
}

// StorageConfig carries the environment-provided store identity. It is
// built once in main and passed down explicitly.
type StorageConfig struct {
	// URI selects the strategy: gs://bucket[/prefix], s3://bucket[/prefix],
	// file:///dir or a plain local directory.
	URI string
	// Account and Credential are only used by the s3 strategy (access
	// key pair). The gs strategy uses ambient application credentials.
	Account    string
	Credential string
	// Region for the s3 strategy.
	Region string
}

// NewStorage returns the strategy matching cfg.URI.
func NewStorage(ctx context.Context, cfg StorageConfig) (Storage, error) {
	switch {
	case strings.HasPrefix(cfg.URI, "gs://"):
		return newGSStrategy(ctx, cfg.URI)
	case strings.HasPrefix(cfg.URI, "s3://"):
		return newS3Strategy(ctx, cfg)
	case strings.HasPrefix(cfg.URI, "file://"):
		return newFileStrategy(strings.TrimPrefix(cfg.URI, "file://"))
	case cfg.URI != "":
		return newFileStrategy(cfg.URI)
	}
	return nil, fmt.Errorf("NewStorage: empty storage uri")
}

func splitBucketURI(uri string) (bucket, prefix string) {
	uri = uri[strings.Index(uri, "://")+3:]
	if i := strings.Index(uri, "/"); i != -1 {
		return uri[:i], strings.Trim(uri[i:], "/")
	}
	return uri, ""
}

/////////////////////// gs:// ///////////////////////

type gsStrategy struct {
	client *gstorage.Client
	bucket string
	prefix string
}

func newGSStrategy(ctx context.Context, uri string) (*gsStrategy, error) {
	client, err := gstorage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("newGSStrategy.NewClient: %w", err)
	}
	bucket, prefix := splitBucketURI(uri)
	return &gsStrategy{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *gsStrategy) object(key string) *gstorage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, key))
}

func (s *gsStrategy) Put(ctx context.Context, key string, r io.Reader) error {
	w := s.object(key).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return MakeTemporary(fmt.Errorf("Put[%s].Copy: %w", key, err))
	}
	// The object only becomes visible on a successful Close.
	if err := w.Close(); err != nil {
		return MakeTemporary(fmt.Errorf("Put[%s].Close: %w", key, err))
	}
	return nil
}

func (s *gsStrategy) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.object(key).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return nil, ErrFileNotFound{key}
		}
		return nil, fmt.Errorf("Get[%s]: %w", key, err)
	}
	return r, nil
}

func (s *gsStrategy) List(ctx context.Context, prefix string) ([]string, error) {
	it := s.client.Bucket(s.bucket).Objects(ctx, &gstorage.Query{Prefix: path.Join(s.prefix, prefix)})
	var keys []string
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("List[%s]: %w", prefix, err)
		}
		keys = append(keys, strings.TrimPrefix(strings.TrimPrefix(attrs.Name, s.prefix), "/"))
	}
	return keys, nil
}

func (s *gsStrategy) Delete(ctx context.Context, key string) error {
	if err := s.object(key).Delete(ctx); err != nil {
		if errors.Is(err, gstorage.ErrObjectNotExist) {
			return ErrFileNotFound{key}
		}
		return fmt.Errorf("Delete[%s]: %w", key, err)
	}
	return nil
}

func (s *gsStrategy) DatasetURI(key string) string {
	return "gs://" + s.bucket + "/" + path.Join(s.prefix, key)
}

/////////////////////// s3:// ///////////////////////

type s3Strategy struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

func newS3Strategy(ctx context.Context, cfg StorageConfig) (*s3Strategy, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.Account != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.Account, cfg.Credential, "")))
	}
	awscfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("newS3Strategy.LoadDefaultConfig: %w", err)
	}
	client := s3.NewFromConfig(awscfg)
	bucket, prefix := splitBucketURI(cfg.URI)
	return &s3Strategy{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}, nil
}

func (s *s3Strategy) key(key string) string { return path.Join(s.prefix, key) }

func (s *s3Strategy) Put(ctx context.Context, key string, r io.Reader) error {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
		Body:   r,
	})
	if err != nil {
		return MakeTemporary(fmt.Errorf("Put[%s]: %w", key, err))
	}
	return nil
}

func (s *s3Strategy) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	})
	if err != nil {
		if strings.Contains(err.Error(), "NoSuchKey") {
			return nil, ErrFileNotFound{key}
		}
		return nil, fmt.Errorf("Get[%s]: %w", key, err)
	}
	return out.Body, nil
}

func (s *s3Strategy) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.key(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("List[%s]: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(strings.TrimPrefix(*obj.Key, s.prefix), "/"))
		}
	}
	return keys, nil
}

func (s *s3Strategy) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(key)),
	}); err != nil {
		return fmt.Errorf("Delete[%s]: %w", key, err)
	}
	return nil
}

func (s *s3Strategy) DatasetURI(key string) string {
	return "/vsis3/" + s.bucket + "/" + s.key(key)
}

/////////////////////// local files ///////////////////////

type fileStrategy struct {
	root string
}

func newFileStrategy(root string) (*fileStrategy, error) {
	if root == "" {
		return nil, fmt.Errorf("newFileStrategy: empty root")
	}
	if err := os.MkdirAll(root, 0766); err != nil {
		return nil, fmt.Errorf("newFileStrategy.MkdirAll: %w", err)
	}
	return &fileStrategy{root: root}, nil
}

func (s *fileStrategy) path(key string) string { return filepath.Join(s.root, filepath.FromSlash(key)) }

func (s *fileStrategy) Put(ctx context.Context, key string, r io.Reader) error {
	dst := s.path(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0766); err != nil {
		return fmt.Errorf("Put[%s].MkdirAll: %w", key, err)
	}
	// Write to a temp file then rename, so a failed put never leaves a
	// partial object at its final key.
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".put-*")
	if err != nil {
		return fmt.Errorf("Put[%s].CreateTemp: %w", key, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("Put[%s].Copy: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("Put[%s].Close: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return fmt.Errorf("Put[%s].Rename: %w", key, err)
	}
	return nil
}

func (s *fileStrategy) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound{key}
		}
		return nil, fmt.Errorf("Get[%s]: %w", key, err)
	}
	return f, nil
}

func (s *fileStrategy) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := filepath.WalkDir(s.root, func(p string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("List[%s]: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStrategy) Delete(ctx context.Context, key string) error {
	if err := os.Remove(s.path(key)); err != nil {
		if os.IsNotExist(err) {
			return ErrFileNotFound{key}
		}
		return fmt.Errorf("Delete[%s]: %w", key, err)
	}
	return nil
}

func (s *fileStrategy) DatasetURI(key string) string { return s.path(key) }

/////////////////////// in-memory (tests) ///////////////////////

// MemStorage is an in-memory Storage used in tests.
type MemStorage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

func NewMemStorage() *MemStorage {
	return &MemStorage{objects: map[string][]byte{}}
}

func (s *MemStorage) Put(ctx context.Context, key string, r io.Reader) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = b
	return nil
}

func (s *MemStorage) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, ErrFileNotFound{key}
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *MemStorage) List(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *MemStorage) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		return ErrFileNotFound{key}
	}
	delete(s.objects, key)
	return nil
}

func (s *MemStorage) DatasetURI(key string) string { return "/vsimem/" + key }
