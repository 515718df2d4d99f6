// Package blob stages extracted audio in object storage so the speech
// recognition service can read it by reference instead of receiving the
// waveform inline.
package blob

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"scribe/internal/config"
	"scribe/internal/services"
)

// URIScheme prefixes staged object references. The recognition service
// resolves audio by this reference against the same storage endpoint.
const URIScheme = "gs://"

// objectAPI is the slice of the minio client the store uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	FPutObject(ctx context.Context, bucketName, objectName, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// Store uploads and removes staged audio objects.
type Store struct {
	client objectAPI
	bucket string
	region string
}

// NewStore builds a Store from configuration.
func NewStore(cfg config.Blob) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "blob", "new store", "create storage client", err)
	}
	return &Store{client: client, bucket: cfg.Bucket, region: cfg.Region}, nil
}

// NewStoreWithClient wires an explicit client (for testing).
func NewStoreWithClient(client objectAPI, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// EnsureBucket creates the staging bucket when it does not exist yet.
func (s *Store) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return services.Wrap(services.ErrTransient, "blob", "ensure bucket", "check bucket", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{Region: s.region}); err != nil {
		return services.Wrap(services.ErrTransient, "blob", "ensure bucket", "create bucket", err)
	}
	return nil
}

// Upload stages localPath and returns its object reference.
func (s *Store) Upload(ctx context.Context, localPath string) (string, error) {
	if strings.TrimSpace(localPath) == "" {
		return "", services.Wrap(services.ErrValidation, "blob", "upload", "local path required", nil)
	}

	objectName := fmt.Sprintf("audio/%s%s", uuid.NewString(), filepath.Ext(localPath))
	if _, err := s.client.FPutObject(ctx, s.bucket, objectName, localPath, minio.PutObjectOptions{
		ContentType: "audio/wav",
	}); err != nil {
		return "", services.Wrap(services.ErrTransient, "blob", "upload", "stage audio object", err)
	}
	return URIScheme + s.bucket + "/" + objectName, nil
}

// Delete removes a staged object by its reference. Unknown objects are not an
// error: cleanup runs on every pipeline exit path and may race an earlier
// cleanup.
func (s *Store) Delete(ctx context.Context, uri string) error {
	bucket, objectName, err := ParseURI(uri)
	if err != nil {
		return err
	}
	if err := s.client.RemoveObject(ctx, bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return services.Wrap(services.ErrTransient, "blob", "delete", "remove staged object", err)
	}
	return nil
}

// ParseURI splits an object reference into bucket and object name.
func ParseURI(uri string) (bucket, objectName string, err error) {
	if !strings.HasPrefix(uri, URIScheme) {
		return "", "", services.Wrap(services.ErrValidation, "blob", "parse uri", fmt.Sprintf("unsupported reference %q", uri), nil)
	}
	rest := strings.TrimPrefix(uri, URIScheme)
	bucket, objectName, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || objectName == "" {
		return "", "", services.Wrap(services.ErrValidation, "blob", "parse uri", fmt.Sprintf("malformed reference %q", uri), nil)
	}
	return bucket, objectName, nil
}
