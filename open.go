package euglenida

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
	"sync"

	"cloud.google.com/go/storage"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/carbocation/pfx"
)

// Opener opens local paths as well as gs:// and s3:// URLs. Cloud clients
// are created on first use with default credentials, so purely local runs
// never touch cloud configuration. The zero value is ready to use.
type Opener struct {
	mu  sync.Mutex
	gcs *storage.Client
	s3  *s3.Client
}

// SplitBucketPath splits scheme://bucket/key into its bucket and key.
func SplitBucketPath(path, scheme string) (string, string, error) {
	pathParts := strings.SplitN(strings.TrimPrefix(path, scheme), "/", 2)
	if len(pathParts) != 2 || pathParts[0] == "" || pathParts[1] == "" {
		return "", "", fmt.Errorf("Tried to split your bucket path into 2 parts, but got %d: %v", len(pathParts), pathParts)
	}

	return pathParts[0], pathParts[1], nil
}

// IsRemote reports whether path is a cloud storage URL.
func IsRemote(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://")
}

// Open returns a reader over the raw bytes at path. A missing object or file
// yields an error that satisfies errors.Is(err, fs.ErrNotExist) regardless
// of the backend.
func (o *Opener) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	switch {
	case strings.HasPrefix(path, "gs://"):
		return o.openGoogleStorage(ctx, path)
	case strings.HasPrefix(path, "s3://"):
		return o.openS3(ctx, path)
	}

	return os.Open(path)
}

func (o *Opener) openGoogleStorage(ctx context.Context, path string) (io.ReadCloser, error) {
	bucketName, pathName, err := SplitBucketPath(path, "gs://")
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.gcs == nil {
		o.gcs, err = storage.NewClient(ctx)
	}
	client := o.gcs
	o.mu.Unlock()
	if err != nil {
		return nil, pfx.Err(err)
	}

	rdr, err := client.Bucket(bucketName).Object(pathName).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
	} else if err != nil {
		return nil, pfx.Err(fmt.Errorf("%s: %s", path, err))
	}

	return rdr, nil
}

func (o *Opener) openS3(ctx context.Context, path string) (io.ReadCloser, error) {
	bucketName, key, err := SplitBucketPath(path, "s3://")
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	if o.s3 == nil {
		var cfg aws.Config
		cfg, err = awsconfig.LoadDefaultConfig(ctx)
		if err == nil {
			o.s3 = s3.NewFromConfig(cfg)
		}
	}
	client := o.s3
	o.mu.Unlock()
	if err != nil {
		return nil, pfx.Err(err)
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(bucketName), Key: aws.String(key)})
	if err != nil {
		var nsk *s3types.NoSuchKey
		var nsb *s3types.NoSuchBucket
		if errors.As(err, &nsk) || errors.As(err, &nsb) {
			return nil, fmt.Errorf("%s: %w", path, fs.ErrNotExist)
		}
		return nil, pfx.Err(fmt.Errorf("%s: %s", path, err))
	}

	return out.Body, nil
}

// Close releases any cloud clients that were created.
func (o *Opener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.gcs != nil {
		err := o.gcs.Close()
		o.gcs = nil
		return err
	}

	return nil
}
