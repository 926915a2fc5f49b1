package storage

import "context"

// ObjectStorage captures the S3-compatible operations the publisher needs.
type ObjectStorage interface {
	UploadObject(ctx context.Context, key string, data []byte) error
	DownloadObject(ctx context.Context, key string, destPath string) error
}
