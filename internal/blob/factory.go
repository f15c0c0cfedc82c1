package blob

import (
	"context"
	"fmt"
	"os"

	"floracore/internal/infra/blob/fs"
	memorystore "floracore/internal/infra/blob/memory"
	infraS3 "floracore/internal/infra/blob/s3"
)

// S3Config re-exports the S3 backend configuration type.
type S3Config = infraS3.Config

// NewFilesystem constructs a filesystem-backed store rooted at the
// provided path. The return type is the interface so call sites do not
// grow a dependency on the concrete backend.
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}

// NewMemory returns an in-memory store suitable for tests.
func NewMemory() Store { return memorystore.New() }

// NewS3 constructs an S3-backed store from the provided configuration.
func NewS3(ctx context.Context, cfg S3Config) (Store, error) {
	return infraS3.New(ctx, cfg)
}

// NewMockS3ForTests exposes the in-memory S3 mock for cross-package tests.
func NewMockS3ForTests() Store { return infraS3.NewMockForTests() }

// Open selects a Store implementation using environment variables.
//
//	FLORACORE_BLOB_DRIVER: fs|s3|memory (default fs)
//	FLORACORE_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 variables documented in the s3 backend)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("FLORACORE_BLOB_DRIVER")
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(os.Getenv("FLORACORE_BLOB_FS_ROOT"))
	case DriverS3:
		return infraS3.OpenFromEnv(ctx)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
