package uploader

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/ilyLeonOn/meta-aria-uploader/logger"
)

// ProgressFunc receives textual upload progress. The percentage is always
// -1 here; uploads do not report fine-grained percentages.
type ProgressFunc func(message string, percentage float64)

// ObjectStore abstracts a remote object storage backend. Object names use
// forward slashes regardless of the local path separator.
type ObjectStore interface {
	Init(ctx context.Context) error
	VerifyBucket(ctx context.Context, bucket string) error
	Upload(ctx context.Context, bucket, objectName, localPath string) error
	Close() error
}

// Uploader wraps an ObjectStore with the file- and directory-level upload
// operations the batch workflow needs.
type Uploader struct {
	store ObjectStore
}

// New returns an Uploader over the given store.
func New(store ObjectStore) *Uploader {
	return &Uploader{store: store}
}

// ForBackend constructs an Uploader for the named backend type with
// backend-specific access info.
func ForBackend(backendType string, accessInfo map[string]string) (*Uploader, error) {
	switch backendType {
	case "gcs":
		return New(NewGCSStore(accessInfo["credentialsPath"])), nil
	case "s3":
		return New(NewS3Store(accessInfo["accessKey"], accessInfo["secretKey"], accessInfo["region"])), nil
	case "sftp":
		return New(NewSFTPStore(accessInfo)), nil
	default:
		return nil, fmt.Errorf("unknown backend type: %s", backendType)
	}
}

// Initialize builds the underlying storage client.
func (u *Uploader) Initialize(ctx context.Context) error {
	if err := u.store.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize storage client: %w", err)
	}
	logger.Info("Storage client initialized")
	return nil
}

// VerifyBucket confirms the named bucket is accessible.
func (u *Uploader) VerifyBucket(ctx context.Context, bucket string) error {
	if err := u.store.VerifyBucket(ctx, bucket); err != nil {
		return fmt.Errorf("could not access bucket '%s': %w", bucket, err)
	}
	logger.Infof("Bucket '%s' verified", bucket)
	return nil
}

// Close releases the underlying client.
func (u *Uploader) Close() error {
	return u.store.Close()
}

// UploadFile uploads a single file under prefix/filename (or the bare
// filename when no prefix is given).
func (u *Uploader) UploadFile(ctx context.Context, bucket, filePath, prefix string, progress ProgressFunc) error {
	fileName := filepath.Base(filePath)
	destName := fileName
	if prefix != "" {
		destName = strings.TrimRight(prefix, "/") + "/" + fileName
	}

	if progress != nil {
		progress(fmt.Sprintf("Uploading %s...", fileName), -1)
	}

	if err := u.store.Upload(ctx, bucket, destName, filePath); err != nil {
		logger.Errorf("Failed to upload '%s': %v", filePath, err)
		return fmt.Errorf("failed to upload '%s': %w", filePath, err)
	}
	logger.Infof("Successfully uploaded %s to %s", fileName, destName)
	return nil
}

// UploadDirectory uploads every file under dir, including nested
// subdirectories, preserving paths relative to dir under
// prefix/<dir-basename>/<relative-path>. Individual file failures are
// logged and skipped; the returned count is the number actually uploaded,
// and the error is non-nil unless every discovered file made it up.
func (u *Uploader) UploadDirectory(ctx context.Context, bucket, dir, prefix string, progress ProgressFunc) (int, error) {
	logger.Infof("Checking upload directory: %s", dir)

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		logger.Errorf("Error walking directory %s: %v", dir, err)
		return 0, fmt.Errorf("error walking directory: %w", err)
	}

	logger.Infof("Found %d file(s) (including in subdirectories) in %s", len(files), dir)
	if len(files) == 0 {
		return 0, fmt.Errorf("no files found in directory")
	}

	dirBase := filepath.Base(dir)
	uploaded := 0
	for idx, filePath := range files {
		relPath, err := filepath.Rel(dir, filePath)
		if err != nil {
			logger.Warnf("Failed to resolve relative path for %s: %v", filePath, err)
			continue
		}
		relSlash := filepath.ToSlash(relPath)

		destName := dirBase + "/" + relSlash
		if prefix != "" {
			destName = strings.TrimRight(prefix, "/") + "/" + destName
		}

		if progress != nil {
			progress(fmt.Sprintf("Uploading %d/%d: %s", idx+1, len(files), relSlash), -1)
		}

		if err := u.store.Upload(ctx, bucket, destName, filePath); err != nil {
			logger.Warnf("Failed to upload %s: %v", relSlash, err)
			continue
		}
		logger.Infof("Uploaded %s -> %s", relSlash, destName)
		uploaded++
	}

	if uploaded != len(files) {
		return uploaded, fmt.Errorf("only %d/%d files uploaded successfully", uploaded, len(files))
	}
	return uploaded, nil
}
