package uploader

import (
	"context"
	"fmt"
	"io"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore uploads to Google Cloud Storage using a service account key
// file. This is the default backend for the Aria workflow.
type GCSStore struct {
	credentialsPath string
	client          *storage.Client
}

// NewGCSStore returns an uninitialized GCS store for the given service
// account key file.
func NewGCSStore(credentialsPath string) *GCSStore {
	return &GCSStore{credentialsPath: credentialsPath}
}

func (g *GCSStore) Init(ctx context.Context) error {
	client, err := storage.NewClient(ctx, option.WithCredentialsFile(g.credentialsPath))
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	g.client = client
	return nil
}

func (g *GCSStore) VerifyBucket(ctx context.Context, bucket string) error {
	if g.client == nil {
		return fmt.Errorf("storage client not initialized")
	}
	_, err := g.client.Bucket(bucket).Attrs(ctx)
	return err
}

func (g *GCSStore) Upload(ctx context.Context, bucket, objectName, localPath string) error {
	if g.client == nil {
		return fmt.Errorf("storage client not initialized")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	wc := g.client.Bucket(bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(wc, f); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}
	return nil
}

func (g *GCSStore) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}
