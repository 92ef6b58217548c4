package uploader

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store uploads to an Amazon S3 bucket with static credentials. It is
// an alternate backend for deployments that don't use Google Cloud.
type S3Store struct {
	accessKey string
	secretKey string
	region    string
	client    *s3.Client
	uploader  *manager.Uploader
}

// NewS3Store returns an uninitialized S3 store.
func NewS3Store(accessKey, secretKey, region string) *S3Store {
	return &S3Store{accessKey: accessKey, secretKey: secretKey, region: region}
}

func (s *S3Store) Init(ctx context.Context) error {
	if s.accessKey == "" || s.secretKey == "" || s.region == "" {
		return fmt.Errorf("missing S3 access key, secret key, or region")
	}
	s.client = s3.New(s3.Options{
		Region:      s.region,
		Credentials: credentials.NewStaticCredentialsProvider(s.accessKey, s.secretKey, ""),
	})
	s.uploader = manager.NewUploader(s.client)
	return nil
}

func (s *S3Store) VerifyBucket(ctx context.Context, bucket string) error {
	if s.client == nil {
		return fmt.Errorf("S3 client not initialized")
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	return err
}

func (s *S3Store) Upload(ctx context.Context, bucket, objectName, localPath string) error {
	if s.uploader == nil {
		return fmt.Errorf("S3 client not initialized")
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(objectName),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload object %s to bucket %s: %w", objectName, bucket, err)
	}
	return nil
}

func (s *S3Store) Close() error {
	return nil
}
