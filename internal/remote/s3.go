package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/viktor/chat-storage-gateway/internal/config"
)

// S3 implements Remote over any S3-compatible object store. Each uploaded
// segment becomes its own object under a generated key; that key is the
// remote id. Useful for deployments that want the same chunked/encrypted
// layout without the chat API's size ceiling.
type S3 struct {
	client *s3.Client
	bucket string
}

// NewS3 creates an S3 remote from config.
func NewS3(cfg *config.S3Config) (*S3, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Options := []func(*s3.Options){}
	if cfg.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.UsePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &S3{
		client: s3.NewFromConfig(awsCfg, s3Options...),
		bucket: cfg.Bucket,
	}, nil
}

// Upload stores data as a new object and returns its key as the remote id.
func (c *S3) Upload(ctx context.Context, data []byte, name string) (string, error) {
	key := "segments/" + uuid.NewString()

	input := &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
		Metadata: map[string]string{
			"display-name": name,
		},
	}

	if _, err := c.client.PutObject(ctx, input); err != nil {
		return "", NewTransportError("upload", classifyS3Error(err))
	}
	return key, nil
}

// Download fetches the object stored under remoteID.
func (c *S3) Download(ctx context.Context, remoteID string) ([]byte, error) {
	input := &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(remoteID),
	}

	result, err := c.client.GetObject(ctx, input)
	if err != nil {
		return nil, NewTransportError("download", classifyS3Error(err))
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, NewTransportError("download", fmt.Errorf("failed to read object body: %w", err))
	}
	return data, nil
}

// classifyS3Error unwraps SDK operation errors to their API error code so
// transport failures carry a stable, loggable cause.
func classifyS3Error(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())
	}
	var opErr *smithy.OperationError
	if errors.As(err, &opErr) {
		return fmt.Errorf("%s %s: %w", opErr.Service(), opErr.Operation(), opErr.Err)
	}
	return err
}
