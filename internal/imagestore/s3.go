package imagestore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/somos-red-teaming/somosportal-sub000/internal/utils"
)

// maxImageBytes bounds the download size of a single archived image
const maxImageBytes = 32 << 20

// S3Store archives generated images to an S3 bucket
type S3Store struct {
	client *s3.Client
	http   *http.Client
	bucket string
	prefix string
	logger *utils.Logger
}

// NewS3Store creates a new S3-backed image store
func NewS3Store(ctx context.Context, bucket, region, prefix string) (*S3Store, error) {
	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &S3Store{
		client: s3.NewFromConfig(cfg),
		http:   &http.Client{Timeout: 60 * time.Second},
		bucket: bucket,
		prefix: prefix,
		logger: utils.NewLogger("image-store"),
	}, nil
}

// Save downloads the image from the vendor URL and uploads it to S3.
// Returns the object key used as the stored reference.
func (s *S3Store) Save(ctx context.Context, exerciseID, interactionID uuid.UUID, imageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch image: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}

	// Format: images/<exercise>/2026/08/29/<interaction>.png
	now := time.Now()
	key := fmt.Sprintf("%s%s/%04d/%02d/%02d/%s%s",
		s.prefix,
		exerciseID,
		now.Year(),
		now.Month(),
		now.Day(),
		interactionID,
		extensionFor(contentType),
	)

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}

	s.logger.Info("Archived image", "key", key, "bytes", len(data))
	return key, nil
}

// extensionFor maps a content type to a file extension
func extensionFor(contentType string) string {
	switch contentType {
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
