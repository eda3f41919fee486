package media

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"rentonmap/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type objectUploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

type objectDeleter interface {
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Store keeps images in a public-read S3 bucket.
type S3Store struct {
	uploader objectUploader
	deleter  objectDeleter
	bucket   string
	baseURL  string
}

// NewS3Store loads AWS credentials from the environment. An empty
// publicBaseURL means the bucket's virtual-hosted URL.
func NewS3Store(ctx context.Context, bucket, region, publicBaseURL string) (*S3Store, error) {
	cfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return newS3Store(manager.NewUploader(client), client, bucket, region, publicBaseURL), nil
}

func newS3Store(up objectUploader, del objectDeleter, bucket, region, publicBaseURL string) *S3Store {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		base = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", bucket, region)
	}
	return &S3Store{uploader: up, deleter: del, bucket: bucket, baseURL: base}
}

func (s *S3Store) Driver() string { return config.MediaDriverS3 }

func (s *S3Store) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:       aws.String(s.bucket),
		Key:          aws.String(key),
		Body:         bytes.NewReader(data),
		ContentType:  aws.String(contentType),
		CacheControl: aws.String("public, max-age=31536000, immutable"),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return s.baseURL + "/" + escapeKey(key), nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.deleter.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (s *S3Store) KeyFromURL(raw string) (string, bool) {
	escaped, ok := strings.CutPrefix(raw, s.baseURL+"/")
	if !ok || escaped == "" {
		return "", false
	}
	key, err := url.PathUnescape(escaped)
	if err != nil {
		return "", false
	}
	return key, true
}

func escapeKey(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
