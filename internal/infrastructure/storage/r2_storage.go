package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"

	"bastion-server/internal/config"
	"bastion-server/internal/domain/files"
	"bastion-server/internal/infrastructure/logger"
	"bastion-server/internal/utils/platformerrors"
)

// S3API is the subset of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// R2Storage stores chat files in Cloudflare R2 or any S3-compatible bucket.
type R2Storage struct {
	bucket    string
	publicURL string
	client    S3API
	log       zerolog.Logger
	disabled  bool
}

var _ files.ObjectStore = (*R2Storage)(nil)

func NewR2Storage(ctx context.Context, cfg *config.Config) (*R2Storage, error) {
	log := logger.Component("r2-storage")
	storage := &R2Storage{
		bucket:    strings.TrimSpace(cfg.R2BucketName),
		publicURL: strings.TrimRight(strings.TrimSpace(cfg.R2PublicURL), "/"),
		log:       log,
	}

	if !cfg.StorageEnabled() {
		log.Warn().Msg("R2 bucket or credentials are not set; file tools and image uploads are disabled")
		storage.disabled = true
		return storage, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.R2Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			strings.TrimSpace(cfg.R2AccessKeyID), strings.TrimSpace(cfg.R2SecretAccessKey), "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	endpoint := cfg.StorageEndpoint()
	storage.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
		o.UsePathStyle = true
	})
	log.Info().Str("bucket", storage.bucket).Str("endpoint", endpoint).Msg("object storage enabled")
	return storage, nil
}

// NewR2StorageWithClient wires an existing client, mainly for tests.
func NewR2StorageWithClient(client S3API, bucket, publicURL string) *R2Storage {
	return &R2Storage{
		bucket:    bucket,
		publicURL: strings.TrimRight(publicURL, "/"),
		client:    client,
		log:       logger.Component("r2-storage"),
		disabled:  client == nil || bucket == "",
	}
}

func (s *R2Storage) Enabled() bool {
	return !s.disabled
}

// GetObject reads at most maxBytes of key with a ranged request.
func (s *R2Storage) GetObject(ctx context.Context, key string, maxBytes int64) (*files.Object, error) {
	if s.disabled {
		return nil, errStorageDisabled(ctx)
	}
	input := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if maxBytes > 0 {
		input.Range = aws.String(fmt.Sprintf("bytes=0-%d", maxBytes-1))
	}

	out, err := s.client.GetObject(ctx, input)
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeNotFound, "object not found: "+key, err, "de664401-bbbd-4d77-866f-fa19594b033f")
		}
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "failed to get object", err, "8d4f191e-3b22-4a87-bd0b-c460872424e6")
	}
	defer out.Body.Close()

	reader := io.Reader(out.Body)
	if maxBytes > 0 {
		reader = io.LimitReader(out.Body, maxBytes)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "failed to read object body", err, "0558f0a8-8a58-492b-bbd4-fc0caaea49ce")
	}

	obj := &files.Object{
		Body:          body,
		ContentType:   aws.ToString(out.ContentType),
		ContentLength: int64(len(body)),
	}
	if total, ok := totalFromContentRange(aws.ToString(out.ContentRange)); ok {
		obj.ContentLength = total
	} else if out.ContentLength != nil && *out.ContentLength > obj.ContentLength {
		obj.ContentLength = *out.ContentLength
	}
	return obj, nil
}

func (s *R2Storage) PutObject(ctx context.Context, key string, body []byte, contentType, cacheControl string) error {
	if s.disabled {
		return errStorageDisabled(ctx)
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType),
	}
	if cacheControl != "" {
		input.CacheControl = aws.String(cacheControl)
	}
	if _, err := s.client.PutObject(ctx, input); err != nil {
		return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeExternal, "failed to put object", err, "a5efc0a8-7443-4686-9b51-822d0860999d")
	}
	s.log.Debug().Str("key", key).Int("size", len(body)).Msg("object stored")
	return nil
}

// PublicURL returns the public address of key, or "" when no public base is configured.
func (s *R2Storage) PublicURL(key string) string {
	if s.publicURL == "" {
		return ""
	}
	segments := strings.Split(key, "/")
	for i, segment := range segments {
		segments[i] = url.PathEscape(segment)
	}
	return s.publicURL + "/" + strings.Join(segments, "/")
}

// KeyFromURL maps a URL under the public base back to its object key.
func (s *R2Storage) KeyFromURL(rawURL string) (string, bool) {
	if s.publicURL == "" {
		return "", false
	}
	rest, ok := strings.CutPrefix(strings.TrimSpace(rawURL), s.publicURL+"/")
	if !ok || rest == "" {
		return "", false
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	key, err := url.PathUnescape(rest)
	if err != nil || key == "" {
		return "", false
	}
	return key, true
}

// Health performs a HeadBucket request.
func (s *R2Storage) Health(ctx context.Context) error {
	if s.disabled {
		return nil
	}
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

func errStorageDisabled(ctx context.Context) error {
	return platformerrors.NewError(ctx, platformerrors.LayerInfrastructure, platformerrors.ErrorTypeValidation, "object storage is not configured", nil, "d28ee62d-c74d-44ba-8371-b980a6b2b03c")
}

// totalFromContentRange parses the complete size out of "bytes 0-99/1234".
func totalFromContentRange(value string) (int64, bool) {
	_, total, found := strings.Cut(value, "/")
	if !found || total == "*" {
		return 0, false
	}
	n, err := strconv.ParseInt(strings.TrimSpace(total), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}
