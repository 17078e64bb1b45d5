package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/gallerybot/gallery-api/internal/pkg/apperror"
)

const listPageSize = int32(1000)

// Config carries the connection settings for the S3-compatible endpoint.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	// PublicURL is stored on the S3Store; PresignGet does not use it, and
	// presigned URLs keep the host of the client's signed endpoint.
	PublicURL string
}

// S3Store is the production Store implementation, usable against AWS S3
// or any MinIO-compatible endpoint via path-style addressing.
type S3Store struct {
	client   *s3.Client
	presign  *s3.PresignClient
	bucket   string
	endpoint string
}

// New builds an S3Store from cfg. It does not verify the bucket exists;
// call EnsureBucket for that.
func New(ctx context.Context, cfg Config) (*S3Store, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.Endpoint != "" {
			return aws.Endpoint{
				URL:               cfg.Endpoint,
				HostnameImmutable: true,
				SigningRegion:     cfg.Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey, cfg.SecretKey, "",
		)),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
	})

	return &S3Store{
		client:   client,
		presign:  s3.NewPresignClient(client),
		bucket:   cfg.Bucket,
		endpoint: cfg.PublicURL,
	}, nil
}

// EnsureBucket fails the caller's startup (apperror.Fatal) if the tenant
// bucket is absent or unreachable.
func (s *S3Store) EnsureBucket(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return apperror.Wrap(apperror.Fatal, "tenant bucket unreachable", err)
	}
	return nil
}

func (s *S3Store) PutFolderMarker(ctx context.Context, prefix string) error {
	key := strings.TrimSuffix(prefix, "/") + "/"
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   strings.NewReader(""),
	})
	return translateErr(err)
}

type s3Lister struct {
	client            *s3.Client
	bucket            string
	prefix            string
	continuationToken *string
	exhausted         bool
}

func (l *s3Lister) Next(ctx context.Context) ([]Object, bool, error) {
	if l.exhausted {
		return nil, true, nil
	}

	out, err := l.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:            aws.String(l.bucket),
		Prefix:            aws.String(l.prefix),
		MaxKeys:           aws.Int32(listPageSize),
		ContinuationToken: l.continuationToken,
	})
	if err != nil {
		return nil, false, translateErr(err)
	}

	objects := make([]Object, 0, len(out.Contents))
	for _, c := range out.Contents {
		objects = append(objects, Object{
			Key:          aws.ToString(c.Key),
			Size:         aws.ToInt64(c.Size),
			LastModified: aws.ToTime(c.LastModified),
		})
	}

	if out.IsTruncated == nil || !*out.IsTruncated {
		l.exhausted = true
	} else {
		l.continuationToken = out.NextContinuationToken
	}

	return objects, false, nil
}

func (s *S3Store) ListPrefix(ctx context.Context, prefix string) Lister {
	return &s3Lister{client: s.client, bucket: s.bucket, prefix: prefix}
}

func (s *S3Store) HeadObject(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, translateErr(err)
	}
	return ObjectInfo{
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		UserMetadata: out.Metadata,
	}, nil
}

func (s *S3Store) PutBuffer(ctx context.Context, key string, data []byte, contentType string, metadata map[string]string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	})
	return translateErr(err)
}

func (s *S3Store) PutStream(ctx context.Context, key string, r io.Reader, size int64, contentType string, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(contentType),
		Metadata:    metadata,
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}
	_, err := s.client.PutObject(ctx, input)
	return translateErr(err)
}

func (s *S3Store) GetObject(ctx context.Context, key string) (GetResult, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return GetResult{}, translateErr(err)
	}
	return GetResult{
		Body:        out.Body,
		ContentType: aws.ToString(out.ContentType),
		Size:        aws.ToInt64(out.ContentLength),
	}, nil
}

func (s *S3Store) CopyObject(ctx context.Context, src, dst string) error {
	source := s.bucket + "/" + src
	_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(s.bucket),
		Key:        aws.String(dst),
		CopySource: aws.String(source),
	})
	return translateErr(err)
}

func (s *S3Store) DeleteObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	return translateErr(err)
}

// DeleteBatch deletes up to 1000 keys in a single DeleteObjects call,
// chunking internally if the caller passes more.
func (s *S3Store) DeleteBatch(ctx context.Context, keys []string) error {
	const maxBatch = 1000
	for start := 0; start < len(keys); start += maxBatch {
		end := start + maxBatch
		if end > len(keys) {
			end = len(keys)
		}
		chunk := keys[start:end]

		objects := make([]types.ObjectIdentifier, len(chunk))
		for i, k := range chunk {
			objects[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}

		_, err := s.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return translateErr(err)
		}
	}
	return nil
}

// PresignGet returns a time-limited GET URL on the client's endpoint host.
// It upgrades an http:// URL to https:// whether or not a PublicURL is
// configured; the host is never rewritten.
func (s *S3Store) PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error) {
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", translateErr(err)
	}

	url := req.URL
	if strings.HasPrefix(url, "http://") {
		url = "https://" + strings.TrimPrefix(url, "http://")
	}
	return url, nil
}

// translateErr maps an AWS SDK error to an apperror.Kind the rest of the
// system switches on: bucket-missing, object-not-found, transient, or
// fatal.
func translateErr(err error) error {
	if err == nil {
		return nil
	}

	var nf *types.NoSuchKey
	if errors.As(err, &nf) {
		return apperror.Wrap(apperror.NotFound, "object not found", err)
	}
	var nb *types.NoSuchBucket
	if errors.As(err, &nb) {
		return apperror.Wrap(apperror.Fatal, "bucket missing", err)
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return apperror.Wrap(apperror.NotFound, "object not found", err)
		case "NoSuchBucket":
			return apperror.Wrap(apperror.Fatal, "bucket missing", err)
		case "RequestTimeout", "SlowDown", "ServiceUnavailable", "InternalError":
			return apperror.Wrap(apperror.Transient, "object store unavailable", err)
		}
	}

	return apperror.Wrap(apperror.Transient, "object store request failed", err)
}
