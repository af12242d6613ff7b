package upload

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

const maxFileName = 255

// Options configures the object store connection.
type Options struct {
	Endpoint     string
	Region       string
	Bucket       string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
	TTL          time.Duration
}

// Presigner signs object uploads. *s3.PresignClient implements it.
type Presigner interface {
	PresignPutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Presigned is a time-limited upload grant for one object.
type Presigned struct {
	URL       string `json:"url"`
	Key       string `json:"key"`
	ExpiresIn int    `json:"expiresIn"`
}

// NewPresigner builds an S3 presign client. Static keys are used when both are
// set, otherwise the default credential chain.
func NewPresigner(ctx context.Context, opts Options) (*s3.PresignClient, error) {
	loaders := []func(*config.LoadOptions) error{config.WithRegion(opts.Region)}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		loaders = append(loaders, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, ""),
		))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, fmt.Errorf("upload: load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.UsePathStyle
	})
	return s3.NewPresignClient(client), nil
}

// Service hands out presigned upload URLs.
type Service struct {
	presigner Presigner
	bucket    string
	ttl       time.Duration
}

// NewService builds Service instance.
func NewService(presigner Presigner, bucket string, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Service{presigner: presigner, bucket: bucket, ttl: ttl}
}

// PresignUpload returns a PUT URL for fileName. The object key is prefixed
// with a random id so uploads never overwrite each other.
func (s *Service) PresignUpload(ctx context.Context, fileName string) (Presigned, error) {
	name, err := cleanFileName(fileName)
	if err != nil {
		return Presigned{}, err
	}
	key := uuid.NewString() + "/" + name
	req, err := s.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return Presigned{}, fmt.Errorf("upload: presign %s: %w", key, err)
	}
	return Presigned{URL: req.URL, Key: key, ExpiresIn: int(s.ttl / time.Second)}, nil
}

func cleanFileName(fileName string) (string, error) {
	fileName = strings.TrimSpace(fileName)
	if fileName == "" {
		return "", shared.Validation("fileName is required")
	}
	if len(fileName) > maxFileName {
		return "", shared.Validation("fileName must not exceed 255 characters")
	}
	name := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if name == "." || name == ".." || name == "/" {
		return "", shared.Validation("fileName is invalid")
	}
	return name, nil
}
