// Package uploads hands out presigned URLs so browsers can PUT quote
// attachments straight to S3 compatible object storage.
package uploads

import (
	"context"
	"errors"
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

	"github.com/wadjakorntonsri/engsite/pkg/apperr"
	"github.com/wadjakorntonsri/engsite/pkg/core/domain"
	"github.com/wadjakorntonsri/engsite/pkg/ports"
)

var presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	return pc.PresignPutObject(ctx, in, optFns...)
}

type Config struct {
	Bucket    string
	Region    string
	Endpoint  string // empty means AWS
	AccessKey string
	SecretKey string
	Expiry    time.Duration
}

type S3Signer struct {
	bucket  string
	expiry  time.Duration
	presign *s3.PresignClient
	now     func() time.Time
}

func NewS3Signer(ctx context.Context, cfg Config) (*S3Signer, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("uploads: bucket is required")
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	expiry := cfg.Expiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	return &S3Signer{bucket: cfg.Bucket, expiry: expiry, presign: s3.NewPresignClient(client), now: time.Now}, nil
}

func (s *S3Signer) PresignUpload(ctx context.Context, meta domain.FileMeta) (*domain.UploadTicket, error) {
	now := s.now()
	key := objectKey(now, meta.Name)
	req, err := presignPutObject(s.presign, ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(meta.ContentType),
		ContentLength: aws.Int64(meta.Size),
	}, s3.WithPresignExpires(s.expiry))
	if err != nil {
		return nil, fmt.Errorf("presign put: %w", err)
	}

	headers := make(map[string]string, len(req.SignedHeader))
	for name, values := range req.SignedHeader {
		// Browsers set these themselves.
		if strings.EqualFold(name, "host") || strings.EqualFold(name, "content-length") || len(values) == 0 {
			continue
		}
		headers[name] = values[0]
	}

	return &domain.UploadTicket{
		Key:       key,
		URL:       req.URL,
		Method:    req.Method,
		Headers:   headers,
		ExpiresAt: now.Add(s.expiry).UTC(),
	}, nil
}

// Disabled is used when no bucket is configured.
type Disabled struct{}

func (Disabled) PresignUpload(context.Context, domain.FileMeta) (*domain.UploadTicket, error) {
	return nil, apperr.NotFound(errors.New("attachment uploads are not enabled"))
}

// objectKey places attachments under a dated prefix with a random segment so
// client supplied names can never collide or traverse. The segment stays
// short enough that log redaction does not mistake it for a token.
func objectKey(now time.Time, name string) string {
	now = now.UTC()
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
	return fmt.Sprintf("quotes/%04d/%02d/%02d/%s/%s", now.Year(), now.Month(), now.Day(), id, safeName(name))
}

func safeName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "file"
	}
	if len(out) > 128 {
		out = out[len(out)-128:]
	}
	return out
}

var (
	_ ports.UploadSigner = (*S3Signer)(nil)
	_ ports.UploadSigner = Disabled{}
)
