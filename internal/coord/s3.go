package coord

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"
)

const (
	// defaultURLExpiry matches the upstream presign tooling: part URLs stay
	// valid long enough for large files on slow links.
	defaultURLExpiry = 4 * time.Hour

	// presignConcurrency bounds parallel presign calls for upfront sessions.
	presignConcurrency = 8
)

// S3Config configures the self-issuing coordinator for clients that hold
// their own credentials.
type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string // optional, for MinIO and friends
	AccessKey    string // optional, falls back to the default chain
	SecretKey    string
	SessionToken string
	URLExpiry    time.Duration
}

// S3Issuer implements Coordinator directly against S3: it creates the
// multipart upload, presigns one upload_part URL per part, and performs the
// complete/abort calls itself. No coordination server involved.
type S3Issuer struct {
	client    *s3.Client
	presigner *s3.PresignClient
	cfg       *S3Config
}

// NewS3Issuer builds an issuer from the given config, using the default
// credential chain when no static keys are set.
func NewS3Issuer(ctx context.Context, cfg *S3Config) (*S3Issuer, error) {
	if cfg == nil || cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 issuer: bucket is required")
	}
	if cfg.URLExpiry == 0 {
		cfg.URLExpiry = defaultURLExpiry
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   presignConcurrency * 2,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
			ForceAttemptHTTP2:     true,
		},
		Timeout: 30 * time.Second,
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithHTTPClient(httpClient),
	}
	if cfg.AccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, cfg.SessionToken),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("s3 issuer: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &S3Issuer{
		client:    client,
		presigner: s3.NewPresignClient(client),
		cfg:       cfg,
	}, nil
}

func (s *S3Issuer) CreateSession(ctx context.Context, params *CreateSessionParams) (*Session, error) {
	key := params.FileName
	result, err := s.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket:      &s.cfg.Bucket,
		Key:         &key,
		ContentType: optionalString(params.FileType),
	})
	if err != nil {
		return nil, fmt.Errorf("s3 issuer: create multipart upload: %w", err)
	}

	session := &Session{
		ID:      aws.ToString(result.UploadId),
		Locator: Locator{Container: s.cfg.Bucket, Key: key},
	}

	if params.TotalParts > 0 {
		parts := make([]PartAuthorization, params.TotalParts)
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(presignConcurrency)
		for i := 0; i < params.TotalParts; i++ {
			g.Go(func() error {
				url, err := s.presignPart(gctx, session.ID, key, i+1)
				if err != nil {
					return err
				}
				parts[i] = PartAuthorization{PartNumber: i + 1, URL: url}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			// best effort, the upload never started
			_, _ = s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
				Bucket:   &s.cfg.Bucket,
				Key:      &key,
				UploadId: &session.ID,
			})
			return nil, err
		}
		session.Parts = parts
	}

	return session, nil
}

func (s *S3Issuer) PartToken(ctx context.Context, params *PartTokenParams) (string, error) {
	return s.presignPart(ctx, params.SessionID, params.Locator.Key, params.PartNumber)
}

func (s *S3Issuer) presignPart(ctx context.Context, uploadID, key string, partNumber int) (string, error) {
	req, err := s.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     &s.cfg.Bucket,
		Key:        &key,
		UploadId:   &uploadID,
		PartNumber: aws.Int32(int32(partNumber)),
	}, func(opts *s3.PresignOptions) {
		opts.Expires = s.cfg.URLExpiry
	})
	if err != nil {
		return "", fmt.Errorf("s3 issuer: presign part %d: %w", partNumber, err)
	}
	return req.URL, nil
}

func (s *S3Issuer) Finalize(ctx context.Context, params *FinalizeParams) (*FinalizeResult, error) {
	completed := make([]types.CompletedPart, len(params.Parts))
	for i, part := range params.Parts {
		completed[i] = types.CompletedPart{
			ETag:       aws.String(part.ETag),
			PartNumber: aws.Int32(int32(part.PartNumber)),
		}
	}

	res, err := s.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   &s.cfg.Bucket,
		Key:      &params.Locator.Key,
		UploadId: &params.SessionID,
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completed,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("s3 issuer: complete multipart upload: %w", err)
	}

	return &FinalizeResult{
		Location: aws.ToString(res.Location),
		ETag:     strings.ReplaceAll(aws.ToString(res.ETag), "\"", ""),
	}, nil
}

func (s *S3Issuer) Cancel(ctx context.Context, params *CancelParams) error {
	_, err := s.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   &s.cfg.Bucket,
		Key:      &params.Locator.Key,
		UploadId: &params.SessionID,
	})
	if err != nil {
		return fmt.Errorf("s3 issuer: abort multipart upload: %w", err)
	}
	return nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ Coordinator = (*S3Issuer)(nil)
