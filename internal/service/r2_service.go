package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/h2non/filetype"
	config "github.com/maheshrc27/clipcast/configs"
)

const R2Scheme = "r2://"

// maxMirrorBytes bounds how much of a source video is buffered for upload.
const maxMirrorBytes = 512 << 20

type objectStore interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// R2Service stores mirrored videos in Cloudflare R2 and hands out presigned
// URLs for r2:// references.
type R2Service struct {
	bucket     string
	presignTTL time.Duration
	store      objectStore
	presign    presigner
	http       *http.Client
}

func NewR2Service(ctx context.Context, cfg config.R2) (*R2Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		return nil, fmt.Errorf("load r2 config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID))
	})
	return newR2Service(cfg, client, s3.NewPresignClient(client)), nil
}

func newR2Service(cfg config.R2, store objectStore, presign presigner) *R2Service {
	ttl := cfg.PresignTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &R2Service{
		bucket:     cfg.BucketName,
		presignTTL: ttl,
		store:      store,
		presign:    presign,
		http:       &http.Client{Timeout: 5 * time.Minute},
	}
}

// Resolve presigns r2:// references and passes any other reference through.
func (r *R2Service) Resolve(ctx context.Context, ref string) (string, error) {
	key, ok := strings.CutPrefix(ref, R2Scheme)
	if !ok {
		return ref, nil
	}
	req, err := r.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(r.presignTTL))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

func (r *R2Service) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := r.store.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(r.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Mirror copies the video at sourceURL into the bucket under key and returns
// its r2:// reference.
func (r *R2Service) Mirror(ctx context.Context, sourceURL, key string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", sourceURL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: status %d", sourceURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMirrorBytes+1))
	if err != nil {
		return "", fmt.Errorf("read %s: %w", sourceURL, err)
	}
	if len(data) > maxMirrorBytes {
		return "", errors.New("source video exceeds mirror size limit")
	}
	kind, err := filetype.Match(data)
	if err != nil || !filetype.IsVideo(data) {
		return "", fmt.Errorf("source %s is not a video", sourceURL)
	}
	if ext := kind.Extension; ext != "" && !strings.HasSuffix(key, "."+ext) {
		key += "." + ext
	}
	if err := r.Upload(ctx, key, data, kind.MIME.Value); err != nil {
		return "", err
	}
	return R2Scheme + key, nil
}
