package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	cfg "github.com/maheshrc27/crossflow/configs"
)

// ArchiveService copies ingested media into Cloudflare R2 Storage.
// Instagram CDN URLs expire, so the archive is the durable copy.
type ArchiveService struct {
	config cfg.Config
}

func NewArchiveService(cfg cfg.Config) *ArchiveService {
	return &ArchiveService{config: cfg}
}

// Enabled reports whether R2 credentials are configured. Archival is
// optional and ingestion proceeds without it.
func (r *ArchiveService) Enabled() bool {
	return r.config.R2.AccountID != "" && r.config.R2.AccessKey != "" && r.config.R2.SecretKey != ""
}

func (r *ArchiveService) R2Client() *s3.Client {
	cfg, err := config.LoadDefaultConfig(context.TODO(),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		log.Fatal(err)
	}

	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
	})
}

// Function to upload file to Cloudflare R2 Storage
func (r *ArchiveService) UploadToR2(ctx context.Context, key string, file []byte, filetype string) error {
	input := &s3.PutObjectInput{
		Bucket:      aws.String(r.config.R2.BucketName),
		Key:         aws.String(key),
		Body:        bytes.NewReader(file),
		ContentType: aws.String(filetype),
	}

	r2Client := r.R2Client()

	_, err := r2Client.PutObject(ctx, input)
	if err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}
