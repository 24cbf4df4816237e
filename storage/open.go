package storage

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/brettbedarf/treefs/config"
)

func isNotFormatted(err error) bool {
	return errors.Is(err, ErrNotFormatted)
}

// NewDevice opens the block device selected by cfg.Backend
func NewDevice(ctx context.Context, cfg config.StoreConfig) (BlockDevice, error) {
	count := uint64(cfg.BlockCount)
	switch cfg.Backend {
	case config.MemoryBackend:
		return NewMemoryDevice(cfg.BlockSize, count), nil
	case config.FileBackend:
		return OpenFileDevice(cfg.ImagePath, cfg.BlockSize, count)
	case config.BadgerBackend:
		return OpenBadgerDevice(cfg.BadgerDir, cfg.BlockSize, count)
	case config.S3Backend:
		client, err := newS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Device(client, S3Config{Bucket: cfg.S3Bucket, KeyPrefix: cfg.S3Prefix}, cfg.BlockSize, count), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}

func newS3Client(ctx context.Context, cfg config.StoreConfig) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = &cfg.S3Endpoint
			o.UsePathStyle = true
		}
	}), nil
}
