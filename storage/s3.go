package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DefaultS3Timeout bounds every block request
const DefaultS3Timeout = 30 * time.Second

// S3API is the subset of the s3 client the device uses
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an [S3Device]
type S3Config struct {
	Bucket    string
	KeyPrefix string
	Timeout   time.Duration // Per request; zero uses DefaultS3Timeout
}

// S3Device stores each block as an object under KeyPrefix. Missing objects
// read as zeros.
type S3Device struct {
	geometry
	client S3API
	cfg    S3Config
}

func NewS3Device(client S3API, cfg S3Config, blockSize int, blockCount uint64) *S3Device {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultS3Timeout
	}
	return &S3Device{
		geometry: geometry{blockSize: blockSize, blockCount: blockCount},
		client:   client,
		cfg:      cfg,
	}
}

func (d *S3Device) key(id uint64) string {
	return fmt.Sprintf("%s%016x", d.cfg.KeyPrefix, id)
}

func (d *S3Device) ReadBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	out, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.cfg.Bucket),
		Key:    aws.String(d.key(id)),
	})
	if isNotFoundError(err) {
		clear(buf)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to get block %d: %w", id, err)
	}
	defer out.Body.Close()

	n, err := io.ReadFull(out.Body, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		clear(buf[n:])
		return nil
	}
	return err
}

func (d *S3Device) WriteBlock(id uint64, buf []byte) error {
	if err := d.check(id, buf); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.Timeout)
	defer cancel()

	_, err := d.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(d.cfg.Bucket),
		Key:           aws.String(d.key(id)),
		Body:          bytes.NewReader(buf),
		ContentLength: aws.Int64(int64(len(buf))),
	})
	if err != nil {
		return fmt.Errorf("failed to put block %d: %w", id, err)
	}
	return nil
}

func (d *S3Device) Close() error {
	return nil
}

// isNotFoundError returns true if the error indicates the object doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound" || code == "404"
	}
	return false
}
