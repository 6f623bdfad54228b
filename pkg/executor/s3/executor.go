// Package s3 implements a block executor that moves byte ranges between a
// local file and an S3 object.
//
// An upload is a multipart upload with one part per block: the part number
// is the block index plus one and the multipart upload id is the blob's
// session, so a resumed upload keeps adding parts to the same upload.
// Finalize lists the uploaded parts and completes the upload. A download
// fetches each block with a ranged GetObject and writes it at the same
// offset of the local file.
//
// Transient S3 errors (throttling, 5xx, timeouts) are retried with
// exponential backoff inside a block; anything else fails the block.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/afero"

	"github.com/marmos91/blobxfer/internal/logger"
	"github.com/marmos91/blobxfer/internal/telemetry"
	"github.com/marmos91/blobxfer/pkg/bufpool"
	"github.com/marmos91/blobxfer/pkg/controller"
	"github.com/marmos91/blobxfer/pkg/executor"
	"github.com/marmos91/blobxfer/pkg/metrics"
	"github.com/marmos91/blobxfer/pkg/transfer"
)

// Multipart upload limits. Every part but the last must be at least
// MinPartSize bytes.
const (
	MaxParts    = 10000
	MinPartSize = 5 << 20
	MaxPartSize = 5 << 30
)

// ErrInvalidURL is returned for endpoints that are not s3://bucket/key.
var ErrInvalidURL = errors.New("invalid s3 url")

// s3API is the subset of the S3 client used by the executor.
type s3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, in *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

var _ s3API = (*s3.Client)(nil)

var (
	_ controller.Planner   = (*Executor)(nil)
	_ controller.Preparer  = (*Executor)(nil)
	_ controller.Finalizer = (*Executor)(nil)
	_ controller.Aborter   = (*Executor)(nil)
)

// Config holds the S3 connection and retry settings.
type Config struct {
	// Region is the AWS region (optional, uses the SDK default if empty).
	Region string `mapstructure:"region" yaml:"region"`

	// Endpoint is the S3 endpoint URL, for S3-compatible services.
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`

	// ForcePathStyle forces path-style addressing (Localstack, MinIO).
	ForcePathStyle bool `mapstructure:"force_path_style" yaml:"force_path_style"`

	// AccessKeyID and SecretAccessKey set static credentials. When empty the
	// SDK's default credential chain is used.
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key"`

	// MaxRetries is the number of retries for transient errors.
	MaxRetries int `mapstructure:"max_retries" yaml:"max_retries" validate:"gte=0"`

	// InitialBackoff and MaxBackoff bound the delay between retries.
	InitialBackoff time.Duration `mapstructure:"initial_backoff" yaml:"initial_backoff"`
	MaxBackoff     time.Duration `mapstructure:"max_backoff" yaml:"max_backoff"`
}

// ApplyDefaults fills zero retry settings.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.InitialBackoff == 0 {
		c.InitialBackoff = 100 * time.Millisecond
	}
	if c.MaxBackoff == 0 {
		c.MaxBackoff = 2 * time.Second
	}
}

// Executor transfers blocks between a local afero filesystem and S3.
type Executor struct {
	client  s3API
	fs      afero.Fs
	metrics metrics.S3Metrics

	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// New creates an executor from an existing S3 client. A nil fsys uses the OS
// filesystem; a nil m disables metrics.
func New(client *s3.Client, fsys afero.Fs, cfg Config, m metrics.S3Metrics) *Executor {
	return newExecutor(client, fsys, cfg, m)
}

func newExecutor(client s3API, fsys afero.Fs, cfg Config, m metrics.S3Metrics) *Executor {
	cfg.ApplyDefaults()
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	return &Executor{
		client:         client,
		fs:             fsys,
		metrics:        m,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

// NewFromConfig creates an executor with an S3 client built from cfg.
func NewFromConfig(ctx context.Context, cfg Config, fsys afero.Fs, m metrics.S3Metrics) (*Executor, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return New(s3.NewFromConfig(awsCfg, s3Opts...), fsys, cfg, m), nil
}

// ParseURL splits s3://bucket/key into its bucket and key.
func ParseURL(url string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(url, "s3://")
	if !ok {
		return "", "", fmt.Errorf("%w: %q has no s3:// scheme", ErrInvalidURL, url)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("%w: %q needs a bucket and a key", ErrInvalidURL, url)
	}
	return bucket, key, nil
}

// IsURL reports whether endpoint names an S3 object.
func IsURL(endpoint string) bool {
	return strings.HasPrefix(endpoint, "s3://")
}

// endpoints resolves the local path and remote object of a blob.
func endpoints(blob *transfer.BlobTransfer) (local, bucket, key string, err error) {
	remote := blob.Destination
	local = blob.Source
	if blob.Type == transfer.TypeDownload {
		remote, local = blob.Source, blob.Destination
	}
	bucket, key, err = ParseURL(remote)
	return executor.LocalPath(local), bucket, key, err
}

// CheckBlocks rejects uploads whose blocks cannot be multipart parts: more
// than MaxParts blocks, a block above MaxPartSize, or a block other than the
// last below MinPartSize. Downloads take any split.
func (e *Executor) CheckBlocks(blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error {
	if blob.Type != transfer.TypeUpload {
		return nil
	}
	if len(blocks) > MaxParts {
		return fmt.Errorf("%d blocks exceed the %d part limit, use a larger chunk size", len(blocks), MaxParts)
	}
	last := 0
	for _, b := range blocks {
		if b.Index > last {
			last = b.Index
		}
	}
	for _, b := range blocks {
		if b.Len() > MaxPartSize {
			return fmt.Errorf("block %d has %d bytes, above the %d byte part limit, use a smaller chunk size",
				b.Index, b.Len(), int64(MaxPartSize))
		}
		if b.Index != last && b.Len() < MinPartSize {
			return fmt.Errorf("block %d has %d bytes, below the %d byte minimum part size, use a larger chunk size",
				b.Index, b.Len(), MinPartSize)
		}
	}
	return nil
}

// Prepare opens the multipart upload of an upload, or checks the object and
// allocates the local file of a download. An upload that already has a
// session keeps it.
func (e *Executor) Prepare(ctx context.Context, blob *transfer.BlobTransfer) (string, error) {
	local, bucket, key, err := endpoints(blob)
	if err != nil {
		return "", err
	}

	switch blob.Type {
	case transfer.TypeUpload:
		info, err := e.fs.Stat(local)
		if err != nil {
			return "", fmt.Errorf("stat source: %w", err)
		}
		if info.Size() <= blob.EndRange {
			return "", fmt.Errorf("source %s has %d bytes, transfer needs %d", local, info.Size(), blob.EndRange+1)
		}
		if blob.SessionID != "" {
			logger.DebugCtx(ctx, "Resuming multipart upload", logger.KeySession, blob.SessionID)
			return blob.SessionID, nil
		}

		out, err := retry(ctx, e, "CreateMultipartUpload", bucket, key, func() (*s3.CreateMultipartUploadOutput, error) {
			return e.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
			})
		})
		if err != nil {
			return "", fmt.Errorf("create multipart upload: %w", err)
		}
		uploadID := aws.ToString(out.UploadId)
		logger.InfoCtx(ctx, "Multipart upload created",
			logger.KeyBucket, bucket, logger.KeyKey, key, logger.KeySession, uploadID)
		return uploadID, nil

	case transfer.TypeDownload:
		size, err := e.headObject(ctx, bucket, key)
		if err != nil {
			return "", err
		}
		if size <= blob.EndRange {
			return "", fmt.Errorf("object s3://%s/%s has %d bytes, transfer needs %d", bucket, key, size, blob.EndRange+1)
		}
		if err := executor.PrepareFile(e.fs, local, blob.EndRange+1); err != nil {
			return "", fmt.Errorf("prepare destination: %w", err)
		}
		return "", nil

	default:
		return "", fmt.Errorf("unsupported transfer type %s", blob.Type)
	}
}

// ObjectSize returns the size in bytes of the object named by an s3:// url.
func (e *Executor) ObjectSize(ctx context.Context, url string) (int64, error) {
	bucket, key, err := ParseURL(url)
	if err != nil {
		return 0, err
	}
	return e.headObject(ctx, bucket, key)
}

func (e *Executor) headObject(ctx context.Context, bucket, key string) (int64, error) {
	out, err := retry(ctx, e, "HeadObject", bucket, key, func() (*s3.HeadObjectOutput, error) {
		return e.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
		})
	})
	if err != nil {
		if isNotFoundError(err) {
			return 0, fmt.Errorf("object s3://%s/%s does not exist: %w", bucket, key, err)
		}
		return 0, fmt.Errorf("head object: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Transfer moves one block.
func (e *Executor) Transfer(ctx context.Context, blob *transfer.BlobTransfer, block *transfer.BlockTransfer) error {
	local, bucket, key, err := endpoints(blob)
	if err != nil {
		return err
	}
	if blob.Type == transfer.TypeDownload {
		return e.download(ctx, local, bucket, key, block)
	}
	return e.uploadPart(ctx, blob.SessionID, local, bucket, key, block)
}

func (e *Executor) uploadPart(ctx context.Context, uploadID, local, bucket, key string, block *transfer.BlockTransfer) error {
	if uploadID == "" {
		return errors.New("upload has no multipart session")
	}
	part := block.Index + 1
	if part > MaxParts {
		return fmt.Errorf("block %d exceeds the %d part limit, use a larger chunk size", block.Index, MaxParts)
	}

	data, err := executor.ReadRange(e.fs, local, block.StartRange, block.EndRange)
	if err != nil {
		return fmt.Errorf("read block: %w", err)
	}
	defer bufpool.Put(data)

	out, err := retry(ctx, e, "UploadPart", bucket, key, func() (*s3.UploadPartOutput, error) {
		return e.client.UploadPart(ctx, &s3.UploadPartInput{
			Bucket:        aws.String(bucket),
			Key:           aws.String(key),
			UploadId:      aws.String(uploadID),
			PartNumber:    aws.Int32(int32(part)),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
		})
	})
	if err != nil {
		return fmt.Errorf("upload part %d: %w", part, err)
	}
	metrics.RecordBytes(e.metrics, "UploadPart", int64(len(data)))
	logger.DebugCtx(ctx, "Part uploaded", logger.KeyPart, part, "etag", aws.ToString(out.ETag))
	return nil
}

func (e *Executor) download(ctx context.Context, local, bucket, key string, block *transfer.BlockTransfer) error {
	out, err := retry(ctx, e, "GetObject", bucket, key, func() (*s3.GetObjectOutput, error) {
		return e.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(bucket),
			Key:    aws.String(key),
			Range:  aws.String(fmt.Sprintf("bytes=%d-%d", block.StartRange, block.EndRange)),
		})
	})
	if err != nil {
		return fmt.Errorf("get object range %d-%d: %w", block.StartRange, block.EndRange, err)
	}
	defer func() { _ = out.Body.Close() }()

	f, err := e.fs.OpenFile(local, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	if err := executor.CopyRange(ctx, f, block.StartRange, out.Body, block.Len()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write range %d-%d: %w", block.StartRange, block.EndRange, err)
	}
	metrics.RecordBytes(e.metrics, "GetObject", block.Len())
	return f.Close()
}

// Finalize completes the multipart upload of an upload from the parts S3
// reports. Every block must have its part. Downloads only check the local
// file.
func (e *Executor) Finalize(ctx context.Context, blob *transfer.BlobTransfer, blocks []*transfer.BlockTransfer) error {
	local, bucket, key, err := endpoints(blob)
	if err != nil {
		return err
	}

	if blob.Type == transfer.TypeDownload {
		info, err := e.fs.Stat(local)
		if err != nil {
			return err
		}
		if info.Size() <= blob.EndRange {
			return fmt.Errorf("%w: destination %s has %d bytes", executor.ErrShortTransfer, local, info.Size())
		}
		return nil
	}

	etags, err := e.listParts(ctx, bucket, key, blob.SessionID)
	if err != nil {
		return err
	}

	parts := make([]types.CompletedPart, 0, len(blocks))
	for _, b := range blocks {
		num := int32(b.Index + 1)
		etag, ok := etags[num]
		if !ok {
			return fmt.Errorf("part %d of block %s is missing from upload %s", num, b.ID, blob.SessionID)
		}
		parts = append(parts, types.CompletedPart{PartNumber: aws.Int32(num), ETag: aws.String(etag)})
	}
	sort.Slice(parts, func(i, j int) bool { return *parts[i].PartNumber < *parts[j].PartNumber })

	_, err = retry(ctx, e, "CompleteMultipartUpload", bucket, key, func() (*s3.CompleteMultipartUploadOutput, error) {
		return e.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
			Bucket:          aws.String(bucket),
			Key:             aws.String(key),
			UploadId:        aws.String(blob.SessionID),
			MultipartUpload: &types.CompletedMultipartUpload{Parts: parts},
		})
	})
	if err != nil {
		return fmt.Errorf("complete multipart upload: %w", err)
	}
	logger.InfoCtx(ctx, "Multipart upload completed",
		logger.KeyBucket, bucket, logger.KeyKey, key, "parts", len(parts))
	return nil
}

func (e *Executor) listParts(ctx context.Context, bucket, key, uploadID string) (map[int32]string, error) {
	etags := make(map[int32]string)
	p := s3.NewListPartsPaginator(e.client, &s3.ListPartsInput{
		Bucket:   aws.String(bucket),
		Key:      aws.String(key),
		UploadId: aws.String(uploadID),
	})
	for p.HasMorePages() {
		page, err := retry(ctx, e, "ListParts", bucket, key, func() (*s3.ListPartsOutput, error) {
			return p.NextPage(ctx)
		})
		if err != nil {
			return nil, fmt.Errorf("list parts: %w", err)
		}
		for _, part := range page.Parts {
			etags[aws.ToInt32(part.PartNumber)] = aws.ToString(part.ETag)
		}
	}
	return etags, nil
}

// Abort releases the multipart upload of an unfinished upload. An upload
// that no longer exists is not an error.
func (e *Executor) Abort(ctx context.Context, blob *transfer.BlobTransfer) error {
	if blob.Type != transfer.TypeUpload || blob.SessionID == "" {
		return nil
	}
	_, bucket, key, err := endpoints(blob)
	if err != nil {
		return err
	}

	_, err = retry(ctx, e, "AbortMultipartUpload", bucket, key, func() (*s3.AbortMultipartUploadOutput, error) {
		return e.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
			Bucket:   aws.String(bucket),
			Key:      aws.String(key),
			UploadId: aws.String(blob.SessionID),
		})
	})
	if err != nil && !isNoSuchUpload(err) {
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	logger.InfoCtx(ctx, "Multipart upload aborted", logger.KeySession, blob.SessionID)
	return nil
}

// retry runs call until it succeeds, fails with a non-transient error, or
// the retries are exhausted. Each attempt is observed as operation, and all
// attempts share one span.
func retry[T any](ctx context.Context, e *Executor, operation, bucket, key string, call func() (T, error)) (out T, err error) {
	ctx, span := telemetry.StartS3Span(ctx, operation, bucket, key)
	defer func() {
		telemetry.RecordError(ctx, err)
		span.End()
	}()

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := e.backoff(attempt - 1)
			logger.DebugCtx(ctx, "S3 call retrying", logger.KeyOperation, operation, "attempt", attempt, "backoff", backoff)
			telemetry.AddEvent(ctx, telemetry.EventRetry, telemetry.Attempt(attempt))
			select {
			case <-ctx.Done():
				return out, ctx.Err()
			case <-time.After(backoff):
			}
		}

		start := time.Now()
		out, err = call()
		metrics.ObserveOperation(e.metrics, operation, time.Since(start), err)
		if err == nil || !isRetryableError(err) {
			return out, err
		}
	}
	return out, fmt.Errorf("%s failed after %d attempts: %w", operation, e.maxRetries+1, err)
}

func (e *Executor) backoff(attempt int) time.Duration {
	d := e.initialBackoff << attempt
	if d <= 0 || d > e.maxBackoff {
		return e.maxBackoff
	}
	return d
}
