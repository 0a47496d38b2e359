package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/welldanyogia/feedback-forms/internal/config"
)

// ArchivePrefix is the key prefix of every export archive.
const ArchivePrefix = "exports/"

// ObjectAPI is the subset of the S3 client the archiver uses.
type ObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// Presigner creates download links.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// Archive describes an uploaded export.
type Archive struct {
	Key       string        `json:"key"`
	URL       string        `json:"url"`
	ExpiresIn time.Duration `json:"expires_in"`
	Rows      int           `json:"rows"`
	Size      int           `json:"size_bytes"`
}

// Archiver stores CSV exports in an S3-compatible bucket.
type Archiver struct {
	client        ObjectAPI
	presign       Presigner
	bucket        string
	presignExpiry time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

// NewArchiver creates an archiver for the bucket in cfg. MinIO style
// endpoints without a scheme get http or https from UseSSL.
func NewArchiver(cfg config.StorageConfig, log *slog.Logger) *Archiver {
	endpointURL := cfg.Endpoint
	if !strings.HasPrefix(endpointURL, "http://") && !strings.HasPrefix(endpointURL, "https://") {
		protocol := "http"
		if cfg.UseSSL {
			protocol = "https"
		}
		endpointURL = protocol + "://" + endpointURL
	}

	client := s3.New(s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		BaseEndpoint: aws.String(endpointURL),
		UsePathStyle: true,
	})

	return newArchiver(client, s3.NewPresignClient(client), cfg.Bucket, cfg.PresignExpiry, log)
}

func newArchiver(client ObjectAPI, presign Presigner, bucket string, expiry time.Duration, log *slog.Logger) *Archiver {
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &Archiver{
		client:        client,
		presign:       presign,
		bucket:        bucket,
		presignExpiry: expiry,
		logger:        log,
		now:           time.Now,
	}
}

// Ping checks that the bucket is reachable.
func (a *Archiver) Ping(ctx context.Context) error {
	_, err := a.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("bucket %s unreachable: %w", a.bucket, err)
	}
	return nil
}

// ArchiveKey returns the object key for an export made at t.
func ArchiveKey(t time.Time, id uuid.UUID) string {
	return ArchivePrefix + t.UTC().Format("2006-01-02") + "/" + id.String() + ".csv"
}

// Upload writes the table as CSV to the bucket and returns a presigned
// download link.
func (a *Archiver) Upload(ctx context.Context, t *Table) (*Archive, error) {
	var buf bytes.Buffer
	if err := WriteCSV(&buf, t); err != nil {
		return nil, err
	}

	key := ArchiveKey(a.now(), uuid.New())
	size := buf.Len()

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:             aws.String(a.bucket),
		Key:                aws.String(key),
		Body:               bytes.NewReader(buf.Bytes()),
		ContentLength:      aws.Int64(int64(size)),
		ContentType:        aws.String("text/csv; charset=utf-8"),
		ContentDisposition: aws.String(`attachment; filename="feedback-export.csv"`),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload export %s: %w", key, err)
	}

	req, err := a.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(a.presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate pre-signed URL: %w", err)
	}

	a.logger.Info("export archived",
		slog.String("key", key),
		slog.Int("rows", t.Rows()),
		slog.Int("size", size),
	)

	return &Archive{
		Key:       key,
		URL:       req.URL,
		ExpiresIn: a.presignExpiry,
		Rows:      t.Rows(),
		Size:      size,
	}, nil
}

// Prune deletes archives last modified before cutoff and returns how many
// were removed.
func (a *Archiver) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	var stale []types.ObjectIdentifier

	paginator := s3.NewListObjectsV2Paginator(a.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(a.bucket),
		Prefix: aws.String(ArchivePrefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to list archives: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key != nil && obj.LastModified != nil && obj.LastModified.Before(cutoff) {
				stale = append(stale, types.ObjectIdentifier{Key: obj.Key})
			}
		}
	}

	// S3 accepts up to 1000 keys per DeleteObjects request
	const batchSize = 1000
	deleted := 0
	for i := 0; i < len(stale); i += batchSize {
		end := i + batchSize
		if end > len(stale) {
			end = len(stale)
		}
		batch := stale[i:end]

		out, err := a.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(a.bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return deleted, fmt.Errorf("failed to delete archives: %w", err)
		}
		deleted += len(batch) - len(out.Errors)
	}

	if deleted > 0 {
		a.logger.Info("pruned export archives", slog.Int("deleted", deleted))
	}
	return deleted, nil
}
