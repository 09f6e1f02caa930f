// Package s3 implements objectstore.Store on top of aws-sdk-go. It works with
// AWS proper and with S3-compatible servers such as MinIO (path-style
// addressing is forced when an endpoint is given).
package s3

import (
	"context"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"
)

// Config holds connection settings.
type Config struct {
	Endpoint  string // optional, e.g. http://localhost:9000
	Region    string
	AccessKey string // empty means the SDK default credential chain
	SecretKey string
	Prefix    string // listing prefix
}

// Store is an S3-backed objectstore.Store.
type Store struct {
	client     *s3.S3
	downloader *s3manager.Downloader
	prefix     string
}

// New builds a session and the clients used for listing and downloading.
func New(cfg Config) (*Store, error) {
	awsCfg := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.Region == "" {
		awsCfg.Region = aws.String("us-east-1")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	if cfg.AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, errors.Errorf("s3: create session: %w", err)
	}
	return &Store{
		client:     s3.New(sess),
		downloader: s3manager.NewDownloader(sess),
		prefix:     cfg.Prefix,
	}, nil
}

// List pages through ListObjectsV2 and returns every non-directory key.
func (s *Store) List(ctx context.Context, bucket string) ([]string, error) {
	log := zerolog.Ctx(ctx).With().Str("component", "s3").Str("bucket", bucket).Logger()

	var (
		keys  []string
		token *string
		pages int
	)
	for {
		in := &s3.ListObjectsV2Input{
			Bucket:            aws.String(bucket),
			ContinuationToken: token,
		}
		if s.prefix != "" {
			in.Prefix = aws.String(s.prefix)
		}
		out, err := s.client.ListObjectsV2WithContext(ctx, in)
		if err != nil {
			return nil, errors.Errorf("s3: list %s: %w", bucket, err)
		}
		pages++
		for _, obj := range out.Contents {
			key := aws.StringValue(obj.Key)
			if strings.HasSuffix(key, "/") {
				continue
			}
			keys = append(keys, key)
		}
		if !aws.BoolValue(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	log.Debug().Int("pages", pages).Int("keys", len(keys)).Msg("listed bucket")
	return keys, nil
}

// Fetch downloads one object into w.
func (s *Store) Fetch(ctx context.Context, bucket, key string, w io.WriterAt) (int64, error) {
	n, err := s.downloader.DownloadWithContext(ctx, w, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, errors.Errorf("s3: get s3://%s/%s: %w", bucket, key, err)
	}
	return n, nil
}
