// Package remote uploads snapshot files to an S3-compatible bucket (AWS S3,
// Cloudflare R2, MinIO).
package remote

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const DefaultRegion = "auto"

type Config struct {
	// Empty means the AWS default endpoint for Region.
	Endpoint        string
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Debug           bool
}

// ConfigFromEnv reads the KU_S3_* variables.
func ConfigFromEnv(getenv func(string) string) *Config {
	cfg := &Config{
		Endpoint:        getenv("KU_S3_ENDPOINT"),
		Bucket:          getenv("KU_S3_BUCKET"),
		Region:          getenv("KU_S3_REGION"),
		AccessKeyID:     getenv("KU_S3_ACCESS_KEY_ID"),
		SecretAccessKey: getenv("KU_S3_SECRET_ACCESS_KEY"),
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return cfg
}

func (c *Config) Validate() error {
	var missing []string
	if c.Bucket == "" {
		missing = append(missing, "KU_S3_BUCKET")
	}
	if c.AccessKeyID == "" {
		missing = append(missing, "KU_S3_ACCESS_KEY_ID")
	}
	if c.SecretAccessKey == "" {
		missing = append(missing, "KU_S3_SECRET_ACCESS_KEY")
	}
	if len(missing) > 0 {
		return fmt.Errorf("S3 upload not configured, missing %s", strings.Join(missing, ", "))
	}
	if c.Endpoint != "" && !strings.HasPrefix(c.Endpoint, "https://") && !strings.HasPrefix(c.Endpoint, "http://") {
		return fmt.Errorf("KU_S3_ENDPOINT must be an http(s) URL, got %q", c.Endpoint)
	}
	return nil
}

type Uploader interface {
	UploadLocalFile(ctx context.Context, key, filePath string) error
}

// Client wraps the S3 client for one bucket.
type Client struct {
	Client *s3.Client
	Bucket string
}

func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	options := []func(*config.LoadOptions) error{
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
		config.WithRegion(cfg.Region),
	}
	if cfg.Debug {
		options = append(options, config.WithClientLogMode(aws.LogRetries|aws.LogRequest|aws.LogResponse))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, options...)
	if err != nil {
		return nil, fmt.Errorf("failed to load S3 config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return &Client{Client: client, Bucket: cfg.Bucket}, nil
}

func contentType(key string) string {
	if strings.HasSuffix(key, ".yaml") {
		return "application/yaml"
	}
	return "text/plain; charset=utf-8"
}

// UploadLocalFile streams a file from disk to key.
func (c *Client) UploadLocalFile(ctx context.Context, key, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return err
	}
	_, err = c.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.Bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentLength: aws.Int64(stat.Size()),
		ContentType:   aws.String(contentType(key)),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// ObjectKey is <host>/<timestamp>/<file name>.
func ObjectKey(host, timestamp, file string) string {
	return path.Join(host, timestamp, filepath.Base(file))
}

// UploadFiles uploads every file under <host>/<timestamp>/ and returns the
// keys written. It stops at the first failure.
func UploadFiles(ctx context.Context, u Uploader, host, timestamp string, files []string) ([]string, error) {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		key := ObjectKey(host, timestamp, f)
		if err := u.UploadLocalFile(ctx, key, f); err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}
	return keys, nil
}
