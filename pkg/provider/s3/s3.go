// Package s3 implements the storage provider contract over Amazon S3 or any
// S3-compatible object store.
//
// Object stores have no folders, so the adapter synthesizes them from key
// prefixes:
//   - a folder remote id is its full key prefix, ending with "/"
//   - a file remote id is its full object key
//   - the root ("") maps to the configured prefix
//
// Folders created through the adapter are materialized as zero-byte marker
// objects ("docs/") so that empty folders survive a listing.
package s3

import (
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	awsConfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/marmos91/dittovfs/internal/logger"
	"github.com/marmos91/dittovfs/pkg/provider"
)

// Type is the registry type tag.
const Type = "s3"

// Config is the decoded adapter configuration.
type Config struct {
	Bucket          string        `mapstructure:"bucket" validate:"required"`
	Region          string        `mapstructure:"region" validate:"required"`
	Endpoint        string        `mapstructure:"endpoint" validate:"omitempty,url"`
	ForcePathStyle  bool          `mapstructure:"force_path_style"`
	Prefix          string        `mapstructure:"prefix"`
	AccessKeyID     string        `mapstructure:"access_key_id" validate:"required"`
	SecretAccessKey string        `mapstructure:"secret_access_key" validate:"required"`
	MaxRetries      int           `mapstructure:"max_retries" validate:"gte=0,lte=20"`
	PresignExpiry   time.Duration `mapstructure:"presign_expiry" validate:"gte=0"`
}

var schema = provider.Schema{
	Type: Type,
	Fields: []provider.Field{
		{Name: "bucket", Required: true},
		{Name: "region", Required: true},
		{Name: "endpoint"},
		{Name: "force_path_style", Default: false},
		{Name: "prefix", Default: ""},
		{Name: "access_key_id", Required: true, Sensitive: true},
		{Name: "secret_access_key", Required: true, Sensitive: true},
		{Name: "max_retries", Default: 3},
		{Name: "presign_expiry", Default: "15m"},
	},
}

// Schema returns the config schema.
func Schema() provider.Schema { return schema }

// Entry returns the registry entry for the S3 adapter.
func Entry() provider.Entry {
	return provider.Entry{
		Type:        Type,
		DisplayName: "Amazon S3 / S3-compatible",
		AuthType:    provider.AuthAPIKey,
		Schema:      schema,
		Factory:     func() provider.StorageProvider { return New() },
	}
}

// Provider is the S3 adapter. It is not safe for use after Cleanup.
type Provider struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	prefix    string
	region    string
	expiry    time.Duration
}

var (
	_ provider.StorageProvider     = (*Provider)(nil)
	_ provider.ChunkedUploader     = (*Provider)(nil)
	_ provider.AccountInfoProvider = (*Provider)(nil)
)

// New creates an uninitialized adapter.
func New() *Provider {
	return &Provider{}
}

func (p *Provider) Type() string { return Type }

// Initialize decodes config and builds the S3 client. No request is sent;
// reachability is checked by TestConnection.
func (p *Provider) Initialize(ctx context.Context, config map[string]any) error {
	var cfg Config
	if err := schema.Decode(config, &cfg); err != nil {
		return err
	}

	opts := []func(*awsConfig.LoadOptions) error{
		awsConfig.WithRegion(cfg.Region),
		awsConfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for static credentials)
		)),
		awsConfig.WithRetryer(func() aws.Retryer {
			return retry.NewStandard(func(o *retry.StandardOptions) {
				o.MaxAttempts = cfg.MaxRetries + 1
			})
		}),
	}

	awsCfg, err := awsConfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return provider.Wrap(Type, "initialize", fmt.Errorf("failed to load AWS config: %w", err))
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO, Localstack and most S3-compatible services need path-style
			o.UsePathStyle = true
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	p.client = client
	p.presigner = s3.NewPresignClient(client)
	p.bucket = cfg.Bucket
	p.prefix = normalizePrefix(cfg.Prefix)
	p.region = cfg.Region
	p.expiry = cfg.PresignExpiry

	logger.Debug("S3 provider initialized: bucket=%s, region=%s, prefix=%s", p.bucket, p.region, p.prefix)
	return nil
}

func (p *Provider) ready(op string) error {
	if p.client == nil {
		return &provider.ProviderError{Type: Type, Op: op, Message: "provider not initialized"}
	}
	return nil
}

// TestConnection checks bucket access with HeadBucket.
func (p *Provider) TestConnection(ctx context.Context) bool {
	if p.ready("test") != nil {
		return false
	}
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.bucket)})
	if err != nil {
		logger.Debug("S3 connection test failed for bucket %s: %v", p.bucket, err)
		return false
	}
	return true
}

// GetAccountInfo reports the bucket as the account name. Access keys carry no
// e-mail identity.
func (p *Provider) GetAccountInfo(ctx context.Context) (provider.AccountInfo, error) {
	if err := p.ready("account"); err != nil {
		return provider.AccountInfo{}, err
	}
	return provider.AccountInfo{Name: fmt.Sprintf("%s (%s)", p.bucket, p.region)}, nil
}

// Cleanup drops the client. The SDK client holds no resources that need an
// explicit close.
func (p *Provider) Cleanup() error {
	p.client = nil
	p.presigner = nil
	return nil
}

// folderPrefix maps a folder remote id to its key prefix.
func (p *Provider) folderPrefix(folderID string) string {
	if folderID == "" {
		return p.prefix
	}
	return normalizePrefix(folderID)
}

// inScope reports whether key lies under the configured prefix.
func (p *Provider) inScope(key string) bool {
	return strings.HasPrefix(key, p.prefix)
}

// parentOf returns the folder remote id containing key, "" for the root.
func (p *Provider) parentOf(key string) string {
	trimmed := strings.TrimSuffix(key, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	parent := trimmed[:idx+1]
	if parent == p.prefix {
		return ""
	}
	return parent
}

func normalizePrefix(prefix string) string {
	prefix = strings.TrimPrefix(prefix, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix
}

// baseName returns the last path segment of a key or prefix.
func baseName(key string) string {
	return path.Base(strings.TrimSuffix(key, "/"))
}
