package s3backup

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/ConsultLedger/internal/pkg/env"
)

// Config holds the S3 configuration for audit ledger archives
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	BucketName      string
	EndpointURL     string // Optional for S3-compatible services
	Prefix          string
	Enabled         bool
}

// LoadConfig loads S3 configuration from environment variables
func LoadConfig() (*Config, error) {
	config := &Config{
		AccessKeyID:     env.GetEnv("S3_ACCESS_KEY_ID", ""),
		SecretAccessKey: env.GetEnv("S3_SECRET_ACCESS_KEY", ""),
		Region:          env.GetEnv("S3_REGION", "eu-central-1"),
		BucketName:      env.GetEnv("S3_BUCKET_NAME", ""),
		EndpointURL:     env.GetEnv("S3_ENDPOINT_URL", ""),
		Prefix:          env.GetEnv("S3_ARCHIVE_PREFIX", "ledger"),
		Enabled:         env.GetEnvBool("S3_ARCHIVE_ENABLED", false),
	}

	// Validate required fields if archiving is enabled
	if config.Enabled {
		if config.AccessKeyID == "" {
			return nil, errors.New("S3_ACCESS_KEY_ID is required when S3 archiving is enabled")
		}
		if config.SecretAccessKey == "" {
			return nil, errors.New("S3_SECRET_ACCESS_KEY is required when S3 archiving is enabled")
		}
		if config.BucketName == "" {
			return nil, errors.New("S3_BUCKET_NAME is required when S3 archiving is enabled")
		}
	}

	return config, nil
}

// IsEnabled returns true if S3 archiving is enabled
func (c *Config) IsEnabled() bool {
	return c.Enabled
}

// LedgerObjectKey builds the object key of a mapping's audit ledger snapshot.
// Format: <prefix>/<branch>/YYYY/MM/mapping-<id>-<unix>.json
func (c *Config) LedgerObjectKey(branch string, mappingID uint, at time.Time) string {
	if branch == "" {
		branch = "default"
	}
	at = at.UTC()
	return fmt.Sprintf("%s/%s/%04d/%02d/mapping-%d-%d.json", c.Prefix, branch, at.Year(), int(at.Month()), mappingID, at.Unix())
}

// GetAppEnv returns the current application environment
func GetAppEnv() string {
	return env.GetEnv("APP_ENV", "dev")
}

// GetBucketName returns the bucket name as configured (no automatic prefixing)
func (c *Config) GetBucketName() string {
	return c.BucketName
}
