// Package s3 stores document files in an S3-compatible bucket (AWS S3,
// MinIO).
package s3

import (
	"fmt"
)

// Config contains configuration for the S3 storage backend.
type Config struct {
	// S3 Connection Settings
	Endpoint  string `hcl:"endpoint,optional"`   // Custom endpoint URL for MinIO and similar services
	Region    string `hcl:"region"`              // AWS region (e.g., "us-west-2")
	Bucket    string `hcl:"bucket"`              // S3 bucket name
	Prefix    string `hcl:"prefix,optional"`     // Optional key prefix (e.g., "documents/")
	AccessKey string `hcl:"access_key,optional"` // Access key ID
	SecretKey string `hcl:"secret_key,optional"` // Secret access key

	RequestTimeoutSeconds int  `hcl:"request_timeout_seconds,optional"` // Request timeout (default: 30)
	InsecureSkipVerify    bool `hcl:"insecure_skip_verify,optional"`    // Skip SSL certificate verification (for testing only)

	DefaultContentType string `hcl:"default_content_type,optional"` // Default: "application/octet-stream"

	// VerifyBucket checks bucket access when the backend is created.
	VerifyBucket bool `hcl:"verify_bucket,optional"`
}

// Validate validates the S3 configuration.
func (c *Config) Validate() error {
	if c.Region == "" {
		return fmt.Errorf("region is required")
	}
	if c.Bucket == "" {
		return fmt.Errorf("bucket is required")
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		return fmt.Errorf("access_key and secret_key must be set together")
	}
	return nil
}

// SetDefaults sets default values for optional configuration fields.
func (c *Config) SetDefaults() {
	if c.RequestTimeoutSeconds == 0 {
		c.RequestTimeoutSeconds = 30
	}
	if c.DefaultContentType == "" {
		c.DefaultContentType = "application/octet-stream"
	}
}
