package initializers

import (
	"context"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/swapmybytes/backend/config"
)

// NewS3Client builds an S3 client for the artifact mirror. Returns nil when
// no bucket is configured; mirroring is optional.
func NewS3Client(ctx context.Context, cfg config.Config) (*s3.Client, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
	)
	if err != nil {
		return nil, err
	}
	return s3.NewFromConfig(awsCfg), nil
}
