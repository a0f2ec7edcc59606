// Package boot holds the shared startup wiring for the retouch commands:
// AWS config, the configured edit store, the metrics sink and the startup
// log line.
package boot

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	"github.com/fpang/beauty-retouch/internal/config"
	"github.com/fpang/beauty-retouch/internal/logging"
	"github.com/fpang/beauty-retouch/internal/metrics"
	"github.com/fpang/beauty-retouch/internal/store"
)

// InitAWS loads the default AWS config.
func InitAWS(ctx context.Context) (aws.Config, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}
	log.Debug().Str("region", cfg.Region).Msg("AWS config loaded")
	return cfg, nil
}

// NewStore builds the edit store selected by cfg.Store.Kind. The dynamo
// store gets an S3 image bucket when one is configured.
func NewStore(ctx context.Context, cfg *config.Config) (store.EditStore, error) {
	switch cfg.Store.Kind {
	case config.StoreFile:
		return store.NewFileStore(cfg.Store.Dir)
	case config.StoreDynamo:
		awsCfg, err := InitAWS(ctx)
		if err != nil {
			return nil, err
		}
		opts := []store.DynamoOption{store.WithTTL(cfg.Store.TTL)}
		if cfg.Store.Bucket != "" {
			opts = append(opts, store.WithImageBucket(s3.NewFromConfig(awsCfg), cfg.Store.Bucket))
		} else {
			log.Warn().Str("table", cfg.Store.Table).Msg("No S3 bucket configured, working images will not be saved")
		}
		return store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.Table, opts...), nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Store.Kind)
	}
}

// NewMetrics returns an EMF sink writing to out when metrics are enabled,
// or a discarding sink otherwise.
func NewMetrics(cfg *config.Config, out io.Writer) *metrics.Sink {
	if !cfg.Metrics.Enabled {
		return metrics.Discard()
	}
	return metrics.NewSink(cfg.Metrics.Namespace, out)
}

// StartupLog is a convenience wrapper for the startup logger, pre-filled
// with the resources cfg points at.
func StartupLog(name string, initStart time.Time, cfg *config.Config) *logging.StartupLogger {
	l := logging.NewStartupLogger(name).
		InitDuration(time.Since(initStart)).
		Config("storeKind", cfg.Store.Kind).
		Feature("metrics", cfg.Metrics.Enabled)
	switch cfg.Store.Kind {
	case config.StoreFile:
		l.Directory("store", cfg.Store.Dir)
	case config.StoreDynamo:
		l.DynamoTable("edits", cfg.Store.Table)
		if cfg.Store.Bucket != "" {
			l.S3Bucket("images", cfg.Store.Bucket)
		}
	}
	return l
}
