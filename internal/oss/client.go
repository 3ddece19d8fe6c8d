// Package oss wires the object store, multipart coordinator, lifecycle
// manager and presigned URL issuer around one S3 client.
package oss

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/inventory"
	"github.com/eniz1806/VaultOSS/internal/lifecycle"
	"github.com/eniz1806/VaultOSS/internal/metrics"
	"github.com/eniz1806/VaultOSS/internal/multipart"
	"github.com/eniz1806/VaultOSS/internal/notify"
	"github.com/eniz1806/VaultOSS/internal/osserr"
	"github.com/eniz1806/VaultOSS/internal/presign"
	"github.com/eniz1806/VaultOSS/internal/ratelimit"
	"github.com/eniz1806/VaultOSS/internal/s3client"
	"github.com/eniz1806/VaultOSS/internal/storage"
)

// Client bundles every component. All fields share one strategy and S3 client.
type Client struct {
	Config    *config.Config
	S3        *s3.Client
	Strategy  address.Strategy
	Store     *storage.Store
	Multipart *multipart.Coordinator
	Lifecycle *lifecycle.Manager
	Presign   *presign.Issuer
	Worker    *lifecycle.Worker
	Inventory *inventory.Reporter

	dispatcher *notify.Dispatcher
}

type options struct {
	collector  *metrics.Collector
	dispatcher *notify.Dispatcher
	s3Opts     []func(*s3.Options)
}

type Option func(*options)

// WithMetrics instruments the S3 client and counts notification publishes.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.collector = c }
}

// WithDispatcher uses d for notifications instead of building one from config.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(o *options) { o.dispatcher = d }
}

// WithS3Options passes extra options to the S3 client.
func WithS3Options(fns ...func(*s3.Options)) Option {
	return func(o *options) { o.s3Opts = append(o.s3Opts, fns...) }
}

// New builds a client for cfg.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*Client, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	s3Opts := o.s3Opts
	if limiter := ratelimit.FromConfig(cfg.RateLimit); limiter != nil {
		s3Opts = append(s3Opts, limiter.Instrument)
	}
	if o.collector != nil {
		s3Opts = append(s3Opts, o.collector.Instrument)
	}
	client, err := s3client.New(ctx, cfg, s3Opts...)
	if err != nil {
		return nil, err
	}

	dispatcher := o.dispatcher
	if dispatcher == nil {
		var observer notify.Observer
		if o.collector != nil {
			observer = o.collector
		}
		if dispatcher, err = notify.NewFromConfig(cfg.Notifications, observer); err != nil {
			return nil, fmt.Errorf("notifications: %w", err)
		}
	}

	strategy := address.New(cfg.BucketName)
	store := storage.New(client, strategy, storage.WithSink(dispatcher))
	issuer, err := presign.New(presign.NewPresignClient(client), strategy, cfg)
	if err != nil {
		dispatcher.Close()
		return nil, err
	}
	mgr := lifecycle.New(client, strategy, store)

	slog.Info("object store client ready", "mode", strategy.Mode().String(), "base_bucket", strategy.Base(), "endpoint", cfg.Endpoint)
	return &Client{
		Config:     cfg,
		S3:         client,
		Strategy:   strategy,
		Store:      store,
		Multipart:  multipart.New(client, strategy, store, multipart.WithSink(dispatcher)),
		Lifecycle:  mgr,
		Presign:    issuer,
		Worker:     lifecycle.NewWorker(mgr, cfg.ExpiringPrefixes, cfg.Lifecycle.ReconcileIntervalSecs),
		Inventory:  inventory.NewReporter(store, cfg.Inventory.Containers, cfg.Inventory.Dest, cfg.Inventory.IntervalSecs),
		dispatcher: dispatcher,
	}, nil
}

// Bootstrap creates the base bucket when folder mode is on and then
// provisions every configured expiring prefix. Any failure is returned.
func (c *Client) Bootstrap(ctx context.Context) error {
	if c.Strategy.Mode() == address.ModeFolder {
		if err := c.ensureBase(ctx); err != nil {
			return fmt.Errorf("bootstrap base bucket: %w", err)
		}
	}
	if err := c.Worker.Reconcile(ctx); err != nil {
		return fmt.Errorf("bootstrap expiring prefixes: %w", err)
	}
	return nil
}

func (c *Client) ensureBase(ctx context.Context) error {
	const op = "ensure base bucket"
	base := c.Strategy.Base()
	_, err := c.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(base)})
	if err == nil {
		return nil
	}
	if !osserr.IsNotFound(err) {
		return osserr.Wrap(op, err)
	}
	if _, err := c.S3.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(base)}); err != nil && !osserr.IsAlreadyExists(err) {
		return osserr.Wrap(op, err)
	}
	slog.Info("base bucket created", "bucket", base)
	return nil
}

// Ping checks that the backend answers: HeadBucket on the base bucket in
// folder mode, ListBuckets otherwise.
func (c *Client) Ping(ctx context.Context) error {
	const op = "ping"
	var err error
	if c.Strategy.Mode() == address.ModeFolder {
		_, err = c.S3.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(c.Strategy.Base())})
	} else {
		_, err = c.S3.ListBuckets(ctx, &s3.ListBucketsInput{MaxBuckets: aws.Int32(1)})
	}
	return osserr.Wrap(op, err)
}

// Close releases notification backends.
func (c *Client) Close() error {
	if c.dispatcher == nil {
		return nil
	}
	if err := c.dispatcher.Close(); err != nil {
		return fmt.Errorf("close notifications: %w", err)
	}
	return nil
}
