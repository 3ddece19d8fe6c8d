// Package s3test runs an in-process S3 backend for package tests.
package s3test

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/yashikota/minis3"

	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/s3client"
)

// Credentials accepted by the minis3 signature check.
const (
	AccessKey = "minis3-access-key"
	SecretKey = "minis3-secret-key"
)

// Server is a running minis3 instance with a client configured against it.
type Server struct {
	Config *config.Config
	Client *s3.Client
}

// Start launches minis3 and returns a config pointing at it. baseBucket may be
// empty for direct mode. The server is closed when the test completes.
func Start(t testing.TB, baseBucket string, optFns ...func(*s3.Options)) *Server {
	t.Helper()

	srv := minis3.New()
	if err := srv.Start(); err != nil {
		t.Fatalf("start minis3: %v", err)
	}
	t.Cleanup(func() { srv.Close() })

	cfg := &config.Config{
		Endpoint:        "http://" + srv.Addr(),
		Region:          "us-east-1",
		AccessKey:       AccessKey,
		SecretKey:       SecretKey,
		BucketName:      baseBucket,
		PathStyleAccess: true,
	}

	client, err := s3client.New(context.Background(), cfg, optFns...)
	if err != nil {
		t.Fatalf("s3client.New: %v", err)
	}
	return &Server{Config: cfg, Client: client}
}

// CreateBucket creates a physical bucket directly, bypassing the addressing layer.
func (s *Server) CreateBucket(t testing.TB, name string) {
	t.Helper()
	if _, err := s.Client.CreateBucket(context.Background(), &s3.CreateBucketInput{Bucket: &name}); err != nil {
		t.Fatalf("create bucket %q: %v", name, err)
	}
}
