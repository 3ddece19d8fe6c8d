package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/osserr"
	"github.com/eniz1806/VaultOSS/internal/s3client/s3test"
)

func TestNewLimiter_Disabled(t *testing.T) {
	if l := NewLimiter(0, 10, false); l != nil {
		t.Error("expected nil limiter for zero rate")
	}
	if l := FromConfig(config.RateLimitConfig{}); l != nil {
		t.Error("expected nil limiter for empty config")
	}
}

func TestLimiter_AllowsWithinBurst(t *testing.T) {
	l := NewLimiter(1, 5, true)
	for i := 0; i < 5; i++ {
		if !l.Allow() {
			t.Fatalf("request %d should be allowed within burst", i+1)
		}
	}
	if l.Allow() {
		t.Error("expected rejection after burst exhausted")
	}
}

func TestAcquire_RejectMode(t *testing.T) {
	l := NewLimiter(0.001, 1, true)
	ctx := context.Background()
	if err := l.Acquire(ctx, "PutObject"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	err := l.Acquire(ctx, "PutObject")
	if !osserr.IsTransient(err) {
		t.Fatalf("expected transient error, got %v", err)
	}
	if got := l.Stats(); got.Rejected != 1 || got.Waited != 0 {
		t.Errorf("stats: %+v", got)
	}
}

func TestAcquire_WaitMode(t *testing.T) {
	l := NewLimiter(20, 1, false)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := l.Acquire(ctx, "GetObject"); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("expected throttling, finished in %v", elapsed)
	}
	if got := l.Stats().Waited; got != 2 {
		t.Errorf("waited: got %d, want 2", got)
	}
}

func TestAcquire_WaitCanceled(t *testing.T) {
	l := NewLimiter(0.001, 1, false)
	l.Allow()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := l.Acquire(ctx, "GetObject"); !osserr.IsTransient(err) {
		t.Errorf("expected transient error, got %v", err)
	}
}

func TestInstrument_RejectsBackendCalls(t *testing.T) {
	l := NewLimiter(0.001, 1, true)
	srv := s3test.Start(t, "", l.Instrument)
	ctx := context.Background()

	if _, err := srv.Client.ListBuckets(ctx, &s3.ListBucketsInput{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	_, err := srv.Client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if !osserr.IsTransient(err) {
		t.Fatalf("expected transient rejection, got %v", err)
	}
}
