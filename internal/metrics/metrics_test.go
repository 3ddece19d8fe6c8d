package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/eniz1806/VaultOSS/internal/osserr"
	"github.com/eniz1806/VaultOSS/internal/s3client/s3test"
)

func TestInstrument_CountsCalls(t *testing.T) {
	c := NewCollector()
	srv := s3test.Start(t, "", c.Instrument)
	ctx := context.Background()

	if _, err := srv.Client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String("missing")}); err == nil {
		t.Fatal("expected HeadBucket to fail")
	}
	if _, err := srv.Client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String("metered")}); err != nil {
		t.Fatalf("CreateBucket: %v", err)
	}

	if got := testutil.ToFloat64(c.requests.WithLabelValues("HeadBucket", "not_found")); got != 1 {
		t.Errorf("HeadBucket not_found: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("CreateBucket", "ok")); got != 1 {
		t.Errorf("CreateBucket ok: got %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.inflight); got != 0 {
		t.Errorf("inflight: got %v, want 0", got)
	}
	if n := testutil.CollectAndCount(c.latency); n != 2 {
		t.Errorf("latency series: got %d, want 2", n)
	}
}

func TestObserve_Outcome(t *testing.T) {
	c := NewCollector()
	c.Observe("PutObject", time.Millisecond, nil)
	c.Observe("PutObject", time.Millisecond, osserr.New("put", osserr.KindTransient, "503"))
	c.Observe("PutObject", time.Millisecond, errors.New("boom"))

	for outcome, want := range map[string]float64{"ok": 1, "transient": 1, "unknown": 1} {
		if got := testutil.ToFloat64(c.requests.WithLabelValues("PutObject", outcome)); got != want {
			t.Errorf("%s: got %v, want %v", outcome, got, want)
		}
	}
}

func TestObservePublish(t *testing.T) {
	c := NewCollector()
	c.ObservePublish("nats", nil)
	c.ObservePublish("nats", errors.New("down"))
	c.ObservePublish("nats", errors.New("down"))

	if got := testutil.ToFloat64(c.published.WithLabelValues("nats", "ok")); got != 1 {
		t.Errorf("ok: got %v", got)
	}
	if got := testutil.ToFloat64(c.published.WithLabelValues("nats", "error")); got != 2 {
		t.Errorf("error: got %v", got)
	}
}

func TestHandler(t *testing.T) {
	c := NewCollector()
	c.Observe("GetObject", time.Millisecond, nil)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `vaultoss_s3_requests_total{operation="GetObject",outcome="ok"} 1`) {
		t.Errorf("metrics output missing request counter:\n%s", body)
	}
	if c.StartTime().IsZero() {
		t.Error("start time should be set")
	}
}
