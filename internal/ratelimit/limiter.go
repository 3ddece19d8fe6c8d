// Package ratelimit throttles requests an S3 client sends to the backend.
package ratelimit

import (
	"context"
	"sync/atomic"

	awsmw "github.com/aws/aws-sdk-go-v2/aws/middleware"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	smithymw "github.com/aws/smithy-go/middleware"
	"golang.org/x/time/rate"

	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/osserr"
)

const middlewareID = "VaultOSSRateLimit"

// Limiter is a token bucket shared by every call of one client. In reject
// mode calls over the limit fail with a transient error; otherwise they wait.
type Limiter struct {
	lim    *rate.Limiter
	reject bool

	waited   atomic.Int64
	rejected atomic.Int64
}

// NewLimiter returns nil when rps is not positive. A burst below 1 is raised to 1.
func NewLimiter(rps float64, burst int, reject bool) *Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{lim: rate.NewLimiter(rate.Limit(rps), burst), reject: reject}
}

func FromConfig(cfg config.RateLimitConfig) *Limiter {
	return NewLimiter(cfg.RequestsPerSec, cfg.Burst, cfg.Reject)
}

// Allow takes a token without blocking.
func (l *Limiter) Allow() bool {
	return l.lim.Allow()
}

// Acquire takes a token for op, waiting or rejecting per the limiter mode.
func (l *Limiter) Acquire(ctx context.Context, op string) error {
	if l.lim.Allow() {
		return nil
	}
	if l.reject {
		l.rejected.Add(1)
		return osserr.New(op, osserr.KindTransient, "client rate limit exceeded")
	}
	l.waited.Add(1)
	if err := l.lim.Wait(ctx); err != nil {
		return osserr.New(op, osserr.KindTransient, "rate limit wait: %v", err)
	}
	return nil
}

type Stats struct {
	Waited   int64
	Rejected int64
}

func (l *Limiter) Stats() Stats {
	return Stats{Waited: l.waited.Load(), Rejected: l.rejected.Load()}
}

// Instrument is an s3.Options function that gates every call on the limiter.
func (l *Limiter) Instrument(o *s3.Options) {
	o.APIOptions = append(o.APIOptions, func(stack *smithymw.Stack) error {
		return stack.Initialize.Add(smithymw.InitializeMiddlewareFunc(middlewareID, l.handleInitialize), smithymw.After)
	})
}

func (l *Limiter) handleInitialize(ctx context.Context, in smithymw.InitializeInput, next smithymw.InitializeHandler) (smithymw.InitializeOutput, smithymw.Metadata, error) {
	if err := l.Acquire(ctx, awsmw.GetOperationName(ctx)); err != nil {
		return smithymw.InitializeOutput{}, smithymw.Metadata{}, err
	}
	return next.HandleInitialize(ctx, in)
}
