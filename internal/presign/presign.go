// Package presign issues time-limited URLs that let a holder perform one
// object operation without credentials.
package presign

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/config"
	"github.com/eniz1806/VaultOSS/internal/osserr"
)

// MaxTTL is the longest validity SigV4 allows. Longer TTLs are passed through
// and rejected by the backend.
const MaxTTL = 7 * 24 * time.Hour

// Presigner is the subset of *s3.PresignClient the issuer calls.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignPutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignHeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignDeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
	PresignUploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

var _ Presigner = (*s3.PresignClient)(nil)

// Request is a presigned request. Header lists headers that were signed and
// must be sent unchanged.
type Request struct {
	Method string
	URL    string
	Header http.Header
}

// Issuer presigns object requests for resolved targets.
type Issuer struct {
	presigner Presigner
	strategy  address.Strategy
	endpoint  *url.URL
	domain    *url.URL
	pathStyle bool
}

// NewPresignClient wraps client for presigning. Client middleware such as
// metrics is dropped since presigning sends nothing.
func NewPresignClient(client *s3.Client) *s3.PresignClient {
	return s3.NewPresignClient(client, s3.WithPresignClientFromClientOptions(func(o *s3.Options) {
		o.APIOptions = nil
	}))
}

// New creates an issuer. cfg supplies the endpoint and custom domain used for
// unsigned public URLs.
func New(presigner Presigner, strategy address.Strategy, cfg *config.Config) (*Issuer, error) {
	endpoint, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	iss := &Issuer{
		presigner: presigner,
		strategy:  strategy,
		endpoint:  endpoint,
		pathStyle: cfg.PathStyleAccess,
	}
	if cfg.CustomDomain != "" {
		raw := cfg.CustomDomain
		if !strings.Contains(raw, "://") {
			raw = "https://" + raw
		}
		if iss.domain, err = url.Parse(raw); err != nil {
			return nil, fmt.Errorf("parse custom domain: %w", err)
		}
	}
	return iss, nil
}

func checkTTL(op string, ttl time.Duration) error {
	if ttl <= 0 {
		return osserr.Invalid(op, "ttl must be positive, got %s", ttl)
	}
	return nil
}

func resolve(op string, strategy address.Strategy, container, key string) (address.Target, error) {
	if err := address.ValidateContainer(container); err != nil {
		return address.Target{}, osserr.Invalid(op, "%v", err)
	}
	if address.CleanKey(key) == "" {
		return address.Target{}, osserr.Invalid(op, "object key is empty")
	}
	return strategy.Resolve(container, key), nil
}

// GetURL returns a URL that downloads the object until ttl elapses.
func (i *Issuer) GetURL(ctx context.Context, container, key string, ttl time.Duration) (string, error) {
	req, err := i.URL(ctx, http.MethodGet, container, key, ttl)
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// PutURL returns a URL that uploads the object until ttl elapses. When
// contentType is set the uploader must send the same Content-Type.
func (i *Issuer) PutURL(ctx context.Context, container, key string, ttl time.Duration, contentType string) (string, error) {
	const op = "presign put"
	if err := checkTTL(op, ttl); err != nil {
		return "", err
	}
	t, err := resolve(op, i.strategy, container, key)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{Bucket: aws.String(t.Bucket), Key: aws.String(t.Key)}
	if contentType != "" {
		in.ContentType = aws.String(contentType)
	}
	req, err := i.presigner.PresignPutObject(ctx, in, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", osserr.Wrap(op, err)
	}
	slog.Debug("presigned url issued", "method", req.Method, "target", t.String(), "ttl", ttl)
	return req.URL, nil
}

// URL presigns method (GET, PUT, HEAD or DELETE) on the object.
func (i *Issuer) URL(ctx context.Context, method, container, key string, ttl time.Duration) (Request, error) {
	const op = "presign"
	if err := checkTTL(op, ttl); err != nil {
		return Request{}, err
	}
	t, err := resolve(op, i.strategy, container, key)
	if err != nil {
		return Request{}, err
	}
	bucket, objKey := aws.String(t.Bucket), aws.String(t.Key)
	expires := s3.WithPresignExpires(ttl)

	var req *v4.PresignedHTTPRequest
	switch strings.ToUpper(method) {
	case http.MethodGet:
		req, err = i.presigner.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: bucket, Key: objKey}, expires)
	case http.MethodPut:
		req, err = i.presigner.PresignPutObject(ctx, &s3.PutObjectInput{Bucket: bucket, Key: objKey}, expires)
	case http.MethodHead:
		req, err = i.presigner.PresignHeadObject(ctx, &s3.HeadObjectInput{Bucket: bucket, Key: objKey}, expires)
	case http.MethodDelete:
		req, err = i.presigner.PresignDeleteObject(ctx, &s3.DeleteObjectInput{Bucket: bucket, Key: objKey}, expires)
	default:
		return Request{}, osserr.Invalid(op, "unsupported method %q", method)
	}
	if err != nil {
		return Request{}, osserr.Wrap(op, fmt.Errorf("sign %s: %w", strings.ToUpper(method), err))
	}
	slog.Debug("presigned url issued", "method", req.Method, "target", t.String(), "ttl", ttl)
	return Request{Method: req.Method, URL: req.URL, Header: req.SignedHeader}, nil
}

// PartURL presigns the upload of one part of an existing multipart upload.
func (i *Issuer) PartURL(ctx context.Context, container, key, uploadID string, partNumber int32, ttl time.Duration) (string, error) {
	const op = "presign part"
	if err := checkTTL(op, ttl); err != nil {
		return "", err
	}
	if uploadID == "" {
		return "", osserr.Invalid(op, "upload id is empty")
	}
	if partNumber < 1 || partNumber > 10000 {
		return "", osserr.Invalid(op, "part number %d outside 1..10000", partNumber)
	}
	t, err := resolve(op, i.strategy, container, key)
	if err != nil {
		return "", err
	}
	req, err := i.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(t.Bucket),
		Key:        aws.String(t.Key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", osserr.Wrap(op, err)
	}
	return req.URL, nil
}

// PublicURL returns the unsigned URL of the object. It only works for
// objects readable by anonymous users. With a custom domain the domain is
// assumed to front the physical bucket.
func (i *Issuer) PublicURL(container, key string) string {
	t := i.strategy.Resolve(container, key)
	path := escapeKey(t.Key)
	if i.domain != nil {
		return strings.TrimSuffix(i.domain.String(), "/") + "/" + path
	}

	base := strings.TrimSuffix(i.endpoint.Path, "/")
	if i.pathStyle {
		return fmt.Sprintf("%s://%s%s/%s/%s", i.endpoint.Scheme, i.endpoint.Host, base, t.Bucket, path)
	}
	return fmt.Sprintf("%s://%s.%s%s/%s", i.endpoint.Scheme, t.Bucket, i.endpoint.Host, base, path)
}

func escapeKey(key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.Join(segments, "/")
}
