package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/notify"
	"github.com/eniz1806/VaultOSS/internal/osserr"
)

// ObjectInfo represents metadata about a stored object. Key is relative to
// its container.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Expires      time.Time // zero when the object carries no Expires header
	Metadata     map[string]string
}

type putOptions struct {
	contentType string
	expires     time.Time
	ttl         time.Duration
	sse         string
	acl         string
	metadata    map[string]string
	size        int64
}

// PutOption configures a Put.
type PutOption func(*putOptions)

func WithContentType(ct string) PutOption {
	return func(o *putOptions) { o.contentType = ct }
}

// WithExpires sets the HTTP Expires header. It is a caching hint and never
// causes deletion.
func WithExpires(t time.Time) PutOption {
	return func(o *putOptions) { o.expires = t }
}

// WithTTL sets the Expires header to now plus d.
func WithTTL(d time.Duration) PutOption {
	return func(o *putOptions) { o.ttl = d }
}

// WithEncryption requests server-side encryption with the given algorithm,
// e.g. "AES256" or "aws:kms".
func WithEncryption(algorithm string) PutOption {
	return func(o *putOptions) { o.sse = algorithm }
}

// WithACL applies a canned ACL such as "private" or "public-read".
func WithACL(acl string) PutOption {
	return func(o *putOptions) { o.acl = acl }
}

func WithMetadata(md map[string]string) PutOption {
	return func(o *putOptions) { o.metadata = md }
}

// WithSize declares the body length. Without it the body is measured.
func WithSize(n int64) PutOption {
	return func(o *putOptions) { o.size = n }
}

func validSSE(alg string) bool {
	return slices.Contains(types.ServerSideEncryption("").Values(), types.ServerSideEncryption(alg))
}

func validObjectACL(acl string) bool {
	return slices.Contains(types.ObjectCannedACL("").Values(), types.ObjectCannedACL(acl))
}

// Put stores body under key, creating the container first if needed.
// Bodies that cannot seek are buffered so the request can be signed.
func (s *Store) Put(ctx context.Context, container, key string, body io.Reader, opts ...PutOption) (ObjectInfo, error) {
	const op = "put"
	o := putOptions{size: -1}
	for _, opt := range opts {
		opt(&o)
	}
	if err := checkObject(op, container, key); err != nil {
		return ObjectInfo{}, err
	}
	if o.sse != "" && !validSSE(o.sse) {
		return ObjectInfo{}, osserr.Invalid(op, "unknown encryption algorithm %q", o.sse)
	}
	if o.acl != "" && !validObjectACL(o.acl) {
		return ObjectInfo{}, osserr.Invalid(op, "unknown canned acl %q", o.acl)
	}
	if o.ttl < 0 {
		return ObjectInfo{}, osserr.Invalid(op, "negative ttl %s", o.ttl)
	}

	if err := s.CreateContainer(ctx, container); err != nil {
		return ObjectInfo{}, osserr.Wrap(op, err)
	}

	rs, size, err := seekable(body, o.size)
	if err != nil {
		return ObjectInfo{}, osserr.Wrap(op, fmt.Errorf("read body: %w", err))
	}

	t := s.strategy.Resolve(container, key)
	in := &s3.PutObjectInput{
		Bucket:        aws.String(t.Bucket),
		Key:           aws.String(t.Key),
		Body:          rs,
		ContentLength: aws.Int64(size),
		Metadata:      o.metadata,
	}
	if o.contentType != "" {
		in.ContentType = aws.String(o.contentType)
	}
	switch {
	case !o.expires.IsZero():
		in.Expires = aws.Time(o.expires)
	case o.ttl > 0:
		in.Expires = aws.Time(time.Now().Add(o.ttl))
	}
	if o.sse != "" {
		in.ServerSideEncryption = types.ServerSideEncryption(o.sse)
	}
	if o.acl != "" {
		in.ACL = types.ObjectCannedACL(o.acl)
	}

	out, err := s.api.PutObject(ctx, in)
	if err != nil {
		return ObjectInfo{}, osserr.Wrap(op, err)
	}

	info := ObjectInfo{
		Key:         address.CleanKey(key),
		Size:        size,
		ETag:        aws.ToString(out.ETag),
		ContentType: o.contentType,
		Metadata:    o.metadata,
	}
	if in.Expires != nil {
		info.Expires = *in.Expires
	}
	slog.Debug("object stored", "target", t.String(), "size", size)
	s.emit(ctx, notify.ObjectCreatedPut, container, key, size, info.ETag)
	return info, nil
}

// PutBytes is Put for an in-memory body.
func (s *Store) PutBytes(ctx context.Context, container, key string, data []byte, opts ...PutOption) (ObjectInfo, error) {
	return s.Put(ctx, container, key, bytes.NewReader(data), append(opts, WithSize(int64(len(data))))...)
}

func seekable(body io.Reader, size int64) (io.ReadSeeker, int64, error) {
	if body == nil {
		return bytes.NewReader(nil), 0, nil
	}
	if rs, ok := body.(io.ReadSeeker); ok {
		if size >= 0 {
			return rs, size, nil
		}
		cur, err := rs.Seek(0, io.SeekCurrent)
		if err != nil {
			return nil, 0, err
		}
		end, err := rs.Seek(0, io.SeekEnd)
		if err != nil {
			return nil, 0, err
		}
		if _, err := rs.Seek(cur, io.SeekStart); err != nil {
			return nil, 0, err
		}
		return rs, end - cur, nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// Get opens the object. The caller closes the returned reader.
func (s *Store) Get(ctx context.Context, container, key string) (io.ReadCloser, ObjectInfo, error) {
	const op = "get"
	if err := checkObject(op, container, key); err != nil {
		return nil, ObjectInfo{}, err
	}
	t := s.strategy.Resolve(container, key)
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(t.Key),
	})
	if err != nil {
		return nil, ObjectInfo{}, osserr.Wrap(op, err)
	}
	return out.Body, ObjectInfo{
		Key:          address.CleanKey(key),
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		Expires:      parseExpires(out.ExpiresString),
		Metadata:     out.Metadata,
	}, nil
}

// Head returns the object's metadata without its body.
func (s *Store) Head(ctx context.Context, container, key string) (ObjectInfo, error) {
	const op = "head"
	if err := checkObject(op, container, key); err != nil {
		return ObjectInfo{}, err
	}
	t := s.strategy.Resolve(container, key)
	out, err := s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(t.Key),
	})
	if err != nil {
		return ObjectInfo{}, osserr.Wrap(op, err)
	}
	return ObjectInfo{
		Key:          address.CleanKey(key),
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		Expires:      parseExpires(out.ExpiresString),
		Metadata:     out.Metadata,
	}, nil
}

func parseExpires(v *string) time.Time {
	if v == nil || *v == "" {
		return time.Time{}
	}
	t, err := http.ParseTime(*v)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Delete removes the object. Deleting a missing key succeeds, as in S3.
func (s *Store) Delete(ctx context.Context, container, key string) error {
	const op = "delete"
	if err := checkObject(op, container, key); err != nil {
		return err
	}
	t := s.strategy.Resolve(container, key)
	if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(t.Key),
	}); err != nil {
		return osserr.Wrap(op, err)
	}
	slog.Debug("object deleted", "target", t.String())
	s.emit(ctx, notify.ObjectRemovedDelete, container, key, 0, "")
	return nil
}

// Copy duplicates an object server-side, creating the destination container
// if needed. Metadata is copied with the object.
func (s *Store) Copy(ctx context.Context, srcContainer, srcKey, dstContainer, dstKey string) (ObjectInfo, error) {
	const op = "copy"
	if err := checkObject(op, srcContainer, srcKey); err != nil {
		return ObjectInfo{}, err
	}
	if err := checkObject(op, dstContainer, dstKey); err != nil {
		return ObjectInfo{}, err
	}
	if err := s.CreateContainer(ctx, dstContainer); err != nil {
		return ObjectInfo{}, osserr.Wrap(op, err)
	}

	src := s.strategy.Resolve(srcContainer, srcKey)
	dst := s.strategy.Resolve(dstContainer, dstKey)
	out, err := s.api.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(dst.Bucket),
		Key:        aws.String(dst.Key),
		CopySource: aws.String(copySource(src.Bucket, src.Key)),
	})
	if err != nil {
		return ObjectInfo{}, osserr.Wrap(op, err)
	}

	info := ObjectInfo{Key: address.CleanKey(dstKey)}
	if r := out.CopyObjectResult; r != nil {
		info.ETag = aws.ToString(r.ETag)
		info.LastModified = aws.ToTime(r.LastModified)
	}
	slog.Debug("object copied", "from", src.String(), "to", dst.String())
	s.emit(ctx, notify.ObjectCreatedCopy, dstContainer, dstKey, 0, info.ETag)
	return info, nil
}

// copySource builds the URL-encoded "bucket/key" form of x-amz-copy-source.
func copySource(bucket, key string) string {
	segments := strings.Split(key, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return bucket + "/" + strings.Join(segments, "/")
}
