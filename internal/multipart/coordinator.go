package multipart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/notify"
	"github.com/eniz1806/VaultOSS/internal/osserr"
)

// S3 part limits.
const (
	MinPartNumber   = 1
	MaxPartNumber   = 10000
	MinPartSize     = 5 << 20
	DefaultPartSize = 8 << 20
)

// API is the subset of *s3.Client the coordinator calls.
type API interface {
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, in *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListMultipartUploads(ctx context.Context, in *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
}

var _ API = (*s3.Client)(nil)

// ContainerEnsurer creates a container when it does not exist yet.
type ContainerEnsurer interface {
	EnsureContainer(ctx context.Context, name string) error
}

// Coordinator drives multipart uploads: initiate, upload parts, then
// complete or abort.
type Coordinator struct {
	api      API
	strategy address.Strategy
	ensurer  ContainerEnsurer
	sink     notify.Sink
}

type Option func(*Coordinator)

// WithSink reports completed uploads to sink.
func WithSink(sink notify.Sink) Option {
	return func(c *Coordinator) { c.sink = sink }
}

func New(api API, strategy address.Strategy, ensurer ContainerEnsurer, opts ...Option) *Coordinator {
	c := &Coordinator{api: api, strategy: strategy, ensurer: ensurer}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type initOptions struct {
	contentType string
	metadata    map[string]string
}

// InitOption configures Initiate.
type InitOption func(*initOptions)

func WithContentType(ct string) InitOption {
	return func(o *initOptions) { o.contentType = ct }
}

func WithMetadata(md map[string]string) InitOption {
	return func(o *initOptions) { o.metadata = md }
}

func closed(op string, s *Session) error {
	return osserr.New(op, osserr.KindNotFound, "upload %s is %s", s.UploadID, s.State())
}

// Initiate starts a new upload, creating the container first if needed.
func (c *Coordinator) Initiate(ctx context.Context, container, key string, opts ...InitOption) (*Session, error) {
	const op = "initiate upload"
	var o initOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := address.ValidateContainer(container); err != nil {
		return nil, osserr.Invalid(op, "%v", err)
	}
	if address.CleanKey(key) == "" {
		return nil, osserr.Invalid(op, "object key is empty")
	}
	if err := c.ensurer.EnsureContainer(ctx, container); err != nil {
		return nil, osserr.Wrap(op, err)
	}

	t := c.strategy.Resolve(container, key)
	in := &s3.CreateMultipartUploadInput{
		Bucket:   aws.String(t.Bucket),
		Key:      aws.String(t.Key),
		Metadata: o.metadata,
	}
	if o.contentType != "" {
		in.ContentType = aws.String(o.contentType)
	}
	out, err := c.api.CreateMultipartUpload(ctx, in)
	if err != nil {
		return nil, osserr.Wrap(op, err)
	}

	s := newSession(aws.ToString(out.UploadId), address.CleanContainer(container), address.CleanKey(key), t)
	slog.Debug("multipart upload initiated", "target", t.String(), "upload_id", s.UploadID)
	return s, nil
}

// UploadPart sends one part. Parts may be uploaded in any order and
// concurrently. Size limits are enforced by the backend.
func (c *Coordinator) UploadPart(ctx context.Context, s *Session, number int32, body io.Reader, size int64) (Part, error) {
	const op = "upload part"
	if s.State().Terminal() {
		return Part{}, closed(op, s)
	}
	if number < MinPartNumber || number > MaxPartNumber {
		return Part{}, osserr.Invalid(op, "part number %d outside %d..%d", number, MinPartNumber, MaxPartNumber)
	}

	rs, n, err := seekable(body, size)
	if err != nil {
		return Part{}, osserr.Wrap(op, fmt.Errorf("read part %d: %w", number, err))
	}
	out, err := c.api.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:        aws.String(s.Target.Bucket),
		Key:           aws.String(s.Target.Key),
		UploadId:      aws.String(s.UploadID),
		PartNumber:    aws.Int32(number),
		Body:          rs,
		ContentLength: aws.Int64(n),
	})
	if err != nil {
		return Part{}, osserr.Wrap(op, err)
	}

	p := Part{Number: number, ETag: aws.ToString(out.ETag), Size: n}
	s.record(p)
	return p, nil
}

func seekable(body io.Reader, size int64) (io.ReadSeeker, int64, error) {
	if body == nil {
		return bytes.NewReader(nil), 0, nil
	}
	if rs, ok := body.(io.ReadSeeker); ok && size >= 0 {
		return rs, size, nil
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, 0, err
	}
	return bytes.NewReader(data), int64(len(data)), nil
}

// ListParts returns the parts the backend holds for the session, ascending.
func (c *Coordinator) ListParts(ctx context.Context, s *Session) ([]Part, error) {
	const op = "list parts"
	if s.State().Terminal() {
		return nil, closed(op, s)
	}
	parts, err := c.listParts(ctx, s.Target, s.UploadID)
	if err != nil {
		return nil, osserr.Wrap(op, err)
	}
	return parts, nil
}

func (c *Coordinator) listParts(ctx context.Context, t address.Target, uploadID string) ([]Part, error) {
	var parts []Part
	p := s3.NewListPartsPaginator(c.api, &s3.ListPartsInput{
		Bucket:   aws.String(t.Bucket),
		Key:      aws.String(t.Key),
		UploadId: aws.String(uploadID),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, part := range page.Parts {
			parts = append(parts, Part{
				Number: aws.ToInt32(part.PartNumber),
				ETag:   aws.ToString(part.ETag),
				Size:   aws.ToInt64(part.Size),
			})
		}
	}
	return parts, nil
}

// Complete assembles the object from parts, which must be strictly
// ascending by part number. A stale or unknown ETag fails with Conflict and
// leaves the session open.
func (c *Coordinator) Complete(ctx context.Context, s *Session, parts []Part) (string, error) {
	const op = "complete upload"
	if s.State().Terminal() {
		return "", closed(op, s)
	}
	if len(parts) == 0 {
		return "", osserr.Invalid(op, "no parts to complete")
	}
	completed := make([]types.CompletedPart, len(parts))
	var size int64
	for i, p := range parts {
		if i > 0 && p.Number <= parts[i-1].Number {
			return "", osserr.Invalid(op, "part %d listed after part %d", p.Number, parts[i-1].Number)
		}
		completed[i] = types.CompletedPart{PartNumber: aws.Int32(p.Number), ETag: aws.String(p.ETag)}
		size += p.Size
	}

	out, err := c.api.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(s.Target.Bucket),
		Key:             aws.String(s.Target.Key),
		UploadId:        aws.String(s.UploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return "", osserr.Wrap(op, err)
	}
	s.finish(StateCompleted)

	etag := aws.ToString(out.ETag)
	slog.Debug("multipart upload completed", "target", s.Target.String(), "upload_id", s.UploadID, "parts", len(parts))
	if c.sink != nil {
		c.sink.Notify(ctx, notify.Event{
			Name:      notify.ObjectCreatedMultipart,
			Container: s.Container,
			Key:       s.Key,
			Size:      size,
			ETag:      etag,
			Time:      time.Now(),
		})
	}
	return etag, nil
}

// Abort discards the upload and any parts already sent.
func (c *Coordinator) Abort(ctx context.Context, s *Session) error {
	const op = "abort upload"
	if s.State().Terminal() {
		return closed(op, s)
	}
	if _, err := c.api.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(s.Target.Bucket),
		Key:      aws.String(s.Target.Key),
		UploadId: aws.String(s.UploadID),
	}); err != nil {
		return osserr.Wrap(op, err)
	}
	s.finish(StateAborted)
	slog.Debug("multipart upload aborted", "target", s.Target.String(), "upload_id", s.UploadID)
	return nil
}

// Resume rebuilds a session for an upload started earlier, seeding it with
// the parts the backend already holds.
func (c *Coordinator) Resume(ctx context.Context, container, key, uploadID string) (*Session, error) {
	const op = "resume upload"
	if uploadID == "" {
		return nil, osserr.Invalid(op, "upload id is empty")
	}
	if err := address.ValidateContainer(container); err != nil {
		return nil, osserr.Invalid(op, "%v", err)
	}
	if address.CleanKey(key) == "" {
		return nil, osserr.Invalid(op, "object key is empty")
	}
	t := c.strategy.Resolve(container, key)
	parts, err := c.listParts(ctx, t, uploadID)
	if err != nil {
		return nil, osserr.Wrap(op, err)
	}
	s := newSession(uploadID, address.CleanContainer(container), address.CleanKey(key), t)
	for _, p := range parts {
		s.record(p)
	}
	return s, nil
}

// Upload describes an in-progress upload.
type Upload struct {
	Key       string
	UploadID  string
	Initiated time.Time
}

// Uploads lists in-progress uploads in the container.
func (c *Coordinator) Uploads(ctx context.Context, container string) ([]Upload, error) {
	const op = "list uploads"
	if err := address.ValidateContainer(container); err != nil {
		return nil, osserr.Invalid(op, "%v", err)
	}
	t := c.strategy.Prefix(container, "")
	in := &s3.ListMultipartUploadsInput{Bucket: aws.String(t.Bucket)}
	if t.Key != "" {
		in.Prefix = aws.String(t.Key)
	}

	var uploads []Upload
	p := s3.NewListMultipartUploadsPaginator(c.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, osserr.Wrap(op, err)
		}
		for _, u := range page.Uploads {
			uploads = append(uploads, Upload{
				Key:       c.strategy.Logical(container, aws.ToString(u.Key)),
				UploadID:  aws.ToString(u.UploadId),
				Initiated: aws.ToTime(u.Initiated),
			})
		}
	}
	return uploads, nil
}

// Upload splits r into partSize chunks and uploads them in order. Any
// failure aborts the upload. partSize below MinPartSize is raised to it.
func (c *Coordinator) Upload(ctx context.Context, container, key string, r io.Reader, partSize int64, opts ...InitOption) (string, error) {
	if partSize < MinPartSize {
		partSize = MinPartSize
	}
	s, err := c.Initiate(ctx, container, key, opts...)
	if err != nil {
		return "", err
	}

	buf := make([]byte, partSize)
	for number := int32(MinPartNumber); ; number++ {
		n, readErr := io.ReadFull(r, buf)
		if n > 0 || number == MinPartNumber {
			if number > MaxPartNumber {
				return "", c.abortAfter(ctx, s, osserr.Invalid("upload", "object needs more than %d parts", MaxPartNumber))
			}
			if _, err := c.UploadPart(ctx, s, number, bytes.NewReader(buf[:n]), int64(n)); err != nil {
				return "", c.abortAfter(ctx, s, err)
			}
		}
		if errors.Is(readErr, io.EOF) || errors.Is(readErr, io.ErrUnexpectedEOF) {
			break
		}
		if readErr != nil {
			return "", c.abortAfter(ctx, s, osserr.Wrap("upload", readErr))
		}
	}
	return c.Complete(ctx, s, s.Parts())
}

func (c *Coordinator) abortAfter(ctx context.Context, s *Session, cause error) error {
	if err := c.Abort(ctx, s); err != nil {
		slog.Warn("abort after failed upload", "upload_id", s.UploadID, "error", err)
	}
	return cause
}
