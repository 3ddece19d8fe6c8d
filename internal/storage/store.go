package storage

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/notify"
	"github.com/eniz1806/VaultOSS/internal/osserr"
)

// maxDeleteBatch is the S3 limit on keys per DeleteObjects request.
const maxDeleteBatch = 1000

// Store performs single-shot object operations against targets resolved by
// an addressing strategy.
type Store struct {
	api      API
	strategy address.Strategy
	sink     notify.Sink
}

type Option func(*Store)

// WithSink reports completed mutations to sink.
func WithSink(sink notify.Sink) Option {
	return func(s *Store) { s.sink = sink }
}

func New(api API, strategy address.Strategy, opts ...Option) *Store {
	s := &Store{api: api, strategy: strategy}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Strategy returns the addressing strategy the store resolves with.
func (s *Store) Strategy() address.Strategy {
	return s.strategy
}

func (s *Store) emit(ctx context.Context, name, container, key string, size int64, etag string) {
	if s.sink == nil {
		return
	}
	s.sink.Notify(ctx, notify.Event{
		Name:      name,
		Container: address.CleanContainer(container),
		Key:       address.CleanKey(key),
		Size:      size,
		ETag:      etag,
		Time:      time.Now(),
	})
}

func checkContainer(op, name string) error {
	if err := address.ValidateContainer(name); err != nil {
		return osserr.Invalid(op, "%v", err)
	}
	return nil
}

func checkObject(op, container, key string) error {
	if err := checkContainer(op, container); err != nil {
		return err
	}
	if address.CleanKey(key) == "" {
		return osserr.Invalid(op, "object key is empty")
	}
	return nil
}

// ContainerExists reports whether the container is present. In folder mode a
// container exists when at least one key carries its prefix.
func (s *Store) ContainerExists(ctx context.Context, name string) (bool, error) {
	const op = "container exists"
	if err := checkContainer(op, name); err != nil {
		return false, err
	}
	t := s.strategy.Container(name)

	if s.strategy.Mode() == address.ModeDirect {
		_, err := s.api.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(t.Bucket)})
		if err != nil {
			if osserr.IsNotFound(err) {
				return false, nil
			}
			return false, osserr.Wrap(op, err)
		}
		return true, nil
	}

	out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(t.Bucket),
		Prefix:  aws.String(t.Key),
		MaxKeys: aws.Int32(1),
	})
	if err != nil {
		return false, osserr.Wrap(op, err)
	}
	return len(out.Contents) > 0, nil
}

// CreateContainer creates the container unless it already exists. A racing
// create that loses with BucketAlreadyOwnedByYou is treated as success.
func (s *Store) CreateContainer(ctx context.Context, name string) error {
	const op = "create container"
	exists, err := s.ContainerExists(ctx, name)
	if err != nil {
		return osserr.Wrap(op, err)
	}
	if exists {
		return nil
	}

	t := s.strategy.Container(name)
	if s.strategy.Mode() == address.ModeDirect {
		_, err = s.api.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(t.Bucket)})
	} else {
		_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(t.Bucket),
			Key:           aws.String(t.Key),
			Body:          bytes.NewReader(nil),
			ContentLength: aws.Int64(0),
		})
	}
	if err != nil {
		if osserr.IsAlreadyExists(err) {
			slog.Warn("container created concurrently", "container", name, "bucket", t.Bucket)
			return nil
		}
		return osserr.Wrap(op, err)
	}

	slog.Debug("container created", "container", name, "target", t.String())
	s.emit(ctx, notify.ContainerCreated, name, "", 0, "")
	return nil
}

// EnsureContainer is CreateContainer under the name other components expect.
func (s *Store) EnsureContainer(ctx context.Context, name string) error {
	return s.CreateContainer(ctx, name)
}

// ListContainers returns logical container names. In folder mode these are
// the top-level prefixes of the base bucket.
func (s *Store) ListContainers(ctx context.Context) ([]string, error) {
	const op = "list containers"
	var names []string

	if s.strategy.Mode() == address.ModeDirect {
		p := s3.NewListBucketsPaginator(s.api, &s3.ListBucketsInput{})
		for p.HasMorePages() {
			page, err := p.NextPage(ctx)
			if err != nil {
				return nil, osserr.Wrap(op, err)
			}
			for _, b := range page.Buckets {
				names = append(names, aws.ToString(b.Name))
			}
		}
		return names, nil
	}

	p := s3.NewListObjectsV2Paginator(s.api, &s3.ListObjectsV2Input{
		Bucket:    aws.String(s.strategy.Base()),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, osserr.Wrap(op, err)
		}
		for _, cp := range page.CommonPrefixes {
			if name := strings.TrimSuffix(aws.ToString(cp.Prefix), "/"); name != "" {
				names = append(names, name)
			}
		}
	}
	return names, nil
}

// RemoveContainer deletes an empty container. A container that still holds
// objects fails with a Conflict error.
func (s *Store) RemoveContainer(ctx context.Context, name string) error {
	const op = "remove container"
	if err := checkContainer(op, name); err != nil {
		return err
	}
	t := s.strategy.Container(name)

	if s.strategy.Mode() == address.ModeDirect {
		if _, err := s.api.DeleteBucket(ctx, &s3.DeleteBucketInput{Bucket: aws.String(t.Bucket)}); err != nil {
			return osserr.Wrap(op, err)
		}
	} else {
		out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:  aws.String(t.Bucket),
			Prefix:  aws.String(t.Key),
			MaxKeys: aws.Int32(2),
		})
		if err != nil {
			return osserr.Wrap(op, err)
		}
		if len(out.Contents) == 0 {
			return osserr.New(op, osserr.KindNotFound, "container %q does not exist", name)
		}
		for _, obj := range out.Contents {
			if aws.ToString(obj.Key) != t.Key {
				return osserr.New(op, osserr.KindConflict, "container %q is not empty", name)
			}
		}
		if _, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(t.Bucket),
			Key:    aws.String(t.Key),
		}); err != nil {
			return osserr.Wrap(op, err)
		}
	}

	slog.Debug("container removed", "container", name, "target", t.String())
	s.emit(ctx, notify.ContainerRemoved, name, "", 0, "")
	return nil
}

// Purge deletes every object in the container and returns how many were
// removed. The container itself is kept.
func (s *Store) Purge(ctx context.Context, container string) (int, error) {
	const op = "purge"
	if err := checkContainer(op, container); err != nil {
		return 0, err
	}
	t := s.strategy.Prefix(container, "")
	marker := s.strategy.Container(container).Key

	var (
		batch   []types.ObjectIdentifier
		deleted int
	)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		out, err := s.api.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(t.Bucket),
			Delete: &types.Delete{Objects: batch, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return err
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return osserr.New(op, osserr.KindUnknown, "delete %s: %s: %s",
				aws.ToString(e.Key), aws.ToString(e.Code), aws.ToString(e.Message))
		}
		deleted += len(batch)
		batch = batch[:0]
		return nil
	}

	in := &s3.ListObjectsV2Input{Bucket: aws.String(t.Bucket)}
	if t.Key != "" {
		in.Prefix = aws.String(t.Key)
	}
	p := s3.NewListObjectsV2Paginator(s.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return deleted, osserr.Wrap(op, err)
		}
		for _, obj := range page.Contents {
			if marker != "" && aws.ToString(obj.Key) == marker {
				continue
			}
			batch = append(batch, types.ObjectIdentifier{Key: obj.Key})
			if len(batch) == maxDeleteBatch {
				if err := flush(); err != nil {
					return deleted, osserr.Wrap(op, err)
				}
			}
		}
	}
	if err := flush(); err != nil {
		return deleted, osserr.Wrap(op, err)
	}

	slog.Debug("container purged", "container", container, "deleted", deleted)
	return deleted, nil
}

// List returns every object in the container whose key starts with prefix.
// Keys are relative to the container and the folder marker is omitted.
func (s *Store) List(ctx context.Context, container, prefix string) ([]ObjectInfo, error) {
	const op = "list"
	if err := checkContainer(op, container); err != nil {
		return nil, err
	}
	t := s.strategy.Prefix(container, prefix)
	marker := s.strategy.Container(container).Key

	in := &s3.ListObjectsV2Input{Bucket: aws.String(t.Bucket)}
	if t.Key != "" {
		in.Prefix = aws.String(t.Key)
	}

	var objects []ObjectInfo
	p := s3.NewListObjectsV2Paginator(s.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, osserr.Wrap(op, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if marker != "" && key == marker {
				continue
			}
			objects = append(objects, ObjectInfo{
				Key:          s.strategy.Logical(container, key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         aws.ToString(obj.ETag),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	return objects, nil
}
