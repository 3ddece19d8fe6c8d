package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/notify"
	"github.com/eniz1806/VaultOSS/internal/osserr"
	"github.com/eniz1806/VaultOSS/internal/s3client/s3test"
)

const testBase = "vaultoss-base"

type recordingSink struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recordingSink) Notify(_ context.Context, ev notify.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recordingSink) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func newDirectStore(t *testing.T, opts ...Option) (*Store, *s3test.Server) {
	t.Helper()
	srv := s3test.Start(t, "")
	return New(srv.Client, address.New(""), opts...), srv
}

func newFolderStore(t *testing.T, opts ...Option) (*Store, *s3test.Server) {
	t.Helper()
	srv := s3test.Start(t, testBase)
	srv.CreateBucket(t, testBase)
	return New(srv.Client, address.New(testBase), opts...), srv
}

// modes runs fn against a fresh store in each addressing mode.
func modes(t *testing.T, fn func(t *testing.T, s *Store, srv *s3test.Server)) {
	t.Run("direct", func(t *testing.T) {
		s, srv := newDirectStore(t)
		fn(t, s, srv)
	})
	t.Run("folder", func(t *testing.T) {
		s, srv := newFolderStore(t)
		fn(t, s, srv)
	})
}

func TestFolderContainment(t *testing.T) {
	s, srv := newFolderStore(t)
	ctx := context.Background()

	if err := s.CreateContainer(ctx, "sub"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	names, err := s.ListContainers(ctx)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if !slices.Contains(names, "sub") {
		t.Errorf("ListContainers: %v does not contain sub", names)
	}

	if _, err := s.PutBytes(ctx, "sub", "f.txt", []byte("x")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := srv.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(testBase),
		Key:    aws.String("sub/f.txt"),
	}); err != nil {
		t.Errorf("expected sub/f.txt in base bucket: %v", err)
	}
	if _, err := srv.Client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(testBase),
		Key:    aws.String("sub/"),
	}); err != nil {
		t.Errorf("expected folder marker sub/: %v", err)
	}
}

func TestContainerExists(t *testing.T) {
	modes(t, func(t *testing.T, s *Store, _ *s3test.Server) {
		ctx := context.Background()
		ok, err := s.ContainerExists(ctx, "photos")
		if err != nil {
			t.Fatalf("ContainerExists: %v", err)
		}
		if ok {
			t.Fatal("photos should not exist yet")
		}
		if err := s.CreateContainer(ctx, "photos"); err != nil {
			t.Fatalf("CreateContainer: %v", err)
		}
		ok, err = s.ContainerExists(ctx, "/photos/")
		if err != nil {
			t.Fatalf("ContainerExists: %v", err)
		}
		if !ok {
			t.Error("photos should exist")
		}
	})
}

func TestCreateContainer_Concurrent(t *testing.T) {
	modes(t, func(t *testing.T, s *Store, _ *s3test.Server) {
		ctx := context.Background()
		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- s.CreateContainer(ctx, "shared")
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Errorf("concurrent CreateContainer: %v", err)
			}
		}

		if err := s.RemoveContainer(ctx, "shared"); err != nil {
			t.Fatalf("RemoveContainer: %v", err)
		}
		if ok, _ := s.ContainerExists(ctx, "shared"); ok {
			t.Error("shared should be gone after remove")
		}
		if err := s.CreateContainer(ctx, "shared"); err != nil {
			t.Fatalf("recreate: %v", err)
		}
		if ok, _ := s.ContainerExists(ctx, "shared"); !ok {
			t.Error("shared should exist after recreate")
		}
	})
}

func TestCreateContainer_EmptyName(t *testing.T) {
	s, _ := newFolderStore(t)
	if err := s.CreateContainer(context.Background(), " / "); !osserr.IsInvalidArgument(err) {
		t.Errorf("expected invalid argument, got %v", err)
	}
}

func TestContainer_NestedNameRejected(t *testing.T) {
	s, _ := newFolderStore(t)
	ctx := context.Background()
	if err := s.CreateContainer(ctx, "a/b"); !osserr.IsInvalidArgument(err) {
		t.Fatalf("CreateContainer: expected invalid argument, got %v", err)
	}
	if _, err := s.PutBytes(ctx, "a/b", "k.txt", []byte("x")); !osserr.IsInvalidArgument(err) {
		t.Errorf("PutBytes: expected invalid argument, got %v", err)
	}
	if _, err := s.List(ctx, "/a/b/", ""); !osserr.IsInvalidArgument(err) {
		t.Errorf("List: expected invalid argument, got %v", err)
	}

	names, err := s.ListContainers(ctx)
	if err != nil {
		t.Fatalf("ListContainers: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("no container should have been created, got %v", names)
	}
}

func TestRemoveContainer_NotEmpty(t *testing.T) {
	modes(t, func(t *testing.T, s *Store, _ *s3test.Server) {
		ctx := context.Background()
		if _, err := s.PutBytes(ctx, "full", "a.txt", []byte("a")); err != nil {
			t.Fatalf("Put: %v", err)
		}
		err := s.RemoveContainer(ctx, "full")
		if !osserr.IsConflict(err) {
			t.Fatalf("expected conflict, got %v", err)
		}
		if ok, _ := s.ContainerExists(ctx, "full"); !ok {
			t.Error("container should survive a failed remove")
		}
	})
}

func TestRemoveContainer_Missing(t *testing.T) {
	modes(t, func(t *testing.T, s *Store, _ *s3test.Server) {
		if err := s.RemoveContainer(context.Background(), "ghost"); !osserr.IsNotFound(err) {
			t.Errorf("expected not found, got %v", err)
		}
	})
}

func TestListContainers(t *testing.T) {
	modes(t, func(t *testing.T, s *Store, _ *s3test.Server) {
		ctx := context.Background()
		for _, name := range []string{"alpha", "beta", "gamma"} {
			if err := s.CreateContainer(ctx, name); err != nil {
				t.Fatalf("CreateContainer %s: %v", name, err)
			}
		}
		names, err := s.ListContainers(ctx)
		if err != nil {
			t.Fatalf("ListContainers: %v", err)
		}
		for _, want := range []string{"alpha", "beta", "gamma"} {
			if !slices.Contains(names, want) {
				t.Errorf("missing %s in %v", want, names)
			}
		}
	})
}

func TestList(t *testing.T) {
	modes(t, func(t *testing.T, s *Store, _ *s3test.Server) {
		ctx := context.Background()
		for _, key := range []string{"logs/a.log", "logs/b.log", "img/c.png"} {
			if _, err := s.PutBytes(ctx, "data", key, []byte(key)); err != nil {
				t.Fatalf("Put %s: %v", key, err)
			}
		}

		all, err := s.List(ctx, "data", "")
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		if len(all) != 3 {
			t.Fatalf("expected 3 objects, got %d: %+v", len(all), all)
		}

		logs, err := s.List(ctx, "data", "logs/")
		if err != nil {
			t.Fatalf("List logs: %v", err)
		}
		var keys []string
		for _, o := range logs {
			keys = append(keys, o.Key)
		}
		slices.Sort(keys)
		if !slices.Equal(keys, []string{"logs/a.log", "logs/b.log"}) {
			t.Errorf("List logs: got %v", keys)
		}
		if logs[0].Size != int64(len("logs/a.log")) {
			t.Errorf("size: got %d", logs[0].Size)
		}
	})
}

func TestList_EmptyContainerOmitsMarker(t *testing.T) {
	s, _ := newFolderStore(t)
	ctx := context.Background()
	if err := s.CreateContainer(ctx, "empty"); err != nil {
		t.Fatalf("CreateContainer: %v", err)
	}
	objs, err := s.List(ctx, "empty", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 0 {
		t.Errorf("expected no objects, got %+v", objs)
	}
}

func TestPurge(t *testing.T) {
	modes(t, func(t *testing.T, s *Store, _ *s3test.Server) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			if _, err := s.PutBytes(ctx, "junk", fmt.Sprintf("f%d", i), []byte("x")); err != nil {
				t.Fatalf("Put: %v", err)
			}
		}
		n, err := s.Purge(ctx, "junk")
		if err != nil {
			t.Fatalf("Purge: %v", err)
		}
		if n != 5 {
			t.Errorf("expected 5 deleted, got %d", n)
		}
		objs, _ := s.List(ctx, "junk", "")
		if len(objs) != 0 {
			t.Errorf("expected empty container, got %d objects", len(objs))
		}
		if ok, _ := s.ContainerExists(ctx, "junk"); !ok {
			t.Error("purge should keep the container")
		}
		if err := s.RemoveContainer(ctx, "junk"); err != nil {
			t.Errorf("remove after purge: %v", err)
		}
	})
}

func TestPurge_LeavesSiblingContainers(t *testing.T) {
	s, _ := newFolderStore(t)
	ctx := context.Background()
	s.PutBytes(ctx, "one", "a", []byte("a"))
	s.PutBytes(ctx, "one-more", "b", []byte("b"))

	if _, err := s.Purge(ctx, "one"); err != nil {
		t.Fatalf("Purge: %v", err)
	}
	objs, err := s.List(ctx, "one-more", "")
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(objs) != 1 {
		t.Errorf("sibling container lost objects: %+v", objs)
	}
}

func TestStore_EmitsEvents(t *testing.T) {
	sink := &recordingSink{}
	s, _ := newFolderStore(t, WithSink(sink))
	ctx := context.Background()

	if _, err := s.PutBytes(ctx, "events", "k", []byte("v")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, err := s.Copy(ctx, "events", "k", "events", "k2"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := s.Delete(ctx, "events", "k"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	want := []string{notify.ContainerCreated, notify.ObjectCreatedPut, notify.ObjectCreatedCopy, notify.ObjectRemovedDelete}
	if got := sink.names(); !slices.Equal(got, want) {
		t.Errorf("events: got %v, want %v", got, want)
	}
	sink.mu.Lock()
	defer sink.mu.Unlock()
	if ev := sink.events[1]; ev.Container != "events" || ev.Key != "k" || ev.Size != 1 {
		t.Errorf("put event: %+v", ev)
	}
}
