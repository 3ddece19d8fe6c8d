package multipart

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/notify"
	"github.com/eniz1806/VaultOSS/internal/osserr"
	"github.com/eniz1806/VaultOSS/internal/s3client/s3test"
	"github.com/eniz1806/VaultOSS/internal/storage"
)

const testBase = "vaultoss-base"

type harness struct {
	coord *Coordinator
	store *storage.Store
}

func newHarness(t *testing.T, base string, opts ...Option) *harness {
	t.Helper()
	srv := s3test.Start(t, base)
	if base != "" {
		srv.CreateBucket(t, base)
	}
	strategy := address.New(base)
	store := storage.New(srv.Client, strategy)
	return &harness{coord: New(srv.Client, strategy, store, opts...), store: store}
}

func modes(t *testing.T, fn func(t *testing.T, h *harness)) {
	t.Run("direct", func(t *testing.T) { fn(t, newHarness(t, "")) })
	t.Run("folder", func(t *testing.T) { fn(t, newHarness(t, testBase)) })
}

func chunk(b byte, n int) []byte {
	return bytes.Repeat([]byte{b}, n)
}

func readObject(t *testing.T, st *storage.Store, container, key string) []byte {
	t.Helper()
	rc, _, err := st.Get(context.Background(), container, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

func TestMultipart_OutOfOrderParts(t *testing.T) {
	modes(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		s, err := h.coord.Initiate(ctx, "videos", "movie.bin")
		if err != nil {
			t.Fatalf("Initiate: %v", err)
		}
		if s.State() != StateInitiated {
			t.Errorf("state: got %s", s.State())
		}

		bodies := map[int32][]byte{
			1: chunk('a', MinPartSize),
			2: chunk('b', MinPartSize),
			3: chunk('c', 1024),
		}
		var wg sync.WaitGroup
		errs := make(chan error, len(bodies))
		for _, n := range []int32{3, 1, 2} {
			wg.Add(1)
			go func(n int32) {
				defer wg.Done()
				_, err := h.coord.UploadPart(ctx, s, n, bytes.NewReader(bodies[n]), int64(len(bodies[n])))
				errs <- err
			}(n)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			if err != nil {
				t.Fatalf("UploadPart: %v", err)
			}
		}
		if s.State() != StateUploading {
			t.Errorf("state: got %s, want uploading", s.State())
		}

		listed, err := h.coord.ListParts(ctx, s)
		if err != nil {
			t.Fatalf("ListParts: %v", err)
		}
		if len(listed) != 3 || listed[0].Number != 1 || listed[2].Number != 3 {
			t.Fatalf("ListParts: got %+v", listed)
		}

		if _, err := h.coord.Complete(ctx, s, s.Parts()); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if s.State() != StateCompleted {
			t.Errorf("state: got %s, want completed", s.State())
		}

		want := append(append(append([]byte{}, bodies[1]...), bodies[2]...), bodies[3]...)
		if got := readObject(t, h.store, "videos", "movie.bin"); !bytes.Equal(got, want) {
			t.Errorf("assembled object mismatch: %d bytes, want %d", len(got), len(want))
		}
	})
}

func TestComplete_StaleETag(t *testing.T) {
	h := newHarness(t, testBase)
	ctx := context.Background()
	s, err := h.coord.Initiate(ctx, "docs", "big.bin")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	p1, err := h.coord.UploadPart(ctx, s, 1, bytes.NewReader(chunk('x', MinPartSize)), MinPartSize)
	if err != nil {
		t.Fatalf("UploadPart 1: %v", err)
	}
	p2, err := h.coord.UploadPart(ctx, s, 2, bytes.NewReader([]byte("tail")), 4)
	if err != nil {
		t.Fatalf("UploadPart 2: %v", err)
	}

	stale := p1
	stale.ETag = `"00000000000000000000000000000000"`
	_, err = h.coord.Complete(ctx, s, []Part{stale, p2})
	if !osserr.IsConflict(err) {
		t.Fatalf("expected conflict, got %v", err)
	}
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) || apiErr.ErrorCode() != "InvalidPart" {
		t.Errorf("expected wrapped InvalidPart, got %v", err)
	}
	if s.State().Terminal() {
		t.Fatal("failed completion should leave the session open")
	}

	if _, err := h.coord.Complete(ctx, s, []Part{p1, p2}); err != nil {
		t.Fatalf("Complete with fresh etags: %v", err)
	}
}

func TestComplete_TooSmallPart(t *testing.T) {
	h := newHarness(t, "")
	ctx := context.Background()
	s, err := h.coord.Initiate(ctx, "small", "x.bin")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	for _, n := range []int32{1, 2} {
		if _, err := h.coord.UploadPart(ctx, s, n, bytes.NewReader(chunk('s', 1024)), 1024); err != nil {
			t.Fatalf("UploadPart %d: %v", n, err)
		}
	}
	_, err = h.coord.Complete(ctx, s, s.Parts())
	if !osserr.IsInvalidArgument(err) || osserr.Code(err) != "EntityTooSmall" {
		t.Errorf("expected EntityTooSmall, got %v", err)
	}
	if err := h.coord.Abort(ctx, s); err != nil {
		t.Errorf("Abort: %v", err)
	}
}

func TestAbort_ZeroPartsThenClosed(t *testing.T) {
	modes(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		s, err := h.coord.Initiate(ctx, "aborts", "never.bin")
		if err != nil {
			t.Fatalf("Initiate: %v", err)
		}
		if err := h.coord.Abort(ctx, s); err != nil {
			t.Fatalf("Abort: %v", err)
		}
		if s.State() != StateAborted {
			t.Errorf("state: got %s", s.State())
		}

		if _, err := h.coord.UploadPart(ctx, s, 1, bytes.NewReader([]byte("x")), 1); !osserr.IsNotFound(err) {
			t.Errorf("UploadPart after abort: got %v", err)
		}
		if _, err := h.coord.Complete(ctx, s, []Part{{Number: 1, ETag: "e"}}); !osserr.IsNotFound(err) {
			t.Errorf("Complete after abort: got %v", err)
		}
		if _, err := h.coord.ListParts(ctx, s); !osserr.IsNotFound(err) {
			t.Errorf("ListParts after abort: got %v", err)
		}
		if err := h.coord.Abort(ctx, s); !osserr.IsNotFound(err) {
			t.Errorf("second Abort: got %v", err)
		}
		if _, err := h.coord.Resume(ctx, "aborts", "never.bin", s.UploadID); !osserr.IsNotFound(err) {
			t.Errorf("Resume after abort: got %v", err)
		}
	})
}

func TestResume(t *testing.T) {
	modes(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		s, err := h.coord.Initiate(ctx, "resume", "r.bin")
		if err != nil {
			t.Fatalf("Initiate: %v", err)
		}
		first, err := h.coord.UploadPart(ctx, s, 1, bytes.NewReader(chunk('1', MinPartSize)), MinPartSize)
		if err != nil {
			t.Fatalf("UploadPart: %v", err)
		}

		resumed, err := h.coord.Resume(ctx, "resume", "r.bin", s.UploadID)
		if err != nil {
			t.Fatalf("Resume: %v", err)
		}
		parts := resumed.Parts()
		if len(parts) != 1 || parts[0].ETag != first.ETag || parts[0].Size != MinPartSize {
			t.Fatalf("resumed parts: got %+v", parts)
		}
		if resumed.State() != StateUploading {
			t.Errorf("resumed state: got %s", resumed.State())
		}

		if _, err := h.coord.UploadPart(ctx, resumed, 2, bytes.NewReader([]byte("end")), 3); err != nil {
			t.Fatalf("UploadPart 2: %v", err)
		}
		if _, err := h.coord.Complete(ctx, resumed, resumed.Parts()); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		if got := readObject(t, h.store, "resume", "r.bin"); len(got) != MinPartSize+3 {
			t.Errorf("size: got %d", len(got))
		}
	})
}

func TestUploads(t *testing.T) {
	modes(t, func(t *testing.T, h *harness) {
		ctx := context.Background()
		a, err := h.coord.Initiate(ctx, "pending", "a.bin")
		if err != nil {
			t.Fatalf("Initiate a: %v", err)
		}
		if _, err := h.coord.Initiate(ctx, "pending", "dir/b.bin"); err != nil {
			t.Fatalf("Initiate b: %v", err)
		}

		uploads, err := h.coord.Uploads(ctx, "pending")
		if err != nil {
			t.Fatalf("Uploads: %v", err)
		}
		keys := map[string]string{}
		for _, u := range uploads {
			keys[u.Key] = u.UploadID
		}
		if len(keys) != 2 || keys["a.bin"] != a.UploadID || keys["dir/b.bin"] == "" {
			t.Errorf("Uploads: got %+v", uploads)
		}
	})
}

func TestUpload_Stream(t *testing.T) {
	sink := &recordingSink{}
	h := newHarness(t, testBase, WithSink(sink))
	ctx := context.Background()

	data := append(chunk('p', 2*MinPartSize), chunk('q', 777)...)
	etag, err := h.coord.Upload(ctx, "streams", "s.bin", io.MultiReader(bytes.NewReader(data)), MinPartSize,
		WithContentType("application/x-test"))
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if etag == "" {
		t.Error("expected etag")
	}
	if got := readObject(t, h.store, "streams", "s.bin"); !bytes.Equal(got, data) {
		t.Errorf("content mismatch: %d bytes, want %d", len(got), len(data))
	}
	info, err := h.store.Head(ctx, "streams", "s.bin")
	if err != nil {
		t.Fatalf("Head: %v", err)
	}
	if info.ContentType != "application/x-test" {
		t.Errorf("content type: got %q", info.ContentType)
	}

	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	if ev := sink.events[0]; ev.Name != notify.ObjectCreatedMultipart || ev.Container != "streams" || ev.Size != int64(len(data)) {
		t.Errorf("event: %+v", ev)
	}
}

func TestUpload_AbortsOnFailure(t *testing.T) {
	h := newHarness(t, testBase)
	ctx := context.Background()
	r := io.MultiReader(bytes.NewReader(chunk('z', MinPartSize)), errReader{errors.New("disk gone")})

	if _, err := h.coord.Upload(ctx, "broken", "b.bin", r, MinPartSize); err == nil {
		t.Fatal("expected error")
	}
	uploads, err := h.coord.Uploads(ctx, "broken")
	if err != nil {
		t.Fatalf("Uploads: %v", err)
	}
	if len(uploads) != 0 {
		t.Errorf("failed upload should have been aborted, found %+v", uploads)
	}
}

func TestUploadPart_InvalidNumber(t *testing.T) {
	h := newHarness(t, testBase)
	ctx := context.Background()
	s, err := h.coord.Initiate(ctx, "numbers", "n.bin")
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}
	for _, n := range []int32{0, -1, MaxPartNumber + 1} {
		if _, err := h.coord.UploadPart(ctx, s, n, bytes.NewReader(nil), 0); !osserr.IsInvalidArgument(err) {
			t.Errorf("part %d: expected invalid argument, got %v", n, err)
		}
	}
}

func TestInitiate_Invalid(t *testing.T) {
	h := newHarness(t, testBase)
	ctx := context.Background()
	if _, err := h.coord.Initiate(ctx, "", "k"); !osserr.IsInvalidArgument(err) {
		t.Errorf("empty container: got %v", err)
	}
	if _, err := h.coord.Initiate(ctx, "c1", "/"); !osserr.IsInvalidArgument(err) {
		t.Errorf("empty key: got %v", err)
	}
	if _, err := h.coord.Initiate(ctx, "a/b", "k"); !osserr.IsInvalidArgument(err) {
		t.Errorf("nested container: got %v", err)
	}
}

func TestResume_Invalid(t *testing.T) {
	h := newHarness(t, testBase)
	ctx := context.Background()
	tests := []struct{ name, container, key string }{
		{"empty container", "", "k"},
		{"nested container", "a/b", "k"},
		{"empty key", "c1", "/"},
	}
	for _, tt := range tests {
		if _, err := h.coord.Resume(ctx, tt.container, tt.key, "some-upload"); !osserr.IsInvalidArgument(err) {
			t.Errorf("%s: got %v", tt.name, err)
		}
	}
}

type errReader struct{ err error }

func (e errReader) Read([]byte) (int, error) { return 0, e.err }

type recordingSink struct {
	events []notify.Event
}

func (r *recordingSink) Notify(_ context.Context, ev notify.Event) {
	r.events = append(r.events, ev)
}

// countingAPI fails the test if a completion request reaches the backend.
type countingAPI struct {
	API
	completes int
}

func (c *countingAPI) CompleteMultipartUpload(context.Context, *s3.CompleteMultipartUploadInput, ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	c.completes++
	return &s3.CompleteMultipartUploadOutput{}, nil
}

func TestComplete_OrderValidatedLocally(t *testing.T) {
	api := &countingAPI{}
	c := New(api, address.New(testBase), nil)
	s := newSession("upload-1", "c1", "k", address.Target{Bucket: testBase, Key: "c1/k"})

	tests := map[string][]Part{
		"descending": {{Number: 2, ETag: "b"}, {Number: 1, ETag: "a"}},
		"duplicate":  {{Number: 1, ETag: "a"}, {Number: 1, ETag: "a"}},
		"empty":      nil,
	}
	for name, parts := range tests {
		if _, err := c.Complete(context.Background(), s, parts); !osserr.IsInvalidArgument(err) {
			t.Errorf("%s: expected invalid argument, got %v", name, err)
		}
	}
	if api.completes != 0 {
		t.Errorf("expected no backend requests, got %d", api.completes)
	}
}

func TestStateString(t *testing.T) {
	tests := map[State]string{
		StateInitiated: "initiated",
		StateUploading: "uploading",
		StateCompleted: "completed",
		StateAborted:   "aborted",
		State(99):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d): got %q, want %q", s, got, want)
		}
	}
}
