package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/eniz1806/VaultOSS/internal/accesslog"
	"github.com/eniz1806/VaultOSS/internal/config"
)

// Event names.
const (
	ObjectCreatedPut       = "s3:ObjectCreated:Put"
	ObjectCreatedCopy      = "s3:ObjectCreated:Copy"
	ObjectCreatedMultipart = "s3:ObjectCreated:CompleteMultipartUpload"
	ObjectRemovedDelete    = "s3:ObjectRemoved:Delete"
	ContainerCreated       = "vaultoss:ContainerCreated"
	ContainerRemoved       = "vaultoss:ContainerRemoved"
)

// Event describes one completed mutation. Container is the logical name.
type Event struct {
	Name      string
	Container string
	Key       string
	Size      int64
	ETag      string
	Time      time.Time
}

// Sink receives events after the operation they describe has succeeded.
type Sink interface {
	Notify(ctx context.Context, ev Event)
}

// S3Event matches the AWS S3 event notification JSON format.
type S3Event struct {
	Records []S3EventRecord `json:"Records"`
}

type S3EventRecord struct {
	EventVersion string   `json:"eventVersion"`
	EventSource  string   `json:"eventSource"`
	EventTime    string   `json:"eventTime"`
	EventName    string   `json:"eventName"`
	S3           S3Detail `json:"s3"`
}

type S3Detail struct {
	Bucket S3Bucket `json:"bucket"`
	Object S3Object `json:"object"`
}

type S3Bucket struct {
	Name string `json:"name"`
}

type S3Object struct {
	Key  string `json:"key,omitempty"`
	Size int64  `json:"size"`
	ETag string `json:"eTag,omitempty"`
}

// Backend is the interface for notification delivery backends.
type Backend interface {
	Name() string
	Publish(ctx context.Context, payload []byte) error
	Close() error
}

// Observer is told about every publish attempt.
type Observer interface {
	ObservePublish(backend string, err error)
}

type subscription struct {
	backend Backend
	events  []string // empty matches everything
}

// Dispatcher fans events out to its backends synchronously. Publish failures
// are logged and reported to the observer, never returned.
type Dispatcher struct {
	mu       sync.Mutex
	subs     []subscription
	observer Observer
}

// NewDispatcher creates a dispatcher. observer may be nil.
func NewDispatcher(observer Observer) *Dispatcher {
	return &Dispatcher{observer: observer}
}

// NewFromConfig registers a backend for every configured section.
func NewFromConfig(cfg config.NotificationsConfig, observer Observer) (*Dispatcher, error) {
	d := NewDispatcher(observer)
	if cfg.NATS.URL != "" {
		b, err := NewNATSBackend(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			return nil, fmt.Errorf("nats backend: %w", err)
		}
		d.AddBackend(b)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		d.AddBackend(NewKafkaBackend(cfg.Kafka))
	}
	if cfg.Redis.Addr != "" {
		d.AddBackend(NewRedisBackend(cfg.Redis.Addr, cfg.Redis.Channel, cfg.Redis.ListKey))
	}
	if cfg.File.Path != "" {
		l, err := accesslog.New(cfg.File.Path)
		if err != nil {
			d.Close()
			return nil, fmt.Errorf("file backend: %w", err)
		}
		d.AddBackend(l)
	}
	return d, nil
}

// AddBackend registers a backend for the given event patterns, or for all
// events when none are given.
func (d *Dispatcher) AddBackend(b Backend, events ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subs = append(d.subs, subscription{backend: b, events: events})
	slog.Info("notification backend registered", "backend", b.Name())
}

// Len returns the number of registered backends.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.subs)
}

// Close closes every backend.
func (d *Dispatcher) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	var errs []error
	for _, s := range d.subs {
		if err := s.backend.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", s.backend.Name(), err))
		}
	}
	d.subs = nil
	return errors.Join(errs...)
}

// Notify implements Sink.
func (d *Dispatcher) Notify(ctx context.Context, ev Event) {
	d.mu.Lock()
	subs := make([]subscription, len(d.subs))
	copy(subs, d.subs)
	d.mu.Unlock()
	if len(subs) == 0 {
		return
	}

	payload, err := Marshal(ev)
	if err != nil {
		slog.Error("notify error marshaling event", "error", err)
		return
	}

	for _, s := range subs {
		if len(s.events) > 0 && !matchEvent(s.events, ev.Name) {
			continue
		}
		err := s.backend.Publish(ctx, payload)
		if err != nil {
			slog.Error("notify backend publish error", "backend", s.backend.Name(), "event", ev.Name, "error", err)
		}
		if d.observer != nil {
			d.observer.ObservePublish(s.backend.Name(), err)
		}
	}
}

// Marshal encodes ev as a single-record S3 event document.
func Marshal(ev Event) ([]byte, error) {
	t := ev.Time
	if t.IsZero() {
		t = time.Now()
	}
	return json.Marshal(S3Event{
		Records: []S3EventRecord{{
			EventVersion: "2.1",
			EventSource:  "vaultoss",
			EventTime:    t.UTC().Format(time.RFC3339),
			EventName:    ev.Name,
			S3: S3Detail{
				Bucket: S3Bucket{Name: ev.Container},
				Object: S3Object{Key: ev.Key, Size: ev.Size, ETag: ev.ETag},
			},
		}},
	})
}

// matchEvent checks if the actual event type matches any of the configured event patterns.
func matchEvent(patterns []string, actual string) bool {
	for _, p := range patterns {
		if p == actual {
			return true
		}
		// "s3:ObjectCreated:*" matches "s3:ObjectCreated:Put"
		if strings.HasSuffix(p, ":*") && strings.HasPrefix(actual, p[:len(p)-1]) {
			return true
		}
		if p == "*" || p == "s3:*" {
			return true
		}
	}
	return false
}
