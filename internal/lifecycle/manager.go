// Package lifecycle manages per-prefix expiration rules on the backend.
//
// A bucket holds one lifecycle configuration shared by every prefix, so each
// change is a read-modify-write of the whole rule set. Rules are merged by
// id: submitting a rule overwrites the expiration of the one with the same id
// (or the same plain prefix filter) and leaves every other rule untouched.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cespare/xxhash/v2"

	"github.com/eniz1806/VaultOSS/internal/address"
	"github.com/eniz1806/VaultOSS/internal/osserr"
)

const noConfigCode = "NoSuchLifecycleConfiguration"

// maxLabel bounds the readable part of a rule id; S3 allows 255 characters.
const maxLabel = 200

// API is the subset of *s3.Client the manager calls.
type API interface {
	GetBucketLifecycleConfiguration(ctx context.Context, in *s3.GetBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.GetBucketLifecycleConfigurationOutput, error)
	PutBucketLifecycleConfiguration(ctx context.Context, in *s3.PutBucketLifecycleConfigurationInput, optFns ...func(*s3.Options)) (*s3.PutBucketLifecycleConfigurationOutput, error)
	DeleteBucketLifecycle(ctx context.Context, in *s3.DeleteBucketLifecycleInput, optFns ...func(*s3.Options)) (*s3.DeleteBucketLifecycleOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

var _ API = (*s3.Client)(nil)

// ContainerEnsurer creates a container when it does not exist yet.
type ContainerEnsurer interface {
	EnsureContainer(ctx context.Context, name string) error
}

type Status string

const (
	StatusEnabled   Status = "Enabled"
	StatusSuspended Status = "Suspended"
)

// Rule is an expiration rule scoped to one physical prefix.
type Rule struct {
	ID             string
	Prefix         string
	ExpirationDays int32
	Status         Status
}

// Properties summarizes a container: the objects under its prefix and the
// rule, if any, whose filter prefix is exactly that prefix.
type Properties struct {
	Container string
	Bucket    string
	Prefix    string
	Size      int64
	Objects   int64
	Rule      *Rule
}

// Manager submits lifecycle rules. Submissions to the same bucket are
// serialized within the process; concurrent writers in other processes can
// still overwrite each other.
type Manager struct {
	api      API
	strategy address.Strategy
	ensurer  ContainerEnsurer

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(api API, strategy address.Strategy, ensurer ContainerEnsurer) *Manager {
	return &Manager{
		api:      api,
		strategy: strategy,
		ensurer:  ensurer,
		locks:    make(map[string]*sync.Mutex),
	}
}

func (m *Manager) lock(bucket string) func() {
	m.mu.Lock()
	l, ok := m.locks[bucket]
	if !ok {
		l = &sync.Mutex{}
		m.locks[bucket] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// RuleID derives the id of the rule that expires physical prefix. The same
// prefix always yields the same id.
func RuleID(prefix string) string {
	label := strings.Trim(strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		}
		return '-'
	}, prefix), "-")
	if label == "" {
		label = "all"
	}
	if len(label) > maxLabel {
		label = label[:maxLabel]
	}
	return fmt.Sprintf("expire-%s-%016x", label, xxhash.Sum64String(prefix))
}

// SetExpiration expires every object in the container after days.
func (m *Manager) SetExpiration(ctx context.Context, container string, days int) error {
	return m.SetPrefixExpiration(ctx, container, "", days)
}

// SetPrefixExpiration expires objects under prefix in the container after
// days, creating the container first if needed.
func (m *Manager) SetPrefixExpiration(ctx context.Context, container, prefix string, days int) error {
	const op = "set expiration"
	if err := address.ValidateContainer(container); err != nil {
		return osserr.Invalid(op, "%v", err)
	}
	if days <= 0 {
		return osserr.Invalid(op, "expiration days must be positive, got %d", days)
	}
	if err := m.ensurer.EnsureContainer(ctx, container); err != nil {
		return osserr.Wrap(op, err)
	}

	t := m.strategy.Prefix(container, prefix)
	rule := Rule{ID: RuleID(t.Key), Prefix: t.Key, ExpirationDays: int32(days), Status: StatusEnabled}

	unlock := m.lock(t.Bucket)
	defer unlock()

	current, err := m.fetch(ctx, t.Bucket)
	if err != nil {
		return osserr.Wrap(op, err)
	}
	if err := m.submit(ctx, t.Bucket, merge(current, rule)); err != nil {
		return osserr.Wrap(op, err)
	}
	slog.Debug("lifecycle rule submitted", "bucket", t.Bucket, "prefix", t.Key, "id", rule.ID, "days", days)
	return nil
}

// RemoveExpiration drops the rule for prefix in the container. Removing a
// rule that does not exist succeeds.
func (m *Manager) RemoveExpiration(ctx context.Context, container, prefix string) error {
	const op = "remove expiration"
	if err := address.ValidateContainer(container); err != nil {
		return osserr.Invalid(op, "%v", err)
	}
	t := m.strategy.Prefix(container, prefix)
	id := RuleID(t.Key)

	unlock := m.lock(t.Bucket)
	defer unlock()

	current, err := m.fetch(ctx, t.Bucket)
	if err != nil {
		return osserr.Wrap(op, err)
	}
	kept := make([]types.LifecycleRule, 0, len(current))
	for _, r := range current {
		if !matches(r, id, t.Key) {
			kept = append(kept, r)
		}
	}
	if len(kept) == len(current) {
		return nil
	}

	if len(kept) == 0 {
		_, err = m.api.DeleteBucketLifecycle(ctx, &s3.DeleteBucketLifecycleInput{Bucket: aws.String(t.Bucket)})
	} else {
		err = m.submit(ctx, t.Bucket, kept)
	}
	if err != nil {
		return osserr.Wrap(op, err)
	}
	slog.Debug("lifecycle rule removed", "bucket", t.Bucket, "prefix", t.Key, "id", id)
	return nil
}

// Rules returns the expiration rules that apply inside the container. In
// folder mode rules for other containers of the base bucket are left out.
func (m *Manager) Rules(ctx context.Context, container string) ([]Rule, error) {
	const op = "list rules"
	if err := address.ValidateContainer(container); err != nil {
		return nil, osserr.Invalid(op, "%v", err)
	}
	t := m.strategy.Container(container)
	current, err := m.fetch(ctx, t.Bucket)
	if err != nil {
		return nil, osserr.Wrap(op, err)
	}
	var rules []Rule
	for _, r := range current {
		if r.Expiration == nil || r.Expiration.Days == nil {
			continue
		}
		if prefix := rulePrefix(r); strings.HasPrefix(prefix, t.Key) {
			rules = append(rules, fromWire(r))
		}
	}
	return rules, nil
}

// Properties reports size, object count and the container-wide rule.
func (m *Manager) Properties(ctx context.Context, container string) (Properties, error) {
	const op = "properties"
	if err := address.ValidateContainer(container); err != nil {
		return Properties{}, osserr.Invalid(op, "%v", err)
	}
	t := m.strategy.Prefix(container, "")
	marker := m.strategy.Container(container).Key
	props := Properties{Container: address.CleanContainer(container), Bucket: t.Bucket, Prefix: t.Key}

	in := &s3.ListObjectsV2Input{Bucket: aws.String(t.Bucket)}
	if t.Key != "" {
		in.Prefix = aws.String(t.Key)
	}
	p := s3.NewListObjectsV2Paginator(m.api, in)
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return Properties{}, osserr.Wrap(op, err)
		}
		for _, obj := range page.Contents {
			if marker != "" && aws.ToString(obj.Key) == marker {
				continue
			}
			props.Objects++
			props.Size += aws.ToInt64(obj.Size)
		}
	}

	current, err := m.fetch(ctx, t.Bucket)
	if err != nil {
		return Properties{}, osserr.Wrap(op, err)
	}
	for _, r := range current {
		if r.Expiration != nil && r.Expiration.Days != nil && plainPrefix(r) && rulePrefix(r) == t.Key {
			rule := fromWire(r)
			props.Rule = &rule
			break
		}
	}
	return props, nil
}

// fetch returns the bucket's rules. A bucket without a configuration has none.
func (m *Manager) fetch(ctx context.Context, bucket string) ([]types.LifecycleRule, error) {
	out, err := m.api.GetBucketLifecycleConfiguration(ctx, &s3.GetBucketLifecycleConfigurationInput{
		Bucket: aws.String(bucket),
	})
	if err != nil {
		if osserr.Code(err) == noConfigCode {
			return nil, nil
		}
		return nil, err
	}
	return out.Rules, nil
}

func (m *Manager) submit(ctx context.Context, bucket string, rules []types.LifecycleRule) error {
	_, err := m.api.PutBucketLifecycleConfiguration(ctx, &s3.PutBucketLifecycleConfigurationInput{
		Bucket:                 aws.String(bucket),
		LifecycleConfiguration: &types.BucketLifecycleConfiguration{Rules: rules},
	})
	return err
}

// merge folds r into the first rule matching it by id or plain prefix, or
// appends r. Further matches are dropped. Rules it does not match are
// returned unchanged and in order.
func merge(current []types.LifecycleRule, r Rule) []types.LifecycleRule {
	merged := make([]types.LifecycleRule, 0, len(current)+1)
	replaced := false
	for _, existing := range current {
		if matches(existing, r.ID, r.Prefix) {
			if !replaced {
				merged = append(merged, overlay(existing, r))
				replaced = true
			}
			continue
		}
		merged = append(merged, existing)
	}
	if !replaced {
		merged = append(merged, toWire(r))
	}
	return merged
}

// overlay rewrites the id, filter, status and expiration of existing to r.
// Transitions, noncurrent-version actions and the multipart abort are kept.
func overlay(existing types.LifecycleRule, r Rule) types.LifecycleRule {
	w := toWire(r)
	existing.ID = w.ID
	existing.Status = w.Status
	existing.Filter = w.Filter
	existing.Prefix = nil
	existing.Expiration = w.Expiration
	return existing
}

func matches(r types.LifecycleRule, id, prefix string) bool {
	if aws.ToString(r.ID) == id {
		return true
	}
	return plainPrefix(r) && rulePrefix(r) == prefix
}

func rulePrefix(r types.LifecycleRule) string {
	if r.Filter != nil {
		if r.Filter.Prefix != nil {
			return *r.Filter.Prefix
		}
		if r.Filter.And != nil {
			return aws.ToString(r.Filter.And.Prefix)
		}
		return ""
	}
	// Legacy rules carry the prefix outside the filter.
	return aws.ToString(r.Prefix)
}

// plainPrefix reports whether the rule filters by prefix alone.
func plainPrefix(r types.LifecycleRule) bool {
	f := r.Filter
	return f == nil || (f.And == nil && f.Tag == nil && f.ObjectSizeGreaterThan == nil && f.ObjectSizeLessThan == nil)
}

func toWire(r Rule) types.LifecycleRule {
	status := types.ExpirationStatusEnabled
	if r.Status == StatusSuspended {
		status = types.ExpirationStatusDisabled
	}
	return types.LifecycleRule{
		ID:         aws.String(r.ID),
		Status:     status,
		Filter:     &types.LifecycleRuleFilter{Prefix: aws.String(r.Prefix)},
		Expiration: &types.LifecycleExpiration{Days: aws.Int32(r.ExpirationDays)},
	}
}

func fromWire(r types.LifecycleRule) Rule {
	rule := Rule{
		ID:     aws.ToString(r.ID),
		Prefix: rulePrefix(r),
		Status: StatusEnabled,
	}
	if r.Status == types.ExpirationStatusDisabled {
		rule.Status = StatusSuspended
	}
	if r.Expiration != nil {
		rule.ExpirationDays = aws.ToInt32(r.Expiration.Days)
	}
	return rule
}
