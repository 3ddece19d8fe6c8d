package storage

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/eniz1806/VaultOSS/internal/osserr"
)

const allUsersURI = "http://acs.amazonaws.com/groups/global/AllUsers"

// SetTags replaces the object's tag set with tags.
func (s *Store) SetTags(ctx context.Context, container, key string, tags map[string]string) error {
	const op = "set tags"
	if err := checkObject(op, container, key); err != nil {
		return err
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	set := make([]types.Tag, 0, len(keys))
	for _, k := range keys {
		set = append(set, types.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}

	t := s.strategy.Resolve(container, key)
	if _, err := s.api.PutObjectTagging(ctx, &s3.PutObjectTaggingInput{
		Bucket:  aws.String(t.Bucket),
		Key:     aws.String(t.Key),
		Tagging: &types.Tagging{TagSet: set},
	}); err != nil {
		return osserr.Wrap(op, err)
	}
	slog.Debug("object tags set", "target", t.String(), "tags", len(set))
	return nil
}

// Tags returns the object's tag set.
func (s *Store) Tags(ctx context.Context, container, key string) (map[string]string, error) {
	const op = "get tags"
	if err := checkObject(op, container, key); err != nil {
		return nil, err
	}
	t := s.strategy.Resolve(container, key)
	out, err := s.api.GetObjectTagging(ctx, &s3.GetObjectTaggingInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(t.Key),
	})
	if err != nil {
		return nil, osserr.Wrap(op, err)
	}
	tags := make(map[string]string, len(out.TagSet))
	for _, tag := range out.TagSet {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return tags, nil
}

// Grant is one entry of an object ACL.
type Grant struct {
	Grantee    string // canonical id, group URI or email
	Permission string
}

// ACL is an object's access control list.
type ACL struct {
	Owner  string
	Grants []Grant
}

// PublicRead reports whether anonymous users may read the object.
func (a ACL) PublicRead() bool {
	for _, g := range a.Grants {
		if g.Grantee == allUsersURI && (g.Permission == string(types.PermissionRead) || g.Permission == string(types.PermissionFullControl)) {
			return true
		}
	}
	return false
}

// SetACL applies a canned ACL to the object.
func (s *Store) SetACL(ctx context.Context, container, key, acl string) error {
	const op = "set acl"
	if err := checkObject(op, container, key); err != nil {
		return err
	}
	if !validObjectACL(acl) {
		return osserr.Invalid(op, "unknown canned acl %q", acl)
	}
	t := s.strategy.Resolve(container, key)
	if _, err := s.api.PutObjectAcl(ctx, &s3.PutObjectAclInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(t.Key),
		ACL:    types.ObjectCannedACL(acl),
	}); err != nil {
		return osserr.Wrap(op, err)
	}
	slog.Debug("object acl set", "target", t.String(), "acl", acl)
	return nil
}

// ACL returns the object's grants.
func (s *Store) ACL(ctx context.Context, container, key string) (ACL, error) {
	const op = "get acl"
	if err := checkObject(op, container, key); err != nil {
		return ACL{}, err
	}
	t := s.strategy.Resolve(container, key)
	out, err := s.api.GetObjectAcl(ctx, &s3.GetObjectAclInput{
		Bucket: aws.String(t.Bucket),
		Key:    aws.String(t.Key),
	})
	if err != nil {
		return ACL{}, osserr.Wrap(op, err)
	}

	var acl ACL
	if out.Owner != nil {
		acl.Owner = aws.ToString(out.Owner.ID)
	}
	for _, g := range out.Grants {
		if g.Grantee == nil {
			continue
		}
		grantee := aws.ToString(g.Grantee.ID)
		switch {
		case g.Grantee.URI != nil:
			grantee = aws.ToString(g.Grantee.URI)
		case g.Grantee.EmailAddress != nil:
			grantee = aws.ToString(g.Grantee.EmailAddress)
		}
		acl.Grants = append(acl.Grants, Grant{Grantee: grantee, Permission: string(g.Permission)})
	}
	return acl, nil
}

// SetVersioning enables or suspends versioning. In folder mode this changes
// the base bucket and so affects every container.
func (s *Store) SetVersioning(ctx context.Context, container string, enabled bool) error {
	const op = "set versioning"
	if err := checkContainer(op, container); err != nil {
		return err
	}
	status := types.BucketVersioningStatusSuspended
	if enabled {
		status = types.BucketVersioningStatusEnabled
	}
	t := s.strategy.Container(container)
	if _, err := s.api.PutBucketVersioning(ctx, &s3.PutBucketVersioningInput{
		Bucket:                  aws.String(t.Bucket),
		VersioningConfiguration: &types.VersioningConfiguration{Status: status},
	}); err != nil {
		return osserr.Wrap(op, err)
	}
	slog.Info("bucket versioning changed", "bucket", t.Bucket, "status", status)
	return nil
}

// Versioning returns "Enabled", "Suspended" or "" for a bucket that never had
// versioning configured.
func (s *Store) Versioning(ctx context.Context, container string) (string, error) {
	const op = "get versioning"
	if err := checkContainer(op, container); err != nil {
		return "", err
	}
	t := s.strategy.Container(container)
	out, err := s.api.GetBucketVersioning(ctx, &s3.GetBucketVersioningInput{Bucket: aws.String(t.Bucket)})
	if err != nil {
		return "", osserr.Wrap(op, err)
	}
	return string(out.Status), nil
}
