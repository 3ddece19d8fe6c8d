package address

import (
	"errors"
	"fmt"
	"strings"
)

// Mode identifies how logical containers map onto physical buckets.
type Mode int

const (
	// ModeDirect maps every container to a bucket of the same name.
	ModeDirect Mode = iota
	// ModeFolder emulates containers as "name/" prefixes inside one base bucket.
	ModeFolder
)

func (m Mode) String() string {
	if m == ModeFolder {
		return "folder"
	}
	return "direct"
}

// Target is the physical location of an object or prefix in the backend.
type Target struct {
	Bucket string
	Key    string
}

func (t Target) String() string {
	if t.Key == "" {
		return t.Bucket
	}
	return t.Bucket + "/" + t.Key
}

// Strategy rewrites logical (container, key) pairs into physical targets.
// Implementations are pure and safe for concurrent use.
type Strategy interface {
	Mode() Mode
	// Base returns the base bucket in folder mode and "" in direct mode.
	Base() string
	// Resolve maps a logical object. An empty key addresses the container itself.
	Resolve(container, key string) Target
	// Container returns the target that represents the container: the bucket
	// root in direct mode, the zero-byte "name/" marker in folder mode.
	Container(name string) Target
	// Prefix maps a key prefix inside a container to a physical listing prefix.
	Prefix(container, prefix string) Target
	// Logical strips the container's physical prefix from a key.
	Logical(container, physicalKey string) string
}

// New returns the folder strategy when baseBucket is set and the direct one otherwise.
func New(baseBucket string) Strategy {
	base := CleanContainer(baseBucket)
	if base == "" {
		return Direct{}
	}
	return Folder{base: base}
}

// CleanContainer strips surrounding slashes from a container name.
func CleanContainer(name string) string {
	return strings.Trim(strings.TrimSpace(name), "/")
}

// ValidateContainer rejects names that are empty after cleaning or that
// still contain a slash, which would nest one folder inside another.
func ValidateContainer(name string) error {
	clean := CleanContainer(name)
	if clean == "" {
		return errors.New("container name is empty")
	}
	if strings.Contains(clean, "/") {
		return fmt.Errorf("container name %q must not contain \"/\"", clean)
	}
	return nil
}

// CleanKey strips leading slashes from an object key.
func CleanKey(key string) string {
	return strings.TrimLeft(key, "/")
}

// FolderPrefix returns name with exactly one trailing slash, or "" for an empty name.
func FolderPrefix(name string) string {
	name = CleanContainer(name)
	if name == "" {
		return ""
	}
	return name + "/"
}

// Direct addresses buckets and keys unchanged.
type Direct struct{}

func (Direct) Mode() Mode   { return ModeDirect }
func (Direct) Base() string { return "" }

func (Direct) Resolve(container, key string) Target {
	return Target{Bucket: CleanContainer(container), Key: CleanKey(key)}
}

func (Direct) Container(name string) Target {
	return Target{Bucket: CleanContainer(name)}
}

func (Direct) Prefix(container, prefix string) Target {
	return Target{Bucket: CleanContainer(container), Key: CleanKey(prefix)}
}

func (Direct) Logical(_, physicalKey string) string {
	return physicalKey
}

// Folder places every container under a "name/" prefix of one base bucket.
type Folder struct {
	base string
}

// NewFolder returns a folder strategy rooted at base.
func NewFolder(base string) Folder {
	return Folder{base: CleanContainer(base)}
}

func (f Folder) Mode() Mode   { return ModeFolder }
func (f Folder) Base() string { return f.base }

func (f Folder) Resolve(container, key string) Target {
	return Target{Bucket: f.base, Key: FolderPrefix(container) + CleanKey(key)}
}

func (f Folder) Container(name string) Target {
	return Target{Bucket: f.base, Key: FolderPrefix(name)}
}

func (f Folder) Prefix(container, prefix string) Target {
	return f.Resolve(container, prefix)
}

func (f Folder) Logical(container, physicalKey string) string {
	return strings.TrimPrefix(physicalKey, FolderPrefix(container))
}
