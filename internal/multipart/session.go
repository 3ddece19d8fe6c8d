package multipart

import (
	"sort"
	"sync"

	"github.com/eniz1806/VaultOSS/internal/address"
)

// State is the lifecycle position of an upload session.
type State int

const (
	StateInitiated State = iota
	StateUploading
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "initiated"
	case StateUploading:
		return "uploading"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further calls are accepted.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// Part is one uploaded chunk of a session.
type Part struct {
	Number int32
	ETag   string
	Size   int64
}

// Session tracks one multipart upload. It is safe for concurrent part uploads.
type Session struct {
	UploadID  string
	Container string
	Key       string
	Target    address.Target

	mu    sync.Mutex
	state State
	parts map[int32]Part
}

func newSession(uploadID, container, key string, target address.Target) *Session {
	return &Session{
		UploadID:  uploadID,
		Container: container,
		Key:       key,
		Target:    target,
		state:     StateInitiated,
		parts:     make(map[int32]Part),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Parts returns the parts recorded so far in ascending part-number order.
// Re-uploading a part number replaces the earlier entry.
func (s *Session) Parts() []Part {
	s.mu.Lock()
	defer s.mu.Unlock()
	parts := make([]Part, 0, len(s.parts))
	for _, p := range s.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].Number < parts[j].Number })
	return parts
}

// Size is the total size of the recorded parts.
func (s *Session) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, p := range s.parts {
		n += p.Size
	}
	return n
}

func (s *Session) record(p Part) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.parts[p.Number] = p
	if s.state == StateInitiated {
		s.state = StateUploading
	}
}

func (s *Session) finish(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}
