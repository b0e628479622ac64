package testutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sync"
)

// Events is an ordered log shared between fakes so tests can assert on the
// interleaving of uploads, marker writes and notifications.
type Events struct {
	mu     sync.Mutex
	events []string
}

func (e *Events) Add(format string, args ...any) {
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, fmt.Sprintf(format, args...))
}

func (e *Events) List() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.events...)
}

// MemoryStore is an in-memory remote.Store. Operations can be made to fail
// with Fail, keyed by "ensure-dir <dir>", "upload <dir>/<name>" or
// "download <dir>/<name>".
type MemoryStore struct {
	Events *Events

	mu       sync.Mutex
	dirs     map[string]bool
	files    map[string][]byte
	failures map[string]int
	calls    map[string]int
}

func NewMemoryStore(events *Events) *MemoryStore {
	return &MemoryStore{
		Events:   events,
		dirs:     map[string]bool{},
		files:    map[string][]byte{},
		failures: map[string]int{},
		calls:    map[string]int{},
	}
}

// Fail makes the next n calls of op return an error, n < 0 fails forever.
func (s *MemoryStore) Fail(op string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op] = n
}

// Calls returns how many times op was attempted.
func (s *MemoryStore) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

func (s *MemoryStore) attempt(op string) error {
	s.calls[op]++
	n := s.failures[op]
	if n == 0 {
		return nil
	}
	if n > 0 {
		s.failures[op] = n - 1
	}
	return fmt.Errorf("%s: injected failure", op)
}

// Put seeds a file without recording an event.
func (s *MemoryStore) Put(dir, name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirs[dir] = true
	s.files[path.Join(dir, name)] = append([]byte(nil), data...)
}

func (s *MemoryStore) File(dir, name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[path.Join(dir, name)]
	return data, ok
}

func (s *MemoryStore) EnsureDir(ctx context.Context, dir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "ensure-dir " + dir
	err := s.attempt(op)
	if err != nil {
		return err
	}
	s.dirs[dir] = true
	s.Events.Add(op)
	return nil
}

func (s *MemoryStore) Upload(ctx context.Context, dir, name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "upload " + path.Join(dir, name)
	err := s.attempt(op)
	if err != nil {
		return err
	}
	if !s.dirs[dir] {
		return fmt.Errorf("%s: directory %s does not exist", op, dir)
	}
	s.files[path.Join(dir, name)] = append([]byte(nil), data...)
	s.Events.Add(op)
	return nil
}

func (s *MemoryStore) Download(ctx context.Context, dir, name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	op := "download " + path.Join(dir, name)
	err := s.attempt(op)
	if err != nil {
		return nil, err
	}
	data, ok := s.files[path.Join(dir, name)]
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, os.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

func (s *MemoryStore) Close() error {
	return nil
}

// MemoryMarker is an in-memory marker.Store.
type MemoryMarker struct {
	Events   *Events
	Identity string
	WriteErr error
	Writes   int
}

func (m *MemoryMarker) Read(ctx context.Context) (string, error) {
	return m.Identity, nil
}

func (m *MemoryMarker) Write(ctx context.Context, identity string) error {
	m.Writes++
	if m.WriteErr != nil {
		return m.WriteErr
	}
	if identity == "" {
		return errors.New("refusing to write an empty marker")
	}
	m.Identity = identity
	m.Events.Add("marker %s", identity)
	return nil
}
