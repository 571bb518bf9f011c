// pkg/storage/storage.go
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// PublicStore is the object-storage collaborator: it accepts raw bytes and
// returns a public URL the platform can fetch. The pipeline only ever passes
// URLs around; it streams bytes to the platform itself solely for uploads it
// performs directly (local ad images and account videos).
type PublicStore interface {
	Put(ctx context.Context, name string, src io.Reader) (url string, err error)
}

// Memory is an in-process PublicStore for dev and tests.
type Memory struct {
	BaseURL string

	mu      sync.Mutex
	objects map[string][]byte
}

func NewMemory(baseURL string) *Memory {
	return &Memory{BaseURL: strings.TrimRight(baseURL, "/"), objects: map[string][]byte{}}
}

func (m *Memory) Put(ctx context.Context, name string, src io.Reader) (string, error) {
	b, err := io.ReadAll(src)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	m.objects[name] = b
	m.mu.Unlock()
	return fmt.Sprintf("%s/%s", m.BaseURL, name), nil
}

// Object returns stored bytes, for tests.
func (m *Memory) Object(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.objects[name]
	return b, ok
}
