package clip

import (
	"fmt"
	"slices"
	"sync"
)

// Memory is a private clipboard held in process. Set simulates a change made
// by a desktop application and signals Watch; Write does not.
type Memory struct {
	mu      sync.Mutex
	items   []Item
	writes  int
	watchCh chan struct{}
}

// NewMemory returns an empty Memory backend.
func NewMemory() *Memory {
	return &Memory{watchCh: make(chan struct{}, 1)}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Read() ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.items), nil
}

func (m *Memory) Write(items []Item) error {
	for _, it := range items {
		if it.Mime != MimeText && it.Mime != MimePNG {
			return fmt.Errorf("unsupported MIME type: %s", it.Mime)
		}
	}
	m.mu.Lock()
	m.items = slices.Clone(items)
	m.writes++
	m.mu.Unlock()
	return nil
}

// Set replaces the contents as an outside application would.
func (m *Memory) Set(items ...Item) {
	m.mu.Lock()
	m.items = slices.Clone(items)
	m.mu.Unlock()
	select {
	case m.watchCh <- struct{}{}:
	default:
	}
}

// Text returns the text item, if any.
func (m *Memory) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(find(m.items, MimeText))
}

// Image returns the PNG item, if any.
func (m *Memory) Image() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return find(m.items, MimePNG)
}

// Writes counts calls to Write.
func (m *Memory) Writes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes
}

func (m *Memory) Watch() <-chan struct{} { return m.watchCh }
func (m *Memory) Close()                 {}
