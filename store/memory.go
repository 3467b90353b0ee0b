package store

import (
	"bytes"
	"io"
	"sort"
	"strings"
	"sync"
)

// Memory keeps every item in a map. Like the FileSystem store, an item only
// appears once the writer returned by Create is closed. It is used for
// tests and for servers which do not need to keep their packages.
type Memory struct {
	m     sync.RWMutex
	items map[string][]byte
	// keys being written, so a second Create fails early
	pending map[string]bool
}

var _ Store = &Memory{}

// NewMemory returns an empty memory store.
func NewMemory() *Memory {
	return &Memory{
		items:   make(map[string][]byte),
		pending: make(map[string]bool),
	}
}

// ListPrefix returns the keys beginning with prefix, sorted.
func (ms *Memory) ListPrefix(prefix string) ([]string, error) {
	ms.m.RLock()
	defer ms.m.RUnlock()
	var result []string
	for k := range ms.items {
		if strings.HasPrefix(k, prefix) {
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result, nil
}

// Open returns a reader for the item at key. Items never change once
// written, so readers share the stored bytes.
func (ms *Memory) Open(key string) (ReadAtCloser, int64, error) {
	ms.m.RLock()
	b, ok := ms.items[key]
	ms.m.RUnlock()
	if !ok {
		return nil, 0, ErrNotExist
	}
	return nopCloser{bytes.NewReader(b)}, int64(len(b)), nil
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }

// Create returns a writer for a new item. It is an error if key is already
// stored or being written.
func (ms *Memory) Create(key string) (io.WriteCloser, error) {
	ms.m.Lock()
	defer ms.m.Unlock()
	if _, ok := ms.items[key]; ok || ms.pending[key] {
		return nil, ErrKeyExists
	}
	ms.pending[key] = true
	return &memWriter{ms: ms, key: key}, nil
}

type memWriter struct {
	bytes.Buffer
	ms  *Memory
	key string
}

func (w *memWriter) Close() error {
	w.ms.m.Lock()
	defer w.ms.m.Unlock()
	if !w.ms.pending[w.key] {
		return nil
	}
	delete(w.ms.pending, w.key)
	w.ms.items[w.key] = w.Bytes()
	return nil
}

// Delete removes key. A missing key is not an error.
func (ms *Memory) Delete(key string) error {
	ms.m.Lock()
	delete(ms.items, key)
	ms.m.Unlock()
	return nil
}
