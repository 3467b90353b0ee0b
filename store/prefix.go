package store

import (
	"io"
	"strings"
)

// NewWithPrefix returns a view of s in which every key has prefix put in
// front of it. Packages and their receipts share one store this way.
func NewWithPrefix(s Store, prefix string) Store {
	return prefixed{Store: s, prefix: prefix}
}

type prefixed struct {
	Store
	prefix string
}

func (p prefixed) ListPrefix(prefix string) ([]string, error) {
	keys, err := p.Store.ListPrefix(p.prefix + prefix)
	result := make([]string, 0, len(keys))
	for _, key := range keys {
		if rest := strings.TrimPrefix(key, p.prefix); rest != key {
			result = append(result, rest)
		}
	}
	return result, err
}

func (p prefixed) Open(key string) (ReadAtCloser, int64, error) {
	return p.Store.Open(p.prefix + key)
}

func (p prefixed) Create(key string) (io.WriteCloser, error) {
	return p.Store.Create(p.prefix + key)
}

func (p prefixed) Delete(key string) error {
	return p.Store.Delete(p.prefix + key)
}
