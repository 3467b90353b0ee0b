package store

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	raven "github.com/getsentry/raven-go"
)

// FileSystem keeps each item as a file in a single directory. New items
// are written to a temporary file in a hidden subdirectory and renamed into
// place on Close, so a half delivered package is never seen by ListPrefix
// or Open.
type FileSystem struct {
	root string
}

// partialDir holds items being written.
const partialDir = ".partial"

var _ Store = &FileSystem{}

// NewFileSystem returns a store keeping its items in root. The directory
// need not exist until the first item is created.
func NewFileSystem(root string) *FileSystem {
	return &FileSystem{root: root}
}

// ListPrefix returns the keys beginning with prefix, sorted.
func (s *FileSystem) ListPrefix(prefix string) ([]string, error) {
	entries, err := ioutil.ReadDir(s.root)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	var result []string
	for _, fi := range entries {
		name := fi.Name()
		if fi.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		result = append(result, name)
	}
	sort.Strings(result)
	return result, nil
}

func (s *FileSystem) path(key string) (string, error) {
	if err := ValidKey(key); err != nil {
		return "", err
	}
	return filepath.Join(s.root, key), nil
}

// Open returns the file for key and its size.
func (s *FileSystem) Open(key string) (ReadAtCloser, int64, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, 0, err
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, 0, ErrNotExist
	} else if err != nil {
		raven.CaptureError(err, map[string]string{"Key": key})
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	return f, fi.Size(), nil
}

// Create returns a writer for a new item. It fails with ErrKeyExists if the
// key is already present, either now or when the writer is closed.
func (s *FileSystem) Create(key string) (io.WriteCloser, error) {
	target, err := s.path(key)
	if err != nil {
		return nil, err
	}
	if _, err = os.Stat(target); err == nil {
		return nil, ErrKeyExists
	}
	dir := filepath.Join(s.root, partialDir)
	if err = os.MkdirAll(dir, 0775); err != nil {
		return nil, err
	}
	f, err := ioutil.TempFile(dir, key+".")
	if err != nil {
		raven.CaptureError(err, map[string]string{"Key": key})
		return nil, err
	}
	return &renamer{File: f, target: target}, nil
}

// renamer moves its file to target when closed.
type renamer struct {
	*os.File
	target string
}

func (w *renamer) Close() error {
	temp := w.File.Name()
	err := w.File.Close()
	if err == nil {
		// os.Link fails if the target exists, unlike os.Rename
		err = os.Link(temp, w.target)
		if os.IsExist(err) {
			err = ErrKeyExists
		}
	}
	os.Remove(temp)
	return err
}

// Delete removes the file for key. A missing key is not an error.
func (s *FileSystem) Delete(key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if os.IsNotExist(err) {
		err = nil
	}
	return err
}
