package util

import (
	"bytes"
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"errors"
	"hash"
	"hash/adler32"
	"io"
	"strings"
)

// ErrUnknownHash is returned when asked for a hash algorithm we do not
// know how to compute.
var ErrUnknownHash = errors.New("unknown hash algorithm")

// NewHash returns a new hash.Hash for the algorithm with the given name.
// Names are compared case-insensitively. The supported names are "md5",
// "sha1", "sha256", "sha512", and "adler32".
func NewHash(name string) (hash.Hash, error) {
	switch strings.ToLower(name) {
	case "md5":
		return md5.New(), nil
	case "sha1":
		return sha1.New(), nil
	case "sha256":
		return sha256.New(), nil
	case "sha512":
		return sha512.New(), nil
	case "adler32":
		return adler32.New(), nil
	}
	return nil, ErrUnknownHash
}

// VerifyStreamHash checksums the given io.Reader and compares the checksum
// against the provided goals, which map an algorithm name to the expected
// digest. It returns true if everything matches, and false otherwise. An
// empty goal map always matches.
// The reader is not closed when finished.
func VerifyStreamHash(r io.Reader, goals map[string][]byte) (bool, error) {
	if len(goals) == 0 {
		return true, nil
	}
	var names []string
	for name := range goals {
		names = append(names, name)
	}
	hw, err := NewHashWriterPlain(names...)
	if err != nil {
		return false, err
	}
	_, err = io.Copy(hw, r)
	var result = true
	for name, goal := range goals {
		_, ok := hw.Check(name, goal)
		result = result && ok
	}
	return result, err
}

// An HashWriter wraps an io.Writer and also calculates the hashes for a set
// of algorithms over the bytes written.
type HashWriter struct {
	io.Writer // our io.MultiWriter
	hashes    map[string]hash.Hash
	n         int64
}

// NewHashWriter returns a HashWriter wrapping w and computing a hash for
// each of the named algorithms.
func NewHashWriter(w io.Writer, names ...string) (*HashWriter, error) {
	hw := &HashWriter{
		hashes: make(map[string]hash.Hash),
	}
	var writers []io.Writer
	if w != nil {
		writers = append(writers, w)
	}
	for _, name := range names {
		name = strings.ToLower(name)
		if _, ok := hw.hashes[name]; ok {
			continue
		}
		h, err := NewHash(name)
		if err != nil {
			return nil, err
		}
		hw.hashes[name] = h
		writers = append(writers, h)
	}
	writers = append(writers, counter{&hw.n})
	hw.Writer = io.MultiWriter(writers...)
	return hw, nil
}

// NewHashWriterPlain return a HashWriter that does not wrap an output stream.
// It will just compute the checksums of the data written to it.
func NewHashWriterPlain(names ...string) (*HashWriter, error) {
	return NewHashWriter(nil, names...)
}

// Size returns the number of bytes written so far.
func (hw *HashWriter) Size() int64 {
	return hw.n
}

// Sum returns the digest computed so far for the given algorithm, or nil
// if this writer is not computing it.
func (hw *HashWriter) Sum(name string) []byte {
	h, ok := hw.hashes[strings.ToLower(name)]
	if !ok {
		return nil
	}
	return h.Sum(nil)
}

// Check returns the hash for the given algorithm, and compares it for
// equality with the goal hash passed in. Returns true if goal matches,
// false otherwise. If the goal is empty then it is treated as matching, and
// true is returned.
func (hw *HashWriter) Check(name string, goal []byte) ([]byte, bool) {
	computed := hw.Sum(name)
	ok := len(goal) == 0 || (computed != nil && bytes.Equal(goal, computed))
	return computed, ok
}

type counter struct {
	n *int64
}

func (c counter) Write(p []byte) (int, error) {
	*c.n += int64(len(p))
	return len(p), nil
}
