package bagit

import (
	"path"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

var (
	// ErrNoFilename means a file has no usable name and cannot be placed
	// in a bag. Callers should drop the file and note the omission.
	ErrNoFilename = errors.New("file has no filename")

	// ErrOutsidePayload means a file's path would place it outside the
	// content and meta directories of the bag.
	ErrOutsidePayload = errors.New("file path is outside the payload")
)

// A Resolver hands out unique bagpaths. When a candidate path has already
// been given out, the file's disambiguator is prefixed to the base name,
// so two files "a.pdf" with ids 1 and 2 become "a.pdf" and "2-a.pdf".
//
// The zero value is ready to use.
type Resolver struct {
	assigned map[string]bool
}

// Resolve returns a path not yet handed out by this resolver, and marks it
// as taken. The candidate is returned unchanged if it is free. Otherwise
// "<disambiguator>-" is prefixed to the base name until the result is free.
func (r *Resolver) Resolve(candidate, disambiguator string) string {
	if r.assigned == nil {
		r.assigned = make(map[string]bool)
	}
	result := candidate
	for r.assigned[result] {
		dir, base := path.Split(result)
		ext := path.Ext(base)
		stem := strings.TrimSuffix(base, ext)
		result = dir + disambiguator + "-" + stem + ext
	}
	r.assigned[result] = true
	return result
}

// Taken returns true if the given path has been handed out.
func (r *Resolver) Taken(p string) bool {
	return r.assigned[p]
}

// Reserve marks a path as taken without going through Resolve. It is used
// for paths which are fixed, such as the package metadata file.
func (r *Resolver) Reserve(p string) {
	if r.assigned == nil {
		r.assigned = make(map[string]bool)
	}
	r.assigned[p] = true
}

// Assign sets the bagpath of f. A bagpath already present on f is used as
// the candidate, otherwise one is made from the origin path and filename.
// The origin ID is the disambiguator; when a file has none, its position in
// the enumeration (counting from 1) is used instead.
func (r *Resolver) Assign(f *File, index int) error {
	candidate := f.Bagpath
	inside := insidePayload
	if candidate == "" {
		candidate = f.CandidatePath()
		inside = insideContent
	}
	if candidate == "" || strings.HasSuffix(candidate, "/") {
		return ErrNoFilename
	}
	if name := f.Origin.Filename; name != "" {
		switch path.Base(name) {
		case ".", "..":
			return ErrNoFilename
		}
	}
	candidate = path.Clean(candidate)
	if !inside(candidate) {
		return ErrOutsidePayload
	}
	d := f.Origin.ID
	if d == "" {
		d = strconv.Itoa(index + 1)
	}
	f.Bagpath = r.Resolve(candidate, d)
	return nil
}

// insidePayload is true if p names something strictly below the content or
// meta directory.
func insidePayload(p string) bool {
	return insideContent(p) || strings.HasPrefix(p, MetaDir+"/")
}

func insideContent(p string) bool {
	return strings.HasPrefix(p, ContentDir+"/")
}
