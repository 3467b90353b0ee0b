package bagit

import (
	"encoding/json"
	"path"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

// File describes a single item in a package, either payload harvested from
// an upstream source or a sidecar produced along the way.
type File struct {
	Origin Origin `json:"origin"`

	// Size is the declared size in bytes. 0 means the size is unknown.
	Size int64 `json:"size"`

	Checksums Checksums `json:"checksum"`

	// Bagpath is where the file lives inside the package, e.g.
	// "data/content/a.pdf". It is unique in a finished package.
	Bagpath string `json:"bagpath"`

	// Metadata is true for sidecar files: upstream metadata records, the
	// package metadata and the run log.
	Metadata bool `json:"metadata"`

	// Downloaded is true once the bytes exist on disk at Bagpath.
	Downloaded bool `json:"downloaded"`
}

// Origin records where a File came from.
type Origin struct {
	// URLs lists equivalent locations for the file. The first is preferred
	// for fetching.
	URLs URLList `json:"url,omitempty"`

	Filename string `json:"filename"`

	// Path is the directory the file was in on the source, relative to the
	// record, with a trailing slash, or empty.
	Path string `json:"path"`

	Title string `json:"title,omitempty"`

	// ID is a stable identifier for the file given by the source. It is
	// used to rename files whose bagpath collides with another.
	ID string `json:"id,omitempty"`
}

// URL returns the preferred url for the file, or the empty string.
func (o Origin) URL() string {
	if len(o.URLs) == 0 {
		return ""
	}
	return o.URLs[0]
}

// CandidatePath returns the bagpath a file should have before resolving any
// collisions: the origin path and filename inside the content directory.
// Returns the empty string if the file has no filename.
func (f *File) CandidatePath() string {
	if f.Origin.Filename == "" {
		return ""
	}
	return path.Join(ContentDir, f.Origin.Path, f.Origin.Filename)
}

// URLList is a list of urls. In JSON it is written as a single string when
// there is only one, and accepts either form when read.
type URLList []string

// MarshalJSON implements json.Marshaler.
func (u URLList) MarshalJSON() ([]byte, error) {
	if len(u) == 1 {
		return json.Marshal(u[0])
	}
	return json.Marshal([]string(u))
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *URLList) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*u = URLList{s}
		return nil
	}
	var lst []string
	if err := json.Unmarshal(b, &lst); err != nil {
		return err
	}
	*u = URLList(lst)
	return nil
}

// A Checksum is one digest of a file.
type Checksum struct {
	Algorithm Algorithm
	Hex       string // lower case
}

func (c Checksum) String() string {
	return string(c.Algorithm) + ":" + c.Hex
}

var checksumRE = regexp.MustCompile(`^([A-Za-z0-9]+):([A-Fa-f0-9]+)$`)

// ParseChecksum parses a string of the form "<algorithm>:<hex digest>".
func ParseChecksum(s string) (Checksum, error) {
	m := checksumRE.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Checksum{}, errors.Errorf("malformed checksum %q", s)
	}
	a, err := ParseAlgorithm(m[1])
	if err != nil {
		return Checksum{}, errors.Wrapf(err, "checksum %q", s)
	}
	return Checksum{Algorithm: a, Hex: strings.ToLower(m[2])}, nil
}

// Checksums is the list of digests known for a file. At most one digest is
// kept per algorithm. Entries are only ever added, and the order they were
// added in is kept.
type Checksums []Checksum

// Get returns the digest for the given algorithm, if there is one.
func (cs Checksums) Get(a Algorithm) (string, bool) {
	for _, c := range cs {
		if c.Algorithm == a {
			return c.Hex, true
		}
	}
	return "", false
}

// Add records a digest. If there already is a digest for the algorithm it
// is left alone and false is returned.
func (cs *Checksums) Add(a Algorithm, hex string) bool {
	if _, ok := cs.Get(a); ok {
		return false
	}
	*cs = append(*cs, Checksum{Algorithm: a, Hex: strings.ToLower(hex)})
	return true
}

// AddString parses s as a checksum and adds it.
func (cs *Checksums) AddString(s string) error {
	c, err := ParseChecksum(s)
	if err != nil {
		return err
	}
	cs.Add(c.Algorithm, c.Hex)
	return nil
}

// Strings returns the checksums in the form "<algorithm>:<hex>".
func (cs Checksums) Strings() []string {
	result := make([]string, 0, len(cs))
	for _, c := range cs {
		result = append(result, c.String())
	}
	return result
}

// MarshalJSON implements json.Marshaler.
func (cs Checksums) MarshalJSON() ([]byte, error) {
	return json.Marshal(cs.Strings())
}

// UnmarshalJSON implements json.Unmarshaler. A single string is accepted as
// well as a list.
func (cs *Checksums) UnmarshalJSON(b []byte) error {
	var lst []string
	if err := json.Unmarshal(b, &lst); err != nil {
		var s string
		if err2 := json.Unmarshal(b, &s); err2 != nil {
			return err
		}
		lst = []string{s}
	}
	*cs = nil
	for _, s := range lst {
		if err := cs.AddString(s); err != nil {
			return err
		}
	}
	return nil
}
