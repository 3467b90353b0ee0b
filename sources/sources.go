// Package sources retrieves records from upstream repositories and turns the
// files they list into bagit.File descriptors.
//
// There is one Source per configured repository instance. Each has a type
// saying how it is read:
//
//	invenio_v1   MARC21 XML from Invenio 1.x sites (CDS, ILCDOC)
//	invenio_v3   JSON from Invenio 3.x sites (Zenodo, InvenioRDM)
//	opendata     JSON from CERN Open Data, with file index lists
//	local        a directory on the local file system
//
// A source only describes files. Nothing is downloaded here, except for the
// record itself and, for Open Data, the file index lists.
package sources

import (
	"fmt"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
)

// A Record is what a source returns for a record id.
type Record struct {
	Source string
	RecID  string

	// URL is the upstream endpoint the metadata was read from.
	URL string

	// Metadata is the record as served by the source, and MetadataFile the
	// name to save it under. Both are empty if the source has no record
	// metadata, e.g. for local directories.
	Metadata     []byte
	MetadataFile string

	// Files lists the payload files of the record in source order. Each has
	// a filename, and may have a declared size and checksums.
	Files []*bagit.File

	// Warnings notes what was dropped while reading the record, such as
	// checksums in an unknown algorithm.
	Warnings []string
}

// A Source reads records from one upstream repository.
type Source interface {
	// Name is the name the source is known by, e.g. "cds".
	Name() string

	// Get retrieves the given record.
	Get(recid string) (*Record, error)

	// Algorithms are the checksum algorithms packages from this source
	// are manifested with by default.
	Algorithms() []bagit.Algorithm
}

// Source types.
const (
	InvenioV1 = "invenio_v1"
	InvenioV3 = "invenio_v3"
	OpenData  = "opendata"
	Local     = "local"
)

// Exported errors
var (
	ErrUnknownSource = errors.New("unknown source")
	ErrUnknownType   = errors.New("unknown source type")
	ErrNotFound      = errors.New("record not found")
	ErrNotAuthorized = errors.New("access denied")
	ErrBadRecord     = errors.New("malformed record")
	ErrBadURL        = errors.New("unable to parse the given url; pass the source and record id instead")
)

// Config describes one source instance. The key paths are used by the
// invenio_v3 type to find things in the record JSON. Each is a comma
// separated list of object keys, e.g. "links,self".
type Config struct {
	Type    string
	BaseURL string `toml:"base_url"`

	Files           string // path to the file list in the record
	FilesSeparately bool   `toml:"files_separately"` // file list is at <record>/files
	FileName        string `toml:"file_name"`
	FileURI         string `toml:"file_uri"`
	FileChecksum    string `toml:"file_checksum"`
	FileSize        string `toml:"file_size"`
	FileID          string `toml:"file_id"`

	// Algorithms overrides the default checksum algorithms for the type.
	Algorithms []string
}

// Defaults lists the sources known without any configuration.
var Defaults = map[string]Config{
	"cds": {
		Type:    InvenioV1,
		BaseURL: "https://cds.cern.ch/record/",
	},
	"ilcdoc": {
		Type:    InvenioV1,
		BaseURL: "http://ilcdoc.linearcollider.org/record/",
	},
	"zenodo": {
		Type:         InvenioV3,
		BaseURL:      "https://zenodo.org/api/records/",
		Files:        "files",
		FileName:     "key",
		FileURI:      "links,self",
		FileChecksum: "checksum",
		FileSize:     "size",
		FileID:       "id",
	},
	"inveniordm": {
		Type:            InvenioV3,
		BaseURL:         "https://inveniordm.web.cern.ch/api/records/",
		Files:           "entries",
		FilesSeparately: true,
		FileName:        "key",
		FileURI:         "links,content",
		FileChecksum:    "checksum",
		FileSize:        "size",
		FileID:          "file_id",
	},
	"cod": {
		Type:    OpenData,
		BaseURL: "https://opendata.cern.ch/",
	},
	"local": {
		Type: Local,
	},
}

// defaultAlgorithms gives the manifest algorithms for each source type.
var defaultAlgorithms = map[string][]bagit.Algorithm{
	InvenioV1: {bagit.MD5},
	InvenioV3: {bagit.MD5},
	OpenData:  {bagit.Adler32},
	Local:     {bagit.MD5, bagit.SHA1},
}

// New makes a source of the type given in cfg. The client is used for all
// requests; nil means the http.DefaultClient.
func New(name string, cfg Config, client *http.Client) (Source, error) {
	algs := defaultAlgorithms[cfg.Type]
	if len(cfg.Algorithms) > 0 {
		var err error
		algs, err = bagit.ParseAlgorithms(strings.Join(cfg.Algorithms, ","))
		if err != nil {
			return nil, errors.Wrap(err, name)
		}
	}
	c := &conn{client: client}
	b := base{name: name, algs: algs}
	switch cfg.Type {
	case InvenioV1:
		return &invenioV1{base: b, c: c, baseURL: cfg.BaseURL}, nil
	case InvenioV3:
		return &invenioV3{base: b, c: c, cfg: cfg}, nil
	case OpenData:
		return &openData{base: b, c: c, baseURL: strings.TrimSuffix(cfg.BaseURL, "/")}, nil
	case Local:
		return &localDir{base: b}, nil
	}
	return nil, errors.Wrapf(ErrUnknownType, "%s: %q", name, cfg.Type)
}

type base struct {
	name string
	algs []bagit.Algorithm
}

func (b base) Name() string                  { return b.name }
func (b base) Algorithms() []bagit.Algorithm { return b.algs }

// addChecksum adds the declared digest c to f. A digest which cannot be used
// is noted in warnings instead.
func addChecksum(f *bagit.File, c string, warnings *[]string) {
	if err := f.Checksums.AddString(c); err != nil {
		*warnings = append(*warnings, fmt.Sprintf("ignoring checksum %q of %s: %s", c, f.Origin.Filename, err))
	}
}

// A Registry holds the configured sources by name.
type Registry struct {
	sources map[string]Source
	types   map[string]string
}

// NewRegistry makes a source for every entry in configs. The Defaults are
// used for any name not in configs.
func NewRegistry(configs map[string]Config, client *http.Client) (*Registry, error) {
	r := &Registry{
		sources: make(map[string]Source),
		types:   make(map[string]string),
	}
	all := make(map[string]Config)
	for name, cfg := range Defaults {
		all[name] = cfg
	}
	for name, cfg := range configs {
		all[name] = cfg
	}
	for name, cfg := range all {
		s, err := New(name, cfg, client)
		if err != nil {
			return nil, err
		}
		r.sources[name] = s
		r.types[name] = cfg.Type
	}
	return r, nil
}

// Get returns the source with the given name.
func (r *Registry) Get(name string) (Source, error) {
	s, ok := r.sources[name]
	if !ok {
		return nil, errors.Wrap(ErrUnknownSource, name)
	}
	return s, nil
}

// Type returns the type of the named source, or "" if there is none.
func (r *Registry) Type(name string) string {
	return r.types[name]
}

// Names returns the names of every source, sorted.
func (r *Registry) Names() []string {
	var result []string
	for name := range r.sources {
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// ParseURL extracts the source and record id from a record url of the form
// https://<host>/record/<recid>. Only hosts of known sources are accepted.
func ParseURL(raw string) (source, recid string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", errors.Wrap(ErrBadURL, err.Error())
	}
	switch u.Hostname() {
	case "cds.cern.ch":
		source = "cds"
	case "opendata.cern.ch":
		source = "cod"
	case "zenodo.org":
		source = "zenodo"
	default:
		return "", "", ErrBadURL
	}
	parts := strings.Split(strings.TrimPrefix(path.Clean(u.Path), "/"), "/")
	if len(parts) < 2 || parts[0] != "record" || parts[1] == "" {
		return "", "", ErrBadURL
	}
	return source, parts[1], nil
}
