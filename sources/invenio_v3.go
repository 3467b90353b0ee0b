package sources

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
)

// invenioV3 reads JSON records from an Invenio 3.x based site. Since the
// layout of the record differs between sites the location of each field is
// given by a key path in the configuration.
type invenioV3 struct {
	base
	c   *conn
	cfg Config
}

func keyPath(s string) []string {
	var result []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			result = append(result, k)
		}
	}
	return result
}

func (s *invenioV3) Get(recid string) (*Record, error) {
	endpoint := s.cfg.BaseURL + url.PathEscape(recid)
	v, body, final, err := s.c.getJason(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "%s record %s", s.name, recid)
	}
	list := v
	if s.cfg.FilesSeparately {
		list, _, _, err = s.c.getJason(endpoint + "/files")
		if err != nil {
			return nil, errors.Wrapf(err, "%s record %s file list", s.name, recid)
		}
	}
	var entries []*jason.Object
	// a record without files is not an error
	if _, err := list.GetValue(keyPath(s.cfg.Files)...); err == nil {
		entries, err = list.GetObjectArray(keyPath(s.cfg.Files)...)
		if err != nil {
			return nil, errors.Wrapf(ErrBadRecord, "%s record %s: %s", s.name, recid, err)
		}
	}
	var files []*bagit.File
	var warnings []string
	for _, entry := range entries {
		files = append(files, s.parseFile(entry, &warnings))
	}
	return &Record{
		Source:       s.name,
		RecID:        recid,
		URL:          final,
		Metadata:     body,
		MetadataFile: "metadata.json",
		Files:        files,
		Warnings:     warnings,
	}, nil
}

func (s *invenioV3) parseFile(entry *jason.Object, warnings *[]string) *bagit.File {
	f := &bagit.File{}
	f.Origin.Filename, _ = entry.GetString(keyPath(s.cfg.FileName)...)
	if u, err := entry.GetString(keyPath(s.cfg.FileURI)...); err == nil && u != "" {
		f.Origin.URLs = bagit.URLList{u}
	}
	if s.cfg.FileID != "" {
		f.Origin.ID = getID(entry, keyPath(s.cfg.FileID))
	}
	if s.cfg.FileChecksum != "" {
		if c, err := entry.GetString(keyPath(s.cfg.FileChecksum)...); err == nil {
			addChecksum(f, c, warnings)
		}
	}
	if s.cfg.FileSize != "" {
		f.Size = getSize(entry, keyPath(s.cfg.FileSize))
	}
	return f
}

// getSize reads an integer size which some sites serialize as a float.
func getSize(v *jason.Object, keys []string) int64 {
	if n, err := v.GetInt64(keys...); err == nil {
		return n
	}
	if x, err := v.GetFloat64(keys...); err == nil {
		return int64(x)
	}
	return 0
}

// getID reads an identifier which may be a string or a number.
func getID(v *jason.Object, keys []string) string {
	if s, err := v.GetString(keys...); err == nil {
		return s
	}
	if n, err := v.GetInt64(keys...); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return ""
}
