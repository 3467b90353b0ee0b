package sources

import (
	"net/url"
	"strings"

	"github.com/antonholmquist/jason"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
)

// openData reads records from the CERN Open Data portal. Large records do
// not list their files directly; instead they list file indexes, JSON
// documents each holding a list of files. Every index is expanded.
//
// Files live on EOS. Each file is given its EOS path first, which the fetch
// executor reads from a local mount, and then the XRootD url it was listed
// with. Open Data only declares adler32 checksums.
type openData struct {
	base
	c       *conn
	baseURL string
}

// xrootdPrefix is removed from urls to get the path in the EOS namespace.
const xrootdPrefix = "root://eospublic.cern.ch/"

func (s *openData) Get(recid string) (*Record, error) {
	endpoint := s.baseURL + "/api/records/" + url.PathEscape(recid)
	v, body, final, err := s.c.getJason(endpoint)
	if err != nil {
		return nil, errors.Wrapf(err, "%s record %s", s.name, recid)
	}
	entries, err := v.GetObjectArray("metadata", "files")
	if err != nil {
		return nil, errors.Wrapf(ErrBadRecord, "%s record %s: %s", s.name, recid, err)
	}
	var files []*bagit.File
	var warnings []string
	for _, entry := range entries {
		key, _ := entry.GetString("key")
		switch {
		case strings.HasSuffix(key, "_file_index.json"):
			list, err := s.index(recid, key, &warnings)
			if err != nil {
				return nil, err
			}
			files = append(files, list...)
		case strings.HasSuffix(key, "_file_index.txt"):
			// same list as the json one
		default:
			f := parseOpenDataFile(entry, &warnings)
			f.Origin.URLs = append(bagit.URLList{s.fileURL(recid, f.Origin.Filename)}, f.Origin.URLs...)
			files = append(files, f)
		}
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

func (s *openData) fileURL(recid, key string) string {
	return s.baseURL + "/record/" + url.PathEscape(recid) + "/files/" + url.PathEscape(key)
}

// index downloads and parses a file index.
func (s *openData) index(recid, key string, warnings *[]string) ([]*bagit.File, error) {
	body, _, err := s.c.get(s.fileURL(recid, key), "application/json")
	if err != nil {
		return nil, errors.Wrapf(err, "file index %s", key)
	}
	v, err := jason.NewValueFromBytes(body)
	if err != nil {
		return nil, errors.Wrapf(ErrBadRecord, "file index %s: %s", key, err)
	}
	entries, err := v.Array()
	if err != nil {
		return nil, errors.Wrapf(ErrBadRecord, "file index %s: %s", key, err)
	}
	var result []*bagit.File
	for _, e := range entries {
		entry, err := e.Object()
		if err != nil {
			return nil, errors.Wrapf(ErrBadRecord, "file index %s: %s", key, err)
		}
		result = append(result, parseOpenDataFile(entry, warnings))
	}
	return result, nil
}

func parseOpenDataFile(entry *jason.Object, warnings *[]string) *bagit.File {
	f := &bagit.File{}
	uri, _ := entry.GetString("uri")
	if uri != "" {
		if strings.HasPrefix(uri, xrootdPrefix) {
			eos := "/" + strings.TrimLeft(strings.TrimPrefix(uri, xrootdPrefix), "/")
			f.Origin.URLs = bagit.URLList{eos, uri}
		} else {
			f.Origin.URLs = bagit.URLList{uri}
		}
	}
	f.Origin.Filename, _ = entry.GetString("key")
	if f.Origin.Filename == "" {
		f.Origin.Filename, _ = entry.GetString("filename")
	}
	if f.Origin.Filename == "" {
		f.Origin.Filename = urlBase(uri)
	}
	if c, err := entry.GetString("checksum"); err == nil {
		addChecksum(f, c, warnings)
	}
	f.Size = getSize(entry, []string{"size"})
	return f
}
