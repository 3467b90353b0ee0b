package sources

import (
	"encoding/xml"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
)

// invenioV1 reads MARC21 XML records from an Invenio 1.x site. Files are
// listed in the 856 (Electronic Location and Access) fields.
type invenioV1 struct {
	base
	c       *conn
	baseURL string
}

// marcCollection is the subset of MARCXML we need.
type marcCollection struct {
	Records []marcRecord `xml:"record"`
}

type marcRecord struct {
	Fields []marcField `xml:"datafield"`
}

type marcField struct {
	Tag       string         `xml:"tag,attr"`
	Subfields []marcSubfield `xml:"subfield"`
}

type marcSubfield struct {
	Code  string `xml:"code,attr"`
	Value string `xml:",chardata"`
}

// get returns the first subfield with the given code.
func (f marcField) get(code string) string {
	for _, sf := range f.Subfields {
		if sf.Code == code {
			return strings.TrimSpace(sf.Value)
		}
	}
	return ""
}

func (s *invenioV1) Get(recid string) (*Record, error) {
	u := s.baseURL + url.PathEscape(recid) + "?of=xm"
	body, final, err := s.c.get(u, "application/xml")
	if err != nil {
		return nil, errors.Wrapf(err, "%s record %s", s.name, recid)
	}
	files, warnings, err := parseMARC(body)
	if err != nil {
		return nil, errors.Wrapf(err, "%s record %s", s.name, recid)
	}
	return &Record{
		Source:       s.name,
		RecID:        recid,
		URL:          final,
		Metadata:     body,
		MetadataFile: fmt.Sprintf("metadata-%s-%s.xml", s.name, recid),
		Files:        files,
		Warnings:     warnings,
	}, nil
}

// marcChecksum matches the 856 $w subfield, e.g. "(CDS:md5);5d41402a...".
var marcChecksum = regexp.MustCompile(`\([A-Za-z]*:([A-Za-z0-9]*).*;([A-Za-z0-9]*)`)

// parseMARC returns the files listed in the first record of a MARCXML
// collection.
func parseMARC(body []byte) ([]*bagit.File, []string, error) {
	var coll marcCollection
	err := xml.Unmarshal(body, &coll)
	if err != nil || len(coll.Records) == 0 {
		// a single record without a collection around it
		var rec marcRecord
		if err2 := xml.Unmarshal(body, &rec); err2 != nil || len(rec.Fields) == 0 {
			return nil, nil, errors.Wrap(ErrBadRecord, "check if the record is public")
		}
		coll.Records = []marcRecord{rec}
	}
	var files []*bagit.File
	var warnings []string
	for _, field := range coll.Records[0].Fields {
		if field.Tag != "856" {
			continue
		}
		f := &bagit.File{}
		u := field.get("u")
		if u == "" {
			u = field.get("d")
		}
		if u == "" {
			continue
		}
		f.Origin.URLs = bagit.URLList{u}
		f.Origin.Filename = urlBase(u)
		f.Origin.Title = field.get("y")
		f.Origin.ID = field.get("8")
		if w := field.get("w"); w != "" {
			if m := marcChecksum.FindStringSubmatch(w); m != nil {
				addChecksum(f, strings.ToLower(m[1])+":"+m[2], &warnings)
			}
		}
		if sz := field.get("s"); sz != "" {
			f.Size, _ = strconv.ParseInt(sz, 10, 64)
		}
		files = append(files, f)
	}
	return files, warnings, nil
}

// urlBase returns the last path element of a url, or the empty string if
// the url names a directory.
func urlBase(raw string) string {
	p := raw
	if u, err := url.Parse(raw); err == nil && u.Path != "" {
		p = u.Path
	}
	if p == "" || strings.HasSuffix(p, "/") {
		return ""
	}
	b := path.Base(p)
	if b == "." || b == "/" {
		return ""
	}
	return b
}
