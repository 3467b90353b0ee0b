package sources

import (
	"fmt"
	"io/ioutil"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
)

const marcRecordXML = `<?xml version="1.0" encoding="UTF-8"?>
<collection xmlns="http://www.loc.gov/MARC21/slim">
<record>
  <controlfield tag="001">2751237</controlfield>
  <datafield tag="245" ind1=" " ind2=" "><subfield code="a">A title</subfield></datafield>
  <datafield tag="856" ind1="4" ind2=" ">
    <subfield code="8">1</subfield>
    <subfield code="s">5</subfield>
    <subfield code="u">http://cds.cern.ch/record/2751237/files/a.pdf</subfield>
    <subfield code="w">(CDS:md5);5d41402abc4b2a76b9719d911017c592</subfield>
    <subfield code="y">Fulltext</subfield>
  </datafield>
  <datafield tag="856" ind1="4" ind2=" ">
    <subfield code="8">2</subfield>
    <subfield code="u">http://cds.cern.ch/record/2751237/files/a.pdf?version=2</subfield>
  </datafield>
  <datafield tag="856" ind1="4" ind2=" ">
    <subfield code="d">/eos/project/b.mp4</subfield>
  </datafield>
  <datafield tag="856" ind1="4" ind2=" ">
    <subfield code="y">no url here</subfield>
  </datafield>
  <datafield tag="856" ind1="4" ind2=" ">
    <subfield code="u">http://cds.cern.ch/</subfield>
  </datafield>
</record>
</collection>`

const zenodoJSON = `{
  "id": 3974864,
  "files": [
    {"key": "paper.pdf", "size": 11, "checksum": "md5:161bc25962da8fed6d2f59922fb642aa",
     "id": "f-1", "links": {"self": "https://zenodo.org/api/files/b/paper.pdf"}},
    {"key": "data.csv", "size": 301875.0, "checksum": "md5:2c0a8156137877bc84f4962d45e21a45",
     "links": {"self": "https://zenodo.org/api/files/b/data.csv"}}
  ]
}`

const rdmJSON = `{"id": "gjgvm-4mq98", "metadata": {"title": "x"}}`

const rdmFilesJSON = `{"entries": [
  {"key": "1911.00295.pdf", "checksum": "md5:2c0a8156137877bc84f4962d45e21a45",
   "file_id": "8f494ae2", "size": 301875.0,
   "links": {"content": "https://inveniordm.web.cern.ch/api/records/gjgvm-4mq98/files/1911.00295.pdf/content"}}
]}`

const codJSON = `{
  "id": 8884,
  "metadata": {"files": [
    {"key": "readme.txt", "size": 5, "checksum": "adler32:062c0215",
     "uri": "root://eospublic.cern.ch//eos/opendata/cms/readme.txt"},
    {"key": "CMS_Run2011A_file_index.json", "size": 100, "checksum": "adler32:00000001",
     "uri": "root://eospublic.cern.ch//eos/opendata/cms/CMS_Run2011A_file_index.json"},
    {"key": "CMS_Run2011A_file_index.txt", "size": 100, "checksum": "adler32:00000001",
     "uri": "root://eospublic.cern.ch//eos/opendata/cms/CMS_Run2011A_file_index.txt"}
  ]}
}`

const codIndexJSON = `[
  {"filename": "one.root", "size": 1000, "checksum": "adler32:aaaaaaaa",
   "uri": "root://eospublic.cern.ch//eos/opendata/cms/Run2011A/one.root"},
  {"filename": "two.root", "size": 2000, "checksum": "sha384:bbbbbbbb",
   "uri": "root://eospublic.cern.ch//eos/opendata/cms/Run2011A/two.root"}
]`

// newUpstream serves canned records.
func newUpstream() *httptest.Server {
	pages := map[string]string{
		"/record/2751237":                                 marcRecordXML,
		"/api/records/3974864":                            zenodoJSON,
		"/api/records/gjgvm-4mq98":                        rdmJSON,
		"/api/records/gjgvm-4mq98/files":                  rdmFilesJSON,
		"/api/records/8884":                               codJSON,
		"/record/8884/files/CMS_Run2011A_file_index.json": codIndexJSON,
		"/api/records/999":                                `{"metadata": {"files": 5}}`,
		"/api/records/bad":                                `not json`,
	}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/record/secret" {
			w.WriteHeader(401)
			return
		}
		body, ok := pages[r.URL.Path]
		if !ok {
			w.WriteHeader(404)
			return
		}
		fmt.Fprint(w, body)
	}))
}

func TestInvenioV1(t *testing.T) {
	srv := newUpstream()
	defer srv.Close()
	s, err := New("cds", Config{Type: InvenioV1, BaseURL: srv.URL + "/record/"}, srv.Client())
	if err != nil {
		t.Fatal(err)
	}
	rec, err := s.Get("2751237")
	if err != nil {
		t.Fatal(err)
	}
	if rec.MetadataFile != "metadata-cds-2751237.xml" {
		t.Errorf("Received %s, expected %s", rec.MetadataFile, "metadata-cds-2751237.xml")
	}
	if rec.URL != srv.URL+"/record/2751237?of=xm" {
		t.Errorf("Received %s", rec.URL)
	}
	if len(rec.Files) != 4 {
		t.Fatalf("Received %d files, expected 4", len(rec.Files))
	}
	f := rec.Files[0]
	if f.Origin.Filename != "a.pdf" || f.Origin.ID != "1" || f.Size != 5 || f.Origin.Title != "Fulltext" {
		t.Errorf("Received %+v", f)
	}
	if d, _ := f.Checksums.Get(bagit.MD5); d != "5d41402abc4b2a76b9719d911017c592" {
		t.Errorf("Received checksum %q", d)
	}
	if rec.Files[1].Origin.Filename != "a.pdf" || rec.Files[1].Origin.ID != "2" {
		t.Errorf("Received %+v", rec.Files[1])
	}
	if rec.Files[2].Origin.Filename != "b.mp4" || rec.Files[2].Origin.URL() != "/eos/project/b.mp4" {
		t.Errorf("Received %+v", rec.Files[2])
	}
	// directory urls give no filename
	if rec.Files[3].Origin.Filename != "" {
		t.Errorf("Received filename %q, expected none", rec.Files[3].Origin.Filename)
	}
	if a := s.Algorithms(); len(a) != 1 || a[0] != bagit.MD5 {
		t.Errorf("Received %v", a)
	}
}

func TestInvenioV1Errors(t *testing.T) {
	srv := newUpstream()
	defer srv.Close()
	s, _ := New("cds", Config{Type: InvenioV1, BaseURL: srv.URL + "/record/"}, srv.Client())
	var table = []struct {
		recid  string
		expect error
	}{
		{"404", ErrNotFound},
		{"secret", ErrNotAuthorized},
	}
	for _, test := range table {
		_, err := s.Get(test.recid)
		if errors.Cause(err) != test.expect {
			t.Errorf("Received %v, expected %v", err, test.expect)
		}
	}
	_, _, err := parseMARC([]byte("<html>not marc</html>"))
	if errors.Cause(err) != ErrBadRecord {
		t.Errorf("Received %v, expected %v", err, ErrBadRecord)
	}
}

func TestInvenioV3(t *testing.T) {
	srv := newUpstream()
	defer srv.Close()

	cfg := Defaults["zenodo"]
	cfg.BaseURL = srv.URL + "/api/records/"
	s, _ := New("zenodo", cfg, srv.Client())
	rec, err := s.Get("3974864")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Files) != 2 || rec.MetadataFile != "metadata.json" || len(rec.Metadata) == 0 {
		t.Fatalf("Received %+v", rec)
	}
	f := rec.Files[0]
	if f.Origin.Filename != "paper.pdf" || f.Origin.URL() != "https://zenodo.org/api/files/b/paper.pdf" ||
		f.Origin.ID != "f-1" || f.Size != 11 {
		t.Errorf("Received %+v", f)
	}
	if rec.Files[1].Size != 301875 {
		t.Errorf("Received size %d, expected %d", rec.Files[1].Size, 301875)
	}

	cfg = Defaults["inveniordm"]
	cfg.BaseURL = srv.URL + "/api/records/"
	s, _ = New("inveniordm", cfg, srv.Client())
	rec, err = s.Get("gjgvm-4mq98")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Files) != 1 {
		t.Fatalf("Received %d files, expected 1", len(rec.Files))
	}
	f = rec.Files[0]
	if f.Origin.Filename != "1911.00295.pdf" || f.Origin.ID != "8f494ae2" {
		t.Errorf("Received %+v", f)
	}
	if d, _ := f.Checksums.Get(bagit.MD5); d != "2c0a8156137877bc84f4962d45e21a45" {
		t.Errorf("Received checksum %q", d)
	}

	_, err = s.Get("bad")
	if errors.Cause(err) != ErrBadRecord {
		t.Errorf("Received %v, expected %v", err, ErrBadRecord)
	}
}

func TestOpenData(t *testing.T) {
	srv := newUpstream()
	defer srv.Close()
	s, _ := New("cod", Config{Type: OpenData, BaseURL: srv.URL + "/"}, srv.Client())
	rec, err := s.Get("8884")
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Files) != 3 {
		t.Fatalf("Received %d files, expected 3", len(rec.Files))
	}
	readme := rec.Files[0]
	expected := bagit.URLList{
		srv.URL + "/record/8884/files/readme.txt",
		"/eos/opendata/cms/readme.txt",
		"root://eospublic.cern.ch//eos/opendata/cms/readme.txt",
	}
	if len(readme.Origin.URLs) != 3 {
		t.Fatalf("Received %v, expected %v", readme.Origin.URLs, expected)
	}
	for i := range expected {
		if readme.Origin.URLs[i] != expected[i] {
			t.Errorf("Received %s, expected %s", readme.Origin.URLs[i], expected[i])
		}
	}
	one := rec.Files[1]
	if one.Origin.Filename != "one.root" || one.Size != 1000 {
		t.Errorf("Received %+v", one)
	}
	if one.Origin.URL() != "/eos/opendata/cms/Run2011A/one.root" {
		t.Errorf("Received %s", one.Origin.URL())
	}
	if d, _ := one.Checksums.Get(bagit.Adler32); d != "aaaaaaaa" {
		t.Errorf("Received checksum %q", d)
	}
	two := rec.Files[2]
	if len(two.Checksums) != 0 {
		t.Errorf("Received %v, expected no checksums", two.Checksums)
	}
	if len(rec.Warnings) != 1 || !strings.Contains(rec.Warnings[0], "two.root") {
		t.Errorf("Received warnings %v", rec.Warnings)
	}
	if a := s.Algorithms(); len(a) != 1 || a[0] != bagit.Adler32 {
		t.Errorf("Received %v", a)
	}

	_, err = s.Get("999")
	if errors.Cause(err) != ErrBadRecord {
		t.Errorf("Received %v, expected %v", err, ErrBadRecord)
	}
}

func TestLocal(t *testing.T) {
	dir := t.TempDir()
	os.MkdirAll(filepath.Join(dir, "sub"), 0775)
	ioutil.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0664)
	ioutil.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("hello there"), 0664)

	s, _ := New("local", Config{Type: Local}, nil)
	rec, err := s.Get(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(rec.Files) != 2 || rec.Metadata != nil {
		t.Fatalf("Received %+v", rec)
	}
	b := rec.Files[1]
	if b.Origin.Filename != "b.txt" || b.Origin.Path != "sub/" || b.Size != 11 {
		t.Errorf("Received %+v", b)
	}
	if b.CandidatePath() != "data/content/sub/b.txt" {
		t.Errorf("Received %s", b.CandidatePath())
	}
	if b.Origin.URL() != "file://"+filepath.ToSlash(filepath.Join(dir, "sub", "b.txt")) {
		t.Errorf("Received %s", b.Origin.URL())
	}

	_, err = s.Get(filepath.Join(dir, "nothing"))
	if errors.Cause(err) != ErrNotFound {
		t.Errorf("Received %v, expected %v", err, ErrNotFound)
	}
}

func TestParseURL(t *testing.T) {
	var table = []struct {
		url    string
		source string
		recid  string
	}{
		{"http://cds.cern.ch/record/2665537", "cds", "2665537"},
		{"https://cds.cern.ch/record/2665537", "cds", "2665537"},
		{"http://cds.cern.ch/record/2665537/files/cms_160312_03.png", "cds", "2665537"},
		{"http://opendata.cern.ch/record/8884", "cod", "8884"},
		{"https://zenodo.org/record/6220704", "zenodo", "6220704"},
	}
	for _, test := range table {
		source, recid, err := ParseURL(test.url)
		if err != nil || source != test.source || recid != test.recid {
			t.Errorf("%s: Received (%s, %s, %v)", test.url, source, recid, err)
		}
	}

	for _, bad := range []string{
		"https://example.org/record/1",
		"https://cds.cern.ch/search?p=x",
		"https://zenodo.org/record/",
		"::",
	} {
		if _, _, err := ParseURL(bad); errors.Cause(err) != ErrBadURL {
			t.Errorf("%s: Received %v, expected %v", bad, err, ErrBadURL)
		}
	}
}

func TestRegistry(t *testing.T) {
	r, err := NewRegistry(map[string]Config{
		"cds-test": {Type: InvenioV1, BaseURL: "https://cds-test.cern.ch/record/"},
		"local":    {Type: Local, Algorithms: []string{"sha256"}},
	}, nil)
	if err != nil {
		t.Fatal(err)
	}
	s, err := r.Get("cds-test")
	if err != nil || s.Name() != "cds-test" {
		t.Errorf("Received %v, %v", s, err)
	}
	s, _ = r.Get("local")
	if a := s.Algorithms(); len(a) != 1 || a[0] != bagit.SHA256 {
		t.Errorf("Received %v", a)
	}
	if _, err = r.Get("gitlab"); errors.Cause(err) != ErrUnknownSource {
		t.Errorf("Received %v, expected %v", err, ErrUnknownSource)
	}
	if r.Type("local") != Local || r.Type("cod") != OpenData || r.Type("gitlab") != "" {
		t.Errorf("Received types %q %q %q", r.Type("local"), r.Type("cod"), r.Type("gitlab"))
	}
	if len(r.Names()) != len(Defaults)+1 {
		t.Errorf("Received %v", r.Names())
	}

	_, err = NewRegistry(map[string]Config{"x": {Type: "gitlab"}}, nil)
	if errors.Cause(err) != ErrUnknownType {
		t.Errorf("Received %v, expected %v", err, ErrUnknownType)
	}
}
