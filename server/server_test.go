package server

import (
	"encoding/json"
	"fmt"
	"io/ioutil"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ndlib/bagcreate/catalog"
	"github.com/ndlib/bagcreate/harvest"
	"github.com/ndlib/bagcreate/sip"
	"github.com/ndlib/bagcreate/sources"
)

func TestNewSIP(t *testing.T) {
	var res sip.Result
	getjson(t, "POST", "/sip/test/1", 200, &res)
	if res.Status != 0 || !strings.HasPrefix(res.Name, "sip::test::1::") {
		t.Fatalf("Received %#v", res)
	}
	if !res.Valid || res.Files != 4 {
		t.Errorf("Received %#v", res)
	}
	if _, err := os.Stat(filepath.Join(res.Path, "data/content/a.txt")); err != nil {
		t.Errorf("Received %v", err)
	}

	var runs []catalog.Run
	getjson(t, "GET", "/sip/test/1", 200, &runs)
	if len(runs) != 1 || runs[0].RunID != res.RunID {
		t.Errorf("Received %#v", runs)
	}
	var run catalog.Run
	getjson(t, "GET", "/run/"+res.RunID, 200, &run)
	if run.Name != res.Name {
		t.Errorf("Received %s, expected %s", run.Name, res.Name)
	}
	checkStatus(t, "GET", "/run/nothing", 404)
	text := getbody(t, "GET", "/run", 200)
	if !strings.Contains(text, res.RunID) {
		t.Errorf("Run %s not in list %s", res.RunID, text)
	}
}

func TestNewSIPOptions(t *testing.T) {
	var res sip.Result
	getjson(t, "POST", "/sip/test/3?dry=1&alg=sha256", 200, &res)
	if res.Status != 0 || !res.Dry {
		t.Fatalf("Received %#v", res)
	}
	if _, err := os.Stat(filepath.Join(res.Path, "fetch.txt")); err != nil {
		t.Errorf("Received %v", err)
	}

	getjson(t, "POST", "/sip/test/2", 422, &res)
	if res.Status != 1 || res.Error == "" {
		t.Errorf("Received %#v", res)
	}
	checkStatus(t, "POST", "/sip/test/1?alg=crc99", 400)
	checkStatus(t, "POST", "/sip/local/tmp", 403)
	checkStatus(t, "GET", "/run?n=zero", 400)
}

func TestOtherRoutes(t *testing.T) {
	var list []sourceInfo
	getjson(t, "GET", "/sources", 200, &list)
	var found bool
	for _, s := range list {
		if s.Name == "test" && s.Type == sources.InvenioV3 {
			found = true
		}
	}
	if !found {
		t.Errorf("Received %v", list)
	}
	text := getbody(t, "GET", "/", 200)
	if !strings.HasPrefix(text, "bagcreate") {
		t.Errorf("Received %q", text)
	}
	checkStatus(t, "GET", "/debug/vars", 200)
	checkStatus(t, "GET", "/stats", 501)
}

func TestStopped(t *testing.T) {
	s := &RESTServer{Harvester: testRESTServer.Harvester}
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	resp, err := http.Post(srv.URL+"/sip/test/1", "", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != 503 {
		t.Errorf("Received %d, expected 503", resp.StatusCode)
	}
}

func TestFlag(t *testing.T) {
	var table = []struct {
		input  string
		output bool
	}{
		{"1", true},
		{"true", true},
		{"Yes", true},
		{"", false},
		{"0", false},
		{"no", false},
	}
	for _, test := range table {
		if flag(test.input) != test.output {
			t.Errorf("Received %v for %q, expected %v", !test.output, test.input, test.output)
		}
	}
}

/*
 * Helpers
 */

func getjson(t *testing.T, verb, route string, expstatus int, v interface{}) {
	req, err := http.NewRequest(verb, testServer.URL+route, nil)
	if err != nil {
		t.Fatal("Problem creating request", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(route, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != expstatus {
		t.Errorf("%s: Expected status %d and received %d",
			route,
			expstatus,
			resp.StatusCode)
	}
	err = json.NewDecoder(resp.Body).Decode(v)
	if err != nil {
		t.Fatal(route, err)
	}
}

func getbody(t *testing.T, verb, route string, expstatus int) string {
	resp := checkRoute(t, verb, route, expstatus)
	if resp != nil {
		body, err := ioutil.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(route, err)
		}
		resp.Body.Close()
		return string(body)
	}
	return ""
}

func checkStatus(t *testing.T, verb, route string, expstatus int) {
	resp := checkRoute(t, verb, route, expstatus)
	if resp != nil {
		resp.Body.Close()
	}
}

func checkRoute(t *testing.T, verb, route string, expstatus int) *http.Response {
	req, err := http.NewRequest(verb, testServer.URL+route, nil)
	if err != nil {
		t.Fatal("Problem creating request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(route, err)
		return nil
	}
	if resp.StatusCode != expstatus {
		t.Errorf("%s: Expected status %d and received %d",
			route,
			expstatus,
			resp.StatusCode)
	}
	return resp
}

// newUpstream serves records 1 and 3, each with a single file.
func newUpstream() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/records/1", "/api/records/3":
			fmt.Fprintf(w, `{"files": [{"key": "a.txt", "id": "f1", "size": 5,
				"checksum": "md5:5d41402abc4b2a76b9719d911017c592",
				"links": {"self": "http://%s/files/a.txt"}}]}`, r.Host)
		case "/files/a.txt":
			fmt.Fprint(w, "hello")
		default:
			w.WriteHeader(404)
		}
	}))
}

var (
	testServer     *httptest.Server
	testRESTServer *RESTServer
)

func TestMain(m *testing.M) {
	dir, err := ioutil.TempDir("", "bagcreate-server")
	if err != nil {
		log.Fatal(err)
	}
	upstream := newUpstream()
	cfg := harvest.DefaultConfig()
	cfg.WorkDir = filepath.Join(dir, "work")
	cfg.Target = filepath.Join(dir, "sips")
	cfg.Sources = map[string]sources.Config{
		"test": {
			Type:         sources.InvenioV3,
			BaseURL:      upstream.URL + "/api/records/",
			Files:        "files",
			FileName:     "key",
			FileURI:      "links,self",
			FileChecksum: "checksum",
			FileSize:     "size",
			FileID:       "id",
		},
	}
	h, err := harvest.New(cfg, log.New(ioutil.Discard, "", 0))
	if err != nil {
		log.Fatal(err)
	}
	testRESTServer = &RESTServer{Harvester: h}
	testServer = httptest.NewServer(testRESTServer.Handler())

	code := m.Run()

	testServer.Close()
	upstream.Close()
	h.Close()
	os.RemoveAll(dir)
	os.Exit(code)
}
