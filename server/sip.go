package server

import (
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
	"github.com/ndlib/bagcreate/catalog"
	"github.com/ndlib/bagcreate/harvest"
	"github.com/ndlib/bagcreate/sip"
	"github.com/ndlib/bagcreate/sources"
)

var errStopping = errors.New("server is stopping")

// NewSIPHandler handles requests to POST /sip/:source/:recid. It assembles
// a package and returns the result as JSON. The query parameters "dry" and
// "alt" ask for a dry run and for alternate urls in the fetch file, and
// "alg" is a comma separated list of checksum algorithms.
func (s *RESTServer) NewSIPHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	job := harvest.Job{
		Source: ps.ByName("source"),
		RecID:  ps.ByName("recid"),
	}
	if s.Harvester.Registry.Type(job.Source) == sources.Local {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintln(w, "local sources are not available over HTTP")
		return
	}
	q := r.URL.Query()
	job.Dry = flag(q.Get("dry"))
	job.Alternate = flag(q.Get("alt"))
	if alg := q.Get("alg"); alg != "" {
		var err error
		job.Algorithms, err = bagit.ParseAlgorithms(alg)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, err)
			return
		}
	}
	key := fmt.Sprintf("%s/%s/%v/%v/%s", job.Source, job.RecID, job.Dry, job.Alternate, q.Get("alg"))
	v, err := s.flight.Do(key, func() (interface{}, error) {
		if !s.gate.Enter() {
			return nil, errStopping
		}
		defer s.gate.Leave()
		return s.Harvester.Run(job), nil
	})
	if err != nil {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprintln(w, err)
		return
	}
	res := v.(sip.Result)
	status := http.StatusOK
	if res.Status != 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

// flag is true for the query values "1", "true", and "yes".
func flag(s string) bool {
	switch strings.ToLower(s) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// RecordRunsHandler handles requests to GET /sip/:source/:recid
func (s *RESTServer) RecordRunsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	runs, err := s.Harvester.Catalog.ForRecord(ps.ByName("source"), ps.ByName("recid"))
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return
	}
	writeHTMLorJSON(w, r, runListTemplate, runs)
}

// RecentRunsHandler handles requests to GET /run. The query parameter "n"
// limits the number of runs returned.
func (s *RESTServer) RecentRunsHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	limit := 50
	if n := r.URL.Query().Get("n"); n != "" {
		var err error
		limit, err = strconv.Atoi(n)
		if err != nil || limit <= 0 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprintln(w, "bad value for n")
			return
		}
	}
	runs, err := s.Harvester.Catalog.Recent(limit)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return
	}
	writeHTMLorJSON(w, r, runListTemplate, runs)
}

var (
	runListTemplate = template.Must(template.New("runlist").Parse(`<html>
<h1>Runs</h1>
<table>
<tr><th>Run</th><th>Source</th><th>Record</th><th>Package</th><th>Status</th><th>Created</th></tr>
{{ range . }}
<tr>
	<td><a href="/run/{{ .RunID }}">{{ .RunID }}</a></td>
	<td>{{ .Source }}</td>
	<td>{{ .RecID }}</td>
	<td>{{ .Name }}</td>
	<td>{{ if eq .Status 0 }}ok{{ else }}{{ .Error }}{{ end }}</td>
	<td>{{ .Created }}</td>
</tr>
{{ else }}
<tr><td colspan="6">No Runs</td></tr>
{{ end }}
</table>
</html>`))
)

// RunHandler handles requests to GET /run/:runid
func (s *RESTServer) RunHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	run, err := s.Harvester.Catalog.Lookup(ps.ByName("runid"))
	if err == catalog.ErrNotFound {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, err)
		return
	} else if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, err)
		return
	}
	writeHTMLorJSON(w, r, runTemplate, run)
}

var (
	runTemplate = template.Must(template.New("run").Parse(`<html>
<h1>Run {{ .RunID }}</h1>
<dl>
<dt>Source</dt><dd>{{ .Source }}</dd>
<dt>Record</dt><dd>{{ .RecID }}</dd>
<dt>Package</dt><dd>{{ .Name }}</dd>
<dt>Dry Run</dt><dd>{{ .Dry }}</dd>
<dt>Status</dt><dd>{{ .Status }}</dd>
<dt>Error</dt><dd>{{ .Error }}</dd>
<dt>Valid</dt><dd>{{ .Valid }}</dd>
<dt>Compliant</dt><dd>{{ .Compliant }}</dd>
<dt>Files</dt><dd>{{ .Files }}</dd>
<dt>Bytes</dt><dd>{{ .Bytes }}</dd>
<dt>Path</dt><dd>{{ .Path }}</dd>
<dt>Created</dt><dd>{{ .Created }}</dd>
</dl>
<a href="/sip/{{ .Source }}/{{ .RecID }}">All runs for this record</a>
</html>`))
)
