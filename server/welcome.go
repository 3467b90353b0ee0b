package server

import (
	"fmt"
	"html/template"
	"net/http"

	"github.com/julienschmidt/httprouter"

	"github.com/ndlib/bagcreate/harvest"
)

func WelcomeHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	fmt.Fprintf(w, "bagcreate (%s)\n", harvest.Version)
}

type sourceInfo struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// SourcesHandler handles requests to GET /sources
func (s *RESTServer) SourcesHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	var result []sourceInfo
	reg := s.Harvester.Registry
	for _, name := range reg.Names() {
		result = append(result, sourceInfo{Name: name, Type: reg.Type(name)})
	}
	writeHTMLorJSON(w, r, sourceListTemplate, result)
}

var (
	sourceListTemplate = template.Must(template.New("sourcelist").Parse(`<html>
<h1>Sources</h1>
<ol>
{{ range . }}
	<li>{{ .Name }} ({{ .Type }})</li>
{{ end }}
</ol>
</html>`))
)
