// Package server exposes a Harvester over HTTP. Packages are requested with
// a POST naming the source and record id, and the run catalog can be read
// back with GET requests.
package server

import (
	"encoding/json"
	"expvar"
	"fmt"
	"html/template"
	"log"
	"net/http"
	_ "net/http/pprof" // for pprof server
	"time"

	"github.com/facebookgo/clock"
	"github.com/facebookgo/httpdown"
	"github.com/golang/groupcache/singleflight"
	"github.com/julienschmidt/httprouter"

	"github.com/ndlib/bagcreate/harvest"
	"github.com/ndlib/bagcreate/util"
)

// RESTServer holds the configuration for a bagcreate REST API server.
//
// Set the public fields and then call Run. Do not change any fields after
// calling Run.
//
// Packages are assembled one at a time. Identical requests made while a
// package is being assembled wait for that package and share its result.
type RESTServer struct {
	// Port number to listen on. Defaults to 14100.
	PortNumber string
	PProfPort  string

	// Harvester does the work. Run will panic if it is nil.
	Harvester *harvest.Harvester

	// StopTimeout is how long Stop waits for requests in progress.
	StopTimeout time.Duration

	server httpdown.Server // used to close our listening socket
	gate   *util.Gate      // one package at a time
	flight singleflight.Group
	stats  *expvarStats
}

// Run starts the server. It then blocks listening for and handling http
// requests.
func (s *RESTServer) Run() error {
	log.Println("==========")
	log.Printf("Starting bagcreate server version %s", harvest.Version)
	if s.Harvester == nil {
		panic("No harvester given")
	}
	log.Printf("WorkDir = %s", s.Harvester.Config.WorkDir)
	if s.PortNumber == "" {
		s.PortNumber = "14100"
	}
	handler := s.Handler()

	// for pprof
	if s.PProfPort != "" {
		log.Println("Starting PProf on port", s.PProfPort)
		go func() {
			log.Println(http.ListenAndServe(":"+s.PProfPort, nil))
		}()
	}
	log.Println("Listening on", s.PortNumber)

	h := httpdown.HTTP{
		StopTimeout: s.StopTimeout,
		KillTimeout: 5 * time.Second,
		Stats:       s.stats,
		Clock:       clock.New(),
	}
	var err error
	s.server, err = h.ListenAndServe(&http.Server{
		Addr:    ":" + s.PortNumber,
		Handler: handler,
	})
	if err != nil {
		log.Println(err)
		return err
	}
	return s.server.Wait()
}

// Stop waits for the package being assembled, if any, and then closes the
// listening socket and all connections.
func (s *RESTServer) Stop() error {
	if s.gate != nil {
		s.gate.Stop()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Stop()
}

// Handler returns the routes of the server.
func (s *RESTServer) Handler() http.Handler {
	if s.gate == nil {
		s.gate = util.NewGate(1)
	}
	if s.stats == nil {
		s.stats = newExpvarStats("httpdown")
	}
	return s.addRoutes()
}

func (s *RESTServer) addRoutes() http.Handler {
	var routes = []struct {
		method  string
		route   string
		handler httprouter.Handle
	}{
		{"POST", "/sip/:source/:recid", s.NewSIPHandler},
		{"GET", "/sip/:source/:recid", s.RecordRunsHandler},
		{"GET", "/run", s.RecentRunsHandler},
		{"GET", "/run/:runid", s.RunHandler},
		{"GET", "/sources", s.SourcesHandler},

		// other
		{"GET", "/", WelcomeHandler},
		{"GET", "/stats", NotImplementedHandler},
		{"GET", "/debug/vars", VarHandler}, // standard route for expvars data
	}

	r := httprouter.New()
	for _, route := range routes {
		r.Handle(route.method, route.route, logWrapper(route.handler))
	}
	return r
}

// General route handlers and convinence functions

// VarHandler adapts the expvar default handler to the httprouter three parameter handler.
func VarHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	// this code is taken from the stdlib expvar package.
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	fmt.Fprintf(w, "{\n")
	first := true
	expvar.Do(func(kv expvar.KeyValue) {
		if !first {
			fmt.Fprintf(w, ",\n")
		}
		first = false
		fmt.Fprintf(w, "%q: %s", kv.Key, kv.Value)
	})
	fmt.Fprintf(w, "\n}\n")
}

// NotImplementedHandler will return a 501 not implemented error.
func NotImplementedHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	w.WriteHeader(http.StatusNotImplemented)
	fmt.Fprintf(w, "Not Implemented\n")
}

// writeHTMLorJSON will either return val as JSON or as rendered using the
// given template, depending on the request header "Accept".
func writeHTMLorJSON(w http.ResponseWriter,
	r *http.Request,
	tmpl *template.Template,
	val interface{}) {

	if r.Header.Get("Accept") == "application/json" {
		writeJSON(w, http.StatusOK, val)
		return
	}
	tmpl.Execute(w, val)
}

func writeJSON(w http.ResponseWriter, status int, val interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.Encode(val)
}

// logWrapper takes a handler and returns a handler which does the same thing,
// after first logging the request URL.
func logWrapper(handler httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		log.Println(r.Method, r.URL)
		handler(w, r, ps)
	}
}
