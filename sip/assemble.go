package sip

import (
	"bytes"
	"io"
	"io/ioutil"
	"log"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/facebookgo/clock"
	raven "github.com/getsentry/raven-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
	"github.com/ndlib/bagcreate/fetch"
	"github.com/ndlib/bagcreate/sources"
)

var (
	// ErrExists means the directory for a package is already there. It is
	// never removed or reused.
	ErrExists = errors.New("package directory exists")

	// ErrNoAlgorithm means no checksum algorithm was given.
	ErrNoAlgorithm = errors.New("no checksum algorithm")

	// ErrNoRecord means the request has no record to package.
	ErrNoRecord = errors.New("no record given")

	// ErrNoFetcher means payload mode was asked for with nothing to fetch
	// the files with.
	ErrNoFetcher = errors.New("no fetcher")
)

// A Fetcher puts the bytes of files into the bag at root. The fetch.Executor
// is the usual one.
type Fetcher interface {
	Fetch(root string, files []*bagit.File) fetch.Summary
}

// An Assembler builds packages inside WorkDir.
type Assembler struct {
	WorkDir string
	Fetcher Fetcher
	Version string

	// Verbose adds debugging lines to the log.
	Verbose bool

	// Logger receives the log of each run, which is also kept in the
	// package. May be nil.
	Logger *log.Logger

	Clock clock.Clock

	// NewID returns a new run identifier. Defaults to a random UUID.
	NewID func() string
}

// New returns an Assembler working in workdir.
func New(workdir string, fetcher Fetcher, version string, logger *log.Logger) *Assembler {
	return &Assembler{
		WorkDir: workdir,
		Fetcher: fetcher,
		Version: version,
		Logger:  logger,
		Clock:   clock.New(),
		NewID:   uuid.NewString,
	}
}

// A Request asks for a package of one record.
type Request struct {
	Record     *sources.Record
	Algorithms []bagit.Algorithm

	// Dry makes a package with a fetch.txt in place of the payload.
	Dry bool

	// Alternate uses the second url of each file in the fetch.txt.
	Alternate bool

	// Timestamp is the unix time the package is named with. 0 means now.
	Timestamp int64

	// Params are recorded in the audit trail.
	Params map[string]interface{}

	// Tags are added to bag-info.txt.
	Tags bagit.Tags

	SourceDetails *SourceDetails
}

// Result tells what happened to a request.
type Result struct {
	Status int    `json:"status"` // 0 on success, 1 on failure
	Error  string `json:"errormsg,omitempty"`
	RunID  string `json:"run_id"`
	Name   string `json:"name,omitempty"`

	// Path is where the package is. Empty if the package was removed.
	Path string `json:"details,omitempty"`

	Dry bool `json:"dry_run"`

	// Valid is false if the package failed verification. It is advisory.
	Valid bool `json:"valid"`

	// Compliant is false if a manifest uses an algorithm outside the BagIt
	// standard.
	Compliant bool `json:"compliant"`

	Files   int   `json:"files"`
	Missing int   `json:"missing"` // payload files which could not be fetched
	Bytes   int64 `json:"bytes"`
}

// Assemble builds the package for req. Any error removes the package
// directory again, except for ErrExists, which leaves everything as it was.
func (a *Assembler) Assemble(req Request) Result {
	r := a.newRun(req)
	err := r.prepare()
	if err == nil {
		if req.Dry {
			err = r.dry()
		} else {
			err = r.payload()
		}
	}
	if err != nil {
		return r.fail(err)
	}
	r.res.Valid = bagit.Validate(r.p.BasePath, r.lg)
	if r.res.Valid {
		r.lg.Println("Bag successfully validated")
	}
	r.res.Files = len(r.p.Files)
	return r.res
}

// a run holds the state of assembling one package.
type run struct {
	*Assembler
	req        Request
	p          *Package
	lg         *log.Logger
	logbuf     bytes.Buffer
	res        Result
	created    bool
	reconciler *bagit.Reconciler
}

func (a *Assembler) newRun(req Request) *run {
	r := &run{Assembler: a, req: req}
	var out io.Writer = &r.logbuf
	if a.Logger != nil {
		out = io.MultiWriter(&r.logbuf, a.Logger.Writer())
	}
	r.lg = log.New(out, "", log.LstdFlags)
	newID := a.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	r.res = Result{RunID: newID(), Dry: req.Dry, Compliant: true}
	return r
}

func (r *run) debugf(format string, args ...interface{}) {
	if r.Verbose {
		r.lg.Printf(format, args...)
	}
}

func (r *run) fail(err error) Result {
	r.lg.Println("Error:", err)
	tags := map[string]string{"RunID": r.res.RunID}
	if r.req.Record != nil {
		tags["Source"] = r.req.Record.Source
		tags["RecID"] = r.req.Record.RecID
	}
	if errors.Cause(err) != ErrExists {
		raven.CaptureError(err, tags)
	}
	if r.created {
		os.RemoveAll(r.p.BasePath)
		r.res.Path = ""
	}
	r.res.Status = 1
	r.res.Error = err.Error()
	return r.res
}

func (r *run) now() time.Time {
	if r.Clock == nil {
		return time.Now()
	}
	return r.Clock.Now()
}

// prepare makes the package directory and gives every file its bagpath.
func (r *run) prepare() error {
	rec := r.req.Record
	if rec == nil {
		return ErrNoRecord
	}
	if len(r.req.Algorithms) == 0 {
		return ErrNoAlgorithm
	}
	ts := r.req.Timestamp
	if ts == 0 {
		ts = r.now().Unix()
	}
	name := PackageName(rec.Source, rec.RecID, ts)
	r.p = &Package{
		Name:          name,
		BasePath:      filepath.Join(r.WorkDir, name),
		Source:        rec.Source,
		RecID:         rec.RecID,
		MetadataURL:   rec.URL,
		Manifests:     make(map[bagit.Algorithm][]bagit.ManifestEntry),
		Created:       time.Unix(ts, 0).UTC(),
		SourceDetails: r.req.SourceDetails,
	}
	r.res.Name = name
	r.lg.Printf("%s %s", ToolName, r.Version)
	r.lg.Printf("Starting job. recid: %s, source: %s, run: %s", rec.RecID, rec.Source, r.res.RunID)
	for _, w := range rec.Warnings {
		r.lg.Println("Warning:", w)
	}

	err := os.MkdirAll(r.WorkDir, 0775)
	if err != nil {
		return err
	}
	err = os.Mkdir(r.p.BasePath, 0775)
	if os.IsExist(err) {
		return errors.Wrap(ErrExists, r.p.BasePath)
	} else if err != nil {
		return err
	}
	r.created = true
	r.res.Path = r.p.BasePath
	r.debugf("Bag folder: %s", name)
	for _, dir := range []string{bagit.ContentDir, bagit.MetaDir} {
		err = os.MkdirAll(filepath.Join(r.p.BasePath, filepath.FromSlash(dir)), 0775)
		if err != nil {
			return err
		}
	}
	r.reconciler = bagit.NewReconciler(r.p.BasePath)
	r.audit()
	r.assign()
	return nil
}

// assign gives each file a unique bagpath. The upstream metadata record
// comes first so it keeps its name. Files without a filename are dropped.
func (r *run) assign() {
	var resolver bagit.Resolver
	resolver.Reserve(MetaFile)
	resolver.Reserve(LogFile)
	rec := r.req.Record
	if rec.Metadata != nil {
		f := &bagit.File{
			Origin:     bagit.Origin{Filename: rec.MetadataFile},
			Size:       int64(len(rec.Metadata)),
			Metadata:   true,
			Downloaded: true,
		}
		if rec.URL != "" {
			f.Origin.URLs = bagit.URLList{rec.URL}
		}
		if resolver.Assign(f, 0) == nil {
			r.p.Files = append(r.p.Files, f)
		}
	}
	for i, f := range rec.Files {
		err := resolver.Assign(f, i)
		if err != nil {
			r.lg.Printf("Skipping %s: %s", f.Origin.URL(), err)
			continue
		}
		r.debugf("%s -> %s", f.Origin.URL(), f.Bagpath)
		r.p.Files = append(r.p.Files, f)
	}
}

func (r *run) audit() {
	params := map[string]interface{}{
		"source":     r.p.Source,
		"recid":      r.p.RecID,
		"dry_run":    r.req.Dry,
		"alternate":  r.req.Alternate,
		"algorithms": algorithmNames(r.req.Algorithms),
		"run_id":     r.res.RunID,
	}
	for k, v := range r.req.Params {
		params[k] = v
	}
	message := "SIP created"
	if r.req.Dry {
		message = "SIP created, payload not downloaded"
	}
	r.p.Audit = append(r.p.Audit, AuditStep{
		Tool: Tool{
			Name:    ToolName,
			Version: r.Version,
			Website: Website,
			Params:  params,
		},
		Action:    "sip_create",
		Timestamp: r.p.Created.Unix(),
		Message:   message,
	})
}

func algorithmNames(algs []bagit.Algorithm) []string {
	var result []string
	for _, a := range algs {
		result = append(result, string(a))
	}
	return result
}

func (r *run) agent() string {
	return ToolName + "/" + r.Version
}

// payloadFiles returns the files which are not metadata.
func (r *run) payloadFiles() []*bagit.File {
	var result []*bagit.File
	for _, f := range r.p.Files {
		if !f.Metadata {
			result = append(result, f)
		}
	}
	return result
}

// dry writes a bag with a fetch.txt listing where each file can be found.
// Nothing is downloaded or hashed.
func (r *run) dry() error {
	root := r.p.BasePath
	err := bagit.WriteDeclaration(root)
	if err != nil {
		return err
	}
	entries, err := bagit.AppendFetch(root, r.payloadFiles(), bagit.FetchOptions{Alternate: r.req.Alternate})
	if err != nil {
		return err
	}
	r.lg.Printf("Wrote %d entries to %s", len(entries), bagit.FetchFile)
	var ts bagit.Tags
	ts.Add("Bag-Software-Agent", r.agent())
	ts.Add("Bagging-Date", r.p.Created.Format("2006-01-02"))
	ts = append(ts, r.req.Tags...)
	return bagit.WriteBagInfo(root, ts)
}

// payload fetches every file and writes the manifests. The manifests are
// written in two passes: first the record and its files, then sip.json and
// the log, since those describe the first pass.
func (r *run) payload() error {
	root := r.p.BasePath
	if r.Fetcher == nil {
		return ErrNoFetcher
	}
	err := bagit.WriteDeclaration(root)
	if err != nil {
		return err
	}
	rec := r.req.Record
	if rec.Metadata != nil && len(r.p.Files) > 0 && r.p.Files[0].Metadata {
		err = r.writeFile(r.p.Files[0].Bagpath, rec.Metadata)
		if err != nil {
			return err
		}
	}
	s := r.Fetcher.Fetch(root, r.p.Files)
	r.lg.Printf("Fetched %d files (%d bytes), %d failed", s.Fetched, s.Bytes, s.Failed)
	r.res.Missing = s.Failed
	r.res.Bytes = s.Bytes

	for _, alg := range r.req.Algorithms {
		if !alg.Standard() {
			r.lg.Printf("Warning: %s is not a BagIt standard algorithm, the bag will not be compliant", alg)
			r.res.Compliant = false
		}
		entries, err := r.reconciler.AppendManifest(r.p.Files, alg)
		if err != nil {
			return err
		}
		r.p.Manifests[alg] = entries
	}

	added, err := r.writeMeta()
	if err != nil {
		return err
	}
	for _, alg := range r.req.Algorithms {
		entries, err := r.reconciler.AppendManifest(added, alg)
		if err != nil {
			return err
		}
		r.p.Manifests[alg] = append(r.p.Manifests[alg], entries...)
	}

	var extra bagit.Tags
	extra.Add("External-Identifier", r.p.Source+"::"+r.p.RecID)
	extra = append(extra, r.req.Tags...)
	ts, err := bagit.BagInfo(root, r.p.Created, r.agent(), extra)
	if err != nil {
		return err
	}
	err = bagit.WriteBagInfo(root, ts)
	if err != nil {
		return err
	}
	return bagit.WriteTagManifests(root, r.req.Algorithms)
}

// writeMeta writes sip.json and the log of the run so far, and returns
// their descriptors.
func (r *run) writeMeta() ([]*bagit.File, error) {
	logf := &bagit.File{
		Origin:     bagit.Origin{Filename: path.Base(LogFile)},
		Bagpath:    LogFile,
		Metadata:   true,
		Downloaded: true,
	}
	metaf := &bagit.File{
		Origin:     bagit.Origin{Filename: path.Base(MetaFile)},
		Bagpath:    MetaFile,
		Metadata:   true,
		Downloaded: true,
	}
	r.p.Files = append(r.p.Files, logf, metaf)
	b, err := r.p.MarshalMeta(ToolName + " " + r.Version)
	if err != nil {
		return nil, err
	}
	if err := ValidateMeta(b); err != nil {
		r.lg.Println("Warning: sip.json does not match the schema:", err)
	}
	err = r.writeFile(MetaFile, b)
	if err != nil {
		return nil, err
	}
	metaf.Size = int64(len(b))
	r.lg.Printf("Wrote %s", MetaFile)

	logtext := r.logbuf.Bytes()
	err = r.writeFile(LogFile, logtext)
	if err != nil {
		return nil, err
	}
	logf.Size = int64(len(logtext))
	return []*bagit.File{logf, metaf}, nil
}

func (r *run) writeFile(bagpath string, content []byte) error {
	if strings.HasPrefix(bagpath, "/") {
		return errors.Errorf("bad bagpath %s", bagpath)
	}
	target := filepath.Join(r.p.BasePath, filepath.FromSlash(bagpath))
	err := os.MkdirAll(filepath.Dir(target), 0775)
	if err != nil {
		return err
	}
	return ioutil.WriteFile(target, content, 0664)
}
