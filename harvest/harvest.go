// Package harvest ties the parts of bagcreate together. A Harvester reads a
// record from its source, assembles the package, delivers it, and records
// the run in the catalog.
package harvest

import (
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws/session"
	raven "github.com/getsentry/raven-go"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
	"github.com/ndlib/bagcreate/catalog"
	"github.com/ndlib/bagcreate/fetch"
	"github.com/ndlib/bagcreate/sip"
	"github.com/ndlib/bagcreate/sources"
	"github.com/ndlib/bagcreate/util"
)

// Version is the version of bagcreate recorded in packages.
var Version = "0.1.0"

// ErrBadInput means a Job does not say which record to package.
var ErrBadInput = errors.New("bad input")

// A Job asks for one record to be packaged. A record is named either by
// its URL, or by a source and record id. For local sources the record id
// is the path of the directory.
type Job struct {
	Source string
	RecID  string
	URL    string

	Dry       bool
	Alternate bool

	// Algorithms overrides the default checksum algorithms of the source.
	Algorithms []bagit.Algorithm

	// Target overrides the directory the package is delivered to.
	Target string

	// Timestamp names the package. 0 means now.
	Timestamp int64
}

// resolve fills in the source and record id from the URL.
func (j *Job) resolve() error {
	if j.URL != "" {
		if j.Source != "" || j.RecID != "" {
			return errors.Wrap(ErrBadInput, "pass either a url or a source and record id, not both")
		}
		var err error
		j.Source, j.RecID, err = sources.ParseURL(j.URL)
		if err != nil {
			return errors.Wrap(ErrBadInput, err.Error())
		}
		return nil
	}
	if j.Source == "" || j.RecID == "" {
		return errors.Wrap(ErrBadInput, "a source and record id are needed")
	}
	return nil
}

// A Harvester runs jobs. It is not safe to run more than one job at a time.
type Harvester struct {
	Config    Config
	Registry  *sources.Registry
	Executor  *fetch.Executor
	Assembler *sip.Assembler
	Deliverer *sip.Deliverer
	Catalog   catalog.Catalog
	Logger    *log.Logger

	limiter *util.RateLimiter
}

// New sets up a Harvester from cfg. Close it when done.
func New(cfg Config, logger *log.Logger) (*Harvester, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if cfg.SentryDSN != "" {
		if err := raven.SetDSN(cfg.SentryDSN); err != nil {
			return nil, errors.Wrap(err, "sentry")
		}
	}
	client := &http.Client{Timeout: cfg.Timeout.Duration}
	registry, err := sources.NewRegistry(cfg.Sources, client)
	if err != nil {
		return nil, err
	}
	sess := session.New(awsConfig("", cfg.AWSRegion))
	ex := fetch.New(client, sess, logger)
	ex.Transports["eos"] = &fetch.Local{EOSMount: cfg.EOSMount}
	h := &Harvester{
		Config:   cfg,
		Registry: registry,
		Executor: ex,
		Logger:   logger,
	}
	if cfg.RateLimit > 0 {
		h.limiter = util.NewRateLimiter(cfg.RateLimit, nil)
		ex.Limiter = h.limiter
	}
	h.Assembler = sip.New(cfg.WorkDir, ex, Version, logger)
	h.Assembler.Verbose = cfg.Verbose
	h.Deliverer = &sip.Deliverer{Target: cfg.Target, Logger: logger}
	h.Deliverer.Store, err = ParseLocation(cfg.Store, cfg.AWSRegion)
	if err != nil {
		h.Close()
		return nil, err
	}
	h.Catalog, err = catalog.Open(cfg.Catalog)
	if err != nil {
		h.Close()
		return nil, errors.Wrap(err, "catalog")
	}
	return h, nil
}

// Close releases the catalog and stops the rate limiter.
func (h *Harvester) Close() error {
	if h.limiter != nil {
		h.limiter.Stop()
	}
	if h.Catalog != nil {
		return h.Catalog.Close()
	}
	return nil
}

// Run packages the record named by job. The outcome is returned as a
// sip.Result and saved in the catalog, whether or not it succeeded.
func (h *Harvester) Run(job Job) sip.Result {
	res := h.run(&job)
	if h.Catalog != nil {
		r := &catalog.Run{
			RunID:     res.RunID,
			Source:    job.Source,
			RecID:     job.RecID,
			Name:      res.Name,
			Dry:       res.Dry,
			Status:    res.Status,
			Valid:     res.Valid,
			Compliant: res.Compliant,
			Error:     res.Error,
			Path:      res.Path,
			Files:     res.Files,
			Bytes:     res.Bytes,
		}
		if err := h.Catalog.Add(r); err != nil {
			h.Logger.Println("Could not record run", res.RunID, err)
		}
	}
	return res
}

func (h *Harvester) run(job *Job) sip.Result {
	if err := job.resolve(); err != nil {
		return h.failed(job, err)
	}
	src, err := h.Registry.Get(job.Source)
	if err != nil {
		return h.failed(job, err)
	}
	if h.Catalog != nil {
		seen, err := catalog.Seen(h.Catalog, job.Source, job.RecID)
		if err != nil {
			h.Logger.Println("Could not check catalog:", err)
		} else if seen {
			h.Logger.Printf("Warning: %s %s has been packaged before", job.Source, job.RecID)
		}
	}
	rec, err := src.Get(job.RecID)
	if err != nil {
		return h.failed(job, err)
	}
	req := sip.Request{
		Record:     rec,
		Algorithms: job.Algorithms,
		Dry:        job.Dry,
		Alternate:  job.Alternate,
		Timestamp:  job.Timestamp,
		Tags:       h.Config.Tags(),
		Params:     make(map[string]interface{}),
	}
	if len(req.Algorithms) == 0 {
		req.Algorithms = src.Algorithms()
	}
	if job.URL != "" {
		req.Params["url"] = job.URL
	}
	if h.Registry.Type(job.Source) == sources.Local {
		abs, err := filepath.Abs(job.RecID)
		if err != nil {
			return h.failed(job, err)
		}
		req.SourceDetails = &sip.SourceDetails{
			SourcePath:     abs,
			SourceBasePath: filepath.Dir(abs),
		}
	}
	res := h.Assembler.Assemble(req)
	if res.Status != 0 {
		return res
	}
	d := h.Deliverer
	if job.Target != "" {
		d = &sip.Deliverer{Target: job.Target, Logger: h.Logger, Clock: h.Deliverer.Clock}
	}
	if err := d.Deliver(&res); err != nil {
		h.Logger.Println("Error:", err)
		raven.CaptureError(err, map[string]string{"RunID": res.RunID, "Name": res.Name})
		res.Status = 1
		res.Error = err.Error()
	}
	return res
}

// failed makes the result of a job which failed before assembly started.
func (h *Harvester) failed(job *Job, err error) sip.Result {
	h.Logger.Println("Error:", err)
	return sip.Result{
		Status: 1,
		Error:  err.Error(),
		RunID:  uuid.NewString(),
		Dry:    job.Dry,
	}
}
