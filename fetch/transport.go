package fetch

import (
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/store"
)

// A Transport reads the content at a url. It returns the size of the
// content, or 0 if it is not known before reading.
type Transport interface {
	Open(u *url.URL) (io.ReadCloser, int64, error)
}

// Exported errors
var (
	ErrNotFound      = errors.New("Not Found")
	ErrNotAuthorized = errors.New("Access Denied")
	ErrNoTransport   = errors.New("no transport for url scheme")
)

// HTTP fetches http and https urls.
type HTTP struct {
	// Client is used for every request. If nil a client with a long
	// timeout is made.
	Client *http.Client

	// UserAgent is sent with every request, if set.
	UserAgent string
}

// Open performs a GET request for u.
func (h *HTTP) Open(u *url.URL) (io.ReadCloser, int64, error) {
	req, err := http.NewRequest("GET", u.String(), nil)
	if err != nil {
		return nil, 0, err
	}
	if h.UserAgent != "" {
		req.Header.Set("User-Agent", h.UserAgent)
	}
	if h.Client == nil {
		h.Client = &http.Client{
			Timeout: 60 * time.Minute, // arbitrary
		}
	}
	resp, err := h.Client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	switch resp.StatusCode {
	case 200:
		size := resp.ContentLength
		if size < 0 {
			size = 0
		}
		return resp.Body, size, nil
	case 404:
		err = ErrNotFound
	case 401, 403:
		err = ErrNotAuthorized
	default:
		err = errors.Errorf("Received status %d from %s", resp.StatusCode, u.Host)
	}
	resp.Body.Close()
	return nil, 0, err
}

// Local copies files from the local file system. It handles file:// urls
// and eos:// urls, which name paths below an EOS mount point.
type Local struct {
	// EOSMount is the directory the EOS namespace is mounted on. The
	// default is the file system root, so "eos://eos/a" is "/eos/a".
	EOSMount string
}

// Open opens the local file named by u.
func (l *Local) Open(u *url.URL) (io.ReadCloser, int64, error) {
	var p string
	switch u.Scheme {
	case "file", "":
		p = u.Path
	case "eos":
		p = filepath.Join("/", l.EOSMount, u.Host, filepath.FromSlash(u.Path))
	default:
		return nil, 0, ErrNoTransport
	}
	if p == "" {
		return nil, 0, ErrNotFound
	}
	f, err := os.Open(p)
	if os.IsNotExist(err) {
		return nil, 0, ErrNotFound
	} else if err != nil {
		return nil, 0, err
	}
	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, err
	}
	if fi.IsDir() {
		f.Close()
		return nil, 0, errors.Errorf("%s is a directory", p)
	}
	return f, fi.Size(), nil
}

// S3 reads objects from s3://bucket/key urls using the given session.
type S3 struct {
	Session *session.Session
}

// Open starts a GET of the object named by u.
func (s *S3) Open(u *url.URL) (io.ReadCloser, int64, error) {
	bucket, key, err := store.ParseS3URL(u.String())
	if err != nil {
		return nil, 0, err
	}
	if s.Session == nil {
		return nil, 0, errors.New("no S3 session configured")
	}
	rc, size, err := store.NewS3(bucket, "", s.Session).OpenStream(key)
	if err == store.ErrNotExist {
		err = ErrNotFound
	}
	return rc, size, err
}

// parseURL parses a file url. Bare absolute paths are taken to be file
// urls, and legacy "/eos/" paths are given the eos scheme.
func parseURL(raw string) (*url.URL, error) {
	if strings.HasPrefix(raw, "/eos/") {
		raw = "eos:/" + raw
	}
	if strings.HasPrefix(raw, "/") {
		return &url.URL{Scheme: "file", Path: path.Clean(raw)}, nil
	}
	return url.Parse(raw)
}

// logger returns l, or the standard logger if l is nil.
func logger(l *log.Logger) *log.Logger {
	if l == nil {
		return log.New(os.Stderr, "", log.LstdFlags)
	}
	return l
}
