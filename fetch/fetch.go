// Package fetch downloads or copies the files of a package into place.
//
// The Executor goes through a list of bagit.File descriptors and, for each
// payload file not yet on disk, tries its urls in order until one of them
// can be read. The bytes are written to the file's bagpath under the bag
// root and the descriptor is marked as downloaded. Any checksum declared by
// the source is checked while the file is written.
//
// A file which cannot be fetched is logged and left alone. It is up to the
// caller to decide what a missing file means for the package.
package fetch

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go/aws/session"
	raven "github.com/getsentry/raven-go"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
	"github.com/ndlib/bagcreate/util"
)

// An Executor fetches files into a bag.
type Executor struct {
	// Transports maps a url scheme to the transport used for it.
	Transports map[string]Transport

	// Limiter, if set, caps the bandwidth used for all transfers.
	Limiter *util.RateLimiter

	Logger *log.Logger
}

var (
	// ErrSizeMismatch means the number of bytes fetched is not the size
	// declared for the file.
	ErrSizeMismatch = errors.New("size mismatch")

	// ErrChecksumMismatch means a fetched file does not match the checksum
	// declared for it.
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// New returns an Executor with transports for http, https, file and eos
// urls, and for s3 urls if sess is not nil.
func New(client *http.Client, sess *session.Session, logger *log.Logger) *Executor {
	h := &HTTP{Client: client, UserAgent: "bagcreate"}
	l := &Local{}
	e := &Executor{
		Transports: map[string]Transport{
			"http":  h,
			"https": h,
			"file":  l,
			"eos":   l,
		},
		Logger: logger,
	}
	if sess != nil {
		e.Transports["s3"] = &S3{Session: sess}
	}
	return e
}

// Summary counts what happened in a call to Fetch.
type Summary struct {
	Fetched int
	Failed  int
	Skipped int // metadata files and files already on disk
	Bytes   int64
}

// Fetch fetches every payload file which is not yet downloaded into the bag
// at root. Failures are logged and do not stop the other files.
func (e *Executor) Fetch(root string, files []*bagit.File) Summary {
	var s Summary
	lg := logger(e.Logger)
	for _, f := range files {
		if f.Metadata || f.Downloaded {
			s.Skipped++
			continue
		}
		n, err := e.FetchFile(root, f)
		if err != nil {
			s.Failed++
			lg.Printf("Could not fetch %s: %s", f.Bagpath, err)
			raven.CaptureError(err, map[string]string{"Bagpath": f.Bagpath, "URL": f.Origin.URL()})
			continue
		}
		s.Fetched++
		s.Bytes += n
		lg.Printf("Fetched %s (%d bytes)", f.Bagpath, n)
	}
	return s
}

// FetchFile fetches a single file into the bag at root, trying each of its
// urls in turn. On success the file is marked as downloaded, and its size is
// filled in if it was unknown. The number of bytes written is returned.
func (e *Executor) FetchFile(root string, f *bagit.File) (int64, error) {
	if f.Bagpath == "" {
		return 0, errors.New("file has no bagpath")
	}
	if len(f.Origin.URLs) == 0 {
		return 0, errors.New("file has no url")
	}
	var err error
	for _, raw := range f.Origin.URLs {
		var n int64
		n, err = e.fetchURL(root, f, raw)
		if err == nil {
			f.Downloaded = true
			if f.Size == 0 {
				f.Size = n
			}
			return n, nil
		}
		logger(e.Logger).Printf("%s: %s", raw, err)
	}
	return 0, err
}

func (e *Executor) fetchURL(root string, f *bagit.File, raw string) (int64, error) {
	u, err := parseURL(raw)
	if err != nil {
		return 0, err
	}
	t := e.Transports[u.Scheme]
	if t == nil {
		return 0, errors.Wrap(ErrNoTransport, u.Scheme)
	}
	in, size, err := t.Open(u)
	if err != nil {
		return 0, err
	}
	defer in.Close()
	if f.Size > 0 && size > 0 && size != f.Size {
		return 0, errors.Wrapf(ErrSizeMismatch, "declared %d, source has %d", f.Size, size)
	}
	return e.save(root, f, e.Limiter.Wrap(in))
}

// save writes r to the bagpath of f, checking any declared checksums. The
// content is written to a temporary name and renamed into place only when it
// is complete and correct.
func (e *Executor) save(root string, f *bagit.File, r io.Reader) (int64, error) {
	target := filepath.Join(root, filepath.FromSlash(f.Bagpath))
	err := os.MkdirAll(filepath.Dir(target), 0775)
	if err != nil {
		return 0, err
	}
	temp := target + ".part"
	out, err := os.OpenFile(temp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return 0, err
	}
	var names []string
	for _, c := range f.Checksums {
		names = append(names, string(c.Algorithm))
	}
	hw, err := util.NewHashWriter(out, names...)
	if err != nil {
		out.Close()
		os.Remove(temp)
		return 0, err
	}
	n, err := io.Copy(hw, r)
	err2 := out.Close()
	if err == nil {
		err = err2
	}
	if err == nil && f.Size > 0 && n != f.Size {
		err = errors.Wrapf(ErrSizeMismatch, "declared %d, received %d", f.Size, n)
	}
	if err == nil {
		err = checkDigests(hw, f.Checksums)
	}
	if err == nil {
		err = os.Rename(temp, target)
	}
	if err != nil {
		os.Remove(temp)
		return 0, err
	}
	return n, nil
}

func checkDigests(hw *util.HashWriter, cs bagit.Checksums) error {
	for _, c := range cs {
		goal, err := hex.DecodeString(c.Hex)
		if err != nil {
			return err
		}
		got := hw.Sum(string(c.Algorithm))
		if !bytes.Equal(got, goal) {
			return errors.Wrap(ErrChecksumMismatch, fmt.Sprintf("%s: declared %s, received %x", c.Algorithm, c.Hex, got))
		}
	}
	return nil
}
