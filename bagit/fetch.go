package bagit

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// FetchOptions controls how a fetch file is written.
type FetchOptions struct {
	// Alternate selects the second url of a file, when it has one, instead
	// of the first. Some sources list both an HTTP url and a url for a
	// different transfer protocol.
	Alternate bool
}

// FetchEntry is one line of a fetch file.
type FetchEntry struct {
	URL  string
	Size int64 // 0 if unknown
	Path string
}

// FetchURL returns the url to use for f in a fetch file.
func FetchURL(f *File, opts FetchOptions) string {
	u := f.Origin.URL()
	if opts.Alternate && len(f.Origin.URLs) > 1 {
		u = f.Origin.URLs[1]
	}
	return RewriteURL(u)
}

// RewriteURL turns paths from the EOS storage namespace, which are not
// urls, into ones with an "eos:" scheme. Everything else is unchanged.
func RewriteURL(u string) string {
	if strings.HasPrefix(u, "/eos/") {
		return "eos:/" + u
	}
	return u
}

// Fetch returns the text of the fetch lines for the given files, one
// "<url> <size> <bagpath>" line each. An unknown size is written as "-".
func Fetch(files []*File, opts FetchOptions) (string, []FetchEntry) {
	var buf bytes.Buffer
	var entries []FetchEntry
	for _, f := range files {
		e := FetchEntry{
			URL:  FetchURL(f, opts),
			Size: f.Size,
			Path: f.Bagpath,
		}
		size := "-"
		if e.Size > 0 {
			size = strconv.FormatInt(e.Size, 10)
		}
		fmt.Fprintf(&buf, "%s %s %s\n", e.URL, size, encodePath(e.Path))
		entries = append(entries, e)
	}
	return buf.String(), entries
}

// AppendFetch adds a line for each file to the fetch file of the bag at
// root, creating it if needed.
func AppendFetch(root string, files []*File, opts FetchOptions) ([]FetchEntry, error) {
	text, entries := Fetch(files, opts)
	err := appendFile(filepath.Join(root, FetchFile), text)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadFetch parses the fetch file of the bag at root.
func ReadFetch(root string) ([]FetchEntry, error) {
	text, err := readFile(filepath.Join(root, FetchFile))
	if err != nil {
		return nil, err
	}
	var result []FetchEntry
	for lineno, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			return nil, errors.Errorf("fetch.txt line %d: malformed line %q", lineno+1, line)
		}
		var size int64
		if fields[1] != "-" {
			size, err = strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return nil, errors.Errorf("fetch.txt line %d: bad length %q", lineno+1, fields[1])
			}
		}
		result = append(result, FetchEntry{URL: fields[0], Size: size, Path: decodePath(fields[2])})
	}
	return result, nil
}
