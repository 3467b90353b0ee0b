package bagit

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ManifestEntry is one line of a manifest.
type ManifestEntry struct {
	Digest string
	Path   string
}

// Manifest reconciles the checksum of every file in files for the given
// algorithm and returns the text of the manifest lines for them, one
// "<digest> <bagpath>" line per file, in order. New digests are recorded on
// the files as a side effect. Nothing is returned if any file fails.
func (r *Reconciler) Manifest(files []*File, a Algorithm) (string, []ManifestEntry, error) {
	var buf bytes.Buffer
	var entries []ManifestEntry
	for _, f := range files {
		digest, err := r.Reconcile(f, a)
		if err != nil {
			return "", nil, err
		}
		fmt.Fprintf(&buf, "%s %s\n", digest, encodePath(f.Bagpath))
		entries = append(entries, ManifestEntry{Digest: digest, Path: f.Bagpath})
	}
	return buf.String(), entries, nil
}

// AppendManifest adds a line for each file to the manifest for the given
// algorithm, creating the manifest if needed. Existing lines are kept, so
// this may be called more than once with disjoint lists of files. If a
// checksum cannot be reconciled the manifest is left untouched.
func (r *Reconciler) AppendManifest(files []*File, a Algorithm) ([]ManifestEntry, error) {
	text, entries, err := r.Manifest(files, a)
	if err != nil {
		return nil, err
	}
	err = appendFile(filepath.Join(r.Root, a.ManifestName()), text)
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// ReadManifest parses the manifest file at the given path.
func ReadManifest(fname string) ([]ManifestEntry, error) {
	f, err := os.Open(fname)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseManifest(f)
}

func parseManifest(r io.Reader) ([]ManifestEntry, error) {
	var result []ManifestEntry
	scanner := bufio.NewScanner(r)
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		// digest and path are separated by one or more spaces or tabs
		i := strings.IndexAny(line, " \t")
		if i <= 0 {
			return nil, errors.Errorf("line %d: malformed manifest line %q", lineno, line)
		}
		p := strings.TrimLeft(line[i:], " \t")
		if p == "" {
			return nil, errors.Errorf("line %d: missing path", lineno)
		}
		result = append(result, ManifestEntry{
			Digest: strings.ToLower(line[:i]),
			Path:   decodePath(p),
		})
	}
	return result, scanner.Err()
}

// appendFile appends text to the named file, creating it if necessary.
func appendFile(fname, text string) error {
	out, err := os.OpenFile(fname, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0664)
	if err != nil {
		return err
	}
	_, err = io.WriteString(out, text)
	err2 := out.Close()
	if err == nil {
		err = err2
	}
	return errors.Wrap(err, filepath.Base(fname))
}

// Paths in manifests and fetch files have CR, LF, and % percent-encoded.
var (
	pathEncoder = strings.NewReplacer("%", "%25", "\n", "%0A", "\r", "%0D")
	pathDecoder = strings.NewReplacer("%0A", "\n", "%0a", "\n", "%0D", "\r", "%0d", "\r", "%25", "%")
)

func encodePath(p string) string { return pathEncoder.Replace(p) }
func decodePath(p string) string { return pathDecoder.Replace(p) }
