package bagit

import (
	"bufio"
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// A Tag is one "Label: Value" line of a tag file.
type Tag struct {
	Label string
	Value string
}

// Tags is an ordered list of tags. A label may appear more than once.
type Tags []Tag

// Get returns the value of the first tag with the given label, compared
// case-insensitively.
func (ts Tags) Get(label string) (string, bool) {
	for _, t := range ts {
		if strings.EqualFold(t.Label, label) {
			return t.Value, true
		}
	}
	return "", false
}

// Add appends a tag. Empty values are skipped.
func (ts *Tags) Add(label, value string) {
	if value == "" {
		return
	}
	*ts = append(*ts, Tag{Label: label, Value: value})
}

func (ts Tags) String() string {
	var buf bytes.Buffer
	for _, t := range ts {
		// continuation lines are indented
		v := strings.Replace(t.Value, "\n", "\n  ", -1)
		fmt.Fprintf(&buf, "%s: %s\n", t.Label, v)
	}
	return buf.String()
}

// WriteDeclaration writes the bagit.txt file of the bag at root.
func WriteDeclaration(root string) error {
	var ts Tags
	ts.Add("BagIt-Version", Version)
	ts.Add("Tag-File-Character-Encoding", Encoding)
	return writeTagFile(filepath.Join(root, DeclarationFile), ts)
}

// WriteBagInfo writes the bag-info.txt file of the bag at root.
func WriteBagInfo(root string, ts Tags) error {
	return writeTagFile(filepath.Join(root, BagInfoFile), ts)
}

func writeTagFile(fname string, ts Tags) error {
	err := ioutil.WriteFile(fname, []byte(ts.String()), 0664)
	return errors.Wrap(err, filepath.Base(fname))
}

// ReadTags parses the tag file at the given path.
func ReadTags(fname string) (Tags, error) {
	text, err := readFile(fname)
	if err != nil {
		return nil, err
	}
	var result Tags
	scanner := bufio.NewScanner(strings.NewReader(text))
	for lineno := 1; scanner.Scan(); lineno++ {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		// a line beginning with white space continues the previous tag
		if line[0] == ' ' || line[0] == '\t' {
			if len(result) == 0 {
				return nil, errors.Errorf("%s line %d: continuation without a tag", filepath.Base(fname), lineno)
			}
			last := &result[len(result)-1]
			last.Value += "\n" + strings.TrimSpace(line)
			continue
		}
		i := strings.Index(line, ":")
		if i <= 0 {
			return nil, errors.Errorf("%s line %d: malformed tag %q", filepath.Base(fname), lineno, line)
		}
		result = append(result, Tag{
			Label: strings.TrimSpace(line[:i]),
			Value: strings.TrimSpace(line[i+1:]),
		})
	}
	return result, scanner.Err()
}

// Stats summarizes the payload of a bag.
type Stats struct {
	Bytes int64
	Files int
}

// Oxum returns the Payload-Oxum value, "<bytes>.<file count>".
func (s Stats) Oxum() string {
	return strconv.FormatInt(s.Bytes, 10) + "." + strconv.Itoa(s.Files)
}

// PayloadStats walks the payload directory of the bag at root.
func PayloadStats(root string) (Stats, error) {
	var s Stats
	err := filepath.Walk(filepath.Join(root, PayloadDir), func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			s.Bytes += info.Size()
			s.Files++
		}
		return nil
	})
	return s, err
}

// BagInfo returns the tags describing the bag at root: the payload oxum and
// size, the bagging date and the software agent, followed by any extra
// tags given.
func BagInfo(root string, date time.Time, agent string, extra Tags) (Tags, error) {
	s, err := PayloadStats(root)
	if err != nil {
		return nil, err
	}
	var ts Tags
	ts.Add("Bag-Software-Agent", agent)
	ts.Add("Bagging-Date", date.Format("2006-01-02"))
	ts.Add("Bag-Size", humansize(s.Bytes))
	ts.Add("Payload-Oxum", s.Oxum())
	ts = append(ts, extra...)
	return ts, nil
}

// WriteTagManifests writes a tag manifest for each algorithm, listing every
// tag file at the top of the bag: the declaration, bag-info.txt, fetch.txt
// and the payload manifests. It should be called once the other tag files
// are complete.
func WriteTagManifests(root string, algs []Algorithm) error {
	names, err := tagFileNames(root)
	if err != nil {
		return err
	}
	var files []*File
	for _, name := range names {
		files = append(files, &File{Bagpath: name, Downloaded: true, Metadata: true})
	}
	r := NewReconciler(root)
	for _, a := range algs {
		fname := filepath.Join(root, a.TagManifestName())
		os.Remove(fname)
		text, _, err := r.Manifest(files, a)
		if err != nil {
			return err
		}
		err = appendFile(fname, text)
		if err != nil {
			return err
		}
	}
	return nil
}

// tagFileNames returns the sorted names of the regular files at the top of
// the bag, except tag manifests.
func tagFileNames(root string) ([]string, error) {
	entries, err := ioutil.ReadDir(root)
	if err != nil {
		return nil, err
	}
	var result []string
	for _, e := range entries {
		if !e.Mode().IsRegular() || strings.HasPrefix(e.Name(), "tagmanifest-") {
			continue
		}
		result = append(result, e.Name())
	}
	sort.Strings(result)
	return result, nil
}

func readFile(fname string) (string, error) {
	b, err := ioutil.ReadFile(fname)
	return string(b), err
}

// Metric constants for humansize.
const (
	kb int64 = 1000
	mb       = 1000 * kb
	gb       = 1000 * mb
	tb       = 1000 * gb
)

// humansize renders a byte count for the Bag-Size tag. The value is
// truncated, not rounded.
func humansize(size int64) string {
	var units string
	switch {
	case size < kb:
		units = "Bytes"
	case size < mb:
		size /= kb
		units = "KB"
	case size < gb:
		size /= mb
		units = "MB"
	case size < tb:
		size /= gb
		units = "GB"
	default:
		size /= tb
		units = "TB"
	}
	return fmt.Sprintf("%d %s", size, units)
}
