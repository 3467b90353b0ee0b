package bagit

import (
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ndlib/bagcreate/util"
)

// BagError lists the problems found when verifying a bag. It is kept apart
// from other errors, which mean the verification itself could not be done.
type BagError struct {
	Problems []string
}

func (e *BagError) Error() string {
	if len(e.Problems) == 1 {
		return "bag is invalid: " + e.Problems[0]
	}
	return fmt.Sprintf("bag is invalid: %d problems, first: %s", len(e.Problems), e.Problems[0])
}

// Verify checks the bag at root. It re-reads every payload manifest and tag
// manifest and recomputes each digest, checks that every payload file is
// listed in every payload manifest (or in the fetch file), and compares the
// Payload-Oxum in bag-info.txt against the payload on disk.
//
// A *BagError is returned if the bag has problems. Any other error means the
// bag could not be read.
func Verify(root string) error {
	v := &verifier{root: root, goals: make(map[string]map[string][]byte)}
	return v.run()
}

// Validate verifies the bag at root and logs every problem found. It
// returns true if the bag is valid. It never fails; errors reading the bag
// are logged and reported as an invalid bag.
func Validate(root string, logger *log.Logger) bool {
	err := Verify(root)
	if err == nil {
		return true
	}
	if logger == nil {
		return false
	}
	if be, ok := err.(*BagError); ok {
		for _, p := range be.Problems {
			logger.Println("Validation warning:", p)
		}
	} else {
		logger.Println("Validation warning:", err)
	}
	return false
}

type verifier struct {
	root     string
	problems []string

	// goals holds, for each path, the digests each manifest expects
	goals map[string]map[string][]byte
}

func (v *verifier) problem(format string, args ...interface{}) {
	v.problems = append(v.problems, fmt.Sprintf(format, args...))
}

func (v *verifier) run() error {
	if _, err := os.Stat(v.root); err != nil {
		return err
	}
	if err := v.declaration(); err != nil {
		return err
	}
	fetched, err := v.fetched()
	if err != nil {
		return err
	}
	manifests, err := v.manifests("manifest-")
	if err != nil {
		return err
	}
	tagmanifests, err := v.manifests("tagmanifest-")
	if err != nil {
		return err
	}
	if len(manifests) == 0 && len(fetched) == 0 {
		v.problem("no payload manifest")
	}
	for _, entries := range manifests {
		for _, e := range entries {
			if !strings.HasPrefix(e.Path, PayloadDir+"/") {
				v.problem("%s listed in payload manifest is outside %s/", e.Path, PayloadDir)
			}
		}
	}
	for _, entries := range tagmanifests {
		for _, e := range entries {
			if strings.HasPrefix(e.Path, PayloadDir+"/") {
				v.problem("%s listed in tag manifest is payload", e.Path)
			}
		}
	}
	if err := v.completeness(manifests, fetched); err != nil {
		return err
	}
	v.checksums(fetched)
	if len(fetched) == 0 {
		if err := v.oxum(); err != nil {
			return err
		}
	}
	if len(v.problems) > 0 {
		return &BagError{Problems: v.problems}
	}
	return nil
}

func (v *verifier) declaration() error {
	ts, err := ReadTags(filepath.Join(v.root, DeclarationFile))
	if os.IsNotExist(err) {
		v.problem("missing %s", DeclarationFile)
		return nil
	} else if err != nil {
		v.problem("%s: %s", DeclarationFile, err)
		return nil
	}
	if _, ok := ts.Get("BagIt-Version"); !ok {
		v.problem("%s has no BagIt-Version", DeclarationFile)
	}
	if enc, ok := ts.Get("Tag-File-Character-Encoding"); !ok || !strings.EqualFold(enc, Encoding) {
		v.problem("%s has encoding %q, expected %s", DeclarationFile, enc, Encoding)
	}
	return nil
}

// fetched returns the set of paths listed in the fetch file.
func (v *verifier) fetched() (map[string]bool, error) {
	entries, err := ReadFetch(v.root)
	if os.IsNotExist(err) {
		return nil, nil
	} else if err != nil {
		v.problem("%s: %s", FetchFile, err)
		return nil, nil
	}
	result := make(map[string]bool)
	for _, e := range entries {
		result[e.Path] = true
	}
	return result, nil
}

// manifests reads every manifest having the given prefix, keyed by
// algorithm, and records the digests they expect.
func (v *verifier) manifests(prefix string) (map[Algorithm][]ManifestEntry, error) {
	names, err := filepath.Glob(filepath.Join(v.root, prefix+"*.txt"))
	if err != nil {
		return nil, err
	}
	result := make(map[Algorithm][]ManifestEntry)
	for _, fname := range names {
		base := filepath.Base(fname)
		name := strings.TrimSuffix(strings.TrimPrefix(base, prefix), ".txt")
		a, err := ParseAlgorithm(name)
		if err != nil {
			v.problem("%s: unknown algorithm %q", base, name)
			continue
		}
		entries, err := ReadManifest(fname)
		if err != nil {
			v.problem("%s: %s", base, err)
			continue
		}
		result[a] = entries
		for _, e := range entries {
			if !validPath(e.Path) {
				v.problem("%s: bad path %q", base, e.Path)
				continue
			}
			goal, err := hex.DecodeString(e.Digest)
			if err != nil {
				v.problem("%s: malformed digest for %s", base, e.Path)
				continue
			}
			g := v.goals[e.Path]
			if g == nil {
				g = make(map[string][]byte)
				v.goals[e.Path] = g
			}
			g[string(a)] = goal
		}
	}
	return result, nil
}

// validPath is true for relative slash separated paths staying inside the
// bag.
func validPath(p string) bool {
	if p == "" || path.IsAbs(p) || strings.Contains(p, "\\") {
		return false
	}
	c := path.Clean(p)
	return c == p && c != ".." && !strings.HasPrefix(c, "../")
}

// completeness checks every payload file is in every payload manifest.
func (v *verifier) completeness(manifests map[Algorithm][]ManifestEntry, fetched map[string]bool) error {
	listed := make(map[Algorithm]map[string]bool)
	for a, entries := range manifests {
		m := make(map[string]bool)
		for _, e := range entries {
			m[e.Path] = true
		}
		listed[a] = m
	}
	var algs []string
	for a := range manifests {
		algs = append(algs, string(a))
	}
	sort.Strings(algs)
	payload := filepath.Join(v.root, PayloadDir)
	return filepath.Walk(payload, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == payload {
				v.problem("missing %s directory", PayloadDir)
				return nil
			}
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(v.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if fetched[rel] {
			return nil
		}
		for _, a := range algs {
			if !listed[Algorithm(a)][rel] {
				v.problem("%s is not in %s", rel, Algorithm(a).ManifestName())
			}
		}
		return nil
	})
}

// checksums recomputes the digest of every file listed in a manifest.
// Each file is read once no matter how many manifests list it.
func (v *verifier) checksums(fetched map[string]bool) {
	var paths []string
	for p := range v.goals {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		f, err := os.Open(filepath.Join(v.root, filepath.FromSlash(p)))
		if os.IsNotExist(err) {
			if !fetched[p] {
				v.problem("%s is missing", p)
			}
			continue
		} else if err != nil {
			v.problem("%s: %s", p, err)
			continue
		}
		ok, err := util.VerifyStreamHash(f, v.goals[p])
		f.Close()
		if err != nil {
			v.problem("%s: %s", p, err)
		} else if !ok {
			v.problem("%s has a checksum mismatch", p)
		}
	}
}

func (v *verifier) oxum() error {
	ts, err := ReadTags(filepath.Join(v.root, BagInfoFile))
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		v.problem("%s: %s", BagInfoFile, err)
		return nil
	}
	oxum, ok := ts.Get("Payload-Oxum")
	if !ok {
		return nil
	}
	s, err := PayloadStats(v.root)
	if err != nil {
		return err
	}
	if oxum != s.Oxum() {
		v.problem("Payload-Oxum is %s, payload is %s", oxum, s.Oxum())
	}
	return nil
}
