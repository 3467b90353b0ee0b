// Package bagit implements the parts of the BagIt specification needed to
// assemble submission packages on the local file system: the bag
// declaration, bag-info.txt, payload and tag manifests, fetch files, and
// verification of a finished bag.
//
// The unit of work is the File, a descriptor for one payload or sidecar
// item. Files are given unique paths inside the bag by a Resolver, and
// their checksums are reconciled by a Reconciler: a checksum declared by
// the upstream source is reused as is, otherwise it is computed from the
// bytes on disk and recorded on the File. Manifests are only ever appended
// to, so files produced after the first manifest pass (such as the package
// metadata itself) can be added without rewriting earlier entries.
//
// Nothing in this package is goroutine safe. A bag is assembled by a single
// goroutine from start to finish so the manifest order always matches the
// order in which the files were enumerated.
//
// The BagIt spec can be found at https://tools.ietf.org/html/rfc8493.
package bagit

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/util"
)

const (
	// Version is the version of the BagIt specification this package writes.
	Version = "0.97"

	// Encoding is the character encoding of every tag file we write.
	Encoding = "UTF-8"

	// PayloadDir is the directory holding the payload of a bag.
	PayloadDir = "data"

	// ContentDir holds the harvested files and the upstream metadata record.
	ContentDir = "data/content"

	// MetaDir holds the files produced while assembling the package.
	MetaDir = "data/meta"
)

// Names of the tag files at the top of a bag.
const (
	DeclarationFile = "bagit.txt"
	BagInfoFile     = "bag-info.txt"
	FetchFile       = "fetch.txt"
)

// An Algorithm names a checksum algorithm. It is always lower case.
type Algorithm string

// The algorithms we know how to compute.
const (
	MD5     Algorithm = "md5"
	SHA1    Algorithm = "sha1"
	SHA256  Algorithm = "sha256"
	SHA512  Algorithm = "sha512"
	Adler32 Algorithm = "adler32"
)

var (
	// ErrUnknownAlgorithm means an algorithm name is not one we support.
	ErrUnknownAlgorithm = errors.New("unknown checksum algorithm")
)

// ParseAlgorithm returns the Algorithm having the given name. Names are
// case-insensitive.
func ParseAlgorithm(name string) (Algorithm, error) {
	a := Algorithm(strings.ToLower(strings.TrimSpace(name)))
	switch a {
	case MD5, SHA1, SHA256, SHA512, Adler32:
		return a, nil
	}
	return "", ErrUnknownAlgorithm
}

// ParseAlgorithms parses a comma separated list of algorithm names. Repeats
// are dropped and the order is kept.
func ParseAlgorithms(list string) ([]Algorithm, error) {
	var result []Algorithm
	seen := make(map[Algorithm]bool)
	for _, name := range strings.Split(list, ",") {
		if strings.TrimSpace(name) == "" {
			continue
		}
		a, err := ParseAlgorithm(name)
		if err != nil {
			return nil, err
		}
		if seen[a] {
			continue
		}
		seen[a] = true
		result = append(result, a)
	}
	return result, nil
}

// Standard is true if the BagIt specification allows this algorithm in a
// manifest. Adler32 is only used by upstream sources which provide nothing
// else, and a bag using it will not validate with other BagIt tools.
func (a Algorithm) Standard() bool {
	switch a {
	case MD5, SHA1, SHA256, SHA512:
		return true
	}
	return false
}

// ManifestName is the name of the payload manifest for this algorithm.
func (a Algorithm) ManifestName() string {
	return "manifest-" + string(a) + ".txt"
}

// TagManifestName is the name of the tag manifest for this algorithm.
func (a Algorithm) TagManifestName() string {
	return "tagmanifest-" + string(a) + ".txt"
}

func (a Algorithm) newWriter() (*util.HashWriter, error) {
	return util.NewHashWriterPlain(string(a))
}
