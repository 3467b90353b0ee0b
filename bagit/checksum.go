package bagit

import (
	"encoding/hex"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// BlockSize is the size of the buffer used when hashing a file. Files are
// streamed through it so memory use does not depend on the file size.
const BlockSize = 4 << 20

var (
	// ErrUnreconcilable means a checksum was requested for a file which
	// has not been downloaded and whose source declared no digest for the
	// algorithm.
	ErrUnreconcilable = errors.New("no declared checksum and file not downloaded")
)

// A Reconciler produces the checksums for files inside a bag rooted at
// Root. Checksums declared by the source are trusted; anything else is
// computed from the bytes on disk and recorded on the File.
type Reconciler struct {
	// Root is the directory the bag lives in. Bagpaths are relative to it.
	Root string

	// Open is used to read files. It defaults to os.Open.
	Open func(name string) (io.ReadCloser, error)

	// BytesRead counts the bytes hashed by this reconciler.
	BytesRead int64
}

// NewReconciler returns a Reconciler for the bag at root.
func NewReconciler(root string) *Reconciler {
	return &Reconciler{Root: root}
}

// Reconcile returns the hex digest of f for the given algorithm.
//
// If f already has a checksum for the algorithm it is returned without
// touching the disk. Otherwise, if f has been downloaded, the file is hashed
// and the new checksum is appended to f.Checksums, so asking again costs
// nothing. A file that is neither downloaded nor has a declared checksum
// gives ErrUnreconcilable.
func (r *Reconciler) Reconcile(f *File, a Algorithm) (string, error) {
	if digest, ok := f.Checksums.Get(a); ok {
		return digest, nil
	}
	if !f.Downloaded {
		return "", errors.Wrapf(ErrUnreconcilable, "%s (%s)", f.Bagpath, a)
	}
	digest, err := r.compute(f.Bagpath, a)
	if err != nil {
		return "", err
	}
	f.Checksums.Add(a, digest)
	return digest, nil
}

// compute hashes the file at the given bagpath.
func (r *Reconciler) compute(bagpath string, a Algorithm) (string, error) {
	hw, err := a.newWriter()
	if err != nil {
		return "", errors.Wrap(err, string(a))
	}
	open := r.Open
	if open == nil {
		open = openFile
	}
	in, err := open(filepath.Join(r.Root, filepath.FromSlash(bagpath)))
	if err != nil {
		return "", errors.Wrap(err, "reconcile")
	}
	defer in.Close()
	buf := make([]byte, BlockSize)
	n, err := io.CopyBuffer(hw, onlyReader{in}, buf)
	r.BytesRead += n
	if err != nil {
		return "", errors.Wrapf(err, "hashing %s", bagpath)
	}
	return hex.EncodeToString(hw.Sum(string(a))), nil
}

func openFile(name string) (io.ReadCloser, error) {
	return os.Open(name)
}

// onlyReader hides any WriterTo method so io.CopyBuffer uses our buffer.
type onlyReader struct {
	io.Reader
}
