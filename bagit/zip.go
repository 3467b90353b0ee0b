package bagit

import (
	"archive/zip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// WriteZip serializes the bag directory at root into a zip file written to w.
// Every entry is put under the directory name, as BagIt requires of
// serialized bags. Entries are stored uncompressed so the files inside can
// be read back without inflating them. The size of the zip file is
// returned. It does not close w.
func WriteZip(w io.Writer, root, name string) (int64, error) {
	cw := &countWriter{w: w}
	z := zip.NewWriter(cw)
	prefix := strings.TrimSuffix(name, "/") + "/"
	err := filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		header := zip.FileHeader{
			Name:   prefix + filepath.ToSlash(rel),
			Method: zip.Store,
		}
		header.Modified = info.ModTime().UTC().Truncate(time.Second)
		out, err := z.CreateHeader(&header)
		if err != nil {
			return err
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(out, in)
		in.Close()
		return err
	})
	if err == nil {
		err = z.Close()
	}
	return cw.count, err
}

// ZipEntry describes one file inside a serialized bag.
type ZipEntry struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// ListZip returns the entries of a serialized bag.
func ListZip(r io.ReaderAt, size int64) ([]ZipEntry, error) {
	z, err := zip.NewReader(r, size)
	if err != nil {
		return nil, err
	}
	var result []ZipEntry
	for _, f := range z.File {
		result = append(result, ZipEntry{Name: f.Name, Size: int64(f.UncompressedSize64)})
	}
	return result, nil
}

// countWriter is an io.Writer that counts the number of bytes written to it.
type countWriter struct {
	w     io.Writer
	count int64
}

func (w *countWriter) Write(p []byte) (int, error) {
	n, err := w.w.Write(p)
	w.count += int64(n)
	return n, err
}
