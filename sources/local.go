package sources

import (
	"net/url"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
)

// localDir packages a directory on the local file system. The record id is
// the path of the directory. Files keep their place in the directory tree.
type localDir struct {
	base
}

func (s *localDir) Get(recid string) (*Record, error) {
	if recid == "" {
		return nil, errors.Wrap(ErrNotFound, "no path given")
	}
	root, err := filepath.Abs(recid)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil, errors.Wrap(ErrNotFound, recid)
	} else if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, errors.Errorf("%s is not a directory", recid)
	}
	var files []*bagit.File
	err = filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
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
		f := &bagit.File{Size: info.Size()}
		f.Origin.Filename = info.Name()
		if dir := filepath.Dir(rel); dir != "." {
			f.Origin.Path = filepath.ToSlash(dir) + "/"
		}
		f.Origin.URLs = bagit.URLList{fileURL(p)}
		files = append(files, f)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &Record{
		Source: s.name,
		RecID:  recid,
		URL:    fileURL(root),
		Files:  files,
	}, nil
}

func fileURL(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}
