package sip

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/facebookgo/clock"
	"github.com/pkg/errors"

	"github.com/ndlib/bagcreate/bagit"
	"github.com/ndlib/bagcreate/store"
)

// A Deliverer moves finished packages to their final place. Packages go
// either into the directory Target, or, when Store is set, into Store as
// zip files. Each zip file is accompanied by a receipt, kept in the same
// store under the key "receipt-<name>".
type Deliverer struct {
	Target string
	Store  store.Store
	Logger *log.Logger
	Clock  clock.Clock
}

// A Receipt describes a package delivered to a store.
type Receipt struct {
	Name      string           `json:"name"`
	Key       string           `json:"key"`
	Size      int64            `json:"size"`
	RunID     string           `json:"run_id"`
	Valid     bool             `json:"valid"`
	Compliant bool             `json:"compliant"`
	Delivered time.Time        `json:"delivered"`
	Files     []bagit.ZipEntry `json:"files"`
}

// ReceiptPrefix is put in front of package names to get receipt keys.
const ReceiptPrefix = "receipt-"

// Deliver moves the package in res and updates res.Path to its new place.
// Failed packages are not delivered.
func (d *Deliverer) Deliver(res *Result) error {
	if res.Status != 0 || res.Path == "" {
		return errors.New("nothing to deliver")
	}
	var err error
	var dest string
	if d.Store != nil {
		dest, err = d.toStore(res)
	} else {
		dest, err = d.toDir(res.Path, res.Name)
	}
	if err != nil {
		return errors.Wrapf(err, "delivering %s", res.Name)
	}
	if d.Logger != nil {
		d.Logger.Printf("Delivered %s to %s", res.Name, dest)
	}
	res.Path = dest
	return nil
}

func (d *Deliverer) toDir(src, name string) (string, error) {
	if d.Target == "" {
		return src, nil
	}
	err := os.MkdirAll(d.Target, 0775)
	if err != nil {
		return "", err
	}
	dest := filepath.Join(d.Target, name)
	if _, err := os.Stat(dest); err == nil {
		return "", errors.Wrap(ErrExists, dest)
	}
	err = os.Rename(src, dest)
	if err == nil {
		return dest, nil
	}
	// probably on different devices
	err = copyTree(dest, src)
	if err != nil {
		os.RemoveAll(dest)
		return "", err
	}
	return dest, os.RemoveAll(src)
}

func (d *Deliverer) toStore(res *Result) (string, error) {
	key := res.Name + ".zip"
	if err := store.ValidKey(key); err != nil {
		return "", err
	}
	if r, _, err := d.Store.Open(key); err == nil {
		r.Close()
		return "", errors.Wrap(ErrExists, key)
	}
	w, err := d.Store.Create(key)
	if err != nil {
		return "", err
	}
	n, err := bagit.WriteZip(w, res.Path, res.Name)
	err2 := w.Close()
	if err == nil {
		err = err2
	}
	if err != nil {
		d.Store.Delete(key)
		return "", err
	}
	entries, err := d.list(key)
	if err != nil {
		return "", err
	}
	now := time.Now()
	if d.Clock != nil {
		now = d.Clock.Now()
	}
	err = store.NewReceipts(d.Store, ReceiptPrefix).Put(res.Name, Receipt{
		Name:      res.Name,
		Key:       key,
		Size:      n,
		RunID:     res.RunID,
		Valid:     res.Valid,
		Compliant: res.Compliant,
		Delivered: now.UTC(),
		Files:     entries,
	})
	if err != nil {
		return "", err
	}
	return key, os.RemoveAll(res.Path)
}

// list reads back the zip file just stored.
func (d *Deliverer) list(key string) ([]bagit.ZipEntry, error) {
	r, size, err := d.Store.Open(key)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return bagit.ListZip(r, size)
}

// OpenReceipt returns the receipt for the given package name.
func (d *Deliverer) OpenReceipt(name string) (*Receipt, error) {
	if d.Store == nil {
		return nil, store.ErrNotExist
	}
	rc := new(Receipt)
	err := store.NewReceipts(d.Store, ReceiptPrefix).Get(name, rc)
	if err != nil {
		return nil, err
	}
	return rc, nil
}

// copyTree copies the directory src to dest, which should not exist.
func copyTree(dest, src string) error {
	return filepath.Walk(src, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0775)
		}
		return copyFile(target, p)
	})
}

func copyFile(dest, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0664)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	err2 := out.Close()
	if err == nil {
		err = err2
	}
	return err
}
