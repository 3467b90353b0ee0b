package bagit

import (
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/pkg/errors"
)

// writeFile creates the file at root/bagpath, making directories as needed.
func writeFile(t *testing.T, root, bagpath, content string) {
	t.Helper()
	fname := filepath.Join(root, filepath.FromSlash(bagpath))
	err := os.MkdirAll(filepath.Dir(fname), 0775)
	if err != nil {
		t.Fatal(err)
	}
	err = ioutil.WriteFile(fname, []byte(content), 0664)
	if err != nil {
		t.Fatal(err)
	}
}

// countingOpen wraps os.Open and counts the number of files opened.
func countingOpen(n *int) func(string) (io.ReadCloser, error) {
	return func(name string) (io.ReadCloser, error) {
		*n++
		return os.Open(name)
	}
}

func TestReconcileDeclared(t *testing.T) {
	var opens int
	r := NewReconciler(t.TempDir())
	r.Open = countingOpen(&opens)
	f := &File{Bagpath: "data/content/x"}
	f.Checksums.AddString("md5:DEADBEEF")

	digest, err := r.Reconcile(f, MD5)
	if err != nil {
		t.Fatal(err)
	}
	if digest != "deadbeef" {
		t.Errorf("Received %s, expected %s", digest, "deadbeef")
	}
	if opens != 0 || r.BytesRead != 0 {
		t.Errorf("Received %d opens and %d bytes read, expected none", opens, r.BytesRead)
	}
	if len(f.Checksums) != 1 {
		t.Errorf("Received %d checksums, expected 1", len(f.Checksums))
	}
}

func TestReconcileComputed(t *testing.T) {
	var table = []struct {
		alg    Algorithm
		digest string
	}{
		{MD5, "5d41402abc4b2a76b9719d911017c592"},
		{SHA1, "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{SHA256, "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{Adler32, "062c0215"},
	}

	root := t.TempDir()
	writeFile(t, root, "data/content/hello.txt", "hello")
	var opens int
	r := NewReconciler(root)
	r.Open = countingOpen(&opens)
	f := &File{Bagpath: "data/content/hello.txt", Downloaded: true}

	for i, test := range table {
		digest, err := r.Reconcile(f, test.alg)
		if err != nil {
			t.Fatal(err)
		}
		if digest != test.digest {
			t.Errorf("Received %s, expected %s", digest, test.digest)
		}
		if len(f.Checksums) != i+1 {
			t.Errorf("Received %d checksums, expected %d", len(f.Checksums), i+1)
		}
	}
	if r.BytesRead != int64(5*len(table)) {
		t.Errorf("Received %d bytes read, expected %d", r.BytesRead, 5*len(table))
	}

	// asking again uses the recorded checksums
	opens = 0
	for _, test := range table {
		digest, _ := r.Reconcile(f, test.alg)
		if digest != test.digest {
			t.Errorf("Received %s, expected %s", digest, test.digest)
		}
	}
	if opens != 0 {
		t.Errorf("Received %d opens, expected 0", opens)
	}
}

func TestReconcileUnreconcilable(t *testing.T) {
	r := NewReconciler(t.TempDir())
	f := &File{Bagpath: "data/content/remote.bin"}
	f.Checksums.AddString("adler32:062c0215")

	_, err := r.Reconcile(f, MD5)
	if errors.Cause(err) != ErrUnreconcilable {
		t.Errorf("Received %v, expected %v", err, ErrUnreconcilable)
	}
	if len(f.Checksums) != 1 {
		t.Errorf("Received %d checksums, expected 1", len(f.Checksums))
	}
}

func TestReconcileMissingFile(t *testing.T) {
	r := NewReconciler(t.TempDir())
	f := &File{Bagpath: "data/content/gone", Downloaded: true}
	_, err := r.Reconcile(f, MD5)
	if err == nil {
		t.Errorf("Received nil error for a missing file")
	}
	if errors.Cause(err) == ErrUnreconcilable {
		t.Errorf("Received %v, expected an I/O error", err)
	}
}

func TestReconcileIdempotent(t *testing.T) {
	root := t.TempDir()
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("second reconcile reads nothing", prop.ForAll(
		func(content string) bool {
			writeFile(t, root, "data/content/f", content)
			r := NewReconciler(root)
			f := &File{Bagpath: "data/content/f", Downloaded: true}
			first, err := r.Reconcile(f, SHA1)
			if err != nil {
				return false
			}
			n := r.BytesRead
			second, err := r.Reconcile(f, SHA1)
			return err == nil && first == second && r.BytesRead == n && n == int64(len(content))
		},
		gen.AlphaString(),
	))

	properties.TestingRun(t)
}
