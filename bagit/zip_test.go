package bagit

import (
	"bytes"
	"sort"
	"testing"
)

func TestWriteZip(t *testing.T) {
	root := makeBag(t)
	var buf bytes.Buffer
	n, err := WriteZip(&buf, root, "sip::local::1::0")
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("Received %d, expected %d", n, buf.Len())
	}

	entries, err := ListZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
		if e.Name == "sip::local::1::0/data/content/hello.txt" && e.Size != 5 {
			t.Errorf("Received size %d, expected 5", e.Size)
		}
	}
	sort.Strings(names)
	expected := []string{
		"sip::local::1::0/bag-info.txt",
		"sip::local::1::0/bagit.txt",
		"sip::local::1::0/data/content/hello.txt",
		"sip::local::1::0/data/content/sub/there.txt",
		"sip::local::1::0/manifest-md5.txt",
		"sip::local::1::0/manifest-sha256.txt",
		"sip::local::1::0/tagmanifest-md5.txt",
	}
	if len(names) != len(expected) {
		t.Fatalf("Received %v, expected %v", names, expected)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Received %s, expected %s", names[i], expected[i])
		}
	}
}
