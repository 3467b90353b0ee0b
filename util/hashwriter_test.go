package util

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"
)

func TestHashWriter(t *testing.T) {
	const input = "hello1 hello2 hello3 hello4 hello5abcdefghijklmnopqrstuvwxyz0123456789"
	goalMD5, _ := hex.DecodeString("0101fc798d94a730b0f0bf1bd2cc1959")
	goalSHA256, _ := hex.DecodeString("fef15edd82b33633582c723562d192fec2d2003df12d4aeac89df17c279a1658")
	var w = new(bytes.Buffer)
	hw, err := NewHashWriter(w, "md5", "sha256")
	if err != nil {
		t.Fatal(err)
	}
	dohashtest(t, hw, input, goalMD5, goalSHA256)
	if w.String() != input {
		t.Errorf("Received %q, expected %q", w.String(), input)
	}
	w.Reset()
	hw2, err := NewHashWriter(w, "md5")
	if err != nil {
		t.Fatal(err)
	}
	dohashtest(t, hw2, input, goalMD5, nil)
}

func dohashtest(t *testing.T, hw *HashWriter, input string, goalmd5, goalsha256 []byte) {
	hw.Write([]byte(input))
	h, ok := hw.Check("md5", goalmd5)
	if !ok {
		t.Fatalf("Got %v, expected %v\n", h, goalmd5)
	}
	h, ok = hw.Check("sha256", goalsha256)
	if !ok {
		t.Fatalf("Got %v, expected %v\n", h, goalsha256)
	}
	if hw.Size() != int64(len(input)) {
		t.Errorf("Received size %d, expected %d", hw.Size(), len(input))
	}
}

func TestHashAlgorithms(t *testing.T) {
	var table = []struct {
		name   string
		output string
	}{
		{"md5", "5d41402abc4b2a76b9719d911017c592"},
		{"MD5", "5d41402abc4b2a76b9719d911017c592"},
		{"sha1", "aaf4c61ddcc5e8a2dabede0f3b482cd9aea9434d"},
		{"sha256", "2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"},
		{"sha512", "9b71d224bd62f3785d96d46ad3ea3d73319bfbc2890caadae2dff72519673ca72323c3d99ba5c11d7c7acc6e14b8c5da0c4663475c2e5c3adef46f73bcdec043"},
		{"adler32", "062c0215"},
	}
	for _, tab := range table {
		hw, err := NewHashWriterPlain(tab.name)
		if err != nil {
			t.Fatal(err)
		}
		hw.Write([]byte("hello"))
		out := hex.EncodeToString(hw.Sum(tab.name))
		if out != tab.output {
			t.Errorf("%s: Received %s, expected %s", tab.name, out, tab.output)
		}
	}
}

func TestUnknownHash(t *testing.T) {
	_, err := NewHashWriterPlain("md5", "crc64")
	if err != ErrUnknownHash {
		t.Errorf("Received %v, expected %v", err, ErrUnknownHash)
	}
}

func TestVerifyStreamHash(t *testing.T) {
	md5hello, _ := hex.DecodeString("5d41402abc4b2a76b9719d911017c592")
	adler, _ := hex.DecodeString("062c0215")
	var table = []struct {
		input string
		goals map[string][]byte
		ok    bool
	}{
		{"hello", nil, true},
		{"hello", map[string][]byte{"md5": md5hello}, true},
		{"hello", map[string][]byte{"md5": md5hello, "adler32": adler}, true},
		{"hellO", map[string][]byte{"md5": md5hello}, false},
		{"hellO", map[string][]byte{"adler32": adler}, false},
	}
	for _, tab := range table {
		ok, err := VerifyStreamHash(strings.NewReader(tab.input), tab.goals)
		if err != nil {
			t.Fatal(err)
		}
		if ok != tab.ok {
			t.Errorf("%q %v: Received %v, expected %v", tab.input, tab.goals, ok, tab.ok)
		}
	}
}
