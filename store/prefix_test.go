package store

import (
	"testing"
)

func TestPrefixStore(t *testing.T) {
	var prefixlists = []struct {
		input  string
		result []string
	}{
		{"", []string{"sip::cds::1::10.json", "sip::cds::2::20.json"}},
		{"sip::cds::1", []string{"sip::cds::1::10.json"}},
		{"sip::zenodo", []string{}},
	}
	m := NewMemory()
	receipts := NewWithPrefix(m, "receipt-")

	add(t, receipts, "sip::cds::1::10.json", "{}")
	add(t, receipts, "sip::cds::2::20.json", "{}")
	add(t, m, "sip::cds::1::10.zip", "zip")

	for _, test := range prefixlists {
		ids, err := receipts.ListPrefix(test.input)
		if err != nil {
			t.Errorf("Received error %s", err.Error())
		}
		if !equal(ids, test.result) {
			t.Errorf("Received ids %v, expected %v", ids, test.result)
		}
	}

	ids, _ := m.ListPrefix("")
	expected := []string{
		"receipt-sip::cds::1::10.json",
		"receipt-sip::cds::2::20.json",
		"sip::cds::1::10.zip",
	}
	if !equal(ids, expected) {
		t.Errorf("Received ids %v, expected %v", ids, expected)
	}

	if err := receipts.Delete("sip::cds::2::20.json"); err != nil {
		t.Errorf("Received error %s", err.Error())
	}
	if _, _, err := m.Open("receipt-sip::cds::2::20.json"); err != ErrNotExist {
		t.Errorf("Received %v, expected %v", err, ErrNotExist)
	}
}

func add(t *testing.T, s Store, id string, data string) {
	t.Helper()
	w, err := s.Create(id)
	if err != nil {
		t.Fatalf("Couldn't make %s, %s", id, err.Error())
	}
	_, err = w.Write([]byte(data))
	if err != nil {
		t.Fatalf("Couldn't make %s, %s", id, err.Error())
	}
	err = w.Close()
	if err != nil {
		t.Fatalf("Couldn't make %s, %s", id, err.Error())
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
