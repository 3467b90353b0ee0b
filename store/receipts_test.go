package store

import (
	"testing"
)

func TestReceipts(t *testing.T) {
	type receipt struct {
		Name string
		Size int64
	}
	m := NewMemory()
	rs := NewReceipts(m, "receipt-")
	err := rs.Put("sip::cds::1::10", receipt{Name: "sip::cds::1::10", Size: 5})
	if err != nil {
		t.Fatal(err)
	}
	// receipts are written once
	err = rs.Put("sip::cds::1::10", receipt{Name: "sip::cds::1::10", Size: 6})
	if err != ErrKeyExists {
		t.Errorf("Received %v, expected %v", err, ErrKeyExists)
	}
	var r receipt
	err = rs.Get("sip::cds::1::10", &r)
	if err != nil {
		t.Fatal(err)
	}
	if r.Size != 5 {
		t.Errorf("Received %d, expected %d", r.Size, 5)
	}
	keys, _ := m.ListPrefix("")
	if len(keys) != 1 || keys[0] != "receipt-sip::cds::1::10" {
		t.Errorf("Received %v", keys)
	}
	if err = rs.Get("missing", &r); err != ErrNotExist {
		t.Errorf("Received %v, expected %v", err, ErrNotExist)
	}

	// a value which cannot be encoded leaves nothing behind
	err = rs.Put("bad", map[string]interface{}{"c": make(chan int)})
	if err == nil {
		t.Errorf("Expected an error")
	}
	if err = rs.Get("bad", &r); err != ErrNotExist {
		t.Errorf("Received %v, expected %v", err, ErrNotExist)
	}
}
