package store

import (
	"encoding/json"
)

// Receipts keeps a small JSON document for each package delivered to a
// store, under the key "<prefix><name>". A receipt is written once, like the
// package it describes, so a second Put for a name fails with ErrKeyExists.
type Receipts struct {
	s Store
}

// NewReceipts returns the receipts kept in s under the given key prefix.
func NewReceipts(s Store, prefix string) Receipts {
	return Receipts{s: NewWithPrefix(s, prefix)}
}

// Put saves the receipt for name. The value is encoded before anything is
// written, so a value which cannot be encoded leaves no receipt behind.
func (rs Receipts) Put(name string, receipt interface{}) error {
	b, err := json.MarshalIndent(receipt, "", "  ")
	if err != nil {
		return err
	}
	w, err := rs.s.Create(name)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	err2 := w.Close()
	if err == nil {
		err = err2
	}
	if err != nil {
		rs.s.Delete(name)
	}
	return err
}

// Get reads the receipt for name into receipt. It returns ErrNotExist if
// there is none.
func (rs Receipts) Get(name string, receipt interface{}) error {
	r, _, err := rs.s.Open(name)
	if err != nil {
		return err
	}
	defer r.Close()
	return json.NewDecoder(NewReader(r)).Decode(receipt)
}
