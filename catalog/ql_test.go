package catalog

import (
	"path/filepath"
	"testing"
	"time"
)

func TestQLCatalog(t *testing.T) {
	c, err := Open("memory")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	defer c.Close()
	testCatalog(t, c)
}

func TestQLFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "catalog.ql")
	c, err := NewQL(fname)
	if err != nil {
		t.Fatal(err)
	}
	c.Add(&Run{RunID: "a", Source: "cds", RecID: "1"})
	c.Close()

	c, err = NewQL(fname)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	r, err := c.Lookup("a")
	if err != nil || r.Source != "cds" {
		t.Errorf("Received %v, %v", r, err)
	}
}

func TestQLSeparateMemory(t *testing.T) {
	c1, _ := NewQL("memory")
	c2, _ := NewQL("memory")
	c1.Add(&Run{RunID: "a"})
	if _, err := c2.Lookup("a"); err != ErrNotFound {
		t.Errorf("Received %v, expected %v", err, ErrNotFound)
	}
}

// testCatalog runs the tests every implementation should pass.
func testCatalog(t *testing.T, c Catalog) {
	start := time.Date(2020, 9, 13, 12, 0, 0, 0, time.UTC)
	var table = []Run{
		{RunID: "r1", Source: "cds", RecID: "2751237", Name: "sip::cds::2751237::1", Dry: true, Created: start},
		{RunID: "r2", Source: "cds", RecID: "2751237", Name: "sip::cds::2751237::2", Status: 1, Error: "boom", Created: start.Add(time.Minute)},
		{RunID: "r3", Source: "zenodo", RecID: "3974864", Name: "sip::zenodo::3974864::3", Valid: true, Compliant: true, Files: 4, Bytes: 1234, Created: start.Add(2 * time.Minute)},
	}
	for i := range table {
		err := c.Add(&table[i])
		if err != nil {
			t.Fatalf("Received %s", err.Error())
		}
	}
	if table[0].ID == table[1].ID {
		t.Errorf("Received the same ID twice: %d", table[0].ID)
	}

	r, err := c.Lookup("r3")
	if err != nil {
		t.Fatalf("Received %s", err.Error())
	}
	if r.Name != "sip::zenodo::3974864::3" || !r.Valid || !r.Compliant || r.Files != 4 || r.Bytes != 1234 {
		t.Errorf("Received %+v", r)
	}
	if !r.Created.Equal(table[2].Created) {
		t.Errorf("Received %v, expected %v", r.Created, table[2].Created)
	}
	if _, err = c.Lookup("nothing"); err != ErrNotFound {
		t.Errorf("Received %v, expected %v", err, ErrNotFound)
	}

	runs, err := c.ForRecord("cds", "2751237")
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "r2" || runs[0].Error != "boom" || runs[1].RunID != "r1" {
		t.Errorf("Received %v", runs)
	}

	seen, err := Seen(c, "cds", "2751237")
	if err != nil || seen {
		t.Errorf("Received %v, %v, expected false", seen, err)
	}
	seen, _ = Seen(c, "zenodo", "3974864")
	if !seen {
		t.Errorf("Received false, expected true")
	}

	runs, err = c.Recent(2)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 2 || runs[0].RunID != "r3" || runs[1].RunID != "r2" {
		t.Errorf("Received %v", runs)
	}
}

func TestOpen(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Errorf("Received nil error for an empty dial")
	}
}
