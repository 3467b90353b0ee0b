// Package catalog keeps a record of every packaging run: which record was
// packaged, when, under what name, and how it turned out. It is used to warn
// when a record has been packaged before and to report on runs.
//
// There are two implementations. One uses the QL embedded database and is
// meant for a single machine and for testing. The other uses MySQL.
package catalog

import (
	"strings"
	"time"

	"github.com/pkg/errors"
)

// A Run is one attempt at packaging a record.
type Run struct {
	ID        int64     `json:"-"`
	RunID     string    `json:"run_id"`
	Source    string    `json:"source"`
	RecID     string    `json:"recid"`
	Name      string    `json:"name"`
	Dry       bool      `json:"dry_run"`
	Status    int       `json:"status"`
	Valid     bool      `json:"valid"`
	Compliant bool      `json:"compliant"`
	Error     string    `json:"errormsg,omitempty"`
	Path      string    `json:"path,omitempty"`
	Files     int       `json:"files"`
	Bytes     int64     `json:"bytes"`
	Created   time.Time `json:"created"`
}

// A Catalog stores runs.
type Catalog interface {
	// Add saves a new run and sets its ID.
	Add(r *Run) error

	// Lookup returns the run with the given run id, or ErrNotFound.
	Lookup(runID string) (*Run, error)

	// ForRecord returns the runs for a record, newest first.
	ForRecord(source, recid string) ([]*Run, error)

	// Recent returns up to limit runs, newest first.
	Recent(limit int) ([]*Run, error)

	Close() error
}

// ErrNotFound means there is no run with the given id.
var ErrNotFound = errors.New("run not found")

// Open returns the catalog described by dial. Dials beginning with "mysql:"
// connect to a MySQL server, e.g. "mysql:user:password@tcp(localhost:3306)/bagcreate".
// Anything else is the path of a QL database file, or "memory" to keep
// everything in memory.
func Open(dial string) (Catalog, error) {
	if strings.HasPrefix(dial, "mysql:") {
		return NewMySQL(strings.TrimPrefix(dial, "mysql:"))
	}
	if dial == "" {
		return nil, errors.New("no catalog database given")
	}
	return NewQL(dial)
}

// Seen reports whether a record already has a successful, non-dry run.
func Seen(c Catalog, source, recid string) (bool, error) {
	runs, err := c.ForRecord(source, recid)
	if err != nil {
		return false, err
	}
	for _, r := range runs {
		if r.Status == 0 && !r.Dry {
			return true, nil
		}
	}
	return false, nil
}
