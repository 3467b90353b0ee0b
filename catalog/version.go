package catalog

import (
	"log"

	"github.com/BurntSushi/migration"
)

// versioning tells the migration package how to track the schema version
// in a MySQL database. The package's own tracking assumes PostgreSQL.
type versioning struct {
	get    string // returns one row with one column, the current version
	set    string // records a version, given as the one parameter
	create string // makes the version table
}

// Version returns the current schema version. A database without a version
// table is at version 0.
func (v versioning) Version(tx migration.LimitedTx) (int, error) {
	var version int
	err := tx.QueryRow(v.get).Scan(&version)
	if err != nil {
		log.Println("catalog: no schema version:", err)
		return 0, nil
	}
	return version, nil
}

// SetVersion records a new schema version, making the version table if
// needed.
func (v versioning) SetVersion(tx migration.LimitedTx, version int) error {
	_, err := tx.Exec(v.set, version)
	if err == nil {
		return nil
	}
	_, err = tx.Exec(v.create)
	if err != nil {
		return err
	}
	_, err = tx.Exec(v.set, version)
	return err
}

// execlist runs each statement in turn, stopping at the first error. The
// mysql driver does not take more than one statement in an Exec.
func execlist(tx migration.LimitedTx, stmts []string) error {
	for _, s := range stmts {
		if _, err := tx.Exec(s); err != nil {
			return err
		}
	}
	return nil
}
