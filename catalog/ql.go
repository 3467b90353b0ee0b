package catalog

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/cznic/ql/driver" // registers the ql and ql-mem drivers
	"github.com/google/uuid"
)

// This file implements the catalog using the QL embedded database. Every
// write in QL has to be inside a transaction.

type qlCatalog struct {
	db *sql.DB
}

var _ Catalog = &qlCatalog{}

const qlInit = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id string,
		source string,
		recid string,
		name string,
		dry bool,
		status int,
		valid bool,
		compliant bool,
		errormsg string,
		path string,
		files int,
		bytes int,
		created time
	);
	CREATE INDEX IF NOT EXISTS runsrunid ON runs (run_id);
	CREATE INDEX IF NOT EXISTS runsrecid ON runs (recid);
	CREATE INDEX IF NOT EXISTS runscreated ON runs (created);
`

// NewQL opens a QL catalog stored in the given file. The filename "memory"
// keeps everything in memory.
func NewQL(filename string) (Catalog, error) {
	var db *sql.DB
	var err error
	if filename == "memory" {
		// memory databases with the same name are shared
		db, err = sql.Open("ql-mem", uuid.NewString()+".db")
	} else {
		db, err = sql.Open("ql", filename)
	}
	if err == nil {
		_, err = performExec(db, qlInit)
	}
	if err != nil {
		log.Printf("Open QL: %s", err.Error())
		return nil, err
	}
	return &qlCatalog{db: db}, nil
}

const qlColumns = `id(), run_id, source, recid, name, dry, status, valid, compliant, errormsg, path, files, bytes, created`

func (qc *qlCatalog) Add(r *Run) error {
	const query = `INSERT INTO runs VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13)`
	if r.Created.IsZero() {
		r.Created = time.Now()
	}
	result, err := performExec(qc.db, query,
		r.RunID, r.Source, r.RecID, r.Name, r.Dry, int64(r.Status), r.Valid,
		r.Compliant, r.Error, r.Path, int64(r.Files), r.Bytes, r.Created)
	if err != nil {
		return err
	}
	r.ID, err = result.LastInsertId()
	return err
}

func (qc *qlCatalog) Lookup(runID string) (*Run, error) {
	const query = `SELECT ` + qlColumns + ` FROM runs WHERE run_id == ?1 LIMIT 1`
	runs, err := qc.query(query, runID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

func (qc *qlCatalog) ForRecord(source, recid string) ([]*Run, error) {
	const query = `
		SELECT ` + qlColumns + `
		FROM runs
		WHERE source == ?1 AND recid == ?2
		ORDER BY created DESC`
	return qc.query(query, source, recid)
}

func (qc *qlCatalog) Recent(limit int) ([]*Run, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM runs
		ORDER BY created DESC
		LIMIT %d`, qlColumns, limit)
	return qc.query(query)
}

func (qc *qlCatalog) Close() error {
	return qc.db.Close()
}

func (qc *qlCatalog) query(query string, args ...interface{}) ([]*Run, error) {
	rows, err := qc.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*Run
	for rows.Next() {
		r := new(Run)
		var status, files int64
		err = rows.Scan(&r.ID, &r.RunID, &r.Source, &r.RecID, &r.Name, &r.Dry,
			&status, &r.Valid, &r.Compliant, &r.Error, &r.Path, &files, &r.Bytes, &r.Created)
		if err != nil {
			return nil, err
		}
		r.Status = int(status)
		r.Files = int(files)
		result = append(result, r)
	}
	return result, rows.Err()
}

func performExec(db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	tx, err := db.Begin()
	if err != nil {
		return nil, err
	}
	result, err := tx.Exec(query, args...)
	if err != nil {
		_ = tx.Rollback()
		return nil, err
	}
	err = tx.Commit()
	return result, err
}
