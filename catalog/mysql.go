package catalog

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	// no _ in import mysql since we need mysql.NullTime
	"github.com/BurntSushi/migration"
	"github.com/go-sql-driver/mysql"
)

// This file implements the catalog using MySQL.

type mysqlCatalog struct {
	db *sql.DB
}

var _ Catalog = &mysqlCatalog{}

// List of migrations to perform. Add new ones to the end.
// DO NOT change the order of items already in this list.
var mysqlMigrations = []migration.Migrator{
	mysqlschema1,
	mysqlschema2,
}

var mysqlVersioning = versioning{
	get:    `SELECT max(version) FROM migration_version`,
	set:    `INSERT INTO migration_version (version, applied) VALUES (?, now())`,
	create: `CREATE TABLE migration_version (version INTEGER, applied datetime)`,
}

// NewMySQL connects to a MySQL database, bringing its schema up to date.
// dial is e.g. "user:password@tcp(localhost:3306)/bagcreate", or just
// "/bagcreate" if everything else can be the default.
func NewMySQL(dial string) (Catalog, error) {
	db, err := migration.OpenWith(
		"mysql",
		dial,
		mysqlMigrations,
		mysqlVersioning.Version,
		mysqlVersioning.SetVersion)
	if err != nil {
		log.Printf("Open Mysql: %s", err.Error())
		return nil, err
	}
	return &mysqlCatalog{db: db}, nil
}

const mysqlColumns = `id, run_id, source, recid, name, dry, status, valid, compliant, errormsg, path, files, bytes, created`

func (ms *mysqlCatalog) Add(r *Run) error {
	const query = `INSERT INTO runs
		(run_id, source, recid, name, dry, status, valid, compliant, errormsg, path, files, bytes, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if r.Created.IsZero() {
		r.Created = time.Now()
	}
	result, err := ms.db.Exec(query,
		r.RunID, r.Source, r.RecID, r.Name, r.Dry, r.Status, r.Valid,
		r.Compliant, r.Error, r.Path, r.Files, r.Bytes, r.Created)
	if err != nil {
		return err
	}
	r.ID, err = result.LastInsertId()
	return err
}

func (ms *mysqlCatalog) Lookup(runID string) (*Run, error) {
	const query = `SELECT ` + mysqlColumns + ` FROM runs WHERE run_id = ? LIMIT 1`
	runs, err := ms.query(query, runID)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, ErrNotFound
	}
	return runs[0], nil
}

func (ms *mysqlCatalog) ForRecord(source, recid string) ([]*Run, error) {
	const query = `
		SELECT ` + mysqlColumns + `
		FROM runs
		WHERE source = ? AND recid = ?
		ORDER BY created DESC, id DESC`
	return ms.query(query, source, recid)
}

func (ms *mysqlCatalog) Recent(limit int) ([]*Run, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM runs
		ORDER BY created DESC, id DESC
		LIMIT %d`, mysqlColumns, limit)
	return ms.query(query)
}

func (ms *mysqlCatalog) Close() error {
	return ms.db.Close()
}

func (ms *mysqlCatalog) query(query string, args ...interface{}) ([]*Run, error) {
	rows, err := ms.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []*Run
	for rows.Next() {
		r := new(Run)
		var errormsg, path sql.NullString
		var created mysql.NullTime
		err = rows.Scan(&r.ID, &r.RunID, &r.Source, &r.RecID, &r.Name, &r.Dry,
			&r.Status, &r.Valid, &r.Compliant, &errormsg, &path, &r.Files, &r.Bytes, &created)
		if err != nil {
			return nil, err
		}
		r.Error = errormsg.String
		r.Path = path.String
		if created.Valid {
			r.Created = created.Time
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// database migrations. each one is a go function. Add them to the
// list mysqlMigrations at top of this file for them to be run.

func mysqlschema1(tx migration.LimitedTx) error {
	var s = []string{
		`CREATE TABLE IF NOT EXISTS runs (
		id int PRIMARY KEY AUTO_INCREMENT,
		run_id varchar(64),
		source varchar(64),
		recid varchar(255),
		name varchar(255),
		dry bool,
		status int,
		valid bool,
		errormsg text,
		path text,
		created datetime,
		UNIQUE INDEX runs_run_id (run_id),
		INDEX runs_record (source, recid))`,
	}
	return execlist(tx, s)
}

func mysqlschema2(tx migration.LimitedTx) error {
	var s = []string{
		`ALTER TABLE runs ADD COLUMN compliant bool DEFAULT true AFTER valid`,
		`ALTER TABLE runs ADD COLUMN files int DEFAULT 0, ADD COLUMN bytes BIGINT DEFAULT 0`,
	}
	return execlist(tx, s)
}
