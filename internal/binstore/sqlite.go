package binstore

import (
	"database/sql"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/mvp-joe/project-lathe/internal/element"
)

const artifactsSchema = `
CREATE TABLE IF NOT EXISTS artifacts (
	type_name   TEXT    NOT NULL,
	fingerprint INTEGER NOT NULL,
	data        BLOB    NOT NULL,
	PRIMARY KEY (type_name, fingerprint)
)`

// SQLiteBroker stores artifacts in a SQLite table.
type SQLiteBroker struct {
	db *sql.DB
}

// OpenSQLiteBroker opens (creating if needed) the database at path. Use
// ":memory:" for a private in-memory broker.
func OpenSQLiteBroker(path string) (*SQLiteBroker, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open artifact database")
	}
	// One connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "enable WAL")
	}
	if _, err := db.Exec(artifactsSchema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create artifacts table")
	}
	return &SQLiteBroker{db: db}, nil
}

func (b *SQLiteBroker) Put(k Key, data []byte) error {
	_, err := sq.Insert("artifacts").
		Options("OR REPLACE").
		Columns("type_name", "fingerprint", "data").
		Values(string(k.Type), int64(k.Fingerprint), data).
		RunWith(b.db).
		Exec()
	return errors.Wrapf(err, "put %s", k)
}

func (b *SQLiteBroker) Get(k Key) ([]byte, bool, error) {
	var data []byte
	err := sq.Select("data").
		From("artifacts").
		Where(sq.Eq{"type_name": string(k.Type), "fingerprint": int64(k.Fingerprint)}).
		RunWith(b.db).
		QueryRow().
		Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "get %s", k)
	}
	return data, true, nil
}

func (b *SQLiteBroker) Keys() ([]Key, error) {
	rows, err := sq.Select("type_name", "fingerprint").
		From("artifacts").
		OrderBy("type_name", "fingerprint").
		RunWith(b.db).
		Query()
	if err != nil {
		return nil, errors.Wrap(err, "list artifacts")
	}
	defer rows.Close()

	var keys []Key
	for rows.Next() {
		var name string
		var fp int64
		if err := rows.Scan(&name, &fp); err != nil {
			return nil, errors.Wrap(err, "scan artifact key")
		}
		keys = append(keys, Key{Type: element.TypeName(name), Fingerprint: uint32(fp)})
	}
	return keys, errors.Wrap(rows.Err(), "list artifacts")
}

// GarbageCollect deletes unreferenced rows in one transaction.
func (b *SQLiteBroker) GarbageCollect(inUse map[Key]struct{}) ([]Key, error) {
	keys, err := b.Keys()
	if err != nil {
		return nil, err
	}
	var doomed []Key
	for _, k := range keys {
		if _, ok := inUse[k]; !ok {
			doomed = append(doomed, k)
		}
	}
	if len(doomed) == 0 {
		return nil, nil
	}

	tx, err := b.db.Begin()
	if err != nil {
		return nil, errors.Wrap(err, "begin collection")
	}
	defer tx.Rollback()
	for _, k := range doomed {
		_, err := sq.Delete("artifacts").
			Where(sq.Eq{"type_name": string(k.Type), "fingerprint": int64(k.Fingerprint)}).
			RunWith(tx).
			Exec()
		if err != nil {
			return nil, errors.Wrapf(err, "collect %s", k)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, errors.Wrap(err, "commit collection")
	}
	return doomed, nil
}

func (b *SQLiteBroker) Close() error {
	return b.db.Close()
}
