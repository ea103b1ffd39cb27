// Package symdb stores the symbol table of a build in a SQLite file so a
// disassembly can show names instead of raw addresses.
package symdb

import (
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/chazu/bcc/address"
)

// ErrNoBuild indicates the database holds no build record.
var ErrNoBuild = errors.New("no build recorded")

const schema = `
CREATE TABLE IF NOT EXISTS builds (
	id         TEXT PRIMARY KEY,
	version    TEXT NOT NULL,
	entry      TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS symbols (
	build   TEXT NOT NULL REFERENCES builds(id),
	slot    INTEGER NOT NULL,
	name    TEXT NOT NULL,
	address TEXT NOT NULL,
	PRIMARY KEY (build, slot)
);
CREATE TABLE IF NOT EXISTS objects (
	build TEXT NOT NULL REFERENCES builds(id),
	ord   INTEGER NOT NULL,
	name  TEXT NOT NULL,
	path  TEXT NOT NULL,
	size  INTEGER NOT NULL,
	PRIMARY KEY (build, ord)
);`

// Object describes one object file of a build.
type Object struct {
	Name string
	Path string
	Size int
}

// Build is everything recorded about one link.
type Build struct {
	ID        uuid.UUID
	Version   string
	Entry     address.Address
	CreatedAt time.Time
	Symbols   []address.Entry
	Objects   []Object
}

// DB is an open symbol database.
type DB struct {
	db *sql.DB
}

// Open opens or creates the database at path.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tables: %w", err)
	}
	return &DB{db: db}, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// WriteBuild records b in a single transaction.
func (d *DB) WriteBuild(b Build) error {
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	tx, err := d.db.Begin()
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT INTO builds (id, version, entry, created_at) VALUES (?, ?, ?, ?)",
		b.ID.String(), b.Version, b.Entry.String(), b.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("saving build: %w", err)
	}
	for i, s := range b.Symbols {
		_, err := tx.Exec(
			"INSERT INTO symbols (build, slot, name, address) VALUES (?, ?, ?, ?)",
			b.ID.String(), i, s.Name, s.Address.String(),
		)
		if err != nil {
			return fmt.Errorf("saving symbol %s: %w", s.Name, err)
		}
	}
	for i, o := range b.Objects {
		_, err := tx.Exec(
			"INSERT INTO objects (build, ord, name, path, size) VALUES (?, ?, ?, ?, ?)",
			b.ID.String(), i, o.Name, o.Path, o.Size,
		)
		if err != nil {
			return fmt.Errorf("saving object %s: %w", o.Name, err)
		}
	}
	return tx.Commit()
}

// Latest returns the most recently recorded build.
func (d *DB) Latest() (*Build, error) {
	var id, version, entry, created string
	err := d.db.QueryRow(
		"SELECT id, version, entry, created_at FROM builds ORDER BY created_at DESC LIMIT 1",
	).Scan(&id, &version, &entry, &created)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoBuild
		}
		return nil, fmt.Errorf("querying build: %w", err)
	}

	b := &Build{Version: version}
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("build id %q: %w", id, err)
	}
	if b.Entry, err = parseAddress(entry); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
		return nil, fmt.Errorf("build time %q: %w", created, err)
	}
	if b.Symbols, err = d.symbols(id); err != nil {
		return nil, err
	}
	if b.Objects, err = d.objects(id); err != nil {
		return nil, err
	}
	return b, nil
}

// Symbols returns the names of the latest build keyed by address hex, the
// form dis.Names expects.
func (d *DB) Symbols() (map[string]string, error) {
	b, err := d.Latest()
	if err != nil {
		return nil, err
	}
	names := make(map[string]string, len(b.Symbols))
	for _, s := range b.Symbols {
		names[s.Address.String()] = s.Name
	}
	return names, nil
}

func (d *DB) symbols(build string) ([]address.Entry, error) {
	rows, err := d.db.Query("SELECT name, address FROM symbols WHERE build = ? ORDER BY slot", build)
	if err != nil {
		return nil, fmt.Errorf("querying symbols: %w", err)
	}
	defer rows.Close()

	var entries []address.Entry
	for rows.Next() {
		var name, addrHex string
		if err := rows.Scan(&name, &addrHex); err != nil {
			return nil, fmt.Errorf("scanning symbol: %w", err)
		}
		addr, err := parseAddress(addrHex)
		if err != nil {
			return nil, err
		}
		entries = append(entries, address.Entry{Name: name, Address: addr})
	}
	return entries, rows.Err()
}

func (d *DB) objects(build string) ([]Object, error) {
	rows, err := d.db.Query("SELECT name, path, size FROM objects WHERE build = ? ORDER BY ord", build)
	if err != nil {
		return nil, fmt.Errorf("querying objects: %w", err)
	}
	defer rows.Close()

	var objects []Object
	for rows.Next() {
		var o Object
		if err := rows.Scan(&o.Name, &o.Path, &o.Size); err != nil {
			return nil, fmt.Errorf("scanning object: %w", err)
		}
		objects = append(objects, o)
	}
	return objects, rows.Err()
}

func parseAddress(s string) (address.Address, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", address.ErrMalformedAddress, s)
	}
	return address.Decode(raw)
}
